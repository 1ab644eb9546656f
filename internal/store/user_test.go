package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbledger/apiserver/types"
)

var userRowColumns = []string{"id", "username", "email", "password_hash", "is_superuser", "created_at", "updated_at"}

func TestUserGetByUsernameLoadsRoles(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	now := time.Now()

	mock.ExpectQuery("FROM users").
		WithArgs("user_1").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(7, "user_1", "user_1@email.com", "hash", false, now, now))
	mock.ExpectQuery("FROM groups g").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("all_permissions").
			AddRow("legacy_admins").
			AddRow("new_hire_permissions"))

	user, err := repo.GetByUsername(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, 7, user.ID)
	assert.Equal(t, []types.Role{types.RoleFullAccess, types.RoleRestricted}, user.Roles)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery("FROM users").WithArgs(9).WillReturnRows(sqlmock.NewRows(userRowColumns))

	_, err := repo.GetByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserCreateWithRoles(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("user_1", "user_1@email.com", "hash", false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectExec("INSERT INTO groups").
		WithArgs("new_hire_permissions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO user_groups").
		WithArgs(11, "new_hire_permissions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, err := repo.Create(context.Background(), types.User{
		Username:     "user_1",
		Email:        "user_1@email.com",
		PasswordHash: "hash",
		Roles:        []types.Role{types.RoleRestricted},
	})
	require.NoError(t, err)
	assert.Equal(t, 11, user.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreateDuplicateUsername(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), types.User{Username: "user_1"})
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRemoveRole(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec("DELETE FROM user_groups").
		WithArgs(5, "all_permissions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RemoveRole(context.Background(), 5, types.RoleFullAccess))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserSetSuperuserMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec("UPDATE users SET is_superuser").
		WithArgs(true, sqlmock.AnyArg(), 5).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetSuperuser(context.Background(), 5, true)
	assert.ErrorIs(t, err, ErrNotFound)
}
