package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tbledger/apiserver/types"
)

// UserRepository handles persistence for users and their group memberships.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT id, username, email, password_hash, is_superuser, created_at, updated_at
		FROM users
		WHERE id = $1`
	return r.getUser(ctx, query, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT id, username, email, password_hash, is_superuser, created_at, updated_at
		FROM users
		WHERE username = $1`
	return r.getUser(ctx, query, username)
}

func (r *UserRepository) getUser(ctx context.Context, query string, arg any) (types.User, error) {
	var user types.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.IsSuperuser,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}

	roles, err := loadRoles(ctx, r.db, user.ID)
	if err != nil {
		return types.User{}, err
	}
	user.Roles = roles
	return user, nil
}

// Create inserts a user together with its roles in a single transaction.
// A taken username yields ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.User{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const query = `
		INSERT INTO users (username, email, password_hash, is_superuser, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := tx.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.IsSuperuser,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, mapError(err)
	}

	for _, role := range user.Roles {
		if err := addRole(ctx, tx, user.ID, role); err != nil {
			return types.User{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// AddRole puts the user in the group named after role, creating the group if needed.
func (r *UserRepository) AddRole(ctx context.Context, userID int, role types.Role) error {
	return addRole(ctx, r.db, userID, role)
}

// RemoveRole takes the user out of the group named after role.
func (r *UserRepository) RemoveRole(ctx context.Context, userID int, role types.Role) error {
	const query = `
		DELETE FROM user_groups
		WHERE user_id = $1
		  AND group_id = (SELECT id FROM groups WHERE name = $2)`
	_, err := r.db.ExecContext(ctx, query, userID, string(role))
	return err
}

func (r *UserRepository) SetSuperuser(ctx context.Context, userID int, superuser bool) error {
	const query = `UPDATE users SET is_superuser = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, superuser, time.Now(), userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func addRole(ctx context.Context, q queryer, userID int, role types.Role) error {
	const groupQuery = `INSERT INTO groups (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`
	if _, err := q.ExecContext(ctx, groupQuery, string(role)); err != nil {
		return err
	}

	const memberQuery = `
		INSERT INTO user_groups (user_id, group_id)
		SELECT $1, id FROM groups WHERE name = $2
		ON CONFLICT DO NOTHING`
	_, err := q.ExecContext(ctx, memberQuery, userID, string(role))
	return err
}

// loadRoles returns the user's roles. Groups that do not name a known role are skipped.
func loadRoles(ctx context.Context, q queryer, userID int) ([]types.Role, error) {
	const query = `
		SELECT g.name
		FROM groups g
		JOIN user_groups ug ON ug.group_id = g.id
		WHERE ug.user_id = $1
		ORDER BY g.name`
	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []types.Role
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		role, err := types.ParseRole(name)
		if err != nil {
			continue
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}
