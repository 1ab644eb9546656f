package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/tbledger/apiserver/types"
)

const accountColumns = `id, name, number, opening_balance, activity, closing_balance, version, created_at, updated_at`

// AccountRepository handles persistence for trial balance accounts.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (types.Account, error) {
	var account types.Account
	err := row.Scan(
		&account.ID,
		&account.Name,
		&account.Number,
		&account.OpeningBalance,
		&account.Activity,
		&account.ClosingBalance,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	return account, err
}

// List returns every account in insertion order.
func (r *AccountRepository) List(ctx context.Context) ([]types.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]types.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *AccountRepository) Get(ctx context.Context, id int) (types.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	return account, nil
}

// Create inserts a new account. The closing balance is recomputed before the write.
func (r *AccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	account.Reconcile()
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	account.Version = 1

	const query = `
		INSERT INTO accounts (name, number, opening_balance, activity, closing_balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		account.Name,
		account.Number,
		account.OpeningBalance,
		account.Activity,
		account.ClosingBalance,
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID); err != nil {
		return types.Account{}, err
	}
	return account, nil
}

// Update writes account if the stored version still equals account.Version.
// The closing balance is recomputed before the write and the version is bumped.
func (r *AccountRepository) Update(ctx context.Context, account types.Account) (types.Account, error) {
	account.Reconcile()
	account.UpdatedAt = time.Now()

	const query = `
		UPDATE accounts
		SET name = $1,
			number = $2,
			opening_balance = $3,
			activity = $4,
			closing_balance = $5,
			version = version + 1,
			updated_at = $6
		WHERE id = $7 AND version = $8
		RETURNING version, created_at`
	err := r.db.QueryRowContext(
		ctx,
		query,
		account.Name,
		account.Number,
		account.OpeningBalance,
		account.Activity,
		account.ClosingBalance,
		account.UpdatedAt,
		account.ID,
		account.Version,
	).Scan(&account.Version, &account.CreatedAt)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return types.Account{}, err
	}

	var exists bool
	const existsQuery = `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`
	if err := r.db.QueryRowContext(ctx, existsQuery, account.ID).Scan(&exists); err != nil {
		return types.Account{}, err
	}
	if !exists {
		return types.Account{}, ErrNotFound
	}
	return types.Account{}, ErrConflict
}

// DeleteMany removes the accounts with the given ids and reports how many
// rows were removed. Unknown ids are ignored.
func (r *AccountRepository) DeleteMany(ctx context.Context, ids []int) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]int64, len(ids))
	for i, id := range ids {
		keys[i] = int64(id)
	}

	const query = `DELETE FROM accounts WHERE id = ANY($1)`
	result, err := r.db.ExecContext(ctx, query, pq.Array(keys))
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
