// Package memstore provides in-memory implementations of the account and
// user repositories with the same semantics as the Postgres ones.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tbledger/apiserver/internal/store"
	"github.com/tbledger/apiserver/types"
)

// AccountRepository stores accounts in memory.
type AccountRepository struct {
	mu       sync.Mutex
	nextID   int
	accounts map[int]types.Account
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{nextID: 1, accounts: map[int]types.Account{}}
}

func (r *AccountRepository) List(ctx context.Context) ([]types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts := make([]types.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		accounts = append(accounts, account)
	}
	slices.SortFunc(accounts, func(a, b types.Account) int { return a.ID - b.ID })
	return accounts, nil
}

func (r *AccountRepository) Get(ctx context.Context, id int) (types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (r *AccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account.Reconcile()
	now := time.Now()
	account.ID = r.nextID
	account.Version = 1
	account.CreatedAt = now
	account.UpdatedAt = now
	r.nextID++
	r.accounts[account.ID] = account
	return account, nil
}

func (r *AccountRepository) Update(ctx context.Context, account types.Account) (types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.accounts[account.ID]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	if current.Version != account.Version {
		return types.Account{}, store.ErrConflict
	}

	account.Reconcile()
	account.Version = current.Version + 1
	account.CreatedAt = current.CreatedAt
	account.UpdatedAt = time.Now()
	r.accounts[account.ID] = account
	return account, nil
}

func (r *AccountRepository) DeleteMany(ctx context.Context, ids []int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if _, ok := r.accounts[id]; ok {
			delete(r.accounts, id)
			removed++
		}
	}
	return removed, nil
}

// UserRepository stores users in memory.
type UserRepository struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{nextID: 1, users: map[int]types.User{}}
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return cloneUser(user), nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.Username == username {
			return cloneUser(user), nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Username == user.Username {
			return types.User{}, store.ErrDuplicate
		}
	}

	now := time.Now()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.nextID++
	r.users[user.ID] = cloneUser(user)
	return user, nil
}

func (r *UserRepository) AddRole(ctx context.Context, userID int, role types.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	if !user.HasRole(role) {
		user.Roles = append(user.Roles, role)
	}
	r.users[userID] = user
	return nil
}

func (r *UserRepository) RemoveRole(ctx context.Context, userID int, role types.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return nil
	}
	user.Roles = slices.DeleteFunc(user.Roles, func(existing types.Role) bool { return existing == role })
	r.users[userID] = user
	return nil
}

func (r *UserRepository) SetSuperuser(ctx context.Context, userID int, superuser bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.IsSuperuser = superuser
	r.users[userID] = user
	return nil
}

func cloneUser(user types.User) types.User {
	user.Roles = slices.Clone(user.Roles)
	return user
}
