package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/tbledger/apiserver/internal/forms"
	"github.com/tbledger/apiserver/internal/store"
	"github.com/tbledger/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	AddRole(ctx context.Context, userID int, role types.Role) error
	RemoveRole(ctx context.Context, userID int, role types.Role) error
	SetSuperuser(ctx context.Context, userID int, superuser bool) error
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo      UserRepository
	hashCost  int
	dummyHash []byte
}

// NewUserService returns a user service hashing passwords with bcrypt at
// hashCost. Costs outside bcrypt's range fall back to bcrypt.DefaultCost.
func NewUserService(repo UserRepository, hashCost int) *UserService {
	if hashCost < bcrypt.MinCost || hashCost > bcrypt.MaxCost {
		hashCost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("dummy-password"), hashCost)
	return &UserService{repo: repo, hashCost: hashCost, dummyHash: dummy}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// Register creates a user in the restricted group.
func (s *UserService) Register(ctx context.Context, input forms.RegistrationInput) (types.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hash),
		Roles:        []types.Role{types.RoleRestricted},
	})
	if errors.Is(err, store.ErrDuplicate) {
		return types.User{}, ErrUsernameTaken
	}
	if err != nil {
		return types.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate returns the user matching username and password. Unknown
// usernames cost the same bcrypt comparison as wrong passwords.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return types.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return types.User{}, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Grant adds the named user to role's group.
func (s *UserService) Grant(ctx context.Context, username string, role types.Role) error {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("load user %q: %w", username, err)
	}
	return s.repo.AddRole(ctx, user.ID, role)
}

// Revoke removes the named user from role's group.
func (s *UserService) Revoke(ctx context.Context, username string, role types.Role) error {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("load user %q: %w", username, err)
	}
	return s.repo.RemoveRole(ctx, user.ID, role)
}

func (s *UserService) SetSuperuser(ctx context.Context, username string, superuser bool) error {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("load user %q: %w", username, err)
	}
	return s.repo.SetSuperuser(ctx, user.ID, superuser)
}
