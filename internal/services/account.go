package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tbledger/apiserver/internal/access"
	"github.com/tbledger/apiserver/internal/forms"
	"github.com/tbledger/apiserver/internal/metrics"
	"github.com/tbledger/apiserver/types"
)

// AccountRepository defines persistence operations for trial balance accounts.
type AccountRepository interface {
	List(ctx context.Context) ([]types.Account, error)
	Get(ctx context.Context, id int) (types.Account, error)
	Create(ctx context.Context, account types.Account) (types.Account, error)
	Update(ctx context.Context, account types.Account) (types.Account, error)
	DeleteMany(ctx context.Context, ids []int) (int, error)
}

// EventPublisher announces committed account changes.
type EventPublisher interface {
	PublishAccountEvent(ctx context.Context, event types.AccountEvent) error
}

// AccountUpdate is an edit of a stored account. Version is the version the
// editor loaded; the write fails with store.ErrConflict if it is stale.
type AccountUpdate struct {
	ID      int
	Version int
	Input   forms.AccountInput
}

// AccountService encapsulates trial balance use-cases.
type AccountService struct {
	repo   AccountRepository
	events EventPublisher
	logger *zap.Logger
}

// NewAccountService wires the account use-cases. events may be nil.
func NewAccountService(repo AccountRepository, events EventPublisher, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{repo: repo, events: events, logger: logger}
}

func (s *AccountService) List(ctx context.Context) ([]types.Account, error) {
	return s.repo.List(ctx)
}

func (s *AccountService) Get(ctx context.Context, id int) (types.Account, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a new account. Fields read-only to the caller keep their
// zero value.
func (s *AccountService) Create(ctx context.Context, identity access.Identity, input forms.AccountInput) (types.Account, error) {
	if !access.Allowed(identity, access.ActionCreate) {
		return types.Account{}, ErrForbidden
	}

	var account types.Account
	applyEditable(&account, input, access.ReadOnlyFields(identity))

	created, err := s.repo.Create(ctx, account)
	if err != nil {
		return types.Account{}, fmt.Errorf("create account: %w", err)
	}

	metrics.RecordAccountMutation("create", 1)
	s.logger.Info("account created",
		zap.Int("account_id", created.ID),
		zap.Int("actor_id", identity.UserID),
	)
	s.publish(ctx, types.AccountEvent{
		Type:       types.AccountCreated,
		AccountIDs: []int{created.ID},
		Account:    &created,
		ActorID:    identity.UserID,
	})
	return created, nil
}

// Update applies the caller's editable fields onto the stored account and
// recomputes its closing balance.
func (s *AccountService) Update(ctx context.Context, identity access.Identity, update AccountUpdate) (types.Account, error) {
	if !access.Allowed(identity, access.ActionUpdate) {
		return types.Account{}, ErrForbidden
	}

	current, err := s.repo.Get(ctx, update.ID)
	if err != nil {
		return types.Account{}, fmt.Errorf("load account %d: %w", update.ID, err)
	}

	applyEditable(&current, update.Input, access.ReadOnlyFields(identity))
	current.Version = update.Version

	updated, err := s.repo.Update(ctx, current)
	if err != nil {
		return types.Account{}, fmt.Errorf("update account %d: %w", update.ID, err)
	}

	metrics.RecordAccountMutation("update", 1)
	s.logger.Info("account updated",
		zap.Int("account_id", updated.ID),
		zap.Int("version", updated.Version),
		zap.Int("actor_id", identity.UserID),
	)
	s.publish(ctx, types.AccountEvent{
		Type:       types.AccountUpdated,
		AccountIDs: []int{updated.ID},
		Account:    &updated,
		ActorID:    identity.UserID,
	})
	return updated, nil
}

// DeleteMany removes every selected account in one statement and returns the
// number removed.
func (s *AccountService) DeleteMany(ctx context.Context, identity access.Identity, ids []int) (int, error) {
	if !access.Allowed(identity, access.ActionDelete) {
		return 0, ErrForbidden
	}
	if len(ids) == 0 {
		return 0, nil
	}

	removed, err := s.repo.DeleteMany(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete accounts: %w", err)
	}

	metrics.RecordAccountMutation("delete", removed)
	s.logger.Info("accounts deleted",
		zap.Ints("account_ids", ids),
		zap.Int("removed", removed),
		zap.Int("actor_id", identity.UserID),
	)
	s.publish(ctx, types.AccountEvent{
		Type:       types.AccountDeleted,
		AccountIDs: ids,
		ActorID:    identity.UserID,
	})
	return removed, nil
}

// publish is best effort; the change is already committed.
func (s *AccountService) publish(ctx context.Context, event types.AccountEvent) {
	if s.events == nil {
		return
	}
	event.OccurredAt = time.Now().UTC()
	if err := s.events.PublishAccountEvent(ctx, event); err != nil {
		s.logger.Warn("publish account event failed",
			zap.String("type", string(event.Type)),
			zap.Ints("account_ids", event.AccountIDs),
			zap.Error(err),
		)
	}
}

func applyEditable(account *types.Account, input forms.AccountInput, readOnly access.FieldSet) {
	if !readOnly.Has(types.FieldName) {
		account.Name = input.Name
	}
	if !readOnly.Has(types.FieldNumber) {
		account.Number = input.Number
	}
	if !readOnly.Has(types.FieldOpeningBalance) {
		account.OpeningBalance = input.OpeningBalance
	}
	if !readOnly.Has(types.FieldActivity) {
		account.Activity = input.Activity
	}
}
