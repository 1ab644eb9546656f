package types

import (
	"fmt"
	"time"
)

// AccountNameMaxLength is the maximum number of characters in an account name.
const AccountNameMaxLength = 30

// Account is a single row of the trial balance.
type Account struct {
	// ID is the unique identifier of the account record.
	ID int `json:"id" db:"id"`

	// Name is the short account label, e.g. "Cash" or "GenLedgAcct".
	Name string `json:"name" db:"name"`

	// Number is the chart-of-accounts number. It is not required to be unique.
	Number int `json:"number" db:"number"`

	// OpeningBalance is the balance carried into the period.
	OpeningBalance int `json:"opening_balance" db:"opening_balance"`

	// Activity is the net movement on the account during the period.
	Activity int `json:"activity" db:"activity"`

	// ClosingBalance is always OpeningBalance + Activity. It is derived on
	// every write and never taken from user input.
	ClosingBalance int `json:"closing_balance" db:"closing_balance"`

	// Version is incremented on every update and used to reject writes
	// based on a stale copy of the record.
	Version int `json:"version" db:"version"`

	// CreatedAt is the timestamp at which the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Reconcile recomputes the closing balance from the opening balance and activity.
func (a *Account) Reconcile() {
	a.ClosingBalance = a.OpeningBalance + a.Activity
}

// String renders the account as "name | number".
func (a Account) String() string {
	return fmt.Sprintf("%s | %d", a.Name, a.Number)
}

// Row renders the full trial balance line:
// "name | number | opening balance | activity | closing balance".
func (a Account) Row() string {
	return fmt.Sprintf("%s | %d | %d | %d | %d", a.Name, a.Number, a.OpeningBalance, a.Activity, a.ClosingBalance)
}

// AccountField names an editable input of the account form.
type AccountField string

const (
	FieldName           AccountField = "name"
	FieldNumber         AccountField = "number"
	FieldOpeningBalance AccountField = "opening_balance"
	FieldActivity       AccountField = "activity"
)

// AccountFields lists the editable account inputs in form order.
var AccountFields = []AccountField{FieldName, FieldNumber, FieldOpeningBalance, FieldActivity}

// AccountEventType identifies what happened to an account.
type AccountEventType string

const (
	AccountCreated AccountEventType = "account.created"
	AccountUpdated AccountEventType = "account.updated"
	AccountDeleted AccountEventType = "account.deleted"
)

// AccountEvent is published after an account mutation has been committed.
type AccountEvent struct {
	Type       AccountEventType `json:"type"`
	AccountIDs []int            `json:"account_ids"`
	Account    *Account         `json:"account,omitempty"`
	ActorID    int              `json:"actor_id"`
	OccurredAt time.Time        `json:"occurred_at"`
}
