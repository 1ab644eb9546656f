package forms

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/tbledger/apiserver/internal/access"
	"github.com/tbledger/apiserver/types"
)

// The max tag mirrors types.AccountNameMaxLength.
type accountForm struct {
	Name           string `form:"name" validate:"required,max=30"`
	Number         string `form:"number" validate:"required,integer"`
	OpeningBalance string `form:"opening_balance" validate:"required,integer"`
	Activity       string `form:"activity" validate:"required,integer"`
}

// AccountInput is a validated account create/update submission.
// It has no closing balance; that value is always derived.
type AccountInput struct {
	Name           string
	Number         int
	OpeningBalance int
	Activity       int
}

// Apply copies the input onto account.
func (in AccountInput) Apply(account *types.Account) {
	account.Name = in.Name
	account.Number = in.Number
	account.OpeningBalance = in.OpeningBalance
	account.Activity = in.Activity
}

// AccountValues returns the form values that display account.
func AccountValues(account types.Account) url.Values {
	return url.Values{
		string(types.FieldName):           {account.Name},
		string(types.FieldNumber):         {strconv.Itoa(account.Number)},
		string(types.FieldOpeningBalance): {strconv.Itoa(account.OpeningBalance)},
		string(types.FieldActivity):       {strconv.Itoa(account.Activity)},
	}
}

// MergeAccountValues overlays the submitted values on base. Fields in
// readOnly keep the value from base whatever was submitted.
func MergeAccountValues(submitted url.Values, base types.Account, readOnly access.FieldSet) url.Values {
	baseValues := AccountValues(base)
	merged := url.Values{}
	for _, field := range types.AccountFields {
		key := string(field)
		if readOnly.Has(field) {
			merged.Set(key, baseValues.Get(key))
			continue
		}
		merged.Set(key, strings.TrimSpace(submitted.Get(key)))
	}
	return merged
}

// Account validates an account create/update submission. For updates base is
// the stored record; for creates it is the zero Account.
func (v *Validator) Account(submitted url.Values, base types.Account, readOnly access.FieldSet) (AccountInput, Errors) {
	values := MergeAccountValues(submitted, base, readOnly)
	form := accountForm{
		Name:           values.Get(string(types.FieldName)),
		Number:         values.Get(string(types.FieldNumber)),
		OpeningBalance: values.Get(string(types.FieldOpeningBalance)),
		Activity:       values.Get(string(types.FieldActivity)),
	}

	if errs := v.check(form); errs.Any() {
		return AccountInput{}, errs
	}

	// Each value passed the integer tag above.
	number, _ := strconv.Atoi(form.Number)
	opening, _ := strconv.Atoi(form.OpeningBalance)
	activity, _ := strconv.Atoi(form.Activity)

	return AccountInput{
		Name:           form.Name,
		Number:         number,
		OpeningBalance: opening,
		Activity:       activity,
	}, Errors{}
}

type versionForm struct {
	Version string `form:"version" validate:"required,integer"`
}

// Version reads the record version an update form was rendered from.
func (v *Validator) Version(submitted url.Values) (int, Errors) {
	form := versionForm{Version: strings.TrimSpace(submitted.Get("version"))}
	if errs := v.check(form); errs.Any() {
		return 0, errs
	}
	version, _ := strconv.Atoi(form.Version)
	return version, Errors{}
}
