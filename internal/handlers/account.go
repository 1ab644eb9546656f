package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tbledger/apiserver/internal/access"
	"github.com/tbledger/apiserver/internal/forms"
	"github.com/tbledger/apiserver/internal/report"
	"github.com/tbledger/apiserver/internal/services"
	"github.com/tbledger/apiserver/internal/store"
	"github.com/tbledger/apiserver/types"
)

const (
	trialBalancePath = "/trial_balance"
	conflictMessage  = "This account was changed by someone else. Review the current values and submit again."
	staleFormMessage = "This form is missing the account version. Review the current values and submit again."
	exportFilename   = "trial_balance.xlsx"
)

// trialBalanceActions are the dropdown entries of the trial balance page and
// the pages they lead to.
var trialBalanceActions = []struct {
	actionView
	target string
}{
	{actionView{Value: "AccountCreateView", Label: "Add account"}, "/user_form"},
	{actionView{Value: "AccountDeleteView", Label: "Delete account"}, "/delete_account"},
	{actionView{Value: "AccountUpdateSelectView", Label: "Update account"}, "/account_update_select"},
}

var fieldLabels = map[types.AccountField]string{
	types.FieldName:           "Name",
	types.FieldNumber:         "Number",
	types.FieldOpeningBalance: "Opening balance",
	types.FieldActivity:       "Activity",
}

// AccountHandler serves the trial balance pages.
type AccountHandler struct {
	accounts  *services.AccountService
	validator *forms.Validator
	pages     *Renderer
	logger    *zap.Logger
}

// NewAccountHandler constructs an AccountHandler with the provided dependencies.
func NewAccountHandler(accounts *services.AccountService, validator *forms.Validator, pages *Renderer, logger *zap.Logger) *AccountHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountHandler{
		accounts:  accounts,
		validator: validator,
		pages:     pages,
		logger:    logger,
	}
}

// AccountRouter registers the trial balance routes on the given router.
func AccountRouter(r chi.Router, handler *AccountHandler) {
	gate := func(action access.Action) func(http.Handler) http.Handler {
		return requireAction(handler.pages, action)
	}

	r.With(requireLogin).Get("/trial_balance", handler.TrialBalance)
	r.With(requireLogin).Get("/trial_balance/export", handler.Export)

	r.With(gate(access.ActionCreate)).Get("/user_form", handler.CreatePage)
	r.With(gate(access.ActionCreate)).Post("/user_form", handler.Create)

	r.With(gate(access.ActionDelete)).Get("/delete_account", handler.DeletePage)
	r.With(gate(access.ActionDelete)).Post("/delete_account", handler.Delete)

	r.With(gate(access.ActionUpdate)).Get("/account_update_select", handler.UpdateSelectPage)
	r.With(gate(access.ActionUpdate)).Post("/account_update_select", handler.UpdateSelect)

	r.Route("/update_account/{accountID}", func(r chi.Router) {
		r.Use(gate(access.ActionUpdate))
		r.Get("/", handler.UpdatePage)
		r.Post("/", handler.Update)
	})
}

// TrialBalance lists every account. The action query parameter jumps to the
// page chosen in the dropdown.
func (h *AccountHandler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	if action := r.URL.Query().Get("action"); action != "" {
		for _, entry := range trialBalanceActions {
			if entry.Value == action {
				redirect(w, r, entry.target)
				return
			}
		}
	}

	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		h.pages.serverError(w, r, err)
		return
	}

	actions := make([]actionView, 0, len(trialBalanceActions))
	for _, entry := range trialBalanceActions {
		actions = append(actions, entry.actionView)
	}
	h.pages.render(w, r, http.StatusOK, pageTrialBalance, view{Accounts: accounts, Actions: actions})
}

// Export downloads the trial balance as an xlsx workbook.
func (h *AccountHandler) Export(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		h.pages.serverError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteTrialBalance(&buf, accounts); err != nil {
		h.pages.serverError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *AccountHandler) CreatePage(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	h.renderAccountForm(w, r, http.StatusOK, types.Account{}, url.Values{}, forms.Errors{}, access.ReadOnlyFields(identity), "")
}

// Create validates the submission and stores a new account.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	identity := identityFromContext(r.Context())
	readOnly := access.ReadOnlyFields(identity)

	input, errs := h.validator.Account(r.PostForm, types.Account{}, readOnly)
	if errs.Any() {
		values := forms.MergeAccountValues(r.PostForm, types.Account{}, readOnly)
		h.renderAccountForm(w, r, http.StatusOK, types.Account{}, values, errs, readOnly, "")
		return
	}

	if _, err := h.accounts.Create(r.Context(), identity, input); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	redirect(w, r, trialBalancePath)
}

func (h *AccountHandler) DeletePage(w http.ResponseWriter, r *http.Request) {
	h.renderSelection(w, r, pageDeleteAccount, forms.Errors{})
}

// Delete removes every selected account. An empty selection changes nothing.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		h.pages.serverError(w, r, err)
		return
	}

	ids, errs := h.validator.DeleteSelection(r.PostForm, accountIDs(accounts))
	if errs.Any() {
		h.pages.render(w, r, http.StatusOK, pageDeleteAccount, view{Accounts: accounts, Errors: errs})
		return
	}

	if _, err := h.accounts.DeleteMany(r.Context(), identityFromContext(r.Context()), ids); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	redirect(w, r, trialBalancePath)
}

func (h *AccountHandler) UpdateSelectPage(w http.ResponseWriter, r *http.Request) {
	h.renderSelection(w, r, pageUpdateSelect, forms.Errors{})
}

// UpdateSelect sends the caller to the update form of the chosen account.
func (h *AccountHandler) UpdateSelect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		h.pages.serverError(w, r, err)
		return
	}

	id, errs := h.validator.UpdateSelection(r.PostForm, accountIDs(accounts))
	if errs.Any() {
		h.pages.render(w, r, http.StatusOK, pageUpdateSelect, view{Accounts: accounts, Errors: errs})
		return
	}
	redirect(w, r, updatePath(id))
}

func (h *AccountHandler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	account, ok := h.loadAccount(w, r)
	if !ok {
		return
	}
	readOnly := access.ReadOnlyFields(identityFromContext(r.Context()))
	h.renderAccountForm(w, r, http.StatusOK, account, forms.AccountValues(account), forms.Errors{}, readOnly, "")
}

// Update applies the caller's editable fields to the account. A submission
// based on an outdated version is refused and the form shows the current
// values.
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	account, ok := h.loadAccount(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	identity := identityFromContext(r.Context())
	readOnly := access.ReadOnlyFields(identity)

	version, errs := h.validator.Version(r.PostForm)
	if errs.Any() {
		h.renderAccountForm(w, r, http.StatusOK, account, forms.AccountValues(account), forms.Errors{}, readOnly, staleFormMessage)
		return
	}

	input, errs := h.validator.Account(r.PostForm, account, readOnly)
	if errs.Any() {
		values := forms.MergeAccountValues(r.PostForm, account, readOnly)
		account.Version = version
		h.renderAccountForm(w, r, http.StatusOK, account, values, errs, readOnly, "")
		return
	}

	_, err := h.accounts.Update(r.Context(), identity, services.AccountUpdate{
		ID:      account.ID,
		Version: version,
		Input:   input,
	})
	if errors.Is(err, store.ErrConflict) {
		current, getErr := h.accounts.Get(r.Context(), account.ID)
		if getErr != nil {
			h.handleServiceError(w, r, getErr)
			return
		}
		h.renderAccountForm(w, r, http.StatusConflict, current, forms.AccountValues(current), forms.Errors{}, readOnly, conflictMessage)
		return
	}
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	redirect(w, r, trialBalancePath)
}

func (h *AccountHandler) loadAccount(w http.ResponseWriter, r *http.Request) (types.Account, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "accountID"))
	if err != nil || id < 1 {
		h.pages.NotFound(w, r)
		return types.Account{}, false
	}

	account, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return types.Account{}, false
	}
	return account, true
}

func (h *AccountHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrForbidden):
		h.pages.forbidden(w, r)
	case errors.Is(err, store.ErrNotFound):
		h.pages.NotFound(w, r)
	default:
		h.pages.serverError(w, r, err)
	}
}

func (h *AccountHandler) renderSelection(w http.ResponseWriter, r *http.Request, page string, errs forms.Errors) {
	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		h.pages.serverError(w, r, err)
		return
	}
	h.pages.render(w, r, http.StatusOK, page, view{Accounts: accounts, Errors: errs})
}

func (h *AccountHandler) renderAccountForm(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	account types.Account,
	values url.Values,
	errs forms.Errors,
	readOnly access.FieldSet,
	message string,
) {
	fields := make([]fieldView, 0, len(types.AccountFields))
	for _, field := range types.AccountFields {
		fields = append(fields, fieldView{
			Name:     string(field),
			Label:    fieldLabels[field],
			Value:    values.Get(string(field)),
			Disabled: readOnly.Has(field),
			Errors:   errs[string(field)],
		})
	}

	action := "/user_form"
	if account.ID > 0 {
		action = updatePath(account.ID)
	}
	h.pages.render(w, r, status, pageAccountForm, view{
		Account: account,
		Fields:  fields,
		Action:  action,
		Errors:  errs,
		Message: message,
	})
}

func accountIDs(accounts []types.Account) []int {
	ids := make([]int, 0, len(accounts))
	for _, account := range accounts {
		ids = append(ids, account.ID)
	}
	return ids
}

func updatePath(id int) string {
	return "/update_account/" + strconv.Itoa(id)
}
