package server

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tbledger/apiserver/internal/forms"
	"github.com/tbledger/apiserver/internal/report"
	"github.com/tbledger/apiserver/internal/services"
	"github.com/tbledger/apiserver/internal/session"
	"github.com/tbledger/apiserver/internal/store/memstore"
	"github.com/tbledger/apiserver/types"
)

const testPassword = "pw1234"

type testApp struct {
	server   *httptest.Server
	accounts *memstore.AccountRepository
	users    *memstore.UserRepository
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	accounts := memstore.NewAccountRepository()
	users := memstore.NewUserRepository()
	router, err := NewRouter(Deps{
		Accounts:  services.NewAccountService(accounts, nil, nil),
		Users:     services.NewUserService(users, bcrypt.MinCost),
		Sessions:  session.NewManager(session.Options{Secret: "test-secret"}, session.NewMemoryStore()),
		Validator: forms.NewValidator(forms.PasswordPolicy{MinLength: forms.DefaultPasswordMinLength}),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testApp{server: srv, accounts: accounts, users: users}
}

func (a *testApp) createUser(t *testing.T, username string, superuser bool, roles ...types.Role) types.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	user, err := a.users.Create(context.Background(), types.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		IsSuperuser:  superuser,
		Roles:        roles,
	})
	require.NoError(t, err)
	return user
}

func (a *testApp) createAccount(t *testing.T, name string, number, opening, activity int) types.Account {
	t.Helper()
	account, err := a.accounts.Create(context.Background(), types.Account{
		Name: name, Number: number, OpeningBalance: opening, Activity: activity,
	})
	require.NoError(t, err)
	return account
}

// client returns an HTTP client with its own cookie jar that does not follow
// redirects.
func (a *testApp) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (a *testApp) loggedIn(t *testing.T, username string) *http.Client {
	t.Helper()
	client := a.client(t)
	resp := a.post(t, client, "/login", url.Values{"username": {username}, "password": {testPassword}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/trial_balance", resp.Header.Get("Location"))
	return client
}

func (a *testApp) get(t *testing.T, client *http.Client, path string) (*http.Response, string) {
	t.Helper()
	resp, err := client.Get(a.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (a *testApp) post(t *testing.T, client *http.Client, path string, values url.Values) *http.Response {
	t.Helper()
	resp, _ := a.postBody(t, client, path, values)
	return resp
}

func (a *testApp) postBody(t *testing.T, client *http.Client, path string, values url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := client.PostForm(a.server.URL+path, values)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func inputTag(t *testing.T, body, name string) string {
	t.Helper()
	tag := regexp.MustCompile(`<input[^>]*name="` + name + `"[^>]*>`).FindString(body)
	require.NotEmpty(t, tag, "input %s not rendered", name)
	return tag
}

func accountValues(name, number, opening, activity string) url.Values {
	return url.Values{
		"name":            {name},
		"number":          {number},
		"opening_balance": {opening},
		"activity":        {activity},
	}
}

func TestHelloAndHealthz(t *testing.T) {
	app := newTestApp(t)
	client := app.client(t)

	resp, body := app.get(t, client, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Hello!")

	resp, body = app.get(t, client, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestLoginFailureMessage(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "user_1", false, types.RoleFullAccess)
	client := app.client(t)

	for _, values := range []url.Values{
		{"username": {"user_1"}, "password": {"pw5555"}},
		{"username": {"user_xyz"}, "password": {testPassword}},
	} {
		resp, body := app.postBody(t, client, "/login", values)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "Please enter a correct username and password. Note that both fields may be case-sensitive.")
		assert.Contains(t, body, "Forgot password?")
	}

	resp, _ := app.get(t, client, "/trial_balance")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestLoginPageRedirectsAuthenticatedUser(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "user_1", false)
	client := app.loggedIn(t, "user_1")

	resp, _ := app.get(t, client, "/login")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/trial_balance", resp.Header.Get("Location"))
}

func TestLoginHonoursLocalNext(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "user_1", false, types.RoleFullAccess)
	client := app.client(t)

	resp := app.post(t, client, "/login", url.Values{
		"username": {"user_1"}, "password": {testPassword}, "next": {"/user_form"},
	})
	assert.Equal(t, "/user_form", resp.Header.Get("Location"))

	client = app.client(t)
	resp = app.post(t, client, "/login", url.Values{
		"username": {"user_1"}, "password": {testPassword}, "next": {"//evil.example.com/"},
	})
	assert.Equal(t, "/trial_balance", resp.Header.Get("Location"))
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "user_1", false)
	client := app.loggedIn(t, "user_1")

	resp := app.post(t, client, "/logout", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, _ = app.get(t, client, "/trial_balance")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestTrialBalanceRequiresLogin(t *testing.T) {
	app := newTestApp(t)

	resp, _ := app.get(t, app.client(t), "/trial_balance")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?next=%2Ftrial_balance", resp.Header.Get("Location"))
}

func TestTrailingSlashIsAccepted(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "viewer", false)
	client := app.loggedIn(t, "viewer")

	resp, _ := app.get(t, client, "/trial_balance/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTrialBalanceListsAccounts(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "viewer", false, types.RoleRestricted)
	app.createAccount(t, "account_1", 30011, 0, 100)
	client := app.loggedIn(t, "viewer")

	resp, body := app.get(t, client, "/trial_balance")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<td>account_1</td><td>30011</td><td>0</td><td>100</td><td>100</td>")
}

func TestTrialBalanceActionRedirect(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "viewer", false)
	client := app.loggedIn(t, "viewer")

	for action, target := range map[string]string{
		"AccountCreateView":       "/user_form",
		"AccountDeleteView":       "/delete_account",
		"AccountUpdateSelectView": "/account_update_select",
	} {
		resp, _ := app.get(t, client, "/trial_balance?action="+action)
		assert.Equal(t, http.StatusFound, resp.StatusCode, action)
		assert.Equal(t, target, resp.Header.Get("Location"), action)
	}

	resp, _ := app.get(t, client, "/trial_balance?action=Unknown")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGatedPages(t *testing.T) {
	app := newTestApp(t)
	account := app.createAccount(t, "cash", 1000, 0, 0)
	app.createUser(t, "restricted", false, types.RoleRestricted)
	app.createUser(t, "superuser", true)
	app.createUser(t, "full", false, types.RoleFullAccess)

	paths := []string{"/user_form", "/delete_account", "/account_update_select", "/update_account/" + strconv.Itoa(account.ID)}

	for _, username := range []string{"restricted", "superuser"} {
		client := app.loggedIn(t, username)
		for _, path := range paths {
			resp, body := app.get(t, client, path)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode, "%s %s", username, path)
			assert.Contains(t, body, "Please contact administrator if access should be added.")
		}
	}

	client := app.loggedIn(t, "full")
	for _, path := range paths {
		resp, _ := app.get(t, client, path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp := app.post(t, app.loggedIn(t, "restricted"), "/user_form", accountValues("x", "1", "0", "0"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	accounts, err := app.accounts.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestGatedPagesForbidAnonymous(t *testing.T) {
	app := newTestApp(t)
	account := app.createAccount(t, "cash", 1000, 0, 0)
	client := app.client(t)

	paths := []string{"/user_form", "/delete_account", "/account_update_select", "/update_account/" + strconv.Itoa(account.ID)}
	for _, path := range paths {
		resp, body := app.get(t, client, path)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, path)
		assert.Empty(t, resp.Header.Get("Location"), path)
		assert.Contains(t, body, "Please contact administrator if access should be added.", path)

		resp = app.post(t, client, path, accountValues("x", "1", "0", "0"))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, path)
	}

	accounts, err := app.accounts.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.Account{account}, accounts)
}

func TestCreateThenUpdateAccount(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "full", true, types.RoleFullAccess)
	client := app.loggedIn(t, "full")

	resp := app.post(t, client, "/user_form", accountValues("account_1", "30011", "0", "100"))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/trial_balance", resp.Header.Get("Location"))

	accounts, err := app.accounts.List(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "account_1 | 30011 | 0 | 100 | 100", accounts[0].Row())

	values := accountValues("account_1", "30011", "0", "200")
	values.Set("version", strconv.Itoa(accounts[0].Version))
	resp = app.post(t, client, "/update_account/"+strconv.Itoa(accounts[0].ID), values)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	updated, err := app.accounts.Get(context.Background(), accounts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "account_1 | 30011 | 0 | 200 | 200", updated.Row())
}

func TestCreateMissingFieldPersistsNothing(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "full", false, types.RoleFullAccess)
	client := app.loggedIn(t, "full")

	resp, body := app.postBody(t, client, "/user_form", accountValues("", "30011", "0", "abc"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "name is a required field")
	assert.Contains(t, body, "activity must be a whole number")

	accounts, err := app.accounts.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestUpdateFormDisablesReadOnlyFields(t *testing.T) {
	app := newTestApp(t)
	account := app.createAccount(t, "cash", 1000, 50, 10)
	app.createUser(t, "hire", false, types.RoleRestricted, types.RoleFullAccess)
	app.createUser(t, "admin", true, types.RoleFullAccess)
	path := "/update_account/" + strconv.Itoa(account.ID)

	_, body := app.get(t, app.loggedIn(t, "hire"), path)
	for _, name := range []string{"name", "number", "opening_balance"} {
		assert.Contains(t, inputTag(t, body, name), "disabled", name)
	}
	assert.NotContains(t, inputTag(t, body, "activity"), "disabled")

	_, body = app.get(t, app.loggedIn(t, "admin"), path)
	for _, name := range []string{"name", "number", "opening_balance", "activity"} {
		assert.NotContains(t, inputTag(t, body, name), "disabled", name)
	}
}

func TestUpdateIgnoresReadOnlySubmissions(t *testing.T) {
	app := newTestApp(t)
	account := app.createAccount(t, "cash", 1000, 50, 10)
	app.createUser(t, "hire", false, types.RoleRestricted, types.RoleFullAccess)
	client := app.loggedIn(t, "hire")

	values := accountValues("renamed", "1", "999", "25")
	values.Set("version", strconv.Itoa(account.Version))
	resp := app.post(t, client, "/update_account/"+strconv.Itoa(account.ID), values)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	updated, err := app.accounts.Get(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, "cash | 1000 | 50 | 25 | 75", updated.Row())
}

func TestUpdateRequiresVersion(t *testing.T) {
	app := newTestApp(t)
	account := app.createAccount(t, "cash", 1000, 0, 10)
	app.createUser(t, "full", false, types.RoleFullAccess)
	client := app.loggedIn(t, "full")
	path := "/update_account/" + strconv.Itoa(account.ID)

	for _, version := range []string{"", "latest"} {
		values := accountValues("cash", "1000", "0", "99")
		if version != "" {
			values.Set("version", version)
		}
		resp, body := app.postBody(t, client, path, values)
		assert.Equal(t, http.StatusOK, resp.StatusCode, version)
		assert.Contains(t, body, "This form is missing the account version.", version)
		assert.Contains(t, inputTag(t, body, "activity"), `value="10"`, version)
		assert.Contains(t, body, `name="version" value="`+strconv.Itoa(account.Version)+`"`, version)
	}

	current, err := app.accounts.Get(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.Version, current.Version)
	assert.Equal(t, 10, current.Activity)
}

func TestStaleUpdateConflict(t *testing.T) {
	app := newTestApp(t)
	account := app.createAccount(t, "cash", 1000, 0, 0)
	app.createUser(t, "full", false, types.RoleFullAccess)
	client := app.loggedIn(t, "full")
	path := "/update_account/" + strconv.Itoa(account.ID)

	first := accountValues("cash", "1000", "0", "5")
	first.Set("version", strconv.Itoa(account.Version))
	require.Equal(t, http.StatusFound, app.post(t, client, path, first).StatusCode)

	stale := accountValues("cash", "1000", "0", "7")
	stale.Set("version", strconv.Itoa(account.Version))
	resp, body := app.postBody(t, client, path, stale)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "This account was changed by someone else.")
	assert.Contains(t, inputTag(t, body, "activity"), `value="5"`)

	current, err := app.accounts.Get(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, current.Activity)
}

func TestUpdateUnknownAccount(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "full", false, types.RoleFullAccess)
	client := app.loggedIn(t, "full")

	resp, _ := app.get(t, client, "/update_account/999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = app.get(t, client, "/update_account/abc")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateSelectRedirects(t *testing.T) {
	app := newTestApp(t)
	account := app.createAccount(t, "cash", 1000, 0, 0)
	app.createUser(t, "full", false, types.RoleFullAccess)
	client := app.loggedIn(t, "full")

	resp := app.post(t, client, "/account_update_select", url.Values{"account_update_select": {strconv.Itoa(account.ID)}})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/update_account/"+strconv.Itoa(account.ID), resp.Header.Get("Location"))

	resp, body := app.postBody(t, client, "/account_update_select", url.Values{"account_update_select": {"42"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Select a valid choice. 42 is not one of the available choices.")
}

func TestBulkDelete(t *testing.T) {
	app := newTestApp(t)
	a := app.createAccount(t, "a", 1, 0, 0)
	b := app.createAccount(t, "b", 2, 0, 0)
	app.createAccount(t, "c", 3, 0, 0)
	app.createUser(t, "full", false, types.RoleFullAccess)
	client := app.loggedIn(t, "full")
	ctx := context.Background()

	resp := app.post(t, client, "/delete_account", url.Values{})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	accounts, err := app.accounts.List(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 3)

	resp = app.post(t, client, "/delete_account", url.Values{
		"accounts_to_delete": {strconv.Itoa(a.ID), strconv.Itoa(b.ID)},
	})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	accounts, err = app.accounts.List(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "c", accounts[0].Name)
}

func TestBulkDeleteRejectsUnknownChoice(t *testing.T) {
	app := newTestApp(t)
	a := app.createAccount(t, "a", 1, 0, 0)
	app.createUser(t, "full", false, types.RoleFullAccess)
	client := app.loggedIn(t, "full")

	resp, body := app.postBody(t, client, "/delete_account", url.Values{
		"accounts_to_delete": {strconv.Itoa(a.ID), "77"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Select a valid choice. 77 is not one of the available choices.")

	accounts, err := app.accounts.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestRegistration(t *testing.T) {
	app := newTestApp(t)
	client := app.client(t)

	resp := app.post(t, client, "/user_registration", url.Values{
		"username":  {"user_1"},
		"email":     {"user_1@email.com"},
		"password1": {"P@ss!word1234"},
		"password2": {"P@ss!word1234"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/trial_balance", resp.Header.Get("Location"))

	user, err := app.users.GetByUsername(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, "user_1@email.com", user.Email)
	assert.Equal(t, []types.Role{types.RoleRestricted}, user.Roles)

	resp, _ = app.get(t, client, "/trial_balance")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = app.get(t, client, "/user_form")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRegistrationErrors(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "taken", false)
	client := app.client(t)

	resp, body := app.postBody(t, client, "/user_registration", url.Values{
		"username":  {"taken"},
		"email":     {"taken@example.com"},
		"password1": {"P@ss!word1234"},
		"password2": {"P@ss!word1234"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "A user with that username already exists.")

	resp, body = app.postBody(t, client, "/user_registration", url.Values{
		"username":  {"fresh"},
		"email":     {"fresh@example.com"},
		"password1": {"P@ss!word1234"},
		"password2": {"different"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "The two password fields didn&#39;t match.")

	_, err := app.users.GetByUsername(context.Background(), "fresh")
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	app := newTestApp(t)
	app.createAccount(t, "account_1", 30011, 0, 100)
	app.createUser(t, "viewer", false, types.RoleRestricted)
	client := app.loggedIn(t, "viewer")

	resp, body := app.get(t, client, "/trial_balance/export")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, report.ContentType, resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(body, "PK"), "xlsx is a zip archive")
}

func TestUnknownPath(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.get(t, app.client(t), "/no/such/page")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Not Found")
}
