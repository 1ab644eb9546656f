package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tbledger/apiserver/internal/access"
	"github.com/tbledger/apiserver/internal/forms"
	"github.com/tbledger/apiserver/types"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageHello         = "hello.html"
	pageLogin         = "login.html"
	pageRegister      = "register.html"
	pageTrialBalance  = "trial_balance.html"
	pageAccountForm   = "account_form.html"
	pageDeleteAccount = "delete_account.html"
	pageUpdateSelect  = "account_update_select.html"
	pageError         = "error.html"
)

var pages = []string{
	pageHello,
	pageLogin,
	pageRegister,
	pageTrialBalance,
	pageAccountForm,
	pageDeleteAccount,
	pageUpdateSelect,
	pageError,
}

// view is the data handed to every page template. Pages read only the fields
// they need.
type view struct {
	Identity access.Identity
	Values   url.Values
	Errors   forms.Errors
	Message  string
	Next     string

	Accounts []types.Account
	Account  types.Account
	Fields   []fieldView
	Action   string
	Actions  []actionView

	Status  int
	Heading string
}

type fieldView struct {
	Name     string
	Label    string
	Value    string
	Disabled bool
	Errors   []string
}

type actionView struct {
	Value string
	Label string
}

// Renderer executes the embedded page templates.
type Renderer struct {
	templates map[string]*template.Template
	logger    *zap.Logger
}

// NewRenderer parses every page together with the shared layout.
func NewRenderer(logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		templates[page] = tmpl
	}
	return &Renderer{templates: templates, logger: logger}, nil
}

func (p *Renderer) render(w http.ResponseWriter, r *http.Request, status int, page string, data view) {
	data.Identity = identityFromContext(r.Context())

	tmpl, ok := p.templates[page]
	if !ok {
		p.serverError(w, r, fmt.Errorf("unknown page %s", page))
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		p.serverError(w, r, fmt.Errorf("render %s: %w", page, err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (p *Renderer) forbidden(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusForbidden, pageError, view{
		Status:  http.StatusForbidden,
		Heading: "Forbidden",
		Message: "You do not have permission to access this page. Please contact administrator if access should be added.",
	})
}

// NotFound renders the 404 page.
func (p *Renderer) NotFound(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusNotFound, pageError, view{
		Status:  http.StatusNotFound,
		Heading: "Not Found",
		Message: "The requested page does not exist.",
	})
}

// serverError logs err and writes a plain 500 page. It never renders a
// template so it cannot fail recursively.
func (p *Renderer) serverError(w http.ResponseWriter, r *http.Request, err error) {
	p.logger.Error("request failed",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
}

func redirect(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusFound)
}
