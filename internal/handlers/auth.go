package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tbledger/apiserver/internal/forms"
	"github.com/tbledger/apiserver/internal/metrics"
	"github.com/tbledger/apiserver/internal/services"
	"github.com/tbledger/apiserver/internal/session"
)

const (
	loginFailedMessage   = "Please enter a correct username and password. Note that both fields may be case-sensitive."
	usernameTakenMessage = "A user with that username already exists."
	afterLoginPath       = "/trial_balance"
)

// AuthHandler serves sign-in, sign-out and registration pages.
type AuthHandler struct {
	users     *services.UserService
	sessions  *session.Manager
	validator *forms.Validator
	pages     *Renderer
	logger    *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(
	users *services.UserService,
	sessions *session.Manager,
	validator *forms.Validator,
	pages *Renderer,
	logger *zap.Logger,
) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		users:     users,
		sessions:  sessions,
		validator: validator,
		pages:     pages,
		logger:    logger,
	}
}

// AuthRouter registers the landing and authentication routes.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Get("/", handler.Hello)
	for _, path := range []string{"/login", "/user_login"} {
		r.Get(path, handler.LoginPage)
		r.Post(path, handler.Login)
	}
	r.Post("/logout", handler.Logout)
	r.Post("/user_logout", handler.Logout)
	r.Get("/user_registration", handler.RegisterPage)
	r.Post("/user_registration", handler.Register)
}

func (h *AuthHandler) Hello(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, r, http.StatusOK, pageHello, view{})
}

// LoginPage shows the sign-in form. Signed-in users go straight to the list.
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if identityFromContext(r.Context()).Authenticated() {
		redirect(w, r, afterLoginPath)
		return
	}
	h.pages.render(w, r, http.StatusOK, pageLogin, view{Next: r.URL.Query().Get("next")})
}

// Login checks the submitted credentials and starts a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	next := r.PostForm.Get("next")
	values := url.Values{"username": {r.PostForm.Get("username")}}

	input, errs := h.validator.Login(r.PostForm)
	if errs.Any() {
		h.pages.render(w, r, http.StatusOK, pageLogin, view{Values: values, Errors: errs, Next: next})
		return
	}

	user, err := h.users.Authenticate(r.Context(), input.Username, input.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		metrics.RecordLogin("failure")
		h.pages.render(w, r, http.StatusOK, pageLogin, view{Values: values, Message: loginFailedMessage, Next: next})
		return
	}
	if err != nil {
		h.pages.serverError(w, r, err)
		return
	}

	if _, err := h.sessions.Issue(w, user.ID); err != nil {
		h.pages.serverError(w, r, err)
		return
	}
	metrics.RecordLogin("success")
	h.logger.Info("user logged in", zap.Int("user_id", user.ID))
	redirect(w, r, safeNext(next, afterLoginPath))
}

// Logout ends the session and returns to the landing page.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Revoke(w, r); err != nil {
		h.logger.Warn("revoke session", zap.Error(err))
	}
	redirect(w, r, "/")
}

func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, r, http.StatusOK, pageRegister, view{})
}

// Register creates a user in the restricted group and signs them in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	values := url.Values{
		"username": {r.PostForm.Get("username")},
		"email":    {r.PostForm.Get("email")},
	}

	input, errs := h.validator.Registration(r.PostForm)
	if errs.Any() {
		h.pages.render(w, r, http.StatusOK, pageRegister, view{Values: values, Errors: errs})
		return
	}

	user, err := h.users.Register(r.Context(), input)
	if errors.Is(err, services.ErrUsernameTaken) {
		errs.Add("username", usernameTakenMessage)
		h.pages.render(w, r, http.StatusOK, pageRegister, view{Values: values, Errors: errs})
		return
	}
	if err != nil {
		h.pages.serverError(w, r, err)
		return
	}

	if _, err := h.sessions.Issue(w, user.ID); err != nil {
		h.pages.serverError(w, r, err)
		return
	}
	h.logger.Info("user registered", zap.Int("user_id", user.ID), zap.String("username", user.Username))
	redirect(w, r, afterLoginPath)
}
