package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/tbledger/apiserver/internal/access"
	"github.com/tbledger/apiserver/internal/metrics"
	"github.com/tbledger/apiserver/internal/services"
	"github.com/tbledger/apiserver/internal/session"
	"github.com/tbledger/apiserver/internal/store"
)

// LoadIdentity resolves the session cookie into an access.Identity and stores
// it on the request context. Requests without a valid session continue as
// anonymous.
func LoadIdentity(sessions *session.Manager, users *services.UserService, pages *Renderer, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := sessions.Resolve(r)
			if err != nil {
				if !errors.Is(err, session.ErrNoSession) && !errors.Is(err, session.ErrInvalidSession) {
					logger.Warn("resolve session", zap.Error(err))
				}
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.GetByID(r.Context(), claims.UserID)
			if errors.Is(err, store.ErrNotFound) {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				pages.serverError(w, r, err)
				return
			}

			ctx := withIdentity(r.Context(), access.IdentityFor(user))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireLogin redirects anonymous callers to the login page.
func requireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !identityFromContext(r.Context()).Authenticated() {
			redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAction renders the 403 page unless the caller may perform action.
// Anonymous callers are refused the same way.
func requireAction(pages *Renderer, action access.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !access.Allowed(identityFromContext(r.Context()), action) {
				metrics.RecordAccessDenied(string(action))
				pages.forbidden(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
