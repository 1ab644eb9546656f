// Package session issues and resolves signed session cookies.
package session

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultCookieName = "tb_session"
	DefaultTTL        = 12 * time.Hour
)

var (
	// ErrNoSession is returned when the request carries no session cookie.
	ErrNoSession = errors.New("no session")
	// ErrInvalidSession is returned for forged, expired or revoked sessions.
	ErrInvalidSession = errors.New("invalid session")
)

// Claims identify the signed-in user of a session.
type Claims struct {
	SessionID string
	UserID    int
	ExpiresAt time.Time
}

type Options struct {
	Secret     string
	TTL        time.Duration
	CookieName string
	Secure     bool
}

// Manager signs sessions as HS256 JWTs carried in an HttpOnly cookie.
type Manager struct {
	secret     []byte
	ttl        time.Duration
	cookieName string
	secure     bool
	store      Store
	now        func() time.Time
}

func NewManager(opts Options, store Store) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Manager{
		secret:     []byte(opts.Secret),
		ttl:        opts.TTL,
		cookieName: opts.CookieName,
		secure:     opts.Secure,
		store:      store,
		now:        time.Now,
	}
}

// Issue starts a session for userID and sets its cookie on w.
func (m *Manager) Issue(w http.ResponseWriter, userID int) (Claims, error) {
	now := m.now()
	claims := Claims{
		SessionID: uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(m.ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        claims.SessionID,
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return Claims{}, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    signed,
		Path:     "/",
		Expires:  claims.ExpiresAt,
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return claims, nil
}

// Resolve returns the claims of the request's session.
func (m *Manager) Resolve(r *http.Request) (Claims, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return Claims{}, ErrNoSession
	}

	registered := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, &registered, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidSession
	}

	userID, err := strconv.Atoi(strings.TrimSpace(registered.Subject))
	if err != nil || userID < 1 || registered.ID == "" {
		return Claims{}, ErrInvalidSession
	}

	revoked, err := m.store.Revoked(r.Context(), registered.ID)
	if err != nil {
		return Claims{}, err
	}
	if revoked {
		return Claims{}, ErrInvalidSession
	}

	return Claims{
		SessionID: registered.ID,
		UserID:    userID,
		ExpiresAt: registered.ExpiresAt.Time,
	}, nil
}

// Revoke ends the request's session, if any, and clears its cookie.
func (m *Manager) Revoke(w http.ResponseWriter, r *http.Request) error {
	defer m.clearCookie(w)

	claims, err := m.Resolve(r)
	if errors.Is(err, ErrNoSession) || errors.Is(err, ErrInvalidSession) {
		return nil
	}
	if err != nil {
		return err
	}
	return m.store.Revoke(r.Context(), claims.SessionID, claims.ExpiresAt.Sub(m.now()))
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
