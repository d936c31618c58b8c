// Package session resolves who is making a request. The identity token is a
// JWT kept in a signed cookie session together with the flash queue.
package session

import (
	"context"
	"encoding/gob"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/thereayou/sellboard/internal/database"
	"github.com/thereayou/sellboard/internal/models"
	"github.com/thereayou/sellboard/pkg/auth"
)

const (
	CookieName = "sellboard_session"

	tokenKey    = "token"
	rememberKey = "remember"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

func init() {
	gob.Register(Notice{})
}

// Users is the part of the credential store the gate needs.
type Users interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type Options struct {
	Secret      string
	SessionTTL  time.Duration
	RememberTTL time.Duration
	Secure      bool
}

type Manager struct {
	store       *sessions.CookieStore
	jwt         *auth.JWTManager
	users       Users
	revocations Revocations
	rememberTTL time.Duration
}

func NewManager(users Users, revocations Revocations, opts Options) *Manager {
	store := sessions.NewCookieStore([]byte(opts.Secret))
	// подпись cookie живёт не дольше remember-сессии
	store.MaxAge(int(opts.RememberTTL.Seconds()))
	store.Options.MaxAge = 0
	store.Options.HttpOnly = true
	store.Options.Secure = opts.Secure
	store.Options.SameSite = http.SameSiteLaxMode

	return &Manager{
		store:       store,
		jwt:         auth.NewJWTManager(opts.Secret, opts.SessionTTL, opts.RememberTTL),
		users:       users,
		revocations: revocations,
		rememberTTL: opts.RememberTTL,
	}
}

// Authenticate checks email and password. A missing user and a wrong
// password both yield ErrInvalidCredentials.
func (m *Manager) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := m.users.FindUserByEmail(ctx, email)
	if errors.Is(err, database.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "find user")
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login stores a fresh token for user. With remember the cookie outlives the
// browser session.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request, user *models.User, remember bool) error {
	sess := m.session(r)

	sess.Options.MaxAge = 0
	if remember {
		sess.Options.MaxAge = int(m.rememberTTL.Seconds())
	}

	token, _, err := m.jwt.Issue(user.ID, remember)
	if err != nil {
		return pkgerrors.Wrap(err, "generate token")
	}
	sess.Values[tokenKey] = token
	sess.Values[rememberKey] = remember
	return sess.Save(r, w)
}

// Logout revokes the current token and drops it from the session.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	sess := m.session(r)

	if raw, ok := sess.Values[tokenKey].(string); ok {
		if claims, err := m.jwt.Parse(raw); err == nil {
			if err := m.revocations.Revoke(r.Context(), claims.ID, claims.TTL()); err != nil {
				return err
			}
		}
	}
	delete(sess.Values, tokenKey)
	delete(sess.Values, rememberKey)
	sess.Options.MaxAge = 0
	return sess.Save(r, w)
}

// Resolve returns the identity carried by the request. Any token problem
// yields Anonymous; the error is only set for store failures.
func (m *Manager) Resolve(r *http.Request) (Identity, error) {
	sess := m.session(r)

	raw, ok := sess.Values[tokenKey].(string)
	if !ok || raw == "" {
		return Anonymous(), nil
	}
	claims, err := m.jwt.Parse(raw)
	if err != nil {
		return Anonymous(), nil
	}
	userID, err := claims.UserID()
	if err != nil {
		return Anonymous(), nil
	}

	revoked, err := m.revocations.IsRevoked(r.Context(), claims.ID)
	if err != nil {
		return Anonymous(), err
	}
	if revoked {
		return Anonymous(), nil
	}

	user, err := m.users.GetUser(r.Context(), userID)
	if errors.Is(err, database.ErrNotFound) {
		return Anonymous(), nil
	}
	if err != nil {
		return Anonymous(), pkgerrors.Wrap(err, "load session user")
	}
	return Authenticated(user), nil
}

// Flash queues notices for the next rendered page.
func (m *Manager) Flash(w http.ResponseWriter, r *http.Request, notices ...Notice) error {
	if len(notices) == 0 {
		return nil
	}
	sess := m.session(r)
	for _, n := range notices {
		sess.AddFlash(n)
	}
	return sess.Save(r, w)
}

// Notices pops the queued notices.
func (m *Manager) Notices(w http.ResponseWriter, r *http.Request) ([]Notice, error) {
	sess := m.session(r)
	flashes := sess.Flashes()
	if len(flashes) == 0 {
		return nil, nil
	}
	out := make([]Notice, 0, len(flashes))
	for _, f := range flashes {
		if n, ok := f.(Notice); ok {
			out = append(out, n)
		}
	}
	return out, sess.Save(r, w)
}

// session ignores decode errors: a cookie with a bad signature yields an
// empty session that replaces it on the next save. A remembered session
// keeps its lifetime on every save.
func (m *Manager) session(r *http.Request) *sessions.Session {
	sess, _ := m.store.Get(r, CookieName)
	if remember, _ := sess.Values[rememberKey].(bool); remember {
		sess.Options.MaxAge = int(m.rememberTTL.Seconds())
	}
	return sess
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("sellboard"), bcrypt.DefaultCost)

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", pkgerrors.Wrap(err, "hash password")
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
