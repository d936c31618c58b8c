package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// SessionClaims is what a session cookie proves about its holder.
type SessionClaims struct {
	jwt.RegisteredClaims
	Remember bool `json:"rmb,omitempty"`
}

// UserID returns the subject as a user id.
func (c *SessionClaims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: subject: %v", ErrInvalidToken, err)
	}
	return id, nil
}

// TTL is the time left before the token expires.
func (c *SessionClaims) TTL() time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return time.Until(c.ExpiresAt.Time)
}

// JWTManager signs session tokens with HS256. Remembered logins get the
// longer lifetime.
type JWTManager struct {
	secretKey   []byte
	sessionTTL  time.Duration
	rememberTTL time.Duration
	now         func() time.Time
}

func NewJWTManager(secret string, sessionTTL, rememberTTL time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:   []byte(secret),
		sessionTTL:  sessionTTL,
		rememberTTL: rememberTTL,
		now:         time.Now,
	}
}

// Issue signs a fresh token with its own jti for userID.
func (m *JWTManager) Issue(userID uuid.UUID, remember bool) (string, *SessionClaims, error) {
	ttl := m.sessionTTL
	if remember {
		ttl = m.rememberTTL
	}

	issued := m.now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		},
		Remember: remember,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Parse checks signature and expiry. Every failure wraps ErrInvalidToken.
func (m *JWTManager) Parse(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, m.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m *JWTManager) key(t *jwt.Token) (interface{}, error) {
	if t.Method != jwt.SigningMethodHS256 {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return m.secretKey, nil
}
