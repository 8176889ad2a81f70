package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultSessionCookie = "session-token"

// SessionClaims is the payload of a signed session token.
type SessionClaims struct {
	UserID string `json:"id,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Session verifies HS256 session tokens carried in a cookie or a bearer
// Authorization header.
type Session struct {
	secret []byte
	cookie string
	now    func() time.Time
}

func NewSession(secret, cookie string) *Session {
	if cookie == "" {
		cookie = DefaultSessionCookie
	}
	return &Session{secret: []byte(secret), cookie: cookie, now: time.Now}
}

func (s *Session) Resolve(r *http.Request) (Result, error) {
	raw := s.token(r)
	if raw == "" {
		return Anonymous, nil
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Anonymous, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := claims.Subject
	if id == "" {
		id = claims.UserID
	}
	if id == "" {
		return Anonymous, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return Result{Authenticated: true, UserID: id}, nil
}

// Sign issues a session token for userID. Used by tests and tooling.
func (s *Session) Sign(userID string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Session) token(r *http.Request) string {
	if c, err := r.Cookie(s.cookie); err == nil && c.Value != "" {
		return strings.TrimSpace(c.Value)
	}
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	return ""
}
