package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_Resolve(t *testing.T) {
	s := NewStatic("", map[string]string{"s3cret": "svc-1"})
	require.Equal(t, "X-API-Key", s.Header())

	r := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	res, err := s.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, Anonymous, res)

	r.Header.Set("X-API-Key", " s3cret ")
	res, err = s.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, Result{Authenticated: true, UserID: "svc-1"}, res)

	r.Header.Set("X-API-Key", "nope")
	res, err = s.Resolve(r)
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.False(t, res.Authenticated)
}

func TestSession_ResolveCookieAndBearer(t *testing.T) {
	s := NewSession("test-secret", "")
	tok, err := s.Sign("user-7", time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/chat", nil)
	r.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: tok})
	res, err := s.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, Result{Authenticated: true, UserID: "user-7"}, res)

	r = httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	res, err = s.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "user-7", res.UserID)
}

func TestSession_NoTokenIsAnonymous(t *testing.T) {
	s := NewSession("test-secret", "sid")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic Zm9vOmJhcg==")

	res, err := s.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, Anonymous, res)
}

func TestSession_RejectsBadTokens(t *testing.T) {
	good := NewSession("test-secret", "")
	other := NewSession("other-secret", "")

	forged, err := other.Sign("user-1", time.Hour)
	require.NoError(t, err)
	expired, err := good.Sign("user-1", -time.Minute)
	require.NoError(t, err)

	for name, tok := range map[string]string{"forged": forged, "expired": expired, "garbage": "a.b.c"} {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: tok})
			res, err := good.Resolve(r)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.False(t, res.Authenticated)
		})
	}
}

func TestChain_FirstAuthenticatedWins(t *testing.T) {
	boom := ResolverFunc(func(*http.Request) (Result, error) { return Anonymous, errors.New("boom") })
	anon := ResolverFunc(func(*http.Request) (Result, error) { return Anonymous, nil })
	ok := ResolverFunc(func(*http.Request) (Result, error) { return Result{Authenticated: true, UserID: "u"}, nil })

	r := httptest.NewRequest(http.MethodGet, "/", nil)

	res, err := Chain{boom, anon, ok}.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "u", res.UserID)

	res, err = Chain{anon, boom, nil}.Resolve(r)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, Anonymous, res)

	res, err = Chain{anon}.Resolve(r)
	assert.NoError(t, err)
	assert.Equal(t, Anonymous, res)
}

func TestResultContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := ResultFrom(r.Context())
	assert.False(t, ok)

	ctx := WithResult(r.Context(), Result{Authenticated: true, UserID: "x"})
	res, ok := ResultFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "x", res.UserID)
}
