package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrUnknownKey   = errors.New("auth: api key not recognized")
	ErrInvalidToken = errors.New("auth: invalid session token")
)

// Result is what the gate needs to know about the caller.
type Result struct {
	Authenticated bool
	UserID        string
}

var Anonymous = Result{}

// Resolver inspects a request and reports who made it. A request without
// credentials resolves to Anonymous with a nil error; an error means the
// credentials were present but could not be verified.
type Resolver interface {
	Resolve(r *http.Request) (Result, error)
}

type ResolverFunc func(r *http.Request) (Result, error)

func (f ResolverFunc) Resolve(r *http.Request) (Result, error) { return f(r) }

type ctxKey int

const keyResult ctxKey = 0

// WithResult injects the resolved caller into context.
func WithResult(ctx context.Context, res Result) context.Context {
	return context.WithValue(ctx, keyResult, res)
}

// ResultFrom extracts the resolved caller from context (if present).
func ResultFrom(ctx context.Context) (Result, bool) {
	v := ctx.Value(keyResult)
	if v == nil {
		return Anonymous, false
	}
	res, ok := v.(Result)
	return res, ok
}

// Static is a static in-memory key store: secret -> user id
type Static struct {
	header   string
	bySecret map[string]string
}

// NewStatic creates a new static key store.
// header: HTTP header to read the key from (e.g., "X-API-Key")
// pairs: map of secret -> user id
func NewStatic(header string, pairs map[string]string) *Static {
	h := header
	if h == "" {
		h = "X-API-Key"
	}
	if pairs == nil {
		pairs = map[string]string{}
	}
	return &Static{header: h, bySecret: pairs}
}

func (s *Static) Header() string { return s.header }

func (s *Static) Resolve(r *http.Request) (Result, error) {
	secret := strings.TrimSpace(r.Header.Get(s.header))
	if secret == "" {
		return Anonymous, nil
	}
	id, ok := s.bySecret[secret]
	if !ok || id == "" {
		return Anonymous, ErrUnknownKey
	}
	return Result{Authenticated: true, UserID: id}, nil
}

// Chain tries each resolver in order. The first authenticated result wins;
// errors are reported only when nobody authenticated the request.
type Chain []Resolver

func (c Chain) Resolve(r *http.Request) (Result, error) {
	var errs []error
	for _, res := range c {
		if res == nil {
			continue
		}
		out, err := res.Resolve(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if out.Authenticated {
			return out, nil
		}
	}
	return Anonymous, errors.Join(errs...)
}
