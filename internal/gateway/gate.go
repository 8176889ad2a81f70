package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/AlexKimmel/ReqGate/internal/auth"
	"github.com/AlexKimmel/ReqGate/internal/ratelimit"
	"github.com/AlexKimmel/ReqGate/internal/routing"
	"github.com/AlexKimmel/ReqGate/internal/stats"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"

	CallbackParam = "callbackUrl"

	deniedBody = "Too Many Requests"
)

// Outcome is the terminal state a request reaches in the gate.
type Outcome string

const (
	Denied            Outcome = "denied"
	AuthRedirect      Outcome = "auth_redirect"
	AuthRouteRedirect Outcome = "authroute_redirect"
	Passthrough       Outcome = "passthrough"
)

// Request is the typed view of an inbound request the gate decides on.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Auth   auth.Result
}

// Response describes what the gate wants written. Header carries the rate
// limit headers whenever the limiter ran, whatever the outcome.
type Response struct {
	Outcome  Outcome
	Status   int // zero for Passthrough
	Location string
	Header   http.Header
	Body     string

	Class   routing.Class
	Key     string // empty when the limiter did not run
	Limited bool   // the limiter ran
}

type Options struct {
	Limiter     ratelimit.Limiter
	Routes      *routing.Classifier
	Resolver    auth.Resolver
	Policy      ratelimit.Policy
	Clock       ratelimit.Clock
	Stats       stats.Recorder // called inline; wrap network backends in stats.NewAsync
	Skip        map[string]struct{}
	LoginPath   string
	LandingPath string

	OnDecision  func(o Outcome, cl routing.Class)
	OnAuthError func(err error)
}

type Gate struct {
	limiter  ratelimit.Limiter
	routes   *routing.Classifier
	resolver auth.Resolver
	clock    ratelimit.Clock
	stats    stats.Recorder
	skip     map[string]struct{}
	login    string
	landing  string
	policy   atomic.Pointer[ratelimit.Policy]

	onDecision  func(o Outcome, cl routing.Class)
	onAuthError func(err error)
}

func New(opts Options) *Gate {
	g := &Gate{
		limiter:     opts.Limiter,
		routes:      opts.Routes,
		resolver:    opts.Resolver,
		clock:       opts.Clock,
		stats:       opts.Stats,
		skip:        opts.Skip,
		login:       opts.LoginPath,
		landing:     opts.LandingPath,
		onDecision:  opts.OnDecision,
		onAuthError: opts.OnAuthError,
	}
	if g.routes == nil {
		g.routes = routing.New(routing.Rules{})
	}
	if g.clock == nil {
		g.clock = ratelimit.SystemClock
	}
	if g.login == "" {
		g.login = "/login"
	}
	if g.landing == "" {
		g.landing = "/"
	}
	g.SetPolicy(opts.Policy)
	return g
}

// Policy returns the policy currently applied to every rate limited request.
func (g *Gate) Policy() ratelimit.Policy { return *g.policy.Load() }

// SetPolicy replaces the policy. Non-positive fields fall back to the
// defaults. Meant for tests; production sets it once.
func (g *Gate) SetPolicy(p ratelimit.Policy) {
	p = p.OrDefault()
	g.policy.Store(&p)
}

// Eligible reports whether req is subject to rate limiting: anything under an
// API prefix and every POST. Page navigation is never limited.
func (g *Gate) Eligible(req Request) bool {
	return req.Method == http.MethodPost || g.routes.IsAPI(req.Path)
}

// Evaluate runs the decision procedure once the caller has been resolved.
// A rate limit denial always wins over the redirect rules.
func (g *Gate) Evaluate(ctx context.Context, req Request) (Response, error) {
	out := Response{
		Class:  g.routes.Classify(req.Path),
		Header: http.Header{},
	}

	var limErr error
	if g.limiter != nil && g.Eligible(req) {
		userID := ""
		if req.Auth.Authenticated {
			userID = req.Auth.UserID
		}
		key := ratelimit.DeriveKey(req.Path, userID, ratelimit.ClientAddress(req.Header))
		now := g.clock.NowUnix()

		dec, err := g.limiter.Allow(ctx, key, g.Policy(), time.Unix(now, 0))
		if err != nil {
			// limiter faults never block traffic
			limErr = fmt.Errorf("gateway: rate limit %s: %w", key, err)
		} else {
			out.Key = key
			out.Limited = true
			setLimitHeaders(out.Header, dec, now)

			if !dec.Allowed {
				out.Outcome = Denied
				out.Status = http.StatusTooManyRequests
				out.Body = deniedBody
				return out, nil
			}
		}
	}

	switch {
	case !req.Auth.Authenticated && out.Class == routing.Protected:
		q := url.Values{CallbackParam: {req.Path}}
		out.Outcome = AuthRedirect
		out.Status = http.StatusFound
		out.Location = g.login + "?" + q.Encode()
	case req.Auth.Authenticated && out.Class == routing.AuthOnly:
		out.Outcome = AuthRouteRedirect
		out.Status = http.StatusFound
		out.Location = g.landing
	default:
		out.Outcome = Passthrough
	}
	return out, limErr
}

func setLimitHeaders(h http.Header, dec ratelimit.Decision, now int64) {
	h.Set(HeaderLimit, strconv.Itoa(dec.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(max(dec.Remaining, 0)))
	h.Set(HeaderReset, strconv.FormatInt(dec.ResetUnix(now), 10))
}

// Middleware puts the gate in front of next. Ops endpoints in Skip bypass it.
func (g *Gate) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := g.skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			who := g.resolve(r)
			out, err := g.Evaluate(r.Context(), Request{
				Method: r.Method,
				Path:   r.URL.Path,
				Header: r.Header,
				Auth:   who,
			})
			if err != nil {
				hlog.FromRequest(r).Error().Err(err).Msg("rate limiter failed; request let through")
			}
			g.observe(r, out)

			for k, v := range out.Header {
				w.Header()[k] = v
			}

			switch out.Outcome {
			case Denied:
				hlog.FromRequest(r).Debug().
					Str("key", out.Key).
					Str("class", string(out.Class)).
					Msg("rate limited")
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(out.Status)
				_, _ = w.Write([]byte(out.Body))
			case AuthRedirect, AuthRouteRedirect:
				w.Header().Set("Location", out.Location)
				w.WriteHeader(out.Status)
			default:
				if out.Limited {
					w = &limitHeaderWriter{ResponseWriter: w, h: out.Header}
				}
				next.ServeHTTP(w, r.WithContext(auth.WithResult(r.Context(), who)))
			}
		})
	}
}

// limitHeaderWriter pins the gate's rate limit headers when the response is
// committed, so a handler or upstream that sets the same names cannot add a
// second value.
type limitHeaderWriter struct {
	http.ResponseWriter
	h      http.Header
	pinned bool
}

func (w *limitHeaderWriter) pin(code int) {
	if w.pinned {
		return
	}
	dst := w.ResponseWriter.Header()
	for k, v := range w.h {
		dst[k] = v
	}
	w.pinned = code >= http.StatusOK
}

func (w *limitHeaderWriter) WriteHeader(code int) {
	w.pin(code)
	w.ResponseWriter.WriteHeader(code)
}

func (w *limitHeaderWriter) Write(b []byte) (int, error) {
	w.pin(http.StatusOK)
	return w.ResponseWriter.Write(b)
}

func (w *limitHeaderWriter) Flush() {
	w.pin(http.StatusOK)
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *limitHeaderWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// resolve asks the auth collaborator who is calling. Any failure, including a
// panic, leaves the caller unauthenticated: protected routes then require a
// login and the gate itself keeps serving.
func (g *Gate) resolve(r *http.Request) (res auth.Result) {
	if g.resolver == nil {
		return auth.Anonymous
	}
	defer func() {
		if p := recover(); p != nil {
			g.authFailed(r, fmt.Errorf("auth: resolver panic: %v", p))
			res = auth.Anonymous
		}
	}()

	var err error
	res, err = g.resolver.Resolve(r)
	if err != nil {
		g.authFailed(r, err)
		return auth.Anonymous
	}
	return res
}

func (g *Gate) authFailed(r *http.Request, err error) {
	hlog.FromRequest(r).Warn().Err(err).Msg("auth resolution failed; treating caller as anonymous")
	if g.onAuthError != nil {
		g.onAuthError(err)
	}
}

func (g *Gate) observe(r *http.Request, out Response) {
	if g.onDecision != nil {
		g.onDecision(out.Outcome, out.Class)
	}
	if g.stats == nil {
		return
	}
	err := g.stats.Record(r.Context(), stats.Event{
		Key:     out.Key,
		Outcome: string(out.Outcome),
		Class:   string(out.Class),
		Method:  r.Method,
		Path:    r.URL.Path,
		At:      time.Unix(g.clock.NowUnix(), 0),
	})
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("stats record failed")
	}
}
