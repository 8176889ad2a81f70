package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AlexKimmel/ReqGate/internal/gateway"
	"github.com/AlexKimmel/ReqGate/internal/routing"
)

type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Decisions       *prometheus.CounterVec
	RateLimited     *prometheus.CounterVec
	AuthFailures    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqgate_requests_total",
				Help: "Total HTTP requests processed by the gate",
			},
			[]string{"class", "method", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reqgate_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"class", "method"},
		),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqgate_decisions_total",
				Help: "Terminal gate outcomes",
			},
			[]string{"outcome"},
		),
		RateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqgate_rate_limited_total",
				Help: "Total requests rejected due to rate limiting",
			},
			[]string{"class"},
		),
		AuthFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reqgate_auth_failures_total",
				Help: "Auth resolutions that failed and fell back to anonymous",
			},
		),
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.Decisions, m.RateLimited, m.AuthFailures)
	return m
}

// TrackKeys exports the number of live limiter keys as a gauge.
func (m *Metrics) TrackKeys(reg prometheus.Registerer, size func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "reqgate_limiter_keys",
			Help: "Rate limit keys with live entries",
		},
		func() float64 { return float64(size()) },
	))
}

// TrackStatsDropped exports how many stats events were discarded.
func (m *Metrics) TrackStatsDropped(reg prometheus.Registerer, dropped func() int64) {
	reg.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "reqgate_stats_dropped_total",
			Help: "Stats events dropped because the recording queue was full",
		},
		func() float64 { return float64(dropped()) },
	))
}

// OnDecision plugs into gateway.Options.
func (m *Metrics) OnDecision(o gateway.Outcome, cl routing.Class) {
	m.Decisions.WithLabelValues(string(o)).Inc()
	if o == gateway.Denied {
		m.RateLimited.WithLabelValues(string(cl)).Inc()
	}
}

// OnAuthError plugs into gateway.Options.
func (m *Metrics) OnAuthError(error) {
	m.AuthFailures.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records per-request metrics labelled by route class.
func (m *Metrics) Middleware(skip map[string]struct{}, routes *routing.Classifier) gateway.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			class := routing.Public
			if routes != nil {
				class = routes.Classify(r.URL.Path)
			}

			method := r.Method
			code := rec.status
			if code == 0 {
				code = http.StatusOK
			}

			m.RequestDuration.WithLabelValues(string(class), method).Observe(time.Since(start).Seconds())
			m.RequestsTotal.WithLabelValues(string(class), method, strconv.Itoa(code)).Inc()
		})
	}
}
