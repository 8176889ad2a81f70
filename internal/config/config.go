package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/AlexKimmel/ReqGate/internal/ratelimit"
)

const (
	DefaultWindowSeconds = ratelimit.DefaultWindowSeconds
	DefaultMaxRequests   = ratelimit.DefaultMaxRequests
)

type Server struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
	IdleTimeoutMS  int    `yaml:"idle_timeout_ms"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

type Upstream struct {
	URL       string `yaml:"url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type Observability struct {
	LogLevel       string `yaml:"log_level"`       // "debug","info","warn","error"
	PrometheusPath string `yaml:"prometheus_path"` // e.g. "/metrics"
}

type Limits struct {
	WindowSeconds int `yaml:"window_seconds"`
	MaxRequests   int `yaml:"max_requests"`
}

type APIKey struct {
	UserID string `yaml:"user_id"`
	Secret string `yaml:"secret"`
}

type Auth struct {
	Header        string   `yaml:"header"`
	Keys          []APIKey `yaml:"keys"`
	SessionCookie string   `yaml:"session_cookie"`
	JWTSecret     string   `yaml:"jwt_secret"`
}

type Routes struct {
	API         []string `yaml:"api"`
	Protected   []string `yaml:"protected"`
	AuthOnly    []string `yaml:"auth_only"`
	LoginPath   string   `yaml:"login_path"`
	LandingPath string   `yaml:"landing_path"`
}

type Stats struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Prefix        string `yaml:"prefix"`
	TTLMinutes    int    `yaml:"ttl_minutes"`
	TrackKeys     bool   `yaml:"track_keys"`
}

type Root struct {
	Server        Server        `yaml:"server"`
	Upstream      Upstream      `yaml:"upstream"`
	Observability Observability `yaml:"observability"`
	Auth          Auth          `yaml:"auth"`
	Limits        Limits        `yaml:"limits"`
	Routes        Routes        `yaml:"routes"`
	Stats         Stats         `yaml:"stats"`
}

func (s Server) ReadTimeout() time.Duration {
	if s.ReadTimeoutMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

func (s Server) WriteTimeout() time.Duration {
	if s.WriteTimeoutMS == 0 {
		return 10 * time.Second
	}
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

func (s Server) IdleTimeout() time.Duration {
	if s.IdleTimeoutMS == 0 {
		return 60 * time.Second
	}
	return time.Duration(s.IdleTimeoutMS) * time.Millisecond
}

func (s Server) MaxBody() int64 {
	if s.MaxBodyBytes == 0 {
		return 10 << 20
	}
	return s.MaxBodyBytes
} // default 10MB

func (u Upstream) Timeout() time.Duration {
	return time.Duration(u.TimeoutMS) * time.Millisecond
}

func (s Stats) TTL() time.Duration {
	return time.Duration(s.TTLMinutes) * time.Minute
}

// Load reads the YAML file at path when it exists, then .env, then the
// process environment. Later sources win.
func Load(path string) (*Root, error) {
	var cfg Root

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse yaml: %w", err)
			}
		}
	}

	_ = godotenv.Load()
	overrideFromEnv(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

func overrideFromEnv(cfg *Root) {
	if v := getEnv("GATE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := getEnv("UPSTREAM_URL"); v != "" {
		cfg.Upstream.URL = v
	}
	if v := getEnv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := getEnv("AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := getEnv("STATS_REDIS_ADDR"); v != "" {
		cfg.Stats.RedisAddr = v
	}
	// malformed numbers are ignored here and fall back to defaults below
	if v := getEnv("RATE_LIMIT_WINDOW"); v != "" {
		cfg.Limits.WindowSeconds = positiveInt(v)
	}
	if v := getEnv("RATE_LIMIT_MAX"); v != "" {
		cfg.Limits.MaxRequests = positiveInt(v)
	}
}

func applyDefaults(cfg *Root) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Upstream.URL == "" {
		cfg.Upstream.URL = "http://127.0.0.1:3000"
	}
	if cfg.Upstream.TimeoutMS <= 0 {
		cfg.Upstream.TimeoutMS = 30000
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	}
	if cfg.Auth.Header == "" {
		cfg.Auth.Header = "X-API-Key"
	}
	if cfg.Limits.WindowSeconds <= 0 {
		cfg.Limits.WindowSeconds = DefaultWindowSeconds
	}
	if cfg.Limits.MaxRequests <= 0 {
		cfg.Limits.MaxRequests = DefaultMaxRequests
	}
	if len(cfg.Routes.API) == 0 {
		cfg.Routes.API = []string{"/api"}
	}
	if len(cfg.Routes.Protected) == 0 {
		cfg.Routes.Protected = []string{"/chat", "/admin", "/profile"}
	}
	if len(cfg.Routes.AuthOnly) == 0 {
		cfg.Routes.AuthOnly = []string{"/login", "/register"}
	}
	if cfg.Routes.LoginPath == "" {
		cfg.Routes.LoginPath = "/login"
	}
	if cfg.Routes.LandingPath == "" {
		cfg.Routes.LandingPath = "/chat"
	}
	if cfg.Stats.TTLMinutes <= 0 {
		cfg.Stats.TTLMinutes = 24 * 60
	}
}

func positiveInt(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
