package shopauth

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config defines a public type used by shopauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT      JWTConfig
	Refresh  RefreshConfig
	Throttle ThrottleConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by shopauth APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default), "ed25519" optional
	Secret        []byte
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig defines a public type used by shopauth APIs.
//
// RefreshConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RefreshConfig struct {
	// RedisPrefix namespaces refresh token records when a Redis store is used.
	RedisPrefix string
	// Retention keeps revoked and expired records visible past their expiry
	// so a replayed token reads as expired instead of unknown.
	Retention time.Duration
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ProfileConfig is the per-route throttle tuning. Window is a compact string
// such as "60s", "15m", "1h" or "1d"; a string that does not parse falls back
// to one minute rather than failing the request path.
type ProfileConfig struct {
	Limit  int
	Window string
	// Paths are the request path prefixes routed to this profile.
	Paths []string
}

// ThrottleConfig defines a public type used by shopauth APIs.
//
// ThrottleConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ThrottleConfig struct {
	Enabled      bool
	Login        ProfileConfig
	Refresh      ProfileConfig
	Registration ProfileConfig

	// ProfileCacheTTL bounds how stale a profile snapshot served to the hot
	// path may be when a ProfileSource is attached.
	ProfileCacheTTL time.Duration
	// SweepInterval gates the lazy eviction of idle counters.
	SweepInterval time.Duration
	// FallbackWindow is used when a profile window string fails to parse.
	FallbackWindow time.Duration
	// TrustProxyHeaders enables X-Forwarded-For / X-Real-IP / X-Client-IP
	// extraction; with it off only the socket peer address is used.
	TrustProxyHeaders bool
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig defines a public type used by shopauth APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by shopauth APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Callers override the
// fields they care about and pass the result to [Builder.WithConfig]; the
// secret or key material must still be supplied before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Leeway:        30 * time.Second,
		},
		Refresh: RefreshConfig{
			RedisPrefix: "sa",
			Retention:   24 * time.Hour,
		},
		Throttle: ThrottleConfig{
			Enabled: true,
			Login: ProfileConfig{
				Limit:  10,
				Window: "1m",
				Paths:  []string{"/login"},
			},
			Refresh: ProfileConfig{
				Limit:  30,
				Window: "1m",
				Paths:  []string{"/refresh"},
			},
			Registration: ProfileConfig{
				Limit:  5,
				Window: "1h",
				Paths:  []string{"/register"},
			},
			ProfileCacheTTL:   30 * time.Second,
			SweepInterval:     60 * time.Second,
			FallbackWindow:    time.Minute,
			TrustProxyHeaders: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Throttle.Login.Paths = cloneStrings(cfg.Throttle.Login.Paths)
	out.Throttle.Refresh.Paths = cloneStrings(cfg.Throttle.Refresh.Paths)
	out.Throttle.Registration.Paths = cloneStrings(cfg.Throttle.Registration.Paths)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for values the engine cannot run with.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.SigningMethod != "hs256" && c.JWT.SigningMethod != "ed25519" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.Secret) == 0 {
		return errors.New("hs256 requires Secret")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway out of range")
	}

	// Refresh
	if c.Refresh.Retention < 0 {
		return errors.New("Refresh Retention must be >= 0")
	}

	// Throttle
	if c.Throttle.Enabled {
		for _, p := range []struct {
			name    string
			profile ProfileConfig
		}{
			{"Login", c.Throttle.Login},
			{"Refresh", c.Throttle.Refresh},
			{"Registration", c.Throttle.Registration},
		} {
			if p.profile.Limit <= 0 {
				return errors.New("Throttle " + p.name + " Limit must be > 0")
			}
		}
		if c.Throttle.ProfileCacheTTL <= 0 {
			return errors.New("Throttle ProfileCacheTTL must be > 0")
		}
		if c.Throttle.SweepInterval <= 0 {
			return errors.New("Throttle SweepInterval must be > 0")
		}
		if c.Throttle.FallbackWindow <= 0 {
			return errors.New("Throttle FallbackWindow must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}

/*
====================================
ENVIRONMENT OVERRIDES
====================================
*/

// ConfigFromEnv builds a Config from defaults overridden by SHOPAUTH_*
// environment variables. Unset or malformed values keep the default; env
// configuration never fails the process at this layer, Validate still runs
// at Build time.
func ConfigFromEnv() Config {
	cfg := defaultConfig()

	if v := os.Getenv("SHOPAUTH_ACCESS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.JWT.AccessTTL = d
		}
	}
	if v := os.Getenv("SHOPAUTH_REFRESH_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.JWT.RefreshTTL = d
		}
	}
	if v := os.Getenv("SHOPAUTH_SIGNING_METHOD"); v != "" {
		cfg.JWT.SigningMethod = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("SHOPAUTH_JWT_SECRET"); v != "" {
		cfg.JWT.Secret = []byte(v)
	}
	if v := os.Getenv("SHOPAUTH_JWT_ISSUER"); v != "" {
		cfg.JWT.Issuer = v
	}
	if v := os.Getenv("SHOPAUTH_REDIS_PREFIX"); v != "" {
		cfg.Refresh.RedisPrefix = v
	}

	if v := os.Getenv("SHOPAUTH_THROTTLE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Throttle.Enabled = b
		}
	}
	applyProfileEnv("SHOPAUTH_LOGIN", &cfg.Throttle.Login)
	applyProfileEnv("SHOPAUTH_REFRESH", &cfg.Throttle.Refresh)
	applyProfileEnv("SHOPAUTH_REGISTRATION", &cfg.Throttle.Registration)

	if v := os.Getenv("SHOPAUTH_AUDIT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Audit.Enabled = b
		}
	}
	if v := os.Getenv("SHOPAUTH_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}

	return cfg
}

func applyProfileEnv(prefix string, p *ProfileConfig) {
	if v := os.Getenv(prefix + "_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Limit = n
		}
	}
	if v := os.Getenv(prefix + "_WINDOW"); v != "" {
		p.Window = v
	}
}
