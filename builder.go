package shopauth

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mfaulken/shopauth/internal/rate"
	"github.com/mfaulken/shopauth/jwt"
	"github.com/mfaulken/shopauth/token"
)

// Builder defines a public type used by shopauth APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store         token.Store
	userProvider  UserProvider
	auditSink     AuditSink
	counterStore  rate.CounterStore
	profileSource ProfileSource
	clock         func() time.Time

	built bool
}

// New starts a builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis attaches a Redis client; refresh token records are then kept in
// Redis instead of process memory.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore attaches an explicit refresh token store, overriding both the
// Redis-backed and the in-memory default.
func (b *Builder) WithStore(store token.Store) *Builder {
	b.store = store
	return b
}

// WithUserProvider attaches the caller's user lookup. Required.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink attaches the audit event consumer and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = true
	return b
}

// WithMetricsEnabled toggles the counter set.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithCounterStore attaches an explicit throttle counter table. Intended for
// tests and exotic deployments; the default is the in-process store.
func (b *Builder) WithCounterStore(store rate.CounterStore) *Builder {
	b.counterStore = store
	return b
}

// WithProfileSource attaches live throttle tuning.
func (b *Builder) WithProfileSource(source ProfileSource) *Builder {
	b.profileSource = source
	return b
}

// WithClock replaces the engine's time source. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build assembles the [Engine].
//
// Build may return an error when input validation, dependency calls, or security checks fail.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		Secret:        cfg.JWT.Secret,
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		if b.redis != nil {
			rs := token.NewRedisStore(b.redis, cfg.Refresh.RedisPrefix, cfg.Refresh.Retention)
			rs.SetClock(now)
			store = rs
		} else {
			mem := token.NewMemoryStore(cfg.Refresh.Retention)
			mem.SetClock(now)
			store = mem
		}
	}

	engine := &Engine{
		config:       cfg,
		jwtManager:   jwtManager,
		tokens:       store,
		audit:        newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:      NewMetrics(cfg.Metrics),
		userProvider: b.userProvider,
		now:          now,
	}

	guard := newGuard(cfg.Throttle, b.counterStore, b.profileSource, now)
	if guard != nil {
		guard.engine = engine
	}
	engine.guard = guard

	b.built = true
	return engine, nil
}
