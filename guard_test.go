package shopauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mfaulken/shopauth/token"
)

func guardTestConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Throttle.Login = ProfileConfig{Limit: 3, Window: "60s", Paths: []string{"/login"}}
	cfg.Throttle.Refresh = ProfileConfig{Limit: 5, Window: "60s", Paths: []string{"/refresh"}}
	cfg.Throttle.Registration = ProfileConfig{Limit: 2, Window: "1h", Paths: []string{"/register"}}
	return cfg
}

func newGuardTestEngine(t *testing.T, cfg Config, source ProfileSource) (*Engine, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	store := token.NewMemoryStore(token.DefaultRetention)
	store.SetClock(clock.Now)

	b := New().
		WithConfig(cfg).
		WithStore(store).
		WithUserProvider(newTestUserProvider()).
		WithMetricsEnabled(true).
		WithClock(clock.Now)
	if source != nil {
		b = b.WithProfileSource(source)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, clock
}

func loginRequest(ip string) *http.Request {
	r := httptest.NewRequest("POST", "/login", nil)
	r.RemoteAddr = ip + ":51000"
	return r
}

func TestGuardEnforcesLimit(t *testing.T) {
	engine, clock := newGuardTestEngine(t, guardTestConfig(), nil)
	guard := engine.Guard()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := guard.Check(ctx, loginRequest("10.1.2.3")); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}

	if _, err := guard.Check(ctx, loginRequest("10.1.2.3")); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded on 4th request, got %v", err)
	}

	// A different client is not affected.
	if _, err := guard.Check(ctx, loginRequest("10.9.9.9")); err != nil {
		t.Fatalf("unrelated client rejected: %v", err)
	}

	// Once the window has elapsed the client may try again.
	clock.Advance(61 * time.Second)
	if _, err := guard.Check(ctx, loginRequest("10.1.2.3")); err != nil {
		t.Fatalf("request after window rejected: %v", err)
	}

	if got := engine.MetricsSnapshot().Counters[MetricRateLimitHit]; got != 1 {
		t.Fatalf("hit counter = %d", got)
	}
}

func TestGuardProfilesIndependent(t *testing.T) {
	engine, _ := newGuardTestEngine(t, guardTestConfig(), nil)
	guard := engine.Guard()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := guard.Check(ctx, loginRequest("10.1.2.3")); err != nil {
			t.Fatalf("login %d rejected: %v", i+1, err)
		}
	}
	if _, err := guard.Check(ctx, loginRequest("10.1.2.3")); err == nil {
		t.Fatal("expected login budget exhausted")
	}

	// The same client still has its refresh budget.
	r := httptest.NewRequest("POST", "/refresh", nil)
	r.RemoteAddr = "10.1.2.3:51000"
	if _, err := guard.Check(ctx, r); err != nil {
		t.Fatalf("refresh rejected: %v", err)
	}
}

func TestGuardIgnoresUnguardedRoutes(t *testing.T) {
	engine, _ := newGuardTestEngine(t, guardTestConfig(), nil)
	guard := engine.Guard()
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		r := httptest.NewRequest("GET", "/catalog/items", nil)
		r.RemoteAddr = "10.1.2.3:51000"
		if _, err := guard.Check(ctx, r); err != nil {
			t.Fatalf("unguarded route rejected: %v", err)
		}
	}
	if guard.CounterLen() != 0 {
		t.Fatalf("unguarded traffic created %d counters", guard.CounterLen())
	}
}

func TestGuardSingleChargePerRequest(t *testing.T) {
	engine, _ := newGuardTestEngine(t, guardTestConfig(), nil)
	guard := engine.Guard()

	// Two stacked handlers both call Check with the same request context.
	// The second call sees the marker and does not charge again, so six
	// nested checks only spend three budget units.
	for i := 0; i < 3; i++ {
		r := loginRequest("10.1.2.3")
		ctx, err := guard.Check(context.Background(), r)
		if err != nil {
			t.Fatalf("outer check %d rejected: %v", i+1, err)
		}
		if _, err := guard.Check(ctx, r); err != nil {
			t.Fatalf("inner check %d rejected: %v", i+1, err)
		}
	}

	if _, err := guard.Check(context.Background(), loginRequest("10.1.2.3")); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected 4th request rejected, got %v", err)
	}
}

func TestGuardUnknownClientsShareBucket(t *testing.T) {
	engine, _ := newGuardTestEngine(t, guardTestConfig(), nil)
	guard := engine.Guard()
	ctx := context.Background()

	bad := func() *http.Request {
		r := httptest.NewRequest("POST", "/login", nil)
		r.RemoteAddr = "not-an-address"
		return r
	}

	for i := 0; i < 3; i++ {
		if _, err := guard.Check(ctx, bad()); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}
	// A different unidentifiable client lands in the same bucket.
	if _, err := guard.Check(ctx, bad()); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected shared unknown bucket exhausted, got %v", err)
	}
}

func TestGuardHeaderTrust(t *testing.T) {
	cfg := guardTestConfig()
	cfg.Throttle.TrustProxyHeaders = false
	engine, _ := newGuardTestEngine(t, cfg, nil)
	guard := engine.Guard()
	ctx := context.Background()

	// With proxy headers distrusted, varying XFF must not spread one client
	// across buckets.
	for i := 0; i < 3; i++ {
		r := loginRequest("10.1.2.3")
		r.Header.Set("X-Forwarded-For", "203.0.113."+string(rune('1'+i)))
		if _, err := guard.Check(ctx, r); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}
	r := loginRequest("10.1.2.3")
	r.Header.Set("X-Forwarded-For", "203.0.113.99")
	if _, err := guard.Check(ctx, r); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected peer-keyed rejection, got %v", err)
	}
}

type staticProfileSource struct {
	mu       sync.Mutex
	profiles map[Profile]ProfileConfig
	err      error
}

func (s *staticProfileSource) GetProfile(ctx context.Context, profile Profile) (ProfileConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return ProfileConfig{}, s.err
	}
	p, ok := s.profiles[profile]
	if !ok {
		return ProfileConfig{}, errors.New("unknown profile")
	}
	return p, nil
}

func (s *staticProfileSource) set(profile Profile, cfg ProfileConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile] = cfg
}

func TestGuardProfileSourceOverridesAndCaches(t *testing.T) {
	source := &staticProfileSource{
		profiles: map[Profile]ProfileConfig{
			ProfileLogin: {Limit: 1, Window: "60s"},
		},
	}
	engine, clock := newGuardTestEngine(t, guardTestConfig(), source)
	guard := engine.Guard()
	ctx := context.Background()

	// Live limit of 1 overrides the static limit of 3.
	if _, err := guard.Check(ctx, loginRequest("10.1.2.3")); err != nil {
		t.Fatalf("first request rejected: %v", err)
	}
	if _, err := guard.Check(ctx, loginRequest("10.1.2.3")); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected live limit enforced, got %v", err)
	}

	// Raising the live limit is not visible until the cache entry expires.
	source.set(ProfileLogin, ProfileConfig{Limit: 10, Window: "60s"})
	if _, err := guard.Check(ctx, loginRequest("10.1.2.3")); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected stale cached limit, got %v", err)
	}

	clock.Advance(31 * time.Second)
	if _, err := guard.Check(ctx, loginRequest("10.1.2.3")); err != nil {
		t.Fatalf("expected refreshed limit to admit request: %v", err)
	}
}

func TestGuardProfileSourceFailureFallsBack(t *testing.T) {
	source := &staticProfileSource{
		profiles: map[Profile]ProfileConfig{},
		err:      errors.New("config service down"),
	}
	engine, _ := newGuardTestEngine(t, guardTestConfig(), source)
	guard := engine.Guard()
	ctx := context.Background()

	// Static limit of 3 governs while the source is broken.
	for i := 0; i < 3; i++ {
		if _, err := guard.Check(ctx, loginRequest("10.1.2.3")); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}
	if _, err := guard.Check(ctx, loginRequest("10.1.2.3")); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected static limit enforced, got %v", err)
	}
}

func TestGuardDisabled(t *testing.T) {
	cfg := guardTestConfig()
	cfg.Throttle.Enabled = false
	engine, _ := newGuardTestEngine(t, cfg, nil)

	if engine.Guard() != nil {
		t.Fatal("expected nil guard with throttling disabled")
	}
	// A nil guard is safe to call.
	if _, err := engine.Guard().Check(context.Background(), loginRequest("10.1.2.3")); err != nil {
		t.Fatalf("nil guard returned error: %v", err)
	}
}

func TestGuardWindowFallback(t *testing.T) {
	cfg := guardTestConfig()
	cfg.Throttle.Login.Window = "bogus"
	cfg.Throttle.FallbackWindow = time.Minute
	engine, clock := newGuardTestEngine(t, cfg, nil)
	guard := engine.Guard()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := guard.Check(ctx, loginRequest("10.1.2.3")); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}
	if _, err := guard.Check(ctx, loginRequest("10.1.2.3")); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected limit with fallback window, got %v", err)
	}

	clock.Advance(61 * time.Second)
	if _, err := guard.Check(ctx, loginRequest("10.1.2.3")); err != nil {
		t.Fatalf("request after fallback window rejected: %v", err)
	}
}
