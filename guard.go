package shopauth

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mfaulken/shopauth/internal/rate"
)

// Guard is the request throttle in front of the credential routes. It maps
// each request to a profile by path prefix, keys a fixed-window counter on
// profile plus client IP, and rejects with [ErrRateLimitExceeded] once the
// profile's budget for the window is spent. Requests matching no profile
// pass untouched.
//
// Guard instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Guard struct {
	cfg    ThrottleConfig
	store  rate.CounterStore
	source ProfileSource
	engine *Engine
	now    func() time.Time

	mu    sync.Mutex
	cache map[Profile]cachedProfile
}

type cachedProfile struct {
	profile ProfileConfig
	expires time.Time
}

func newGuard(cfg ThrottleConfig, store rate.CounterStore, source ProfileSource, now func() time.Time) *Guard {
	if !cfg.Enabled {
		return nil
	}
	if store == nil {
		store = rate.NewMemoryStore(cfg.SweepInterval)
	}
	return &Guard{
		cfg:    cfg,
		store:  store,
		source: source,
		now:    now,
		cache:  make(map[Profile]cachedProfile, 3),
	}
}

// Check runs the throttle decision for r. The returned context must replace
// the request's context downstream: it carries the extracted client IP and a
// marker that suppresses double counting when handlers stack, so one
// arrival is never charged twice.
//
// Check may return an error when input validation, dependency calls, or security checks fail.
// Check does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Guard) Check(ctx context.Context, r *http.Request) (context.Context, error) {
	if g == nil || r == nil {
		return ctx, nil
	}
	if guardChecked(ctx) {
		return ctx, nil
	}

	profile, static, ok := g.profileFor(r.URL.Path)
	if !ok {
		return ctx, nil
	}

	var ip string
	if g.cfg.TrustProxyHeaders {
		ip = rate.ClientIP(r)
	} else {
		ip = rate.PeerIP(r)
	}

	ctx = markGuardChecked(WithClientIP(ctx, ip))

	prof := g.liveProfile(ctx, profile, static)
	window := rate.ParseWindow(prof.Window, g.cfg.FallbackWindow)

	count, _ := g.store.Increment(string(profile)+":"+ip, window, g.now())
	if count > prof.Limit {
		masked := rate.MaskIP(ip)
		log.Printf("shopauth: rate limit exceeded profile=%s ip=%s method=%s path=%s correlation_id=%s",
			profile, masked, r.Method, r.URL.Path, CorrelationIDFromContext(ctx))
		if g.engine != nil {
			g.engine.emitRateLimit(ctx, profile, masked)
		}
		return ctx, ErrRateLimitExceeded
	}

	if g.engine != nil {
		g.engine.metricInc(MetricRateLimitAllowed)
	}
	return ctx, nil
}

func (g *Guard) profileFor(path string) (Profile, ProfileConfig, bool) {
	for _, candidate := range []struct {
		name    Profile
		profile ProfileConfig
	}{
		{ProfileLogin, g.cfg.Login},
		{ProfileRefresh, g.cfg.Refresh},
		{ProfileRegistration, g.cfg.Registration},
	} {
		for _, prefix := range candidate.profile.Paths {
			if prefix != "" && strings.HasPrefix(path, prefix) {
				return candidate.name, candidate.profile, true
			}
		}
	}
	return "", ProfileConfig{}, false
}

// liveProfile returns the current tuning for profile. With a ProfileSource
// attached, its answer is cached for ProfileCacheTTL; lookup failures fall
// back to the static configuration so a broken config service never takes
// the credential routes down.
func (g *Guard) liveProfile(ctx context.Context, profile Profile, static ProfileConfig) ProfileConfig {
	if g.source == nil {
		return static
	}

	now := g.now()

	g.mu.Lock()
	cached, ok := g.cache[profile]
	g.mu.Unlock()
	if ok && now.Before(cached.expires) {
		return cached.profile
	}

	live, err := g.source.GetProfile(ctx, profile)
	if err != nil || live.Limit <= 0 {
		if err != nil {
			log.Printf("shopauth: profile source lookup failed profile=%s", profile)
		}
		live = static
	}

	g.mu.Lock()
	g.cache[profile] = cachedProfile{profile: live, expires: now.Add(g.cfg.ProfileCacheTTL)}
	g.mu.Unlock()

	return live
}

// CounterLen reports the number of live throttle counters. Intended for
// tests and the security report.
func (g *Guard) CounterLen() int {
	if g == nil {
		return 0
	}
	return g.store.Len()
}
