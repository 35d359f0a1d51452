package shopauth

import "time"

// SecurityReport is a read-only snapshot of the engine's security posture,
// returned by [Engine.SecurityReport]. Operators surface it on an admin
// endpoint to confirm a deployment is configured the way they believe it is.
type SecurityReport struct {
	SigningAlgorithm    string
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	RefreshRetention    time.Duration
	RedisBacked         bool
	ThrottleActive      bool
	ProxyHeadersTrusted bool
	LoginProfile        ProfileReport
	RefreshProfile      ProfileReport
	RegistrationProfile ProfileReport
	AuditActive         bool
	MetricsActive       bool
	ActiveThrottleCount int
	AuditEventsDropped  uint64
}

// ProfileReport is the throttle tuning for one route class as configured,
// before any ProfileSource overrides.
type ProfileReport struct {
	Limit  int
	Window string
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		SigningAlgorithm:    e.config.JWT.SigningMethod,
		AccessTTL:           e.config.JWT.AccessTTL,
		RefreshTTL:          e.config.JWT.RefreshTTL,
		RefreshRetention:    e.config.Refresh.Retention,
		RedisBacked:         e.redisBacked(),
		ThrottleActive:      e.guard != nil,
		ProxyHeadersTrusted: e.config.Throttle.TrustProxyHeaders,
		LoginProfile: ProfileReport{
			Limit:  e.config.Throttle.Login.Limit,
			Window: e.config.Throttle.Login.Window,
		},
		RefreshProfile: ProfileReport{
			Limit:  e.config.Throttle.Refresh.Limit,
			Window: e.config.Throttle.Refresh.Window,
		},
		RegistrationProfile: ProfileReport{
			Limit:  e.config.Throttle.Registration.Limit,
			Window: e.config.Throttle.Registration.Window,
		},
		AuditActive:         e.audit != nil,
		MetricsActive:       e.metrics.Enabled(),
		ActiveThrottleCount: e.guard.CounterLen(),
		AuditEventsDropped:  e.AuditDropped(),
	}
}
