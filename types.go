package shopauth

import "context"

// User is the account shape the engine needs from its callers: an id and the
// roles that end up inside the access token. Credential checks, profiles and
// everything else stay on the caller's side of the [UserProvider] boundary.
type User struct {
	ID    string
	Roles []string
}

// UserProvider is the interface callers implement to integrate shopauth with
// their user database. The engine calls it after the caller has already
// authenticated the user; it only resolves ids back to role sets.
type UserProvider interface {
	GetUserByID(ctx context.Context, userID string) (*User, error)
}

// TokenPair is the output of every issuing operation: a signed access token
// and the refresh token that can mint its successor.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RotateResult is returned by [Engine.Rotate]. It carries the new pair plus
// the subject the rotation was performed for, so transport layers can log or
// bind cookies without re-parsing the tokens.
type RotateResult struct {
	Pair   TokenPair
	UserID string
}

// AuthResult is returned by [Engine.ValidateAccess].
type AuthResult struct {
	UserID string
	Roles  []string
}

// Profile identifies one of the guarded route classes.
type Profile string

const (
	// ProfileLogin is an exported constant or variable used by the authentication engine.
	ProfileLogin Profile = "login"
	// ProfileRefresh is an exported constant or variable used by the authentication engine.
	ProfileRefresh Profile = "refresh"
	// ProfileRegistration is an exported constant or variable used by the authentication engine.
	ProfileRegistration Profile = "registration"
)

// ProfileSource supplies live throttle tuning, typically backed by a config
// service or database. The guard caches each snapshot for
// ThrottleConfig.ProfileCacheTTL, so a source may be slow without hurting the
// request path. Lookup errors fall back to the static configuration.
type ProfileSource interface {
	GetProfile(ctx context.Context, profile Profile) (ProfileConfig, error)
}
