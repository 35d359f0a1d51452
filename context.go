package shopauth

import "context"

type clientIPContextKey struct{}
type correlationIDContextKey struct{}
type guardCheckedContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The engine uses it
// for throttle keys and audit logging; transports that do not go through the
// HTTP guard should set it themselves.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithCorrelationID attaches a request correlation identifier to ctx. It is
// copied into audit events so one request's events can be stitched together.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDContextKey{}, id)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// CorrelationIDFromContext returns the correlation identifier attached with
// [WithCorrelationID], or "" when none is set.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(correlationIDContextKey{}).(string)
	return id
}

// markGuardChecked records that the throttle already ran for this request,
// so stacked handlers cannot double-count one arrival.
func markGuardChecked(ctx context.Context) context.Context {
	return context.WithValue(ctx, guardCheckedContextKey{}, true)
}

func guardChecked(ctx context.Context) bool {
	if ctx == nil {
		return false
	}

	checked, _ := ctx.Value(guardCheckedContextKey{}).(bool)
	return checked
}
