package rate

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// UnknownClient is the shared bucket key used when no valid client IP can be
// determined. All such clients throttle against one counter — an explicit
// trade-off favoring availability over per-client precision.
const UnknownClient = "unknown"

// maskedFallback is what MaskIP emits for strings that are neither valid IPs
// nor the unknown marker.
const maskedFallback = "masked"

// ClientIP derives the rate-limit client key for an inbound request.
// Preference order: first X-Forwarded-For entry, X-Real-IP, X-Client-IP,
// then the transport-level peer address. The result must be a well-formed
// IPv4 or IPv6 literal or the key falls back to [UnknownClient].
func ClientIP(r *http.Request) string {
	if r == nil {
		return UnknownClient
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := xff
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			first = xff[:idx]
		}
		if ip := strings.TrimSpace(first); IsValidIP(ip) {
			return ip
		}
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); IsValidIP(ip) {
		return ip
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Client-IP")); IsValidIP(ip) {
		return ip
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if IsValidIP(host) {
			return host
		}
	} else if IsValidIP(strings.TrimSpace(r.RemoteAddr)) {
		return strings.TrimSpace(r.RemoteAddr)
	}

	return UnknownClient
}

// PeerIP derives the client key from the socket peer address alone, ignoring
// forwarding headers. Deployments without a trusted proxy in front use this
// so header spoofing cannot spread one client across many buckets.
func PeerIP(r *http.Request) string {
	if r == nil {
		return UnknownClient
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if IsValidIP(host) {
			return host
		}
	} else if IsValidIP(strings.TrimSpace(r.RemoteAddr)) {
		return strings.TrimSpace(r.RemoteAddr)
	}

	return UnknownClient
}

// IsValidIP reports whether s is a well-formed IPv4 or IPv6 literal.
func IsValidIP(s string) bool {
	if s == "" {
		return false
	}
	return net.ParseIP(s) != nil
}

// MaskIP is the log-safety transform applied before a client key reaches a
// log line or audit event. IPv4 addresses lose their last octet
// ("192.168.1.xxx"); IPv6 addresses have their last two groups zeroed.
// [UnknownClient] passes through unchanged; any other unparseable string
// becomes "masked". Masking is idempotent: mask(mask(x)) == mask(x).
func MaskIP(s string) string {
	if s == UnknownClient || s == maskedFallback {
		return s
	}

	ip := net.ParseIP(s)
	if ip == nil {
		// Already-masked IPv4 ("a.b.c.xxx") stays stable.
		if strings.HasSuffix(s, ".xxx") && net.ParseIP(strings.TrimSuffix(s, ".xxx")+".0") != nil {
			return s
		}
		return maskedFallback
	}

	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.xxx", v4[0], v4[1], v4[2])
	}

	v6 := ip.To16()
	masked := make(net.IP, len(v6))
	copy(masked, v6)
	for i := len(masked) - 4; i < len(masked); i++ {
		masked[i] = 0
	}
	return masked.String()
}
