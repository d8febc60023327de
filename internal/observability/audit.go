package observability

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
)

// AuditInput describes a security-relevant action for the audit trail.
// Audit records are structured log lines; shipping them to a dedicated
// sink is a logging-pipeline concern, not an emit concern.
type AuditInput struct {
	EventName   string // e.g. "auth.login"
	ActorUserID string // "" when unauthenticated
	TargetType  string
	TargetID    string
	Action      string
	Outcome     string // "success" | "failure" | "denied"
	Reason      string
}

// EmitAudit writes one audit record for the request. Token and password
// material must never appear in the extra key/value pairs.
func EmitAudit(r *http.Request, in AuditInput, kv ...any) {
	attrs := []any{
		slog.String("event", in.EventName),
		slog.String("actor_user_id", in.ActorUserID),
		slog.String("target_type", in.TargetType),
		slog.String("target_id", in.TargetID),
		slog.String("action", in.Action),
		slog.String("outcome", in.Outcome),
		slog.String("reason", in.Reason),
		slog.String("ip", clientIP(r)),
		slog.String("user_agent", r.UserAgent()),
		slog.String("path", r.URL.Path),
	}
	attrs = append(attrs, kv...)
	slog.Default().InfoContext(r.Context(), "audit", attrs...)
}

// ActorUserID renders a user id for audit attribution.
func ActorUserID(userID uint) string {
	if userID == 0 {
		return "anonymous"
	}
	return strconv.FormatUint(uint64(userID), 10)
}

// clientIP trusts RemoteAddr, which chi's RealIP middleware rewrites from
// the forwarding headers when the server sits behind a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
