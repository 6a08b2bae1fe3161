// Package observability provides audit logging helpers for the ratelimit module.
package observability

import (
	"context"
	"log/slog"

	"lifeline/internal/ratelimit/ports"
	"lifeline/pkg/attrs"
	"lifeline/pkg/platform/audit"
	"lifeline/pkg/requestcontext"
)

// LogAudit logs audit events to both structured logger and audit publisher.
// It enriches events with request ID and extracts subject/reason from attrList.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher ports.AuditPublisher, event audit.AuditEvent, attrList ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}

	if logger != nil {
		args := append(attrList, "event", string(event), "log_type", "audit")
		logger.InfoContext(ctx, string(event), args...)
	}

	if publisher == nil {
		return
	}
	err := publisher.Emit(ctx, audit.Event{
		Category:     event.Category(),
		Action:       string(event),
		Subject:      extractSubject(attrList),
		ActorID:      attrs.ExtractString(attrList, "actor_id"),
		Reason:       extractReason(attrList),
		Decision:     attrs.ExtractString(attrList, "decision"),
		RequestID:    requestID,
		ClientIP:     requestcontext.ClientIP(ctx),
		ClientDevice: requestcontext.ClientDevice(ctx),
	})
	if err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}

func extractSubject(attrList []any) string {
	for _, key := range []string{"identifier", "ip", "user_id"} {
		if val := attrs.ExtractString(attrList, key); val != "" {
			return val
		}
	}
	return ""
}

func extractReason(attrList []any) string {
	for _, key := range []string{"reason", "endpoint_class"} {
		if val := attrs.ExtractString(attrList, key); val != "" {
			return val
		}
	}
	return ""
}
