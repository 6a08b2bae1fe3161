package moderation

import (
	"context"

	"lifeline/pkg/attrs"
	"lifeline/pkg/platform/audit"
	"lifeline/pkg/requestcontext"
)

// logAudit writes the event to the structured log and the audit publisher.
// Publisher failures are logged; the moderation state already committed.
func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attrList ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}
	args := append(attrList, "event", string(event), "log_type", "audit")
	s.logger.InfoContext(ctx, string(event), args...)

	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Category:     event.Category(),
		Action:       string(event),
		Subject:      attrs.ExtractString(attrList, "candidate_id"),
		ActorID:      attrs.ExtractString(attrList, "actor_id"),
		Decision:     attrs.ExtractString(attrList, "decision"),
		Reason:       attrs.ExtractString(attrList, "reason"),
		RequestID:    requestID,
		ClientIP:     requestcontext.ClientIP(ctx),
		ClientDevice: requestcontext.ClientDevice(ctx),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}
