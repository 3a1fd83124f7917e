package service

import (
	"context"
	"log/slog"

	"idregistry/internal/audit"
	id "idregistry/pkg/domain"
	"idregistry/pkg/requestcontext"
)

// auditEmitter attaches request context to audit events and swallows
// delivery errors after logging them. A transition is never rolled back or
// blocked because the audit sink misbehaved.
type auditEmitter struct {
	logger    *slog.Logger
	publisher AuditPublisher
}

func newAuditEmitter(logger *slog.Logger, publisher AuditPublisher) *auditEmitter {
	return &auditEmitter{logger: logger, publisher: publisher}
}

func (e *auditEmitter) emit(ctx context.Context, eventType audit.EventType, registrationID id.RegistrationID, payload map[string]any) {
	if e.publisher == nil {
		return
	}
	event := audit.Event{
		RegistrationID: registrationID,
		EventType:      eventType,
		ActorID:        requestcontext.ActorID(ctx),
		RequestID:      requestcontext.RequestID(ctx),
		ClientIP:       requestcontext.ClientIP(ctx),
		Device:         requestcontext.Device(ctx),
		Payload:        payload,
		Timestamp:      requestcontext.Now(ctx),
	}
	if err := e.publisher.Emit(ctx, event); err != nil {
		e.logger.ErrorContext(ctx, "audit event delivery failed",
			"event_type", eventType,
			"registration_id", registrationID.String(),
			"error", err,
		)
	}
}
