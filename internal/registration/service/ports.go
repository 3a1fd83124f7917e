package service

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"idregistry/internal/audit"
	"idregistry/internal/biometric/dedupe"
	"idregistry/internal/biometric/quality"
	"idregistry/internal/registration/models"
	id "idregistry/pkg/domain"
)

// QualityScorer evaluates whether a captured sample is usable. Transport
// failures must surface as errors wrapping sentinel.ErrUnavailable; the
// state machine fails closed and never assumes a pass.
type QualityScorer interface {
	Check(ctx context.Context, sample models.Sample) (quality.Result, error)
}

// Deduplicator submits a completed template set for population-wide
// identification. Advisory only; the state machine interprets the verdict.
type Deduplicator interface {
	Identify(ctx context.Context, registrationID id.RegistrationID, templates []dedupe.TemplateRef) (dedupe.Verdict, error)
}

// AuditPublisher receives one immutable event per committed transition.
// Emission is fire-and-forget: errors are logged by the service, never
// propagated to the command caller.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
