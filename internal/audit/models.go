// Package audit emits an immutable event for every registration transition.
// Delivery is fire-and-forget from the state machine's perspective: failures
// are logged, never allowed to block or roll back a transition.
package audit

import (
	"time"

	id "idregistry/pkg/domain"
)

// EventType names a registration lifecycle event.
type EventType string

const (
	EventRegistrationCreated  EventType = "registration_created"
	EventApprovedForCapture   EventType = "approved_for_capture"
	EventCorrectionRequested  EventType = "correction_requested"
	EventCorrectionSubmitted  EventType = "correction_submitted"
	EventRegistrationRejected EventType = "registration_rejected"
	EventCaptureScheduled     EventType = "capture_scheduled"
	EventQualityCheckFailed   EventType = "quality_check_failed"
	EventCapturePartial       EventType = "capture_partial"
	EventBiometricsVerified   EventType = "biometrics_verified"
	EventDuplicateFlagged     EventType = "duplicate_flagged"
	EventDuplicateResolved    EventType = "duplicate_resolved"
	EventIdentityIssued       EventType = "identity_issued"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	RegistrationID id.RegistrationID `json:"registration_id"`
	EventType      EventType         `json:"event_type"`
	ActorID        string            `json:"actor_id"`
	RequestID      string            `json:"request_id,omitempty"`
	ClientIP       string            `json:"client_ip,omitempty"`
	Device         string            `json:"device,omitempty"`
	Payload        map[string]any    `json:"payload,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}
