package models

import (
	"fmt"
	"strings"
	"time"

	id "idregistry/pkg/domain"
	dErrors "idregistry/pkg/domain-errors"
)

// Registration is the aggregate root for one enrollee.
//
// Invariants:
//   - IdentityNumber is non-nil if and only if Status is active_verified
//   - CorrectionFields is non-empty only while Status is correction_requested
//   - Status only moves along the transition table edges; terminal states
//     (active_verified, rejected) never change again
//   - Records are never deleted, only advanced, for audit completeness
//
// All mutation goes through the Can/Apply pairs below so the service can run
// validation and mutation inside the store's conditional update.
type Registration struct {
	ID                 id.RegistrationID `json:"id"`
	FullName           string            `json:"full_name"`
	DateOfBirth        string            `json:"date_of_birth"`
	Address            string            `json:"address"`
	Status             Status            `json:"status"`
	BiometricStatus    BiometricStatus   `json:"biometric_status"`
	IdentityNumber     *string           `json:"identity_number,omitempty"`
	TokenHash          string            `json:"-"`
	ScheduledCaptureAt *time.Time        `json:"scheduled_capture_at,omitempty"`
	CorrectionFields   []string          `json:"correction_fields,omitempty"`
	ResolutionNotes    string            `json:"resolution_notes,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// NewRegistration creates an intake record in pending_verification.
func NewRegistration(registrationID id.RegistrationID, fullName, dateOfBirth, address string, now time.Time) (*Registration, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "full name is required")
	}
	if len(fullName) > 256 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "full name must be 256 characters or less")
	}
	return &Registration{
		ID:              registrationID,
		FullName:        fullName,
		DateOfBirth:     strings.TrimSpace(dateOfBirth),
		Address:         strings.TrimSpace(address),
		Status:          StatusPendingVerification,
		BiometricStatus: BiometricNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// CheckInvariants verifies the aggregate-level invariants. Called by tests
// after every transition and by stores before persisting.
func (r *Registration) CheckInvariants() error {
	if !r.Status.Valid() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "unknown status %q", r.Status)
	}
	if (r.IdentityNumber != nil) != (r.Status == StatusActiveVerified) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"identity number must be set exactly when status is active_verified")
	}
	if len(r.CorrectionFields) > 0 && r.Status != StatusCorrectionRequested {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"correction fields may only be set while a correction is requested")
	}
	return nil
}

func (r *Registration) transitionTo(target Status) error {
	if !r.Status.CanTransitionTo(target) {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"illegal transition %s -> %s", r.Status, target)
	}
	return nil
}

// CanApprove checks the approval precondition (pending_verification only).
func (r *Registration) CanApprove() error {
	if r.Status != StatusPendingVerification {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"registration is %s, expected %s", r.Status, StatusPendingVerification)
	}
	return nil
}

// ApplyApprove moves the record to approved_for_biometric.
func (r *Registration) ApplyApprove(now time.Time) {
	r.Status = StatusApprovedForBiometric
	r.UpdatedAt = now
}

// CanRequestCorrection validates a correction request against the current
// status and the field list.
func (r *Registration) CanRequestCorrection(fields []string) error {
	if r.Status != StatusPendingVerification && r.Status != StatusApprovedForBiometric {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"corrections cannot be requested while registration is %s", r.Status)
	}
	if len(fields) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "correction field list cannot be empty")
	}
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return dErrors.New(dErrors.CodeBadRequest, "correction field names cannot be blank")
		}
	}
	return nil
}

// ApplyRequestCorrection records the awaited fields and moves the record to
// correction_requested.
func (r *Registration) ApplyRequestCorrection(fields []string, note string, now time.Time) {
	r.Status = StatusCorrectionRequested
	r.CorrectionFields = append([]string(nil), fields...)
	if note != "" {
		r.ResolutionNotes = note
	}
	r.UpdatedAt = now
}

// CanSubmitCorrection checks that a correction round-trip is in flight.
func (r *Registration) CanSubmitCorrection() error {
	if r.Status != StatusCorrectionRequested {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"registration is %s, expected %s", r.Status, StatusCorrectionRequested)
	}
	return nil
}

// ApplySubmitCorrection applies corrected demographic values, clears the
// awaited field set and returns the record to approved_for_biometric for
// re-evaluation.
func (r *Registration) ApplySubmitCorrection(corrected map[string]string, now time.Time) {
	for field, value := range corrected {
		switch field {
		case "full_name":
			r.FullName = strings.TrimSpace(value)
		case "date_of_birth":
			r.DateOfBirth = strings.TrimSpace(value)
		case "address":
			r.Address = strings.TrimSpace(value)
		}
	}
	r.CorrectionFields = nil
	r.Status = StatusApprovedForBiometric
	r.UpdatedAt = now
}

// CanReject checks that the record has not reached a terminal state.
func (r *Registration) CanReject(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "rejection reason cannot be empty")
	}
	if r.Status.IsTerminal() {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"registration is already %s", r.Status)
	}
	return nil
}

// ApplyReject moves the record to the rejected terminal state.
func (r *Registration) ApplyReject(reason string, now time.Time) {
	r.Status = StatusRejected
	r.CorrectionFields = nil
	r.ResolutionNotes = reason
	r.UpdatedAt = now
}

// CanSchedule validates a capture appointment.
func (r *Registration) CanSchedule(when time.Time, now time.Time) error {
	if r.Status != StatusApprovedForBiometric {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"registration is %s, expected %s", r.Status, StatusApprovedForBiometric)
	}
	if when.IsZero() || !when.After(now) {
		return dErrors.New(dErrors.CodeBadRequest, "capture appointment must be in the future")
	}
	return nil
}

// ApplySchedule records the capture appointment; status is unchanged.
func (r *Registration) ApplySchedule(when time.Time, now time.Time) {
	r.ScheduledCaptureAt = &when
	r.UpdatedAt = now
}

// CanSubmitCapture checks the capture precondition.
func (r *Registration) CanSubmitCapture() error {
	if r.Status != StatusApprovedForBiometric {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"registration is %s, expected %s", r.Status, StatusApprovedForBiometric)
	}
	return nil
}

// ApplyBiometricStatus records a capture evaluation outcome that does not
// advance the lifecycle (quality failure, partial set, pre-dedup captured).
func (r *Registration) ApplyBiometricStatus(status BiometricStatus, now time.Time) {
	r.BiometricStatus = status
	r.UpdatedAt = now
}

// ApplyBiometricsVerified commits a unique dedup verdict.
func (r *Registration) ApplyBiometricsVerified(now time.Time) error {
	if err := r.transitionTo(StatusBiometricsVerified); err != nil {
		return err
	}
	r.Status = StatusBiometricsVerified
	r.BiometricStatus = BiometricCaptured
	r.UpdatedAt = now
	return nil
}

// ApplyFlaggedDuplicate commits a duplicate_found dedup verdict. Identity
// issuance is blocked until an admin resolves the flag.
func (r *Registration) ApplyFlaggedDuplicate(matchConfidence float64, matchedID string, now time.Time) error {
	if err := r.transitionTo(StatusFlaggedDuplicate); err != nil {
		return err
	}
	r.Status = StatusFlaggedDuplicate
	r.BiometricStatus = BiometricCaptured
	r.ResolutionNotes = fmt.Sprintf("possible duplicate of %s (confidence %.0f)", matchedID, matchConfidence)
	r.UpdatedAt = now
	return nil
}

// CanResolveDuplicate checks the duplicate-resolution precondition.
func (r *Registration) CanResolveDuplicate(decision ResolutionDecision) error {
	if r.Status != StatusFlaggedDuplicate {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"registration is %s, expected %s", r.Status, StatusFlaggedDuplicate)
	}
	if !decision.Valid() {
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown resolution decision %q", decision)
	}
	return nil
}

// ApplyResolveDuplicate commits the admin's verdict. Approve clears the flag;
// reject and merge both land in the rejected terminal state (merge has no
// record-merging semantics, the decision string is preserved in the notes).
func (r *Registration) ApplyResolveDuplicate(decision ResolutionDecision, note string, now time.Time) {
	switch decision {
	case ResolutionApprove:
		r.Status = StatusBiometricsVerified
	default:
		r.Status = StatusRejected
	}
	r.ResolutionNotes = fmt.Sprintf("%s: %s", decision, note)
	r.UpdatedAt = now
}

// CanIssueIdentity checks the issuance precondition. The store re-checks it
// under the conditional update, which is what makes issuance at-most-once.
func (r *Registration) CanIssueIdentity() error {
	if r.Status != StatusBiometricsVerified {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"registration is %s, expected %s", r.Status, StatusBiometricsVerified)
	}
	return nil
}

// ApplyIssueIdentity commits the terminal active_verified state with the
// generated identity number and the verification token hash.
func (r *Registration) ApplyIssueIdentity(identityNumber, tokenHash string, now time.Time) error {
	if err := r.transitionTo(StatusActiveVerified); err != nil {
		return err
	}
	r.Status = StatusActiveVerified
	r.IdentityNumber = &identityNumber
	r.TokenHash = tokenHash
	r.UpdatedAt = now
	return nil
}
