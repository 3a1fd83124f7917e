package models

// Status is the closed set of registration lifecycle states. All transition
// legality lives in the transitions table below; nothing else in the codebase
// compares raw status strings.
type Status string

const (
	StatusPendingVerification  Status = "pending_verification"
	StatusApprovedForBiometric Status = "approved_for_biometric"
	StatusCorrectionRequested  Status = "correction_requested"
	StatusBiometricsVerified   Status = "biometrics_verified"
	StatusFlaggedDuplicate     Status = "flagged_duplicate"
	StatusActiveVerified       Status = "active_verified"
	StatusRejected             Status = "rejected"
)

// transitions is the single authoritative transition table. Terminal states
// have no outgoing edges.
var transitions = map[Status][]Status{
	StatusPendingVerification:  {StatusApprovedForBiometric, StatusCorrectionRequested, StatusRejected},
	StatusApprovedForBiometric: {StatusCorrectionRequested, StatusBiometricsVerified, StatusFlaggedDuplicate, StatusRejected},
	StatusCorrectionRequested:  {StatusApprovedForBiometric, StatusRejected},
	StatusFlaggedDuplicate:     {StatusBiometricsVerified, StatusRejected},
	StatusBiometricsVerified:   {StatusActiveVerified, StatusRejected},
	StatusActiveVerified:       {},
	StatusRejected:             {},
}

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transition is defined from s.
func (s Status) IsTerminal() bool {
	targets, ok := transitions[s]
	return ok && len(targets) == 0
}

// CanTransitionTo reports whether the edge s → target exists in the
// transition table.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// BiometricStatus tracks the capture pipeline independently of the lifecycle
// status. It only ever changes inside a capture submission.
type BiometricStatus string

const (
	BiometricNone               BiometricStatus = "none"
	BiometricPartial            BiometricStatus = "partial"
	BiometricCaptured           BiometricStatus = "captured"
	BiometricQualityCheckFailed BiometricStatus = "quality_check_failed"
)

// DedupStatus records the deduplication verdict per persisted sample.
type DedupStatus string

const (
	DedupPending        DedupStatus = "pending"
	DedupUnique         DedupStatus = "unique"
	DedupDuplicateFound DedupStatus = "duplicate_found"
)

// ResolutionDecision is an admin's verdict on a flagged duplicate.
type ResolutionDecision string

const (
	ResolutionApprove ResolutionDecision = "approve"
	ResolutionReject  ResolutionDecision = "reject"
	// ResolutionMerge is accepted as a distinct input but resolves to the
	// rejected terminal state; the decision is preserved in the resolution
	// notes and audit payload for future merge handling.
	ResolutionMerge ResolutionDecision = "merge"
)

// Valid reports whether d is a known resolution decision.
func (d ResolutionDecision) Valid() bool {
	switch d {
	case ResolutionApprove, ResolutionReject, ResolutionMerge:
		return true
	}
	return false
}
