package handler

import (
	"time"

	"idregistry/internal/registration/models"
	"idregistry/internal/registration/service"
)

// RegistrationResponse is the wire shape of one registration record.
type RegistrationResponse struct {
	ID                 string     `json:"id"`
	FullName           string     `json:"full_name"`
	DateOfBirth        string     `json:"date_of_birth"`
	Address            string     `json:"address"`
	Status             string     `json:"status"`
	BiometricStatus    string     `json:"biometric_status"`
	IdentityNumber     *string    `json:"identity_number,omitempty"`
	ScheduledCaptureAt *time.Time `json:"scheduled_capture_at,omitempty"`
	CorrectionFields   []string   `json:"correction_fields,omitempty"`
	ResolutionNotes    string     `json:"resolution_notes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// FromRegistration maps a record to its wire shape. The token hash never
// leaves the service.
func FromRegistration(r *models.Registration) RegistrationResponse {
	return RegistrationResponse{
		ID:                 r.ID.String(),
		FullName:           r.FullName,
		DateOfBirth:        r.DateOfBirth,
		Address:            r.Address,
		Status:             string(r.Status),
		BiometricStatus:    string(r.BiometricStatus),
		IdentityNumber:     r.IdentityNumber,
		ScheduledCaptureAt: r.ScheduledCaptureAt,
		CorrectionFields:   r.CorrectionFields,
		ResolutionNotes:    r.ResolutionNotes,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// BiometricResponse is the wire shape of one persisted sample record.
type BiometricResponse struct {
	ID           string    `json:"id"`
	Modality     string    `json:"modality"`
	Position     string    `json:"position,omitempty"`
	QualityScore int       `json:"quality_score"`
	TemplateHash string    `json:"template_hash"`
	DedupStatus  string    `json:"dedup_status"`
	CapturedBy   string    `json:"captured_by"`
	CapturedAt   time.Time `json:"captured_at"`
}

// DetailResponse is the body for GET /registrations/{id}.
type DetailResponse struct {
	Registration RegistrationResponse `json:"registration"`
	Biometrics   []BiometricResponse  `json:"biometrics"`
}

// FromDetail maps the administrative read model to its wire shape.
func FromDetail(d *service.RegistrationDetail) DetailResponse {
	biometrics := make([]BiometricResponse, 0, len(d.Biometrics))
	for _, b := range d.Biometrics {
		biometrics = append(biometrics, BiometricResponse{
			ID:           b.ID.String(),
			Modality:     string(b.Modality),
			Position:     string(b.Position),
			QualityScore: b.QualityScore,
			TemplateHash: b.TemplateHash,
			DedupStatus:  string(b.DedupStatus),
			CapturedBy:   b.CapturedBy,
			CapturedAt:   b.CapturedAt,
		})
	}
	return DetailResponse{
		Registration: FromRegistration(d.Registration),
		Biometrics:   biometrics,
	}
}

// CaptureResponse is the body for POST /registrations/{id}/biometrics.
// FailedSamples or MissingSamples is set for non-advancing outcomes; the
// match block is present once deduplication flagged the record.
type CaptureResponse struct {
	Registration   RegistrationResponse  `json:"registration"`
	FailedSamples  []service.SampleScore `json:"failed_samples,omitempty"`
	MissingSamples []string              `json:"missing_samples,omitempty"`
	Match          *MatchResponse        `json:"match,omitempty"`
}

// MatchResponse reports the duplicate verdict attached to a flagged capture.
type MatchResponse struct {
	MatchedID       string  `json:"matched_id"`
	MatchConfidence float64 `json:"match_confidence"`
}

// FromCaptureResult maps the capture outcome to its wire shape.
func FromCaptureResult(result *service.CaptureResult) CaptureResponse {
	resp := CaptureResponse{
		Registration:   FromRegistration(result.Registration),
		FailedSamples:  result.FailedSamples,
		MissingSamples: result.MissingSamples,
	}
	if result.Verdict != nil && result.Verdict.DuplicateFound {
		resp.Match = &MatchResponse{
			MatchedID:       result.Verdict.MatchedID,
			MatchConfidence: result.Verdict.MatchConfidence,
		}
	}
	return resp
}

// IssueResponse is the body for POST /registrations/{id}/identity. The
// verification token appears here once and is never retrievable again.
type IssueResponse struct {
	Registration      RegistrationResponse `json:"registration"`
	VerificationToken string               `json:"verification_token"`
}

// FromIssuedIdentity maps the issuance result to its wire shape.
func FromIssuedIdentity(issued *service.IssuedIdentity) IssueResponse {
	return IssueResponse{
		Registration:      FromRegistration(issued.Registration),
		VerificationToken: issued.VerificationToken,
	}
}
