package handler

import (
	"strings"
	"time"

	"idregistry/internal/registration/models"
	dErrors "idregistry/pkg/domain-errors"
)

// correctableFields is the set of demographic fields a correction may name.
var correctableFields = map[string]struct{}{
	"full_name":     {},
	"date_of_birth": {},
	"address":       {},
}

// RegisterRequest is the body for POST /registrations.
type RegisterRequest struct {
	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth"`
	Address     string `json:"address"`
}

// Validate checks the intake payload.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *RegisterRequest) Validate() error {
	r.FullName = strings.TrimSpace(r.FullName)
	if r.FullName == "" {
		return dErrors.New(dErrors.CodeBadRequest, "full_name is required")
	}
	r.DateOfBirth = strings.TrimSpace(r.DateOfBirth)
	if r.DateOfBirth == "" {
		return dErrors.New(dErrors.CodeBadRequest, "date_of_birth is required")
	}
	if _, err := time.Parse("2006-01-02", r.DateOfBirth); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "date_of_birth must be formatted YYYY-MM-DD")
	}
	r.Address = strings.TrimSpace(r.Address)
	if r.Address == "" {
		return dErrors.New(dErrors.CodeBadRequest, "address is required")
	}
	return nil
}

// RequestCorrectionRequest is the body for POST /registrations/{id}/corrections.
type RequestCorrectionRequest struct {
	Fields []string `json:"fields"`
	Note   string   `json:"note"`
}

func (r *RequestCorrectionRequest) Validate() error {
	if len(r.Fields) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "fields is required")
	}
	for i, f := range r.Fields {
		f = strings.TrimSpace(f)
		if _, ok := correctableFields[f]; !ok {
			return dErrors.Newf(dErrors.CodeBadRequest, "field %q cannot be corrected", f)
		}
		r.Fields[i] = f
	}
	r.Note = strings.TrimSpace(r.Note)
	return nil
}

// SubmitCorrectionRequest is the body for POST /registrations/{id}/corrections/submit.
type SubmitCorrectionRequest struct {
	Corrected map[string]string `json:"corrected"`
}

func (r *SubmitCorrectionRequest) Validate() error {
	if len(r.Corrected) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "corrected is required")
	}
	for field, value := range r.Corrected {
		if _, ok := correctableFields[field]; !ok {
			return dErrors.Newf(dErrors.CodeBadRequest, "field %q cannot be corrected", field)
		}
		if strings.TrimSpace(value) == "" {
			return dErrors.Newf(dErrors.CodeBadRequest, "corrected value for %q cannot be empty", field)
		}
	}
	return nil
}

// RejectRequest is the body for POST /registrations/{id}/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

func (r *RejectRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeBadRequest, "reason is required")
	}
	return nil
}

// ScheduleRequest is the body for POST /registrations/{id}/schedule.
type ScheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (r *ScheduleRequest) Validate() error {
	if r.ScheduledAt.IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "scheduled_at is required")
	}
	return nil
}

// CaptureRequest is the body for POST /registrations/{id}/biometrics.
// Template data arrives base64-encoded inside each sample.
type CaptureRequest struct {
	Samples models.SampleSet `json:"samples"`
}

func (r *CaptureRequest) Validate() error {
	return r.Samples.Validate()
}

// ResolveDuplicateRequest is the body for POST /registrations/{id}/duplicate-resolution.
type ResolveDuplicateRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note"`

	parsedDecision models.ResolutionDecision
}

func (r *ResolveDuplicateRequest) Validate() error {
	decision := models.ResolutionDecision(strings.TrimSpace(r.Decision))
	if !decision.Valid() {
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown resolution decision %q", r.Decision)
	}
	r.parsedDecision = decision
	r.Note = strings.TrimSpace(r.Note)
	return nil
}

// ParsedDecision returns the validated resolution decision.
func (r *ResolveDuplicateRequest) ParsedDecision() models.ResolutionDecision {
	return r.parsedDecision
}
