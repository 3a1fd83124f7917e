package service

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"idregistry/internal/audit"
	"idregistry/internal/biometric/dedupe"
	"idregistry/internal/registration/models"
	id "idregistry/pkg/domain"
	dErrors "idregistry/pkg/domain-errors"
	"idregistry/pkg/platform/sentinel"
	"idregistry/pkg/requestcontext"
)

// SampleScore reports one sample's quality verdict back to the caller.
type SampleScore struct {
	Modality models.Modality       `json:"modality"`
	Position models.FingerPosition `json:"position,omitempty"`
	Score    int                   `json:"score"`
	Passed   bool                  `json:"passed"`
}

// CaptureResult reports the outcome of one capture submission. Exactly one
// of the failure lists is populated for non-advancing outcomes; Verdict is
// set once deduplication ran.
type CaptureResult struct {
	Registration   *models.Registration
	FailedSamples  []SampleScore
	MissingSamples []string
	Verdict        *dedupe.Verdict
}

// SubmitCapture runs one capture attempt through the quality gate, the
// completeness rule and the deduplication coordinator. Each attempt is
// evaluated from scratch; nothing accumulates across attempts, so a stale
// half-replaced template set can never reach deduplication.
//
// External results are all collected before any status write, keeping every
// transition a single conditional update.
func (s *Service) SubmitCapture(ctx context.Context, registrationID id.RegistrationID, samples models.SampleSet) (result *CaptureResult, err error) {
	ctx, done := s.instrument(ctx, "submit_capture")
	defer func() { done(err) }()

	if err = samples.Validate(); err != nil {
		return nil, err
	}

	current, err := s.records.FindByID(ctx, registrationID)
	if err != nil {
		return nil, translate(err)
	}
	if err = current.CanSubmitCapture(); err != nil {
		return nil, translate(err)
	}

	scores, err := s.scoreSamples(ctx, samples)
	if err != nil {
		// Fail closed: an unreachable scorer is never a pass and nothing
		// is committed.
		s.metrics.IncCaptureOutcome("unavailable")
		return nil, err
	}

	if failed := failedScores(scores); len(failed) > 0 {
		return s.commitQualityFailure(ctx, registrationID, failed)
	}
	if missing := samples.Missing(); len(missing) > 0 {
		return s.commitPartial(ctx, registrationID, missing)
	}
	return s.commitCompleteSet(ctx, registrationID, samples, scores)
}

// scoreSamples fans the quality checks out with bounded concurrency and
// collects every verdict before returning.
func (s *Service) scoreSamples(ctx context.Context, samples models.SampleSet) ([]SampleScore, error) {
	scores := make([]SampleScore, len(samples))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(scoreConcurrency)

	for i, sample := range samples {
		group.Go(func() error {
			verdict, err := s.quality.Check(groupCtx, sample)
			if err != nil {
				return err
			}
			scores[i] = SampleScore{
				Modality: sample.Modality,
				Position: sample.Position,
				Score:    verdict.Score,
				Passed:   verdict.Passed,
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		if errors.Is(err, sentinel.ErrUnavailable) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "quality scoring unavailable, retry the capture")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "quality scoring failed")
	}
	return scores, nil
}

func failedScores(scores []SampleScore) []SampleScore {
	var failed []SampleScore
	for _, score := range scores {
		if !score.Passed {
			failed = append(failed, score)
		}
	}
	return failed
}

// commitQualityFailure records a failed gate: biometric status only, the
// lifecycle status never changes and the caller must recapture.
func (s *Service) commitQualityFailure(ctx context.Context, registrationID id.RegistrationID, failed []SampleScore) (*CaptureResult, error) {
	now := requestcontext.Now(ctx)
	record, err := s.records.UpdateIf(ctx, registrationID, models.StatusApprovedForBiometric, func(r *models.Registration) error {
		if err := r.CanSubmitCapture(); err != nil {
			return err
		}
		r.ApplyBiometricStatus(models.BiometricQualityCheckFailed, now)
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	s.audit.emit(ctx, audit.EventQualityCheckFailed, registrationID, map[string]any{"failed_samples": len(failed)})
	s.metrics.IncCaptureOutcome("quality_check_failed")
	return &CaptureResult{Registration: record, FailedSamples: failed}, nil
}

// commitPartial records an incomplete attempt and reports what is missing.
func (s *Service) commitPartial(ctx context.Context, registrationID id.RegistrationID, missing []string) (*CaptureResult, error) {
	now := requestcontext.Now(ctx)
	record, err := s.records.UpdateIf(ctx, registrationID, models.StatusApprovedForBiometric, func(r *models.Registration) error {
		if err := r.CanSubmitCapture(); err != nil {
			return err
		}
		r.ApplyBiometricStatus(models.BiometricPartial, now)
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	s.audit.emit(ctx, audit.EventCapturePartial, registrationID, map[string]any{"missing": missing})
	s.metrics.IncCaptureOutcome("partial")
	return &CaptureResult{Registration: record, MissingSamples: missing}, nil
}

// commitCompleteSet persists the accepted samples, runs deduplication and
// commits the resulting transition.
func (s *Service) commitCompleteSet(ctx context.Context, registrationID id.RegistrationID, samples models.SampleSet, scores []SampleScore) (*CaptureResult, error) {
	now := requestcontext.Now(ctx)
	capturedBy := requestcontext.ActorID(ctx)

	records := make([]models.BiometricRecord, 0, len(samples))
	templates := make([]dedupe.TemplateRef, 0, len(samples))
	for i, sample := range samples {
		hash := sample.TemplateHash()
		records = append(records, models.BiometricRecord{
			ID:             id.NewBiometricRecordID(),
			RegistrationID: registrationID,
			Modality:       sample.Modality,
			Position:       sample.Position,
			QualityScore:   scores[i].Score,
			TemplateHash:   hash,
			DedupStatus:    models.DedupPending,
			CapturedBy:     capturedBy,
			CapturedAt:     now,
		})
		templates = append(templates, dedupe.TemplateRef{
			Modality: string(sample.Modality),
			Position: string(sample.Position),
			Hash:     hash,
		})
	}
	if err := s.records.InsertBiometrics(ctx, records); err != nil {
		return nil, translate(err)
	}

	verdict, err := s.dedupe.Identify(ctx, registrationID, templates)
	if err != nil {
		// Fail closed: a failed identification call is never "unique".
		// The record keeps its pre-dedup status so the capture can be
		// resubmitted; the persisted samples stay pending.
		if _, markErr := s.records.UpdateIf(ctx, registrationID, models.StatusApprovedForBiometric, func(r *models.Registration) error {
			r.ApplyBiometricStatus(models.BiometricCaptured, now)
			return nil
		}); markErr != nil {
			s.logger.WarnContext(ctx, "could not record captured biometric status after dedup failure",
				"registration_id", registrationID.String(), "error", markErr)
		}
		s.metrics.IncCaptureOutcome("unavailable")
		if errors.Is(err, sentinel.ErrUnavailable) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "deduplication unavailable, retry the capture")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "deduplication failed")
	}

	if verdict.DuplicateFound {
		record, err := s.records.UpdateIf(ctx, registrationID, models.StatusApprovedForBiometric, func(r *models.Registration) error {
			return r.ApplyFlaggedDuplicate(verdict.MatchConfidence, verdict.MatchedID, now)
		})
		if err != nil {
			return nil, translate(err)
		}
		if err := s.records.MarkDedupStatus(ctx, registrationID, models.DedupDuplicateFound); err != nil {
			s.logger.WarnContext(ctx, "could not mark biometric dedup status",
				"registration_id", registrationID.String(), "error", err)
		}

		s.audit.emit(ctx, audit.EventDuplicateFlagged, registrationID, map[string]any{
			"match_confidence": verdict.MatchConfidence,
			"matched_id":       verdict.MatchedID,
		})
		s.metrics.IncCaptureOutcome("flagged_duplicate")
		s.metrics.IncTransition(string(record.Status))
		return &CaptureResult{Registration: record, Verdict: &verdict}, nil
	}

	record, err := s.records.UpdateIf(ctx, registrationID, models.StatusApprovedForBiometric, func(r *models.Registration) error {
		return r.ApplyBiometricsVerified(now)
	})
	if err != nil {
		return nil, translate(err)
	}
	if err := s.records.MarkDedupStatus(ctx, registrationID, models.DedupUnique); err != nil {
		s.logger.WarnContext(ctx, "could not mark biometric dedup status",
			"registration_id", registrationID.String(), "error", err)
	}

	s.audit.emit(ctx, audit.EventBiometricsVerified, registrationID, map[string]any{"samples": len(records)})
	s.metrics.IncCaptureOutcome("verified")
	s.metrics.IncTransition(string(record.Status))
	return &CaptureResult{Registration: record, Verdict: &verdict}, nil
}
