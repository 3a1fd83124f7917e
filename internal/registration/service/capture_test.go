package service_test

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/mock/gomock"

	"idregistry/internal/audit"
	"idregistry/internal/biometric/dedupe"
	"idregistry/internal/biometric/quality"
	"idregistry/internal/registration/models"
	dErrors "idregistry/pkg/domain-errors"
	"idregistry/pkg/platform/sentinel"
)

// TestSubmitCaptureVerified covers the happy path: all samples pass the
// gate, the set is complete and deduplication reports unique.
func (s *ServiceSuite) TestSubmitCaptureVerified() {
	record := s.approved()
	s.passAllQuality()
	s.dedupe.EXPECT().Identify(gomock.Any(), record.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ any, templates []dedupe.TemplateRef) (dedupe.Verdict, error) {
			s.Len(templates, 12)
			return dedupe.Verdict{DuplicateFound: false}, nil
		})

	result, err := s.svc.SubmitCapture(s.ctx, record.ID, completeSampleSet())
	s.Require().NoError(err)
	s.Equal(models.StatusBiometricsVerified, result.Registration.Status)
	s.Equal(models.BiometricCaptured, result.Registration.BiometricStatus)
	s.Empty(result.FailedSamples)
	s.Empty(result.MissingSamples)
	s.Require().NotNil(result.Verdict)
	s.False(result.Verdict.DuplicateFound)

	listed, err := s.records.ListBiometrics(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Len(listed, 12)
	for _, b := range listed {
		s.Equal(models.DedupUnique, b.DedupStatus)
	}
	s.Contains(s.auditEventTypes(), audit.EventBiometricsVerified)
}

// TestSubmitCaptureQualityFailure verifies a failing sample blocks the
// transition and a later clean attempt succeeds.
func (s *ServiceSuite) TestSubmitCaptureQualityFailure() {
	record := s.approved()

	// First attempt: the left thumb scores below the threshold.
	s.quality.EXPECT().Check(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, sample models.Sample) (quality.Result, error) {
			if sample.Position == models.LeftThumb {
				return quality.Result{Score: 40, Passed: false}, nil
			}
			return quality.Result{Score: 85, Passed: true}, nil
		}).Times(12)

	result, err := s.svc.SubmitCapture(s.ctx, record.ID, completeSampleSet())
	s.Require().NoError(err)
	s.Equal(models.StatusApprovedForBiometric, result.Registration.Status)
	s.Equal(models.BiometricQualityCheckFailed, result.Registration.BiometricStatus)
	s.Require().Len(result.FailedSamples, 1)
	s.Equal(models.LeftThumb, result.FailedSamples[0].Position)
	s.Equal(40, result.FailedSamples[0].Score)
	s.Contains(s.auditEventTypes(), audit.EventQualityCheckFailed)

	// No samples were persisted and deduplication never ran.
	listed, err := s.records.ListBiometrics(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Empty(listed)

	// Second attempt passes end to end.
	s.passAllQuality()
	s.dedupe.EXPECT().Identify(gomock.Any(), record.ID, gomock.Any()).
		Return(dedupe.Verdict{DuplicateFound: false}, nil)

	retry, err := s.svc.SubmitCapture(s.ctx, record.ID, completeSampleSet())
	s.Require().NoError(err)
	s.Equal(models.StatusBiometricsVerified, retry.Registration.Status)
}

// TestSubmitCapturePartial verifies an incomplete set reports exactly what
// is missing and does not advance the lifecycle.
func (s *ServiceSuite) TestSubmitCapturePartial() {
	record := s.approved()
	s.passAllQuality()

	full := completeSampleSet()
	partial := make(models.SampleSet, 0, len(full)-2)
	for _, sample := range full {
		if sample.Position == models.RightRing || sample.Position == models.RightLittle {
			continue
		}
		partial = append(partial, sample)
	}

	result, err := s.svc.SubmitCapture(s.ctx, record.ID, partial)
	s.Require().NoError(err)
	s.Equal(models.StatusApprovedForBiometric, result.Registration.Status)
	s.Equal(models.BiometricPartial, result.Registration.BiometricStatus)
	s.Len(result.MissingSamples, 2)
	s.Contains(result.MissingSamples, "fingerprint:right_ring")
	s.Contains(result.MissingSamples, "fingerprint:right_little")
	s.Contains(s.auditEventTypes(), audit.EventCapturePartial)

	listed, err := s.records.ListBiometrics(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Empty(listed)
}

// TestSubmitCaptureDuplicate verifies a duplicate verdict flags the record.
func (s *ServiceSuite) TestSubmitCaptureDuplicate() {
	record := s.approved()
	s.passAllQuality()
	s.dedupe.EXPECT().Identify(gomock.Any(), record.ID, gomock.Any()).
		Return(dedupe.Verdict{DuplicateFound: true, MatchConfidence: 91, MatchedID: "f3d9c2aa"}, nil)

	result, err := s.svc.SubmitCapture(s.ctx, record.ID, completeSampleSet())
	s.Require().NoError(err)
	s.Equal(models.StatusFlaggedDuplicate, result.Registration.Status)
	s.Contains(result.Registration.ResolutionNotes, "f3d9c2aa")
	s.Require().NotNil(result.Verdict)
	s.True(result.Verdict.DuplicateFound)

	listed, err := s.records.ListBiometrics(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Len(listed, 12)
	for _, b := range listed {
		s.Equal(models.DedupDuplicateFound, b.DedupStatus)
	}
	s.Contains(s.auditEventTypes(), audit.EventDuplicateFlagged)
}

// TestSubmitCaptureFailClosed verifies external failures never count as a
// pass or a unique verdict.
func (s *ServiceSuite) TestSubmitCaptureFailClosed() {
	s.Run("quality scorer outage surfaces as unavailable", func() {
		record := s.approved()
		s.quality.EXPECT().Check(gomock.Any(), gomock.Any()).
			Return(quality.Result{}, fmt.Errorf("post quality check: %w", sentinel.ErrUnavailable)).
			MinTimes(1).MaxTimes(12)

		_, err := s.svc.SubmitCapture(s.ctx, record.ID, completeSampleSet())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

		// Nothing advanced, nothing persisted.
		current, findErr := s.records.FindByID(s.ctx, record.ID)
		s.Require().NoError(findErr)
		s.Equal(models.StatusApprovedForBiometric, current.Status)
		listed, listErr := s.records.ListBiometrics(s.ctx, record.ID)
		s.Require().NoError(listErr)
		s.Empty(listed)
	})

	s.Run("dedup outage surfaces as unavailable and keeps samples pending", func() {
		record := s.approved()
		s.passAllQuality()
		s.dedupe.EXPECT().Identify(gomock.Any(), record.ID, gomock.Any()).
			Return(dedupe.Verdict{}, fmt.Errorf("post identify: %w", sentinel.ErrUnavailable))

		_, err := s.svc.SubmitCapture(s.ctx, record.ID, completeSampleSet())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

		current, findErr := s.records.FindByID(s.ctx, record.ID)
		s.Require().NoError(findErr)
		s.Equal(models.StatusApprovedForBiometric, current.Status)
		s.Equal(models.BiometricCaptured, current.BiometricStatus)

		listed, listErr := s.records.ListBiometrics(s.ctx, record.ID)
		s.Require().NoError(listErr)
		s.Len(listed, 12)
		for _, b := range listed {
			s.Equal(models.DedupPending, b.DedupStatus)
		}
	})

	s.Run("unexpected dedup error is internal, never a pass", func() {
		record := s.approved()
		s.passAllQuality()
		s.dedupe.EXPECT().Identify(gomock.Any(), record.ID, gomock.Any()).
			Return(dedupe.Verdict{}, errors.New("malformed response"))

		_, err := s.svc.SubmitCapture(s.ctx, record.ID, completeSampleSet())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))

		current, findErr := s.records.FindByID(s.ctx, record.ID)
		s.Require().NoError(findErr)
		s.NotEqual(models.StatusBiometricsVerified, current.Status)
	})
}

// TestSubmitCapturePreconditions verifies capture is only accepted in
// approved_for_biometric.
func (s *ServiceSuite) TestSubmitCapturePreconditions() {
	s.Run("pending record cannot capture", func() {
		record := s.register()
		_, err := s.svc.SubmitCapture(s.ctx, record.ID, completeSampleSet())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	s.Run("verified record cannot recapture", func() {
		record := s.verified()
		_, err := s.svc.SubmitCapture(s.ctx, record.ID, completeSampleSet())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	s.Run("structurally invalid set is rejected before any external call", func() {
		record := s.approved()
		_, err := s.svc.SubmitCapture(s.ctx, record.ID, models.SampleSet{})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}
