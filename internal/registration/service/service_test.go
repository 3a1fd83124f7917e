package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"idregistry/internal/audit"
	"idregistry/internal/biometric/dedupe"
	"idregistry/internal/biometric/quality"
	"idregistry/internal/registration/models"
	"idregistry/internal/registration/service"
	"idregistry/internal/registration/service/mocks"
	"idregistry/internal/registration/store"
	id "idregistry/pkg/domain"
	dErrors "idregistry/pkg/domain-errors"
	"idregistry/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	ctrl       *gomock.Controller
	records    *store.InMemory
	quality    *mocks.MockQualityScorer
	dedupe     *mocks.MockDeduplicator
	auditStore *audit.InMemoryStore
	publisher  *audit.StorePublisher
	svc        *service.Service
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithActorID(context.Background(), "officer-7")
	s.ctrl = gomock.NewController(s.T())
	s.records = store.NewInMemory()
	s.quality = mocks.NewMockQualityScorer(s.ctrl)
	s.dedupe = mocks.NewMockDeduplicator(s.ctrl)
	s.auditStore = audit.NewInMemoryStore()
	s.publisher = audit.NewStorePublisher(s.auditStore)
	s.svc = service.New(s.records, s.quality, s.dedupe,
		service.WithAuditPublisher(s.publisher),
	)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) register() *models.Registration {
	record, err := s.svc.Register(s.ctx, service.RegisterInput{
		FullName:    "Amina Diallo",
		DateOfBirth: "1990-04-12",
		Address:     "12 Harbour Road",
	})
	s.Require().NoError(err)
	return record
}

func (s *ServiceSuite) approved() *models.Registration {
	record := s.register()
	approved, err := s.svc.Approve(s.ctx, record.ID)
	s.Require().NoError(err)
	return approved
}

// verified drives a record to biometrics_verified through a full capture with
// passing quality and a unique dedup verdict.
func (s *ServiceSuite) verified() *models.Registration {
	record := s.approved()
	s.passAllQuality()
	s.dedupe.EXPECT().Identify(gomock.Any(), record.ID, gomock.Any()).
		Return(dedupe.Verdict{DuplicateFound: false}, nil)

	result, err := s.svc.SubmitCapture(s.ctx, record.ID, completeSampleSet())
	s.Require().NoError(err)
	s.Require().Equal(models.StatusBiometricsVerified, result.Registration.Status)
	return result.Registration
}

func (s *ServiceSuite) passAllQuality() {
	s.quality.EXPECT().Check(gomock.Any(), gomock.Any()).
		Return(quality.Result{Score: 85, Passed: true}, nil).AnyTimes()
}

func (s *ServiceSuite) auditEventTypes() []audit.EventType {
	events := s.auditStore.All()
	types := make([]audit.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	return types
}

func completeSampleSet() models.SampleSet {
	set := models.SampleSet{
		{Modality: models.ModalityFace, TemplateData: []byte("face-template")},
		{Modality: models.ModalitySignature, TemplateData: []byte("signature-template")},
	}
	for _, pos := range models.CanonicalFingerPositions {
		set = append(set, models.Sample{
			Modality:     models.ModalityFingerprint,
			Position:     pos,
			TemplateData: []byte("finger-" + string(pos)),
		})
	}
	return set
}

// TestRegister verifies demographic intake.
func (s *ServiceSuite) TestRegister() {
	s.Run("creates record in pending_verification", func() {
		record := s.register()
		s.Equal(models.StatusPendingVerification, record.Status)
		s.Equal(models.BiometricNone, record.BiometricStatus)
		s.Contains(s.auditEventTypes(), audit.EventRegistrationCreated)
	})

	s.Run("rejects blank name", func() {
		_, err := s.svc.Register(s.ctx, service.RegisterInput{FullName: "  "})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

// TestApprove verifies the verification decision.
func (s *ServiceSuite) TestApprove() {
	s.Run("moves pending record forward", func() {
		record := s.approved()
		s.Equal(models.StatusApprovedForBiometric, record.Status)
		s.Contains(s.auditEventTypes(), audit.EventApprovedForCapture)
	})

	s.Run("second approval is a precondition failure", func() {
		record := s.approved()
		_, err := s.svc.Approve(s.ctx, record.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	s.Run("unknown record is not found", func() {
		_, err := s.svc.Approve(s.ctx, id.NewRegistrationID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// TestCorrectionRoundTrip verifies the correction_requested loop.
func (s *ServiceSuite) TestCorrectionRoundTrip() {
	s.Run("request then submit returns record to approved_for_biometric", func() {
		record := s.approved()

		flagged, err := s.svc.RequestCorrection(s.ctx, record.ID, []string{"address"}, "street number missing")
		s.Require().NoError(err)
		s.Equal(models.StatusCorrectionRequested, flagged.Status)
		s.Equal([]string{"address"}, flagged.CorrectionFields)

		fixed, err := s.svc.SubmitCorrection(s.ctx, record.ID, map[string]string{"address": "14 Harbour Road"})
		s.Require().NoError(err)
		s.Equal(models.StatusApprovedForBiometric, fixed.Status)
		s.Equal("14 Harbour Road", fixed.Address)
		s.Empty(fixed.CorrectionFields)

		s.Contains(s.auditEventTypes(), audit.EventCorrectionRequested)
		s.Contains(s.auditEventTypes(), audit.EventCorrectionSubmitted)
	})

	s.Run("request works from pending too", func() {
		record := s.register()
		flagged, err := s.svc.RequestCorrection(s.ctx, record.ID, []string{"full_name"}, "")
		s.Require().NoError(err)
		s.Equal(models.StatusCorrectionRequested, flagged.Status)
	})

	s.Run("submit without pending correction is a precondition failure", func() {
		record := s.approved()
		_, err := s.svc.SubmitCorrection(s.ctx, record.ID, map[string]string{"address": "x"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	s.Run("empty corrected map is a bad request", func() {
		record := s.approved()
		_, err := s.svc.SubmitCorrection(s.ctx, record.ID, nil)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

// TestReject verifies rejection from non-terminal states only.
func (s *ServiceSuite) TestReject() {
	s.Run("rejects a pending record", func() {
		record := s.register()
		rejected, err := s.svc.Reject(s.ctx, record.ID, "forged documents")
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, rejected.Status)
		s.Contains(s.auditEventTypes(), audit.EventRegistrationRejected)
	})

	s.Run("rejects a biometrics_verified record", func() {
		record := s.verified()
		rejected, err := s.svc.Reject(s.ctx, record.ID, "sanctions match")
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, rejected.Status)
	})

	s.Run("terminal record cannot be rejected again", func() {
		record := s.register()
		_, err := s.svc.Reject(s.ctx, record.ID, "first")
		s.Require().NoError(err)
		_, err = s.svc.Reject(s.ctx, record.ID, "second")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})
}

// TestSchedule verifies appointment booking.
func (s *ServiceSuite) TestSchedule() {
	s.Run("books future appointment", func() {
		record := s.approved()
		when := time.Now().Add(48 * time.Hour)
		scheduled, err := s.svc.Schedule(s.ctx, record.ID, when)
		s.Require().NoError(err)
		s.Require().NotNil(scheduled.ScheduledCaptureAt)
		s.Equal(models.StatusApprovedForBiometric, scheduled.Status)
		s.Contains(s.auditEventTypes(), audit.EventCaptureScheduled)
	})

	s.Run("refuses past appointment", func() {
		record := s.approved()
		_, err := s.svc.Schedule(s.ctx, record.ID, time.Now().Add(-time.Hour))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("refuses unapproved record", func() {
		record := s.register()
		_, err := s.svc.Schedule(s.ctx, record.ID, time.Now().Add(time.Hour))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})
}

// TestResolveDuplicate verifies the admin resolution verdicts.
func (s *ServiceSuite) TestResolveDuplicate() {
	flagDuplicate := func() *models.Registration {
		record := s.approved()
		s.passAllQuality()
		s.dedupe.EXPECT().Identify(gomock.Any(), record.ID, gomock.Any()).
			Return(dedupe.Verdict{DuplicateFound: true, MatchConfidence: 91, MatchedID: "f3d9c2aa"}, nil)

		result, err := s.svc.SubmitCapture(s.ctx, record.ID, completeSampleSet())
		s.Require().NoError(err)
		s.Require().Equal(models.StatusFlaggedDuplicate, result.Registration.Status)
		return result.Registration
	}

	s.Run("approve clears the flag and allows issuance", func() {
		record := flagDuplicate()

		resolved, err := s.svc.ResolveDuplicate(s.ctx, record.ID, models.ResolutionApprove, "manual review cleared the match")
		s.Require().NoError(err)
		s.Equal(models.StatusBiometricsVerified, resolved.Status)

		issued, err := s.svc.IssueIdentity(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusActiveVerified, issued.Registration.Status)
	})

	s.Run("reject is terminal", func() {
		record := flagDuplicate()
		resolved, err := s.svc.ResolveDuplicate(s.ctx, record.ID, models.ResolutionReject, "confirmed duplicate")
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, resolved.Status)
	})

	s.Run("merge lands in rejected with the decision recorded", func() {
		record := flagDuplicate()
		resolved, err := s.svc.ResolveDuplicate(s.ctx, record.ID, models.ResolutionMerge, "records combined downstream")
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, resolved.Status)
		s.Contains(resolved.ResolutionNotes, "merge")
	})

	s.Run("resolution outside flagged_duplicate is a precondition failure", func() {
		record := s.approved()
		_, err := s.svc.ResolveDuplicate(s.ctx, record.ID, models.ResolutionApprove, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})
}

// TestIssueIdentity verifies issuance semantics including the at-most-once
// guarantee under concurrent duplicate requests.
func (s *ServiceSuite) TestIssueIdentity() {
	s.Run("issues exactly once with a plaintext token returned once", func() {
		record := s.verified()

		issued, err := s.svc.IssueIdentity(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusActiveVerified, issued.Registration.Status)
		s.Require().NotNil(issued.Registration.IdentityNumber)
		s.Len(*issued.Registration.IdentityNumber, 12)
		s.NotEmpty(issued.VerificationToken)
		s.NotEqual(issued.VerificationToken, issued.Registration.TokenHash)
		s.Contains(s.auditEventTypes(), audit.EventIdentityIssued)
	})

	s.Run("second issuance is a precondition failure", func() {
		record := s.verified()
		_, err := s.svc.IssueIdentity(s.ctx, record.ID)
		s.Require().NoError(err)

		_, err = s.svc.IssueIdentity(s.ctx, record.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	s.Run("refused before biometrics are verified", func() {
		record := s.approved()
		_, err := s.svc.IssueIdentity(s.ctx, record.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	s.Run("concurrent duplicate requests produce one identity", func() {
		record := s.verified()

		const goroutines = 16
		var wg sync.WaitGroup
		outcomes := make(chan error, goroutines)
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.svc.IssueIdentity(s.ctx, record.ID)
				outcomes <- err
			}()
		}
		wg.Wait()
		close(outcomes)

		var wins int
		for err := range outcomes {
			if err == nil {
				wins++
				continue
			}
			s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
		}
		s.Equal(1, wins)

		detail, err := s.svc.Get(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusActiveVerified, detail.Registration.Status)
		s.Require().NotNil(detail.Registration.IdentityNumber)
	})
}

// TestGet verifies the administrative read model.
func (s *ServiceSuite) TestGet() {
	s.Run("returns record with persisted biometrics", func() {
		record := s.verified()
		detail, err := s.svc.Get(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Equal(record.ID, detail.Registration.ID)
		s.Len(detail.Biometrics, 12)
		for _, b := range detail.Biometrics {
			s.Equal(models.DedupUnique, b.DedupStatus)
		}
	})

	s.Run("unknown record is not found", func() {
		_, err := s.svc.Get(s.ctx, id.NewRegistrationID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// TestAuditActorStamping verifies request context flows into audit events.
func (s *ServiceSuite) TestAuditActorStamping() {
	record := s.register()
	_, err := s.svc.Approve(s.ctx, record.ID)
	s.Require().NoError(err)

	events := s.auditStore.All()
	s.Require().NotEmpty(events)
	for _, event := range events {
		s.Equal("officer-7", event.ActorID)
		s.Equal(record.ID, event.RegistrationID)
	}
}
