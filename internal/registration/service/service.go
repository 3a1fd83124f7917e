// Package service implements the registration state machine: it owns every
// legal status transition, enforces preconditions through the store's
// conditional update, and drives the quality gate and deduplication
// coordinator during capture submission.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"idregistry/internal/audit"
	regmetrics "idregistry/internal/registration/metrics"
	"idregistry/internal/registration/models"
	"idregistry/internal/registration/store"
	id "idregistry/pkg/domain"
	dErrors "idregistry/pkg/domain-errors"
	"idregistry/pkg/platform/sentinel"
	"idregistry/pkg/requestcontext"
	"idregistry/pkg/secrets"
)

// scoreConcurrency bounds parallel quality-gate calls per capture attempt.
const scoreConcurrency = 4

// issueAttempts bounds internal retries when a generated identity number
// collides with one already issued.
const issueAttempts = 3

// Service orchestrates the registration lifecycle.
type Service struct {
	records store.RecordStore
	quality QualityScorer
	dedupe  Deduplicator
	audit   *auditEmitter
	metrics *regmetrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

type serviceConfig struct {
	logger    *slog.Logger
	metrics   *regmetrics.Metrics
	publisher AuditPublisher
}

// Option configures the Service.
type Option func(*serviceConfig)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *serviceConfig) { cfg.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *regmetrics.Metrics) Option {
	return func(cfg *serviceConfig) { cfg.metrics = m }
}

// WithAuditPublisher sets the audit sink.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(cfg *serviceConfig) { cfg.publisher = p }
}

// New constructs the state machine service.
func New(records store.RecordStore, qualityGate QualityScorer, deduplicator Deduplicator, opts ...Option) *Service {
	cfg := &serviceConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Service{
		records: records,
		quality: qualityGate,
		dedupe:  deduplicator,
		audit:   newAuditEmitter(cfg.logger, cfg.publisher),
		metrics: cfg.metrics,
		logger:  cfg.logger,
		tracer:  otel.Tracer("idregistry/registration"),
	}
}

// instrument opens a span and a latency observation for one command.
func (s *Service) instrument(ctx context.Context, command string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "registration."+command)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.ObserveCommand(command, time.Since(start))
	}
}

// translate maps store sentinels and model invariant errors to the caller
// error taxonomy. CAS conflicts and status mismatches both become
// precondition failures: the caller must refresh before retrying.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "registration not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodePreconditionFailed, "registration was modified concurrently, refresh and retry")
	case dErrors.HasCode(err, dErrors.CodeInvariantViolation):
		return dErrors.Wrap(err, dErrors.CodePreconditionFailed, dErrors.MessageOf(err))
	case dErrors.Coded(err):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "registration store failure")
	}
}

// RegisterInput carries the demographic intake payload.
type RegisterInput struct {
	FullName    string
	DateOfBirth string
	Address     string
}

// Register creates an intake record in pending_verification.
func (s *Service) Register(ctx context.Context, input RegisterInput) (record *models.Registration, err error) {
	ctx, done := s.instrument(ctx, "register")
	defer func() { done(err) }()

	record, err = models.NewRegistration(id.NewRegistrationID(), input.FullName, input.DateOfBirth, input.Address, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err = translate(s.records.Insert(ctx, record)); err != nil {
		return nil, err
	}

	s.audit.emit(ctx, audit.EventRegistrationCreated, record.ID, map[string]any{"status": record.Status})
	s.metrics.IncTransition(string(record.Status))
	return record, nil
}

// Approve moves a pending record to approved_for_biometric.
func (s *Service) Approve(ctx context.Context, registrationID id.RegistrationID) (record *models.Registration, err error) {
	ctx, done := s.instrument(ctx, "approve")
	defer func() { done(err) }()

	now := requestcontext.Now(ctx)
	record, err = s.records.UpdateIf(ctx, registrationID, models.StatusPendingVerification, func(r *models.Registration) error {
		if err := r.CanApprove(); err != nil {
			return err
		}
		r.ApplyApprove(now)
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	s.audit.emit(ctx, audit.EventApprovedForCapture, registrationID, map[string]any{"status": record.Status})
	s.metrics.IncTransition(string(record.Status))
	return record, nil
}

// RequestCorrection flags demographic fields for correction. Allowed from
// pending_verification and approved_for_biometric; the conditional update is
// anchored on the status observed at read time.
func (s *Service) RequestCorrection(ctx context.Context, registrationID id.RegistrationID, fields []string, note string) (record *models.Registration, err error) {
	ctx, done := s.instrument(ctx, "request_correction")
	defer func() { done(err) }()

	current, err := s.records.FindByID(ctx, registrationID)
	if err != nil {
		return nil, translate(err)
	}
	if err = current.CanRequestCorrection(fields); err != nil {
		return nil, translate(err)
	}

	now := requestcontext.Now(ctx)
	record, err = s.records.UpdateIf(ctx, registrationID, current.Status, func(r *models.Registration) error {
		if err := r.CanRequestCorrection(fields); err != nil {
			return err
		}
		r.ApplyRequestCorrection(fields, note, now)
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	s.audit.emit(ctx, audit.EventCorrectionRequested, registrationID, map[string]any{
		"fields": fields,
		"note":   note,
	})
	s.metrics.IncTransition(string(record.Status))
	return record, nil
}

// SubmitCorrection applies corrected demographics and returns the record to
// approved_for_biometric for re-evaluation.
func (s *Service) SubmitCorrection(ctx context.Context, registrationID id.RegistrationID, corrected map[string]string) (record *models.Registration, err error) {
	ctx, done := s.instrument(ctx, "submit_correction")
	defer func() { done(err) }()

	if len(corrected) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "corrected field map cannot be empty")
	}

	now := requestcontext.Now(ctx)
	record, err = s.records.UpdateIf(ctx, registrationID, models.StatusCorrectionRequested, func(r *models.Registration) error {
		if err := r.CanSubmitCorrection(); err != nil {
			return err
		}
		r.ApplySubmitCorrection(corrected, now)
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	s.audit.emit(ctx, audit.EventCorrectionSubmitted, registrationID, map[string]any{"status": record.Status})
	s.metrics.IncTransition(string(record.Status))
	return record, nil
}

// Reject moves any non-terminal record to the rejected terminal state.
func (s *Service) Reject(ctx context.Context, registrationID id.RegistrationID, reason string) (record *models.Registration, err error) {
	ctx, done := s.instrument(ctx, "reject")
	defer func() { done(err) }()

	current, err := s.records.FindByID(ctx, registrationID)
	if err != nil {
		return nil, translate(err)
	}
	if err = current.CanReject(reason); err != nil {
		return nil, translate(err)
	}

	now := requestcontext.Now(ctx)
	record, err = s.records.UpdateIf(ctx, registrationID, current.Status, func(r *models.Registration) error {
		if err := r.CanReject(reason); err != nil {
			return err
		}
		r.ApplyReject(reason, now)
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	s.audit.emit(ctx, audit.EventRegistrationRejected, registrationID, map[string]any{"reason": reason})
	s.metrics.IncTransition(string(record.Status))
	return record, nil
}

// Schedule books a capture appointment; the lifecycle status is unchanged.
func (s *Service) Schedule(ctx context.Context, registrationID id.RegistrationID, when time.Time) (record *models.Registration, err error) {
	ctx, done := s.instrument(ctx, "schedule")
	defer func() { done(err) }()

	now := requestcontext.Now(ctx)
	record, err = s.records.UpdateIf(ctx, registrationID, models.StatusApprovedForBiometric, func(r *models.Registration) error {
		if err := r.CanSchedule(when, now); err != nil {
			return err
		}
		r.ApplySchedule(when, now)
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	s.audit.emit(ctx, audit.EventCaptureScheduled, registrationID, map[string]any{"scheduled_at": when})
	return record, nil
}

// ResolveDuplicate commits an admin's verdict on a flagged duplicate.
func (s *Service) ResolveDuplicate(ctx context.Context, registrationID id.RegistrationID, decision models.ResolutionDecision, note string) (record *models.Registration, err error) {
	ctx, done := s.instrument(ctx, "resolve_duplicate")
	defer func() { done(err) }()

	now := requestcontext.Now(ctx)
	record, err = s.records.UpdateIf(ctx, registrationID, models.StatusFlaggedDuplicate, func(r *models.Registration) error {
		if err := r.CanResolveDuplicate(decision); err != nil {
			return err
		}
		r.ApplyResolveDuplicate(decision, note, now)
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	s.audit.emit(ctx, audit.EventDuplicateResolved, registrationID, map[string]any{
		"decision": decision,
		"note":     note,
		"status":   record.Status,
	})
	s.metrics.IncTransition(string(record.Status))
	return record, nil
}

// IssuedIdentity is the one-time issuance result. VerificationToken is the
// only copy of the plaintext token; the record stores just its hash.
type IssuedIdentity struct {
	Registration      *models.Registration
	VerificationToken string
}

// IssueIdentity assigns the identity number and verification token, moving
// the record into the irreversible active_verified state. The conditional
// update makes the command at-most-once under concurrent duplicate requests;
// the store's unique constraint turns number collisions into internal
// retries with a fresh number.
func (s *Service) IssueIdentity(ctx context.Context, registrationID id.RegistrationID) (issued *IssuedIdentity, err error) {
	ctx, done := s.instrument(ctx, "issue_identity")
	defer func() { done(err) }()

	now := requestcontext.Now(ctx)
	for attempt := 0; attempt < issueAttempts; attempt++ {
		number, genErr := newIdentityNumber()
		if genErr != nil {
			return nil, dErrors.Wrap(genErr, dErrors.CodeInternal, "identity number generation failed")
		}
		token, genErr := secrets.Generate()
		if genErr != nil {
			return nil, dErrors.Wrap(genErr, dErrors.CodeInternal, "verification token generation failed")
		}
		tokenHash, genErr := secrets.Hash(token)
		if genErr != nil {
			return nil, dErrors.Wrap(genErr, dErrors.CodeInternal, "verification token hashing failed")
		}

		record, updateErr := s.records.UpdateIf(ctx, registrationID, models.StatusBiometricsVerified, func(r *models.Registration) error {
			if err := r.CanIssueIdentity(); err != nil {
				return err
			}
			return r.ApplyIssueIdentity(number, tokenHash, now)
		})
		if updateErr != nil {
			if errors.Is(updateErr, sentinel.ErrAlreadyUsed) {
				s.metrics.IncIdentityCollision()
				s.logger.WarnContext(ctx, "identity number collision, retrying",
					"registration_id", registrationID.String(), "attempt", attempt+1)
				continue
			}
			return nil, translate(updateErr)
		}

		s.audit.emit(ctx, audit.EventIdentityIssued, registrationID, map[string]any{"status": record.Status})
		s.metrics.IncTransition(string(record.Status))
		s.metrics.IncIdentityIssued()
		return &IssuedIdentity{Registration: record, VerificationToken: token}, nil
	}

	err = dErrors.New(dErrors.CodeConflict, "could not allocate a unique identity number")
	return nil, err
}

// RegistrationDetail is the administrative read model: the record plus all
// of its persisted biometric samples.
type RegistrationDetail struct {
	Registration *models.Registration
	Biometrics   []models.BiometricRecord
}

// Get returns the full registration record for administrative review.
func (s *Service) Get(ctx context.Context, registrationID id.RegistrationID) (*RegistrationDetail, error) {
	record, err := s.records.FindByID(ctx, registrationID)
	if err != nil {
		return nil, translate(err)
	}
	biometrics, err := s.records.ListBiometrics(ctx, registrationID)
	if err != nil {
		return nil, translate(err)
	}
	return &RegistrationDetail{Registration: record, Biometrics: biometrics}, nil
}
