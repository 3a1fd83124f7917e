// Package handler exposes the registration lifecycle over HTTP. Every
// endpoint decodes and validates its body, parses the path ID, delegates to
// the service and maps coded errors onto status codes through httputil.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"idregistry/internal/registration/models"
	"idregistry/internal/registration/service"
	id "idregistry/pkg/domain"
	"idregistry/pkg/platform/httputil"
	"idregistry/pkg/requestcontext"
)

// Service defines the interface for registration lifecycle operations.
type Service interface {
	Register(ctx context.Context, input service.RegisterInput) (*models.Registration, error)
	Get(ctx context.Context, registrationID id.RegistrationID) (*service.RegistrationDetail, error)
	Approve(ctx context.Context, registrationID id.RegistrationID) (*models.Registration, error)
	RequestCorrection(ctx context.Context, registrationID id.RegistrationID, fields []string, note string) (*models.Registration, error)
	SubmitCorrection(ctx context.Context, registrationID id.RegistrationID, corrected map[string]string) (*models.Registration, error)
	Reject(ctx context.Context, registrationID id.RegistrationID, reason string) (*models.Registration, error)
	Schedule(ctx context.Context, registrationID id.RegistrationID, when time.Time) (*models.Registration, error)
	SubmitCapture(ctx context.Context, registrationID id.RegistrationID, samples models.SampleSet) (*service.CaptureResult, error)
	ResolveDuplicate(ctx context.Context, registrationID id.RegistrationID, decision models.ResolutionDecision, note string) (*models.Registration, error)
	IssueIdentity(ctx context.Context, registrationID id.RegistrationID) (*service.IssuedIdentity, error)
}

// Handler wires registration endpoints to the lifecycle service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a registration handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts registration endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/registrations", h.HandleRegister)
	r.Route("/registrations/{registrationID}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Post("/approve", h.HandleApprove)
		r.Post("/corrections", h.HandleRequestCorrection)
		r.Post("/corrections/submit", h.HandleSubmitCorrection)
		r.Post("/reject", h.HandleReject)
		r.Post("/schedule", h.HandleSchedule)
		r.Post("/biometrics", h.HandleSubmitCapture)
		r.Post("/duplicate-resolution", h.HandleResolveDuplicate)
		r.Post("/identity", h.HandleIssueIdentity)
	})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (id.RegistrationID, bool) {
	registrationID, err := id.ParseRegistrationID(chi.URLParam(r, "registrationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.RegistrationID{}, false
	}
	return registrationID, true
}

// HandleRegister handles POST /registrations requests.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.Register(ctx, service.RegisterInput{
		FullName:    req.FullName,
		DateOfBirth: req.DateOfBirth,
		Address:     req.Address,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "registration intake failed",
			"request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "registration created",
		"request_id", requestID, "registration_id", record.ID.String())
	httputil.WriteJSON(w, http.StatusCreated, FromRegistration(record))
}

// HandleGet handles GET /registrations/{registrationID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	registrationID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	detail, err := h.service.Get(ctx, registrationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDetail(detail))
}

// HandleApprove handles POST /registrations/{registrationID}/approve requests.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	registrationID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	record, err := h.service.Approve(ctx, registrationID)
	if err != nil {
		h.logger.WarnContext(ctx, "approval failed",
			"request_id", requestID, "registration_id", registrationID.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "registration approved for capture",
		"request_id", requestID, "registration_id", registrationID.String())
	httputil.WriteJSON(w, http.StatusOK, FromRegistration(record))
}

// HandleRequestCorrection handles POST /registrations/{registrationID}/corrections requests.
func (h *Handler) HandleRequestCorrection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	registrationID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RequestCorrectionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.RequestCorrection(ctx, registrationID, req.Fields, req.Note)
	if err != nil {
		h.logger.WarnContext(ctx, "correction request failed",
			"request_id", requestID, "registration_id", registrationID.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "correction requested",
		"request_id", requestID, "registration_id", registrationID.String(), "fields", req.Fields)
	httputil.WriteJSON(w, http.StatusOK, FromRegistration(record))
}

// HandleSubmitCorrection handles POST /registrations/{registrationID}/corrections/submit requests.
func (h *Handler) HandleSubmitCorrection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	registrationID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SubmitCorrectionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.SubmitCorrection(ctx, registrationID, req.Corrected)
	if err != nil {
		h.logger.WarnContext(ctx, "correction submission failed",
			"request_id", requestID, "registration_id", registrationID.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "correction submitted",
		"request_id", requestID, "registration_id", registrationID.String())
	httputil.WriteJSON(w, http.StatusOK, FromRegistration(record))
}

// HandleReject handles POST /registrations/{registrationID}/reject requests.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	registrationID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RejectRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.Reject(ctx, registrationID, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "rejection failed",
			"request_id", requestID, "registration_id", registrationID.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "registration rejected",
		"request_id", requestID, "registration_id", registrationID.String())
	httputil.WriteJSON(w, http.StatusOK, FromRegistration(record))
}

// HandleSchedule handles POST /registrations/{registrationID}/schedule requests.
func (h *Handler) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	registrationID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ScheduleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.Schedule(ctx, registrationID, req.ScheduledAt)
	if err != nil {
		h.logger.WarnContext(ctx, "capture scheduling failed",
			"request_id", requestID, "registration_id", registrationID.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "capture scheduled",
		"request_id", requestID, "registration_id", registrationID.String(),
		"scheduled_at", req.ScheduledAt)
	httputil.WriteJSON(w, http.StatusOK, FromRegistration(record))
}

// HandleSubmitCapture handles POST /registrations/{registrationID}/biometrics requests.
func (h *Handler) HandleSubmitCapture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	registrationID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CaptureRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.SubmitCapture(ctx, registrationID, req.Samples)
	if err != nil {
		h.logger.WarnContext(ctx, "capture submission failed",
			"request_id", requestID, "registration_id", registrationID.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "capture submitted",
		"request_id", requestID,
		"registration_id", registrationID.String(),
		"status", result.Registration.Status,
		"biometric_status", result.Registration.BiometricStatus,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromCaptureResult(result))
}

// HandleResolveDuplicate handles POST /registrations/{registrationID}/duplicate-resolution requests.
func (h *Handler) HandleResolveDuplicate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	registrationID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ResolveDuplicateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.ResolveDuplicate(ctx, registrationID, req.ParsedDecision(), req.Note)
	if err != nil {
		h.logger.WarnContext(ctx, "duplicate resolution failed",
			"request_id", requestID, "registration_id", registrationID.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "duplicate resolved",
		"request_id", requestID, "registration_id", registrationID.String(),
		"decision", req.Decision, "status", record.Status)
	httputil.WriteJSON(w, http.StatusOK, FromRegistration(record))
}

// HandleIssueIdentity handles POST /registrations/{registrationID}/identity requests.
func (h *Handler) HandleIssueIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	registrationID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	issued, err := h.service.IssueIdentity(ctx, registrationID)
	if err != nil {
		h.logger.WarnContext(ctx, "identity issuance failed",
			"request_id", requestID, "registration_id", registrationID.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "identity issued",
		"request_id", requestID, "registration_id", registrationID.String())
	httputil.WriteJSON(w, http.StatusOK, FromIssuedIdentity(issued))
}
