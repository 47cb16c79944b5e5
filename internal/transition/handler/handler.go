// Package handler exposes the transition engine over HTTP: session
// reads for authenticated users and the ops surface (routing config,
// kill switch, breaker health) for admins.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"meridian/internal/timezone"
	"meridian/internal/transition"
	dErrors "meridian/pkg/domain-errors"
	"meridian/pkg/platform/httputil"
	"meridian/pkg/platform/middleware/admin"
	"meridian/pkg/platform/middleware/auth"
	"meridian/pkg/requestcontext"
)

// Handler handles session query and transition ops endpoints.
type Handler struct {
	logger         *slog.Logger
	engine         *transition.Service
	tz             *timezone.Service
	validator      auth.TokenValidator
	adminTokenHash string
}

// New creates the transition Handler.
func New(
	engine *transition.Service,
	tz *timezone.Service,
	validator auth.TokenValidator,
	adminTokenHash string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		logger:         logger,
		engine:         engine,
		tz:             tz,
		validator:      validator,
		adminTokenHash: adminTokenHash,
	}
}

// Register mounts the session and ops routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.validator, h.logger))
		r.Get("/v1/sessions", h.handleSessions)
		r.Get("/v1/sessions/today", h.handleTodaySessions)
		r.Get("/v1/timezone/context", h.handleTimezoneContext)
	})

	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(h.adminTokenHash, h.logger))
		r.Get("/v1/transition/config", h.handleGetConfig)
		r.Patch("/v1/transition/config", h.handleUpdateConfig)
		r.Post("/v1/transition/emergency-disable", h.handleEmergencyDisable)
		r.Post("/v1/transition/emergency-reset", h.handleEmergencyReset)
		r.Get("/v1/transition/health", h.handleHealth)
	})
}

// handleSessions serves GET /v1/sessions?start=&end=&timezone=&order=&subjects=.
func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query, err := sessionQueryFromRequest(r)
	if err != nil {
		h.logger.WarnContext(ctx, "rejecting session query",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	result, err := h.engine.SessionsForDateRange(ctx, query)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// handleTodaySessions serves GET /v1/sessions/today. "Today" is
// resolved in the user's zone, not the server's.
func (h *Handler) handleTodaySessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := requestcontext.UserID(ctx)
	if userID.IsZero() {
		h.logger.ErrorContext(ctx, "user id missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	order, err := transition.ParseSortOrder(r.URL.Query().Get("order"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.engine.TodaySessions(ctx, userID, declaredTimezone(r), order)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// handleTimezoneContext serves GET /v1/timezone/context?timezone=.
// Provenance is derived from the calling client: the capture extension
// and browsers are told apart by User-Agent.
func (h *Handler) handleTimezoneContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	prov := timezone.ProvenanceFromUserAgent(requestcontext.UserAgent(ctx))
	snapshot := h.tz.Snapshot(ctx, declaredTimezone(r), prov)
	httputil.WriteJSON(w, http.StatusOK, snapshot)
}

// handleGetConfig serves GET /v1/transition/config.
func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.engine.Config())
}

// handleUpdateConfig serves PATCH /v1/transition/config. Body fields
// are optional; missing fields keep their current value.
func (h *Handler) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[updateConfigRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	cfg := h.engine.UpdateConfig(ctx, req.update())
	h.logger.InfoContext(ctx, "transition config updated via ops endpoint",
		"request_id", requestID,
		"prefer_utc", cfg.PreferUTC,
		"fallback_to_legacy", cfg.FallbackToLegacy,
	)
	httputil.WriteJSON(w, http.StatusOK, cfg)
}

// handleEmergencyDisable serves POST /v1/transition/emergency-disable.
// Takes effect for every user immediately.
func (h *Handler) handleEmergencyDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[emergencyDisableRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	h.engine.EmergencyDisable(ctx, req.Reason)
	h.logger.WarnContext(ctx, "transition emergency-disabled via ops endpoint",
		"request_id", requestID,
		"reason", req.Reason,
	)
	w.WriteHeader(http.StatusNoContent)
}

// handleEmergencyReset serves POST /v1/transition/emergency-reset. The
// reset clears the kill switch and returns the source breakers to
// baseline.
func (h *Handler) handleEmergencyReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	h.engine.ResetEmergencyState(ctx)
	h.logger.InfoContext(ctx, "transition emergency state reset via ops endpoint",
		"request_id", requestcontext.RequestID(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth serves GET /v1/transition/health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, healthResponse{
		Health:   h.engine.Health(),
		Statuses: h.engine.BreakerStatuses(),
	})
}

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	if dErrors.HasCode(err, dErrors.CodeInvalidInput) || dErrors.HasCode(err, dErrors.CodeBadRequest) {
		h.logger.WarnContext(ctx, "invalid session query",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.ErrorContext(ctx, "session query failed",
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
