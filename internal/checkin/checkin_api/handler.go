package checkin_api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/audit"
	"ms-checkin/internal/auth"
	"ms-checkin/internal/checkin"
	"ms-checkin/internal/issuance"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/utils"
)

// Scanner is the check-in engine surface the handler needs.
type Scanner interface {
	Scan(ctx context.Context, rawCode, eventID string, operator models.Operator) checkin.Result
}

type StatsProvider interface {
	EventStats(ctx context.Context, eventID string) (*checkin.Stats, error)
}

type AuditReader interface {
	EntriesForEvent(ctx context.Context, eventID string, limit int) ([]models.ScanLog, error)
}

type TicketIssuer interface {
	IssueTicket(ctx context.Context, eventID, email, zone, seat string) (*issuance.IssuedTicket, error)
}

type Handler struct {
	Engine      Scanner
	Stats       StatsProvider
	Audit       AuditReader
	Issuer      TicketIssuer
	Logger      *logger.Logger
	ScanTimeout time.Duration
}

// CheckIn handles POST /events/{eventID}/checkin.
// Body: {"code": "<scanned string>"}. Operator identity comes from the auth
// middleware.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("event id is required", "missing eventID path parameter"))
		return
	}

	operator, ok := auth.OperatorFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, utils.ErrorResponse("operator identity required", "no authenticated operator"))
		return
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}
	if body.Code == "" {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("code is required", "empty scan payload"))
		return
	}

	// Bound the storage round trip; a scan that cannot confirm in time comes
	// back as an internal error, never as an admission.
	ctx := r.Context()
	if h.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.ScanTimeout)
		defer cancel()
	}

	result := h.Engine.Scan(ctx, body.Code, eventID, operator)

	if h.Logger != nil {
		h.Logger.LogScan(string(result.Status), eventID, result.Message)
	}

	if result.Status == checkin.StatusInvalid {
		writeJSON(w, http.StatusOK, utils.ErrorResponseWithData(result.Message, result))
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse(result.Message, result))
}

// Attendance handles GET /events/{eventID}/attendance.
func (h *Handler) Attendance(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("event id is required", "missing eventID path parameter"))
		return
	}

	stats, err := h.Stats.EventStats(r.Context(), eventID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, utils.ErrorResponse("failed to load attendance stats", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("attendance stats", stats))
}

// ScanLog handles GET /events/{eventID}/scans?limit=N.
func (h *Handler) ScanLog(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("event id is required", "missing eventID path parameter"))
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid limit", "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	entries, err := h.Audit.EntriesForEvent(r.Context(), eventID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to load scan log", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("scan log", entries))
}

// IssueTicket handles POST /events/{eventID}/tickets.
// Body: {"email": "...", "zone": "...", "seat": "..."}.
func (h *Handler) IssueTicket(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("event id is required", "missing eventID path parameter"))
		return
	}

	var body struct {
		Email string `json:"email"`
		Zone  string `json:"zone"`
		Seat  string `json:"seat"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}

	issued, err := h.Issuer.IssueTicket(r.Context(), eventID, body.Email, body.Zone, body.Seat)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, utils.ErrorResponse("failed to issue ticket", err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("ticket issued", issued))
}

// Routes mounts the handler under /events/{eventID}.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/events/{eventID}", func(r chi.Router) {
		r.Post("/checkin", h.CheckIn)
		r.Get("/attendance", h.Attendance)
		r.Get("/scans", h.ScanLog)
		r.Post("/tickets", h.IssueTicket)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

var _ Scanner = (*checkin.Engine)(nil)
var _ StatsProvider = (*checkin.StatsService)(nil)
var _ AuditReader = (*audit.Trail)(nil)
var _ TicketIssuer = (*issuance.Service)(nil)
