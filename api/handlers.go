/*
handlers.go - HTTP API handlers for the schedule engine

PURPOSE:
  Exposes schedule generation via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the schedule service.

ENDPOINTS:
  Schedules:
    POST   /api/schedules/preview        Generate without storing
    POST   /api/schedules                Generate and store the next version
    POST   /api/schedules/prepayment     Amount closing a loan on a date
    GET    /api/schedules/{id}           Stored schedule by ID

  Loans:
    GET    /api/loans/{ref}/schedule     Latest schedule version
    GET    /api/loans/{ref}/schedules    Every schedule version

  Presets:
    GET    /api/presets                  List preset loans
    POST   /api/presets/{id}/preview     Generate a preset

  Holidays:
    GET    /api/holidays                 List holidays (?office_id=)
    POST   /api/holidays                 Create holiday
    POST   /api/holidays/defaults        Add common recurring holidays
    DELETE /api/holidays/{id}            Delete holiday

  Admin:
    POST   /api/admin/rederive           Re-derive stale schedules now

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Service: Generation, persistence and events
  - Holidays: Holiday administration
  - Factory: JSON to loan terms conversion
  - Rederiver: Stale schedule sweep shared with the background scheduler

HOLIDAYS AND STALENESS:
  Every holiday change marks the schedules of the affected office stale.
  A global holiday (empty office) marks every loan stale.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid terms, unsupported strategy, malformed input
  - 404: Schedule or holiday not found
  - 409: Schedule version already stored
  - 422: Tranche exceeds the maximum outstanding amount
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Background re-derivation
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/schedule-engine/factory"
	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/schedule"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// HolidayStore is the holiday administration surface of a store.
type HolidayStore interface {
	SaveHoliday(ctx context.Context, h generic.Holiday) error
	DeleteHoliday(ctx context.Context, id string) (*generic.Holiday, error)
	ListHolidays(ctx context.Context, officeID string) ([]generic.Holiday, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *schedule.Service
	Holidays  HolidayStore
	Factory   *factory.LoanFactory
	Rederiver *RederiveScheduler
	Logger    *slog.Logger
}

// NewHandler creates a handler with a default rederiver. Replace it with
// the background scheduler so both share batch size and metrics.
func NewHandler(svc *schedule.Service, holidays HolidayStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	f := factory.NewLoanFactory()
	return &Handler{
		Service:   svc,
		Holidays:  holidays,
		Factory:   f,
		Rederiver: NewRederiveScheduler(svc, f, logger),
		Logger:    logger,
	}
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// PreviewSchedule generates a schedule without storing it.
// POST /api/schedules/preview
func (h *Handler) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	genReq, err := h.toServiceRequest(req.LoanRef, req.Strategy, req.Terms)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	model, err := h.Service.Preview(r.Context(), genReq)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(model))
}

// CreateSchedule generates a schedule and stores it as the next version
// of the loan.
// POST /api/schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.LoanRef == "" {
		writeError(w, http.StatusBadRequest, "loan_ref is required", nil)
		return
	}

	genReq, err := h.toServiceRequest(req.LoanRef, req.Strategy, req.Terms)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rec, err := h.Service.Generate(r.Context(), genReq)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordDTO(rec))
}

// Prepayment returns the amounts that close the loan on a date.
// POST /api/schedules/prepayment
func (h *Handler) Prepayment(w http.ResponseWriter, r *http.Request) {
	var req PrepaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	onDate, err := generic.ParseDate(req.OnDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid on_date (use YYYY-MM-DD)", err)
		return
	}

	genReq, err := h.toServiceRequest("", req.Strategy, req.Terms)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	amounts, err := h.Service.Prepayment(r.Context(), genReq, onDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutstandingDTO(amounts))
}

// GetSchedule returns a stored schedule by ID.
// GET /api/schedules/{id}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule ID", err)
		return
	}

	rec, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// GetLatestSchedule returns the current schedule version of a loan.
// GET /api/loans/{ref}/schedule
func (h *Handler) GetLatestSchedule(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.Latest(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// GetScheduleHistory returns every schedule version of a loan, oldest first.
// GET /api/loans/{ref}/schedules
func (h *Handler) GetScheduleHistory(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	records, err := h.Service.History(r.Context(), ref)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("No schedules for loan %s", ref), generic.ErrScheduleNotFound)
		return
	}

	dtos := make([]RecordDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, toRecordDTO(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"loan_ref": ref, "versions": dtos})
}

// toServiceRequest parses terms and captures their normalized document,
// which is stored with the schedule for later re-derivation.
func (h *Handler) toServiceRequest(loanRef, strategy string, lj factory.LoanJSON) (schedule.GenerateRequest, error) {
	parsed, err := schedule.ParseStrategy(strategy)
	if err != nil {
		return schedule.GenerateRequest{}, err
	}
	terms, err := h.Factory.FromJSON(lj)
	if err != nil {
		return schedule.GenerateRequest{}, err
	}
	config, err := h.Factory.MarshalTerms(terms)
	if err != nil {
		return schedule.GenerateRequest{}, fmt.Errorf("encode terms: %w", err)
	}
	return schedule.GenerateRequest{
		LoanRef:  loanRef,
		Strategy: parsed,
		Terms:    terms,
		Config:   config,
	}, nil
}

// =============================================================================
// PRESET HANDLERS
// =============================================================================

// ListPresets returns the preset loan catalogue.
// GET /api/presets
func (h *Handler) ListPresets(w http.ResponseWriter, r *http.Request) {
	presets := factory.Presets()
	dtos := make([]PresetDTO, 0, len(presets))
	for _, p := range presets {
		dtos = append(dtos, PresetDTO{ID: p.ID, Name: p.Name, Description: p.Description, Strategy: p.Strategy})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PreviewPreset generates the schedule of a preset loan.
// POST /api/presets/{id}/preview
func (h *Handler) PreviewPreset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := factory.LookupPreset(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Preset %s not found", id), nil)
		return
	}

	terms, err := h.Factory.ParseTerms(p.JSON)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	strategy, err := schedule.ParseStrategy(p.Strategy)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	model, err := h.Service.Preview(r.Context(), schedule.GenerateRequest{
		LoanRef:  "preset-" + p.ID,
		Strategy: strategy,
		Terms:    terms,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"preset":   PresetDTO{ID: p.ID, Name: p.Name, Description: p.Description, Strategy: p.Strategy},
		"schedule": toScheduleDTO(model),
	})
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns the holidays visible to an office.
// GET /api/holidays
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	officeID := r.URL.Query().Get("office_id")

	holidays, err := h.Holidays.ListHolidays(r.Context(), officeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get holidays", err)
		return
	}

	dtos := make([]HolidayDTO, 0, len(holidays))
	for _, hol := range holidays {
		dtos = append(dtos, toHolidayDTO(hol))
	}
	writeJSON(w, http.StatusOK, map[string]any{"holidays": dtos})
}

// CreateHoliday creates a holiday and marks affected schedules stale.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateHolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Date == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "Date and name are required", nil)
		return
	}

	date, err := generic.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	holiday := generic.Holiday{
		ID:        uuid.NewString(),
		OfficeID:  req.OfficeID,
		Date:      date,
		Name:      req.Name,
		Recurring: req.Recurring,
	}
	if err := h.Holidays.SaveHoliday(ctx, holiday); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create holiday", err)
		return
	}

	stale, err := h.Service.MarkStale(ctx, holiday.OfficeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Holiday created but schedules not marked stale", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"holiday":     toHolidayDTO(holiday),
		"stale_loans": stale,
	})
}

// DeleteHoliday deletes a holiday and marks affected schedules stale.
// DELETE /api/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	removed, err := h.Holidays.DeleteHoliday(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	stale, err := h.Service.MarkStale(ctx, removed.OfficeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Holiday deleted but schedules not marked stale", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "stale_loans": stale})
}

// AddDefaultHolidays adds common recurring holidays for an office.
// POST /api/holidays/defaults
func (h *Handler) AddDefaultHolidays(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		OfficeID string `json:"office_id"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	defaults := []struct {
		month time.Month
		day   int
		name  string
	}{
		{time.January, 1, "New Year's Day"},
		{time.July, 4, "Independence Day"},
		{time.December, 25, "Christmas Day"},
		{time.December, 31, "New Year's Eve"},
	}

	year := generic.Today().Year()
	for _, d := range defaults {
		holiday := generic.Holiday{
			ID:        fmt.Sprintf("holiday-%s-%02d%02d", req.OfficeID, int(d.month), d.day),
			OfficeID:  req.OfficeID,
			Date:      generic.NewTimePoint(year, d.month, d.day),
			Name:      d.name,
			Recurring: true,
		}
		if err := h.Holidays.SaveHoliday(ctx, holiday); err != nil && !generic.IsConflict(err) {
			writeError(w, http.StatusInternalServerError, "Failed to create holiday", err)
			return
		}
	}

	stale, err := h.Service.MarkStale(ctx, req.OfficeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Holidays created but schedules not marked stale", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":      "created",
		"count":       len(defaults),
		"stale_loans": stale,
	})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerRederive re-derives stale schedules immediately.
// POST /api/admin/rederive
func (h *Handler) TriggerRederive(w http.ResponseWriter, r *http.Request) {
	result, err := h.Rederiver.RunNow(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to re-derive schedules", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine and store errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error(), Code: errorCode(err)}

	var detail *generic.ValidationErrorDetail
	if errors.As(err, &detail) {
		resp.Field = detail.Field
	}
	var capErr *generic.CapExceededError
	if errors.As(err, &capErr) {
		resp.Details = map[string]string{
			"cap":     capErr.Cap.String(),
			"tranche": capErr.Amount.String(),
			"date":    capErr.Date.String(),
		}
	}
	var emiErr *generic.InstallmentBelowInterestError
	if errors.As(err, &emiErr) {
		resp.Details = map[string]string{
			"installment": emiErr.Installment.String(),
			"interest":    emiErr.Interest.String(),
			"due":         emiErr.Due.String(),
		}
	}
	writeJSON(w, statusFor(err), resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrCapExceeded):
		return http.StatusUnprocessableEntity
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, generic.ErrCapExceeded):
		return "cap_exceeded"
	case errors.Is(err, generic.ErrInstallmentBelowInterest):
		return "installment_below_interest"
	case errors.Is(err, generic.ErrUnsupportedStrategy):
		return "unsupported_strategy"
	case errors.Is(err, generic.ErrInvalidTerms):
		return "invalid_terms"
	case errors.Is(err, generic.ErrInvalidPeriod):
		return "invalid_period"
	case errors.Is(err, generic.ErrUnboundedSchedule):
		return "unbounded_schedule"
	case errors.Is(err, generic.ErrScheduleNotFound):
		return "schedule_not_found"
	case errors.Is(err, generic.ErrHolidayNotFound):
		return "holiday_not_found"
	case errors.Is(err, generic.ErrScheduleExists):
		return "schedule_exists"
	default:
		return "internal"
	}
}
