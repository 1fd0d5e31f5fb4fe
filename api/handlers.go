/*
handlers.go - HTTP API handlers for the planning engine

PURPOSE:
  Exposes the rule catalog, the leave counter, the rule evaluator, the
  fatigue ledger and the scoring aggregator via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Leave:
    POST   /api/leave/count               Count the days a leave consumes

  Rules:
    POST   /api/rules/evaluate            Evaluate a fact against a category

  Fatigue:
    POST   /api/fatigue/events            Record one fatigue event
    POST   /api/fatigue/assignments       Record the accruals of an assignment
    GET    /api/fatigue/{personId}        Score and level (?asOf=)
    GET    /api/fatigue/{personId}/entries Audit trail

  Scores:
    POST   /api/scores                    Score one candidate
    POST   /api/scores/rank               Rank candidates, best first

  Catalog:
    GET    /api/catalog                   Catalog in force
    PUT    /api/catalog                   Validate and hot-swap a catalog

  Holidays:
    GET    /api/holidays                  List site holidays
    POST   /api/holidays                  Create or replace a holiday
    POST   /api/holidays/french           Store the French holidays of a year
    DELETE /api/holidays/{id}             Delete a holiday

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 422: Rejected catalog, with one problem per finding
  - 500: Internal errors

  A rule that cannot be evaluated is NOT an HTTP error: it is listed in
  the report's errors and the other rules still run.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/planning-engine/catalog"
	"github.com/warp/planning-engine/fatigue"
	"github.com/warp/planning-engine/generic"
	"github.com/warp/planning-engine/leave"
	"github.com/warp/planning-engine/rules"
	"github.com/warp/planning-engine/scoring"
)

// maxCatalogBytes bounds PUT /api/catalog bodies.
const maxCatalogBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	catalog   *catalog.Holder
	ledger    *fatigue.Ledger
	evaluator *rules.Evaluator
	scorer    *scoring.Aggregator
	holidays  generic.HolidayStore
	validate  *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

type Option func(*Handler)

func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler) { h.logger = logger.With().Str("component", "api").Logger() }
}

// WithClock replaces time.Now for requests without asOf.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler wires the evaluator and the scorer on top of the catalog
// holder and the ledger, so that every component reads the same catalog.
func NewHandler(holder *catalog.Holder, ledger *fatigue.Ledger, holidays generic.HolidayStore, opts ...Option) *Handler {
	h := &Handler{
		catalog:  holder,
		ledger:   ledger,
		holidays: holidays,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.evaluator = rules.NewEvaluator(holder, ledger, rules.WithLogger(h.logger))
	h.scorer = scoring.New(holder, ledger, scoring.WithLogger(h.logger))
	return h
}

// =============================================================================
// LEAVE ENDPOINTS
// =============================================================================

// CountLeave returns the number of days a leave consumes.
// POST /api/leave/count
func (h *Handler) CountLeave(w http.ResponseWriter, r *http.Request) {
	var req CountLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}
	calendar, err := h.calendar(r.Context(), req.FrenchHolidays, req.Start, req.End)
	if err != nil {
		h.fail(w, err)
		return
	}

	days, err := leave.Count(leave.Request{
		Start:         req.Start,
		End:           req.End,
		Method:        leave.Method(req.Method),
		HalfDays:      req.HalfDays,
		AllowHalfDays: req.AllowHalfDays,
	}, calendar, req.Schedule.Schedule())
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CountLeaveResponse{
		Start:  req.Start,
		End:    req.End,
		Method: req.Method,
		Days:   days,
	})
}

// =============================================================================
// RULE ENDPOINTS
// =============================================================================

// Evaluate checks a fact against every active rule of a category.
// POST /api/rules/evaluate
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !h.decode(w, r, &req) {
		return
	}

	env, err := h.evaluationContext(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	report, err := h.evaluator.Evaluate(r.Context(), req.Category, req.Fact, env)
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, EvaluateResponse{Blocking: report.Blocking(), Report: report})
}

func (h *Handler) evaluationContext(ctx context.Context, req EvaluateRequest) (rules.Context, error) {
	in := req.Context
	env := rules.Context{
		History:       in.History,
		Leaves:        in.Leaves,
		RoleHeadcount: in.RoleHeadcount,
		Roles:         in.Roles,
		AsOf:          in.AsOf,
	}
	if in.LeaveUsage != nil {
		env.LeaveUsage = make(map[rules.UsageKey]decimal.Decimal, len(in.LeaveUsage))
		for _, u := range in.LeaveUsage {
			key := rules.UsageKey{PersonID: u.PersonID, LeaveType: u.LeaveType}
			env.LeaveUsage[key] = env.LeaveUsage[key].Add(u.Days)
		}
	}
	if len(in.Schedules) > 0 {
		env.Schedules = make(map[string]generic.WorkSchedule, len(in.Schedules))
		for person, s := range in.Schedules {
			env.Schedules[person] = s.Schedule()
		}
	}

	var points []generic.TimePoint
	if a := req.Fact.Assignment; a != nil {
		points = append(points, a.Date)
	}
	if l := req.Fact.Leave; l != nil {
		points = append(points, l.Start, l.End)
	}
	for _, l := range in.Leaves {
		points = append(points, l.Start, l.End)
	}
	calendar, err := h.calendar(ctx, in.FrenchHolidays, points...)
	if err != nil {
		return rules.Context{}, err
	}
	env.Holidays = calendar
	return env, nil
}

// =============================================================================
// FATIGUE ENDPOINTS
// =============================================================================

// RecordEvent appends one event to a person's ledger.
// POST /api/fatigue/events
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req RecordEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.ledger.RecordEvent(r.Context(), req.PersonID, req.Kind, req.At)
	if err != nil {
		h.fail(w, err)
		return
	}
	if entry.ID == "" {
		writeJSON(w, http.StatusOK, RecordEventResponse{Recorded: false})
		return
	}
	writeJSON(w, http.StatusCreated, RecordEventResponse{Recorded: true, Entry: &entry})
}

// RecordAssignment records the accruals of a finalized assignment.
// POST /api/fatigue/assignments
func (h *Handler) RecordAssignment(w http.ResponseWriter, r *http.Request) {
	var a rules.Assignment
	if !h.decode(w, r, &a) {
		return
	}
	if a.Date.IsZero() {
		writeError(w, http.StatusBadRequest, "Validation failed", errors.New("date is required"))
		return
	}

	entries, err := rules.RecordAssignment(r.Context(), h.ledger, a, h.catalog.Current().Topology)
	if err != nil {
		h.fail(w, err)
		return
	}
	if entries == nil {
		entries = []generic.FatigueEntry{}
	}
	writeJSON(w, http.StatusCreated, RecordAssignmentResponse{Entries: entries})
}

// GetFatigue returns a person's score and level.
// GET /api/fatigue/{personId}?asOf=2025-03-01
func (h *Handler) GetFatigue(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personId")
	asOf, err := h.asOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid asOf", err)
		return
	}

	score, err := h.ledger.CurrentScore(r.Context(), personID, asOf)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FatigueScoreResponse{
		PersonID: personID,
		AsOf:     asOf,
		Score:    score,
		Level:    h.ledger.Classify(score),
	})
}

// GetFatigueEntries returns a person's audit trail, oldest first.
// GET /api/fatigue/{personId}/entries
func (h *Handler) GetFatigueEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.Entries(r.Context(), chi.URLParam(r, "personId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if entries == nil {
		entries = []generic.FatigueEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// =============================================================================
// SCORING ENDPOINTS
// =============================================================================

// Score computes the planning score of one candidate.
// POST /api/scores
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if !h.decode(w, r, &req) {
		return
	}
	asOf := h.orNow(req.AsOf)

	score, err := h.scorer.Score(r.Context(), req.EquityDeviation, req.PersonID, asOf)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScoreResponse{PersonID: req.PersonID, AsOf: asOf, Score: score})
}

// Rank orders candidates by ascending score.
// POST /api/scores/rank
func (h *Handler) Rank(w http.ResponseWriter, r *http.Request) {
	var req RankRequest
	if !h.decode(w, r, &req) {
		return
	}
	asOf := h.orNow(req.AsOf)

	ranking, err := h.scorer.Rank(r.Context(), req.Candidates, asOf)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RankResponse{AsOf: asOf, Ranking: ranking})
}

// =============================================================================
// CATALOG ENDPOINTS
// =============================================================================

// GetCatalog returns the catalog in force.
// GET /api/catalog
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CatalogResponse{
		Generation: h.catalog.Generation(),
		Catalog:    h.catalog.Current(),
	})
}

// ReloadCatalog validates a YAML (or JSON) catalog and swaps it in. A
// rejected catalog leaves the previous one in force.
// PUT /api/catalog
func (h *Handler) ReloadCatalog(w http.ResponseWriter, r *http.Request) {
	source, err := io.ReadAll(io.LimitReader(r.Body, maxCatalogBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read body", err)
		return
	}

	c, err := h.catalog.Reload(source)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CatalogResponse{Generation: h.catalog.Generation(), Catalog: c})
}

// =============================================================================
// HOLIDAY ENDPOINTS
// =============================================================================

// ListHolidays returns all stored holidays.
// GET /api/holidays
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.holidays.ListHolidays(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if holidays == nil {
		holidays = []generic.Holiday{}
	}
	writeJSON(w, http.StatusOK, HolidaysResponse{Holidays: holidays})
}

// CreateHoliday stores a holiday. The store assigns an ID when none is given.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req HolidayRequest
	if !h.decode(w, r, &req) {
		return
	}

	holiday := generic.Holiday{
		Date:      req.Date,
		Name:      req.Name,
		Recurring: req.Recurring,
		RRule:     req.RRule,
	}
	if err := h.holidays.SaveHoliday(r.Context(), holiday); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

// AddFrenchHolidays stores the eleven statutory French holidays of a year.
// Saving twice replaces them, IDs being derived from the date.
// POST /api/holidays/french
func (h *Handler) AddFrenchHolidays(w http.ResponseWriter, r *http.Request) {
	var req FrenchHolidaysRequest
	if !h.decode(w, r, &req) {
		return
	}

	holidays := generic.FrenchPublicHolidays(req.Year)
	for _, holiday := range holidays {
		if err := h.holidays.SaveHoliday(r.Context(), holiday); err != nil {
			h.fail(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "created",
		"count":  len(holidays),
	})
}

// DeleteHoliday removes a holiday.
// DELETE /api/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.holidays.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

// calendar returns the stored holidays, plus the French statutory
// holidays of every year spanned by points when french is set.
func (h *Handler) calendar(ctx context.Context, french bool, points ...generic.TimePoint) (generic.HolidayCalendar, error) {
	var base generic.HolidayCalendar = generic.NoHolidays{}
	if h.holidays != nil {
		stored, err := h.holidays.Calendar(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load holidays: %w", err)
		}
		base = stored
	}
	if !french || len(points) == 0 {
		return base, nil
	}

	first, last := 0, 0
	for _, p := range points {
		if p.IsZero() {
			continue
		}
		if first == 0 || p.Year() < first {
			first = p.Year()
		}
		if p.Year() > last {
			last = p.Year()
		}
	}
	if first == 0 {
		return base, nil
	}

	var statutory []generic.Holiday
	for year := first; year <= last; year++ {
		statutory = append(statutory, generic.FrenchPublicHolidays(year)...)
	}
	set, err := generic.NewHolidaySet(statutory...)
	if err != nil {
		return nil, err
	}
	return generic.MultiCalendar{base, set}, nil
}

// asOf reads the asOf query parameter (date or RFC3339). A bare date
// means the end of that day.
func (h *Handler) asOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("asOf")
	if raw == "" {
		return h.now(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	day, err := generic.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", raw)
	}
	return day.EndOfDay(), nil
}

func (h *Handler) orNow(t time.Time) time.Time {
	if t.IsZero() {
		return h.now()
	}
	return t
}

// decode reads and validates a JSON body. It writes the 400 itself and
// returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			// not a struct, nothing to validate
			return true
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:    "Validation failed",
			Details:  err.Error(),
			Problems: problems(err),
		})
		return false
	}
	return true
}

func problems(err error) []generic.Problem {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil
	}
	out := make([]generic.Problem, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := "failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out = append(out, generic.Problem{Path: fe.Namespace(), Message: msg})
	}
	return out
}

// fail maps a domain error to its HTTP status.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: http.StatusText(status), Details: err.Error()}

	// a rejected catalog can carry both kinds joined
	var verr *generic.ValidationError
	if errors.As(err, &verr) {
		resp.Problems = append(resp.Problems, verr.Problems...)
	}
	var cerr *generic.ConfigurationInconsistencyError
	if errors.As(err, &cerr) {
		resp.Problems = append(resp.Problems, cerr.Problems...)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case generic.IsCatalogError(err):
		return http.StatusUnprocessableEntity
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

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
