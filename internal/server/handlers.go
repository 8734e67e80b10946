package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tartampluch/go-hebrew-birthday/internal/auth"
	"github.com/tartampluch/go-hebrew-birthday/internal/config"
	"github.com/tartampluch/go-hebrew-birthday/internal/engine"
)

// birthdayRequest is the body of a PUT on a birthday.
type birthdayRequest struct {
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	GregorianBirthDate string `json:"gregorian_birth_date"`
	AfterSunset        bool   `json:"after_sunset"`
	Notes              string `json:"notes"`
	Archived           bool   `json:"archived"`
}

type hebrewDateResponse struct {
	Display string `json:"display"`
	Year    int    `json:"year"`
	Month   string `json:"month"`
	Day     int    `json:"day"`
}

type occurrenceResponse struct {
	Date       string `json:"date"`
	HebrewYear int    `json:"hebrew_year"`
}

type birthdayResponse struct {
	ID                 string               `json:"id"`
	TenantID           string               `json:"tenant_id"`
	FirstName          string               `json:"first_name"`
	LastName           string               `json:"last_name"`
	GregorianBirthDate string               `json:"gregorian_birth_date"`
	AfterSunset        bool                 `json:"after_sunset"`
	Notes              string               `json:"notes,omitempty"`
	Archived           bool                 `json:"archived"`
	Hebrew             *hebrewDateResponse  `json:"hebrew,omitempty"`
	NextUpcoming       *occurrenceResponse  `json:"next_upcoming,omitempty"`
	FutureOccurrences  []occurrenceResponse `json:"future_occurrences"`
}

func newBirthdayResponse(rec *engine.BirthRecord) birthdayResponse {
	resp := birthdayResponse{
		ID:                 rec.ID,
		TenantID:           rec.TenantID,
		FirstName:          rec.FirstName,
		LastName:           rec.LastName,
		GregorianBirthDate: rec.GregorianBirthDate.Format(config.DateLayout),
		AfterSunset:        rec.AfterSunset,
		Notes:              rec.Notes,
		Archived:           rec.Archived,
		FutureOccurrences:  make([]occurrenceResponse, 0, len(rec.Derived.Future)),
	}
	if h := rec.Derived.Hebrew; h != nil {
		resp.Hebrew = &hebrewDateResponse{Display: h.String, Year: h.Year, Month: h.Month, Day: h.Day}
	}
	if n := rec.Derived.NextUpcoming; n != nil {
		resp.NextUpcoming = &occurrenceResponse{Date: n.Date.Format(config.DateLayout), HebrewYear: n.HebrewYear}
	}
	for _, o := range rec.Derived.Future {
		resp.FutureOccurrences = append(resp.FutureOccurrences, occurrenceResponse{
			Date:       o.Date.Format(config.DateLayout),
			HebrewYear: o.HebrewYear,
		})
	}
	return resp
}

// handleRefresh forces recomputation of one record's Hebrew dates.
// RateLimited and PermissionDenied are reported distinctly; every other failure is generic.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, config.URLParamTenant)
	recordID := chi.URLParam(r, config.URLParamBirthday)

	err := s.Refresher.Refresh(r.Context(), auth.CallerFrom(r.Context()), tenantID, recordID)
	switch {
	case err == nil:
		WriteJSONResponse(w, Response{Success: true, Message: s.localize(r, config.TKeyRefreshSuccess, nil)}, http.StatusOK)
	case errors.Is(err, engine.ErrUnauthenticated):
		s.WriteErrorResponse(w, r, http.StatusUnauthorized, config.CodeUnauthenticated, config.TKeyErrUnauth)
	case errors.Is(err, engine.ErrPermissionDenied):
		s.WriteErrorResponse(w, r, http.StatusForbidden, config.CodePermissionDenied, config.TKeyErrPermission)
	case errors.Is(err, engine.ErrRateLimited):
		if s.RetryAfter > 0 {
			w.Header().Set(config.HeaderRetryAfter, strconv.Itoa(int(s.RetryAfter.Round(time.Second)/time.Second)))
		}
		s.WriteErrorResponse(w, r, http.StatusTooManyRequests, config.CodeResourceExhausted, config.TKeyErrRateLimited)
	default:
		s.logFailure(r, err)
		s.WriteErrorResponse(w, r, http.StatusInternalServerError, config.CodeInternal, config.TKeyErrRefreshFailed)
	}
}

func (s *Server) handleListBirthdays(w http.ResponseWriter, r *http.Request) {
	if !s.requireCaller(w, r) {
		return
	}
	records, err := s.Records.ListByTenant(r.Context(), chi.URLParam(r, config.URLParamTenant))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]birthdayResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, newBirthdayResponse(rec))
	}
	WriteJSONResponse(w, out, http.StatusOK)
}

func (s *Server) handleGetBirthday(w http.ResponseWriter, r *http.Request) {
	if !s.requireCaller(w, r) {
		return
	}
	rec, ok := s.ownedRecord(w, r)
	if !ok {
		return
	}
	WriteJSONResponse(w, newBirthdayResponse(rec), http.StatusOK)
}

// handlePutBirthday creates or replaces the source fields of a birthday.
// Saving fires the write trigger, so the reply already carries the recomputed Hebrew dates.
func (s *Server) handlePutBirthday(w http.ResponseWriter, r *http.Request) {
	if !s.requireCaller(w, r) {
		return
	}
	tenantID := chi.URLParam(r, config.URLParamTenant)
	recordID := chi.URLParam(r, config.URLParamBirthday)

	var req birthdayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logFailure(r, fmt.Errorf("%s: %w", config.ErrDecodeBody, err))
		s.WriteErrorResponse(w, r, http.StatusBadRequest, config.CodeInvalidArgument, config.TKeyErrInvalidInput)
		return
	}
	birth, err := time.Parse(config.DateLayout, strings.TrimSpace(req.GregorianBirthDate))
	if err != nil || (req.FirstName == "" && req.LastName == "") {
		s.WriteErrorResponse(w, r, http.StatusBadRequest, config.CodeInvalidArgument, config.TKeyErrInvalidInput)
		return
	}

	existing, err := s.Records.Get(r.Context(), recordID)
	switch {
	case errors.Is(err, engine.ErrRecordNotFound):
	case err != nil:
		s.internalError(w, r, err)
		return
	case existing.TenantID != tenantID:
		s.WriteErrorResponse(w, r, http.StatusForbidden, config.CodePermissionDenied, config.TKeyErrPermission)
		return
	}

	rec := &engine.BirthRecord{
		ID:                 recordID,
		TenantID:           tenantID,
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		GregorianBirthDate: birth,
		AfterSunset:        req.AfterSunset,
		Notes:              req.Notes,
		Archived:           req.Archived,
	}
	_, err = s.Records.Save(r.Context(), rec)
	switch {
	case errors.Is(err, engine.ErrPermissionDenied):
		// Another tenant created the id after the lookup above.
		s.WriteErrorResponse(w, r, http.StatusForbidden, config.CodePermissionDenied, config.TKeyErrPermission)
		return
	case err != nil:
		s.internalError(w, r, err)
		return
	}

	saved, err := s.Records.Get(r.Context(), recordID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	status := http.StatusOK
	if existing == nil {
		status = http.StatusCreated
	}
	WriteJSONResponse(w, newBirthdayResponse(saved), status)
}

func (s *Server) handleDeleteBirthday(w http.ResponseWriter, r *http.Request) {
	if !s.requireCaller(w, r) {
		return
	}
	rec, ok := s.ownedRecord(w, r)
	if !ok {
		return
	}
	if err := s.Records.Delete(r.Context(), rec.ID); err != nil {
		s.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireCaller rejects anonymous requests.
func (s *Server) requireCaller(w http.ResponseWriter, r *http.Request) bool {
	if auth.CallerFrom(r.Context()) == "" {
		s.WriteErrorResponse(w, r, http.StatusUnauthorized, config.CodeUnauthenticated, config.TKeyErrUnauth)
		return false
	}
	return true
}

// ownedRecord loads the record named in the path. Missing records and records of another
// tenant are both answered with 403 so ids cannot be probed.
func (s *Server) ownedRecord(w http.ResponseWriter, r *http.Request) (*engine.BirthRecord, bool) {
	rec, err := s.Records.Get(r.Context(), chi.URLParam(r, config.URLParamBirthday))
	if err != nil && !errors.Is(err, engine.ErrRecordNotFound) {
		s.internalError(w, r, err)
		return nil, false
	}
	if err != nil || rec.TenantID != chi.URLParam(r, config.URLParamTenant) {
		s.WriteErrorResponse(w, r, http.StatusForbidden, config.CodePermissionDenied, config.TKeyErrPermission)
		return nil, false
	}
	return rec, true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logFailure(r, err)
	s.WriteErrorResponse(w, r, http.StatusInternalServerError, config.CodeInternal, config.TKeyErrInternal)
}

func (s *Server) logFailure(r *http.Request, err error) {
	slog.Error(config.MsgRequestFailed,
		config.LogKeyComponent, config.CompServer,
		config.LogKeyMethod, r.Method,
		config.LogKeyPath, r.URL.Path,
		config.LogKeyRequestID, middleware.GetReqID(r.Context()),
		config.LogKeyError, err,
	)
}
