package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"courtbook/internal/assignment"
	"courtbook/internal/booking"
	"courtbook/internal/docstore"
	"courtbook/internal/export"
	"courtbook/internal/models"
	"courtbook/internal/reservation"
	"courtbook/internal/timeslot"
)

type createBookingRequest struct {
	Date            string             `json:"date"`
	StartTime       string             `json:"start_time"`
	DurationMinutes int                `json:"duration_minutes"`
	RequesterID     string             `json:"requester_id"`
	Preferences     models.Preferences `json:"preferences"`
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createBooking(w, r)
	case http.MethodGet:
		s.listBookings(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) createBooking(w http.ResponseWriter, r *http.Request) {
	var body createBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.RequesterID == "" {
		writeError(w, http.StatusBadRequest, "requester_id is required")
		return
	}

	b, err := s.bookings.CreateBooking(r.Context(), booking.CreateRequest{
		Date:            body.Date,
		StartTime:       body.StartTime,
		DurationMinutes: body.DurationMinutes,
		RequesterID:     body.RequesterID,
		Candidates:      s.courts,
		Prefs:           body.Preferences,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *HTTPServer) listBookings(w http.ResponseWriter, r *http.Request) {
	requesterID := strings.TrimSpace(r.URL.Query().Get("requester_id"))
	if requesterID == "" {
		writeError(w, http.StatusBadRequest, "requester_id is required")
		return
	}

	bookings, err := s.bookings.ListByRequester(r.Context(), requesterID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/bookings/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "booking id is required")
		return
	}
	bookingID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		b, err := s.bookings.Get(r.Context(), bookingID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
		return
	}

	if len(parts) != 2 || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch parts[1] {
	case "pay":
		s.payBooking(w, r, bookingID)
	case "cancel":
		s.cancelBooking(w, r, bookingID)
	case "complete":
		s.completeBooking(w, r, bookingID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) payBooking(w http.ResponseWriter, r *http.Request, bookingID string) {
	var body struct {
		CardToken string `json:"card_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.CardToken == "" {
		writeError(w, http.StatusBadRequest, "card_token is required")
		return
	}

	b, err := s.bookings.Pay(r.Context(), bookingID, body.CardToken)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) cancelBooking(w http.ResponseWriter, r *http.Request, bookingID string) {
	var body struct {
		RequesterID string `json:"requester_id"`
		Admin       bool   `json:"admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// The admin flag releases other requesters' bookings and rides the same
	// permission as slot release.
	if body.Admin {
		if err := s.requirePermission(r, "admin:release"); err != nil {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
	}

	b, err := s.bookings.Cancel(r.Context(), bookingID, body.RequesterID, body.Admin)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) completeBooking(w http.ResponseWriter, r *http.Request, bookingID string) {
	b, err := s.bookings.Complete(r.Context(), bookingID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/availability/"
	courtID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, prefix))
	if courtID == "" || strings.Contains(courtID, "/") {
		writeError(w, http.StatusBadRequest, "court_id is required")
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	if _, err := timeslot.ParseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	day, err := s.bookings.GetAvailability(r.Context(), courtID, date)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"court_id": courtID,
		"date":     date,
		"slots":    day,
	})
}

func (s *HTTPServer) handleCourts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	courts := make([]models.Court, 0, len(s.courts))
	for _, c := range s.courts {
		if c.IsActive {
			courts = append(courts, c)
		}
	}
	sort.Slice(courts, func(i, j int) bool { return courts[i].ID < courts[j].ID })

	writeJSON(w, http.StatusOK, map[string]any{"courts": courts})
}

func (s *HTTPServer) handleAdminRelease(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		CourtID   string `json:"court_id"`
		Date      string `json:"date"`
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Empty reservation id frees the range regardless of owner.
	err := s.reserve.Release(r.Context(), reservation.ReleaseParams{
		CourtID:   body.CourtID,
		Date:      body.Date,
		StartTime: body.StartTime,
		EndTime:   body.EndTime,
	}, nil)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if month == "" {
		month = time.Now().Format(models.MonthFormat)
	}

	bookings, err := s.bookings.ListByMonth(r.Context(), month)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	pointers := make([]*models.Booking, len(bookings))
	for i := range bookings {
		pointers[i] = &bookings[i]
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=bookings_%s.xlsx", month))
	if err := export.WriteBookingsReport(w, month, pointers); err != nil {
		s.logger.Error().Err(err).Str("month", month).Msg("write bookings report")
	}
}

// requirePermission re-checks a specific permission for requests that passed
// the route-level gate.
func (s *HTTPServer) requirePermission(r *http.Request, permission string) error {
	if !s.cfg.Enabled || !s.cfg.Auth.Enabled {
		return nil
	}

	apiKeyHeader := strings.TrimSpace(strings.ToLower(s.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = "x-api-key"
	}
	client, ok := s.auth.clients[strings.TrimSpace(r.Header.Get(apiKeyHeader))]
	if !ok {
		return errPermissionDenied
	}
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == permission {
			return nil
		}
	}
	return errPermissionDenied
}

// writeDomainError maps core errors onto HTTP status codes.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case reservation.IsConflict(err):
		ce, _ := reservation.AsConflict(err)
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":    "slot conflict",
			"court_id": ce.CourtID,
			"date":     ce.Date,
			"slots":    ce.Keys,
		})
	case assignment.IsNoCourt(err):
		nc, _ := assignment.AsNoCourt(err)
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "no court available",
			"conflicts": nc.Conflicts,
		})
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrPaymentFailed):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, timeslot.ErrInvalidRange), errors.Is(err, timeslot.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, docstore.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage busy, retry later")
	default:
		s.logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
