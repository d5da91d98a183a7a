package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"courtbook/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var ErrRowNotFound = errors.New("booking row not found")

const bookingsSheet = "Bookings"

// Service mirrors bookings into a Google spreadsheet that venue staff use as
// a read-only schedule. Column A holds the booking ID; the row index cache
// avoids a full column scan per update.
type Service struct {
	service       *sheets.Service
	spreadsheetID string
	rowCache      map[string]int
	cacheMu       sync.RWMutex
}

// New builds a service authenticated with a service-account credentials file.
func New(credentialsFile, spreadsheetID string) (*Service, error) {
	ctx := context.Background()

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return NewWithService(srv, spreadsheetID), nil
}

// NewWithService wraps an already-constructed API client. Tests point it at a
// local HTTP stub.
func NewWithService(srv *sheets.Service, spreadsheetID string) *Service {
	return &Service{
		service:       srv,
		spreadsheetID: spreadsheetID,
		rowCache:      make(map[string]int),
	}
}

// TestConnection reads a single cell to verify access to the spreadsheet.
func (s *Service) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, bookingsSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// UpsertBooking updates the booking's row, or appends one if the booking is
// not in the sheet yet.
func (s *Service) UpsertBooking(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return errors.New("booking is nil")
	}

	rowIdx, err := s.findBookingRow(ctx, booking.ID)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return s.appendBooking(ctx, booking)
		}
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:K%d", bookingsSheet, rowIdx, rowIdx)
	valueRange := &sheets.ValueRange{Values: [][]interface{}{bookingRowValues(booking)}}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		// Cached row may be stale after manual sheet edits.
		s.deleteCachedRow(booking.ID)
	}
	return err
}

func (s *Service) appendBooking(ctx context.Context, booking *models.Booking) error {
	valueRange := &sheets.ValueRange{Values: [][]interface{}{bookingRowValues(booking)}}

	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, bookingsSheet+"!A:A", valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

// WarmUpCache populates the row index cache by reading the entire ID column.
func (s *Service) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, bookingsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id, ok := row[0].(string); ok && id != "" {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

// findBookingRow locates the 1-based row index for a booking ID in column A.
func (s *Service) findBookingRow(ctx context.Context, bookingID string) (int, error) {
	if bookingID == "" {
		return 0, errors.New("booking id is required")
	}

	if row, ok := s.cachedRow(bookingID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, bookingsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id, ok := row[0].(string); ok && id == bookingID {
			rowIdx := i + 1
			s.setCachedRow(bookingID, rowIdx)
			return rowIdx, nil
		}
	}

	return 0, ErrRowNotFound
}

func (s *Service) cachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *Service) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *Service) deleteCachedRow(id string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, id)
}

func bookingRowValues(booking *models.Booking) []interface{} {
	return []interface{}{
		booking.ID,
		booking.CourtID,
		booking.Date,
		booking.StartTime,
		booking.EndTime,
		booking.RequesterID,
		booking.Status,
		booking.PaymentStatus,
		fmt.Sprintf("%d %s", booking.Price, booking.Currency),
		booking.CreatedAt.Format("2006-01-02 15:04:05"),
		booking.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}
