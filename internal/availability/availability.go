package availability

import (
	"context"
	"fmt"

	"courtbook/internal/docstore"
	"courtbook/internal/models"
	"courtbook/internal/timeslot"
)

// Collection holds one MonthlyAvailability document per "YYYY-MM" key.
const Collection = "availability"

// Store reads and writes monthly availability documents. It performs no
// conflict checks; all mutation goes through the reservation engine.
type Store struct {
	docs        *docstore.Store
	hours       models.OperatingHours
	granularity int
}

func New(docs *docstore.Store, hours models.OperatingHours, granularityMinutes int) (*Store, error) {
	if granularityMinutes <= 0 {
		granularityMinutes = models.DefaultGranularityMinutes
	}
	if hours.Open == "" {
		hours.Open = models.DefaultOpenTime
	}
	if hours.Close == "" {
		hours.Close = models.DefaultCloseTime
	}

	// Operating hours double as the day template, so they must form a
	// valid slot range themselves.
	if _, err := timeslot.SlotsForRange(hours.Open, hours.Close, granularityMinutes); err != nil {
		return nil, fmt.Errorf("operating hours %s-%s: %w", hours.Open, hours.Close, err)
	}

	return &Store{docs: docs, hours: hours, granularity: granularityMinutes}, nil
}

func (s *Store) Granularity() int             { return s.granularity }
func (s *Store) Hours() models.OperatingHours { return s.hours }

// DayTemplate returns an all-available day covering the operating hours.
func (s *Store) DayTemplate() models.DayAvailability {
	keys, _ := timeslot.SlotsForRange(s.hours.Open, s.hours.Close, s.granularity)
	day := make(models.DayAvailability, len(keys))
	for _, k := range keys {
		day[k] = models.TimeSlot{IsAvailable: true}
	}
	return day
}

// MergeDay overlays stored slot states onto the template. Every operating-
// hour key is present in the result even if it was never persisted; stored
// keys outside the template (hours were narrowed later) are kept as-is.
func MergeDay(template, stored models.DayAvailability) models.DayAvailability {
	out := template.Clone()
	if out == nil {
		out = make(models.DayAvailability, len(stored))
	}
	for k, slot := range stored {
		out[k] = slot
	}
	return out
}

// Load returns the month document, synthesizing an empty all-default
// aggregate when none was ever written. Absence is the default state, not
// an error.
func (s *Store) Load(ctx context.Context, yearMonth string) (*models.MonthlyAvailability, error) {
	var month models.MonthlyAvailability
	found, err := s.docs.Get(ctx, Collection, yearMonth, &month)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.MonthlyAvailability{
			YearMonth: yearMonth,
			Courts:    make(map[string]models.CourtAvailability),
		}, nil
	}
	if month.Courts == nil {
		month.Courts = make(map[string]models.CourtAvailability)
	}
	month.YearMonth = yearMonth
	return &month, nil
}

// LoadTx is Load inside an open transaction.
func (s *Store) LoadTx(tx *docstore.Tx, yearMonth string) (*models.MonthlyAvailability, error) {
	var month models.MonthlyAvailability
	found, err := tx.Get(Collection, yearMonth, &month)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.MonthlyAvailability{
			YearMonth: yearMonth,
			Courts:    make(map[string]models.CourtAvailability),
		}, nil
	}
	if month.Courts == nil {
		month.Courts = make(map[string]models.CourtAvailability)
	}
	month.YearMonth = yearMonth
	return &month, nil
}

// Save upserts the full month document, last writer wins.
func (s *Store) Save(ctx context.Context, month *models.MonthlyAvailability) error {
	return s.docs.Upsert(ctx, Collection, month.YearMonth, month, false)
}

// SaveTx is Save inside an open transaction.
func (s *Store) SaveTx(tx *docstore.Tx, month *models.MonthlyAvailability) error {
	return tx.Set(Collection, month.YearMonth, month)
}

// Read returns one court's day merged over the default template.
func (s *Store) Read(ctx context.Context, courtID, date string) (models.DayAvailability, error) {
	yearMonth, err := timeslot.MonthOf(date)
	if err != nil {
		return nil, err
	}

	month, err := s.Load(ctx, yearMonth)
	if err != nil {
		return nil, err
	}

	return MergeDay(s.DayTemplate(), month.Day(courtID, date)), nil
}
