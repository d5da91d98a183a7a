package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"courtbook/internal/availability"
	"courtbook/internal/docstore"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/timeslot"

	"github.com/rs/zerolog"
)

// ConflictError is the expected, recoverable outcome when part of the
// requested range is already taken. Callers retry with another court or
// time rather than treating it as a failure.
type ConflictError struct {
	CourtID string
	Date    string
	Keys    []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("court %s on %s: slots unavailable: %v", e.CourtID, e.Date, e.Keys)
}

// IsConflict reports whether err is a slot conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// AsConflict extracts the conflict detail, if any.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Engine performs atomic slot transitions. The whole requested range is
// checked and flipped inside one store transaction; two racing writers for
// overlapping ranges serialize there, and the loser sees a ConflictError.
type Engine struct {
	docs    *docstore.Store
	avail   *availability.Store
	timeout time.Duration
	logger  zerolog.Logger
}

func New(docs *docstore.Store, avail *availability.Store, timeout time.Duration, logger *zerolog.Logger) *Engine {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Engine{
		docs:    docs,
		avail:   avail,
		timeout: timeout,
		logger:  logger.With().Str("component", "reservation").Logger(),
	}
}

// ReserveParams identifies the range to claim and who claims it.
type ReserveParams struct {
	CourtID       string
	Date          string
	StartTime     string
	EndTime       string
	RequesterID   string
	ReservationID string
}

// CommitHook runs inside the same transaction as the slot write, letting the
// caller persist a booking record atomically with the claim.
type CommitHook func(tx *docstore.Tx) error

// Reserve claims every slot in [StartTime, EndTime) for the requester, or
// returns a ConflictError without touching any slot. Validation failures
// are rejected before a transaction is attempted.
func (e *Engine) Reserve(ctx context.Context, p ReserveParams, hook CommitHook) error {
	keys, err := timeslot.SlotsForRange(p.StartTime, p.EndTime, e.avail.Granularity())
	if err != nil {
		return err
	}
	yearMonth, err := timeslot.MonthOf(p.Date)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	err = e.docs.RunTransaction(ctx, func(tx *docstore.Tx) error {
		month, err := e.avail.LoadTx(tx, yearMonth)
		if err != nil {
			return err
		}

		day := availability.MergeDay(e.avail.DayTemplate(), month.Day(p.CourtID, p.Date))

		var conflicts []string
		for _, key := range keys {
			if slot, ok := day[key]; !ok || !slot.IsAvailable {
				conflicts = append(conflicts, key)
			}
		}
		if len(conflicts) > 0 {
			sort.Strings(conflicts)
			return &ConflictError{CourtID: p.CourtID, Date: p.Date, Keys: conflicts}
		}

		for _, key := range keys {
			day[key] = models.TimeSlot{
				IsAvailable:   false,
				ReservedBy:    p.RequesterID,
				ReservationID: p.ReservationID,
			}
		}
		month.SetDay(p.CourtID, p.Date, day)

		if err := e.avail.SaveTx(tx, month); err != nil {
			return err
		}
		if hook != nil {
			return hook(tx)
		}
		return nil
	})
	metrics.ObserveReserve(time.Since(start))

	switch {
	case err == nil:
		metrics.IncReservation("reserved")
		e.logger.Info().
			Str("court_id", p.CourtID).
			Str("date", p.Date).
			Str("range", p.StartTime+"-"+p.EndTime).
			Str("reservation_id", p.ReservationID).
			Msg("slots reserved")
	case IsConflict(err):
		metrics.IncReservation("conflict")
	default:
		metrics.IncReservation("error")
	}

	return err
}

// ReleaseParams identifies the range to free. An empty ReservationID is an
// administrative override that frees the slots regardless of owner.
type ReleaseParams struct {
	CourtID       string
	Date          string
	StartTime     string
	EndTime       string
	ReservationID string
}

// Release resets every matching slot in the range to available. Releasing a
// slot that is already free, or held by a different reservation, is a no-op,
// which makes the operation idempotent.
func (e *Engine) Release(ctx context.Context, p ReleaseParams, hook CommitHook) error {
	keys, err := timeslot.SlotsForRange(p.StartTime, p.EndTime, e.avail.Granularity())
	if err != nil {
		return err
	}
	yearMonth, err := timeslot.MonthOf(p.Date)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	err = e.docs.RunTransaction(ctx, func(tx *docstore.Tx) error {
		month, err := e.avail.LoadTx(tx, yearMonth)
		if err != nil {
			return err
		}

		day := availability.MergeDay(e.avail.DayTemplate(), month.Day(p.CourtID, p.Date))

		for _, key := range keys {
			slot, ok := day[key]
			if !ok || slot.IsAvailable {
				continue
			}
			if p.ReservationID != "" && slot.ReservationID != p.ReservationID {
				continue
			}
			day[key] = models.TimeSlot{IsAvailable: true}
		}
		month.SetDay(p.CourtID, p.Date, day)

		if err := e.avail.SaveTx(tx, month); err != nil {
			return err
		}
		if hook != nil {
			return hook(tx)
		}
		return nil
	})

	if err == nil {
		metrics.IncRelease()
		e.logger.Info().
			Str("court_id", p.CourtID).
			Str("date", p.Date).
			Str("range", p.StartTime+"-"+p.EndTime).
			Msg("slots released")
	}
	return err
}
