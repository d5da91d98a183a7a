package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/assignment"
	"courtbook/internal/availability"
	"courtbook/internal/docstore"
	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/reservation"
	"courtbook/internal/timeslot"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Collection holds one booking document per booking id. The booking id doubles
// as the reservation id stamped on the claimed slots, so the two stores always
// point at each other.
const Collection = "bookings"

var (
	ErrNotFound          = errors.New("booking not found")
	ErrUnauthorized      = errors.New("operation not allowed for this requester")
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrPaymentFailed     = errors.New("payment failed")
)

// Allowed status transitions. Completed and cancelled are terminal.
var transitions = map[string][]string{
	models.StatusHolding:   {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed: {models.StatusCompleted, models.StatusCancelled},
}

func canTransition(from, to string) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Service owns the booking state machine and keeps booking records and slot
// state mutating inside one transaction.
type Service struct {
	docs    *docstore.Store
	assign  *assignment.Engine
	reserve *reservation.Engine
	avail   *availability.Store
	gateway domain.PaymentGateway
	holds   domain.HoldRepository
	bus     domain.EventPublisher
	sheets  domain.SyncWorker
	holdTTL time.Duration
	logger  zerolog.Logger
}

func NewService(
	docs *docstore.Store,
	assign *assignment.Engine,
	reserve *reservation.Engine,
	avail *availability.Store,
	gateway domain.PaymentGateway,
	holds domain.HoldRepository,
	bus domain.EventPublisher,
	sheets domain.SyncWorker,
	holdTTL time.Duration,
	logger *zerolog.Logger,
) *Service {
	if holdTTL <= 0 {
		holdTTL = models.DefaultHoldTTLMinutes * time.Minute
	}
	return &Service{
		docs:    docs,
		assign:  assign,
		reserve: reserve,
		avail:   avail,
		gateway: gateway,
		holds:   holds,
		bus:     bus,
		sheets:  sheets,
		holdTTL: holdTTL,
		logger:  logger.With().Str("component", "booking").Logger(),
	}
}

// CreateRequest is one booking attempt across a candidate court set.
type CreateRequest struct {
	Date            string
	StartTime       string
	DurationMinutes int
	RequesterID     string
	Candidates      []models.Court
	Prefs           models.Preferences
}

// CreateBooking assigns a court and creates the booking record in the same
// transaction as the slot claim. The booking starts in holding/pending and
// expires unless paid within the hold TTL.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (*models.Booking, error) {
	bookingID := uuid.NewString()

	var created *models.Booking
	_, err := s.assign.CheckAndAssignCourt(ctx, assignment.Request{
		Date:            req.Date,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		RequesterID:     req.RequesterID,
		ReservationID:   bookingID,
		Candidates:      req.Candidates,
		Prefs:           req.Prefs,
	}, func(tx *docstore.Tx, court models.Court, price int64, endTime string) error {
		now := time.Now().UTC()
		currency := court.Rates.Currency
		if currency == "" {
			currency = models.DefaultCurrency
		}
		b := &models.Booking{
			ID:            bookingID,
			CourtID:       court.ID,
			VenueID:       court.VenueID,
			Date:          req.Date,
			StartTime:     req.StartTime,
			EndTime:       endTime,
			RequesterID:   req.RequesterID,
			Price:         price,
			Currency:      currency,
			Status:        models.StatusHolding,
			PaymentStatus: models.PaymentPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		created = b
		return tx.Set(Collection, b.ID, b)
	})
	if err != nil {
		return nil, err
	}

	if s.holds != nil {
		if err := s.holds.Track(ctx, created.ID, time.Now().Add(s.holdTTL)); err != nil {
			s.logger.Error().Err(err).Str("booking_id", created.ID).Msg("track hold")
		}
	}

	s.publish(events.EventBookingCreated, created)
	s.enqueueSync(ctx, events.TaskUpsert, created)

	s.logger.Info().
		Str("booking_id", created.ID).
		Str("court_id", created.CourtID).
		Str("date", created.Date).
		Str("range", created.StartTime+"-"+created.EndTime).
		Int64("price", created.Price).
		Msg("booking created")

	return created, nil
}

// Get loads a booking by id.
func (s *Service) Get(ctx context.Context, bookingID string) (*models.Booking, error) {
	var b models.Booking
	found, err := s.docs.Get(ctx, Collection, bookingID, &b)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &b, nil
}

// ListByRequester returns a requester's bookings.
func (s *Service) ListByRequester(ctx context.Context, requesterID string) ([]models.Booking, error) {
	docs, err := s.docs.Query(ctx, Collection, "requesterId", requesterID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Booking, 0, len(docs))
	for _, d := range docs {
		var b models.Booking
		if err := json.Unmarshal(d.Data, &b); err != nil {
			return nil, fmt.Errorf("decode booking %s: %w", d.ID, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// ListByMonth returns all bookings whose date falls in the given YYYY-MM
// month. Feeds the staff report export.
func (s *Service) ListByMonth(ctx context.Context, month string) ([]models.Booking, error) {
	if _, err := time.Parse(models.MonthFormat, month); err != nil {
		return nil, fmt.Errorf("%w: invalid month %q", timeslot.ErrInvalidDate, month)
	}
	docs, err := s.docs.QueryPrefix(ctx, Collection, "date", month)
	if err != nil {
		return nil, err
	}
	out := make([]models.Booking, 0, len(docs))
	for _, d := range docs {
		var b models.Booking
		if err := json.Unmarshal(d.Data, &b); err != nil {
			return nil, fmt.Errorf("decode booking %s: %w", d.ID, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// GetAvailability exposes the merged day view for UI code.
func (s *Service) GetAvailability(ctx context.Context, courtID, date string) (models.DayAvailability, error) {
	return s.avail.Read(ctx, courtID, date)
}

// transition moves a booking to the given status inside one transaction.
// The status check runs against the row as read in that same transaction,
// so a concurrent cancel (the hold sweeper, an admin) either lands before
// this write and fails the check, or after it and sees the new status.
func (s *Service) transition(ctx context.Context, bookingID, to string, mutate func(b *models.Booking)) (*models.Booking, error) {
	var b models.Booking
	err := s.docs.RunTransaction(ctx, func(tx *docstore.Tx) error {
		b = models.Booking{}
		found, err := tx.Get(Collection, bookingID, &b)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		if !canTransition(b.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, to)
		}
		b.Status = to
		b.UpdatedAt = time.Now().UTC()
		if mutate != nil {
			mutate(&b)
		}
		return tx.Set(Collection, b.ID, &b)
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Pay charges the card and confirms the booking on gateway success. A charge
// left pending by the gateway keeps the booking holding until the final
// status arrives. If the booking was cancelled while the charge was in
// flight the charge is refunded.
func (s *Service) Pay(ctx context.Context, bookingID, cardToken string) (*models.Booking, error) {
	b, err := s.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.StatusHolding || b.PaymentStatus != models.PaymentPending {
		return nil, fmt.Errorf("%w: %s/%s cannot be paid", ErrInvalidTransition, b.Status, b.PaymentStatus)
	}

	result, err := s.gateway.Charge(ctx, domain.ChargeInput{
		BookingID: b.ID,
		Amount:    b.Price,
		Currency:  b.Currency,
		CardToken: cardToken,
	})
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case domain.ChargeSuccessful:
		paid, err := s.MarkPaid(ctx, bookingID, result.ChargeID)
		if err != nil {
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
				s.refundOrphanCharge(ctx, b, result.ChargeID, err)
			} else {
				s.logger.Error().Err(err).
					Str("booking_id", b.ID).
					Str("charge_id", result.ChargeID).
					Msg("confirm after charge failed")
			}
			return nil, err
		}
		return paid, nil
	case domain.ChargePending:
		// Final status comes through the gateway callback; keep holding.
		err := s.docs.RunTransaction(ctx, func(tx *docstore.Tx) error {
			*b = models.Booking{}
			found, err := tx.Get(Collection, bookingID, b)
			if err != nil {
				return err
			}
			if !found {
				return ErrNotFound
			}
			b.ChargeID = result.ChargeID
			b.UpdatedAt = time.Now().UTC()
			return tx.Set(Collection, b.ID, b)
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, result.Failure)
	}
}

// refundOrphanCharge returns money taken for a booking that could not be
// confirmed, typically because the hold expired while the charge was in
// flight.
func (s *Service) refundOrphanCharge(ctx context.Context, b *models.Booking, chargeID string, cause error) {
	if refundErr := s.gateway.Refund(ctx, chargeID, b.Price); refundErr != nil {
		s.logger.Error().Err(refundErr).
			Str("booking_id", b.ID).
			Str("charge_id", chargeID).
			Msg("refund of orphan charge failed")
		s.publish(events.EventRefundFailed, b)
		return
	}
	s.logger.Warn().Err(cause).
		Str("booking_id", b.ID).
		Str("charge_id", chargeID).
		Msg("charge refunded, booking no longer payable")
}

// MarkPaid records a successful payment: holding -> confirmed and
// pending -> paid. Driven by Pay or by the gateway success callback.
func (s *Service) MarkPaid(ctx context.Context, bookingID, chargeID string) (*models.Booking, error) {
	b, err := s.transition(ctx, bookingID, models.StatusConfirmed, func(b *models.Booking) {
		b.PaymentStatus = models.PaymentPaid
		b.ChargeID = chargeID
	})
	if err != nil {
		return nil, err
	}

	if s.holds != nil {
		if err := s.holds.Remove(ctx, b.ID); err != nil {
			s.logger.Error().Err(err).Str("booking_id", b.ID).Msg("remove hold")
		}
	}

	s.publish(events.EventBookingConfirmed, b)
	s.enqueueSync(ctx, events.TaskUpdateStatus, b)
	return b, nil
}

// Cancel releases the booking's exact slot range and writes the cancelled
// status in one transaction, so slots never stay claimed by a cancelled
// booking. Cancelling an already-cancelled booking is a no-op. A paid
// booking is refunded through the gateway after the release commits.
func (s *Service) Cancel(ctx context.Context, bookingID, requesterID string, admin bool) (*models.Booking, error) {
	b, err := s.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status == models.StatusCancelled {
		return b, nil
	}
	if !canTransition(b.Status, models.StatusCancelled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, models.StatusCancelled)
	}
	if !admin && b.RequesterID != requesterID {
		return nil, ErrUnauthorized
	}

	var wasPaid bool
	err = s.reserve.Release(ctx, reservation.ReleaseParams{
		CourtID:       b.CourtID,
		Date:          b.Date,
		StartTime:     b.StartTime,
		EndTime:       b.EndTime,
		ReservationID: b.ID,
	}, func(tx *docstore.Tx) error {
		// Re-read inside the transaction: a payment may have confirmed the
		// booking since the check above, and the refund decision has to
		// follow the committed payment status.
		wasPaid = false
		*b = models.Booking{}
		found, err := tx.Get(Collection, bookingID, b)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		if b.Status == models.StatusCancelled {
			return nil
		}
		if !canTransition(b.Status, models.StatusCancelled) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, models.StatusCancelled)
		}
		wasPaid = b.PaymentStatus == models.PaymentPaid
		b.Status = models.StatusCancelled
		if wasPaid {
			b.PaymentStatus = models.PaymentRefunded
		} else {
			b.PaymentStatus = models.PaymentCancelled
		}
		b.UpdatedAt = time.Now().UTC()
		return tx.Set(Collection, b.ID, b)
	})
	if err != nil {
		return nil, err
	}

	if s.holds != nil {
		if err := s.holds.Remove(ctx, b.ID); err != nil {
			s.logger.Error().Err(err).Str("booking_id", b.ID).Msg("remove hold")
		}
	}

	if wasPaid && s.gateway != nil {
		if err := s.gateway.Refund(ctx, b.ChargeID, b.Price); err != nil {
			// Slots are already free and the booking is cancelled; the
			// refund is retried out of band.
			s.logger.Error().Err(err).
				Str("booking_id", b.ID).
				Str("charge_id", b.ChargeID).
				Msg("refund failed")
			s.publish(events.EventRefundFailed, b)
		}
	}

	s.publish(events.EventBookingCancelled, b)
	s.enqueueSync(ctx, events.TaskUpdateStatus, b)

	s.logger.Info().
		Str("booking_id", b.ID).
		Str("court_id", b.CourtID).
		Bool("refunded", wasPaid).
		Msg("booking cancelled")

	return b, nil
}

// Complete marks a confirmed booking as done after the activity occurred.
// Slot state is untouched.
func (s *Service) Complete(ctx context.Context, bookingID string) (*models.Booking, error) {
	b, err := s.transition(ctx, bookingID, models.StatusCompleted, nil)
	if err != nil {
		return nil, err
	}

	s.publish(events.EventBookingCompleted, b)
	s.enqueueSync(ctx, events.TaskUpdateStatus, b)
	return b, nil
}

// ExpireHolds cancels holding bookings whose payment window ran out and
// returns how many were expired. Bookings already paid or cancelled since
// tracking are just untracked.
func (s *Service) ExpireHolds(ctx context.Context) (int, error) {
	if s.holds == nil {
		return 0, nil
	}

	ids, err := s.holds.Expired(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		b, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			_ = s.holds.Remove(ctx, id)
			continue
		}
		if err != nil {
			return expired, err
		}

		if b.Status != models.StatusHolding {
			_ = s.holds.Remove(ctx, id)
			continue
		}

		if _, err := s.Cancel(ctx, id, b.RequesterID, false); err != nil {
			s.logger.Error().Err(err).Str("booking_id", id).Msg("expire hold")
			continue
		}
		metrics.IncHoldsExpired()
		expired++
		s.publish(events.EventBookingExpired, b)
	}

	return expired, nil
}

func (s *Service) publish(eventType string, b *models.Booking) {
	if s.bus == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID:     b.ID,
		CourtID:       b.CourtID,
		VenueID:       b.VenueID,
		Date:          b.Date,
		StartTime:     b.StartTime,
		EndTime:       b.EndTime,
		RequesterID:   b.RequesterID,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		Price:         b.Price,
		Currency:      b.Currency,
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", b.ID).Msg("publish event")
	}
}

func (s *Service) enqueueSync(ctx context.Context, taskType string, b *models.Booking) {
	if s.sheets == nil {
		return
	}
	if err := s.sheets.EnqueueBooking(ctx, taskType, b); err != nil {
		s.logger.Error().Err(err).Str("booking_id", b.ID).Str("task", taskType).Msg("sheets enqueue")
	}
}
