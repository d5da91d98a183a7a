package domain

import (
	"context"
	"time"

	"courtbook/internal/models"
)

// PaymentGateway creates charges and refunds against the external payment
// provider. Amounts are minor currency units.
type PaymentGateway interface {
	Charge(ctx context.Context, in ChargeInput) (*ChargeResult, error)
	Refund(ctx context.Context, chargeID string, amount int64) error
}

type ChargeInput struct {
	BookingID string
	Amount    int64
	Currency  string
	CardToken string
}

type ChargeResult struct {
	ChargeID string
	Status   string // successful, pending, failed
	Failure  string
}

const (
	ChargeSuccessful = "successful"
	ChargePending    = "pending"
	ChargeFailed     = "failed"
)

// HoldRepository tracks unpaid holding bookings so they can be expired.
type HoldRepository interface {
	Track(ctx context.Context, bookingID string, expiresAt time.Time) error
	Remove(ctx context.Context, bookingID string) error
	Expired(ctx context.Context, now time.Time) ([]string, error)
}

// EventPublisher pushes booking and availability change notifications for
// UI refresh and external consumers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SyncWorker mirrors booking changes to the external schedule sheet.
type SyncWorker interface {
	EnqueueBooking(ctx context.Context, taskType string, booking *models.Booking) error
}
