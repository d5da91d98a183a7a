package models

import "time"

type Booking struct {
	ID            string    `json:"id"`
	CourtID       string    `json:"courtId"`
	VenueID       string    `json:"venueId"`
	Date          string    `json:"date"`      // YYYY-MM-DD
	StartTime     string    `json:"startTime"` // HH:MM
	EndTime       string    `json:"endTime"`
	RequesterID   string    `json:"requesterId"`
	Price         int64     `json:"price"` // minor currency units
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`        // holding, confirmed, completed, cancelled
	PaymentStatus string    `json:"paymentStatus"` // pending, paid, refunded, cancelled
	ChargeID      string    `json:"chargeId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Active reports whether the booking currently claims slots.
func (b *Booking) Active() bool {
	return b.Status == StatusHolding || b.Status == StatusConfirmed
}
