package models

// TimeSlot is the smallest bookable unit for one court on one day.
// ReservedBy and ReservationID are set iff IsAvailable is false.
type TimeSlot struct {
	IsAvailable   bool   `json:"isAvailable"`
	ReservedBy    string `json:"reservedBy,omitempty"`
	ReservationID string `json:"reservationId,omitempty"`
}

// DayAvailability maps a slot-start key ("14:00") to its state for one date.
type DayAvailability map[string]TimeSlot

// CourtAvailability maps a date ("2024-06-01") to a day of slots for one court.
type CourtAvailability map[string]DayAvailability

// MonthlyAvailability is the persisted aggregate for all courts in one
// calendar month, stored as a single document keyed by "YYYY-MM".
type MonthlyAvailability struct {
	YearMonth string                       `json:"yearMonth"`
	Courts    map[string]CourtAvailability `json:"courts"`
}

// Day returns the stored day for a court, which may be nil or partial.
func (m *MonthlyAvailability) Day(courtID, date string) DayAvailability {
	if m == nil || m.Courts == nil {
		return nil
	}
	return m.Courts[courtID][date]
}

// SetDay writes a day back into the aggregate, creating maps as needed.
func (m *MonthlyAvailability) SetDay(courtID, date string, day DayAvailability) {
	if m.Courts == nil {
		m.Courts = make(map[string]CourtAvailability)
	}
	if m.Courts[courtID] == nil {
		m.Courts[courtID] = make(CourtAvailability)
	}
	m.Courts[courtID][date] = day
}

// Clone returns a deep copy. Used by tests to snapshot state around
// transactions.
func (d DayAvailability) Clone() DayAvailability {
	if d == nil {
		return nil
	}
	out := make(DayAvailability, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
