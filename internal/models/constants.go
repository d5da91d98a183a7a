package models

const (
	StatusHolding   = "holding"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	PaymentPending   = "pending"
	PaymentPaid      = "paid"
	PaymentRefunded  = "refunded"
	PaymentCancelled = "cancelled"
)

const (
	DateFormat  = "2006-01-02"
	TimeFormat  = "15:04"
	MonthFormat = "2006-01"
)

const (
	// DefaultGranularityMinutes длительность одного слота
	DefaultGranularityMinutes = 60

	// DefaultOpenTime / DefaultCloseTime часы работы площадки по умолчанию
	DefaultOpenTime  = "08:00"
	DefaultCloseTime = "22:00"

	// DefaultHoldTTLMinutes время жизни неоплаченной брони
	DefaultHoldTTLMinutes = 15

	// DefaultSweepIntervalSeconds период проверки истёкших броней
	DefaultSweepIntervalSeconds = 30

	// DefaultCurrency валюта расчётов по умолчанию
	DefaultCurrency = "thb"
)

// OperatingHours bound the bookable part of a day, inclusive of Open and
// exclusive of Close.
type OperatingHours struct {
	Open  string `yaml:"open"`
	Close string `yaml:"close"`
}
