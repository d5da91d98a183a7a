package notify

import (
	"encoding/json"
	"fmt"

	"courtbook/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the part of the Telegram API the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier pushes booking updates to a venue staff chat. It rides
// the in-process event bus, so reservation code never knows it exists.
type TelegramNotifier struct {
	sender Sender
	chatID int64
	logger zerolog.Logger
}

func NewTelegramNotifier(token string, chatID int64, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return newWithSender(bot, chatID, logger), nil
}

func newWithSender(sender Sender, chatID int64, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		sender: sender,
		chatID: chatID,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// SubscribeTo wires the notifier into the bus for the booking events staff
// care about.
func (n *TelegramNotifier) SubscribeTo(bus *events.Bus) {
	for _, eventType := range []string{
		events.EventBookingConfirmed,
		events.EventBookingCancelled,
		events.EventBookingExpired,
		events.EventRefundFailed,
	} {
		bus.Subscribe(eventType, n.handle)
	}
}

func (n *TelegramNotifier) handle(event *events.Event) error {
	var payload events.BookingEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		n.logger.Error().Err(err).Str("event_type", event.Type).Msg("decode event payload")
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, format(event.Type, payload))
	if _, err := n.sender.Send(msg); err != nil {
		n.logger.Error().Err(err).Str("event_type", event.Type).Msg("send telegram notification")
		return err
	}
	return nil
}

func format(eventType string, p events.BookingEventPayload) string {
	when := fmt.Sprintf("%s %s-%s", p.Date, p.StartTime, p.EndTime)
	switch eventType {
	case events.EventBookingConfirmed:
		return fmt.Sprintf("✅ Booking confirmed: court %s, %s, %d %s", p.CourtID, when, p.Price, p.Currency)
	case events.EventBookingCancelled:
		return fmt.Sprintf("❌ Booking cancelled: court %s, %s (payment: %s)", p.CourtID, when, p.PaymentStatus)
	case events.EventBookingExpired:
		return fmt.Sprintf("⏰ Hold expired: court %s, %s", p.CourtID, when)
	case events.EventRefundFailed:
		return fmt.Sprintf("⚠️ Refund failed for booking %s (%d %s) - needs manual action", p.BookingID, p.Price, p.Currency)
	default:
		return fmt.Sprintf("Booking %s: %s", p.BookingID, eventType)
	}
}
