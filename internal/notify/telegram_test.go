package notify

import (
	"testing"

	"courtbook/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func TestNotifierSendsOnBookingEvents(t *testing.T) {
	logger := zerolog.Nop()
	sender := &fakeSender{}
	notifier := newWithSender(sender, 42, &logger)

	bus := events.NewBus()
	notifier.SubscribeTo(bus)

	payload := events.BookingEventPayload{
		BookingID: "bk-1",
		CourtID:   "court-a",
		Date:      "2024-06-01",
		StartTime: "14:00",
		EndTime:   "16:00",
		Price:     80000,
		Currency:  "thb",
	}

	require.NoError(t, bus.PublishJSON(events.EventBookingConfirmed, payload))
	require.NoError(t, bus.PublishJSON(events.EventBookingCancelled, payload))
	// Created events are noise for staff; nothing subscribed.
	require.NoError(t, bus.PublishJSON(events.EventBookingCreated, payload))

	require.Len(t, sender.sent, 2)
	assert.EqualValues(t, 42, sender.sent[0].ChatID)
	assert.Contains(t, sender.sent[0].Text, "court-a")
	assert.Contains(t, sender.sent[0].Text, "14:00-16:00")
	assert.Contains(t, sender.sent[1].Text, "cancelled")
}
