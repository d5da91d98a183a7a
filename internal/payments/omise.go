package payments

import (
	"context"
	"errors"
	"fmt"

	"courtbook/internal/domain"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
	"github.com/rs/zerolog"
)

// ErrDisabled is returned when no payment provider is configured.
var ErrDisabled = errors.New("payments are not configured")

// OmiseGateway charges cards through the Omise API. Booking ids travel in
// charge metadata so webhook consumers can map charges back.
type OmiseGateway struct {
	client *omise.Client
	logger zerolog.Logger
}

func NewOmiseGateway(publicKey, secretKey string, logger *zerolog.Logger) (*OmiseGateway, error) {
	client, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("create omise client: %w", err)
	}
	client.SetDebug(false)

	return &OmiseGateway{
		client: client,
		logger: logger.With().Str("component", "payments").Logger(),
	}, nil
}

func (g *OmiseGateway) Charge(ctx context.Context, in domain.ChargeInput) (*domain.ChargeResult, error) {
	if in.Amount <= 0 || in.CardToken == "" || in.Currency == "" {
		return nil, errors.New("invalid charge params")
	}

	charge := &omise.Charge{}
	err := g.client.Do(charge, &operations.CreateCharge{
		Amount:   in.Amount,
		Currency: in.Currency,
		Card:     in.CardToken,
		Metadata: map[string]interface{}{"booking_id": in.BookingID},
	})
	if err != nil {
		return nil, fmt.Errorf("create charge: %w", err)
	}

	result := &domain.ChargeResult{ChargeID: charge.ID}
	switch string(charge.Status) {
	case "successful":
		result.Status = domain.ChargeSuccessful
	case "failed":
		result.Status = domain.ChargeFailed
		if charge.FailureCode != nil {
			result.Failure = *charge.FailureCode
		}
		if charge.FailureMessage != nil {
			result.Failure = result.Failure + ": " + *charge.FailureMessage
		}
	default:
		// pending / awaiting_authorize: final status arrives via webhook.
		result.Status = domain.ChargePending
	}

	g.logger.Info().
		Str("booking_id", in.BookingID).
		Str("charge_id", charge.ID).
		Str("status", result.Status).
		Msg("charge created")

	return result, nil
}

func (g *OmiseGateway) Refund(ctx context.Context, chargeID string, amount int64) error {
	if chargeID == "" || amount <= 0 {
		return errors.New("invalid refund params")
	}

	refund := &omise.Refund{}
	err := g.client.Do(refund, &operations.CreateRefund{
		ChargeID: chargeID,
		Amount:   amount,
	})
	if err != nil {
		return fmt.Errorf("create refund: %w", err)
	}

	g.logger.Info().
		Str("charge_id", chargeID).
		Int64("amount", amount).
		Msg("refund created")

	return nil
}

// Disabled rejects every payment operation. Used when no provider keys are
// configured so the rest of the system still runs.
type Disabled struct{}

func (Disabled) Charge(ctx context.Context, in domain.ChargeInput) (*domain.ChargeResult, error) {
	return nil, ErrDisabled
}

func (Disabled) Refund(ctx context.Context, chargeID string, amount int64) error {
	return ErrDisabled
}
