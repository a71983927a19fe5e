package settlement

import (
	"context"
	"fmt"
	"strings"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
	log "github.com/sirupsen/logrus"

	"rental/internal/domain"
	"rental/internal/logger"
	"rental/internal/money"
	"rental/internal/service"
)

// ChargeFunc creates a charge with the provider and fills in the result.
// The call must give up when ctx is done.
type ChargeFunc func(ctx context.Context, charge *omise.Charge, op *operations.CreateCharge) error

// OmiseProvider settles CARD payments from a card token and UPI payments from
// a source id.
type OmiseProvider struct {
	charge ChargeFunc
}

// NewOmiseProvider creates a provider that charges through the Omise API.
// The key pair is checked once here.
func NewOmiseProvider(publicKey, secretKey string) (*OmiseProvider, error) {
	if _, err := omise.NewClient(publicKey, secretKey); err != nil {
		return nil, err
	}
	return &OmiseProvider{
		charge: func(ctx context.Context, ch *omise.Charge, op *operations.CreateCharge) error {
			// WithContext mutates the client, so each charge gets its own.
			client, err := omise.NewClient(publicKey, secretKey)
			if err != nil {
				return err
			}
			client.WithContext(ctx)
			return client.Do(ch, op)
		},
	}, nil
}

// NewOmiseProviderWithCharge creates a provider around a custom charge call.
func NewOmiseProviderWithCharge(charge ChargeFunc) *OmiseProvider {
	return &OmiseProvider{charge: charge}
}

// Settle charges the payment and returns the Omise charge id.
func (p *OmiseProvider) Settle(ctx context.Context, req service.SettlementRequest) (string, error) {
	op := &operations.CreateCharge{
		Amount:   money.ToMinorUnits(req.Amount),
		Currency: strings.ToLower(req.Currency),
		Metadata: map[string]any{
			"payment_id":        req.PaymentID,
			"rental_request_id": req.RentalRequestID,
		},
	}

	switch req.Method {
	case domain.PaymentMethodCard:
		op.Card = req.Token
	case domain.PaymentMethodUPI:
		op.Source = req.Token
	default:
		return "", fmt.Errorf("%w: omise does not settle %s payments", service.ErrProviderRejected, req.Method)
	}

	logger.ExternalServiceCall(ctx, "omise", "create_charge", log.Fields{
		"payment_id": req.PaymentID,
		"amount":     op.Amount,
		"currency":   op.Currency,
	})

	ch := &omise.Charge{}
	if err := p.charge(ctx, ch, op); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.ExternalServiceResult(ctx, "omise", "create_charge", err)
		return "", fmt.Errorf("%w: %v", service.ErrProviderRejected, err)
	}

	switch string(ch.Status) {
	case "successful":
		logger.ExternalServiceResult(ctx, "omise", "create_charge", nil)
		return ch.ID, nil
	case "failed":
		var code, msg string
		if ch.FailureCode != nil {
			code = *ch.FailureCode
		}
		if ch.FailureMessage != nil {
			msg = *ch.FailureMessage
		}
		err := fmt.Errorf("%w: charge %s failed: %s %s", service.ErrProviderRejected, ch.ID, code, msg)
		logger.ExternalServiceResult(ctx, "omise", "create_charge", err)
		return "", err
	default:
		// Charges awaiting authorization need a redirect we do not follow.
		err := fmt.Errorf("%w: charge %s is %s", service.ErrProviderRejected, ch.ID, ch.Status)
		logger.ExternalServiceResult(ctx, "omise", "create_charge", err)
		return "", err
	}
}
