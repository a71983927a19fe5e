package settlement

import (
	"context"
	"fmt"

	"rental/internal/domain"
	"rental/internal/service"
)

// CounterProvider confirms CASH collected at the store counter. The payment
// token must be a slip the store owner issued for this rental request.
type CounterProvider struct {
	slips *CashSlips
}

// NewCounterProvider creates a new CounterProvider.
func NewCounterProvider(slips *CashSlips) *CounterProvider {
	return &CounterProvider{slips: slips}
}

// Settle confirms a cash payment against its slip.
func (p *CounterProvider) Settle(ctx context.Context, req service.SettlementRequest) (string, error) {
	if req.Method != domain.PaymentMethodCash {
		return "", fmt.Errorf("%w: counter only accepts cash", service.ErrProviderRejected)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Token == "" {
		return "", fmt.Errorf("%w: cash needs a slip from the store owner", service.ErrProviderRejected)
	}

	slipID, err := p.slips.Verify(req.Token, req.RentalRequestID, req.Amount)
	if err != nil {
		return "", err
	}
	return "counter_" + slipID, nil
}
