package settlement

import (
	"context"
	"fmt"

	"rental/internal/domain"
	"rental/internal/service"
)

// Router dispatches a settlement to the provider registered for its method.
type Router struct {
	providers map[domain.PaymentMethod]service.SettlementProvider
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{providers: make(map[domain.PaymentMethod]service.SettlementProvider)}
}

// Register routes a payment method to a provider.
func (r *Router) Register(method domain.PaymentMethod, provider service.SettlementProvider) *Router {
	r.providers[method] = provider
	return r
}

// Settle implements service.SettlementProvider.
func (r *Router) Settle(ctx context.Context, req service.SettlementRequest) (string, error) {
	provider, ok := r.providers[req.Method]
	if !ok {
		return "", fmt.Errorf("%w: no provider for %s payments", service.ErrProviderRejected, req.Method)
	}
	return provider.Settle(ctx, req)
}

var _ service.SettlementProvider = (*Router)(nil)
