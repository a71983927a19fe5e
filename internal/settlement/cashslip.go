package settlement

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rental/internal/clock"
	"rental/internal/money"
	"rental/internal/service"
)

const cashSlipIssuer = "rental-counter"

type cashSlipClaims struct {
	Amount   string `json:"amount"`
	IssuedBy string `json:"issued_by"`
	jwt.RegisteredClaims
}

// CashSlips signs and checks the slips a store owner hands over after
// collecting cash. A slip names one rental request and one amount.
type CashSlips struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewCashSlips creates a slip signer. Slips expire ttl after issue.
func NewCashSlips(secret string, ttl time.Duration, clk clock.Clock) *CashSlips {
	if clk == nil {
		clk = clock.System{}
	}
	return &CashSlips{secret: []byte(secret), ttl: ttl, clock: clk}
}

// IssueCashSlip signs a slip for the rental request and amount.
func (s *CashSlips) IssueCashSlip(rentalRequestID string, amount decimal.Decimal, issuedBy string) (string, time.Time, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.ttl).Truncate(time.Second)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, cashSlipClaims{
		Amount:   money.Format(amount),
		IssuedBy: issuedBy,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    cashSlipIssuer,
			Subject:   rentalRequestID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	slip, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return slip, expiresAt, nil
}

// Verify checks that slip was issued for this rental request and amount and
// has not expired. It returns the slip id.
func (s *CashSlips) Verify(slip, rentalRequestID string, amount decimal.Decimal) (string, error) {
	claims := &cashSlipClaims{}
	t, err := jwt.ParseWithClaims(slip, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(cashSlipIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil || !t.Valid {
		return "", fmt.Errorf("%w: invalid cash slip: %v", service.ErrProviderRejected, err)
	}

	if claims.Subject != rentalRequestID {
		return "", fmt.Errorf("%w: cash slip belongs to another rental request", service.ErrProviderRejected)
	}
	slipAmount, err := decimal.NewFromString(claims.Amount)
	if err != nil || !money.Equal(slipAmount, amount) {
		return "", fmt.Errorf("%w: cash slip is for %s, not %s", service.ErrProviderRejected, claims.Amount, money.Format(amount))
	}
	return claims.ID, nil
}
