package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rental/internal/domain"
	"rental/internal/money"
	"rental/internal/service"
)

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// SubmitPaymentRequest is the HTTP request body for paying a rental.
type SubmitPaymentRequest struct {
	Method string `json:"method"`
	Amount string `json:"amount"`
	Token  string `json:"token,omitempty"` // card token or source id
}

// PaymentResponse is the HTTP response for payment operations.
type PaymentResponse struct {
	ID              string `json:"id"`
	RentalRequestID string `json:"rental_request_id"`
	Amount          string `json:"amount"`
	Method          string `json:"method"`
	Status          string `json:"status"`
	ReceiptURL      string `json:"receipt_url,omitempty"`
	ProviderRef     string `json:"provider_ref,omitempty"`
	FailureReason   string `json:"failure_reason,omitempty"`
	CreatedAt       string `json:"created_at"`
	SettledAt       string `json:"settled_at,omitempty"`
}

func toPaymentResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:              p.ID,
		RentalRequestID: p.RentalRequestID,
		Amount:          money.Format(p.Amount),
		Method:          string(p.Method),
		Status:          string(p.Status),
		ReceiptURL:      p.ReceiptURL,
		ProviderRef:     p.ProviderRef,
		FailureReason:   p.FailureReason,
		CreatedAt:       p.CreatedAt.UTC().Format(time.RFC3339),
		SettledAt:       formatTime(p.SettledAt),
	}
}

// Submit handles POST /v1/rentals/:id/payments
func (h *PaymentHandler) Submit(c *gin.Context) {
	var req SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	amount, err := money.Parse(req.Amount)
	if errors.Is(err, money.ErrTooPrecise) {
		respondError(c, service.ErrPaymentAmountPrecision)
		return
	}
	if err != nil {
		respondError(c, service.ErrInvalidPaymentAmount)
		return
	}

	payment, err := h.paymentService.Submit(c.Request.Context(), service.SubmitPaymentRequest{
		RentalRequestID: c.Param("id"),
		Customer:        principal(c),
		Method:          req.Method,
		Amount:          amount,
		Token:           req.Token,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	// A declined settlement still created a payment attempt.
	code := http.StatusCreated
	if payment.Status == domain.PaymentStatusFailed {
		code = http.StatusPaymentRequired
	}
	respondJSON(c, code, toPaymentResponse(payment))
}

// CashSlipResponse is the HTTP response for an issued cash slip.
type CashSlipResponse struct {
	RentalRequestID string `json:"rental_request_id"`
	Amount          string `json:"amount"`
	Slip            string `json:"slip"`
	ExpiresAt       string `json:"expires_at"`
}

// IssueCashSlip handles POST /v1/rentals/:id/cash-slip
func (h *PaymentHandler) IssueCashSlip(c *gin.Context) {
	slip, err := h.paymentService.IssueCashSlip(c.Request.Context(), c.Param("id"), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, CashSlipResponse{
		RentalRequestID: slip.RentalRequestID,
		Amount:          money.Format(slip.Amount),
		Slip:            slip.Slip,
		ExpiresAt:       slip.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// ListForRental handles GET /v1/rentals/:id/payments
func (h *PaymentHandler) ListForRental(c *gin.Context) {
	payments, err := h.paymentService.ListForRental(c.Request.Context(), c.Param("id"), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	respondJSON(c, http.StatusOK, out)
}

// Get handles GET /v1/payments/:id
func (h *PaymentHandler) Get(c *gin.Context) {
	payment, err := h.paymentService.Get(c.Request.Context(), c.Param("id"), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toPaymentResponse(payment))
}
