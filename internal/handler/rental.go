package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rental/internal/clock"
	"rental/internal/domain"
	"rental/internal/money"
	"rental/internal/service"
)

// RentalHandler handles HTTP requests for rental requests.
type RentalHandler struct {
	rentalService *service.RentalService
}

// NewRentalHandler creates a new RentalHandler.
func NewRentalHandler(rentalService *service.RentalService) *RentalHandler {
	return &RentalHandler{rentalService: rentalService}
}

// CreateRentalRequest is the HTTP request body for booking a vehicle.
type CreateRentalRequest struct {
	VehicleID string `json:"vehicle_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// RenewRentalRequest is the HTTP request body for extending a rental.
type RenewRentalRequest struct {
	EndDate string `json:"end_date"`
}

// RentalResponse is the HTTP response for rental request operations.
type RentalResponse struct {
	ID          string `json:"id"`
	VehicleID   string `json:"vehicle_id"`
	CustomerID  string `json:"customer_id"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Days        int    `json:"days"`
	TotalAmount string `json:"total_amount"`
	Status      string `json:"status"`
	Paid        bool   `json:"paid"`
	PaidAt      string `json:"paid_at,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toRentalResponse(r *domain.RentalRequest) RentalResponse {
	return RentalResponse{
		ID:          r.ID,
		VehicleID:   r.VehicleID,
		CustomerID:  r.CustomerID,
		StartDate:   clock.FormatDate(r.StartDate),
		EndDate:     clock.FormatDate(r.EndDate),
		Days:        clock.DaysBetween(r.StartDate, r.EndDate),
		TotalAmount: money.Format(r.TotalAmount),
		Status:      string(r.Status),
		Paid:        r.IsPaid(),
		PaidAt:      formatTime(r.PaidAt),
		CreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toRentalResponses(rentals []*domain.RentalRequest) []RentalResponse {
	out := make([]RentalResponse, 0, len(rentals))
	for _, r := range rentals {
		out = append(out, toRentalResponse(r))
	}
	return out
}

// Create handles POST /v1/rentals
func (h *RentalHandler) Create(c *gin.Context) {
	var req CreateRentalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		respondError(c, err)
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		respondError(c, err)
		return
	}

	rental, err := h.rentalService.Create(c.Request.Context(), service.CreateRentalRequest{
		VehicleID: req.VehicleID,
		Customer:  principal(c),
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Location", "/v1/rentals/"+rental.ID)
	respondJSON(c, http.StatusCreated, toRentalResponse(rental))
}

// List handles GET /v1/rentals
func (h *RentalHandler) List(c *gin.Context) {
	rentals, err := h.rentalService.ListForCustomer(c.Request.Context(), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRentalResponses(rentals))
}

// Get handles GET /v1/rentals/:id
func (h *RentalHandler) Get(c *gin.Context) {
	rental, err := h.rentalService.Get(c.Request.Context(), c.Param("id"), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRentalResponse(rental))
}

// Approve handles POST /v1/rentals/:id/approve
func (h *RentalHandler) Approve(c *gin.Context) {
	rental, err := h.rentalService.Approve(c.Request.Context(), c.Param("id"), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRentalResponse(rental))
}

// Reject handles POST /v1/rentals/:id/reject
func (h *RentalHandler) Reject(c *gin.Context) {
	rental, err := h.rentalService.Reject(c.Request.Context(), c.Param("id"), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRentalResponse(rental))
}

// Cancel handles POST /v1/rentals/:id/cancel
func (h *RentalHandler) Cancel(c *gin.Context) {
	rental, err := h.rentalService.Cancel(c.Request.Context(), c.Param("id"), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRentalResponse(rental))
}

// Renew handles POST /v1/rentals/:id/renew
func (h *RentalHandler) Renew(c *gin.Context) {
	var req RenewRentalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		respondError(c, err)
		return
	}

	rental, err := h.rentalService.Renew(c.Request.Context(), c.Param("id"), principal(c), end)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRentalResponse(rental))
}
