package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rental/internal/clock"
	"rental/internal/money"
	"rental/internal/service"
)

// VehicleHandler serves the booking views of a vehicle.
type VehicleHandler struct {
	rentalService *service.RentalService
}

// NewVehicleHandler creates a new VehicleHandler.
func NewVehicleHandler(rentalService *service.RentalService) *VehicleHandler {
	return &VehicleHandler{rentalService: rentalService}
}

// QuoteResponse is the HTTP response for a price preview.
type QuoteResponse struct {
	VehicleID       string `json:"vehicle_id"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	Listed          bool   `json:"listed"`
	Days            int    `json:"days"`
	Months          int    `json:"months"`
	MonthlyRate     string `json:"monthly_rate"`
	MonthsAmount    string `json:"months_amount"`
	RemainderDays   int    `json:"remainder_days"`
	DailyRate       string `json:"daily_rate"`
	RemainderAmount string `json:"remainder_amount"`
	RemainderCapped bool   `json:"remainder_capped"`
	Total           string `json:"total"`
}

// AvailabilityResponse is the HTTP response for an availability query.
type AvailabilityResponse struct {
	VehicleID string `json:"vehicle_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Available bool   `json:"available"`
}

// Quote handles GET /v1/vehicles/:id/quote
func (h *VehicleHandler) Quote(c *gin.Context) {
	start, end, err := parseRange(c)
	if err != nil {
		respondError(c, err)
		return
	}

	q, err := h.rentalService.Quote(c.Request.Context(), c.Param("id"), start, end)
	if err != nil {
		respondError(c, err)
		return
	}

	b := q.Breakdown
	respondJSON(c, http.StatusOK, QuoteResponse{
		VehicleID:       q.VehicleID,
		StartDate:       clock.FormatDate(q.StartDate),
		EndDate:         clock.FormatDate(q.EndDate),
		Listed:          q.Listed,
		Days:            b.Days,
		Months:          b.Months,
		MonthlyRate:     money.Format(b.MonthlyRate),
		MonthsAmount:    money.Format(b.MonthsAmount),
		RemainderDays:   b.RemainderDays,
		DailyRate:       money.Format(b.DailyRate),
		RemainderAmount: money.Format(b.RemainderAmount),
		RemainderCapped: b.RemainderCapped,
		Total:           money.Format(b.Total),
	})
}

// Availability handles GET /v1/vehicles/:id/availability
func (h *VehicleHandler) Availability(c *gin.Context) {
	start, end, err := parseRange(c)
	if err != nil {
		respondError(c, err)
		return
	}

	ok, err := h.rentalService.CheckAvailability(c.Request.Context(), c.Param("id"), start, end)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, AvailabilityResponse{
		VehicleID: c.Param("id"),
		StartDate: clock.FormatDate(start),
		EndDate:   clock.FormatDate(end),
		Available: ok,
	})
}

// ListRentals handles GET /v1/vehicles/:id/rentals
func (h *VehicleHandler) ListRentals(c *gin.Context) {
	rentals, err := h.rentalService.ListForVehicle(c.Request.Context(), c.Param("id"), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRentalResponses(rentals))
}
