package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rental/internal/receipt"
	"rental/internal/service"
)

// ReceiptHandler serves stored receipts.
type ReceiptHandler struct {
	receiptService *service.ReceiptService
}

// NewReceiptHandler creates a new ReceiptHandler.
func NewReceiptHandler(receiptService *service.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{receiptService: receiptService}
}

// Get handles GET /v1/payments/:id/receipt
func (h *ReceiptHandler) Get(c *gin.Context) {
	rec, err := h.receiptService.Get(c.Request.Context(), c.Param("id"), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, rec)
}

// Document handles GET /v1/payments/:id/receipt.pdf
func (h *ReceiptHandler) Document(c *gin.Context) {
	rec, doc, err := h.receiptService.Regenerate(c.Request.Context(), c.Param("id"), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="`+receipt.Filename(rec)+`"`)
	c.Header("Cache-Control", "private, max-age=86400, immutable")
	c.Data(http.StatusOK, "application/pdf", doc)
}
