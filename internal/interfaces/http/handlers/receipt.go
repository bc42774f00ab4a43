package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/shop-backend/internal/domain/order"
	"github.com/your-org/shop-backend/internal/interfaces/http/middleware"
	"gorm.io/gorm"
)

// ReceiptRenderer turns a loaded order into a printable document
type ReceiptRenderer interface {
	GenerateReceipt(o *order.Order) (*bytes.Buffer, error)
}

// ReceiptHandler serves order receipts
type ReceiptHandler struct {
	db           *gorm.DB
	orderService *order.Service
	renderer     ReceiptRenderer
	logger       logrus.FieldLogger
}

// NewReceiptHandler creates a new receipt handler
func NewReceiptHandler(db *gorm.DB, orderService *order.Service, renderer ReceiptRenderer, logger logrus.FieldLogger) *ReceiptHandler {
	return &ReceiptHandler{
		db:           db,
		orderService: orderService,
		renderer:     renderer,
		logger:       logger.WithField("handler", "receipt"),
	}
}

// DownloadReceipt handles GET /orders/:id/receipt. Admins may fetch any receipt.
func (h *ReceiptHandler) DownloadReceipt(c *gin.Context) {
	_, email, ok := currentMember(c)
	if !ok {
		return
	}
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var found *order.Order
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if !middleware.IsAdminFromContext(c) {
			if err := checkOrderOwner(tx, h.orderService, orderID, email); err != nil {
				return err
			}
		}
		var err error
		found, err = h.orderService.GetOrder(tx, orderID)
		return err
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	pdfBuffer, err := h.renderer.GenerateReceipt(found)
	if err != nil {
		respondError(c, h.logger, fmt.Errorf("failed to generate receipt for order %d: %w", orderID, err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=receipt-%s.pdf", found.OrderNumber))
	c.Header("Content-Length", strconv.Itoa(pdfBuffer.Len()))
	c.Data(http.StatusOK, "application/pdf", pdfBuffer.Bytes())
}
