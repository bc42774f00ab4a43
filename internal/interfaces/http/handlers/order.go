// internal/interfaces/http/handlers/order.go
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/shop-backend/internal/domain"
	"github.com/your-org/shop-backend/internal/domain/order"
	"gorm.io/gorm"
)

// OrderHandler handles order endpoints
type OrderHandler struct {
	db           *gorm.DB
	orderService *order.Service
	logger       logrus.FieldLogger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(db *gorm.DB, orderService *order.Service, logger logrus.FieldLogger) *OrderHandler {
	return &OrderHandler{
		db:           db,
		orderService: orderService,
		logger:       logger.WithField("handler", "order"),
	}
}

// CreateOrder handles POST /orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	_, email, ok := currentMember(c)
	if !ok {
		return
	}

	// Bind request
	var req order.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx := c.Request.Context()
	var orderID uint
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		orderID, err = h.orderService.PlaceSingleOrder(ctx, tx, req, email)
		return err
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Order placed successfully",
		"data":    gin.H{"order_id": orderID},
	})
}

// GetOrders handles GET /orders?gift_status=&page=&limit=
func (h *OrderHandler) GetOrders(c *gin.Context) {
	_, email, ok := currentMember(c)
	if !ok {
		return
	}

	var page domain.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		bindError(c, err)
		return
	}

	// Optional gift status filter
	giftStatus, err := order.ParseGiftStatus(c.Query("gift_status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	var history *order.OrderHistoryResponse
	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var err error
		history, err = h.orderService.ListOrders(tx, email, page, giftStatus)
		return err
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Orders retrieved successfully",
		"data":    history,
	})
}

// GetReturns handles GET /orders/returns
func (h *OrderHandler) GetReturns(c *gin.Context) {
	_, email, ok := currentMember(c)
	if !ok {
		return
	}

	var page domain.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		bindError(c, err)
		return
	}

	var history *order.OrderHistoryResponse
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var err error
		history, err = h.orderService.ListReturns(tx, email, page)
		return err
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Returns retrieved successfully",
		"data":    history,
	})
}

// GetOrder handles GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
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
		if err := checkOrderOwner(tx, h.orderService, orderID, email); err != nil {
			return err
		}
		var err error
		found, err = h.orderService.GetOrder(tx, orderID)
		return err
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order retrieved successfully",
		"data":    found,
	})
}

// CancelOrder handles POST /orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	h.ownedTransition(c, "Order cancelled successfully", h.orderService.CancelOrder)
}

// RequestReturn handles POST /orders/:id/return
func (h *OrderHandler) RequestReturn(c *gin.Context) {
	h.ownedTransition(c, "Return requested successfully", h.orderService.RequestReturn)
}

// ConfirmReturn handles POST /admin/orders/:id/return/confirm
func (h *OrderHandler) ConfirmReturn(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		return h.orderService.ConfirmReturn(tx, orderID)
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Return confirmed successfully",
		"data":    gin.H{"order_id": orderID},
	})
}

// ownedTransition runs a state change on an order owned by the caller
func (h *OrderHandler) ownedTransition(c *gin.Context, message string, transition func(*gorm.DB, uint) error) {
	_, email, ok := currentMember(c)
	if !ok {
		return
	}
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := checkOrderOwner(tx, h.orderService, orderID, email); err != nil {
			return err
		}
		return transition(tx, orderID)
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"data":    gin.H{"order_id": orderID},
	})
}

func checkOrderOwner(tx *gorm.DB, orders *order.Service, orderID uint, email string) error {
	owned, err := orders.ValidateOwnership(tx, orderID, email)
	if err != nil {
		return err
	}
	if !owned {
		return fmt.Errorf("order %d: %w", orderID, errForbidden)
	}
	return nil
}
