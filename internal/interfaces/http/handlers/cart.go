// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/shop-backend/internal/domain/cart"
	"github.com/your-org/shop-backend/internal/infrastructure/database/redis"
	"gorm.io/gorm"
)

const idempotencyHeader = "Idempotency-Key"

// CartHandler handles cart endpoints
type CartHandler struct {
	db          *gorm.DB
	cartService *cart.Service
	idempotency *redis.IdempotencyStore
	logger      logrus.FieldLogger
}

// NewCartHandler creates a new cart handler. A nil idempotency store disables
// Idempotency-Key handling on checkout.
func NewCartHandler(db *gorm.DB, cartService *cart.Service, idempotency *redis.IdempotencyStore, logger logrus.FieldLogger) *CartHandler {
	return &CartHandler{
		db:          db,
		cartService: cartService,
		idempotency: idempotency,
		logger:      logger.WithField("handler", "cart"),
	}
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	_, email, ok := currentMember(c)
	if !ok {
		return
	}

	var details []cart.CartDetail
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var err error
		details, err = h.cartService.ListCart(tx, email)
		return err
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart retrieved successfully",
		"data":    details,
	})
}

// AddToCart handles POST /cart/items
func (h *CartHandler) AddToCart(c *gin.Context) {
	_, email, ok := currentMember(c)
	if !ok {
		return
	}

	var req cart.AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	var cartItemID uint
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var err error
		cartItemID, err = h.cartService.AddToCart(tx, email, req.ItemID, req.Count)
		return err
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Item added to cart successfully",
		"data":    gin.H{"cart_item_id": cartItemID},
	})
}

// UpdateCartItem handles PATCH /cart/items/:id
func (h *CartHandler) UpdateCartItem(c *gin.Context) {
	_, email, ok := currentMember(c)
	if !ok {
		return
	}
	cartItemID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req cart.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := h.checkOwner(tx, cartItemID, email); err != nil {
			return err
		}
		return h.cartService.UpdateCount(tx, cartItemID, req.Count)
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart item updated successfully",
		"data":    gin.H{"cart_item_id": cartItemID, "count": req.Count},
	})
}

// RemoveCartItem handles DELETE /cart/items/:id
func (h *CartHandler) RemoveCartItem(c *gin.Context) {
	_, email, ok := currentMember(c)
	if !ok {
		return
	}
	cartItemID, ok := parseID(c, "id")
	if !ok {
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := h.checkOwner(tx, cartItemID, email); err != nil {
			return err
		}
		return h.cartService.RemoveCartItem(tx, cartItemID)
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart item removed successfully",
	})
}

// Checkout handles POST /cart/checkout. With an Idempotency-Key header a
// retried request returns the order the first attempt placed.
func (h *CartHandler) Checkout(c *gin.Context) {
	memberID, email, ok := currentMember(c)
	if !ok {
		return
	}

	var req cart.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx := c.Request.Context()
	key := c.GetHeader(idempotencyHeader)
	scope := strconv.FormatUint(uint64(memberID), 10)
	guarded := key != "" && h.idempotency != nil

	if guarded {
		orderID, reserved, err := h.idempotency.Reserve(ctx, scope, key)
		switch {
		case errors.Is(err, redis.ErrRequestInFlight):
			respondError(c, h.logger, err)
			return
		case err != nil:
			// fail open when Redis is unreachable
			h.logger.WithError(err).WithField("member_id", memberID).Warn("idempotency guard unavailable, checking out without it")
			guarded = false
		case !reserved:
			c.JSON(http.StatusOK, gin.H{
				"message": "Order already placed",
				"data":    gin.H{"order_id": orderID, "replayed": true},
			})
			return
		}
	}

	var orderID uint
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		orderID, err = h.cartService.Checkout(ctx, tx, req.CartItemIDs, email, req.UsedPoint)
		return err
	})

	if guarded {
		// the reservation must settle even when the request context is gone
		settleCtx := context.WithoutCancel(ctx)
		if err != nil {
			if relErr := h.idempotency.Release(settleCtx, scope, key); relErr != nil {
				h.logger.WithError(relErr).Warn("failed to release idempotency key")
			}
		} else if compErr := h.idempotency.Complete(settleCtx, scope, key, orderID); compErr != nil {
			h.logger.WithError(compErr).WithField("order_id", orderID).Warn("failed to record idempotency result")
		}
	}

	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Order placed successfully",
		"data":    gin.H{"order_id": orderID},
	})
}

func (h *CartHandler) checkOwner(tx *gorm.DB, cartItemID uint, email string) error {
	owned, err := h.cartService.ValidateOwnership(tx, cartItemID, email)
	if err != nil {
		return err
	}
	if !owned {
		return fmt.Errorf("cart item %d: %w", cartItemID, errForbidden)
	}
	return nil
}
