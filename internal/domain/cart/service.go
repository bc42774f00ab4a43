// internal/domain/cart/service.go
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/your-org/shop-backend/internal/domain"
	"github.com/your-org/shop-backend/internal/domain/item"
	"github.com/your-org/shop-backend/internal/domain/member"
	"github.com/your-org/shop-backend/internal/domain/order"
	"gorm.io/gorm"
)

// OrderPlacer turns cart lines into an order
type OrderPlacer interface {
	PlaceMultiOrder(ctx context.Context, tx *gorm.DB, lines []order.OrderLine, email string, usedPoint int) (uint, error)
}

// Service handles cart business logic. Every method runs against the
// transaction handle passed in by the caller.
type Service struct {
	orders OrderPlacer
	logger logrus.FieldLogger
}

// NewService creates a new cart service
func NewService(orders OrderPlacer, logger logrus.FieldLogger) *Service {
	return &Service{
		orders: orders,
		logger: logger.WithField("component", "cart"),
	}
}

// AddToCartRequest represents add to cart request
type AddToCartRequest struct {
	ItemID uint `json:"item_id" binding:"required"`
	Count  int  `json:"count" binding:"required,min=1"`
}

// UpdateCartItemRequest represents update cart item request
type UpdateCartItemRequest struct {
	Count int `json:"count" binding:"required,min=1"`
}

// CheckoutRequest selects the cart lines to order
type CheckoutRequest struct {
	CartItemIDs []uint `json:"cart_item_ids" binding:"required,min=1"`
	UsedPoint   int    `json:"used_point" binding:"min=0"`
}

// AddToCart adds count of the item to the member's cart and returns the
// line id. Adding an item already in the cart increases its count.
func (s *Service) AddToCart(tx *gorm.DB, email string, itemID uint, count int) (uint, error) {
	if count < 1 {
		return 0, fmt.Errorf("count %d: %w", count, domain.ErrInvalidCount)
	}

	m, err := member.FindByEmail(tx, email)
	if err != nil {
		return 0, err
	}
	// Validate item exists
	it, err := item.Find(tx, itemID)
	if err != nil {
		return 0, err
	}

	// Get or create the member's cart
	cart, err := s.findOrCreateCart(tx, m.ID)
	if err != nil {
		return 0, err
	}

	// Merge into an existing line for the same item
	var line CartItem
	err = tx.Where("cart_id = ? AND item_id = ?", cart.ID, it.ID).First(&line).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		line = CartItem{CartID: cart.ID, ItemID: it.ID, Count: count}
		if err := tx.Omit("Cart", "Item").Create(&line).Error; err != nil {
			return 0, fmt.Errorf("failed to add cart item: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("failed to retrieve cart item: %w", err)
	default:
		err := tx.Model(&line).UpdateColumn("count", gorm.Expr("count + ?", count)).Error
		if err != nil {
			return 0, fmt.Errorf("failed to update cart item: %w", err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"member_id":    m.ID,
		"cart_item_id": line.ID,
		"item_id":      it.ID,
		"count":        count,
	}).Debug("item added to cart")

	return line.ID, nil
}

// ListCart returns the member's cart lines, newest first. A member without a
// cart has an empty list.
func (s *Service) ListCart(tx *gorm.DB, email string) ([]CartDetail, error) {
	m, err := member.FindByEmail(tx, email)
	if err != nil {
		return nil, err
	}

	details := []CartDetail{}
	cart, err := findCart(tx, m.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return details, nil
	}
	if err != nil {
		return nil, err
	}

	// Load lines with item details
	err = tx.Table("cart_items").
		Select("cart_items.id AS cart_item_id, items.id AS item_id, items.name AS item_name, items.price AS price, cart_items.count AS count").
		Joins("JOIN items ON items.id = cart_items.item_id").
		Where("cart_items.cart_id = ?", cart.ID).
		Order("cart_items.id DESC").
		Scan(&details).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}

	// Attach representative images
	itemIDs := make([]uint, 0, len(details))
	for _, d := range details {
		itemIDs = append(itemIDs, d.ItemID)
	}
	images, err := item.RepImageURLs(tx, itemIDs)
	if err != nil {
		return nil, err
	}
	for i := range details {
		details[i].ImgURL = images[details[i].ItemID]
	}

	return details, nil
}

// ValidateOwnership reports whether the cart line belongs to the member with email
func (s *Service) ValidateOwnership(tx *gorm.DB, cartItemID uint, email string) (bool, error) {
	var line CartItem
	if err := tx.Preload("Cart.Member").First(&line, cartItemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("cart item %d: %w", cartItemID, domain.ErrNotFound)
		}
		return false, fmt.Errorf("failed to retrieve cart item: %w", err)
	}
	return line.Cart.Member.Email == member.NormalizeEmail(email), nil
}

// UpdateCount sets the count of a cart line
func (s *Service) UpdateCount(tx *gorm.DB, cartItemID uint, count int) error {
	if count < 1 {
		return fmt.Errorf("count %d: %w", count, domain.ErrInvalidCount)
	}

	result := tx.Model(&CartItem{}).Where("id = ?", cartItemID).UpdateColumn("count", count)
	if result.Error != nil {
		return fmt.Errorf("failed to update cart item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("cart item %d: %w", cartItemID, domain.ErrNotFound)
	}
	return nil
}

// RemoveCartItem deletes a cart line
func (s *Service) RemoveCartItem(tx *gorm.DB, cartItemID uint) error {
	result := tx.Where("id = ?", cartItemID).Delete(&CartItem{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove cart item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("cart item %d: %w", cartItemID, domain.ErrNotFound)
	}
	return nil
}

// Checkout orders the selected cart lines as one order and removes them from
// the cart. Every line must exist in the member's cart before anything changes.
func (s *Service) Checkout(ctx context.Context, tx *gorm.DB, cartItemIDs []uint, email string, usedPoint int) (uint, error) {
	ids := uniqueIDs(cartItemIDs)
	if len(ids) == 0 {
		return 0, fmt.Errorf("no cart items selected: %w", domain.ErrInvalidCount)
	}

	m, err := member.FindByEmail(tx, email)
	if err != nil {
		return 0, err
	}
	cart, err := findCart(tx, m.ID)
	if err != nil {
		return 0, err
	}

	// Validate every selected line before anything changes
	var found []CartItem
	if err := tx.Where("id IN ? AND cart_id = ?", ids, cart.ID).Find(&found).Error; err != nil {
		return 0, fmt.Errorf("failed to retrieve cart items: %w", err)
	}
	byID := make(map[uint]CartItem, len(found))
	for _, line := range found {
		byID[line.ID] = line
	}

	lines := make([]order.OrderLine, 0, len(ids))
	for _, id := range ids {
		line, ok := byID[id]
		if !ok {
			return 0, fmt.Errorf("cart item %d: %w", id, domain.ErrNotFound)
		}
		lines = append(lines, order.OrderLine{ItemID: line.ItemID, Count: line.Count})
	}

	// Place one order for all lines
	orderID, err := s.orders.PlaceMultiOrder(ctx, tx, lines, m.Email, usedPoint)
	if err != nil {
		return 0, err
	}

	// Remove ordered lines in the same transaction
	if err := tx.Where("id IN ?", ids).Delete(&CartItem{}).Error; err != nil {
		return 0, fmt.Errorf("failed to remove ordered cart items: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"member_id": m.ID,
		"order_id":  orderID,
		"lines":     len(ids),
	}).Info("cart checked out")

	return orderID, nil
}

func findCart(tx *gorm.DB, memberID uint) (*Cart, error) {
	var cart Cart
	if err := tx.Where("member_id = ?", memberID).First(&cart).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("cart of member %d: %w", memberID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to retrieve cart: %w", err)
	}
	return &cart, nil
}

func (s *Service) findOrCreateCart(tx *gorm.DB, memberID uint) (*Cart, error) {
	cart, err := findCart(tx, memberID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	cart = &Cart{MemberID: memberID}
	if err := tx.Omit("Member").Create(cart).Error; err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	s.logger.WithField("member_id", memberID).Debug("cart created")
	return cart, nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
