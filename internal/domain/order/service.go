// internal/domain/order/service.go
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/shop-backend/internal/config"
	"github.com/your-org/shop-backend/internal/domain"
	"github.com/your-org/shop-backend/internal/domain/item"
	"github.com/your-org/shop-backend/internal/domain/member"
	"github.com/your-org/shop-backend/internal/pkg/notify"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Notifier delivers order notifications to a member
type Notifier interface {
	SendOrderNotification(ctx context.Context, to notify.Recipient, notice notify.OrderNotice) error
	SendCartOrderNotification(ctx context.Context, to notify.Recipient, notice notify.OrderNotice) error
}

// Service handles order business logic. Every method runs against the
// transaction handle passed in by the caller.
type Service struct {
	notifier       Notifier
	accrualPercent int
	logger         logrus.FieldLogger
	now            func() time.Time
}

// NewService creates a new order service
func NewService(cfg *config.Config, notifier Notifier, logger logrus.FieldLogger) *Service {
	return &Service{
		notifier:       notifier,
		accrualPercent: cfg.Points.AccrualPercent,
		logger:         logger.WithField("component", "order"),
		now:            time.Now,
	}
}

// OrderRequest represents a single item order
type OrderRequest struct {
	ItemID        uint       `json:"item_id" binding:"required"`
	Count         int        `json:"count" binding:"required,min=1"`
	Address       string     `json:"address"`
	AddressDetail string     `json:"address_detail"`
	UsedPoint     int        `json:"used_point" binding:"min=0"`
	GiftStatus    GiftStatus `json:"gift_status" binding:"omitempty,oneof=BUY GIFT"`
}

// OrderLine is one item and count of a multi item order
type OrderLine struct {
	ItemID uint `json:"item_id"`
	Count  int  `json:"count"`
}

// OrderItemView is an order line as shown in order history
type OrderItemView struct {
	ItemID     uint   `json:"item_id"`
	ItemName   string `json:"item_name"`
	Count      int    `json:"count"`
	OrderPrice int64  `json:"order_price"`
	ImgURL     string `json:"img_url"`
}

// OrderHistory is one order as shown in order history
type OrderHistory struct {
	OrderID      uint            `json:"order_id"`
	OrderNumber  string          `json:"order_number"`
	OrderDate    time.Time       `json:"order_date"`
	Status       OrderStatus     `json:"status"`
	GiftStatus   GiftStatus      `json:"gift_status"`
	ReturnStatus *ReturnStatus   `json:"return_status"`
	TotalPrice   int64           `json:"total_price"`
	UsedPoint    int             `json:"used_point"`
	AccPoint     int             `json:"acc_point"`
	Items        []OrderItemView `json:"items"`
}

// OrderHistoryResponse represents a page of order history
type OrderHistoryResponse struct {
	Orders     []OrderHistory    `json:"orders"`
	Pagination domain.Pagination `json:"pagination"`
}

// PlaceSingleOrder orders one item for the member and returns the order id
func (s *Service) PlaceSingleOrder(ctx context.Context, tx *gorm.DB, req OrderRequest, email string) (uint, error) {
	if req.Count < 1 {
		return 0, fmt.Errorf("count %d: %w", req.Count, domain.ErrInvalidCount)
	}
	if req.GiftStatus == "" {
		req.GiftStatus = GiftStatusBuy
	}

	// Validate item exists
	it, err := item.Find(tx, req.ItemID)
	if err != nil {
		return 0, err
	}

	// Lock the member and check the balance
	m, err := s.lockMember(tx, email)
	if err != nil {
		return 0, err
	}
	if err := checkPoints(m, req.UsedPoint); err != nil {
		return 0, err
	}

	// Default to the member's address
	address, detail := req.Address, req.AddressDetail
	if address == "" {
		address, detail = m.Address, m.AddressDetail
	}

	// Create order and apply points
	order := s.newOrder(m, req.GiftStatus, req.UsedPoint, address, detail, []OrderItem{NewOrderItem(it, req.Count)})
	if err := s.persist(tx, order); err != nil {
		return 0, err
	}
	if err := s.applyPoints(tx, m.ID, order.UsedPoint, order.AccPoint); err != nil {
		return 0, err
	}
	if err := item.IncrementTagSales(tx, it.ID); err != nil {
		return 0, err
	}

	// Gifts are not announced to the buyer
	if order.GiftStatus == GiftStatusBuy {
		notice := buildNotice(order, map[uint]*item.Item{it.ID: it})
		if err := s.notifier.SendOrderNotification(ctx, recipientOf(m), notice); err != nil {
			return 0, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"member_id":   m.ID,
		"gift_status": order.GiftStatus,
		"total_price": order.TotalPrice,
	}).Info("order placed")

	return order.ID, nil
}

// PlaceMultiOrder orders every line in one BUY order and returns the order id
func (s *Service) PlaceMultiOrder(ctx context.Context, tx *gorm.DB, lines []OrderLine, email string, usedPoint int) (uint, error) {
	if len(lines) == 0 {
		return 0, fmt.Errorf("order has no lines: %w", domain.ErrInvalidCount)
	}

	// Lock the member and check the balance
	m, err := s.lockMember(tx, email)
	if err != nil {
		return 0, err
	}
	if err := checkPoints(m, usedPoint); err != nil {
		return 0, err
	}

	// Build order items, loading each item once
	items := make(map[uint]*item.Item, len(lines))
	orderItems := make([]OrderItem, 0, len(lines))
	for _, line := range lines {
		if line.Count < 1 {
			return 0, fmt.Errorf("item %d count %d: %w", line.ItemID, line.Count, domain.ErrInvalidCount)
		}
		it, ok := items[line.ItemID]
		if !ok {
			if it, err = item.Find(tx, line.ItemID); err != nil {
				return 0, err
			}
			items[line.ItemID] = it
		}
		orderItems = append(orderItems, NewOrderItem(it, line.Count))
	}

	// Create order and apply points
	order := s.newOrder(m, GiftStatusBuy, usedPoint, m.Address, m.AddressDetail, orderItems)
	if err := s.persist(tx, order); err != nil {
		return 0, err
	}
	if err := s.applyPoints(tx, m.ID, order.UsedPoint, order.AccPoint); err != nil {
		return 0, err
	}

	if err := s.notifier.SendCartOrderNotification(ctx, recipientOf(m), buildNotice(order, items)); err != nil {
		return 0, err
	}

	// Update tag sales counters
	for _, oi := range order.Items {
		if err := item.IncrementTagSales(tx, oi.ItemID); err != nil {
			return 0, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"member_id":   m.ID,
		"lines":       len(order.Items),
		"total_price": order.TotalPrice,
	}).Info("multi item order placed")

	return order.ID, nil
}

// ListOrders returns the member's order history, newest first, optionally
// restricted to one gift status
func (s *Service) ListOrders(tx *gorm.DB, email string, page domain.PageRequest, giftStatus *GiftStatus) (*OrderHistoryResponse, error) {
	return s.history(tx, email, page, func(db *gorm.DB) *gorm.DB {
		if giftStatus != nil {
			return db.Where("gift_status = ?", *giftStatus)
		}
		return db
	})
}

// ListReturns returns the member's orders that are in the return workflow
func (s *Service) ListReturns(tx *gorm.DB, email string, page domain.PageRequest) (*OrderHistoryResponse, error) {
	return s.history(tx, email, page, func(db *gorm.DB) *gorm.DB {
		return db.Where("status = ?", OrderStatusReturn)
	})
}

// GetOrder retrieves a single order by ID
func (s *Service) GetOrder(tx *gorm.DB, orderID uint) (*Order, error) {
	var order Order
	err := tx.
		Preload("Member").
		Preload("Items.Item").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&order, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %d: %w", orderID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to retrieve order: %w", err)
	}
	return &order, nil
}

// ValidateOwnership reports whether the order belongs to the member with email
func (s *Service) ValidateOwnership(tx *gorm.DB, orderID uint, email string) (bool, error) {
	var order Order
	if err := tx.Preload("Member").First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("order %d: %w", orderID, domain.ErrNotFound)
		}
		return false, fmt.Errorf("failed to retrieve order: %w", err)
	}
	return order.Member.Email == member.NormalizeEmail(email), nil
}

// CancelOrder cancels an active order and reverses its point effect.
// Cancelling an already cancelled order does nothing.
func (s *Service) CancelOrder(tx *gorm.DB, orderID uint) error {
	order, err := s.lockOrder(tx, orderID)
	if err != nil {
		return err
	}

	// Cancelling twice is a no-op
	changed, err := order.Cancel()
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if err := tx.Model(order).UpdateColumn("status", order.Status).Error; err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}
	if err := s.recordStatus(tx, order, "Order cancelled", order.MemberID); err != nil {
		return err
	}
	if err := s.restorePoints(tx, order); err != nil {
		return err
	}

	s.logger.WithField("order_id", order.ID).Info("order cancelled")
	return nil
}

// RequestReturn moves an active order and all its items to return requested
func (s *Service) RequestReturn(tx *gorm.DB, orderID uint) error {
	order, err := s.lockOrder(tx, orderID)
	if err != nil {
		return err
	}
	if !order.CanRequestReturn() {
		return fmt.Errorf("cannot request return for order in status %s: %w", order.Status, domain.ErrInvalidOrderState)
	}

	order.MarkReturnRequested(s.now())
	if err := s.saveReturn(tx, order); err != nil {
		return err
	}
	if err := s.recordStatus(tx, order, "Return requested", order.MemberID); err != nil {
		return err
	}

	s.logger.WithField("order_id", order.ID).Info("return requested")
	return nil
}

// ConfirmReturn confirms a requested return and gives the used points back
// while taking the accrued points away. The balance may go negative.
func (s *Service) ConfirmReturn(tx *gorm.DB, orderID uint) error {
	order, err := s.lockOrder(tx, orderID)
	if err != nil {
		return err
	}
	if !order.CanConfirmReturn() {
		return fmt.Errorf("cannot confirm return for order in status %s: %w", order.Status, domain.ErrInvalidOrderState)
	}

	order.MarkReturnConfirmed(s.now())
	if err := s.saveReturn(tx, order); err != nil {
		return err
	}
	if err := s.recordStatus(tx, order, "Return confirmed", 0); err != nil {
		return err
	}
	if err := s.restorePoints(tx, order); err != nil {
		return err
	}

	s.logger.WithField("order_id", order.ID).Info("return confirmed")
	return nil
}

func (s *Service) newOrder(m *member.Member, gift GiftStatus, usedPoint int, address, detail string, items []OrderItem) *Order {
	now := s.now()
	order := &Order{
		OrderNumber:   GenerateOrderNumber(now),
		MemberID:      m.ID,
		Status:        OrderStatusOrder,
		GiftStatus:    gift,
		UsedPoint:     usedPoint,
		Address:       address,
		AddressDetail: detail,
		OrderDate:     now,
		Items:         items,
	}
	order.TotalPrice = order.CalculateTotal()
	order.AccPoint = CalculateAccPoint(order.TotalPrice, usedPoint, s.accrualPercent)
	return order
}

// persist inserts the order, its lines and its first history entry
func (s *Service) persist(tx *gorm.DB, order *Order) error {
	if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}
	if err := tx.Omit(clause.Associations).Create(&order.Items).Error; err != nil {
		return fmt.Errorf("failed to create order items: %w", err)
	}

	return s.recordStatus(tx, order, "Order placed", order.MemberID)
}

func (s *Service) recordStatus(tx *gorm.DB, order *Order, comment string, by uint) error {
	order.AddStatusHistory(order.Status, comment, by)
	history := order.StatusHistory[len(order.StatusHistory)-1]
	if err := tx.Create(&history).Error; err != nil {
		return fmt.Errorf("failed to create status history: %w", err)
	}
	return nil
}

func (s *Service) saveReturn(tx *gorm.DB, order *Order) error {
	for i := range order.Items {
		if err := tx.Omit(clause.Associations).Save(&order.Items[i]).Error; err != nil {
			return fmt.Errorf("failed to update order item %d: %w", order.Items[i].ID, err)
		}
	}
	if err := tx.Omit(clause.Associations).Save(order).Error; err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return nil
}

// lockMember reads the member row with a write lock held until the
// enclosing transaction ends
func (s *Service) lockMember(tx *gorm.DB, email string) (*member.Member, error) {
	var m member.Member
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("email = ?", member.NormalizeEmail(email)).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("member %s: %w", email, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to retrieve member: %w", err)
	}
	return &m, nil
}

func (s *Service) lockOrder(tx *gorm.DB, orderID uint) (*Order, error) {
	var order Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %d: %w", orderID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to retrieve order: %w", err)
	}
	if err := tx.Where("order_id = ?", order.ID).Order("id ASC").Find(&order.Items).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve order items: %w", err)
	}
	return &order, nil
}

func checkPoints(m *member.Member, usedPoint int) error {
	if usedPoint < 0 {
		return fmt.Errorf("used point %d is negative: %w", usedPoint, domain.ErrInvalidCount)
	}
	if m.Point < usedPoint {
		return fmt.Errorf("balance %d, requested %d: %w", m.Point, usedPoint, domain.ErrInsufficientPoints)
	}
	return nil
}

// applyPoints deducts used and adds accrued points in one conditional update
// so a concurrent order cannot spend the same balance twice
func (s *Service) applyPoints(tx *gorm.DB, memberID uint, used, acc int) error {
	result := tx.Model(&member.Member{}).
		Where("id = ? AND point >= ?", memberID, used).
		UpdateColumn("point", gorm.Expr("point - ? + ?", used, acc))
	if result.Error != nil {
		return fmt.Errorf("failed to update member points: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("member %d: %w", memberID, domain.ErrInsufficientPoints)
	}
	return nil
}

// restorePoints reverses the point effect of an order
func (s *Service) restorePoints(tx *gorm.DB, order *Order) error {
	err := tx.Model(&member.Member{}).
		Where("id = ?", order.MemberID).
		UpdateColumn("point", gorm.Expr("point + ? - ?", order.UsedPoint, order.AccPoint)).Error
	if err != nil {
		return fmt.Errorf("failed to restore member points: %w", err)
	}
	return nil
}

func (s *Service) history(tx *gorm.DB, email string, page domain.PageRequest, filter func(*gorm.DB) *gorm.DB) (*OrderHistoryResponse, error) {
	page = page.Normalize()

	m, err := member.FindByEmail(tx, email)
	if err != nil {
		return nil, err
	}

	var total int64
	if err := tx.Model(&Order{}).Where("member_id = ?", m.ID).Scopes(filter).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []Order
	err = tx.Model(&Order{}).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Preload("Items.Item").
		Where("member_id = ?", m.ID).
		Scopes(filter, page.Scope).
		Order("id DESC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve orders: %w", err)
	}

	var itemIDs []uint
	for _, o := range orders {
		for _, oi := range o.Items {
			itemIDs = append(itemIDs, oi.ItemID)
		}
	}
	images, err := item.RepImageURLs(tx, itemIDs)
	if err != nil {
		return nil, err
	}

	history := make([]OrderHistory, 0, len(orders))
	for _, o := range orders {
		h := OrderHistory{
			OrderID:      o.ID,
			OrderNumber:  o.OrderNumber,
			OrderDate:    o.OrderDate,
			Status:       o.Status,
			GiftStatus:   o.GiftStatus,
			ReturnStatus: o.ReturnStatus,
			TotalPrice:   o.TotalPrice,
			UsedPoint:    o.UsedPoint,
			AccPoint:     o.AccPoint,
			Items:        make([]OrderItemView, 0, len(o.Items)),
		}
		for _, oi := range o.Items {
			h.Items = append(h.Items, OrderItemView{
				ItemID:     oi.ItemID,
				ItemName:   oi.Item.Name,
				Count:      oi.Count,
				OrderPrice: oi.OrderPrice,
				ImgURL:     images[oi.ItemID],
			})
		}
		history = append(history, h)
	}

	return &OrderHistoryResponse{
		Orders:     history,
		Pagination: domain.NewPagination(page, total),
	}, nil
}

func recipientOf(m *member.Member) notify.Recipient {
	return notify.Recipient{
		Name:    m.Name,
		Email:   m.Email,
		Phone:   m.Phone,
		Channel: notify.Channel(m.NoticeType),
	}
}

func buildNotice(order *Order, items map[uint]*item.Item) notify.OrderNotice {
	lines := make([]notify.OrderLine, 0, len(order.Items))
	for _, oi := range order.Items {
		name := ""
		if it, ok := items[oi.ItemID]; ok {
			name = it.Name
		}
		lines = append(lines, notify.OrderLine{
			ItemName: name,
			Count:    oi.Count,
			Price:    oi.OrderPrice,
		})
	}

	return notify.OrderNotice{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		OrderDate:   order.OrderDate,
		Lines:       lines,
		TotalPrice:  order.TotalPrice,
		UsedPoint:   order.UsedPoint,
	}
}
