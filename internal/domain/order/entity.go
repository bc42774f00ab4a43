// internal/domain/order/entity.go
package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/your-org/shop-backend/internal/domain"
	"github.com/your-org/shop-backend/internal/domain/item"
	"github.com/your-org/shop-backend/internal/domain/member"
)

// OrderStatus represents the order status
type OrderStatus string

const (
	OrderStatusOrder  OrderStatus = "ORDER"
	OrderStatusCancel OrderStatus = "CANCEL"
	OrderStatusReturn OrderStatus = "RETURN"
)

// GiftStatus distinguishes a self-purchase from a gift order
type GiftStatus string

const (
	GiftStatusBuy  GiftStatus = "BUY"
	GiftStatusGift GiftStatus = "GIFT"
)

// ParseGiftStatus resolves a gift status filter; empty input means no filter
func ParseGiftStatus(raw string) (*GiftStatus, error) {
	switch GiftStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case "":
		return nil, nil
	case GiftStatusBuy:
		gs := GiftStatusBuy
		return &gs, nil
	case GiftStatusGift:
		gs := GiftStatusGift
		return &gs, nil
	default:
		return nil, fmt.Errorf("unknown gift status %q", raw)
	}
}

// ReturnStatus is N while a return is requested and Y once confirmed
type ReturnStatus string

const (
	ReturnStatusRequested ReturnStatus = "N"
	ReturnStatusConfirmed ReturnStatus = "Y"
)

// Order represents the order entity
type Order struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	OrderNumber   string        `gorm:"uniqueIndex;not null;size:50" json:"order_number"`
	MemberID      uint          `gorm:"not null;index" json:"member_id"`
	Status        OrderStatus   `gorm:"size:20;not null;default:'ORDER'" json:"status"`
	GiftStatus    GiftStatus    `gorm:"size:10;not null;default:'BUY'" json:"gift_status"`
	ReturnStatus  *ReturnStatus `gorm:"size:1" json:"return_status"`
	TotalPrice    int64         `gorm:"not null" json:"total_price"`
	UsedPoint     int           `gorm:"not null;default:0" json:"used_point"`
	AccPoint      int           `gorm:"not null;default:0" json:"acc_point"`
	Address       string        `gorm:"size:255" json:"address"`
	AddressDetail string        `gorm:"size:255" json:"address_detail"`

	// Timestamps
	OrderDate         time.Time  `gorm:"not null" json:"order_date"`
	ReturnReqDate     *time.Time `json:"return_req_date"`
	ReturnConfirmDate *time.Time `json:"return_confirm_date"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// Relationships
	Member        member.Member        `gorm:"foreignKey:MemberID" json:"-"`
	Items         []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	StatusHistory []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"status_history,omitempty"`
}

// OrderItem represents items in an order
type OrderItem struct {
	ID                uint          `gorm:"primaryKey" json:"id"`
	OrderID           uint          `gorm:"not null;index" json:"order_id"`
	ItemID            uint          `gorm:"not null;index" json:"item_id"`
	Count             int           `gorm:"not null" json:"count"`
	OrderPrice        int64         `gorm:"not null" json:"order_price"` // unit price at order time
	ReturnPrice       int64         `gorm:"not null;default:0" json:"return_price"`
	ReturnCount       int           `gorm:"not null;default:0" json:"return_count"`
	ReturnStatus      *ReturnStatus `gorm:"size:1" json:"return_status"`
	ReturnReqDate     *time.Time    `json:"return_req_date"`
	ReturnConfirmDate *time.Time    `json:"return_confirm_date"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`

	Item item.Item `gorm:"foreignKey:ItemID" json:"item"`
}

// OrderStatusHistory tracks order status changes
type OrderStatusHistory struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	OrderID   uint        `gorm:"not null;index" json:"order_id"`
	Status    OrderStatus `gorm:"size:20;not null" json:"status"`
	Comment   string      `gorm:"type:text" json:"comment"`
	CreatedBy uint        `gorm:"index" json:"created_by"` // member id, 0 for admin actions
	CreatedAt time.Time   `json:"created_at"`
}

// TableName overrides
func (Order) TableName() string              { return "orders" }
func (OrderItem) TableName() string          { return "order_items" }
func (OrderStatusHistory) TableName() string { return "order_status_history" }

// NewOrderItem prices a line from the item's current price
func NewOrderItem(it *item.Item, count int) OrderItem {
	return OrderItem{
		ItemID:     it.ID,
		Count:      count,
		OrderPrice: it.Price,
	}
}

// TotalPrice returns the line total
func (oi *OrderItem) TotalPrice() int64 {
	return oi.OrderPrice * int64(oi.Count)
}

// GenerateOrderNumber generates a unique order number
func GenerateOrderNumber(now time.Time) string {
	// Format: ORD-YYYYMMDD-XXXXXXXX
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}

// CalculateTotal sums the line totals
func (o *Order) CalculateTotal() int64 {
	var total int64
	for i := range o.Items {
		total += o.Items[i].TotalPrice()
	}
	return total
}

// CalculateAccPoint returns the points accrued on the paid amount
func CalculateAccPoint(totalPrice int64, usedPoint, accrualPercent int) int {
	paid := totalPrice - int64(usedPoint)
	if paid <= 0 || accrualPercent <= 0 {
		return 0
	}
	return int(paid * int64(accrualPercent) / 100)
}

// CanBeCancelled checks if order can be cancelled
func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusOrder
}

// CanRequestReturn checks if a return may be requested
func (o *Order) CanRequestReturn() bool {
	return o.Status == OrderStatusOrder
}

// CanConfirmReturn checks if a requested return may be confirmed
func (o *Order) CanConfirmReturn() bool {
	return o.Status == OrderStatusReturn &&
		o.ReturnStatus != nil && *o.ReturnStatus == ReturnStatusRequested
}

// Cancel moves the order to CANCEL. Cancelling a cancelled order reports
// changed=false; any other state is rejected.
func (o *Order) Cancel() (changed bool, err error) {
	switch o.Status {
	case OrderStatusCancel:
		return false, nil
	case OrderStatusOrder:
		o.Status = OrderStatusCancel
		return true, nil
	default:
		return false, fmt.Errorf("cannot cancel order in status %s: %w", o.Status, domain.ErrInvalidOrderState)
	}
}

// MarkReturnRequested stamps the order and all its items as return requested
func (o *Order) MarkReturnRequested(at time.Time) {
	status := ReturnStatusRequested
	for i := range o.Items {
		oi := &o.Items[i]
		oi.ReturnReqDate = &at
		oi.ReturnPrice = oi.OrderPrice
		oi.ReturnCount = oi.Count
		oi.ReturnStatus = &status
	}
	o.ReturnReqDate = &at
	o.Status = OrderStatusReturn
	o.ReturnStatus = &status
}

// MarkReturnConfirmed stamps the order and all its items as return confirmed
func (o *Order) MarkReturnConfirmed(at time.Time) {
	status := ReturnStatusConfirmed
	for i := range o.Items {
		oi := &o.Items[i]
		oi.ReturnConfirmDate = &at
		oi.ReturnPrice = oi.OrderPrice
		oi.ReturnCount = oi.Count
		oi.ReturnStatus = &status
	}
	o.ReturnConfirmDate = &at
	o.Status = OrderStatusReturn
	o.ReturnStatus = &status
}

// AddStatusHistory adds a new status change to history
func (o *Order) AddStatusHistory(status OrderStatus, comment string, createdBy uint) {
	history := OrderStatusHistory{
		OrderID:   o.ID,
		Status:    status,
		Comment:   comment,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	o.StatusHistory = append(o.StatusHistory, history)
}
