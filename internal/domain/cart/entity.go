// internal/domain/cart/entity.go
package cart

import (
	"time"

	"github.com/your-org/shop-backend/internal/domain/item"
	"github.com/your-org/shop-backend/internal/domain/member"
)

// Cart is the single active cart of a member, created on first add
type Cart struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MemberID  uint      `gorm:"not null;uniqueIndex" json:"member_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Member member.Member `gorm:"foreignKey:MemberID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// CartItem is a line in a cart
type CartItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CartID    uint      `gorm:"not null;index" json:"cart_id"`
	ItemID    uint      `gorm:"not null;index" json:"item_id"`
	Count     int       `gorm:"not null;default:1" json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Cart Cart      `gorm:"foreignKey:CartID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Item item.Item `gorm:"foreignKey:ItemID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
}

// CartDetail is a cart line joined with item display data
type CartDetail struct {
	CartItemID uint   `json:"cart_item_id"`
	ItemID     uint   `json:"item_id"`
	ItemName   string `json:"item_name"`
	Price      int64  `json:"price"`
	Count      int    `json:"count"`
	ImgURL     string `json:"img_url"`
}

// TableName overrides
func (Cart) TableName() string     { return "carts" }
func (CartItem) TableName() string { return "cart_items" }
