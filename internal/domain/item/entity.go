// internal/domain/item/entity.go
package item

import (
	"errors"
	"fmt"
	"time"

	"github.com/your-org/shop-backend/internal/domain"
	"gorm.io/gorm"
)

// SellStatus represents whether an item can currently be bought
type SellStatus string

const (
	SellStatusSell    SellStatus = "SELL"
	SellStatusSoldOut SellStatus = "SOLD_OUT"
)

// Item represents a purchasable product. The order and cart workflows only
// read items; catalogue management lives elsewhere.
type Item struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Name       string     `gorm:"not null;size:255" json:"name"`
	Price      int64      `gorm:"not null" json:"price"`
	Detail     string     `gorm:"type:text" json:"detail"`
	SellStatus SellStatus `gorm:"size:20;not null;default:'SELL'" json:"sell_status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Images []ItemImg `gorm:"foreignKey:ItemID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"images,omitempty"`
}

// ItemImg represents an item image; RepImg marks the representative one
type ItemImg struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ItemID    uint      `gorm:"not null;index" json:"item_id"`
	ImgURL    string    `gorm:"not null;size:500" json:"img_url"`
	RepImg    string    `gorm:"size:1;not null;default:'N'" json:"rep_img"`
	CreatedAt time.Time `json:"created_at"`
}

// Tag groups items and keeps a running sell counter
type Tag struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"uniqueIndex;not null;size:100" json:"name"`
	TotalSell int64  `gorm:"not null;default:0" json:"total_sell"`
}

// ItemTag links items to tags
type ItemTag struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	ItemID uint `gorm:"not null;index" json:"item_id"`
	TagID  uint `gorm:"not null;index" json:"tag_id"`

	Tag Tag `gorm:"foreignKey:TagID" json:"tag"`
}

// TableName overrides
func (Item) TableName() string    { return "items" }
func (ItemImg) TableName() string { return "item_imgs" }
func (Tag) TableName() string     { return "tags" }
func (ItemTag) TableName() string { return "item_tags" }

// Find loads an item by id
func Find(tx *gorm.DB, id uint) (*Item, error) {
	var it Item
	if err := tx.First(&it, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("item %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to retrieve item: %w", err)
	}
	return &it, nil
}

// RepImageURLs returns the representative image url for each of the given items
func RepImageURLs(tx *gorm.DB, itemIDs []uint) (map[uint]string, error) {
	urls := make(map[uint]string, len(itemIDs))
	if len(itemIDs) == 0 {
		return urls, nil
	}

	var imgs []ItemImg
	if err := tx.Where("item_id IN ? AND rep_img = ?", itemIDs, "Y").Find(&imgs).Error; err != nil {
		return nil, fmt.Errorf("failed to load item images: %w", err)
	}
	for _, img := range imgs {
		urls[img.ItemID] = img.ImgURL
	}
	return urls, nil
}

// IncrementTagSales bumps the sell counter of every tag attached to the item
func IncrementTagSales(tx *gorm.DB, itemID uint) error {
	var tagIDs []uint
	if err := tx.Model(&ItemTag{}).Where("item_id = ?", itemID).Pluck("tag_id", &tagIDs).Error; err != nil {
		return fmt.Errorf("failed to load tags for item %d: %w", itemID, err)
	}
	if len(tagIDs) == 0 {
		return nil
	}

	err := tx.Model(&Tag{}).
		Where("id IN ?", tagIDs).
		UpdateColumn("total_sell", gorm.Expr("total_sell + ?", 1)).Error
	if err != nil {
		return fmt.Errorf("failed to update tag sales for item %d: %w", itemID, err)
	}
	return nil
}
