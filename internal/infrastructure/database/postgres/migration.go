// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/your-org/shop-backend/internal/domain/cart"
	"github.com/your-org/shop-backend/internal/domain/item"
	"github.com/your-org/shop-backend/internal/domain/member"
	"github.com/your-org/shop-backend/internal/domain/order"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Models lists every persisted model in dependency order
func Models() []interface{} {
	return []interface{}{
		// Member domain
		&member.Member{},
		&member.SocialAccount{},

		// Item domain
		&item.Item{},
		&item.ItemImg{},
		&item.Tag{},
		&item.ItemTag{},

		// Cart domain
		&cart.Cart{},
		&cart.CartItem{},

		// Order domain
		&order.Order{},
		&order.OrderItem{},
		&order.OrderStatusHistory{},
	}
}

// Migration handles database migrations
type Migration struct {
	db     *gorm.DB
	logger logrus.FieldLogger
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB, logger logrus.FieldLogger) *Migration {
	return &Migration{
		db:     db,
		logger: logger.WithField("component", "migration"),
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	m.logger.Info("running database auto-migrations")

	for _, model := range Models() {
		m.logger.Debugf("migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	m.logger.Info("database auto-migrations completed")
	return nil
}

// CreateIndexes creates additional indexes for the history and cart queries
func (m *Migration) CreateIndexes() error {
	indexes := []string{
		// Member indexes
		"CREATE INDEX IF NOT EXISTS idx_members_name ON members(name)",
		"CREATE INDEX IF NOT EXISTS idx_members_created_at ON members(created_at DESC)",

		// Item indexes
		"CREATE INDEX IF NOT EXISTS idx_item_imgs_item_rep ON item_imgs(item_id, rep_img)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_item_tags_unique ON item_tags(item_id, tag_id)",

		// Cart indexes
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_cart_items_cart_item ON cart_items(cart_id, item_id)",

		// Order indexes
		"CREATE INDEX IF NOT EXISTS idx_orders_member_gift ON orders(member_id, gift_status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_member_status ON orders(member_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_order_date ON orders(order_date DESC)",

		// Order status history indexes
		"CREATE INDEX IF NOT EXISTS idx_order_status_history_order ON order_status_history(order_id, created_at DESC)",
	}

	failCount := 0
	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			m.logger.WithError(err).Warn("failed to create index")
			failCount++
		}
	}

	m.logger.WithFields(logrus.Fields{
		"created": len(indexes) - failCount,
		"failed":  failCount,
	}).Info("additional indexes created")

	if failCount > 0 {
		return fmt.Errorf("%d of %d indexes failed", failCount, len(indexes))
	}
	return nil
}

// SeedInitialData inserts development data into the database
func (m *Migration) SeedInitialData() error {
	m.logger.Info("seeding initial data")

	if err := m.seedMember("admin@example.com", "Admin", "Shopkeeper1", member.RoleAdmin, 0); err != nil {
		return fmt.Errorf("failed to seed admin member: %w", err)
	}
	if err := m.seedMember("test1@example.com", "Test Member", "Shopper2024", member.RoleUser, 1000); err != nil {
		return fmt.Errorf("failed to seed test member: %w", err)
	}
	if err := m.seedItems(); err != nil {
		return fmt.Errorf("failed to seed items: %w", err)
	}

	m.logger.Info("initial data seeded")
	return nil
}

func (m *Migration) seedMember(email, name, password string, role member.Role, point int) error {
	if _, err := member.FindByEmail(m.db, email); err == nil {
		m.logger.WithField("email", email).Debug("member already exists")
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	seeded := member.Member{
		Email:      email,
		Password:   string(hashed),
		Name:       name,
		Address:    "1 Market Street",
		Point:      point,
		NoticeType: member.NoticeTypeEmail,
		Role:       role,
	}
	if err := m.db.Create(&seeded).Error; err != nil {
		return err
	}

	m.logger.WithFields(logrus.Fields{"email": email, "role": role}).Info("created member")
	return nil
}

func (m *Migration) seedItems() error {
	seeds := []struct {
		item item.Item
		img  string
		tags []string
	}{
		{item.Item{Name: "Ceramic Mug", Price: 12000, Detail: "Hand glazed mug"}, "/images/items/mug.jpg", []string{"kitchen", "gift"}},
		{item.Item{Name: "Linen Apron", Price: 28000, Detail: "Washed linen apron"}, "/images/items/apron.jpg", []string{"kitchen"}},
		{item.Item{Name: "Scented Candle", Price: 15000, Detail: "Soy wax candle"}, "/images/items/candle.jpg", []string{"gift", "living"}},
	}

	for _, seed := range seeds {
		var existing item.Item
		err := m.db.Where("name = ?", seed.item.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		it := seed.item
		it.SellStatus = item.SellStatusSell
		if err := m.db.Create(&it).Error; err != nil {
			return err
		}
		if err := m.db.Create(&item.ItemImg{ItemID: it.ID, ImgURL: seed.img, RepImg: "Y"}).Error; err != nil {
			return err
		}

		for _, name := range seed.tags {
			tag := item.Tag{Name: name}
			if err := m.db.Where(item.Tag{Name: name}).FirstOrCreate(&tag).Error; err != nil {
				return err
			}
			if err := m.db.Create(&item.ItemTag{ItemID: it.ID, TagID: tag.ID}).Error; err != nil {
				return err
			}
		}

		m.logger.WithField("item", it.Name).Info("created item")
	}

	return nil
}

// DropAllTables drops every table, newest dependants first
func (m *Migration) DropAllTables() error {
	m.logger.Warn("dropping all database tables")

	models := Models()
	for i := len(models) - 1; i >= 0; i-- {
		if err := m.db.Migrator().DropTable(models[i]); err != nil {
			return fmt.Errorf("failed to drop table for %T: %w", models[i], err)
		}
	}
	return nil
}

// GetTableInfo logs the row count of every table
func (m *Migration) GetTableInfo() error {
	var total int64
	for _, model := range Models() {
		var count int64
		if err := m.db.Model(model).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count %T: %w", model, err)
		}
		total += count
		m.logger.WithField("records", count).Infof("table %T", model)
	}

	m.logger.WithField("records", total).Info("total records across all tables")
	return nil
}
