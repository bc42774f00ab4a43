// Package testdb provides an in-memory database with the full schema for tests.
package testdb

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/your-org/shop-backend/internal/domain/item"
	"github.com/your-org/shop-backend/internal/domain/member"
	"github.com/your-org/shop-backend/internal/infrastructure/database/postgres"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New opens a private in-memory database and migrates every model. The pool
// holds a single connection, so transactions run one after another.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(postgres.Models()...))
	return db
}

// MemberOption customizes a seeded member
type MemberOption func(*member.Member)

// WithPoint sets the starting balance
func WithPoint(point int) MemberOption {
	return func(m *member.Member) { m.Point = point }
}

// WithSMS makes the member prefer SMS notifications
func WithSMS(phone string) MemberOption {
	return func(m *member.Member) {
		m.NoticeType = member.NoticeTypeSMS
		m.Phone = phone
	}
}

// WithRole sets the member role
func WithRole(role member.Role) MemberOption {
	return func(m *member.Member) { m.Role = role }
}

// WithPassword stores a bcrypt hash of password
func WithPassword(password string) MemberOption {
	return func(m *member.Member) {
		hashed, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		m.Password = string(hashed)
	}
}

// CreateMember inserts a member with the given email and name
func CreateMember(t testing.TB, db *gorm.DB, email, name string, opts ...MemberOption) *member.Member {
	t.Helper()

	m := &member.Member{
		Email:         email,
		Password:      "not-a-real-hash",
		Name:          name,
		Address:       "1 Market Street",
		AddressDetail: "Unit 2",
		NoticeType:    member.NoticeTypeEmail,
		Role:          member.RoleUser,
	}
	for _, opt := range opts {
		opt(m)
	}
	require.NoError(t, db.Create(m).Error)
	return m
}

// CreateItem inserts a sellable item with a representative image and tags
func CreateItem(t testing.TB, db *gorm.DB, name string, price int64, tags ...string) *item.Item {
	t.Helper()

	it := &item.Item{Name: name, Price: price, SellStatus: item.SellStatusSell}
	require.NoError(t, db.Create(it).Error)

	require.NoError(t, db.Create(&item.ItemImg{ItemID: it.ID, ImgURL: "/img/" + name + "-extra.jpg", RepImg: "N"}).Error)
	require.NoError(t, db.Create(&item.ItemImg{ItemID: it.ID, ImgURL: "/img/" + name + ".jpg", RepImg: "Y"}).Error)

	for _, tagName := range tags {
		tag := item.Tag{Name: tagName}
		require.NoError(t, db.Where(item.Tag{Name: tagName}).FirstOrCreate(&tag).Error)
		require.NoError(t, db.Create(&item.ItemTag{ItemID: it.ID, TagID: tag.ID}).Error)
	}
	return it
}

// Point reads a member's current balance
func Point(t testing.TB, db *gorm.DB, memberID uint) int {
	t.Helper()

	var m member.Member
	require.NoError(t, db.First(&m, memberID).Error)
	return m.Point
}
