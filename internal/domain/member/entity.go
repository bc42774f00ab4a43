// internal/domain/member/entity.go
package member

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// NoticeType is the member's preferred notification channel
type NoticeType string

const (
	NoticeTypeEmail NoticeType = "EMAIL"
	NoticeTypeSMS   NoticeType = "SMS"
)

// Role represents the member's authorization role
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Member represents a registered user
type Member struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Email         string     `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Password      string     `gorm:"not null;size:255" json:"-"`
	Name          string     `gorm:"not null;size:100" json:"name"`
	Phone         string     `gorm:"size:20" json:"phone"`
	Address       string     `gorm:"size:255" json:"address"`
	AddressDetail string     `gorm:"size:255" json:"address_detail"`
	Point         int        `gorm:"not null;default:0" json:"point"`
	NoticeType    NoticeType `gorm:"size:10;not null;default:'EMAIL'" json:"notice_type"`
	Role          Role       `gorm:"size:10;not null;default:'USER'" json:"role"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// SocialAccount links a member to an external login provider
type SocialAccount struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	MemberID       uint      `gorm:"not null;uniqueIndex" json:"member_id"`
	Provider       string    `gorm:"not null;size:30" json:"provider"`
	ProviderUserID string    `gorm:"not null;size:255" json:"provider_user_id"`
	CreatedAt      time.Time `json:"created_at"`

	Member Member `gorm:"foreignKey:MemberID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// TableName overrides
func (Member) TableName() string        { return "members" }
func (SocialAccount) TableName() string { return "social_accounts" }

// BeforeCreate hook normalizes the email
func (m *Member) BeforeCreate(tx *gorm.DB) error {
	m.Email = NormalizeEmail(m.Email)
	if m.NoticeType == "" {
		m.NoticeType = NoticeTypeEmail
	}
	if m.Role == "" {
		m.Role = RoleUser
	}
	return nil
}

// IsAdmin reports whether the member has the admin role
func (m *Member) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
