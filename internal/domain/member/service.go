// internal/domain/member/service.go
package member

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/your-org/shop-backend/internal/config"
	"github.com/your-org/shop-backend/internal/domain"
	"github.com/your-org/shop-backend/internal/pkg/auth"
	"gorm.io/gorm"
)

// Service handles member directory and account logic. Every method runs
// against the transaction handle passed in by the caller.
type Service struct {
	passwordManager *auth.PasswordManager
	logger          logrus.FieldLogger
}

// NewService creates a new member service
func NewService(cfg *config.Config, logger logrus.FieldLogger) *Service {
	return &Service{
		passwordManager: auth.NewPasswordManager(cfg),
		logger:          logger.WithField("component", "member"),
	}
}

// RegisterRequest represents member registration data
type RegisterRequest struct {
	Email         string     `json:"email" binding:"required,email"`
	Password      string     `json:"password" binding:"required"`
	Name          string     `json:"name" binding:"required"`
	Phone         string     `json:"phone"`
	Address       string     `json:"address"`
	AddressDetail string     `json:"address_detail"`
	NoticeType    NoticeType `json:"notice_type" binding:"omitempty,oneof=EMAIL SMS"`
}

// Credentials is what the authentication layer needs to verify a login
type Credentials struct {
	MemberID     uint
	Email        string
	PasswordHash string
	Role         Role
}

// MemberListResponse represents a page of the member directory
type MemberListResponse struct {
	Members    []Member          `json:"members"`
	Pagination domain.Pagination `json:"pagination"`
}

// Search returns a page of members whose selected field contains query,
// newest first. SearchNone returns the unfiltered page.
func (s *Service) Search(tx *gorm.DB, field SearchField, query string, page domain.PageRequest) (*MemberListResponse, error) {
	page = page.Normalize()

	var total int64
	if err := tx.Model(&Member{}).Scopes(field.Scope(query)).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}

	members := []Member{}
	err := tx.Model(&Member{}).
		Scopes(field.Scope(query), page.Scope).
		Order("id DESC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search members: %w", err)
	}

	return &MemberListResponse{
		Members:    members,
		Pagination: domain.NewPagination(page, total),
	}, nil
}

// Register creates a new member after rejecting duplicate emails
func (s *Service) Register(tx *gorm.DB, req *RegisterRequest) (*Member, error) {
	email := NormalizeEmail(req.Email)

	if err := s.validateDuplicateMember(tx, email); err != nil {
		return nil, err
	}

	hashedPassword, err := s.passwordManager.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	member := Member{
		Email:         email,
		Password:      hashedPassword,
		Name:          req.Name,
		Phone:         req.Phone,
		Address:       req.Address,
		AddressDetail: req.AddressDetail,
		NoticeType:    req.NoticeType,
		Role:          RoleUser,
	}

	if err := tx.Create(&member).Error; err != nil {
		return nil, fmt.Errorf("failed to create member: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"member_id": member.ID,
		"email":     member.Email,
	}).Info("member registered")

	return &member, nil
}

// LookupCredentials returns the stored credentials for email
func (s *Service) LookupCredentials(tx *gorm.DB, email string) (*Credentials, error) {
	member, err := FindByEmail(tx, email)
	if err != nil {
		return nil, err
	}

	return &Credentials{
		MemberID:     member.ID,
		Email:        member.Email,
		PasswordHash: member.Password,
		Role:         member.Role,
	}, nil
}

// CheckEmailAndName confirms that the member with email has exactly name
func (s *Service) CheckEmailAndName(tx *gorm.DB, email, name string) error {
	member, err := FindByEmail(tx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrIdentityMismatch
		}
		return err
	}

	if member.Name != name {
		return domain.ErrIdentityMismatch
	}

	return nil
}

// UpdatePassword replaces the member's password hash
func (s *Service) UpdatePassword(tx *gorm.DB, memberID uint, password string) error {
	hashedPassword, err := s.passwordManager.HashPassword(password)
	if err != nil {
		return err
	}

	result := tx.Model(&Member{}).Where("id = ?", memberID).Update("password", hashedPassword)
	if result.Error != nil {
		return fmt.Errorf("failed to update password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("member %d: %w", memberID, domain.ErrNotFound)
	}

	s.logger.WithField("member_id", memberID).Info("password updated")
	return nil
}

// FindByEmail loads a member by email
func FindByEmail(tx *gorm.DB, email string) (*Member, error) {
	var member Member
	err := tx.Where("email = ?", NormalizeEmail(email)).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("member %s: %w", email, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to retrieve member: %w", err)
	}
	return &member, nil
}

func (s *Service) validateDuplicateMember(tx *gorm.DB, email string) error {
	existing, err := FindByEmail(tx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var linked int64
	if err := tx.Model(&SocialAccount{}).Where("member_id = ?", existing.ID).Count(&linked).Error; err != nil {
		return fmt.Errorf("failed to check social accounts: %w", err)
	}

	if linked > 0 {
		return fmt.Errorf("%w: this email is registered through social login, please sign in with that provider", domain.ErrDuplicateMember)
	}
	return fmt.Errorf("%w: this email is already registered", domain.ErrDuplicateMember)
}
