// internal/interfaces/http/handlers/auth.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/shop-backend/internal/domain"
	"github.com/your-org/shop-backend/internal/domain/member"
	"github.com/your-org/shop-backend/internal/pkg/auth"
	"gorm.io/gorm"
)

// AuthHandler handles registration, login and password endpoints
type AuthHandler struct {
	db              *gorm.DB
	memberService   *member.Service
	jwtManager      *auth.JWTManager
	passwordManager *auth.PasswordManager
	logger          logrus.FieldLogger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(db *gorm.DB, memberService *member.Service, jwtManager *auth.JWTManager, passwordManager *auth.PasswordManager, logger logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		db:              db,
		memberService:   memberService,
		jwtManager:      jwtManager,
		passwordManager: passwordManager,
		logger:          logger.WithField("handler", "auth"),
	}
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued access token
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	MemberID    uint   `json:"member_id"`
	Role        string `json:"role"`
}

// PasswordCheckRequest identifies a member by email and name
type PasswordCheckRequest struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name" binding:"required"`
}

// PasswordCheckResponse carries the token that authorizes one password reset
type PasswordCheckResponse struct {
	ResetToken string `json:"reset_token"`
	ExpiresIn  int    `json:"expires_in"`
}

// UpdatePasswordRequest carries the new password
type UpdatePasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// ResetPasswordRequest carries a reset token and the new password
type ResetPasswordRequest struct {
	ResetToken string `json:"reset_token" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req member.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	var created *member.Member
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = h.memberService.Register(tx, &req)
		return err
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Member registered successfully",
		"data":    created,
	})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	var creds *member.Credentials
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var err error
		creds, err = h.memberService.LookupCredentials(tx, req.Email)
		return err
	})
	// Unknown email and wrong password look the same to the caller
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid email or password",
		})
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := h.passwordManager.VerifyPassword(req.Password, creds.PasswordHash); err != nil {
		h.logger.WithField("member_id", creds.MemberID).Warn("login failed")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid email or password",
		})
		return
	}

	// Generate access token
	token, err := h.jwtManager.GenerateAccessToken(creds.MemberID, creds.Email, string(creds.Role))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"data": LoginResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			MemberID:    creds.MemberID,
			Role:        string(creds.Role),
		},
	})
}

// CheckPasswordIdentity handles POST /auth/password/check
func (h *AuthHandler) CheckPasswordIdentity(c *gin.Context) {
	var req PasswordCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	var creds *member.Credentials
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := h.memberService.CheckEmailAndName(tx, req.Email, req.Name); err != nil {
			return err
		}
		var err error
		creds, err = h.memberService.LookupCredentials(tx, req.Email)
		return err
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	// Confirmed identity earns a short-lived reset token
	token, err := h.jwtManager.GenerateResetToken(creds.MemberID, creds.Email)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Identity confirmed",
		"data": PasswordCheckResponse{
			ResetToken: token,
			ExpiresIn:  int(h.jwtManager.ResetTokenExpiry().Seconds()),
		},
	})
}

// ResetPassword handles POST /auth/password/reset
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	// Validate reset token
	claims, err := h.jwtManager.ValidateResetToken(req.ResetToken)
	if err != nil {
		h.logger.WithError(err).Warn("password reset rejected")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid or expired reset token",
		})
		return
	}

	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		return h.memberService.UpdatePassword(tx, claims.MemberID, req.Password)
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithField("member_id", claims.MemberID).Info("password reset")
	c.JSON(http.StatusOK, gin.H{
		"message": "Password reset successfully",
	})
}

// UpdatePassword handles PUT /auth/password
func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	memberID, _, ok := currentMember(c)
	if !ok {
		return
	}

	var req UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		return h.memberService.UpdatePassword(tx, memberID, req.Password)
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Password updated successfully",
	})
}
