// internal/pkg/auth/jwt.go
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/your-org/shop-backend/internal/config"
)

const (
	tokenTypeAccess = "access"
	tokenTypeReset  = "reset"
)

// Claims represents the JWT claims
type Claims struct {
	MemberID  uint   `json:"member_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"` // "access" or "reset"
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token was issued to an admin
func (c *Claims) IsAdmin() bool {
	return c.Role == "ADMIN"
}

// JWTManager handles JWT operations
type JWTManager struct {
	config *config.Config
	now    func() time.Time
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(cfg *config.Config) *JWTManager {
	return &JWTManager{
		config: cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GenerateAccessToken generates a new access token
func (j *JWTManager) GenerateAccessToken(memberID uint, email, role string) (string, error) {
	return j.sign(memberID, email, role, tokenTypeAccess, j.config.JWT.AccessTokenExpiry)
}

// GenerateResetToken generates a short-lived token that only allows a
// password reset for the member
func (j *JWTManager) GenerateResetToken(memberID uint, email string) (string, error) {
	// Never carry the role into a reset token
	return j.sign(memberID, email, "", tokenTypeReset, j.config.JWT.ResetTokenExpiry)
}

func (j *JWTManager) sign(memberID uint, email, role, tokenType string, expiry time.Duration) (string, error) {
	now := j.now()

	claims := &Claims{
		MemberID:  memberID,
		Email:     email,
		Role:      role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.config.App.Name,
			Subject:   fmt.Sprintf("member:%d", memberID),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.config.JWT.Secret))
}

// ResetTokenExpiry is how long a reset token stays valid
func (j *JWTManager) ResetTokenExpiry() time.Duration {
	return j.config.JWT.ResetTokenExpiry
}

// ValidateToken validates and parses a JWT token
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(j.config.JWT.Secret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	// Additional validation
	if claims.TokenType == "" {
		return nil, fmt.Errorf("token type not specified")
	}

	return claims, nil
}

// ValidateAccessToken validates an access token specifically
func (j *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.TokenType != tokenTypeAccess {
		return nil, fmt.Errorf("invalid token type: expected access, got %s", claims.TokenType)
	}

	return claims, nil
}

// ValidateResetToken validates a password reset token specifically
func (j *JWTManager) ValidateResetToken(tokenString string) (*Claims, error) {
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.TokenType != tokenTypeReset {
		return nil, fmt.Errorf("invalid token type: expected reset, got %s", claims.TokenType)
	}

	return claims, nil
}

// ExtractTokenFromHeader extracts JWT token from Authorization header
func ExtractTokenFromHeader(authHeader string) string {
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		return authHeader[7:]
	}
	return ""
}
