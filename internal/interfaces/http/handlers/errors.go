package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/shop-backend/internal/domain"
	"github.com/your-org/shop-backend/internal/infrastructure/database/redis"
	"github.com/your-org/shop-backend/internal/interfaces/http/middleware"
	"github.com/your-org/shop-backend/internal/pkg/auth"
)

// errForbidden aborts a transaction when the caller does not own the resource
var errForbidden = errors.New("access denied")

// statusFor maps workflow errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateMember):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientPoints):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrIdentityMismatch):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidOrderState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidCount):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrWeakPassword):
		return http.StatusBadRequest
	case errors.Is(err, redis.ErrRequestInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error response. Server errors are logged and their
// details hidden from the client.
func respondError(c *gin.Context, logger logrus.FieldLogger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		_ = c.Error(err)
		c.JSON(status, gin.H{
			"error": "Internal server error",
		})
		return
	}

	c.JSON(status, gin.H{
		"error": err.Error(),
	})
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request data",
		"details": err.Error(),
	})
}

// parseID reads a positive numeric path parameter
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name,
		})
		return 0, false
	}
	return uint(id), true
}

func currentMember(c *gin.Context) (uint, string, bool) {
	memberID, ok := middleware.GetMemberIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Member not authenticated",
		})
		return 0, "", false
	}
	email, _ := middleware.GetMemberEmailFromContext(c)
	return memberID, email, true
}
