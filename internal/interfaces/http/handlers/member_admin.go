package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/shop-backend/internal/domain"
	"github.com/your-org/shop-backend/internal/domain/member"
	"gorm.io/gorm"
)

// MemberAdminHandler serves the admin member directory
type MemberAdminHandler struct {
	db            *gorm.DB
	memberService *member.Service
	logger        logrus.FieldLogger
}

// NewMemberAdminHandler creates a new member admin handler
func NewMemberAdminHandler(db *gorm.DB, memberService *member.Service, logger logrus.FieldLogger) *MemberAdminHandler {
	return &MemberAdminHandler{
		db:            db,
		memberService: memberService,
		logger:        logger.WithField("handler", "member_admin"),
	}
}

// SearchMembers handles GET /admin/members?search_by=&q=&page=&limit=
func (h *MemberAdminHandler) SearchMembers(c *gin.Context) {
	var page domain.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		bindError(c, err)
		return
	}

	field := member.ParseSearchField(c.Query("search_by"))
	query := c.Query("q")

	var result *member.MemberListResponse
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = h.memberService.Search(tx, field, query, page)
		return err
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Members retrieved successfully",
		"data":    result,
	})
}
