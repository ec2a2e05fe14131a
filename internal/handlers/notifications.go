package handlers

import (
	"fmt"
	"net/http"

	"github.com/dinewithlocals/backend/internal/apperrors"
	"github.com/dinewithlocals/backend/internal/middleware"
	"github.com/dinewithlocals/backend/internal/models"
	"github.com/dinewithlocals/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ListNotifications returns the caller's notifications, newest first.
func ListNotifications(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.CurrentUserID(c)
		page := utils.ParsePage(c, 20, 100)

		query := db.Model(&models.Notification{}).Where("user_id = ?", userID)
		if c.Query("unread") == "true" {
			query = query.Where("read = ?", false)
		}

		// a new session per call so Count does not leak into Find
		query = query.Session(&gorm.Session{})

		var total int64
		if err := query.Count(&total).Error; err != nil {
			utils.RespondError(c, err)
			return
		}

		var notifications []models.Notification
		if err := query.Order("created_at DESC").Offset(page.Offset()).Limit(page.Limit).Find(&notifications).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("list notifications: %w", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"notifications": notifications,
			"total":         total,
			"page":          page.Page,
			"limit":         page.Limit,
		})
	}
}

func UnreadCount(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var count int64
		if err := db.Model(&models.Notification{}).
			Where("user_id = ? AND read = ?", middleware.CurrentUserID(c), false).
			Count(&count).Error; err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": count})
	}
}

func MarkNotificationRead(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := utils.ParseIDParam(c, "id")
		if !ok {
			return
		}

		var notification models.Notification
		if err := db.Where("id = ? AND user_id = ?", id, middleware.CurrentUserID(c)).First(&notification).Error; err != nil {
			utils.RespondError(c, apperrors.NotFound("notification"))
			return
		}
		if !notification.Read {
			if err := db.Model(&notification).Update("read", true).Error; err != nil {
				utils.RespondError(c, err)
				return
			}
		}
		c.JSON(http.StatusOK, notification)
	}
}

func MarkAllNotificationsRead(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := db.Model(&models.Notification{}).
			Where("user_id = ? AND read = ?", middleware.CurrentUserID(c), false).
			Update("read", true)
		if result.Error != nil {
			utils.RespondError(c, result.Error)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": result.RowsAffected})
	}
}

func DeleteNotification(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := utils.ParseIDParam(c, "id")
		if !ok {
			return
		}
		result := db.Where("id = ? AND user_id = ?", id, middleware.CurrentUserID(c)).Delete(&models.Notification{})
		if result.Error != nil {
			utils.RespondError(c, result.Error)
			return
		}
		if result.RowsAffected == 0 {
			utils.RespondError(c, apperrors.NotFound("notification"))
			return
		}
		c.Status(http.StatusNoContent)
	}
}
