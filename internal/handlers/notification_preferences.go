package handlers

import (
	"fmt"
	"net/http"

	"github.com/dinewithlocals/backend/internal/middleware"
	"github.com/dinewithlocals/backend/internal/services"
	"github.com/dinewithlocals/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// GetNotificationPreferences retrieves user's notification preferences
func GetNotificationPreferences(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		prefs, err := services.LoadPreferences(c.Request.Context(), db, middleware.CurrentUserID(c))
		if err != nil {
			utils.RespondError(c, fmt.Errorf("load preferences: %w", err))
			return
		}
		c.JSON(http.StatusOK, prefs)
	}
}

// UpdateNotificationPreferences updates user's notification preferences
func UpdateNotificationPreferences(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			PushEnabled   *bool `json:"pushEnabled"`
			EmailEnabled  *bool `json:"emailEnabled"`
			MatchAlerts   *bool `json:"matchAlerts"`
			MessageAlerts *bool `json:"messageAlerts"`
			SocialAlerts  *bool `json:"socialAlerts"`
		}
		if !bindJSON(c, &input) {
			return
		}

		prefs, err := services.LoadPreferences(c.Request.Context(), db, middleware.CurrentUserID(c))
		if err != nil {
			utils.RespondError(c, fmt.Errorf("load preferences: %w", err))
			return
		}

		// Update only provided fields
		if input.PushEnabled != nil {
			prefs.PushEnabled = *input.PushEnabled
		}
		if input.EmailEnabled != nil {
			prefs.EmailEnabled = *input.EmailEnabled
		}
		if input.MatchAlerts != nil {
			prefs.MatchAlerts = *input.MatchAlerts
		}
		if input.MessageAlerts != nil {
			prefs.MessageAlerts = *input.MessageAlerts
		}
		if input.SocialAlerts != nil {
			prefs.SocialAlerts = *input.SocialAlerts
		}

		// Save writes false values, Updates would skip them
		if err := db.Save(prefs).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("save preferences: %w", err))
			return
		}
		c.JSON(http.StatusOK, prefs)
	}
}
