package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dinewithlocals/backend/internal/apperrors"
	"github.com/dinewithlocals/backend/internal/middleware"
	"github.com/dinewithlocals/backend/internal/models"
	"github.com/dinewithlocals/backend/internal/services"
	"github.com/dinewithlocals/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// UpdateProfile applies a partial update to the caller's profile.
func UpdateProfile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.CurrentUserID(c)

		var input struct {
			Username    *string   `json:"username" binding:"omitempty,min=3,max=32"`
			Name        *string   `json:"name"`
			Bio         *string   `json:"bio" binding:"omitempty,max=1000"`
			PhoneNumber *string   `json:"phoneNumber"`
			AvatarURL   *string   `json:"avatarUrl"`
			Languages   *[]string `json:"languages"`
		}
		if !bindJSON(c, &input) {
			return
		}

		var user models.User
		if err := db.First(&user, userID).Error; err != nil {
			utils.RespondError(c, apperrors.NotFound("user"))
			return
		}

		if input.Username != nil {
			username := strings.TrimSpace(*input.Username)
			if username != user.Username {
				var count int64
				if err := db.Model(&models.User{}).Where("username = ? AND id <> ?", username, userID).Count(&count).Error; err != nil {
					utils.RespondError(c, fmt.Errorf("check username: %w", err))
					return
				}
				if count > 0 {
					utils.RespondError(c, apperrors.Conflict("username already taken"))
					return
				}
				user.Username = username
			}
		}
		if input.Name != nil {
			user.Name = *input.Name
		}
		if input.Bio != nil {
			user.Bio = *input.Bio
		}
		if input.PhoneNumber != nil {
			user.PhoneNumber = *input.PhoneNumber
		}
		if input.AvatarURL != nil {
			user.AvatarURL = *input.AvatarURL
		}
		if input.Languages != nil {
			user.Languages = *input.Languages
		}

		// Save persists empty strings too
		if err := db.Save(&user).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("update profile: %w", err))
			return
		}

		c.JSON(http.StatusOK, user)
	}
}

// GetUserProfile returns another user's public profile with rating summary.
func GetUserProfile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := utils.ParseIDParam(c, "id")
		if !ok {
			return
		}

		var user models.User
		if err := db.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.RespondError(c, apperrors.NotFound("user"))
				return
			}
			utils.RespondError(c, err)
			return
		}

		avg, count, err := ratingSummary(db, user.ID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user":          user.Public(),
			"averageRating": avg,
			"reviewCount":   count,
		})
	}
}

func UploadAvatar(db *gorm.DB, store ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.CurrentUserID(c)

		url, ok := receiveImage(c, store, "avatars")
		if !ok {
			return
		}

		if err := db.Model(&models.User{}).Where("id = ?", userID).Update("avatar_url", url).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("save avatar: %w", err))
			return
		}

		var user models.User
		if err := db.First(&user, userID).Error; err != nil {
			utils.RespondError(c, apperrors.NotFound("user"))
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// receiveImage reads the multipart "image" field and stores it.
func receiveImage(c *gin.Context, store ImageStore, folder string) (string, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, services.MaxImageSize+1<<20)
	file, err := c.FormFile("image")
	if err != nil {
		utils.RespondError(c, apperrors.Validation("image", "image file is required"))
		return "", false
	}

	url, err := store.UploadImage(c.Request.Context(), file, folder)
	switch {
	case errors.Is(err, services.ErrNotImage):
		utils.RespondError(c, apperrors.Validation("image", "only image files are accepted"))
		return "", false
	case errors.Is(err, services.ErrImageTooLarge):
		utils.RespondError(c, apperrors.Validation("image", "image must be 5 MiB or smaller"))
		return "", false
	case err != nil:
		utils.RespondError(c, fmt.Errorf("upload image: %w", err))
		return "", false
	}
	return url, true
}

// RegisterFCMToken registers or updates a user's FCM token
func RegisterFCMToken(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			FCMToken string `json:"fcmToken" binding:"required"`
		}
		if !bindJSON(c, &input) {
			return
		}

		if err := db.Model(&models.User{}).Where("id = ?", middleware.CurrentUserID(c)).Update("fcm_token", input.FCMToken).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("register fcm token: %w", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "FCM token registered"})
	}
}

// RemoveFCMToken removes a user's FCM token
func RemoveFCMToken(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Model(&models.User{}).Where("id = ?", middleware.CurrentUserID(c)).Update("fcm_token", "").Error; err != nil {
			utils.RespondError(c, fmt.Errorf("remove fcm token: %w", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "FCM token removed"})
	}
}
