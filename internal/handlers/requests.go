package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dinewithlocals/backend/internal/apperrors"
	"github.com/dinewithlocals/backend/internal/middleware"
	"github.com/dinewithlocals/backend/internal/models"
	"github.com/dinewithlocals/backend/internal/services"
	"github.com/dinewithlocals/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RequestInput struct {
	Title         string          `json:"title" binding:"required,max=200"`
	Description   string          `json:"description"`
	Category      models.Category `json:"category" binding:"required"`
	LocationID    uint            `json:"locationId" binding:"required"`
	PreferredDate time.Time       `json:"preferredDate" binding:"required"`
	GuestCount    int             `json:"guestCount"`
	Budget        float64         `json:"budget"`
}

// CreateRequest posts a guest's wish for an experience.
func CreateRequest(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input RequestInput
		if !bindJSON(c, &input) {
			return
		}
		if !input.Category.Valid() {
			utils.RespondError(c, apperrors.Validation("category", "category must be one of dining, travel, event"))
			return
		}
		if !input.PreferredDate.After(time.Now()) {
			utils.RespondError(c, apperrors.Validation("preferredDate", "preferredDate must be in the future"))
			return
		}
		if input.GuestCount == 0 {
			input.GuestCount = 1
		}
		if input.GuestCount < 1 {
			utils.RespondError(c, apperrors.Validation("guestCount", "guestCount must be at least 1"))
			return
		}
		if input.Budget < 0 {
			utils.RespondError(c, apperrors.Validation("budget", "budget cannot be negative"))
			return
		}
		if !requireLocation(c, db, input.LocationID) {
			return
		}

		request := models.Request{
			GuestID:       middleware.CurrentUserID(c),
			Title:         strings.TrimSpace(input.Title),
			Description:   input.Description,
			Category:      input.Category,
			LocationID:    input.LocationID,
			PreferredDate: input.PreferredDate,
			GuestCount:    input.GuestCount,
			Budget:        input.Budget,
			Status:        models.RequestStatusOpen,
		}
		if err := db.Create(&request).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("create request: %w", err))
			return
		}
		warnIfFailed(db.Preload("Location").Preload("Guest").First(&request, request.ID).Error, "Failed to reload request")
		c.JSON(http.StatusCreated, request)
	}
}

// ListRequests defaults to open requests.
func ListRequests(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := utils.ParsePage(c, 20, 100)
		status := c.DefaultQuery("status", string(models.RequestStatusOpen))

		query := db.Model(&models.Request{}).
			Joins("JOIN locations ON locations.id = requests.location_id").
			Where("requests.status = ?", status)
		if category := c.Query("category"); category != "" {
			query = query.Where("requests.category = ?", category)
		}
		if city := strings.TrimSpace(c.Query("city")); city != "" {
			query = query.Where("LOWER(locations.city) LIKE ?", "%"+strings.ToLower(city)+"%")
		}

		var requests []models.Request
		if err := query.Preload("Location").Preload("Guest").
			Order("requests.preferred_date ASC").
			Offset(page.Offset()).Limit(page.Limit).
			Find(&requests).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("list requests: %w", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"requests": requests, "page": page.Page, "limit": page.Limit})
	}
}

func MyRequests(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var requests []models.Request
		if err := db.Preload("Location").
			Where("guest_id = ?", middleware.CurrentUserID(c)).
			Order("created_at DESC").
			Find(&requests).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("list my requests: %w", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"requests": requests})
	}
}

func GetRequest(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := utils.ParseIDParam(c, "id")
		if !ok {
			return
		}
		var request models.Request
		if err := db.Preload("Location").Preload("Guest").First(&request, id).Error; err != nil {
			utils.RespondError(c, apperrors.NotFound("request"))
			return
		}
		c.JSON(http.StatusOK, request)
	}
}

func loadOwnRequest(c *gin.Context, db *gorm.DB) (*models.Request, bool) {
	id, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return nil, false
	}
	var request models.Request
	if err := db.First(&request, id).Error; err != nil {
		utils.RespondError(c, apperrors.NotFound("request"))
		return nil, false
	}
	if request.GuestID != middleware.CurrentUserID(c) {
		utils.RespondError(c, apperrors.Forbidden("only the guest can change this request"))
		return nil, false
	}
	return &request, true
}

func UpdateRequest(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		request, ok := loadOwnRequest(c, db)
		if !ok {
			return
		}

		var input struct {
			Title         *string               `json:"title" binding:"omitempty,max=200"`
			Description   *string               `json:"description"`
			Category      *models.Category      `json:"category"`
			LocationID    *uint                 `json:"locationId"`
			PreferredDate *time.Time            `json:"preferredDate"`
			GuestCount    *int                  `json:"guestCount"`
			Budget        *float64              `json:"budget"`
			Status        *models.RequestStatus `json:"status"`
		}
		if !bindJSON(c, &input) {
			return
		}

		if input.Title != nil {
			request.Title = strings.TrimSpace(*input.Title)
		}
		if input.Description != nil {
			request.Description = *input.Description
		}
		if input.Category != nil {
			if !input.Category.Valid() {
				utils.RespondError(c, apperrors.Validation("category", "category must be one of dining, travel, event"))
				return
			}
			request.Category = *input.Category
		}
		if input.LocationID != nil {
			if !requireLocation(c, db, *input.LocationID) {
				return
			}
			request.LocationID = *input.LocationID
		}
		if input.PreferredDate != nil {
			if !input.PreferredDate.After(time.Now()) {
				utils.RespondError(c, apperrors.Validation("preferredDate", "preferredDate must be in the future"))
				return
			}
			request.PreferredDate = *input.PreferredDate
		}
		if input.GuestCount != nil {
			if *input.GuestCount < 1 {
				utils.RespondError(c, apperrors.Validation("guestCount", "guestCount must be at least 1"))
				return
			}
			request.GuestCount = *input.GuestCount
		}
		if input.Budget != nil {
			if *input.Budget < 0 {
				utils.RespondError(c, apperrors.Validation("budget", "budget cannot be negative"))
				return
			}
			request.Budget = *input.Budget
		}
		if input.Status != nil {
			// matched is only reached through an approved offer
			if *input.Status != models.RequestStatusOpen && *input.Status != models.RequestStatusClosed {
				utils.RespondError(c, apperrors.Validation("status", "status must be open or closed"))
				return
			}
			if request.Status == models.RequestStatusMatched && *input.Status != request.Status {
				utils.RespondError(c, apperrors.Conflict("request already has an approved match"))
				return
			}
			request.Status = *input.Status
		}

		if err := db.Omit(clause.Associations).Save(request).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("update request: %w", err))
			return
		}
		warnIfFailed(db.Preload("Location").Preload("Guest").First(request, request.ID).Error, "Failed to reload request")
		c.JSON(http.StatusOK, request)
	}
}

// DeleteRequest closes and soft-deletes the request, cancelling pending offers.
func DeleteRequest(db *gorm.DB, payments services.PaymentGateway, notifier *services.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		request, ok := loadOwnRequest(c, db)
		if !ok {
			return
		}

		cancelled, err := cancelPendingMatches(c.Request.Context(), db, payments, "request_id", request.ID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(request).Update("status", models.RequestStatusClosed).Error; err != nil {
				return err
			}
			return tx.Delete(request).Error
		})
		if err != nil {
			utils.RespondError(c, fmt.Errorf("delete request: %w", err))
			return
		}
		notifyCancelled(c, notifier, cancelled, request.GuestID, "The guest withdrew "+request.Title)

		c.Status(http.StatusNoContent)
	}
}
