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

type ListingInput struct {
	Title       string          `json:"title" binding:"required,max=200"`
	Description string          `json:"description"`
	Category    models.Category `json:"category" binding:"required"`
	LocationID  uint            `json:"locationId" binding:"required"`
	StartTime   time.Time       `json:"startTime" binding:"required"`
	EndTime     *time.Time      `json:"endTime"`
	MaxGuests   int             `json:"maxGuests" binding:"required"`
	Price       float64         `json:"price"`
	Images      []string        `json:"images"`
}

// ListingView adds derived capacity to a listing.
type ListingView struct {
	models.Listing
	SpotsLeft int `json:"spotsLeft"`
}

// approvedGuests sums guests of approved matches on a listing.
func approvedGuests(db *gorm.DB, listingID uint) (int, error) {
	var total int
	err := db.Model(&models.Match{}).
		Select("COALESCE(SUM(guest_count), 0)").
		Where("listing_id = ? AND status = ?", listingID, models.MatchStatusApproved).
		Scan(&total).Error
	return total, err
}

func listingView(db *gorm.DB, l models.Listing) (ListingView, error) {
	taken, err := approvedGuests(db, l.ID)
	if err != nil {
		return ListingView{}, err
	}
	spots := l.MaxGuests - taken
	if spots < 0 {
		spots = 0
	}
	return ListingView{Listing: l, SpotsLeft: spots}, nil
}

func validateSchedule(start time.Time, end *time.Time, now time.Time) error {
	if !start.After(now) {
		return apperrors.Validation("startTime", "startTime must be in the future")
	}
	if end != nil && !end.After(start) {
		return apperrors.Validation("endTime", "endTime must be after startTime")
	}
	return nil
}

// CreateListing lets any authenticated user host an experience.
func CreateListing(db *gorm.DB, currency string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input ListingInput
		if !bindJSON(c, &input) {
			return
		}
		if !input.Category.Valid() {
			utils.RespondError(c, apperrors.Validation("category", "category must be one of dining, travel, event"))
			return
		}
		if err := validateSchedule(input.StartTime, input.EndTime, time.Now()); err != nil {
			utils.RespondError(c, err)
			return
		}
		if input.MaxGuests < 1 {
			utils.RespondError(c, apperrors.Validation("maxGuests", "maxGuests must be at least 1"))
			return
		}
		if input.Price < 0 {
			utils.RespondError(c, apperrors.Validation("price", "price cannot be negative"))
			return
		}
		if !requireLocation(c, db, input.LocationID) {
			return
		}

		listing := models.Listing{
			HostID:      middleware.CurrentUserID(c),
			Title:       strings.TrimSpace(input.Title),
			Description: input.Description,
			Category:    input.Category,
			LocationID:  input.LocationID,
			StartTime:   input.StartTime,
			EndTime:     input.EndTime,
			MaxGuests:   input.MaxGuests,
			Price:       input.Price,
			Currency:    currency,
			Images:      input.Images,
			Status:      models.ListingStatusActive,
		}
		if err := db.Create(&listing).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("create listing: %w", err))
			return
		}
		warnIfFailed(db.Preload("Location").Preload("Host").First(&listing, listing.ID).Error, "Failed to reload listing")

		c.JSON(http.StatusCreated, ListingView{Listing: listing, SpotsLeft: listing.MaxGuests})
	}
}

// ListListings returns active upcoming listings matching the filters.
func ListListings(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := utils.ParsePage(c, 20, 100)

		query := db.Model(&models.Listing{}).
			Joins("JOIN locations ON locations.id = listings.location_id").
			Where("listings.status = ? AND listings.start_time > ?", models.ListingStatusActive, time.Now())

		if category := c.Query("category"); category != "" {
			query = query.Where("listings.category = ?", category)
		}
		if city := strings.TrimSpace(c.Query("city")); city != "" {
			query = query.Where("LOWER(locations.city) LIKE ?", "%"+strings.ToLower(city)+"%")
		}
		if q := strings.TrimSpace(c.Query("q")); q != "" {
			like := "%" + strings.ToLower(q) + "%"
			query = query.Where("LOWER(listings.title) LIKE ? OR LOWER(listings.description) LIKE ?", like, like)
		}
		if from, err := time.Parse(time.RFC3339, c.Query("from")); err == nil {
			query = query.Where("listings.start_time >= ?", from)
		}
		if to, err := time.Parse(time.RFC3339, c.Query("to")); err == nil {
			query = query.Where("listings.start_time <= ?", to)
		}

		// a new session per call so Count does not leak into Find
		query = query.Session(&gorm.Session{})

		var total int64
		if err := query.Count(&total).Error; err != nil {
			utils.RespondError(c, err)
			return
		}

		var listings []models.Listing
		if err := query.Preload("Location").Preload("Host").
			Order("listings.start_time ASC").
			Offset(page.Offset()).Limit(page.Limit).
			Find(&listings).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("list listings: %w", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"listings": listings,
			"total":    total,
			"page":     page.Page,
			"limit":    page.Limit,
		})
	}
}

// MyListings returns every listing hosted by the caller.
func MyListings(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var listings []models.Listing
		if err := db.Preload("Location").
			Where("host_id = ?", middleware.CurrentUserID(c)).
			Order("start_time DESC").
			Find(&listings).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("list my listings: %w", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"listings": listings})
	}
}

func GetListing(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := utils.ParseIDParam(c, "id")
		if !ok {
			return
		}
		var listing models.Listing
		if err := db.Preload("Location").Preload("Host").First(&listing, id).Error; err != nil {
			utils.RespondError(c, apperrors.NotFound("listing"))
			return
		}
		view, err := listingView(db, listing)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// loadOwnListing fetches a listing and checks the caller hosts it.
func loadOwnListing(c *gin.Context, db *gorm.DB) (*models.Listing, bool) {
	id, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return nil, false
	}
	var listing models.Listing
	if err := db.First(&listing, id).Error; err != nil {
		utils.RespondError(c, apperrors.NotFound("listing"))
		return nil, false
	}
	if listing.HostID != middleware.CurrentUserID(c) {
		utils.RespondError(c, apperrors.Forbidden("only the host can change this listing"))
		return nil, false
	}
	return &listing, true
}

func UpdateListing(db *gorm.DB, payments services.PaymentGateway, notifier *services.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		listing, ok := loadOwnListing(c, db)
		if !ok {
			return
		}

		var input struct {
			Title       *string               `json:"title" binding:"omitempty,max=200"`
			Description *string               `json:"description"`
			Category    *models.Category      `json:"category"`
			LocationID  *uint                 `json:"locationId"`
			StartTime   *time.Time            `json:"startTime"`
			EndTime     *time.Time            `json:"endTime"`
			MaxGuests   *int                  `json:"maxGuests"`
			Price       *float64              `json:"price"`
			Images      *[]string             `json:"images"`
			Status      *models.ListingStatus `json:"status"`
		}
		if !bindJSON(c, &input) {
			return
		}

		if input.Title != nil {
			listing.Title = strings.TrimSpace(*input.Title)
		}
		if input.Description != nil {
			listing.Description = *input.Description
		}
		if input.Category != nil {
			if !input.Category.Valid() {
				utils.RespondError(c, apperrors.Validation("category", "category must be one of dining, travel, event"))
				return
			}
			listing.Category = *input.Category
		}
		if input.LocationID != nil {
			if !requireLocation(c, db, *input.LocationID) {
				return
			}
			listing.LocationID = *input.LocationID
		}
		if input.StartTime != nil || input.EndTime != nil {
			start, end := listing.StartTime, listing.EndTime
			if input.StartTime != nil {
				start = *input.StartTime
			}
			if input.EndTime != nil {
				end = input.EndTime
			}
			if err := validateSchedule(start, end, time.Now()); err != nil {
				utils.RespondError(c, err)
				return
			}
			listing.StartTime, listing.EndTime = start, end
		}
		if input.MaxGuests != nil {
			taken, err := approvedGuests(db, listing.ID)
			if err != nil {
				utils.RespondError(c, err)
				return
			}
			if *input.MaxGuests < 1 || *input.MaxGuests < taken {
				utils.RespondError(c, apperrors.Validation("maxGuests", fmt.Sprintf("maxGuests must be at least %d", max(1, taken))))
				return
			}
			listing.MaxGuests = *input.MaxGuests
		}
		if input.Price != nil {
			if *input.Price < 0 {
				utils.RespondError(c, apperrors.Validation("price", "price cannot be negative"))
				return
			}
			listing.Price = *input.Price
		}
		if input.Images != nil {
			listing.Images = *input.Images
		}
		cancelling := false
		if input.Status != nil && *input.Status != listing.Status {
			switch *input.Status {
			case models.ListingStatusActive, models.ListingStatusCancelled, models.ListingStatusCompleted:
			default:
				utils.RespondError(c, apperrors.Validation("status", "invalid status"))
				return
			}
			cancelling = *input.Status == models.ListingStatusCancelled
			listing.Status = *input.Status
		}

		if err := db.Omit(clause.Associations).Save(listing).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("update listing: %w", err))
			return
		}
		if cancelling {
			cancelled, err := cancelPendingMatches(c.Request.Context(), db, payments, "listing_id", listing.ID)
			if err != nil {
				utils.RespondError(c, err)
				return
			}
			notifyCancelled(c, notifier, cancelled, listing.HostID, "The host cancelled "+listing.Title)
		}

		warnIfFailed(db.Preload("Location").Preload("Host").First(listing, listing.ID).Error, "Failed to reload listing")
		view, err := listingView(db, *listing)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// DeleteListing soft-deletes the listing and cancels its pending matches.
func DeleteListing(db *gorm.DB, payments services.PaymentGateway, notifier *services.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		listing, ok := loadOwnListing(c, db)
		if !ok {
			return
		}

		cancelled, err := cancelPendingMatches(c.Request.Context(), db, payments, "listing_id", listing.ID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := db.Delete(listing).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("delete listing: %w", err))
			return
		}
		notifyCancelled(c, notifier, cancelled, listing.HostID, "The host removed "+listing.Title)

		c.Status(http.StatusNoContent)
	}
}

func UploadListingImage(db *gorm.DB, store ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		listing, ok := loadOwnListing(c, db)
		if !ok {
			return
		}
		url, ok := receiveImage(c, store, "listings")
		if !ok {
			return
		}

		listing.Images = append(listing.Images, url)
		if err := db.Model(listing).Update("images", listing.Images).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("save listing image: %w", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url, "images": listing.Images})
	}
}
