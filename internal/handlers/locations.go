package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dinewithlocals/backend/internal/apperrors"
	"github.com/dinewithlocals/backend/internal/middleware"
	"github.com/dinewithlocals/backend/internal/models"
	"github.com/dinewithlocals/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type LocationInput struct {
	Name      string   `json:"name" binding:"required"`
	Address   string   `json:"address"`
	City      string   `json:"city"`
	Country   string   `json:"country"`
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

func CreateLocation(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input LocationInput
		if !bindJSON(c, &input) {
			return
		}
		if !utils.ValidCoordinates(*input.Latitude, *input.Longitude) {
			utils.RespondError(c, apperrors.Validation("latitude", "coordinates out of range"))
			return
		}

		location := models.Location{
			Name:        strings.TrimSpace(input.Name),
			Address:     input.Address,
			City:        strings.TrimSpace(input.City),
			Country:     input.Country,
			Latitude:    *input.Latitude,
			Longitude:   *input.Longitude,
			CreatedByID: middleware.CurrentUserID(c),
		}
		if err := db.Create(&location).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("create location: %w", err))
			return
		}
		c.JSON(http.StatusCreated, location)
	}
}

// SearchLocations matches city and free text case-insensitively.
func SearchLocations(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := utils.ParsePage(c, 50, 200)
		query := db.Model(&models.Location{})

		if city := strings.TrimSpace(c.Query("city")); city != "" {
			query = query.Where("LOWER(city) LIKE ?", "%"+strings.ToLower(city)+"%")
		}
		if q := strings.TrimSpace(c.Query("q")); q != "" {
			like := "%" + strings.ToLower(q) + "%"
			query = query.Where("LOWER(name) LIKE ? OR LOWER(address) LIKE ? OR LOWER(city) LIKE ?", like, like, like)
		}

		var locations []models.Location
		if err := query.Order("name ASC").Offset(page.Offset()).Limit(page.Limit).Find(&locations).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("search locations: %w", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"locations": locations})
	}
}

func GetLocation(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := utils.ParseIDParam(c, "id")
		if !ok {
			return
		}
		var location models.Location
		if err := db.First(&location, id).Error; err != nil {
			utils.RespondError(c, apperrors.NotFound("location"))
			return
		}
		c.JSON(http.StatusOK, location)
	}
}

// requireLocation responds 404 when the location is missing.
func requireLocation(c *gin.Context, db *gorm.DB, id uint) bool {
	var count int64
	if err := db.Model(&models.Location{}).Where("id = ?", id).Count(&count).Error; err != nil {
		utils.RespondError(c, fmt.Errorf("find location: %w", err))
		return false
	}
	if count == 0 {
		utils.RespondError(c, apperrors.NotFound("location"))
		return false
	}
	return true
}
