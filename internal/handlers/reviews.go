package handlers

import (
	"fmt"
	"math"
	"net/http"

	"github.com/dinewithlocals/backend/internal/apperrors"
	"github.com/dinewithlocals/backend/internal/middleware"
	"github.com/dinewithlocals/backend/internal/models"
	"github.com/dinewithlocals/backend/internal/services"
	"github.com/dinewithlocals/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ReviewInput struct {
	MatchID uint   `json:"matchId" binding:"required"`
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment" binding:"max=2000"`
}

type ratingRow struct {
	Average float64
	Count   int64
}

func summarize(query *gorm.DB) (float64, int64, error) {
	var row ratingRow
	if err := query.Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count").
		Scan(&row).Error; err != nil {
		return 0, 0, fmt.Errorf("rating summary: %w", err)
	}
	return math.Round(row.Average*10) / 10, row.Count, nil
}

// ratingSummary returns the average rating (one decimal) and count of
// reviews a user received.
func ratingSummary(db *gorm.DB, userID uint) (float64, int64, error) {
	return summarize(db.Where("reviewee_id = ?", userID))
}

// CreateReview rates the other party of an approved match, once per match.
func CreateReview(db *gorm.DB, notifier *services.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input ReviewInput
		if !bindJSON(c, &input) {
			return
		}
		if !models.ValidRating(input.Rating) {
			utils.RespondError(c, apperrors.Validation("rating", "rating must be between 1 and 5"))
			return
		}
		userID := middleware.CurrentUserID(c)

		var match models.Match
		if err := db.First(&match, input.MatchID).Error; err != nil {
			utils.RespondError(c, apperrors.NotFound("match"))
			return
		}
		if !match.IsParty(userID) {
			utils.RespondError(c, apperrors.Forbidden("you are not part of this match"))
			return
		}
		if match.Status != models.MatchStatusApproved {
			utils.RespondError(c, apperrors.BadRequest("only approved matches can be reviewed"))
			return
		}

		var existing int64
		if err := db.Model(&models.Review{}).
			Where("reviewer_id = ? AND match_id = ?", userID, match.ID).
			Count(&existing).Error; err != nil {
			utils.RespondError(c, err)
			return
		}
		if existing > 0 {
			utils.RespondError(c, apperrors.Conflict("you already reviewed this match"))
			return
		}

		review := models.Review{
			ReviewerID: userID,
			RevieweeID: match.Counterparty(userID),
			MatchID:    match.ID,
			ListingID:  match.ListingID,
			Rating:     input.Rating,
			Comment:    input.Comment,
		}
		if err := db.Create(&review).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("create review: %w", err))
			return
		}
		warnIfFailed(db.Preload("Reviewer").First(&review, review.ID).Error, "Failed to reload review")

		notify(c, notifier, services.NotifyInput{
			UserID:     review.RevieweeID,
			ActorID:    userID,
			Type:       models.NotificationNewReview,
			Title:      fmt.Sprintf("%s left you a %d-star review", displayName(&review.Reviewer), review.Rating),
			Body:       preview(review.Comment, 120),
			EntityType: "review",
			EntityID:   review.ID,
		})

		c.JSON(http.StatusCreated, review)
	}
}

func listReviews(c *gin.Context, db *gorm.DB, column string, id uint) {
	page := utils.ParsePage(c, 20, 100)

	var reviews []models.Review
	if err := db.Preload("Reviewer").
		Where(column+" = ?", id).
		Order("created_at DESC").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&reviews).Error; err != nil {
		utils.RespondError(c, fmt.Errorf("list reviews: %w", err))
		return
	}
	avg, count, err := summarize(db.Where(column+" = ?", id))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews, "averageRating": avg, "count": count})
}

// UserReviews lists reviews a user received.
func UserReviews(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := utils.ParseIDParam(c, "id")
		if !ok {
			return
		}
		listReviews(c, db, "reviewee_id", id)
	}
}

func ListingReviews(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := utils.ParseIDParam(c, "id")
		if !ok {
			return
		}
		listReviews(c, db, "listing_id", id)
	}
}
