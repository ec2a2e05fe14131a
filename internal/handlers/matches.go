package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dinewithlocals/backend/internal/apperrors"
	"github.com/dinewithlocals/backend/internal/logger"
	"github.com/dinewithlocals/backend/internal/metrics"
	"github.com/dinewithlocals/backend/internal/middleware"
	"github.com/dinewithlocals/backend/internal/models"
	"github.com/dinewithlocals/backend/internal/services"
	"github.com/dinewithlocals/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MatchInput books a listing (listingId) or offers on a request (requestId,
// optionally tied to one of the caller's listings).
type MatchInput struct {
	ListingID  *uint  `json:"listingId"`
	RequestID  *uint  `json:"requestId"`
	GuestCount int    `json:"guestCount"`
	Message    string `json:"message" binding:"max=2000"`
}

// MatchResponse carries the client secret of a fresh payment hold.
type MatchResponse struct {
	models.Match
	ClientSecret string `json:"clientSecret,omitempty"`
}

// MatchSettings are the payment knobs of the match handlers.
type MatchSettings struct {
	FeePercent float64
}

func preloadMatch(db *gorm.DB) *gorm.DB {
	return db.Preload("Listing").Preload("Listing.Location").
		Preload("Request").Preload("Host").Preload("Guest")
}

func recordTransition(to models.MatchStatus) {
	metrics.Get().MatchTransitionsTotal.WithLabelValues(string(to)).Inc()
}

// respondTransitionError maps a rejected state change to 409.
func respondTransitionError(c *gin.Context, err error) {
	var invalid *models.ErrInvalidTransition
	if errors.As(err, &invalid) {
		utils.RespondError(c, apperrors.Conflict(invalid.Error()))
		return
	}
	utils.RespondError(c, err)
}

// notify sends one notification, logging instead of failing the request.
func notify(c *gin.Context, notifier *services.Notifier, in services.NotifyInput) {
	if notifier == nil {
		return
	}
	if _, err := notifier.Notify(c.Request.Context(), in); err != nil {
		logger.Log.Warn("Failed to notify user",
			logger.WithUserID(in.UserID),
			zap.String("type", string(in.Type)),
			zap.Error(err),
		)
	}
}

// pushMatchUpdate tells both parties a match changed.
func pushMatchUpdate(hub *services.Hub, match *models.Match) {
	if hub == nil {
		return
	}
	hub.SendToUser(match.HostID, services.EventMatchUpdated, match)
	hub.SendToUser(match.GuestID, services.EventMatchUpdated, match)
}

// holdOpen reports whether the match has an authorized, uncaptured payment.
func holdOpen(match *models.Match) bool {
	if match.PaymentIntentID == "" {
		return false
	}
	return match.PaymentStatus == models.PaymentStatusPending || match.PaymentStatus == models.PaymentStatusFailed
}

func setPaymentStatus(db *gorm.DB, matchID uint, status models.PaymentStatus) error {
	return db.Model(&models.Match{}).Where("id = ?", matchID).Update("payment_status", status).Error
}

// releasePayment cancels an uncaptured hold. Captured payments are left
// for a manual refund.
func releasePayment(ctx context.Context, payments services.PaymentGateway, match *models.Match) {
	if !holdOpen(match) {
		return
	}
	if err := payments.Cancel(ctx, match.PaymentIntentID); err != nil {
		logger.Log.Error("Failed to release payment hold",
			logger.WithMatchID(match.ID),
			zap.Error(err),
		)
		match.PaymentStatus = models.PaymentStatusFailed
		return
	}
	match.PaymentStatus = models.PaymentStatusCancelled
}

// cancelPendingMatches cancels every pending match whose column equals id
// and returns the cancelled matches.
func cancelPendingMatches(ctx context.Context, db *gorm.DB, payments services.PaymentGateway, column string, id uint) ([]models.Match, error) {
	var matches []models.Match
	if err := db.WithContext(ctx).
		Where(column+" = ? AND status = ?", id, models.MatchStatusPending).
		Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("load pending matches: %w", err)
	}

	now := time.Now()
	for i := range matches {
		match := &matches[i]
		if err := match.Transition(models.MatchStatusCancelled, now); err != nil {
			return nil, err
		}
		releasePayment(ctx, payments, match)
		if err := db.WithContext(ctx).Omit(clause.Associations).Save(match).Error; err != nil {
			return nil, fmt.Errorf("cancel match %d: %w", match.ID, err)
		}
		recordTransition(models.MatchStatusCancelled)
	}
	return matches, nil
}

// notifyCancelled tells the other party of each match that actorID
// cancelled it.
func notifyCancelled(c *gin.Context, notifier *services.Notifier, matches []models.Match, actorID uint, body string) {
	for _, m := range matches {
		notify(c, notifier, services.NotifyInput{
			UserID:     m.Counterparty(actorID),
			ActorID:    actorID,
			Type:       models.NotificationMatchCancelled,
			Title:      "Match cancelled",
			Body:       body,
			EntityType: "match",
			EntityID:   m.ID,
		})
	}
}

// hasOpenMatch reports whether a pending or approved match already exists
// for the pair on the given column.
func hasOpenMatch(db *gorm.DB, column string, id, hostID, guestID uint) (bool, error) {
	var count int64
	err := db.Model(&models.Match{}).
		Where(column+" = ? AND host_id = ? AND guest_id = ?", id, hostID, guestID).
		Where("status IN ?", []models.MatchStatus{models.MatchStatusPending, models.MatchStatusApproved}).
		Count(&count).Error
	return count > 0, err
}

// CreateMatch handles both a guest booking a listing and a host offering
// on a request.
func CreateMatch(db *gorm.DB, payments services.PaymentGateway, notifier *services.Notifier, hub *services.Hub, settings MatchSettings) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input MatchInput
		if !bindJSON(c, &input) {
			return
		}
		userID := middleware.CurrentUserID(c)

		var (
			match *models.Match
			auth  *services.Authorization
			err   error
		)
		switch {
		case input.RequestID != nil:
			match, err = buildOffer(db, userID, input)
		case input.ListingID != nil:
			match, auth, err = buildBooking(c.Request.Context(), db, payments, settings, userID, input)
		default:
			err = apperrors.Validation("listingId", "listingId or requestId is required")
		}
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		if err := db.Create(match).Error; err != nil {
			if auth != nil {
				releasePayment(c.Request.Context(), payments, match)
			}
			utils.RespondError(c, fmt.Errorf("create match: %w", err))
			return
		}
		recordTransition(models.MatchStatusPending)
		warnIfFailed(preloadMatch(db).First(match, match.ID).Error, "Failed to reload match")

		title := "New booking request"
		if input.RequestID != nil {
			title = "New offer for your request"
		}
		notify(c, notifier, services.NotifyInput{
			UserID:     match.Responder(),
			ActorID:    userID,
			Type:       models.NotificationMatchRequested,
			Title:      title,
			Body:       match.Message,
			EntityType: "match",
			EntityID:   match.ID,
		})
		pushMatchUpdate(hub, match)

		resp := MatchResponse{Match: *match}
		if auth != nil {
			resp.ClientSecret = auth.ClientSecret
		}
		c.JSON(http.StatusCreated, resp)
	}
}

func buildBooking(ctx context.Context, db *gorm.DB, payments services.PaymentGateway, settings MatchSettings, guestID uint, input MatchInput) (*models.Match, *services.Authorization, error) {
	var listing models.Listing
	if err := db.First(&listing, *input.ListingID).Error; err != nil {
		return nil, nil, apperrors.NotFound("listing")
	}
	if listing.HostID == guestID {
		return nil, nil, apperrors.BadRequest("you cannot book your own listing")
	}
	if !listing.Bookable(time.Now()) {
		return nil, nil, apperrors.BadRequest("listing is no longer accepting bookings")
	}

	guests := input.GuestCount
	if guests == 0 {
		guests = 1
	}
	if guests < 1 {
		return nil, nil, apperrors.Validation("guestCount", "guestCount must be at least 1")
	}
	taken, err := approvedGuests(db, listing.ID)
	if err != nil {
		return nil, nil, err
	}
	if taken+guests > listing.MaxGuests {
		return nil, nil, apperrors.Conflict(fmt.Sprintf("only %d spots left", max(0, listing.MaxGuests-taken)))
	}
	dup, err := hasOpenMatch(db, "listing_id", listing.ID, listing.HostID, guestID)
	if err != nil {
		return nil, nil, err
	}
	if dup {
		return nil, nil, apperrors.Conflict("you already have a booking for this listing")
	}

	amount := utils.CalculateMatchAmount(listing.Price, guests, settings.FeePercent)
	listingID := listing.ID
	match := &models.Match{
		ListingID:     &listingID,
		HostID:        listing.HostID,
		GuestID:       guestID,
		InitiatorID:   guestID,
		GuestCount:    guests,
		Message:       input.Message,
		Status:        models.MatchStatusPending,
		TotalAmount:   amount.Total,
		Currency:      listing.Currency,
		PaymentStatus: models.PaymentStatusNone,
	}

	if amount.Total == 0 || !payments.Enabled() {
		return match, nil, nil
	}
	auth, err := payments.Authorize(ctx, amount.Total, listing.Currency, services.PaymentMetadata{
		ListingID: listing.ID,
		GuestID:   guestID,
	})
	if err != nil {
		logger.Log.Warn("Payment authorization failed",
			logger.WithUserID(guestID),
			zap.Uint("listing_id", listing.ID),
			zap.Error(err),
		)
		return nil, nil, apperrors.PaymentRequired("payment authorization failed")
	}
	match.PaymentIntentID = auth.IntentID
	match.PaymentStatus = models.PaymentStatusPending
	return match, auth, nil
}

func buildOffer(db *gorm.DB, hostID uint, input MatchInput) (*models.Match, error) {
	var request models.Request
	if err := db.First(&request, *input.RequestID).Error; err != nil {
		return nil, apperrors.NotFound("request")
	}
	if request.GuestID == hostID {
		return nil, apperrors.BadRequest("you cannot offer on your own request")
	}
	if request.Status != models.RequestStatusOpen {
		return nil, apperrors.BadRequest("request is no longer open")
	}

	if input.ListingID != nil {
		var listing models.Listing
		if err := db.First(&listing, *input.ListingID).Error; err != nil {
			return nil, apperrors.NotFound("listing")
		}
		if listing.HostID != hostID {
			return nil, apperrors.Forbidden("you can only offer your own listings")
		}
		if !listing.Bookable(time.Now()) {
			return nil, apperrors.BadRequest("listing is no longer accepting bookings")
		}
	}

	dup, err := hasOpenMatch(db, "request_id", request.ID, hostID, request.GuestID)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, apperrors.Conflict("you already made an offer on this request")
	}

	requestID := request.ID
	return &models.Match{
		ListingID:     input.ListingID,
		RequestID:     &requestID,
		HostID:        hostID,
		GuestID:       request.GuestID,
		InitiatorID:   hostID,
		GuestCount:    request.GuestCount,
		Message:       input.Message,
		Status:        models.MatchStatusPending,
		PaymentStatus: models.PaymentStatusNone,
	}, nil
}

// ListMatches returns the caller's matches, optionally by role and status.
func ListMatches(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.CurrentUserID(c)
		page := utils.ParsePage(c, 20, 100)

		query := db.Model(&models.Match{})
		switch c.Query("role") {
		case "host":
			query = query.Where("host_id = ?", userID)
		case "guest":
			query = query.Where("guest_id = ?", userID)
		case "":
			query = query.Where("host_id = ? OR guest_id = ?", userID, userID)
		default:
			utils.RespondError(c, apperrors.Validation("role", "role must be host or guest"))
			return
		}
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}
		query = query.Session(&gorm.Session{})

		var total int64
		if err := query.Count(&total).Error; err != nil {
			utils.RespondError(c, err)
			return
		}
		var matches []models.Match
		if err := preloadMatch(query).Order("created_at DESC").
			Offset(page.Offset()).Limit(page.Limit).
			Find(&matches).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("list matches: %w", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"matches": matches, "total": total, "page": page.Page, "limit": page.Limit})
	}
}

// PendingMatches returns pending matches waiting on the caller's answer.
func PendingMatches(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.CurrentUserID(c)
		var matches []models.Match
		if err := preloadMatch(db).
			Where("status = ? AND initiator_id <> ?", models.MatchStatusPending, userID).
			Where("host_id = ? OR guest_id = ?", userID, userID).
			Order("created_at ASC").
			Find(&matches).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("list pending matches: %w", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"matches": matches})
	}
}

// loadMatch fetches a match the caller is a party of.
func loadMatch(c *gin.Context, db *gorm.DB) (*models.Match, bool) {
	id, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return nil, false
	}
	var match models.Match
	if err := preloadMatch(db).First(&match, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.RespondError(c, apperrors.NotFound("match"))
		} else {
			utils.RespondError(c, err)
		}
		return nil, false
	}
	if !match.IsParty(middleware.CurrentUserID(c)) {
		utils.RespondError(c, apperrors.Forbidden("you are not part of this match"))
		return nil, false
	}
	return &match, true
}

func GetMatch(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		match, ok := loadMatch(c, db)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, match)
	}
}

// ApproveMatch captures any payment hold, then approves, links the request
// and opens a chat between host and guest.
func ApproveMatch(db *gorm.DB, payments services.PaymentGateway, notifier *services.Notifier, hub *services.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		match, ok := loadMatch(c, db)
		if !ok {
			return
		}
		userID := middleware.CurrentUserID(c)
		if match.Responder() != userID {
			utils.RespondError(c, apperrors.Forbidden("only the other party can approve"))
			return
		}
		if !models.CanTransition(match.Status, models.MatchStatusApproved) {
			respondTransitionError(c, &models.ErrInvalidTransition{From: match.Status, To: models.MatchStatusApproved})
			return
		}

		if match.ListingID != nil && match.Listing != nil {
			taken, err := approvedGuests(db, *match.ListingID)
			if err != nil {
				utils.RespondError(c, err)
				return
			}
			if taken+match.GuestCount > match.Listing.MaxGuests {
				utils.RespondError(c, apperrors.Conflict("not enough spots left on this listing"))
				return
			}
		}

		// a failed capture is retried on the next approval
		if holdOpen(match) {
			if err := payments.Capture(c.Request.Context(), match.PaymentIntentID); err != nil {
				logger.Log.Warn("Payment capture failed", logger.WithMatchID(match.ID), zap.Error(err))
				if err := setPaymentStatus(db, match.ID, models.PaymentStatusFailed); err != nil {
					logger.Log.Error("Failed to record capture failure", logger.WithMatchID(match.ID), zap.Error(err))
				}
				utils.RespondError(c, apperrors.PaymentRequired("payment could not be captured"))
				return
			}
			// the money has moved; record it even if approval fails below
			match.PaymentStatus = models.PaymentStatusCaptured
			if err := setPaymentStatus(db, match.ID, models.PaymentStatusCaptured); err != nil {
				logger.Log.Error("Failed to record captured payment", logger.WithMatchID(match.ID), zap.Error(err))
				utils.RespondError(c, fmt.Errorf("record capture: %w", err))
				return
			}
		}

		var chat *models.Chat
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := match.Transition(models.MatchStatusApproved, time.Now()); err != nil {
				return err
			}
			if err := tx.Omit(clause.Associations).Save(match).Error; err != nil {
				return err
			}
			if match.RequestID != nil {
				if err := tx.Model(&models.Request{}).Where("id = ?", *match.RequestID).
					Update("status", models.RequestStatusMatched).Error; err != nil {
					return err
				}
			}
			var err error
			chat, _, err = ensureDirectChat(tx, match.HostID, match.GuestID, match.ListingID)
			return err
		})
		if err != nil {
			respondTransitionError(c, err)
			return
		}
		recordTransition(models.MatchStatusApproved)

		notify(c, notifier, services.NotifyInput{
			UserID:     match.InitiatorID,
			ActorID:    userID,
			Type:       models.NotificationMatchApproved,
			Title:      "Match approved",
			Body:       "Your match was approved. Say hello in the chat!",
			EntityType: "match",
			EntityID:   match.ID,
		})
		pushMatchUpdate(hub, match)

		c.JSON(http.StatusOK, gin.H{"match": match, "chatId": chat.ID})
	}
}

// RejectMatch declines a pending match and releases any hold.
func RejectMatch(db *gorm.DB, payments services.PaymentGateway, notifier *services.Notifier, hub *services.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		match, ok := loadMatch(c, db)
		if !ok {
			return
		}
		userID := middleware.CurrentUserID(c)
		if match.Responder() != userID {
			utils.RespondError(c, apperrors.Forbidden("only the other party can reject"))
			return
		}
		if err := match.Transition(models.MatchStatusRejected, time.Now()); err != nil {
			respondTransitionError(c, err)
			return
		}
		releasePayment(c.Request.Context(), payments, match)
		if err := db.Omit(clause.Associations).Save(match).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("reject match: %w", err))
			return
		}
		recordTransition(models.MatchStatusRejected)

		notify(c, notifier, services.NotifyInput{
			UserID:     match.InitiatorID,
			ActorID:    userID,
			Type:       models.NotificationMatchRejected,
			Title:      "Match declined",
			EntityType: "match",
			EntityID:   match.ID,
		})
		pushMatchUpdate(hub, match)

		c.JSON(http.StatusOK, match)
	}
}

// CancelMatch lets either party withdraw a pending or approved match.
func CancelMatch(db *gorm.DB, payments services.PaymentGateway, notifier *services.Notifier, hub *services.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		match, ok := loadMatch(c, db)
		if !ok {
			return
		}
		userID := middleware.CurrentUserID(c)
		if err := match.Transition(models.MatchStatusCancelled, time.Now()); err != nil {
			respondTransitionError(c, err)
			return
		}
		releasePayment(c.Request.Context(), payments, match)
		if err := db.Omit(clause.Associations).Save(match).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("cancel match: %w", err))
			return
		}
		recordTransition(models.MatchStatusCancelled)

		notifyCancelled(c, notifier, []models.Match{*match}, userID, "A match you were part of was cancelled")
		pushMatchUpdate(hub, match)

		c.JSON(http.StatusOK, gin.H{
			"match":          match,
			"refundRequired": match.PaymentStatus == models.PaymentStatusCaptured,
		})
	}
}
