package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/dinewithlocals/backend/internal/models"
	"github.com/dinewithlocals/backend/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
)

type MatchSuite struct {
	apiSuite
	host, guest           *models.User
	hostToken, guestToken string
	listing               *models.Listing
}

func TestMatchSuite(t *testing.T) {
	suite.Run(t, new(MatchSuite))
}

func (s *MatchSuite) SetupTest() {
	s.apiSuite.SetupTest()
	s.host, s.hostToken = s.user("host")
	s.guest, s.guestToken = s.user("guest")
	loc := testutil.CreateLocation(s.T(), s.db, "Westlands", -1.2676, 36.8108)
	s.listing = testutil.CreateListing(s.T(), s.db, s.host, loc, 25, 4)
}

type approveResponse struct {
	Match  models.Match `json:"match"`
	ChatID uint         `json:"chatId"`
}

func (s *MatchSuite) book(token string, listingID uint, guests int) *MatchResponse {
	w := s.do(http.MethodPost, "/api/matches", token, gin.H{
		"listingId":  listingID,
		"guestCount": guests,
		"message":    "Looking forward to it",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var resp MatchResponse
	s.decode(w, &resp)
	return &resp
}

func (s *MatchSuite) reload(id uint) models.Match {
	var m models.Match
	s.Require().NoError(s.db.First(&m, id).Error)
	return m
}

func (s *MatchSuite) TestBookingAuthorizesAndApprovalCaptures() {
	match := s.book(s.guestToken, s.listing.ID, 2)
	s.Equal(models.MatchStatusPending, match.Status)
	s.Equal(models.PaymentStatusPending, match.PaymentStatus)
	s.Equal("pi_1_secret", match.ClientSecret)
	// 25 x 2 guests plus the 10% platform fee, in cents
	s.Equal(int64(5500), match.TotalAmount)
	s.Equal([]int64{5500}, s.payments.authorized)
	s.Equal(int64(1), s.notificationsFor(s.host.ID, models.NotificationMatchRequested))

	w := s.do(http.MethodGet, "/api/matches/pending", s.hostToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var pending struct {
		Matches []models.Match `json:"matches"`
	}
	s.decode(w, &pending)
	s.Len(pending.Matches, 1)

	w = s.do(http.MethodGet, "/api/matches/pending", s.guestToken, nil)
	s.decode(w, &pending)
	s.Empty(pending.Matches)

	path := fmt.Sprintf("/api/matches/%d/approve", match.ID)
	s.Equal(http.StatusForbidden, s.do(http.MethodPost, path, s.guestToken, nil).Code)

	w = s.do(http.MethodPost, path, s.hostToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var approved approveResponse
	s.decode(w, &approved)
	s.Equal(models.MatchStatusApproved, approved.Match.Status)
	s.Equal(models.PaymentStatusCaptured, approved.Match.PaymentStatus)
	s.NotNil(approved.Match.RespondedAt)
	s.Equal([]string{"pi_1"}, s.payments.captured)
	s.Equal(int64(1), s.notificationsFor(s.guest.ID, models.NotificationMatchApproved))

	var chat models.Chat
	s.Require().NoError(s.db.Preload("Participants").First(&chat, approved.ChatID).Error)
	s.ElementsMatch([]uint{s.host.ID, s.guest.ID}, chat.ParticipantIDs())
	s.Require().NotNil(chat.ListingID)
	s.Equal(s.listing.ID, *chat.ListingID)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/listings/%d", s.listing.ID), s.guestToken, nil)
	var view ListingView
	s.decode(w, &view)
	s.Equal(2, view.SpotsLeft)

	s.Equal(http.StatusConflict, s.do(http.MethodPost, path, s.hostToken, nil).Code)
}

func (s *MatchSuite) TestCaptureFailureKeepsMatchPending() {
	match := s.book(s.guestToken, s.listing.ID, 1)
	s.payments.captureErr = errors.New("card declined")

	path := fmt.Sprintf("/api/matches/%d/approve", match.ID)
	w := s.do(http.MethodPost, path, s.hostToken, nil)
	s.Equal(http.StatusPaymentRequired, w.Code)

	stored := s.reload(match.ID)
	s.Equal(models.MatchStatusPending, stored.Status)
	s.Equal(models.PaymentStatusFailed, stored.PaymentStatus)

	var chats int64
	s.db.Model(&models.Chat{}).Count(&chats)
	s.Zero(chats)

	// once the card works the capture is retried
	s.payments.captureErr = nil
	s.Equal(http.StatusOK, s.do(http.MethodPost, path, s.hostToken, nil).Code)
	s.Equal(models.PaymentStatusCaptured, s.reload(match.ID).PaymentStatus)
}

func (s *MatchSuite) TestCaptureIsRecordedWhenApprovalFails() {
	match := s.book(s.guestToken, s.listing.ID, 1)
	s.Require().NoError(s.db.Migrator().DropTable(&models.ChatParticipant{}))

	path := fmt.Sprintf("/api/matches/%d/approve", match.ID)
	w := s.do(http.MethodPost, path, s.hostToken, nil)
	s.Equal(http.StatusInternalServerError, w.Code, w.Body.String())

	stored := s.reload(match.ID)
	s.Equal(models.MatchStatusPending, stored.Status)
	s.Equal(models.PaymentStatusCaptured, stored.PaymentStatus)
	s.Equal([]string{"pi_1"}, s.payments.captured)

	// the retry approves without charging twice
	s.Require().NoError(s.db.AutoMigrate(&models.ChatParticipant{}))
	w = s.do(http.MethodPost, path, s.hostToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal([]string{"pi_1"}, s.payments.captured)
	s.Equal(models.MatchStatusApproved, s.reload(match.ID).Status)

	// cancelling now reports a refund instead of voiding the intent
	w = s.do(http.MethodPost, fmt.Sprintf("/api/matches/%d/cancel", match.ID), s.guestToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Empty(s.payments.cancelled)
}

func (s *MatchSuite) TestFreeListingSkipsPayment() {
	loc := testutil.CreateLocation(s.T(), s.db, "Karen", -1.3197, 36.7073)
	free := testutil.CreateListing(s.T(), s.db, s.host, loc, 0, 2)

	match := s.book(s.guestToken, free.ID, 2)
	s.Equal(models.PaymentStatusNone, match.PaymentStatus)
	s.Empty(match.ClientSecret)
	s.Empty(s.payments.authorized)

	s.Equal(http.StatusOK, s.do(http.MethodPost, fmt.Sprintf("/api/matches/%d/approve", match.ID), s.hostToken, nil).Code)
	s.Empty(s.payments.captured)
}

func (s *MatchSuite) TestBookingRules() {
	w := s.do(http.MethodPost, "/api/matches", s.hostToken, gin.H{"listingId": s.listing.ID})
	s.Equal(http.StatusBadRequest, w.Code, "own listing")

	w = s.do(http.MethodPost, "/api/matches", s.guestToken, gin.H{"message": "hi"})
	s.Equal(http.StatusBadRequest, w.Code, "no target")

	w = s.do(http.MethodPost, "/api/matches", s.guestToken, gin.H{"listingId": s.listing.ID, "guestCount": 5})
	s.Equal(http.StatusConflict, w.Code, "over capacity")

	s.book(s.guestToken, s.listing.ID, 1)
	w = s.do(http.MethodPost, "/api/matches", s.guestToken, gin.H{"listingId": s.listing.ID})
	s.Equal(http.StatusConflict, w.Code, "duplicate")

	s.Require().NoError(s.db.Model(s.listing).Update("start_time", time.Now().Add(-time.Hour)).Error)
	_, otherToken := s.user("latecomer")
	w = s.do(http.MethodPost, "/api/matches", otherToken, gin.H{"listingId": s.listing.ID})
	s.Equal(http.StatusBadRequest, w.Code, "past listing")
}

func (s *MatchSuite) TestApprovalRechecksCapacity() {
	_, secondToken := s.user("second")
	first := s.book(s.guestToken, s.listing.ID, 3)
	second := s.book(secondToken, s.listing.ID, 2)

	s.Equal(http.StatusOK, s.do(http.MethodPost, fmt.Sprintf("/api/matches/%d/approve", first.ID), s.hostToken, nil).Code)
	w := s.do(http.MethodPost, fmt.Sprintf("/api/matches/%d/approve", second.ID), s.hostToken, nil)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal(models.MatchStatusPending, s.reload(second.ID).Status)
}

func (s *MatchSuite) TestRejectReleasesHold() {
	match := s.book(s.guestToken, s.listing.ID, 1)

	w := s.do(http.MethodPost, fmt.Sprintf("/api/matches/%d/reject", match.ID), s.hostToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	stored := s.reload(match.ID)
	s.Equal(models.MatchStatusRejected, stored.Status)
	s.Equal(models.PaymentStatusCancelled, stored.PaymentStatus)
	s.Equal([]string{"pi_1"}, s.payments.cancelled)
	s.Equal(int64(1), s.notificationsFor(s.guest.ID, models.NotificationMatchRejected))

	w = s.do(http.MethodPost, fmt.Sprintf("/api/matches/%d/cancel", match.ID), s.guestToken, nil)
	s.Equal(http.StatusConflict, w.Code)
}

func (s *MatchSuite) TestCancelAfterCaptureReportsRefund() {
	match := s.book(s.guestToken, s.listing.ID, 1)
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, fmt.Sprintf("/api/matches/%d/approve", match.ID), s.hostToken, nil).Code)

	w := s.do(http.MethodPost, fmt.Sprintf("/api/matches/%d/cancel", match.ID), s.guestToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var resp struct {
		Match          models.Match `json:"match"`
		RefundRequired bool         `json:"refundRequired"`
	}
	s.decode(w, &resp)
	s.Equal(models.MatchStatusCancelled, resp.Match.Status)
	s.True(resp.RefundRequired)
	s.Empty(s.payments.cancelled)
	s.Equal(int64(1), s.notificationsFor(s.host.ID, models.NotificationMatchCancelled))
}

func (s *MatchSuite) TestOfferOnRequest() {
	loc := testutil.CreateLocation(s.T(), s.db, "Kilimani", -1.2921, 36.7856)
	request := testutil.CreateRequest(s.T(), s.db, s.guest, loc)

	w := s.do(http.MethodPost, "/api/matches", s.guestToken, gin.H{"requestId": request.ID})
	s.Equal(http.StatusBadRequest, w.Code, "own request")

	w = s.do(http.MethodPost, "/api/matches", s.hostToken, gin.H{
		"requestId": request.ID,
		"listingId": s.listing.ID,
		"message":   "Come dine with us",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var offer MatchResponse
	s.decode(w, &offer)
	s.Equal(s.host.ID, offer.InitiatorID)
	s.Equal(s.guest.ID, offer.GuestID)
	s.Equal(2, offer.GuestCount)
	s.Equal(models.PaymentStatusNone, offer.PaymentStatus)
	s.Equal(int64(1), s.notificationsFor(s.guest.ID, models.NotificationMatchRequested))

	path := fmt.Sprintf("/api/matches/%d/approve", offer.ID)
	s.Equal(http.StatusForbidden, s.do(http.MethodPost, path, s.hostToken, nil).Code)
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, path, s.guestToken, nil).Code)

	var stored models.Request
	s.Require().NoError(s.db.First(&stored, request.ID).Error)
	s.Equal(models.RequestStatusMatched, stored.Status)

	_, rivalToken := s.user("rival")
	w = s.do(http.MethodPost, "/api/matches", rivalToken, gin.H{"requestId": request.ID})
	s.Equal(http.StatusBadRequest, w.Code, "request no longer open")
}

func (s *MatchSuite) TestListAndAccess() {
	match := s.book(s.guestToken, s.listing.ID, 1)

	var list struct {
		Matches []models.Match `json:"matches"`
		Total   int64          `json:"total"`
	}
	s.decode(s.do(http.MethodGet, "/api/matches?role=host", s.hostToken, nil), &list)
	s.Equal(int64(1), list.Total)
	s.decode(s.do(http.MethodGet, "/api/matches?role=host", s.guestToken, nil), &list)
	s.Equal(int64(0), list.Total)
	s.decode(s.do(http.MethodGet, "/api/matches?status=pending", s.guestToken, nil), &list)
	s.Equal(int64(1), list.Total)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/api/matches?role=chef", s.guestToken, nil).Code)

	_, outsiderToken := s.user("outsider")
	path := fmt.Sprintf("/api/matches/%d", match.ID)
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, path, outsiderToken, nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, path, s.guestToken, nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/matches/999", s.guestToken, nil).Code)
}

func (s *MatchSuite) TestDeletingListingCancelsPendingMatches() {
	match := s.book(s.guestToken, s.listing.ID, 1)

	w := s.do(http.MethodDelete, fmt.Sprintf("/api/listings/%d", s.listing.ID), s.hostToken, nil)
	s.Require().Equal(http.StatusNoContent, w.Code)

	stored := s.reload(match.ID)
	s.Equal(models.MatchStatusCancelled, stored.Status)
	s.Equal(models.PaymentStatusCancelled, stored.PaymentStatus)
	s.Equal([]string{"pi_1"}, s.payments.cancelled)
	s.Equal(int64(1), s.notificationsFor(s.guest.ID, models.NotificationMatchCancelled))
}
