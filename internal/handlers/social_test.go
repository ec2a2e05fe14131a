package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/dinewithlocals/backend/internal/models"
	"github.com/dinewithlocals/backend/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
)

type SocialSuite struct {
	apiSuite
	author, reader           *models.User
	authorToken, readerToken string
}

func TestSocialSuite(t *testing.T) {
	suite.Run(t, new(SocialSuite))
}

func (s *SocialSuite) SetupTest() {
	s.apiSuite.SetupTest()
	s.author, s.authorToken = s.user("author")
	s.reader, s.readerToken = s.user("reader")
}

func (s *SocialSuite) post(title string, tags ...string) models.Blog {
	w := s.do(http.MethodPost, "/api/blogs", s.authorToken, gin.H{
		"title":   title,
		"content": "We cooked ugali together.",
		"tags":    tags,
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var blog models.Blog
	s.decode(w, &blog)
	return blog
}

func (s *SocialSuite) blog(id uint) models.Blog {
	var b models.Blog
	s.Require().NoError(s.db.First(&b, id).Error)
	return b
}

func (s *SocialSuite) TestFeedFilters() {
	s.post("Street food tour", "Food", " nairobi ", "food")
	s.post("Safari notes", "travel")

	var feed struct {
		Blogs []models.Blog `json:"blogs"`
		Total int64         `json:"total"`
	}
	s.decode(s.do(http.MethodGet, "/api/blogs", s.readerToken, nil), &feed)
	s.Equal(int64(2), feed.Total)
	s.Equal("Safari notes", feed.Blogs[0].Title)

	s.decode(s.do(http.MethodGet, "/api/blogs?tag=food", s.readerToken, nil), &feed)
	s.Require().Len(feed.Blogs, 1)
	s.Equal([]string{"food", "nairobi"}, []string(feed.Blogs[0].Tags))

	s.decode(s.do(http.MethodGet, fmt.Sprintf("/api/blogs?author=%d", s.reader.ID), s.readerToken, nil), &feed)
	s.Equal(int64(0), feed.Total)
}

func (s *SocialSuite) TestLikesAreIdempotent() {
	blog := s.post("Chapati masterclass")
	path := fmt.Sprintf("/api/blogs/%d/like", blog.ID)

	var resp struct {
		Liked      bool `json:"liked"`
		LikesCount int  `json:"likesCount"`
	}
	for i := 0; i < 2; i++ {
		w := s.do(http.MethodPost, path, s.readerToken, nil)
		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
		s.decode(w, &resp)
		s.True(resp.Liked)
		s.Equal(1, resp.LikesCount)
	}
	s.Equal(int64(1), s.notificationsFor(s.author.ID, models.NotificationBlogLiked))

	var got models.Blog
	s.decode(s.do(http.MethodGet, fmt.Sprintf("/api/blogs/%d", blog.ID), s.readerToken, nil), &got)
	s.True(got.LikedByMe)
	s.decode(s.do(http.MethodGet, fmt.Sprintf("/api/blogs/%d", blog.ID), s.authorToken, nil), &got)
	s.False(got.LikedByMe)

	// liking your own post does not notify you
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, path, s.authorToken, nil).Code)
	s.Equal(int64(1), s.notificationsFor(s.author.ID, models.NotificationBlogLiked))
	s.Equal(2, s.blog(blog.ID).LikesCount)

	for i := 0; i < 2; i++ {
		w := s.do(http.MethodDelete, path, s.readerToken, nil)
		s.Require().Equal(http.StatusOK, w.Code)
		s.decode(w, &resp)
		s.False(resp.Liked)
		s.Equal(1, resp.LikesCount)
	}
}

func (s *SocialSuite) TestCommentThreadsStayOneLevelDeep() {
	blog := s.post("Market day")
	path := fmt.Sprintf("/api/blogs/%d/comments", blog.ID)

	comment := func(token string, body gin.H) models.Comment {
		w := s.do(http.MethodPost, path, token, body)
		s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
		var c models.Comment
		s.decode(w, &c)
		return c
	}

	top := comment(s.readerToken, gin.H{"content": "Looks delicious"})
	reply := comment(s.authorToken, gin.H{"content": "Thanks!", "parentId": top.ID})
	nested := comment(s.readerToken, gin.H{"content": "When is the next one?", "parentId": reply.ID})
	s.Require().NotNil(nested.ParentID)
	s.Equal(top.ID, *nested.ParentID)

	s.Equal(3, s.blog(blog.ID).CommentsCount)
	// reader commented twice on the author's post, author replied once to reader
	s.Equal(int64(2), s.notificationsFor(s.author.ID, models.NotificationBlogComment))
	s.Equal(int64(1), s.notificationsFor(s.reader.ID, models.NotificationBlogComment))

	var list struct {
		Comments []models.Comment `json:"comments"`
	}
	s.decode(s.do(http.MethodGet, path, s.readerToken, nil), &list)
	s.Require().Len(list.Comments, 1)
	s.Len(list.Comments[0].Replies, 2)

	other := s.post("Another post")
	w := s.do(http.MethodPost, fmt.Sprintf("/api/blogs/%d/comments", other.ID), s.readerToken, gin.H{"content": "x", "parentId": top.ID})
	s.Equal(http.StatusBadRequest, w.Code)

	_, strangerToken := s.user("stranger")
	s.Equal(http.StatusForbidden, s.do(http.MethodDelete, fmt.Sprintf("/api/comments/%d", top.ID), strangerToken, nil).Code)

	// the post author may delete a reader's thread, replies included
	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, fmt.Sprintf("/api/comments/%d", top.ID), s.authorToken, nil).Code)
	s.Equal(0, s.blog(blog.ID).CommentsCount)
}

func (s *SocialSuite) TestOnlyAuthorOrAdminDeletes() {
	blog := s.post("Secret recipe")
	path := fmt.Sprintf("/api/blogs/%d", blog.ID)

	s.Equal(http.StatusForbidden, s.do(http.MethodPut, path, s.readerToken, gin.H{"title": "mine now"}).Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodDelete, path, s.readerToken, nil).Code)

	w := s.do(http.MethodPut, path, s.authorToken, gin.H{"title": "Family recipe", "tags": []string{"Family"}})
	s.Require().Equal(http.StatusOK, w.Code)
	var updated models.Blog
	s.decode(w, &updated)
	s.Equal("Family recipe", updated.Title)
	s.Equal([]string{"family"}, []string(updated.Tags))

	admin := testutil.CreateUser(s.T(), s.db, "admin")
	s.Require().NoError(s.db.Model(admin).Update("role", models.RoleAdmin).Error)
	admin.Role = models.RoleAdmin
	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, path, testutil.Token(s.T(), admin), nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, path, s.readerToken, nil).Code)
}

func (s *SocialSuite) TestReviewsOncePerApprovedMatch() {
	loc := testutil.CreateLocation(s.T(), s.db, "Gigiri", -1.2335, 36.8024)
	listing := testutil.CreateListing(s.T(), s.db, s.author, loc, 0, 4)
	listingID := listing.ID
	match := models.Match{
		ListingID:   &listingID,
		HostID:      s.author.ID,
		GuestID:     s.reader.ID,
		InitiatorID: s.reader.ID,
		GuestCount:  1,
		Status:      models.MatchStatusPending,
	}
	s.Require().NoError(s.db.Create(&match).Error)

	body := gin.H{"matchId": match.ID, "rating": 5, "comment": "Wonderful host"}
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/api/reviews", s.readerToken, body).Code, "pending match")

	s.Require().NoError(s.db.Model(&match).Update("status", models.MatchStatusApproved).Error)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/api/reviews", s.readerToken, gin.H{"matchId": match.ID, "rating": 6}).Code)

	_, strangerToken := s.user("stranger")
	s.Equal(http.StatusForbidden, s.do(http.MethodPost, "/api/reviews", strangerToken, body).Code)

	w := s.do(http.MethodPost, "/api/reviews", s.readerToken, body)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var review models.Review
	s.decode(w, &review)
	s.Equal(s.author.ID, review.RevieweeID)
	s.Equal(int64(1), s.notificationsFor(s.author.ID, models.NotificationNewReview))

	s.Equal(http.StatusConflict, s.do(http.MethodPost, "/api/reviews", s.readerToken, body).Code)

	// the host reviews the guest independently
	s.Equal(http.StatusCreated, s.do(http.MethodPost, "/api/reviews", s.authorToken, gin.H{"matchId": match.ID, "rating": 4}).Code)

	var summary struct {
		Reviews       []models.Review `json:"reviews"`
		AverageRating float64         `json:"averageRating"`
		Count         int64           `json:"count"`
	}
	s.decode(s.do(http.MethodGet, fmt.Sprintf("/api/users/%d/reviews", s.author.ID), s.readerToken, nil), &summary)
	s.Equal(int64(1), summary.Count)
	s.Equal(5.0, summary.AverageRating)

	s.decode(s.do(http.MethodGet, fmt.Sprintf("/api/listings/%d/reviews", listing.ID), s.readerToken, nil), &summary)
	s.Equal(int64(2), summary.Count)
	s.Equal(4.5, summary.AverageRating)

	var profile struct {
		AverageRating float64 `json:"averageRating"`
		ReviewCount   int64   `json:"reviewCount"`
	}
	s.decode(s.do(http.MethodGet, fmt.Sprintf("/api/users/%d", s.reader.ID), s.authorToken, nil), &profile)
	s.Equal(4.0, profile.AverageRating)
	s.Equal(int64(1), profile.ReviewCount)
}
