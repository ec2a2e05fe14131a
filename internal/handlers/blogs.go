package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dinewithlocals/backend/internal/apperrors"
	"github.com/dinewithlocals/backend/internal/middleware"
	"github.com/dinewithlocals/backend/internal/models"
	"github.com/dinewithlocals/backend/internal/services"
	"github.com/dinewithlocals/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BlogInput struct {
	Title    string   `json:"title" binding:"required,max=200"`
	Content  string   `json:"content" binding:"required"`
	ImageURL string   `json:"imageUrl"`
	Tags     []string `json:"tags"`
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// whereTag filters blogs whose JSON tag array contains tag.
func whereTag(db *gorm.DB, tag string) *gorm.DB {
	if db.Dialector.Name() == "postgres" {
		raw, _ := json.Marshal([]string{tag})
		return db.Where("blogs.tags::jsonb @> ?::jsonb", string(raw))
	}
	return db.Where("EXISTS (SELECT 1 FROM json_each(blogs.tags) WHERE json_each.value = ?)", tag)
}

// markLiked fills LikedByMe for userID.
func markLiked(db *gorm.DB, userID uint, blogs []models.Blog) error {
	if len(blogs) == 0 {
		return nil
	}
	ids := make([]uint, len(blogs))
	for i, b := range blogs {
		ids[i] = b.ID
	}
	var liked []uint
	if err := db.Model(&models.Like{}).
		Where("user_id = ? AND blog_id IN ?", userID, ids).
		Pluck("blog_id", &liked).Error; err != nil {
		return err
	}
	set := make(map[uint]bool, len(liked))
	for _, id := range liked {
		set[id] = true
	}
	for i := range blogs {
		blogs[i].LikedByMe = set[blogs[i].ID]
	}
	return nil
}

func findBlog(c *gin.Context, db *gorm.DB) (*models.Blog, bool) {
	id, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return nil, false
	}
	var blog models.Blog
	if err := db.Preload("Author").First(&blog, id).Error; err != nil {
		utils.RespondError(c, apperrors.NotFound("blog"))
		return nil, false
	}
	return &blog, true
}

func CreateBlog(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input BlogInput
		if !bindJSON(c, &input) {
			return
		}
		blog := models.Blog{
			AuthorID: middleware.CurrentUserID(c),
			Title:    strings.TrimSpace(input.Title),
			Content:  input.Content,
			ImageURL: input.ImageURL,
			Tags:     normalizeTags(input.Tags),
		}
		if err := db.Create(&blog).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("create blog: %w", err))
			return
		}
		warnIfFailed(db.Preload("Author").First(&blog, blog.ID).Error, "Failed to reload blog")
		c.JSON(http.StatusCreated, blog)
	}
}

// ListBlogs returns the feed newest first.
func ListBlogs(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := utils.ParsePage(c, 20, 100)

		query := db.Model(&models.Blog{})
		if raw := c.Query("author"); raw != "" {
			author, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				utils.RespondError(c, apperrors.Validation("author", "author must be a user id"))
				return
			}
			query = query.Where("author_id = ?", author)
		}
		if tag := strings.ToLower(strings.TrimSpace(c.Query("tag"))); tag != "" {
			query = whereTag(query, tag)
		}
		query = query.Session(&gorm.Session{})

		var total int64
		if err := query.Count(&total).Error; err != nil {
			utils.RespondError(c, err)
			return
		}
		var blogs []models.Blog
		if err := query.Preload("Author").
			Order("created_at DESC, id DESC").
			Offset(page.Offset()).Limit(page.Limit).
			Find(&blogs).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("list blogs: %w", err))
			return
		}
		if err := markLiked(db, middleware.CurrentUserID(c), blogs); err != nil {
			utils.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"blogs": blogs, "total": total, "page": page.Page, "limit": page.Limit})
	}
}

func GetBlog(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		blog, ok := findBlog(c, db)
		if !ok {
			return
		}
		one := []models.Blog{*blog}
		if err := markLiked(db, middleware.CurrentUserID(c), one); err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, one[0])
	}
}

func UpdateBlog(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		blog, ok := findBlog(c, db)
		if !ok {
			return
		}
		if blog.AuthorID != middleware.CurrentUserID(c) {
			utils.RespondError(c, apperrors.Forbidden("only the author can edit this post"))
			return
		}

		var input struct {
			Title    *string   `json:"title" binding:"omitempty,max=200"`
			Content  *string   `json:"content"`
			ImageURL *string   `json:"imageUrl"`
			Tags     *[]string `json:"tags"`
		}
		if !bindJSON(c, &input) {
			return
		}
		if input.Title != nil {
			if strings.TrimSpace(*input.Title) == "" {
				utils.RespondError(c, apperrors.Validation("title", "title cannot be empty"))
				return
			}
			blog.Title = strings.TrimSpace(*input.Title)
		}
		if input.Content != nil {
			blog.Content = *input.Content
		}
		if input.ImageURL != nil {
			blog.ImageURL = *input.ImageURL
		}
		if input.Tags != nil {
			blog.Tags = normalizeTags(*input.Tags)
		}

		if err := db.Omit(clause.Associations).Save(blog).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("update blog: %w", err))
			return
		}
		c.JSON(http.StatusOK, blog)
	}
}

// DeleteBlog removes the post with its comments and likes. Admins may
// delete any post.
func DeleteBlog(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		blog, ok := findBlog(c, db)
		if !ok {
			return
		}
		if blog.AuthorID != middleware.CurrentUserID(c) && !middleware.IsAdmin(c) {
			utils.RespondError(c, apperrors.Forbidden("only the author can delete this post"))
			return
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("blog_id = ?", blog.ID).Delete(&models.Comment{}).Error; err != nil {
				return err
			}
			if err := tx.Where("blog_id = ?", blog.ID).Delete(&models.Like{}).Error; err != nil {
				return err
			}
			return tx.Delete(blog).Error
		})
		if err != nil {
			utils.RespondError(c, fmt.Errorf("delete blog: %w", err))
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func likesCount(db *gorm.DB, blogID uint) int {
	var blog models.Blog
	warnIfFailed(db.Select("likes_count").First(&blog, blogID).Error, "Failed to reload blog")
	return blog.LikesCount
}

// LikeBlog is idempotent; only the first like notifies the author.
func LikeBlog(db *gorm.DB, notifier *services.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		blog, ok := findBlog(c, db)
		if !ok {
			return
		}
		userID := middleware.CurrentUserID(c)

		added := false
		err := db.Transaction(func(tx *gorm.DB) error {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.Like{UserID: userID, BlogID: blog.ID})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
			added = true
			return tx.Model(&models.Blog{}).Where("id = ?", blog.ID).
				UpdateColumn("likes_count", gorm.Expr("likes_count + 1")).Error
		})
		if err != nil {
			utils.RespondError(c, fmt.Errorf("like blog: %w", err))
			return
		}

		if added {
			var liker models.User
			warnIfFailed(db.First(&liker, userID).Error, "Failed to reload user")
			notify(c, notifier, services.NotifyInput{
				UserID:     blog.AuthorID,
				ActorID:    userID,
				Type:       models.NotificationBlogLiked,
				Title:      displayName(&liker) + " liked your post",
				Body:       blog.Title,
				EntityType: "blog",
				EntityID:   blog.ID,
			})
		}

		c.JSON(http.StatusOK, gin.H{"liked": true, "likesCount": likesCount(db, blog.ID)})
	}
}

func UnlikeBlog(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		blog, ok := findBlog(c, db)
		if !ok {
			return
		}
		userID := middleware.CurrentUserID(c)

		err := db.Transaction(func(tx *gorm.DB) error {
			res := tx.Where("user_id = ? AND blog_id = ?", userID, blog.ID).Delete(&models.Like{})
			if res.Error != nil || res.RowsAffected == 0 {
				return res.Error
			}
			return tx.Model(&models.Blog{}).Where("id = ? AND likes_count > 0", blog.ID).
				UpdateColumn("likes_count", gorm.Expr("likes_count - 1")).Error
		})
		if err != nil {
			utils.RespondError(c, fmt.Errorf("unlike blog: %w", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"liked": false, "likesCount": likesCount(db, blog.ID)})
	}
}

func UploadBlogImage(db *gorm.DB, store ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		blog, ok := findBlog(c, db)
		if !ok {
			return
		}
		if blog.AuthorID != middleware.CurrentUserID(c) {
			utils.RespondError(c, apperrors.Forbidden("only the author can change this post"))
			return
		}
		url, ok := receiveImage(c, store, "blogs")
		if !ok {
			return
		}
		if err := db.Model(&models.Blog{}).Where("id = ?", blog.ID).Update("image_url", url).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("save blog image: %w", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url})
	}
}
