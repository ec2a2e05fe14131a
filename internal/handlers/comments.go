package handlers

import (
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

type CommentInput struct {
	Content  string `json:"content" binding:"required,max=2000"`
	ParentID *uint  `json:"parentId"`
}

// ListComments returns top-level comments oldest first, each with its
// replies.
func ListComments(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		blog, ok := findBlog(c, db)
		if !ok {
			return
		}
		page := utils.ParsePage(c, 50, 100)

		var comments []models.Comment
		if err := db.Preload("Author").
			Preload("Replies", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC") }).
			Preload("Replies.Author").
			Where("blog_id = ? AND parent_id IS NULL", blog.ID).
			Order("created_at ASC").
			Offset(page.Offset()).Limit(page.Limit).
			Find(&comments).Error; err != nil {
			utils.RespondError(c, fmt.Errorf("list comments: %w", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"comments": comments, "commentsCount": blog.CommentsCount})
	}
}

// CreateComment adds a comment. Replies to replies attach to the
// top-level comment so threads stay one level deep.
func CreateComment(db *gorm.DB, notifier *services.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		blog, ok := findBlog(c, db)
		if !ok {
			return
		}
		var input CommentInput
		if !bindJSON(c, &input) {
			return
		}
		content := strings.TrimSpace(input.Content)
		if content == "" {
			utils.RespondError(c, apperrors.Validation("content", "comment cannot be empty"))
			return
		}
		userID := middleware.CurrentUserID(c)

		comment := models.Comment{BlogID: blog.ID, AuthorID: userID, Content: content}
		var parent models.Comment
		if input.ParentID != nil {
			if err := db.First(&parent, *input.ParentID).Error; err != nil {
				utils.RespondError(c, apperrors.NotFound("comment"))
				return
			}
			if parent.BlogID != blog.ID {
				utils.RespondError(c, apperrors.BadRequest("parent comment belongs to another post"))
				return
			}
			top := parent.ID
			if parent.ParentID != nil {
				top = *parent.ParentID
			}
			comment.ParentID = &top
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&comment).Error; err != nil {
				return err
			}
			return tx.Model(&models.Blog{}).Where("id = ?", blog.ID).
				UpdateColumn("comments_count", gorm.Expr("comments_count + 1")).Error
		})
		if err != nil {
			utils.RespondError(c, fmt.Errorf("create comment: %w", err))
			return
		}
		warnIfFailed(db.Preload("Author").First(&comment, comment.ID).Error, "Failed to reload comment")

		in := services.NotifyInput{
			ActorID:    userID,
			Type:       models.NotificationBlogComment,
			Title:      displayName(&comment.Author) + " commented on your post",
			Body:       preview(content, 120),
			EntityType: "blog",
			EntityID:   blog.ID,
		}
		in.UserID = blog.AuthorID
		notify(c, notifier, in)
		if input.ParentID != nil && parent.AuthorID != blog.AuthorID {
			in.UserID = parent.AuthorID
			in.Title = displayName(&comment.Author) + " replied to your comment"
			notify(c, notifier, in)
		}

		c.JSON(http.StatusCreated, comment)
	}
}

// DeleteComment removes a comment and its replies. The comment author,
// the post author and admins may delete.
func DeleteComment(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := utils.ParseIDParam(c, "id")
		if !ok {
			return
		}
		var comment models.Comment
		if err := db.First(&comment, id).Error; err != nil {
			utils.RespondError(c, apperrors.NotFound("comment"))
			return
		}
		var blog models.Blog
		if err := db.Select("id", "author_id").First(&blog, comment.BlogID).Error; err != nil {
			utils.RespondError(c, apperrors.NotFound("blog"))
			return
		}
		userID := middleware.CurrentUserID(c)
		if comment.AuthorID != userID && blog.AuthorID != userID && !middleware.IsAdmin(c) {
			utils.RespondError(c, apperrors.Forbidden("you cannot delete this comment"))
			return
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			replies := tx.Where("parent_id = ?", comment.ID).Delete(&models.Comment{})
			if replies.Error != nil {
				return replies.Error
			}
			if err := tx.Delete(&comment).Error; err != nil {
				return err
			}
			removed := replies.RowsAffected + 1
			return tx.Model(&models.Blog{}).Where("id = ?", blog.ID).
				UpdateColumn("comments_count", gorm.Expr("CASE WHEN comments_count > ? THEN comments_count - ? ELSE 0 END", removed, removed)).Error
		})
		if err != nil {
			utils.RespondError(c, fmt.Errorf("delete comment: %w", err))
			return
		}
		c.Status(http.StatusNoContent)
	}
}
