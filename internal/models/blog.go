package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Blog struct {
	gorm.Model
	AuthorID      uint                        `json:"authorId" gorm:"not null;index"`
	Author        User                        `json:"author"`
	Title         string                      `json:"title" gorm:"not null"`
	Content       string                      `json:"content" gorm:"type:text"`
	ImageURL      string                      `json:"imageUrl"`
	Tags          datatypes.JSONSlice[string] `json:"tags"`
	LikesCount    int                         `json:"likesCount" gorm:"not null;default:0"`
	CommentsCount int                         `json:"commentsCount" gorm:"not null;default:0"`
	LikedByMe     bool                        `json:"likedByMe" gorm:"-"`
}

// TableName specifies the table name
func (Blog) TableName() string {
	return "blogs"
}

type Comment struct {
	gorm.Model
	BlogID   uint      `json:"blogId" gorm:"not null;index"`
	AuthorID uint      `json:"authorId" gorm:"not null"`
	Author   User      `json:"author"`
	Content  string    `json:"content" gorm:"type:text;not null"`
	ParentID *uint     `json:"parentId,omitempty" gorm:"index"`
	Replies  []Comment `json:"replies,omitempty" gorm:"foreignKey:ParentID"`
}

// TableName specifies the table name
func (Comment) TableName() string {
	return "comments"
}

// Like is a plain row without soft delete so unlike really removes it and
// the (user, blog) unique index stays meaningful.
type Like struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	UserID uint `json:"userId" gorm:"not null;uniqueIndex:idx_likes_user_blog"`
	BlogID uint `json:"blogId" gorm:"not null;uniqueIndex:idx_likes_user_blog;index"`
}

// TableName specifies the table name
func (Like) TableName() string {
	return "likes"
}
