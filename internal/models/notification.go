package models

import (
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationMatchRequested NotificationType = "match_requested"
	NotificationMatchApproved  NotificationType = "match_approved"
	NotificationMatchRejected  NotificationType = "match_rejected"
	NotificationMatchCancelled NotificationType = "match_cancelled"
	NotificationNewMessage     NotificationType = "new_message"
	NotificationBlogLiked      NotificationType = "blog_liked"
	NotificationBlogComment    NotificationType = "blog_comment"
	NotificationNewReview      NotificationType = "new_review"
)

// NotificationCategory groups types for preference checks.
type NotificationCategory string

const (
	CategoryMatch   NotificationCategory = "match"
	CategoryMessage NotificationCategory = "message"
	CategorySocial  NotificationCategory = "social"
)

func (t NotificationType) Category() NotificationCategory {
	switch t {
	case NotificationNewMessage:
		return CategoryMessage
	case NotificationBlogLiked, NotificationBlogComment, NotificationNewReview:
		return CategorySocial
	}
	return CategoryMatch
}

type Notification struct {
	gorm.Model
	UserID     uint             `json:"userId" gorm:"not null;index"`
	ActorID    *uint            `json:"actorId,omitempty"`
	Type       NotificationType `json:"type" gorm:"not null"`
	Title      string           `json:"title"`
	Body       string           `json:"body"`
	EntityType string           `json:"entityType,omitempty"`
	EntityID   uint             `json:"entityId,omitempty"`
	Read       bool             `json:"read" gorm:"not null;default:false;index"`
}

// TableName specifies the table name
func (Notification) TableName() string {
	return "notifications"
}
