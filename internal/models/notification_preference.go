package models

import (
	"time"

	"gorm.io/gorm"
)

// NotificationPreference represents user notification preferences
type NotificationPreference struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"uniqueIndex;not null" json:"userId"`
	User      User           `gorm:"foreignKey:UserID" json:"-"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Delivery channels
	PushEnabled  bool `gorm:"column:push_enabled;default:true" json:"pushEnabled"`
	EmailEnabled bool `gorm:"column:email_enabled;default:true" json:"emailEnabled"`

	// Per category
	MatchAlerts   bool `gorm:"column:match_alerts;default:true" json:"matchAlerts"`
	MessageAlerts bool `gorm:"column:message_alerts;default:true" json:"messageAlerts"`
	SocialAlerts  bool `gorm:"column:social_alerts;default:true" json:"socialAlerts"`
}

// TableName specifies the table name for NotificationPreference
func (NotificationPreference) TableName() string {
	return "notification_preferences"
}

// DefaultPreferences returns default notification preferences for a new user
func DefaultPreferences(userID uint) *NotificationPreference {
	return &NotificationPreference{
		UserID:        userID,
		PushEnabled:   true,
		EmailEnabled:  true,
		MatchAlerts:   true,
		MessageAlerts: true,
		SocialAlerts:  true,
	}
}

// Allows reports whether a notification category may be delivered
// outside the app (push or email).
func (p *NotificationPreference) Allows(category NotificationCategory) bool {
	switch category {
	case CategoryMatch:
		return p.MatchAlerts
	case CategoryMessage:
		return p.MessageAlerts
	case CategorySocial:
		return p.SocialAlerts
	}
	return true
}
