package models

import (
	"time"

	"gorm.io/gorm"
)

type Chat struct {
	gorm.Model
	Name          string     `json:"name"`
	IsGroup       bool       `json:"isGroup" gorm:"not null;default:false"`
	ListingID     *uint      `json:"listingId,omitempty" gorm:"index"`
	Participants  []User     `json:"participants" gorm:"many2many:chat_participants;"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty" gorm:"index"`
	LastMessage   *Message   `json:"lastMessage,omitempty" gorm:"-"`
}

// TableName specifies the table name
func (Chat) TableName() string {
	return "chats"
}

// HasParticipant reports whether userID is loaded among the participants.
func (c *Chat) HasParticipant(userID uint) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

func (c *Chat) ParticipantIDs() []uint {
	ids := make([]uint, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}

// ChatParticipant is the join table, queried directly for membership checks.
type ChatParticipant struct {
	ChatID uint `gorm:"primaryKey"`
	UserID uint `gorm:"primaryKey"`
}

func (ChatParticipant) TableName() string {
	return "chat_participants"
}

type Message struct {
	gorm.Model
	ChatID   uint   `json:"chatId" gorm:"not null;index"`
	SenderID uint   `json:"senderId" gorm:"not null"`
	Sender   User   `json:"sender"`
	Content  string `json:"content" gorm:"type:text;not null"`
}

// TableName specifies the table name
func (Message) TableName() string {
	return "messages"
}
