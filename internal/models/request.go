package models

import (
	"time"

	"gorm.io/gorm"
)

type RequestStatus string

const (
	RequestStatusOpen    RequestStatus = "open"
	RequestStatusMatched RequestStatus = "matched"
	RequestStatusClosed  RequestStatus = "closed"
)

// Request is a guest asking for an experience; hosts answer with offers.
type Request struct {
	gorm.Model
	GuestID       uint          `json:"guestId" gorm:"not null;index"`
	Guest         User          `json:"guest"`
	Title         string        `json:"title" gorm:"not null"`
	Description   string        `json:"description"`
	Category      Category      `json:"category" gorm:"not null;index"`
	LocationID    uint          `json:"locationId" gorm:"not null;index"`
	Location      Location      `json:"location"`
	PreferredDate time.Time     `json:"preferredDate" gorm:"not null"`
	GuestCount    int           `json:"guestCount" gorm:"not null;default:1"`
	Budget        float64       `json:"budget"`
	Status        RequestStatus `json:"status" gorm:"not null;default:'open';index"`
}

// TableName specifies the table name
func (Request) TableName() string {
	return "requests"
}
