package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Category string

const (
	CategoryDining Category = "dining"
	CategoryTravel Category = "travel"
	CategoryEvent  Category = "event"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryDining, CategoryTravel, CategoryEvent:
		return true
	}
	return false
}

type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusCancelled ListingStatus = "cancelled"
	ListingStatusCompleted ListingStatus = "completed"
)

// Listing is an experience offered by a host.
type Listing struct {
	gorm.Model
	HostID      uint                        `json:"hostId" gorm:"not null;index"`
	Host        User                        `json:"host"`
	Title       string                      `json:"title" gorm:"not null"`
	Description string                      `json:"description"`
	Category    Category                    `json:"category" gorm:"not null;index"`
	LocationID  uint                        `json:"locationId" gorm:"not null;index"`
	Location    Location                    `json:"location"`
	StartTime   time.Time                   `json:"startTime" gorm:"not null;index"`
	EndTime     *time.Time                  `json:"endTime,omitempty"`
	MaxGuests   int                         `json:"maxGuests" gorm:"not null"`
	Price       float64                     `json:"price" gorm:"not null;default:0"`
	Currency    string                      `json:"currency" gorm:"not null;default:'usd'"`
	Images      datatypes.JSONSlice[string] `json:"images"`
	Status      ListingStatus               `json:"status" gorm:"not null;default:'active';index"`
}

// TableName specifies the table name
func (Listing) TableName() string {
	return "listings"
}

// Bookable reports whether guests can still ask to join.
func (l *Listing) Bookable(now time.Time) bool {
	return l.Status == ListingStatusActive && l.StartTime.After(now)
}
