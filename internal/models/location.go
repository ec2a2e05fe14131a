package models

import (
	"gorm.io/gorm"
)

// Location is a named place that listings and requests point at.
type Location struct {
	gorm.Model
	Name        string  `json:"name" gorm:"not null"`
	Address     string  `json:"address"`
	City        string  `json:"city" gorm:"index"`
	Country     string  `json:"country"`
	Latitude    float64 `json:"latitude" gorm:"not null;index:idx_locations_coords"`
	Longitude   float64 `json:"longitude" gorm:"not null;index:idx_locations_coords"`
	CreatedByID uint    `json:"createdById"`
}

// TableName specifies the table name
func (Location) TableName() string {
	return "locations"
}
