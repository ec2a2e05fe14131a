package models

import (
	"gorm.io/gorm"
)

type Review struct {
	gorm.Model
	ReviewerID uint   `json:"reviewerId" gorm:"not null;uniqueIndex:idx_reviews_reviewer_match"`
	Reviewer   User   `json:"reviewer"`
	RevieweeID uint   `json:"revieweeId" gorm:"not null;index"`
	MatchID    uint   `json:"matchId" gorm:"not null;uniqueIndex:idx_reviews_reviewer_match"`
	ListingID  *uint  `json:"listingId,omitempty" gorm:"index"`
	Rating     int    `json:"rating" gorm:"not null"`
	Comment    string `json:"comment" gorm:"type:text"`
}

// TableName specifies the table name
func (Review) TableName() string {
	return "reviews"
}

func ValidRating(r int) bool {
	return r >= 1 && r <= 5
}
