package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusApproved  MatchStatus = "approved"
	MatchStatusRejected  MatchStatus = "rejected"
	MatchStatusCancelled MatchStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusNone      PaymentStatus = "none"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCaptured  PaymentStatus = "captured"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// matchTransitions lists every allowed status change. Anything not here is
// rejected.
var matchTransitions = map[MatchStatus][]MatchStatus{
	MatchStatusPending:  {MatchStatusApproved, MatchStatusRejected, MatchStatusCancelled},
	MatchStatusApproved: {MatchStatusCancelled},
}

// ErrInvalidTransition is returned by Transition for a disallowed change.
type ErrInvalidTransition struct {
	From MatchStatus
	To   MatchStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot move match from %s to %s", e.From, e.To)
}

func CanTransition(from, to MatchStatus) bool {
	for _, s := range matchTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Match links a guest to a host through a listing, a request, or both.
type Match struct {
	gorm.Model
	ListingID       *uint         `json:"listingId,omitempty" gorm:"index"`
	Listing         *Listing      `json:"listing,omitempty"`
	RequestID       *uint         `json:"requestId,omitempty" gorm:"index"`
	Request         *Request      `json:"request,omitempty"`
	HostID          uint          `json:"hostId" gorm:"not null;index"`
	Host            User          `json:"host"`
	GuestID         uint          `json:"guestId" gorm:"not null;index"`
	Guest           User          `json:"guest"`
	InitiatorID     uint          `json:"initiatorId" gorm:"not null"`
	GuestCount      int           `json:"guestCount" gorm:"not null;default:1"`
	Message         string        `json:"message"`
	Status          MatchStatus   `json:"status" gorm:"not null;default:'pending';index"`
	TotalAmount     int64         `json:"totalAmount"`
	Currency        string        `json:"currency"`
	PaymentIntentID string        `json:"-"`
	PaymentStatus   PaymentStatus `json:"paymentStatus" gorm:"not null;default:'none'"`
	RespondedAt     *time.Time    `json:"respondedAt,omitempty"`
}

// TableName specifies the table name
func (Match) TableName() string {
	return "matches"
}

// Transition moves the match to status `to`, stamping RespondedAt.
func (m *Match) Transition(to MatchStatus, now time.Time) error {
	if !CanTransition(m.Status, to) {
		return &ErrInvalidTransition{From: m.Status, To: to}
	}
	m.Status = to
	m.RespondedAt = &now
	return nil
}

func (m *Match) IsParty(userID uint) bool {
	return userID == m.HostID || userID == m.GuestID
}

// Responder is the party expected to approve or reject.
func (m *Match) Responder() uint {
	if m.InitiatorID == m.HostID {
		return m.GuestID
	}
	return m.HostID
}

// Counterparty returns the other party relative to userID.
func (m *Match) Counterparty(userID uint) uint {
	if userID == m.HostID {
		return m.GuestID
	}
	return m.HostID
}

// Validate checks the structural invariants before insert.
func (m *Match) Validate() error {
	if m.ListingID == nil && m.RequestID == nil {
		return fmt.Errorf("match must reference a listing or a request")
	}
	if m.HostID == m.GuestID {
		return fmt.Errorf("host and guest must differ")
	}
	if m.GuestCount < 1 {
		return fmt.Errorf("guest count must be at least 1")
	}
	return nil
}

func (m *Match) BeforeCreate(tx *gorm.DB) error {
	return m.Validate()
}
