package utils

import "math"

// MatchAmount is the charge for a booking, in currency minor units.
type MatchAmount struct {
	Subtotal    int64 `json:"subtotal"`
	PlatformFee int64 `json:"platformFee"`
	Total       int64 `json:"total"`
}

// CalculateMatchAmount prices a booking of guests seats at pricePerGuest
// (major units) plus a percentage platform fee. Rounds to the nearest
// minor unit.
func CalculateMatchAmount(pricePerGuest float64, guests int, feePercent float64) MatchAmount {
	if pricePerGuest <= 0 || guests <= 0 {
		return MatchAmount{}
	}
	subtotal := int64(math.Round(pricePerGuest * float64(guests) * 100))
	fee := int64(math.Round(float64(subtotal) * feePercent / 100))
	return MatchAmount{
		Subtotal:    subtotal,
		PlatformFee: fee,
		Total:       subtotal + fee,
	}
}
