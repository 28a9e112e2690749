// Package models defines the domain types for tripwatch.
package models

import "time"

// Trip is one observation of an agenda entry. Link identifies the trip across
// all observations; DisplayText is the value compared between cycles.
type Trip struct {
	Link        string `json:"link"`
	DisplayText string `json:"display_text"`
	// PreviousDisplayText is only set on trips classified as updated.
	PreviousDisplayText string `json:"previous_display_text,omitempty"`
}

// KnownTrip is the persisted state for one link.
type KnownTrip struct {
	Link        string    `json:"link"`
	DisplayText string    `json:"display_text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
