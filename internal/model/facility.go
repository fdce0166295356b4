package model

import "time"

// Facility is a canonical, deduplicated facility record. Facilities are
// created by the resolution engine or the review workflow and never
// mutated afterward. Identity is (country_code, lower(name),
// lower(address)), enforced by a unique index in the store.
type Facility struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Address       string    `json:"address"`
	CountryCode   string    `json:"country_code"`
	Location      Point     `json:"location"`
	CreatedFromID string    `json:"created_from_id"`
	CreatedAt     time.Time `json:"created_at"`
}
