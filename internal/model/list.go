package model

import "time"

// List is one uploaded batch of facility rows. Header is the raw CSV
// header line declaring the field order for every row in the list.
// ReplacesID optionally names a predecessor list this one supersedes;
// at most one active list may replace a given predecessor.
type List struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Header         string    `json:"header"`
	ReplacesID     string    `json:"replaces_id,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}
