package model

import "time"

// MatchStatus is the status of a candidate item-to-facility linkage.
type MatchStatus string

const (
	// MatchStatusPending awaits a human confirm or reject decision.
	MatchStatusPending MatchStatus = "PENDING"
	// MatchStatusAutomatic was accepted by the resolution engine
	// without review. Terminal.
	MatchStatusAutomatic MatchStatus = "AUTOMATIC"
	// MatchStatusConfirmed was accepted by a reviewer. Terminal.
	MatchStatusConfirmed MatchStatus = "CONFIRMED"
	// MatchStatusRejected was declined by a reviewer. Terminal.
	MatchStatusRejected MatchStatus = "REJECTED"
)

// Accepted reports whether the match binds its item to its facility.
// At most one match per item may ever be in an accepted status.
func (s MatchStatus) Accepted() bool {
	return s == MatchStatusAutomatic || s == MatchStatusConfirmed
}

// MatchResults tags a match with the resolution method and algorithm
// version that produced it.
type MatchResults struct {
	Version   string `json:"version"`
	MatchType string `json:"match_type"`
}

// Match is a candidate linkage between an Item and a Facility.
type Match struct {
	ID         string       `json:"id"`
	ItemID     string       `json:"item_id"`
	FacilityID string       `json:"facility_id"`
	Status     MatchStatus  `json:"status"`
	Confidence float64      `json:"confidence"`
	Results    MatchResults `json:"results"`
	CreatedAt  time.Time    `json:"created_at"`
}
