package model

import (
	"encoding/json"
	"time"
)

// ItemStatus is the lifecycle status of a list item as it moves through
// the processing stages.
type ItemStatus string

const (
	ItemStatusUploaded       ItemStatus = "UPLOADED"
	ItemStatusParsed         ItemStatus = "PARSED"
	ItemStatusGeocoded       ItemStatus = "GEOCODED"
	ItemStatusMatched        ItemStatus = "MATCHED"
	ItemStatusPotentialMatch ItemStatus = "POTENTIAL_MATCH"
	ItemStatusConfirmedMatch ItemStatus = "CONFIRMED_MATCH"
	ItemStatusError          ItemStatus = "ERROR"
)

// Terminal reports whether no further stage may run against an item in
// this status. MATCHED is the terminal status of the automatic path,
// CONFIRMED_MATCH of the reviewed path.
func (s ItemStatus) Terminal() bool {
	switch s {
	case ItemStatusMatched, ItemStatusConfirmedMatch, ItemStatusError:
		return true
	default:
		return false
	}
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LogEntry is one record of the per-item processing audit log. Entries
// are append-only and immutable once written.
type LogEntry struct {
	Stage      string          `json:"stage"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Error      bool            `json:"error"`
	Message    string          `json:"message,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Item is one row of an uploaded list, tracked through the processing
// state machine. RowIndex is assigned at ingestion and never changes;
// it is the unit of idempotent reprocessing and shard assignment.
type Item struct {
	ID              string     `json:"id"`
	ListID          string     `json:"list_id"`
	RowIndex        int        `json:"row_index"`
	RawData         string     `json:"raw_data"`
	Status          ItemStatus `json:"status"`
	CountryCode     string     `json:"country_code,omitempty"`
	Name            string     `json:"name,omitempty"`
	Address         string     `json:"address,omitempty"`
	GeocodedAddress string     `json:"geocoded_address,omitempty"`
	GeocodedPoint   *Point     `json:"geocoded_point,omitempty"`
	FacilityID      string     `json:"facility_id,omitempty"`
	ProcessingLog   []LogEntry `json:"processing_log"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// AppendLog appends an audit record to the item's processing log.
func (i *Item) AppendLog(e LogEntry) {
	i.ProcessingLog = append(i.ProcessingLog, e)
}

// LogFor returns the most recent audit record for the given stage, or
// nil if the stage has never run.
func (i *Item) LogFor(stage string) *LogEntry {
	for idx := len(i.ProcessingLog) - 1; idx >= 0; idx-- {
		if i.ProcessingLog[idx].Stage == stage {
			return &i.ProcessingLog[idx]
		}
	}
	return nil
}
