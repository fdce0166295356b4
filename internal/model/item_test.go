package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemStatusTerminal(t *testing.T) {
	terminal := []ItemStatus{ItemStatusMatched, ItemStatusConfirmedMatch, ItemStatusError}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}

	open := []ItemStatus{ItemStatusUploaded, ItemStatusParsed, ItemStatusGeocoded, ItemStatusPotentialMatch}
	for _, s := range open {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestItemLog(t *testing.T) {
	item := &Item{ID: "item-1"}
	now := time.Now().UTC()

	item.AppendLog(LogEntry{Stage: "parse", StartedAt: now, FinishedAt: now})
	item.AppendLog(LogEntry{Stage: "geocode", StartedAt: now, FinishedAt: now, Error: true, Message: "no results"})

	require.Len(t, item.ProcessingLog, 2)

	entry := item.LogFor("geocode")
	require.NotNil(t, entry)
	assert.True(t, entry.Error)
	assert.Equal(t, "no results", entry.Message)

	assert.Nil(t, item.LogFor("match"))
}

func TestMatchStatusAccepted(t *testing.T) {
	assert.True(t, MatchStatusAutomatic.Accepted())
	assert.True(t, MatchStatusConfirmed.Accepted())
	assert.False(t, MatchStatusPending.Accepted())
	assert.False(t, MatchStatusRejected.Accepted())
}
