package player

import (
	"iter"
	"strings"
	"time"

	"github.com/RuneRubble/rs-proxy/pkg/runemetrics"
)

// DropOccurrence is one newly recorded drop, reported back to the
// caller so it can be published downstream.
type DropOccurrence struct {
	ItemName   string
	OccurredAt time.Time
}

// Merge reconciles a fetched profile and its extracted drop events
// against the existing record (nil when the player is unknown) and
// returns the updated record together with the drops that were actually
// new. It performs no I/O and never mutates existing.
//
// The snapshot append is unconditional; drop events are folded in input
// order and deduplicated by exact timestamp equality per item, so
// re-merging an overlapping activity feed leaves the totals unchanged.
// An inactive record is reactivated. A fetched profile without a name
// fails the merge rather than persisting a corrupted record.
func Merge(
	existing *PlayerRecord,
	username string,
	fetched runemetrics.Profile,
	events iter.Seq2[string, time.Time],
	tier runemetrics.Tier,
	capturedAt time.Time,
	now time.Time,
) (*PlayerRecord, []DropOccurrence, error) {
	if fetched.Name == "" {
		return nil, nil, runemetrics.ErrInvalidProfile
	}

	var rec *PlayerRecord
	if existing == nil {
		rec = &PlayerRecord{Username: strings.ToLower(username)}
	} else {
		rec = existing.clone()
	}
	rec.Deleted = false
	rec.DisplayName = fetched.Name

	rec.StatsHistory = append(rec.StatsHistory, Snapshot{
		Timestamp: capturedAt,
		Stats:     fetched.Raw,
	})

	var recorded []DropOccurrence
	for itemName, occurredAt := range events {
		idx := -1
		for i := range rec.Drops {
			if rec.Drops[i].ItemName == itemName {
				idx = i
				break
			}
		}
		if idx < 0 {
			rec.Drops = append(rec.Drops, DropTotal{
				ItemName:   itemName,
				Count:      1,
				Timestamps: []time.Time{occurredAt},
			})
			recorded = append(recorded, DropOccurrence{ItemName: itemName, OccurredAt: occurredAt})
			continue
		}

		drop := &rec.Drops[idx]
		if containsTime(drop.Timestamps, occurredAt) {
			continue
		}
		drop.Timestamps = append(drop.Timestamps, occurredAt)
		drop.Count++
		recorded = append(recorded, DropOccurrence{ItemName: itemName, OccurredAt: occurredAt})
	}

	rec.IronmanType = tier
	rec.LastUpdated = now
	return rec, recorded, nil
}

func containsTime(ts []time.Time, t time.Time) bool {
	for _, existing := range ts {
		if existing.Equal(t) {
			return true
		}
	}
	return false
}
