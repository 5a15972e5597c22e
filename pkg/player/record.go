// Package player holds the tracked player document and the history
// merge that reconciles fetched profiles against it.
package player

import (
	"slices"
	"time"

	"github.com/goccy/go-json"

	"github.com/RuneRubble/rs-proxy/pkg/runemetrics"
)

// Snapshot is one captured copy of a player's profile at a point in
// time. Stats preserves the upstream payload verbatim.
type Snapshot struct {
	Timestamp time.Time       `bson:"timestamp" json:"timestamp"`
	Stats     json.RawMessage `bson:"stats" json:"stats"`
}

// DropTotal accumulates the occurrences of one item. Count always
// equals len(Timestamps) and timestamps are unique per item.
type DropTotal struct {
	ItemName   string      `bson:"itemName" json:"itemName"`
	Count      int         `bson:"count" json:"count"`
	Timestamps []time.Time `bson:"timestamps" json:"timestamps"`
}

// PlayerRecord is the stored document for one tracked player, keyed by
// lowercase username. StatsHistory is append-only; Deleted is a
// reversible soft-delete flag. Version backs the optimistic-concurrency
// check on saves and is never exposed over the API.
type PlayerRecord struct {
	Username     string           `bson:"username" json:"username"`
	DisplayName  string           `bson:"displayName" json:"displayName"`
	StatsHistory []Snapshot       `bson:"statsHistory" json:"statsHistory"`
	Drops        []DropTotal      `bson:"drops" json:"drops"`
	IronmanType  runemetrics.Tier `bson:"ironmanType" json:"ironmanType"`
	Deleted      bool             `bson:"deleted" json:"deleted"`
	LastUpdated  time.Time        `bson:"lastUpdated" json:"lastUpdated"`
	Version      int64            `bson:"version" json:"-"`
}

// Active reports whether the record takes part in batch runs and
// default-visibility reads.
func (r *PlayerRecord) Active() bool {
	return r != nil && !r.Deleted
}

// SortedSnapshots returns the snapshot history ordered ascending by
// capture time, without touching the stored order.
func (r *PlayerRecord) SortedSnapshots() []Snapshot {
	out := slices.Clone(r.StatsHistory)
	slices.SortStableFunc(out, func(a, b Snapshot) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}

// clone returns a deep copy so Merge never aliases the caller's record.
// Nil slices stay nil so a no-op merge keeps the stored representation.
func (r *PlayerRecord) clone() *PlayerRecord {
	out := *r
	out.StatsHistory = slices.Clone(r.StatsHistory)
	out.Drops = slices.Clone(r.Drops)
	for i, d := range out.Drops {
		out.Drops[i].Timestamps = slices.Clone(d.Timestamps)
	}
	return &out
}
