package runemetrics

import (
	"time"

	"github.com/goccy/go-json"
)

// Tier is the account type reported by the hiscore probes. The numeric
// values are part of the stored document format and must not change.
type Tier int

const (
	TierStandard Tier = iota
	TierIronman
	TierHardcoreIronman
	TierGroupIronman
)

func (t Tier) String() string {
	switch t {
	case TierIronman:
		return "ironman"
	case TierHardcoreIronman:
		return "hardcore_ironman"
	case TierGroupIronman:
		return "group_ironman"
	default:
		return "standard"
	}
}

// Activity is one entry of the RuneMetrics activity feed
type Activity struct {
	Date    string `json:"date"`
	Details string `json:"details"`
	Text    string `json:"text"`
}

// activityDateLayout is the format RuneMetrics uses for activity dates
const activityDateLayout = "02-Jan-2006 15:04"

// OccurredAt parses the activity date. RuneMetrics serves its own
// day-month-year layout; RFC 3339 is accepted as well since recorded
// feeds round-trip through JSON in that form.
func (a Activity) OccurredAt() (time.Time, bool) {
	if a.Date == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, a.Date); err == nil {
		return t, true
	}
	if t, err := time.Parse(activityDateLayout, a.Date); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Profile is a fetched RuneMetrics profile. Name and Activities are the
// only fields the tracker interprets; Raw preserves the full payload
// verbatim for snapshot history.
type Profile struct {
	Name       string
	Activities []Activity
	Raw        json.RawMessage
}
