// Package drops derives item-drop events from free-text activity feeds.
package drops

import (
	"iter"
	"regexp"
	"strings"
	"time"

	"github.com/RuneRubble/rs-proxy/pkg/runemetrics"
)

// marker is the literal phrase that flags an item discovery entry
const marker = "I found"

// pattern extracts the item description trailing the article word. The
// matched text is used verbatim as the item name, without case or
// plural normalization.
var pattern = regexp.MustCompile(`I found (?:an?|some) (.+)`)

// Extract returns the (item name, occurred at) drop events found in the
// activity feed, in input order. The sequence is pure and restartable;
// entries without text or a parseable date, and marker entries the
// pattern cannot match, are skipped. Deduplication is not performed
// here.
func Extract(activities []runemetrics.Activity) iter.Seq2[string, time.Time] {
	return func(yield func(string, time.Time) bool) {
		for _, activity := range activities {
			if activity.Text == "" || activity.Date == "" {
				continue
			}
			if !strings.Contains(activity.Text, marker) {
				continue
			}
			m := pattern.FindStringSubmatch(activity.Text)
			if m == nil {
				continue
			}
			occurredAt, ok := activity.OccurredAt()
			if !ok {
				continue
			}
			if !yield(strings.TrimSpace(m[1]), occurredAt) {
				return
			}
		}
	}
}
