package drops

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RuneRubble/rs-proxy/pkg/runemetrics"
)

type event struct {
	item string
	at   time.Time
}

func collect(activities []runemetrics.Activity) []event {
	var out []event
	for item, at := range Extract(activities) {
		out = append(out, event{item: item, at: at})
	}
	return out
}

func TestExtract(t *testing.T) {
	shardsAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	whipAt := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		activities []runemetrics.Activity
		want       []event
	}{
		{
			name: "some-article drop",
			activities: []runemetrics.Activity{
				{Text: "I found some Ancient relic shards", Date: "2024-01-01T00:00:00Z"},
			},
			want: []event{{item: "Ancient relic shards", at: shardsAt}},
		},
		{
			name: "an-article drop",
			activities: []runemetrics.Activity{
				{Text: "I found an Abyssal whip", Date: "2024-02-01T10:00:00Z"},
			},
			want: []event{{item: "Abyssal whip", at: whipAt}},
		},
		{
			name: "runemetrics date layout",
			activities: []runemetrics.Activity{
				{Text: "I found a Dragon pickaxe", Date: "01-Feb-2024 10:00"},
			},
			want: []event{{item: "Dragon pickaxe", at: whipAt}},
		},
		{
			name: "marker without trailing description yields nothing",
			activities: []runemetrics.Activity{
				{Text: "I found", Date: "2024-01-01T00:00:00Z"},
			},
			want: nil,
		},
		{
			name: "non-drop activity skipped",
			activities: []runemetrics.Activity{
				{Text: "Levelled up Attack", Date: "2024-01-01T00:00:00Z"},
			},
			want: nil,
		},
		{
			name: "empty text and empty date skipped",
			activities: []runemetrics.Activity{
				{Text: "", Date: "2024-01-01T00:00:00Z"},
				{Text: "I found an Abyssal whip", Date: ""},
			},
			want: nil,
		},
		{
			name: "unparseable date skipped",
			activities: []runemetrics.Activity{
				{Text: "I found an Abyssal whip", Date: "yesterday"},
			},
			want: nil,
		},
		{
			name: "input order preserved",
			activities: []runemetrics.Activity{
				{Text: "I found an Abyssal whip", Date: "2024-02-01T10:00:00Z"},
				{Text: "Quest complete", Date: "2024-02-01T11:00:00Z"},
				{Text: "I found some Ancient relic shards", Date: "2024-01-01T00:00:00Z"},
			},
			want: []event{
				{item: "Abyssal whip", at: whipAt},
				{item: "Ancient relic shards", at: shardsAt},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, collect(tt.activities))
		})
	}
}

func TestExtractRestartable(t *testing.T) {
	activities := []runemetrics.Activity{
		{Text: "I found an Abyssal whip", Date: "2024-02-01T10:00:00Z"},
		{Text: "I found some coins", Date: "2024-02-01T11:00:00Z"},
	}

	seq := Extract(activities)
	first := collect(activities)

	// Ranging a second time over the same sequence yields the same events.
	var second []event
	for item, at := range seq {
		second = append(second, event{item: item, at: at})
	}
	require.Equal(t, first, second)

	// Early break must not panic or leak.
	for range seq {
		break
	}
}

func TestExtractProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("emitted names are trimmed and non-empty", prop.ForAll(
		func(item string) bool {
			activities := []runemetrics.Activity{
				{Text: "I found an " + item, Date: "2024-02-01T10:00:00Z"},
			}
			for name := range Extract(activities) {
				if name == "" || name != trimmed(name) {
					return false
				}
			}
			return true
		},
		gen.AlphaString(),
	))

	properties.Property("extraction never emits more events than activities", prop.ForAll(
		func(texts []string) bool {
			activities := make([]runemetrics.Activity, len(texts))
			for i, text := range texts {
				activities[i] = runemetrics.Activity{Text: text, Date: "2024-02-01T10:00:00Z"}
			}
			count := 0
			for range Extract(activities) {
				count++
			}
			return count <= len(activities)
		},
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func trimmed(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}

func BenchmarkExtract(b *testing.B) {
	activities := make([]runemetrics.Activity, 0, 20)
	for i := 0; i < 10; i++ {
		activities = append(activities,
			runemetrics.Activity{Text: "I found an Abyssal whip", Date: "2024-02-01T10:00:00Z"},
			runemetrics.Activity{Text: "Levelled up Attack", Date: "2024-02-01T10:00:00Z"},
		)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for range Extract(activities) {
		}
	}
}
