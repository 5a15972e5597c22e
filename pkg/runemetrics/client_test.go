package runemetrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RuneRubble/rs-proxy/pkg/logger"
)

func testClient(t *testing.T, profileURL, hiscoreURL string) *Client {
	t.Helper()
	l, err := logger.New(logger.Config{Level: "error", ServiceName: "test"})
	require.NoError(t, err)
	return NewClient(Config{
		ProfileURL:     profileURL,
		HiscoreURL:     hiscoreURL,
		Timeout:        2 * time.Second,
		ActivityWindow: 20,
	}, l)
}

func TestFetchProfileSuccess(t *testing.T) {
	const payload = `{"name":"Zezima","activities":[{"date":"01-Feb-2024 10:00","text":"I found an Abyssal whip","details":"..."}],"totalskill":2898}`

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "zezima", r.URL.Query().Get("user"))
		assert.Equal(t, "20", r.URL.Query().Get("activities"))
		w.Write([]byte(payload))
	}))
	defer ts.Close()

	c := testClient(t, ts.URL, ts.URL)
	profile, err := c.FetchProfile(context.Background(), "zezima")
	require.NoError(t, err)

	assert.Equal(t, "Zezima", profile.Name)
	require.Len(t, profile.Activities, 1)
	assert.Equal(t, "I found an Abyssal whip", profile.Activities[0].Text)
	assert.Equal(t, payload, string(profile.Raw), "raw payload preserved verbatim")
}

func TestFetchProfileNonSuccessStatus(t *testing.T) {
	body := strings.Repeat("x", 500)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(body))
	}))
	defer ts.Close()

	c := testClient(t, ts.URL, ts.URL)
	_, err := c.FetchProfile(context.Background(), "zezima")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.Len(t, statusErr.Excerpt, 200, "excerpt is bounded")
}

func TestFetchProfileNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"NO_PROFILE"}`))
	}))
	defer ts.Close()

	c := testClient(t, ts.URL, ts.URL)
	_, err := c.FetchProfile(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchProfileInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "upstream error code", body: `{"error":"PROFILE_PRIVATE"}`},
		{name: "missing name", body: `{"activities":[]}`},
		{name: "not json", body: `<html>maintenance</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			c := testClient(t, ts.URL, ts.URL)
			_, err := c.FetchProfile(context.Background(), "zezima")
			assert.ErrorIs(t, err, ErrInvalidProfile)
		})
	}
}

func TestFetchProfileTransportError(t *testing.T) {
	c := testClient(t, "http://127.0.0.1:1", "http://127.0.0.1:1")
	_, err := c.FetchProfile(context.Background(), "zezima")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrInvalidProfile)
}

// probeServer answers each hiscore module with the configured status
func probeServer(t *testing.T, statuses map[string]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for module, status := range statuses {
			if strings.Contains(r.URL.Path, module) {
				w.WriteHeader(status)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}))
}

func TestClassifyTier(t *testing.T) {
	tests := []struct {
		name     string
		statuses map[string]int
		want     Tier
	}{
		{
			name:     "hardcore wins first",
			statuses: map[string]int{"hiscore_hardcore_ironman": 200, "hiscore_ironman": 200},
			want:     TierHardcoreIronman,
		},
		{
			name:     "ironman when hardcore negative",
			statuses: map[string]int{"hiscore_ironman": 200},
			want:     TierIronman,
		},
		{
			name:     "group when only group affirms",
			statuses: map[string]int{"hiscore_group_ironman": 200},
			want:     TierGroupIronman,
		},
		{
			name:     "all negative falls back to standard",
			statuses: map[string]int{},
			want:     TierStandard,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := probeServer(t, tt.statuses)
			defer ts.Close()

			c := testClient(t, ts.URL, ts.URL)
			assert.Equal(t, tt.want, c.ClassifyTier(context.Background(), "zezima"))
		})
	}
}

func TestClassifyTierContinuesPastProbeFailure(t *testing.T) {
	// First probe hits a dead endpoint; the later probes must still
	// run instead of collapsing straight to standard.
	probes := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes++
		if strings.Contains(r.URL.Path, "hiscore_hardcore_ironman") {
			// Hijack and drop the connection to simulate a transport error.
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		if strings.Contains(r.URL.Path, "hiscore_ironman") {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	c := testClient(t, ts.URL, ts.URL)
	assert.Equal(t, TierIronman, c.ClassifyTier(context.Background(), "zezima"))
	assert.GreaterOrEqual(t, probes, 2)
}

func TestClassifyTierAllTransportFailures(t *testing.T) {
	c := testClient(t, "http://127.0.0.1:1", "http://127.0.0.1:1")
	assert.Equal(t, TierStandard, c.ClassifyTier(context.Background(), "zezima"))
}

func TestActivityOccurredAt(t *testing.T) {
	rfc := Activity{Date: "2024-02-01T10:00:00Z"}
	got, ok := rfc.OccurredAt()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC), got)

	native := Activity{Date: "01-Feb-2024 10:00"}
	got, ok = native.OccurredAt()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC), got)

	_, ok = Activity{Date: ""}.OccurredAt()
	assert.False(t, ok)

	_, ok = Activity{Date: "not a date"}.OccurredAt()
	assert.False(t, ok)
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "standard", TierStandard.String())
	assert.Equal(t, "ironman", TierIronman.String())
	assert.Equal(t, "hardcore_ironman", TierHardcoreIronman.String())
	assert.Equal(t, "group_ironman", TierGroupIronman.String())
}
