package runemetrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/RuneRubble/rs-proxy/pkg/logger"
	"github.com/RuneRubble/rs-proxy/pkg/metrics"
)

const (
	// excerptLimit bounds the upstream body excerpt carried in StatusError
	excerptLimit = 200

	// noProfileError is the error code RuneMetrics returns for unknown players
	noProfileError = "NO_PROFILE"
)

var (
	// ErrNotFound indicates the upstream explicitly reported an unknown player
	ErrNotFound = errors.New("player not found upstream")

	// ErrInvalidProfile indicates a successful response missing required fields
	ErrInvalidProfile = errors.New("invalid profile payload")
)

// StatusError is returned when the profile endpoint answers with a
// non-success status. It carries the code and a bounded body excerpt
// for diagnostics.
type StatusError struct {
	Code    int
	Excerpt string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("runemetrics status %d: %s", e.Code, e.Excerpt)
}

// hiscore probes in priority order; first affirmative response wins
var tierProbes = []struct {
	module string
	tier   Tier
}{
	{"hiscore_hardcore_ironman", TierHardcoreIronman},
	{"hiscore_ironman", TierIronman},
	{"hiscore_group_ironman", TierGroupIronman},
}

// Config holds the upstream endpoints and limits for the client
type Config struct {
	ProfileURL     string
	HiscoreURL     string
	Timeout        time.Duration
	ActivityWindow int
}

// Client fetches player profiles and account types from the RuneScape
// upstream services. It performs no retries; retry policy belongs to
// the caller.
type Client struct {
	httpClient     *http.Client
	logger         *logger.Logger
	profileURL     string
	hiscoreURL     string
	activityWindow int
}

// NewClient creates a new upstream client
func NewClient(cfg Config, l *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	window := cfg.ActivityWindow
	if window <= 0 {
		window = 20
	}
	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		logger:         l,
		profileURL:     cfg.ProfileURL,
		hiscoreURL:     cfg.HiscoreURL,
		activityWindow: window,
	}
}

// ProfileRequestURL returns the RuneMetrics profile URL for a player
func (c *Client) ProfileRequestURL(username string) string {
	return fmt.Sprintf("%s?user=%s&activities=%d", c.profileURL, url.QueryEscape(username), c.activityWindow)
}

// FetchProfile fetches the RuneMetrics profile for a player. It returns
// ErrNotFound when the upstream reports an unknown player, a *StatusError
// on non-success statuses and ErrInvalidProfile when the payload carries
// no usable name.
func (c *Client) FetchProfile(ctx context.Context, username string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ProfileRequestURL(username), nil)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to build profile request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamRequestSeconds.WithLabelValues("profile").Observe(time.Since(start).Seconds())
	if err != nil {
		return Profile{}, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Profile{}, fmt.Errorf("failed to read profile response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Profile{}, &StatusError{Code: resp.StatusCode, Excerpt: excerpt(body)}
	}

	var payload struct {
		Name       string     `json:"name"`
		Activities []Activity `json:"activities"`
		Error      string     `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if payload.Error == noProfileError {
		return Profile{}, ErrNotFound
	}
	if payload.Error != "" {
		return Profile{}, fmt.Errorf("%w: upstream error %q", ErrInvalidProfile, payload.Error)
	}
	if payload.Name == "" {
		return Profile{}, fmt.Errorf("%w: missing name", ErrInvalidProfile)
	}

	return Profile{
		Name:       payload.Name,
		Activities: payload.Activities,
		Raw:        json.RawMessage(body),
	}, nil
}

// ClassifyTier determines the account type by probing the restricted
// hiscore endpoints in priority order. A failed probe counts as a
// negative and the remaining probes still run; the baseline tier is
// returned when nothing answers affirmatively. It never fails.
func (c *Client) ClassifyTier(ctx context.Context, username string) Tier {
	for _, probe := range tierProbes {
		probeURL := fmt.Sprintf("%s/m=%s/index_lite.ws?player=%s", c.hiscoreURL, probe.module, url.QueryEscape(username))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
		if err != nil {
			continue
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		metrics.UpstreamRequestSeconds.WithLabelValues("hiscore").Observe(time.Since(start).Seconds())
		if err != nil {
			c.logger.Debug("tier probe failed",
				zap.String("username", username),
				zap.String("module", probe.module),
				zap.Error(err))
			continue
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return probe.tier
		}
	}
	return TierStandard
}

func excerpt(body []byte) string {
	if len(body) > excerptLimit {
		return string(body[:excerptLimit])
	}
	return string(body)
}
