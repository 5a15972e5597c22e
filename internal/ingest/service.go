// Package ingest coordinates the per-player snapshot ingestion and the
// scheduled batch runs over all active players.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/RuneRubble/rs-proxy/pkg/drops"
	"github.com/RuneRubble/rs-proxy/pkg/events"
	"github.com/RuneRubble/rs-proxy/pkg/logger"
	"github.com/RuneRubble/rs-proxy/pkg/metrics"
	"github.com/RuneRubble/rs-proxy/pkg/player"
	"github.com/RuneRubble/rs-proxy/pkg/retry"
	"github.com/RuneRubble/rs-proxy/pkg/runemetrics"
	"github.com/RuneRubble/rs-proxy/pkg/store"
)

// ErrEmptyUsername is returned when an ingestion is requested without a
// username.
var ErrEmptyUsername = errors.New("username is required")

// ProfileClient is the slice of the upstream client the orchestrator
// needs.
type ProfileClient interface {
	FetchProfile(ctx context.Context, username string) (runemetrics.Profile, error)
	ClassifyTier(ctx context.Context, username string) runemetrics.Tier
}

// Options tunes the service behavior
type Options struct {
	// ThrottleDelay is the pause inserted after every player in a
	// batch run, successful or not.
	ThrottleDelay time.Duration

	// ConflictRetries bounds how often a lost optimistic-concurrency
	// race is retried before the ingestion fails.
	ConflictRetries int
}

// Service implements the ingestion orchestrator and the batch runner
type Service struct {
	logger    *logger.Logger
	store     store.Store
	client    ProfileClient
	publisher events.Publisher
	opts      Options
	now       func() time.Time
}

// NewService creates a new ingestion service instance
func NewService(l *logger.Logger, st store.Store, client ProfileClient, pub events.Publisher, opts Options) *Service {
	if opts.ConflictRetries < 1 {
		opts.ConflictRetries = 1
	}
	return &Service{
		logger:    l,
		store:     st,
		client:    client,
		publisher: pub,
		opts:      opts,
		now:       time.Now,
	}
}

// Ingest fetches the current profile for one player and reconciles it
// against the stored record. It is all-or-nothing: any fetch or merge
// failure leaves the stored record untouched. A lost save race reloads
// and re-merges up to the configured retry bound.
func (s *Service) Ingest(ctx context.Context, username string) (*player.PlayerRecord, error) {
	name := strings.ToLower(strings.TrimSpace(username))
	if name == "" {
		return nil, ErrEmptyUsername
	}

	var rec *player.PlayerRecord
	err := retry.Do(ctx, func() error {
		var err error
		rec, err = s.ingestOnce(ctx, name)
		return err
	}, retry.Options{
		MaxAttempts:     s.opts.ConflictRetries,
		InitialInterval: 25 * time.Millisecond,
		MaxInterval:     250 * time.Millisecond,
		Multiplier:      2.0,
		Classifier: func(err error) bool {
			return errors.Is(err, store.ErrVersionConflict)
		},
	})
	if err != nil {
		metrics.IngestionsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}

	metrics.IngestionsTotal.WithLabelValues("success").Inc()
	return rec, nil
}

func (s *Service) ingestOnce(ctx context.Context, name string) (*player.PlayerRecord, error) {
	existing, err := s.store.FindByUsername(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load record for %q: %w", name, err)
	}

	profile, err := s.client.FetchProfile(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile for %q: %w", name, err)
	}

	tier := s.client.ClassifyTier(ctx, name)
	now := s.now()

	merged, recorded, err := player.Merge(existing, name, profile, drops.Extract(profile.Activities), tier, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to merge profile for %q: %w", name, err)
	}

	if err := s.store.Save(ctx, merged); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			metrics.VersionConflictsTotal.Inc()
			s.logger.Debug("record changed underneath, retrying merge", zap.String("username", name))
			return nil, err
		}
		return nil, fmt.Errorf("failed to save record for %q: %w", name, err)
	}

	s.publishDrops(ctx, name, recorded, now)

	s.logger.Debug("ingestion complete",
		zap.String("username", name),
		zap.Int("snapshots", len(merged.StatsHistory)),
		zap.Int("new_drops", len(recorded)))
	return merged, nil
}

// publishDrops emits the newly recorded drops; failures are logged and
// never fail the ingestion.
func (s *Service) publishDrops(ctx context.Context, name string, recorded []player.DropOccurrence, recordedAt time.Time) {
	for _, occ := range recorded {
		metrics.DropsRecordedTotal.Inc()
		err := s.publisher.Publish(ctx, events.DropEvent{
			Username:   name,
			ItemName:   occ.ItemName,
			OccurredAt: occ.OccurredAt,
			RecordedAt: recordedAt,
		})
		if err != nil {
			s.logger.Warn("failed to publish drop event",
				zap.String("username", name),
				zap.String("item", occ.ItemName),
				zap.Error(err))
		}
	}
}

// PlayerFailure records one failed player inside a batch run
type PlayerFailure struct {
	Username string
	Err      error
}

// BatchReport summarizes one batch run
type BatchReport struct {
	Succeeded int
	Failed    []PlayerFailure
}

// RunBatch ingests every active player strictly sequentially, pausing
// for the throttle delay after each one regardless of outcome.
// Per-player failures are recorded and never abort the batch; only a
// failure to list the active players fails the run. Context
// cancellation stops the batch between players with the partial report.
func (s *Service) RunBatch(ctx context.Context) (BatchReport, error) {
	start := s.now()
	metrics.BatchRunsTotal.Inc()

	names, err := s.store.ListActive(ctx)
	if err != nil {
		return BatchReport{}, fmt.Errorf("failed to list active players: %w", err)
	}
	s.logger.Info("batch run starting", zap.Int("players", len(names)))

	var report BatchReport
	for _, name := range names {
		if _, err := s.Ingest(ctx, name); err != nil {
			metrics.BatchPlayerFailuresTotal.Inc()
			s.logger.Warn("player update failed",
				zap.String("username", name),
				zap.Error(err))
			report.Failed = append(report.Failed, PlayerFailure{Username: name, Err: err})
		} else {
			report.Succeeded++
		}

		select {
		case <-ctx.Done():
			return report, ctx.Err()
		case <-time.After(s.opts.ThrottleDelay):
		}
	}

	metrics.BatchDurationSeconds.Observe(time.Since(start).Seconds())
	s.logger.Info("batch run done",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}
