// internal/janitor/janitor.go
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/jason-s-yu/imposter/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper deletes lobbies idle for longer than maxAge.
type Sweeper interface {
	SweepStaleLobbies(ctx context.Context, maxAge time.Duration) ([]models.Lobby, error)
}

// Janitor periodically removes abandoned lobbies.
type Janitor struct {
	cron      *cron.Cron
	sweeper   Sweeper
	maxAge    time.Duration
	onRemoved func(models.Lobby)
	logger    *logrus.Logger
}

// New builds a janitor. onRemoved, if set, runs once for each deleted lobby.
func New(sweeper Sweeper, maxAge time.Duration, onRemoved func(models.Lobby), logger *logrus.Logger) *Janitor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Janitor{
		cron:      cron.New(),
		sweeper:   sweeper,
		maxAge:    maxAge,
		onRemoved: onRemoved,
		logger:    logger,
	}
}

// Start schedules the sweep, e.g. "@every 10m" or "0 3 * * *".
func (j *Janitor) Start(schedule string) error {
	if _, err := j.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		j.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	j.cron.Start()
	j.logger.WithFields(logrus.Fields{"schedule": schedule, "maxAge": j.maxAge}).Info("janitor started")
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// RunOnce sweeps immediately and returns how many lobbies were removed.
func (j *Janitor) RunOnce(ctx context.Context) int {
	removed, err := j.sweeper.SweepStaleLobbies(ctx, j.maxAge)
	if err != nil {
		j.logger.WithError(err).Error("stale lobby sweep failed")
		return 0
	}
	for _, l := range removed {
		if j.onRemoved != nil {
			j.onRemoved(l)
		}
	}
	if len(removed) > 0 {
		j.logger.WithField("lobbies_deleted", len(removed)).Info("stale lobbies removed")
	}
	return len(removed)
}
