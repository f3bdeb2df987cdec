// Package worker runs background maintenance for the session host.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/cropbatch/internal/domain"
	"github.com/google/uuid"
)

// SessionReaper is the part of the session service the janitor needs.
type SessionReaper interface {
	List(ctx context.Context) []*domain.Session
	Delete(ctx context.Context, sessionID uuid.UUID) error
}

// Janitor deletes sessions that have been idle longer than the TTL.
type Janitor struct {
	sessions SessionReaper
	config   Config
	logger   *slog.Logger
	now      func() time.Time

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewJanitor creates a Janitor. It must be started with Start and stopped
// with Stop.
func NewJanitor(sessions SessionReaper, config Config, logger *slog.Logger) (*Janitor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Janitor{
		sessions: sessions,
		config:   config,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start launches the sweep loop. It does nothing when expiry is disabled.
func (j *Janitor) Start(ctx context.Context) {
	if !j.config.Enabled() {
		j.logger.Info("Session expiry disabled")
		return
	}

	j.wg.Add(1)
	go j.run(ctx)

	j.logger.Info("Janitor started", "session_ttl", j.config.SessionTTL, "poll_interval", j.config.PollInterval)
}

// Stop signals the loop to exit and waits up to ShutdownTimeout for it.
func (j *Janitor) Stop() {
	close(j.stopCh)

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		j.logger.Info("Janitor stopped")
	case <-time.After(j.config.ShutdownTimeout):
		j.logger.Warn("Janitor shutdown timeout exceeded")
	}
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep deletes every session whose last update is older than the TTL and
// returns how many were removed.
func (j *Janitor) Sweep(ctx context.Context) int {
	cutoff := j.now().Add(-j.config.SessionTTL)

	removed := 0
	for _, sess := range j.sessions.List(ctx) {
		if !sess.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := j.sessions.Delete(ctx, sess.ID); err != nil {
			// Another request may have deleted it first.
			if domain.ErrorCode(err) != domain.ENOTFOUND {
				j.logger.Error("Failed to expire session", "session_id", sess.ID, "error", err)
			}
			continue
		}
		removed++
		j.logger.Info("Session expired", "session_id", sess.ID, "idle", j.now().Sub(sess.UpdatedAt).Round(time.Second))
	}
	return removed
}
