// Package scheduler advances every eligible family to its next question once
// per calendar day.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/familyq/internal/apperr"
	"github.com/dukerupert/familyq/internal/clock"
	"github.com/dukerupert/familyq/internal/model"
	"github.com/dukerupert/familyq/internal/store"
)

// Advancer moves one family past its completed entry. *question.Assigner
// satisfies it.
type Advancer interface {
	Advance(ctx context.Context, familyID int64) (*model.FamilyQuestion, bool, error)
}

// Config holds scheduler settings. Zero values use the system clock, UTC, the
// package minimum roster size and four workers.
type Config struct {
	Clock       clock.Clock
	Location    *time.Location
	MinMembers  int
	Concurrency int
	// RunOnStart performs a catch-up sweep when the loop starts.
	RunOnStart bool
	Logger     *slog.Logger
}

// Report summarises one sweep.
type Report struct {
	Checked  int `json:"checked"`
	Advanced int `json:"advanced"`
	Failed   int `json:"failed"`
}

// Scheduler runs RunOnce at every local midnight.
type Scheduler struct {
	mu       sync.RWMutex
	advancer Advancer
	families *store.FamilyStore
	catalog  *store.CatalogStore
	cfg      Config
	after    func(time.Duration) <-chan time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(advancer Advancer, families *store.FamilyStore, catalog *store.CatalogStore, cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MinMembers <= 0 {
		cfg.MinMembers = model.MinMembersToStart
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		advancer: advancer,
		families: families,
		catalog:  catalog,
		cfg:      cfg,
		after:    time.After,
	}
}

// RunOnce sweeps every started family. Failures are logged per family and
// counted; they never stop the sweep.
func (s *Scheduler) RunOnce(ctx context.Context) Report {
	logger := s.cfg.Logger
	start := time.Now()

	total, err := s.catalog.Count(ctx)
	if err != nil {
		logger.Error("count catalog", "error", err)
		return Report{}
	}
	if total == 0 {
		logger.Warn("catalog is empty, nothing to assign")
		return Report{}
	}

	ids, err := s.families.ListStartedIDs(ctx)
	if err != nil {
		logger.Error("list started families", "error", err)
		return Report{}
	}

	var checked, advanced, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			switch created, err := s.advanceFamily(ctx, id); {
			case err != nil:
				failed.Add(1)
				logger.Error("advance family", "family_id", id, "error", err)
			case created:
				advanced.Add(1)
			}
			checked.Add(1)
			return nil
		})
	}
	g.Wait()

	report := Report{
		Checked:  int(checked.Load()),
		Advanced: int(advanced.Load()),
		Failed:   int(failed.Load()),
	}
	logger.Info("daily sweep finished",
		"checked", report.Checked,
		"advanced", report.Advanced,
		"failed", report.Failed,
		"duration", time.Since(start),
	)
	return report
}

func (s *Scheduler) advanceFamily(ctx context.Context, familyID int64) (created bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	size, err := s.families.Size(ctx, familyID)
	if err != nil {
		return false, err
	}
	if size < s.cfg.MinMembers {
		return false, nil
	}

	_, created, err = s.advancer.Advance(ctx, familyID)
	if apperr.Is(err, apperr.KindNotReady) {
		return false, nil
	}
	return created, err
}

// Start begins the loop. Each iteration waits until the next midnight in the
// configured timezone, then sweeps. Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)

		if s.cfg.RunOnStart {
			s.RunOnce(ctx)
		}
		for {
			now := s.cfg.Clock.Now()
			wait := clock.NextMidnight(now, s.cfg.Location).Sub(now)
			s.cfg.Logger.Debug("next sweep scheduled", "in", wait)

			select {
			case <-ctx.Done():
				return
			case <-s.after(wait):
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
