package scheduler

//go:generate mockgen -destination=mock_scheduler.go -package=scheduler auction-escrow/internal/scheduler Settler,DueFinder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-escrow/internal/auction"
	"auction-escrow/internal/metrics"
	"auction-escrow/utils"

	"golang.org/x/sync/errgroup"
)

// Settler closes a single listing whose auction window has elapsed
type Settler interface {
	SettleListing(ctx context.Context, listingID string) (auction.SettlementResult, error)
}

// DueFinder lists active timed listings whose window closed at or before now
type DueFinder interface {
	ListDueListingIDs(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// Config controls polling cadence, fan-out and alerting
type Config struct {
	Interval    time.Duration
	MaxFailures int // consecutive failures of one listing before an operator alert
	Workers     int
	BatchSize   int
}

// RunReport summarizes one scheduler cycle
type RunReport struct {
	Due          int
	Settled      int
	AlreadyFinal int
	Failed       int
	Alerts       int
}

// Scheduler periodically settles expired auctions. A listing that fails is
// retried on every cycle until it reaches a terminal state.
type Scheduler struct {
	settler Settler
	finder  DueFinder
	cfg     Config
	now     func() time.Time

	mu       sync.Mutex
	failures map[string]int // key: listingID -> consecutive failures
}

// New creates a scheduler
func New(settler Settler, finder DueFinder, cfg Config) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = 1
	}
	return &Scheduler{
		settler:  settler,
		finder:   finder,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		failures: make(map[string]int),
	}
}

// Start runs a cycle immediately and then once per interval until ctx is done
// or the returned stop function is called. stop waits for the running cycle.
func (s *Scheduler) Start(ctx context.Context) func() {
	ticker := time.NewTicker(s.cfg.Interval)
	stopChan := make(chan struct{})
	var wg sync.WaitGroup

	run := func() {
		if _, err := s.RunOnce(ctx); err != nil {
			utils.Error("settlement cycle failed", map[string]any{"error": err.Error()})
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		utils.Info("settlement scheduler started", map[string]any{"interval": s.cfg.Interval.String()})

		run()
		for {
			select {
			case <-ctx.Done():
				utils.Info("settlement scheduler shutting down (context cancelled)", nil)
				return
			case <-stopChan:
				utils.Info("settlement scheduler shutting down (stop requested)", nil)
				return
			case <-ticker.C:
				run()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(stopChan)
			wg.Wait()
		})
	}
}

// RunOnce settles every listing that is due now, with bounded concurrency
func (s *Scheduler) RunOnce(ctx context.Context) (RunReport, error) {
	start := time.Now()
	defer func() { metrics.ObserveSchedulerRun(time.Since(start)) }()

	ids, err := s.finder.ListDueListingIDs(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return RunReport{}, fmt.Errorf("scheduler: list due listings: %w", err)
	}

	report := RunReport{Due: len(ids)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			result, err := s.settler.SettleListing(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				if s.recordFailure(id, err) {
					report.Alerts++
				}
				return nil
			}

			s.resetFailures(id)
			if result.AlreadyFinal {
				report.AlreadyFinal++
			} else {
				report.Settled++
			}
			return nil
		})
	}
	_ = g.Wait()

	if report.Due > 0 {
		utils.Info("settlement cycle finished", map[string]any{
			"due":           report.Due,
			"settled":       report.Settled,
			"already_final": report.AlreadyFinal,
			"failed":        report.Failed,
		})
	}
	return report, nil
}

// Failures returns the consecutive failure count of a listing
func (s *Scheduler) Failures(listingID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[listingID]
}

// recordFailure counts a failed attempt and reports whether it crossed the alert threshold
func (s *Scheduler) recordFailure(listingID string, err error) bool {
	s.mu.Lock()
	s.failures[listingID]++
	n := s.failures[listingID]
	s.mu.Unlock()

	metrics.RecordSettlementFailure()
	utils.Warn("settlement failed, will retry", map[string]any{
		"listing_id": listingID,
		"attempt":    n,
		"error":      err.Error(),
	})

	if n < s.cfg.MaxFailures {
		return false
	}
	metrics.RecordOperatorAlert()
	utils.Error("OPERATOR ALERT: listing keeps failing settlement", map[string]any{
		"listing_id":           listingID,
		"consecutive_failures": n,
		"error":                err.Error(),
	})
	return true
}

func (s *Scheduler) resetFailures(listingID string) {
	s.mu.Lock()
	delete(s.failures, listingID)
	s.mu.Unlock()
}
