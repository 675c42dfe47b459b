// Package scheduler runs the periodic catalog, gold-rate and monitoring jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/scheme-service/internal/config"
	"github.com/Dan9191/scheme-service/internal/metrics"
	"github.com/Dan9191/scheme-service/internal/models"
	"github.com/Dan9191/scheme-service/internal/service"
)

const jobTimeout = 30 * time.Second

// CatalogWarmer refreshes the scheme catalog.
type CatalogWarmer interface {
	Schemes(ctx context.Context, force bool) ([]models.Scheme, bool)
}

// GoldRefresher refreshes the cached gold rate.
type GoldRefresher interface {
	RefreshGoldRate(ctx context.Context) (*service.GoldRate, error)
}

// Scheduler owns the cron jobs
type Scheduler struct {
	cron    *cron.Cron
	catalog CatalogWarmer
	gold    GoldRefresher
	counts  func() (map[string]float64, error)
	log     *logrus.Logger
	last    map[string]float64
}

// NewScheduler registers the jobs described by cfg
func NewScheduler(cfg *config.Config, catalog CatalogWarmer, gold GoldRefresher, log *logrus.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		catalog: catalog,
		gold:    gold,
		counts:  metrics.UpstreamCallCounts,
		log:     log,
		last:    make(map[string]float64),
	}

	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"catalog_warmup", cfg.CatalogCron, s.warmCatalog},
		{"gold_rate_refresh", cfg.GoldRateCron, s.refreshGoldRate},
		{"call_rate_monitor", cfg.MonitorCron, s.reportCallRates},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, j.fn); err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", j.name, err)
		}
	}
	return s, nil
}

// Start runs the jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Infof("Scheduler started with %d jobs", len(s.cron.Entries()))
}

// Stop halts scheduling and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("Scheduler stop timed out")
	}
}

func (s *Scheduler) warmCatalog() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	schemes, stale := s.catalog.Schemes(ctx, true)
	if stale {
		s.log.Warn("Catalog warm-up served stale data")
		return
	}
	s.log.Debugf("Catalog warmed: %d schemes", len(schemes))
}

func (s *Scheduler) refreshGoldRate() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.gold.RefreshGoldRate(ctx); err != nil {
		s.log.WithError(err).Warn("Scheduled gold rate refresh failed")
	}
}

// reportCallRates logs how many upstream calls each endpoint took since the last run.
func (s *Scheduler) reportCallRates() {
	counts, err := s.counts()
	if err != nil {
		s.log.WithError(err).Warn("Upstream call counts unavailable")
		return
	}
	fields := logrus.Fields{}
	for endpoint, total := range counts {
		fields[endpoint] = total - s.last[endpoint]
		s.last[endpoint] = total
	}
	s.log.WithFields(fields).Info("Upstream calls since last report")
}
