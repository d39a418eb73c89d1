package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"hawkinsfarm/internal/models"

	"github.com/go-co-op/gocron/v2"
)

// Catalog is the part of the product service the periodic jobs drive.
type Catalog interface {
	RefreshMarketplace(ctx context.Context) (int, error)
	LowStock(ctx context.Context, threshold int) ([]*models.Product, error)
}

type SchedulerConfig struct {
	MarketplaceRefresh time.Duration
	LowStockInterval   time.Duration
	LowStockThreshold  int
}

// JobScheduler runs the marketplace refresh and the low-stock report.
type JobScheduler struct {
	scheduler gocron.Scheduler
	catalog   Catalog
	cfg       SchedulerConfig
	jobs      map[string]gocron.Job
	mu        sync.RWMutex

	// ctx is handed to every task and cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewJobScheduler(catalog Catalog, cfg SchedulerConfig) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	js := &JobScheduler{
		scheduler: scheduler,
		catalog:   catalog,
		cfg:       cfg,
		jobs:      make(map[string]gocron.Job),
		ctx:       ctx,
		cancel:    cancel,
	}
	if err := js.registerJobs(); err != nil {
		cancel()
		_ = scheduler.Shutdown()
		return nil, err
	}
	return js, nil
}

// Start starts the job scheduler
func (js *JobScheduler) Start() {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
}

// Stop waits for running jobs to finish.
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	js.cancel()
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs() error {
	if js.cfg.MarketplaceRefresh > 0 {
		if err := js.add("marketplace-refresh", js.cfg.MarketplaceRefresh, js.RefreshMarketplace, true); err != nil {
			return err
		}
	}
	if js.cfg.LowStockInterval > 0 {
		if err := js.add("low-stock-report", js.cfg.LowStockInterval, js.ReportLowStock, false); err != nil {
			return err
		}
	}
	log.Printf("Registered %d background jobs", len(js.jobs))
	return nil
}

func (js *JobScheduler) add(name string, interval time.Duration, task func(context.Context) error, immediately bool) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	opts := []gocron.JobOption{
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if immediately {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	job, err := js.scheduler.NewJob(gocron.DurationJob(interval), gocron.NewTask(task, js.ctx), opts...)
	if err != nil {
		return fmt.Errorf("failed to create %s job: %w", name, err)
	}
	js.jobs[name] = job
	return nil
}

// RefreshMarketplace rebuilds the cached marketplace snapshot.
func (js *JobScheduler) RefreshMarketplace(ctx context.Context) error {
	n, err := js.catalog.RefreshMarketplace(ctx)
	if err != nil {
		log.Printf("Marketplace refresh failed: %v", err)
		return err
	}
	log.Printf("Marketplace snapshot refreshed with %d products", n)
	return nil
}

// ReportLowStock logs every listing at or below the configured threshold.
func (js *JobScheduler) ReportLowStock(ctx context.Context) error {
	products, err := js.catalog.LowStock(ctx, js.cfg.LowStockThreshold)
	if err != nil {
		log.Printf("Low stock check failed: %v", err)
		return err
	}
	if len(products) == 0 {
		return nil
	}

	log.Printf("ALERT: %d products at or below %d units", len(products), js.cfg.LowStockThreshold)
	for _, p := range products {
		log.Printf("- Product '%s' (%s) from farmer %s has %d units", p.Name, p.ID, p.FarmerID, p.Quantity)
	}
	return nil
}

// JobNames lists the registered jobs.
func (js *JobScheduler) JobNames() []string {
	js.mu.RLock()
	defer js.mu.RUnlock()

	names := make([]string, 0, len(js.jobs))
	for name := range js.jobs {
		names = append(names, name)
	}
	return names
}
