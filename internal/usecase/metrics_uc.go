package usecase

import (
	"context"
	"sync"
	"time"

	"ledger-service/internal/domain"
	"ledger-service/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MetricsRecorder samples system-wide gauges into the metrics table on a
// fixed interval: active account count, total held balance, ledger entry
// volume over the trailing day, and completed transfer count.
type MetricsRecorder struct {
	accountRepo  repository.AccountRepository
	entryRepo    repository.EntryRepository
	transferRepo repository.TransferRepository
	metricsRepo  repository.MetricsRepository
	interval     time.Duration
	log          *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewMetricsRecorder creates a recorder; call Start to begin sampling.
func NewMetricsRecorder(
	accountRepo repository.AccountRepository,
	entryRepo repository.EntryRepository,
	transferRepo repository.TransferRepository,
	metricsRepo repository.MetricsRepository,
	interval time.Duration,
	log *zap.Logger,
) *MetricsRecorder {
	return &MetricsRecorder{
		accountRepo:  accountRepo,
		entryRepo:    entryRepo,
		transferRepo: transferRepo,
		metricsRepo:  metricsRepo,
		interval:     interval,
		log:          log,
		stopChan:     make(chan struct{}),
	}
}

// Start launches the sampling loop.
func (m *MetricsRecorder) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.record()
			case <-m.stopChan:
				return
			}
		}
	}()
}

// Stop terminates the loop and waits for the in-flight sample.
func (m *MetricsRecorder) Stop() {
	close(m.stopChan)
	m.wg.Wait()
}

// RecentMetrics returns the latest recorded samples.
func (m *MetricsRecorder) RecentMetrics(ctx context.Context, limit int) ([]*domain.SystemMetric, error) {
	return m.metricsRepo.ListRecent(ctx, limit)
}

func (m *MetricsRecorder) record() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, total, err := m.accountRepo.Totals(ctx)
	if err != nil {
		m.log.Warn("metrics: account totals unavailable", zap.Error(err))
	} else {
		m.store(ctx, "total_accounts", decimal.NewFromInt(count))
		m.store(ctx, "total_balance", total)
	}

	entries, err := m.entryRepo.CountSince(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		m.log.Warn("metrics: entry volume unavailable", zap.Error(err))
	} else {
		m.store(ctx, "ledger_entries_24h", decimal.NewFromInt(entries))
	}

	completed, err := m.transferRepo.CountByStatus(ctx, domain.TransferStatusCompleted)
	if err != nil {
		m.log.Warn("metrics: transfer count unavailable", zap.Error(err))
	} else {
		m.store(ctx, "transfers_completed", decimal.NewFromInt(completed))
	}
}

func (m *MetricsRecorder) store(ctx context.Context, name string, value decimal.Decimal) {
	if err := m.metricsRepo.Record(ctx, name, value); err != nil {
		m.log.Warn("metrics: failed to record sample", zap.String("metric", name), zap.Error(err))
	}
}
