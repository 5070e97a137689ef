// Package workers holds the scheduled background jobs.
package workers

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lotledger/ledger_service/internal/domain/repositories"
	"github.com/lotledger/ledger_service/internal/domain/services/adjustments"
	"github.com/lotledger/ledger_service/internal/infrastructure/cache"
	"github.com/lotledger/ledger_service/pkg/logger"
	"github.com/lotledger/ledger_service/pkg/metrics"
)

// CacheRefresher recomputes and re-caches the adjusted position of every
// currently held key on a schedule, so cold reads after a TTL expiry still
// hit warm entries. A refresh failure for one key skips that key and keeps
// going.
type CacheRefresher struct {
	lots        repositories.LotRepository
	adjustments *adjustments.Service
	cache       *cache.PositionsCache
	cron        *cron.Cron
	schedule    string
	logger      *logger.Logger
}

// NewCacheRefresher creates a new cache refresher
func NewCacheRefresher(
	lots repositories.LotRepository,
	adjSvc *adjustments.Service,
	positionsCache *cache.PositionsCache,
	schedule string,
	log *logger.Logger,
) *CacheRefresher {
	return &CacheRefresher{
		lots:        lots,
		adjustments: adjSvc,
		cache:       positionsCache,
		cron:        cron.New(),
		schedule:    schedule,
		logger:      log,
	}
}

// Start registers the refresh job and starts the scheduler.
func (w *CacheRefresher) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		w.RefreshAll(ctx)
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	w.logger.Infow("cache refresher started", "schedule", w.schedule)
	return nil
}

// Stop stops the scheduler and waits for a running refresh to finish.
func (w *CacheRefresher) Stop() {
	<-w.cron.Stop().Done()
	w.logger.Infow("cache refresher stopped")
}

// RefreshAll recomputes every held key once.
func (w *CacheRefresher) RefreshAll(ctx context.Context) {
	start := time.Now()

	keys, err := w.lots.ListHeldKeys(ctx)
	if err != nil {
		w.logger.Errorw("cache refresh: listing held keys failed", "error", err)
		return
	}

	refreshed := 0
	for _, key := range keys {
		position, err := w.adjustments.CalculateAdjustedPosition(ctx, key.OwnerID, key.AccountID, key.Ticker, nil)
		if err != nil {
			w.logger.Warnw("cache refresh: recompute failed",
				"error", err,
				"account_id", key.AccountID,
				"ticker", key.Ticker,
			)
			continue
		}
		w.cache.Set(ctx, position)
		refreshed++
	}

	metrics.CacheRefreshDuration.Observe(time.Since(start).Seconds())
	w.logger.Infow("cache refresh complete",
		"keys", len(keys),
		"refreshed", refreshed,
		"duration", time.Since(start),
	)
}
