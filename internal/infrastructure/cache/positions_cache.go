// Package cache holds the redis-backed read cache for adjusted positions.
// The cache sits strictly outside the ledger: writers invalidate, readers
// fall back to recomputation whenever redis is unavailable.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/lotledger/ledger_service/internal/domain/entities"
	"github.com/lotledger/ledger_service/pkg/logger"
	"github.com/lotledger/ledger_service/pkg/metrics"
)

const keyPrefix = "lotledger:position:"

// PositionsCache stores computed adjusted positions keyed by owner, account
// and ticker. A circuit breaker shields the service from a flapping redis:
// while the breaker is open every lookup is a miss and every write a no-op.
type PositionsCache struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
	logger  *logger.Logger
}

// NewPositionsCache creates a positions cache around an existing redis client
func NewPositionsCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *PositionsCache {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "positions-cache",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("cache circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &PositionsCache{
		client:  client,
		breaker: breaker,
		ttl:     ttl,
		logger:  log,
	}
}

func positionKey(ownerID uuid.UUID, accountID, ticker string) string {
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, ownerID.String(), accountID, ticker)
}

// Get returns the cached position, or nil on a miss. Errors are swallowed
// after counting; the caller always recomputes on nil.
func (c *PositionsCache) Get(ctx context.Context, ownerID uuid.UUID, accountID, ticker string) *entities.AdjustedPosition {
	if c.client == nil {
		metrics.PositionCacheHits.WithLabelValues("bypass").Inc()
		return nil
	}

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.client.Get(ctx, positionKey(ownerID, accountID, ticker)).Result()
	})
	if err == redis.Nil {
		metrics.PositionCacheHits.WithLabelValues("miss").Inc()
		return nil
	}
	if err != nil {
		metrics.PositionCacheHits.WithLabelValues("error").Inc()
		c.logger.Debugw("position cache get failed", "error", err)
		return nil
	}

	var position entities.AdjustedPosition
	if err := json.Unmarshal([]byte(raw.(string)), &position); err != nil {
		metrics.PositionCacheHits.WithLabelValues("error").Inc()
		c.logger.Warnw("position cache entry corrupt, dropping", "error", err)
		c.Invalidate(ctx, ownerID, accountID, ticker)
		return nil
	}

	metrics.PositionCacheHits.WithLabelValues("hit").Inc()
	return &position
}

// Set stores a computed position under the cache TTL.
func (c *PositionsCache) Set(ctx context.Context, position *entities.AdjustedPosition) {
	if c.client == nil {
		return
	}

	data, err := json.Marshal(position)
	if err != nil {
		c.logger.Warnw("position cache marshal failed", "error", err)
		return
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		key := positionKey(position.OwnerID, position.AccountID, position.Ticker)
		return nil, c.client.Set(ctx, key, data, c.ttl).Err()
	})
	if err != nil {
		c.logger.Debugw("position cache set failed", "error", err)
	}
}

// Invalidate drops the cached position for one key. Writers call this after
// any commit that changes lots or adjustments for the key.
func (c *PositionsCache) Invalidate(ctx context.Context, ownerID uuid.UUID, accountID, ticker string) {
	if c.client == nil {
		return
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Del(ctx, positionKey(ownerID, accountID, ticker)).Err()
	})
	if err != nil {
		c.logger.Debugw("position cache invalidate failed", "error", err)
	}
}
