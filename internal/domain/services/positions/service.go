// Package positions folds open lots into per-ticker display summaries.
//
// The cost figures here are a weighted-average approximation: a sold share
// reduces cost proportionally, not by the exact FIFO cost the ledger charged
// it at settlement. The divergence is deliberate — FIFO stays authoritative
// for realized P&L, this view exists for display — and is not reconciled.
package positions

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lotledger/ledger_service/internal/domain/entities"
	"github.com/lotledger/ledger_service/internal/domain/repositories"
	"github.com/lotledger/ledger_service/pkg/logger"
)

const moneyScale = 4

// Service is the position aggregator.
type Service struct {
	lots   repositories.LotRepository
	logger *logger.Logger
}

// NewService creates a new position aggregator
func NewService(lots repositories.LotRepository, logger *logger.Logger) *Service {
	return &Service{lots: lots, logger: logger}
}

// Aggregate folds an owner's open lots into one entry per (account, ticker),
// optionally narrowed to one account. Lots replay in purchase-date order:
// each buy adds its quantity and cost, and the shares already sold out of it
// reduce the running cost proportionally. Zero-quantity positions are
// dropped.
func (s *Service) Aggregate(ctx context.Context, ownerID uuid.UUID, accountID *string) ([]*entities.Position, error) {
	lots, err := s.lots.ListOpenByOwner(ctx, ownerID, accountID)
	if err != nil {
		return nil, err
	}

	type bucketKey struct {
		account string
		ticker  string
	}
	type running struct {
		quantity int64
		cost     decimal.Decimal
	}
	buckets := make(map[bucketKey]*running)

	// Lots arrive in purchase-date order per key already; the map fold keeps
	// that order within each bucket.
	for _, lot := range lots {
		k := bucketKey{account: lot.AccountID, ticker: lot.Ticker}
		b := buckets[k]
		if b == nil {
			b = &running{cost: decimal.Zero}
			buckets[k] = b
		}

		b.quantity += lot.Quantity
		b.cost = b.cost.Add(lot.TotalCost)

		sold := lot.Quantity - lot.Remaining
		if sold > 0 && b.quantity > 0 {
			reduction := b.cost.
				Mul(decimal.NewFromInt(sold)).
				Div(decimal.NewFromInt(b.quantity)).
				RoundBank(moneyScale)
			b.cost = b.cost.Sub(reduction)
			b.quantity -= sold
		}
	}

	positions := make([]*entities.Position, 0, len(buckets))
	for k, b := range buckets {
		if b.quantity == 0 {
			continue
		}
		avg := b.cost.Div(decimal.NewFromInt(b.quantity)).RoundBank(moneyScale)
		positions = append(positions, &entities.Position{
			OwnerID:     ownerID,
			AccountID:   k.account,
			Ticker:      k.ticker,
			Quantity:    b.quantity,
			TotalCost:   b.cost,
			AverageCost: avg,
		})
	}

	sort.Slice(positions, func(i, j int) bool {
		if positions[i].AccountID != positions[j].AccountID {
			return positions[i].AccountID < positions[j].AccountID
		}
		return positions[i].Ticker < positions[j].Ticker
	})

	return positions, nil
}
