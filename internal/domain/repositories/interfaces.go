package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lotledger/ledger_service/internal/domain/entities"
)

// LotKey identifies the (owner, account, ticker) partition that lots and
// adjustments share. The association between the two stores is computed at
// read time; it is never stored as a foreign key.
type LotKey struct {
	OwnerID   uuid.UUID
	AccountID string
	Ticker    string
}

// LotRepository persists purchase lots.
//
// List methods return lots ordered by purchase date ascending with lot id as
// the tie-break; the FIFO ledger depends on that ordering being
// deterministic.
type LotRepository interface {
	Create(ctx context.Context, lot *entities.PurchaseLot) error

	// ListOpen returns the lots of a key with remaining > 0.
	ListOpen(ctx context.Context, key LotKey) ([]*entities.PurchaseLot, error)

	// ListOpenForUpdate is ListOpen with pessimistic row locks held for the
	// duration of the surrounding transactional unit. Must be called inside
	// one.
	ListOpenForUpdate(ctx context.Context, key LotKey) ([]*entities.PurchaseLot, error)

	// DecrementRemaining reduces a lot's remaining quantity by the given
	// number of shares. Remaining never goes below zero; the repository
	// rejects a decrement that would.
	DecrementRemaining(ctx context.Context, lotID uuid.UUID, shares int64) error

	// ListByKey returns every lot of a key, consumed ones included, for audit.
	ListByKey(ctx context.Context, key LotKey) ([]*entities.PurchaseLot, error)

	// ListOpenByOwner returns all open lots of an owner, optionally narrowed
	// to one account.
	ListOpenByOwner(ctx context.Context, ownerID uuid.UUID, accountID *string) ([]*entities.PurchaseLot, error)

	// ListHeldKeys returns every key that currently has open lots.
	ListHeldKeys(ctx context.Context) ([]LotKey, error)
}

// AdjustmentRepository persists corporate-action adjustments.
type AdjustmentRepository interface {
	Create(ctx context.Context, adj *entities.CorporateActionAdjustment) error

	// ListActive returns the active adjustments of a key ordered by event
	// date ascending, id as tie-break. A non-nil asOf restricts to events on
	// or before that date.
	ListActive(ctx context.Context, key LotKey, asOf *time.Time) ([]*entities.CorporateActionAdjustment, error)

	// List returns every adjustment of a key, inactive ones included.
	List(ctx context.Context, key LotKey) ([]*entities.CorporateActionAdjustment, error)

	Deactivate(ctx context.Context, ownerID, id uuid.UUID) error
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
}

// SellOutcomeRepository persists sell settlement records and their per-lot
// consumption breakdown.
type SellOutcomeRepository interface {
	Create(ctx context.Context, outcome *entities.SellOutcome) error
}

// FeeRepository is the fee ledger sink. The cash dividend intake writes one
// DIVIDEND_TAX record per event through it.
type FeeRepository interface {
	Create(ctx context.Context, fee *entities.FeeRecord) error
}

// TxRunner executes fn as one all-or-nothing transactional unit. Repository
// calls made with the context fn receives run inside that unit; a returned
// error rolls everything back. Lock and serialization failures surface as
// ConcurrencyConflict errors, safe to retry whole.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
