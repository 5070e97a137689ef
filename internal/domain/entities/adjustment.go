package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdjustmentKind identifies a corporate-action type.
type AdjustmentKind string

const (
	AdjustmentCashDividend  AdjustmentKind = "CASH_DIVIDEND"
	AdjustmentStockDividend AdjustmentKind = "STOCK_DIVIDEND"
	AdjustmentStockSplit    AdjustmentKind = "STOCK_SPLIT"
)

// CorporateActionAdjustment is one corporate-action event for a
// (owner, account, ticker) key. The payload depends on the kind: cash
// dividends carry a per-share amount plus withholding tax rate, stock
// dividends and splits carry a single multiplicative ratio. Adjustments are
// created by intake, may be deactivated or deleted, and are never otherwise
// mutated. Deactivated adjustments are excluded from every derived view.
type CorporateActionAdjustment struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	OwnerID          uuid.UUID        `json:"owner_id" db:"owner_id"`
	AccountID        string           `json:"account_id" db:"account_id"`
	Ticker           string           `json:"ticker" db:"ticker"`
	Kind             AdjustmentKind   `json:"kind" db:"kind"`
	EventDate        time.Time        `json:"event_date" db:"event_date"`
	DividendPerShare *decimal.Decimal `json:"dividend_per_share,omitempty" db:"dividend_per_share"`
	TaxRate          *decimal.Decimal `json:"tax_rate,omitempty" db:"tax_rate"`
	Ratio            *decimal.Decimal `json:"ratio,omitempty" db:"ratio"`
	Active           bool             `json:"active" db:"active"`
	Description      string           `json:"description" db:"description"`
	ExternalRef      *string          `json:"external_ref,omitempty" db:"external_ref"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

// AdjustedLot is a derived, read-only view of a lot with all applicable
// active adjustments folded in. Stored lots are never mutated by this view.
// TotalCost may be negative after large cash dividends.
type AdjustedLot struct {
	LotID              uuid.UUID       `json:"lot_id"`
	Ticker             string          `json:"ticker"`
	PurchaseDate       time.Time       `json:"purchase_date"`
	Quantity           int64           `json:"quantity"`
	Remaining          int64           `json:"remaining"`
	TotalCost          decimal.Decimal `json:"total_cost"`
	CostPerShare       decimal.Decimal `json:"cost_per_share"`
	AdjustmentsApplied int             `json:"adjustments_applied"`
}

// AdjustedPosition is the summed adjusted view over every open lot of a key.
type AdjustedPosition struct {
	OwnerID            uuid.UUID       `json:"owner_id"`
	AccountID          string          `json:"account_id"`
	Ticker             string          `json:"ticker"`
	Quantity           int64           `json:"quantity"`
	TotalCost          decimal.Decimal `json:"total_cost"`
	AverageCost        decimal.Decimal `json:"average_cost"`
	AdjustmentsApplied int             `json:"adjustments_applied"`
	AsOf               *time.Time      `json:"as_of,omitempty"`
}
