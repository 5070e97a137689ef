package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeeKind identifies a fee ledger entry type.
type FeeKind string

const (
	FeeDividendTax FeeKind = "DIVIDEND_TAX"
)

// FeeRecord is an entry in the fee ledger. The cash dividend intake writes
// one per event for the withheld tax; downstream display is not this
// service's concern.
type FeeRecord struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	OwnerID     uuid.UUID       `json:"owner_id" db:"owner_id"`
	AccountID   string          `json:"account_id" db:"account_id"`
	Kind        FeeKind         `json:"kind" db:"kind"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	FeeDate     time.Time       `json:"fee_date" db:"fee_date"`
	Description string          `json:"description" db:"description"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
