package entities

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position is the display-oriented net position for one (account, ticker)
// pair. Cost here is a weighted-average approximation; the FIFO ledger's
// per-sale COGS is the authoritative figure for realized P&L.
type Position struct {
	OwnerID     uuid.UUID       `json:"owner_id"`
	AccountID   string          `json:"account_id"`
	Ticker      string          `json:"ticker"`
	Quantity    int64           `json:"quantity"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	AverageCost decimal.Decimal `json:"average_cost"`
}
