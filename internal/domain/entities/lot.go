package entities

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseLot is one immutable purchase event plus its unsold remainder.
// TotalCost and Quantity are fixed at creation; Remaining only ever
// decreases, via FIFO consumption on a sell. Lots are never deleted and
// are retained for audit after they are fully consumed.
type PurchaseLot struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	OwnerID       uuid.UUID       `json:"owner_id" db:"owner_id"`
	AccountID     string          `json:"account_id" db:"account_id"`
	Ticker        string          `json:"ticker" db:"ticker"`
	PurchaseDate  time.Time       `json:"purchase_date" db:"purchase_date"`
	Quantity      int64           `json:"quantity" db:"quantity"`
	Remaining     int64           `json:"remaining" db:"remaining"`
	PricePerShare decimal.Decimal `json:"price_per_share" db:"price_per_share"`
	BuyFee        decimal.Decimal `json:"buy_fee" db:"buy_fee"`
	TotalCost     decimal.Decimal `json:"total_cost" db:"total_cost"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// UnitCost is the lot's original per-share cost basis: price plus the
// amortized buy fee. It never reflects corporate-action adjustments.
func (l *PurchaseLot) UnitCost() decimal.Decimal {
	if l.Quantity == 0 {
		return decimal.Zero
	}
	return l.TotalCost.Div(decimal.NewFromInt(l.Quantity)).RoundBank(moneyScale)
}

// LotConsumption records how much of one lot a single sell consumed.
type LotConsumption struct {
	LotID    uuid.UUID       `json:"lot_id" db:"lot_id"`
	Quantity int64           `json:"quantity" db:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	Cost     decimal.Decimal `json:"cost" db:"cost"`
}

// SellOutcome is the settlement record of one sell: proceeds math plus the
// FIFO consumption breakdown. It is persisted alongside the lot decrements
// in the same transactional unit.
type SellOutcome struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	OwnerID       uuid.UUID        `json:"owner_id" db:"owner_id"`
	AccountID     string           `json:"account_id" db:"account_id"`
	Ticker        string           `json:"ticker" db:"ticker"`
	SellDate      time.Time        `json:"sell_date" db:"sell_date"`
	Quantity      int64            `json:"quantity" db:"quantity"`
	PricePerShare decimal.Decimal  `json:"price_per_share" db:"price_per_share"`
	GrossValue    decimal.Decimal  `json:"gross_value" db:"gross_value"`
	SellingTax    decimal.Decimal  `json:"selling_tax" db:"selling_tax"`
	Fee           decimal.Decimal  `json:"fee" db:"fee"`
	NetProceeds   decimal.Decimal  `json:"net_proceeds" db:"net_proceeds"`
	TotalCOGS     decimal.Decimal  `json:"total_cogs" db:"total_cogs"`
	ProfitOrLoss  decimal.Decimal  `json:"profit_or_loss" db:"profit_or_loss"`
	Consumptions  []LotConsumption `json:"consumptions" db:"-"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}

// moneyScale is the fixed-point scale applied wherever a division happens.
// Rounding is half-even.
const moneyScale = 4

// NormalizeTicker canonicalizes a ticker symbol for keying.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
