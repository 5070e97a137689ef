// Package ledger implements the FIFO cost-basis ledger: every buy appends a
// purchase lot, every sell consumes lots oldest-first and settles realized
// profit or loss against the lots' original cost basis.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lotledger/ledger_service/internal/domain/entities"
	"github.com/lotledger/ledger_service/internal/domain/repositories"
	apperrors "github.com/lotledger/ledger_service/pkg/errors"
	"github.com/lotledger/ledger_service/pkg/logger"
)

// moneyScale matches the entities package: divisions round half-even to 4
// decimal places.
const moneyScale = 4

var hundred = decimal.NewFromInt(100)

// Service is the FIFO ledger. It holds no state of its own; the lot store is
// the only shared mutable state and every mutating call is one transactional
// unit.
type Service struct {
	lots     repositories.LotRepository
	outcomes repositories.SellOutcomeRepository
	tx       repositories.TxRunner
	logger   *logger.Logger
}

// NewService creates a new FIFO ledger service
func NewService(
	lots repositories.LotRepository,
	outcomes repositories.SellOutcomeRepository,
	tx repositories.TxRunner,
	logger *logger.Logger,
) *Service {
	return &Service{
		lots:     lots,
		outcomes: outcomes,
		tx:       tx,
		logger:   logger,
	}
}

// BuyInput describes one purchase.
type BuyInput struct {
	OwnerID       uuid.UUID
	AccountID     string
	Ticker        string
	Quantity      int64
	PricePerShare decimal.Decimal
	Fee           decimal.Decimal
	TradeDate     time.Time
}

// SellInput describes one sale. TaxRatePercent is the selling tax in percent
// (e.g. 0.3 for 0.3%).
type SellInput struct {
	OwnerID        uuid.UUID
	AccountID      string
	Ticker         string
	Quantity       int64
	PricePerShare  decimal.Decimal
	Fee            decimal.Decimal
	TaxRatePercent decimal.Decimal
	TradeDate      time.Time
}

// RecordBuy creates one purchase lot. The buy fee is capitalized into the
// lot's total cost, so it flows into the cost basis of every future sale
// drawn from the lot.
func (s *Service) RecordBuy(ctx context.Context, in BuyInput) (*entities.PurchaseLot, error) {
	if err := validateBuy(in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	lot := &entities.PurchaseLot{
		ID:            uuid.New(),
		OwnerID:       in.OwnerID,
		AccountID:     in.AccountID,
		Ticker:        entities.NormalizeTicker(in.Ticker),
		PurchaseDate:  in.TradeDate,
		Quantity:      in.Quantity,
		Remaining:     in.Quantity,
		PricePerShare: in.PricePerShare,
		BuyFee:        in.Fee,
		TotalCost:     in.PricePerShare.Mul(decimal.NewFromInt(in.Quantity)).Add(in.Fee),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.lots.Create(ctx, lot); err != nil {
		return nil, err
	}

	s.logger.Infow("buy recorded",
		"lot_id", lot.ID.String(),
		"ticker", lot.Ticker,
		"quantity", lot.Quantity,
		"total_cost", lot.TotalCost.String(),
	)

	return lot, nil
}

// RecordSell consumes lots oldest-first and settles the sale. The lot
// decrements and the outcome commit as one unit; on any failure no lot is
// changed. Consumed cost is always charged at each lot's original unit cost,
// never an adjusted basis.
func (s *Service) RecordSell(ctx context.Context, in SellInput) (*entities.SellOutcome, error) {
	if err := validateSell(in); err != nil {
		return nil, err
	}

	key := repositories.LotKey{
		OwnerID:   in.OwnerID,
		AccountID: in.AccountID,
		Ticker:    entities.NormalizeTicker(in.Ticker),
	}

	var outcome *entities.SellOutcome
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		lots, err := s.lots.ListOpenForUpdate(ctx, key)
		if err != nil {
			return err
		}

		var available int64
		for _, lot := range lots {
			available += lot.Remaining
		}
		if available < in.Quantity {
			return apperrors.InsufficientLots(in.Quantity, available)
		}

		qty := decimal.NewFromInt(in.Quantity)
		gross := in.PricePerShare.Mul(qty)
		sellingTax := gross.Mul(in.TaxRatePercent).Div(hundred).RoundBank(moneyScale)
		netProceeds := gross.Sub(in.Fee).Sub(sellingTax)

		outcome = &entities.SellOutcome{
			ID:            uuid.New(),
			OwnerID:       in.OwnerID,
			AccountID:     in.AccountID,
			Ticker:        key.Ticker,
			SellDate:      in.TradeDate,
			Quantity:      in.Quantity,
			PricePerShare: in.PricePerShare,
			GrossValue:    gross,
			SellingTax:    sellingTax,
			Fee:           in.Fee,
			NetProceeds:   netProceeds,
			TotalCOGS:     decimal.Zero,
			CreatedAt:     time.Now().UTC(),
		}

		toSell := in.Quantity
		for _, lot := range lots {
			if toSell == 0 {
				break
			}
			consumed := lot.Remaining
			if consumed > toSell {
				consumed = toSell
			}

			unitCost := lot.UnitCost()
			cost := unitCost.Mul(decimal.NewFromInt(consumed))

			if err := s.lots.DecrementRemaining(ctx, lot.ID, consumed); err != nil {
				return err
			}

			outcome.Consumptions = append(outcome.Consumptions, entities.LotConsumption{
				LotID:    lot.ID,
				Quantity: consumed,
				UnitCost: unitCost,
				Cost:     cost,
			})
			outcome.TotalCOGS = outcome.TotalCOGS.Add(cost)
			toSell -= consumed
		}

		outcome.ProfitOrLoss = outcome.NetProceeds.Sub(outcome.TotalCOGS)

		return s.outcomes.Create(ctx, outcome)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("sell recorded",
		"outcome_id", outcome.ID.String(),
		"ticker", outcome.Ticker,
		"quantity", outcome.Quantity,
		"lots_consumed", len(outcome.Consumptions),
		"profit_or_loss", outcome.ProfitOrLoss.String(),
	)

	return outcome, nil
}

// ListLots returns the full lot history of a key for audit.
func (s *Service) ListLots(ctx context.Context, ownerID uuid.UUID, accountID, ticker string) ([]*entities.PurchaseLot, error) {
	key := repositories.LotKey{
		OwnerID:   ownerID,
		AccountID: accountID,
		Ticker:    entities.NormalizeTicker(ticker),
	}
	return s.lots.ListByKey(ctx, key)
}

func validateBuy(in BuyInput) error {
	if in.OwnerID == uuid.Nil {
		return apperrors.ValidationError("owner id is required")
	}
	if in.AccountID == "" {
		return apperrors.ValidationError("account id is required")
	}
	if entities.NormalizeTicker(in.Ticker) == "" {
		return apperrors.ValidationError("ticker is required")
	}
	if in.Quantity <= 0 {
		return apperrors.ValidationError("quantity must be positive")
	}
	if !in.PricePerShare.IsPositive() {
		return apperrors.ValidationError("price per share must be positive")
	}
	if in.Fee.IsNegative() {
		return apperrors.ValidationError("fee cannot be negative")
	}
	if in.TradeDate.IsZero() {
		return apperrors.ValidationError("trade date is required")
	}
	return nil
}

func validateSell(in SellInput) error {
	if err := validateBuy(BuyInput{
		OwnerID:       in.OwnerID,
		AccountID:     in.AccountID,
		Ticker:        in.Ticker,
		Quantity:      in.Quantity,
		PricePerShare: in.PricePerShare,
		Fee:           in.Fee,
		TradeDate:     in.TradeDate,
	}); err != nil {
		return err
	}
	if in.TaxRatePercent.IsNegative() {
		return apperrors.ValidationError("tax rate cannot be negative")
	}
	return nil
}
