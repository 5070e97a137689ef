// Package adjustments derives the corporate-action adjusted view of held
// lots and handles dividend/split intake. The adjusted view is recomputed on
// every read and never written back: stored lots keep their original cost
// basis, and realized P&L already settled by the FIFO ledger is never
// revised.
package adjustments

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lotledger/ledger_service/internal/domain/entities"
	"github.com/lotledger/ledger_service/internal/domain/repositories"
	apperrors "github.com/lotledger/ledger_service/pkg/errors"
	"github.com/lotledger/ledger_service/pkg/logger"
)

const moneyScale = 4

var one = decimal.NewFromInt(1)

// Service is the adjustment engine.
type Service struct {
	adjustments repositories.AdjustmentRepository
	lots        repositories.LotRepository
	fees        repositories.FeeRepository
	tx          repositories.TxRunner
	logger      *logger.Logger
}

// NewService creates a new adjustment engine
func NewService(
	adjustments repositories.AdjustmentRepository,
	lots repositories.LotRepository,
	fees repositories.FeeRepository,
	tx repositories.TxRunner,
	logger *logger.Logger,
) *Service {
	return &Service{
		adjustments: adjustments,
		lots:        lots,
		fees:        fees,
		tx:          tx,
		logger:      logger,
	}
}

// ApplyAdjustments folds the active adjustments into a derived view of the
// given lots. Pure: no persistence, no mutation of the inputs.
//
// Per lot, adjustments with an event date on or after the purchase date
// apply, in event-date order with id as tie-break; the input slice may
// arrive in any order and is not modified. Cash dividends reduce the
// running total cost by remaining-at-that-step times the per-share amount
// and may drive it negative. Stock dividends and splits floor the share
// counts, never manufacturing fractional shares, and leave total cost
// unchanged.
func ApplyAdjustments(lots []*entities.PurchaseLot, adjustments []*entities.CorporateActionAdjustment) []*entities.AdjustedLot {
	ordered := make([]*entities.CorporateActionAdjustment, len(adjustments))
	copy(ordered, adjustments)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].EventDate.Equal(ordered[j].EventDate) {
			return ordered[i].EventDate.Before(ordered[j].EventDate)
		}
		return ordered[i].ID.String() < ordered[j].ID.String()
	})

	adjusted := make([]*entities.AdjustedLot, 0, len(lots))
	for _, lot := range lots {
		quantity := lot.Quantity
		remaining := lot.Remaining
		totalCost := lot.TotalCost
		applied := 0

		for _, adj := range ordered {
			if !adj.Active || adj.EventDate.Before(lot.PurchaseDate) {
				continue
			}
			switch adj.Kind {
			case entities.AdjustmentCashDividend:
				dividend := adj.DividendPerShare.Mul(decimal.NewFromInt(remaining))
				totalCost = totalCost.Sub(dividend)
			case entities.AdjustmentStockDividend, entities.AdjustmentStockSplit:
				quantity = scaleShares(quantity, *adj.Ratio)
				remaining = scaleShares(remaining, *adj.Ratio)
			default:
				continue
			}
			applied++
		}

		costPerShare := decimal.Zero
		if quantity > 0 {
			costPerShare = totalCost.Div(decimal.NewFromInt(quantity)).RoundBank(moneyScale)
		}

		adjusted = append(adjusted, &entities.AdjustedLot{
			LotID:              lot.ID,
			Ticker:             lot.Ticker,
			PurchaseDate:       lot.PurchaseDate,
			Quantity:           quantity,
			Remaining:          remaining,
			TotalCost:          totalCost,
			CostPerShare:       costPerShare,
			AdjustmentsApplied: applied,
		})
	}
	return adjusted
}

// scaleShares multiplies a share count by a ratio and floors the result.
func scaleShares(shares int64, ratio decimal.Decimal) int64 {
	return decimal.NewFromInt(shares).Mul(ratio).Floor().IntPart()
}

// CalculateAdjustedPosition sums the adjusted view over every open lot of
// the key. With no open lots it returns a zero-valued position rather than
// an error. The result is only as fresh as the snapshot it reads; it is not
// serialized against concurrent buys and sells.
func (s *Service) CalculateAdjustedPosition(ctx context.Context, ownerID uuid.UUID, accountID, ticker string, asOf *time.Time) (*entities.AdjustedPosition, error) {
	key := repositories.LotKey{
		OwnerID:   ownerID,
		AccountID: accountID,
		Ticker:    entities.NormalizeTicker(ticker),
	}

	position := &entities.AdjustedPosition{
		OwnerID:     ownerID,
		AccountID:   accountID,
		Ticker:      key.Ticker,
		TotalCost:   decimal.Zero,
		AverageCost: decimal.Zero,
		AsOf:        asOf,
	}

	lots, err := s.lots.ListOpen(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(lots) == 0 {
		return position, nil
	}

	adjustments, err := s.adjustments.ListActive(ctx, key, asOf)
	if err != nil {
		return nil, err
	}

	for _, al := range ApplyAdjustments(lots, adjustments) {
		position.Quantity += al.Remaining
		position.TotalCost = position.TotalCost.Add(al.TotalCost)
		position.AdjustmentsApplied += al.AdjustmentsApplied
	}

	if position.Quantity > 0 {
		position.AverageCost = position.TotalCost.
			Div(decimal.NewFromInt(position.Quantity)).
			RoundBank(moneyScale)
	}

	return position, nil
}

// ListAdjustedLots returns the per-lot adjusted view of a key. A key with no
// purchase lots is a reported domain error, not an empty success.
func (s *Service) ListAdjustedLots(ctx context.Context, ownerID uuid.UUID, accountID, ticker string, asOf *time.Time) ([]*entities.AdjustedLot, error) {
	key := repositories.LotKey{
		OwnerID:   ownerID,
		AccountID: accountID,
		Ticker:    entities.NormalizeTicker(ticker),
	}

	lots, err := s.lots.ListOpen(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(lots) == 0 {
		return nil, apperrors.NotFound("purchase lots for ticker")
	}

	adjustments, err := s.adjustments.ListActive(ctx, key, asOf)
	if err != nil {
		return nil, err
	}

	return ApplyAdjustments(lots, adjustments), nil
}

// CashDividendInput describes a cash dividend event. TaxRate is the
// withholding rate in [0, 1].
type CashDividendInput struct {
	OwnerID          uuid.UUID
	AccountID        string
	Ticker           string
	EventDate        time.Time
	DividendPerShare decimal.Decimal
	TaxRate          decimal.Decimal
	Description      string
	ExternalRef      *string
}

// RatioInput describes a stock dividend or split event with one
// multiplicative ratio.
type RatioInput struct {
	OwnerID     uuid.UUID
	AccountID   string
	Ticker      string
	EventDate   time.Time
	Ratio       decimal.Decimal
	Description string
	ExternalRef *string
}

// ProcessCashDividend records a cash dividend adjustment and its companion
// DIVIDEND_TAX fee record; the two commit atomically. Purchase lots are read
// to size the withheld tax but never modified. Not idempotent: a repeated
// call creates a duplicate adjustment — dedup, if wanted, is the caller's
// job, e.g. keyed by external reference.
func (s *Service) ProcessCashDividend(ctx context.Context, in CashDividendInput) (*entities.CorporateActionAdjustment, error) {
	if err := validateKey(in.OwnerID, in.AccountID, in.Ticker, in.EventDate); err != nil {
		return nil, err
	}
	if !in.DividendPerShare.IsPositive() {
		return nil, apperrors.ValidationError("dividend per share must be positive")
	}
	if in.TaxRate.IsNegative() || in.TaxRate.GreaterThan(one) {
		return nil, apperrors.ValidationError("tax rate must be between 0 and 1")
	}

	key := repositories.LotKey{
		OwnerID:   in.OwnerID,
		AccountID: in.AccountID,
		Ticker:    entities.NormalizeTicker(in.Ticker),
	}

	heldShares, err := s.heldShares(ctx, key)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	dividendPerShare := in.DividendPerShare
	taxRate := in.TaxRate
	adj := &entities.CorporateActionAdjustment{
		ID:               uuid.New(),
		OwnerID:          in.OwnerID,
		AccountID:        in.AccountID,
		Ticker:           key.Ticker,
		Kind:             entities.AdjustmentCashDividend,
		EventDate:        in.EventDate,
		DividendPerShare: &dividendPerShare,
		TaxRate:          &taxRate,
		Active:           true,
		Description:      in.Description,
		ExternalRef:      in.ExternalRef,
		CreatedAt:        now,
	}

	withheldTax := in.DividendPerShare.
		Mul(decimal.NewFromInt(heldShares)).
		Mul(in.TaxRate).
		RoundBank(moneyScale)
	fee := &entities.FeeRecord{
		ID:          uuid.New(),
		OwnerID:     in.OwnerID,
		AccountID:   in.AccountID,
		Kind:        entities.FeeDividendTax,
		Amount:      withheldTax,
		FeeDate:     in.EventDate,
		Description: "withheld dividend tax for " + key.Ticker,
		CreatedAt:   now,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.adjustments.Create(ctx, adj); err != nil {
			return err
		}
		return s.fees.Create(ctx, fee)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("cash dividend processed",
		"adjustment_id", adj.ID.String(),
		"ticker", adj.Ticker,
		"dividend_per_share", in.DividendPerShare.String(),
		"withheld_tax", withheldTax.String(),
	)

	return adj, nil
}

// ProcessStockDividend records a stock dividend adjustment.
func (s *Service) ProcessStockDividend(ctx context.Context, in RatioInput) (*entities.CorporateActionAdjustment, error) {
	return s.processRatio(ctx, entities.AdjustmentStockDividend, in)
}

// ProcessStockSplit records a stock split adjustment.
func (s *Service) ProcessStockSplit(ctx context.Context, in RatioInput) (*entities.CorporateActionAdjustment, error) {
	return s.processRatio(ctx, entities.AdjustmentStockSplit, in)
}

func (s *Service) processRatio(ctx context.Context, kind entities.AdjustmentKind, in RatioInput) (*entities.CorporateActionAdjustment, error) {
	if err := validateKey(in.OwnerID, in.AccountID, in.Ticker, in.EventDate); err != nil {
		return nil, err
	}
	if !in.Ratio.IsPositive() {
		return nil, apperrors.ValidationError("ratio must be positive")
	}

	key := repositories.LotKey{
		OwnerID:   in.OwnerID,
		AccountID: in.AccountID,
		Ticker:    entities.NormalizeTicker(in.Ticker),
	}

	if _, err := s.heldShares(ctx, key); err != nil {
		return nil, err
	}

	ratio := in.Ratio
	adj := &entities.CorporateActionAdjustment{
		ID:          uuid.New(),
		OwnerID:     in.OwnerID,
		AccountID:   in.AccountID,
		Ticker:      key.Ticker,
		Kind:        kind,
		EventDate:   in.EventDate,
		Ratio:       &ratio,
		Active:      true,
		Description: in.Description,
		ExternalRef: in.ExternalRef,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.adjustments.Create(ctx, adj); err != nil {
		return nil, err
	}

	s.logger.Infow("corporate action processed",
		"adjustment_id", adj.ID.String(),
		"kind", kind,
		"ticker", adj.Ticker,
		"ratio", in.Ratio.String(),
	)

	return adj, nil
}

// ListAdjustments returns every adjustment of a key, inactive ones included.
func (s *Service) ListAdjustments(ctx context.Context, ownerID uuid.UUID, accountID, ticker string) ([]*entities.CorporateActionAdjustment, error) {
	key := repositories.LotKey{
		OwnerID:   ownerID,
		AccountID: accountID,
		Ticker:    entities.NormalizeTicker(ticker),
	}
	return s.adjustments.List(ctx, key)
}

// DeactivateAdjustment excludes an adjustment from derived calculations
// without deleting the record.
func (s *Service) DeactivateAdjustment(ctx context.Context, ownerID, id uuid.UUID) error {
	return s.adjustments.Deactivate(ctx, ownerID, id)
}

// DeleteAdjustment removes an adjustment permanently.
func (s *Service) DeleteAdjustment(ctx context.Context, ownerID, id uuid.UUID) error {
	return s.adjustments.Delete(ctx, ownerID, id)
}

// heldShares sums the open shares of a key. Intake for a key without lots
// is a reported domain error.
func (s *Service) heldShares(ctx context.Context, key repositories.LotKey) (int64, error) {
	lots, err := s.lots.ListOpen(ctx, key)
	if err != nil {
		return 0, err
	}
	var held int64
	for _, lot := range lots {
		held += lot.Remaining
	}
	if held == 0 {
		return 0, apperrors.NotFound("purchase lots for ticker")
	}
	return held, nil
}

func validateKey(ownerID uuid.UUID, accountID, ticker string, eventDate time.Time) error {
	if ownerID == uuid.Nil {
		return apperrors.ValidationError("owner id is required")
	}
	if accountID == "" {
		return apperrors.ValidationError("account id is required")
	}
	if entities.NormalizeTicker(ticker) == "" {
		return apperrors.ValidationError("ticker is required")
	}
	if eventDate.IsZero() {
		return apperrors.ValidationError("event date is required")
	}
	return nil
}
