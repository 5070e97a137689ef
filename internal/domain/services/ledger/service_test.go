package ledger

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotledger/ledger_service/internal/domain/entities"
	"github.com/lotledger/ledger_service/internal/domain/repositories"
	apperrors "github.com/lotledger/ledger_service/pkg/errors"
	"github.com/lotledger/ledger_service/pkg/logger"
)

// fakeLotStore is an in-memory LotRepository that preserves the FIFO
// ordering contract of the real repository.
type fakeLotStore struct {
	lots []*entities.PurchaseLot
}

func (s *fakeLotStore) Create(_ context.Context, lot *entities.PurchaseLot) error {
	s.lots = append(s.lots, lot)
	return nil
}

func (s *fakeLotStore) sorted(key repositories.LotKey, openOnly bool) []*entities.PurchaseLot {
	var out []*entities.PurchaseLot
	for _, lot := range s.lots {
		if lot.OwnerID != key.OwnerID || lot.AccountID != key.AccountID || lot.Ticker != key.Ticker {
			continue
		}
		if openOnly && lot.Remaining == 0 {
			continue
		}
		out = append(out, lot)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PurchaseDate.Equal(out[j].PurchaseDate) {
			return out[i].PurchaseDate.Before(out[j].PurchaseDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (s *fakeLotStore) ListOpen(_ context.Context, key repositories.LotKey) ([]*entities.PurchaseLot, error) {
	return s.sorted(key, true), nil
}

func (s *fakeLotStore) ListOpenForUpdate(ctx context.Context, key repositories.LotKey) ([]*entities.PurchaseLot, error) {
	return s.ListOpen(ctx, key)
}

func (s *fakeLotStore) DecrementRemaining(_ context.Context, lotID uuid.UUID, shares int64) error {
	for _, lot := range s.lots {
		if lot.ID == lotID {
			if lot.Remaining < shares {
				return apperrors.ConcurrencyConflict(nil)
			}
			lot.Remaining -= shares
			return nil
		}
	}
	return apperrors.NotFound("purchase lot")
}

func (s *fakeLotStore) ListByKey(_ context.Context, key repositories.LotKey) ([]*entities.PurchaseLot, error) {
	return s.sorted(key, false), nil
}

func (s *fakeLotStore) ListOpenByOwner(_ context.Context, ownerID uuid.UUID, accountID *string) ([]*entities.PurchaseLot, error) {
	var out []*entities.PurchaseLot
	for _, lot := range s.lots {
		if lot.OwnerID != ownerID || lot.Remaining == 0 {
			continue
		}
		if accountID != nil && lot.AccountID != *accountID {
			continue
		}
		out = append(out, lot)
	}
	return out, nil
}

func (s *fakeLotStore) ListHeldKeys(_ context.Context) ([]repositories.LotKey, error) {
	seen := map[repositories.LotKey]bool{}
	var keys []repositories.LotKey
	for _, lot := range s.lots {
		if lot.Remaining == 0 {
			continue
		}
		key := repositories.LotKey{OwnerID: lot.OwnerID, AccountID: lot.AccountID, Ticker: lot.Ticker}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys, nil
}

type fakeOutcomeStore struct {
	outcomes []*entities.SellOutcome
}

func (s *fakeOutcomeStore) Create(_ context.Context, outcome *entities.SellOutcome) error {
	s.outcomes = append(s.outcomes, outcome)
	return nil
}

// passthroughTx runs the unit inline; rollback semantics are covered by the
// repository integration path, not here.
type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService() (*Service, *fakeLotStore, *fakeOutcomeStore) {
	lots := &fakeLotStore{}
	outcomes := &fakeOutcomeStore{}
	svc := NewService(lots, outcomes, passthroughTx{}, logger.NewNop())
	return svc, lots, outcomes
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustBuy(t *testing.T, svc *Service, in BuyInput) *entities.PurchaseLot {
	t.Helper()
	lot, err := svc.RecordBuy(context.Background(), in)
	require.NoError(t, err)
	return lot
}

func TestRecordBuy_Success(t *testing.T) {
	svc, _, _ := newTestService()
	ownerID := uuid.New()

	lot, err := svc.RecordBuy(context.Background(), BuyInput{
		OwnerID:       ownerID,
		AccountID:     "acct-1",
		Ticker:        "aapl",
		Quantity:      100,
		PricePerShare: decimal.NewFromInt(100000),
		Fee:           decimal.NewFromInt(10000),
		TradeDate:     date(2026, 1, 5),
	})

	require.NoError(t, err)
	assert.Equal(t, "AAPL", lot.Ticker)
	assert.Equal(t, int64(100), lot.Quantity)
	assert.Equal(t, int64(100), lot.Remaining)
	assert.True(t, lot.TotalCost.Equal(decimal.NewFromInt(10010000)), "total cost %s", lot.TotalCost)
	assert.True(t, lot.UnitCost().Equal(decimal.NewFromInt(100100)), "unit cost %s", lot.UnitCost())
}

func TestRecordBuy_ValidationFailures(t *testing.T) {
	svc, lots, _ := newTestService()
	valid := BuyInput{
		OwnerID:       uuid.New(),
		AccountID:     "acct-1",
		Ticker:        "AAPL",
		Quantity:      10,
		PricePerShare: decimal.NewFromInt(100),
		TradeDate:     date(2026, 1, 5),
	}

	cases := map[string]func(in *BuyInput){
		"zero quantity":     func(in *BuyInput) { in.Quantity = 0 },
		"negative quantity": func(in *BuyInput) { in.Quantity = -5 },
		"zero price":        func(in *BuyInput) { in.PricePerShare = decimal.Zero },
		"negative fee":      func(in *BuyInput) { in.Fee = decimal.NewFromInt(-1) },
		"missing ticker":    func(in *BuyInput) { in.Ticker = "  " },
		"missing account":   func(in *BuyInput) { in.AccountID = "" },
		"missing owner":     func(in *BuyInput) { in.OwnerID = uuid.Nil },
		"zero trade date":   func(in *BuyInput) { in.TradeDate = time.Time{} },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid
			mutate(&in)
			_, err := svc.RecordBuy(context.Background(), in)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))
		})
	}

	assert.Empty(t, lots.lots, "validation failures must persist nothing")
}

func TestRecordSell_InsufficientLots(t *testing.T) {
	svc, lots, outcomes := newTestService()
	ownerID := uuid.New()

	mustBuy(t, svc, BuyInput{
		OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 10, PricePerShare: decimal.NewFromInt(100), TradeDate: date(2026, 1, 5),
	})

	_, err := svc.RecordSell(context.Background(), SellInput{
		OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 15, PricePerShare: decimal.NewFromInt(120), TradeDate: date(2026, 2, 1),
	})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInsufficientLots))
	assert.Contains(t, err.Error(), "requested 15 shares, 10 available")

	// No lot changed, nothing settled.
	assert.Equal(t, int64(10), lots.lots[0].Remaining)
	assert.Empty(t, outcomes.outcomes)
}

func TestRecordSell_InsufficientLots_NoLotsAtAll(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.RecordSell(context.Background(), SellInput{
		OwnerID: uuid.New(), AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 1, PricePerShare: decimal.NewFromInt(120), TradeDate: date(2026, 2, 1),
	})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInsufficientLots))
	assert.Contains(t, err.Error(), "requested 1 shares, 0 available")
}

func TestRecordSell_FIFOOrder(t *testing.T) {
	svc, _, _ := newTestService()
	ownerID := uuid.New()

	lot1 := mustBuy(t, svc, BuyInput{
		OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 10, PricePerShare: decimal.NewFromInt(100), TradeDate: date(2026, 1, 1),
	})
	lot2 := mustBuy(t, svc, BuyInput{
		OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 10, PricePerShare: decimal.NewFromInt(110), TradeDate: date(2026, 1, 2),
	})
	lot3 := mustBuy(t, svc, BuyInput{
		OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 10, PricePerShare: decimal.NewFromInt(120), TradeDate: date(2026, 1, 3),
	})

	outcome, err := svc.RecordSell(context.Background(), SellInput{
		OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 15, PricePerShare: decimal.NewFromInt(130), TradeDate: date(2026, 2, 1),
	})

	require.NoError(t, err)
	require.Len(t, outcome.Consumptions, 2)
	assert.Equal(t, lot1.ID, outcome.Consumptions[0].LotID)
	assert.Equal(t, int64(10), outcome.Consumptions[0].Quantity)
	assert.Equal(t, lot2.ID, outcome.Consumptions[1].LotID)
	assert.Equal(t, int64(5), outcome.Consumptions[1].Quantity)

	assert.Equal(t, int64(0), lot1.Remaining)
	assert.Equal(t, int64(5), lot2.Remaining)
	assert.Equal(t, int64(10), lot3.Remaining, "newest lot untouched while an older one has remainder")
}

func TestRecordSell_FIFOTieBreakOnID(t *testing.T) {
	svc, _, _ := newTestService()
	ownerID := uuid.New()
	sameDay := date(2026, 1, 1)

	a := mustBuy(t, svc, BuyInput{
		OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 10, PricePerShare: decimal.NewFromInt(100), TradeDate: sameDay,
	})
	b := mustBuy(t, svc, BuyInput{
		OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 10, PricePerShare: decimal.NewFromInt(110), TradeDate: sameDay,
	})
	first, second := a, b
	if b.ID.String() < a.ID.String() {
		first, second = b, a
	}

	outcome, err := svc.RecordSell(context.Background(), SellInput{
		OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 12, PricePerShare: decimal.NewFromInt(130), TradeDate: date(2026, 2, 1),
	})

	require.NoError(t, err)
	require.Len(t, outcome.Consumptions, 2)
	assert.Equal(t, first.ID, outcome.Consumptions[0].LotID)
	assert.Equal(t, int64(10), outcome.Consumptions[0].Quantity)
	assert.Equal(t, second.ID, outcome.Consumptions[1].LotID)
	assert.Equal(t, int64(2), outcome.Consumptions[1].Quantity)
}

func TestRecordSell_EndToEnd(t *testing.T) {
	svc, _, _ := newTestService()
	ownerID := uuid.New()

	mustBuy(t, svc, BuyInput{
		OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 100, PricePerShare: decimal.NewFromInt(100000),
		Fee: decimal.NewFromInt(10000), TradeDate: date(2026, 1, 5),
	})
	mustBuy(t, svc, BuyInput{
		OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 100, PricePerShare: decimal.NewFromInt(110000),
		Fee: decimal.NewFromInt(10000), TradeDate: date(2026, 2, 5),
	})

	outcome, err := svc.RecordSell(context.Background(), SellInput{
		OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 150, PricePerShare: decimal.NewFromInt(120000),
		Fee: decimal.NewFromInt(15000), TradeDate: date(2026, 3, 1),
	})

	require.NoError(t, err)
	assert.True(t, outcome.GrossValue.Equal(decimal.NewFromInt(18000000)), "gross %s", outcome.GrossValue)
	assert.True(t, outcome.SellingTax.IsZero())
	assert.True(t, outcome.NetProceeds.Equal(decimal.NewFromInt(17985000)), "net proceeds %s", outcome.NetProceeds)
	assert.True(t, outcome.TotalCOGS.Equal(decimal.NewFromInt(15515000)), "cogs %s", outcome.TotalCOGS)
	assert.True(t, outcome.ProfitOrLoss.Equal(decimal.NewFromInt(2470000)), "p&l %s", outcome.ProfitOrLoss)

	require.Len(t, outcome.Consumptions, 2)
	assert.True(t, outcome.Consumptions[0].Cost.Equal(decimal.NewFromInt(10010000)))
	assert.True(t, outcome.Consumptions[1].Cost.Equal(decimal.NewFromInt(5505000)))
}

func TestRecordSell_SellingTax(t *testing.T) {
	svc, _, _ := newTestService()
	ownerID := uuid.New()

	mustBuy(t, svc, BuyInput{
		OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 100, PricePerShare: decimal.NewFromInt(1000), TradeDate: date(2026, 1, 5),
	})

	outcome, err := svc.RecordSell(context.Background(), SellInput{
		OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 100, PricePerShare: decimal.NewFromInt(1000),
		Fee:            decimal.NewFromInt(50),
		TaxRatePercent: decimal.NewFromFloat(0.3),
		TradeDate:      date(2026, 2, 1),
	})

	require.NoError(t, err)
	// gross 100,000; tax 0.3% = 300; net = 100,000 - 50 - 300
	assert.True(t, outcome.SellingTax.Equal(decimal.NewFromInt(300)), "tax %s", outcome.SellingTax)
	assert.True(t, outcome.NetProceeds.Equal(decimal.NewFromInt(99650)), "net %s", outcome.NetProceeds)
}

func TestConservation_AcrossSells(t *testing.T) {
	svc, lots, _ := newTestService()
	ownerID := uuid.New()

	mustBuy(t, svc, BuyInput{
		OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 30, PricePerShare: decimal.NewFromInt(100), TradeDate: date(2026, 1, 1),
	})
	mustBuy(t, svc, BuyInput{
		OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 20, PricePerShare: decimal.NewFromInt(110), TradeDate: date(2026, 1, 2),
	})

	var totalSold int64
	for _, qty := range []int64{10, 25, 5} {
		_, err := svc.RecordSell(context.Background(), SellInput{
			OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
			Quantity: qty, PricePerShare: decimal.NewFromInt(120), TradeDate: date(2026, 2, 1),
		})
		require.NoError(t, err)
		totalSold += qty

		var bought, remaining int64
		for _, lot := range lots.lots {
			bought += lot.Quantity
			remaining += lot.Remaining
		}
		assert.Equal(t, totalSold, bought-remaining)
	}
}

func TestListLots_IncludesConsumed(t *testing.T) {
	svc, _, _ := newTestService()
	ownerID := uuid.New()

	mustBuy(t, svc, BuyInput{
		OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 10, PricePerShare: decimal.NewFromInt(100), TradeDate: date(2026, 1, 1),
	})
	_, err := svc.RecordSell(context.Background(), SellInput{
		OwnerID: ownerID, AccountID: "acct-1", Ticker: "AAPL",
		Quantity: 10, PricePerShare: decimal.NewFromInt(120), TradeDate: date(2026, 2, 1),
	})
	require.NoError(t, err)

	all, err := svc.ListLots(context.Background(), ownerID, "acct-1", "aapl")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(0), all[0].Remaining)
}
