package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotledger/ledger_service/internal/api/middleware"
	"github.com/lotledger/ledger_service/internal/domain/entities"
	"github.com/lotledger/ledger_service/internal/domain/repositories"
	"github.com/lotledger/ledger_service/internal/domain/services/adjustments"
	apperrors "github.com/lotledger/ledger_service/pkg/errors"
	"github.com/lotledger/ledger_service/pkg/logger"
)

type memLotStore struct {
	lots []*entities.PurchaseLot
}

func (s *memLotStore) Create(_ context.Context, lot *entities.PurchaseLot) error {
	s.lots = append(s.lots, lot)
	return nil
}

func (s *memLotStore) ListOpen(_ context.Context, key repositories.LotKey) ([]*entities.PurchaseLot, error) {
	var out []*entities.PurchaseLot
	for _, lot := range s.lots {
		if lot.OwnerID == key.OwnerID && lot.AccountID == key.AccountID && lot.Ticker == key.Ticker && lot.Remaining > 0 {
			out = append(out, lot)
		}
	}
	return out, nil
}

func (s *memLotStore) ListOpenForUpdate(ctx context.Context, key repositories.LotKey) ([]*entities.PurchaseLot, error) {
	return s.ListOpen(ctx, key)
}

func (s *memLotStore) DecrementRemaining(_ context.Context, lotID uuid.UUID, shares int64) error {
	for _, lot := range s.lots {
		if lot.ID == lotID {
			lot.Remaining -= shares
			return nil
		}
	}
	return apperrors.NotFound("purchase lot")
}

func (s *memLotStore) ListByKey(ctx context.Context, key repositories.LotKey) ([]*entities.PurchaseLot, error) {
	return s.ListOpen(ctx, key)
}

func (s *memLotStore) ListOpenByOwner(_ context.Context, ownerID uuid.UUID, _ *string) ([]*entities.PurchaseLot, error) {
	var out []*entities.PurchaseLot
	for _, lot := range s.lots {
		if lot.OwnerID == ownerID && lot.Remaining > 0 {
			out = append(out, lot)
		}
	}
	return out, nil
}

func (s *memLotStore) ListHeldKeys(_ context.Context) ([]repositories.LotKey, error) {
	return nil, nil
}

type memAdjustmentStore struct {
	adjustments []*entities.CorporateActionAdjustment
}

func (s *memAdjustmentStore) Create(_ context.Context, adj *entities.CorporateActionAdjustment) error {
	s.adjustments = append(s.adjustments, adj)
	return nil
}

func (s *memAdjustmentStore) ListActive(_ context.Context, key repositories.LotKey, asOf *time.Time) ([]*entities.CorporateActionAdjustment, error) {
	var out []*entities.CorporateActionAdjustment
	for _, adj := range s.adjustments {
		if adj.OwnerID != key.OwnerID || adj.AccountID != key.AccountID || adj.Ticker != key.Ticker || !adj.Active {
			continue
		}
		if asOf != nil && adj.EventDate.After(*asOf) {
			continue
		}
		out = append(out, adj)
	}
	return out, nil
}

func (s *memAdjustmentStore) List(_ context.Context, _ repositories.LotKey) ([]*entities.CorporateActionAdjustment, error) {
	return s.adjustments, nil
}

func (s *memAdjustmentStore) Deactivate(_ context.Context, _, _ uuid.UUID) error {
	return nil
}

func (s *memAdjustmentStore) Delete(_ context.Context, _, _ uuid.UUID) error {
	return nil
}

type memFeeStore struct {
	fees []*entities.FeeRecord
}

func (s *memFeeStore) Create(_ context.Context, fee *entities.FeeRecord) error {
	s.fees = append(s.fees, fee)
	return nil
}

type inlineTx struct{}

func (inlineTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// recordingCache captures cache traffic so tests can assert on the keys the
// handlers use.
type recordingCache struct {
	entries    map[string]*entities.AdjustedPosition
	getTickers []string
	setTickers []string
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[string]*entities.AdjustedPosition{}}
}

func (c *recordingCache) Get(_ context.Context, _ uuid.UUID, accountID, ticker string) *entities.AdjustedPosition {
	c.getTickers = append(c.getTickers, ticker)
	return c.entries[accountID+"/"+ticker]
}

func (c *recordingCache) Set(_ context.Context, position *entities.AdjustedPosition) {
	c.setTickers = append(c.setTickers, position.Ticker)
	c.entries[position.AccountID+"/"+position.Ticker] = position
}

func (c *recordingCache) Invalidate(_ context.Context, _ uuid.UUID, accountID, ticker string) {
	delete(c.entries, accountID+"/"+ticker)
}

type intakeFixture struct {
	ownerID uuid.UUID
	lots    *memLotStore
	adjs    *memAdjustmentStore
	fees    *memFeeStore
	svc     *adjustments.Service
}

func newIntakeFixture(t *testing.T) *intakeFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, RegisterValidations())

	f := &intakeFixture{
		ownerID: uuid.New(),
		lots:    &memLotStore{},
		adjs:    &memAdjustmentStore{},
		fees:    &memFeeStore{},
	}
	f.svc = adjustments.NewService(f.adjs, f.lots, f.fees, inlineTx{}, logger.NewNop())
	f.lots.lots = append(f.lots.lots, &entities.PurchaseLot{
		ID:           uuid.New(),
		OwnerID:      f.ownerID,
		AccountID:    "acct-1",
		Ticker:       "AAPL",
		PurchaseDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Quantity:     100,
		Remaining:    100,
		TotalCost:    decimal.NewFromInt(1000000),
	})
	return f
}

func (f *intakeFixture) postCashDividend(t *testing.T, handler *CorporateActionHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := gin.New()
	router.Use(middleware.OwnerIdentity())
	router.POST("/corporate-actions/cash-dividend", handler.CashDividend)

	req := httptest.NewRequest(http.MethodPost, "/corporate-actions/cash-dividend", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-ID", f.ownerID.String())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCashDividend_OmittedTaxRateUsesDefault(t *testing.T) {
	f := newIntakeFixture(t)
	handler := NewCorporateActionHandler(f.svc, newRecordingCache(), decimal.RequireFromString("0.15"), logger.NewNop())

	rec := f.postCashDividend(t, handler, `{
		"account_id": "acct-1",
		"ticker": "AAPL",
		"event_date": "2026-02-01",
		"dividend_per_share": 500
	}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, f.adjs.adjustments, 1)
	require.NotNil(t, f.adjs.adjustments[0].TaxRate)
	assert.True(t, f.adjs.adjustments[0].TaxRate.Equal(decimal.RequireFromString("0.15")))

	// withheld tax = 500 * 100 held * 0.15 default
	require.Len(t, f.fees.fees, 1)
	assert.True(t, f.fees.fees[0].Amount.Equal(decimal.NewFromInt(7500)), "withheld %s", f.fees.fees[0].Amount)
}

func TestCashDividend_ExplicitZeroTaxRateKept(t *testing.T) {
	f := newIntakeFixture(t)
	handler := NewCorporateActionHandler(f.svc, newRecordingCache(), decimal.RequireFromString("0.15"), logger.NewNop())

	rec := f.postCashDividend(t, handler, `{
		"account_id": "acct-1",
		"ticker": "AAPL",
		"event_date": "2026-02-01",
		"dividend_per_share": 500,
		"tax_rate": 0
	}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, f.adjs.adjustments, 1)
	require.NotNil(t, f.adjs.adjustments[0].TaxRate)
	assert.True(t, f.adjs.adjustments[0].TaxRate.IsZero(), "explicit zero must not fall back to the default")

	require.Len(t, f.fees.fees, 1)
	assert.True(t, f.fees.fees[0].Amount.IsZero())
}

func TestCashDividend_ExplicitTaxRateOverridesDefault(t *testing.T) {
	f := newIntakeFixture(t)
	handler := NewCorporateActionHandler(f.svc, newRecordingCache(), decimal.RequireFromString("0.15"), logger.NewNop())

	rec := f.postCashDividend(t, handler, `{
		"account_id": "acct-1",
		"ticker": "AAPL",
		"event_date": "2026-02-01",
		"dividend_per_share": 500,
		"tax_rate": 0.3
	}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, f.fees.fees, 1)
	// withheld tax = 500 * 100 held * 0.3
	assert.True(t, f.fees.fees[0].Amount.Equal(decimal.NewFromInt(15000)), "withheld %s", f.fees.fees[0].Amount)
}
