package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/lotledger/ledger_service/internal/api/middleware"
	"github.com/lotledger/ledger_service/internal/domain/services/ledger"
	"github.com/lotledger/ledger_service/pkg/logger"
	"github.com/lotledger/ledger_service/pkg/metrics"
)

// TradeHandler serves buy and sell intake plus the lot audit view.
type TradeHandler struct {
	ledger *ledger.Service
	cache  PositionsCache
	logger *logger.Logger
}

// NewTradeHandler creates a new trade handler
func NewTradeHandler(ledgerSvc *ledger.Service, positionsCache PositionsCache, log *logger.Logger) *TradeHandler {
	return &TradeHandler{ledger: ledgerSvc, cache: positionsCache, logger: log}
}

// BuyRequest is the buy intake payload.
type BuyRequest struct {
	AccountID     string          `json:"account_id" binding:"required"`
	Ticker        string          `json:"ticker" binding:"required"`
	Quantity      int64           `json:"quantity" binding:"required,gt=0"`
	PricePerShare decimal.Decimal `json:"price_per_share" binding:"required"`
	Fee           decimal.Decimal `json:"fee"`
	TradeDate     string          `json:"trade_date" binding:"required,tradedate"`
}

// SellRequest is the sell intake payload. TaxRatePercent is the selling tax
// in percent.
type SellRequest struct {
	AccountID      string          `json:"account_id" binding:"required"`
	Ticker         string          `json:"ticker" binding:"required"`
	Quantity       int64           `json:"quantity" binding:"required,gt=0"`
	PricePerShare  decimal.Decimal `json:"price_per_share" binding:"required"`
	Fee            decimal.Decimal `json:"fee"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
	TradeDate      string          `json:"trade_date" binding:"required,tradedate"`
}

// RecordBuy handles POST /api/v1/trades/buy
func (h *TradeHandler) RecordBuy(c *gin.Context) {
	var req BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	tradeDate, err := parseDate(req.TradeDate)
	if err != nil {
		respondError(c, err)
		return
	}

	lot, err := h.ledger.RecordBuy(c.Request.Context(), ledger.BuyInput{
		OwnerID:       middleware.OwnerID(c),
		AccountID:     req.AccountID,
		Ticker:        req.Ticker,
		Quantity:      req.Quantity,
		PricePerShare: req.PricePerShare,
		Fee:           req.Fee,
		TradeDate:     tradeDate,
	})
	if err != nil {
		metrics.TradesTotal.WithLabelValues("buy", "error").Inc()
		respondError(c, err)
		return
	}

	metrics.TradesTotal.WithLabelValues("buy", "success").Inc()
	h.cache.Invalidate(c.Request.Context(), lot.OwnerID, lot.AccountID, lot.Ticker)

	c.JSON(http.StatusCreated, lot)
}

// RecordSell handles POST /api/v1/trades/sell
func (h *TradeHandler) RecordSell(c *gin.Context) {
	var req SellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	tradeDate, err := parseDate(req.TradeDate)
	if err != nil {
		respondError(c, err)
		return
	}

	outcome, err := h.ledger.RecordSell(c.Request.Context(), ledger.SellInput{
		OwnerID:        middleware.OwnerID(c),
		AccountID:      req.AccountID,
		Ticker:         req.Ticker,
		Quantity:       req.Quantity,
		PricePerShare:  req.PricePerShare,
		Fee:            req.Fee,
		TaxRatePercent: req.TaxRatePercent,
		TradeDate:      tradeDate,
	})
	if err != nil {
		metrics.TradesTotal.WithLabelValues("sell", "error").Inc()
		respondError(c, err)
		return
	}

	metrics.TradesTotal.WithLabelValues("sell", "success").Inc()
	metrics.LotsConsumedPerSell.Observe(float64(len(outcome.Consumptions)))
	h.cache.Invalidate(c.Request.Context(), outcome.OwnerID, outcome.AccountID, outcome.Ticker)

	c.JSON(http.StatusCreated, outcome)
}

// ListLots handles GET /api/v1/accounts/:accountId/tickers/:ticker/lots
func (h *TradeHandler) ListLots(c *gin.Context) {
	lots, err := h.ledger.ListLots(
		c.Request.Context(),
		middleware.OwnerID(c),
		c.Param("accountId"),
		c.Param("ticker"),
	)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"lots": lots, "count": len(lots)})
}
