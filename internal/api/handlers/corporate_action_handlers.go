package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lotledger/ledger_service/internal/api/middleware"
	"github.com/lotledger/ledger_service/internal/domain/entities"
	"github.com/lotledger/ledger_service/internal/domain/services/adjustments"
	apperrors "github.com/lotledger/ledger_service/pkg/errors"
	"github.com/lotledger/ledger_service/pkg/logger"
	"github.com/lotledger/ledger_service/pkg/metrics"
)

// CorporateActionHandler serves corporate-action intake and management.
type CorporateActionHandler struct {
	adjustments    *adjustments.Service
	cache          PositionsCache
	defaultTaxRate decimal.Decimal
	logger         *logger.Logger
}

// NewCorporateActionHandler creates a new corporate action handler.
// defaultTaxRate is the withholding fraction applied when a cash dividend
// request omits tax_rate.
func NewCorporateActionHandler(adjSvc *adjustments.Service, positionsCache PositionsCache, defaultTaxRate decimal.Decimal, log *logger.Logger) *CorporateActionHandler {
	return &CorporateActionHandler{
		adjustments:    adjSvc,
		cache:          positionsCache,
		defaultTaxRate: defaultTaxRate,
		logger:         log,
	}
}

// CashDividendRequest is the cash dividend intake payload. TaxRate is the
// withholding fraction in [0, 1]; omitting it selects the configured
// default, while an explicit 0 stays 0.
type CashDividendRequest struct {
	AccountID        string           `json:"account_id" binding:"required"`
	Ticker           string           `json:"ticker" binding:"required"`
	EventDate        string           `json:"event_date" binding:"required,tradedate"`
	DividendPerShare decimal.Decimal  `json:"dividend_per_share" binding:"required"`
	TaxRate          *decimal.Decimal `json:"tax_rate"`
	Description      string           `json:"description"`
	ExternalRef      *string          `json:"external_ref"`
}

// RatioRequest is the stock dividend / split intake payload.
type RatioRequest struct {
	AccountID   string          `json:"account_id" binding:"required"`
	Ticker      string          `json:"ticker" binding:"required"`
	EventDate   string          `json:"event_date" binding:"required,tradedate"`
	Ratio       decimal.Decimal `json:"ratio" binding:"required"`
	Description string          `json:"description"`
	ExternalRef *string         `json:"external_ref"`
}

// CashDividend handles POST /api/v1/corporate-actions/cash-dividend
func (h *CorporateActionHandler) CashDividend(c *gin.Context) {
	var req CashDividendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	eventDate, err := parseDate(req.EventDate)
	if err != nil {
		respondError(c, err)
		return
	}

	taxRate := h.defaultTaxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}

	adj, err := h.adjustments.ProcessCashDividend(c.Request.Context(), adjustments.CashDividendInput{
		OwnerID:          middleware.OwnerID(c),
		AccountID:        req.AccountID,
		Ticker:           req.Ticker,
		EventDate:        eventDate,
		DividendPerShare: req.DividendPerShare,
		TaxRate:          taxRate,
		Description:      req.Description,
		ExternalRef:      req.ExternalRef,
	})
	h.finishIntake(c, adj, err)
}

// StockDividend handles POST /api/v1/corporate-actions/stock-dividend
func (h *CorporateActionHandler) StockDividend(c *gin.Context) {
	h.processRatio(c, h.adjustments.ProcessStockDividend)
}

// StockSplit handles POST /api/v1/corporate-actions/stock-split
func (h *CorporateActionHandler) StockSplit(c *gin.Context) {
	h.processRatio(c, h.adjustments.ProcessStockSplit)
}

func (h *CorporateActionHandler) processRatio(
	c *gin.Context,
	process func(ctx context.Context, in adjustments.RatioInput) (*entities.CorporateActionAdjustment, error),
) {
	var req RatioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	eventDate, err := parseDate(req.EventDate)
	if err != nil {
		respondError(c, err)
		return
	}

	adj, err := process(c.Request.Context(), adjustments.RatioInput{
		OwnerID:     middleware.OwnerID(c),
		AccountID:   req.AccountID,
		Ticker:      req.Ticker,
		EventDate:   eventDate,
		Ratio:       req.Ratio,
		Description: req.Description,
		ExternalRef: req.ExternalRef,
	})
	h.finishIntake(c, adj, err)
}

func (h *CorporateActionHandler) finishIntake(c *gin.Context, adj *entities.CorporateActionAdjustment, err error) {
	if err != nil {
		metrics.CorporateActionsTotal.WithLabelValues("unknown", "error").Inc()
		respondError(c, err)
		return
	}

	metrics.CorporateActionsTotal.WithLabelValues(string(adj.Kind), "success").Inc()
	h.cache.Invalidate(c.Request.Context(), adj.OwnerID, adj.AccountID, adj.Ticker)

	c.JSON(http.StatusCreated, adj)
}

// List handles GET /api/v1/corporate-actions
func (h *CorporateActionHandler) List(c *gin.Context) {
	accountID := c.Query("account_id")
	ticker := c.Query("ticker")
	if accountID == "" || ticker == "" {
		respondError(c, apperrors.ValidationError("account_id and ticker query parameters are required"))
		return
	}

	adjs, err := h.adjustments.ListAdjustments(c.Request.Context(), middleware.OwnerID(c), accountID, ticker)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"adjustments": adjs, "count": len(adjs)})
}

// Deactivate handles POST /api/v1/corporate-actions/:id/deactivate
func (h *CorporateActionHandler) Deactivate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperrors.ValidationError("invalid adjustment id"))
		return
	}

	if err := h.adjustments.DeactivateAdjustment(c.Request.Context(), middleware.OwnerID(c), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deactivated", "id": id})
}

// Delete handles DELETE /api/v1/corporate-actions/:id
func (h *CorporateActionHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperrors.ValidationError("invalid adjustment id"))
		return
	}

	if err := h.adjustments.DeleteAdjustment(c.Request.Context(), middleware.OwnerID(c), id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
