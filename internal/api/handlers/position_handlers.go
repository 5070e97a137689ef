package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lotledger/ledger_service/internal/api/middleware"
	"github.com/lotledger/ledger_service/internal/domain/entities"
	"github.com/lotledger/ledger_service/internal/domain/services/adjustments"
	"github.com/lotledger/ledger_service/internal/domain/services/positions"
	apperrors "github.com/lotledger/ledger_service/pkg/errors"
	"github.com/lotledger/ledger_service/pkg/logger"
	"github.com/lotledger/ledger_service/pkg/metrics"
)

// PositionHandler serves the read-side position views: the weighted-average
// aggregate and the corporate-action adjusted per-ticker views.
type PositionHandler struct {
	adjustments *adjustments.Service
	positions   *positions.Service
	cache       PositionsCache
	logger      *logger.Logger
}

// NewPositionHandler creates a new position handler
func NewPositionHandler(
	adjSvc *adjustments.Service,
	posSvc *positions.Service,
	positionsCache PositionsCache,
	log *logger.Logger,
) *PositionHandler {
	return &PositionHandler{adjustments: adjSvc, positions: posSvc, cache: positionsCache, logger: log}
}

// ListPositions handles GET /api/v1/positions
func (h *PositionHandler) ListPositions(c *gin.Context) {
	var accountID *string
	if v := c.Query("account_id"); v != "" {
		accountID = &v
	}

	positions, err := h.positions.Aggregate(c.Request.Context(), middleware.OwnerID(c), accountID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

// GetAdjustedPosition handles GET /api/v1/accounts/:accountId/tickers/:ticker/position
// Optional as_of=YYYY-MM-DD limits which adjustments apply. Only the
// current view (no as_of) is cached.
func (h *PositionHandler) GetAdjustedPosition(c *gin.Context) {
	ownerID := middleware.OwnerID(c)
	accountID := c.Param("accountId")
	// The cache is keyed on the canonical ticker, same as Set below.
	ticker := entities.NormalizeTicker(c.Param("ticker"))

	asOf, err := parseOptionalDate(c.Query("as_of"))
	if err != nil {
		respondError(c, err)
		return
	}

	if asOf == nil {
		if cached := h.cache.Get(c.Request.Context(), ownerID, accountID, ticker); cached != nil {
			c.JSON(http.StatusOK, cached)
			return
		}
	} else {
		metrics.PositionCacheHits.WithLabelValues("bypass").Inc()
	}

	position, err := h.adjustments.CalculateAdjustedPosition(c.Request.Context(), ownerID, accountID, ticker, asOf)
	if err != nil {
		respondError(c, err)
		return
	}

	if asOf == nil {
		h.cache.Set(c.Request.Context(), position)
	}

	c.JSON(http.StatusOK, position)
}

// GetAdjustedLots handles GET /api/v1/accounts/:accountId/tickers/:ticker/lots/adjusted
func (h *PositionHandler) GetAdjustedLots(c *gin.Context) {
	asOf, err := parseOptionalDate(c.Query("as_of"))
	if err != nil {
		respondError(c, err)
		return
	}

	ticker := c.Param("ticker")
	if ticker == "" {
		respondError(c, apperrors.ValidationError("ticker is required"))
		return
	}

	lots, err := h.adjustments.ListAdjustedLots(
		c.Request.Context(),
		middleware.OwnerID(c),
		c.Param("accountId"),
		ticker,
		asOf,
	)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"lots": lots, "count": len(lots)})
}
