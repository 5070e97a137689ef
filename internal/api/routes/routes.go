package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lotledger/ledger_service/internal/api/handlers"
	"github.com/lotledger/ledger_service/internal/api/middleware"
	"github.com/lotledger/ledger_service/internal/infrastructure/config"
	"github.com/lotledger/ledger_service/pkg/logger"
)

// Handlers bundles the handler set the router wires up.
type Handlers struct {
	Trades           *handlers.TradeHandler
	CorporateActions *handlers.CorporateActionHandler
	Positions        *handlers.PositionHandler
	Health           *handlers.HealthHandler
}

// SetupRoutes configures the gin engine with all middleware and routes
func SetupRoutes(cfg *config.Config, log *logger.Logger, h Handlers) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Metrics())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	router.GET("/health", h.Health.Health)
	router.GET("/ready", h.Health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.OwnerIdentity())
	{
		trades := v1.Group("/trades")
		{
			trades.POST("/buy", h.Trades.RecordBuy)
			trades.POST("/sell", h.Trades.RecordSell)
		}

		actions := v1.Group("/corporate-actions")
		{
			actions.POST("/cash-dividend", h.CorporateActions.CashDividend)
			actions.POST("/stock-dividend", h.CorporateActions.StockDividend)
			actions.POST("/stock-split", h.CorporateActions.StockSplit)
			actions.GET("", h.CorporateActions.List)
			actions.POST("/:id/deactivate", h.CorporateActions.Deactivate)
			actions.DELETE("/:id", h.CorporateActions.Delete)
		}

		v1.GET("/positions", h.Positions.ListPositions)

		accounts := v1.Group("/accounts/:accountId/tickers/:ticker")
		{
			accounts.GET("/position", h.Positions.GetAdjustedPosition)
			accounts.GET("/lots", h.Trades.ListLots)
			accounts.GET("/lots/adjusted", h.Positions.GetAdjustedLots)
		}
	}

	return router
}
