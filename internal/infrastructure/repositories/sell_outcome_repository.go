package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/lotledger/ledger_service/internal/domain/entities"
	"github.com/lotledger/ledger_service/internal/infrastructure/database"
	"github.com/lotledger/ledger_service/pkg/logger"
)

// SellOutcomeRepository handles sell settlement persistence
type SellOutcomeRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewSellOutcomeRepository creates a new sell outcome repository
func NewSellOutcomeRepository(db *sqlx.DB, logger *logger.Logger) *SellOutcomeRepository {
	return &SellOutcomeRepository{db: db, logger: logger}
}

// Create inserts a sell outcome together with its per-lot consumption rows.
// Meant to be called inside the same transactional unit as the lot
// decrements it describes.
func (r *SellOutcomeRepository) Create(ctx context.Context, outcome *entities.SellOutcome) error {
	query := `
		INSERT INTO sell_outcomes (
			id, owner_id, account_id, ticker, sell_date, quantity, price_per_share,
			gross_value, selling_tax, fee, net_proceeds, total_cogs, profit_or_loss, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	q := database.QuerierFrom(ctx, r.db)
	_, err := q.ExecContext(ctx, query,
		outcome.ID,
		outcome.OwnerID,
		outcome.AccountID,
		outcome.Ticker,
		outcome.SellDate,
		outcome.Quantity,
		outcome.PricePerShare,
		outcome.GrossValue,
		outcome.SellingTax,
		outcome.Fee,
		outcome.NetProceeds,
		outcome.TotalCOGS,
		outcome.ProfitOrLoss,
		outcome.CreatedAt,
	)
	if err != nil {
		r.logger.Errorw("failed to create sell outcome",
			"error", err,
			"outcome_id", outcome.ID.String(),
			"ticker", outcome.Ticker,
		)
		return fmt.Errorf("failed to create sell outcome: %w", database.TranslateError(err))
	}

	consumptionQuery := `
		INSERT INTO sell_outcome_consumptions (outcome_id, lot_id, quantity, unit_cost, cost)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, c := range outcome.Consumptions {
		if _, err := q.ExecContext(ctx, consumptionQuery,
			outcome.ID, c.LotID, c.Quantity, c.UnitCost, c.Cost,
		); err != nil {
			r.logger.Errorw("failed to create consumption row",
				"error", err,
				"outcome_id", outcome.ID.String(),
				"lot_id", c.LotID.String(),
			)
			return fmt.Errorf("failed to create consumption row: %w", database.TranslateError(err))
		}
	}

	return nil
}
