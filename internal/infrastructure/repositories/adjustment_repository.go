package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lotledger/ledger_service/internal/domain/entities"
	"github.com/lotledger/ledger_service/internal/domain/repositories"
	"github.com/lotledger/ledger_service/internal/infrastructure/database"
	apperrors "github.com/lotledger/ledger_service/pkg/errors"
	"github.com/lotledger/ledger_service/pkg/logger"
)

// AdjustmentRepository handles corporate-action adjustment persistence
type AdjustmentRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewAdjustmentRepository creates a new adjustment repository
func NewAdjustmentRepository(db *sqlx.DB, logger *logger.Logger) *AdjustmentRepository {
	return &AdjustmentRepository{db: db, logger: logger}
}

const adjustmentColumns = `id, owner_id, account_id, ticker, kind, event_date, dividend_per_share, tax_rate, ratio, active, description, external_ref, created_at`

// Create inserts a new adjustment
func (r *AdjustmentRepository) Create(ctx context.Context, adj *entities.CorporateActionAdjustment) error {
	query := `
		INSERT INTO corporate_action_adjustments (` + adjustmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	q := database.QuerierFrom(ctx, r.db)
	_, err := q.ExecContext(ctx, query,
		adj.ID,
		adj.OwnerID,
		adj.AccountID,
		adj.Ticker,
		adj.Kind,
		adj.EventDate,
		adj.DividendPerShare,
		adj.TaxRate,
		adj.Ratio,
		adj.Active,
		adj.Description,
		adj.ExternalRef,
		adj.CreatedAt,
	)
	if err != nil {
		r.logger.Errorw("failed to create adjustment",
			"error", err,
			"adjustment_id", adj.ID.String(),
			"kind", adj.Kind,
			"ticker", adj.Ticker,
		)
		return fmt.Errorf("failed to create adjustment: %w", database.TranslateError(err))
	}

	return nil
}

// ListActive returns the key's active adjustments, event date ascending with
// id as tie-break, optionally restricted to events on or before asOf.
func (r *AdjustmentRepository) ListActive(ctx context.Context, key repositories.LotKey, asOf *time.Time) ([]*entities.CorporateActionAdjustment, error) {
	if asOf != nil {
		query := `
			SELECT ` + adjustmentColumns + `
			FROM corporate_action_adjustments
			WHERE owner_id = $1 AND account_id = $2 AND ticker = $3 AND active AND event_date <= $4
			ORDER BY event_date ASC, id ASC
		`
		return r.selectAdjustments(ctx, query, key.OwnerID, key.AccountID, key.Ticker, *asOf)
	}
	query := `
		SELECT ` + adjustmentColumns + `
		FROM corporate_action_adjustments
		WHERE owner_id = $1 AND account_id = $2 AND ticker = $3 AND active
		ORDER BY event_date ASC, id ASC
	`
	return r.selectAdjustments(ctx, query, key.OwnerID, key.AccountID, key.Ticker)
}

// List returns every adjustment of the key, inactive ones included.
func (r *AdjustmentRepository) List(ctx context.Context, key repositories.LotKey) ([]*entities.CorporateActionAdjustment, error) {
	query := `
		SELECT ` + adjustmentColumns + `
		FROM corporate_action_adjustments
		WHERE owner_id = $1 AND account_id = $2 AND ticker = $3
		ORDER BY event_date ASC, id ASC
	`
	return r.selectAdjustments(ctx, query, key.OwnerID, key.AccountID, key.Ticker)
}

// Deactivate flips an adjustment inactive, excluding it from every derived
// calculation without losing the record.
func (r *AdjustmentRepository) Deactivate(ctx context.Context, ownerID, id uuid.UUID) error {
	query := `UPDATE corporate_action_adjustments SET active = FALSE WHERE id = $1 AND owner_id = $2`
	return r.execOne(ctx, query, id, ownerID)
}

// Delete removes an adjustment permanently.
func (r *AdjustmentRepository) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	query := `DELETE FROM corporate_action_adjustments WHERE id = $1 AND owner_id = $2`
	return r.execOne(ctx, query, id, ownerID)
}

func (r *AdjustmentRepository) execOne(ctx context.Context, query string, id, ownerID uuid.UUID) error {
	q := database.QuerierFrom(ctx, r.db)
	result, err := q.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		r.logger.Errorw("failed to update adjustment", "error", err, "adjustment_id", id.String())
		return fmt.Errorf("failed to update adjustment: %w", database.TranslateError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.NotFound("adjustment")
	}
	return nil
}

func (r *AdjustmentRepository) selectAdjustments(ctx context.Context, query string, args ...interface{}) ([]*entities.CorporateActionAdjustment, error) {
	var adjustments []*entities.CorporateActionAdjustment
	q := database.QuerierFrom(ctx, r.db)
	if err := q.SelectContext(ctx, &adjustments, query, args...); err != nil {
		r.logger.Errorw("failed to query adjustments", "error", err)
		return nil, fmt.Errorf("failed to query adjustments: %w", database.TranslateError(err))
	}
	return adjustments, nil
}
