package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/lotledger/ledger_service/internal/domain/entities"
	"github.com/lotledger/ledger_service/internal/infrastructure/database"
	"github.com/lotledger/ledger_service/pkg/logger"
)

// FeeRepository is the postgres-backed fee ledger sink.
type FeeRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewFeeRepository creates a new fee repository
func NewFeeRepository(db *sqlx.DB, logger *logger.Logger) *FeeRepository {
	return &FeeRepository{db: db, logger: logger}
}

// Create inserts a fee record
func (r *FeeRepository) Create(ctx context.Context, fee *entities.FeeRecord) error {
	query := `
		INSERT INTO fee_records (id, owner_id, account_id, kind, amount, fee_date, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	q := database.QuerierFrom(ctx, r.db)
	_, err := q.ExecContext(ctx, query,
		fee.ID,
		fee.OwnerID,
		fee.AccountID,
		fee.Kind,
		fee.Amount,
		fee.FeeDate,
		fee.Description,
		fee.CreatedAt,
	)
	if err != nil {
		r.logger.Errorw("failed to create fee record",
			"error", err,
			"fee_id", fee.ID.String(),
			"kind", fee.Kind,
		)
		return fmt.Errorf("failed to create fee record: %w", database.TranslateError(err))
	}

	return nil
}
