package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lotledger/ledger_service/internal/domain/entities"
	"github.com/lotledger/ledger_service/internal/domain/repositories"
	"github.com/lotledger/ledger_service/internal/infrastructure/database"
	apperrors "github.com/lotledger/ledger_service/pkg/errors"
	"github.com/lotledger/ledger_service/pkg/logger"
)

// LotRepository handles purchase lot persistence
type LotRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewLotRepository creates a new lot repository
func NewLotRepository(db *sqlx.DB, logger *logger.Logger) *LotRepository {
	return &LotRepository{db: db, logger: logger}
}

const lotColumns = `id, owner_id, account_id, ticker, purchase_date, quantity, remaining, price_per_share, buy_fee, total_cost, created_at, updated_at`

// Create inserts a new purchase lot
func (r *LotRepository) Create(ctx context.Context, lot *entities.PurchaseLot) error {
	query := `
		INSERT INTO purchase_lots (` + lotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	q := database.QuerierFrom(ctx, r.db)
	_, err := q.ExecContext(ctx, query,
		lot.ID,
		lot.OwnerID,
		lot.AccountID,
		lot.Ticker,
		lot.PurchaseDate,
		lot.Quantity,
		lot.Remaining,
		lot.PricePerShare,
		lot.BuyFee,
		lot.TotalCost,
		lot.CreatedAt,
		lot.UpdatedAt,
	)
	if err != nil {
		r.logger.Errorw("failed to create purchase lot",
			"error", err,
			"lot_id", lot.ID.String(),
			"ticker", lot.Ticker,
		)
		return fmt.Errorf("failed to create purchase lot: %w", database.TranslateError(err))
	}

	return nil
}

// ListOpen returns the key's lots with remaining > 0 in FIFO order:
// purchase date ascending, lot id as the tie-break.
func (r *LotRepository) ListOpen(ctx context.Context, key repositories.LotKey) ([]*entities.PurchaseLot, error) {
	query := `
		SELECT ` + lotColumns + `
		FROM purchase_lots
		WHERE owner_id = $1 AND account_id = $2 AND ticker = $3 AND remaining > 0
		ORDER BY purchase_date ASC, id ASC
	`
	return r.selectLots(ctx, query, key.OwnerID, key.AccountID, key.Ticker)
}

// ListOpenForUpdate is ListOpen with FOR UPDATE row locks; it must run
// inside a transactional unit so the locks live until commit.
func (r *LotRepository) ListOpenForUpdate(ctx context.Context, key repositories.LotKey) ([]*entities.PurchaseLot, error) {
	if !database.InTx(ctx) {
		return nil, apperrors.Internal("ListOpenForUpdate called outside a transactional unit")
	}
	query := `
		SELECT ` + lotColumns + `
		FROM purchase_lots
		WHERE owner_id = $1 AND account_id = $2 AND ticker = $3 AND remaining > 0
		ORDER BY purchase_date ASC, id ASC
		FOR UPDATE
	`
	return r.selectLots(ctx, query, key.OwnerID, key.AccountID, key.Ticker)
}

// ListByKey returns every lot of the key, fully consumed ones included.
func (r *LotRepository) ListByKey(ctx context.Context, key repositories.LotKey) ([]*entities.PurchaseLot, error) {
	query := `
		SELECT ` + lotColumns + `
		FROM purchase_lots
		WHERE owner_id = $1 AND account_id = $2 AND ticker = $3
		ORDER BY purchase_date ASC, id ASC
	`
	return r.selectLots(ctx, query, key.OwnerID, key.AccountID, key.Ticker)
}

// ListOpenByOwner returns all of an owner's open lots, optionally narrowed
// to one account.
func (r *LotRepository) ListOpenByOwner(ctx context.Context, ownerID uuid.UUID, accountID *string) ([]*entities.PurchaseLot, error) {
	if accountID != nil {
		query := `
			SELECT ` + lotColumns + `
			FROM purchase_lots
			WHERE owner_id = $1 AND account_id = $2 AND remaining > 0
			ORDER BY purchase_date ASC, id ASC
		`
		return r.selectLots(ctx, query, ownerID, *accountID)
	}
	query := `
		SELECT ` + lotColumns + `
		FROM purchase_lots
		WHERE owner_id = $1 AND remaining > 0
		ORDER BY purchase_date ASC, id ASC
	`
	return r.selectLots(ctx, query, ownerID)
}

// DecrementRemaining consumes shares from a lot. The guard in the WHERE
// clause keeps remaining from ever going below zero; a miss means the lot
// was modified concurrently or the caller overshot.
func (r *LotRepository) DecrementRemaining(ctx context.Context, lotID uuid.UUID, shares int64) error {
	query := `
		UPDATE purchase_lots
		SET remaining = remaining - $2, updated_at = NOW()
		WHERE id = $1 AND remaining >= $2
	`

	q := database.QuerierFrom(ctx, r.db)
	result, err := q.ExecContext(ctx, query, lotID, shares)
	if err != nil {
		r.logger.Errorw("failed to decrement lot remaining",
			"error", err,
			"lot_id", lotID.String(),
			"shares", shares,
		)
		return fmt.Errorf("failed to decrement lot remaining: %w", database.TranslateError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.ConcurrencyConflict(fmt.Errorf("lot %s has fewer than %d shares remaining", lotID, shares))
	}

	return nil
}

// ListHeldKeys returns every (owner, account, ticker) key with open lots.
func (r *LotRepository) ListHeldKeys(ctx context.Context) ([]repositories.LotKey, error) {
	query := `
		SELECT DISTINCT owner_id, account_id, ticker
		FROM purchase_lots
		WHERE remaining > 0
	`

	var rows []struct {
		OwnerID   uuid.UUID `db:"owner_id"`
		AccountID string    `db:"account_id"`
		Ticker    string    `db:"ticker"`
	}
	q := database.QuerierFrom(ctx, r.db)
	if err := q.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list held keys: %w", database.TranslateError(err))
	}

	keys := make([]repositories.LotKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, repositories.LotKey{
			OwnerID:   row.OwnerID,
			AccountID: row.AccountID,
			Ticker:    row.Ticker,
		})
	}
	return keys, nil
}

func (r *LotRepository) selectLots(ctx context.Context, query string, args ...interface{}) ([]*entities.PurchaseLot, error) {
	var lots []*entities.PurchaseLot
	q := database.QuerierFrom(ctx, r.db)
	if err := q.SelectContext(ctx, &lots, query, args...); err != nil {
		r.logger.Errorw("failed to query purchase lots", "error", err)
		return nil, fmt.Errorf("failed to query purchase lots: %w", database.TranslateError(err))
	}
	return lots, nil
}
