package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/lotledger/ledger_service/pkg/errors"
)

// NewConnection opens a postgres connection pool.
func NewConnection(url string, maxOpen, maxIdle int, connMaxLifetime time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connMaxLifetime)

	return db, nil
}

// RunMigrations applies all pending schema migrations.
func RunMigrations(databaseURL, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

type txKey struct{}

// TxManager implements repositories.TxRunner on top of sqlx transactions.
// The open transaction travels in the context so that the same repository
// instances work inside and outside a unit.
type TxManager struct {
	db *sqlx.DB
}

func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

// WithinTx runs fn in a single database transaction. Any error from fn rolls
// the whole unit back. Postgres lock/serialization failures are translated
// to ConcurrencyConflict so callers can retry the full operation.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		// Already inside a unit; join it.
		return fn(ctx)
	}

	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return apperrors.Persistence(err, "failed to begin transaction")
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return TranslateError(err)
	}

	if err := tx.Commit(); err != nil {
		return TranslateError(apperrors.Persistence(err, "failed to commit transaction"))
	}
	return nil
}

func txFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx
}

// Querier is the subset of sqlx used by the repositories, satisfied by both
// *sqlx.DB and *sqlx.Tx.
type Querier interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// QuerierFrom returns the transaction bound to ctx, or db when no unit is
// open.
func QuerierFrom(ctx context.Context, db *sqlx.DB) Querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return db
}

// InTx reports whether ctx carries an open transactional unit.
func InTx(ctx context.Context) bool {
	return txFromContext(ctx) != nil
}

// TranslateError maps driver-level failures onto the service taxonomy.
// 40001 serialization_failure, 40P01 deadlock_detected and 55P03
// lock_not_available all mean the operation lost a concurrency race and is
// safe to retry whole.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03":
			return apperrors.ConcurrencyConflict(err)
		}
	}
	return err
}
