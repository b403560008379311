package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gsdlabs/gsd-review-broker/internal/db"
)

var (
	// ErrReviewNotFound is returned when a review id resolves to no row.
	ErrReviewNotFound = errors.New("review not found")
)

const (
	// numTxRetries is how many times a transaction is retried when it
	// fails with a busy/locked error before giving up.
	numTxRetries = 5

	// txRetryDelay is the pause between transaction retries. With one
	// writer connection and the broker-level write mutex, contention is
	// rare; this only covers external readers of the same file.
	txRetryDelay = 50 * time.Millisecond
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx,
// letting the same query methods run inside and outside transactions.
type querier interface {
	ExecContext(ctx context.Context, query string,
		args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string,
		args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string,
		args ...any) *sql.Row
}

// SQLStore implements the broker's persistence over hand-written SQL. A
// store is either bound to the root connection (reads, autocommit) or to a
// transaction created by WithTx.
type SQLStore struct {
	sqlDB *sql.DB
	q     querier
	log   *slog.Logger
}

// NewSQLStore creates a store bound to the given database connection.
func NewSQLStore(sqlDB *sql.DB, log *slog.Logger) *SQLStore {
	return &SQLStore{
		sqlDB: sqlDB,
		q:     sqlDB,
		log:   log,
	}
}

// WithTx executes fn within a database transaction, retrying on
// serialization errors. The connection is opened with an immediate txlock,
// so the transaction takes the write lock at BEGIN. fn receives a store
// bound to the transaction.
func (s *SQLStore) WithTx(ctx context.Context,
	fn func(ctx context.Context, tx *SQLStore) error) error {

	for attempt := 0; attempt < numTxRetries; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}

		if db.IsSerializationOrDeadlockError(db.MapSQLError(err)) {
			s.log.Debug("Retrying busy transaction",
				"attempt", attempt,
			)
			time.Sleep(txRetryDelay)

			continue
		}

		return err
	}

	return db.ErrRetriesExceeded
}

// runTx is a single transaction attempt.
func (s *SQLStore) runTx(ctx context.Context,
	fn func(ctx context.Context, tx *SQLStore) error) error {

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStore := &SQLStore{
		sqlDB: s.sqlDB,
		q:     tx,
		log:   s.log,
	}

	if err := fn(ctx, txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %w, rollback error: %v",
				err, rbErr)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
