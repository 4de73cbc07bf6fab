package persistence

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/EmbraceSQL/embracesql/internal/infrastructure/database"
	"github.com/EmbraceSQL/embracesql/pkg/logging"
)

// TransactionManager brackets work in one nesting level of a database's
// transaction stack.
type TransactionManager struct {
	db     *database.Database
	logger *zap.SugaredLogger
}

// NewTransactionManager creates a new TransactionManager
func NewTransactionManager(db *database.Database, logger *zap.SugaredLogger) *TransactionManager {
	return &TransactionManager{db: db, logger: logging.OrNop(logger)}
}

// WithTransaction runs fn inside the connection's atomic block and a new
// transaction level. The level commits only if fn returns nil and leaves the
// stack exactly one level deeper than it found it. Anything else, including a
// panic or a level fn opened and never closed, rolls back every level this
// call opened, as does a failed commit. A rollback forced by imbalance is
// logged, not returned.
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return tm.db.Atomic(ctx, func(ctx context.Context) error {
		txs := tm.db.Transactions()
		start := txs.Depth()
		if err := txs.Begin(ctx); err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		// Ensure rollback on panic
		defer func() {
			if p := recover(); p != nil {
				_ = tm.unwind(ctx, start)
				panic(p) // Re-throw panic after rollback
			}
		}()

		if err := fn(ctx); err != nil {
			return multierr.Append(err, tm.unwind(ctx, start))
		}

		if depth := txs.Depth(); depth != start+1 {
			tm.logger.Warnw("unbalanced transaction, rolling back",
				"expected_depth", start+1, "depth", depth)
			return tm.unwind(ctx, start)
		}

		if err := txs.Commit(ctx); err != nil {
			return multierr.Append(fmt.Errorf("failed to commit transaction: %w", err), tm.unwind(ctx, start))
		}
		return nil
	})
}

// unwind rolls back until the stack is back at depth. Rollbacks ignore ctx
// cancellation so a caller that went away still releases its levels.
func (tm *TransactionManager) unwind(ctx context.Context, depth int) error {
	txs := tm.db.Transactions()
	var err error
	for current := txs.Depth(); current > depth; current = txs.Depth() {
		if rbErr := txs.Rollback(ctx); rbErr != nil {
			err = multierr.Append(err, fmt.Errorf("rollback failed: %w", rbErr))
			if txs.Depth() >= current {
				break
			}
		}
	}
	return err
}
