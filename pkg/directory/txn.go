package directory

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Querier is the subset of database operations the entity services use. It
// is satisfied by both *sql.DB and *sql.Tx so service calls inside a commit
// replay run on the coordinator's open transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Coordinator scopes entity mutations in an explicit transaction. While a
// transaction is open every service routed through the coordinator executes
// on it; otherwise calls run directly on the pool.
type Coordinator struct {
	db *sql.DB

	mu sync.Mutex
	tx *sql.Tx
}

// NewCoordinator creates a transaction coordinator over the database pool.
func NewCoordinator(db *sql.DB) *Coordinator {
	return &Coordinator{db: db}
}

// BeginTransaction opens a transaction. Nested transactions are not
// supported; a second begin while one is open is an error.
func (c *Coordinator) BeginTransaction(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx != nil {
		return fmt.Errorf("transaction already open")
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	c.tx = tx
	return nil
}

// CommitTransaction commits the open transaction.
func (c *Coordinator) CommitTransaction(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx == nil {
		return fmt.Errorf("no open transaction")
	}
	err := c.tx.Commit()
	c.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the open transaction.
func (c *Coordinator) RollbackTransaction(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx == nil {
		return fmt.Errorf("no open transaction")
	}
	err := c.tx.Rollback()
	c.tx = nil
	if err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// AbandonTransaction discards the open transaction so a later begin can
// proceed. The underlying handle is rolled back to release its pool
// connection. No open transaction is a no-op.
func (c *Coordinator) AbandonTransaction(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx == nil {
		return
	}
	_ = c.tx.Rollback()
	c.tx = nil
}

// querier returns the open transaction when one exists, the pool otherwise.
func (c *Coordinator) querier() Querier {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx != nil {
		return c.tx
	}
	return c.db
}
