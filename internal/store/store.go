// Package store is the typed access layer over the household database. Every
// call runs inside a transaction bound to the caller's context and capped by
// the configured per-call timeout.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when the referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert collides with an existing key.
	ErrConflict = errors.New("already exists")
	// ErrTimeout is returned when a store call exceeds its deadline. Callers
	// may retry.
	ErrTimeout = errors.New("store call timed out")
)

// DefaultTimeout bounds a store call when none is configured.
const DefaultTimeout = 5 * time.Second

// Store issues queries against the database. A Store obtained inside
// Transaction is bound to that transaction.
type Store struct {
	db      *gorm.DB
	timeout time.Duration
	inTx    bool
}

// New wraps db. A non-positive timeout selects DefaultTimeout.
func New(db *gorm.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Store{db: db, timeout: timeout}
}

// Dialect reports the SQL dialect name ("sqlite3" or "postgres").
func (s *Store) Dialect() string {
	return s.db.Dialect().GetName()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return classify(ctx, s.db.DB().PingContext(ctx))
}

// Transaction runs fn against a Store bound to one transaction. The whole
// transaction shares a single timeout. fn's error rolls the transaction back
// and is returned unchanged unless it is a driver error.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx := s.db.BeginTx(ctx, nil)
	if tx.Error != nil {
		return classify(ctx, tx.Error)
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := fn(&Store{db: tx, timeout: s.timeout, inTx: true}); err != nil {
		return classify(ctx, err)
	}
	if err := tx.Commit().Error; err != nil {
		return classify(ctx, err)
	}
	committed = true
	return nil
}

// run executes a single query function, inside the current transaction if
// there is one.
func (s *Store) run(ctx context.Context, fn func(db *gorm.DB) error) error {
	return s.Transaction(ctx, func(tx *Store) error {
		return fn(tx.db)
	})
}

// LockWeekScope serializes writers of one (household, week) scope across
// processes. On PostgreSQL it takes a transaction-scoped advisory lock; SQLite
// already admits a single writer, so there it does nothing. It must be called
// inside Transaction.
func (s *Store) LockWeekScope(ctx context.Context, householdID, weekStart string) error {
	if !s.inTx {
		return errors.New("store: LockWeekScope outside a transaction")
	}
	if s.Dialect() != "postgres" {
		return nil
	}
	key := householdID + "/" + weekStart
	return classify(ctx, s.db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error)
}

// classify maps driver errors onto the package's sentinel errors.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrTimeout) {
		return err
	}
	if gorm.IsRecordNotFoundError(err) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
