package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

// PostgresStore implements Store on PostgreSQL through sqlx.
// Reads outside WithTx run on the pool with no isolation guarantee.
type PostgresStore struct {
	pgReader
	db *sqlx.DB
}

// NewPostgresStore wraps an open connection pool
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{pgReader: pgReader{q: db}, db: db}
}

// pgReader runs read queries against either the pool or a transaction
type pgReader struct {
	q sqlx.ExtContext
}

// pgQueries adds the writes that are only reachable inside WithTx
type pgQueries struct {
	pgReader
}

// WithTx runs fn inside a READ COMMITTED transaction. Seat rows are locked
// explicitly by LockSeats; the partial unique indexes catch anything else.
// When ctx carries a deadline, lock waits are bounded by it as well.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return translateError(ctx, fmt.Errorf("failed to begin transaction: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline).Milliseconds()
		if remaining <= 0 {
			return ErrTxTimeout
		}
		// Lock waits and single statements both fail server-side before the deadline
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", remaining)); err != nil {
			return translateError(ctx, fmt.Errorf("failed to set lock timeout: %w", err))
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", remaining)); err != nil {
			return translateError(ctx, fmt.Errorf("failed to set statement timeout: %w", err))
		}
	}

	if err := fn(&pgQueries{pgReader{q: tx}}); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTxTimeout) {
			return fmt.Errorf("%w: %v", ErrTxTimeout, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return translateError(ctx, fmt.Errorf("failed to commit transaction: %w", err))
	}
	committed = true
	return nil
}

// InsertAuditLog appends an audit record outside any booking transaction
func (s *PostgresStore) InsertAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	query := `
		INSERT INTO audit_logs (
			id, user_id, action, entity_type, entity_id,
			before_state, after_state, ip_address, user_agent, device_info
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	err := s.db.QueryRowxContext(ctx, query,
		entry.ID, entry.UserID, entry.Action, entry.EntityType, entry.EntityID,
		nullJSON(entry.Before), nullJSON(entry.After), entry.IPAddress, entry.UserAgent, nullJSON(entry.DeviceInfo),
	).Scan(&entry.CreatedAt)
	if err != nil {
		return wrapErr(ctx, "insert audit log", err)
	}
	return nil
}

// Ping verifies the connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// HELPERS
// ============================================================================

func wrapErr(ctx context.Context, op string, err error) error {
	return fmt.Errorf("failed to %s: %w", op, translateError(ctx, err))
}

// uuidArray binds ids for `= ANY($n::uuid[])`
func uuidArray(ids []uuid.UUID) interface{} {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return pq.Array(strs)
}

func nullJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// requireRows turns a zero-row conditional write into err
func requireRows(ctx context.Context, op string, res interface{ RowsAffected() (int64, error) }, err error, none error) error {
	if err != nil {
		return wrapErr(ctx, op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return wrapErr(ctx, op, err)
	}
	if rows == 0 {
		return fmt.Errorf("failed to %s: %w", op, none)
	}
	return nil
}

func affected(ctx context.Context, op string, res interface{ RowsAffected() (int64, error) }, err error) (int64, error) {
	if err != nil {
		return 0, wrapErr(ctx, op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr(ctx, op, err)
	}
	return rows, nil
}
