package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/clinic-booking/internal/repository"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

// Postgres error codes that mean the transaction lost a race.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// Store hands out repositories bound either to the pool or to a transaction.
type Store struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// WithMetrics records the outcome and latency of every transaction.
func (s *Store) WithMetrics(m *metrics.Metrics) *Store {
	s.metrics = m
	return s
}

func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Repositories returns stores that run each statement on the pool.
func (s *Store) Repositories() repository.Repositories {
	return bind(s.db)
}

func (s *Store) ReadOnly(ctx context.Context, fn func(repository.Repositories) error) error {
	return s.WithTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

// WithTx executes fn within a transaction
func (s *Store) WithTx(ctx context.Context, opts *sql.TxOptions, fn func(repository.Repositories) error) (err error) {
	if s.metrics != nil {
		started := time.Now()
		defer func() {
			s.metrics.ObserveDB(txOperation(opts), time.Since(started).Seconds(), err)
		}()
	}

	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(bind(tx)); err != nil {
		_ = tx.Rollback()
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func txOperation(opts *sql.TxOptions) string {
	switch {
	case opts == nil:
		return "tx"
	case opts.ReadOnly:
		return "tx_read_only"
	case opts.Isolation == sql.LevelSerializable:
		return "tx_serializable"
	default:
		return "tx"
	}
}

func bind(q sqlx.ExtContext) repository.Repositories {
	return repository.Repositories{
		Schedule:     &scheduleRepository{db: q},
		Appointments: &appointmentRepository{db: q},
		Services:     &serviceRepository{db: q},
	}
}

// classify marks lost races with repository.ErrConflict, keeping the cause.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
			return fmt.Errorf("%w: %w", repository.ErrConflict, err)
		}
	}
	return err
}
