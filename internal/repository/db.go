// Package repository implements PostgreSQL persistence with pgx.
//
// Every repository works against DBTX so the same code runs on the pool,
// inside a transaction, and against pgxmock in tests.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/pkg/logger"
)

// DBTX is the query surface shared by *pgxpool.Pool, pgx.Tx and pgxmock.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner is a DBTX that can open transactions.
type TxBeginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store bundles the repositories bound to one DBTX.
type Store struct {
	db DBTX

	Users          *UserRepository
	Organisations  *OrganisationRepository
	Systems        *SystemRepository
	Profiles       *ProfileRepository
	Assessments    *AssessmentRepository
	Configurations *ConfigurationRepository
	Notifications  *NotificationRepository
	Audit          *AuditRepository
}

// NewStore binds every repository to db.
func NewStore(db DBTX) *Store {
	return &Store{
		db:             db,
		Users:          &UserRepository{db: db},
		Organisations:  &OrganisationRepository{db: db},
		Systems:        &SystemRepository{db: db},
		Profiles:       &ProfileRepository{db: db},
		Assessments:    &AssessmentRepository{db: db},
		Configurations: &ConfigurationRepository{db: db},
		Notifications:  &NotificationRepository{db: db},
		Audit:          &AuditRepository{db: db},
	}
}

// InTx runs fn with a Store bound to a new transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(*Store) error) error {
	beginner, ok := s.db.(TxBeginner)
	if !ok {
		// Already inside a transaction.
		return fn(s)
	}
	tx, err := beginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.Warn("transaction rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(NewStore(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// epoch stands in for NULL timestamps; see nullTime.
var epoch = time.Unix(0, 0).UTC()

// nullTime maps the COALESCE(col, 'epoch') sentinel back to nil.
func nullTime(t time.Time) *time.Time {
	if !t.After(epoch) {
		return nil
	}
	return &t
}

// nullID maps a COALESCE(col, 0) foreign key back to nil.
func nullID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
