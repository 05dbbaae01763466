package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/finanzas/pkg/models"
	"github.com/sirupsen/logrus"

	_ "github.com/mattn/go-sqlite3"
)

const debtColumns = `id, entity, total_debt, remaining_balance, installment_value, installment_count, installments_paid, total_paid, start_date, is_late, created_at, updated_at`

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewSQLiteStore opens the database, applies migrations and returns the store.
func NewSQLiteStore(dataSourceName string, log *logrus.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	if err := runMigrations(dataSourceName); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}

	log.WithField("dsn", dataSourceName).Info("SQLite store ready")
	return &SQLiteStore{db: db, log: log}, nil
}

// CreateDebt inserts a new debt into the database.
func (s *SQLiteStore) CreateDebt(ctx context.Context, debt *models.Debt) (uuid.UUID, error) {
	if debt.ID == uuid.Nil {
		debt.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO debts (`+debtColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		debt.ID.String(), debt.Entity, debt.TotalDebt, debt.RemainingBalance, debt.InstallmentValue,
		debt.InstallmentCount, debt.InstallmentsPaid, debt.TotalPaid, debt.StartDate, debt.IsLate,
		debt.CreatedAt, debt.UpdatedAt,
	)
	if err != nil {
		return uuid.Nil, wrap("create debt", err)
	}
	return debt.ID, nil
}

// GetDebt retrieves a debt by its ID.
func (s *SQLiteStore) GetDebt(ctx context.Context, id uuid.UUID) (*models.Debt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+debtColumns+` FROM debts WHERE id = ?`, id.String())
	debt, err := scanDebt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("get debt")
		}
		return nil, wrap("get debt", err)
	}
	return debt, nil
}

// ListDebts retrieves all active debts, oldest first.
func (s *SQLiteStore) ListDebts(ctx context.Context) ([]*models.Debt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+debtColumns+` FROM debts ORDER BY created_at ASC`)
	if err != nil {
		return nil, wrap("list debts", err)
	}
	defer rows.Close()

	debts := []*models.Debt{}
	for rows.Next() {
		debt, err := scanDebt(rows)
		if err != nil {
			return nil, wrap("scan debt", err)
		}
		debts = append(debts, debt)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list debts", err)
	}
	return debts, nil
}

// UpdateDebt writes only the columns set in update.
func (s *SQLiteStore) UpdateDebt(ctx context.Context, id uuid.UUID, update models.DebtUpdate) error {
	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if update.Entity != nil {
		set("entity", *update.Entity)
	}
	if update.TotalDebt != nil {
		set("total_debt", *update.TotalDebt)
	}
	if update.RemainingBalance != nil {
		set("remaining_balance", *update.RemainingBalance)
	}
	if update.InstallmentValue != nil {
		set("installment_value", *update.InstallmentValue)
	}
	if update.InstallmentCount != nil {
		set("installment_count", *update.InstallmentCount)
	}
	if update.InstallmentsPaid != nil {
		set("installments_paid", *update.InstallmentsPaid)
	}
	if update.TotalPaid != nil {
		set("total_paid", *update.TotalPaid)
	}
	if update.StartDate != nil {
		set("start_date", *update.StartDate)
	}
	if update.IsLate != nil {
		set("is_late", *update.IsLate)
	}
	set("updated_at", time.Now())
	args = append(args, id.String())

	result, err := s.db.ExecContext(ctx, `UPDATE debts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return wrap("update debt", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrap("update debt", err)
	}
	if rowsAffected == 0 {
		return notFound("update debt")
	}
	return nil
}

// DeleteDebt removes an active debt.
func (s *SQLiteStore) DeleteDebt(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM debts WHERE id = ?`, id.String())
	if err != nil {
		return wrap("delete debt", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrap("delete debt", err)
	}
	if rowsAffected == 0 {
		return notFound("delete debt")
	}
	return nil
}

// ArchiveDebt inserts a settled debt record.
func (s *SQLiteStore) ArchiveDebt(ctx context.Context, settled *models.SettledDebt) error {
	return wrap("archive debt", insertSettled(ctx, s.db, settled))
}

// SettleDebt archives the debt and removes it from the active table within a transaction.
func (s *SQLiteStore) SettleDebt(ctx context.Context, settled *models.SettledDebt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("settle debt", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := insertSettled(ctx, tx, settled); err != nil {
		return wrap("settle debt", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM debts WHERE id = ?`, settled.DebtID.String())
	if err != nil {
		return wrap("settle debt", fmt.Errorf("failed to delete active debt: %w", err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrap("settle debt", err)
	}
	if rowsAffected == 0 {
		return notFound("settle debt")
	}

	if err := tx.Commit(); err != nil {
		return wrap("settle debt", err)
	}
	return nil
}

// ListSettledDebts retrieves the archive, most recently settled first.
func (s *SQLiteStore) ListSettledDebts(ctx context.Context) ([]*models.SettledDebt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, debt_id, entity, total_debt, remaining_balance, installment_value, installment_count, installments_paid, total_paid, start_date, is_late, created_at, updated_at, overpaid, settled_at
		FROM settled_debts ORDER BY settled_at DESC`)
	if err != nil {
		return nil, wrap("list settled debts", err)
	}
	defer rows.Close()

	settled := []*models.SettledDebt{}
	for rows.Next() {
		var sd models.SettledDebt
		var idStr, debtIDStr string
		d := &sd.Debt
		if err := rows.Scan(&idStr, &debtIDStr, &d.Entity, &d.TotalDebt, &d.RemainingBalance, &d.InstallmentValue,
			&d.InstallmentCount, &d.InstallmentsPaid, &d.TotalPaid, &d.StartDate, &d.IsLate, &d.CreatedAt, &d.UpdatedAt,
			&sd.Overpaid, &sd.SettledAt); err != nil {
			return nil, wrap("scan settled debt", err)
		}
		var err error
		if sd.ID, err = uuid.Parse(idStr); err != nil {
			return nil, wrap("scan settled debt", err)
		}
		if sd.DebtID, err = uuid.Parse(debtIDStr); err != nil {
			return nil, wrap("scan settled debt", err)
		}
		d.ID = sd.DebtID
		settled = append(settled, &sd)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list settled debts", err)
	}
	return settled, nil
}

// CreateMovement inserts an income or expense entry.
func (s *SQLiteStore) CreateMovement(ctx context.Context, m *models.Movement) (uuid.UUID, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO movements (id, kind, category, amount, note, date, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID.String(), string(m.Kind), m.Category, m.Amount, m.Note, m.Date, m.CreatedAt,
	)
	if err != nil {
		return uuid.Nil, wrap("create movement", err)
	}
	return m.ID, nil
}

// ListMovements retrieves all movements, newest first.
func (s *SQLiteStore) ListMovements(ctx context.Context) ([]*models.Movement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, category, amount, note, date, created_at FROM movements ORDER BY date DESC, created_at DESC`)
	if err != nil {
		return nil, wrap("list movements", err)
	}
	defer rows.Close()

	movements := []*models.Movement{}
	for rows.Next() {
		var m models.Movement
		var idStr, kind string
		if err := rows.Scan(&idStr, &kind, &m.Category, &m.Amount, &m.Note, &m.Date, &m.CreatedAt); err != nil {
			return nil, wrap("scan movement", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, wrap("scan movement", err)
		}
		m.ID = id
		m.Kind = models.MovementKind(kind)
		movements = append(movements, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list movements", err)
	}
	return movements, nil
}

// DeleteMovement removes a movement.
func (s *SQLiteStore) DeleteMovement(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM movements WHERE id = ?`, id.String())
	if err != nil {
		return wrap("delete movement", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrap("delete movement", err)
	}
	if rowsAffected == 0 {
		return notFound("delete movement")
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return wrap("ping", s.db.PingContext(ctx))
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func insertSettled(ctx context.Context, db execer, sd *models.SettledDebt) error {
	if sd.ID == uuid.Nil {
		sd.ID = uuid.New()
	}
	d := sd.Debt
	_, err := db.ExecContext(ctx,
		`INSERT INTO settled_debts (id, debt_id, entity, total_debt, remaining_balance, installment_value, installment_count, installments_paid, total_paid, start_date, is_late, created_at, updated_at, overpaid, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sd.ID.String(), sd.DebtID.String(), d.Entity, d.TotalDebt, d.RemainingBalance, d.InstallmentValue,
		d.InstallmentCount, d.InstallmentsPaid, d.TotalPaid, d.StartDate, d.IsLate, d.CreatedAt, d.UpdatedAt,
		sd.Overpaid, sd.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settled debt: %w", err)
	}
	return nil
}

func scanDebt(row scanner) (*models.Debt, error) {
	var d models.Debt
	var idStr string
	if err := row.Scan(&idStr, &d.Entity, &d.TotalDebt, &d.RemainingBalance, &d.InstallmentValue,
		&d.InstallmentCount, &d.InstallmentsPaid, &d.TotalPaid, &d.StartDate, &d.IsLate,
		&d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	d.ID = id
	return &d, nil
}
