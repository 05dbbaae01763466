package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcclellann/finanzas/pkg/models"
)

// Storage defines the record store the ledger persists debts and movements in.
type Storage interface {
	// CreateDebt assigns an ID when the debt has none and returns it.
	CreateDebt(ctx context.Context, debt *models.Debt) (uuid.UUID, error)
	GetDebt(ctx context.Context, id uuid.UUID) (*models.Debt, error)
	ListDebts(ctx context.Context) ([]*models.Debt, error)
	// UpdateDebt merges the set fields of update into the stored debt.
	UpdateDebt(ctx context.Context, id uuid.UUID, update models.DebtUpdate) error
	DeleteDebt(ctx context.Context, id uuid.UUID) error

	// ArchiveDebt appends to the settled debts collection. Callers settling an
	// active debt should use SettleDebt.
	ArchiveDebt(ctx context.Context, settled *models.SettledDebt) error
	ListSettledDebts(ctx context.Context) ([]*models.SettledDebt, error)
	// SettleDebt archives settled and deletes settled.DebtID from the active
	// debts, atomically when the backend supports it.
	SettleDebt(ctx context.Context, settled *models.SettledDebt) error

	CreateMovement(ctx context.Context, movement *models.Movement) (uuid.UUID, error)
	ListMovements(ctx context.Context) ([]*models.Movement, error)
	DeleteMovement(ctx context.Context, id uuid.UUID) error

	Ping(ctx context.Context) error
	Close() error
}
