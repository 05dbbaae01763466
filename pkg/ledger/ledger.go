package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/finanzas/pkg/events"
	"github.com/mcclellann/finanzas/pkg/models"
	"github.com/mcclellann/finanzas/pkg/schedule"
	"github.com/mcclellann/finanzas/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound    = store.ErrNotFound
	ErrInvalidDebt = models.ErrInvalidDebt
)

// Ledger handles the business logic for debts and their payments.
type Ledger struct {
	storage   store.Storage
	publisher events.Publisher
	log       *logrus.Logger
	now       func() time.Time

	locks sync.Map // uuid.UUID -> *sync.Mutex
}

type Option func(*Ledger)

// WithPublisher sends a domain event after every persisted payment.
func WithPublisher(p events.Publisher) Option {
	return func(l *Ledger) {
		if p != nil {
			l.publisher = p
		}
	}
}

func WithLogger(log *logrus.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage:   s,
		publisher: events.Nop{},
		log:       logrus.StandardLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) lock(id uuid.UUID) func() {
	v, _ := l.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CreateDebt validates and stores a new debt and returns the stored record.
func (l *Ledger) CreateDebt(ctx context.Context, debt models.Debt) (*models.Debt, error) {
	now := l.now()
	debt.ID = uuid.Nil
	if debt.RemainingBalance.IsZero() {
		debt.RemainingBalance = debt.TotalDebt
	}
	if debt.StartDate.IsZero() {
		debt.InstallmentsPaid = 0
	} else {
		debt.InstallmentsPaid = schedule.ElapsedInstallments(debt.StartDate.Time, debt.InstallmentCount, now)
	}
	debt.CreatedAt = now
	debt.UpdatedAt = now

	if err := debt.Validate(); err != nil {
		return nil, err
	}

	id, err := l.storage.CreateDebt(ctx, &debt)
	if err != nil {
		return nil, fmt.Errorf("failed to store debt: %w", err)
	}
	debt.ID = id

	l.log.WithFields(logrus.Fields{
		"debt_id":           id,
		"entity":            debt.Entity,
		"installments_paid": debt.InstallmentsPaid,
	}).Info("Debt created")
	return &debt, nil
}

// GetDebt retrieves a debt by its ID.
func (l *Ledger) GetDebt(ctx context.Context, id uuid.UUID) (*models.Debt, error) {
	return l.storage.GetDebt(ctx, id)
}

// ListDebts retrieves all active debts.
func (l *Ledger) ListDebts(ctx context.Context) ([]*models.Debt, error) {
	return l.storage.ListDebts(ctx)
}

// ListSettledDebts retrieves the archive of settled debts.
func (l *Ledger) ListSettledDebts(ctx context.Context) ([]*models.SettledDebt, error) {
	return l.storage.ListSettledDebts(ctx)
}

// UpdateDebt merges update into the stored debt. A new start date or
// installment count re-derives installments paid unless the caller set it.
func (l *Ledger) UpdateDebt(ctx context.Context, id uuid.UUID, update models.DebtUpdate) (*models.Debt, error) {
	if update.IsEmpty() {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidDebt)
	}

	unlock := l.lock(id)
	defer unlock()

	current, err := l.storage.GetDebt(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.TotalPaid != nil && update.TotalPaid.LessThan(current.TotalPaid) {
		return nil, fmt.Errorf("%w: total paid cannot go below %s", ErrInvalidDebt, current.TotalPaid)
	}

	merged := *current
	update.Apply(&merged)
	if update.InstallmentsPaid == nil && (update.StartDate != nil || update.InstallmentCount != nil) {
		paid := 0
		if !merged.StartDate.IsZero() {
			paid = schedule.ElapsedInstallments(merged.StartDate.Time, merged.InstallmentCount, l.now())
		}
		merged.InstallmentsPaid = paid
		update.InstallmentsPaid = &paid
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	if err := l.storage.UpdateDebt(ctx, id, update); err != nil {
		return nil, fmt.Errorf("failed to update debt: %w", err)
	}
	return l.storage.GetDebt(ctx, id)
}

// DeleteDebt deletes an active debt.
func (l *Ledger) DeleteDebt(ctx context.Context, id uuid.UUID) error {
	unlock := l.lock(id)
	defer unlock()

	if err := l.storage.DeleteDebt(ctx, id); err != nil {
		return err
	}
	l.locks.Delete(id)
	l.log.WithField("debt_id", id).Info("Debt deleted")
	return nil
}

// RecordPayment applies p to the debt and persists the result with a single
// store call. A settled debt is archived and leaves the active set.
func (l *Ledger) RecordPayment(ctx context.Context, id uuid.UUID, p Payment) (Outcome, error) {
	unlock := l.lock(id)
	defer unlock()

	debt, err := l.storage.GetDebt(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	outcome, err := ApplyPayment(*debt, p)
	if err != nil {
		return Outcome{}, err
	}

	now := l.now()
	outcome.Debt.UpdatedAt = now
	fields := logrus.Fields{
		"debt_id": id,
		"mode":    p.Mode,
		"amount":  outcome.Applied.StringFixed(2),
		"outcome": outcome.Kind,
	}

	switch outcome.Kind {
	case Settled:
		settled := &models.SettledDebt{
			DebtID:    id,
			Debt:      outcome.Debt,
			Overpaid:  outcome.Overpaid,
			SettledAt: now,
		}
		if err := l.storage.SettleDebt(ctx, settled); err != nil {
			return Outcome{}, fmt.Errorf("failed to settle debt: %w", err)
		}
		l.locks.Delete(id)
		fields["overpaid"] = outcome.Overpaid.StringFixed(2)
		l.log.WithFields(fields).Info("Debt settled")
	default:
		next := outcome.Debt
		update := models.DebtUpdate{
			RemainingBalance: &next.RemainingBalance,
			TotalPaid:        &next.TotalPaid,
			InstallmentsPaid: &next.InstallmentsPaid,
		}
		if err := l.storage.UpdateDebt(ctx, id, update); err != nil {
			return Outcome{}, fmt.Errorf("failed to update debt balance: %w", err)
		}
		fields["remaining_balance"] = next.RemainingBalance.StringFixed(2)
		l.log.WithFields(fields).Info("Payment applied")
	}

	l.publish(ctx, outcome, now)
	return outcome, nil
}

func (l *Ledger) publish(ctx context.Context, o Outcome, at time.Time) {
	e := events.Event{
		Type:             events.PaymentApplied,
		DebtID:           o.Debt.ID,
		Entity:           o.Debt.Entity,
		Amount:           o.Applied,
		RemainingBalance: o.Debt.RemainingBalance,
		InstallmentsPaid: o.Debt.InstallmentsPaid,
		Overpaid:         o.Overpaid,
		OccurredAt:       at,
	}
	if o.Kind == Settled {
		e.Type = events.DebtSettled
	}
	// The payment is already persisted, so a broker failure is only logged
	if err := l.publisher.Publish(ctx, e); err != nil {
		l.log.WithError(err).WithField("debt_id", o.Debt.ID).Warn("Failed to publish payment event")
	}
}

// Details is the detail view of a single debt.
type Details struct {
	Debt                *models.Debt    `json:"debt"`
	PendingBalance      decimal.Decimal `json:"pending_balance"`
	PendingInstallments int             `json:"pending_installments"`
	ElapsedInstallments int             `json:"elapsed_installments"`
	Behind              bool            `json:"behind"`
}

// DebtDetails returns the debt with its schedule position as of now.
func (l *Ledger) DebtDetails(ctx context.Context, id uuid.UUID) (*Details, error) {
	debt, err := l.storage.GetDebt(ctx, id)
	if err != nil {
		return nil, err
	}
	now := l.now()
	return &Details{
		Debt:                debt,
		PendingBalance:      debt.PendingBalance(),
		PendingInstallments: schedule.PendingInstallments(debt.InstallmentCount, debt.InstallmentsPaid),
		ElapsedInstallments: schedule.ElapsedInstallments(debt.StartDate.Time, debt.InstallmentCount, now),
		Behind:              schedule.IsBehind(debt.StartDate.Time, debt.InstallmentCount, debt.InstallmentsPaid, now),
	}, nil
}

// RefreshLateness sets is_late on every active debt whose flag disagrees with
// the schedule and returns how many were changed.
func (l *Ledger) RefreshLateness(ctx context.Context) (int, error) {
	debts, err := l.storage.ListDebts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list debts for lateness refresh: %w", err)
	}

	now := l.now()
	changed := 0
	for _, debt := range debts {
		late := schedule.IsBehind(debt.StartDate.Time, debt.InstallmentCount, debt.InstallmentsPaid, now)
		if late == debt.IsLate {
			continue
		}
		if err := l.updateLateness(ctx, debt.ID, late); err != nil {
			l.log.WithError(err).WithField("debt_id", debt.ID).Error("Error updating lateness")
			continue
		}
		changed++
	}

	l.log.WithFields(logrus.Fields{"checked": len(debts), "changed": changed}).Info("Lateness refreshed")
	return changed, nil
}

func (l *Ledger) updateLateness(ctx context.Context, id uuid.UUID, late bool) error {
	unlock := l.lock(id)
	defer unlock()
	return l.storage.UpdateDebt(ctx, id, models.DebtUpdate{IsLate: &late})
}

// Reconcile removes active debts that already have an archive record, left
// behind when a settlement's delete failed after its archive write.
func (l *Ledger) Reconcile(ctx context.Context) (int, error) {
	settled, err := l.storage.ListSettledDebts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list settled debts: %w", err)
	}
	archived := make(map[uuid.UUID]struct{}, len(settled))
	for _, sd := range settled {
		archived[sd.DebtID] = struct{}{}
	}

	debts, err := l.storage.ListDebts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list debts: %w", err)
	}

	removed := 0
	for _, debt := range debts {
		if _, ok := archived[debt.ID]; !ok {
			continue
		}
		if err := l.DeleteDebt(ctx, debt.ID); err != nil {
			l.log.WithError(err).WithField("debt_id", debt.ID).Error("Error removing archived debt")
			continue
		}
		removed++
	}
	if removed > 0 {
		l.log.WithField("removed", removed).Warn("Reconciled debts left active after settlement")
	}
	return removed, nil
}
