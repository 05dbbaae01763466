// Package cashflow records incomes and expenses and aggregates them.
package cashflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/finanzas/pkg/models"
	"github.com/mcclellann/finanzas/pkg/money"
	"github.com/mcclellann/finanzas/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var ErrInvalidMovement = errors.New("invalid movement")

// ExpenseCategories are the categories the expense form offers.
var ExpenseCategories = []string{
	"Compras", "Alimentos", "Telefono", "Transporte", "Educación", "Ropa",
	"Hogar", "Viaje", "Salud", "Belleza", "Electrónicos", "Víveres",
	"Regalos", "Reparaciones", "Mascota", "Ocio", "Deportes", "Cine",
	"Restaurantes", "Seguros", "Ahorros", "Otros",
}

// Input is a movement as entered by the user.
type Input struct {
	Kind     models.MovementKind `json:"kind"`
	Category string              `json:"category"`
	Amount   string              `json:"amount"`
	Note     string              `json:"note"`
	Date     models.Date         `json:"date"` // Defaults to today
}

// CategoryAmount is a total aggregated by category name.
type CategoryAmount struct {
	Kind     models.MovementKind `json:"kind"`
	Category string              `json:"category"`
	Amount   decimal.Decimal     `json:"amount"`
}

// Summary aggregates the movements in a date range.
type Summary struct {
	From       models.Date      `json:"from"`
	To         models.Date      `json:"to"`
	Income     decimal.Decimal  `json:"income"`
	Expense    decimal.Decimal  `json:"expense"`
	Net        decimal.Decimal  `json:"net"`
	Count      int              `json:"count"`
	ByCategory []CategoryAmount `json:"by_category"`
}

type Service struct {
	storage store.Storage
	log     *logrus.Logger
	now     func() time.Time
}

func NewService(s store.Storage, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{storage: s, log: log, now: time.Now}
}

// RecordMovement validates in and stores it.
func (s *Service) RecordMovement(ctx context.Context, in Input) (*models.Movement, error) {
	if in.Kind != models.MovementIncome && in.Kind != models.MovementExpense {
		return nil, fmt.Errorf("%w: kind must be income or expense", ErrInvalidMovement)
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return nil, fmt.Errorf("%w: category is required", ErrInvalidMovement)
	}
	amount, err := money.ParseAmount(in.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q", ErrInvalidMovement, in.Amount)
	}

	now := s.now()
	date := in.Date
	if date.IsZero() {
		date = models.DateOf(now)
	}
	m := &models.Movement{
		Kind:      in.Kind,
		Category:  category,
		Amount:    amount,
		Note:      strings.TrimSpace(in.Note),
		Date:      date,
		CreatedAt: now,
	}
	if _, err := s.storage.CreateMovement(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to store movement: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"movement_id": m.ID,
		"kind":        m.Kind,
		"category":    m.Category,
		"amount":      money.Format(m.Amount),
	}).Info("Movement recorded")
	return m, nil
}

// ListMovements retrieves all movements, newest first.
func (s *Service) ListMovements(ctx context.Context) ([]*models.Movement, error) {
	return s.storage.ListMovements(ctx)
}

// DeleteMovement deletes a movement.
func (s *Service) DeleteMovement(ctx context.Context, id uuid.UUID) error {
	return s.storage.DeleteMovement(ctx, id)
}

// Summary totals the movements dated within [from, to]. A zero bound is open.
func (s *Service) Summary(ctx context.Context, from, to models.Date) (*Summary, error) {
	movements, err := s.storage.ListMovements(ctx)
	if err != nil {
		return nil, err
	}
	return Summarize(movements, from, to), nil
}

// Summarize aggregates movements without touching the store.
func Summarize(movements []*models.Movement, from, to models.Date) *Summary {
	sum := &Summary{
		From:       from,
		To:         to,
		Income:     decimal.Zero,
		Expense:    decimal.Zero,
		ByCategory: []CategoryAmount{},
	}
	type key struct {
		kind     models.MovementKind
		category string
	}
	byCategory := map[key]decimal.Decimal{}

	for _, m := range movements {
		if !from.IsZero() && m.Date.Before(from.Time) {
			continue
		}
		if !to.IsZero() && m.Date.After(to.Time) {
			continue
		}
		switch m.Kind {
		case models.MovementIncome:
			sum.Income = sum.Income.Add(m.Amount)
		case models.MovementExpense:
			sum.Expense = sum.Expense.Add(m.Amount)
		default:
			continue
		}
		sum.Count++
		k := key{m.Kind, m.Category}
		byCategory[k] = byCategory[k].Add(m.Amount)
	}
	sum.Net = sum.Income.Sub(sum.Expense)

	for k, amount := range byCategory {
		sum.ByCategory = append(sum.ByCategory, CategoryAmount{Kind: k.kind, Category: k.category, Amount: amount})
	}
	sort.Slice(sum.ByCategory, func(i, j int) bool {
		a, b := sum.ByCategory[i], sum.ByCategory[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if !a.Amount.Equal(b.Amount) {
			return a.Amount.GreaterThan(b.Amount)
		}
		return a.Category < b.Category
	})
	return sum
}
