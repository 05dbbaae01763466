package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/finanzas/pkg/cashflow"
	"github.com/mcclellann/finanzas/pkg/entities"
	"github.com/mcclellann/finanzas/pkg/ledger"
	"github.com/mcclellann/finanzas/pkg/models"
	"github.com/mcclellann/finanzas/pkg/money"
	"github.com/mcclellann/finanzas/pkg/report"
	"github.com/mcclellann/finanzas/pkg/schedule"
	"github.com/mcclellann/finanzas/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Server holds the ledger and cashflow services.
type Server struct {
	ledger   *ledger.Ledger
	cashflow *cashflow.Service
	storage  store.Storage // Keep a reference to the storage to close it
	log      *logrus.Logger
}

func NewServer(s store.Storage, log *logrus.Logger, opts ...ledger.Option) *Server {
	opts = append([]ledger.Option{ledger.WithLogger(log)}, opts...)
	return &Server{
		ledger:   ledger.NewLedger(s, opts...),
		cashflow: cashflow.NewService(s, log),
		storage:  s,
		log:      log,
	}
}

// Routes registers every handler. Static paths under /debts come before
// /debts/{id} so they are not taken for an id.
func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.logRequests)

	router.HandleFunc("/health", s.healthHandler).Methods("GET")

	router.HandleFunc("/debts", s.listDebtsHandler).Methods("GET")
	router.HandleFunc("/debts", s.createDebtHandler).Methods("POST")
	router.HandleFunc("/debts/export.xlsx", s.exportDebtsHandler).Methods("GET")
	router.HandleFunc("/debts/{id}", s.getDebtHandler).Methods("GET")
	router.HandleFunc("/debts/{id}", s.updateDebtHandler).Methods("PATCH", "PUT")
	router.HandleFunc("/debts/{id}", s.deleteDebtHandler).Methods("DELETE")
	router.HandleFunc("/debts/{id}/details", s.debtDetailsHandler).Methods("GET")
	router.HandleFunc("/debts/{id}/payments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/settled-debts", s.listSettledDebtsHandler).Methods("GET")

	router.HandleFunc("/schedule/elapsed", s.elapsedHandler).Methods("GET")
	router.HandleFunc("/entities", s.entitiesHandler).Methods("GET")

	router.HandleFunc("/movements", s.listMovementsHandler).Methods("GET")
	router.HandleFunc("/movements", s.createMovementHandler).Methods("POST")
	router.HandleFunc("/movements/summary", s.movementSummaryHandler).Methods("GET")
	router.HandleFunc("/movements/categories", s.movementCategoriesHandler).Methods("GET")
	router.HandleFunc("/movements/{id}", s.deleteMovementHandler).Methods("DELETE")

	return router
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("Request served")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain and storage errors to a status code.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidPaymentAmount),
		errors.Is(err, models.ErrInvalidDebt),
		errors.Is(err, models.ErrInvalidDate),
		errors.Is(err, cashflow.ErrInvalidMovement),
		errors.Is(err, money.ErrInvalidAmount):
		status = http.StatusBadRequest
	case store.IsStorageError(err):
		status = http.StatusServiceUnavailable
	}

	entry := s.log.WithError(err).WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path, "status": status})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Info("Request rejected")
	}
	http.Error(w, err.Error(), status)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// amountField accepts a JSON string ("450,00") or number (450.5). The raw text
// goes through the money parser either way.
type amountField string

func (a *amountField) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amountField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return money.ErrInvalidAmount
	}
	// Expand exponents (1e3) into plain digits for the money parser
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return money.ErrInvalidAmount
	}
	*a = amountField(d.String())
	return nil
}

func (a *amountField) set() bool {
	return a != nil && strings.TrimSpace(string(*a)) != ""
}

type debtRequest struct {
	Entity           *string      `json:"entity"`
	TotalDebt        *amountField `json:"total_debt"`
	RemainingBalance *amountField `json:"remaining_balance"`
	InstallmentValue *amountField `json:"installment_value"`
	InstallmentCount *int         `json:"installment_count"`
	InstallmentsPaid *int         `json:"installments_paid"`
	TotalPaid        *amountField `json:"total_paid"`
	StartDate        *models.Date `json:"start_date"`
	IsLate           *bool        `json:"is_late"`
}

// toUpdate converts the request into a partial update. Amount fields that are
// present must parse.
func (req debtRequest) toUpdate() (models.DebtUpdate, error) {
	u := models.DebtUpdate{
		Entity:           req.Entity,
		InstallmentCount: req.InstallmentCount,
		InstallmentsPaid: req.InstallmentsPaid,
		StartDate:        req.StartDate,
		IsLate:           req.IsLate,
	}
	amounts := []struct {
		field     *amountField
		dst       **decimal.Decimal
		allowZero bool
	}{
		{req.TotalDebt, &u.TotalDebt, true},
		{req.RemainingBalance, &u.RemainingBalance, true},
		{req.InstallmentValue, &u.InstallmentValue, false},
		{req.TotalPaid, &u.TotalPaid, true},
	}
	for _, a := range amounts {
		if a.field == nil {
			continue
		}
		parse := money.ParseAmount
		if a.allowZero {
			parse = money.ParseBalance
		}
		d, err := parse(string(*a.field))
		if err != nil {
			return models.DebtUpdate{}, err
		}
		*a.dst = &d
	}
	return u, nil
}

func (s *Server) createDebtHandler(w http.ResponseWriter, r *http.Request) {
	var req debtRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.TotalDebt.set() || !req.InstallmentValue.set() || req.InstallmentCount == nil {
		http.Error(w, "total_debt, installment_value and installment_count are required", http.StatusBadRequest)
		return
	}
	if !req.RemainingBalance.set() {
		req.RemainingBalance = nil
	}

	u, err := req.toUpdate()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var debt models.Debt
	u.Apply(&debt)

	created, err := s.ledger.CreateDebt(r.Context(), debt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listDebtsHandler(w http.ResponseWriter, r *http.Request) {
	debts, err := s.ledger.ListDebts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, debts)
}

func (s *Server) getDebtHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	debt, err := s.ledger.GetDebt(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, debt)
}

func (s *Server) debtDetailsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	details, err := s.ledger.DebtDetails(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) updateDebtHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req debtRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	u, err := req.toUpdate()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	debt, err := s.ledger.UpdateDebt(r.Context(), id, u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, debt)
}

func (s *Server) deleteDebtHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.DeleteDebt(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req struct {
		Mode   ledger.PaymentMode `json:"mode"`
		Amount amountField        `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	outcome, err := s.ledger.RecordPayment(r.Context(), id, ledger.Payment{Mode: req.Mode, Amount: string(req.Amount)})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) listSettledDebtsHandler(w http.ResponseWriter, r *http.Request) {
	settled, err := s.ledger.ListSettledDebts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settled)
}

func (s *Server) exportDebtsHandler(w http.ResponseWriter, r *http.Request) {
	active, err := s.ledger.ListDebts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	settled, err := s.ledger.ListSettledDebts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteDebts(&buf, active, settled); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="deudas.xlsx"`)
	w.Write(buf.Bytes())
}

func (s *Server) elapsedHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	count, err := strconv.Atoi(q.Get("installment_count"))
	if err != nil || count < 1 {
		http.Error(w, "installment_count must be a positive integer", http.StatusBadRequest)
		return
	}
	elapsed, err := schedule.ElapsedFromString(q.Get("start_date"), count, time.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"elapsed_installments": elapsed})
}

func (s *Server) entitiesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	suggestions := entities.Suggest(q)
	if strings.TrimSpace(q) == "" {
		suggestions = entities.Known
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (s *Server) listMovementsHandler(w http.ResponseWriter, r *http.Request) {
	movements, err := s.cashflow.ListMovements(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, movements)
}

func (s *Server) createMovementHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind     models.MovementKind `json:"kind"`
		Category string              `json:"category"`
		Amount   amountField         `json:"amount"`
		Note     string              `json:"note"`
		Date     models.Date         `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m, err := s.cashflow.RecordMovement(r.Context(), cashflow.Input{
		Kind:     req.Kind,
		Category: req.Category,
		Amount:   string(req.Amount),
		Note:     req.Note,
		Date:     req.Date,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) deleteMovementHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := s.cashflow.DeleteMovement(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) movementSummaryHandler(w http.ResponseWriter, r *http.Request) {
	var from, to models.Date
	for _, p := range []struct {
		key string
		dst *models.Date
	}{{"from", &from}, {"to", &to}} {
		raw := r.URL.Query().Get(p.key)
		if raw == "" {
			continue
		}
		d, err := models.ParseDate(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		*p.dst = d
	}

	summary, err := s.cashflow.Summary(r.Context(), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) movementCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, cashflow.ExpenseCategories)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.Ping(r.Context()); err != nil {
		s.log.WithError(err).Warn("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
