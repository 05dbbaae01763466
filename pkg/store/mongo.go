package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/finanzas/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	DebtsCollection        = "debts"
	SettledDebtsCollection = "settled_debts"
	MovementsCollection    = "movements"
)

// MongoStore keeps debts as documents. Decimals are stored as strings so no
// precision is lost to BSON doubles.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	// transactions enables multi-document transactions for SettleDebt. They
	// need a replica set; standalone servers settle with two sequential writes.
	transactions bool
	log          *logrus.Logger
}

// NewMongoStore connects to uri and uses database dbName.
func NewMongoStore(ctx context.Context, uri, dbName string, transactions bool, log *logrus.Logger) (*MongoStore, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("could not connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("could not ping mongo: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(dbName), transactions: transactions, log: log}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	log.WithFields(logrus.Fields{"db": dbName, "transactions": transactions}).Info("Mongo store ready")
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(SettledDebtsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "debt_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("could not create settled debt index: %w", err)
	}
	return nil
}

type debtDoc struct {
	ID               string    `bson:"_id"`
	Entity           string    `bson:"entity"`
	TotalDebt        string    `bson:"total_debt"`
	RemainingBalance string    `bson:"remaining_balance"`
	InstallmentValue string    `bson:"installment_value"`
	InstallmentCount int       `bson:"installment_count"`
	InstallmentsPaid int       `bson:"installments_paid"`
	TotalPaid        string    `bson:"total_paid"`
	StartDate        string    `bson:"start_date,omitempty"`
	IsLate           bool      `bson:"is_late"`
	CreatedAt        time.Time `bson:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

type settledDoc struct {
	ID        string    `bson:"_id"`
	DebtID    string    `bson:"debt_id"`
	Debt      debtDoc   `bson:"debt"`
	Overpaid  string    `bson:"overpaid"`
	SettledAt time.Time `bson:"settled_at"`
}

type movementDoc struct {
	ID        string    `bson:"_id"`
	Kind      string    `bson:"kind"`
	Category  string    `bson:"category"`
	Amount    string    `bson:"amount"`
	Note      string    `bson:"note,omitempty"`
	Date      string    `bson:"date"`
	CreatedAt time.Time `bson:"created_at"`
}

func newDebtDoc(d *models.Debt) debtDoc {
	return debtDoc{
		ID:               d.ID.String(),
		Entity:           d.Entity,
		TotalDebt:        d.TotalDebt.String(),
		RemainingBalance: d.RemainingBalance.String(),
		InstallmentValue: d.InstallmentValue.String(),
		InstallmentCount: d.InstallmentCount,
		InstallmentsPaid: d.InstallmentsPaid,
		TotalPaid:        d.TotalPaid.String(),
		StartDate:        d.StartDate.String(),
		IsLate:           d.IsLate,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func (doc debtDoc) toDebt() (*models.Debt, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("debt id %q: %w", doc.ID, err)
	}
	d := &models.Debt{
		ID:               id,
		Entity:           doc.Entity,
		InstallmentCount: doc.InstallmentCount,
		InstallmentsPaid: doc.InstallmentsPaid,
		IsLate:           doc.IsLate,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
	amounts := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{doc.TotalDebt, &d.TotalDebt},
		{doc.RemainingBalance, &d.RemainingBalance},
		{doc.InstallmentValue, &d.InstallmentValue},
		{doc.TotalPaid, &d.TotalPaid},
	}
	for _, a := range amounts {
		if *a.dst, err = parseStoredDecimal(a.raw); err != nil {
			return nil, fmt.Errorf("debt %s: %w", doc.ID, err)
		}
	}
	if doc.StartDate != "" {
		if d.StartDate, err = models.ParseDate(doc.StartDate); err != nil {
			return nil, fmt.Errorf("debt %s: %w", doc.ID, err)
		}
	}
	return d, nil
}

func parseStoredDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

// CreateDebt inserts a new debt document.
func (s *MongoStore) CreateDebt(ctx context.Context, debt *models.Debt) (uuid.UUID, error) {
	if debt.ID == uuid.Nil {
		debt.ID = uuid.New()
	}
	if _, err := s.db.Collection(DebtsCollection).InsertOne(ctx, newDebtDoc(debt)); err != nil {
		return uuid.Nil, wrap("create debt", err)
	}
	return debt.ID, nil
}

// GetDebt retrieves a debt by its ID.
func (s *MongoStore) GetDebt(ctx context.Context, id uuid.UUID) (*models.Debt, error) {
	var doc debtDoc
	err := s.db.Collection(DebtsCollection).FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("get debt")
		}
		return nil, wrap("get debt", err)
	}
	debt, err := doc.toDebt()
	if err != nil {
		return nil, wrap("get debt", err)
	}
	return debt, nil
}

// ListDebts retrieves all active debts, oldest first.
func (s *MongoStore) ListDebts(ctx context.Context) ([]*models.Debt, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := s.db.Collection(DebtsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, wrap("list debts", err)
	}
	defer cur.Close(ctx)

	debts := []*models.Debt{}
	for cur.Next(ctx) {
		var doc debtDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, wrap("decode debt", err)
		}
		debt, err := doc.toDebt()
		if err != nil {
			return nil, wrap("decode debt", err)
		}
		debts = append(debts, debt)
	}
	if err := cur.Err(); err != nil {
		return nil, wrap("list debts", err)
	}
	return debts, nil
}

// UpdateDebt $sets only the fields present in update.
func (s *MongoStore) UpdateDebt(ctx context.Context, id uuid.UUID, update models.DebtUpdate) error {
	res, err := s.db.Collection(DebtsCollection).UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": updateFields(update, time.Now())},
	)
	if err != nil {
		return wrap("update debt", err)
	}
	if res.MatchedCount == 0 {
		return notFound("update debt")
	}
	return nil
}

func updateFields(u models.DebtUpdate, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if u.Entity != nil {
		set["entity"] = *u.Entity
	}
	if u.TotalDebt != nil {
		set["total_debt"] = u.TotalDebt.String()
	}
	if u.RemainingBalance != nil {
		set["remaining_balance"] = u.RemainingBalance.String()
	}
	if u.InstallmentValue != nil {
		set["installment_value"] = u.InstallmentValue.String()
	}
	if u.InstallmentCount != nil {
		set["installment_count"] = *u.InstallmentCount
	}
	if u.InstallmentsPaid != nil {
		set["installments_paid"] = *u.InstallmentsPaid
	}
	if u.TotalPaid != nil {
		set["total_paid"] = u.TotalPaid.String()
	}
	if u.StartDate != nil {
		set["start_date"] = u.StartDate.String()
	}
	if u.IsLate != nil {
		set["is_late"] = *u.IsLate
	}
	return set
}

// DeleteDebt removes an active debt document.
func (s *MongoStore) DeleteDebt(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.Collection(DebtsCollection).DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return wrap("delete debt", err)
	}
	if res.DeletedCount == 0 {
		return notFound("delete debt")
	}
	return nil
}

func newSettledDoc(sd *models.SettledDebt) settledDoc {
	if sd.ID == uuid.Nil {
		sd.ID = uuid.New()
	}
	debt := sd.Debt
	debt.ID = sd.DebtID
	return settledDoc{
		ID:        sd.ID.String(),
		DebtID:    sd.DebtID.String(),
		Debt:      newDebtDoc(&debt),
		Overpaid:  sd.Overpaid.String(),
		SettledAt: sd.SettledAt,
	}
}

// ArchiveDebt appends a settled debt document.
func (s *MongoStore) ArchiveDebt(ctx context.Context, settled *models.SettledDebt) error {
	if _, err := s.db.Collection(SettledDebtsCollection).InsertOne(ctx, newSettledDoc(settled)); err != nil {
		return wrap("archive debt", err)
	}
	return nil
}

// SettleDebt moves a debt to the archive. Without transactions the archive is
// written first, so a failure in between leaves the debt in both collections
// for Reconcile to clean up, never in neither. When the active debt is already
// gone the new archive entry is removed again.
func (s *MongoStore) SettleDebt(ctx context.Context, settled *models.SettledDebt) error {
	doc := newSettledDoc(settled)
	move := func(ctx context.Context) error {
		if _, err := s.db.Collection(SettledDebtsCollection).InsertOne(ctx, doc); err != nil {
			return fmt.Errorf("failed to archive debt: %w", err)
		}
		res, err := s.db.Collection(DebtsCollection).DeleteOne(ctx, bson.M{"_id": doc.DebtID})
		if err != nil {
			return fmt.Errorf("failed to delete active debt: %w", err)
		}
		if res.DeletedCount == 0 {
			return ErrNotFound
		}
		return nil
	}

	if !s.transactions {
		if err := move(ctx); err != nil {
			if errors.Is(err, ErrNotFound) {
				// Nothing was active, so the archive entry just written is orphaned
				if _, derr := s.db.Collection(SettledDebtsCollection).DeleteOne(ctx, bson.M{"_id": doc.ID}); derr != nil {
					s.log.WithError(derr).WithField("debt_id", doc.DebtID).Error("Failed to remove orphaned archive entry")
				}
				return notFound("settle debt")
			}
			s.log.WithError(err).WithField("debt_id", doc.DebtID).Warn("Non-transactional settlement failed, reconcile will retry")
			return wrap("settle debt", err)
		}
		return nil
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return wrap("settle debt", fmt.Errorf("failed to start session: %w", err))
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, move(sc)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound("settle debt")
		}
		return wrap("settle debt", err)
	}
	return nil
}

// ListSettledDebts retrieves the archive, most recently settled first.
func (s *MongoStore) ListSettledDebts(ctx context.Context) ([]*models.SettledDebt, error) {
	opts := options.Find().SetSort(bson.D{{Key: "settled_at", Value: -1}})
	cur, err := s.db.Collection(SettledDebtsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, wrap("list settled debts", err)
	}
	defer cur.Close(ctx)

	settled := []*models.SettledDebt{}
	for cur.Next(ctx) {
		var doc settledDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, wrap("decode settled debt", err)
		}
		sd, err := doc.toSettled()
		if err != nil {
			return nil, wrap("decode settled debt", err)
		}
		settled = append(settled, sd)
	}
	if err := cur.Err(); err != nil {
		return nil, wrap("list settled debts", err)
	}
	return settled, nil
}

func (doc settledDoc) toSettled() (*models.SettledDebt, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("settled debt id %q: %w", doc.ID, err)
	}
	debt, err := doc.Debt.toDebt()
	if err != nil {
		return nil, err
	}
	overpaid, err := parseStoredDecimal(doc.Overpaid)
	if err != nil {
		return nil, fmt.Errorf("settled debt %s: %w", doc.ID, err)
	}
	return &models.SettledDebt{
		ID:        id,
		DebtID:    debt.ID,
		Debt:      *debt,
		Overpaid:  overpaid,
		SettledAt: doc.SettledAt,
	}, nil
}

// CreateMovement inserts an income or expense document.
func (s *MongoStore) CreateMovement(ctx context.Context, m *models.Movement) (uuid.UUID, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	doc := movementDoc{
		ID:        m.ID.String(),
		Kind:      string(m.Kind),
		Category:  m.Category,
		Amount:    m.Amount.String(),
		Note:      m.Note,
		Date:      m.Date.String(),
		CreatedAt: m.CreatedAt,
	}
	if _, err := s.db.Collection(MovementsCollection).InsertOne(ctx, doc); err != nil {
		return uuid.Nil, wrap("create movement", err)
	}
	return m.ID, nil
}

// ListMovements retrieves all movements, newest first.
func (s *MongoStore) ListMovements(ctx context.Context) ([]*models.Movement, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "created_at", Value: -1}})
	cur, err := s.db.Collection(MovementsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, wrap("list movements", err)
	}
	defer cur.Close(ctx)

	movements := []*models.Movement{}
	for cur.Next(ctx) {
		var doc movementDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, wrap("decode movement", err)
		}
		id, err := uuid.Parse(doc.ID)
		if err != nil {
			return nil, wrap("decode movement", err)
		}
		amount, err := parseStoredDecimal(doc.Amount)
		if err != nil {
			return nil, wrap("decode movement", err)
		}
		m := &models.Movement{
			ID:        id,
			Kind:      models.MovementKind(doc.Kind),
			Category:  doc.Category,
			Amount:    amount,
			Note:      doc.Note,
			CreatedAt: doc.CreatedAt,
		}
		if doc.Date != "" {
			if m.Date, err = models.ParseDate(doc.Date); err != nil {
				return nil, wrap("decode movement", err)
			}
		}
		movements = append(movements, m)
	}
	if err := cur.Err(); err != nil {
		return nil, wrap("list movements", err)
	}
	return movements, nil
}

// DeleteMovement removes a movement document.
func (s *MongoStore) DeleteMovement(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.Collection(MovementsCollection).DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return wrap("delete movement", err)
	}
	if res.DeletedCount == 0 {
		return notFound("delete movement")
	}
	return nil
}

// Ping checks the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return wrap("ping", s.client.Ping(ctx, readpref.Primary()))
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
