package orderstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tmarchand/order-enrichment/internal/domain"
)

// Store is C2: idempotent persistence of EnrichedOrder with indexed
// lookups. It owns the orders collection; nothing else mutates it.
type Store struct {
	collection *mongo.Collection
}

func New(client *mongo.Client, database string) *Store {
	return &Store{collection: client.Database(database).Collection("orders")}
}

// EnsureIndexes creates the unique and compound indexes required by §4.2.
// Called once at startup; the caller treats a failure here as fatal rather
// than accepting writes against an under-indexed collection.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "orderId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "customerId", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "processedAt", Value: -1}}},
		{Keys: bson.D{{Key: "customerId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "processedAt", Value: -1}}},
		{Keys: bson.D{{Key: "customerId", Value: 1}, {Key: "processedAt", Value: -1}}},
	}
	if _, err := s.collection.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("ensure order store indexes: %w", err)
	}
	return nil
}

// Exists reports whether a record for orderId is already stored.
func (s *Store) Exists(ctx context.Context, orderID string) (bool, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{"orderId": orderID})
	if err != nil {
		return false, domain.NewStorage(err)
	}
	return n > 0, nil
}

// FindByOrderID returns the stored record and true if one exists, or the
// zero value and false otherwise.
func (s *Store) FindByOrderID(ctx context.Context, orderID string) (domain.EnrichedOrder, bool, error) {
	var order domain.EnrichedOrder
	err := s.collection.FindOne(ctx, bson.M{"orderId": orderID}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.EnrichedOrder{}, false, nil
	}
	if err != nil {
		return domain.EnrichedOrder{}, false, domain.NewStorage(err)
	}
	return order, true, nil
}

// Save inserts order. A unique-constraint violation on orderId maps to
// Duplicate(orderId) rather than a generic storage error, so callers can
// recover it locally per the propagation policy.
func (s *Store) Save(ctx context.Context, order domain.EnrichedOrder) (domain.EnrichedOrder, error) {
	if _, err := s.collection.InsertOne(ctx, order); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.EnrichedOrder{}, domain.NewDuplicate(order.OrderID)
		}
		return domain.EnrichedOrder{}, domain.NewStorage(err)
	}
	return order, nil
}

// FindByCustomerID honors the customerId index for the out-of-core query
// API.
func (s *Store) FindByCustomerID(ctx context.Context, customerID string) ([]domain.EnrichedOrder, error) {
	return s.find(ctx, bson.M{"customerId": customerID})
}

// FindByStatus honors the status index for the out-of-core query API.
func (s *Store) FindByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.EnrichedOrder, error) {
	return s.find(ctx, bson.M{"status": status})
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]domain.EnrichedOrder, error) {
	cursor, err := s.collection.Find(ctx, filter)
	if err != nil {
		return nil, domain.NewStorage(err)
	}
	defer cursor.Close(ctx)

	var orders []domain.EnrichedOrder
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, domain.NewStorage(err)
	}
	return orders, nil
}
