package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBStore implements Store using MongoDB. The rate-limit check is not
// atomic against concurrent callers the way the Postgres locking upsert is;
// it is offered for deployments that already standardise on MongoDB and can
// tolerate the narrower race (an occasional over-count by one caller).
type MongoDBStore struct {
	client        *mongo.Client
	verifications *mongo.Collection
	rateBuckets   *mongo.Collection
	webhookLog    *mongo.Collection
}

// NewMongoDBStore creates a new MongoDB-backed store.
func NewMongoDBStore(connectionString, database string) (*MongoDBStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	store := &MongoDBStore{
		client:        client,
		verifications: db.Collection("verifications"),
		rateBuckets:   db.Collection("rate_buckets"),
		webhookLog:    db.Collection("webhook_deliveries"),
	}

	if err := store.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

func (s *MongoDBStore) createIndexes(ctx context.Context) error {
	_, err := s.verifications.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "wallet_address", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create verifications index: %w", err)
	}

	_, err = s.rateBuckets.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "wallet_address", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create rate buckets index: %w", err)
	}

	_, err = s.webhookLog.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "delivery_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create webhook log index: %w", err)
	}
	return nil
}

type verificationDoc struct {
	WalletAddress        string    `bson:"wallet_address"`
	BusinessName          string    `bson:"business_name"`
	ExternalUserID        string    `bson:"external_user_id"`
	Total                 int       `bson:"total"`
	Credited              int       `bson:"credited"`
	UniqueCounterparties  int       `bson:"unique_counterparties"`
	DecisionStatus        string    `bson:"decision_status"`
	FailureReason         string    `bson:"failure_reason"`
	UpdatedAt             time.Time `bson:"updated_at"`
}

// UpsertVerification inserts or updates the record for a wallet.
func (s *MongoDBStore) UpsertVerification(ctx context.Context, rec VerificationRecord) (VerificationRecord, error) {
	now := time.Now()
	doc := verificationDoc{
		WalletAddress:        rec.WalletAddress,
		BusinessName:         rec.BusinessName,
		ExternalUserID:       rec.ExternalUserID,
		Total:                rec.Total,
		Credited:             rec.Credited,
		UniqueCounterparties: rec.UniqueCounterparties,
		DecisionStatus:       rec.DecisionStatus,
		FailureReason:        rec.FailureReason,
		UpdatedAt:            now,
	}

	_, err := s.verifications.UpdateOne(ctx,
		bson.M{"wallet_address": rec.WalletAddress},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return VerificationRecord{}, fmt.Errorf("upsert verification: %w", err)
	}

	rec.UpdatedAt = now
	rec.ID = rec.WalletAddress
	return rec, nil
}

// GetVerificationByWallet retrieves a verification record by wallet address.
func (s *MongoDBStore) GetVerificationByWallet(ctx context.Context, wallet string) (VerificationRecord, error) {
	var doc verificationDoc
	err := s.verifications.FindOne(ctx, bson.M{"wallet_address": wallet}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return VerificationRecord{}, ErrNotFound
	}
	if err != nil {
		return VerificationRecord{}, fmt.Errorf("get verification: %w", err)
	}

	return VerificationRecord{
		ID:                   wallet,
		WalletAddress:        doc.WalletAddress,
		BusinessName:         doc.BusinessName,
		ExternalUserID:       doc.ExternalUserID,
		Total:                doc.Total,
		Credited:             doc.Credited,
		UniqueCounterparties: doc.UniqueCounterparties,
		DecisionStatus:       doc.DecisionStatus,
		FailureReason:        doc.FailureReason,
		UpdatedAt:            doc.UpdatedAt,
	}, nil
}

type rateBucketDoc struct {
	WalletAddress string    `bson:"wallet_address"`
	Count         int       `bson:"count"`
	WindowStart   time.Time `bson:"window_start"`
}

// CheckRateLimit applies the sliding-window rule via find-then-update;
// MongoDB's per-document update is atomic but the read is separate, so this
// relies on low contention per wallet rather than a single-statement lock.
func (s *MongoDBStore) CheckRateLimit(ctx context.Context, wallet string, max int, window time.Duration) (bool, int, time.Time, error) {
	now := time.Now()

	var existing rateBucketDoc
	err := s.rateBuckets.FindOne(ctx, bson.M{"wallet_address": wallet}).Decode(&existing)
	if err != nil && err != mongo.ErrNoDocuments {
		return false, 0, time.Time{}, fmt.Errorf("check rate limit: %w", err)
	}

	var next rateBucketDoc
	if err == mongo.ErrNoDocuments || now.Sub(existing.WindowStart) >= window {
		next = rateBucketDoc{WalletAddress: wallet, Count: 1, WindowStart: now}
	} else if existing.Count < max {
		next = rateBucketDoc{WalletAddress: wallet, Count: existing.Count + 1, WindowStart: existing.WindowStart}
	} else {
		// At the limit within the window: leave the bucket unchanged and refuse.
		return false, existing.Count, existing.WindowStart.Add(window), nil
	}

	_, updateErr := s.rateBuckets.UpdateOne(ctx,
		bson.M{"wallet_address": wallet},
		bson.M{"$set": next},
		options.Update().SetUpsert(true),
	)
	if updateErr != nil {
		return false, 0, time.Time{}, fmt.Errorf("check rate limit: %w", updateErr)
	}

	resetAt := next.WindowStart.Add(window)
	allowed := next.Count <= max
	return allowed, next.Count, resetAt, nil
}

// CheckAllowance always permits with an unlimited remaining quota:
// MongoDBStore keeps no quota ledger and calls no subscription service,
// matching the core's opaque allowance model.
func (s *MongoDBStore) CheckAllowance(_ context.Context, _ string) (bool, int, error) {
	return true, -1, nil
}

// IncrementUsage is a no-op: usage accounting lives with the external
// subscription service.
func (s *MongoDBStore) IncrementUsage(_ context.Context, _ string) error {
	return nil
}

type webhookDeliveryDoc struct {
	DeliveryID      string     `bson:"delivery_id"`
	VerificationID  string     `bson:"verification_id"`
	WebhookURL      string     `bson:"webhook_url"`
	Payload         string     `bson:"payload"`
	Status          string     `bson:"status"`
	HTTPStatus      int        `bson:"http_status"`
	ResponseSnippet string     `bson:"response_snippet"`
	ErrorMessage    string     `bson:"error_message"`
	Attempt         int        `bson:"attempt"`
	CreatedAt       time.Time  `bson:"created_at"`
	CompletedAt     *time.Time `bson:"completed_at,omitempty"`
}

// LogWebhookDelivery records a new delivery attempt row.
func (s *MongoDBStore) LogWebhookDelivery(ctx context.Context, d WebhookDelivery) error {
	doc := webhookDeliveryDoc{
		DeliveryID:      d.DeliveryID,
		VerificationID:  d.VerificationID,
		WebhookURL:      d.WebhookURL,
		Payload:         d.Payload,
		Status:          string(d.Status),
		HTTPStatus:      d.HTTPStatus,
		ResponseSnippet: d.ResponseSnippet,
		ErrorMessage:    d.ErrorMessage,
		Attempt:         d.Attempt,
		CreatedAt:       time.Now(),
	}
	_, err := s.webhookLog.InsertOne(ctx, doc)
	return err
}

// UpdateWebhookDelivery finalises a previously logged delivery row.
func (s *MongoDBStore) UpdateWebhookDelivery(ctx context.Context, d WebhookDelivery) error {
	result, err := s.webhookLog.UpdateOne(ctx,
		bson.M{"delivery_id": d.DeliveryID},
		bson.M{"$set": bson.M{
			"status":           string(d.Status),
			"http_status":      d.HTTPStatus,
			"response_snippet": d.ResponseSnippet,
			"error_message":    d.ErrorMessage,
			"attempt":          d.Attempt,
			"completed_at":     d.CompletedAt,
		}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Close disconnects the underlying MongoDB client.
func (s *MongoDBStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
