// Package mongo holds the MongoDB read model of the reconciliation trail.
// PostgreSQL stays authoritative; documents here are rebuilt from outbox messages.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/gaming-vault-ledger/internal/domain/denomination"
)

const (
	// AuditCollectionName is the name of the reconciliation record collection in MongoDB
	AuditCollectionName = "vault_audit_records"
)

// recordDocument is the stored shape of an audit.Record. Ids are kept as strings and the
// denomination delta as a list, since BSON document keys must be strings.
type recordDocument struct {
	ID                string                      `bson:"_id"`
	VaultID           string                      `bson:"vault_id"`
	Sequence          int64                       `bson:"sequence"`
	Kind              string                      `bson:"kind"`
	Actor             string                      `bson:"actor"`
	Timestamp         time.Time                   `bson:"timestamp"`
	PreviousBalance   int64                       `bson:"previous_balance"`
	NewBalance        int64                       `bson:"new_balance"`
	Variance          int64                       `bson:"variance"`
	Discrepancy       *int64                      `bson:"discrepancy,omitempty"`
	DenominationDelta []denomination.Denomination `bson:"denomination_delta"`
	Reason            string                      `bson:"reason,omitempty"`
	Comment           string                      `bson:"comment,omitempty"`
	Reference         string                      `bson:"reference,omitempty"`
	IdempotencyKey    string                      `bson:"idempotency_key,omitempty"`
	CorrelationID     string                      `bson:"correlation_id,omitempty"`
}

func toDocument(r *audit.Record) recordDocument {
	delta := make([]denomination.Denomination, 0, len(r.DenominationDelta))
	for face, qty := range r.DenominationDelta {
		if qty != 0 {
			delta = append(delta, denomination.Denomination{FaceValue: face, Quantity: qty})
		}
	}
	sort.Slice(delta, func(i, j int) bool { return delta[i].FaceValue > delta[j].FaceValue })

	return recordDocument{
		ID:                r.ID.String(),
		VaultID:           r.VaultID.String(),
		Sequence:          r.Sequence,
		Kind:              string(r.Kind),
		Actor:             r.Actor,
		Timestamp:         r.Timestamp,
		PreviousBalance:   r.PreviousBalance,
		NewBalance:        r.NewBalance,
		Variance:          r.Variance,
		Discrepancy:       r.Discrepancy,
		DenominationDelta: delta,
		Reason:            r.Reason,
		Comment:           r.Comment,
		Reference:         r.Reference,
		IdempotencyKey:    r.IdempotencyKey,
		CorrelationID:     r.CorrelationID,
	}
}

func (d recordDocument) toRecord() (*audit.Record, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid record id %q: %w", d.ID, err)
	}
	vaultID, err := uuid.Parse(d.VaultID)
	if err != nil {
		return nil, fmt.Errorf("invalid vault id %q: %w", d.VaultID, err)
	}

	delta := make(denomination.Delta, len(d.DenominationDelta))
	for _, e := range d.DenominationDelta {
		delta[e.FaceValue] = e.Quantity
	}

	return &audit.Record{
		ID:                id,
		VaultID:           vaultID,
		Sequence:          d.Sequence,
		Kind:              audit.Kind(d.Kind),
		Actor:             d.Actor,
		Timestamp:         d.Timestamp,
		PreviousBalance:   d.PreviousBalance,
		NewBalance:        d.NewBalance,
		Variance:          d.Variance,
		Discrepancy:       d.Discrepancy,
		DenominationDelta: delta,
		Reason:            d.Reason,
		Comment:           d.Comment,
		Reference:         d.Reference,
		IdempotencyKey:    d.IdempotencyKey,
		CorrelationID:     d.CorrelationID,
	}, nil
}

// AuditIndexes serve History, which filters by vault and pages newest sequence first
func AuditIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "vault_id", Value: 1}, {Key: "sequence", Value: -1}},
			Options: options.Index().SetName("vault_sequence").SetUnique(true),
		},
	}
}

// AuditProjectionRepository implements the audit.ProjectionRepository interface for MongoDB
type AuditProjectionRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewAuditProjectionRepository creates a new MongoDB audit projection repository
func NewAuditProjectionRepository(logger *slog.Logger, db *mongo.Database) audit.ProjectionRepository {
	return &AuditProjectionRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert stores a record keyed by its id. Replaying the same outbox message is a no-op.
func (r *AuditProjectionRepository) Upsert(ctx context.Context, record *audit.Record) error {
	collection := r.db.Collection(AuditCollectionName)

	doc := toDocument(record)
	opts := options.Replace().SetUpsert(true)
	if _, err := collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		r.logger.Error("Failed to upsert reconciliation record",
			"record_id", doc.ID,
			"vault_id", doc.VaultID,
			"error", err)
		return fmt.Errorf("failed to upsert reconciliation record: %w", err)
	}

	return nil
}

// GetByID retrieves a projected record.
// Returns ErrRecordNotFound if it has not been projected yet.
func (r *AuditProjectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*audit.Record, error) {
	collection := r.db.Collection(AuditCollectionName)

	var doc recordDocument
	err := collection.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, audit.ErrRecordNotFound{RecordID: id}
		}
		r.logger.Error("Failed to get reconciliation record",
			"record_id", id.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get reconciliation record: %w", err)
	}

	return doc.toRecord()
}

// GetByVaultID pages through a vault's projected trail, highest sequence first
func (r *AuditProjectionRepository) GetByVaultID(ctx context.Context, vaultID uuid.UUID, limit, offset int) ([]*audit.Record, error) {
	collection := r.db.Collection(AuditCollectionName)

	opts := options.Find().
		SetSort(bson.D{{Key: "sequence", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, bson.M{"vault_id": vaultID.String()}, opts)
	if err != nil {
		r.logger.Error("Failed to get reconciliation records",
			"vault_id", vaultID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get reconciliation records: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []recordDocument
	if err := cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode reconciliation records",
			"vault_id", vaultID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode reconciliation records: %w", err)
	}

	records := make([]*audit.Record, 0, len(docs))
	for _, doc := range docs {
		record, err := doc.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// CountByVaultID counts a vault's projected records
func (r *AuditProjectionRepository) CountByVaultID(ctx context.Context, vaultID uuid.UUID) (int64, error) {
	collection := r.db.Collection(AuditCollectionName)

	count, err := collection.CountDocuments(ctx, bson.M{"vault_id": vaultID.String()})
	if err != nil {
		r.logger.Error("Failed to count reconciliation records",
			"vault_id", vaultID.String(),
			"error", err)
		return 0, fmt.Errorf("failed to count reconciliation records: %w", err)
	}

	return count, nil
}
