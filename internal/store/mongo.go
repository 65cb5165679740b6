package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/credrisk/diligence-engine/internal/models"
)

// MongoStore keeps the document-shaped research payloads: per-iteration raw
// text with extracted findings, and per-request consolidations.
type MongoStore struct {
	iterations     *mongo.Collection
	consolidations *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		iterations:     db.Collection("iteration_documents"),
		consolidations: db.Collection("consolidations"),
	}
}

// SaveIterationDocument upserts the full iteration payload, keyed by job and
// iteration number so a reduced-field retry never duplicates.
func (s *MongoStore) SaveIterationDocument(ctx context.Context, doc *models.IterationDocument) error {
	doc.CreatedAt = time.Now()
	filter := bson.M{"job_id": doc.JobID, "number": doc.Number}
	_, err := s.iterations.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo save iteration: %w", err)
	}
	return nil
}

// ListDocumentsByJobs returns all iteration documents belonging to the given
// job ids, ordered by job then iteration number.
func (s *MongoStore) ListDocumentsByJobs(ctx context.Context, jobIDs []string) ([]models.IterationDocument, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "job_id", Value: 1}, {Key: "number", Value: 1}})
	cur, err := s.iterations.Find(ctx, bson.M{"job_id": bson.M{"$in": jobIDs}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []models.IterationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// consolidationRecord wraps the pure consolidation value with storage metadata.
type consolidationRecord struct {
	RequestID   string                       `bson:"request_id"`
	Findings    *models.ConsolidatedFindings `bson:"findings"`
	GeneratedAt time.Time                    `bson:"generated_at"`
}

// SaveConsolidation replaces the consolidation for a request. Consolidation
// is rebuilt from scratch on every run, never mutated in place.
func (s *MongoStore) SaveConsolidation(ctx context.Context, cf *models.ConsolidatedFindings) error {
	rec := consolidationRecord{RequestID: cf.RequestID, Findings: cf, GeneratedAt: time.Now()}
	filter := bson.M{"request_id": cf.RequestID}
	_, err := s.consolidations.ReplaceOne(ctx, filter, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo save consolidation: %w", err)
	}
	return nil
}

func (s *MongoStore) GetConsolidation(ctx context.Context, requestID string) (*models.ConsolidatedFindings, error) {
	var rec consolidationRecord
	if err := s.consolidations.FindOne(ctx, bson.M{"request_id": requestID}).Decode(&rec); err != nil {
		return nil, err
	}
	return rec.Findings, nil
}
