package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mediastream/internal/domain"
)

type resumeDoc struct {
	ID        string  `bson:"_id"` // the source URL
	Position  float64 `bson:"position"`
	Duration  float64 `bson:"duration"`
	Profile   string  `bson:"profile,omitempty"`
	UpdatedAt int64   `bson:"updatedAt"`
}

// ResumeRepository stores playback positions keyed by source URL.
type ResumeRepository struct {
	collection *mongo.Collection
}

func NewResumeRepository(client *mongo.Client, dbName string) *ResumeRepository {
	return &ResumeRepository{collection: client.Database(dbName).Collection("resume_positions")}
}

// Connect dials mongo with the given URI plus any extra client options
// (tracing monitors and the like).
func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *ResumeRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *ResumeRepository) Upsert(ctx context.Context, pos domain.ResumePosition) error {
	update := bson.M{
		"$set": bson.M{
			"position":  pos.Position,
			"duration":  pos.Duration,
			"profile":   pos.Profile,
			"updatedAt": time.Now().Unix(),
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": pos.SourceURL},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *ResumeRepository) Get(ctx context.Context, sourceURL string) (domain.ResumePosition, error) {
	var doc resumeDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": sourceURL}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ResumePosition{}, domain.ErrNotFound
		}
		return domain.ResumePosition{}, err
	}
	return resumeDocToPosition(doc), nil
}

func (r *ResumeRepository) ListRecent(ctx context.Context, limit int) ([]domain.ResumePosition, error) {
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []resumeDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	positions := make([]domain.ResumePosition, 0, len(docs))
	for _, doc := range docs {
		positions = append(positions, resumeDocToPosition(doc))
	}
	return positions, nil
}

func resumeDocToPosition(doc resumeDoc) domain.ResumePosition {
	return domain.ResumePosition{
		SourceURL: doc.ID,
		Position:  doc.Position,
		Duration:  doc.Duration,
		Profile:   doc.Profile,
		UpdatedAt: time.Unix(doc.UpdatedAt, 0).UTC(),
	}
}
