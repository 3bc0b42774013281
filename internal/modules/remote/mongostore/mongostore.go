// Package mongostore implements the remote store on MongoDB.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/mx-space/journal/internal/models"
	"github.com/mx-space/journal/internal/modules/remote"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	collEntries   = "journal_entries"
	collWeekly    = "weekly_summaries"
	collSummaries = "entry_summaries"
	collHolds     = "entry_hold_statuses"
)

// Store is a remote.Store over one MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

var _ remote.Store = (*Store)(nil)

// Connect dials uri, verifies connectivity and ensures indexes.
func Connect(ctx context.Context, uri, database string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s := &Store{client: client, db: client.Database(database), logger: logger.Named("MongoStore")}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		collEntries: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		collWeekly: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "week_start", Value: 1}, {Key: "week_end", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		collSummaries: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "entry_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		collHolds: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "entry_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
	for name, idx := range specs {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("mongo indexes %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func listByUser[T any](ctx context.Context, coll *mongo.Collection, userID string) ([]T, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find %s: %w", coll.Name(), err)
	}
	out := make([]T, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongo decode %s: %w", coll.Name(), err)
	}
	return out, nil
}

func insert(ctx context.Context, coll *mongo.Collection, doc interface{}) error {
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return remote.ErrConflict
		}
		return fmt.Errorf("mongo insert %s: %w", coll.Name(), err)
	}
	return nil
}

func replace(ctx context.Context, coll *mongo.Collection, userID, id string, doc interface{}) error {
	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id, "user_id": userID}, doc)
	if err != nil {
		return fmt.Errorf("mongo replace %s: %w", coll.Name(), err)
	}
	if res.MatchedCount == 0 {
		return remote.ErrNotFound
	}
	return nil
}

func deleteOne(ctx context.Context, coll *mongo.Collection, filter bson.M, mustExist bool) error {
	res, err := coll.DeleteMany(ctx, filter)
	if err != nil {
		return fmt.Errorf("mongo delete %s: %w", coll.Name(), err)
	}
	if mustExist && res.DeletedCount == 0 {
		return remote.ErrNotFound
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context, userID string) ([]models.JournalEntry, error) {
	return listByUser[models.JournalEntry](ctx, s.db.Collection(collEntries), userID)
}

func (s *Store) CreateEntry(ctx context.Context, entry *models.JournalEntry) error {
	entry.EnsureID()
	return insert(ctx, s.db.Collection(collEntries), entry)
}

func (s *Store) UpdateEntry(ctx context.Context, entry *models.JournalEntry) error {
	return replace(ctx, s.db.Collection(collEntries), entry.UserID, entry.ID, entry)
}

func (s *Store) DeleteEntry(ctx context.Context, userID, id string) error {
	return deleteOne(ctx, s.db.Collection(collEntries), bson.M{"_id": id, "user_id": userID}, true)
}

func (s *Store) ListWeeklySummaries(ctx context.Context, userID string) ([]models.WeeklySummary, error) {
	return listByUser[models.WeeklySummary](ctx, s.db.Collection(collWeekly), userID)
}

func (s *Store) CreateWeeklySummary(ctx context.Context, summary *models.WeeklySummary) error {
	summary.EnsureID()
	return insert(ctx, s.db.Collection(collWeekly), summary)
}

func (s *Store) DeleteWeeklySummary(ctx context.Context, userID, id string) error {
	return deleteOne(ctx, s.db.Collection(collWeekly), bson.M{"_id": id, "user_id": userID}, true)
}

func (s *Store) ListEntrySummaries(ctx context.Context, userID string) ([]models.EntrySummary, error) {
	return listByUser[models.EntrySummary](ctx, s.db.Collection(collSummaries), userID)
}

func (s *Store) CreateEntrySummary(ctx context.Context, summary *models.EntrySummary) error {
	summary.EnsureID()
	return insert(ctx, s.db.Collection(collSummaries), summary)
}

func (s *Store) DeleteEntrySummary(ctx context.Context, userID, id string) error {
	return deleteOne(ctx, s.db.Collection(collSummaries), bson.M{"_id": id, "user_id": userID}, true)
}

func (s *Store) RemoveEntrySummary(ctx context.Context, userID, entryID string) error {
	return deleteOne(ctx, s.db.Collection(collSummaries), bson.M{"entry_id": entryID, "user_id": userID}, false)
}

func (s *Store) ListHoldStatuses(ctx context.Context, userID string) ([]models.EntryHoldStatus, error) {
	return listByUser[models.EntryHoldStatus](ctx, s.db.Collection(collHolds), userID)
}

func (s *Store) CreateHoldStatus(ctx context.Context, status *models.EntryHoldStatus) error {
	status.EnsureID()
	return insert(ctx, s.db.Collection(collHolds), status)
}

func (s *Store) UpdateHoldStatus(ctx context.Context, status *models.EntryHoldStatus) error {
	return replace(ctx, s.db.Collection(collHolds), status.UserID, status.ID, status)
}

func (s *Store) DeleteHoldStatus(ctx context.Context, userID, id string) error {
	return deleteOne(ctx, s.db.Collection(collHolds), bson.M{"_id": id, "user_id": userID}, true)
}

func (s *Store) RemoveHoldStatus(ctx context.Context, userID, entryID string) error {
	return deleteOne(ctx, s.db.Collection(collHolds), bson.M{"entry_id": entryID, "user_id": userID}, false)
}
