// Package mongo persists timers and their audit log in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/models"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/store"
)

const (
	timersCollection  = "timers"
	actionsCollection = "timer_actions"
)

type Config struct {
	URL      string
	Database string
}

type Store struct {
	cfg     Config
	client  *mongo.Client
	db      *mongo.Database
	timers  *mongo.Collection
	actions *mongo.Collection
}

func NewStore(cfg Config) *Store {
	if cfg.URL == "" {
		cfg.URL = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "playhouse_timer"
	}
	return &Store{cfg: cfg}
}

// Start connects and ensures the indexes exist.
func (s *Store) Start(ctx context.Context) error {
	clientOptions := options.Client().ApplyURI(s.cfg.URL).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("cannot connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("cannot ping MongoDB: %w", err)
	}

	s.client = client
	s.db = client.Database(s.cfg.Database)
	s.timers = s.db.Collection(timersCollection)
	s.actions = s.db.Collection(actionsCollection)

	timerIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "timerId", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}
	if _, err := s.timers.Indexes().CreateMany(ctx, timerIndexes); err != nil {
		return fmt.Errorf("cannot create timer indexes: %w", err)
	}

	actionIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "timerId", Value: 1}}},
	}
	if _, err := s.actions.Indexes().CreateMany(ctx, actionIndexes); err != nil {
		return fmt.Errorf("cannot create action indexes: %w", err)
	}

	log.Info().Str("database", s.cfg.Database).Msg("Connected to MongoDB")
	return nil
}

func (s *Store) Stop(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("cannot disconnect from MongoDB: %w", err)
	}
	log.Info().Msg("Disconnected from MongoDB")
	return nil
}

func (s *Store) CreateTimer(ctx context.Context, rec models.TimerRecord) (string, error) {
	res, err := s.timers.InsertOne(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("cannot insert timer %s: %w", rec.TimerID, err)
	}
	return refString(res.InsertedID), nil
}

func (s *Store) UpdateTimer(ctx context.Context, ref string, rec models.TimerRecord) error {
	result, err := s.timers.UpdateOne(ctx, bson.M{"_id": refFilter(ref)}, bson.M{"$set": rec})
	if err != nil {
		return fmt.Errorf("cannot update timer %s: %w", ref, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("update timer %s: %w", ref, store.ErrNotFound)
	}
	return nil
}

func (s *Store) GetTimer(ctx context.Context, timerID string) (*models.TimerRecord, error) {
	var doc bson.M
	err := s.timers.FindOne(ctx, bson.M{"timerId": timerID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("cannot find timer %s: %w", timerID, err)
	}
	rec := decodeTimer(doc)
	return &rec, nil
}

// ListActiveTimers returns every record not yet ended or expired. Records
// without a status are included.
func (s *Store) ListActiveTimers(ctx context.Context) ([]models.TimerRecord, error) {
	filter := bson.M{"status": bson.M{"$nin": bson.A{models.StateEnded, models.StateExpired}}}
	return s.findTimers(ctx, filter)
}

func (s *Store) AppendAction(ctx context.Context, entry models.AuditEntry) error {
	if _, err := s.actions.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("cannot insert %s action for %s: %w", entry.Action, entry.TimerID, err)
	}
	return nil
}

func (s *Store) ListTimersCreatedBetween(ctx context.Context, from, to time.Time) ([]models.TimerRecord, error) {
	return s.findTimers(ctx, bson.M{"createdAt": between(from, to)})
}

func (s *Store) ListTimersCreatedSince(ctx context.Context, since time.Time) ([]models.TimerRecord, error) {
	return s.findTimers(ctx, bson.M{"createdAt": between(since, time.Time{})})
}

func (s *Store) ListActionsBetween(ctx context.Context, from, to time.Time) ([]models.AuditEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := s.actions.Find(ctx, bson.M{"timestamp": between(from, to)}, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find actions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("cannot decode actions: %w", err)
	}
	out := make([]models.AuditEntry, 0, len(docs))
	for _, doc := range docs {
		entry, ok := store.DecodeAction(map[string]any(doc))
		if !ok {
			log.Warn().Interface("id", doc["_id"]).Msg("Skipping unreadable timer action")
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) findTimers(ctx context.Context, filter bson.M) ([]models.TimerRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.timers.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find timers: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("cannot decode timers: %w", err)
	}
	out := make([]models.TimerRecord, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeTimer(doc))
	}
	return out, nil
}

func decodeTimer(doc bson.M) models.TimerRecord {
	return store.DecodeTimer(refString(doc["_id"]), map[string]any(doc))
}

func between(from, to time.Time) bson.M {
	cond := bson.M{}
	if !from.IsZero() {
		cond["$gte"] = from
	}
	if !to.IsZero() {
		cond["$lte"] = to
	}
	if len(cond) == 0 {
		cond["$exists"] = true
	}
	return cond
}

// refString turns a document id into the storage ref handed to the manager.
func refString(id any) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	case nil:
		return ""
	}
	return fmt.Sprint(id)
}

// refFilter is the inverse of refString. Ids written by other clients may be
// plain strings.
func refFilter(ref string) any {
	if oid, err := primitive.ObjectIDFromHex(ref); err == nil {
		return oid
	}
	return ref
}
