package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoMessageStore struct {
	coll *mongo.Collection
}

func NewMongoMessageStore(db *mongo.Database) (*MongoMessageStore, error) {
	coll := db.Collection("messages")
	err := ensureIndexes(coll,
		mongo.IndexModel{
			Keys:    bson.D{{Key: "sender_id", Value: 1}, {Key: "recipient_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("conversation_created_idx"),
		},
		mongo.IndexModel{
			Keys:    bson.D{{Key: "recipient_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("recipient_status_idx"),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("message indexes: %w", err)
	}
	return &MongoMessageStore{coll: coll}, nil
}

func (r *MongoMessageStore) Create(ctx context.Context, m *domain.Message) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if _, err := r.coll.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("%w: insert message: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (r *MongoMessageStore) Get(ctx context.Context, id string) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var m domain.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get message: %v", domain.ErrPersistence, err)
	}
	return &m, nil
}

func (r *MongoMessageStore) ListConversation(ctx context.Context, userA, userB string) ([]*domain.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": userA, "recipient_id": userB},
		bson.M{"sender_id": userB, "recipient_id": userA},
	}}
	return r.find(ctx, filter)
}

func (r *MongoMessageStore) Find(ctx context.Context, f StatusFilter) ([]*domain.Message, error) {
	return r.find(ctx, toBSON(f, f.Statuses))
}

func (r *MongoMessageStore) UpdateStatus(ctx context.Context, f StatusFilter, status domain.Status) (int64, error) {
	statuses := f.guarded(status)
	if len(statuses) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	set := bson.M{"status": status}
	if status == domain.StatusRead {
		set["read_at"] = time.Now().UTC()
	}
	res, err := r.coll.UpdateMany(ctx, toBSON(f, statuses), bson.M{"$set": set})
	if err != nil {
		return 0, fmt.Errorf("%w: update status: %v", domain.ErrPersistence, err)
	}
	return res.ModifiedCount, nil
}

func (r *MongoMessageStore) find(ctx context.Context, filter bson.M) ([]*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: find messages: %v", domain.ErrPersistence, err)
	}
	defer cur.Close(ctx)
	out := []*domain.Message{}
	for cur.Next(ctx) {
		var m domain.Message
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("%w: decode message: %v", domain.ErrPersistence, err)
		}
		out = append(out, &m)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: cursor: %v", domain.ErrPersistence, err)
	}
	return out, nil
}

func toBSON(f StatusFilter, statuses []domain.Status) bson.M {
	filter := bson.M{}
	if len(f.IDs) > 0 {
		filter["_id"] = bson.M{"$in": f.IDs}
	}
	if f.SenderID != "" {
		filter["sender_id"] = f.SenderID
	}
	if f.RecipientID != "" {
		filter["recipient_id"] = f.RecipientID
	}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	return filter
}
