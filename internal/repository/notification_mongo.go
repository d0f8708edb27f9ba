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

type MongoNotificationStore struct {
	coll *mongo.Collection
}

func NewMongoNotificationStore(db *mongo.Database) (*MongoNotificationStore, error) {
	coll := db.Collection("notifications")
	err := ensureIndexes(coll,
		mongo.IndexModel{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "read", Value: 1}},
			Options: options.Index().SetName("user_read_idx"),
		},
		mongo.IndexModel{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("user_created_idx"),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("notification indexes: %w", err)
	}
	return &MongoNotificationStore{coll: coll}, nil
}

func (r *MongoNotificationStore) Create(ctx context.Context, n *domain.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if _, err := r.coll.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("%w: insert notification: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (r *MongoNotificationStore) List(ctx context.Context, userID string, q NotificationQuery) ([]*domain.Notification, int64, error) {
	q = q.Normalize()
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	filter := bson.M{"user_id": userID}
	if q.UnreadOnly {
		filter["read"] = false
	}
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: count notifications: %v", domain.ErrPersistence, err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((q.Page - 1) * q.Limit)).
		SetLimit(int64(q.Limit))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: find notifications: %v", domain.ErrPersistence, err)
	}
	defer cur.Close(ctx)
	out := []*domain.Notification{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, fmt.Errorf("%w: decode notifications: %v", domain.ErrPersistence, err)
	}
	return out, total, nil
}

func (r *MongoNotificationStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	n, err := r.coll.CountDocuments(ctx, bson.M{"user_id": userID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("%w: count unread: %v", domain.ErrPersistence, err)
	}
	return n, nil
}

func (r *MongoNotificationStore) MarkRead(ctx context.Context, userID, id string) (*domain.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	filter := bson.M{"_id": id, "user_id": userID}
	// only stamp read_at on the first read
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id, "user_id": userID, "read": false},
		bson.M{"$set": bson.M{"read": true, "read_at": time.Now().UTC()}})
	if err != nil {
		return nil, fmt.Errorf("%w: mark notification read: %v", domain.ErrPersistence, err)
	}
	var n domain.Notification
	if err := r.coll.FindOne(ctx, filter).Decode(&n); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get notification: %v", domain.ErrPersistence, err)
	}
	return &n, nil
}

func (r *MongoNotificationStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := r.coll.UpdateMany(ctx, bson.M{"user_id": userID, "read": false},
		bson.M{"$set": bson.M{"read": true, "read_at": time.Now().UTC()}})
	if err != nil {
		return 0, fmt.Errorf("%w: mark all read: %v", domain.ErrPersistence, err)
	}
	return res.ModifiedCount, nil
}

func (r *MongoNotificationStore) Delete(ctx context.Context, userID, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return fmt.Errorf("%w: delete notification: %v", domain.ErrPersistence, err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
