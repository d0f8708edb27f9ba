package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fathima-sithara/realtime-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoUserDirectory reads the users collection owned by the user service.
type MongoUserDirectory struct {
	coll *mongo.Collection
}

func NewMongoUserDirectory(db *mongo.Database) *MongoUserDirectory {
	return &MongoUserDirectory{coll: db.Collection("users")}
}

// idFilter matches both ObjectID and plain string primary keys.
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, id}}}
	}
	return bson.M{"_id": id}
}

func (d *MongoUserDirectory) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	n, err := d.coll.CountDocuments(ctx, idFilter(id), options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("%w: lookup user: %v", domain.ErrPersistence, err)
	}
	return n > 0, nil
}

func (d *MongoUserDirectory) Get(ctx context.Context, id string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var u domain.User
	if err := d.coll.FindOne(ctx, idFilter(id)).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get user: %v", domain.ErrPersistence, err)
	}
	return &u, nil
}
