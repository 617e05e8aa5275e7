package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore maps collections one to one onto MongoDB collections.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ DocumentStore = (*MongoStore)(nil)

// NewMongoStore connects to uri and pings the server.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (m *MongoStore) Create(ctx context.Context, collection, id string, doc any) error {
	if _, err := m.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert into %s: %w", collection, err)
	}
	return nil
}

func (m *MongoStore) Replace(ctx context.Context, collection, id string, doc any, opts ...ReplaceOption) error {
	o := applyReplaceOptions(opts)

	filter := bson.M{"_id": id}
	if o.ExpectedRevision != nil {
		filter[RevisionField] = *o.ExpectedRevision
	}

	res, err := m.db.Collection(collection).ReplaceOne(ctx, filter, doc)
	if err != nil {
		return fmt.Errorf("replace in %s: %w", collection, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := m.db.Collection(collection).CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("count %s: %w", collection, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrRevisionMismatch
}

func (m *MongoStore) Get(ctx context.Context, collection, id string, out any) error {
	err := m.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("find in %s: %w", collection, err)
	}
	return nil
}

func (m *MongoStore) FindAll(ctx context.Context, collection string, filter Filter, out any) error {
	cursor, err := m.db.Collection(collection).Find(ctx, mongoFilter(filter))
	if err != nil {
		return fmt.Errorf("find in %s: %w", collection, err)
	}
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s: %w", collection, err)
	}
	return nil
}

// mongoFilter translates the shared "id" key to Mongo's "_id" and Fold
// values to anchored case-insensitive regexes.
func mongoFilter(filter Filter) bson.M {
	out := bson.M{}
	for k, v := range filter {
		if k == "id" {
			k = "_id"
		}
		if s, ok := v.(Fold); ok {
			out[k] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(string(s)) + "$", Options: "i"}
			continue
		}
		out[k] = v
	}
	return out
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
