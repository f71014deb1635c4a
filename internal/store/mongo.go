package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/medassist/med-ai/backend/internal/model/chat"
)

const (
	chatsCollection      = "chats"
	rateLimitsCollection = "rateLimits"
)

// Mongo implements ChatStore and RateLimitStore over a MongoDB database.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongo connects to MongoDB and verifies the connection.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Mongo{client: client, db: client.Database(database)}, nil
}

// EnsureIndexes creates the unique chat index plus the client-id and
// TTL indexes for rate-limit records. Records expire one window past
// their windowStart.
func (m *Mongo) EnsureIndexes(ctx context.Context, rateLimitWindow time.Duration) error {
	_, err := m.db.Collection(chatsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create chat index: %w", err)
	}

	_, err = m.db.Collection(rateLimitsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "clientId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "windowStart", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(rateLimitWindow.Seconds())),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create rate limit indexes: %w", err)
	}

	return nil
}

// Close disconnects the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) FindChat(ctx context.Context, id string) (*chat.Chat, error) {
	var c chat.Chat
	err := m.db.Collection(chatsCollection).FindOne(ctx, bson.M{"id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	return &c, nil
}

func (m *Mongo) InsertChat(ctx context.Context, c *chat.Chat) error {
	if _, err := m.db.Collection(chatsCollection).InsertOne(ctx, c); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

func (m *Mongo) UpdateChat(ctx context.Context, id string, update ChatUpdate, appendMessages []chat.Message) error {
	set := bson.M{
		"title":     update.Title,
		"path":      update.Path,
		"updatedAt": update.UpdatedAt,
	}
	if update.SharePath != "" {
		set["sharePath"] = update.SharePath
	}

	op := bson.M{"$set": set}
	if len(appendMessages) > 0 {
		op["$push"] = bson.M{"messages": bson.M{"$each": appendMessages}}
	}

	res, err := m.db.Collection(chatsCollection).UpdateOne(ctx, bson.M{"id": id}, op)
	if err != nil {
		return wrapUnavailable(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) ListChats(ctx context.Context, userID string) ([]chat.Chat, error) {
	cursor, err := m.db.Collection(chatsCollection).Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	defer cursor.Close(ctx)

	var chats []chat.Chat
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, wrapUnavailable(err)
	}
	return chats, nil
}

func (m *Mongo) DeleteChat(ctx context.Context, id string) error {
	res, err := m.db.Collection(chatsCollection).DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return wrapUnavailable(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) DeleteUserChats(ctx context.Context, userID string) error {
	if _, err := m.db.Collection(chatsCollection).DeleteMany(ctx, bson.M{"userId": userID}); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

func (m *Mongo) FindRecord(ctx context.Context, clientID string) (*RateLimitRecord, error) {
	var rec RateLimitRecord
	err := m.db.Collection(rateLimitsCollection).FindOne(ctx, bson.M{"clientId": clientID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	return &rec, nil
}

func (m *Mongo) InsertRecord(ctx context.Context, rec *RateLimitRecord) error {
	if _, err := m.db.Collection(rateLimitsCollection).InsertOne(ctx, rec); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

func (m *Mongo) ResetRecord(ctx context.Context, clientID string, now time.Time) error {
	_, err := m.db.Collection(rateLimitsCollection).UpdateOne(ctx,
		bson.M{"clientId": clientID},
		bson.M{"$set": bson.M{"requestCount": 1, "windowStart": now, "updatedAt": now}})
	if err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

func (m *Mongo) IncrementRecord(ctx context.Context, clientID string, now time.Time) error {
	_, err := m.db.Collection(rateLimitsCollection).UpdateOne(ctx,
		bson.M{"clientId": clientID},
		bson.M{"$inc": bson.M{"requestCount": 1}, "$set": bson.M{"updatedAt": now}})
	if err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
