package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/habergo/habergo/internal/config"
	"github.com/habergo/habergo/internal/types"
)

// MongoStore persists articles, dedup groups, and run reports in MongoDB.
type MongoStore struct {
	client   *mongo.Client
	articles *mongo.Collection
	groups   *mongo.Collection
	runs     *mongo.Collection
	logger   *slog.Logger
}

// NewMongoStore connects to MongoDB and ensures the pipeline's indexes.
func NewMongoStore(ctx context.Context, cfg *config.StorageConfig, logger *slog.Logger) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &MongoStore{
		client:   client,
		articles: db.Collection(cfg.ArticleCollection),
		groups:   db.Collection(cfg.GroupCollection),
		runs:     db.Collection(cfg.RunCollection),
		logger:   logger.With("component", "mongo_store"),
	}

	if err := s.ensureIndexes(connectCtx); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureIndexes creates the lookup indexes the dedup engine and downstream
// consumers depend on. The unique _id index covers article ids already;
// fingerprint and member lookups need their own.
func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.articles.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "fingerprint", Value: 1}}},
		{Keys: bson.D{{Key: "outlet", Value: 1}, {Key: "published_at", Value: -1}}},
		{Keys: bson.D{{Key: "fetched_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("mongodb article indexes: %w", err)
	}
	_, err = s.groups.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "member_ids", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("mongodb group indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) GetArticle(ctx context.Context, id string) (*types.Article, error) {
	var a types.Article
	err := s.articles.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &types.StorageError{Backend: "mongo", Err: err}
	}
	return &a, nil
}

func (s *MongoStore) FindByFingerprint(ctx context.Context, fingerprint string) (*types.Article, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "fetched_at", Value: 1}})
	var a types.Article
	err := s.articles.FindOne(ctx, bson.M{"fingerprint": fingerprint}, opts).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &types.StorageError{Backend: "mongo", Err: err}
	}
	return &a, nil
}

func (s *MongoStore) InsertArticle(ctx context.Context, a *types.Article) error {
	_, err := s.articles.InsertOne(ctx, a)
	if mongo.IsDuplicateKeyError(err) {
		return types.ErrConflict
	}
	if err != nil {
		return &types.StorageError{Backend: "mongo", Err: err}
	}
	return nil
}

func (s *MongoStore) ListArticles(ctx context.Context, q ArticleQuery) ([]*types.Article, error) {
	filter := bson.M{}
	if q.Outlet != "" {
		filter["outlet"] = q.Outlet
	}
	if q.Fingerprint != "" {
		filter["fingerprint"] = q.Fingerprint
	}
	published := bson.M{}
	if !q.PublishedFrom.IsZero() {
		published["$gte"] = q.PublishedFrom
	}
	if !q.PublishedTo.IsZero() {
		published["$lte"] = q.PublishedTo
	}
	if len(published) > 0 {
		filter["published_at"] = published
	}

	opts := options.Find().SetSort(bson.D{{Key: "fetched_at", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.articles.Find(ctx, filter, opts)
	if err != nil {
		return nil, &types.StorageError{Backend: "mongo", Err: err}
	}
	defer cursor.Close(ctx)

	var out []*types.Article
	if err := cursor.All(ctx, &out); err != nil {
		return nil, &types.StorageError{Backend: "mongo", Err: err}
	}
	return out, nil
}

func (s *MongoStore) GetGroup(ctx context.Context, groupID string) (*types.DedupGroup, error) {
	var g types.DedupGroup
	err := s.groups.FindOne(ctx, bson.M{"_id": groupID}).Decode(&g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &types.StorageError{Backend: "mongo", Err: err}
	}
	return &g, nil
}

func (s *MongoStore) GroupForArticle(ctx context.Context, articleID string) (*types.DedupGroup, error) {
	var g types.DedupGroup
	err := s.groups.FindOne(ctx, bson.M{"member_ids": articleID}).Decode(&g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &types.StorageError{Backend: "mongo", Err: err}
	}
	return &g, nil
}

func (s *MongoStore) InsertGroup(ctx context.Context, g *types.DedupGroup) error {
	_, err := s.groups.InsertOne(ctx, g)
	if mongo.IsDuplicateKeyError(err) {
		return types.ErrConflict
	}
	if err != nil {
		return &types.StorageError{Backend: "mongo", Err: err}
	}
	return nil
}

func (s *MongoStore) AddGroupMember(ctx context.Context, groupID, articleID string) error {
	res, err := s.groups.UpdateOne(ctx,
		bson.M{"_id": groupID},
		bson.M{"$addToSet": bson.M{"member_ids": articleID}},
	)
	if err != nil {
		return &types.StorageError{Backend: "mongo", Err: err}
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SaveRunReport(ctx context.Context, r *types.RunReport) error {
	_, err := s.runs.InsertOne(ctx, r)
	if err != nil {
		return &types.StorageError{Backend: "mongo", Err: err}
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	disconnectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.client.Disconnect(disconnectCtx)
}
