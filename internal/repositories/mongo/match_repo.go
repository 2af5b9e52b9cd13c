package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/LiiXo/nomercy-sub000/internal/models"
	"github.com/LiiXo/nomercy-sub000/internal/repositories"
)

// MatchRepo wraps the ranked_matches collection.
type MatchRepo struct{ col *mongo.Collection }

func NewMatchRepo(c *Client) (*MatchRepo, error) {
	db, err := c.DB()
	if err != nil {
		return nil, err
	}
	col := db.Collection("ranked_matches")
	r := &MatchRepo{col: col}

	// Indexes mirror the hot queries: active-match lookup and history.
	_, _ = col.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{{Key: "players.userId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "lastActivityAt", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	return r, nil
}

var activeStatuses = bson.A{models.StatusPending, models.StatusInProgress, models.StatusDisputed}

func (r *MatchRepo) Create(ctx context.Context, m *models.Match) error {
	_, err := r.col.InsertOne(ctx, m)
	return err
}

func (r *MatchRepo) Get(ctx context.Context, id string) (*models.Match, error) {
	var m models.Match
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MatchRepo) UpdateWithStatus(ctx context.Context, m *models.Match, expectStatus string) error {
	filter := bson.M{"_id": m.ID, "status": expectStatus, "revision": m.Revision}
	m.Revision++
	res, err := r.col.ReplaceOne(ctx, filter, m)
	if err != nil {
		m.Revision--
		return err
	}
	if res.MatchedCount == 0 {
		m.Revision--
		// Either gone or the document moved under us.
		if n, err := r.col.CountDocuments(ctx, bson.M{"_id": m.ID}); err == nil && n == 0 {
			return repositories.ErrNotFound
		}
		return repositories.ErrStaleMatch
	}
	return nil
}

func (r *MatchRepo) ActiveForUser(ctx context.Context, userID, mode string) (*models.Match, error) {
	filter := bson.M{
		"players.userId": userID,
		"status":         bson.M{"$in": activeStatuses},
	}
	if mode != "" {
		filter["mode"] = mode
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	var m models.Match
	err := r.col.FindOne(ctx, filter, opts).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MatchRepo) ListByStatus(ctx context.Context, status string, limit int) ([]models.Match, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.col.Find(ctx, bson.M{"status": status}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Match
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MatchRepo) HistoryForUser(ctx context.Context, userID, mode string, limit int) ([]models.Match, error) {
	filter := bson.M{
		"players.userId": userID,
		"status":         models.StatusCompleted,
	}
	if mode != "" {
		filter["mode"] = mode
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Match
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MatchRepo) MarkSettled(ctx context.Context, id string, grants []models.RewardGrant) error {
	now := nowUTC()
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "settledAt": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"settledAt": now}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if n, err := r.col.CountDocuments(ctx, bson.M{"_id": id}); err == nil && n == 0 {
			return repositories.ErrNotFound
		}
		return repositories.ErrAlreadySettled
	}
	for _, g := range grants {
		_, err := r.col.UpdateOne(ctx,
			bson.M{"_id": id, "players.userId": g.UserID},
			bson.M{"$set": bson.M{"players.$.rewards": g}})
		if err != nil {
			return err
		}
	}
	return nil
}
