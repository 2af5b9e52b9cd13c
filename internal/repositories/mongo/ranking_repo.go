package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/LiiXo/nomercy-sub000/internal/models"
	"github.com/LiiXo/nomercy-sub000/internal/repositories"
)

// RankingRepo wraps the rankings collection.
type RankingRepo struct{ col *mongo.Collection }

func NewRankingRepo(c *Client) (*RankingRepo, error) {
	db, err := c.DB()
	if err != nil {
		return nil, err
	}
	col := db.Collection("rankings")
	r := &RankingRepo{col: col}

	_, _ = col.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "mode", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "mode", Value: 1}, {Key: "points", Value: -1}}},
	})
	return r, nil
}

func nowUTC() time.Time { return time.Now().UTC() }

func (r *RankingRepo) Get(ctx context.Context, userID, mode string) (*models.RankingEntry, error) {
	var e models.RankingEntry
	err := r.col.FindOne(ctx, bson.M{"userId": userID, "mode": mode}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ApplyResult uses an aggregation-pipeline update so the points floor and
// streak bookkeeping happen server-side in one atomic operation.
func (r *RankingRepo) ApplyResult(ctx context.Context, userID, mode string, pointsDelta int, won bool) (*models.RankingEntry, error) {
	winInc, lossInc, streakExpr := 0, 1, bson.M{"$literal": 0}
	var bestExpr interface{} = "$bestStreak"
	if won {
		winInc, lossInc = 1, 0
		streakExpr = bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$currentStreak", 0}}, 1}}
		bestExpr = bson.M{"$max": bson.A{
			bson.M{"$ifNull": bson.A{"$bestStreak", 0}},
			bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$currentStreak", 0}}, 1}},
		}}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"userId": userID,
			"mode":   mode,
			"points": bson.M{"$max": bson.A{0,
				bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$points", 0}}, pointsDelta}}}},
			"wins":          bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$wins", 0}}, winInc}},
			"losses":        bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$losses", 0}}, lossInc}},
			"kills":         bson.M{"$ifNull": bson.A{"$kills", 0}},
			"deaths":        bson.M{"$ifNull": bson.A{"$deaths", 0}},
			"currentStreak": streakExpr,
			"bestStreak":    bson.M{"$ifNull": bson.A{bestExpr, 0}},
			"updatedAt":     nowUTC(),
		}}},
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var updated models.RankingEntry
	err := r.col.FindOneAndUpdate(ctx, bson.M{"userId": userID, "mode": mode}, pipeline, opts).Decode(&updated)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *RankingRepo) Top(ctx context.Context, mode string, limit int) ([]models.RankingEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "points", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.col.Find(ctx, bson.M{"mode": mode}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.RankingEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
