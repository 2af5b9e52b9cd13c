package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Client struct {
	raw *mongo.Client
	db  string
}

func NewClient(ctx context.Context, uri, db string) (*Client, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	c, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return &Client{raw: c, db: db}, nil
}

func (c *Client) DB() (*mongo.Database, error) {
	if c == nil || c.raw == nil {
		return nil, errors.New("mongo client not initialized")
	}
	return c.raw.Database(c.db), nil
}

func (c *Client) Disconnect(ctx context.Context) error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Disconnect(ctx)
}
