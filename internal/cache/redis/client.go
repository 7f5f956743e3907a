package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/eruption-duration/backend/pkg/logger"
)

const plotPrefix = "plot:"

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(client *redis.Client) *Client {
	return &Client{client: client}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func PlotKey(hash string) string {
	return plotPrefix + hash
}

func (c *Client) SetPlot(ctx context.Context, hash string, plot interface{}, ttl time.Duration) error {
	data, err := json.Marshal(plot)
	if err != nil {
		return fmt.Errorf("failed to marshal plot: %w", err)
	}

	err = c.client.Set(ctx, PlotKey(hash), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set plot cache: %w", err)
	}

	logger.Debug("Plot cached", zap.String("hash", hash), zap.Duration("ttl", ttl))
	return nil
}

// GetPlot decodes a cached plot into out and reports whether it was found.
func (c *Client) GetPlot(ctx context.Context, hash string, out interface{}) (bool, error) {
	data, err := c.client.Get(ctx, PlotKey(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get plot cache: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal plot: %w", err)
	}

	logger.Debug("Plot cache hit", zap.String("hash", hash))
	return true, nil
}

// InvalidatePlots drops every cached plot, e.g. after model artifacts are
// replaced on disk.
func (c *Client) InvalidatePlots(ctx context.Context) (int, error) {
	deleted := 0
	iter := c.client.Scan(ctx, 0, plotPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		deleted++
	}

	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Plot cache invalidated", zap.Int("deleted", deleted))
	return deleted, nil
}
