package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"farmhub/internal/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// CacheProduct stores a product snapshot with TTL
func (c *Client) CacheProduct(ctx context.Context, product *models.Product, ttl time.Duration) error {
	data, err := json.Marshal(product)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf("product:%d", product.ID), data, ttl).Err()
}

// GetCachedProduct retrieves a cached product snapshot, nil on miss
func (c *Client) GetCachedProduct(ctx context.Context, productID int64) (*models.Product, error) {
	data, err := c.rdb.Get(ctx, fmt.Sprintf("product:%d", productID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// SetOrderIdempotencyKey maps a client idempotency key to an order ID. The
// first writer wins; returns false when the key was already claimed.
func (c *Client) SetOrderIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:order:%s", key), orderID, ttl).Result()
}

// GetOrderIdempotencyKey returns the order ID recorded for a key, 0 if none
func (c *Client) GetOrderIdempotencyKey(ctx context.Context, key string) (int64, error) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:order:%s", key)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}
