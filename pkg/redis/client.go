// Package redis wraps go-redis/v9 for publishing the TF-IDF index: every
// term becomes one hash of document id to score.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/config"
)

const dialCheckTimeout = 5 * time.Second

type Client struct {
	rdb *redis.Client
}

// NewClient connects to cfg.Addr and fails fast if the server does not
// answer a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	c := &Client{rdb: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})}
	ctx, cancel := context.WithTimeout(context.Background(), dialCheckTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return c, nil
}

// HSetMany writes every hash in one pipelined round trip and refreshes the
// expiry of each touched key when ttl is positive.
func (c *Client) HSetMany(ctx context.Context, hashes map[string]map[string]any, ttl time.Duration) error {
	if len(hashes) == 0 {
		return nil
	}
	pipe := c.rdb.TxPipeline()
	for key, fields := range hashes {
		pipe.HSet(ctx, key, fields)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing %d term hashes: %w", len(hashes), err)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
