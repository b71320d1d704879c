// Package kv is the typed wrapper over the external key-value store (§6.2):
// string/hash/set/sorted-set/geospatial commands, the atomic SET-NX-EX lock
// §4.2's acceptance race depends on, and a pipeline helper for the
// multi-command batches §5 requires for the online/available set updates.
package kv

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"ride-hail/internal/general/config"
	"ride-hail/internal/general/logger"

	"github.com/redis/go-redis/v9"
)

// NewClient builds a redis.Client from cfg, verifies connectivity, and
// returns it wrapped for the rest of the core.
func NewClient(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Client, error) {
	start := time.Now()

	addr := net.JoinHostPort(cfg.Redis.Host, strconv.Itoa(cfg.Redis.Port))
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("kv: ping %s: %w", addr, err)
	}

	log.Info(ctx, "kv_connected", "Connected to key-value store", map[string]any{
		"addr":        addr,
		"db":          cfg.Redis.DB,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return &Client{rdb: rdb}, nil
}

// Client wraps *redis.Client behind the narrow surface the core needs.
type Client struct {
	rdb *redis.Client
}

// Raw exposes the underlying client for operations not covered by the
// typed wrapper (e.g. Pipelined batches built ad hoc by a caller).
func (c *Client) Raw() *redis.Client { return c.rdb }

func (c *Client) Close() error { return c.rdb.Close() }
