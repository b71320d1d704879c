package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get/HGetAll-style reads that find nothing,
// mirroring redis.Nil without leaking the driver's error type to callers.
var ErrNotFound = errors.New("kv: key not found")

// Set writes a string key with a TTL. ttl <= 0 means no expiry.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kv: set %s: %w", key, err)
	}
	return nil
}

// Get reads a string key, returning ErrNotFound if it is absent or expired.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("kv: get %s: %w", key, err)
	}
	return v, nil
}

// Del removes one or more keys. Missing keys are not an error.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("kv: del %v: %w", keys, err)
	}
	return nil
}

// Expire refreshes a key's TTL without touching its value.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("kv: expire %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("kv: exists %s: %w", key, err)
	}
	return n > 0, nil
}

// ---- Acquire/Release lock (§4.2, §5: trip:lock:<id>) ----
//
// AcquireLock is a plain SET NX EX — go-redis exposes this as SetNX with a
// TTL directly, no Lua needed on the acquire side. Release is the part that
// needs to be atomic-and-conditional (only delete if the stored nonce still
// matches the caller's, so a slow caller can never release a lock some other
// caller has since re-acquired); that isn't expressible as a single non-Lua
// command, so it is the one place this package reaches for a server-side
// script, the standard go-redis idiom for compare-and-delete.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// AcquireLock attempts SET key nonce NX EX ttl, returning true if this
// caller won the lock.
func (c *Client) AcquireLock(ctx context.Context, key, nonce string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, nonce, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("kv: acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// ReleaseLock deletes key only if its current value still equals nonce.
func (c *Client) ReleaseLock(ctx context.Context, key, nonce string) error {
	if err := releaseLockScript.Run(ctx, c.rdb, []string{key}, nonce).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("kv: release lock %s: %w", key, err)
	}
	return nil
}

// ---- Hash ops (driver:location:<id>, driver:<id>:metadata) ----

// HSet writes a hash's fields and refreshes its TTL in one round trip.
func (c *Client) HSet(ctx context.Context, key string, fields map[string]any, ttl time.Duration) error {
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kv: hset %s: %w", key, err)
	}
	return nil
}

// HGetAll reads every field of a hash. Returns ErrNotFound if the hash
// does not exist (or has expired).
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: hgetall %s: %w", key, err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return m, nil
}

// HDel removes a hash entirely (used when a driver goes offline).
func (c *Client) HDel(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("kv: hdel %s: %w", key, err)
	}
	return nil
}

// ---- Set ops (drivers:online, drivers:available, trip:declined:<id>, trip:offers:<id>) ----

// SAdd adds members to a set, optionally (re)setting its TTL.
func (c *Client) SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	pipe := c.rdb.TxPipeline()
	pipe.SAdd(ctx, key, args...)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kv: sadd %s: %w", key, err)
	}
	return nil
}

// SRem removes members from a set.
func (c *Client) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := c.rdb.SRem(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("kv: srem %s: %w", key, err)
	}
	return nil
}

// SIsMember reports set membership.
func (c *Client) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := c.rdb.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("kv: sismember %s: %w", key, err)
	}
	return ok, nil
}

// SMembers lists every member of a set.
func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: smembers %s: %w", key, err)
	}
	return members, nil
}

// SInter returns the intersection of two sets without materializing it
// server-side — findNearby (§4.1) needs drivers:available ∩ drivers:online.
func (c *Client) SInter(ctx context.Context, keyA, keyB string) ([]string, error) {
	members, err := c.rdb.SInter(ctx, keyA, keyB).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: sinter %s/%s: %w", keyA, keyB, err)
	}
	return members, nil
}

// ScanKeys walks the keyspace for every key matching pattern using
// non-blocking SCAN cursors (never KEYS, which would stall the server on a
// production-sized keyspace). Used by the cleanup sweeps (C9) to find
// stale per-driver hygiene keys that outlive the window they apply to.
func (c *Client) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := c.rdb.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("kv: scan %s: %w", pattern, err)
	}
	return out, nil
}

// ---- Geospatial ops (drivers:geo:locations) ----

// GeoPoint is a driver's (lng, lat) position in the geo index.
type GeoPoint struct {
	DriverID  string
	Longitude float64
	Latitude  float64
}

// GeoNearby is one result of a radius search: a driver id with its
// great-circle distance from the query point, in kilometers.
type GeoNearby struct {
	DriverID  string
	DistanceKM float64
}

// GeoAdd upserts a driver's position in the geo index.
func (c *Client) GeoAdd(ctx context.Context, key string, p GeoPoint) error {
	err := c.rdb.GeoAdd(ctx, key, &redis.GeoLocation{
		Name:      p.DriverID,
		Longitude: p.Longitude,
		Latitude:  p.Latitude,
	}).Err()
	if err != nil {
		return fmt.Errorf("kv: geoadd %s: %w", key, err)
	}
	return nil
}

// GeoRemove drops a driver from the geo index (goOffline, §4.1).
func (c *Client) GeoRemove(ctx context.Context, key, driverID string) error {
	if err := c.rdb.ZRem(ctx, key, driverID).Err(); err != nil {
		return fmt.Errorf("kv: georem %s: %w", key, err)
	}
	return nil
}

// GeoSearchRadius returns members within radiusKM of (lat, lng), sorted
// ascending by distance, up to limit results (0 = unlimited).
func (c *Client) GeoSearchRadius(ctx context.Context, key string, lat, lng, radiusKM float64, limit int) ([]GeoNearby, error) {
	q := &redis.GeoRadiusQuery{
		Radius:    radiusKM,
		Unit:      "km",
		WithDist:  true,
		Sort:      "ASC",
		WithCoord: false,
	}
	if limit > 0 {
		q.Count = limit
	}
	results, err := c.rdb.GeoRadius(ctx, key, lng, lat, q).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: georadius %s: %w", key, err)
	}
	out := make([]GeoNearby, 0, len(results))
	for _, r := range results {
		out = append(out, GeoNearby{DriverID: r.Name, DistanceKM: r.Dist})
	}
	return out, nil
}

// ---- Pipeline helper (§5: atomic multi-command batches) ----

// Pipeline runs fn against a transactional pipeline (MULTI/EXEC) and
// executes it atomically. Used for the compound writes goOnline/goOffline
// perform across the geo index, the online/available sets, and the
// metadata/location hashes.
func (c *Client) Pipeline(ctx context.Context, fn func(pipe redis.Pipeliner) error) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return fn(pipe)
	})
	if err != nil {
		return fmt.Errorf("kv: pipeline: %w", err)
	}
	return nil
}
