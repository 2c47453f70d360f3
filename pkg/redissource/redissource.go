// Package redissource provides a Redis-backed dataset for paging.WindowSource.
//
// Keys are stored as members of a sorted set whose scores are all zero, so
// Redis orders them lexicographically by their encoding. Item payloads live in
// a companion hash keyed by the same encoding:
//
//	<name>:index  ZSET  member = Encode(key), score = 0
//	<name>:items  HASH  field  = Encode(key), value = JSON payload
//
// Ranks come from ZLEXCOUNT and windows from ZRANGE, so the anchor key does
// not need to be a member. Every view runs under WATCH on both keys and ends
// with a MULTI/EXEC round trip; a concurrent write aborts the EXEC and the
// view is retried.
package redissource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/keypage/pkg/paging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultViewAttempts is the number of times a conflicting view is retried.
const DefaultViewAttempts = 3

var (
	// ErrViewConflict indicates every view attempt raced a concurrent write.
	ErrViewConflict = errors.New("redissource: view conflicted with concurrent writes")

	// errMissingPayload marks an index member without a payload; it only
	// happens when a write interleaves with the view.
	errMissingPayload = errors.New("redissource: missing payload")
)

// Config configures a Dataset.
type Config[K, V any] struct {
	// Name prefixes both Redis keys (required).
	Name string

	// KeyOf derives the ordering key of an item (required).
	KeyOf func(V) K

	// Encode maps a key to a string whose byte order matches the key order
	// (required).
	Encode func(K) string

	// ViewAttempts bounds conflict retries. Defaults to DefaultViewAttempts.
	ViewAttempts int

	// Logger defaults to the global logger with component "redissource".
	Logger *zerolog.Logger
}

// Dataset is a paging.Dataset stored in Redis.
type Dataset[K, V any] struct {
	redis    *redis.Client
	cfg      Config[K, V]
	logger   zerolog.Logger
	indexKey string
	itemsKey string
}

// New creates a dataset on the given client.
func New[K, V any](client *redis.Client, cfg Config[K, V]) (*Dataset[K, V], error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.Name == "" || cfg.KeyOf == nil || cfg.Encode == nil {
		return nil, fmt.Errorf("Name, KeyOf and Encode are required")
	}
	if cfg.ViewAttempts <= 0 {
		cfg.ViewAttempts = DefaultViewAttempts
	}

	logger := log.With().Str("component", "redissource").Str("dataset", cfg.Name).Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Dataset[K, V]{
		redis:    client,
		cfg:      cfg,
		logger:   logger,
		indexKey: cfg.Name + ":index",
		itemsKey: cfg.Name + ":items",
	}, nil
}

// KeyOf implements paging.Dataset.
func (d *Dataset[K, V]) KeyOf(item V) K {
	return d.cfg.KeyOf(item)
}

// Compare orders keys the way the sorted set does.
func (d *Dataset[K, V]) Compare(a, b K) int {
	return strings.Compare(d.cfg.Encode(a), d.cfg.Encode(b))
}

// View implements paging.Dataset.
func (d *Dataset[K, V]) View(ctx context.Context, fn func(paging.Snapshot[K, V]) error) error {
	for attempt := 1; attempt <= d.cfg.ViewAttempts; attempt++ {
		err := d.redis.Watch(ctx, func(tx *redis.Tx) error {
			if err := fn(&snapshot[K, V]{ctx: ctx, tx: tx, d: d}); err != nil {
				return err
			}
			// EXEC fails with TxFailedErr if a watched key changed since WATCH.
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.ZCard(ctx, d.indexKey)
				return nil
			})
			return err
		}, d.indexKey, d.itemsKey)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr), errors.Is(err, errMissingPayload):
			d.logger.Debug().Int("attempt", attempt).Msg("View conflicted, retrying")
			continue
		default:
			return err
		}
	}

	d.logger.Warn().Int("attempts", d.cfg.ViewAttempts).Msg("View retries exhausted")
	return ErrViewConflict
}

// Add inserts items, replacing any item with an equal key.
func (d *Dataset[K, V]) Add(ctx context.Context, items ...V) error {
	if len(items) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(items))
	fields := make([]interface{}, 0, 2*len(items))
	for _, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal item: %w", err)
		}
		member := d.cfg.Encode(d.cfg.KeyOf(item))
		members = append(members, redis.Z{Score: 0, Member: member})
		fields = append(fields, member, payload)
	}

	_, err := d.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, d.itemsKey, fields...)
		pipe.ZAdd(ctx, d.indexKey, members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis add: %w", err)
	}

	d.logger.Debug().Int("count", len(items)).Msg("Added items")
	return nil
}

// Remove deletes the items with the given keys and returns how many existed.
func (d *Dataset[K, V]) Remove(ctx context.Context, keys ...K) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	members := make([]interface{}, len(keys))
	fields := make([]string, len(keys))
	for i, key := range keys {
		fields[i] = d.cfg.Encode(key)
		members[i] = fields[i]
	}

	var removed *redis.IntCmd
	_, err := d.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, d.indexKey, members...)
		pipe.HDel(ctx, d.itemsKey, fields...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis remove: %w", err)
	}
	return int(removed.Val()), nil
}

// Clear deletes the whole dataset.
func (d *Dataset[K, V]) Clear(ctx context.Context) error {
	if err := d.redis.Del(ctx, d.indexKey, d.itemsKey).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

type snapshot[K, V any] struct {
	ctx context.Context
	tx  *redis.Tx
	d   *Dataset[K, V]
}

func (s *snapshot[K, V]) Len() (int, error) {
	n, err := s.tx.ZCard(s.ctx, s.d.indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcard: %w", err)
	}
	return int(n), nil
}

func (s *snapshot[K, V]) FirstIndexAfter(key K) (int, error) {
	n, err := s.tx.ZLexCount(s.ctx, s.d.indexKey, "-", "["+s.d.cfg.Encode(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zlexcount: %w", err)
	}
	return int(n), nil
}

func (s *snapshot[K, V]) FirstIndexBefore(key K) (int, error) {
	n, err := s.tx.ZLexCount(s.ctx, s.d.indexKey, "-", "("+s.d.cfg.Encode(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zlexcount: %w", err)
	}
	return int(n) - 1, nil
}

func (s *snapshot[K, V]) Slice(start, end int) ([]V, error) {
	if end <= start {
		return []V{}, nil
	}

	members, err := s.tx.ZRange(s.ctx, s.d.indexKey, int64(start), int64(end-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	if len(members) == 0 {
		return []V{}, nil
	}

	payloads, err := s.tx.HMGet(s.ctx, s.d.itemsKey, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget: %w", err)
	}

	out := make([]V, 0, len(payloads))
	for i, raw := range payloads {
		payload, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: member %q", errMissingPayload, members[i])
		}
		var item V
		if err := json.UnmarshalFromString(payload, &item); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		out = append(out, item)
	}
	return out, nil
}

// Ensure Dataset implements paging.Dataset.
var _ paging.Dataset[string, string] = (*Dataset[string, string])(nil)
