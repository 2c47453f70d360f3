package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/keypage/internal/records"
	"github.com/Sternrassler/keypage/pkg/config"
	"github.com/Sternrassler/keypage/pkg/paging"
	"github.com/Sternrassler/keypage/pkg/redissource"
	"github.com/Sternrassler/keypage/pkg/source"
	"github.com/Sternrassler/keypage/pkg/sqlsource"
)

// store is a mutable record dataset.
type store interface {
	paging.Dataset[records.Key, records.Record]
	Upsert(ctx context.Context, items ...records.Record) error
	Delete(ctx context.Context, keys ...records.Key) (int, error)
	Close() error
}

// memStore adapts the in-memory B-tree.
type memStore struct {
	*source.BTree[records.Key, records.Record]
}

func newMemStore(items []records.Record) *memStore {
	return &memStore{BTree: source.NewBTree(items, records.KeyOf, records.Compare)}
}

func (m *memStore) Upsert(ctx context.Context, items ...records.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Insert(items...)
	return nil
}

func (m *memStore) Delete(ctx context.Context, keys ...records.Key) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return m.Remove(keys...), nil
}

func (m *memStore) Close() error { return nil }

// redisStore adapts the Redis dataset. The client is owned by the caller.
type redisStore struct {
	*redissource.Dataset[records.Key, records.Record]
}

func (r *redisStore) Upsert(ctx context.Context, items ...records.Record) error {
	return r.Add(ctx, items...)
}

func (r *redisStore) Delete(ctx context.Context, keys ...records.Key) (int, error) {
	return r.Remove(ctx, keys...)
}

func (r *redisStore) Close() error { return nil }

// openStore creates the configured backend. rdb may be nil unless the
// backend is redis.
func openStore(ctx context.Context, cfg config.StoreConfig, rdb *redis.Client, logger zerolog.Logger) (store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		l := logger.With().Str("component", "sqlsource").Logger()
		ds, err := sqlsource.Open(ctx, cfg.SQLitePath, sqlsource.Config[records.Key, records.Record]{
			KeyOf:         records.KeyOf,
			Columns:       records.Columns,
			TieDescending: true,
			Logger:        &l,
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return ds, nil
	case config.BackendBTree:
		return newMemStore(nil), nil
	case config.BackendRedis:
		l := logger.With().Str("component", "redissource").Str("dataset", cfg.Name).Logger()
		ds, err := redissource.New(rdb, redissource.Config[records.Key, records.Record]{
			Name:   cfg.Name,
			KeyOf:  records.KeyOf,
			Encode: records.LexKey,
			Logger: &l,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return &redisStore{Dataset: ds}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
