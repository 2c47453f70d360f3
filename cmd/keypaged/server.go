package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/keypage/internal/records"
	"github.com/Sternrassler/keypage/pkg/cache"
	"github.com/Sternrassler/keypage/pkg/config"
	"github.com/Sternrassler/keypage/pkg/metrics"
	"github.com/Sternrassler/keypage/pkg/pager"
	"github.com/Sternrassler/keypage/pkg/paging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// maxBatchLoads bounds the loads accepted by one batch request.
	maxBatchLoads = 32

	// maxBodyBytes bounds request bodies.
	maxBodyBytes = 1 << 20
)

type server struct {
	store   store
	source  paging.Source[records.Key, records.Record]
	cache   *cache.Source[records.Key, records.Record]
	redis   *redis.Client
	paging  config.PagingConfig
	timeout time.Duration
	logger  zerolog.Logger
}

// newServer wires the load path. The page cache is enabled when configured
// and rdb is not nil.
func newServer(st store, cfg config.Config, rdb *redis.Client, logger zerolog.Logger) *server {
	pagingLogger := logger.With().Str("component", "paging").Logger()
	window := paging.NewWindowSource[records.Key, records.Record](st,
		paging.WithCounted(cfg.Paging.Counted),
		paging.WithLogger(pagingLogger),
	)

	s := &server{
		store:   st,
		source:  window,
		redis:   rdb,
		paging:  cfg.Paging,
		timeout: cfg.Server.RequestTimeout,
		logger:  logger.With().Str("component", "http").Logger(),
	}
	if cfg.Cache.Enabled && rdb != nil {
		manager := cache.NewManager(rdb)
		cacheLogger := logger.With().Str("component", "cache").Logger()
		s.cache = cache.NewSource[records.Key, records.Record](window, manager, cache.SourceConfig[records.Key]{
			Name:      cfg.Store.Name,
			EncodeKey: records.Key.String,
			TTL:       cfg.Cache.TTL,
			Logger:    &cacheLogger,
		})
		s.source = s.cache
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}
	return s
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /v1/load", s.handleLoad)
	mux.HandleFunc("POST /v1/load/batch", s.handleBatch)
	mux.HandleFunc("POST /v1/records", s.handleUpsert)
	mux.HandleFunc("DELETE /v1/records", s.handleDelete)
	mux.Handle("GET /metrics", metrics.Handler())
	return s.logRequests(mux)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// handleReady checks the store and, when configured, Redis.
func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	err := s.store.View(ctx, func(snap paging.Snapshot[records.Key, records.Record]) error {
		_, err := snap.Len()
		return err
	})
	if err == nil && s.redis != nil {
		err = s.redis.Ping(ctx).Err()
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("Not ready")
		http.Error(w, "NOT READY", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// pageResponse is the wire form of a page. Keys are rendered as name:id and
// unknown counts as null.
type pageResponse struct {
	Data        []records.Record `json:"data"`
	PrevKey     string           `json:"prev_key,omitempty"`
	NextKey     string           `json:"next_key,omitempty"`
	ItemsBefore *int             `json:"items_before"`
	ItemsAfter  *int             `json:"items_after"`
}

func newPageResponse(page *paging.Page[records.Key, records.Record]) pageResponse {
	resp := pageResponse{Data: page.Data}
	if resp.Data == nil {
		resp.Data = []records.Record{}
	}
	if page.PrevKey != nil {
		resp.PrevKey = page.PrevKey.String()
	}
	if page.NextKey != nil {
		resp.NextKey = page.NextKey.String()
	}
	if page.ItemsBefore != paging.CountUndefined {
		before := page.ItemsBefore
		resp.ItemsBefore = &before
	}
	if page.ItemsAfter != paging.CountUndefined {
		after := page.ItemsAfter
		resp.ItemsAfter = &after
	}
	return resp
}

// loadRequest is the query or batch form of a load.
type loadRequest struct {
	Type         string `json:"type"`
	Key          string `json:"key"`
	Size         int    `json:"size"`
	Placeholders *bool  `json:"placeholders"`
}

func (s *server) params(req loadRequest) (paging.LoadParams[records.Key], error) {
	var params paging.LoadParams[records.Key]

	loadType := paging.Refresh
	if req.Type != "" {
		t, err := paging.ParseLoadType(req.Type)
		if err != nil {
			return params, err
		}
		loadType = t
	}

	var key *records.Key
	if req.Key != "" {
		k, err := records.ParseKey(req.Key)
		if err != nil {
			return params, err
		}
		key = &k
	}

	size := req.Size
	if size == 0 {
		size = s.paging.DefaultLoadSize
	}
	if size > s.paging.MaxLoadSize {
		return params, fmt.Errorf("size %d exceeds maximum %d", size, s.paging.MaxLoadSize)
	}

	placeholders := true
	if req.Placeholders != nil {
		placeholders = *req.Placeholders
	}

	params = paging.LoadParams[records.Key]{
		Type:                loadType,
		Key:                 key,
		LoadSize:            size,
		PlaceholdersEnabled: placeholders,
		PageSize:            size,
	}
	return params, params.Validate()
}

func queryLoadRequest(q url.Values) (loadRequest, error) {
	req := loadRequest{Type: q.Get("type"), Key: q.Get("key")}
	if v := q.Get("size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("size: %w", err)
		}
		req.Size = size
	}
	if v := q.Get("placeholders"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("placeholders: %w", err)
		}
		req.Placeholders = &enabled
	}
	return req, nil
}

func (s *server) load(ctx context.Context, params paging.LoadParams[records.Key]) (paging.LoadResult[records.Key, records.Record], cache.Status) {
	if s.cache != nil {
		return s.cache.LoadWithStatus(ctx, params)
	}
	return s.source.Load(ctx, params), ""
}

func (s *server) handleLoad(w http.ResponseWriter, r *http.Request) {
	req, err := queryLoadRequest(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	params, err := s.params(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	res, status := s.load(ctx, params)
	page, err := paging.Resolve[records.Key, records.Record](res)
	if err != nil {
		s.writeLoadError(w, err)
		return
	}

	body, err := json.Marshal(newPageResponse(page))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	etag := cache.ETag(body)
	// Pages change with the dataset, so clients always revalidate.
	cache.SetResponseHeaders(w.Header(), etag, 0, status)
	if cache.NotModified(r, etag) {
		cache.NotModifiedResponses.Inc()
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

type batchRequest struct {
	Loads []loadRequest `json:"loads"`
}

type batchResult struct {
	Page  *pageResponse `json:"page,omitempty"`
	Error string        `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchResult `json:"results"`
}

func (s *server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode batch: %w", err))
		return
	}
	if len(req.Loads) == 0 || len(req.Loads) > maxBatchLoads {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("batch must hold 1 to %d loads (got %d)", maxBatchLoads, len(req.Loads)))
		return
	}

	params := make([]paging.LoadParams[records.Key], len(req.Loads))
	for i, l := range req.Loads {
		p, err := s.params(l)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("load %d: %w", i, err))
			return
		}
		params[i] = p
	}

	results := pager.LoadMany(r.Context(), s.source, params, pager.WalkConfig{
		MaxConcurrency: 8,
		Timeout:        s.timeout,
		Retry:          pager.NoRetry(),
		Logger:         &s.logger,
	})

	resp := batchResponse{Results: make([]batchResult, len(results))}
	for i, res := range results {
		if res.Err != nil {
			resp.Results[i].Error = res.Err.Error()
			continue
		}
		page := newPageResponse(res.Page)
		resp.Results[i].Page = &page
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var items []records.Record
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&items); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode records: %w", err))
		return
	}
	for _, item := range items {
		if err := item.Validate(); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	if err := s.store.Upsert(ctx, items...); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("upsert: %w", err))
		return
	}
	s.invalidate(ctx)
	s.writeJSON(w, http.StatusOK, map[string]int{"upserted": len(items)})
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query()["key"]
	if len(raw) == 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("at least one key is required"))
		return
	}
	keys := make([]records.Key, 0, len(raw))
	for _, v := range raw {
		k, err := records.ParseKey(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		keys = append(keys, k)
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	deleted, err := s.store.Delete(ctx, keys...)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("delete: %w", err))
		return
	}
	if deleted > 0 {
		s.invalidate(ctx)
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// invalidate drops cached pages after a write. A failure leaves stale pages
// until their TTL expires.
func (s *server) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Cache invalidation failed")
	}
}

func (s *server) writeLoadError(w http.ResponseWriter, err error) {
	switch {
	case paging.IsInvalidParams(err):
		s.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, err)
	default:
		s.logger.Warn().Err(err).Msg("Load failed")
		s.writeError(w, http.StatusServiceUnavailable, err)
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}
