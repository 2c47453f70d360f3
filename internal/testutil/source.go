package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/keypage/pkg/paging"
)

// ScriptedSource wraps a source and injects failures and delays.
type ScriptedSource struct {
	inner paging.Source[Key, Item]

	mu       sync.Mutex
	failures []error
	delay    time.Duration

	// Tracking
	LoadCount  int
	LastParams paging.LoadParams[Key]
	Params     []paging.LoadParams[Key]
}

// NewScriptedSource creates a scripted source around inner.
func NewScriptedSource(inner paging.Source[Key, Item]) *ScriptedSource {
	return &ScriptedSource{inner: inner}
}

// FailWith queues errors; each Load consumes one before delegating.
func (s *ScriptedSource) FailWith(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// SetDelay makes every Load wait d or until the context is done.
func (s *ScriptedSource) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Calls returns the number of Load calls.
func (s *ScriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LoadCount
}

// History returns a copy of all recorded params.
func (s *ScriptedSource) History() []paging.LoadParams[Key] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]paging.LoadParams[Key], len(s.Params))
	copy(out, s.Params)
	return out
}

// Load implements paging.Source.
func (s *ScriptedSource) Load(ctx context.Context, params paging.LoadParams[Key]) paging.LoadResult[Key, Item] {
	s.mu.Lock()
	s.LoadCount++
	s.LastParams = params
	s.Params = append(s.Params, params)
	delay := s.delay
	var failure error
	if len(s.failures) > 0 {
		failure = s.failures[0]
		s.failures = s.failures[1:]
	}
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return &paging.LoadError{Type: params.Type, Cause: ctx.Err()}
		}
	}
	if failure != nil {
		return &paging.LoadError{Type: params.Type, Cause: failure}
	}
	return s.inner.Load(ctx, params)
}

// RefreshKey implements paging.Source.
func (s *ScriptedSource) RefreshKey(indexInPage int, page *paging.Page[Key, Item]) (Key, bool) {
	return s.inner.RefreshKey(indexInPage, page)
}
