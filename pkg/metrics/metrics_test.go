package metrics_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Sternrassler/keypage/internal/testutil"
	"github.com/Sternrassler/keypage/pkg/metrics"
	"github.com/Sternrassler/keypage/pkg/paging"
	"github.com/Sternrassler/keypage/pkg/source"
)

func TestRegistry(t *testing.T) {
	if metrics.Registry == nil {
		t.Error("Registry should not be nil")
	}

	if metrics.Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

func loadOnce(t *testing.T) {
	t.Helper()
	src := paging.NewWindowSource[testutil.Key, testutil.Item](
		source.NewSlice(testutil.Items(10), testutil.KeyOf, testutil.CompareKeys))
	if _, err := paging.Resolve[testutil.Key, testutil.Item](src.Load(context.Background(), paging.LoadParams[testutil.Key]{
		Type: paging.Refresh, LoadSize: 5,
	})); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestNames_IncludesLoadMetrics(t *testing.T) {
	loadOnce(t)

	names, err := metrics.Names()
	if err != nil {
		t.Fatalf("Names() error = %v", err)
	}
	for _, want := range []string{
		"keypage_loads_total",
		"keypage_load_duration_seconds",
		"keypage_items_loaded_total",
	} {
		if !slices.Contains(names, want) {
			t.Errorf("Names() missing %s (got %v)", want, names)
		}
	}
}

func TestHandler(t *testing.T) {
	loadOnce(t)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `keypage_loads_total{load_type="refresh",outcome="page"}`) {
		t.Errorf("exposition missing refresh page counter:\n%s", body)
	}
}
