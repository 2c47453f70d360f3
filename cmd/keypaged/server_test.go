package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/keypage/internal/records"
	"github.com/Sternrassler/keypage/pkg/config"
	"github.com/Sternrassler/keypage/pkg/paging"
)

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{RequestTimeout: time.Second},
		Store:  config.StoreConfig{Backend: config.BackendBTree, Name: "records"},
		Paging: config.PagingConfig{DefaultLoadSize: 10, MaxLoadSize: 50, Counted: true},
	}
}

func setupServer(t *testing.T, st store) http.Handler {
	t.Helper()
	return newServer(st, testConfig(), nil, zerolog.Nop()).routes()
}

func do(t *testing.T, h http.Handler, method, target, body string, header http.Header) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Result()
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func intPtr(v int) *int { return &v }

func TestHealthEndpoint(t *testing.T) {
	h := setupServer(t, newMemStore(nil))

	for _, path := range []string{"/health", "/ready"} {
		resp := do(t, h, http.MethodGet, path, "", nil)
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, resp.StatusCode)
		}
		if string(body) != "OK" {
			t.Errorf("%s: expected body 'OK', got %s", path, body)
		}
	}
}

func TestLoadEndpoint(t *testing.T) {
	items := records.Generate(100)
	h := setupServer(t, newMemStore(items))

	tests := []struct {
		name       string
		query      string
		want       []records.Record
		wantBefore *int
		wantAfter  *int
	}{
		{
			name:       "refresh centered on key",
			query:      "?key=" + items[49].Key().String() + "&size=10",
			want:       items[45:55],
			wantBefore: intPtr(45),
			wantAfter:  intPtr(45),
		},
		{
			name:       "refresh without key",
			query:      "",
			want:       items[0:10],
			wantBefore: intPtr(0),
			wantAfter:  intPtr(90),
		},
		{
			name:       "refresh past end",
			query:      "?key=fz:0&size=20",
			want:       items[80:100],
			wantBefore: intPtr(80),
			wantAfter:  intPtr(0),
		},
		{
			name:  "append after key",
			query: "?type=end&key=" + items[5].Key().String() + "&size=5&placeholders=false",
			want:  items[6:11],
		},
		{
			name:  "prepend before key",
			query: "?type=start&key=" + items[5].Key().String() + "&size=5&placeholders=false",
			want:  items[0:5],
		},
		{
			name:  "prepend at first item",
			query: "?type=prepend&key=" + items[0].Key().String() + "&size=5&placeholders=false",
			want:  []records.Record{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, h, http.MethodGet, "/v1/load"+tt.query, "", nil)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}
			if resp.Header.Get("ETag") == "" {
				t.Error("missing ETag header")
			}
			if got := resp.Header.Get("X-Cache"); got != "" {
				t.Errorf("X-Cache = %q without a cache", got)
			}

			page := decode[pageResponse](t, resp)
			if !reflect.DeepEqual(page.Data, tt.want) {
				t.Errorf("Data = %v, want %v", page.Data, tt.want)
			}
			if !reflect.DeepEqual(page.ItemsBefore, tt.wantBefore) || !reflect.DeepEqual(page.ItemsAfter, tt.wantAfter) {
				t.Errorf("counts = (%v, %v), want (%v, %v)", page.ItemsBefore, page.ItemsAfter, tt.wantBefore, tt.wantAfter)
			}
			if len(tt.want) > 0 {
				if page.PrevKey != tt.want[0].Key().String() || page.NextKey != tt.want[len(tt.want)-1].Key().String() {
					t.Errorf("keys = (%s, %s)", page.PrevKey, page.NextKey)
				}
			} else if page.PrevKey != "" || page.NextKey != "" {
				t.Errorf("empty page has keys (%s, %s)", page.PrevKey, page.NextKey)
			}
		})
	}
}

func TestLoadEndpoint_BadRequests(t *testing.T) {
	h := setupServer(t, newMemStore(records.Generate(10)))

	for _, query := range []string{
		"?type=sideways",
		"?type=end",
		"?type=start&size=5",
		"?key=nocolon",
		"?key=fa:x",
		"?size=abc",
		"?size=-1",
		"?size=51",
		"?placeholders=maybe",
	} {
		t.Run(query, func(t *testing.T) {
			resp := do(t, h, http.MethodGet, "/v1/load"+query, "", nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			body := decode[map[string]string](t, resp)
			if body["error"] == "" {
				t.Error("missing error message")
			}
		})
	}
}

func TestLoadEndpoint_NotModified(t *testing.T) {
	h := setupServer(t, newMemStore(records.Generate(30)))

	first := do(t, h, http.MethodGet, "/v1/load?size=5", "", nil)
	etag := first.Header.Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag header")
	}
	if got := first.Header.Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", got)
	}

	second := do(t, h, http.MethodGet, "/v1/load?size=5", "", http.Header{"If-None-Match": {etag}})
	if second.StatusCode != http.StatusNotModified {
		t.Errorf("status = %d, want 304", second.StatusCode)
	}

	other := do(t, h, http.MethodGet, "/v1/load?size=6", "", http.Header{"If-None-Match": {etag}})
	if other.StatusCode != http.StatusOK {
		t.Errorf("different window: status = %d, want 200", other.StatusCode)
	}
}

// brokenStore fails every read.
type brokenStore struct {
	*memStore
}

var errStoreDown = errors.New("store down")

func (b brokenStore) View(ctx context.Context, fn func(paging.Snapshot[records.Key, records.Record]) error) error {
	return errStoreDown
}

func TestLoadEndpoint_StoreFailure(t *testing.T) {
	h := setupServer(t, brokenStore{newMemStore(nil)})

	resp := do(t, h, http.MethodGet, "/v1/load", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("load status = %d, want 503", resp.StatusCode)
	}
	body := decode[map[string]string](t, resp)
	if !strings.Contains(body["error"], "store down") {
		t.Errorf("error = %q, want cause", body["error"])
	}

	ready := do(t, h, http.MethodGet, "/ready", "", nil)
	if ready.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready status = %d, want 503", ready.StatusCode)
	}
}

func TestBatchEndpoint(t *testing.T) {
	items := records.Generate(100)
	h := setupServer(t, newMemStore(items))

	body := `{"loads":[
		{"size":5},
		{"type":"end","key":"` + items[4].Key().String() + `","size":5,"placeholders":false},
		{"type":"end","key":"` + items[99].Key().String() + `","size":5}
	]}`
	resp := do(t, h, http.MethodPost, "/v1/load/batch", body, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	got := decode[batchResponse](t, resp)
	if len(got.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(got.Results))
	}
	for i, r := range got.Results {
		if r.Error != "" || r.Page == nil {
			t.Fatalf("result %d: error %q", i, r.Error)
		}
	}
	if !reflect.DeepEqual(got.Results[0].Page.Data, items[0:5]) {
		t.Errorf("result 0 = %v", got.Results[0].Page.Data)
	}
	if !reflect.DeepEqual(got.Results[1].Page.Data, items[5:10]) {
		t.Errorf("result 1 = %v", got.Results[1].Page.Data)
	}
	if len(got.Results[2].Page.Data) != 0 {
		t.Errorf("result 2 should be empty past the end, got %v", got.Results[2].Page.Data)
	}
}

func TestBatchEndpoint_BadRequests(t *testing.T) {
	h := setupServer(t, newMemStore(records.Generate(10)))

	tests := map[string]string{
		"malformed":   `{"loads":`,
		"empty":       `{"loads":[]}`,
		"bad key":     `{"loads":[{"type":"end","key":"nocolon"}]}`,
		"missing key": `{"loads":[{"type":"end"}]}`,
		"too many":    `{"loads":[` + strings.TrimSuffix(strings.Repeat(`{},`, maxBatchLoads+1), ",") + `]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			resp := do(t, h, http.MethodPost, "/v1/load/batch", body, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestRecordsEndpoints(t *testing.T) {
	items := records.Generate(20)
	h := setupServer(t, newMemStore(items))

	resp := do(t, h, http.MethodPost, "/v1/records", `[{"name":"aa","id":1,"balance":10},{"name":"aa","id":2}]`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upsert status = %d, want 200", resp.StatusCode)
	}
	if got := decode[map[string]int](t, resp)["upserted"]; got != 2 {
		t.Errorf("upserted = %d, want 2", got)
	}

	page := decode[pageResponse](t, do(t, h, http.MethodGet, "/v1/load?size=2", "", nil))
	want := []records.Record{{Name: "aa", ID: 2}, {Name: "aa", ID: 1, Balance: 10}}
	if !reflect.DeepEqual(page.Data, want) {
		t.Errorf("Data = %v, want %v", page.Data, want)
	}
	if page.ItemsAfter == nil || *page.ItemsAfter != 20 {
		t.Errorf("ItemsAfter = %v, want 20", page.ItemsAfter)
	}

	resp = do(t, h, http.MethodDelete, "/v1/records?key=aa:1&key=aa:2&key=zz:9", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", resp.StatusCode)
	}
	if got := decode[map[string]int](t, resp)["deleted"]; got != 2 {
		t.Errorf("deleted = %d, want 2", got)
	}

	page = decode[pageResponse](t, do(t, h, http.MethodGet, "/v1/load?size=1", "", nil))
	if !reflect.DeepEqual(page.Data, items[:1]) {
		t.Errorf("after delete Data = %v, want %v", page.Data, items[:1])
	}
}

func TestRecordsEndpoints_BadRequests(t *testing.T) {
	h := setupServer(t, newMemStore(nil))

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{"malformed body", http.MethodPost, "/v1/records", `[{"name":`},
		{"missing name", http.MethodPost, "/v1/records", `[{"id":1}]`},
		{"negative id", http.MethodPost, "/v1/records", `[{"name":"a","id":-1}]`},
		{"delete without key", http.MethodDelete, "/v1/records", ""},
		{"delete bad key", http.MethodDelete, "/v1/records?key=oops", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, h, tt.method, tt.target, tt.body, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := setupServer(t, newMemStore(records.Generate(10)))
	do(t, h, http.MethodGet, "/v1/load", "", nil)

	resp := do(t, h, http.MethodGet, "/metrics", "", nil)
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	bodyStr := string(body)
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	if !strings.Contains(bodyStr, "keypage_loads_total") {
		t.Error("Expected metrics output to contain keypage_loads_total")
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	st, err := openStore(ctx, config.StoreConfig{Backend: config.BackendSQLite, SQLitePath: ":memory:"}, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("openStore(sqlite) error = %v", err)
	}
	defer st.Close()
	if err := st.Upsert(ctx, records.Generate(3)...); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	n, err := st.Delete(ctx, records.Generate(3)[0].Key())
	if err != nil || n != 1 {
		t.Errorf("Delete() = %d, %v, want 1", n, err)
	}

	if _, err := openStore(ctx, config.StoreConfig{Backend: config.BackendBTree}, nil, zerolog.Nop()); err != nil {
		t.Errorf("openStore(btree) error = %v", err)
	}
	if _, err := openStore(ctx, config.StoreConfig{Backend: config.BackendRedis, Name: "x"}, nil, zerolog.Nop()); err == nil {
		t.Error("openStore(redis) without client should fail")
	}
	if _, err := openStore(ctx, config.StoreConfig{Backend: "mongo"}, nil, zerolog.Nop()); err == nil {
		t.Error("openStore(unknown) should fail")
	}
}
