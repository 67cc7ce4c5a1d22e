package supastore_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/supabase-community/supabase-go"

	"github.com/astra-social/entitlements/pkg/supastore"
)

// fakeRest serves the subset of PostgREST the stores use: eq-filtered
// selects and upserts keyed by the on_conflict columns.
type fakeRest struct {
	mu       sync.Mutex
	tables   map[string][]map[string]any
	requests []*http.Request
	fail     bool
}

func (f *fakeRest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r)

	if f.fail {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"code":"PGRST000","message":"database unavailable"}`)
		return
	}

	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	switch r.Method {
	case http.MethodGet:
		out := []map[string]any{}
		for _, row := range f.tables[table] {
			if matches(row, r) {
				out = append(out, row)
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	case http.MethodPost:
		var row map[string]any
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"code":"PGRST102","message":"bad body"}`)
			return
		}
		keys := strings.Split(r.URL.Query().Get("on_conflict"), ",")
		rows := f.tables[table]
		for i, existing := range rows {
			if sameKey(existing, row, keys) {
				for k, v := range row {
					existing[k] = v
				}
				rows[i] = existing
				w.WriteHeader(http.StatusCreated)
				return
			}
		}
		f.tables[table] = append(rows, row)
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = io.WriteString(w, `{"code":"PGRST000","message":"method"}`)
	}
}

func matches(row map[string]any, r *http.Request) bool {
	for col, vals := range r.URL.Query() {
		if col == "select" {
			continue
		}
		want := strings.TrimPrefix(vals[0], "eq.")
		if got, _ := row[col].(string); got != want {
			return false
		}
	}
	return true
}

func sameKey(a, b map[string]any, keys []string) bool {
	for _, k := range keys {
		if a[k] != b[k] {
			return false
		}
	}
	return true
}

func (f *fakeRest) rows(table string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[table]
}

func newFake(t *testing.T) (*fakeRest, *supabase.Client, supastore.Config) {
	t.Helper()
	fake := &fakeRest{tables: map[string][]map[string]any{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := supastore.Config{URL: srv.URL, ServiceKey: "service-key"}
	client, err := supastore.Connect(cfg)
	require.NoError(t, err)
	return fake, client, cfg
}
