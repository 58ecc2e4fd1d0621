package ui

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dhamidi/thriftls/analysis"
	"github.com/dhamidi/thriftls/cache"
	"github.com/dhamidi/thriftls/config"
)

func newServer(t *testing.T) (*Server, *analysis.Engine) {
	t.Helper()
	e, err := analysis.New(config.Default(),
		analysis.WithSampler(func() uint64 { return 256 << 20 }),
		analysis.WithStat(func(string) error { return nil }),
	)
	if err != nil {
		t.Fatalf("analysis.New: %v", err)
	}
	t.Cleanup(e.Close)
	if _, err := e.Analyze(context.Background(), "/work/a.thrift", "struct A {\n  1: i32 x\n}\n"); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	s, err := NewServer(
		func() *analysis.Engine { return e },
		func() []string { return []string{"/work/a.thrift"} },
	)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s, e
}

func do(s http.Handler, method, path string, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestIndex(t *testing.T) {
	s, _ := newServer(t)
	rec := do(s, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d, want 200: %s", rec.Code, rec.Body)
	}
	body := rec.Body.String()
	for _, want := range []string{"/work/a.thrift", "format", "1.0 GiB", "normal"} {
		if !strings.Contains(body, want) {
			t.Errorf("index lacks %q", want)
		}
	}
}

func TestIndexJSON(t *testing.T) {
	s, _ := newServer(t)
	rec := do(s, http.MethodGet, "/", "application/json")
	var data StatusData
	if err := json.NewDecoder(rec.Body).Decode(&data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Analysis.Analyses != 1 || data.Analysis.FullParses != 1 {
		t.Errorf("Analysis = %+v, want one full parse", data.Analysis)
	}
	if len(data.Documents) != 1 {
		t.Errorf("Documents = %v, want one", data.Documents)
	}
}

func TestCaches(t *testing.T) {
	s, e := newServer(t)
	tests := []struct {
		path string
		code int
		n    int
	}{
		{"/caches", http.StatusOK, len(e.Manager.AllStats())},
		{"/caches/format", http.StatusOK, 1},
		{"/caches/nope", http.StatusNotFound, 0},
	}
	for _, tt := range tests {
		rec := do(s, http.MethodGet, tt.path, "application/json")
		if rec.Code != tt.code {
			t.Errorf("GET %s status = %d, want %d", tt.path, rec.Code, tt.code)
			continue
		}
		if tt.code != http.StatusOK {
			continue
		}
		var stats []cache.Stats
		if tt.n == 1 {
			var one cache.Stats
			if err := json.NewDecoder(rec.Body).Decode(&one); err != nil {
				t.Fatalf("decode %s: %v", tt.path, err)
			}
			stats = append(stats, one)
		} else if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
			t.Fatalf("decode %s: %v", tt.path, err)
		}
		if len(stats) != tt.n {
			t.Errorf("GET %s returned %d caches, want %d", tt.path, len(stats), tt.n)
		}
	}

	if rec := do(s, http.MethodGet, "/caches", ""); !strings.Contains(rec.Body.String(), "<table") {
		t.Errorf("GET /caches as html = %q", rec.Body)
	}
}

func TestPressureAndReport(t *testing.T) {
	s, _ := newServer(t)
	rec := do(s, http.MethodPost, "/pressure", "")
	if rec.Code != http.StatusSeeOther {
		t.Errorf("POST /pressure status = %d, want 303", rec.Code)
	}
	rec = do(s, http.MethodGet, "/report", "")
	if !strings.Contains(rec.Body.String(), "Memory report") {
		t.Errorf("GET /report = %q", rec.Body)
	}
}

func TestUninitialized(t *testing.T) {
	s, err := NewServer(func() *analysis.Engine { return nil }, func() []string { return nil })
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if rec := do(s, http.MethodGet, "/", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET / status = %d, want 503", rec.Code)
	}
	if rec := do(s, http.MethodGet, "/static/style.css", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /static/style.css status = %d, want 200", rec.Code)
	}
}

func TestEmbeddedTemplates(t *testing.T) {
	for _, name := range []string{"templates/index.html", "templates/_caches.html", "static/style.css"} {
		if _, err := fs.Stat(embeddedFS, name); err != nil {
			t.Errorf("embedded %s: %v", name, err)
		}
	}
}
