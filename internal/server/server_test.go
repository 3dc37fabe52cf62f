package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/tablightapp/tablight/internal/tabs"
)

// fakeEngine records calls and serves canned results. Search blocks on
// blockOn-matching text until release is closed, for ordering tests.
type fakeEngine struct {
	mu        sync.Mutex
	results   tabs.ResultSet
	queries   []string
	activated []string
	restored  []string
	opened    []string

	blockOn string
	release chan struct{}
}

func (f *fakeEngine) Search(ctx context.Context, text, callerID string) tabs.ResultSet {
	f.mu.Lock()
	f.queries = append(f.queries, text)
	blocked := f.blockOn != "" && text == f.blockOn
	release := f.release
	f.mu.Unlock()
	if blocked {
		<-release
	}
	return f.results
}

func (f *fakeEngine) Defaults(ctx context.Context, callerID string) tabs.ResultSet {
	return f.results
}

func (f *fakeEngine) ActivateTab(ctx context.Context, id, windowID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, id)
}

func (f *fakeEngine) RestoreSession(ctx context.Context, sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored = append(f.restored, sessionID)
}

func (f *fakeEngine) OpenURL(ctx context.Context, url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, url)
}

func newTestServer(t *testing.T, token string, engine *fakeEngine) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(Config{Token: token, DebounceMS: 100}, engine, NewHub())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t, "", &fakeEngine{})

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ok"] != true {
		t.Errorf("Expected ok=true, got %v", body)
	}
	if body["connected"] != false {
		t.Errorf("Expected connected=false without a bridge, got %v", body)
	}
}

func TestAuthToken(t *testing.T) {
	_, ts := newTestServer(t, "secret", &fakeEngine{})

	// No token: rejected.
	resp, err := http.Get(ts.URL + "/api/search?q=x")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", resp.StatusCode)
	}

	// Bearer header.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/search?q=x", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET with bearer: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 with bearer token, got %d", resp.StatusCode)
	}

	// Query parameter.
	resp, err = http.Get(ts.URL + "/api/search?q=x&token=secret")
	if err != nil {
		t.Fatalf("GET with query token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 with query token, got %d", resp.StatusCode)
	}

	// Wrong token.
	resp, err = http.Get(ts.URL + "/api/search?q=x&token=wrong")
	if err != nil {
		t.Fatalf("GET with wrong token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong token, got %d", resp.StatusCode)
	}
}

func TestSearchEndpoint(t *testing.T) {
	engine := &fakeEngine{results: tabs.ResultSet{
		Tabs: []tabs.ScoredTab{{Tab: tabs.Tab{ID: "t1", Title: "GitHub"}, Score: 80}},
	}}
	_, ts := newTestServer(t, "", engine)

	resp, err := http.Get(ts.URL + "/api/search?q=github&caller=t9")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var results tabs.ResultSet
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results.Tabs) != 1 || results.Tabs[0].ID != "t1" || results.Tabs[0].Score != 80 {
		t.Errorf("Unexpected results: %+v", results)
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.queries) != 1 || engine.queries[0] != "github" {
		t.Errorf("Query not forwarded: %v", engine.queries)
	}
}

func TestDefaultsEndpoint(t *testing.T) {
	engine := &fakeEngine{results: tabs.ResultSet{
		Tabs: []tabs.ScoredTab{{Tab: tabs.Tab{ID: "t1"}}},
	}}
	_, ts := newTestServer(t, "", engine)

	resp, err := http.Get(ts.URL + "/api/defaults")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestClientConfig(t *testing.T) {
	srv, ts := newTestServer(t, "", &fakeEngine{})
	srv.SetDebounceMS(250)

	resp, err := http.Get(ts.URL + "/api/client-config")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["debounceMs"] != 250 {
		t.Errorf("Expected debounceMs 250, got %v", body)
	}
}

func TestCommandEndpoints(t *testing.T) {
	engine := &fakeEngine{}
	_, ts := newTestServer(t, "", engine)

	post := func(path string, payload any) *http.Response {
		t.Helper()
		body, _ := json.Marshal(payload)
		resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		return resp
	}

	resp := post("/api/activate", map[string]string{"id": "t1", "windowId": "w1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("activate: expected 202, got %d", resp.StatusCode)
	}

	resp = post("/api/restore", map[string]string{"sessionId": "s1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("restore: expected 202, got %d", resp.StatusCode)
	}

	resp = post("/api/open", map[string]string{"url": "https://example.com"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("open: expected 202, got %d", resp.StatusCode)
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.activated) != 1 || engine.activated[0] != "t1" {
		t.Errorf("activate not delegated: %v", engine.activated)
	}
	if len(engine.restored) != 1 || engine.restored[0] != "s1" {
		t.Errorf("restore not delegated: %v", engine.restored)
	}
	if len(engine.opened) != 1 {
		t.Errorf("open not delegated: %v", engine.opened)
	}
}

func TestCommandValidation(t *testing.T) {
	_, ts := newTestServer(t, "", &fakeEngine{})

	// Missing required field.
	resp, err := http.Post(ts.URL+"/api/activate", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing id, got %d", resp.StatusCode)
	}

	// Wrong method.
	resp, err = http.Get(ts.URL + "/api/activate")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got %d", resp.StatusCode)
	}

	// Malformed payload.
	resp, err = http.Post(ts.URL+"/api/open", "application/json", bytes.NewReader([]byte(`{not json`)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad json, got %d", resp.StatusCode)
	}
}
