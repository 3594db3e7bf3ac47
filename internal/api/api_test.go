package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/warent/proxycop/internal/errors"
	"github.com/warent/proxycop/internal/status"
	"github.com/warent/proxycop/internal/store"
)

func newTestAPI(t *testing.T) (http.Handler, *store.Store) {
	t.Helper()
	st, err := store.Open(store.MemoryPath)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h := New(Deps{Store: st, Status: status.New(st), LiveInterval: 10 * time.Millisecond})
	r := chi.NewRouter()
	r.Mount("/api", h.Routes())
	return r, st
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errors.Error {
	t.Helper()
	var e errors.Error
	if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestGetConfig(t *testing.T) {
	h, st := newTestAPI(t)
	ctx := context.Background()
	st.SetBlacklist(ctx, []string{"reddit.com"})
	st.SetURLConfig(ctx, "news.ycombinator.com", store.URLConfig{Cooldown: 1})

	rec := do(t, h, "GET", "/api/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var got ConfigResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	want := ConfigResponse{
		Blacklist: []string{"reddit.com"},
		URLs:      map[string]store.URLConfig{"news.ycombinator.com": {Cooldown: 1}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("GET /api/config = %+v, want %+v", got, want)
	}
}

func TestGetConfigEmptyBlacklistIsArray(t *testing.T) {
	h, _ := newTestAPI(t)
	rec := do(t, h, "GET", "/api/config", "")
	if !strings.Contains(rec.Body.String(), `"blacklist":[]`) {
		t.Errorf("body = %s, want an empty blacklist array", rec.Body.String())
	}
}

func TestPutBlacklist(t *testing.T) {
	h, st := newTestAPI(t)

	rec := do(t, h, "PUT", "/api/config/blacklist", `{"hosts":["https://Reddit.com/r/golang","facebook.com"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	hosts, _ := st.Blacklist(context.Background())
	if want := []string{"reddit.com", "facebook.com"}; !reflect.DeepEqual(hosts, want) {
		t.Errorf("Blacklist() = %v, want %v", hosts, want)
	}

	rec = do(t, h, "PUT", "/api/config/blacklist", `{"hosts":["http://"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid host status = %d, want 400", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != errors.CodeInvalidHost {
		t.Errorf("code = %q, want %q", e.Code, errors.CodeInvalidHost)
	}

	rec = do(t, h, "PUT", "/api/config/blacklist", `{"sites":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", rec.Code)
	}
}

func TestAddAndRemoveBlacklist(t *testing.T) {
	h, st := newTestAPI(t)
	ctx := context.Background()

	rec := do(t, h, "POST", "/api/config/blacklist", `{"host":"Example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ok, _ := st.IsBlacklisted(ctx, "example.com"); !ok {
		t.Error("example.com not blacklisted after POST")
	}

	rec = do(t, h, "DELETE", "/api/config/blacklist/example.com", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", rec.Code)
	}
	rec = do(t, h, "DELETE", "/api/config/blacklist/example.com", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE status = %d, want 404", rec.Code)
	}
}

func TestURLConfigEndpoints(t *testing.T) {
	h, st := newTestAPI(t)

	rec := do(t, h, "GET", "/api/urls/example.com/config", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET unconfigured = %d, want 404", rec.Code)
	}

	rec = do(t, h, "PUT", "/api/urls/example.com/config", `{"cooldown":15}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", rec.Code, rec.Body.String())
	}
	cfg, err := st.URLConfig(context.Background(), "example.com")
	if err != nil || cfg.Cooldown != 15 {
		t.Errorf("stored config = %+v, %v", cfg, err)
	}

	rec = do(t, h, "GET", "/api/urls/example.com/config", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"cooldown":15`) {
		t.Errorf("GET = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, "PUT", "/api/urls/example.com/config", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("PUT without cooldown = %d, want 400", rec.Code)
	}

	rec = do(t, h, "DELETE", "/api/urls/example.com/config", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("DELETE = %d, want 204", rec.Code)
	}
	rec = do(t, h, "DELETE", "/api/urls/example.com/config", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want 404", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != errors.CodeNotConfigured {
		t.Errorf("code = %q, want %q", e.Code, errors.CodeNotConfigured)
	}
}

func TestGetStatus(t *testing.T) {
	h, st := newTestAPI(t)
	ctx := context.Background()
	st.SetBlacklist(ctx, []string{"reddit.com"})

	rec := do(t, h, "GET", "/api/urls/reddit.com/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got status.URLStatus
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !got.Blacklisted || got.Host != "reddit.com" {
		t.Errorf("status = %+v", got)
	}

	rec = do(t, h, "GET", "/api/urls/example.com/status", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unrestricted status = %d, want 404", rec.Code)
	}
	e := decodeError(t, rec)
	if e.Code != errors.CodeNoStatus || e.Message != "No status" {
		t.Errorf("error = %+v", e)
	}
}

func TestUnknownEndpoint(t *testing.T) {
	h, _ := newTestAPI(t)
	rec := do(t, h, "GET", "/api/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != errors.CodeInvalidRequest {
		t.Errorf("code = %q", e.Code)
	}
}

func TestLiveStatus(t *testing.T) {
	h, st := newTestAPI(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/urls/example.com/status/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	var first status.URLStatus
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if first.Host != "example.com" || first.Restricted() {
		t.Errorf("first snapshot = %+v", first)
	}

	st.AddToBlacklist(context.Background(), "example.com")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var next status.URLStatus
		if err := conn.ReadJSON(&next); err != nil {
			t.Fatalf("never saw the blacklist: %v", err)
		}
		if next.Blacklisted {
			break
		}
	}
}
