package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tabletalk/internal/cache"
	"tabletalk/internal/config"
	"tabletalk/internal/controller"
	"tabletalk/internal/dataset"
	"tabletalk/internal/domain"
	"tabletalk/internal/pipeline"
	"tabletalk/internal/validate"
)

type okProvider struct{}

func (okProvider) Initialize(opts map[string]any) error { return nil }

func (okProvider) Generate(ctx context.Context, req *domain.QueryRequest) (*domain.QueryResponse, error) {
	return &domain.QueryResponse{Content: "forty two", ModelName: "ok", Success: true}, nil
}

func (okProvider) IsAvailable() bool          { return true }
func (okProvider) Info() domain.ProviderInfo  { return domain.ProviderInfo{Name: "ok"} }
func (okProvider) Cleanup()                   {}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Server.AdminToken = "secret"

	c := cache.New(time.Minute, time.Minute)
	t.Cleanup(c.Close)

	pl := pipeline.New(nil)
	pl.Register("ok", okProvider{})
	pl.SetActive("ok")

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(csvPath, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ds, err := dataset.Open(filepath.Join(dir, "data.db"), csvPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ds.Close() })

	ctrl := controller.New(cfg, validate.New(3, 1000), c, pl, ds, nil)
	d := controller.NewDispatcher(ctrl, 2, 8, 5*time.Second)
	d.Start()
	t.Cleanup(d.Stop)

	return New(cfg, ctrl, d)
}

func TestQueryEndpoint(t *testing.T) {
	s := newTestServer(t)

	t.Run("valid query answered", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/query",
			strings.NewReader(`{"query": "What is the total revenue?", "user_id": 7}`))
		w := httptest.NewRecorder()
		s.httpServer.Handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var resp queryResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if !resp.Success || resp.Content != "forty two" {
			t.Errorf("response = %+v", resp)
		}
		if resp.RequestID == "" {
			t.Error("request_id missing")
		}
	})

	t.Run("unsafe query rejected with 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/query",
			strings.NewReader(`{"query": "DROP TABLE users"}`))
		w := httptest.NewRecorder()
		s.httpServer.Handler.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		var resp errorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Reason != string(domain.ReasonUnsafePattern) {
			t.Errorf("reason = %q", resp.Reason)
		}
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader("{nope"))
		w := httptest.NewRecorder()
		s.httpServer.Handler.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated stats status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var status controller.SystemStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.ActiveProvider != "ok" {
		t.Errorf("active_provider = %q", status.ActiveProvider)
	}
}

func TestAdminAuthentication(t *testing.T) {
	s := newTestServer(t)

	t.Run("missing token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/admin/cache/clear", nil)
		w := httptest.NewRecorder()
		s.httpServer.Handler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("wrong token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/admin/cache/clear", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		w := httptest.NewRecorder()
		s.httpServer.Handler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("valid token clears cache", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/admin/cache/clear", nil)
		req.Header.Set("Authorization", "Bearer secret")
		w := httptest.NewRecorder()
		s.httpServer.Handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}
