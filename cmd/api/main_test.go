package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRouterOperationalEndpoints(t *testing.T) {
	r := newRouter([]string{"http://localhost:3000"})

	t.Run("health", func(t *testing.T) {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
			t.Fatalf("unexpected body %s", rr.Body.String())
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Fatalf("expected request id header")
		}
	})

	t.Run("metrics", func(t *testing.T) {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "rp_http_requests_total") {
			t.Fatalf("expected http metrics to be exported")
		}
	})
}

func TestRouterNestedAdminMounts(t *testing.T) {
	r := newRouter(nil)
	ok := func(body string) http.Handler {
		sub := chi.NewRouter()
		sub.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})
		return sub
	}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				t.Fatalf("mounting admin routers panicked: %v", rec)
			}
		}()
		r.Route("/api", func(r chi.Router) {
			r.Mount("/admin/sync", ok("sync"))
			r.Mount("/admin", ok("admin"))
		})
	}()

	for path, want := range map[string]string{
		"/api/admin/sync/last": "sync",
		"/api/admin/users":     "admin",
	} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Body.String() != want {
			t.Fatalf("%s: expected %q, got %q", path, want, rr.Body.String())
		}
	}
}
