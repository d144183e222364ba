// Copyright 2026 The Shiplog Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package edge

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiplog/shiplog/internal/tenant"
)

// recordingHandler captures the path the wrapped handler finally saw.
type recordingHandler struct {
	path string
	host string
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.path = r.URL.Path
	h.host = r.Host
	w.WriteHeader(http.StatusOK)
}

func newTestRouter(t *testing.T, cfg Config) (*Router, *recordingHandler) {
	t.Helper()
	next := &recordingHandler{}
	rt, err := New(cfg, tenant.NewResolver("shiplog.dev"), next)
	require.NoError(t, err)
	return rt, next
}

func serve(rt *Router, host, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Host = host
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)
	return rec
}

// TestPurpose: Verify the dispatch order: reserved paths and the API
// prefix win over host classification, and tenant hosts are rewritten onto
// the internal tenant-page route.
// Scope: Router.ServeHTTP with in-process API handling.
// Expected: each request lands on the wrapped handler with the documented
// path, never an error response.
// Test Case ID: EDG-01
func TestRouterDispatch(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		path     string
		wantPath string
	}{
		{
			name:     "api prefix wins over tenant host",
			host:     "acme.shiplog.dev",
			path:     "/api/v1/tags",
			wantPath: "/api/v1/tags",
		},
		{
			name:     "api prefix on custom domain",
			host:     "updates.example.com",
			path:     "/api/v1/tenants",
			wantPath: "/api/v1/tenants",
		},
		{
			name:     "subdomain root rewrites to tenant page",
			host:     "acme.shiplog.dev",
			path:     "/",
			wantPath: "/_sites/acme/",
		},
		{
			name:     "subdomain subpath keeps the tail",
			host:     "acme.shiplog.dev",
			path:     "/timeline",
			wantPath: "/_sites/acme/timeline",
		},
		{
			name:     "custom domain rewrites with the domain as identifier",
			host:     "updates.example.com",
			path:     "/timeline",
			wantPath: "/_sites/updates.example.com/timeline",
		},
		{
			name:     "marketing host passes through",
			host:     "shiplog.dev",
			path:     "/pricing",
			wantPath: "/pricing",
		},
		{
			name:     "www passes through",
			host:     "www.shiplog.dev",
			path:     "/",
			wantPath: "/",
		},
		{
			name:     "malformed host passes through",
			host:     "not a host!!",
			path:     "/anything",
			wantPath: "/anything",
		},
		{
			name:     "static prefix is never tenant-routed",
			host:     "acme.shiplog.dev",
			path:     "/static/app.css",
			wantPath: "/static/app.css",
		},
		{
			name:     "asset file on tenant host passes through",
			host:     "acme.shiplog.dev",
			path:     "/robots.txt",
			wantPath: "/robots.txt",
		},
		{
			name:     "favicon passes through",
			host:     "acme.shiplog.dev",
			path:     "/favicon.ico",
			wantPath: "/favicon.ico",
		},
		{
			name:     "already internal path is not rewritten again",
			host:     "acme.shiplog.dev",
			path:     "/_sites/acme/timeline",
			wantPath: "/_sites/acme/timeline",
		},
		{
			name:     "auth callback is reserved",
			host:     "acme.shiplog.dev",
			path:     "/auth/callback",
			wantPath: "/auth/callback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, next := newTestRouter(t, Config{})
			rec := serve(rt, tt.host, tt.path)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantPath, next.path)
		})
	}
}

// TestPurpose: Verify API-prefixed requests are proxied to the configured
// backend origin with the origin's own host, while tenant-page requests
// stay in-process.
// Scope: Router with BackendOrigin set, real reverse proxy round trip.
// Expected: the backend receives the unmodified API path and its own Host
// header; non-API requests never reach the backend.
// Test Case ID: EDG-02
func TestRouterBackendOriginProxy(t *testing.T) {
	backend := &recordingHandler{}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	rt, next := newTestRouter(t, Config{BackendOrigin: srv.URL})

	rec := serve(rt, "acme.shiplog.dev", "/api/v1/tags")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/api/v1/tags", backend.path)
	assert.NotEqual(t, "acme.shiplog.dev", backend.host, "backend must see its own host")

	backend.path = ""
	rec = serve(rt, "acme.shiplog.dev", "/timeline")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/_sites/acme/timeline", next.path)
	assert.Empty(t, backend.path, "tenant pages are not proxied")
}

// TestPurpose: Verify an unparseable backend origin fails at construction.
// Scope: New configuration validation.
// Expected: error returned, no router.
// Test Case ID: EDG-03
func TestRouterInvalidBackendOrigin(t *testing.T) {
	_, err := New(Config{BackendOrigin: "://not-a-url"}, tenant.NewResolver("shiplog.dev"), http.NotFoundHandler())
	assert.Error(t, err)
}
