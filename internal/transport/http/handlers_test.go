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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiplog/shiplog/internal/audit"
	"github.com/shiplog/shiplog/internal/domain"
	"github.com/shiplog/shiplog/internal/tenant"
)

const (
	testJWTSecret = "test-jwt-secret"
	testIssuer    = "shiplog-auth"
)

// memRepo is an in-memory tenant.Repository backing the handler tests.
type memRepo struct {
	mu      sync.Mutex
	tenants map[string]*tenant.Tenant
}

func newMemRepo() *memRepo {
	return &memRepo{tenants: make(map[string]*tenant.Tenant)}
}

func (r *memRepo) Create(ctx context.Context, t *tenant.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *t
	r.tenants[t.ID] = &c
	return nil
}

func (r *memRepo) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	c := *t
	return &c, nil
}

func (r *memRepo) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.Slug == slug {
			c := *t
			return &c, nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

func (r *memRepo) GetByCustomDomain(ctx context.Context, d string) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.CustomDomain != nil && *t.CustomDomain == d {
			c := *t
			return &c, nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

func (r *memRepo) List(ctx context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*tenant.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

func (r *memRepo) UpdateDomainFields(ctx context.Context, t *tenant.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tenants[t.ID]
	if !ok {
		return tenant.ErrTenantNotFound
	}
	stored.CustomDomain = t.CustomDomain
	stored.DomainVerified = t.DomainVerified
	stored.SSLEnabled = t.SSLEnabled
	stored.LastDomainCheckAt = t.LastDomainCheckAt
	return nil
}

func (r *memRepo) ListPendingDomains(ctx context.Context, limit int) ([]*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*tenant.Tenant
	for _, t := range r.tenants {
		if t.CustomDomain != nil && !t.DomainVerified {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

// stubRegistrar is a controllable domain.Registrar.
type stubRegistrar struct {
	addErr    error
	verified  bool
	verifyErr error
}

func (s *stubRegistrar) AddDomain(ctx context.Context, domain string) error    { return s.addErr }
func (s *stubRegistrar) RemoveDomain(ctx context.Context, domain string) error { return nil }
func (s *stubRegistrar) VerifyDomain(ctx context.Context, domain string) (bool, error) {
	return s.verified, s.verifyErr
}

// stubChecker returns a fixed snapshot.
type stubChecker struct {
	snap domain.VerificationSnapshot
}

func (s *stubChecker) Check(ctx context.Context, d string) domain.VerificationSnapshot {
	snap := s.snap
	snap.CheckedAt = time.Now()
	return snap
}

type testServer struct {
	router    http.Handler
	repo      *memRepo
	registrar *stubRegistrar
	checker   *stubChecker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := newMemRepo()
	registrar := &stubRegistrar{verified: true}
	checker := &stubChecker{snap: domain.VerificationSnapshot{
		DNSResolved:   true,
		PointsToProxy: true,
		SSLAvailable:  true,
	}}

	auditLogger := audit.NewSlogLogger()
	manager, err := domain.NewManager(repo, registrar, checker, auditLogger, nil, domain.ManagerConfig{
		BaseDomain:      "shiplog.dev",
		TokenSecret:     "test-secret",
		EdgeCNAMETarget: "edge.shiplog.dev",
		EdgeIPs:         []string{"76.76.21.21"},
	})
	require.NoError(t, err)

	h := NewHandler(tenant.NewService(repo, auditLogger), manager, auditLogger, AuthConfig{
		JWTSecret: testJWTSecret,
		Issuer:    testIssuer,
	})
	rl := NewRateLimiter(1000, 1000)
	t.Cleanup(rl.Stop)
	router := NewRouter(h, rl, RouterConfig{})

	return &testServer{router: router, repo: repo, registrar: registrar, checker: checker}
}

func bearerToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    testIssuer,
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func (ts *testServer) request(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func (ts *testServer) createTenant(t *testing.T, slug string) tenant.Tenant {
	t.Helper()
	rec := ts.request(t, http.MethodPost, "/api/v1/tenants",
		CreateTenantRequest{Slug: slug, Name: "Acme Inc"}, bearerToken(t, "user-1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created tenant.Tenant
	decodeBody(t, rec, &created)
	return created
}

// TestPurpose: Verify the health endpoint is public and reports the
// service name.
// Scope: GET /health without credentials.
// Expected: 200 with status healthy.
// Test Case ID: HTTP-01
func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.request(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
}

// TestPurpose: Verify API routes require a valid bearer token issued by
// the external auth service.
// Scope: AuthMiddleware over /api/v1.
// Expected: missing, malformed and wrongly signed tokens are 401; a valid
// token passes.
// Test Case ID: HTTP-02
func TestAuthMiddleware(t *testing.T) {
	ts := newTestServer(t)

	t.Run("missing token", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/api/v1/tenants", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/api/v1/tenants", nil, "not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong signing key", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		signed, err := token.SignedString([]byte("other-secret"))
		require.NoError(t, err)

		rec := ts.request(t, http.MethodGet, "/api/v1/tenants", nil, signed)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		})
		signed, err := token.SignedString([]byte(testJWTSecret))
		require.NoError(t, err)

		rec := ts.request(t, http.MethodGet, "/api/v1/tenants", nil, signed)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/api/v1/tenants", nil, bearerToken(t, "user-1"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

// TestPurpose: Verify the full custom-domain lifecycle over the API:
// attach, inspect, verify and remove.
// Scope: the four /tenants/{id}/domain endpoints against a manager backed
// by passing stubs.
// Expected: attach yields a pending tenant with instructions in status,
// verify flips it to verified and unlocks features, remove resets it.
// Test Case ID: HTTP-03
func TestDomainLifecycle(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createTenant(t, "acme")
	token := bearerToken(t, "user-1")
	base := "/api/v1/tenants/" + created.ID + "/domain"

	// Attach.
	rec := ts.request(t, http.MethodPut, base, SetDomainRequest{Domain: "updates.example.com"}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var attached tenant.Tenant
	decodeBody(t, rec, &attached)
	require.NotNil(t, attached.CustomDomain)
	assert.Equal(t, "updates.example.com", *attached.CustomDomain)
	assert.False(t, attached.DomainVerified)

	// Pending tenant is feature-restricted.
	rec = ts.request(t, http.MethodGet, "/api/v1/tenants/"+created.ID, nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		FeaturesUsable bool `json:"features_usable"`
	}
	decodeBody(t, rec, &detail)
	assert.False(t, detail.FeaturesUsable)

	// Status carries instructions while pending.
	rec = ts.request(t, http.MethodGet, base+"/status", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var status domain.DomainStatus
	decodeBody(t, rec, &status)
	assert.Equal(t, tenant.DomainStatePending, status.State)
	assert.NotEmpty(t, status.Instructions)

	// Verify.
	rec = ts.request(t, http.MethodPost, base+"/verify", nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result domain.VerifyResult
	decodeBody(t, rec, &result)
	assert.True(t, result.Verified)

	rec = ts.request(t, http.MethodGet, "/api/v1/tenants/"+created.ID, nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &detail)
	assert.True(t, detail.FeaturesUsable, "verified domain unlocks features")

	// Remove, twice: the second call is a no-op success.
	for i := 0; i < 2; i++ {
		rec = ts.request(t, http.MethodDelete, base, nil, token)
		require.Equal(t, http.StatusOK, rec.Code)
		var removed tenant.Tenant
		decodeBody(t, rec, &removed)
		assert.Nil(t, removed.CustomDomain)
		assert.False(t, removed.DomainVerified)
	}
}

// TestPurpose: Verify domain endpoint error mapping: each failure class
// maps to its documented status code and never leaks provider internals.
// Scope: PUT/POST domain endpoints with failing inputs and stubs.
// Expected: 400 for syntax, 404 for unknown tenants, 409 for conflicts,
// 422 for verify without a domain, 502 with a generic message for
// registration failures.
// Test Case ID: HTTP-04
func TestDomainErrorMapping(t *testing.T) {
	token := bearerToken(t, "user-1")

	t.Run("invalid domain", func(t *testing.T) {
		ts := newTestServer(t)
		created := ts.createTenant(t, "acme")
		rec := ts.request(t, http.MethodPut, "/api/v1/tenants/"+created.ID+"/domain",
			SetDomainRequest{Domain: "not a domain"}, token)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("platform subdomain rejected", func(t *testing.T) {
		ts := newTestServer(t)
		created := ts.createTenant(t, "acme")
		rec := ts.request(t, http.MethodPut, "/api/v1/tenants/"+created.ID+"/domain",
			SetDomainRequest{Domain: "acme.shiplog.dev"}, token)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.request(t, http.MethodPut, "/api/v1/tenants/nope/domain",
			SetDomainRequest{Domain: "updates.example.com"}, token)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("domain used by another tenant", func(t *testing.T) {
		ts := newTestServer(t)
		first := ts.createTenant(t, "acme")
		second := ts.createTenant(t, "globex")
		rec := ts.request(t, http.MethodPut, "/api/v1/tenants/"+first.ID+"/domain",
			SetDomainRequest{Domain: "updates.example.com"}, token)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = ts.request(t, http.MethodPut, "/api/v1/tenants/"+second.ID+"/domain",
			SetDomainRequest{Domain: "updates.example.com"}, token)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("registration failure is a generic retry", func(t *testing.T) {
		ts := newTestServer(t)
		ts.registrar.addErr = assert.AnError
		created := ts.createTenant(t, "acme")
		rec := ts.request(t, http.MethodPut, "/api/v1/tenants/"+created.ID+"/domain",
			SetDomainRequest{Domain: "updates.example.com"}, token)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
	})

	t.Run("verify without a domain", func(t *testing.T) {
		ts := newTestServer(t)
		created := ts.createTenant(t, "acme")
		rec := ts.request(t, http.MethodPost, "/api/v1/tenants/"+created.ID+"/domain/verify", nil, token)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

// TestPurpose: Verify tenant creation and conflict handling over the API.
// Scope: POST /api/v1/tenants.
// Expected: 201 on success, 409 on duplicate slug, 400 on bad input.
// Test Case ID: HTTP-05
func TestCreateTenantEndpoint(t *testing.T) {
	ts := newTestServer(t)
	token := bearerToken(t, "user-1")

	created := ts.createTenant(t, "acme")
	assert.NotEmpty(t, created.ID)

	rec := ts.request(t, http.MethodPost, "/api/v1/tenants",
		CreateTenantRequest{Slug: "acme", Name: "Another"}, token)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.request(t, http.MethodPost, "/api/v1/tenants",
		CreateTenantRequest{Slug: "Bad Slug", Name: "Nope"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestPurpose: Verify the internal tenant-page route resolves both
// identifier shapes the edge router produces: slugs and full hostnames.
// Scope: GET /_sites/{ident} without authentication.
// Expected: slug and custom domain both render, unknown identifiers 404.
// Test Case ID: HTTP-06
func TestTenantPage(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createTenant(t, "acme")

	rec := ts.request(t, http.MethodPut, "/api/v1/tenants/"+created.ID+"/domain",
		SetDomainRequest{Domain: "updates.example.com"}, bearerToken(t, "user-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("by slug", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/_sites/acme", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var page map[string]any
		decodeBody(t, rec, &page)
		assert.Equal(t, "acme", page["slug"])
	})

	t.Run("by custom domain", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/_sites/updates.example.com/timeline", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var page map[string]any
		decodeBody(t, rec, &page)
		assert.Equal(t, "acme", page["slug"])
	})

	t.Run("unknown identifier", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/_sites/ghost", nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

// TestPurpose: Verify the IP rate limiter rejects a burst-exceeding client
// with 429 while leaving other IPs untouched.
// Scope: RateLimitMiddleware with a burst of one.
// Expected: second immediate request from the same IP is limited.
// Test Case ID: HTTP-07
func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(0.1, 1)
	t.Cleanup(rl.Stop)
	handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	other := httptest.NewRequest(http.MethodGet, "/health", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}
