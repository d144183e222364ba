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

// Package edge contains the request-time dispatcher that classifies every
// inbound request by Host header and path and rewrites it onto the right
// internal route: backend API, tenant public page, or the marketing site.
package edge

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"

	"github.com/shiplog/shiplog/internal/tenant"
)

// Config holds edge routing settings.
type Config struct {
	// APIPrefix marks requests for the backend API.
	APIPrefix string
	// ReservedPrefixes are never tenant-classified regardless of host.
	ReservedPrefixes []string
	// TenantPagePrefix is the internal route tenant pages are served under;
	// the resolved slug or domain becomes the next path segment.
	TenantPagePrefix string
	// BackendOrigin, when set, is where API-prefixed requests are proxied.
	// Empty means the API is served by the wrapped handler in-process.
	BackendOrigin string
}

// Router is the edge dispatcher. It runs on every request, performs no
// blocking I/O and holds no mutable state; anything it cannot classify
// passes through to the wrapped handler rather than erroring.
type Router struct {
	cfg      Config
	resolver *tenant.Resolver
	next     http.Handler
	apiProxy *httputil.ReverseProxy
}

// New wraps next with edge routing. An invalid BackendOrigin is a
// configuration error surfaced at construction, not per request.
func New(cfg Config, resolver *tenant.Resolver, next http.Handler) (*Router, error) {
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api"
	}
	if cfg.TenantPagePrefix == "" {
		cfg.TenantPagePrefix = "/_sites"
	}
	if len(cfg.ReservedPrefixes) == 0 {
		cfg.ReservedPrefixes = []string{"/static/", "/assets/", "/auth/callback", "/.well-known/"}
	}

	r := &Router{cfg: cfg, resolver: resolver, next: next}

	if cfg.BackendOrigin != "" {
		origin, err := url.Parse(cfg.BackendOrigin)
		if err != nil {
			return nil, err
		}
		proxy := &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				pr.SetURL(origin)
				// The backend must see its own host, not the tenant's.
				pr.Out.Host = origin.Host
			},
		}
		r.apiProxy = proxy
	}

	return r, nil
}

// ServeHTTP classifies the request, first match wins:
//  1. reserved/static path: pass through untouched
//  2. API prefix: forward to the backend origin (or in-process handler)
//  3. tenant subdomain or custom domain: rewrite onto the tenant-page route
//  4. anything else: pass through (marketing/root site)
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path

	if rt.isReserved(p) {
		rt.next.ServeHTTP(w, r)
		return
	}

	if p == rt.cfg.APIPrefix || strings.HasPrefix(p, rt.cfg.APIPrefix+"/") {
		if rt.apiProxy != nil {
			rt.apiProxy.ServeHTTP(w, r)
			return
		}
		rt.next.ServeHTTP(w, r)
		return
	}

	switch c := rt.resolver.Resolve(r.Host); c.Kind {
	case tenant.KindSubdomain:
		rt.serveTenantPage(w, r, c.Slug)
	case tenant.KindCustomDomain:
		rt.serveTenantPage(w, r, c.Domain)
	default:
		rt.next.ServeHTTP(w, r)
	}
}

// isReserved reports whether the path must never be tenant-routed: static
// prefixes, favicon, and any final segment containing a dot (asset files).
func (rt *Router) isReserved(p string) bool {
	if p == "/favicon.ico" {
		return true
	}
	if strings.HasPrefix(p, rt.cfg.TenantPagePrefix+"/") {
		// Already an internal tenant-page path; rewriting again would nest it.
		return true
	}
	for _, prefix := range rt.cfg.ReservedPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return strings.Contains(path.Base(p), ".")
}

// serveTenantPage rewrites the request onto the internal tenant-page route,
// carrying the resolved identifier as a path segment.
func (rt *Router) serveTenantPage(w http.ResponseWriter, r *http.Request, ident string) {
	r2 := r.Clone(r.Context())
	r2.URL.Path = rt.cfg.TenantPagePrefix + "/" + ident + r.URL.Path
	r2.URL.RawPath = ""
	rt.next.ServeHTTP(w, r2)
}
