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

// Package controlplane wraps the external hosting provider's project-domains
// API: attaching, detaching, verifying and listing domains registered against
// the platform's serving project. The control plane is the source of truth
// for "is this domain attached"; the local tenant record remains the source
// of truth for "is it safe to rely on".
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

var (
	ErrMissingToken     = errors.New("control plane: API token is required")
	ErrMissingProjectID = errors.New("control plane: project id is required")
	// ErrDomainTaken means the domain is attached to a different project on
	// the hosting provider and cannot be claimed.
	ErrDomainTaken = errors.New("control plane: domain is in use by another project")
)

// DomainRegistration is the control plane's view of a domain attached to the
// serving project. It is never persisted locally; always fetched on demand.
type DomainRegistration struct {
	Name      string `json:"name"`
	ProjectID string `json:"projectId"`
	Verified  bool   `json:"verified"`
}

// Config holds control-plane client settings.
type Config struct {
	APIURL    string
	Token     string
	ProjectID string
	TeamID    string
	Timeout   time.Duration
}

// Client talks to the hosting control plane's project-domains API.
//
// The underlying HTTP client is initialized lazily on first use, guarded by
// sync.Once so concurrent first calls cannot construct it twice.
type Client struct {
	cfg Config

	initOnce sync.Once
	httpc    *http.Client
}

// New validates credentials and returns a client. A missing token or
// project id is a configuration error and fails here rather than on the
// first request.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if cfg.ProjectID == "" {
		return nil, ErrMissingProjectID
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.vercel.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{cfg: cfg}, nil
}

func (c *Client) client() *http.Client {
	c.initOnce.Do(func() {
		c.httpc = &http.Client{Timeout: c.cfg.Timeout}
	})
	return c.httpc
}

// apiError is the provider's structured error payload.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// AddDomain registers the domain against the serving project. Adding a
// domain that is already attached to the same project is a success, so
// callers never need to pre-check existence.
func (c *Client) AddDomain(ctx context.Context, domain string) error {
	body, _ := json.Marshal(map[string]string{"name": domain})
	status, payload, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/v10/projects/%s/domains", url.PathEscape(c.cfg.ProjectID)), body)
	if err != nil {
		return fmt.Errorf("add domain %s: %w", domain, err)
	}
	if status >= 200 && status < 300 {
		return nil
	}

	apiErr := decodeAPIError(payload)
	switch apiErr.Code {
	case "domain_already_exists", "domain_already_in_use_by_project":
		// Already attached to our project: idempotent success.
		return nil
	case "domain_taken", "domain_already_in_use":
		return fmt.Errorf("add domain %s: %w", domain, ErrDomainTaken)
	}
	return fmt.Errorf("add domain %s: %s (status %d)", domain, apiErr.describe(), status)
}

// RemoveDomain deregisters the domain. Removing a domain that is not
// registered is a no-op success.
func (c *Client) RemoveDomain(ctx context.Context, domain string) error {
	status, payload, err := c.do(ctx, http.MethodDelete,
		fmt.Sprintf("/v9/projects/%s/domains/%s", url.PathEscape(c.cfg.ProjectID), url.PathEscape(domain)), nil)
	if err != nil {
		return fmt.Errorf("remove domain %s: %w", domain, err)
	}
	if (status >= 200 && status < 300) || status == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("remove domain %s: %s (status %d)", domain, decodeAPIError(payload).describe(), status)
}

// VerifyDomain asks the control plane whether it considers the domain
// correctly pointed. This signal is distinct from the local DNS/TLS probe
// and can legitimately disagree with it during propagation.
func (c *Client) VerifyDomain(ctx context.Context, domain string) (bool, error) {
	status, payload, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/v9/projects/%s/domains/%s/verify", url.PathEscape(c.cfg.ProjectID), url.PathEscape(domain)), nil)
	if err != nil {
		return false, fmt.Errorf("verify domain %s: %w", domain, err)
	}
	if status < 200 || status >= 300 {
		return false, fmt.Errorf("verify domain %s: %s (status %d)", domain, decodeAPIError(payload).describe(), status)
	}

	var resp struct {
		Verified bool `json:"verified"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return false, fmt.Errorf("verify domain %s: decode response: %w", domain, err)
	}
	return resp.Verified, nil
}

// ListDomains returns the domains registered against the serving project.
func (c *Client) ListDomains(ctx context.Context) ([]DomainRegistration, error) {
	status, payload, err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/v9/projects/%s/domains", url.PathEscape(c.cfg.ProjectID)), nil)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("list domains: %s (status %d)", decodeAPIError(payload).describe(), status)
	}

	var resp struct {
		Domains []DomainRegistration `json:"domains"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("list domains: decode response: %w", err)
	}
	return resp.Domains, nil
}

// DomainExists reports whether the domain is registered against the serving
// project. Convenience built on ListDomains.
func (c *Client) DomainExists(ctx context.Context, domain string) (bool, error) {
	domains, err := c.ListDomains(ctx)
	if err != nil {
		return false, err
	}
	for _, d := range domains {
		if d.Name == domain {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	u := c.cfg.APIURL + path
	if c.cfg.TeamID != "" {
		u += "?teamId=" + url.QueryEscape(c.cfg.TeamID)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, payload, nil
}

func decodeAPIError(payload []byte) apiError {
	var resp errorResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return apiError{}
	}
	return resp.Error
}

func (e apiError) describe() string {
	if e.Code == "" && e.Message == "" {
		return "unexpected response"
	}
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}
