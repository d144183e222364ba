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

package tenant

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/shiplog/shiplog/internal/audit"
)

// slugRegexp matches a single DNS label usable as a tenant subdomain.
var slugRegexp = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// reservedSlugs are labels that can never become tenant subdomains because
// the platform serves them itself.
var reservedSlugs = map[string]bool{
	"www":   true,
	"api":   true,
	"app":   true,
	"edge":  true,
	"admin": true,
}

// Service provides tenant management business logic
type Service struct {
	repo        Repository
	auditLogger audit.Logger
}

// NewService creates a new tenant service
func NewService(repo Repository, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		auditLogger: auditLogger,
	}
}

// CreateTenant creates a new tenant with the given immutable subdomain slug.
func (s *Service) CreateTenant(ctx context.Context, slug, name, creatorID string) (*Tenant, error) {
	if !slugRegexp.MatchString(slug) {
		return nil, fmt.Errorf("invalid slug: %q", slug)
	}
	if reservedSlugs[slug] {
		return nil, fmt.Errorf("slug %q is reserved", slug)
	}
	if name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}

	if _, err := s.repo.GetBySlug(ctx, slug); err == nil {
		return nil, ErrSlugAlreadyTaken
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate tenant id: %w", err)
	}

	now := time.Now()
	t := &Tenant{
		ID:        id.String(),
		Slug:      slug,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantCreated,
		TenantID: t.ID,
		ActorID:  creatorID,
		Resource: slug,
	})

	return t, nil
}

// GetTenant retrieves a tenant by ID
func (s *Service) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// GetTenantBySlug retrieves a tenant by its subdomain slug
func (s *Service) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// GetTenantByDomain retrieves a tenant by its custom domain
func (s *Service) GetTenantByDomain(ctx context.Context, domain string) (*Tenant, error) {
	return s.repo.GetByCustomDomain(ctx, domain)
}

// ListTenants lists tenants with pagination
func (s *Service) ListTenants(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	return s.repo.List(ctx, limit, offset)
}
