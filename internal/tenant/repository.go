package tenant

import (
	"context"
	"errors"
)

var (
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrSlugAlreadyTaken  = errors.New("slug already taken")
	ErrDomainAlreadyUsed = errors.New("custom domain already attached to another tenant")
)

// Repository defines the interface for tenant storage.
// The domain lifecycle manager writes only the domain-related fields.
type Repository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	GetByCustomDomain(ctx context.Context, domain string) (*Tenant, error)
	List(ctx context.Context, limit, offset int) ([]*Tenant, error)

	// UpdateDomainFields persists customDomain, domainVerified, sslEnabled and
	// lastDomainCheckAt for the given tenant, leaving everything else untouched.
	UpdateDomainFields(ctx context.Context, t *Tenant) error

	// ListPendingDomains returns tenants with a custom domain attached that is
	// not yet verified. Used by the verification poller.
	ListPendingDomains(ctx context.Context, limit int) ([]*Tenant, error)
}
