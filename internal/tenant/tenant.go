package tenant

import (
	"time"
)

// Tenant represents a project whose public page is served on a subdomain
// of the platform base domain or on a verified custom domain.
type Tenant struct {
	ID                string     `json:"id"`
	Slug              string     `json:"slug"`
	Name              string     `json:"name"`
	CustomDomain      *string    `json:"custom_domain,omitempty"`
	DomainVerified    bool       `json:"domain_verified"`
	SSLEnabled        bool       `json:"ssl_enabled"`
	LastDomainCheckAt *time.Time `json:"last_domain_check_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// HasCustomDomain reports whether a custom domain is attached.
// DomainVerified and SSLEnabled are meaningless while this is false.
func (t *Tenant) HasCustomDomain() bool {
	return t != nil && t.CustomDomain != nil && *t.CustomDomain != ""
}

// DomainState is the lifecycle state of a tenant's custom domain.
type DomainState string

const (
	// DomainStateNone means no custom domain is attached.
	DomainStateNone DomainState = "none"
	// DomainStatePending means a domain is attached but not yet verified.
	// Pending is re-checkable indefinitely; a failed check is not sticky.
	DomainStatePending DomainState = "pending"
	// DomainStateVerified means DNS and TLS checks have passed.
	DomainStateVerified DomainState = "verified"
)

// DomainStateOf derives the lifecycle state from the persisted fields.
func DomainStateOf(t *Tenant) DomainState {
	if !t.HasCustomDomain() {
		return DomainStateNone
	}
	if t.DomainVerified {
		return DomainStateVerified
	}
	return DomainStatePending
}
