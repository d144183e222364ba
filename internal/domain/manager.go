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

package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/shiplog/shiplog/internal/audit"
	"github.com/shiplog/shiplog/internal/observability/logger"
	"github.com/shiplog/shiplog/internal/observability/metrics"
	"github.com/shiplog/shiplog/internal/tenant"
)

var (
	ErrNoCustomDomain  = errors.New("tenant has no custom domain attached")
	ErrInvalidDomain   = errors.New("invalid domain name")
	ErrBaseDomainClash = errors.New("domain conflicts with the platform base domain")
)

var domainRegexp = regexp.MustCompile(
	`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,}$`,
)

// Registrar is the control-plane surface the manager depends on.
// Implemented by controlplane.Client.
type Registrar interface {
	AddDomain(ctx context.Context, domain string) error
	RemoveDomain(ctx context.Context, domain string) error
	VerifyDomain(ctx context.Context, domain string) (bool, error)
}

// VerificationChecker performs the local DNS/TLS probe.
type VerificationChecker interface {
	Check(ctx context.Context, domain string) VerificationSnapshot
}

// VerifyResult is what a verification attempt reports back to the caller.
type VerifyResult struct {
	Verified bool                 `json:"verified"`
	Message  string               `json:"message"`
	Details  VerificationSnapshot `json:"details"`
	// ControlPlaneVerified is the hosting provider's own signal; final
	// verification requires both it and the local snapshot to agree.
	ControlPlaneVerified bool `json:"control_plane_verified"`
}

// ManagerConfig holds lifecycle-manager settings.
type ManagerConfig struct {
	// BaseDomain is rejected as (a suffix of) a custom domain.
	BaseDomain string
	// TokenSecret keys the DNS ownership token surfaced in setup instructions.
	TokenSecret string
	// Instructions describe how a correctly pointed domain should be configured.
	EdgeCNAMETarget string
	EdgeIPs         []string
}

// Manager owns the custom-domain state machine for tenants:
//
//	NONE -> PENDING -> VERIFIED -> NONE
//
// A PENDING domain that fails a check stays PENDING and is eligible for
// another check; failure is never sticky. Operations on the same tenant are
// serialized for their store writes; external round trips happen outside
// the lock so a slow control plane never blocks unrelated reads.
type Manager struct {
	repo      tenant.Repository
	registrar Registrar
	checker   VerificationChecker
	audit     audit.Logger
	cfg       ManagerConfig

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// verifyGroup collapses overlapping verify calls for the same tenant so
	// a 30s poller never accumulates in-flight checks.
	verifyGroup singleflight.Group

	checkCounter  metric.Int64Counter
	checkDuration metric.Float64Histogram
}

// NewManager wires the lifecycle manager. The registrar must already be
// constructed (and therefore credential-checked); a nil registrar is a
// programming error and rejected here.
func NewManager(repo tenant.Repository, registrar Registrar, checker VerificationChecker, auditLogger audit.Logger, meter *metrics.Meter, cfg ManagerConfig) (*Manager, error) {
	if repo == nil || registrar == nil || checker == nil {
		return nil, fmt.Errorf("domain: repository, registrar and checker are all required")
	}

	m := &Manager{
		repo:      repo,
		registrar: registrar,
		checker:   checker,
		audit:     auditLogger,
		cfg:       cfg,
		locks:     make(map[string]*sync.Mutex),
	}

	if meter != nil {
		var err error
		if m.checkCounter, err = meter.CreateCounter("domain_checks_total", "Number of domain verification checks performed"); err != nil {
			return nil, err
		}
		if m.checkDuration, err = meter.CreateHistogram("domain_check_duration", "Duration of domain verification checks", "s"); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// tenantLock returns the mutex serializing store writes for one tenant.
// Locks are per-tenant so operations on different tenants stay independent.
func (m *Manager) tenantLock(tenantID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[tenantID] = l
	}
	return l
}

// ValidateDomain runs the synchronous syntax checks on a candidate domain.
func (m *Manager) ValidateDomain(domain string) error {
	domain = NormalizeDomain(domain)
	if domain == "" || len(domain) > 253 {
		return ErrInvalidDomain
	}
	if strings.HasPrefix(domain, "*.") {
		return fmt.Errorf("%w: wildcard domains are not supported", ErrInvalidDomain)
	}
	if !domainRegexp.MatchString(domain) {
		return ErrInvalidDomain
	}
	base := strings.ToLower(m.cfg.BaseDomain)
	if domain == base || strings.HasSuffix(domain, "."+base) {
		return ErrBaseDomainClash
	}
	return nil
}

// NormalizeDomain lowercases and trims a user-supplied domain.
func NormalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(domain), "."))
}

// SetDomain attaches a custom domain to the tenant, replacing any previous
// one (best-effort remove of the old registration, then add of the new).
// The tenant record is only updated after the control plane reports the new
// domain registered, so a failed add never leaves the tenant pointing at a
// domain that was never registered. Resulting state: PENDING.
func (m *Manager) SetDomain(ctx context.Context, tenantID, domain string) (*tenant.Tenant, error) {
	domain = NormalizeDomain(domain)
	if err := m.ValidateDomain(domain); err != nil {
		return nil, err
	}

	t, err := m.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	// Reject a domain already attached to a different tenant before
	// touching the control plane.
	if other, err := m.repo.GetByCustomDomain(ctx, domain); err == nil && other.ID != tenantID {
		return nil, tenant.ErrDomainAlreadyUsed
	}

	var oldDomain string
	if t.HasCustomDomain() {
		oldDomain = *t.CustomDomain
	}

	// External round trips happen before any guarded write.
	if oldDomain != "" && oldDomain != domain {
		if err := m.registrar.RemoveDomain(ctx, oldDomain); err != nil {
			// Best effort: a stale external registration must not block the
			// switch to the new domain.
			slog.WarnContext(ctx, "failed to deregister previous domain",
				logger.Component("domain"), logger.TenantID(tenantID), logger.Domain(oldDomain), logger.Error(err))
		}
	}
	if err := m.registrar.AddDomain(ctx, domain); err != nil {
		return nil, fmt.Errorf("register domain: %w", err)
	}

	lock := m.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	t, err = m.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	t.CustomDomain = &domain
	t.DomainVerified = false
	t.SSLEnabled = false
	t.LastDomainCheckAt = nil
	if err := m.repo.UpdateDomainFields(ctx, t); err != nil {
		return nil, err
	}

	m.audit.Log(ctx, audit.Event{
		Type:     audit.TypeDomainAttached,
		TenantID: tenantID,
		Resource: domain,
		Metadata: map[string]any{"previous_domain": oldDomain},
	})

	return t, nil
}

// Verify re-checks the tenant's custom domain. Final verification is the
// conservative AND of the local DNS/TLS snapshot and the control plane's
// own verified signal: both must agree. On success the tenant transitions
// to VERIFIED with SSLEnabled taken from the snapshot; on failure it stays
// PENDING with flags untouched and a descriptive message, never an error.
//
// Overlapping calls for the same tenant share one in-flight check.
func (m *Manager) Verify(ctx context.Context, tenantID string) (*VerifyResult, error) {
	t, err := m.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !t.HasCustomDomain() {
		return nil, ErrNoCustomDomain
	}
	domain := *t.CustomDomain

	v, err, _ := m.verifyGroup.Do(tenantID, func() (any, error) {
		return m.verifyDomain(ctx, tenantID, domain)
	})
	if err != nil {
		return nil, err
	}
	return v.(*VerifyResult), nil
}

func (m *Manager) verifyDomain(ctx context.Context, tenantID, domain string) (*VerifyResult, error) {
	start := time.Now()
	snapshot := m.checker.Check(ctx, domain)

	cpVerified, cpErr := m.registrar.VerifyDomain(ctx, domain)
	if cpErr != nil {
		// Recovered locally: an unreachable control plane reads as "not yet
		// verified, try again", never as a failed request.
		slog.WarnContext(ctx, "control plane verification unavailable",
			logger.Component("domain"), logger.TenantID(tenantID), logger.Domain(domain), logger.Error(cpErr))
		cpVerified = false
	}

	verified := snapshot.Verified() && cpVerified
	if cpErr == nil && snapshot.Verified() != cpVerified {
		// The two signals have no declared precedence when they disagree
		// long-term; surface the disagreement for operators instead of
		// guessing a resolution.
		slog.WarnContext(ctx, "local probe and control plane disagree on domain verification",
			logger.Component("domain"), logger.TenantID(tenantID), logger.Domain(domain),
			slog.Bool("local_verified", snapshot.Verified()),
			slog.Bool("control_plane_verified", cpVerified))
	}

	m.recordCheck(ctx, verified, time.Since(start))

	lock := m.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	// A result arriving after cancellation is discarded, not applied.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := m.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !t.HasCustomDomain() || *t.CustomDomain != domain {
		// The domain was removed or replaced while the check was in flight.
		return nil, ErrNoCustomDomain
	}

	now := snapshot.CheckedAt
	t.LastDomainCheckAt = &now
	if verified {
		t.DomainVerified = true
		t.SSLEnabled = snapshot.SSLAvailable
	}
	if err := m.repo.UpdateDomainFields(ctx, t); err != nil {
		return nil, err
	}

	result := &VerifyResult{
		Verified:             verified,
		Message:              verificationMessage(snapshot, cpVerified, verified),
		Details:              snapshot,
		ControlPlaneVerified: cpVerified,
	}

	if verified {
		m.audit.Log(ctx, audit.Event{
			Type:     audit.TypeDomainVerified,
			TenantID: tenantID,
			Resource: domain,
			Metadata: map[string]any{"ssl_enabled": snapshot.SSLAvailable},
		})
	} else {
		m.audit.Log(ctx, audit.Event{
			Type:     audit.TypeDomainCheckFailed,
			TenantID: tenantID,
			Resource: domain,
			Metadata: map[string]any{
				"dns_resolved":    snapshot.DNSResolved,
				"points_to_proxy": snapshot.PointsToProxy,
				"ssl_available":   snapshot.SSLAvailable,
			},
		})
	}

	return result, nil
}

// RemoveDomain detaches the tenant's custom domain. The external
// deregistration is best effort: local state must never get stuck because
// an already-gone registration errors. Removing when no domain is attached
// is an idempotent no-op. Resulting state: NONE.
func (m *Manager) RemoveDomain(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	t, err := m.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !t.HasCustomDomain() {
		return t, nil
	}
	domain := *t.CustomDomain

	if err := m.registrar.RemoveDomain(ctx, domain); err != nil {
		slog.WarnContext(ctx, "failed to deregister domain, clearing local state anyway",
			logger.Component("domain"), logger.TenantID(tenantID), logger.Domain(domain), logger.Error(err))
	}

	lock := m.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	t, err = m.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	t.CustomDomain = nil
	t.DomainVerified = false
	t.SSLEnabled = false
	t.LastDomainCheckAt = nil
	if err := m.repo.UpdateDomainFields(ctx, t); err != nil {
		return nil, err
	}

	m.audit.Log(ctx, audit.Event{
		Type:     audit.TypeDomainRemoved,
		TenantID: tenantID,
		Resource: domain,
	})

	return t, nil
}

// DomainStatus is the payload served to the dashboard while it polls.
type DomainStatus struct {
	State        tenant.DomainState   `json:"state"`
	Domain       string               `json:"domain,omitempty"`
	Snapshot     *VerificationSnapshot `json:"snapshot,omitempty"`
	Instructions []Instruction        `json:"instructions,omitempty"`
	Message      string               `json:"message,omitempty"`
}

// Status reports the current verification state of the tenant's domain,
// with a fresh local snapshot and DNS setup instructions while unverified.
// It does not consult the control plane and does not mutate the tenant.
func (m *Manager) Status(ctx context.Context, tenantID string) (*DomainStatus, error) {
	t, err := m.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	status := &DomainStatus{State: tenant.DomainStateOf(t)}
	if !t.HasCustomDomain() {
		return status, nil
	}
	domain := *t.CustomDomain
	status.Domain = domain

	snapshot := m.checker.Check(ctx, domain)
	status.Snapshot = &snapshot

	if status.State != tenant.DomainStateVerified {
		status.Instructions = m.SetupInstructions(t)
		status.Message = verificationMessage(snapshot, false, false)
	}
	return status, nil
}

func (m *Manager) recordCheck(ctx context.Context, verified bool, elapsed time.Duration) {
	if m.checkCounter != nil {
		m.checkCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("verified", verified)))
	}
	if m.checkDuration != nil {
		m.checkDuration.Record(ctx, elapsed.Seconds())
	}
}

// verificationMessage turns a snapshot into an actionable, user-facing
// sentence instead of a raw error.
func verificationMessage(s VerificationSnapshot, cpVerified, verified bool) string {
	switch {
	case verified:
		return "Domain verified. Your page is live on your custom domain."
	case !s.DNSResolved:
		return "Your domain does not resolve yet. Add the DNS records below; propagation can take up to 48 hours."
	case s.HasThirdPartyProxy && !s.PointsToProxy:
		return "Your DNS provider's proxy may be masking verification. Disable proxying (grey-cloud the record) and try again."
	case !s.PointsToProxy:
		return "Your domain resolves but does not point at the platform yet. Check the DNS records below."
	case !s.SSLAvailable:
		return "DNS looks correct; the TLS certificate is still being issued. This usually completes within a few minutes."
	case !cpVerified:
		return "DNS looks correct locally; the hosting provider has not confirmed it yet. Try again shortly."
	default:
		return "Verification pending. Try again shortly."
	}
}
