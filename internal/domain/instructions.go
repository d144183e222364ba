package domain

import (
	"strings"

	"github.com/shiplog/shiplog/internal/tenant"
)

// Instruction is one DNS record the tenant must create. Instructions are
// derived from platform configuration, not computed per check.
type Instruction struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
	TTL   int    `json:"ttl"`
}

const defaultRecordTTL = 300

// SetupInstructions returns the DNS records for the tenant's pending
// domain: CNAME for subdomains, A records for apex domains, plus the TXT
// ownership token in both cases.
func (m *Manager) SetupInstructions(t *tenant.Tenant) []Instruction {
	if !t.HasCustomDomain() {
		return nil
	}
	domain := *t.CustomDomain

	var records []Instruction
	if isApexDomain(domain) {
		for _, ip := range m.cfg.EdgeIPs {
			records = append(records, Instruction{
				Type:  "A",
				Name:  "@",
				Value: ip,
				TTL:   defaultRecordTTL,
			})
		}
	} else {
		records = append(records, Instruction{
			Type:  "CNAME",
			Name:  subdomainLabel(domain),
			Value: m.cfg.EdgeCNAMETarget,
			TTL:   defaultRecordTTL,
		})
	}

	records = append(records, Instruction{
		Type:  "TXT",
		Name:  "_shiplog-verify",
		Value: OwnershipToken(m.cfg.TokenSecret, t.ID, domain),
		TTL:   defaultRecordTTL,
	})
	return records
}

// isApexDomain reports whether the domain is its own registrable zone and
// therefore needs A records; anything deeper can CNAME at the extra labels.
func isApexDomain(domain string) bool {
	return domain == registrableDomain(domain)
}

// subdomainLabel returns the part of domain left of its registrable zone,
// i.e. the record name the CNAME is created under.
func subdomainLabel(domain string) string {
	zone := registrableDomain(domain)
	if domain == zone {
		return "@"
	}
	return strings.TrimSuffix(domain, "."+zone)
}
