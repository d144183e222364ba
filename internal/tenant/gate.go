package tenant

// CanAccessRestrictedFeatures decides whether a tenant's authoring features
// (updates, milestones) are available. This is a business rule, not a
// security boundary: a tenant without a custom domain always has access,
// and access is withheld only while an attached domain is pending
// verification.
//
// The gate is defensive about inconsistent store state: a tenant with
// DomainVerified set but no custom domain is treated as having no domain
// at all (fail open).
func CanAccessRestrictedFeatures(t *Tenant) bool {
	if t == nil || !t.HasCustomDomain() {
		return true
	}
	return t.DomainVerified
}
