package tenant

import (
	"net"
	"regexp"
	"strings"
)

// hostRegexp is a sanity filter, not a full RFC validation: hosts that do
// not look like a dotted name are left unclassified.
var hostRegexp = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

// Kind classifies an inbound Host header.
type Kind string

const (
	// KindSubdomain is a tenant page on {slug}.basedomain.
	KindSubdomain Kind = "subdomain"
	// KindCustomDomain is a tenant page on a tenant-supplied domain.
	KindCustomDomain Kind = "custom-domain"
	// KindMarketing is the root/marketing site (base domain, www, or anything
	// that could not be classified).
	KindMarketing Kind = "marketing"
)

// Classification is the result of resolving a hostname.
type Classification struct {
	Kind Kind
	// Slug is set when Kind is KindSubdomain.
	Slug string
	// Domain is the full hostname when Kind is KindCustomDomain.
	Domain string
}

// Resolver maps a request hostname to a tenant identifier. It is a pure
// string parser: whether the tenant actually exists is decided downstream
// by the page-serving layer.
type Resolver struct {
	baseDomain string
}

// NewResolver creates a resolver for the given platform base domain.
func NewResolver(baseDomain string) *Resolver {
	return &Resolver{baseDomain: strings.ToLower(strings.TrimSuffix(baseDomain, "."))}
}

// Resolve classifies a Host header value. It never fails: anything
// malformed or ambiguous degrades to KindMarketing so the edge router can
// pass the request through instead of erroring.
func (r *Resolver) Resolve(host string) Classification {
	host = normalizeHost(host)
	if host == "" || !hostRegexp.MatchString(host) {
		return Classification{Kind: KindMarketing}
	}

	if host == r.baseDomain || host == "www."+r.baseDomain {
		return Classification{Kind: KindMarketing}
	}

	if label, ok := strings.CutSuffix(host, "."+r.baseDomain); ok {
		// Only a single non-www label is a tenant subdomain; deeper nesting
		// (a.b.basedomain) is not tenant-routable.
		if label == "" || label == "www" || strings.Contains(label, ".") {
			return Classification{Kind: KindMarketing}
		}
		return Classification{Kind: KindSubdomain, Slug: label}
	}

	return Classification{Kind: KindCustomDomain, Domain: host}
}

// normalizeHost lowercases and strips an optional port. A host that cannot
// be split cleanly is returned as-is after trimming.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}
