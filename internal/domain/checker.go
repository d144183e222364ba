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

// Package domain implements the custom-domain lifecycle: DNS/TLS
// verification probes, the per-tenant state machine that gates features on
// verification, and the background poller that re-checks pending domains.
package domain

import (
	"context"
	"crypto/tls"
	"net"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"
)

// VerificationSnapshot is the point-in-time result of probing a custom
// domain. It is recomputed on every check and never persisted as a row;
// only its Verified/SSLAvailable projection is written back onto the tenant.
type VerificationSnapshot struct {
	DNSResolved bool `json:"dns_resolved"`
	// PointsToProxy reports whether the resolved target matches the
	// platform's edge endpoints (by CNAME target or A-record address).
	PointsToProxy bool `json:"points_to_proxy"`
	// HasThirdPartyProxy flags a proxy service (e.g. Cloudflare) in front of
	// the domain. Informational only: it produces a clearer user message,
	// it does not block verification.
	HasThirdPartyProxy bool      `json:"has_third_party_proxy"`
	SSLAvailable       bool      `json:"ssl_available"`
	CheckedAt          time.Time `json:"checked_at"`
}

// Verified reports whether the snapshot passes local verification.
// The proxy flag deliberately does not participate.
func (s VerificationSnapshot) Verified() bool {
	return s.DNSResolved && s.PointsToProxy && s.SSLAvailable
}

// dnsResolver is the subset of net.Resolver the checker needs.
// Satisfied by *net.Resolver; replaced by a fake in tests.
type dnsResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

// tlsProber attempts a TLS handshake with certificate validation for the
// given domain. Returns nil when a valid certificate was presented.
type tlsProber func(ctx context.Context, domain string) error

// CheckerConfig tunes the verification checker.
type CheckerConfig struct {
	// EdgeCNAMETarget is the CNAME value a correctly pointed domain resolves to.
	EdgeCNAMETarget string
	// EdgeIPs are the platform edge A-record addresses, for apex domains.
	EdgeIPs []string
	// ProbeTimeout bounds each individual probe.
	ProbeTimeout time.Duration
	// CheckTimeout bounds the whole check.
	CheckTimeout time.Duration
}

// Checker performs DNS and TLS probes against a custom domain. Probes run
// concurrently, each independently time-boxed; a failed probe yields false
// for its snapshot field and never aborts the remaining probes.
type Checker struct {
	cfg      CheckerConfig
	edgeIPs  map[string]bool
	resolver dnsResolver
	probeTLS tlsProber
}

// NewChecker creates a checker using the system resolver and a real TLS
// handshake probe.
func NewChecker(cfg CheckerConfig) *Checker {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 15 * time.Second
	}
	edgeIPs := make(map[string]bool, len(cfg.EdgeIPs))
	for _, ip := range cfg.EdgeIPs {
		edgeIPs[ip] = true
	}
	return &Checker{
		cfg:      cfg,
		edgeIPs:  edgeIPs,
		resolver: net.DefaultResolver,
		probeTLS: dialTLS,
	}
}

// Check probes the domain and returns a snapshot. It never returns an
// error: probe failures are routine and show up as false fields.
func (c *Checker) Check(ctx context.Context, domain string) VerificationSnapshot {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CheckTimeout)
	defer cancel()

	domain = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(domain), "."))

	var (
		snap      VerificationSnapshot
		addrs     []string
		cname     string
		nsProxied bool
		sslOK     bool
	)

	// The probes are read-only and order-independent, so they run
	// concurrently. Each gets its own deadline under the aggregate one.
	var g errgroup.Group
	g.Go(func() error {
		pctx, pcancel := c.probeCtx(ctx)
		defer pcancel()
		if hosts, err := c.resolver.LookupHost(pctx, domain); err == nil && len(hosts) > 0 {
			addrs = hosts
		}
		return nil
	})
	g.Go(func() error {
		pctx, pcancel := c.probeCtx(ctx)
		defer pcancel()
		if target, err := c.resolver.LookupCNAME(pctx, domain); err == nil {
			cname = strings.ToLower(strings.TrimSuffix(target, "."))
		}
		return nil
	})
	g.Go(func() error {
		pctx, pcancel := c.probeCtx(ctx)
		defer pcancel()
		if records, err := c.resolver.LookupNS(pctx, registrableDomain(domain)); err == nil {
			nsProxied = nameserversLookProxied(records)
		}
		return nil
	})
	g.Go(func() error {
		pctx, pcancel := c.probeCtx(ctx)
		defer pcancel()
		sslOK = c.probeTLS(pctx, domain) == nil
		return nil
	})
	_ = g.Wait()

	snap.CheckedAt = time.Now()
	snap.DNSResolved = len(addrs) > 0
	snap.SSLAvailable = sslOK
	snap.PointsToProxy = c.pointsToEdge(cname, addrs)
	snap.HasThirdPartyProxy = nsProxied || anyProxyAddr(addrs)
	return snap
}

func (c *Checker) probeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.ProbeTimeout)
}

// pointsToEdge reports whether the resolved target matches the platform
// edge, either by CNAME target or by any A-record address.
func (c *Checker) pointsToEdge(cname string, addrs []string) bool {
	if cname != "" && cname == strings.ToLower(strings.TrimSuffix(c.cfg.EdgeCNAMETarget, ".")) {
		return true
	}
	for _, addr := range addrs {
		if c.edgeIPs[addr] {
			return true
		}
	}
	return false
}

// registrableDomain returns the zone apex NS records live at, using the
// public suffix list so multi-part suffixes (co.uk, com.au) split
// correctly. Names the list cannot split fall back to the last two labels.
func registrableDomain(domain string) string {
	if apex, err := publicsuffix.EffectiveTLDPlusOne(domain); err == nil {
		return apex
	}
	labels := strings.Split(domain, ".")
	if len(labels) <= 2 {
		return domain
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// knownProxyNameservers are nameserver suffixes of providers that proxy
// traffic and thereby mask the real DNS target from verification probes.
var knownProxyNameservers = []string{
	".ns.cloudflare.com",
	".cloudflare.com",
}

func nameserversLookProxied(records []*net.NS) bool {
	for _, ns := range records {
		host := strings.ToLower(strings.TrimSuffix(ns.Host, "."))
		for _, suffix := range knownProxyNameservers {
			if strings.HasSuffix(host, suffix) {
				return true
			}
		}
	}
	return false
}

// knownProxyCIDRs are published Cloudflare edge ranges. An address inside
// one of these means the proxy, not the origin, answered the lookup.
var knownProxyCIDRs = func() []*net.IPNet {
	cidrs := []string{
		"103.21.244.0/22",
		"103.22.200.0/22",
		"103.31.4.0/22",
		"104.16.0.0/13",
		"104.24.0.0/14",
		"108.162.192.0/18",
		"131.0.72.0/22",
		"141.101.64.0/18",
		"162.158.0.0/15",
		"172.64.0.0/13",
		"173.245.48.0/20",
		"188.114.96.0/20",
		"190.93.240.0/20",
		"197.234.240.0/22",
		"198.41.128.0/17",
	}
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		if _, n, err := net.ParseCIDR(c); err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}()

func anyProxyAddr(addrs []string) bool {
	for _, addr := range addrs {
		ip := net.ParseIP(addr)
		if ip == nil {
			continue
		}
		for _, n := range knownProxyCIDRs {
			if n.Contains(ip) {
				return true
			}
		}
	}
	return false
}

// dialTLS performs a real handshake against port 443 with hostname
// verification. The dialer honors the probe context's deadline.
func dialTLS(ctx context.Context, domain string) error {
	dialer := &tls.Dialer{
		Config: &tls.Config{ServerName: domain, MinVersion: tls.VersionTLS12},
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(domain, "443"))
	if err != nil {
		return err
	}
	return conn.Close()
}
