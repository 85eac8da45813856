// Package urlvalidation guards outbound webhook URLs against SSRF: only
// http/https schemes are allowed and hostnames must not resolve to
// private or otherwise reserved addresses.
package urlvalidation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Option configures URL validation behavior.
type Option func(*validationConfig)

type validationConfig struct {
	allowPrivate bool
	lookupHost   func(host string) ([]string, error)
}

// AllowPrivateIPs disables the private IP check. Use only in tests.
func AllowPrivateIPs() Option {
	return func(c *validationConfig) {
		c.allowPrivate = true
	}
}

// WithLookupHost replaces the DNS resolver used to vet hostnames.
func WithLookupHost(fn func(host string) ([]string, error)) Option {
	return func(c *validationConfig) {
		c.lookupHost = fn
	}
}

// ValidateWebhookURL checks that a URL is safe to call as a webhook
// endpoint.
func ValidateWebhookURL(rawURL string, opts ...Option) error {
	cfg := validationConfig{lookupHost: net.LookupHost}
	for _, opt := range opts {
		opt(&cfg)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "https" && scheme != "http" {
		return fmt.Errorf("URL scheme %q not allowed; use http or https", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL must have a hostname")
	}

	// Resolve now so a hostname pointing into a private range is caught
	// before any request is made.
	ips, err := cfg.lookupHost(host)
	if err != nil {
		return fmt.Errorf("cannot resolve hostname %q: %w", host, err)
	}

	if cfg.allowPrivate {
		return nil
	}
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil {
			continue
		}
		if isPrivateIP(ip) {
			return fmt.Errorf("URL resolves to private/reserved IP %s", ipStr)
		}
	}
	return nil
}

// reservedNets covers ranges the stdlib IP predicates do not: shared
// address space, the TEST-NETs, benchmarking, class E, and broadcast.
var reservedNets = mustCIDRs(
	"100.64.0.0/10",      // shared address space (CGN)
	"0.0.0.0/8",          // "this" network
	"192.0.0.0/24",       // IETF protocol assignments
	"192.0.2.0/24",       // TEST-NET-1
	"198.51.100.0/24",    // TEST-NET-2
	"203.0.113.0/24",     // TEST-NET-3
	"198.18.0.0/15",      // benchmarking
	"240.0.0.0/4",        // reserved
	"255.255.255.255/32", // broadcast
)

// isPrivateIP reports whether the IP must not be dialed for an outbound
// webhook.
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
		return true
	}
	for _, n := range reservedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func mustCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, s := range cidrs {
		_, network, err := net.ParseCIDR(s)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %q: %v", s, err))
		}
		nets = append(nets, network)
	}
	return nets
}
