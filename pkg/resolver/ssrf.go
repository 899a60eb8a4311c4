// Package resolver implements outbound-request SSRF guarding and DID
// resolution (did:key locally, did:web and all other methods over HTTP,
// the latter pinned to pre-resolved IPs to close the DNS-rebinding window
// between validation and connection).
package resolver

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/VibeTensor/attestix/pkg/errs"
)

// blockedDomains are exact hostnames that are always refused, independent of
// what they currently resolve to.
var blockedDomains = map[string]struct{}{
	"localhost":                {},
	"localhost.localdomain":    {},
	"metadata.google.internal": {},
	"metadata.google.com":      {},
	"169.254.169.254":          {},
}

// blockedSuffixes are hostname suffixes that are always refused.
var blockedSuffixes = []string{".local", ".internal", ".localhost"}

// isPrivateIP reports whether ip is private, loopback, link-local, or
// otherwise reserved and therefore unreachable from outside the host it
// belongs to.
func isPrivateIP(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() || isReserved(ip)
}

// isReserved covers ranges net.IP doesn't classify itself: IETF protocol
// assignments, documentation ranges, and 6to4 relay anycast, mirroring
// Python's ipaddress.IPv4Address.is_reserved / is_global semantics closely
// enough to keep cloud metadata endpoints and benchmarking ranges blocked.
func isReserved(ip net.IP) bool {
	reservedV4 := []string{
		"0.0.0.0/8", "192.0.0.0/24", "192.0.2.0/24", "198.18.0.0/15",
		"198.51.100.0/24", "203.0.113.0/24", "240.0.0.0/4", "255.255.255.255/32",
	}
	reservedV6 := []string{"100::/64", "2001:db8::/32", "::/128"}

	ranges := reservedV4
	if ip.To4() == nil {
		ranges = reservedV6
	}
	for _, cidr := range ranges {
		_, block, err := net.ParseCIDR(cidr)
		if err == nil && block.Contains(ip) {
			return true
		}
	}
	return false
}

// ValidateHost checks a bare hostname (no scheme, no port) against the
// blocklist and, if it resolves, against every IP it resolves to. It never
// makes an outbound connection itself.
func ValidateHost(ctx context.Context, hostname string) error {
	if hostname == "" {
		return errs.New(errs.SSRFBlocked, "empty hostname")
	}
	clean := strings.ToLower(strings.Trim(hostname, "[]"))

	if _, blocked := blockedDomains[clean]; blocked {
		return errs.Newf(errs.SSRFBlocked, "blocked private hostname %q", hostname)
	}
	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(clean, suffix) {
			return errs.Newf(errs.SSRFBlocked, "blocked private domain suffix %q", hostname)
		}
	}

	if ip := net.ParseIP(clean); ip != nil {
		if isPrivateIP(ip) {
			return errs.Newf(errs.SSRFBlocked, "blocked private/reserved IP address %q", hostname)
		}
		return nil
	}

	resolver := &net.Resolver{}
	addrs, err := resolver.LookupIPAddr(ctx, clean)
	if err != nil {
		// DNS failure isn't an SSRF finding — let the caller's connection
		// attempt fail on its own terms.
		return nil
	}
	for _, addr := range addrs {
		if isPrivateIP(addr.IP) {
			return errs.Newf(errs.SSRFBlocked, "%q resolves to private IP %s", hostname, addr.IP)
		}
	}
	return nil
}

// ValidateAndPinURL validates a full URL's host and returns the distinct IPs
// it resolved to, so the caller can dial those IPs directly (with the
// original Host header preserved for TLS SNI/vhosting) instead of letting a
// second DNS lookup at dial time return something different.
func ValidateAndPinURL(ctx context.Context, hostname string) ([]string, error) {
	if hostname == "" {
		return nil, errs.New(errs.SSRFBlocked, "no hostname in URL")
	}
	clean := strings.ToLower(strings.Trim(hostname, "[]"))

	if _, blocked := blockedDomains[clean]; blocked {
		return nil, errs.Newf(errs.SSRFBlocked, "blocked private hostname %q", hostname)
	}
	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(clean, suffix) {
			return nil, errs.Newf(errs.SSRFBlocked, "blocked private domain suffix %q", hostname)
		}
	}

	if ip := net.ParseIP(clean); ip != nil {
		if isPrivateIP(ip) {
			return nil, errs.Newf(errs.SSRFBlocked, "blocked private/reserved IP address %q", hostname)
		}
		return []string{ip.String()}, nil
	}

	resolver := &net.Resolver{}
	addrs, err := resolver.LookupIPAddr(ctx, clean)
	if err != nil {
		// Let the HTTP client's own dial surface the DNS failure.
		return nil, nil
	}

	seen := make(map[string]struct{}, len(addrs))
	pinned := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if isPrivateIP(addr.IP) {
			return nil, errs.Newf(errs.SSRFBlocked, "%q resolves to private IP %s", hostname, addr.IP)
		}
		s := addr.IP.String()
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		pinned = append(pinned, s)
	}
	return pinned, nil
}

// ValidateRedirectTarget re-validates a redirect destination the same way as
// the original request's host, refusing to let a 3xx response smuggle a
// request to an internal host. This system's HTTP clients don't follow
// redirects at all (maxRedirects == 0); this exists for callers that parse a
// Location header themselves and need to check it before acting on it.
func ValidateRedirectTarget(ctx context.Context, redirectHostname string) error {
	if err := ValidateHost(ctx, redirectHostname); err != nil {
		return fmt.Errorf("redirect blocked: %w", err)
	}
	return nil
}
