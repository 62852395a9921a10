package binding

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// URLGuard validates a function binding's target URL before an HTTP
// call is made, blocking the protocol/hostname/path classes an
// attacker-controlled trigger payload could otherwise use to reach
// internal services (SSRF). Every HTTPFunctionBinding call runs a target
// through Validate first.
type URLGuard struct {
	allowedSchemes   map[string]bool
	blockedHostnames map[string]bool
	blockedPathSubs  []string
}

// NewURLGuard creates a guard with the standard http/https allowlist
// and the usual loopback/private-network/metadata-endpoint blocklist.
func NewURLGuard() *URLGuard {
	return &URLGuard{
		allowedSchemes: map[string]bool{"http": true, "https": true},
		blockedHostnames: map[string]bool{
			"localhost": true, "127.0.0.1": true, "::1": true,
			"0.0.0.0": true, "::": true,
			"169.254.169.254": true, // cloud metadata endpoint
		},
		blockedPathSubs: []string{"../", "..\\", "/etc/", "/proc/", "/sys/"},
	}
}

// Validate rejects urlStr if its scheme, resolved host, or path match
// a blocked class. DNS resolution failures are not themselves
// rejected; the outbound call fails on its own if the host is
// unreachable.
func (g *URLGuard) Validate(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid binding target URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !g.allowedSchemes[scheme] {
		return fmt.Errorf("binding target scheme %q is not permitted (only http/https)", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("binding target URL has no hostname")
	}
	if g.blockedHostnames[host] {
		return fmt.Errorf("binding target host %q is blocked", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if err := validateIP(ip); err != nil {
			return err
		}
	} else if ips, err := net.LookupIP(parsed.Hostname()); err == nil {
		for _, ip := range ips {
			if err := validateIP(ip); err != nil {
				return fmt.Errorf("binding target host %q resolves to a blocked address: %w", host, err)
			}
		}
	}

	lowerPath := strings.ToLower(parsed.Path)
	for _, sub := range g.blockedPathSubs {
		if strings.Contains(lowerPath, sub) {
			return fmt.Errorf("binding target path contains a blocked pattern %q", sub)
		}
	}
	return nil
}

func validateIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("%s is a loopback address", ip)
	case ip.IsPrivate():
		return fmt.Errorf("%s is a private-network address", ip)
	case ip.IsLinkLocalUnicast():
		return fmt.Errorf("%s is a link-local address", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("%s is an unspecified address", ip)
	default:
		return nil
	}
}
