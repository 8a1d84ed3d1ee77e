// Package security provides input validation and log redaction helpers.
package security

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
)

// URL validation errors.
var (
	ErrInvalidURL       = errors.New("invalid URL")
	ErrBlockedScheme    = errors.New("URL scheme not allowed")
	ErrPrivateIPBlocked = errors.New("private/internal IP addresses are not allowed")
	ErrLocalhostBlocked = errors.New("localhost URLs are not allowed")
	ErrMetadataBlocked  = errors.New("cloud metadata URLs are not allowed")
)

// AllowedSchemes defines the permitted URL schemes.
var AllowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

// blockedHosts contains hostnames that should never be fetched.
var blockedHosts = map[string]bool{
	"localhost":                true,
	"localhost.localdomain":    true,
	"ip6-localhost":            true,
	"ip6-loopback":             true,
	"metadata.google.internal": true,
	"metadata":                 true,
	"instance-data":            true,
}

// cloudMetadataAddrs are metadata service addresses that are not already
// covered by the link-local check.
var cloudMetadataAddrs = []netip.Addr{
	netip.MustParseAddr("100.100.100.200"), // Alibaba Cloud
	netip.MustParseAddr("192.0.0.192"),     // Oracle Cloud
	netip.MustParseAddr("fd00:ec2::254"),   // AWS IPv6
}

// Resolver looks up the addresses of a host.
// *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// URLValidator checks that outbound fetches only reach public hosts.
type URLValidator struct {
	// AllowPrivate disables the address checks. Scheme checks still apply.
	AllowPrivate bool
	Resolver     Resolver
}

// NewURLValidator creates a validator using the default resolver.
func NewURLValidator(allowPrivate bool) *URLValidator {
	return &URLValidator{AllowPrivate: allowPrivate, Resolver: net.DefaultResolver}
}

// ValidateURL checks a URL with the default resolver and private hosts blocked.
func ValidateURL(rawURL string) error {
	return NewURLValidator(false).Validate(context.Background(), rawURL)
}

// Validate checks if a URL is safe to fetch. It blocks non-HTTP schemes,
// loopback, private, link-local and metadata addresses, including numeric
// host encodings and IPv4-mapped IPv6 forms. Hostnames that fail to resolve
// are allowed; the fetch itself will fail.
func (v *URLValidator) Validate(ctx context.Context, rawURL string) error {
	if rawURL == "" {
		return ErrInvalidURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrInvalidURL
	}

	if !AllowedSchemes[strings.ToLower(parsed.Scheme)] {
		return ErrBlockedScheme
	}
	if parsed.Host == "" {
		return ErrInvalidURL
	}
	if v.AllowPrivate {
		return nil
	}

	hostname := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	if blockedHosts[hostname] || strings.HasSuffix(hostname, ".localhost") {
		return ErrLocalhostBlocked
	}

	if addr, ok := parseHostAddr(hostname); ok {
		return checkAddr(addr)
	}

	if v.Resolver == nil {
		return nil
	}
	addrs, err := v.Resolver.LookupNetIP(ctx, "ip", hostname)
	if err != nil {
		return nil
	}
	for _, addr := range addrs {
		if err := checkAddr(addr); err != nil {
			return err
		}
	}
	return nil
}

// parseHostAddr parses a literal address, including the decimal, octal, hex
// and shortened IPv4 spellings accepted by many resolvers.
func parseHostAddr(hostname string) (netip.Addr, bool) {
	if addr, err := netip.ParseAddr(hostname); err == nil {
		return addr, true
	}

	if num, err := strconv.ParseUint(hostname, 10, 32); err == nil {
		return ipv4(uint32(num)), true
	}

	parts := strings.Split(hostname, ".")
	switch len(parts) {
	case 4:
		var n uint32
		for _, part := range parts {
			val, err := parseIntWithBase(part)
			if err != nil || val > 255 {
				return netip.Addr{}, false
			}
			n = n<<8 | uint32(val)
		}
		return ipv4(n), true
	case 2:
		first, err1 := parseIntWithBase(parts[0])
		second, err2 := parseIntWithBase(parts[1])
		if err1 == nil && err2 == nil && first <= 255 && second <= 0xFFFFFF {
			return ipv4(uint32(first)<<24 | uint32(second)), true
		}
	}
	return netip.Addr{}, false
}

func ipv4(n uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
}

// parseIntWithBase parses a decimal, 0-prefixed octal or 0x-prefixed hex integer.
func parseIntWithBase(s string) (uint64, error) {
	if s == "" {
		return 0, ErrInvalidURL
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	if len(s) > 1 && s[0] == '0' {
		return strconv.ParseUint(s[1:], 8, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

func checkAddr(addr netip.Addr) error {
	addr = addr.Unmap()

	switch {
	case addr.IsLoopback():
		return ErrLocalhostBlocked
	case addr.IsPrivate(), addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast(), addr.IsUnspecified():
		return ErrPrivateIPBlocked
	}
	for _, m := range cloudMetadataAddrs {
		if addr == m {
			return ErrMetadataBlocked
		}
	}
	return nil
}
