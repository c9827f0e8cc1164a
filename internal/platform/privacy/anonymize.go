// Package privacy masks client identifiers before they reach logs.
package privacy

import (
	"net/netip"
)

const (
	ipv4Bits = 24
	ipv6Bits = 48
)

// AnonymizeIP reduces an address to its network so logs cannot single out a
// host: IPv4 keeps the /24, IPv6 the /48. IPv4-mapped IPv6 is treated as IPv4.
//
// Returns "unknown" for an empty value and "invalid" when it does not parse.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()

	bits := ipv6Bits
	if addr.Is4() {
		bits = ipv4Bits
	}
	prefix, err := addr.WithZone("").Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.String()
}
