package cidrindex

import (
	"fmt"
	"net/netip"
	"strings"
)

// Normalize repairs the malformed subnet notations that show up in the
// VLAN catalog and returns the canonical network prefix. Handled forms:
// a trailing dot before the prefix length ("10.0.0./24"), leading zeros
// in octets ("010.016.001.0/24"), a bare address without a prefix
// (treated as /32), and host bits set in the network part.
func Normalize(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Prefix{}, fmt.Errorf("empty subnet")
	}

	ipPart, prefixPart, hasPrefix := strings.Cut(s, "/")

	if strings.HasSuffix(ipPart, ".") {
		// A truncated catalog entry may be short more than one octet
		// ("172.16./16"); pad out to a full four-octet address.
		ipPart += "0"
		for strings.Count(ipPart, ".") < 3 {
			ipPart += ".0"
		}
	}
	ipPart = stripLeadingZeros(ipPart)

	if !hasPrefix {
		addr, err := netip.ParseAddr(ipPart)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid address %q: %w", s, err)
		}
		if !addr.Is4() {
			return netip.Prefix{}, fmt.Errorf("not an IPv4 address: %q", s)
		}
		return netip.PrefixFrom(addr, addr.BitLen()), nil
	}

	prefix, err := netip.ParsePrefix(ipPart + "/" + prefixPart)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid subnet %q: %w", s, err)
	}
	if !prefix.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("not an IPv4 subnet: %q", s)
	}

	// Host bits set in the network part are tolerated and masked away.
	return prefix.Masked(), nil
}

func stripLeadingZeros(ip string) string {
	octets := strings.Split(ip, ".")
	for i, octet := range octets {
		trimmed := strings.TrimLeft(octet, "0")
		if trimmed == "" && octet != "" {
			trimmed = "0"
		}
		octets[i] = trimmed
	}
	return strings.Join(octets, ".")
}

// SplitList splits a raw subnet list as stored on a VLAN record, where
// entries are separated by commas or newlines.
func SplitList(raw string) []string {
	raw = strings.ReplaceAll(raw, "\n", ",")
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
