// Package cidrindex answers which catalog label, if any, contains a
// given IPv4 address. Subnet strings are normalized before indexing;
// malformed entries are skipped rather than failing the whole catalog.
package cidrindex

import (
	"log/slog"
	"net/netip"
)

type entry struct {
	prefix netip.Prefix
	label  int
	order  int
}

// Index is an immutable membership index over (subnet, label) pairs.
// Membership is inclusive of network and broadcast addresses; whether
// those are assignable is the caller's policy, not the index's.
type Index struct {
	// Prefixes of length >= 16 are bucketed by the first two octets of
	// their network address so a lookup only scans candidates sharing
	// the address's /16. Shorter prefixes span multiple buckets and go
	// to the wide list, which every lookup scans. Results are identical
	// to a linear scan over all entries.
	buckets map[[2]byte][]entry
	wide    []entry
	size    int
}

// Builder accumulates catalog entries in order. Add never fails:
// subnets that cannot be normalized are logged and discarded.
type Builder struct {
	logger  *slog.Logger
	entries []entry
	skipped int
}

func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{logger: logger}
}

func (b *Builder) Add(cidr string, label int) {
	prefix, err := Normalize(cidr)
	if err != nil {
		b.skipped++
		b.logger.Warn("skipping unusable subnet", "subnet", cidr, "label", label, "err", err.Error())
		return
	}
	b.entries = append(b.entries, entry{prefix: prefix, label: label, order: len(b.entries)})
}

// Skipped reports how many entries were discarded during Add.
func (b *Builder) Skipped() int {
	return b.skipped
}

func (b *Builder) Build() *Index {
	idx := &Index{
		buckets: make(map[[2]byte][]entry),
		size:    len(b.entries),
	}
	for _, e := range b.entries {
		if e.prefix.Bits() >= 16 {
			a4 := e.prefix.Addr().As4()
			key := [2]byte{a4[0], a4[1]}
			idx.buckets[key] = append(idx.buckets[key], e)
		} else {
			idx.wide = append(idx.wide, e)
		}
	}
	return idx
}

func (idx *Index) Len() int {
	return idx.size
}

// Match describes the subnet that won a lookup.
type Match struct {
	Label  int
	Prefix netip.Prefix
}

// Find returns the label of the subnet containing addr. With
// overlapping subnets the most specific prefix wins; among equal
// prefix lengths the earliest catalog entry wins.
func (idx *Index) Find(addr netip.Addr) (int, bool) {
	m, ok := idx.Lookup(addr)
	return m.Label, ok
}

// Lookup is Find plus the winning prefix itself, for callers that
// apply address-eligibility policy on top of membership.
func (idx *Index) Lookup(addr netip.Addr) (Match, bool) {
	if !addr.Is4() {
		return Match{}, false
	}

	best := entry{order: -1}
	bestBits := -1
	consider := func(e entry) {
		if !e.prefix.Contains(addr) {
			return
		}
		if e.prefix.Bits() > bestBits || (e.prefix.Bits() == bestBits && e.order < best.order) {
			best = e
			bestBits = e.prefix.Bits()
		}
	}

	a4 := addr.As4()
	for _, e := range idx.buckets[[2]byte{a4[0], a4[1]}] {
		consider(e)
	}
	for _, e := range idx.wide {
		consider(e)
	}

	if bestBits < 0 {
		return Match{}, false
	}
	return Match{Label: best.label, Prefix: best.prefix}, true
}

// FindString is Find for a dotted-quad string. Invalid addresses are
// reported as "no match", never as an error.
func (idx *Index) FindString(address string) (int, bool) {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return 0, false
	}
	return idx.Find(addr)
}
