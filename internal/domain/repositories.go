package domain

import (
	"context"
	"net/netip"
	"time"
)

// IPFilter narrows List to records in the given states. Nil fields
// match everything.
type IPFilter struct {
	Activity     *Activity
	Availability *Availability
}

type IPRepository interface {
	Get(ctx context.Context, address netip.Addr) (IPRecord, error)
	List(ctx context.Context, filter IPFilter) ([]IPRecord, error)
	Create(ctx context.Context, record IPRecord) (IPRecord, error)
	Update(ctx context.Context, record IPRecord) (IPRecord, error)
	Delete(ctx context.Context, address netip.Addr) (bool, error)
	// CountByVLAN returns how many records reference each VLAN id.
	CountByVLAN(ctx context.Context) (map[int]int, error)
}

type VLANRepository interface {
	List(ctx context.Context) ([]VLAN, error)
	Get(ctx context.Context, id int) (VLAN, error)
	Create(ctx context.Context, vlan VLAN) (VLAN, error)
	Update(ctx context.Context, vlan VLAN) (VLAN, error)
	Delete(ctx context.Context, id int) (bool, error)
	UpdateMemberCount(ctx context.Context, id, count int) error
}

type HistoryRepository interface {
	// ListByAddress returns entries newest-first.
	ListByAddress(ctx context.Context, address netip.Addr) ([]HistoryEntry, error)
	// OpenEntries returns every entry with no end timestamp. More than
	// one is an invariant violation the caller must surface.
	OpenEntries(ctx context.Context, address netip.Addr) ([]HistoryEntry, error)
	HasAny(ctx context.Context, address netip.Addr) (bool, error)
	Create(ctx context.Context, entry HistoryEntry) (HistoryEntry, error)
	// Close sets the end timestamp, appending note to the entry's
	// notes. Closing an already-closed entry is a no-op and returns
	// false.
	Close(ctx context.Context, id string, end time.Time, note string) (bool, error)
}

// Store bundles the repositories with an atomic execution scope.
type Store interface {
	IPs() IPRepository
	VLANs() VLANRepository
	History() HistoryRepository

	// Atomic runs fn against a store whose mutations commit together
	// or not at all. The ledger's close-entry/create-entry/update-
	// record sequence relies on this. Calls nest: inside fn, Atomic
	// joins the enclosing scope instead of opening a new one.
	Atomic(ctx context.Context, fn func(Store) error) error
}
