package domain

import (
	"context"
	"net/netip"
	"time"
)

// Ledger is the append-only history of responsibility intervals.
// Mutations return the entry they opened, or nil when the call was a
// no-op.
type Ledger interface {
	Assign(ctx context.Context, address netip.Addr, in AssignInput) (*HistoryEntry, error)
	Release(ctx context.Context, address netip.Addr, in ReleaseInput) (*HistoryEntry, error)
	// BackfillInitial synthesizes the missing first interval for
	// records that predate history tracking.
	BackfillInitial(ctx context.Context, address netip.Addr, actor string) (*HistoryEntry, error)
}

// LifecycleService owns the automated and user-driven transitions of
// the per-address activity and availability states.
type LifecycleService interface {
	Seen(ctx context.Context, source string, address netip.Addr, mac string) (created bool, err error)
	Reconcile(ctx context.Context, source string, table map[string]string) ReconcileResult
	SweepInactive(ctx context.Context, threshold time.Duration) (SweepResult, error)
	SweepExpired(ctx context.Context, in SweepExpiredInput) (ReleaseSweepResult, error)
	Request(ctx context.Context, address netip.Addr, in RequestIPInput) (*HistoryEntry, error)
	VoluntaryRelease(ctx context.Context, address netip.Addr, actor string) (*HistoryEntry, error)
	// ReleaseExpired releases one record past its expiry timestamp;
	// force overrides the expiry check.
	ReleaseExpired(ctx context.Context, address netip.Addr, force bool, actor string) (*HistoryEntry, error)
}

// VLANMatch is the outcome of resolving an address against the
// VLAN catalog.
type VLANMatch struct {
	VLANID int
	Prefix netip.Prefix
	Found  bool
}

type VLANService interface {
	Resolve(ctx context.Context, address netip.Addr) (VLANMatch, error)
	ReassignAll(ctx context.Context) (ReassignResult, error)
	// RecountMembers refreshes each VLAN's cached member count and
	// returns how many were out of date.
	RecountMembers(ctx context.Context) (int, error)
}
