package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"strings"
	"time"

	"go4.org/netipx"
)

type lifecycle struct {
	store  Store
	vlans  VLANService
	logger *slog.Logger
	clock  func() time.Time
}

func NewLifecycleService(store Store, vlans VLANService, logger *slog.Logger) LifecycleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &lifecycle{store: store, vlans: vlans, logger: logger, clock: time.Now}
}

// Seen applies one discovery observation. Unknown addresses are
// created active and free; known ones are reactivated with their MAC
// and last-seen refreshed. Activity transitions never touch the
// assignment ledger.
func (l *lifecycle) Seen(ctx context.Context, source string, address netip.Addr, mac string) (bool, error) {
	if !address.Is4() {
		return false, fmt.Errorf("%w: not an IPv4 address: %s", ErrInvalidInput, address)
	}
	mac = strings.ToLower(mac)

	created := false
	err := l.store.Atomic(ctx, func(s Store) error {
		now := l.clock()
		record, err := s.IPs().Get(ctx, address)
		if errors.Is(err, ErrNotFound) {
			_, err = s.IPs().Create(ctx, IPRecord{
				Address:      address,
				MAC:          mac,
				Activity:     ActivityActive,
				Availability: AvailabilityFree,
				LastSeen:     now,
				Note:         fmt.Sprintf("Detected from %s: %s", source, now.Format(noteTimeLayout)),
				CreatedAt:    now,
				UpdatedAt:    now,
			})
			created = err == nil
			return err
		}
		if err != nil {
			return err
		}

		wasInactive := record.Activity == ActivityInactive
		record.MAC = mac
		record.Activity = ActivityActive
		record.LastSeen = now
		if wasInactive {
			record.Note = AppendNote(record.Note, now, fmt.Sprintf("reactivated from %s: %s", source, now.Format(noteTimeLayout)))
		}
		record.UpdatedAt = now
		_, err = s.IPs().Update(ctx, record)
		return err
	})
	return created, err
}

// Reconcile applies a whole ip->mac table from one source. It always
// runs to completion; per-address failures are counted, not raised.
func (l *lifecycle) Reconcile(ctx context.Context, source string, table map[string]string) ReconcileResult {
	result := ReconcileResult{Source: source}

	addresses := make([]string, 0, len(table))
	for ip := range table {
		addresses = append(addresses, ip)
	}
	slices.Sort(addresses)

	for _, ip := range addresses {
		addr, err := netip.ParseAddr(ip)
		if err != nil || !addr.Is4() {
			result.addError(fmt.Sprintf("%s: invalid address", ip))
			continue
		}
		created, err := l.Seen(ctx, source, addr, table[ip])
		if err != nil {
			result.addError(fmt.Sprintf("%s: %v", ip, err))
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	l.logger.Info("reconcile finished",
		"source", source, "created", result.Created, "updated", result.Updated, "errors", result.Errors)
	return result
}

// SweepInactive deactivates active records not seen within threshold.
// A record with no last-seen at all is treated as infinitely stale.
// Only the activity state is touched.
func (l *lifecycle) SweepInactive(ctx context.Context, threshold time.Duration) (SweepResult, error) {
	if threshold <= 0 {
		return SweepResult{}, fmt.Errorf("%w: non-positive inactivity threshold", ErrInvalidInput)
	}

	active := ActivityActive
	records, err := l.store.IPs().List(ctx, IPFilter{Activity: &active})
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Checked: len(records)}
	for _, record := range records {
		elapsed, seen := record.InactiveFor(l.clock())
		if seen && elapsed <= threshold {
			result.Skipped++
			continue
		}

		address := record.Address
		err := l.store.Atomic(ctx, func(s Store) error {
			current, err := s.IPs().Get(ctx, address)
			if err != nil {
				return err
			}
			current.Activity = ActivityInactive
			current.UpdatedAt = l.clock()
			_, err = s.IPs().Update(ctx, current)
			return err
		})
		if err != nil {
			result.addError(fmt.Sprintf("%s: %v", address, err))
			continue
		}
		result.Deactivated++
	}

	l.logger.Info("inactivity sweep finished",
		"checked", result.Checked, "deactivated", result.Deactivated, "errors", result.Errors)
	return result, nil
}

// SweepExpired releases records that are in use, off the network, and
// unseen for at least the threshold in days. Records with no last-seen
// are treated as infinitely old and released too.
func (l *lifecycle) SweepExpired(ctx context.Context, in SweepExpiredInput) (ReleaseSweepResult, error) {
	if in.ThresholdDays <= 0 {
		return ReleaseSweepResult{}, fmt.Errorf("%w: non-positive day threshold", ErrInvalidInput)
	}

	inUse := AvailabilityInUse
	records, err := l.store.IPs().List(ctx, IPFilter{Availability: &inUse})
	if err != nil {
		return ReleaseSweepResult{}, err
	}

	result := ReleaseSweepResult{Checked: len(records)}
	for _, record := range records {
		reason, eligible := l.releaseEligibility(&record, in.ThresholdDays)
		if !eligible {
			result.Skipped++
			continue
		}
		if in.DryRun {
			l.logger.Info("would release", "ip", record.Address.String(), "reason", reason)
			result.Skipped++
			continue
		}

		address := record.Address
		err := l.store.Atomic(ctx, func(s Store) error {
			current, err := s.IPs().Get(ctx, address)
			if err != nil {
				return err
			}
			_, err = applyRelease(ctx, s, l.clock(), &current, ReleaseInput{
				Reason: ReasonInactivityRelease,
				Note:   "Automatic release due to prolonged inactivity: " + reason,
				Actor:  actorOrSystem(in.Actor),
			})
			return err
		})
		if err != nil {
			result.addError(fmt.Sprintf("%s: %v", address, err))
			continue
		}
		result.Released++
	}

	l.logger.Info("expiry sweep finished",
		"checked", result.Checked, "released", result.Released, "skipped", result.Skipped, "errors", result.Errors)
	return result, nil
}

func (l *lifecycle) releaseEligibility(record *IPRecord, thresholdDays int) (string, bool) {
	if record.Availability != AvailabilityInUse {
		return "", false
	}
	if record.Activity != ActivityInactive {
		return "", false
	}
	if !record.Assignment.IsAssigned() {
		return "", false
	}

	elapsed, seen := record.InactiveFor(l.clock())
	if !seen {
		return fmt.Sprintf("never seen by discovery (threshold %d days)", thresholdDays), true
	}
	days := int(elapsed.Hours() / 24)
	if days >= thresholdDays {
		return fmt.Sprintf("unseen for %d days (threshold %d days)", days, thresholdDays), true
	}
	return "", false
}

// Request assigns an address on a user's behalf, creating the record
// if discovery has never reported it. An address already in use by a
// different responsible party is a conflict, never a silent
// reassignment.
func (l *lifecycle) Request(ctx context.Context, address netip.Addr, in RequestIPInput) (*HistoryEntry, error) {
	if !address.Is4() {
		return nil, fmt.Errorf("%w: not an IPv4 address: %s", ErrInvalidInput, address)
	}
	if in.Responsible == "" {
		return nil, fmt.Errorf("%w: responsible party is required", ErrInvalidInput)
	}
	if err := l.checkAssignable(ctx, address); err != nil {
		return nil, err
	}

	var entry *HistoryEntry
	err := l.store.Atomic(ctx, func(s Store) error {
		now := l.clock()
		record, err := s.IPs().Get(ctx, address)
		if errors.Is(err, ErrNotFound) {
			record, err = s.IPs().Create(ctx, IPRecord{
				Address:      address,
				MAC:          strings.ToLower(in.MAC),
				Activity:     ActivityInactive,
				Availability: AvailabilityFree,
				CreatedAt:    now,
				UpdatedAt:    now,
			})
			if err != nil {
				return err
			}
		} else if err != nil {
			return err
		} else {
			if record.Availability == AvailabilityReserved {
				return fmt.Errorf("%w: %s is reserved", ErrConflict, address)
			}
			if record.Availability == AvailabilityInUse &&
				record.Assignment.IsAssigned() && record.Assignment.Party() != in.Responsible {
				return fmt.Errorf("%w: %s is already assigned to %s", ErrConflict, address, record.Assignment.Party())
			}
		}

		record.AssignedUser = in.Actor
		entry, err = applyAssign(ctx, s, now, &record, AssignInput{
			Responsible: in.Responsible,
			EndUser:     in.EndUser,
			Reason:      ReasonInitialAssignment,
			Note:        in.Note,
			Actor:       in.Actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// checkAssignable rejects the network and broadcast address of the
// containing subnet. Pure membership still includes them; this is the
// assignment-eligibility policy layered on top. /31 point-to-point
// links use both addresses, /32 has only one.
func (l *lifecycle) checkAssignable(ctx context.Context, address netip.Addr) error {
	match, err := l.vlans.Resolve(ctx, address)
	if err != nil {
		return err
	}
	if !match.Found || match.Prefix.Bits() >= 31 {
		return nil
	}
	r := netipx.RangeOfPrefix(match.Prefix)
	if r.From() == address || r.To() == address {
		return fmt.Errorf("%w: %s is the network or broadcast address of %s", ErrInvalidInput, address, match.Prefix)
	}
	return nil
}

// VoluntaryRelease frees an address at its holder's request. Only the
// recorded assigned user (or, lacking one, the responsible party) may
// do it. Releasing an unassigned address is a no-op.
func (l *lifecycle) VoluntaryRelease(ctx context.Context, address netip.Addr, actor string) (*HistoryEntry, error) {
	var entry *HistoryEntry
	err := l.store.Atomic(ctx, func(s Store) error {
		record, err := s.IPs().Get(ctx, address)
		if err != nil {
			return err
		}
		if !record.Assignment.IsAssigned() {
			return nil
		}

		owner := record.AssignedUser
		if owner == "" {
			owner = record.Assignment.Party()
		}
		if actor != owner {
			return fmt.Errorf("%w: %s is not held by %s", ErrConflict, address, actor)
		}

		entry, err = applyRelease(ctx, s, l.clock(), &record, ReleaseInput{
			Reason: ReasonVoluntaryRelease,
			Note:   "Voluntary release by holder",
			Actor:  actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ReleaseExpired frees one address past its expiry timestamp. Without
// force, a record that has not expired is refused.
func (l *lifecycle) ReleaseExpired(ctx context.Context, address netip.Addr, force bool, actor string) (*HistoryEntry, error) {
	var entry *HistoryEntry
	err := l.store.Atomic(ctx, func(s Store) error {
		now := l.clock()
		record, err := s.IPs().Get(ctx, address)
		if err != nil {
			return err
		}
		if !record.Assignment.IsAssigned() {
			return nil
		}
		if !force && !record.Expired(now) {
			return fmt.Errorf("%w: %s has not expired, use force to release anyway", ErrConflict, address)
		}

		note := "Released by expiry"
		if force {
			note = "Forced release"
		}
		entry, err = applyRelease(ctx, s, now, &record, ReleaseInput{
			Reason: ReasonExpiryRelease,
			Note:   note,
			Actor:  actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}
