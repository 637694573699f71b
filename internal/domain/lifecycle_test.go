package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestLifecycle(store Store, at *time.Time) *lifecycle {
	clock := func() time.Time { return *at }
	return &lifecycle{
		store:  store,
		vlans:  &vlanService{store: store, logger: testLogger(), clock: clock},
		logger: testLogger(),
		clock:  clock,
	}
}

func TestReconcileCreatesFreshDiscovery(t *testing.T) {
	store := newMemStore()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestLifecycle(store, &now)

	result := svc.Reconcile(context.Background(), "edge-router", map[string]string{
		"10.0.0.5": "AA:BB:CC:DD:EE:FF",
	})
	if result.Created != 1 || result.Updated != 0 || result.Errors != 0 {
		t.Fatalf("result = %+v, want created:1 updated:0 errors:0", result)
	}

	record, err := store.IPs().Get(context.Background(), mustAddr("10.0.0.5"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.Activity != ActivityActive {
		t.Errorf("activity = %s, want active", record.Activity)
	}
	if record.Availability != AvailabilityFree {
		t.Errorf("availability = %s, want free", record.Availability)
	}
	if record.MAC != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("mac = %q, want lower-cased colon-hex", record.MAC)
	}
	if !record.LastSeen.Equal(now) {
		t.Errorf("last seen = %s, want %s", record.LastSeen, now)
	}
	if !strings.Contains(record.Note, "Detected from edge-router") {
		t.Errorf("note = %q, want detection note", record.Note)
	}
}

func TestSeenReactivatesAndAppendsNote(t *testing.T) {
	store := newMemStore()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestLifecycle(store, &now)
	addr := mustAddr("10.0.0.5")
	seedRecord(t, store, IPRecord{
		Address:      addr,
		Activity:     ActivityInactive,
		Availability: AvailabilityInUse,
		Assignment:   AssignedTo("alice@example.org", ""),
		Note:         "existing note",
		CreatedAt:    now.Add(-time.Hour * 24),
	})

	created, err := svc.Seen(context.Background(), "core-fw", addr, "00:11:22:33:44:55")
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if created {
		t.Fatal("record existed, created should be false")
	}

	record, _ := store.IPs().Get(context.Background(), addr)
	if record.Activity != ActivityActive {
		t.Errorf("activity = %s, want active", record.Activity)
	}
	if !strings.Contains(record.Note, "reactivated from core-fw") {
		t.Errorf("note = %q, want reactivation appended", record.Note)
	}
	if !strings.HasPrefix(record.Note, "existing note") {
		t.Errorf("note = %q, prior note should be preserved", record.Note)
	}
	// Activity transitions never touch the assignment side.
	if record.Availability != AvailabilityInUse || record.Assignment.Party() != "alice@example.org" {
		t.Errorf("assignment state changed: %+v", record)
	}
}

func TestReconcileCountsInvalidAddresses(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	svc := newTestLifecycle(store, &now)

	result := svc.Reconcile(context.Background(), "edge-router", map[string]string{
		"10.0.0.5":     "aa:bb:cc:dd:ee:ff",
		"not-an-ip":    "aa:bb:cc:dd:ee:00",
		"2001:db8::17": "aa:bb:cc:dd:ee:01",
	})
	if result.Created != 1 || result.Errors != 2 {
		t.Fatalf("result = %+v, want created:1 errors:2", result)
	}
	if len(result.RecentErrors) != 2 {
		t.Fatalf("recent errors = %v, want 2 items", result.RecentErrors)
	}
}

func TestSweepInactiveDeactivatesStaleOnly(t *testing.T) {
	store := newMemStore()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestLifecycle(store, &now)

	seedRecord(t, store, IPRecord{Address: mustAddr("10.0.0.1"), Activity: ActivityActive, Availability: AvailabilityFree, LastSeen: now.Add(-3 * time.Hour)})
	seedRecord(t, store, IPRecord{Address: mustAddr("10.0.0.2"), Activity: ActivityActive, Availability: AvailabilityInUse, Assignment: AssignedTo("alice@example.org", ""), LastSeen: now.Add(-30 * time.Minute)})
	seedRecord(t, store, IPRecord{Address: mustAddr("10.0.0.3"), Activity: ActivityActive, Availability: AvailabilityFree}) // never seen
	seedRecord(t, store, IPRecord{Address: mustAddr("10.0.0.4"), Activity: ActivityInactive, Availability: AvailabilityFree, LastSeen: now.Add(-100 * time.Hour)})

	result, err := svc.SweepInactive(context.Background(), 2*time.Hour)
	if err != nil {
		t.Fatalf("SweepInactive: %v", err)
	}
	if result.Checked != 3 || result.Deactivated != 2 || result.Skipped != 1 || result.Errors != 0 {
		t.Fatalf("result = %+v, want checked:3 deactivated:2 skipped:1", result)
	}

	stale, _ := store.IPs().Get(context.Background(), mustAddr("10.0.0.1"))
	if stale.Activity != ActivityInactive {
		t.Error("stale record should be deactivated")
	}
	fresh, _ := store.IPs().Get(context.Background(), mustAddr("10.0.0.2"))
	if fresh.Activity != ActivityActive || fresh.Assignment.Party() != "alice@example.org" {
		t.Errorf("fresh record should be untouched: %+v", fresh)
	}
	never, _ := store.IPs().Get(context.Background(), mustAddr("10.0.0.3"))
	if never.Activity != ActivityInactive {
		t.Error("never-seen record is infinitely stale and should be deactivated")
	}
}

func TestSweepInactiveRejectsNonPositiveThreshold(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	svc := newTestLifecycle(store, &now)

	if _, err := svc.SweepInactive(context.Background(), 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSweepExpiredReleasesLongInactiveAssignments(t *testing.T) {
	store := newMemStore()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestLifecycle(store, &now)

	// The release candidate: in use, off the network for 40 days.
	seedRecord(t, store, IPRecord{
		Address:      mustAddr("10.0.0.5"),
		Activity:     ActivityInactive,
		Availability: AvailabilityInUse,
		Assignment:   AssignedTo("alice@example.org", "Alice's desktop"),
		LastSeen:     now.Add(-40 * 24 * time.Hour),
		CreatedAt:    now.Add(-400 * 24 * time.Hour),
	})
	// Still on the network: not eligible.
	seedRecord(t, store, IPRecord{
		Address:      mustAddr("10.0.0.6"),
		Activity:     ActivityActive,
		Availability: AvailabilityInUse,
		Assignment:   AssignedTo("bob@example.org", ""),
		LastSeen:     now.Add(-40 * 24 * time.Hour),
	})
	// Inactive but recent: not eligible.
	seedRecord(t, store, IPRecord{
		Address:      mustAddr("10.0.0.7"),
		Activity:     ActivityInactive,
		Availability: AvailabilityInUse,
		Assignment:   AssignedTo("carol@example.org", ""),
		LastSeen:     now.Add(-5 * 24 * time.Hour),
	})
	// In use but no responsible party recorded: skipped.
	seedRecord(t, store, IPRecord{
		Address:      mustAddr("10.0.0.8"),
		Activity:     ActivityInactive,
		Availability: AvailabilityInUse,
		LastSeen:     now.Add(-90 * 24 * time.Hour),
	})

	result, err := svc.SweepExpired(context.Background(), SweepExpiredInput{ThresholdDays: 30, Actor: "sweeper"})
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if result.Checked != 4 || result.Released != 1 || result.Skipped != 3 || result.Errors != 0 {
		t.Fatalf("result = %+v, want checked:4 released:1 skipped:3", result)
	}

	released, _ := store.IPs().Get(context.Background(), mustAddr("10.0.0.5"))
	if released.Assignment.IsAssigned() || released.Availability != AvailabilityFree {
		t.Errorf("candidate not released: %+v", released)
	}

	open := openEntries(t, store, "10.0.0.5")
	if len(open) != 1 {
		t.Fatalf("open entries = %d, want 1", len(open))
	}
	if open[0].Assignment.IsAssigned() || open[0].Reason != ReasonInactivityRelease {
		t.Errorf("release interval wrong: %+v", open[0])
	}
}

func TestSweepExpiredTreatsMissingLastSeenAsInfinitelyOld(t *testing.T) {
	store := newMemStore()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestLifecycle(store, &now)
	seedRecord(t, store, IPRecord{
		Address:      mustAddr("10.0.0.5"),
		Activity:     ActivityInactive,
		Availability: AvailabilityInUse,
		Assignment:   AssignedTo("alice@example.org", ""),
		CreatedAt:    now.Add(-24 * time.Hour),
	})

	result, err := svc.SweepExpired(context.Background(), SweepExpiredInput{ThresholdDays: 30})
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if result.Released != 1 {
		t.Fatalf("result = %+v, want the never-seen record released", result)
	}
}

func TestSweepExpiredDryRunReleasesNothing(t *testing.T) {
	store := newMemStore()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestLifecycle(store, &now)
	seedRecord(t, store, IPRecord{
		Address:      mustAddr("10.0.0.5"),
		Activity:     ActivityInactive,
		Availability: AvailabilityInUse,
		Assignment:   AssignedTo("alice@example.org", ""),
		LastSeen:     now.Add(-60 * 24 * time.Hour),
	})

	result, err := svc.SweepExpired(context.Background(), SweepExpiredInput{ThresholdDays: 30, DryRun: true})
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if result.Released != 0 || result.Skipped != 1 {
		t.Fatalf("result = %+v, want released:0 skipped:1", result)
	}

	record, _ := store.IPs().Get(context.Background(), mustAddr("10.0.0.5"))
	if !record.Assignment.IsAssigned() {
		t.Error("dry run must not mutate the record")
	}
}

func TestRequestFreshAddressCreatesRecordAndInterval(t *testing.T) {
	store := newMemStore()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestLifecycle(store, &now)
	addr := mustAddr("10.0.0.9")

	entry, err := svc.Request(context.Background(), addr, RequestIPInput{
		Responsible: "bob@example.org",
		EndUser:     "Bob's Laptop",
		Actor:       "bob",
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if entry == nil || entry.Reason != ReasonInitialAssignment || !entry.Open() {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	record, err := store.IPs().Get(context.Background(), addr)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.Availability != AvailabilityInUse || record.Assignment.Party() != "bob@example.org" {
		t.Errorf("record = %+v, want in-use by bob", record)
	}
	if record.AssignedUser != "bob" {
		t.Errorf("assigned user = %q, want bob", record.AssignedUser)
	}

	if open := openEntries(t, store, "10.0.0.9"); len(open) != 1 {
		t.Fatalf("open entries = %d, want 1", len(open))
	}
}

func TestRequestConflictsWhenHeldBySomeoneElse(t *testing.T) {
	store := newMemStore()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestLifecycle(store, &now)
	addr := mustAddr("10.0.0.9")

	if _, err := svc.Request(context.Background(), addr, RequestIPInput{Responsible: "bob@example.org", Actor: "bob"}); err != nil {
		t.Fatalf("first Request: %v", err)
	}
	before, _ := store.History().ListByAddress(context.Background(), addr)

	_, err := svc.Request(context.Background(), addr, RequestIPInput{Responsible: "mallory@example.org", Actor: "mallory"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	after, _ := store.History().ListByAddress(context.Background(), addr)
	if len(after) != len(before) {
		t.Fatalf("conflicting request added history entries: %d -> %d", len(before), len(after))
	}
	record, _ := store.IPs().Get(context.Background(), addr)
	if record.Assignment.Party() != "bob@example.org" {
		t.Errorf("responsible changed to %q", record.Assignment.Party())
	}
}

func TestRequestRejectsReservedAddress(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	svc := newTestLifecycle(store, &now)
	addr := mustAddr("10.0.0.9")
	seedRecord(t, store, IPRecord{Address: addr, Activity: ActivityInactive, Availability: AvailabilityReserved})

	_, err := svc.Request(context.Background(), addr, RequestIPInput{Responsible: "bob@example.org"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRequestRejectsNetworkAndBroadcastAddresses(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	svc := newTestLifecycle(store, &now)
	if _, err := store.VLANs().Create(context.Background(), VLAN{ID: 10, Name: "staff", Subnets: "192.168.1.0/24"}); err != nil {
		t.Fatalf("seed vlan: %v", err)
	}

	for _, ip := range []string{"192.168.1.0", "192.168.1.255"} {
		_, err := svc.Request(context.Background(), mustAddr(ip), RequestIPInput{Responsible: "bob@example.org"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Request(%s): expected ErrInvalidInput, got %v", ip, err)
		}
	}

	// A usable host address in the same subnet goes through.
	if _, err := svc.Request(context.Background(), mustAddr("192.168.1.50"), RequestIPInput{Responsible: "bob@example.org"}); err != nil {
		t.Errorf("Request(192.168.1.50): %v", err)
	}
}

func TestVoluntaryReleaseRequiresHolder(t *testing.T) {
	store := newMemStore()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestLifecycle(store, &now)
	addr := mustAddr("10.0.0.9")
	if _, err := svc.Request(context.Background(), addr, RequestIPInput{Responsible: "bob@example.org", Actor: "bob"}); err != nil {
		t.Fatalf("Request: %v", err)
	}

	if _, err := svc.VoluntaryRelease(context.Background(), addr, "mallory"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for non-holder, got %v", err)
	}

	entry, err := svc.VoluntaryRelease(context.Background(), addr, "bob")
	if err != nil {
		t.Fatalf("VoluntaryRelease: %v", err)
	}
	if entry == nil || entry.Reason != ReasonVoluntaryRelease {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	// Releasing an already-free address is a no-op, for anyone.
	again, err := svc.VoluntaryRelease(context.Background(), addr, "bob")
	if err != nil {
		t.Fatalf("second VoluntaryRelease: %v", err)
	}
	if again != nil {
		t.Fatal("expected no-op on already-free address")
	}
}

func TestReleaseExpiredHonorsExpiryAndForce(t *testing.T) {
	store := newMemStore()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestLifecycle(store, &now)

	notExpired := mustAddr("10.0.0.11")
	seedRecord(t, store, IPRecord{
		Address:      notExpired,
		Activity:     ActivityInactive,
		Availability: AvailabilityInUse,
		Assignment:   AssignedTo("alice@example.org", ""),
		ExpiresAt:    now.Add(24 * time.Hour),
		CreatedAt:    now.Add(-24 * time.Hour),
	})
	expired := mustAddr("10.0.0.12")
	seedRecord(t, store, IPRecord{
		Address:      expired,
		Activity:     ActivityInactive,
		Availability: AvailabilityInUse,
		Assignment:   AssignedTo("bob@example.org", ""),
		ExpiresAt:    now.Add(-24 * time.Hour),
		CreatedAt:    now.Add(-48 * time.Hour),
	})

	if _, err := svc.ReleaseExpired(context.Background(), notExpired, false, "admin"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for unexpired record, got %v", err)
	}

	entry, err := svc.ReleaseExpired(context.Background(), expired, false, "admin")
	if err != nil {
		t.Fatalf("ReleaseExpired: %v", err)
	}
	if entry == nil || entry.Reason != ReasonExpiryRelease {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	forced, err := svc.ReleaseExpired(context.Background(), notExpired, true, "admin")
	if err != nil {
		t.Fatalf("forced ReleaseExpired: %v", err)
	}
	if forced == nil {
		t.Fatal("force should release an unexpired record")
	}
}
