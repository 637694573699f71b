package domain

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/google/uuid"
)

const noteTimeLayout = "02/01/2006 15:04"

type ledger struct {
	store  Store
	logger *slog.Logger
	clock  func() time.Time
}

func NewLedger(store Store, logger *slog.Logger) Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &ledger{store: store, logger: logger, clock: time.Now}
}

func (l *ledger) Assign(ctx context.Context, address netip.Addr, in AssignInput) (*HistoryEntry, error) {
	if in.Responsible == "" {
		return nil, fmt.Errorf("%w: empty responsible party, use Release", ErrInvalidInput)
	}

	var entry *HistoryEntry
	err := l.store.Atomic(ctx, func(s Store) error {
		record, err := s.IPs().Get(ctx, address)
		if err != nil {
			return err
		}
		entry, err = applyAssign(ctx, s, l.clock(), &record, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	if entry != nil {
		l.logger.Info("address assigned",
			"ip", address.String(), "responsible", in.Responsible, "reason", string(in.Reason), "actor", in.Actor)
	}
	return entry, nil
}

func (l *ledger) Release(ctx context.Context, address netip.Addr, in ReleaseInput) (*HistoryEntry, error) {
	var entry *HistoryEntry
	err := l.store.Atomic(ctx, func(s Store) error {
		record, err := s.IPs().Get(ctx, address)
		if err != nil {
			return err
		}
		entry, err = applyRelease(ctx, s, l.clock(), &record, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	if entry != nil {
		l.logger.Info("address released",
			"ip", address.String(), "reason", string(in.Reason), "actor", in.Actor)
	}
	return entry, nil
}

func (l *ledger) BackfillInitial(ctx context.Context, address netip.Addr, actor string) (*HistoryEntry, error) {
	var entry *HistoryEntry
	err := l.store.Atomic(ctx, func(s Store) error {
		record, err := s.IPs().Get(ctx, address)
		if err != nil {
			return err
		}
		entry, err = backfillInitial(ctx, s, l.clock(), &record, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// applyAssign opens a new responsibility interval for the record and
// brings the record's own fields in line with it. The caller must run
// it inside Store.Atomic with a freshly read record.
func applyAssign(ctx context.Context, s Store, now time.Time, record *IPRecord, in AssignInput) (*HistoryEntry, error) {
	if in.Responsible == "" {
		return nil, fmt.Errorf("%w: empty responsible party, use Release", ErrInvalidInput)
	}

	if _, err := backfillInitial(ctx, s, now, record, in.Actor); err != nil {
		return nil, err
	}

	if record.Assignment.Party() == in.Responsible {
		return nil, nil
	}

	if err := closeOpenEntry(ctx, s, record.Address, now, in.Note); err != nil {
		return nil, err
	}

	endUser := in.EndUser
	if endUser == "" {
		endUser = record.Assignment.EndUser()
	}
	assignment := AssignedTo(in.Responsible, endUser)

	entry, err := s.History().Create(ctx, HistoryEntry{
		ID:                 uuid.NewString(),
		Address:            record.Address,
		Assignment:         assignment,
		Start:              now,
		Reason:             in.Reason,
		Note:               in.Note,
		ActivityAtTime:     record.Activity,
		AvailabilityAtTime: AvailabilityInUse,
		VLANIDAtTime:       record.VLANID,
		CreatedAt:          now,
		CreatedBy:          actorOrSystem(in.Actor),
	})
	if err != nil {
		return nil, err
	}

	record.Assignment = assignment
	record.Availability = AvailabilityInUse
	if in.Note != "" {
		record.Note = AppendNote(record.Note, now, in.Note)
	}
	record.UpdatedAt = now
	if _, err := s.IPs().Update(ctx, *record); err != nil {
		return nil, err
	}

	if err := verifySingleOpen(ctx, s, record.Address); err != nil {
		return nil, err
	}
	return &entry, nil
}

// applyRelease closes the current responsibility interval and opens an
// unassigned one. The record's responsible party, end user, assigned
// user, and note are all cleared; history keeps the prior note.
func applyRelease(ctx context.Context, s Store, now time.Time, record *IPRecord, in ReleaseInput) (*HistoryEntry, error) {
	if _, err := backfillInitial(ctx, s, now, record, in.Actor); err != nil {
		return nil, err
	}

	if !record.Assignment.IsAssigned() {
		return nil, nil
	}

	if err := closeOpenEntry(ctx, s, record.Address, now, in.Note); err != nil {
		return nil, err
	}

	note := fmt.Sprintf("Released from %s (%s).", orNA(record.Assignment.Party()), orNA(record.Assignment.EndUser()))
	if in.Note != "" {
		note += " " + in.Note
	}

	entry, err := s.History().Create(ctx, HistoryEntry{
		ID:                 uuid.NewString(),
		Address:            record.Address,
		Assignment:         Unassigned(),
		Start:              now,
		Reason:             in.Reason,
		Note:               note,
		ActivityAtTime:     record.Activity,
		AvailabilityAtTime: AvailabilityFree,
		VLANIDAtTime:       record.VLANID,
		CreatedAt:          now,
		CreatedBy:          actorOrSystem(in.Actor),
	})
	if err != nil {
		return nil, err
	}

	record.Assignment = Unassigned()
	record.AssignedUser = ""
	record.Availability = AvailabilityFree
	record.Note = ""
	record.UpdatedAt = now
	if _, err := s.IPs().Update(ctx, *record); err != nil {
		return nil, err
	}

	if err := verifySingleOpen(ctx, s, record.Address); err != nil {
		return nil, err
	}
	return &entry, nil
}

// backfillInitial synthesizes the open interval for a record that has
// a responsible party but no history at all, dated at the record's
// creation. Needed for records that predate history tracking.
func backfillInitial(ctx context.Context, s Store, now time.Time, record *IPRecord, actor string) (*HistoryEntry, error) {
	if !record.Assignment.IsAssigned() {
		return nil, nil
	}
	hasAny, err := s.History().HasAny(ctx, record.Address)
	if err != nil {
		return nil, err
	}
	if hasAny {
		return nil, nil
	}

	start := record.CreatedAt
	if start.IsZero() {
		start = now
	}
	entry, err := s.History().Create(ctx, HistoryEntry{
		ID:                 uuid.NewString(),
		Address:            record.Address,
		Assignment:         record.Assignment,
		Start:              start,
		Reason:             ReasonInitialAssignment,
		Note:               "Initial entry backfilled for a pre-history assignment",
		ActivityAtTime:     record.Activity,
		AvailabilityAtTime: record.Availability,
		VLANIDAtTime:       record.VLANID,
		CreatedAt:          now,
		CreatedBy:          actorOrSystem(actor),
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// closeOpenEntry ends the currently open interval, if any. Two open
// intervals mean the atomic-update contract was broken somewhere;
// that is surfaced, not repaired, because guessing which entry to
// close could pick the wrong one.
func closeOpenEntry(ctx context.Context, s Store, address netip.Addr, now time.Time, note string) error {
	open, err := s.History().OpenEntries(ctx, address)
	if err != nil {
		return err
	}
	switch len(open) {
	case 0:
		return nil
	case 1:
		// Close reports false when the entry was closed concurrently;
		// that is fine, the interval is ended either way.
		_, err := s.History().Close(ctx, open[0].ID, now, note)
		return err
	default:
		return fmt.Errorf("%w: %d open history entries for %s", ErrConsistency, len(open), address)
	}
}

func verifySingleOpen(ctx context.Context, s Store, address netip.Addr) error {
	open, err := s.History().OpenEntries(ctx, address)
	if err != nil {
		return err
	}
	if len(open) != 1 {
		return fmt.Errorf("%w: %d open history entries for %s after mutation", ErrConsistency, len(open), address)
	}
	return nil
}

// AppendNote appends a timestamped line to an accumulated note field.
// Repositories use it so stored notes stay in one format.
func AppendNote(existing string, now time.Time, note string) string {
	stamped := fmt.Sprintf("[%s] %s", now.Format(noteTimeLayout), note)
	if existing == "" {
		return stamped
	}
	return existing + "\n" + stamped
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
