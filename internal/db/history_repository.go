package db

import (
	"context"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/campus-noc/ipreg/internal/domain"
)

type HistoryRepository struct {
	q querier
}

const historyColumns = `id, address, responsible, end_user, start_at, end_at,
	reason, note, activity_at_time, availability_at_time, vlan_id_at_time,
	created_at, created_by`

func (r *HistoryRepository) ListByAddress(ctx context.Context, address netip.Addr) ([]domain.HistoryEntry, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+historyColumns+` FROM history_entries
		 WHERE address = $1 ORDER BY start_at DESC, created_at DESC`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (r *HistoryRepository) OpenEntries(ctx context.Context, address netip.Addr) ([]domain.HistoryEntry, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+historyColumns+` FROM history_entries
		 WHERE address = $1 AND end_at IS NULL`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (r *HistoryRepository) HasAny(ctx context.Context, address netip.Addr) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM history_entries WHERE address = $1)`, address).Scan(&exists)
	return exists, err
}

func (r *HistoryRepository) Create(ctx context.Context, entry domain.HistoryEntry) (domain.HistoryEntry, error) {
	_, err := r.q.Exec(ctx,
		`INSERT INTO history_entries (id, address, responsible, end_user, start_at,
			end_at, reason, note, activity_at_time, availability_at_time,
			vlan_id_at_time, created_at, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.ID, entry.Address, entry.Assignment.Party(), entry.Assignment.EndUser(),
		entry.Start, nullableTime(entry.End), string(entry.Reason), entry.Note,
		string(entry.ActivityAtTime), string(entry.AvailabilityAtTime),
		entry.VLANIDAtTime, entry.CreatedAt, entry.CreatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.HistoryEntry{}, domain.ErrConflict
		}
		return domain.HistoryEntry{}, err
	}
	return entry, nil
}

// Close ends an open entry. The end_at IS NULL guard makes a repeated
// close a no-op instead of rewriting the end timestamp.
func (r *HistoryRepository) Close(ctx context.Context, id string, end time.Time, note string) (bool, error) {
	stamped := ""
	if note != "" {
		stamped = domain.AppendNote("", end, note)
	}

	tag, err := r.q.Exec(ctx,
		`UPDATE history_entries
		 SET end_at = $2,
		     note = CASE WHEN $3 = '' THEN note
		                 WHEN note = '' THEN $3
		                 ELSE note || E'\n' || $3 END
		 WHERE id = $1 AND end_at IS NULL`,
		id, end, stamped)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	err = r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM history_entries WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrNotFound
	}
	return false, nil
}

func collectEntries(rows pgx.Rows) ([]domain.HistoryEntry, error) {
	out := make([]domain.HistoryEntry, 0)
	for rows.Next() {
		var (
			entry                domain.HistoryEntry
			responsible, endUser string
			reason               string
			activity, available  string
			endAt                *time.Time
		)
		err := rows.Scan(&entry.ID, &entry.Address, &responsible, &endUser,
			&entry.Start, &endAt, &reason, &entry.Note, &activity, &available,
			&entry.VLANIDAtTime, &entry.CreatedAt, &entry.CreatedBy)
		if err != nil {
			return nil, err
		}

		entry.Assignment = domain.AssignedTo(responsible, endUser)
		entry.Reason = domain.Reason(reason)
		entry.ActivityAtTime = domain.Activity(activity)
		entry.AvailabilityAtTime = domain.Availability(available)
		if endAt != nil {
			entry.End = *endAt
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
