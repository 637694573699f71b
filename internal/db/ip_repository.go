package db

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/campus-noc/ipreg/internal/domain"
)

type IPRepository struct {
	q     querier
	order ListOrder
}

const ipColumns = `address, mac, activity, availability, responsible, end_user,
	assigned_user, note, vlan_id, last_seen, expires_at, created_at, updated_at`

func (r *IPRepository) Get(ctx context.Context, address netip.Addr) (domain.IPRecord, error) {
	row := r.q.QueryRow(ctx,
		`SELECT `+ipColumns+` FROM ip_records WHERE address = $1`, address)

	record, err := scanIPRecord(row)
	if err != nil {
		if isNoRows(err) {
			return domain.IPRecord{}, domain.ErrNotFound
		}
		return domain.IPRecord{}, err
	}
	return record, nil
}

func (r *IPRepository) List(ctx context.Context, filter domain.IPFilter) ([]domain.IPRecord, error) {
	query := `SELECT ` + ipColumns + ` FROM ip_records WHERE 1=1`
	args := make([]any, 0, 2)
	if filter.Activity != nil {
		args = append(args, string(*filter.Activity))
		query += fmt.Sprintf(" AND activity = $%d", len(args))
	}
	if filter.Availability != nil {
		args = append(args, string(*filter.Availability))
		query += fmt.Sprintf(" AND availability = $%d", len(args))
	}
	query += " ORDER BY " + r.order.orderBy()

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.IPRecord, 0)
	for rows.Next() {
		record, err := scanIPRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (r *IPRepository) Create(ctx context.Context, record domain.IPRecord) (domain.IPRecord, error) {
	_, err := r.q.Exec(ctx,
		`INSERT INTO ip_records (address, mac, activity, availability, responsible,
			end_user, assigned_user, note, vlan_id, last_seen, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		record.Address, record.MAC, string(record.Activity), string(record.Availability),
		record.Assignment.Party(), record.Assignment.EndUser(), record.AssignedUser,
		record.Note, nullableVLANID(record.VLANID), nullableTime(record.LastSeen),
		nullableTime(record.ExpiresAt), record.CreatedAt, record.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.IPRecord{}, fmt.Errorf("%w: %s already exists", domain.ErrConflict, record.Address)
		}
		return domain.IPRecord{}, err
	}
	return record, nil
}

func (r *IPRepository) Update(ctx context.Context, record domain.IPRecord) (domain.IPRecord, error) {
	tag, err := r.q.Exec(ctx,
		`UPDATE ip_records SET mac = $2, activity = $3, availability = $4,
			responsible = $5, end_user = $6, assigned_user = $7, note = $8,
			vlan_id = $9, last_seen = $10, expires_at = $11, updated_at = $12
		 WHERE address = $1`,
		record.Address, record.MAC, string(record.Activity), string(record.Availability),
		record.Assignment.Party(), record.Assignment.EndUser(), record.AssignedUser,
		record.Note, nullableVLANID(record.VLANID), nullableTime(record.LastSeen),
		nullableTime(record.ExpiresAt), record.UpdatedAt)
	if err != nil {
		return domain.IPRecord{}, err
	}
	if tag.RowsAffected() == 0 {
		return domain.IPRecord{}, domain.ErrNotFound
	}
	return record, nil
}

func (r *IPRepository) Delete(ctx context.Context, address netip.Addr) (bool, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM ip_records WHERE address = $1`, address)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *IPRepository) CountByVLAN(ctx context.Context) (map[int]int, error) {
	rows, err := r.q.Query(ctx,
		`SELECT vlan_id, count(*) FROM ip_records WHERE vlan_id IS NOT NULL GROUP BY vlan_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var vlanID, count int
		if err := rows.Scan(&vlanID, &count); err != nil {
			return nil, err
		}
		counts[vlanID] = count
	}
	return counts, rows.Err()
}

func scanIPRecord(row pgx.Row) (domain.IPRecord, error) {
	var (
		record               domain.IPRecord
		activity, available  string
		responsible, endUser string
		vlanID               *int
		lastSeen, expiresAt  *time.Time
	)
	err := row.Scan(&record.Address, &record.MAC, &activity, &available,
		&responsible, &endUser, &record.AssignedUser, &record.Note,
		&vlanID, &lastSeen, &expiresAt, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return domain.IPRecord{}, err
	}

	record.Activity = domain.Activity(activity)
	record.Availability = domain.Availability(available)
	record.Assignment = domain.AssignedTo(responsible, endUser)
	if vlanID != nil {
		record.VLANID = *vlanID
	}
	if lastSeen != nil {
		record.LastSeen = *lastSeen
	}
	if expiresAt != nil {
		record.ExpiresAt = *expiresAt
	}
	return record, nil
}

func nullableVLANID(id int) *int {
	if id == 0 {
		return nil
	}
	return &id
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
