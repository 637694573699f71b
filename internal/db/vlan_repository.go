package db

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/jackc/pgx/v5"

	"github.com/campus-noc/ipreg/internal/domain"
)

type VLANRepository struct {
	q querier
}

const vlanColumns = `id, name, description, subnets, gateway, member_count`

func (r *VLANRepository) List(ctx context.Context) ([]domain.VLAN, error) {
	rows, err := r.q.Query(ctx, `SELECT `+vlanColumns+` FROM vlans ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.VLAN, 0)
	for rows.Next() {
		vlan, err := scanVLAN(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, vlan)
	}
	return out, rows.Err()
}

func (r *VLANRepository) Get(ctx context.Context, id int) (domain.VLAN, error) {
	row := r.q.QueryRow(ctx, `SELECT `+vlanColumns+` FROM vlans WHERE id = $1`, id)

	vlan, err := scanVLAN(row)
	if err != nil {
		if isNoRows(err) {
			return domain.VLAN{}, domain.ErrNotFound
		}
		return domain.VLAN{}, err
	}
	return vlan, nil
}

func (r *VLANRepository) Create(ctx context.Context, vlan domain.VLAN) (domain.VLAN, error) {
	_, err := r.q.Exec(ctx,
		`INSERT INTO vlans (id, name, description, subnets, gateway, member_count)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		vlan.ID, vlan.Name, vlan.Description, vlan.Subnets,
		nullableAddr(vlan.Gateway), vlan.MemberCount)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.VLAN{}, fmt.Errorf("%w: vlan %d already exists", domain.ErrConflict, vlan.ID)
		}
		return domain.VLAN{}, err
	}
	return vlan, nil
}

func (r *VLANRepository) Update(ctx context.Context, vlan domain.VLAN) (domain.VLAN, error) {
	tag, err := r.q.Exec(ctx,
		`UPDATE vlans SET name = $2, description = $3, subnets = $4, gateway = $5,
			member_count = $6, updated_at = now()
		 WHERE id = $1`,
		vlan.ID, vlan.Name, vlan.Description, vlan.Subnets,
		nullableAddr(vlan.Gateway), vlan.MemberCount)
	if err != nil {
		return domain.VLAN{}, err
	}
	if tag.RowsAffected() == 0 {
		return domain.VLAN{}, domain.ErrNotFound
	}
	return vlan, nil
}

func (r *VLANRepository) Delete(ctx context.Context, id int) (bool, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM vlans WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *VLANRepository) UpdateMemberCount(ctx context.Context, id, count int) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE vlans SET member_count = $2, updated_at = now() WHERE id = $1`, id, count)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanVLAN(row pgx.Row) (domain.VLAN, error) {
	var (
		vlan    domain.VLAN
		gateway *netip.Addr
	)
	err := row.Scan(&vlan.ID, &vlan.Name, &vlan.Description, &vlan.Subnets,
		&gateway, &vlan.MemberCount)
	if err != nil {
		return domain.VLAN{}, err
	}
	if gateway != nil {
		vlan.Gateway = *gateway
	}
	return vlan, nil
}

func nullableAddr(addr netip.Addr) *netip.Addr {
	if !addr.IsValid() {
		return nil
	}
	return &addr
}
