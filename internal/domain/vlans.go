package domain

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/campus-noc/ipreg/internal/cidrindex"
)

type vlanService struct {
	store  Store
	logger *slog.Logger
	clock  func() time.Time
}

func NewVLANService(store Store, logger *slog.Logger) VLANService {
	if logger == nil {
		logger = slog.Default()
	}
	return &vlanService{store: store, logger: logger, clock: time.Now}
}

// buildIndex rebuilds the membership index from the current catalog.
// The catalog is a few hundred subnets at most, so rebuilding per
// operation is cheaper than keeping a cache coherent.
func (v *vlanService) buildIndex(ctx context.Context) (*cidrindex.Index, error) {
	vlans, err := v.store.VLANs().List(ctx)
	if err != nil {
		return nil, err
	}

	builder := cidrindex.NewBuilder(v.logger)
	for _, vlan := range vlans {
		for _, subnet := range vlan.SubnetList() {
			builder.Add(subnet, vlan.ID)
		}
	}
	return builder.Build(), nil
}

func (v *vlanService) Resolve(ctx context.Context, address netip.Addr) (VLANMatch, error) {
	idx, err := v.buildIndex(ctx)
	if err != nil {
		return VLANMatch{}, err
	}
	match, ok := idx.Lookup(address)
	if !ok {
		return VLANMatch{}, nil
	}
	return VLANMatch{VLANID: match.Label, Prefix: match.Prefix, Found: true}, nil
}

// ReassignAll recomputes the VLAN of every record and persists the
// ones that were missing or wrong. Always runs to completion.
func (v *vlanService) ReassignAll(ctx context.Context) (ReassignResult, error) {
	idx, err := v.buildIndex(ctx)
	if err != nil {
		return ReassignResult{}, err
	}

	records, err := v.store.IPs().List(ctx, IPFilter{})
	if err != nil {
		return ReassignResult{}, err
	}

	var result ReassignResult
	for _, record := range records {
		result.Checked++

		vlanID, ok := idx.Find(record.Address)
		if !ok {
			result.NoMatch++
			continue
		}
		if vlanID == record.VLANID {
			result.AlreadyCorrect++
			continue
		}

		hadVLAN := record.VLANID != 0
		address := record.Address
		err := v.store.Atomic(ctx, func(s Store) error {
			current, err := s.IPs().Get(ctx, address)
			if err != nil {
				return err
			}
			current.VLANID = vlanID
			current.UpdatedAt = v.clock()
			_, err = s.IPs().Update(ctx, current)
			return err
		})
		if err != nil {
			result.addError(fmt.Sprintf("%s: %v", address, err))
			continue
		}

		if hadVLAN {
			result.Corrected++
			v.logger.Info("corrected vlan", "ip", address.String(), "vlan", vlanID)
		} else {
			result.NewlyAssigned++
			v.logger.Info("assigned vlan", "ip", address.String(), "vlan", vlanID)
		}
	}

	v.logger.Info("vlan reassignment finished",
		"checked", result.Checked,
		"already_correct", result.AlreadyCorrect,
		"newly_assigned", result.NewlyAssigned,
		"corrected", result.Corrected,
		"no_match", result.NoMatch,
		"errors", result.Errors)
	return result, nil
}

// RecountMembers refreshes the cached member count on each VLAN. The
// count is advisory and recomputed periodically, not transactionally
// maintained.
func (v *vlanService) RecountMembers(ctx context.Context) (int, error) {
	counts, err := v.store.IPs().CountByVLAN(ctx)
	if err != nil {
		return 0, err
	}
	vlans, err := v.store.VLANs().List(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, vlan := range vlans {
		want := counts[vlan.ID]
		if want == vlan.MemberCount {
			continue
		}
		if err := v.store.VLANs().UpdateMemberCount(ctx, vlan.ID, want); err != nil {
			return updated, err
		}
		v.logger.Info("vlan member count updated", "vlan", vlan.ID, "from", vlan.MemberCount, "to", want)
		updated++
	}
	return updated, nil
}
