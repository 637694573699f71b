package domain

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"sort"
	"sync"
	"time"
)

// memStore is a small in-memory Store used across the service tests.
// Atomic serializes with a mutex; the nested scope joins the outer one.
type memStore struct {
	mu      sync.Mutex
	ips     map[netip.Addr]IPRecord
	vlans   map[int]VLAN
	history map[string]HistoryEntry
}

func newMemStore() *memStore {
	return &memStore{
		ips:     make(map[netip.Addr]IPRecord),
		vlans:   make(map[int]VLAN),
		history: make(map[string]HistoryEntry),
	}
}

func (m *memStore) IPs() IPRepository         { return memIPs{m} }
func (m *memStore) VLANs() VLANRepository     { return memVLANs{m} }
func (m *memStore) History() HistoryRepository { return memHistory{m} }

func (m *memStore) Atomic(_ context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(txMemStore{m})
}

// txMemStore is the view handed to Atomic callbacks; its own Atomic
// runs the callback directly since the lock is already held.
type txMemStore struct {
	*memStore
}

func (t txMemStore) Atomic(_ context.Context, fn func(Store) error) error {
	return fn(t)
}

type memIPs struct{ *memStore }

func (m memIPs) Get(_ context.Context, address netip.Addr) (IPRecord, error) {
	record, ok := m.ips[address]
	if !ok {
		return IPRecord{}, ErrNotFound
	}
	return record, nil
}

func (m memIPs) List(_ context.Context, filter IPFilter) ([]IPRecord, error) {
	out := make([]IPRecord, 0, len(m.ips))
	for _, record := range m.ips {
		if filter.Activity != nil && record.Activity != *filter.Activity {
			continue
		}
		if filter.Availability != nil && record.Availability != *filter.Availability {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Less(out[j].Address) })
	return out, nil
}

func (m memIPs) Create(_ context.Context, record IPRecord) (IPRecord, error) {
	if _, exists := m.ips[record.Address]; exists {
		return IPRecord{}, fmt.Errorf("%w: %s already exists", ErrConflict, record.Address)
	}
	m.ips[record.Address] = record
	return record, nil
}

func (m memIPs) Update(_ context.Context, record IPRecord) (IPRecord, error) {
	if _, exists := m.ips[record.Address]; !exists {
		return IPRecord{}, ErrNotFound
	}
	m.ips[record.Address] = record
	return record, nil
}

func (m memIPs) Delete(_ context.Context, address netip.Addr) (bool, error) {
	if _, exists := m.ips[address]; !exists {
		return false, nil
	}
	delete(m.ips, address)
	for id, entry := range m.history {
		if entry.Address == address {
			delete(m.history, id)
		}
	}
	return true, nil
}

func (m memIPs) CountByVLAN(_ context.Context) (map[int]int, error) {
	counts := make(map[int]int)
	for _, record := range m.ips {
		if record.VLANID != 0 {
			counts[record.VLANID]++
		}
	}
	return counts, nil
}

type memVLANs struct{ *memStore }

func (m memVLANs) List(_ context.Context) ([]VLAN, error) {
	out := make([]VLAN, 0, len(m.vlans))
	for _, vlan := range m.vlans {
		out = append(out, vlan)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memVLANs) Get(_ context.Context, id int) (VLAN, error) {
	vlan, ok := m.vlans[id]
	if !ok {
		return VLAN{}, ErrNotFound
	}
	return vlan, nil
}

func (m memVLANs) Create(_ context.Context, vlan VLAN) (VLAN, error) {
	if _, exists := m.vlans[vlan.ID]; exists {
		return VLAN{}, fmt.Errorf("%w: vlan %d already exists", ErrConflict, vlan.ID)
	}
	m.vlans[vlan.ID] = vlan
	return vlan, nil
}

func (m memVLANs) Update(_ context.Context, vlan VLAN) (VLAN, error) {
	if _, exists := m.vlans[vlan.ID]; !exists {
		return VLAN{}, ErrNotFound
	}
	m.vlans[vlan.ID] = vlan
	return vlan, nil
}

func (m memVLANs) Delete(_ context.Context, id int) (bool, error) {
	if _, exists := m.vlans[id]; !exists {
		return false, nil
	}
	delete(m.vlans, id)
	for addr, record := range m.ips {
		if record.VLANID == id {
			record.VLANID = 0
			m.ips[addr] = record
		}
	}
	return true, nil
}

func (m memVLANs) UpdateMemberCount(_ context.Context, id, count int) error {
	vlan, ok := m.vlans[id]
	if !ok {
		return ErrNotFound
	}
	vlan.MemberCount = count
	m.vlans[id] = vlan
	return nil
}

type memHistory struct{ *memStore }

func (m memHistory) ListByAddress(_ context.Context, address netip.Addr) ([]HistoryEntry, error) {
	out := make([]HistoryEntry, 0)
	for _, entry := range m.history {
		if entry.Address == address {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.After(out[j].Start) })
	return out, nil
}

func (m memHistory) OpenEntries(_ context.Context, address netip.Addr) ([]HistoryEntry, error) {
	out := make([]HistoryEntry, 0)
	for _, entry := range m.history {
		if entry.Address == address && entry.Open() {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m memHistory) HasAny(_ context.Context, address netip.Addr) (bool, error) {
	for _, entry := range m.history {
		if entry.Address == address {
			return true, nil
		}
	}
	return false, nil
}

func (m memHistory) Create(_ context.Context, entry HistoryEntry) (HistoryEntry, error) {
	if entry.ID == "" {
		return HistoryEntry{}, fmt.Errorf("%w: history entry without id", ErrInvalidInput)
	}
	m.history[entry.ID] = entry
	return entry, nil
}

func (m memHistory) Close(_ context.Context, id string, end time.Time, note string) (bool, error) {
	entry, ok := m.history[id]
	if !ok {
		return false, ErrNotFound
	}
	if !entry.Open() {
		return false, nil
	}
	entry.End = end
	if note != "" {
		entry.Note = AppendNote(entry.Note, end, note)
	}
	m.history[id] = entry
	return true, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustAddr(s string) netip.Addr {
	return netip.MustParseAddr(s)
}
