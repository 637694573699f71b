package domain

import (
	"net/netip"
	"time"

	"github.com/campus-noc/ipreg/internal/cidrindex"
)

// Activity says whether an address has recently answered network
// discovery. Orthogonal to Availability.
type Activity string

const (
	ActivityActive   Activity = "active"
	ActivityInactive Activity = "inactive"
)

// Availability is the administrative assignment state of an address.
type Availability string

const (
	AvailabilityFree     Availability = "free"
	AvailabilityInUse    Availability = "in-use"
	AvailabilityReserved Availability = "reserved"
)

// Reason classifies why a responsibility interval started.
type Reason string

const (
	ReasonInitialAssignment Reason = "initial-assignment"
	ReasonVoluntaryRelease  Reason = "voluntary-release"
	ReasonInactivityRelease Reason = "inactivity-release"
	ReasonExpiryRelease     Reason = "expiry-release"
	ReasonChange            Reason = "change"
	ReasonAutomaticCleanup  Reason = "automatic-cleanup"
	ReasonAdmin             Reason = "admin"
)

// Assignment is the responsible-party state of an address: either
// Unassigned or AssignedTo(party, endUser). Using a variant instead of
// a nullable string keeps the free/in-use transition exhaustive.
type Assignment struct {
	party   string
	endUser string
}

func Unassigned() Assignment {
	return Assignment{}
}

func AssignedTo(party, endUser string) Assignment {
	if party == "" {
		return Assignment{}
	}
	return Assignment{party: party, endUser: endUser}
}

func (a Assignment) IsAssigned() bool {
	return a.party != ""
}

// Party returns the responsible party's address, empty if unassigned.
func (a Assignment) Party() string {
	return a.party
}

// EndUser returns the end-user label, empty if unassigned or not set.
func (a Assignment) EndUser() string {
	return a.endUser
}

// IPRecord is one IPv4 address in the inventory. Address is the
// immutable primary key.
type IPRecord struct {
	Address      netip.Addr
	MAC          string // lower-cased colon-hex, empty if unknown
	Activity     Activity
	Availability Availability
	Assignment   Assignment
	Note         string
	LastSeen     time.Time // zero means never seen by discovery
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExpiresAt    time.Time // zero means no expiry configured
	AssignedUser string    // account the address was requested by, empty if none
	VLANID       int       // 0 means no VLAN resolved yet
}

// Anomalous reports the soft-invariant violation: an address that is
// active on the network while being free or lacking a responsible
// party. Flagged, never rejected.
func (r *IPRecord) Anomalous() bool {
	return r.Activity == ActivityActive &&
		(r.Availability == AvailabilityFree || !r.Assignment.IsAssigned())
}

// Expired reports whether the record's expiry timestamp has passed.
func (r *IPRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && r.ExpiresAt.Before(now)
}

// InactiveFor returns how long the address has gone unseen. Records
// never seen by discovery are treated as infinitely stale.
func (r *IPRecord) InactiveFor(now time.Time) (time.Duration, bool) {
	if r.LastSeen.IsZero() {
		return 0, false
	}
	return now.Sub(r.LastSeen), true
}

// VLAN is one broadcast domain. Subnets holds the raw catalog text:
// CIDR strings separated by commas or newlines, possibly malformed.
type VLAN struct {
	ID          int
	Name        string
	Description string
	Subnets     string
	Gateway     netip.Addr // zero value means no gateway recorded
	MemberCount int        // cached, refreshed by RecountMembers
}

// SubnetList splits the raw subnet text into individual entries.
func (v *VLAN) SubnetList() []string {
	return cidrindex.SplitList(v.Subnets)
}

// HistoryEntry is one responsibility interval for one address. An
// entry with a zero End is the open interval; at most one may exist
// per address at any time.
type HistoryEntry struct {
	ID         string
	Address    netip.Addr
	Assignment Assignment // Unassigned marks a released interval
	Start      time.Time
	End        time.Time // zero while the interval is open
	Reason     Reason
	Note       string

	// Snapshot of the record at the moment the interval started.
	ActivityAtTime     Activity
	AvailabilityAtTime Availability
	VLANIDAtTime       int

	CreatedAt time.Time
	CreatedBy string
}

func (e *HistoryEntry) Open() bool {
	return e.End.IsZero()
}
