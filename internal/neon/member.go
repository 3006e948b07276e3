package neon

import (
	"time"

	"github.com/asmbly/membersync/internal/entitlement"
)

// Custom field names on Neon accounts. Checkbox fields report "Yes"
// through option values; absent fields simply never appear in the
// account payload.
const (
	fieldOpenPathID   = "OpenPathID"
	fieldStaff        = "Staff"
	fieldLeader       = "Leader"
	fieldSuperSteward = "Super Steward"
	fieldSteward      = "Steward"
	fieldInstructor   = "Instructor"
	fieldCoWorking    = "CoWorking"
	fieldFacility     = "Facility Access"
	fieldShaperOrigin = "Shaper Origin"
	fieldDomino       = "Domino"
	fieldExpiration   = "Membership Expiration Date"
)

// membershipGrace is how long past the membership expiration date a
// member still counts as current for facility access.
const membershipGrace = 7 * 24 * time.Hour

// Member is the typed copy of a Neon account the sync engine works
// with. Custom attributes absent from the CRM payload are false here.
type Member struct {
	AccountID     int
	FirstName     string
	LastName      string
	PreferredName string
	Email         string

	// OpenPathID links the account to its OpenPath user. Zero means
	// no user has been provisioned yet.
	OpenPathID int64

	// MembershipExpiration is zero when the account has never held a
	// membership term.
	MembershipExpiration time.Time

	Staff          bool
	Leader         bool
	SuperSteward   bool
	Steward        bool
	Instructor     bool
	CoWorking      bool
	FacilityAccess bool
	ShaperOrigin   bool
	Domino         bool
}

// FullName prefers the preferred name when one is set.
func (m Member) FullName() string {
	first := m.FirstName
	if m.PreferredName != "" {
		first = m.PreferredName
	}
	if first == "" {
		return m.LastName
	}
	if m.LastName == "" {
		return first
	}
	return first + " " + m.LastName
}

// MembershipCurrent reports whether the membership term covers now,
// including the grace window after expiration.
func (m Member) MembershipCurrent(now time.Time) bool {
	if m.MembershipExpiration.IsZero() {
		return false
	}
	return !now.After(m.MembershipExpiration.Add(membershipGrace))
}

// InGracePeriod reports whether the membership expired but is still
// inside the grace window.
func (m Member) InGracePeriod(now time.Time) bool {
	if m.MembershipExpiration.IsZero() {
		return false
	}
	return now.After(m.MembershipExpiration) && m.MembershipCurrent(now)
}

// Attributes classifies the member into the predicates the entitlement
// resolver consumes. Pure and total; a member with no custom fields
// classifies to all-false.
func (m Member) Attributes(now time.Time) entitlement.Attributes {
	return entitlement.Attributes{
		IsStaff:           m.Staff,
		IsLeaderOrSuper:   (m.Leader || m.SuperSteward) && m.MembershipCurrent(now),
		IsSteward:         m.Steward,
		IsInstructor:      m.Instructor,
		IsCoWorking:       m.CoWorking,
		HasFacilityAccess: m.FacilityAccess && m.MembershipCurrent(now),
		HasShaperAccess:   m.ShaperOrigin,
		HasDominoAccess:   m.Domino,
		InGracePeriod:     m.InGracePeriod(now),
	}
}

// ExemptFromAutoDisable reports whether the account belongs to a
// standing-exception class. Checked on the raw flags, not the
/// classifier output: a leader whose membership term lapsed still
// counts, which is exactly the case the exception exists for. The
// group-removal write itself is not suppressed, only the disable
// notification.
func (m Member) ExemptFromAutoDisable() bool {
	return m.CoWorking || m.Leader || m.SuperSteward
}

/// QualifiesForProvisioning gates OpenPath user creation: an account
// with no linked user only gets one when it has current facility
// access or is staff. Note this is narrower than the resolver (the
// coworking tier grants groups without facility access); preserved
// as-is from the production rules.
func (m Member) QualifiesForProvisioning(now time.Time) bool {
	return (m.FacilityAccess && m.MembershipCurrent(now)) || m.Staff
}
