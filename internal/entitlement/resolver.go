package entitlement

// Attributes are the classifier predicates derived from a member
// record. Every field defaults to false when the underlying CRM
// attribute is absent.
type Attributes struct {
	IsStaff           bool
	IsLeaderOrSuper   bool
	IsSteward         bool
	IsInstructor      bool
	IsCoWorking       bool
	HasFacilityAccess bool
	HasShaperAccess   bool
	HasDominoAccess   bool
	InGracePeriod     bool
}

// Resolve computes the entitled group set for the given attributes.
// Three rule tiers combine additively; later tiers only ever add
// groups, so the result is the union of whatever tiers triggered.
// Pure function, no I/O, never fails.
func (c Catalog) Resolve(a Attributes) GroupSet {
	groups := NewGroupSet()

	// Tier 1: leadership is exclusive within this tier. Non-leader
	// staff get the standing storage bundle during regular hours.
	if a.IsLeaderOrSuper {
		groups.Add(c.Leadership24x7)
	} else if a.IsStaff {
		groups.Add(c.Shop)
		groups.Add(c.Stewards)
		groups.Add(c.Instructors)
		groups.Add(c.CoWorking)
	}

	// Tier 2: coworking is a permissive group - these members ride out
	// subscription lapses.
	if a.IsCoWorking {
		groups.Add(c.CoWorking)
		c.addRoleGrants(groups, a)
	}

	// Tier 3: everything else requires a current facility access term.
	if a.HasFacilityAccess {
		groups.Add(c.Shop)
		c.addRoleGrants(groups, a)
	}

	return groups
}

// addRoleGrants applies the independent sub-grants shared by the
// coworking and facility tiers. Each grant depends only on its own
// flag, never on the others.
func (c Catalog) addRoleGrants(groups GroupSet, a Attributes) {
	if a.IsSteward {
		groups.Add(c.Stewards)
	}
	if a.IsInstructor {
		groups.Add(c.Instructors)
	}
	if a.HasShaperAccess {
		groups.Add(c.ShaperOrigin)
	}
	if a.HasDominoAccess {
		groups.Add(c.Domino)
	}
}
