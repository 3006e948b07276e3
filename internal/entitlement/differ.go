package entitlement

// Transition classifies the change between the current group
// assignment and the entitled set. It drives notification decisions
// only; the group replacement itself fires whenever Changed is true.
type Transition string

const (
	TransitionActivated   Transition = "activated"
	TransitionDeactivated Transition = "deactivated"
	TransitionChanged     Transition = "changed"
	TransitionUnchanged   Transition = "unchanged"
)

// Diff is the result of comparing current state against entitlement.
type Diff struct {
	Changed    bool
	Transition Transition
}

// Compare performs pure set comparison of the current assignment
// against the entitled set, independent of ordering or duplicates.
func Compare(current, entitled GroupSet) Diff {
	if current.Equal(entitled) {
		return Diff{Changed: false, Transition: TransitionUnchanged}
	}
	switch {
	case current.Len() == 0:
		return Diff{Changed: true, Transition: TransitionActivated}
	case entitled.Len() == 0:
		return Diff{Changed: true, Transition: TransitionDeactivated}
	default:
		return Diff{Changed: true, Transition: TransitionChanged}
	}
}
