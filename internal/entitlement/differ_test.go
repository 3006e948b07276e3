package entitlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name           string
		current        GroupSet
		entitled       GroupSet
		wantChanged    bool
		wantTransition Transition
	}{
		{
			name:           "both_empty_unchanged",
			current:        NewGroupSet(),
			entitled:       NewGroupSet(),
			wantChanged:    false,
			wantTransition: TransitionUnchanged,
		},
		{
			name:           "equal_sets_unchanged",
			current:        NewGroupSet(23172, 27683),
			entitled:       NewGroupSet(27683, 23172),
			wantChanged:    false,
			wantTransition: TransitionUnchanged,
		},
		{
			name:           "empty_to_nonempty_activated",
			current:        NewGroupSet(),
			entitled:       NewGroupSet(23172),
			wantChanged:    true,
			wantTransition: TransitionActivated,
		},
		{
			name:           "nonempty_to_empty_deactivated",
			current:        NewGroupSet(23172, 23175),
			entitled:       NewGroupSet(),
			wantChanged:    true,
			wantTransition: TransitionDeactivated,
		},
		{
			name:           "both_nonempty_unequal_changed",
			current:        NewGroupSet(23172),
			entitled:       NewGroupSet(23172, 27683),
			wantChanged:    true,
			wantTransition: TransitionChanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := Compare(tt.current, tt.entitled)
			assert.Equal(t, tt.wantChanged, diff.Changed)
			assert.Equal(t, tt.wantTransition, diff.Transition)
		})
	}
}

// Re-running a diff against state that was just converged must be a
// no-op. This is what makes batch reconciliation safely re-runnable.
func TestCompareIdempotentAfterApply(t *testing.T) {
	entitled := NewGroupSet(23172, 27683, 96676)

	first := Compare(NewGroupSet(), entitled)
	assert.True(t, first.Changed)

	// The apply writes the entitled set; the next pass sees it as
	// current.
	second := Compare(entitled, entitled)
	assert.False(t, second.Changed)
	assert.Equal(t, TransitionUnchanged, second.Transition)
}

func TestGroupSetEqualIgnoresOrderAndDuplicates(t *testing.T) {
	a := NewGroupSet(1, 2, 3)
	b := NewGroupSet(3, 2, 1, 1, 2)
	assert.True(t, a.Equal(b))
	assert.Equal(t, []int64{1, 2, 3}, b.IDs())
}
