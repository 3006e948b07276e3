package neon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func TestAttributesDefaults(t *testing.T) {
	// A member with no custom fields classifies to all-false.
	attrs := Member{AccountID: 1}.Attributes(testNow)

	assert.False(t, attrs.IsStaff)
	assert.False(t, attrs.IsLeaderOrSuper)
	assert.False(t, attrs.IsSteward)
	assert.False(t, attrs.IsInstructor)
	assert.False(t, attrs.IsCoWorking)
	assert.False(t, attrs.HasFacilityAccess)
	assert.False(t, attrs.HasShaperAccess)
	assert.False(t, attrs.HasDominoAccess)
	assert.False(t, attrs.InGracePeriod)
}

func TestAttributesFacilityAccessRequiresCurrentMembership(t *testing.T) {
	tests := []struct {
		name       string
		expiration time.Time
		flag       bool
		wantAccess bool
		wantGrace  bool
	}{
		{
			name:       "current_membership_with_flag",
			expiration: testNow.AddDate(0, 3, 0),
			flag:       true,
			wantAccess: true,
		},
		{
			name:       "expired_within_grace",
			expiration: testNow.AddDate(0, 0, -3),
			flag:       true,
			wantAccess: true,
			wantGrace:  true,
		},
		{
			name:       "expired_past_grace",
			expiration: testNow.AddDate(0, 0, -30),
			flag:       true,
			wantAccess: false,
		},
		{
			name:       "current_membership_without_flag",
			expiration: testNow.AddDate(0, 3, 0),
			flag:       false,
			wantAccess: false,
		},
		{
			name:       "no_membership_term",
			flag:       true,
			wantAccess: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Member{FacilityAccess: tt.flag, MembershipExpiration: tt.expiration}
			attrs := m.Attributes(testNow)
			assert.Equal(t, tt.wantAccess, attrs.HasFacilityAccess)
			assert.Equal(t, tt.wantGrace, attrs.InGracePeriod)
		})
	}
}

func TestAttributesLeaderOrSuper(t *testing.T) {
	current := testNow.AddDate(0, 1, 0)

	assert.True(t, Member{Leader: true, MembershipExpiration: current}.Attributes(testNow).IsLeaderOrSuper)
	assert.True(t, Member{SuperSteward: true, MembershipExpiration: current}.Attributes(testNow).IsLeaderOrSuper)
	assert.False(t, Member{Staff: true, MembershipExpiration: current}.Attributes(testNow).IsLeaderOrSuper)
	// Leadership grant requires a live membership term; the standing
	// exception below is what protects a lapsed leader from the
	// disable email.
	assert.False(t, Member{Leader: true, MembershipExpiration: testNow.AddDate(0, -2, 0)}.Attributes(testNow).IsLeaderOrSuper)
}

func TestExemptFromAutoDisable(t *testing.T) {
	assert.True(t, Member{CoWorking: true}.ExemptFromAutoDisable())
	assert.True(t, Member{Leader: true}.ExemptFromAutoDisable())
	assert.True(t, Member{SuperSteward: true}.ExemptFromAutoDisable())
	assert.False(t, Member{Staff: true}.ExemptFromAutoDisable())
	assert.False(t, Member{FacilityAccess: true}.ExemptFromAutoDisable())
}

func TestQualifiesForProvisioning(t *testing.T) {
	current := testNow.AddDate(0, 1, 0)

	assert.True(t, Member{Staff: true}.QualifiesForProvisioning(testNow))
	assert.True(t, Member{FacilityAccess: true, MembershipExpiration: current}.QualifiesForProvisioning(testNow))
	// Coworking alone does not trigger provisioning even though the
	// resolver would grant it a group.
	assert.False(t, Member{CoWorking: true, MembershipExpiration: current}.QualifiesForProvisioning(testNow))
	assert.False(t, Member{FacilityAccess: true}.QualifiesForProvisioning(testNow))
}

func TestFullName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", Member{FirstName: "Ada", LastName: "Lovelace"}.FullName())
	assert.Equal(t, "Gracie Hopper", Member{FirstName: "Grace", PreferredName: "Gracie", LastName: "Hopper"}.FullName())
	assert.Equal(t, "Hopper", Member{LastName: "Hopper"}.FullName())
	assert.Equal(t, "Ada", Member{FirstName: "Ada"}.FullName())
}
