package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asmbly/membersync/internal/entitlement"
	"github.com/asmbly/membersync/internal/monitoring"
	"github.com/asmbly/membersync/internal/neon"
	"github.com/asmbly/membersync/internal/openpath"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeCRM struct {
	member    neon.Member
	getErr    error
	updated   map[int]int64
	updateErr error
}

func (f *fakeCRM) GetMemberByID(ctx context.Context, accountID int) (neon.Member, error) {
	if f.getErr != nil {
		return neon.Member{}, f.getErr
	}
	return f.member, nil
}

func (f *fakeCRM) UpdateOpenPathID(ctx context.Context, accountID int, openPathID int64) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.updated == nil {
		f.updated = make(map[int]int64)
	}
	f.updated[accountID] = openPathID
	return nil
}

type replaceCall struct {
	userID   int64
	groupIDs []int64
}

type fakeAccessControl struct {
	groups       []openpath.Group
	getGroupsErr error

	replaceCalls []replaceCall
	replaceErr   error

	createdUser openpath.User
	createErr   error
	createCalls int

	patchCalls []int64

	credentials []openpath.Credential
	deleteCalls [][2]int64

	mobileCredential  openpath.Credential
	mobileCreates     int
	mobileActivations []int64
}

func (f *fakeAccessControl) GetGroups(ctx context.Context, userID int64) ([]openpath.Group, error) {
	if f.getGroupsErr != nil {
		return nil, f.getGroupsErr
	}
	return f.groups, nil
}

func (f *fakeAccessControl) ReplaceGroups(ctx context.Context, userID int64, groupIDs []int64) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaceCalls = append(f.replaceCalls, replaceCall{userID: userID, groupIDs: groupIDs})
	return nil
}

func (f *fakeAccessControl) CreateUser(ctx context.Context, profile openpath.UserProfile) (openpath.User, error) {
	f.createCalls++
	if f.createErr != nil {
		return openpath.User{}, f.createErr
	}
	return f.createdUser, nil
}

func (f *fakeAccessControl) PatchUser(ctx context.Context, userID int64, profile openpath.UserProfile) error {
	f.patchCalls = append(f.patchCalls, userID)
	return nil
}

func (f *fakeAccessControl) ListCredentials(ctx context.Context, userID int64) ([]openpath.Credential, error) {
	return f.credentials, nil
}

func (f *fakeAccessControl) DeleteCredential(ctx context.Context, userID, credentialID int64) error {
	f.deleteCalls = append(f.deleteCalls, [2]int64{userID, credentialID})
	return nil
}

func (f *fakeAccessControl) CreateMobileCredential(ctx context.Context, userID int64) (openpath.Credential, error) {
	f.mobileCreates++
	return f.mobileCredential, nil
}

func (f *fakeAccessControl) ActivateMobileCredential(ctx context.Context, userID, credentialID int64) error {
	f.mobileActivations = append(f.mobileActivations, credentialID)
	return nil
}

type fakeNotifier struct {
	enabled  []string
	disabled []string
}

func (f *fakeNotifier) SendAccessEnabled(ctx context.Context, email, name string) error {
	f.enabled = append(f.enabled, email)
	return nil
}

func (f *fakeNotifier) SendAccessDisabled(ctx context.Context, email, name string) error {
	f.disabled = append(f.disabled, email)
	return nil
}

func newTestReconciler(crm *fakeCRM, accessControl *fakeAccessControl, notifier *fakeNotifier, opts Options) *Reconciler {
	if opts.Catalog == (entitlement.Catalog{}) {
		opts.Catalog = entitlement.DefaultCatalog()
	}
	r := New(slog.New(slog.DiscardHandler), crm, accessControl, notifier, monitoring.NewDisabled(), opts)
	r.now = func() time.Time { return testNow }
	return r
}

func currentMember() neon.Member {
	return neon.Member{
		AccountID:            1797,
		FirstName:            "Ada",
		LastName:             "Lovelace",
		Email:                "ada@example.com",
		OpenPathID:           3792,
		MembershipExpiration: testNow.AddDate(0, 3, 0),
	}
}

func TestReconcileActivation(t *testing.T) {
	member := currentMember()
	member.FacilityAccess = true

	crm := &fakeCRM{member: member}
	accessControl := &fakeAccessControl{} // no current groups
	notifier := &fakeNotifier{}
	r := newTestReconciler(crm, accessControl, notifier, Options{})

	outcome, err := r.Reconcile(context.Background(), 1797)
	require.NoError(t, err)

	assert.Equal(t, entitlement.TransitionActivated, outcome.Transition)
	assert.True(t, outcome.Wrote)
	require.Len(t, accessControl.replaceCalls, 1)
	assert.Equal(t, int64(3792), accessControl.replaceCalls[0].userID)
	assert.Equal(t, []int64{23172}, accessControl.replaceCalls[0].groupIDs)

	assert.Equal(t, []string{"ada@example.com"}, notifier.enabled)
	assert.Empty(t, notifier.disabled)
	assert.True(t, outcome.NotificationSent)
}

func TestReconcileUnchangedIsNoOp(t *testing.T) {
	member := currentMember()
	member.FacilityAccess = true

	crm := &fakeCRM{member: member}
	accessControl := &fakeAccessControl{
		groups: []openpath.Group{{ID: 23172, Name: "Shop"}},
	}
	notifier := &fakeNotifier{}
	r := newTestReconciler(crm, accessControl, notifier, Options{})

	outcome, err := r.Reconcile(context.Background(), 1797)
	require.NoError(t, err)

	assert.Equal(t, entitlement.TransitionUnchanged, outcome.Transition)
	assert.False(t, outcome.Wrote)
	assert.Empty(t, accessControl.replaceCalls)
	assert.Empty(t, notifier.enabled)
	assert.Empty(t, notifier.disabled)
}

func TestReconcileChangedWritesWithoutNotification(t *testing.T) {
	member := currentMember()
	member.FacilityAccess = true
	member.Steward = true

	crm := &fakeCRM{member: member}
	accessControl := &fakeAccessControl{
		groups: []openpath.Group{{ID: 23172}},
	}
	notifier := &fakeNotifier{}
	r := newTestReconciler(crm, accessControl, notifier, Options{})

	outcome, err := r.Reconcile(context.Background(), 1797)
	require.NoError(t, err)

	assert.Equal(t, entitlement.TransitionChanged, outcome.Transition)
	assert.True(t, outcome.Wrote)
	require.Len(t, accessControl.replaceCalls, 1)
	assert.Equal(t, []int64{23172, 27683}, accessControl.replaceCalls[0].groupIDs)
	assert.Empty(t, notifier.enabled)
	assert.Empty(t, notifier.disabled)
}

func TestReconcileDeactivationNotifies(t *testing.T) {
	member := currentMember()
	// Membership lapsed past the grace window, no protected class.
	member.FacilityAccess = true
	member.MembershipExpiration = testNow.AddDate(0, -2, 0)

	crm := &fakeCRM{member: member}
	accessControl := &fakeAccessControl{
		groups: []openpath.Group{{ID: 23172}},
	}
	notifier := &fakeNotifier{}
	r := newTestReconciler(crm, accessControl, notifier, Options{})

	outcome, err := r.Reconcile(context.Background(), 1797)
	require.NoError(t, err)

	assert.Equal(t, entitlement.TransitionDeactivated, outcome.Transition)
	assert.True(t, outcome.Wrote)
	require.Len(t, accessControl.replaceCalls, 1)
	assert.Empty(t, accessControl.replaceCalls[0].groupIDs)
	assert.Equal(t, []string{"ada@example.com"}, notifier.disabled)
}

func TestReconcileProtectedDeactivationSuppressesNotification(t *testing.T) {
	member := currentMember()
	// A lapsed leader: the resolver grants nothing, the write removes
	// all groups, but the disable email is downgraded to a warning.
	member.Leader = true
	member.FacilityAccess = true
	member.MembershipExpiration = testNow.AddDate(0, -2, 0)

	crm := &fakeCRM{member: member}
	accessControl := &fakeAccessControl{
		groups: []openpath.Group{{ID: 23174}},
	}
	notifier := &fakeNotifier{}
	r := newTestReconciler(crm, accessControl, notifier, Options{})

	outcome, err := r.Reconcile(context.Background(), 1797)
	require.NoError(t, err)

	assert.Equal(t, entitlement.TransitionDeactivated, outcome.Transition)
	// The write still proceeds; only the notification is suppressed.
	assert.True(t, outcome.Wrote)
	assert.Empty(t, notifier.disabled)
	assert.True(t, outcome.NotificationSuppressed)
	assert.False(t, outcome.NotificationSent)
}

func TestReconcileCoworkingRidesOutFacilityLapse(t *testing.T) {
	member := currentMember()
	// Facility access flag lapsed with the membership, but coworking
	// keeps its group, so this is a change, not a deactivation.
	member.CoWorking = true
	member.FacilityAccess = true
	member.MembershipExpiration = testNow.AddDate(0, -2, 0)

	crm := &fakeCRM{member: member}
	accessControl := &fakeAccessControl{
		groups: []openpath.Group{{ID: 23172}, {ID: 23175}},
	}
	notifier := &fakeNotifier{}
	r := newTestReconciler(crm, accessControl, notifier, Options{})

	outcome, err := r.Reconcile(context.Background(), 1797)
	require.NoError(t, err)

	assert.Equal(t, entitlement.TransitionChanged, outcome.Transition)
	require.Len(t, accessControl.replaceCalls, 1)
	assert.Equal(t, []int64{23175}, accessControl.replaceCalls[0].groupIDs)
	assert.Empty(t, notifier.disabled)
}

func TestReconcileDryRunSkipsWrites(t *testing.T) {
	member := currentMember()
	member.FacilityAccess = true

	crm := &fakeCRM{member: member}
	accessControl := &fakeAccessControl{}
	notifier := &fakeNotifier{}
	r := newTestReconciler(crm, accessControl, notifier, Options{DryRun: true})

	outcome, err := r.Reconcile(context.Background(), 1797)
	require.NoError(t, err)

	// The outcome reflects the would-be transition, but nothing was
	// written.
	assert.Equal(t, entitlement.TransitionActivated, outcome.Transition)
	assert.False(t, outcome.Wrote)
	assert.Empty(t, accessControl.replaceCalls)
}

func TestReconcileMalformedGroupRecordsAreSkipped(t *testing.T) {
	member := currentMember()
	member.FacilityAccess = true

	crm := &fakeCRM{member: member}
	accessControl := &fakeAccessControl{
		groups: []openpath.Group{{ID: 0, Name: "mangled"}, {ID: 23172}},
	}
	notifier := &fakeNotifier{}
	r := newTestReconciler(crm, accessControl, notifier, Options{})

	outcome, err := r.Reconcile(context.Background(), 1797)
	require.NoError(t, err)

	// The malformed record contributes nothing; the good one matches
	// the entitlement, so no write happens.
	assert.Equal(t, entitlement.TransitionUnchanged, outcome.Transition)
	assert.False(t, outcome.Wrote)
}

func TestReconcilePropagatesMemberNotFound(t *testing.T) {
	crm := &fakeCRM{getErr: neon.ErrMemberNotFound}
	r := newTestReconciler(crm, &fakeAccessControl{}, &fakeNotifier{}, Options{})

	_, err := r.Reconcile(context.Background(), 999)
	assert.ErrorIs(t, err, neon.ErrMemberNotFound)
}

func TestReconcilePropagatesWriteFailure(t *testing.T) {
	member := currentMember()
	member.FacilityAccess = true

	writeErr := &openpath.StatusError{Op: "PUT", Status: 500, Want: 204}
	crm := &fakeCRM{member: member}
	accessControl := &fakeAccessControl{replaceErr: writeErr}
	r := newTestReconciler(crm, accessControl, &fakeNotifier{}, Options{})

	_, err := r.Reconcile(context.Background(), 1797)
	require.Error(t, err)

	var statusErr *openpath.StatusError
	assert.ErrorAs(t, err, &statusErr)
}

func TestReconcileReadFailureAbortsBeforeWrite(t *testing.T) {
	member := currentMember()
	member.FacilityAccess = true

	crm := &fakeCRM{member: member}
	accessControl := &fakeAccessControl{getGroupsErr: errors.New("connection reset")}
	notifier := &fakeNotifier{}
	r := newTestReconciler(crm, accessControl, notifier, Options{})

	_, err := r.Reconcile(context.Background(), 1797)
	require.Error(t, err)
	assert.Empty(t, accessControl.replaceCalls)
	assert.Empty(t, notifier.enabled)
}
