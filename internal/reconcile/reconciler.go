package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/asmbly/membersync/internal/entitlement"
	"github.com/asmbly/membersync/internal/monitoring"
	"github.com/asmbly/membersync/internal/neon"
	"github.com/asmbly/membersync/internal/openpath"
)

// CRM is the slice of the Neon client the reconciler consumes.
type CRM interface {
	GetMemberByID(ctx context.Context, accountID int) (neon.Member, error)
	UpdateOpenPathID(ctx context.Context, accountID int, openPathID int64) error
}

// AccessControl is the slice of the OpenPath client the reconciler
// consumes.
type AccessControl interface {
	GetGroups(ctx context.Context, userID int64) ([]openpath.Group, error)
	ReplaceGroups(ctx context.Context, userID int64, groupIDs []int64) error
	CreateUser(ctx context.Context, profile openpath.UserProfile) (openpath.User, error)
	PatchUser(ctx context.Context, userID int64, profile openpath.UserProfile) error
	ListCredentials(ctx context.Context, userID int64) ([]openpath.Credential, error)
	DeleteCredential(ctx context.Context, userID, credentialID int64) error
	CreateMobileCredential(ctx context.Context, userID int64) (openpath.Credential, error)
	ActivateMobileCredential(ctx context.Context, userID, credentialID int64) error
}

// Notifier sends access transition notifications. Errors are logged
// by the reconciler but never abort a pass.
type Notifier interface {
	SendAccessEnabled(ctx context.Context, email, name string) error
	SendAccessDisabled(ctx context.Context, email, name string) error
}

// Outcome describes what a reconciliation pass did (or, in dry run,
// would have done) for one account.
type Outcome struct {
	AccountID  int
	OpenPathID int64
	Entitled   entitlement.GroupSet
	Transition entitlement.Transition
	// Wrote is true when the group assignment was actually replaced.
	Wrote       bool
	Provisioned bool
	Resurrected bool
	// Skipped is true when the account has no OpenPath user and does
	// not qualify for one.
	Skipped    bool
	SkipReason string

	NotificationSent       bool
	NotificationSuppressed bool
}

// Options configure a Reconciler.
type Options struct {
	Catalog entitlement.Catalog
	// DryRun skips every write call (group replace, user create and
	// patch, credential operations) and logs what would have happened.
	// Reads still run so diffs can be reviewed.
	DryRun bool
	// ResurrectionAge is the CreatedAt age beyond which a freshly
	// "created" OpenPath user is treated as a resurrected record.
	ResurrectionAge time.Duration
}

// Reconciler converges one account's OpenPath group assignment with
// its Neon membership state. It holds no mutable state of its own, so
// distinct accounts may be reconciled concurrently; concurrent passes
// over the same account must be serialized by the caller.
type Reconciler struct {
	logger    *slog.Logger
	crm       CRM
	openPath  AccessControl
	notifier  Notifier
	telemetry monitoring.Telemetry
	opts      Options

	// now is swappable for tests.
	now func() time.Time
}

func New(logger *slog.Logger, crm CRM, openPath AccessControl, notifier Notifier, telemetry monitoring.Telemetry, opts Options) *Reconciler {
	if opts.ResurrectionAge <= 0 {
		opts.ResurrectionAge = 5 * time.Minute
	}
	return &Reconciler{
		logger:    logger,
		crm:       crm,
		openPath:  openPath,
		notifier:  notifier,
		telemetry: telemetry,
		opts:      opts,
		now:       time.Now,
	}
}

// Reconcile runs a full pass for one account: fetch the member,
// provision an OpenPath user if needed, converge the group assignment
// and emit notifications for terminal transitions.
func (r *Reconciler) Reconcile(ctx context.Context, accountID int) (Outcome, error) {
	member, err := r.crm.GetMemberByID(ctx, accountID)
	if err != nil {
		return Outcome{AccountID: accountID}, fmt.Errorf("reconcile account %d: %w", accountID, err)
	}

	if member.OpenPathID > 0 {
		// Linked account: the normal converge-and-notify path.
		return r.syncGroups(ctx, member, nil, true, Outcome{AccountID: accountID})
	}

	return r.reconcileUnlinked(ctx, member)
}

// reconcileUnlinked handles accounts with no OpenPath user yet.
func (r *Reconciler) reconcileUnlinked(ctx context.Context, member neon.Member) (Outcome, error) {
	outcome := Outcome{AccountID: member.AccountID}
	now := r.now()
	attrs := member.Attributes(now)
	entitled := r.opts.Catalog.Resolve(attrs)

	if !member.QualifiesForProvisioning(now) {
		if entitled.Len() > 0 {
			// Known gap: the coworking tier grants groups without
			// facility access, but provisioning gates on facility
			// access or staff. Such accounts stay unprovisioned.
			r.logger.Warn("Account is entitled to groups but does not qualify for provisioning",
				"account_id", member.AccountID, "entitled", entitled.IDs())
		}
		outcome.Skipped = true
		outcome.SkipReason = "no-access-needed"
		outcome.Transition = entitlement.TransitionUnchanged
		r.logger.Debug("No OpenPath user and no access needed", "account_id", member.AccountID)
		return outcome, nil
	}

	if r.opts.DryRun {
		diff := entitlement.Compare(entitlement.NewGroupSet(), entitled)
		outcome.Entitled = entitled
		outcome.Transition = diff.Transition
		r.logger.Warn("Dry run: skipping OpenPath user creation",
			"account_id", member.AccountID, "entitled", entitled.IDs())
		return outcome, nil
	}

	member, resurrected, err := r.provision(ctx, member)
	if err != nil {
		return outcome, err
	}
	outcome.Provisioned = true
	outcome.Resurrected = resurrected

	// A just-provisioned user starts with an empty assignment, so the
	// first replace is always a full grant. No notification on this
	// path; the member is mid-signup and gets onboarding email
	// elsewhere.
	outcome, err = r.syncGroups(ctx, member, entitlement.NewGroupSet(), false, outcome)
	if err != nil {
		return outcome, err
	}

	if outcome.Entitled.Len() > 0 {
		if err := r.issueMobileCredential(ctx, member); err != nil {
			return outcome, err
		}
	}

	return outcome, nil
}

// syncGroups converges the group assignment for a linked member.
// current may be supplied to skip the read (the provisioning path
// knows the assignment is empty); nil means fetch.
func (r *Reconciler) syncGroups(ctx context.Context, member neon.Member, current entitlement.GroupSet, notify bool, outcome Outcome) (Outcome, error) {
	if member.OpenPathID <= 0 {
		// Caller bug, not a runtime condition.
		return outcome, fmt.Errorf("syncGroups called for account %d without an OpenPath ID", member.AccountID)
	}
	outcome.OpenPathID = member.OpenPathID

	if current == nil {
		groups, err := r.openPath.GetGroups(ctx, member.OpenPathID)
		if err != nil {
			return outcome, fmt.Errorf("reading groups for account %d: %w", member.AccountID, err)
		}
		current = entitlement.NewGroupSet()
		for _, group := range groups {
			if group.ID <= 0 {
				r.logger.Warn("Malformed group record on OpenPath user",
					"account_id", member.AccountID, "openpath_id", member.OpenPathID)
				continue
			}
			current.Add(entitlement.GroupID(group.ID))
		}
	}

	attrs := member.Attributes(r.now())
	entitled := r.opts.Catalog.Resolve(attrs)
	diff := entitlement.Compare(current, entitled)

	outcome.Entitled = entitled
	outcome.Transition = diff.Transition

	r.logger.Debug("Computed group diff",
		"account_id", member.AccountID,
		"openpath_id", member.OpenPathID,
		"current", current.IDs(),
		"entitled", entitled.IDs(),
		"transition", string(diff.Transition))

	if diff.Changed {
		if r.opts.DryRun {
			r.logger.Warn("Dry run: skipping group replace",
				"account_id", member.AccountID,
				"openpath_id", member.OpenPathID,
				"entitled", entitled.IDs())
		} else {
			r.logger.Info("Updating OpenPath groups",
				"account_id", member.AccountID,
				"name", member.FullName(),
				"email", member.Email,
				"groups", entitled.IDs())
			if err := r.openPath.ReplaceGroups(ctx, member.OpenPathID, entitled.IDs()); err != nil {
				return outcome, fmt.Errorf("replacing groups for account %d: %w", member.AccountID, err)
			}
			outcome.Wrote = true
		}
	}

	if notify {
		outcome = r.notifyTransition(ctx, member, attrs.InGracePeriod, diff.Transition, outcome)
	}

	r.telemetry.RecordReconciliation(ctx, string(diff.Transition), outcome.Wrote)
	return outcome, nil
}

// notifyTransition fires at most one notification per terminal
// transition. Coworking, leader and super accounts are standing
// exceptions: their disable notification is downgraded to a warning
// even though the group removal itself already went through.
func (r *Reconciler) notifyTransition(ctx context.Context, member neon.Member, inGracePeriod bool, transition entitlement.Transition, outcome Outcome) Outcome {
	switch transition {
	case entitlement.TransitionActivated:
		r.telemetry.RecordNotification(ctx, "enabled", false)
		if err := r.notifier.SendAccessEnabled(ctx, member.Email, member.FullName()); err != nil {
			r.logger.Error("Access enabled notification failed",
				"account_id", member.AccountID, "error", err)
			return outcome
		}
		outcome.NotificationSent = true

	case entitlement.TransitionDeactivated:
		if member.ExemptFromAutoDisable() {
			r.telemetry.RecordNotification(ctx, "disabled", true)
			r.logger.Warn("Suppressing auto-disable notification for privileged account",
				"account_id", member.AccountID,
				"name", member.FullName(),
				"email", member.Email,
				"coworking", member.CoWorking,
				"leader_or_super", member.Leader || member.SuperSteward,
				"in_grace_period", inGracePeriod)
			outcome.NotificationSuppressed = true
			return outcome
		}
		r.telemetry.RecordNotification(ctx, "disabled", false)
		if err := r.notifier.SendAccessDisabled(ctx, member.Email, member.FullName()); err != nil {
			r.logger.Error("Access disabled notification failed",
				"account_id", member.AccountID, "error", err)
			return outcome
		}
		outcome.NotificationSent = true
	}

	return outcome
}
