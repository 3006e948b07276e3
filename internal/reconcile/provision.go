package reconcile

import (
	"context"
	"fmt"
	"strconv"

	"github.com/asmbly/membersync/internal/neon"
	"github.com/asmbly/membersync/internal/openpath"
)

// provision creates an OpenPath user for a member that has none and
// writes the new ID back to Neon. OpenPath archives deleted users and
// answers a create for a known email with the archived record, so a
// "created" user older than the resurrection threshold gets its stale
// credentials purged and its identity re-patched before use.
func (r *Reconciler) provision(ctx context.Context, member neon.Member) (neon.Member, bool, error) {
	r.logger.Info("Creating OpenPath user",
		"account_id", member.AccountID, "name", member.FullName(), "email", member.Email)

	profile := openpath.UserProfile{
		Identity: openpath.Identity{
			Email:     member.Email,
			FirstName: member.FirstName,
			LastName:  member.LastName,
		},
		ExternalID: strconv.Itoa(member.AccountID),
	}

	user, err := r.openPath.CreateUser(ctx, profile)
	if err != nil {
		return member, false, fmt.Errorf("provisioning account %d: %w", member.AccountID, err)
	}
	if user.ID <= 0 {
		return member, false, fmt.Errorf("provisioning account %d: created user has no id", member.AccountID)
	}

	age := r.now().Sub(user.CreatedAt.Time)
	resurrected := age > r.opts.ResurrectionAge
	if resurrected {
		r.logger.Warn("OpenPath returned a pre-existing user for a create call",
			"account_id", member.AccountID,
			"openpath_id", user.ID,
			"created_at", user.CreatedAt.Time,
			"email", member.Email)
		if err := r.repairResurrectedUser(ctx, user.ID, profile); err != nil {
			return member, true, fmt.Errorf("repairing resurrected user for account %d: %w", member.AccountID, err)
		}
	}

	if err := r.crm.UpdateOpenPathID(ctx, member.AccountID, user.ID); err != nil {
		return member, resurrected, fmt.Errorf("storing OpenPath ID for account %d: %w", member.AccountID, err)
	}

	member.OpenPathID = user.ID
	r.telemetry.RecordProvisioned(ctx, resurrected)
	return member, resurrected, nil
}

// repairResurrectedUser brings an archived-then-resurrected user back
// to a clean state: every stale credential is deleted and the identity
// fields are overwritten, since OpenPath does not refresh them on
// resurrection. Idempotent; a user with no credentials is fine.
func (r *Reconciler) repairResurrectedUser(ctx context.Context, userID int64, profile openpath.UserProfile) error {
	credentials, err := r.openPath.ListCredentials(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing stale credentials: %w", err)
	}

	for _, credential := range credentials {
		if credential.ID <= 0 {
			r.logger.Warn("Malformed credential on resurrected OpenPath user",
				"openpath_id", userID)
			continue
		}
		r.logger.Info("Deleting stale credential on resurrected OpenPath user",
			"openpath_id", userID, "credential_id", credential.ID)
		if err := r.openPath.DeleteCredential(ctx, userID, credential.ID); err != nil {
			return fmt.Errorf("deleting stale credential %d: %w", credential.ID, err)
		}
	}

	if err := r.openPath.PatchUser(ctx, userID, profile); err != nil {
		return fmt.Errorf("refreshing resurrected user identity: %w", err)
	}

	return nil
}

// issueMobileCredential runs the create-then-activate sequence for a
// freshly provisioned user that ended up with access. Both calls must
// succeed; failure is fatal for the pass and not retried here.
func (r *Reconciler) issueMobileCredential(ctx context.Context, member neon.Member) error {
	r.logger.Info("Creating mobile credential",
		"account_id", member.AccountID, "openpath_id", member.OpenPathID)

	credential, err := r.openPath.CreateMobileCredential(ctx, member.OpenPathID)
	if err != nil {
		return fmt.Errorf("creating mobile credential for account %d: %w", member.AccountID, err)
	}
	if credential.ID <= 0 {
		return fmt.Errorf("created a mobile credential for account %d but no id came back", member.AccountID)
	}

	if err := r.openPath.ActivateMobileCredential(ctx, member.OpenPathID, credential.ID); err != nil {
		return fmt.Errorf("activating mobile credential %d for account %d: %w",
			credential.ID, member.AccountID, err)
	}

	return nil
}
