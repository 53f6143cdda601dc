package signup

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/metrics"
	userentity "github.com/ovaphlow/pitchfork/service-household-identity/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-household-identity/pkg/utilities"
)

// DefaultLeaseTTL is how long a claim on a pending row blocks other claimants.
// A lease older than this is assumed abandoned by a crashed merge.
const DefaultLeaseTTL = 30 * time.Second

// MergeStore is the user persistence the reconciler writes through.
type MergeStore interface {
	GetByID(ctx context.Context, id string) (*userentity.User, error)
	Upsert(ctx context.Context, u *userentity.User) error
	Delete(ctx context.Context, id string) error
	Neutralize(ctx context.Context, pendingID, claimant string, placeholder *string, staleBefore time.Time) (bool, error)
	RestoreContact(ctx context.Context, pendingID, claimant string, c userentity.Contact) (bool, error)
	MergePending(ctx context.Context, pendingID, claimant, canonicalID string) (int64, error)
}

// Stage names the merge step a degradation happened at.
type Stage string

const (
	StageLookup     Stage = "lookup"
	StageNeutralize Stage = "neutralize"
	StageUpsert     Stage = "upsert"
	StageMigrate    Stage = "migrate"
)

// MergeOutcome is a completed merge: User is the canonical row as written and
// the placeholder is gone.
type MergeOutcome struct {
	User      *userentity.User
	PendingID string
	// Moved counts the references re-pointed from the placeholder.
	Moved int64
}

// MergeDegradation is an abandoned merge. The placeholder was restored as far
// as possible and the caller carries on as if none had matched.
type MergeDegradation struct {
	PendingID string
	Stage     Stage
	RaceLost  bool
	Err       error
}

// MergeResult has exactly one of Outcome and Degradation set.
type MergeResult struct {
	Outcome     *MergeOutcome
	Degradation *MergeDegradation
}

func (r MergeResult) Merged() bool { return r.Outcome != nil }

// Reconciler folds a placeholder profile into a canonical user.
type Reconciler struct {
	users    MergeStore
	logger   *zap.SugaredLogger
	metrics  *metrics.Metrics
	leaseTTL time.Duration
	now      func() time.Time
	claimant func() string
}

// NewReconciler builds a Reconciler with the default lease TTL.
func NewReconciler(users MergeStore, logger *zap.SugaredLogger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		users:    users,
		logger:   logger,
		metrics:  m,
		leaseTTL: DefaultLeaseTTL,
		now:      func() time.Time { return time.Now().UTC() },
		claimant: utilities.NewKSUID,
	}
}

// PlaceholderEmail is the disposable address a placeholder holds while its
// real one moves to the canonical row.
func PlaceholderEmail(pendingID string) string {
	return "pending+" + pendingID + "@placeholder.invalid"
}

// Merge claims pending and writes target as the canonical row with the
// placeholder's values as defaults. target carries the caller's values and
// its ID is the identity id; blank fields are filled from the existing
// canonical row first and from pending second.
//
// The placeholder's contact is cleared before the upsert so both rows never
// hold the same unique key, and it is only deleted once the canonical row
// exists. Any failure restores what was changed and degrades.
func (r *Reconciler) Merge(ctx context.Context, pending, target *userentity.User) MergeResult {
	log := r.logger.With("pending_id", pending.ID, "identity_id", target.ID)

	prior, err := r.users.GetByID(ctx, target.ID)
	switch {
	case errors.Is(err, userrepo.ErrNotFound):
		prior = nil
	case err != nil:
		return r.degrade(log, pending.ID, StageLookup, err)
	}

	now := r.now()
	merged := *target
	if prior != nil {
		fillBlanks(&merged, prior)
		merged.CreatedAt = prior.CreatedAt
	}
	fillBlanks(&merged, pending)
	finalize(&merged, now)

	var placeholder *string
	if pending.Email != nil && merged.Email != nil && *pending.Email == *merged.Email {
		p := PlaceholderEmail(pending.ID)
		placeholder = &p
	}
	c := claim{pendingID: pending.ID, claimant: r.claimant(), snapshot: pending.Contact()}

	claimed, err := r.users.Neutralize(ctx, c.pendingID, c.claimant, placeholder, now.Add(-r.leaseTTL))
	if err != nil {
		return r.degrade(log, pending.ID, StageNeutralize, err)
	}
	if !claimed {
		return r.raceLost(log, pending.ID, StageNeutralize)
	}

	if err := r.users.Upsert(ctx, &merged); err != nil {
		r.release(ctx, log, c)
		return r.degrade(log, pending.ID, StageUpsert, err)
	}

	moved, err := r.users.MergePending(ctx, c.pendingID, c.claimant, merged.ID)
	if err != nil {
		r.revert(ctx, log, merged.ID, prior)
		r.release(ctx, log, c)
		if errors.Is(err, userrepo.ErrRaceLost) {
			return r.raceLost(log, pending.ID, StageMigrate)
		}
		return r.degrade(log, pending.ID, StageMigrate, err)
	}

	r.metrics.Reconciliation("merged")
	log.Infow("pending user merged", "moved_refs", moved)
	return MergeResult{Outcome: &MergeOutcome{User: &merged, PendingID: pending.ID, Moved: moved}}
}

// claim is the lease a merge holds on a placeholder plus the contact it
// cleared.
type claim struct {
	pendingID string
	claimant  string
	snapshot  userentity.Contact
}

// revert puts the canonical row back to prior, or removes it when the merge
// created it. It runs before release so the snapshot contact is free again.
func (r *Reconciler) revert(ctx context.Context, log *zap.SugaredLogger, canonicalID string, prior *userentity.User) {
	var err error
	if prior != nil {
		err = r.users.Upsert(ctx, prior)
	} else {
		err = r.users.Delete(ctx, canonicalID)
	}
	if err != nil {
		log.Warnw("revert canonical row failed", "err", err)
	}
}

// release writes the snapshot back onto the placeholder and drops the lease.
func (r *Reconciler) release(ctx context.Context, log *zap.SugaredLogger, c claim) {
	ok, err := r.users.RestoreContact(ctx, c.pendingID, c.claimant, c.snapshot)
	switch {
	case err != nil:
		log.Warnw("restore pending contact failed", "err", err)
	case !ok:
		log.Warnw("pending user no longer leased, contact not restored")
	}
}

func (r *Reconciler) raceLost(log *zap.SugaredLogger, pendingID string, stage Stage) MergeResult {
	r.metrics.Reconciliation("race_lost")
	log.Warnw("pending user claimed concurrently, continuing without merge", "stage", stage)
	return MergeResult{Degradation: &MergeDegradation{PendingID: pendingID, Stage: stage, RaceLost: true}}
}

func (r *Reconciler) degrade(log *zap.SugaredLogger, pendingID string, stage Stage, err error) MergeResult {
	r.metrics.Reconciliation("degraded")
	log.Warnw("merge abandoned, continuing without merge", "stage", stage, "err", err)
	return MergeResult{Degradation: &MergeDegradation{PendingID: pendingID, Stage: stage, Err: err}}
}

// fillBlanks copies src into the fields dst leaves empty.
func fillBlanks(dst, src *userentity.User) {
	fillPtr(&dst.Email, src.Email)
	fillPtr(&dst.MobileNumber, src.MobileNumber)
	fillPtr(&dst.FirstName, src.FirstName)
	fillPtr(&dst.LastName, src.LastName)
	fillPtr(&dst.Nickname, src.Nickname)
	fillPtr(&dst.SpecificRole, src.SpecificRole)
	fillPtr(&dst.HouseholdID, src.HouseholdID)
	fillPtr(&dst.Color, src.Color)
	if dst.FullName == "" {
		dst.FullName = src.FullName
	}
	if dst.Role == "" {
		dst.Role = src.Role
	}
	dst.OnboardingCompleted = dst.OnboardingCompleted || src.OnboardingCompleted
}

func fillPtr(dst **string, src *string) {
	if *dst == nil && src != nil {
		v := *src
		*dst = &v
	}
}

// finalize stamps a canonical row that is about to be written.
func finalize(u *userentity.User, now time.Time) {
	id := u.ID
	u.IdentityID = &id
	u.IsPending = false
	u.ClaimedBy, u.ClaimedAt = nil, nil
	if !u.Role.Valid() {
		u.Role = userentity.RoleAmo
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
}
