package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"reservation-sync-backend/internal/model"
	"reservation-sync-backend/internal/settings"
	"reservation-sync-backend/internal/store"
)

// BranchResolver maps a PMS property to the local branch it belongs to.
// Organizations can run several branches against the same PMS account, so
// attribution cannot assume a 1:1 property/branch relationship.
type BranchResolver struct {
	store    store.Store
	settings *settings.Resolver
	log      *zap.SugaredLogger
}

// NewBranchResolver creates a branch resolver.
func NewBranchResolver(st store.Store, res *settings.Resolver, log *zap.SugaredLogger) *BranchResolver {
	return &BranchResolver{store: st, settings: res, log: log}
}

// ResolveBranch finds the branch within an organization whose stored
// credentials match the given property. Matching runs in two passes: an
// exact pass requiring both property id and API key to match, then a loose
// pass on property id alone. Within a pass, ties go to the branch with the
// lowest id. Branches whose settings cannot be decrypted are skipped.
// Returns (nil, nil) when no branch matches.
func (r *BranchResolver) ResolveBranch(ctx context.Context, organizationID int64, propertyID, apiKey string) (*model.Branch, error) {
	if propertyID == "" {
		return nil, nil
	}

	branches, err := r.store.ListBranches(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	var loose *model.Branch
	for i := range branches {
		branch := &branches[i]
		s, err := r.settings.BranchSettings(branch)
		if err != nil {
			r.log.Debugw("skipping branch with unreadable settings",
				"branchId", branch.ID, "error", err)
			continue
		}
		if s.PropertyID != propertyID {
			continue
		}
		if apiKey != "" && s.APIKey == apiKey {
			return branch, nil
		}
		if loose == nil {
			loose = branch
		}
	}
	return loose, nil
}

// PropertyAssignments returns, per property id, the ids of all branches in
// the organization configured with it. Properties claimed by more than one
// branch are attribution hazards worth surfacing to operators.
func (r *BranchResolver) PropertyAssignments(ctx context.Context, organizationID int64) (map[string][]int64, error) {
	branches, err := r.store.ListBranches(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	assignments := make(map[string][]int64)
	for i := range branches {
		branch := &branches[i]
		s, err := r.settings.BranchSettings(branch)
		if err != nil || s.PropertyID == "" {
			continue
		}
		assignments[s.PropertyID] = append(assignments[s.PropertyID], branch.ID)
	}
	return assignments, nil
}

// OwnerForInherited decides which branch an organization-level credential
// set belongs to, so that sibling branches sharing inherited credentials do
// not all sync the same reservations. The configured property wins; with no
// property match the first branch of the organization takes ownership.
func (r *BranchResolver) OwnerForInherited(ctx context.Context, s *settings.Settings) (int64, error) {
	owner, err := r.ResolveBranch(ctx, s.OrganizationID, s.PropertyID, s.APIKey)
	if err != nil {
		return 0, err
	}
	if owner != nil {
		return owner.ID, nil
	}

	branches, err := r.store.ListBranches(ctx, s.OrganizationID)
	if err != nil {
		return 0, err
	}
	if len(branches) == 0 {
		return 0, fmt.Errorf("organization %d has no branches", s.OrganizationID)
	}
	return branches[0].ID, nil
}
