package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"reservation-sync-backend/internal/model"
	"reservation-sync-backend/internal/store"
)

// ErrNotConfigured indicates that no usable PMS credentials exist for the
// requested branch or organization. This is fatal for the affected tenant
// and never retried.
var ErrNotConfigured = errors.New("lobbypms is not configured")

const defaultAPIURL = "https://api.lobbypms.com"

// Settings is one resolved credential set the PMS client binds to.
// Inherited is true when the credentials came from the organization level
// rather than the branch itself.
type Settings struct {
	APIBaseURL     string
	APIKey         string
	PropertyID     string
	SyncEnabled    bool
	OrganizationID int64
	BranchID       int64
	Inherited      bool
}

// Resolver loads and decrypts PMS credentials. Branch-level settings, when
// present and carrying an API key, fully shadow organization-level settings;
// the organization is the fallback. Resolved settings are cached briefly
// since the schedulers re-resolve on every tick.
type Resolver struct {
	store  store.Store
	cipher *Cipher
	log    *zap.SugaredLogger
	cache  *cache.Cache
}

// NewResolver creates a settings resolver.
func NewResolver(st store.Store, cipher *Cipher, log *zap.SugaredLogger) *Resolver {
	return &Resolver{
		store:  st,
		cipher: cipher,
		log:    log,
		cache:  cache.New(5*time.Minute, 10*time.Minute),
	}
}

// ForBranch resolves settings for a branch, falling back to the branch's
// organization when the branch carries no usable credentials. A branch blob
// that fails to decrypt is logged and treated as absent rather than
// aborting resolution.
func (r *Resolver) ForBranch(ctx context.Context, branchID int64) (*Settings, error) {
	cacheKey := fmt.Sprintf("branch:%d", branchID)
	if cached, found := r.cache.Get(cacheKey); found {
		return cached.(*Settings), nil
	}

	branch, err := r.store.GetBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}

	if len(branch.LobbyPmsSettings) > 0 {
		branchSettings, err := r.cipher.DecryptBranchSettings(branch.LobbyPmsSettings)
		if err != nil {
			// Deliberate collapse: an unreadable branch blob falls through
			// to the organization level instead of failing the branch.
			r.log.Warnw("failed to decrypt branch settings, falling back to organization",
				"branchId", branchID, "error", err)
		} else if branchSettings.APIKey != "" {
			resolved := r.fromLobbyPms(branchSettings, branch.OrganizationID, branchID)
			r.cache.Set(cacheKey, resolved, cache.DefaultExpiration)
			return resolved, nil
		}
	}

	resolved, err := r.ForOrganization(ctx, branch.OrganizationID)
	if err != nil {
		return nil, err
	}
	withBranch := *resolved
	withBranch.BranchID = branchID
	withBranch.Inherited = true
	r.cache.Set(cacheKey, &withBranch, cache.DefaultExpiration)
	return &withBranch, nil
}

// ForOrganization resolves organization-level settings. Missing or keyless
// settings are a configuration error.
func (r *Resolver) ForOrganization(ctx context.Context, organizationID int64) (*Settings, error) {
	cacheKey := fmt.Sprintf("org:%d", organizationID)
	if cached, found := r.cache.Get(cacheKey); found {
		return cached.(*Settings), nil
	}

	org, err := r.store.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if len(org.Settings) == 0 {
		return nil, fmt.Errorf("organization %d: %w", organizationID, ErrNotConfigured)
	}

	orgSettings, err := r.cipher.DecryptOrganizationSettings(org.Settings)
	if err != nil {
		return nil, fmt.Errorf("organization %d settings unreadable: %w", organizationID, err)
	}
	if orgSettings.LobbyPms == nil || orgSettings.LobbyPms.APIKey == "" {
		return nil, fmt.Errorf("organization %d has no API key: %w", organizationID, ErrNotConfigured)
	}

	resolved := r.fromLobbyPms(orgSettings.LobbyPms, organizationID, 0)
	r.cache.Set(cacheKey, resolved, cache.DefaultExpiration)
	return resolved, nil
}

// BranchSettings decrypts a branch's own settings blob without any
// fallback. Used by branch resolution, where each branch is inspected
// individually.
func (r *Resolver) BranchSettings(branch *model.Branch) (*LobbyPmsSettings, error) {
	if len(branch.LobbyPmsSettings) == 0 {
		return nil, fmt.Errorf("branch %d: %w", branch.ID, ErrNotConfigured)
	}
	return r.cipher.DecryptBranchSettings(branch.LobbyPmsSettings)
}

// Invalidate drops cached settings for a branch, e.g. after the admin
// surface rewrites credentials.
func (r *Resolver) Invalidate(branchID int64) {
	r.cache.Delete(fmt.Sprintf("branch:%d", branchID))
}

func (r *Resolver) fromLobbyPms(s *LobbyPmsSettings, organizationID, branchID int64) *Settings {
	return &Settings{
		APIBaseURL:     NormalizeBaseURL(s.APIURL),
		APIKey:         s.APIKey,
		PropertyID:     s.PropertyID,
		SyncEnabled:    s.SyncEnabled == nil || *s.SyncEnabled,
		OrganizationID: organizationID,
		BranchID:       branchID,
	}
}

// NormalizeBaseURL fixes the two recurring misconfigurations in stored API
// URLs: the app front-end host instead of the API host, and a trailing /api
// segment (call sites always append the full versioned path themselves).
func NormalizeBaseURL(apiURL string) string {
	if apiURL == "" {
		return defaultAPIURL
	}
	if strings.Contains(apiURL, "app.lobbypms.com") {
		apiURL = strings.Replace(apiURL, "app.lobbypms.com", "api.lobbypms.com", 1)
	}
	apiURL = strings.TrimSuffix(apiURL, "/api")
	return apiURL
}
