// Package credentials implements the Credential Resolver: it turns a
// (user, vendor) pair into a usable Credential, refreshing expired OAuth
// triples through golang.org/x/oauth2 and deduplicating concurrent
// refreshes for the same pair so two simultaneous turns never race two
// refresh requests against the vendor.
package credentials

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/agentrun/core/internal/errkind"
	"github.com/agentrun/core/internal/retry"
	"github.com/agentrun/core/pkg/models"
)

// Store is the narrow repository interface the resolver needs. The
// relational store behind it is out of scope; this is the only seam the
// resolver touches.
type Store interface {
	GetCredential(ctx context.Context, userID string, vendor models.Vendor) (*models.Credential, error)
	SaveCredential(ctx context.Context, cred *models.Credential) error
}

// Clock is injectable for tests; defaults to time.Now.
type Clock func() time.Time

// Resolver resolves and, on ResolveAsync, refreshes vendor credentials.
type Resolver struct {
	store       Store
	oauthConfig map[models.Vendor]*oauth2.Config
	staticKeys  map[models.Vendor]string
	retryPolicy retry.Policy
	now         Clock

	mu       sync.Mutex
	inflight map[string]*refreshCall
}

type refreshCall struct {
	done chan struct{}
	cred *models.Credential
	err  error
}

// Option configures a Resolver at construction.
type Option func(*Resolver)

// WithOAuthConfig registers the oauth2.Config used to refresh tokens for
// vendor. Vendors without a registered config are treated as static-key-only.
func WithOAuthConfig(vendor models.Vendor, cfg *oauth2.Config) Option {
	return func(r *Resolver) { r.oauthConfig[vendor] = cfg }
}

// WithStaticKey overrides whatever the store holds for vendor with a fixed
// API key, e.g. from process environment, bypassing the store entirely.
func WithStaticKey(vendor models.Vendor, key string) Option {
	return func(r *Resolver) { r.staticKeys[vendor] = key }
}

// WithRetryPolicy overrides the default retry policy used for refresh attempts.
func WithRetryPolicy(p retry.Policy) Option {
	return func(r *Resolver) { r.retryPolicy = p }
}

// WithClock overrides the resolver's notion of "now", for tests.
func WithClock(c Clock) Option {
	return func(r *Resolver) { r.now = c }
}

// NewResolver builds a Resolver backed by store.
func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:       store,
		oauthConfig: map[models.Vendor]*oauth2.Config{},
		staticKeys:  map[models.Vendor]string{},
		retryPolicy: retry.DefaultPolicy(),
		now:         time.Now,
		inflight:    map[string]*refreshCall{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the credential for (userID, vendor) without attempting a
// refresh — callers that only need to know "is there a credential at all",
// or that are fine using a possibly-expired OAuth token, use this.
func (r *Resolver) Resolve(ctx context.Context, userID string, vendor models.Vendor) (*models.Credential, error) {
	if key, ok := r.staticKeys[vendor]; ok {
		return &models.Credential{UserID: userID, Vendor: vendor, APIKey: key}, nil
	}
	cred, err := r.store.GetCredential(ctx, userID, vendor)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, errkind.New(errkind.CredentialMissing, "no credential for "+string(vendor))
	}
	return cred, nil
}

// ResolveAsync returns a usable credential, refreshing an expired OAuth
// token first. Concurrent callers for the same (userID, vendor) share one
// refresh attempt. A refresh failure is non-fatal: the stale credential is
// still returned alongside a RefreshFailure error so the caller can decide
// whether to proceed (the adapter call may still succeed, or fail with its
// own 401, which is a separate concern).
func (r *Resolver) ResolveAsync(ctx context.Context, userID string, vendor models.Vendor) (*models.Credential, error) {
	if key, ok := r.staticKeys[vendor]; ok {
		return &models.Credential{UserID: userID, Vendor: vendor, APIKey: key}, nil
	}

	cred, err := r.store.GetCredential(ctx, userID, vendor)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, errkind.New(errkind.CredentialMissing, "no credential for "+string(vendor))
	}
	if !cred.IsOAuth() {
		return cred, nil
	}

	cfg, ok := r.oauthConfig[vendor]
	if !ok {
		// No refresh path registered. Without a TokenSource to defer to,
		// the best this can do is report whether the cached token looks
		// expired; hand it back either way.
		if cred.OAuth.Expired(r.now()) {
			return cred, errkind.New(errkind.RefreshFailure, "no oauth config registered for "+string(vendor))
		}
		return cred, nil
	}

	return r.refreshDeduped(ctx, userID, vendor, cred, cfg)
}

func (r *Resolver) refreshDeduped(ctx context.Context, userID string, vendor models.Vendor, stale *models.Credential, cfg *oauth2.Config) (*models.Credential, error) {
	key := userID + "|" + string(vendor)

	r.mu.Lock()
	if call, ok := r.inflight[key]; ok {
		r.mu.Unlock()
		<-call.done
		return call.cred, call.err
	}
	call := &refreshCall{done: make(chan struct{})}
	r.inflight[key] = call
	r.mu.Unlock()

	call.cred, call.err = r.doRefresh(ctx, userID, vendor, stale, cfg)

	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()
	close(call.done)

	return call.cred, call.err
}

// doRefresh hands the cached token to an oauth2.ReuseTokenSource and lets it
// decide whether the token is still valid or needs exchanging for a new one;
// this resolver never computes expiry itself for a credential with a
// registered Config. A token the source judges still valid comes back
// unchanged and nothing is written to the store.
func (r *Resolver) doRefresh(ctx context.Context, userID string, vendor models.Vendor, stale *models.Credential, cfg *oauth2.Config) (*models.Credential, error) {
	token := &oauth2.Token{
		AccessToken:  stale.OAuth.Access,
		RefreshToken: stale.OAuth.Refresh,
		Expiry:       stale.OAuth.Expires,
	}

	result, err := retry.WithBackoff(ctx, r.retryPolicy, 3, func(_ int) (*oauth2.Token, error) {
		source := cfg.TokenSource(ctx, token)
		return source.Token()
	})
	refreshed := result.Value
	if err != nil {
		return stale, errkind.Wrap(errkind.RefreshFailure, "oauth refresh failed for "+string(vendor), err)
	}
	if refreshed.AccessToken == token.AccessToken {
		return stale, nil
	}

	updated := &models.Credential{
		ID:     stale.ID,
		UserID: userID,
		Vendor: vendor,
		OAuth: &models.OAuthTokenTriple{
			Access:  refreshed.AccessToken,
			Refresh: refreshed.RefreshToken,
			Expires: refreshed.Expiry,
		},
	}
	if updated.OAuth.Refresh == "" {
		updated.OAuth.Refresh = stale.OAuth.Refresh
	}

	if err := r.store.SaveCredential(ctx, updated); err != nil {
		return updated, errkind.Wrap(errkind.RefreshFailure, "failed to persist refreshed token", err)
	}
	return updated, nil
}
