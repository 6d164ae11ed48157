// Package providers adapts each model vendor's wire protocol into the
// engine's fixed event alphabet (internal/llmevent). One Adapter per
// vendor; the Registry dispatches by models.Vendor and falls back to the
// static catalogue for list/cost operations.
package providers

import (
	"context"

	"github.com/agentrun/core/internal/catalog"
	"github.com/agentrun/core/internal/errkind"
	"github.com/agentrun/core/internal/llmevent"
	"github.com/agentrun/core/pkg/models"
)

// Adapter is the per-vendor streaming completion contract. Implementations
// own retrying transient transport errors; they never retry on an expired
// credential — that is the caller's job (re-resolve and call again).
type Adapter interface {
	Vendor() models.Vendor
	Stream(ctx context.Context, cred *models.Credential, model string, req llmevent.StreamRequest) (llmevent.Stream, error)
}

// Registry is the Provider Registry: it resolves a vendor to its adapter
// and exposes the catalogue lookups the orchestrator needs without callers
// importing internal/catalog directly.
type Registry struct {
	adapters map[models.Vendor]Adapter
}

// NewRegistry builds a registry from the given adapters, keyed by their
// own declared vendor.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Vendor]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Vendor()] = a
	}
	return r
}

// Get returns the adapter for vendor, or an UnknownVendor error.
func (r *Registry) Get(vendor models.Vendor) (Adapter, error) {
	a, ok := r.adapters[vendor]
	if !ok {
		return nil, errkind.New(errkind.UnknownVendor, string(vendor))
	}
	return a, nil
}

// ListVendors returns the catalogued vendors this registry knows about,
// restricted to ones with a wired adapter.
func (r *Registry) ListVendors() []models.VendorInfo {
	all := catalog.ListVendors()
	out := make([]models.VendorInfo, 0, len(all))
	for _, v := range all {
		if _, ok := r.adapters[v.ID]; ok {
			out = append(out, v)
		}
	}
	return out
}

// ListModels delegates to the static catalogue.
func (r *Registry) ListModels(vendor models.Vendor) []models.ModelInfo {
	return catalog.ListModels(vendor)
}

// ComputeCost delegates to the static catalogue.
func (r *Registry) ComputeCost(vendor models.Vendor, modelID string, inputTokens, outputTokens int) float64 {
	return catalog.ComputeCost(vendor, modelID, inputTokens, outputTokens)
}
