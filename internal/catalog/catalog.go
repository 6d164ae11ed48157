// Package catalog is the static vendor/model table the Provider Registry
// consults for lookups and cost calculation. It is read-only at runtime,
// grounded on the shape of the teacher's model catalogue but narrowed to
// the vendors this module ships adapters for.
package catalog

import "github.com/agentrun/core/pkg/models"

var vendors = map[models.Vendor]models.VendorInfo{
	models.VendorAnthropic: {
		ID:           models.VendorAnthropic,
		DisplayName:  "Anthropic",
		DefaultModel: "claude-sonnet-4-20250514",
		OAuth:        true,
		Models: []models.ModelInfo{
			{
				ID:              "claude-sonnet-4-20250514",
				ContextWindow:   200_000,
				MaxOutputTokens: 8192,
				Capabilities:    []models.ModelCapability{models.CapTools, models.CapStreaming},
				InputCostPer1K:  0.003,
				OutputCostPer1K: 0.015,
			},
			{
				ID:              "claude-opus-4-20250514",
				ContextWindow:   200_000,
				MaxOutputTokens: 8192,
				Capabilities:    []models.ModelCapability{models.CapTools, models.CapStreaming},
				InputCostPer1K:  0.015,
				OutputCostPer1K: 0.075,
			},
			{
				ID:              "claude-haiku-3-5-20241022",
				ContextWindow:   200_000,
				MaxOutputTokens: 8192,
				Capabilities:    []models.ModelCapability{models.CapTools, models.CapStreaming},
				InputCostPer1K:  0.0008,
				OutputCostPer1K: 0.004,
			},
		},
	},
	models.VendorOpenAI: {
		ID:           models.VendorOpenAI,
		DisplayName:  "OpenAI",
		DefaultModel: "gpt-4o",
		Models: []models.ModelInfo{
			{
				ID:              "gpt-4o",
				ContextWindow:   128_000,
				MaxOutputTokens: 16_384,
				Capabilities:    []models.ModelCapability{models.CapTools, models.CapStreaming},
				InputCostPer1K:  0.0025,
				OutputCostPer1K: 0.01,
			},
			{
				ID:              "gpt-4o-mini",
				ContextWindow:   128_000,
				MaxOutputTokens: 16_384,
				Capabilities:    []models.ModelCapability{models.CapTools, models.CapStreaming},
				InputCostPer1K:  0.00015,
				OutputCostPer1K: 0.0006,
			},
		},
	},
	models.VendorBedrock: {
		ID:           models.VendorBedrock,
		DisplayName:  "AWS Bedrock",
		DefaultModel: "anthropic.claude-sonnet-4-20250514-v1:0",
		Models: []models.ModelInfo{
			{
				ID:              "anthropic.claude-sonnet-4-20250514-v1:0",
				ContextWindow:   200_000,
				MaxOutputTokens: 8192,
				Capabilities:    []models.ModelCapability{models.CapTools, models.CapStreaming},
				InputCostPer1K:  0.003,
				OutputCostPer1K: 0.015,
			},
		},
	},
}

// ListVendors returns all catalogued vendors, in a stable order.
func ListVendors() []models.VendorInfo {
	order := []models.Vendor{models.VendorAnthropic, models.VendorOpenAI, models.VendorBedrock}
	out := make([]models.VendorInfo, 0, len(order))
	for _, id := range order {
		if v, ok := vendors[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

// GetVendor looks up a vendor by id.
func GetVendor(id models.Vendor) (models.VendorInfo, bool) {
	v, ok := vendors[id]
	return v, ok
}

// ListModels returns the known models for a vendor. Absent vendors yield nil.
func ListModels(vendor models.Vendor) []models.ModelInfo {
	return vendors[vendor].Models
}

// GetModel looks up a specific model within a vendor. Unknown model ids
// are a valid miss — callers pass the id through to the adapter regardless
// and treat cost as zero.
func GetModel(vendor models.Vendor, modelID string) (models.ModelInfo, bool) {
	for _, m := range vendors[vendor].Models {
		if m.ID == modelID {
			return m, true
		}
	}
	return models.ModelInfo{}, false
}

// IsOAuthVendor reports whether the vendor authenticates via OAuth triples
// rather than a static API key.
func IsOAuthVendor(vendor models.Vendor) bool {
	return vendors[vendor].OAuth
}

// ComputeCost implements the Provider Registry's cost formula:
// (in/1000)*inCost + (out/1000)*outCost, or 0 if the model is unknown or
// unpriced (self-hosted / OAuth subscription models carry zero pricing).
func ComputeCost(vendor models.Vendor, modelID string, inputTokens, outputTokens int) float64 {
	m, ok := GetModel(vendor, modelID)
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1000.0)*m.InputCostPer1K + (float64(outputTokens)/1000.0)*m.OutputCostPer1K
}
