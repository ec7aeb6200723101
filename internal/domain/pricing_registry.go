package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Default per-1K-token USD rates for metered models.
// gpt-4o-mini: $0.15/1M input, $0.60/1M output.
// gpt-4o: $2.50/1M input, $10/1M output.
const (
	gpt4oMiniInputCostPer1K  = 0.00015
	gpt4oMiniOutputCostPer1K = 0.0006

	gpt4oInputCostPer1K  = 0.0025
	gpt4oOutputCostPer1K = 0.01
)

// InMemoryPricingRegistry stores pricing configs in memory.
type InMemoryPricingRegistry struct {
	mu      sync.RWMutex
	pricing map[string]PricingConfig
}

// NewInMemoryPricingRegistry creates a new in-memory pricing registry.
func NewInMemoryPricingRegistry() *InMemoryPricingRegistry {
	return &InMemoryPricingRegistry{
		mu:      sync.RWMutex{},
		pricing: make(map[string]PricingConfig),
	}
}

// NewDefaultPricingRegistry creates a registry pre-populated with the
// metered model rates.
func NewDefaultPricingRegistry() *InMemoryPricingRegistry {
	registry := NewInMemoryPricingRegistry()
	ctx := context.Background()

	_ = registry.RegisterPricing(ctx, "gpt-4o-mini", PricingConfig{
		InputCostPer1K:  gpt4oMiniInputCostPer1K,
		OutputCostPer1K: gpt4oMiniOutputCostPer1K,
	})
	_ = registry.RegisterPricing(ctx, "gpt-4o", PricingConfig{
		InputCostPer1K:  gpt4oInputCostPer1K,
		OutputCostPer1K: gpt4oOutputCostPer1K,
	})

	return registry
}

// GetPricing retrieves pricing for a model.
func (r *InMemoryPricingRegistry) GetPricing(
	_ context.Context,
	model string,
) (PricingConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, exists := r.pricing[model]
	if !exists {
		return PricingConfig{}, fmt.Errorf("pricing not found for model: %s", model)
	}

	return config, nil
}

// RegisterPricing adds pricing for a model.
func (r *InMemoryPricingRegistry) RegisterPricing(
	_ context.Context,
	model string,
	config PricingConfig,
) error {
	if model == "" {
		return errors.New("model cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pricing[model] = config
	return nil
}
