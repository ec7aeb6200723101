package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adaptiva/adaptiva-api/internal/domain"
)

func newMeter(t *testing.T, limitCents float64) (*domain.CostMeter, *fakeClock) {
	t.Helper()
	clock := newFakeClock(time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC))
	meter := domain.NewCostMeter(
		domain.NewDefaultPricingRegistry(),
		"gpt-4o-mini",
		limitCents,
		nil,
		clock.Now,
	)
	return meter, clock
}

func TestCostMeter_EstimateCents(t *testing.T) {
	meter, _ := newMeter(t, 20)

	tests := []struct {
		name          string
		model         string
		inputTokens   int
		outputTokens  int
		expectedCents float64
	}{
		{
			// 800/1000*0.00015 + 500/1000*0.0006 dollars = 0.042 cents
			name:          "gpt-4o-mini documented rates",
			model:         "gpt-4o-mini",
			inputTokens:   800,
			outputTokens:  500,
			expectedCents: 0.042,
		},
		{
			// 1000/1000*0.0025 + 1000/1000*0.01 dollars = 1.25 cents
			name:          "gpt-4o documented rates",
			model:         "gpt-4o",
			inputTokens:   1000,
			outputTokens:  1000,
			expectedCents: 1.25,
		},
		{
			name:          "unknown model falls back to default rates",
			model:         "some-future-model",
			inputTokens:   800,
			outputTokens:  500,
			expectedCents: 0.042,
		},
		{
			name:          "zero tokens cost nothing",
			model:         "gpt-4o-mini",
			inputTokens:   0,
			outputTokens:  0,
			expectedCents: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cents := meter.EstimateCents(tt.model, tt.inputTokens, tt.outputTokens)
			require.InDelta(t, tt.expectedCents, cents, 1e-9)
		})
	}
}

func TestCostMeter_CheckAndRecord(t *testing.T) {
	t.Run("pre-flight denies when estimate would exceed the ceiling", func(t *testing.T) {
		meter, _ := newMeter(t, 1.0)

		verdict := meter.Check("ip1", 0.5)
		require.True(t, verdict.Allowed)

		// Spend most of the budget with real usage.
		meter.Record("ip1", "gpt-4o", 300, 20) // 0.095 cents
		meter.Record("ip1", "gpt-4o", 3000, 20) // 0.77 cents

		verdict = meter.Check("ip1", 0.5)
		require.False(t, verdict.Allowed)
		require.NotEmpty(t, verdict.Message)
		require.InDelta(t, 1.0, verdict.LimitCents, 1e-9)
		require.Greater(t, verdict.UsedCents, 0.0)

		// A different IP has an untouched budget.
		require.True(t, meter.Check("ip2", 0.5).Allowed)
	})

	t.Run("stats reflect the recorded amount, not the estimate", func(t *testing.T) {
		meter, _ := newMeter(t, 20)

		// Pre-flight with a deliberately pessimistic estimate.
		require.True(t, meter.Check("ip1", 5.0).Allowed)

		charged := meter.Record("ip1", "gpt-4o-mini", 800, 500)
		require.InDelta(t, 0.042, charged, 1e-9)

		stats := meter.Stats("ip1")
		require.InDelta(t, 0.042, stats.CostCents, 1e-9)
		require.Equal(t, 1, stats.Requests)
		require.InDelta(t, 20, stats.LimitCents, 1e-9)
		require.InDelta(t, 20-0.042, stats.RemainingCents, 1e-9)
	})

	t.Run("spend resets on day rollover", func(t *testing.T) {
		meter, clock := newMeter(t, 20)

		meter.Record("ip1", "gpt-4o", 10000, 10000)
		require.Greater(t, meter.Stats("ip1").CostCents, 0.0)

		clock.Advance(24 * time.Hour)

		stats := meter.Stats("ip1")
		require.InDelta(t, 0, stats.CostCents, 1e-9)
		require.Equal(t, 0, stats.Requests)
		require.InDelta(t, 20, stats.RemainingCents, 1e-9)
	})

	t.Run("remaining is clamped at zero", func(t *testing.T) {
		meter, _ := newMeter(t, 0.01)

		meter.Record("ip1", "gpt-4o", 10000, 10000)

		stats := meter.Stats("ip1")
		require.InDelta(t, 0, stats.RemainingCents, 1e-9)
	})
}
