package intelligence_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/powermem/pkg/intelligence"
)

func TestEbbinghausManager(t *testing.T) {
	decayRate := 0.1
	reinforcementFactor := 0.3

	manager := intelligence.NewEbbinghausManager(decayRate, reinforcementFactor)
	assert.NotNil(t, manager)
}

func TestCalculateRetention(t *testing.T) {
	decayRate := 0.1
	reinforcementFactor := 0.3

	manager := intelligence.NewEbbinghausManager(decayRate, reinforcementFactor)

	// Test initial strength (just created)
	createdAt := time.Now()
	retention := manager.CalculateRetention(createdAt, nil)
	assert.Greater(t, retention, 0.0, "Retention strength should be greater than 0")
	assert.LessOrEqual(t, retention, 1.0, "Retention strength should not exceed 1.0")

	// Test time decay (1 day later)
	createdAt = time.Now().Add(-24 * time.Hour)
	retention = manager.CalculateRetention(createdAt, nil)
	assert.Less(t, retention, 1.0, "Time decay should reduce strength")
	assert.Greater(t, retention, 0.0, "Strength should be greater than 0")

	// Test access reinforcement
	currentStrength := 0.5
	reinforced := manager.Reinforce(currentStrength)
	assert.Greater(t, reinforced, currentStrength, "Reinforcement should increase strength")
	assert.LessOrEqual(t, reinforced, 1.0, "Strength should not exceed 1.0")
}

func TestEbbinghausDecay(t *testing.T) {
	decayRate := 0.1
	reinforcementFactor := 0.3

	manager := intelligence.NewEbbinghausManager(decayRate, reinforcementFactor)

	// Test decay at different time points
	now := time.Now()
	testCases := []struct {
		hoursAgo  float64
		wantLower bool
	}{
		{0, false},
		{1, true},
		{24, true},
		{168, true}, // 1 week
	}

	for _, tc := range testCases {
		createdAt := now.Add(-time.Duration(tc.hoursAgo) * time.Hour)
		retention := manager.CalculateRetention(createdAt, nil)
		if tc.wantLower {
			assert.Less(t, retention, 1.0,
				"Strength should decrease after %v hours", tc.hoursAgo)
		}
		assert.Greater(t, retention, 0.0, "Strength should always be greater than 0")
		assert.LessOrEqual(t, retention, 1.0, "Strength should not exceed 1.0")
	}
}

func TestReinforcementFactor(t *testing.T) {
	decayRate := 0.1
	reinforcementFactor := 0.3

	manager := intelligence.NewEbbinghausManager(decayRate, reinforcementFactor)

	// Test reinforcement function
	currentStrength := 0.5
	reinforced := manager.Reinforce(currentStrength)

	assert.Greater(t, reinforced, currentStrength,
		"Reinforcement should increase memory strength")
	assert.LessOrEqual(t, reinforced, 1.0, "Strength should not exceed 1.0")
}

func TestEbbinghausEdgeCases(t *testing.T) {
	decayRate := 0.1
	reinforcementFactor := 0.3

	manager := intelligence.NewEbbinghausManager(decayRate, reinforcementFactor)

	// Test edge cases
	now := time.Now()

	// Created a long time ago
	oldCreatedAt := now.Add(-1000 * time.Hour)
	retention := manager.CalculateRetention(oldCreatedAt, nil)
	assert.Greater(t, retention, 0.0)
	assert.Less(t, retention, 1.0)

	// Test reinforcement upper limit
	highStrength := 0.99
	reinforced := manager.Reinforce(highStrength)
	assert.LessOrEqual(t, reinforced, 1.0, "Should not exceed 1.0 after reinforcement")
}

func TestDecayMatchesForgettingCurve(t *testing.T) {
	// Zero decay rate selects the default constant, fitted so that one
	// hour after review retention sits at ~44%.
	manager := intelligence.NewEbbinghausManager(0, 0.4)

	now := time.Now()
	oneHourAgo := now.Add(-1 * time.Hour)
	retention := manager.Decay(1.0, oneHourAgo, now)
	assert.InDelta(t, 0.44, retention, 0.02)

	// A day out the curve has bottomed at the retention floor.
	dayAgo := now.Add(-24 * time.Hour)
	retention = manager.Decay(1.0, dayAgo, now)
	assert.Equal(t, intelligence.MinRetention, retention)

	// Reinforcement at the one-hour point pulls retention back up.
	reinforced := manager.Reinforce(manager.Decay(1.0, oneHourAgo, now))
	assert.GreaterOrEqual(t, reinforced, 0.66)
}

func TestDecayClampsToUnitRange(t *testing.T) {
	manager := intelligence.NewEbbinghausManager(0, 0.3)
	now := time.Now()

	// An initial above 1.0 is clamped down.
	assert.Equal(t, 1.0, manager.Decay(1.5, now, now))

	// Future last-reviewed timestamps do not inflate retention.
	assert.Equal(t, 1.0, manager.Decay(1.0, now.Add(time.Hour), now))
}

func TestPromoteTypeRequiresReviews(t *testing.T) {
	manager := intelligence.NewEbbinghausManager(0, 0.3)

	// High retention alone is not enough for long_term.
	assert.Equal(t, "short_term", manager.PromoteType(0.9, 0))
	assert.Equal(t, "short_term", manager.PromoteType(0.9, 1))
	assert.Equal(t, "long_term", manager.PromoteType(0.9, 2))

	assert.Equal(t, "short_term", manager.PromoteType(0.7, 5))
	assert.Equal(t, "working", manager.PromoteType(0.3, 5))
}

func TestShouldForgetThreshold(t *testing.T) {
	manager := intelligence.NewEbbinghausManager(0, 0.3)
	assert.True(t, manager.ShouldForget(0.19))
	assert.False(t, manager.ShouldForget(0.2))
	assert.False(t, manager.ShouldForget(0.9))
}

func TestGenerateReviewSchedule(t *testing.T) {
	manager := intelligence.NewEbbinghausManager(0, 0.3)
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	schedule := manager.GenerateReviewSchedule(createdAt)
	require.Len(t, schedule, 5)

	wantOffsets := []time.Duration{
		1 * time.Hour,
		5 * time.Hour,
		24 * time.Hour,
		72 * time.Hour,
		168 * time.Hour,
	}
	for i, offset := range wantOffsets {
		assert.Equal(t, createdAt.Add(offset), schedule[i])
	}

	// NextReview returns the earliest future checkpoint.
	next := manager.NextReview(schedule, createdAt.Add(2*time.Hour))
	assert.Equal(t, createdAt.Add(5*time.Hour), next)

	// Exhausted schedules return the zero time.
	assert.True(t, manager.NextReview(schedule, createdAt.Add(200*time.Hour)).IsZero())
}

func TestRetentionInfoRoundTrip(t *testing.T) {
	manager := intelligence.NewEbbinghausManager(0, 0.3)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	info := intelligence.NewRetentionInfo(manager, 1.0, now)
	assert.Equal(t, 1.0, info.InitialRetention)
	assert.Equal(t, "long_term", info.MemoryType)
	assert.Equal(t, now.Add(time.Hour), info.NextReview)

	metadata := map[string]interface{}{"source": "conversation"}
	info.ToMetadata(metadata)

	restored, ok := intelligence.RetentionFromMetadata(metadata)
	require.True(t, ok)
	assert.Equal(t, info.InitialRetention, restored.InitialRetention)
	assert.Equal(t, info.CurrentRetention, restored.CurrentRetention)
	assert.Equal(t, info.MemoryType, restored.MemoryType)
	assert.Equal(t, info.ReviewCount, restored.ReviewCount)
	assert.Equal(t, info.AccessCount, restored.AccessCount)
	assert.True(t, info.LastReviewed.Equal(restored.LastReviewed))
	assert.True(t, info.NextReview.Equal(restored.NextReview))
	require.Len(t, restored.ReviewSchedule, 5)

	// A JSON round trip (what every SQL backend does to metadata) must
	// also restore the block.
	blob, err := json.Marshal(metadata)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(blob, &decoded))

	restored, ok = intelligence.RetentionFromMetadata(decoded)
	require.True(t, ok)
	assert.Equal(t, info.ReviewCount, restored.ReviewCount)
	assert.InDelta(t, info.CurrentRetention, restored.CurrentRetention, 1e-9)
	require.Len(t, restored.ReviewSchedule, 5)
}

func TestRetentionInfoLowImportanceSeed(t *testing.T) {
	manager := intelligence.NewEbbinghausManager(0, 0.3)
	now := time.Now()

	// initial_retention = 0.5 + 0.5 * importance
	info := intelligence.NewRetentionInfo(manager, 0.0, now)
	assert.Equal(t, 0.5, info.InitialRetention)

	info = intelligence.NewRetentionInfo(manager, 0.65, now)
	assert.InDelta(t, 0.825, info.InitialRetention, 1e-9)
}

func TestRetentionCountersMonotonic(t *testing.T) {
	manager := intelligence.NewEbbinghausManager(0, 0.3)
	now := time.Now()
	info := intelligence.NewRetentionInfo(manager, 0.8, now)

	for i := 1; i <= 5; i++ {
		prevAccess := info.AccessCount
		prevReview := info.ReviewCount
		info.Reinforce(manager, now.Add(time.Duration(i)*time.Hour))
		assert.Greater(t, info.AccessCount, prevAccess)
		assert.GreaterOrEqual(t, info.ReviewCount, prevReview)
	}

	prevReview := info.ReviewCount
	info.MarkReviewed(manager, now.Add(10*time.Hour))
	assert.Equal(t, prevReview+1, info.ReviewCount)
}
