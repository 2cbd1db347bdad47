// Package intelligence provides intelligent memory management features including
// deduplication, Ebbinghaus forgetting curve, and importance evaluation.
package intelligence

import (
	"math"
	"time"
)

// DefaultDecayConstant is -ln(0.44), the decay constant that puts
// retention at ~44% one hour after the last review, matching the
// steep head of the Ebbinghaus curve.
var DefaultDecayConstant = -math.Log(0.44)

// MinRetention is the floor retention never decays below. A memory that
// has decayed to the floor is a candidate for forgetting, not silently
// erased.
const MinRetention = 0.2

// defaultReviewIntervals are the spaced-repetition checkpoints, in hours
// after creation.
var defaultReviewIntervals = []float64{1, 5, 24, 72, 168}

// EbbinghausManager manages memory retention using the Ebbinghaus forgetting curve.
//
// It implements:
//   - Retention decay based on time since last review
//   - Memory reinforcement on access
//   - Memory type classification and promotion (working, short_term, long_term)
//   - Spaced-repetition review scheduling
//
// Example usage:
//
//	manager := NewEbbinghausManager(0, 0.3) // 0 decay rate = default constant
//	retention := manager.CalculateRetention(createdAt, lastAccessedAt)
//	if manager.PromoteType(retention, reviewCount) == "long_term" {
//	    // Promote memory to higher tier
//	}
type EbbinghausManager struct {
	// decayRate is the exponential decay constant applied per hour since
	// the last review. Defaults to DefaultDecayConstant when zero.
	decayRate float64

	// reinforcementFactor determines how much memories are strengthened on access.
	// Higher values mean stronger reinforcement. Typical range: 0.2-0.5
	reinforcementFactor float64

	// forgetThreshold marks memories as forgettable once retention falls
	// below it. Default 0.2.
	forgetThreshold float64

	// shortTermThreshold is the lower bound of the short_term band. Default 0.6.
	shortTermThreshold float64

	// longTermThreshold is the lower bound of the long_term band. Default 0.8.
	longTermThreshold float64

	// initialRetention is the strength CalculateRetention decays from.
	// Default 1.0. NewRetentionInfo does not use it; new retention blocks
	// are seeded from the importance score.
	initialRetention float64

	// reviewIntervals defines the review checkpoints in hours after creation.
	reviewIntervals []float64
}

// NewEbbinghausManager creates a new Ebbinghaus forgetting curve manager.
//
// Parameters:
//   - decayRate: Hourly decay constant; 0 selects DefaultDecayConstant
//   - reinforcementFactor: How much memories strengthen on access (0.2-0.5 recommended)
//
// Returns a new EbbinghausManager with default thresholds:
//   - forgetThreshold: 0.2
//   - shortTermThreshold: 0.6
//   - longTermThreshold: 0.8
//   - initialRetention: 1.0
func NewEbbinghausManager(decayRate, reinforcementFactor float64) *EbbinghausManager {
	return NewEbbinghausManagerWithConfig(decayRate, reinforcementFactor, 0.2, 0.6, 0.8, 1.0)
}

// NewEbbinghausManagerWithConfig creates a new Ebbinghaus manager with custom thresholds.
func NewEbbinghausManagerWithConfig(
	decayRate, reinforcementFactor float64,
	forgetThreshold, shortTermThreshold, longTermThreshold, initialRetention float64,
) *EbbinghausManager {
	if decayRate <= 0 {
		decayRate = DefaultDecayConstant
	}
	if reinforcementFactor <= 0 {
		reinforcementFactor = 0.3
	}
	if forgetThreshold <= 0 {
		forgetThreshold = 0.2
	}
	if shortTermThreshold <= 0 {
		shortTermThreshold = 0.6
	}
	if longTermThreshold <= 0 {
		longTermThreshold = 0.8
	}
	if initialRetention <= 0 {
		initialRetention = 1.0
	}
	return &EbbinghausManager{
		decayRate:           decayRate,
		reinforcementFactor: reinforcementFactor,
		forgetThreshold:     forgetThreshold,
		shortTermThreshold:  shortTermThreshold,
		longTermThreshold:   longTermThreshold,
		initialRetention:    initialRetention,
		reviewIntervals:     defaultReviewIntervals,
	}
}

// Decay computes the retention at time now for a memory whose retention
// was initial at lastReviewed:
//
//	retention = clamp(initial * e^(-decay_rate * hours_since_review), MinRetention, 1.0)
func (m *EbbinghausManager) Decay(initial float64, lastReviewed, now time.Time) float64 {
	hours := now.Sub(lastReviewed).Hours()
	if hours < 0 {
		hours = 0
	}
	retention := initial * math.Exp(-m.decayRate*hours)
	if retention > 1.0 {
		return 1.0
	}
	if retention < MinRetention {
		return MinRetention
	}
	return retention
}

// CalculateRetention calculates the current retention strength of a memory,
// decaying from the manager's initial retention since the last access
// (or creation, if never accessed).
func (m *EbbinghausManager) CalculateRetention(createdAt time.Time, lastAccessedAt *time.Time) float64 {
	since := createdAt
	if lastAccessedAt != nil {
		since = *lastAccessedAt
	}
	return m.Decay(m.initialRetention, since, time.Now())
}

// Reinforce strengthens a memory when it is accessed.
//
// The reinforcement formula is:
//
//	new_strength = min(1.0, current_strength + reinforcement_factor * (1 - current_strength))
//
// Memories with low strength get more reinforcement; strength is capped at 1.0.
func (m *EbbinghausManager) Reinforce(currentStrength float64) float64 {
	newStrength := currentStrength + m.reinforcementFactor*(1.0-currentStrength)
	if newStrength > 1.0 {
		return 1.0
	}
	return newStrength
}

// ClassifyMemoryType classifies a memory based on its retention strength alone.
//
//   - "long_term": retention >= longTermThreshold
//   - "short_term": shortTermThreshold <= retention < longTermThreshold
//   - "working": retention < shortTermThreshold
func (m *EbbinghausManager) ClassifyMemoryType(retentionStrength float64) string {
	if retentionStrength >= m.longTermThreshold {
		return "long_term"
	} else if retentionStrength >= m.shortTermThreshold {
		return "short_term"
	}
	return "working"
}

// PromoteType decides a memory's type from retention and review history.
// Promotion to long_term additionally requires the memory to have
// survived at least two reviews.
func (m *EbbinghausManager) PromoteType(retentionStrength float64, reviewCount int) string {
	if retentionStrength >= m.longTermThreshold && reviewCount >= 2 {
		return "long_term"
	}
	if retentionStrength >= m.shortTermThreshold {
		return "short_term"
	}
	return "working"
}

// ShouldForget reports whether a memory's retention has fallen below the
// forget threshold.
func (m *EbbinghausManager) ShouldForget(retentionStrength float64) bool {
	return retentionStrength < m.forgetThreshold
}

// ShouldPromote determines if a memory should be promoted to a higher tier.
//
// A memory is promoted if it is frequently accessed, has survived its
// initial 24 hours, or carries a high importance score.
func (m *EbbinghausManager) ShouldPromote(memory map[string]interface{}) bool {
	if accessCount, ok := memory["access_count"].(int); ok && accessCount >= 3 {
		return true
	}

	if createdAt, ok := memory["created_at"].(time.Time); ok {
		if time.Since(createdAt) > 24*time.Hour {
			return true
		}
	}

	if importance, ok := memory["importance_score"].(float64); ok {
		if importance >= m.shortTermThreshold {
			return true
		}
	}

	return false
}

// ShouldArchive determines if a memory should be archived: very old, or
// of low importance.
func (m *EbbinghausManager) ShouldArchive(memory map[string]interface{}) bool {
	if createdAt, ok := memory["created_at"].(time.Time); ok {
		if time.Since(createdAt) > 30*24*time.Hour {
			return true
		}
	}

	if importance, ok := memory["importance_score"].(float64); ok {
		if importance < m.forgetThreshold {
			return true
		}
	}

	return false
}

// GenerateReviewSchedule generates the spaced-repetition review times for
// a memory created at createdAt: one checkpoint per configured interval.
func (m *EbbinghausManager) GenerateReviewSchedule(createdAt time.Time) []time.Time {
	reviewTimes := make([]time.Time, len(m.reviewIntervals))
	for i, interval := range m.reviewIntervals {
		reviewTimes[i] = createdAt.Add(time.Duration(interval * float64(time.Hour)))
	}
	return reviewTimes
}

// NextReview returns the earliest schedule entry after now, or zero time
// when the schedule is exhausted.
func (m *EbbinghausManager) NextReview(schedule []time.Time, now time.Time) time.Time {
	for _, t := range schedule {
		if t.After(now) {
			return t
		}
	}
	return time.Time{}
}

// CalculateNextReview calculates an ad-hoc next review time from the
// current retention strength, used when a memory has exhausted its
// fixed schedule:
//
//	hours_until_review = 24 * (1 + strength * 10)
//
// Strong memories get long intervals (up to ~11 days); weak ones are
// reviewed within a day.
func (m *EbbinghausManager) CalculateNextReview(retentionStrength float64) time.Time {
	hoursUntilReview := 24.0 * (1.0 + retentionStrength*10.0)
	return time.Now().Add(time.Duration(hoursUntilReview * float64(time.Hour)))
}

// GetDecayRateForType returns the decay rate for a specific memory type.
//
// Working memory decays fastest; long-term memory decays at the base rate.
func (m *EbbinghausManager) GetDecayRateForType(memoryType string) float64 {
	switch memoryType {
	case "working":
		return m.decayRate * 2.0
	case "short_term":
		return m.decayRate * 1.5
	case "long_term":
		return m.decayRate
	default:
		return m.decayRate
	}
}

// ReinforcementFactor exposes the configured reinforcement factor, used
// when seeding a new memory's retention block.
func (m *EbbinghausManager) ReinforcementFactor() float64 {
	return m.reinforcementFactor
}

// ShouldArchiveByThreshold checks retention against an explicit threshold.
func (m *EbbinghausManager) ShouldArchiveByThreshold(retentionStrength float64, threshold float64) bool {
	if threshold == 0 {
		threshold = m.forgetThreshold
	}
	return retentionStrength < threshold
}
