package intelligence

import (
	"time"
)

// retentionTimeLayout is the wire format for retention timestamps inside
// the metadata blob. RFC3339 in UTC keeps the blob readable and sortable
// across every backend's JSON column.
const retentionTimeLayout = time.RFC3339Nano

// RetentionInfo is the typed view of the retention block every memory
// carries in its metadata. Backends persist it as part of the opaque
// metadata JSON; the engine extracts it into this struct at read time
// and serializes it back on write, so backend schemas never change when
// the block gains fields.
type RetentionInfo struct {
	// MemoryType is one of "working", "short_term", "long_term".
	MemoryType string `json:"memory_type"`

	// InitialRetention is the strength the decay curve starts from: seeded
	// as 0.5 + 0.5*importance at creation and re-anchored on each review.
	InitialRetention float64 `json:"initial_retention"`

	// CurrentRetention is the last computed retention strength.
	CurrentRetention float64 `json:"current_retention"`

	// DecayRate is the hourly decay constant for this memory's type.
	DecayRate float64 `json:"decay_rate"`

	// ImportanceScore is the pipeline-assigned importance in [0,1].
	ImportanceScore float64 `json:"importance_score"`

	// ReinforcementFactor is the per-access retention bump factor.
	ReinforcementFactor float64 `json:"reinforcement_factor"`

	// ReviewCount only increases: the number of completed reviews.
	ReviewCount int `json:"review_count"`

	// AccessCount only increases: the number of retrievals that
	// returned this memory.
	AccessCount int `json:"access_count"`

	// LastReviewed anchors the decay curve.
	LastReviewed time.Time `json:"last_reviewed"`

	// NextReview is the earliest future entry of ReviewSchedule.
	NextReview time.Time `json:"next_review"`

	// ReviewSchedule holds the planned review checkpoints.
	ReviewSchedule []time.Time `json:"review_schedule"`

	// ShouldForget is set once CurrentRetention falls below the forget
	// threshold. The memory is a deletion candidate, not yet deleted.
	ShouldForget bool `json:"should_forget,omitempty"`
}

// NewRetentionInfo seeds the retention block for a newly created memory.
// The initial retention is 0.5 + 0.5*importance, so even a zero-importance
// fact starts at half strength while a critical one starts at full.
func NewRetentionInfo(m *EbbinghausManager, importanceScore float64, now time.Time) *RetentionInfo {
	if importanceScore < 0 {
		importanceScore = 0
	}
	if importanceScore > 1 {
		importanceScore = 1
	}
	initial := 0.5 + 0.5*importanceScore
	memoryType := m.ClassifyMemoryType(initial)
	schedule := m.GenerateReviewSchedule(now)
	return &RetentionInfo{
		MemoryType:          memoryType,
		InitialRetention:    initial,
		CurrentRetention:    initial,
		DecayRate:           m.GetDecayRateForType(memoryType),
		ImportanceScore:     importanceScore,
		ReinforcementFactor: m.ReinforcementFactor(),
		ReviewCount:         0,
		AccessCount:         0,
		LastReviewed:        now,
		NextReview:          m.NextReview(schedule, now),
		ReviewSchedule:      schedule,
	}
}

// Refresh recomputes CurrentRetention at now from the decay curve, and
// re-evaluates the memory type and forget flag. Counters are untouched.
func (r *RetentionInfo) Refresh(m *EbbinghausManager, now time.Time) {
	r.CurrentRetention = m.Decay(r.InitialRetention, r.LastReviewed, now)
	r.MemoryType = m.PromoteType(r.CurrentRetention, r.ReviewCount)
	r.ShouldForget = m.ShouldForget(r.CurrentRetention)
}

// Reinforce applies the access-time reinforcement rule: retention moves
// toward 1.0, the access counter increments, and the decay curve is
// re-anchored at now.
func (r *RetentionInfo) Reinforce(m *EbbinghausManager, now time.Time) {
	r.CurrentRetention = m.Reinforce(r.CurrentRetention)
	r.InitialRetention = r.CurrentRetention
	r.AccessCount++
	r.LastReviewed = now
	r.NextReview = m.NextReview(r.ReviewSchedule, now)
	r.ShouldForget = false
}

// MarkReviewed records a completed review at now: the review counter
// increments, retention is reinforced, and the memory may be promoted.
func (r *RetentionInfo) MarkReviewed(m *EbbinghausManager, now time.Time) {
	r.ReviewCount++
	r.Reinforce(m, now)
	r.MemoryType = m.PromoteType(r.CurrentRetention, r.ReviewCount)
}

// ToMetadata writes the retention block into a metadata map under the
// "retention" key, with timestamps rendered as RFC3339 strings.
func (r *RetentionInfo) ToMetadata(metadata map[string]interface{}) {
	schedule := make([]interface{}, len(r.ReviewSchedule))
	for i, t := range r.ReviewSchedule {
		schedule[i] = t.UTC().Format(retentionTimeLayout)
	}
	block := map[string]interface{}{
		"memory_type":          r.MemoryType,
		"initial_retention":    r.InitialRetention,
		"current_retention":    r.CurrentRetention,
		"decay_rate":           r.DecayRate,
		"importance_score":     r.ImportanceScore,
		"reinforcement_factor": r.ReinforcementFactor,
		"review_count":         r.ReviewCount,
		"access_count":         r.AccessCount,
		"last_reviewed":        r.LastReviewed.UTC().Format(retentionTimeLayout),
		"review_schedule":      schedule,
	}
	if !r.NextReview.IsZero() {
		block["next_review"] = r.NextReview.UTC().Format(retentionTimeLayout)
	}
	if r.ShouldForget {
		block["should_forget"] = true
	}
	metadata["retention"] = block
}

// RetentionFromMetadata extracts the retention block from a metadata map.
// Returns false when the memory carries no block (e.g. created before
// intelligent features were enabled). Numeric fields tolerate both the
// in-process types and the float64/string forms a JSON round-trip
// produces.
func RetentionFromMetadata(metadata map[string]interface{}) (*RetentionInfo, bool) {
	raw, ok := metadata["retention"]
	if !ok {
		return nil, false
	}
	block, ok := raw.(map[string]interface{})
	if !ok {
		return nil, false
	}

	r := &RetentionInfo{}
	r.MemoryType, _ = block["memory_type"].(string)
	r.InitialRetention = asFloat64(block["initial_retention"])
	r.CurrentRetention = asFloat64(block["current_retention"])
	r.DecayRate = asFloat64(block["decay_rate"])
	r.ImportanceScore = asFloat64(block["importance_score"])
	r.ReinforcementFactor = asFloat64(block["reinforcement_factor"])
	r.ReviewCount = int(asFloat64(block["review_count"]))
	r.AccessCount = int(asFloat64(block["access_count"]))
	r.LastReviewed = asTime(block["last_reviewed"])
	r.NextReview = asTime(block["next_review"])
	r.ShouldForget, _ = block["should_forget"].(bool)

	if rawSchedule, ok := block["review_schedule"].([]interface{}); ok {
		r.ReviewSchedule = make([]time.Time, 0, len(rawSchedule))
		for _, entry := range rawSchedule {
			if t := asTime(entry); !t.IsZero() {
				r.ReviewSchedule = append(r.ReviewSchedule, t)
			}
		}
	}
	return r, true
}

func asFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func asTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(retentionTimeLayout, t); err == nil {
			return parsed
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
