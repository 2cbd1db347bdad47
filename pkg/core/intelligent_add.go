package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/oceanbase/powermem/pkg/contenthash"
	"github.com/oceanbase/powermem/pkg/events"
	"github.com/oceanbase/powermem/pkg/intelligence"
	"github.com/oceanbase/powermem/pkg/storage"
)

// Memory action event kinds emitted by the ingest pipeline.
const (
	EventAdd    = "ADD"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
	EventNone   = "NONE"

	// EventFactEmbeddingFailed marks a fact skipped because its
	// embedding could not be generated; the rest of the batch proceeds.
	EventFactEmbeddingFailed = "FACT_EMBEDDING_FAILED"
)

// IntelligentAddResult represents the result of an intelligent add operation.
type IntelligentAddResult struct {
	// Results contains the list of memory operations performed.
	Results []MemoryActionResult `json:"results"`
}

// MemoryActionResult represents a single memory operation result.
type MemoryActionResult struct {
	// ID is the memory ID, serialized as a decimal string.
	ID MemoryID `json:"id,omitempty"`

	// Memory is the memory content after the operation.
	Memory string `json:"memory"`

	// Event is the operation type: ADD, UPDATE, DELETE, NONE,
	// or FACT_EMBEDDING_FAILED.
	Event string `json:"event"`

	// PreviousMemory is the previous content (for UPDATE and DELETE).
	PreviousMemory string `json:"previous_memory,omitempty"`

	// Error carries the failure reason for skipped or failed items.
	Error string `json:"error,omitempty"`

	// Metadata contains additional information.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// plannedAction is one decided-but-not-yet-applied pipeline step.
type plannedAction struct {
	event      string
	text       string
	oldText    string
	existingID MemoryID
	importance float64
	embedding  []float64
	reason     string
}

// IntelligentAdd runs the full ingest pipeline:
//
//  1. Normalize messages (rendering image/audio parts to text)
//  2. Extract scored facts via the LLM
//  3. Per fact: exact-hash dedup short-circuit, then similarity probe
//     against the router-selected store
//  4. LLM decision per fact: ADD / UPDATE / DELETE / NONE (malformed
//     responses fall back to ADD)
//  5. Apply DELETEs, then UPDATEs, then ADDs; a DELETE on an id
//     supersedes an UPDATE on the same id
//  6. Initialize the retention block for every ADD
//
// Store write failures do not roll back already-applied actions; the
// returned results list both applied and failed items, and the call
// returns ErrStoreWriteFailed alongside the partial results when any
// write failed.
func (c *Client) IntelligentAdd(ctx context.Context, messages interface{}, opts ...AddOption) (*IntelligentAddResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	addOpts := applyAddOptions(opts)
	c.applyDefaultScope(&addOpts.AgentID)

	if c.intelligentManager == nil {
		return nil, NewMemoryError("IntelligentAdd", fmt.Errorf("%w: intelligent memory features are not enabled", ErrInvalidConfig))
	}
	if c.llm == nil {
		return nil, NewMemoryError("IntelligentAdd", fmt.Errorf("%w: no LLM provider configured", ErrInvalidConfig))
	}

	normalized := c.normalizeMessages(ctx, messages)

	// Stage 1: fact extraction. A failure here fails the whole call
	// (nothing has been written yet), unless fallback is enabled.
	facts, err := c.intelligentManager.ExtractScoredFacts(ctx, normalized)
	if err != nil {
		if c.config.Intelligence != nil && c.config.Intelligence.FallbackToSimpleAdd {
			c.log.Warn().Err(err).Msg("fact extraction failed, falling back to simple add")
			return c.fallbackToSimpleAdd(ctx, messages, opts...)
		}
		return nil, NewMemoryError("IntelligentAdd", fmt.Errorf("%w: %v", ErrLLMUnavailable, err))
	}

	if len(facts) == 0 {
		if c.config.Intelligence != nil && c.config.Intelligence.FallbackToSimpleAdd {
			return c.fallbackToSimpleAdd(ctx, messages, opts...)
		}
		return &IntelligentAddResult{Results: []MemoryActionResult{}}, nil
	}

	c.log.Debug().Int("facts", len(facts)).Msg("facts extracted")

	metadata := copyMetadata(addOpts.Metadata)
	addMetadataFields(metadata, addOpts)

	// The similarity probe and all writes target the store the router
	// picks for this record's metadata.
	target, descriptor, err := c.router.RouteWrite(metadata)
	if err != nil {
		return nil, NewMemoryError("IntelligentAdd", err)
	}
	if descriptor != nil {
		c.log.Debug().Str("substore", descriptor.Name).Msg("ingest routed to sub-store")
	}

	// Stage 2: per-fact embedding, dedup short-circuit, similarity probe.
	results := make([]MemoryActionResult, 0, len(facts))
	planned := make([]plannedAction, 0, len(facts))
	factEmbeddings := make(map[string][]float64, len(facts))
	importanceByText := make(map[string]float64, len(facts))
	pendingDecision := make([]intelligence.ScoredFact, 0, len(facts))

	existingByTempID := make(map[string]*storage.Memory)
	tempIDMapping := make(map[string]MemoryID)
	var existingForDecision []intelligence.ExistingMemory

	for _, fact := range facts {
		importanceByText[fact.Text] = fact.Importance

		hash := contenthash.Hash(fact.Text)
		if dup := c.lookupByHash(ctx, target, hash, addOpts); dup != nil {
			// Exact duplicate under the same scope: forced NONE, no LLM.
			results = append(results, MemoryActionResult{
				ID:     dup.ID,
				Memory: fact.Text,
				Event:  EventNone,
			})
			continue
		}

		embedding, err := c.embedder.Embed(ctx, fact.Text)
		if err != nil {
			c.log.Warn().Err(err).Str("fact", truncate(fact.Text, 50)).Msg("fact embedding failed, skipping")
			results = append(results, MemoryActionResult{
				Memory: fact.Text,
				Event:  EventFactEmbeddingFailed,
				Error:  err.Error(),
			})
			continue
		}
		factEmbeddings[fact.Text] = embedding

		similar, err := target.Search(ctx, embedding, &storage.SearchOptions{
			UserID:  addOpts.UserID,
			AgentID: addOpts.AgentID,
			Limit:   5,
			Query:   fact.Text,
			Filters: addOpts.Filters,
		})
		if err != nil {
			c.log.Warn().Err(err).Msg("similarity probe failed, treating fact as new")
		}
		for _, mem := range similar {
			if c.alreadyStaged(tempIDMapping, mem.ID) {
				continue
			}
			tempID := fmt.Sprintf("%d", len(existingForDecision))
			tempIDMapping[tempID] = mem.ID
			existingByTempID[tempID] = mem
			existingForDecision = append(existingForDecision, intelligence.ExistingMemory{
				ID:   tempID,
				Text: mem.Content,
			})
		}

		pendingDecision = append(pendingDecision, fact)
	}

	// Stage 3: the LLM decides one action per pending fact. Malformed
	// output degrades to ADD-everything rather than failing the call.
	if len(pendingDecision) > 0 {
		factTexts := make([]string, len(pendingDecision))
		for i, f := range pendingDecision {
			factTexts[i] = f.Text
		}

		decisionMaker := intelligence.NewDecisionMakerWithPrompt(c.llm, c.intelligentManager.UpdateMemoryPrompt())
		actions, err := decisionMaker.DecideActions(ctx, factTexts, existingForDecision)
		if err != nil {
			c.log.Warn().Err(err).Msg("llm decision failed, defaulting every fact to ADD")
			actions = nil
			for _, text := range factTexts {
				actions = append(actions, intelligence.MemoryAction{Event: EventAdd, Text: text})
			}
		}

		for _, action := range actions {
			text := action.Text
			if text == "" {
				text = action.Memory
			}
			if text == "" && action.Event != EventNone {
				continue
			}

			pa := plannedAction{
				event:      action.Event,
				text:       text,
				importance: importanceForText(importanceByText, text),
				embedding:  factEmbeddings[text],
			}
			switch action.Event {
			case EventUpdate, EventDelete:
				realID, ok := tempIDMapping[action.ID]
				if !ok {
					c.log.Warn().Str("temp_id", action.ID).Msg("decision references unknown memory, defaulting to ADD")
					pa.event = EventAdd
				} else {
					pa.existingID = realID
					if prev, ok := existingByTempID[action.ID]; ok {
						pa.oldText = prev.Content
					}
				}
			case EventAdd, EventNone:
				// No existing-id bookkeeping.
			default:
				c.log.Warn().Str("event", action.Event).Msg("unknown decision event, defaulting to ADD")
				pa.event = EventAdd
			}
			planned = append(planned, pa)
		}
	}

	// Stage 4: apply in DELETE -> UPDATE -> ADD order. A DELETE wins
	// over an UPDATE targeting the same id.
	applied, writeFailed := c.applyPlan(ctx, target, planned, addOpts)
	results = append(results, applied...)

	result := &IntelligentAddResult{Results: results}
	if writeFailed {
		return result, NewMemoryError("IntelligentAdd", ErrStoreWriteFailed)
	}
	return result, nil
}

// applyPlan executes planned actions in the pipeline's deterministic
// order and reports whether any store write failed.
func (c *Client) applyPlan(ctx context.Context, target storage.VectorStore, planned []plannedAction, addOpts *AddOptions) ([]MemoryActionResult, bool) {
	// Sort: DELETE(0) < UPDATE(1) < ADD(2) < NONE(3); stable within a kind.
	order := map[string]int{EventDelete: 0, EventUpdate: 1, EventAdd: 2, EventNone: 3}
	sort.SliceStable(planned, func(i, j int) bool {
		return order[planned[i].event] < order[planned[j].event]
	})

	deleted := make(map[MemoryID]bool)
	results := make([]MemoryActionResult, 0, len(planned))
	writeFailed := false

	for _, pa := range planned {
		switch pa.event {
		case EventDelete:
			if deleted[pa.existingID] {
				continue
			}
			if err := target.Delete(ctx, pa.existingID, &storage.DeleteOptions{UserID: addOpts.UserID, AgentID: addOpts.AgentID}); err != nil {
				c.log.Error().Err(err).Int64("memory_id", int64(pa.existingID)).Msg("delete failed")
				results = append(results, MemoryActionResult{ID: pa.existingID, Memory: pa.text, Event: pa.event, Error: err.Error()})
				writeFailed = true
				continue
			}
			deleted[pa.existingID] = true
			results = append(results, MemoryActionResult{
				ID:             pa.existingID,
				Memory:         pa.text,
				Event:          EventDelete,
				PreviousMemory: pa.oldText,
			})
			c.emitEvent(pa.existingID, EventDelete, pa.text, pa.oldText, addOpts)

		case EventUpdate:
			if deleted[pa.existingID] {
				// Superseded by a DELETE on the same memory.
				continue
			}
			embedding := pa.embedding
			if embedding == nil {
				var err error
				embedding, err = c.embedder.Embed(ctx, pa.text)
				if err != nil {
					results = append(results, MemoryActionResult{Memory: pa.text, Event: EventFactEmbeddingFailed, Error: err.Error()})
					continue
				}
			}
			if _, err := target.Update(ctx, pa.existingID, pa.text, embedding, &storage.UpdateOptions{UserID: addOpts.UserID, AgentID: addOpts.AgentID}); err != nil {
				c.log.Error().Err(err).Int64("memory_id", int64(pa.existingID)).Msg("update failed")
				results = append(results, MemoryActionResult{ID: pa.existingID, Memory: pa.text, Event: pa.event, Error: err.Error()})
				writeFailed = true
				continue
			}
			results = append(results, MemoryActionResult{
				ID:             pa.existingID,
				Memory:         pa.text,
				Event:          EventUpdate,
				PreviousMemory: pa.oldText,
			})
			c.emitEvent(pa.existingID, EventUpdate, pa.text, pa.oldText, addOpts)

		case EventAdd:
			embedding := pa.embedding
			if embedding == nil {
				var err error
				embedding, err = c.embedder.Embed(ctx, pa.text)
				if err != nil {
					results = append(results, MemoryActionResult{Memory: pa.text, Event: EventFactEmbeddingFailed, Error: err.Error()})
					continue
				}
			}

			metadata := copyMetadata(addOpts.Metadata)
			addMetadataFields(metadata, addOpts)
			retention := c.intelligentManager.InitRetention(pa.importance, time.Now())
			retention.ToMetadata(metadata)

			memory := &Memory{
				ID:                MemoryID(c.snowflakeNode.Generate().Int64()),
				UserID:            addOpts.UserID,
				AgentID:           addOpts.AgentID,
				Content:           pa.text,
				Hash:              contenthash.Hash(pa.text),
				Embedding:         embedding,
				Metadata:          metadata,
				RetentionStrength: retention.CurrentRetention,
			}

			if err := target.Insert(ctx, toStorageMemory(memory)); err != nil {
				c.log.Error().Err(err).Int64("memory_id", int64(memory.ID)).Msg("insert failed")
				results = append(results, MemoryActionResult{Memory: pa.text, Event: pa.event, Error: err.Error()})
				writeFailed = true
				continue
			}
			results = append(results, MemoryActionResult{
				ID:       memory.ID,
				Memory:   pa.text,
				Event:    EventAdd,
				Metadata: metadata,
			})
			c.emitEvent(memory.ID, EventAdd, pa.text, "", addOpts)

		case EventNone:
			results = append(results, MemoryActionResult{Memory: pa.text, Event: EventNone})
			c.emitEvent(0, EventNone, pa.text, "", addOpts)
		}
	}

	return results, writeFailed
}

// lookupByHash returns an existing memory with the same content hash
// under the same scope, when the target backend can answer that cheaply.
func (c *Client) lookupByHash(ctx context.Context, target storage.VectorStore, hash string, addOpts *AddOptions) *storage.Memory {
	lookup, ok := target.(storage.HashLookup)
	if !ok {
		return nil
	}
	existing, err := lookup.GetByHash(ctx, hash, addOpts.UserID, addOpts.AgentID)
	if err != nil || existing == nil {
		return nil
	}
	return existing
}

func (c *Client) alreadyStaged(mapping map[string]MemoryID, id MemoryID) bool {
	for _, staged := range mapping {
		if staged == id {
			return true
		}
	}
	return false
}

// normalizeMessages coerces the polymorphic messages input into the
// canonical []map{role,content} shape, rendering multimodal parts to
// text on the way.
func (c *Client) normalizeMessages(ctx context.Context, messages interface{}) interface{} {
	switch v := messages.(type) {
	case []map[string]interface{}:
		return c.intelligentManager.NormalizeMultimodal(ctx, v)
	case map[string]interface{}:
		return c.intelligentManager.NormalizeMultimodal(ctx, []map[string]interface{}{v})
	default:
		return messages
	}
}

// emitEvent publishes a lifecycle event, best-effort.
func (c *Client) emitEvent(id MemoryID, event, content, previous string, addOpts *AddOptions) {
	if c.events == nil {
		return
	}
	err := c.events.Emit(context.Background(), events.MemoryEvent{
		ID:             id,
		Event:          event,
		Content:        content,
		PreviousMemory: previous,
		UserID:         addOpts.UserID,
		AgentID:        addOpts.AgentID,
		RunID:          addOpts.RunID,
		Timestamp:      time.Now(),
	})
	if err != nil {
		c.log.Debug().Err(err).Str("event", event).Msg("event emission failed")
	}
}

func importanceForText(byText map[string]float64, text string) float64 {
	if score, ok := byText[text]; ok {
		return score
	}
	return intelligence.DefaultImportance
}

// fallbackToSimpleAdd falls back to simple add when intelligent add fails.
func (c *Client) fallbackToSimpleAdd(ctx context.Context, messages interface{}, opts ...AddOption) (*IntelligentAddResult, error) {
	content := parseMessagesToString(messages)

	memory, err := c.addLocked(ctx, content, opts...)
	if err != nil {
		return nil, fmt.Errorf("fallback to simple add failed: %w", err)
	}

	return &IntelligentAddResult{
		Results: []MemoryActionResult{
			{
				ID:     memory.ID,
				Memory: memory.Content,
				Event:  EventAdd,
			},
		},
	}, nil
}

// parseMessagesToString converts various message formats to a string.
func parseMessagesToString(messages interface{}) string {
	switch v := messages.(type) {
	case string:
		return v
	case []map[string]interface{}:
		var parts []string
		for _, msg := range v {
			role, _ := msg["role"].(string)
			content, _ := msg["content"].(string)
			if role != "" && content != "" && role != "system" {
				parts = append(parts, fmt.Sprintf("%s: %s", role, content))
			}
		}
		return fmt.Sprintf("%v", parts)
	case map[string]interface{}:
		content, _ := v["content"].(string)
		return content
	default:
		return fmt.Sprintf("%v", messages)
	}
}

// copyMetadata creates a shallow copy of metadata.
func copyMetadata(metadata map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}

// addMetadataFields adds additional fields from options to metadata.
func addMetadataFields(metadata map[string]interface{}, opts *AddOptions) {
	if opts.RunID != "" {
		metadata["run_id"] = opts.RunID
	}
	if opts.MemoryType != "" {
		metadata["memory_type"] = opts.MemoryType
	}
	if opts.Scope != "" {
		metadata["scope"] = string(opts.Scope)
	}
	if opts.Prompt != "" {
		metadata["prompt"] = opts.Prompt
	}
	// Merge filters into metadata
	if opts.Filters != nil {
		for k, v := range opts.Filters {
			metadata[k] = v
		}
	}
}

// truncate truncates a string to the specified length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
