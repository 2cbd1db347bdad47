// Package intelligence provides intelligent memory management features.
package intelligence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oceanbase/powermem/pkg/llm"
)

// FactExtractor extracts facts from messages using LLM.
//
// Facts are self-contained pieces of information extracted from conversations,
// including personal preferences, details, plans, intentions, needs, and activities.
//
// Example usage:
//
//	extractor := NewFactExtractor(llmProvider)
//	facts, err := extractor.ExtractFacts(ctx, messages)
//	// facts will be a list of extracted fact strings
type FactExtractor struct {
	// llm is the LLM provider for fact extraction.
	llm llm.Provider

	// customPrompt is an optional custom prompt for fact extraction.
	// If empty, uses the default prompt.
	customPrompt string

	// MaxFacts caps how many facts a single extraction may return.
	MaxFacts int
}

// DefaultMaxFacts bounds extraction output so a single degenerate LLM
// response cannot flood the store.
const DefaultMaxFacts = 32

// DefaultImportance is assigned to facts the LLM did not score.
const DefaultImportance = 0.65

// ScoredFact is one extracted fact with its provisional importance.
type ScoredFact struct {
	Text       string
	Importance float64
}

// NewFactExtractor creates a new fact extractor.
//
// Parameters:
//   - llm: LLM provider for fact extraction (required)
//
// Returns a new FactExtractor with default prompt.
func NewFactExtractor(llm llm.Provider) *FactExtractor {
	return &FactExtractor{
		llm:      llm,
		MaxFacts: DefaultMaxFacts,
	}
}

// NewFactExtractorWithPrompt creates a new fact extractor with custom prompt.
//
// Parameters:
//   - llm: LLM provider for fact extraction (required)
//   - customPrompt: Custom prompt for fact extraction (optional, uses default if empty)
//
// Returns a new FactExtractor with custom prompt.
func NewFactExtractorWithPrompt(llm llm.Provider, customPrompt string) *FactExtractor {
	return &FactExtractor{
		llm:          llm,
		customPrompt: customPrompt,
		MaxFacts:     DefaultMaxFacts,
	}
}

// ExtractFacts extracts facts from messages.
//
// The extraction process:
//  1. Parses messages into conversation format
//  2. Calls LLM with fact extraction prompt
//  3. Parses JSON response to extract facts list
//
// Facts are extracted with the following rules:
//   - TEMPORAL: Always extract time info (dates, relative refs like "yesterday")
//   - COMPLETE: Extract self-contained facts with who/what/when/where
//   - SEPARATE: Extract distinct facts separately
//   - INTENTIONS: Always extract user intentions, needs, and requests
//
// Parameters:
//   - ctx: Context for cancellation
//   - messages: Messages to extract facts from (can be string, []map[string]interface{}, or single map)
//
// Returns a list of extracted fact strings, or nil and an error if extraction fails.
func (e *FactExtractor) ExtractFacts(ctx context.Context, messages interface{}) ([]string, error) {
	// Parse messages into conversation format
	conversation := e.parseMessages(messages)

	// Get prompt
	systemPrompt := e.getSystemPrompt()
	userPrompt := fmt.Sprintf("Input:\n%s", conversation)

	// Call LLM
	llmMessages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	response, err := e.llm.GenerateWithMessages(ctx, llmMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to extract facts: %w", err)
	}

	// Parse response
	facts, err := e.parseFactsResponse(response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse facts response: %w", err)
	}

	max := e.MaxFacts
	if max <= 0 {
		max = DefaultMaxFacts
	}
	if len(facts) > max {
		facts = facts[:max]
	}

	return facts, nil
}

// ExtractScoredFacts extracts facts with their provisional importance
// scores. Facts the model returned as bare strings, or with an
// out-of-range score, get DefaultImportance.
func (e *FactExtractor) ExtractScoredFacts(ctx context.Context, messages interface{}) ([]ScoredFact, error) {
	conversation := e.parseMessages(messages)

	llmMessages := []llm.Message{
		{Role: "system", Content: e.getSystemPrompt()},
		{Role: "user", Content: fmt.Sprintf("Input:\n%s", conversation)},
	}

	response, err := e.llm.GenerateWithMessages(ctx, llmMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to extract facts: %w", err)
	}

	scored, err := e.parseScoredFactsResponse(response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse facts response: %w", err)
	}

	max := e.MaxFacts
	if max <= 0 {
		max = DefaultMaxFacts
	}
	if len(scored) > max {
		scored = scored[:max]
	}
	return scored, nil
}

// NormalizeMultimodal renders any image or audio parts in a message list
// into text by asking the LLM for a description or transcript, returning
// a message list the rest of the pipeline can treat as plain text.
// A part that fails to render is dropped rather than failing the call.
func (e *FactExtractor) NormalizeMultimodal(ctx context.Context, messages []map[string]interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(messages))
	for _, msg := range messages {
		parts, ok := msg["content"].([]interface{})
		if !ok {
			out = append(out, msg)
			continue
		}

		var rendered []string
		for _, raw := range parts {
			part, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			switch part["type"] {
			case "text":
				if text, ok := part["text"].(string); ok && text != "" {
					rendered = append(rendered, text)
				}
			case "image_url", "image":
				desc, err := e.llm.Generate(ctx, fmt.Sprintf("Describe the content of this image in one or two factual sentences: %v", part))
				if err == nil && desc != "" {
					rendered = append(rendered, desc)
				}
			case "input_audio", "audio":
				transcript, err := e.llm.Generate(ctx, fmt.Sprintf("Transcribe this audio content: %v", part))
				if err == nil && transcript != "" {
					rendered = append(rendered, transcript)
				}
			}
		}

		normalized := map[string]interface{}{"content": strings.Join(rendered, "\n")}
		if role, ok := msg["role"]; ok {
			normalized["role"] = role
		}
		out = append(out, normalized)
	}
	return out
}

// parseMessages parses messages into conversation format.
func (e *FactExtractor) parseMessages(messages interface{}) string {
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
		return strings.Join(parts, "\n")
	case map[string]interface{}:
		role, _ := v["role"].(string)
		content, _ := v["content"].(string)
		if role != "" && content != "" {
			return fmt.Sprintf("%s: %s", role, content)
		}
		return ""
	default:
		return fmt.Sprintf("%v", messages)
	}
}

// getSystemPrompt returns the system prompt for fact extraction.
func (e *FactExtractor) getSystemPrompt() string {
	if e.customPrompt != "" {
		return e.customPrompt
	}

	// Default fact extraction prompt
	today := time.Now().Format("2006-01-02")
	return fmt.Sprintf(`You are a Personal Information Organizer. Extract relevant facts, memories, preferences, intentions, and needs from conversations into distinct, manageable facts.

Information Types: Personal preferences, details (names, relationships, dates), plans, intentions, needs, requests, activities, health/wellness (including medical appointments, symptoms, treatments), professional, miscellaneous.

CRITICAL Rules:
1. TEMPORAL: ALWAYS extract time info (dates, relative refs like "yesterday", "last week"). Include in facts (e.g., "Went to Hawaii in May 2023" or "Went to Hawaii last year", not just "Went to Hawaii"). Preserve relative time refs for later calculation.
2. COMPLETE: Extract self-contained facts with who/what/when/where when available.
3. SEPARATE: Extract distinct facts separately, especially when they have different time periods.
4. INTENTIONS & NEEDS: ALWAYS extract user intentions, needs, and requests even without time information. Examples: "Want to book a doctor appointment", "Need to call someone", "Plan to visit a place".

Examples:
Input: Hi.
Output: {"facts" : []}

Input: Yesterday, I met John at 3pm. We discussed the project.
Output: {"facts" : ["Met John at 3pm yesterday", "Discussed project with John yesterday"]}

Input: Last May, I went to India. Visited Mumbai and Goa.
Output: {"facts" : ["Went to India in May", "Visited Mumbai in May", "Visited Goa in May"]}

Input: I met Sarah last year and became friends. We went to movies last month.
Output: {"facts" : ["Met Sarah last year and became friends", "Went to movies with Sarah last month"]}

Input: I'm John, a software engineer.
Output: {"facts" : ["Name is John", "John is a software engineer"]}

Input: I want to book an appointment with a cardiologist.
Output: {"facts" : ["Want to book an appointment with a cardiologist"]}

Rules:
- Today: %s
- Return JSON: {"facts": ["fact1", "fact2"]}
- Extract from user/assistant messages only
- Extract intentions, needs, and requests even without time information
- If no relevant facts, return empty list
- Preserve input language

Extract facts from the conversation below:`, today)
}

// parseFactsResponse parses LLM response to extract facts.
func (e *FactExtractor) parseFactsResponse(response string) ([]string, error) {
	// Remove code blocks if present
	response = e.removeCodeBlocks(response)

	// Try to parse as JSON
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	// Extract facts array
	factsInterface, ok := result["facts"]
	if !ok {
		return []string{}, nil
	}

	factsArray, ok := factsInterface.([]interface{})
	if !ok {
		return nil, fmt.Errorf("facts is not an array")
	}

	// Convert to string slice
	facts := make([]string, 0, len(factsArray))
	for _, fact := range factsArray {
		if factStr, ok := fact.(string); ok && factStr != "" {
			facts = append(facts, factStr)
		}
	}

	return facts, nil
}

// parseScoredFactsResponse accepts both plain-string facts and
// {"text": ..., "importance": ...} objects in the "facts" array.
func (e *FactExtractor) parseScoredFactsResponse(response string) ([]ScoredFact, error) {
	response = e.removeCodeBlocks(response)

	var result map[string]interface{}
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	factsArray, ok := result["facts"].([]interface{})
	if !ok {
		return []ScoredFact{}, nil
	}

	scored := make([]ScoredFact, 0, len(factsArray))
	for _, raw := range factsArray {
		switch fact := raw.(type) {
		case string:
			if fact != "" {
				scored = append(scored, ScoredFact{Text: fact, Importance: DefaultImportance})
			}
		case map[string]interface{}:
			text, _ := fact["text"].(string)
			if text == "" {
				text, _ = fact["fact"].(string)
			}
			if text == "" {
				continue
			}
			importance := DefaultImportance
			if score, ok := fact["importance"].(float64); ok && score >= 0 && score <= 1 {
				importance = score
			}
			scored = append(scored, ScoredFact{Text: text, Importance: importance})
		}
	}
	return scored, nil
}

// removeCodeBlocks removes code blocks (```json ... ```) from response.
func (e *FactExtractor) removeCodeBlocks(response string) string {
	// Remove ```json and ``` markers
	response = strings.ReplaceAll(response, "```json", "")
	response = strings.ReplaceAll(response, "```", "")
	return strings.TrimSpace(response)
}
