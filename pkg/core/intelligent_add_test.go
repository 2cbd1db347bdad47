package core_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	powermem "github.com/oceanbase/powermem/pkg/core"
	"github.com/oceanbase/powermem/pkg/llm"
	sqliteStore "github.com/oceanbase/powermem/pkg/storage/sqlite"
)

// scriptedLLM replays canned responses in order, failing the test when
// more calls arrive than were scripted.
type scriptedLLM struct {
	t         *testing.T
	responses []string
	calls     int
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return s.GenerateWithMessages(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

func (s *scriptedLLM) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	if s.calls >= len(s.responses) {
		s.t.Fatalf("unexpected LLM call #%d", s.calls+1)
	}
	response := s.responses[s.calls]
	s.calls++
	return response, nil
}

func (s *scriptedLLM) Close() error { return nil }

// hashEmbedder produces a deterministic unit vector per text, so equal
// texts collide and distinct texts (almost surely) do not.
type hashEmbedder struct {
	failOn string
}

func (h *hashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if h.failOn != "" && text == h.failOn {
		return nil, errors.New("embedder: simulated outage")
	}
	vec := make([]float64, 8)
	for i, r := range text {
		vec[i%8] += float64(r%31) + 1
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

func (h *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := h.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (h *hashEmbedder) Dimensions() int { return 8 }
func (h *hashEmbedder) Close() error    { return nil }

func factsResponse(facts ...string) string {
	quoted := make([]string, len(facts))
	for i, f := range facts {
		quoted[i] = fmt.Sprintf("%q", f)
	}
	return fmt.Sprintf(`{"facts": [%s]}`, strings.Join(quoted, ", "))
}

func newTestClient(t *testing.T, mock *scriptedLLM, emb *hashEmbedder) *powermem.Client {
	t.Helper()

	store, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath:             filepath.Join(t.TempDir(), "memories.db"),
		CollectionName:     "memories",
		EmbeddingModelDims: 8,
		PureGo:             true,
	})
	require.NoError(t, err)

	cfg := &powermem.Config{
		LogLevel: "error",
		Intelligence: &powermem.IntelligenceConfig{
			Enabled:             true,
			DecayRate:           0,
			ReinforcementFactor: 0.3,
		},
	}

	client, err := powermem.NewClientWithProviders(cfg, store, mock, emb)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func countMemories(t *testing.T, client *powermem.Client, userID string) int {
	t.Helper()
	memories, err := client.GetAll(context.Background(), powermem.WithUserIDForGetAll(userID))
	require.NoError(t, err)
	return len(memories)
}

func TestIntelligentAddThenExactDuplicate(t *testing.T) {
	mock := &scriptedLLM{t: t, responses: []string{
		factsResponse("User likes coffee"),
		`{"memory": [{"event": "ADD", "text": "User likes coffee"}]}`,
		factsResponse("User likes coffee"),
		// No decision response scripted for the second call: the hash
		// short-circuit must keep the pipeline from reaching the LLM.
	}}
	client := newTestClient(t, mock, &hashEmbedder{})
	ctx := context.Background()

	first, err := client.IntelligentAdd(ctx, "I really like coffee", powermem.WithUserID("u1"))
	require.NoError(t, err)
	require.Len(t, first.Results, 1)
	assert.Equal(t, powermem.EventAdd, first.Results[0].Event)
	assert.NotZero(t, first.Results[0].ID)
	assert.Equal(t, 1, countMemories(t, client, "u1"))

	second, err := client.IntelligentAdd(ctx, "I really like coffee", powermem.WithUserID("u1"))
	require.NoError(t, err)
	require.Len(t, second.Results, 1)
	assert.Equal(t, powermem.EventNone, second.Results[0].Event)
	assert.Equal(t, 1, countMemories(t, client, "u1"))
	assert.Equal(t, 3, mock.calls)
}

func TestIntelligentAddUpdatePreservesID(t *testing.T) {
	mock := &scriptedLLM{t: t, responses: []string{
		factsResponse("Works at Google"),
		`{"memory": [{"event": "ADD", "text": "Works at Google"}]}`,
		factsResponse("Works at Meta as senior ML engineer"),
		`{"memory": [{"id": "0", "event": "UPDATE", "text": "Works at Meta as senior ML engineer", "old_memory": "Works at Google"}]}`,
	}}
	client := newTestClient(t, mock, &hashEmbedder{})
	ctx := context.Background()

	first, err := client.IntelligentAdd(ctx, "I work at Google", powermem.WithUserID("u2"))
	require.NoError(t, err)
	require.Len(t, first.Results, 1)
	originalID := first.Results[0].ID

	second, err := client.IntelligentAdd(ctx, "I moved to Meta as a senior ML engineer", powermem.WithUserID("u2"))
	require.NoError(t, err)
	require.Len(t, second.Results, 1)
	assert.Equal(t, powermem.EventUpdate, second.Results[0].Event)
	assert.Equal(t, originalID, second.Results[0].ID)
	assert.Equal(t, "Works at Google", second.Results[0].PreviousMemory)

	updated, err := client.Get(ctx, originalID)
	require.NoError(t, err)
	assert.Equal(t, "Works at Meta as senior ML engineer", updated.Content)
	assert.Equal(t, 1, countMemories(t, client, "u2"))
}

func TestIntelligentAddConflictDeletesOldFact(t *testing.T) {
	mock := &scriptedLLM{t: t, responses: []string{
		factsResponse("Likes coffee every morning"),
		`{"memory": [{"event": "ADD", "text": "Likes coffee every morning"}]}`,
		factsResponse("No longer likes coffee, prefers tea"),
		`{"memory": [
			{"event": "ADD", "text": "No longer likes coffee, prefers tea"},
			{"id": "0", "event": "DELETE", "text": "Likes coffee every morning"}
		]}`,
	}}
	client := newTestClient(t, mock, &hashEmbedder{})
	ctx := context.Background()

	_, err := client.IntelligentAdd(ctx, "I like coffee every morning", powermem.WithUserID("u3"))
	require.NoError(t, err)

	result, err := client.IntelligentAdd(ctx, "Actually I prefer tea now", powermem.WithUserID("u3"))
	require.NoError(t, err)
	require.Len(t, result.Results, 2)

	// DELETEs apply before ADDs regardless of the order the LLM
	// returned them in.
	assert.Equal(t, powermem.EventDelete, result.Results[0].Event)
	assert.Equal(t, powermem.EventAdd, result.Results[1].Event)

	memories, err := client.GetAll(ctx, powermem.WithUserIDForGetAll("u3"))
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "No longer likes coffee, prefers tea", memories[0].Content)
}

func TestIntelligentAddDeleteSupersedesUpdate(t *testing.T) {
	mock := &scriptedLLM{t: t, responses: []string{
		factsResponse("Lives in Berlin"),
		`{"memory": [{"event": "ADD", "text": "Lives in Berlin"}]}`,
		factsResponse("Moved away from Berlin"),
		`{"memory": [
			{"id": "0", "event": "UPDATE", "text": "Lives in Munich"},
			{"id": "0", "event": "DELETE", "text": "Lives in Berlin"}
		]}`,
	}}
	client := newTestClient(t, mock, &hashEmbedder{})
	ctx := context.Background()

	_, err := client.IntelligentAdd(ctx, "I live in Berlin", powermem.WithUserID("u4"))
	require.NoError(t, err)

	result, err := client.IntelligentAdd(ctx, "I moved away from Berlin", powermem.WithUserID("u4"))
	require.NoError(t, err)

	events := make([]string, 0, len(result.Results))
	for _, r := range result.Results {
		events = append(events, r.Event)
	}
	assert.Equal(t, []string{powermem.EventDelete}, events)
	assert.Equal(t, 0, countMemories(t, client, "u4"))
}

func TestIntelligentAddMalformedDecisionFallsBackToAdd(t *testing.T) {
	mock := &scriptedLLM{t: t, responses: []string{
		factsResponse("Enjoys hiking", "Owns a dog"),
		`this is not json at all`,
	}}
	client := newTestClient(t, mock, &hashEmbedder{})
	ctx := context.Background()

	result, err := client.IntelligentAdd(ctx, "I enjoy hiking with my dog", powermem.WithUserID("u5"))
	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	for _, r := range result.Results {
		assert.Equal(t, powermem.EventAdd, r.Event)
	}
	assert.Equal(t, 2, countMemories(t, client, "u5"))
}

func TestIntelligentAddEmbedderFailureSkipsFact(t *testing.T) {
	mock := &scriptedLLM{t: t, responses: []string{
		factsResponse("Plays tennis", "Collects stamps"),
		`{"memory": [{"event": "ADD", "text": "Plays tennis"}]}`,
	}}
	client := newTestClient(t, mock, &hashEmbedder{failOn: "Collects stamps"})
	ctx := context.Background()

	result, err := client.IntelligentAdd(ctx, "I play tennis and collect stamps", powermem.WithUserID("u6"))
	require.NoError(t, err)
	require.Len(t, result.Results, 2)

	byEvent := map[string]int{}
	for _, r := range result.Results {
		byEvent[r.Event]++
	}
	assert.Equal(t, 1, byEvent[powermem.EventFactEmbeddingFailed])
	assert.Equal(t, 1, byEvent[powermem.EventAdd])
	assert.Equal(t, 1, countMemories(t, client, "u6"))
}

func TestAddPassThroughDedup(t *testing.T) {
	// Pass-through mode: no LLM involvement at all, only the exact-hash
	// dedup and a single insert.
	mock := &scriptedLLM{t: t}
	client := newTestClient(t, mock, &hashEmbedder{})
	ctx := context.Background()

	first, err := client.Add(ctx, "User likes coffee", powermem.WithUserID("u7"))
	require.NoError(t, err)

	// Same content modulo case and whitespace hits the normalized hash.
	second, err := client.Add(ctx, "  User   LIKES coffee ", powermem.WithUserID("u7"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, countMemories(t, client, "u7"))
	assert.Equal(t, 0, mock.calls)
}

func TestAddRejectsEmptyContent(t *testing.T) {
	client := newTestClient(t, &scriptedLLM{t: t}, &hashEmbedder{})

	_, err := client.Add(context.Background(), "", powermem.WithUserID("u8"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, powermem.ErrValidation))
}

func TestScopeIsolationAcrossUsers(t *testing.T) {
	mock := &scriptedLLM{t: t}
	client := newTestClient(t, mock, &hashEmbedder{})
	ctx := context.Background()

	_, err := client.Add(ctx, "Alice works on search infrastructure", powermem.WithUserID("alice"))
	require.NoError(t, err)
	_, err = client.Add(ctx, "Bob works on billing", powermem.WithUserID("bob"))
	require.NoError(t, err)

	results, err := client.Search(ctx, "search infrastructure", powermem.WithUserIDForSearch("alice"))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, m := range results {
		assert.Equal(t, "alice", m.UserID)
	}
}
