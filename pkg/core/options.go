// Package core provides the main PowerMem client and memory management functionality.
package core

// AddOption configures an Add or IntelligentAdd call.
type AddOption func(*AddOptions)

// AddOptions collects the parameters of a write: the scope keys the
// memory is stored under, caller metadata, and pipeline switches.
type AddOptions struct {
	// UserID, AgentID, RunID are the scope keys the memory is filed
	// under; all are optional but at least one is useful in practice.
	UserID  string
	AgentID string
	RunID   string

	// Metadata carries opaque caller keys, merged into the stored blob.
	Metadata map[string]interface{}

	// Filters are additional metadata keys that also participate in
	// sub-store routing.
	Filters map[string]interface{}

	// Scope controls cross-agent visibility. Default ScopePrivate.
	Scope MemoryScope

	// MemoryType tags the record ("conversation", "fact", "preference", ...).
	MemoryType string

	// Prompt is stored alongside the memory when set.
	Prompt string

	// Infer turns on similarity-based dedup inside plain Add.
	Infer bool
}

// WithUserID sets the owning user.
func WithUserID(userID string) AddOption {
	return func(opts *AddOptions) { opts.UserID = userID }
}

// WithAgentID sets the owning agent.
func WithAgentID(agentID string) AddOption {
	return func(opts *AddOptions) { opts.AgentID = agentID }
}

// WithRunID groups the memory under a run/session.
func WithRunID(runID string) AddOption {
	return func(opts *AddOptions) { opts.RunID = runID }
}

// WithMetadata attaches caller metadata to the memory.
func WithMetadata(metadata map[string]interface{}) AddOption {
	return func(opts *AddOptions) { opts.Metadata = metadata }
}

// WithFiltersForAdd attaches routing/filter metadata to the memory.
func WithFiltersForAdd(filters map[string]interface{}) AddOption {
	return func(opts *AddOptions) { opts.Filters = filters }
}

// WithMemoryType tags the memory with a type.
func WithMemoryType(memoryType string) AddOption {
	return func(opts *AddOptions) { opts.MemoryType = memoryType }
}

// WithPrompt records the prompt that produced this memory.
func WithPrompt(prompt string) AddOption {
	return func(opts *AddOptions) { opts.Prompt = prompt }
}

// WithInfer enables similarity-based dedup for a plain Add.
func WithInfer(infer bool) AddOption {
	return func(opts *AddOptions) { opts.Infer = infer }
}

// WithScope sets the memory's visibility scope.
func WithScope(scope MemoryScope) AddOption {
	return func(opts *AddOptions) { opts.Scope = scope }
}

func applyAddOptions(opts []AddOption) *AddOptions {
	options := &AddOptions{
		Infer:    false,
		Scope:    ScopePrivate,
		Metadata: make(map[string]interface{}),
		Filters:  make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// SearchOption configures a Search call.
type SearchOption func(*SearchOptions)

// SearchOptions collects retrieval parameters. Zero values mean "no
// constraint" except Limit, which defaults to 10.
type SearchOptions struct {
	UserID  string
	AgentID string
	RunID   string

	// Limit caps the number of returned hits. Default 10.
	Limit int

	// Filters are metadata constraints in the filter-algebra map form.
	Filters map[string]interface{}

	// MinScore drops hits whose normalized fused score is below it.
	MinScore float64

	// IncludeArchived also returns archived memories.
	IncludeArchived bool
}

// WithUserIDForSearch scopes the search to one user.
func WithUserIDForSearch(userID string) SearchOption {
	return func(opts *SearchOptions) { opts.UserID = userID }
}

// WithAgentIDForSearch scopes the search to one agent.
func WithAgentIDForSearch(agentID string) SearchOption {
	return func(opts *SearchOptions) { opts.AgentID = agentID }
}

// WithRunIDForSearch scopes the search to one run/session.
func WithRunIDForSearch(runID string) SearchOption {
	return func(opts *SearchOptions) { opts.RunID = runID }
}

// WithLimit caps the number of results.
func WithLimit(limit int) SearchOption {
	return func(opts *SearchOptions) { opts.Limit = limit }
}

// WithFilters adds metadata constraints, e.g.
//
//	core.WithFilters(map[string]interface{}{"type": "conversation"})
func WithFilters(filters map[string]interface{}) SearchOption {
	return func(opts *SearchOptions) { opts.Filters = filters }
}

// WithMinScore drops results scoring below the given normalized score.
func WithMinScore(score float64) SearchOption {
	return func(opts *SearchOptions) { opts.MinScore = score }
}

// WithThreshold is WithMinScore under the name the HTTP surface exposes.
func WithThreshold(threshold float64) SearchOption {
	return func(opts *SearchOptions) { opts.MinScore = threshold }
}

// WithIncludeArchived also returns archived memories.
func WithIncludeArchived(include bool) SearchOption {
	return func(opts *SearchOptions) { opts.IncludeArchived = include }
}

func applySearchOptions(opts []SearchOption) *SearchOptions {
	options := &SearchOptions{
		Limit:    10,
		MinScore: 0.0,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// GetAllOption configures a GetAll call.
type GetAllOption func(*GetAllOptions)

// GetAllOptions filters and paginates a listing.
type GetAllOptions struct {
	UserID  string
	AgentID string

	// Limit caps results; default 100. Offset skips for pagination.
	Limit  int
	Offset int
}

// WithUserIDForGetAll filters the listing to one user.
func WithUserIDForGetAll(userID string) GetAllOption {
	return func(opts *GetAllOptions) { opts.UserID = userID }
}

// WithAgentIDForGetAll filters the listing to one agent.
func WithAgentIDForGetAll(agentID string) GetAllOption {
	return func(opts *GetAllOptions) { opts.AgentID = agentID }
}

// WithLimitForGetAll caps the listing size.
func WithLimitForGetAll(limit int) GetAllOption {
	return func(opts *GetAllOptions) { opts.Limit = limit }
}

// WithOffset skips the first offset results, for pagination.
func WithOffset(offset int) GetAllOption {
	return func(opts *GetAllOptions) { opts.Offset = offset }
}

func applyGetAllOptions(opts []GetAllOption) *GetAllOptions {
	options := &GetAllOptions{
		Limit:  100,
		Offset: 0,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// DeleteAllOption configures a DeleteAll call.
type DeleteAllOption func(*DeleteAllOptions)

// DeleteAllOptions scopes a bulk deletion. With neither field set,
// DeleteAll removes everything.
type DeleteAllOptions struct {
	UserID  string
	AgentID string
}

// WithUserIDForDeleteAll restricts deletion to one user's memories.
func WithUserIDForDeleteAll(userID string) DeleteAllOption {
	return func(opts *DeleteAllOptions) { opts.UserID = userID }
}

// WithAgentIDForDeleteAll restricts deletion to one agent's memories.
func WithAgentIDForDeleteAll(agentID string) DeleteAllOption {
	return func(opts *DeleteAllOptions) { opts.AgentID = agentID }
}

func applyDeleteAllOptions(opts []DeleteAllOption) *DeleteAllOptions {
	options := &DeleteAllOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// GetOption configures access control on a Get call.
type GetOption func(*GetOptions)

// GetOptions restricts a point read to a user and/or agent, for
// multi-tenant isolation.
type GetOptions struct {
	UserID  string
	AgentID string
}

// WithUserIDForGet returns the memory only if it belongs to the user.
func WithUserIDForGet(userID string) GetOption {
	return func(opts *GetOptions) { opts.UserID = userID }
}

// WithAgentIDForGet returns the memory only if it belongs to the agent.
func WithAgentIDForGet(agentID string) GetOption {
	return func(opts *GetOptions) { opts.AgentID = agentID }
}

// UpdateOption configures access control on an Update call.
type UpdateOption func(*UpdateOptions)

// UpdateOptions restricts an update to a user and/or agent.
type UpdateOptions struct {
	UserID  string
	AgentID string
}

// WithUserIDForUpdate updates the memory only if it belongs to the user.
func WithUserIDForUpdate(userID string) UpdateOption {
	return func(opts *UpdateOptions) { opts.UserID = userID }
}

// WithAgentIDForUpdate updates the memory only if it belongs to the agent.
func WithAgentIDForUpdate(agentID string) UpdateOption {
	return func(opts *UpdateOptions) { opts.AgentID = agentID }
}

// DeleteOption configures access control on a Delete call.
type DeleteOption func(*DeleteOptions)

// DeleteOptions restricts a deletion to a user and/or agent.
type DeleteOptions struct {
	UserID  string
	AgentID string
}

// WithUserIDForDelete deletes the memory only if it belongs to the user.
func WithUserIDForDelete(userID string) DeleteOption {
	return func(opts *DeleteOptions) { opts.UserID = userID }
}

// WithAgentIDForDelete deletes the memory only if it belongs to the agent.
func WithAgentIDForDelete(agentID string) DeleteOption {
	return func(opts *DeleteOptions) { opts.AgentID = agentID }
}

func applyGetOptions(opts []GetOption) *GetOptions {
	options := &GetOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func applyUpdateOptions(opts []UpdateOption) *UpdateOptions {
	options := &UpdateOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func applyDeleteOptions(opts []DeleteOption) *DeleteOptions {
	options := &DeleteOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
