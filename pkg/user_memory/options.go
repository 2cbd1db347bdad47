// Package usermemory provides user memory management with automatic profile extraction.
package usermemory

import "github.com/oceanbase/powermem/pkg/core"

// AddResult is what an Add call produced: the stored memory plus the
// outcome of the profile extraction that ran alongside it.
type AddResult struct {
	// Memory is the stored conversation memory.
	Memory *core.Memory

	// ProfileExtracted reports whether profile extraction ran and
	// produced a usable result.
	ProfileExtracted bool

	// ProfileContent is the updated unstructured profile, when the
	// extraction mode was "content".
	ProfileContent *string

	// Topics is the structured profile from "topics" extraction. Topic
	// extraction returns no topics, so Add leaves it nil.
	Topics map[string]interface{}
}

// AddOptions collects the parameters of an Add: memory scoping (same
// keys as core), plus the profile-extraction switches specific to this
// surface.
type AddOptions struct {
	UserID  string
	AgentID string
	RunID   string

	Metadata map[string]interface{}
	Filters  map[string]interface{}
	Scope    core.MemoryScope

	MemoryType string
	Prompt     string

	// Infer enables intelligent deduplication in the underlying memory
	// client. Default true on this surface.
	Infer bool

	// ProfileType selects the extraction mode: "content" (free-form
	// blob, default) or "topics". Topic extraction returns no topics,
	// so in "topics" mode no profile is saved.
	ProfileType string

	// CustomTopics is passed to topic extraction when ProfileType is
	// "topics"; it has no effect on the result.
	CustomTopics string

	// StrictMode is passed to topic extraction when ProfileType is
	// "topics"; it has no effect on the result.
	StrictMode bool

	// IncludeRoles / ExcludeRoles pick which conversation roles feed
	// profile extraction. Defaults: include "user", exclude "assistant".
	IncludeRoles []string
	ExcludeRoles []string
}

// AddOption configures an Add call.
type AddOption func(*AddOptions)

// WithUserID sets the owning user.
func WithUserID(userID string) AddOption {
	return func(opts *AddOptions) { opts.UserID = userID }
}

// WithAgentID sets the owning agent.
func WithAgentID(agentID string) AddOption {
	return func(opts *AddOptions) { opts.AgentID = agentID }
}

// WithProfileType selects "content" or "topics" extraction.
func WithProfileType(profileType string) AddOption {
	return func(opts *AddOptions) { opts.ProfileType = profileType }
}

// WithCustomTopics constrains topic extraction to a caller schema.
func WithCustomTopics(customTopics string) AddOption {
	return func(opts *AddOptions) { opts.CustomTopics = customTopics }
}

// WithStrictMode rejects topics outside the custom schema.
func WithStrictMode(strictMode bool) AddOption {
	return func(opts *AddOptions) { opts.StrictMode = strictMode }
}

// WithRunID groups the memory under a run/session.
func WithRunID(runID string) AddOption {
	return func(opts *AddOptions) { opts.RunID = runID }
}

// WithMetadata attaches caller metadata to the memory.
func WithMetadata(metadata map[string]interface{}) AddOption {
	return func(opts *AddOptions) { opts.Metadata = metadata }
}

// WithFilters attaches routing/filter metadata to the memory.
func WithFilters(filters map[string]interface{}) AddOption {
	return func(opts *AddOptions) { opts.Filters = filters }
}

// WithScope sets the memory's visibility scope.
func WithScope(scope string) AddOption {
	return func(opts *AddOptions) { opts.Scope = core.MemoryScope(scope) }
}

// WithMemoryType tags the memory with a type.
func WithMemoryType(memoryType string) AddOption {
	return func(opts *AddOptions) { opts.MemoryType = memoryType }
}

// WithPrompt records the prompt that produced this memory.
func WithPrompt(prompt string) AddOption {
	return func(opts *AddOptions) { opts.Prompt = prompt }
}

// WithInfer toggles intelligent deduplication.
func WithInfer(infer bool) AddOption {
	return func(opts *AddOptions) { opts.Infer = infer }
}

// WithIncludeRoles picks the roles fed to profile extraction.
func WithIncludeRoles(roles []string) AddOption {
	return func(opts *AddOptions) { opts.IncludeRoles = roles }
}

// WithExcludeRoles removes roles from profile extraction input.
func WithExcludeRoles(roles []string) AddOption {
	return func(opts *AddOptions) { opts.ExcludeRoles = roles }
}

func applyAddOptions(opts []AddOption) *AddOptions {
	options := &AddOptions{
		ProfileType:  "content",
		Infer:        true,
		Metadata:     make(map[string]interface{}),
		Filters:      make(map[string]interface{}),
		IncludeRoles: []string{"user"},
		ExcludeRoles: []string{"assistant"},
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// SearchOptions collects retrieval parameters, plus the AddProfile
// switch that joins the user's profile into the result.
type SearchOptions struct {
	UserID  string
	AgentID string

	// Limit caps results. Default 10.
	Limit int

	// MinScore drops hits below the given normalized score.
	MinScore float64

	// Filters are metadata constraints in the filter-algebra map form.
	Filters map[string]interface{}

	// AddProfile includes the user's current profile blob in the
	// result without affecting ranking.
	AddProfile bool
}

// SearchOption configures a Search call.
type SearchOption func(*SearchOptions)

// WithSearchUserID scopes the search to one user.
func WithSearchUserID(userID string) SearchOption {
	return func(opts *SearchOptions) { opts.UserID = userID }
}

// WithSearchAgentID scopes the search to one agent.
func WithSearchAgentID(agentID string) SearchOption {
	return func(opts *SearchOptions) { opts.AgentID = agentID }
}

// WithSearchLimit caps the number of results.
func WithSearchLimit(limit int) SearchOption {
	return func(opts *SearchOptions) { opts.Limit = limit }
}

// WithSearchMinScore drops results below the given normalized score.
func WithSearchMinScore(minScore float64) SearchOption {
	return func(opts *SearchOptions) { opts.MinScore = minScore }
}

// WithSearchFilters adds metadata constraints.
func WithSearchFilters(filters map[string]interface{}) SearchOption {
	return func(opts *SearchOptions) { opts.Filters = filters }
}

// WithAddProfile includes the user's profile in the search result.
func WithAddProfile(addProfile bool) SearchOption {
	return func(opts *SearchOptions) { opts.AddProfile = addProfile }
}

func applySearchOptions(opts []SearchOption) *SearchOptions {
	options := &SearchOptions{
		Limit: 10,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// GetOptions carries a user and/or agent for a point read. Get looks
// the memory up by ID alone and does not apply them.
type GetOptions struct {
	UserID  string
	AgentID string
}

// GetOption configures a Get call.
type GetOption func(*GetOptions)

// WithGetUserID sets GetOptions.UserID; Get does not check ownership.
func WithGetUserID(userID string) GetOption {
	return func(opts *GetOptions) { opts.UserID = userID }
}

// WithGetAgentID sets GetOptions.AgentID; Get does not check ownership.
func WithGetAgentID(agentID string) GetOption {
	return func(opts *GetOptions) { opts.AgentID = agentID }
}

// UpdateOptions carries a user, agent and metadata for an update.
// Update changes only the content, by ID, and does not apply them.
type UpdateOptions struct {
	UserID  string
	AgentID string

	Metadata map[string]interface{}
}

// UpdateOption configures an Update call.
type UpdateOption func(*UpdateOptions)

// WithUpdateUserID sets UpdateOptions.UserID; Update does not check ownership.
func WithUpdateUserID(userID string) UpdateOption {
	return func(opts *UpdateOptions) { opts.UserID = userID }
}

// WithUpdateAgentID sets UpdateOptions.AgentID; Update does not check ownership.
func WithUpdateAgentID(agentID string) UpdateOption {
	return func(opts *UpdateOptions) { opts.AgentID = agentID }
}

// WithUpdateMetadata sets UpdateOptions.Metadata; Update leaves the
// memory's metadata unchanged.
func WithUpdateMetadata(metadata map[string]interface{}) UpdateOption {
	return func(opts *UpdateOptions) { opts.Metadata = metadata }
}

// DeleteOptions carries a user and agent for a deletion, optionally
// removing the user's profile with it. The memory is deleted by ID
// alone; UserID only selects the profile that DeleteProfile removes.
type DeleteOptions struct {
	UserID  string
	AgentID string

	// DeleteProfile also removes the user's profile.
	DeleteProfile bool
}

// DeleteOption configures a Delete call.
type DeleteOption func(*DeleteOptions)

// WithDeleteUserID names the user whose profile WithDeleteProfile
// removes; the memory itself is deleted regardless of owner.
func WithDeleteUserID(userID string) DeleteOption {
	return func(opts *DeleteOptions) { opts.UserID = userID }
}

// WithDeleteAgentID sets DeleteOptions.AgentID; Delete does not apply it.
func WithDeleteAgentID(agentID string) DeleteOption {
	return func(opts *DeleteOptions) { opts.AgentID = agentID }
}

// WithDeleteProfile also removes the user's profile.
func WithDeleteProfile(deleteProfile bool) DeleteOption {
	return func(opts *DeleteOptions) { opts.DeleteProfile = deleteProfile }
}

func applyDeleteOptions(opts []DeleteOption) *DeleteOptions {
	options := &DeleteOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// GetAllOptions filters and paginates a listing.
type GetAllOptions struct {
	UserID  string
	AgentID string
	RunID   string

	// Limit caps results; default 100. Offset skips for pagination.
	Limit  int
	Offset int

	Filters map[string]interface{}
}

// GetAllOption configures a GetAll call.
type GetAllOption func(*GetAllOptions)

// WithGetAllUserID filters the listing to one user.
func WithGetAllUserID(userID string) GetAllOption {
	return func(opts *GetAllOptions) { opts.UserID = userID }
}

// WithGetAllAgentID filters the listing to one agent.
func WithGetAllAgentID(agentID string) GetAllOption {
	return func(opts *GetAllOptions) { opts.AgentID = agentID }
}

// WithGetAllRunID sets GetAllOptions.RunID; GetAll does not apply it.
func WithGetAllRunID(runID string) GetAllOption {
	return func(opts *GetAllOptions) { opts.RunID = runID }
}

// WithGetAllLimit caps the listing size.
func WithGetAllLimit(limit int) GetAllOption {
	return func(opts *GetAllOptions) { opts.Limit = limit }
}

// WithGetAllOffset skips the first offset results.
func WithGetAllOffset(offset int) GetAllOption {
	return func(opts *GetAllOptions) { opts.Offset = offset }
}

// WithGetAllFilters sets GetAllOptions.Filters; GetAll does not apply them.
func WithGetAllFilters(filters map[string]interface{}) GetAllOption {
	return func(opts *GetAllOptions) { opts.Filters = filters }
}

func applyGetAllOptions(opts []GetAllOption) *GetAllOptions {
	options := &GetAllOptions{
		Limit:   100,
		Offset:  0,
		Filters: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// DeleteAllOptions scopes a bulk deletion, optionally removing the
// user's profile as well.
type DeleteAllOptions struct {
	UserID  string
	AgentID string
	RunID   string

	// DeleteProfile also removes the user's profile.
	DeleteProfile bool
}

// DeleteAllOption configures a DeleteAll call.
type DeleteAllOption func(*DeleteAllOptions)

// WithDeleteAllUserID restricts deletion to one user's memories.
func WithDeleteAllUserID(userID string) DeleteAllOption {
	return func(opts *DeleteAllOptions) { opts.UserID = userID }
}

// WithDeleteAllAgentID restricts deletion to one agent's memories.
func WithDeleteAllAgentID(agentID string) DeleteAllOption {
	return func(opts *DeleteAllOptions) { opts.AgentID = agentID }
}

// WithDeleteAllRunID sets DeleteAllOptions.RunID; DeleteAll does not
// apply it, so the deletion is scoped by UserID and AgentID only.
func WithDeleteAllRunID(runID string) DeleteAllOption {
	return func(opts *DeleteAllOptions) { opts.RunID = runID }
}

// WithDeleteAllProfile also removes the user's profile.
func WithDeleteAllProfile(deleteProfile bool) DeleteAllOption {
	return func(opts *DeleteAllOptions) { opts.DeleteProfile = deleteProfile }
}

func applyDeleteAllOptions(opts []DeleteAllOption) *DeleteAllOptions {
	options := &DeleteAllOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
