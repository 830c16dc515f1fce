// Package tools defines the identifiers, schemas, and structured errors
// shared by the tool registry, the subagent runner, and the lead controller.
package tools

import "encoding/json"

// Ident is the strong type for tool identifiers ("web_search", "web_fetch",
// "run_subagents", "complete_task"). Using a distinct type keeps tool names
// from being mixed up with free-form strings at call sites.
type Ident string

const (
	// WebSearch ranks hits for a query and updates the source table.
	WebSearch Ident = "web_search"
	// WebFetch extracts text and metadata for a URL and updates the source table.
	WebFetch Ident = "web_fetch"
	// RunSubagents spawns bounded-parallel subagent runners and blocks until
	// all of them finish. Only the Lead may call this tool.
	RunSubagents Ident = "run_subagents"
	// CompleteTask terminates the calling agent's loop; its report becomes the
	// agent's output.
	CompleteTask Ident = "complete_task"
)

// Availability enumerates which agent roles may invoke a tool.
type Availability int

const (
	// AvailableToSubagent marks a tool callable from a subagent run.
	AvailableToSubagent Availability = 1 << iota
	// AvailableToLead marks a tool callable from the lead controller.
	AvailableToLead
)

// Spec describes a registered tool: its name, JSON schema, and which roles
// may call it.
type Spec struct {
	// Name is the tool identifier as seen by the model.
	Name Ident
	// Description is presented to the model so it can decide when to call
	// the tool.
	Description string
	// InputSchema is a JSON Schema document (as a Go value, e.g. produced by
	// Schema) describing the tool's argument object.
	InputSchema map[string]any
	// Availability restricts which roles may invoke this tool.
	Availability Availability
}

// AvailableTo reports whether the spec may be called by the given role.
func (s Spec) AvailableTo(role Availability) bool {
	return s.Availability&role != 0
}

// Schema builds a minimal JSON Schema object type with the given required
// string/integer properties. It exists so tool specs can be declared inline
// without hand-writing map literals for the common case.
func Schema(properties map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// Call is a single tool invocation requested by a model.
type Call struct {
	// ID is the provider-issued identifier for this call, used to correlate
	// the eventual Result.
	ID string
	// Name is the tool identifier requested by the model.
	Name Ident
	// Payload is the canonical JSON arguments supplied by the model.
	Payload json.RawMessage
}

// Result is the outcome of dispatching a Call. Exactly one of Value or Err
// is meaningful; a non-nil Err still produces an observable tool result
// (never a panic or propagated error) so the calling agent's loop can react.
type Result struct {
	// ToolCallID correlates this result back to the originating Call.ID.
	ToolCallID string
	// Name is the tool that was invoked.
	Name Ident
	// Value is the JSON-compatible tool result payload on success.
	Value any
	// Err describes a tool failure. When non-nil, Value is ignored.
	Err *Error
	// RetryHint optionally tells the agent how to repair a failed call.
	RetryHint *RetryHint
}
