// Package model defines the provider-agnostic ChatModel contract consumed by
// the Lead controller and Subagent runner: a message sequence plus a tool
// schema goes in, a final text or tool-call request comes out, with support
// for streaming token deltas.
package model

import (
	"context"
	"errors"

	"github.com/brightfield-labs/deepresearch/tools"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Part is a content fragment within a Message. Concrete types are TextPart,
// ToolUsePart, and ToolResultPart.
type Part interface{ isPart() }

// TextPart carries plain assistant or user visible text.
type TextPart struct{ Text string }

// ToolUsePart declares a tool invocation requested by the assistant.
type ToolUsePart struct {
	ID    string
	Name  tools.Ident
	Input []byte // canonical JSON
}

// ToolResultPart carries a tool result back to the model, correlated to a
// prior ToolUsePart via ToolUseID.
type ToolResultPart struct {
	ToolUseID string
	Content   any
	IsError   bool
}

func (TextPart) isPart()       {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}

// Message is a single ordered entry in the conversation supplied to a
// Client on every turn; the core does not assume server-side session state.
type Message struct {
	Role  Role
	Parts []Part
}

// ToolDefinition exposes one registered tool to the model.
type ToolDefinition struct {
	Name        tools.Ident
	Description string
	InputSchema map[string]any
}

// ToolChoiceMode controls whether/how a Request requires the model to use tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto ToolChoiceMode = "auto"
	ToolChoiceNone ToolChoiceMode = "none"
	ToolChoiceAny  ToolChoiceMode = "any"
)

// Usage tracks token counts for one model call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Request captures one ChatModel invocation.
type Request struct {
	// RunID identifies the logical run, propagated for tracing.
	RunID string
	// Model is a provider-specific model identifier.
	Model string
	// Messages is the full ordered transcript for this turn.
	Messages []Message
	// Tools lists the tool definitions available to the model this turn.
	Tools []ToolDefinition
	// ToolChoice optionally constrains tool-use behavior.
	ToolChoice ToolChoiceMode
	// Temperature controls sampling.
	Temperature float32
	// MaxTokens caps output tokens.
	MaxTokens int
}

// Response is the result of a non-streaming Complete call.
type Response struct {
	// Text is the assistant's final text, when the model did not request tools.
	Text string
	// ToolCalls lists tool invocations requested by the model.
	ToolCalls []tools.Call
	// Usage reports token consumption.
	Usage Usage
	// StopReason is a provider-specific stop reason string.
	StopReason string
}

// ChunkType classifies a streamed Chunk.
type ChunkType string

const (
	ChunkText      ChunkType = "text"
	ChunkToolCall  ChunkType = "tool_call"
	ChunkUsage     ChunkType = "usage"
	ChunkStop      ChunkType = "stop"
)

// Chunk is one streaming event from a Client.Stream call.
type Chunk struct {
	Type       ChunkType
	TextDelta  string
	ToolCall   *tools.Call
	Usage      *Usage
	StopReason string
}

// Streamer delivers incremental model output. Callers must drain Recv until
// io.EOF (or another terminal error) and then Close.
type Streamer interface {
	Recv() (Chunk, error)
	Close() error
}

// Client is the provider-agnostic ChatModel contract. Implementations
// translate Requests into provider API calls and adapt the provider's
// response shape back into Response/Chunk.
type Client interface {
	// Complete performs a non-streaming invocation.
	Complete(ctx context.Context, req Request) (*Response, error)
	// Stream performs a streaming invocation. Implementations that cannot
	// stream return ErrStreamingUnsupported so callers can fall back to
	// Complete.
	Stream(ctx context.Context, req Request) (Streamer, error)
}

// ErrStreamingUnsupported indicates the provider does not support streaming.
var ErrStreamingUnsupported = errors.New("model: streaming not supported")

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting after exhausting configured retries. Callers must not retry in a
// tight loop; this is TransientExternal per the orchestrator's error taxonomy.
var ErrRateLimited = errors.New("model: rate limited")
