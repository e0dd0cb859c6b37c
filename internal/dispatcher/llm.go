// Package dispatcher drives one agent's turn loop against the
// LanguageModel capability (spec.md §4.7), grounded on the teacher's
// channel-based streaming Chunk interface (pkg/agent/llm_client.go)
// and turn-loop shape (pkg/agent/llm_grpc.go).
package dispatcher

import "context"

// Message role constants, mirroring the teacher's RoleSystem/RoleUser/
// RoleAssistant/RoleTool.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in the dispatch's conversation history.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
}

// ToolCall is an assistant-requested tool invocation.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}

// ToolDefinition describes one tool available to the model, filtered to
// the dispatch's allowedTools.
type ToolDefinition struct {
	Name             string
	Description      string
	ParametersSchema string
}

// GenerateInput is one turn's request to the LanguageModel capability.
type GenerateInput struct {
	TaskID              string
	Messages            []Message
	Tools               []ToolDefinition
	Model               string
	MaxCompletionTokens int
}

// ChunkType identifies the kind of streaming chunk.
type ChunkType string

const (
	ChunkTypeText     ChunkType = "text"
	ChunkTypeToolCall ChunkType = "tool_call"
	ChunkTypeUsage    ChunkType = "usage"
	ChunkTypeError    ChunkType = "error"
)

// Chunk is the interface for all streaming chunk types the
// LanguageModel capability may emit.
type Chunk interface {
	ChunkType() ChunkType
}

// TextChunk is a fragment of the assistant's text response.
type TextChunk struct{ Content string }

// ToolCallChunk signals the model wants to call a tool.
type ToolCallChunk struct{ CallID, Name, Arguments string }

// UsageChunk reports token consumption for the turn just completed.
type UsageChunk struct {
	InputTokens, OutputTokens, CachedInputTokens, ReasoningTokens int
}

// ErrorChunk signals an error from the model provider. Message is
// inspected by the dispatcher's error classifier (errors.go).
type ErrorChunk struct {
	Message string
	Code    string
}

func (c *TextChunk) ChunkType() ChunkType     { return ChunkTypeText }
func (c *ToolCallChunk) ChunkType() ChunkType { return ChunkTypeToolCall }
func (c *UsageChunk) ChunkType() ChunkType    { return ChunkTypeUsage }
func (c *ErrorChunk) ChunkType() ChunkType    { return ChunkTypeError }

// LanguageModel is the out-of-scope external capability dispatch calls
// into. The shipped adapter (internal/llmclient) implements this
// against an OpenAI-compatible HTTP endpoint.
type LanguageModel interface {
	// Generate streams chunks for one turn. The returned channel is
	// closed when the turn completes; errors arrive as *ErrorChunk.
	Generate(ctx context.Context, in GenerateInput) (<-chan Chunk, error)
}
