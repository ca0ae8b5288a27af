// Package llm defines the reasoning-oracle boundary: an opaque text/tool
// completion provider plus the wire types shared by everything that talks
// to it.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnavailable marks transient provider failures (timeouts, rate limits,
// outages). Callers degrade to deterministic output instead of surfacing
// it raw.
var ErrUnavailable = errors.New("llm provider unavailable")

// Provider is the interface for any LLM backend.
type Provider interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Request represents the input to the provider, including the conversation
// history and available tools.
type Request struct {
	MaxTokens int
	System    string
	Messages  []Message
	Tools     []ToolDef
}

// Response represents the provider output: generated content, stop reason,
// and token usage.
type Response struct {
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
	Model      string
}

// StopReason indicates why the provider stopped generating, such as
// reaching the end of the response or requesting a tool call.
type StopReason string

const (
	StopEnd     StopReason = "end_turn"
	StopToolUse StopReason = "tool_use"
)

// Message represents a single message in the conversation, from the user or
// the assistant, containing text and/or tool call blocks.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ToolDef is the format for tool definitions expected by the provider API.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
