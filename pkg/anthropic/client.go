// Package anthropic wraps the Messages API for single-turn extraction
// prompts: one cached system prompt, one bulletin, one JSON answer.
package anthropic

import (
	"context"
	"strings"
)

// Client defines the Anthropic API operations used by the llm extraction strategy.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest describes one extraction call.
type MessageRequest struct {
	Model     string
	MaxTokens int64
	System    []SystemBlock
	Messages  []Message

	// Prefill is sent as the start of the assistant turn and prepended to
	// the returned text, e.g. "{" to force a bare JSON object.
	Prefill string
}

// SystemBlock represents a system prompt block, optionally with cache control.
type SystemBlock struct {
	Text         string
	CacheControl *CacheControl
}

// CacheControl configures caching for a content block.
type CacheControl struct {
	TTL string // "5m" or "1h"
}

// Message represents a single conversational message.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Stop reasons reported by the API.
const (
	StopEndTurn   = "end_turn"
	StopMaxTokens = "max_tokens"
)

// MessageResponse is the answer to a MessageRequest.
type MessageResponse struct {
	Model      string
	Content    []ContentBlock
	StopReason string
	Usage      TokenUsage
}

// ContentBlock represents a block of content in a response.
type ContentBlock struct {
	Type string
	Text string
}

// Text concatenates the response's text blocks.
func (r *MessageResponse) Text() string {
	var b strings.Builder
	for _, c := range r.Content {
		if c.Type == "text" || c.Type == "" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// Truncated reports whether generation stopped at the token limit, in
// which case the JSON answer is incomplete.
func (r *MessageResponse) Truncated() bool {
	return r.StopReason == StopMaxTokens
}
