// Package llm talks to the Anthropic Messages API: it encodes a single-turn
// request, posts it through a Transport and extracts the reply text.
package llm

// Message represents a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one outbound query. SystemPrompt is omitted from the payload
// when empty.
type Request struct {
	APIKey       string
	Model        string
	MaxTokens    int
	Prompt       string
	SystemPrompt string
}
