package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type messagesPayload struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
}

// EncodeRequest serializes req as a Messages API body.
func EncodeRequest(req Request) ([]byte, error) {
	payload := messagesPayload{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		System:    req.SystemPrompt,
		Messages:  []Message{{Role: "user", Content: req.Prompt}},
	}
	return json.Marshal(payload)
}

// DecodeResponse extracts the first text block of a 200 reply. Only
// malformed JSON is a parse failure; well-formed replies of any other shape
// fall through to the API error or unexpected-format messages.
func DecodeResponse(body []byte) Response {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return ErrorResponse(KindParse, fmt.Sprintf("Error: Failed to parse JSON response: %v", err))
	}

	var reply map[string]json.RawMessage
	if err := json.Unmarshal(body, &reply); err != nil {
		return unexpectedFormat(body)
	}

	if text, ok := firstText(reply["content"]); ok {
		return TextResponse(text)
	}

	if raw, ok := reply["error"]; ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return ErrorResponse(KindAPI, "Error from Claude API: "+apiErrorMessage(raw))
	}

	return unexpectedFormat(body)
}

func unexpectedFormat(body []byte) Response {
	return ErrorResponse(KindFormat, "Error: Unexpected response format from Claude API: "+string(body))
}

// firstText scans content block by block; blocks that are not
// {"type":"text","text":<string>} are skipped.
func firstText(content json.RawMessage) (string, bool) {
	var blocks []json.RawMessage
	if err := json.Unmarshal(content, &blocks); err != nil {
		return "", false
	}
	for _, raw := range blocks {
		var block map[string]json.RawMessage
		if err := json.Unmarshal(raw, &block); err != nil {
			continue
		}
		var typ string
		if json.Unmarshal(block["type"], &typ) != nil || typ != "text" {
			continue
		}
		var text *string
		if json.Unmarshal(block["text"], &text) != nil || text == nil {
			continue
		}
		return *text, true
	}
	return "", false
}

// apiErrorMessage flattens the "error" member, which the API sends either as
// a bare string or as {"type": ..., "message": ...}.
func apiErrorMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && (obj.Type != "" || obj.Message != "") {
		switch {
		case obj.Type != "" && obj.Message != "":
			return obj.Type + ": " + obj.Message
		case obj.Message != "":
			return obj.Message
		default:
			return obj.Type
		}
	}

	return strings.TrimSpace(string(raw))
}
