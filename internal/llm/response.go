package llm

import "fmt"

// ErrorKind classifies a failed query.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindMissingKey ErrorKind = "missing_key"
	KindEncode     ErrorKind = "encode"
	KindTransport  ErrorKind = "transport"
	KindStatus     ErrorKind = "status"
	KindParse      ErrorKind = "parse"
	KindAPI        ErrorKind = "api"
	KindFormat     ErrorKind = "format"
	KindRateLimit  ErrorKind = "rate_limit"
	KindCancelled  ErrorKind = "cancelled"
)

// Messages surfaced to the host binding layer. The host matches on these
// prefixes, so they must not change.
const (
	msgMissingKey = "Error: Claude API key not set."
	msgRateLimit  = "Error: Only one Claude query allowed per turn."
)

// Response is the outcome of one query: either assistant text or an error.
type Response struct {
	Text       string    `json:"text,omitempty"`
	Kind       ErrorKind `json:"kind,omitempty"`
	Message    string    `json:"message,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Stage      Stage     `json:"stage,omitempty"`
}

// TextResponse wraps successful assistant text.
func TextResponse(text string) Response {
	return Response{Text: text}
}

// ErrorResponse builds a failed Response.
func ErrorResponse(kind ErrorKind, message string) Response {
	return Response{Kind: kind, Message: message}
}

// MissingKeyResponse is returned when no API key is configured.
func MissingKeyResponse() Response {
	return ErrorResponse(KindMissingKey, msgMissingKey)
}

// RateLimitResponse is returned when a turn already had its query.
func RateLimitResponse() Response {
	return ErrorResponse(KindRateLimit, msgRateLimit)
}

// CancelledResponse records a background query abandoned before it started.
func CancelledResponse() Response {
	return ErrorResponse(KindCancelled, "Error: Query cancelled before it started.")
}

// StatusResponse reports a non-200 reply with its raw body.
func StatusResponse(code int, body []byte) Response {
	r := ErrorResponse(KindStatus, fmt.Sprintf("Error: Claude API returned status code %d. Response: %s", code, body))
	r.StatusCode = code
	return r
}

// IsError reports whether the query failed.
func (r Response) IsError() bool { return r.Kind != KindNone }

// IsZero reports whether r is the empty sentinel.
func (r Response) IsZero() bool { return r == Response{} }

// String renders the response the way the host sees it: the text on
// success, the error message otherwise. The zero Response renders as "".
func (r Response) String() string {
	if r.IsError() {
		return r.Message
	}
	return r.Text
}
