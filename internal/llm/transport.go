package llm

import (
	"context"
	"fmt"
)

// Fixed endpoint details of the Messages API.
const (
	DefaultBaseURL    = "https://api.anthropic.com"
	MessagesPath      = "/v1/messages"
	DefaultAPIVersion = "2023-06-01"
	DefaultUserAgent  = "turnbridge/1.0"
)

// Stage names the point of the exchange where a transport failed.
type Stage string

const (
	StageSession Stage = "session"
	StageConnect Stage = "connect"
	StageRequest Stage = "request"
	StageSend    Stage = "send"
	StageReceive Stage = "receive"
)

// RawResponse is the undecoded reply of the API.
type RawResponse struct {
	StatusCode int
	Body       []byte
}

// Transport performs one POST of an encoded Messages request.
type Transport interface {
	Post(ctx context.Context, apiKey string, body []byte) (*RawResponse, error)
}

// TransportError records which stage of the exchange failed.
type TransportError struct {
	Stage Stage
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func stageError(stage Stage, err error) *TransportError {
	return &TransportError{Stage: stage, Err: err}
}

// transportResponse maps a stage failure to the message the host expects.
func transportResponse(te *TransportError) Response {
	var msg string
	switch te.Stage {
	case StageSession:
		msg = "Error: Failed to open HTTP session."
	case StageConnect:
		msg = "Error: Failed to connect to Claude API."
	case StageRequest:
		msg = "Error: Failed to open HTTP request."
	case StageSend:
		msg = fmt.Sprintf("Error: Failed to send HTTP request. %v", te.Err)
	default:
		msg = "Error: Failed to receive HTTP response."
	}
	r := ErrorResponse(KindTransport, msg)
	r.Stage = te.Stage
	return r
}
