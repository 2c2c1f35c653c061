package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Query sends req through t and returns the reply text or an error
// Response. It never retries.
func Query(ctx context.Context, t Transport, req Request) Response {
	if req.APIKey == "" {
		return MissingKeyResponse()
	}

	body, err := EncodeRequest(req)
	if err != nil {
		return ErrorResponse(KindEncode, fmt.Sprintf("Error: Failed to encode request: %v", err))
	}

	raw, err := t.Post(ctx, req.APIKey, body)
	if err != nil {
		var te *TransportError
		if !errors.As(err, &te) {
			te = stageError(StageSend, err)
		}
		return transportResponse(te)
	}

	if raw.StatusCode != http.StatusOK {
		return StatusResponse(raw.StatusCode, raw.Body)
	}
	return DecodeResponse(raw.Body)
}
