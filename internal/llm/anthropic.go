package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// SDKTransport sends the same Messages exchange through the Anthropic SDK's
// low-level Post, so the codec stays in this package.
type SDKTransport struct {
	client     *anthropic.Client
	apiVersion string
}

func NewSDKTransport(baseURL, apiVersion string) *SDKTransport {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	c := anthropic.NewClient(opts...)
	return &SDKTransport{
		client:     &c,
		apiVersion: apiVersion,
	}
}

func (t *SDKTransport) Post(ctx context.Context, apiKey string, body []byte) (*RawResponse, error) {
	var (
		httpResp *http.Response
		data     []byte
	)
	err := t.client.Post(ctx, strings.TrimPrefix(MessagesPath, "/"), json.RawMessage(body), &data,
		option.WithAPIKey(apiKey),
		option.WithHeader("anthropic-version", t.apiVersion),
		option.WithResponseInto(&httpResp),
	)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return &RawResponse{StatusCode: apiErr.StatusCode, Body: []byte(apiErr.RawJSON())}, nil
		}
		if isDialError(err) {
			return nil, stageError(StageConnect, err)
		}
		return nil, stageError(StageSend, err)
	}

	status := http.StatusOK
	if httpResp != nil {
		status = httpResp.StatusCode
	}
	return &RawResponse{StatusCode: status, Body: data}, nil
}
