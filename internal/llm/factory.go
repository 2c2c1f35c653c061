package llm

import (
	"errors"
	"fmt"
)

// ErrUnknownTransport is returned for an unrecognised transport name.
var ErrUnknownTransport = errors.New("unknown transport")

// TransportConfig holds what's needed to construct a Transport.
type TransportConfig struct {
	Kind       string // "http" (default) or "sdk"
	BaseURL    string
	APIVersion string
	UserAgent  string
}

// NewTransport creates the appropriate Transport based on cfg.Kind.
func NewTransport(cfg TransportConfig) (Transport, error) {
	switch cfg.Kind {
	case "", "http":
		return NewHTTPTransport(cfg.BaseURL,
			WithAPIVersion(cfg.APIVersion),
			WithUserAgent(cfg.UserAgent),
		), nil

	case "sdk", "anthropic":
		return NewSDKTransport(cfg.BaseURL, cfg.APIVersion), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, cfg.Kind)
	}
}
