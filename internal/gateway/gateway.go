package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/uezo/speech-gateway/internal/audiocache"
)

// TTSRequest is the canonical, provider-agnostic synthesis request.
type TTSRequest struct {
	// Text to synthesize. Required.
	Text string `json:"text"`
	// Speaker is the vendor-specific voice identifier. For Style-Bert-VITS2
	// it is the composite "{model_id}-{speaker_id}". Empty means the
	// registered default speaker of the resolved service.
	Speaker string `json:"speaker,omitempty"`
	// Style is a named preset (neutral, joy, angry, sorrow, fun, surprised)
	// mapped to each vendor's style identifiers. Matching is
	// case-insensitive.
	Style string `json:"style,omitempty"`
	// Speed is a multiplier where 1.0 is normal.
	Speed float64 `json:"speed,omitempty"`
	// ServiceName selects a provider explicitly; takes precedence over
	// Language.
	ServiceName string `json:"service_name,omitempty"`
	// Language routes to the gateway registered for this tag (e.g. "en-US")
	// when ServiceName is empty.
	Language string `json:"language,omitempty"`
	// AudioFormat of the response; defaults to "wav".
	AudioFormat string `json:"audio_format,omitempty"`
	// ExtraData is passed through to providers that accept vendor-specific
	// parameters.
	ExtraData map[string]any `json:"extra_data,omitempty"`
}

// Format returns the requested audio format, defaulting to wav.
func (r *TTSRequest) Format() string {
	if r.AudioFormat == "" {
		return "wav"
	}
	return r.AudioFormat
}

// AudioStream is a synthesized response ready to relay to the client.
type AudioStream struct {
	Reader      io.ReadCloser
	ContentType string
}

// SpeechGateway fronts one TTS provider with two surfaces: the unified
// adapter (Synthesize) and a raw vendor passthrough.
type SpeechGateway interface {
	Name() string
	Synthesize(ctx context.Context, req *TTSRequest) (*AudioStream, error)
	Passthrough(w http.ResponseWriter, r *http.Request, path string)
	Cache() audiocache.Store
	Close() error
}

// RouteRegistrar is implemented by gateways that expose extra native
// endpoints beyond plain passthrough.
type RouteRegistrar interface {
	RegisterRoutes(r Router)
}

// Router is the subset of route registration the gateways need; satisfied
// by chi.Router.
type Router interface {
	Get(pattern string, h http.HandlerFunc)
	Post(pattern string, h http.HandlerFunc)
}

// ErrNoGateway means no provider matched the request's service name,
// language, or default; a client-facing not-found condition.
var ErrNoGateway = errors.New("no gateway found")

// UnsupportedError means the resolved provider cannot structurally satisfy
// the unified request; surfaced as a client error naming the provider.
type UnsupportedError struct {
	Service string
	Reason  string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("service %s: %s", e.Service, e.Reason)
}

// resolveStyle looks the preset name up case-insensitively.
func resolveStyle(styles map[string]string, name string) (string, bool) {
	for k, v := range styles {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}
