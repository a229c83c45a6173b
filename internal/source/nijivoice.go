package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/uezo/speech-gateway/internal/metrics"
)

// NijiVoiceSource speaks the NijiVoice platform protocol. Generation is
// two-phase: generate-voice returns a URL to the audio, which the gateway
// rewrites to point back at itself so the follow-up fetch flows through the
// cache. The encoded variant returns base64 audio inline in JSON instead.
type NijiVoiceSource struct {
	*Client
	apiKey string
}

func NewNijiVoiceSource(cfg Config, apiKey string) *NijiVoiceSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.nijivoice.com"
	}
	// The generated audio URL redirects to object storage.
	cfg.FollowRedirects = true
	return &NijiVoiceSource{
		Client: NewClient("nijivoice", cfg),
		apiKey: apiKey,
	}
}

func (s *NijiVoiceSource) CacheKey(audioFormat, voiceActorID string, payload map[string]any) string {
	if audioFormat == "" {
		audioFormat = "mp3"
	}
	return fmt.Sprintf("%s_%s.%s", voiceActorID, HashJSON(payload), audioFormat)
}

func (s *NijiVoiceSource) EncodedCacheKey(audioFormat, voiceActorID string, payload map[string]any) string {
	if audioFormat == "" {
		if f, ok := payload["format"].(string); ok && f != "" {
			audioFormat = f
		} else {
			audioFormat = "mp3"
		}
	}
	return fmt.Sprintf("%s_%s.%s.json", voiceActorID, HashJSON(payload), audioFormat)
}

// GenerateVoice runs the first phase and rewrites the returned audio URLs to
// gatewayBaseURL's get-voice endpoint with the cache key embedded, so the
// client's follow-up fetch lands back on this gateway. When the key is
// already cached the upstream call is skipped entirely.
func (s *NijiVoiceSource) GenerateVoice(ctx context.Context, voiceActorID string, payload map[string]any, gatewayBaseURL, audioFormat string) (map[string]any, error) {
	start := time.Now()
	key := s.CacheKey(audioFormat, voiceActorID, payload)
	cached := s.Cache() != nil && s.Cache().Exists(ctx, key)

	var data map[string]any
	if cached {
		gatewayVoiceURL := s.gatewayVoiceURL(gatewayBaseURL, voiceActorID, key, audioFormat, "")
		data = map[string]any{
			"generatedVoice": map[string]any{
				"audioFileUrl":         gatewayVoiceURL,
				"audioFileDownloadUrl": gatewayVoiceURL + "&download=true",
			},
		}
	} else {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Msg: "encode generate-voice payload", Err: err}
		}
		rc, err := s.FetchRaw(ctx, &Request{
			Method: http.MethodPost,
			URL:    fmt.Sprintf("%s/api/platform/v1/voice-actors/%s/generate-voice", s.BaseURL(), voiceActorID),
			Header: http.Header{
				"X-Api-Key":    []string{s.apiKey},
				"Content-Type": []string{"application/json"},
			},
			Body: body,
		})
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		if err := json.NewDecoder(rc).Decode(&data); err != nil {
			return nil, &Error{Msg: "decode generate-voice response", Err: err}
		}

		if generated, ok := data["generatedVoice"].(map[string]any); ok {
			audioFileURL, _ := generated["audioFileUrl"].(string)
			gatewayVoiceURL := s.gatewayVoiceURL(gatewayBaseURL, voiceActorID, key, audioFormat, audioFileURL)
			generated["audioFileUrl"] = gatewayVoiceURL
			generated["audioFileDownloadUrl"] = gatewayVoiceURL + "&download=true"
		}
	}

	text, _ := payload["script"].(string)
	s.Recorder().Record(metrics.Record{
		ProcessID:   key,
		Source:      s.Name(),
		Text:        text,
		AudioFormat: audioFormat,
		Cached:      cached,
		Elapsed:     time.Since(start),
	})
	return data, nil
}

func (s *NijiVoiceSource) gatewayVoiceURL(gatewayBaseURL, voiceActorID, cacheKey, audioFormat, upstreamURL string) string {
	query := url.Values{}
	if upstreamURL != "" {
		query.Set("url", upstreamURL)
	}
	query.Set("cache_key", cacheKey)
	query.Set("x_audio_format", audioFormat)
	return fmt.Sprintf("%s/api/platform/v1/voice-actors/%s/get-voice?%s", gatewayBaseURL, voiceActorID, query.Encode())
}

// FetchVoice runs the second phase: stream the generated audio from the
// upstream URL (or straight from cache when rawURL is empty) under the
// cache key minted by GenerateVoice.
func (s *NijiVoiceSource) FetchVoice(ctx context.Context, audioFormat, cacheKey, rawURL string) (io.ReadCloser, error) {
	req := &Request{Method: http.MethodGet, URL: rawURL}
	stream, _, err := s.Fetch(ctx, audioFormat, cacheKey, "", req)
	return stream, err
}

// GenerateEncodedVoice calls the inline-audio variant; the response is a
// JSON document carrying base64 audio, cached as-is.
func (s *NijiVoiceSource) GenerateEncodedVoice(ctx context.Context, audioFormat, voiceActorID string, payload map[string]any) (io.ReadCloser, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Msg: "encode generate-encoded-voice payload", Err: err}
	}
	req := &Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/api/platform/v1/voice-actors/%s/generate-encoded-voice", s.BaseURL(), voiceActorID),
		Header: http.Header{
			"X-Api-Key":    []string{s.apiKey},
			"Content-Type": []string{"application/json"},
		},
		Body: body,
	}

	text, _ := payload["script"].(string)
	key := s.EncodedCacheKey(audioFormat, voiceActorID, payload)
	stream, _, err := s.Fetch(ctx, audioFormat, key, text, req)
	return stream, err
}
