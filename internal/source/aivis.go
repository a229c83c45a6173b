package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// AivisSource speaks the Aivis Cloud API: a bearer-token JSON endpoint.
type AivisSource struct {
	*Client
	apiKey string
}

func NewAivisSource(cfg Config, apiKey string) *AivisSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.aivis-project.com/v1"
	}
	return &AivisSource{
		Client: NewClient("aivis", cfg),
		apiKey: apiKey,
	}
}

func (s *AivisSource) CacheKey(audioFormat string, body map[string]any) string {
	if audioFormat == "" {
		audioFormat = "wav"
	}
	return fmt.Sprintf("%s.%s", HashJSON(body), audioFormat)
}

func (s *AivisSource) ExtractText(body map[string]any) string {
	text, _ := body["text"].(string)
	return text
}

func (s *AivisSource) BuildRequest(body map[string]any) (*Request, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Msg: "encode synthesize request", Err: err}
	}
	return &Request{
		Method: http.MethodPost,
		URL:    s.BaseURL() + "/tts/synthesize",
		Header: http.Header{
			"Content-Type":  []string{"application/json"},
			"Authorization": []string{"Bearer " + s.apiKey},
		},
		Body: encoded,
	}, nil
}

func (s *AivisSource) Synthesize(ctx context.Context, audioFormat string, body map[string]any) (io.ReadCloser, error) {
	req, err := s.BuildRequest(body)
	if err != nil {
		return nil, err
	}
	key := s.CacheKey(audioFormat, body)
	stream, _, err := s.Fetch(ctx, audioFormat, key, s.ExtractText(body), req)
	return stream, err
}
