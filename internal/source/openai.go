package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAISource speaks the OpenAI /audio/speech protocol, including
// Azure-hosted OpenAI deployments which differ only in URL shape and auth
// header scheme.
type OpenAISource struct {
	*Client
	apiKey      string
	azureHosted bool
}

func NewOpenAISource(cfg Config, apiKey string) *OpenAISource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	return &OpenAISource{
		Client: NewClient("openai", cfg),
		apiKey: apiKey,
	}
}

// NewAzureOpenAISource points at an Azure-hosted deployment. baseURL is the
// full deployment speech URL including the api-version query.
func NewAzureOpenAISource(cfg Config, apiKey string) *OpenAISource {
	s := NewOpenAISource(cfg, apiKey)
	s.azureHosted = true
	return s
}

func (s *OpenAISource) CacheKey(audioFormat string, speech openai.CreateSpeechRequest) string {
	if speech.ResponseFormat != "" {
		audioFormat = string(speech.ResponseFormat)
	}
	if audioFormat == "" {
		audioFormat = "wav"
	}
	return fmt.Sprintf("%s.%s", HashJSON(speech), audioFormat)
}

func (s *OpenAISource) ExtractText(speech openai.CreateSpeechRequest) string {
	return speech.Input
}

func (s *OpenAISource) BuildRequest(speech openai.CreateSpeechRequest) (*Request, error) {
	body, err := json.Marshal(speech)
	if err != nil {
		return nil, &Error{Msg: "encode speech request", Err: err}
	}

	header := http.Header{"Content-Type": []string{"application/json"}}
	u := s.BaseURL()
	if s.azureHosted {
		header.Set("Api-Key", s.apiKey)
	} else {
		header.Set("Authorization", "Bearer "+s.apiKey)
		u += "/audio/speech"
	}

	return &Request{
		Method: http.MethodPost,
		URL:    u,
		Header: header,
		Body:   body,
	}, nil
}

func (s *OpenAISource) Speech(ctx context.Context, audioFormat string, speech openai.CreateSpeechRequest) (io.ReadCloser, error) {
	req, err := s.BuildRequest(speech)
	if err != nil {
		return nil, err
	}
	key := s.CacheKey(audioFormat, speech)
	stream, _, err := s.Fetch(ctx, audioFormat, key, s.ExtractText(speech), req)
	return stream, err
}
