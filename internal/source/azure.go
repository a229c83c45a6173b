package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// AzureSource speaks the Azure Cognitive Services speech protocol: SSML in,
// audio out, with the vendor format selected by a request header.
type AzureSource struct {
	*Client
	apiKey string
}

func NewAzureSource(cfg Config, apiKey, region string) *AzureSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://{region}.tts.speech.microsoft.com/cognitiveservices/v1"
	}
	cfg.BaseURL = strings.ReplaceAll(cfg.BaseURL, "{region}", region)
	return &AzureSource{
		Client: NewClient("azure", cfg),
		apiKey: apiKey,
	}
}

func (s *AzureSource) CacheKey(audioFormat string, ssml []byte) string {
	if audioFormat == "" {
		audioFormat = "wav"
	}
	return fmt.Sprintf("%s.%s", HashBytes(ssml), audioFormat)
}

func (s *AzureSource) ExtractText(ssml []byte) string {
	return string(ssml)
}

func (s *AzureSource) BuildRequest(azureAudioFormat string, ssml []byte) *Request {
	return &Request{
		Method: http.MethodPost,
		URL:    s.BaseURL(),
		Header: http.Header{
			"X-Microsoft-Outputformat":  []string{azureAudioFormat},
			"Content-Type":              []string{"application/ssml+xml"},
			"Ocp-Apim-Subscription-Key": []string{s.apiKey},
		},
		Body: ssml,
	}
}

func (s *AzureSource) Synthesize(ctx context.Context, audioFormat, azureAudioFormat string, ssml []byte) (io.ReadCloser, error) {
	key := s.CacheKey(audioFormat, ssml)
	stream, _, err := s.Fetch(ctx, audioFormat, key, s.ExtractText(ssml), s.BuildRequest(azureAudioFormat, ssml))
	return stream, err
}
