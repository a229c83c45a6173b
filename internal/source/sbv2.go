package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// SBV2Source speaks the Style-Bert-VITS2 server protocol: a single GET
// /voice call with everything in query parameters.
type SBV2Source struct {
	*Client
}

func NewSBV2Source(cfg Config) *SBV2Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:5000"
	}
	return &SBV2Source{Client: NewClient("sbv2", cfg)}
}

func (s *SBV2Source) CacheKey(audioFormat string, params url.Values) string {
	if audioFormat == "" {
		audioFormat = "wav"
	}
	return fmt.Sprintf("%s.%s", HashQuery(params), audioFormat)
}

func (s *SBV2Source) ExtractText(params url.Values) string {
	return params.Get("text")
}

func (s *SBV2Source) BuildRequest(params url.Values) *Request {
	return &Request{
		Method: http.MethodGet,
		URL:    s.BaseURL() + "/voice",
		Query:  params,
	}
}

func (s *SBV2Source) Voice(ctx context.Context, audioFormat string, params url.Values) (io.ReadCloser, error) {
	key := s.CacheKey(audioFormat, params)
	stream, _, err := s.Fetch(ctx, audioFormat, key, s.ExtractText(params), s.BuildRequest(params))
	return stream, err
}
