package source

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// CoefontSource speaks the CoeFont cloud protocol. Every request carries an
// HMAC-SHA256 signature over the unix timestamp concatenated with the JSON
// body; the vendor replies with a redirect to the audio file, so this source
// follows redirects.
type CoefontSource struct {
	*Client
	accessKey    string
	accessSecret string
}

func NewCoefontSource(cfg Config, accessKey, accessSecret string) *CoefontSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.coefont.cloud/v2"
	}
	cfg.FollowRedirects = true
	return &CoefontSource{
		Client:       NewClient("coefont", cfg),
		accessKey:    accessKey,
		accessSecret: accessSecret,
	}
}

// Sign computes the request signature for a timestamp and body.
func (s *CoefontSource) Sign(date string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(s.accessSecret))
	mac.Write([]byte(date))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *CoefontSource) CacheKey(audioFormat string, body []byte) string {
	if audioFormat == "" {
		audioFormat = "wav"
	}
	return fmt.Sprintf("%s.%s", HashBytes(body), audioFormat)
}

func (s *CoefontSource) BuildRequest(body []byte) *Request {
	date := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	return &Request{
		Method: http.MethodPost,
		URL:    s.BaseURL() + "/text2speech",
		Header: http.Header{
			"Content-Type":      []string{"application/json"},
			"Authorization":     []string{s.accessKey},
			"X-Coefont-Date":    []string{date},
			"X-Coefont-Content": []string{s.Sign(date, body)},
		},
		Body: body,
	}
}

func (s *CoefontSource) Text2Speech(ctx context.Context, audioFormat string, body []byte, text string) (io.ReadCloser, error) {
	key := s.CacheKey(audioFormat, body)
	stream, _, err := s.Fetch(ctx, audioFormat, key, text, s.BuildRequest(body))
	return stream, err
}
