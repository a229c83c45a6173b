package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// VoicevoxSource speaks the VOICEVOX engine protocol, which AivisSpeech and
// other family engines share: resolve an audio query for text+speaker, then
// submit the query to /synthesis.
type VoicevoxSource struct {
	*Client
}

func NewVoicevoxSource(cfg Config) *VoicevoxSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:50021"
	}
	return &VoicevoxSource{Client: NewClient("voicevox", cfg)}
}

// AudioQuery asks the engine for the phonetic query of text voiced by
// speaker. The query is what actually drives synthesis, so speed and other
// tweaks are applied to it before the second call.
func (s *VoicevoxSource) AudioQuery(ctx context.Context, text, speaker string) (map[string]any, error) {
	query := url.Values{}
	query.Set("text", text)
	query.Set("speaker", speaker)

	rc, err := s.FetchRaw(ctx, &Request{
		Method: http.MethodPost,
		URL:    s.BaseURL() + "/audio_query",
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var audioQuery map[string]any
	if err := json.NewDecoder(rc).Decode(&audioQuery); err != nil {
		return nil, &Error{Msg: "decode audio query", Err: err}
	}
	return audioQuery, nil
}

// CacheKey uses the requested format as the suffix so entries for different
// converter outputs of the same query can never collide.
func (s *VoicevoxSource) CacheKey(audioFormat, speaker string, audioQuery map[string]any) string {
	if audioFormat == "" {
		audioFormat = "wav"
	}
	return fmt.Sprintf("%s_%s.%s", speaker, HashJSON(audioQuery), audioFormat)
}

func (s *VoicevoxSource) ExtractText(audioQuery map[string]any) string {
	kana, _ := audioQuery["kana"].(string)
	return kana
}

func (s *VoicevoxSource) BuildRequest(speaker string, audioQuery map[string]any) (*Request, error) {
	body, err := json.Marshal(audioQuery)
	if err != nil {
		return nil, &Error{Msg: "encode audio query", Err: err}
	}
	query := url.Values{}
	query.Set("speaker", speaker)
	return &Request{
		Method: http.MethodPost,
		URL:    s.BaseURL() + "/synthesis",
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Query:  query,
		Body:   body,
	}, nil
}

// Synthesis streams audio for a resolved query through the shared pipeline.
func (s *VoicevoxSource) Synthesis(ctx context.Context, audioFormat, speaker string, audioQuery map[string]any) (io.ReadCloser, error) {
	req, err := s.BuildRequest(speaker, audioQuery)
	if err != nil {
		return nil, err
	}
	key := s.CacheKey(audioFormat, speaker, audioQuery)
	stream, _, err := s.Fetch(ctx, audioFormat, key, s.ExtractText(audioQuery), req)
	return stream, err
}
