package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uezo/speech-gateway/internal/audiocache"
	"github.com/uezo/speech-gateway/internal/config"
	"github.com/uezo/speech-gateway/internal/gateway"
	"github.com/uezo/speech-gateway/internal/source"
)

func testConfig(token string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RateLimitRPS: 1000, RateLimitBurst: 1000},
		Auth:   config.AuthConfig{Token: token},
	}
}

// newVoiceBackend is a minimal Style-Bert-VITS2 style upstream that counts
// synthesis hits.
func newVoiceBackend(t *testing.T, audio []byte) (*httptest.Server, *int) {
	t.Helper()
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/voice" {
			hits++
		}
		w.Write(audio)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestServer(t *testing.T, cfg *config.Config, upstream string) *httptest.Server {
	t.Helper()
	store, err := audiocache.NewFileStore(t.TempDir())
	require.NoError(t, err)

	src := source.NewSBV2Source(source.Config{BaseURL: upstream, Cache: store})
	gw := gateway.NewSBV2Gateway("sbv2", src, nil)

	ug := gateway.NewUnifiedGateway("ja-JP")
	ug.Register("sbv2", gw, []string{"ja-JP"}, "0-0", true)

	handler := NewRouter(nil, nil, cfg, ug).Setup()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func postTTS(t *testing.T, srv *httptest.Server, body map[string]any, headers map[string]string) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/tts", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestTTSSynthesizeAndCacheHit(t *testing.T) {
	audio := []byte("RIFF....WAVEfake")
	upstream, hits := newVoiceBackend(t, audio)
	srv := newTestServer(t, testConfig(""), upstream.URL)

	body := map[string]any{"text": "hello", "speaker": "0-0"}

	resp := postTTS(t, srv, body, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
	first, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, audio, first)
	assert.Equal(t, 1, *hits)

	resp = postTTS(t, srv, body, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, *hits, "second request must be served from cache")
}

func TestTTSDefaultVoicevoxGateway(t *testing.T) {
	wav := append([]byte("RIFF\x24\x00\x00\x00WAVE"), []byte("fmt-and-data")...)
	var querySpeaker string
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/audio_query":
			querySpeaker = r.URL.Query().Get("speaker")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"kana":"ハロー","speedScale":1.0}`))
		case "/synthesis":
			w.Write(wav)
		}
	}))
	t.Cleanup(engine.Close)

	store, err := audiocache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	src := source.NewVoicevoxSource(source.Config{BaseURL: engine.URL, Cache: store})
	ug := gateway.NewUnifiedGateway("ja-JP")
	ug.Register("voicevox", gateway.NewVoicevoxGateway("voicevox", src, nil), nil, "46", true)

	srv := httptest.NewServer(NewRouter(nil, nil, testConfig(""), ug).Setup())
	t.Cleanup(srv.Close)

	resp := postTTS(t, srv, map[string]any{"text": "hello"}, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, "RIFF", string(body[:4]))
	assert.Equal(t, "WAVE", string(body[8:12]))
	// The registered default speaker backfills the empty request.
	assert.Equal(t, "46", querySpeaker)
}

func TestTTSValidation(t *testing.T) {
	upstream, _ := newVoiceBackend(t, []byte("a"))
	srv := newTestServer(t, testConfig(""), upstream.URL)

	resp := postTTS(t, srv, map[string]any{"speaker": "0-0"}, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postTTS(t, srv, map[string]any{"text": "hi", "service_name": "unknown"}, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTTSUpstreamFailureIsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(upstream.Close)
	srv := newTestServer(t, testConfig(""), upstream.URL)

	resp := postTTS(t, srv, map[string]any{"text": "hi", "speaker": "0-0"}, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestCachePurgeEndpoint(t *testing.T) {
	upstream, _ := newVoiceBackend(t, []byte("a"))
	srv := newTestServer(t, testConfig(""), upstream.URL)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/cache", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/cache?service_name=unknown", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/cache?service_name=sbv2", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBearerAuth(t *testing.T) {
	upstream, _ := newVoiceBackend(t, []byte("a"))
	srv := newTestServer(t, testConfig("secret-token"), upstream.URL)

	body := map[string]any{"text": "hi", "speaker": "0-0"}

	resp := postTTS(t, srv, body, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postTTS(t, srv, body, map[string]string{"Authorization": "Bearer wrong"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postTTS(t, srv, body, map[string]string{"Authorization": "Bearer secret-token"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health stays open without a token.
	hr, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer hr.Body.Close()
	assert.Equal(t, http.StatusOK, hr.StatusCode)
}

func TestPassthroughMount(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"models":[]}`))
	}))
	t.Cleanup(upstream.Close)
	srv := newTestServer(t, testConfig(""), upstream.URL)

	resp, err := http.Get(srv.URL + "/sbv2/models/info")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, []byte(`{"models":[]}`), body)
	assert.Equal(t, "/models/info", gotPath)
}

func TestHealthz(t *testing.T) {
	upstream, _ := newVoiceBackend(t, []byte("a"))
	srv := newTestServer(t, testConfig(""), upstream.URL)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "ok", payload["status"])
}
