package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uezo/speech-gateway/internal/audiocache"
	"github.com/uezo/speech-gateway/internal/source"
)

func TestNijiVoiceSynthesizeDecodesInlineAudio(t *testing.T) {
	audio := []byte("mp3-frames")
	var gotPayload map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "/generate-encoded-voice")
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(map[string]any{
			"generatedVoice": map[string]any{
				"base64Audio": base64.StdEncoding.EncodeToString(audio),
			},
		})
	}))
	t.Cleanup(upstream.Close)

	store, err := audiocache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	src := source.NewNijiVoiceSource(source.Config{BaseURL: upstream.URL, Cache: store}, "k")
	g := NewNijiVoiceGateway("nijivoice", src, map[string]float64{"actor-1": 1.3})

	stream, err := g.Synthesize(context.Background(), &TTSRequest{
		Text:        "こんにちは",
		Speaker:     "actor-1",
		AudioFormat: "mp3",
	})
	require.NoError(t, err)
	got, err := io.ReadAll(stream.Reader)
	require.NoError(t, err)
	stream.Reader.Close()

	assert.Equal(t, audio, got)
	assert.Equal(t, "audio/mp3", stream.ContentType)
	assert.Equal(t, "こんにちは", gotPayload["script"])
	// Per-speaker default speed applies when the request leaves it unset,
	// serialized as a string for the vendor.
	assert.Equal(t, "1.3", gotPayload["speed"])
	assert.Equal(t, "mp3", gotPayload["format"])
}

func TestNijiVoiceWavFallsBackForUnknownFormat(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		assert.Equal(t, "wav", payload["format"])
		json.NewEncoder(w).Encode(map[string]any{
			"generatedVoice": map[string]any{"base64Audio": ""},
		})
	}))
	t.Cleanup(upstream.Close)

	src := source.NewNijiVoiceSource(source.Config{BaseURL: upstream.URL}, "k")
	g := NewNijiVoiceGateway("nijivoice", src, nil)

	stream, err := g.Synthesize(context.Background(), &TTSRequest{Text: "x", Speaker: "a"})
	require.NoError(t, err)
	stream.Reader.Close()
	assert.Equal(t, "audio/wav", stream.ContentType)
}

func TestNijiVoiceGetVoiceEndpoint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("voice-bytes"))
	}))
	t.Cleanup(upstream.Close)

	store, err := audiocache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	src := source.NewNijiVoiceSource(source.Config{BaseURL: upstream.URL, Cache: store}, "k")
	g := NewNijiVoiceGateway("nijivoice", src, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/nijivoice/api/platform/v1/voice-actors/a/get-voice?url="+upstream.URL+"/f.mp3&cache_key=a_x.mp3&x_audio_format=mp3&download=true", nil)
	rec := httptest.NewRecorder()
	g.handleGetVoice(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mp3", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "voice-bytes", rec.Body.String())
}
