package gateway

import (
	"context"
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

// fakeEngine mimics the VOICEVOX two-step protocol.
type fakeEngine struct {
	querySpeaker string
	synthSpeaker string
	synthQuery   map[string]any
	synthHits    int
	audio        []byte
}

func (e *fakeEngine) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/audio_query", func(w http.ResponseWriter, r *http.Request) {
		e.querySpeaker = r.URL.Query().Get("speaker")
		json.NewEncoder(w).Encode(map[string]any{
			"kana":       "コンニチワ",
			"speedScale": 1.0,
		})
	})
	mux.HandleFunc("/synthesis", func(w http.ResponseWriter, r *http.Request) {
		e.synthHits++
		e.synthSpeaker = r.URL.Query().Get("speaker")
		json.NewDecoder(r.Body).Decode(&e.synthQuery)
		w.Write(e.audio)
	})
	return mux
}

func newVoicevoxGateway(t *testing.T, engine *fakeEngine, styles map[string]map[string]string) *VoicevoxGateway {
	t.Helper()
	srv := httptest.NewServer(engine.handler())
	t.Cleanup(srv.Close)
	store, err := audiocache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	src := source.NewVoicevoxSource(source.Config{BaseURL: srv.URL, Cache: store})
	return NewVoicevoxGateway("voicevox", src, styles)
}

func TestVoicevoxTwoStepSynthesis(t *testing.T) {
	engine := &fakeEngine{audio: []byte("wav-audio")}
	g := newVoicevoxGateway(t, engine, nil)

	stream, err := g.Synthesize(context.Background(), &TTSRequest{Text: "こんにちは", Speaker: "46"})
	require.NoError(t, err)
	data, err := io.ReadAll(stream.Reader)
	require.NoError(t, err)
	stream.Reader.Close()

	assert.Equal(t, []byte("wav-audio"), data)
	assert.Equal(t, "audio/wav", stream.ContentType)
	assert.Equal(t, "46", engine.querySpeaker)
	assert.Equal(t, "46", engine.synthSpeaker)
	assert.Equal(t, "コンニチワ", engine.synthQuery["kana"])
}

func TestVoicevoxSpeedOverridesQuery(t *testing.T) {
	engine := &fakeEngine{audio: []byte("a")}
	g := newVoicevoxGateway(t, engine, nil)

	stream, err := g.Synthesize(context.Background(), &TTSRequest{Text: "x", Speaker: "46", Speed: 1.4})
	require.NoError(t, err)
	io.ReadAll(stream.Reader)
	stream.Reader.Close()

	assert.InDelta(t, 1.4, engine.synthQuery["speedScale"], 0.0001)
}

func TestVoicevoxStyleRemapsSpeaker(t *testing.T) {
	engine := &fakeEngine{audio: []byte("a")}
	g := newVoicevoxGateway(t, engine, map[string]map[string]string{
		"46": {"Joy": "47"},
	})

	stream, err := g.Synthesize(context.Background(), &TTSRequest{Text: "x", Speaker: "46", Style: "joy"})
	require.NoError(t, err)
	io.ReadAll(stream.Reader)
	stream.Reader.Close()

	assert.Equal(t, "47", engine.querySpeaker)
	assert.Equal(t, "47", engine.synthSpeaker)
}
