package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uezo/speech-gateway/internal/audiocache"
	"github.com/uezo/speech-gateway/internal/source"
)

func newSBV2Gateway(t *testing.T, upstream string, styles map[string]map[string]string) *SBV2Gateway {
	t.Helper()
	store, err := audiocache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	src := source.NewSBV2Source(source.Config{BaseURL: upstream, Cache: store})
	return NewSBV2Gateway("sbv2", src, styles)
}

func TestSBV2SynthesizeParams(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte("wav-bytes"))
	}))
	t.Cleanup(srv.Close)

	g := newSBV2Gateway(t, srv.URL, map[string]map[string]string{
		"0-0": {"Neutral": "0"},
	})

	stream, err := g.Synthesize(context.Background(), &TTSRequest{
		Text:    "hello",
		Speaker: "0-0",
		Style:   "neutral",
		Speed:   2.0,
	})
	require.NoError(t, err)
	data, err := io.ReadAll(stream.Reader)
	require.NoError(t, err)
	stream.Reader.Close()

	assert.Equal(t, []byte("wav-bytes"), data)
	assert.Equal(t, "audio/wav", stream.ContentType)
	assert.Equal(t, "hello", gotQuery.Get("text"))
	assert.Equal(t, "0", gotQuery.Get("model_id"))
	assert.Equal(t, "0", gotQuery.Get("speaker_id"))
	assert.Equal(t, "0", gotQuery.Get("style"))
	// length is duration scale, the inverse of speed.
	assert.Equal(t, "0.5", gotQuery.Get("length"))
}

func TestSBV2SpeakerMustBeComposite(t *testing.T) {
	g := newSBV2Gateway(t, "http://localhost:5000", nil)

	_, err := g.Synthesize(context.Background(), &TTSRequest{Text: "x", Speaker: "justone"})
	require.Error(t, err)
	var unsupported *UnsupportedError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "sbv2", unsupported.Service)
}

func TestSBV2UnknownStyleIgnored(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte("audio"))
	}))
	t.Cleanup(srv.Close)

	g := newSBV2Gateway(t, srv.URL, nil)

	stream, err := g.Synthesize(context.Background(), &TTSRequest{Text: "x", Speaker: "1-2", Style: "angry"})
	require.NoError(t, err)
	stream.Reader.Close()

	assert.False(t, gotQuery.Has("style"))
	assert.False(t, gotQuery.Has("length"))
}
