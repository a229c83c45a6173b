package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uezo/speech-gateway/internal/audiocache"
)

// fakeGateway records the last request it synthesized.
type fakeGateway struct {
	name    string
	lastReq *TTSRequest
	cache   audiocache.Store
	closed  bool
}

func (f *fakeGateway) Name() string { return f.name }

func (f *fakeGateway) Synthesize(_ context.Context, req *TTSRequest) (*AudioStream, error) {
	f.lastReq = req
	return &AudioStream{
		Reader:      io.NopCloser(bytes.NewReader([]byte(f.name))),
		ContentType: "audio/" + req.Format(),
	}, nil
}

func (f *fakeGateway) Passthrough(http.ResponseWriter, *http.Request, string) {}
func (f *fakeGateway) Cache() audiocache.Store                                { return f.cache }
func (f *fakeGateway) Close() error                                           { f.closed = true; return nil }

func TestUnifiedResolvePrecedence(t *testing.T) {
	ug := NewUnifiedGateway("ja-JP")
	def := &fakeGateway{name: "voicevox"}
	english := &fakeGateway{name: "openai"}
	ug.Register("voicevox", def, nil, "46", true)
	ug.Register("openai", english, []string{"en-US"}, "alloy", false)

	// Service name wins even when a language is also set.
	got := ug.Resolve(&TTSRequest{ServiceName: "openai", Language: "ja-JP"})
	assert.Equal(t, "openai", got.Name())

	// Language routes when no service name is given.
	got = ug.Resolve(&TTSRequest{Language: "en-US"})
	assert.Equal(t, "openai", got.Name())

	// The default gateway also serves the default language tag.
	got = ug.Resolve(&TTSRequest{Language: "ja-JP"})
	assert.Equal(t, "voicevox", got.Name())

	// Unknown language falls back to the default gateway.
	got = ug.Resolve(&TTSRequest{Language: "fr-FR"})
	assert.Equal(t, "voicevox", got.Name())

	// Nothing set at all resolves to the default.
	got = ug.Resolve(&TTSRequest{})
	assert.Equal(t, "voicevox", got.Name())

	// Unknown service name resolves to nothing, not to the default.
	assert.Nil(t, ug.Resolve(&TTSRequest{ServiceName: "unknown"}))
}

func TestUnifiedDispatchBackfillsSpeaker(t *testing.T) {
	ug := NewUnifiedGateway("")
	gw := &fakeGateway{name: "voicevox"}
	ug.Register("voicevox", gw, nil, "46", true)

	stream, err := ug.Dispatch(context.Background(), &TTSRequest{Text: "hello"})
	require.NoError(t, err)
	stream.Reader.Close()

	assert.Equal(t, "46", gw.lastReq.Speaker)

	// An explicit speaker is kept.
	stream, err = ug.Dispatch(context.Background(), &TTSRequest{Text: "hello", Speaker: "8"})
	require.NoError(t, err)
	stream.Reader.Close()
	assert.Equal(t, "8", gw.lastReq.Speaker)
}

func TestUnifiedDispatchNoGateway(t *testing.T) {
	ug := NewUnifiedGateway("")

	_, err := ug.Dispatch(context.Background(), &TTSRequest{Text: "hello"})
	assert.ErrorIs(t, err, ErrNoGateway)

	ug.Register("voicevox", &fakeGateway{name: "voicevox"}, nil, "", false)
	_, err = ug.Dispatch(context.Background(), &TTSRequest{Text: "hello", ServiceName: "nope"})
	assert.ErrorIs(t, err, ErrNoGateway)
}

func TestUnifiedPurgeCache(t *testing.T) {
	store, err := audiocache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	w, err := store.Create(ctx, "x.wav")
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	ug := NewUnifiedGateway("")
	ug.Register("voicevox", &fakeGateway{name: "voicevox", cache: store}, nil, "", true)

	assert.ErrorIs(t, ug.PurgeCache(ctx, "unknown"), ErrNoGateway)

	require.NoError(t, ug.PurgeCache(ctx, "voicevox"))
	assert.False(t, store.Exists(ctx, "x.wav"))
}

func TestUnifiedServiceNamesSorted(t *testing.T) {
	ug := NewUnifiedGateway("")
	ug.Register("voicevox", &fakeGateway{name: "voicevox"}, nil, "", false)
	ug.Register("azure", &fakeGateway{name: "azure"}, nil, "", false)
	ug.Register("openai", &fakeGateway{name: "openai"}, nil, "", false)

	assert.Equal(t, []string{"azure", "openai", "voicevox"}, ug.ServiceNames())
}

func TestUnifiedCloseClosesAll(t *testing.T) {
	ug := NewUnifiedGateway("")
	a := &fakeGateway{name: "a"}
	b := &fakeGateway{name: "b"}
	ug.Register("a", a, nil, "", false)
	ug.Register("b", b, nil, "", false)

	ug.Close()
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestResolveStyleCaseInsensitive(t *testing.T) {
	styles := map[string]string{"Neutral": "0", "Joy": "1"}

	got, ok := resolveStyle(styles, "neutral")
	assert.True(t, ok)
	assert.Equal(t, "0", got)

	got, ok = resolveStyle(styles, "JOY")
	assert.True(t, ok)
	assert.Equal(t, "1", got)

	_, ok = resolveStyle(styles, "angry")
	assert.False(t, ok)
}
