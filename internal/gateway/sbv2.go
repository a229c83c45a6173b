package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/uezo/speech-gateway/internal/audiocache"
	"github.com/uezo/speech-gateway/internal/source"
)

// SBV2Gateway fronts a Style-Bert-VITS2 server. The unified speaker is the
// composite "{model_id}-{speaker_id}" token, and the vendor's length
// parameter is inversely proportional to speed.
type SBV2Gateway struct {
	name   string
	src    *source.SBV2Source
	styles map[string]map[string]string // speaker -> style name -> vendor style
	proxy  *proxyHandler
}

func NewSBV2Gateway(name string, src *source.SBV2Source, styles map[string]map[string]string) *SBV2Gateway {
	return &SBV2Gateway{
		name:   name,
		src:    src,
		styles: styles,
		proxy:  &proxyHandler{name: name, client: src.Client},
	}
}

func (g *SBV2Gateway) Name() string            { return g.name }
func (g *SBV2Gateway) Cache() audiocache.Store { return g.src.Cache() }
func (g *SBV2Gateway) Close() error            { return g.src.Close() }

func (g *SBV2Gateway) Passthrough(w http.ResponseWriter, r *http.Request, path string) {
	g.proxy.Forward(w, r, path)
}

// RegisterRoutes intercepts the native voice endpoint ahead of the
// passthrough wildcard, so unmodified vendor clients get caching too.
func (g *SBV2Gateway) RegisterRoutes(r Router) {
	r.Get("/voice", g.handleVoice)
}

func (g *SBV2Gateway) handleVoice(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	format := params.Get("x_audio_format")
	if format == "" {
		format = "wav"
	}
	// The override is gateway-local; the vendor never sees it.
	params.Del("x_audio_format")

	stream, err := g.src.Voice(r.Context(), format, params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "audio/"+format)
	relayStream(w, stream)
}

func (g *SBV2Gateway) Synthesize(ctx context.Context, req *TTSRequest) (*AudioStream, error) {
	modelID, speakerID, ok := strings.Cut(req.Speaker, "-")
	if !ok {
		return nil, &UnsupportedError{
			Service: g.name,
			Reason:  `speaker must be "{model_id}-{speaker_id}"`,
		}
	}

	params := url.Values{}
	params.Set("text", req.Text)
	params.Set("model_id", modelID)
	params.Set("speaker_id", speakerID)
	if req.Style != "" {
		if style, ok := resolveStyle(g.styles[req.Speaker], req.Style); ok {
			params.Set("style", style)
		}
	}
	if req.Speed > 0 {
		// The vendor parameter scales duration, the inverse of speed.
		params.Set("length", strconv.FormatFloat(1.0/req.Speed, 'f', -1, 64))
	}

	format := req.Format()
	stream, err := g.src.Voice(ctx, format, params)
	if err != nil {
		return nil, err
	}
	return &AudioStream{Reader: stream, ContentType: "audio/" + format}, nil
}
