package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/uezo/speech-gateway/internal/audiocache"
	"github.com/uezo/speech-gateway/internal/source"
)

// AivisGateway fronts the Aivis Cloud API. The unified speaker carries the
// vendor model UUID.
type AivisGateway struct {
	name         string
	src          *source.AivisSource
	samplingRate int
	styles       map[string]map[string]string // model uuid -> style name -> vendor style name
	proxy        *proxyHandler
}

func NewAivisGateway(name string, src *source.AivisSource, samplingRate int, styles map[string]map[string]string) *AivisGateway {
	if samplingRate <= 0 {
		samplingRate = 8000
	}
	return &AivisGateway{
		name:         name,
		src:          src,
		samplingRate: samplingRate,
		styles:       styles,
		proxy:        &proxyHandler{name: name, client: src.Client},
	}
}

func (g *AivisGateway) Name() string            { return g.name }
func (g *AivisGateway) Cache() audiocache.Store { return g.src.Cache() }
func (g *AivisGateway) Close() error            { return g.src.Close() }

func (g *AivisGateway) Passthrough(w http.ResponseWriter, r *http.Request, path string) {
	g.proxy.Forward(w, r, path)
}

// RegisterRoutes intercepts the native synthesize endpoint ahead of the
// passthrough wildcard, so unmodified vendor clients get caching too.
func (g *AivisGateway) RegisterRoutes(r Router) {
	r.Post("/tts/synthesize", g.handleSynthesize)
}

func (g *AivisGateway) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	format, _ := body["output_format"].(string)
	if format == "" {
		format = "wav"
		body["output_format"] = format
	}

	stream, err := g.src.Synthesize(r.Context(), format, body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "audio/"+format)
	relayStream(w, stream)
}

// BuildBody renders the vendor synthesize body from the unified request.
func (g *AivisGateway) BuildBody(req *TTSRequest) map[string]any {
	body := map[string]any{
		"model_uuid":            req.Speaker,
		"text":                  req.Text,
		"output_format":         req.Format(),
		"output_sampling_rate":  g.samplingRate,
		"output_audio_channels": "mono",
		"use_ssml":              false,
	}
	if req.Speed > 0 {
		body["speaking_rate"] = req.Speed
	}
	if req.Style != "" {
		if style, ok := resolveStyle(g.styles[req.Speaker], req.Style); ok {
			body["style_name"] = style
		}
	}
	for k, v := range req.ExtraData {
		if v != nil {
			body[k] = v
		}
	}
	return body
}

func (g *AivisGateway) Synthesize(ctx context.Context, req *TTSRequest) (*AudioStream, error) {
	format := req.Format()
	stream, err := g.src.Synthesize(ctx, format, g.BuildBody(req))
	if err != nil {
		return nil, err
	}
	return &AudioStream{Reader: stream, ContentType: "audio/" + format}, nil
}
