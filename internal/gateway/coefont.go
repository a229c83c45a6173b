package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/uezo/speech-gateway/internal/audiocache"
	"github.com/uezo/speech-gateway/internal/source"
)

// CoefontGateway fronts the CoeFont cloud API.
type CoefontGateway struct {
	name  string
	src   *source.CoefontSource
	proxy *proxyHandler
}

func NewCoefontGateway(name string, src *source.CoefontSource) *CoefontGateway {
	return &CoefontGateway{
		name:  name,
		src:   src,
		proxy: &proxyHandler{name: name, client: src.Client},
	}
}

func (g *CoefontGateway) Name() string            { return g.name }
func (g *CoefontGateway) Cache() audiocache.Store { return g.src.Cache() }
func (g *CoefontGateway) Close() error            { return g.src.Close() }

func (g *CoefontGateway) Passthrough(w http.ResponseWriter, r *http.Request, path string) {
	g.proxy.Forward(w, r, path)
}

// RegisterRoutes intercepts the native text2speech endpoint ahead of the
// passthrough wildcard, so unmodified vendor clients get caching too. The
// gateway re-signs the body with its own credentials.
func (g *CoefontGateway) RegisterRoutes(r Router) {
	r.Post("/text2speech", g.handleText2Speech)
}

func (g *CoefontGateway) handleText2Speech(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	format := r.URL.Query().Get("x_audio_format")
	if format == "" {
		format = "wav"
	}

	var payload struct {
		Text string `json:"text"`
	}
	json.Unmarshal(body, &payload)

	stream, err := g.src.Text2Speech(r.Context(), format, body, payload.Text)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "audio/"+format)
	relayStream(w, stream)
}

// BuildBody renders the vendor JSON body; it is also the signing input, so
// the bytes here are exactly what goes on the wire.
func (g *CoefontGateway) BuildBody(req *TTSRequest) ([]byte, error) {
	payload := map[string]any{
		"text":    req.Text,
		"coefont": req.Speaker,
		"format":  req.Format(),
	}
	if req.Speed > 0 {
		payload["speed"] = req.Speed
	}
	return json.Marshal(payload)
}

func (g *CoefontGateway) Synthesize(ctx context.Context, req *TTSRequest) (*AudioStream, error) {
	body, err := g.BuildBody(req)
	if err != nil {
		return nil, err
	}

	format := req.Format()
	stream, err := g.src.Text2Speech(ctx, format, body, req.Text)
	if err != nil {
		return nil, err
	}
	return &AudioStream{Reader: stream, ContentType: "audio/" + format}, nil
}
