package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/uezo/speech-gateway/internal/audiocache"
	"github.com/uezo/speech-gateway/internal/source"
)

// VoicevoxGateway fronts a VOICEVOX-family engine (VOICEVOX, AivisSpeech and
// compatible forks). Styles are separate speaker ids in this family, so the
// style lookup remaps the speaker before synthesis.
type VoicevoxGateway struct {
	name   string
	src    *source.VoicevoxSource
	styles map[string]map[string]string // speaker -> style name -> styled speaker id
	proxy  *proxyHandler
}

func NewVoicevoxGateway(name string, src *source.VoicevoxSource, styles map[string]map[string]string) *VoicevoxGateway {
	return &VoicevoxGateway{
		name:   name,
		src:    src,
		styles: styles,
		proxy:  &proxyHandler{name: name, client: src.Client},
	}
}

func (g *VoicevoxGateway) Name() string            { return g.name }
func (g *VoicevoxGateway) Cache() audiocache.Store { return g.src.Cache() }
func (g *VoicevoxGateway) Close() error            { return g.src.Close() }

func (g *VoicevoxGateway) Passthrough(w http.ResponseWriter, r *http.Request, path string) {
	g.proxy.Forward(w, r, path)
}

// RegisterRoutes intercepts the native synthesis endpoint ahead of the
// passthrough wildcard, so unmodified vendor clients get caching too.
func (g *VoicevoxGateway) RegisterRoutes(r Router) {
	r.Post("/synthesis", g.handleSynthesis)
}

func (g *VoicevoxGateway) handleSynthesis(w http.ResponseWriter, r *http.Request) {
	var audioQuery map[string]any
	if err := json.NewDecoder(r.Body).Decode(&audioQuery); err != nil {
		http.Error(w, "invalid audio query", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	format := query.Get("x_audio_format")
	if format == "" {
		format = "wav"
	}

	stream, err := g.src.Synthesis(r.Context(), format, query.Get("speaker"), audioQuery)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "audio/"+format)
	relayStream(w, stream)
}

func (g *VoicevoxGateway) Synthesize(ctx context.Context, req *TTSRequest) (*AudioStream, error) {
	speaker := req.Speaker
	if req.Style != "" {
		if styled, ok := resolveStyle(g.styles[speaker], req.Style); ok {
			speaker = styled
		}
	}

	audioQuery, err := g.src.AudioQuery(ctx, req.Text, speaker)
	if err != nil {
		return nil, err
	}
	if req.Speed > 0 {
		audioQuery["speedScale"] = req.Speed
	}

	format := req.Format()
	stream, err := g.src.Synthesis(ctx, format, speaker, audioQuery)
	if err != nil {
		return nil, err
	}
	return &AudioStream{Reader: stream, ContentType: "audio/" + format}, nil
}
