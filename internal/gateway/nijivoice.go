package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/uezo/speech-gateway/internal/audiocache"
	"github.com/uezo/speech-gateway/internal/source"
)

// NijiVoiceGateway fronts the NijiVoice platform API. The native
// generate-voice flow returns a URL that this gateway rewrites to its own
// get-voice endpoint, so the client's second fetch streams and caches
// through the gateway. The unified adapter uses the encoded variant, which
// returns base64 audio inline.
type NijiVoiceGateway struct {
	name   string
	src    *source.NijiVoiceSource
	speeds map[string]float64 // per-speaker default speed
	proxy  *proxyHandler
}

func NewNijiVoiceGateway(name string, src *source.NijiVoiceSource, speeds map[string]float64) *NijiVoiceGateway {
	return &NijiVoiceGateway{
		name:   name,
		src:    src,
		speeds: speeds,
		proxy:  &proxyHandler{name: name, client: src.Client},
	}
}

func (g *NijiVoiceGateway) Name() string            { return g.name }
func (g *NijiVoiceGateway) Cache() audiocache.Store { return g.src.Cache() }
func (g *NijiVoiceGateway) Close() error            { return g.src.Close() }

func (g *NijiVoiceGateway) Passthrough(w http.ResponseWriter, r *http.Request, path string) {
	g.proxy.Forward(w, r, path)
}

// RegisterRoutes mounts the two native endpoints ahead of the passthrough
// wildcard.
func (g *NijiVoiceGateway) RegisterRoutes(r Router) {
	r.Post("/api/platform/v1/voice-actors/{voice_actor_id}/generate-voice", g.handleGenerateVoice)
	r.Get("/api/platform/v1/voice-actors/{voice_actor_id}/get-voice", g.handleGetVoice)
}

func (g *NijiVoiceGateway) handleGenerateVoice(w http.ResponseWriter, r *http.Request) {
	voiceActorID := chi.URLParam(r, "voice_actor_id")

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	audioFormat := r.URL.Query().Get("x_audio_format")
	if audioFormat == "" {
		audioFormat = "mp3"
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	gatewayBaseURL := scheme + "://" + r.Host + "/" + g.name

	data, err := g.src.GenerateVoice(r.Context(), voiceActorID, payload, gatewayBaseURL, audioFormat)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (g *NijiVoiceGateway) handleGetVoice(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	audioFormat := query.Get("x_audio_format")
	if audioFormat == "" {
		audioFormat = "mp3"
	}

	stream, err := g.src.FetchVoice(r.Context(), audioFormat, query.Get("cache_key"), query.Get("url"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "audio/"+audioFormat)
	if query.Get("download") == "true" {
		w.Header().Set("Content-Disposition", "attachment")
	}
	relayStream(w, stream)
}

func (g *NijiVoiceGateway) Synthesize(ctx context.Context, req *TTSRequest) (*AudioStream, error) {
	speed := req.Speed
	if speed <= 0 {
		speed = g.speeds[req.Speaker]
	}
	if speed <= 0 {
		speed = 1.0
	}

	format := "wav"
	if req.Format() == "mp3" {
		format = "mp3"
	}
	payload := map[string]any{
		"script": req.Text,
		"speed":  strconv.FormatFloat(speed, 'f', -1, 64),
		"format": format,
	}

	stream, err := g.src.GenerateEncodedVoice(ctx, format, req.Speaker, payload)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	encoded, err := io.ReadAll(stream)
	if err != nil {
		return nil, err
	}

	var response struct {
		GeneratedVoice struct {
			Base64Audio string `json:"base64Audio"`
		} `json:"generatedVoice"`
	}
	if err := json.Unmarshal(encoded, &response); err != nil {
		return nil, &source.Error{Msg: "decode generated voice response", Err: err}
	}
	audio, err := base64.StdEncoding.DecodeString(response.GeneratedVoice.Base64Audio)
	if err != nil {
		return nil, &source.Error{Msg: "decode base64 audio", Err: err}
	}

	return &AudioStream{
		Reader:      io.NopCloser(bytes.NewReader(audio)),
		ContentType: "audio/" + format,
	}, nil
}
