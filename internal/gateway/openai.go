package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/uezo/speech-gateway/internal/audiocache"
	"github.com/uezo/speech-gateway/internal/source"
)

// OpenAIGateway fronts the OpenAI speech API or an Azure-hosted deployment
// of it.
type OpenAIGateway struct {
	name         string
	src          *source.OpenAISource
	model        string
	speed        float64
	instructions string
	proxy        *proxyHandler
}

func NewOpenAIGateway(name string, src *source.OpenAISource, model string, speed float64, instructions string) *OpenAIGateway {
	if model == "" {
		model = string(openai.TTSModel1)
	}
	if speed <= 0 {
		speed = 1.0
	}
	return &OpenAIGateway{
		name:         name,
		src:          src,
		model:        model,
		speed:        speed,
		instructions: instructions,
		proxy:        &proxyHandler{name: name, client: src.Client},
	}
}

func (g *OpenAIGateway) Name() string            { return g.name }
func (g *OpenAIGateway) Cache() audiocache.Store { return g.src.Cache() }
func (g *OpenAIGateway) Close() error            { return g.src.Close() }

func (g *OpenAIGateway) Passthrough(w http.ResponseWriter, r *http.Request, path string) {
	g.proxy.Forward(w, r, path)
}

// RegisterRoutes intercepts the native speech endpoint ahead of the
// passthrough wildcard, so unmodified vendor clients get caching too.
func (g *OpenAIGateway) RegisterRoutes(r Router) {
	r.Post("/audio/speech", g.handleSpeech)
}

func (g *OpenAIGateway) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var speech openai.CreateSpeechRequest
	if err := json.NewDecoder(r.Body).Decode(&speech); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// The vendor defaults to mp3 when response_format is omitted.
	format := string(speech.ResponseFormat)
	if format == "" {
		format = string(openai.SpeechResponseFormatMp3)
		speech.ResponseFormat = openai.SpeechResponseFormat(format)
	}

	stream, err := g.src.Speech(r.Context(), format, speech)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "audio/"+format)
	relayStream(w, stream)
}

func (g *OpenAIGateway) Synthesize(ctx context.Context, req *TTSRequest) (*AudioStream, error) {
	speed := req.Speed
	if speed <= 0 {
		speed = g.speed
	}
	format := req.Format()

	speech := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(g.model),
		Voice:          openai.SpeechVoice(req.Speaker),
		Input:          req.Text,
		Speed:          speed,
		Instructions:   g.instructions,
		ResponseFormat: openai.SpeechResponseFormat(format),
	}

	stream, err := g.src.Speech(ctx, format, speech)
	if err != nil {
		return nil, err
	}
	return &AudioStream{Reader: stream, ContentType: "audio/" + format}, nil
}
