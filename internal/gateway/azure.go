package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/uezo/speech-gateway/internal/audiocache"
	"github.com/uezo/speech-gateway/internal/source"
)

// azureFormats maps unified audio formats to the vendor output format token
// sent in X-Microsoft-OutputFormat.
var azureFormats = map[string]string{
	"wav": "riff-16khz-16bit-mono-pcm",
	"mp3": "audio-16khz-32kbitrate-mono-mp3",
}

// AzureGateway fronts Azure Cognitive Services speech synthesis. The
// unified request is rendered into SSML; speed becomes a percentage prosody
// rate.
type AzureGateway struct {
	name            string
	src             *source.AzureSource
	defaultLanguage string
	proxy           *proxyHandler
}

func NewAzureGateway(name string, src *source.AzureSource, defaultLanguage string) *AzureGateway {
	if defaultLanguage == "" {
		defaultLanguage = "ja-JP"
	}
	return &AzureGateway{
		name:            name,
		src:             src,
		defaultLanguage: defaultLanguage,
		proxy:           &proxyHandler{name: name, client: src.Client},
	}
}

func (g *AzureGateway) Name() string            { return g.name }
func (g *AzureGateway) Cache() audiocache.Store { return g.src.Cache() }
func (g *AzureGateway) Close() error            { return g.src.Close() }

func (g *AzureGateway) Passthrough(w http.ResponseWriter, r *http.Request, path string) {
	g.proxy.Forward(w, r, path)
}

// RegisterRoutes intercepts the native SSML synthesis endpoint ahead of the
// passthrough wildcard, so unmodified vendor clients get caching too.
func (g *AzureGateway) RegisterRoutes(r Router) {
	r.Post("/cognitiveservices/v1", g.handleSynthesis)
}

func (g *AzureGateway) handleSynthesis(w http.ResponseWriter, r *http.Request) {
	ssml, err := io.ReadAll(r.Body)
	if err != nil || len(ssml) == 0 {
		http.Error(w, "invalid ssml body", http.StatusBadRequest)
		return
	}

	format := r.URL.Query().Get("x_audio_format")
	if format == "" {
		format = "wav"
	}
	// A client-supplied vendor token wins; otherwise the unified format
	// picks it.
	azureFormat := r.Header.Get("X-Microsoft-Outputformat")
	if azureFormat == "" {
		var ok bool
		azureFormat, ok = azureFormats[format]
		if !ok {
			http.Error(w, fmt.Sprintf("audio format %q is not supported", format), http.StatusBadRequest)
			return
		}
	}

	stream, err := g.src.Synthesize(r.Context(), format, azureFormat, ssml)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "audio/"+format)
	relayStream(w, stream)
}

// BuildSSML renders the unified request as an SSML document.
func (g *AzureGateway) BuildSSML(req *TTSRequest) []byte {
	language := req.Language
	if language == "" {
		language = g.defaultLanguage
	}
	speedPercentage := 0.0
	if req.Speed > 0 {
		speedPercentage = (req.Speed - 1.0) * 100
	}
	ssml := fmt.Sprintf(
		"<speak version='1.0' xml:lang='%s'><voice xml:lang='%s' name='%s'><prosody rate='%+.2f%%'>%s</prosody></voice></speak>",
		language, language, req.Speaker, speedPercentage, req.Text,
	)
	return []byte(ssml)
}

func (g *AzureGateway) Synthesize(ctx context.Context, req *TTSRequest) (*AudioStream, error) {
	format := req.Format()
	azureFormat, ok := azureFormats[format]
	if !ok {
		return nil, &UnsupportedError{
			Service: g.name,
			Reason:  fmt.Sprintf("audio format %q is not supported", format),
		}
	}

	stream, err := g.src.Synthesize(ctx, format, azureFormat, g.BuildSSML(req))
	if err != nil {
		return nil, err
	}
	return &AudioStream{Reader: stream, ContentType: "audio/" + format}, nil
}
