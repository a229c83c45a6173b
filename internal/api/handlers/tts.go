package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/uezo/speech-gateway/internal/converter"
	"github.com/uezo/speech-gateway/internal/gateway"
	"github.com/uezo/speech-gateway/internal/source"
)

type TTSHandler struct {
	unified *gateway.UnifiedGateway
}

func NewTTSHandler(unified *gateway.UnifiedGateway) *TTSHandler {
	return &TTSHandler{unified: unified}
}

// Speak handles POST /tts: resolve a provider for the unified request and
// relay the synthesized audio stream.
func (h *TTSHandler) Speak(w http.ResponseWriter, r *http.Request) {
	var req gateway.TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text required"})
		return
	}

	stream, err := h.unified.Dispatch(r.Context(), &req)
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	defer stream.Reader.Close()

	w.Header().Set("Content-Type", stream.ContentType)
	w.WriteHeader(http.StatusOK)

	// Chunk order is preserved end to end; a copy failure here means the
	// client went away, which only the log needs to know about.
	if err := copyFlush(w, stream.Reader); err != nil {
		slog.Debug("tts response stream interrupted", "error", err)
	}
}

func (h *TTSHandler) writeDispatchError(w http.ResponseWriter, err error) {
	var unsupported *gateway.UnsupportedError
	var srcErr *source.Error
	var convErr *converter.Error

	switch {
	case errors.Is(err, gateway.ErrNoGateway):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no gateway found"})
	case errors.As(err, &unsupported):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": unsupported.Error()})
	case errors.As(err, &srcErr):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": srcErr.Error()})
	case errors.As(err, &convErr):
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": convErr.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func copyFlush(w http.ResponseWriter, r io.Reader) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
