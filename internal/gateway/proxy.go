package gateway

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uezo/speech-gateway/internal/metrics"
	"github.com/uezo/speech-gateway/internal/source"
)

// hopByHopHeaders are stripped in both directions; they describe one
// connection, not the end-to-end exchange.
var hopByHopHeaders = map[string]struct{}{
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailers":            {},
	"transfer-encoding":   {},
	"upgrade":             {},
}

// proxyHandler relays arbitrary requests to the provider's native API on the
// source's pooled transport. This path bypasses caching entirely.
type proxyHandler struct {
	name   string
	client *source.Client
}

func (p *proxyHandler) Forward(w http.ResponseWriter, r *http.Request, path string) {
	start := time.Now()

	u := p.client.BaseURL()
	if path != "" {
		u += "/" + strings.TrimPrefix(path, "/")
	}
	if r.URL.RawQuery != "" {
		u += "?" + r.URL.RawQuery
	}

	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, u, r.Body)
	if err != nil {
		http.Error(w, "bad gateway request", http.StatusBadGateway)
		return
	}
	copyFilteredHeaders(upstreamReq.Header, r.Header)
	// Host must be the upstream's, never the gateway's.
	upstreamReq.Host = ""

	resp, err := p.client.Do(upstreamReq)
	if err != nil {
		slog.Warn("passthrough upstream request failed", "gateway", p.name, "url", u, "error", err)
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyFilteredHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	relayStream(w, resp.Body)

	p.client.Recorder().Record(metrics.Record{
		ProcessID:   uuid.NewString(),
		Source:      p.name,
		Text:        fmt.Sprintf("Proxy:[%s] %s", r.Method, u),
		AudioFormat: "N/A",
		Elapsed:     time.Since(start),
	})
	slog.Debug("passthrough", "gateway", p.name, "method", r.Method, "path", path, "status", resp.StatusCode)
}

func copyFilteredHeaders(dst, src http.Header) {
	for k, vs := range src {
		lower := strings.ToLower(k)
		if _, hop := hopByHopHeaders[lower]; hop || lower == "host" {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// relayStream copies chunks in arrival order, flushing as they pass so the
// client starts receiving bytes immediately.
func relayStream(w http.ResponseWriter, r io.Reader) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}
