package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uezo/speech-gateway/internal/source"
)

func TestProxyForwardFiltersHopByHopHeaders(t *testing.T) {
	var gotHeader http.Header
	var gotQuery string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotQuery = r.URL.RawQuery
		w.Header().Set("X-Vendor-Id", "abc")
		w.Header().Set("Keep-Alive", "timeout=5")
		w.Write([]byte("native-response"))
	}))
	t.Cleanup(upstream.Close)

	client := source.NewClient("vendor", source.Config{BaseURL: upstream.URL})
	p := &proxyHandler{name: "vendor", client: client}

	req := httptest.NewRequest(http.MethodGet, "/vendor/speakers?core_version=1", nil)
	req.Header.Set("Proxy-Authorization", "Basic xxx")
	req.Header.Set("X-Client-Token", "keep-me")
	rec := httptest.NewRecorder()

	p.Forward(rec, req, "speakers")

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, []byte("native-response"), body)

	// Request direction: end-to-end headers pass, hop-by-hop do not.
	assert.Equal(t, "keep-me", gotHeader.Get("X-Client-Token"))
	assert.Empty(t, gotHeader.Get("Proxy-Authorization"))
	assert.Equal(t, "core_version=1", gotQuery)

	// Response direction mirrors the same filtering.
	assert.Equal(t, "abc", rec.Header().Get("X-Vendor-Id"))
	assert.Empty(t, rec.Header().Get("Keep-Alive"))
}

func TestProxyForwardUpstreamDown(t *testing.T) {
	client := source.NewClient("vendor", source.Config{BaseURL: "http://127.0.0.1:1"})
	p := &proxyHandler{name: "vendor", client: client}

	req := httptest.NewRequest(http.MethodGet, "/vendor/anything", nil)
	rec := httptest.NewRecorder()

	p.Forward(rec, req, "anything")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestProxyForwardPreservesStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such speaker", http.StatusUnprocessableEntity)
	}))
	t.Cleanup(upstream.Close)

	client := source.NewClient("vendor", source.Config{BaseURL: upstream.URL})
	p := &proxyHandler{name: "vendor", client: client}

	req := httptest.NewRequest(http.MethodPost, "/vendor/audio_query", nil)
	rec := httptest.NewRecorder()

	p.Forward(rec, req, "audio_query")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
