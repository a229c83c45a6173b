package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/uezo/speech-gateway/internal/audiocache"
	"github.com/uezo/speech-gateway/internal/converter"
	"github.com/uezo/speech-gateway/internal/metrics"
)

// Error reports an upstream HTTP failure: a non-2xx status or a
// network-level error. The core never retries; it surfaces as the terminal
// outcome of the synthesis call.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Request describes one upstream HTTP call. Building a Request performs no
// I/O.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Query  url.Values
	Body   []byte
}

// Config holds the per-provider transport settings. Immutable after the
// source is constructed.
type Config struct {
	// Name overrides the source's default name; it labels log lines and
	// performance records, and matters when one protocol serves two mounts
	// (VOICEVOX and AivisSpeech).
	Name            string
	BaseURL         string
	MaxConns        int
	MaxIdleConns    int
	Timeout         time.Duration
	FollowRedirects bool
	Cache           audiocache.Store
	Converters      map[string]converter.Converter
	Recorder        metrics.Recorder
}

// Client owns one vendor's HTTP transport and runs the shared
// fetch -> convert -> cache pipeline. Per-provider sources embed it and add
// cache-key derivation and request building.
type Client struct {
	name       string
	baseURL    string
	http       *http.Client
	cache      audiocache.Store
	converters map[string]converter.Converter
	recorder   metrics.Recorder
}

func NewClient(name string, cfg Config) *Client {
	if cfg.Name != "" {
		name = cfg.Name
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 100
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 20
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	transport := &http.Transport{
		MaxConnsPerHost:     maxConns,
		MaxIdleConnsPerHost: maxIdle,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
	if !cfg.FollowRedirects {
		httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	recorder := cfg.Recorder
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	return &Client{
		name:       name,
		baseURL:    cfg.BaseURL,
		http:       httpClient,
		cache:      cfg.Cache,
		converters: cfg.Converters,
		recorder:   recorder,
	}
}

func (c *Client) Name() string               { return c.name }
func (c *Client) BaseURL() string            { return c.baseURL }
func (c *Client) Cache() audiocache.Store    { return c.cache }
func (c *Client) Recorder() metrics.Recorder { return c.recorder }

// Do issues an arbitrary request on this source's pooled transport; used by
// the passthrough proxy.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Converter returns the registered converter for the format, or nil for
// passthrough.
func (c *Client) Converter(format string) converter.Converter {
	if c.converters == nil {
		return nil
	}
	return c.converters[format]
}

// FetchRaw issues the upstream call and returns the response body stream.
// Any non-2xx status is a hard error aborting the whole fetch.
func (c *Client) FetchRaw(ctx context.Context, req *Request) (io.ReadCloser, error) {
	u := req.URL
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, &Error{Msg: "build upstream request", Err: err}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &Error{Msg: "upstream request failed", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &Error{Msg: fmt.Sprintf("stream from voice service failed: %d %s", resp.StatusCode, bytes.TrimSpace(detail))}
	}
	return resp.Body, nil
}

// Fetch runs the full pipeline for one synthesis: cache lookup, upstream
// fetch, format conversion, and write-through caching, all while streaming
// to the caller. Exactly one performance record is emitted per call, after
// the final chunk. Concurrent fetches for the same key may race; duplicate
// upstream calls are tolerated instead of coordinating per-key locks.
func (c *Client) Fetch(ctx context.Context, format, key, text string, req *Request) (io.ReadCloser, bool, error) {
	start := time.Now()

	var stream io.ReadCloser
	cached := false
	if c.cache != nil && c.cache.Exists(ctx, key) {
		rc, err := c.cache.Open(ctx, key)
		if err != nil {
			// Degrade to a miss; the client still gets audio.
			slog.Warn("cache read failed, fetching upstream", "source", c.name, "key", key, "error", err)
		} else {
			slog.Debug("cache hit", "source", c.name, "key", key)
			stream = rc
			cached = true
		}
	}

	if stream == nil {
		slog.Debug("generate", "source", c.name, "key", key)
		raw, err := c.FetchRaw(ctx, req)
		if err != nil {
			return nil, false, err
		}
		stream = raw

		if conv := c.Converter(format); conv != nil {
			converted, err := conv.Convert(ctx, raw)
			if err != nil {
				raw.Close()
				return nil, false, err
			}
			stream = converted
		}

		if c.cache != nil {
			w, err := c.cache.Create(ctx, key)
			if err != nil {
				slog.Warn("cache write unavailable", "source", c.name, "key", key, "error", err)
			} else {
				stream = &cacheTee{src: stream, w: w, key: key, source: c.name}
			}
		}
	}

	isCached := cached
	stream = onStreamDone(stream, func() {
		c.recorder.Record(metrics.Record{
			ProcessID:   key,
			Source:      c.name,
			Text:        text,
			AudioFormat: format,
			Cached:      isCached,
			Elapsed:     time.Since(start),
		})
	})
	return stream, cached, nil
}

// cacheTee copies every chunk to the cache writer as it passes through to
// the caller, committing on EOF. A mid-stream failure or early close aborts
// the write so no partial entry becomes observable; the response stream is
// unaffected either way.
type cacheTee struct {
	src    io.ReadCloser
	w      audiocache.Writer
	key    string
	source string
	failed bool
	done   bool
}

func (t *cacheTee) Read(p []byte) (int, error) {
	n, err := t.src.Read(p)
	if n > 0 && !t.failed {
		if _, werr := t.w.Write(p[:n]); werr != nil {
			slog.Warn("cache write failed, continuing without cache", "source", t.source, "key", t.key, "error", werr)
			t.failed = true
			t.w.Abort()
		}
	}
	if err == io.EOF && !t.done {
		t.done = true
		if !t.failed {
			if cerr := t.w.Commit(); cerr != nil {
				slog.Warn("cache commit failed", "source", t.source, "key", t.key, "error", cerr)
			}
		}
	}
	return n, err
}

func (t *cacheTee) Close() error {
	if !t.done && !t.failed {
		// Interrupted before EOF; never leave a partial entry.
		t.failed = true
		t.w.Abort()
	}
	return t.src.Close()
}

// onStreamDone invokes fn exactly once, after the final chunk has been
// yielded or the stream is closed, whichever comes first.
func onStreamDone(src io.ReadCloser, fn func()) io.ReadCloser {
	return &doneStream{src: src, fn: fn}
}

type doneStream struct {
	src   io.ReadCloser
	fn    func()
	fired bool
}

func (s *doneStream) Read(p []byte) (int, error) {
	n, err := s.src.Read(p)
	if err != nil {
		s.fire()
	}
	return n, err
}

func (s *doneStream) Close() error {
	err := s.src.Close()
	s.fire()
	return err
}

func (s *doneStream) fire() {
	if !s.fired {
		s.fired = true
		s.fn()
	}
}
