package gateway

import (
	"context"
	"log/slog"
	"sort"
)

// UnifiedGateway routes unified requests to the registered provider
// gateways. Constructed once at startup; registration is not safe for
// concurrent use with dispatch and happens before the server starts.
type UnifiedGateway struct {
	services        map[string]SpeechGateway
	languages       map[string]SpeechGateway
	defaultSpeakers map[string]string // gateway name -> speaker
	defaultGateway  SpeechGateway
	defaultLanguage string
}

func NewUnifiedGateway(defaultLanguage string) *UnifiedGateway {
	if defaultLanguage == "" {
		defaultLanguage = "ja-JP"
	}
	return &UnifiedGateway{
		services:        make(map[string]SpeechGateway),
		languages:       make(map[string]SpeechGateway),
		defaultSpeakers: make(map[string]string),
		defaultLanguage: defaultLanguage,
	}
}

// Register adds a provider gateway under name. Each language tag maps to
// this gateway, last registration winning. The default gateway is also
// bound to the configured default language tag. The default speaker is
// recorded even when empty.
func (u *UnifiedGateway) Register(name string, gw SpeechGateway, languages []string, defaultSpeaker string, isDefault bool) {
	u.services[name] = gw
	for _, lang := range languages {
		u.languages[lang] = gw
	}
	if isDefault {
		u.defaultGateway = gw
		u.languages[u.defaultLanguage] = gw
	}
	u.defaultSpeakers[name] = defaultSpeaker
}

// Resolve picks the gateway for a request: explicit service name first,
// then language, then the default. Nil means nothing matched.
func (u *UnifiedGateway) Resolve(req *TTSRequest) SpeechGateway {
	if req.ServiceName != "" {
		return u.services[req.ServiceName]
	}
	if req.Language != "" {
		if gw, ok := u.languages[req.Language]; ok {
			return gw
		}
	}
	return u.defaultGateway
}

// Dispatch routes the request to its gateway, backfilling an empty speaker
// with the gateway's registered default. An empty speaker with no default
// is passed through; how that behaves is up to the provider.
func (u *UnifiedGateway) Dispatch(ctx context.Context, req *TTSRequest) (*AudioStream, error) {
	gw := u.Resolve(req)
	if gw == nil {
		return nil, ErrNoGateway
	}
	if req.Speaker == "" {
		req.Speaker = u.defaultSpeakers[gw.Name()]
	}
	return gw.Synthesize(ctx, req)
}

// PurgeCache clears the named service's cache store. An unknown name is a
// not-found condition, not a crash.
func (u *UnifiedGateway) PurgeCache(ctx context.Context, serviceName string) error {
	gw, ok := u.services[serviceName]
	if !ok {
		return ErrNoGateway
	}
	if store := gw.Cache(); store != nil {
		return store.Clear(ctx)
	}
	return nil
}

// ServiceNames returns the registered service names in stable order, for
// mounting passthrough routes.
func (u *UnifiedGateway) ServiceNames() []string {
	names := make([]string, 0, len(u.services))
	for name := range u.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Gateway returns the registered gateway for name, or nil.
func (u *UnifiedGateway) Gateway(name string) SpeechGateway {
	return u.services[name]
}

// Close shuts down every registered gateway. Individual close failures are
// logged and swallowed so one broken provider doesn't block the rest.
func (u *UnifiedGateway) Close() {
	for name, gw := range u.services {
		if err := gw.Close(); err != nil {
			slog.Warn("failed to close gateway", "service", name, "error", err)
		}
	}
}
