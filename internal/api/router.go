package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/uezo/speech-gateway/internal/api/handlers"
	"github.com/uezo/speech-gateway/internal/api/middleware"
	"github.com/uezo/speech-gateway/internal/config"
	"github.com/uezo/speech-gateway/internal/gateway"
)

type Router struct {
	mux     *chi.Mux
	db      *pgxpool.Pool
	redis   *redis.Client
	cfg     *config.Config
	unified *gateway.UnifiedGateway
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, unified *gateway.UnifiedGateway) *Router {
	return &Router{
		mux:     chi.NewRouter(),
		db:      db,
		redis:   rdb,
		cfg:     cfg,
		unified: unified,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(float64(rt.cfg.Server.RateLimitRPS), rt.cfg.Server.RateLimitBurst)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	ttsH := handlers.NewTTSHandler(rt.unified)
	cacheH := handlers.NewCacheHandler(rt.unified)

	// Unified endpoints
	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(rt.cfg.Auth.Token))
		r.Post("/tts", ttsH.Speak)
		r.Delete("/cache", cacheH.Purge)
	})

	// Per-service mounts: any gateway-specific routes first, then the
	// passthrough wildcard catches everything else under the prefix.
	for _, name := range rt.unified.ServiceNames() {
		gw := rt.unified.Gateway(name)
		r.Route("/"+name, func(r chi.Router) {
			if reg, ok := gw.(gateway.RouteRegistrar); ok {
				reg.RegisterRoutes(r)
			}
			r.HandleFunc("/*", func(w http.ResponseWriter, req *http.Request) {
				gw.Passthrough(w, req, chi.URLParam(req, "*"))
			})
		})
	}

	return r
}
