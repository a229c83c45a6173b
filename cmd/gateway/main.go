package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/uezo/speech-gateway/internal/api"
	"github.com/uezo/speech-gateway/internal/audiocache"
	"github.com/uezo/speech-gateway/internal/config"
	"github.com/uezo/speech-gateway/internal/converter"
	"github.com/uezo/speech-gateway/internal/database"
	"github.com/uezo/speech-gateway/internal/gateway"
	"github.com/uezo/speech-gateway/internal/metrics"
	"github.com/uezo/speech-gateway/internal/source"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Performance-record sink (optional; runs without it)
	var db *pgxpool.Pool
	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if cfg.Database.URL != "" {
		db, err = database.NewPool(ctx, cfg.Database)
		if err != nil {
			slog.Warn("database unavailable, performance records disabled", "error", err)
		} else {
			defer db.Close()
			pr, err := metrics.NewPostgresRecorder(ctx, db)
			if err != nil {
				slog.Warn("performance recorder init failed, records disabled", "error", err)
			} else {
				recorder = pr
			}
		}
	}

	// Redis is only dialed when it backs the audio cache
	var rdb *redis.Client
	if cfg.Cache.Backend == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("redis unavailable but CACHE_BACKEND=redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	newCache := func(name string) audiocache.Store {
		if rdb != nil {
			return audiocache.NewRedisStore(rdb, name, cfg.Cache.TTL)
		}
		store, err := audiocache.NewFileStore(cfg.Cache.Dir + "/" + name)
		if err != nil {
			slog.Error("failed to create cache directory", "service", name, "error", err)
			os.Exit(1)
		}
		return store
	}
	// Converter set for engines that emit plain WAV.
	waveConverters := func() map[string]converter.Converter {
		m := map[string]converter.Converter{
			"mp3": converter.NewMP3Converter(cfg.Converter.MP3Bitrate),
		}
		if cfg.Converter.WaveSampleRate > 0 {
			m["wav"] = converter.NewWaveConverter(cfg.Converter.WaveSampleRate, cfg.Converter.WaveSampleWidth)
		}
		if cfg.Converter.MuLawEnabled {
			m["mulaw"] = converter.NewMuLawConverter(cfg.Converter.MuLawRate, cfg.Converter.MuLawHeader)
		}
		return m
	}
	newSourceConfig := func(name, baseURL string, follow bool, converters map[string]converter.Converter) source.Config {
		return source.Config{
			Name:            name,
			BaseURL:         baseURL,
			MaxConns:        cfg.Gateway.MaxConns,
			Timeout:         cfg.Gateway.Timeout,
			FollowRedirects: follow,
			Cache:           newCache(name),
			Converters:      converters,
			Recorder:        recorder,
		}
	}

	ug := gateway.NewUnifiedGateway(cfg.Gateway.DefaultLanguage)

	if cfg.Voicevox.Enabled {
		src := source.NewVoicevoxSource(newSourceConfig("voicevox", cfg.Voicevox.URL, false, waveConverters()))
		gw := gateway.NewVoicevoxGateway("voicevox", src, cfg.Voicevox.Styles)
		ug.Register("voicevox", gw, cfg.Voicevox.Languages, cfg.Voicevox.DefaultSpeaker, cfg.Voicevox.Default)
	}

	if cfg.AivisSpeech.Enabled {
		// AivisSpeech speaks the VOICEVOX engine protocol.
		src := source.NewVoicevoxSource(newSourceConfig("aivisspeech", cfg.AivisSpeech.URL, false, waveConverters()))
		gw := gateway.NewVoicevoxGateway("aivisspeech", src, cfg.AivisSpeech.Styles)
		ug.Register("aivisspeech", gw, cfg.AivisSpeech.Languages, cfg.AivisSpeech.DefaultSpeaker, cfg.AivisSpeech.Default)
	}

	if cfg.Aivis.Enabled {
		src := source.NewAivisSource(newSourceConfig("aivis", cfg.Aivis.URL, false, nil), cfg.Aivis.APIKey)
		gw := gateway.NewAivisGateway("aivis", src, cfg.Aivis.SamplingRate, cfg.Aivis.Styles)
		ug.Register("aivis", gw, cfg.Aivis.Languages, cfg.Aivis.DefaultSpeaker, cfg.Aivis.Default)
	}

	if cfg.SBV2.Enabled {
		src := source.NewSBV2Source(newSourceConfig("sbv2", cfg.SBV2.URL, false, waveConverters()))
		gw := gateway.NewSBV2Gateway("sbv2", src, cfg.SBV2.Styles)
		ug.Register("sbv2", gw, cfg.SBV2.Languages, cfg.SBV2.DefaultSpeaker, cfg.SBV2.Default)
	}

	if cfg.NijiVoice.Enabled {
		src := source.NewNijiVoiceSource(newSourceConfig("nijivoice", cfg.NijiVoice.URL, true, nil), cfg.NijiVoice.APIKey)
		gw := gateway.NewNijiVoiceGateway("nijivoice", src, cfg.NijiVoice.Speeds)
		ug.Register("nijivoice", gw, cfg.NijiVoice.Languages, cfg.NijiVoice.DefaultSpeaker, cfg.NijiVoice.Default)
	}

	if cfg.Coefont.Enabled {
		src := source.NewCoefontSource(newSourceConfig("coefont", cfg.Coefont.URL, true, nil), cfg.Coefont.AccessKey, cfg.Coefont.AccessSecret)
		gw := gateway.NewCoefontGateway("coefont", src)
		ug.Register("coefont", gw, cfg.Coefont.Languages, cfg.Coefont.DefaultSpeaker, cfg.Coefont.Default)
	}

	if cfg.OpenAI.Enabled {
		srcCfg := newSourceConfig("openai", cfg.OpenAI.URL, false, nil)
		var src *source.OpenAISource
		if cfg.OpenAI.AzureHosted {
			src = source.NewAzureOpenAISource(srcCfg, cfg.OpenAI.APIKey)
		} else {
			src = source.NewOpenAISource(srcCfg, cfg.OpenAI.APIKey)
		}
		gw := gateway.NewOpenAIGateway("openai", src, cfg.OpenAI.Model, cfg.OpenAI.Speed, cfg.OpenAI.Instructions)
		ug.Register("openai", gw, cfg.OpenAI.Languages, cfg.OpenAI.DefaultSpeaker, cfg.OpenAI.Default)
	}

	if cfg.Azure.Enabled {
		src := source.NewAzureSource(newSourceConfig("azure", "", false, nil), cfg.Azure.APIKey, cfg.Azure.Region)
		gw := gateway.NewAzureGateway("azure", src, cfg.Azure.Language)
		ug.Register("azure", gw, cfg.Azure.Languages, cfg.Azure.DefaultSpeaker, cfg.Azure.Default)
	}

	router := api.NewRouter(db, rdb, cfg, ug)
	handler := router.Setup()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting speech gateway", "addr", cfg.Addr(), "services", ug.ServiceNames())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}

	ug.Close()
	recorder.Close()
	slog.Info("server stopped")
}
