package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Cache     CacheConfig
	Gateway   GatewayConfig
	Converter ConverterConfig

	Voicevox    VoicevoxConfig
	AivisSpeech VoicevoxConfig
	Aivis       AivisConfig
	SBV2        SBV2Config
	NijiVoice   NijiVoiceConfig
	Coefont     CoefontConfig
	OpenAI      OpenAIConfig
	Azure       AzureConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	RateLimitRPS   int
	RateLimitBurst int
}

type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	Token string
}

type CacheConfig struct {
	Backend string // "file" or "redis"
	Dir     string
	TTL     time.Duration // redis backend only; zero means no expiry
}

type GatewayConfig struct {
	DefaultLanguage string
	Timeout         time.Duration
	MaxConns        int
}

// ConverterConfig controls the audio converters attached to engines that
// emit plain WAV (VOICEVOX family, Style-Bert-VITS2). All zero values mean
// upstream audio passes through untouched.
type ConverterConfig struct {
	MP3Bitrate      string
	WaveSampleRate  int // 0 disables wav re-encoding
	WaveSampleWidth int
	MuLawEnabled    bool
	MuLawRate       int
	MuLawHeader     bool
}

type VoicevoxConfig struct {
	Enabled        bool
	URL            string
	Languages      []string
	DefaultSpeaker string
	Styles         map[string]map[string]string
	Default        bool
}

type AivisConfig struct {
	Enabled        bool
	URL            string
	APIKey         string
	SamplingRate   int
	Languages      []string
	DefaultSpeaker string
	Styles         map[string]map[string]string
	Default        bool
}

type SBV2Config struct {
	Enabled        bool
	URL            string
	Languages      []string
	DefaultSpeaker string
	Styles         map[string]map[string]string
	Default        bool
}

type NijiVoiceConfig struct {
	Enabled        bool
	URL            string
	APIKey         string
	Languages      []string
	DefaultSpeaker string
	Speeds         map[string]float64
	Default        bool
}

type CoefontConfig struct {
	Enabled        bool
	URL            string
	AccessKey      string
	AccessSecret   string
	Languages      []string
	DefaultSpeaker string
	Default        bool
}

type OpenAIConfig struct {
	Enabled bool
	// URL is the API base, or the full deployment speech URL when
	// AzureHosted is set.
	URL            string
	AzureHosted    bool
	APIKey         string
	Model          string
	Speed          float64
	Instructions   string
	Languages      []string
	DefaultSpeaker string
	Default        bool
}

type AzureConfig struct {
	Enabled        bool
	APIKey         string
	Region         string
	Language       string
	Languages      []string
	DefaultSpeaker string
	Default        bool
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	rps, err := getEnvInt("RATE_LIMIT_RPS", 100)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	burst, err := getEnvInt("RATE_LIMIT_BURST", 200)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cacheTTL, err := getEnvInt("CACHE_TTL_SECONDS", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL_SECONDS: %w", err)
	}

	gwTimeout, err := getEnvInt("GATEWAY_TIMEOUT_SECONDS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid GATEWAY_TIMEOUT_SECONDS: %w", err)
	}

	gwMaxConns, err := getEnvInt("GATEWAY_MAX_CONNS", 100)
	if err != nil {
		return nil, fmt.Errorf("invalid GATEWAY_MAX_CONNS: %w", err)
	}

	aivisRate, err := getEnvInt("AIVIS_SAMPLING_RATE", 8000)
	if err != nil {
		return nil, fmt.Errorf("invalid AIVIS_SAMPLING_RATE: %w", err)
	}

	openaiSpeed, err := getEnvFloat("OPENAI_SPEED", 1.0)
	if err != nil {
		return nil, fmt.Errorf("invalid OPENAI_SPEED: %w", err)
	}

	waveRate, err := getEnvInt("WAVE_SAMPLE_RATE", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid WAVE_SAMPLE_RATE: %w", err)
	}

	waveWidth, err := getEnvInt("WAVE_SAMPLE_WIDTH", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid WAVE_SAMPLE_WIDTH: %w", err)
	}

	mulawRate, err := getEnvInt("MULAW_RATE", 8000)
	if err != nil {
		return nil, fmt.Errorf("invalid MULAW_RATE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			RateLimitRPS:   rps,
			RateLimitBurst: burst,
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: maxConns,
			MinConns: minConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			Token: getEnv("GATEWAY_API_TOKEN", ""),
		},
		Cache: CacheConfig{
			Backend: getEnv("CACHE_BACKEND", "file"),
			Dir:     getEnv("CACHE_DIR", "cache"),
			TTL:     time.Duration(cacheTTL) * time.Second,
		},
		Gateway: GatewayConfig{
			DefaultLanguage: getEnv("DEFAULT_LANGUAGE", "ja-JP"),
			Timeout:         time.Duration(gwTimeout) * time.Second,
			MaxConns:        gwMaxConns,
		},
		Converter: ConverterConfig{
			MP3Bitrate:      getEnv("MP3_BITRATE", "64k"),
			WaveSampleRate:  waveRate,
			WaveSampleWidth: waveWidth,
			MuLawEnabled:    getEnvBool("MULAW_ENABLED", false),
			MuLawRate:       mulawRate,
			MuLawHeader:     getEnvBool("MULAW_HEADER", false),
		},
		Voicevox: VoicevoxConfig{
			Enabled:        getEnvBool("VOICEVOX_ENABLED", false),
			URL:            getEnv("VOICEVOX_URL", "http://localhost:50021"),
			Languages:      getEnvList("VOICEVOX_LANGUAGES"),
			DefaultSpeaker: getEnv("VOICEVOX_DEFAULT_SPEAKER", ""),
			Default:        getEnvBool("VOICEVOX_DEFAULT", false),
		},
		// AivisSpeech runs the VOICEVOX engine protocol on its own port.
		AivisSpeech: VoicevoxConfig{
			Enabled:        getEnvBool("AIVISSPEECH_ENABLED", false),
			URL:            getEnv("AIVISSPEECH_URL", "http://localhost:10101"),
			Languages:      getEnvList("AIVISSPEECH_LANGUAGES"),
			DefaultSpeaker: getEnv("AIVISSPEECH_DEFAULT_SPEAKER", ""),
			Default:        getEnvBool("AIVISSPEECH_DEFAULT", false),
		},
		Aivis: AivisConfig{
			Enabled:        getEnvBool("AIVIS_ENABLED", false),
			URL:            getEnv("AIVIS_URL", "https://api.aivis-project.com/v1"),
			APIKey:         getEnv("AIVIS_API_KEY", ""),
			SamplingRate:   aivisRate,
			Languages:      getEnvList("AIVIS_LANGUAGES"),
			DefaultSpeaker: getEnv("AIVIS_DEFAULT_SPEAKER", ""),
			Default:        getEnvBool("AIVIS_DEFAULT", false),
		},
		SBV2: SBV2Config{
			Enabled:        getEnvBool("SBV2_ENABLED", false),
			URL:            getEnv("SBV2_URL", "http://localhost:5000"),
			Languages:      getEnvList("SBV2_LANGUAGES"),
			DefaultSpeaker: getEnv("SBV2_DEFAULT_SPEAKER", ""),
			Default:        getEnvBool("SBV2_DEFAULT", false),
		},
		NijiVoice: NijiVoiceConfig{
			Enabled:        getEnvBool("NIJIVOICE_ENABLED", false),
			URL:            getEnv("NIJIVOICE_URL", "https://api.nijivoice.com"),
			APIKey:         getEnv("NIJIVOICE_API_KEY", ""),
			Languages:      getEnvList("NIJIVOICE_LANGUAGES"),
			DefaultSpeaker: getEnv("NIJIVOICE_DEFAULT_SPEAKER", ""),
			Default:        getEnvBool("NIJIVOICE_DEFAULT", false),
		},
		Coefont: CoefontConfig{
			Enabled:        getEnvBool("COEFONT_ENABLED", false),
			URL:            getEnv("COEFONT_URL", "https://api.coefont.cloud/v2"),
			AccessKey:      getEnv("COEFONT_ACCESS_KEY", ""),
			AccessSecret:   getEnv("COEFONT_ACCESS_SECRET", ""),
			Languages:      getEnvList("COEFONT_LANGUAGES"),
			DefaultSpeaker: getEnv("COEFONT_DEFAULT_SPEAKER", ""),
			Default:        getEnvBool("COEFONT_DEFAULT", false),
		},
		OpenAI: OpenAIConfig{
			Enabled:        getEnvBool("OPENAI_ENABLED", false),
			URL:            getEnv("OPENAI_URL", "https://api.openai.com/v1"),
			AzureHosted:    getEnvBool("OPENAI_AZURE_HOSTED", false),
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			Model:          getEnv("OPENAI_MODEL", ""),
			Speed:          openaiSpeed,
			Instructions:   getEnv("OPENAI_INSTRUCTIONS", ""),
			Languages:      getEnvList("OPENAI_LANGUAGES"),
			DefaultSpeaker: getEnv("OPENAI_DEFAULT_SPEAKER", ""),
			Default:        getEnvBool("OPENAI_DEFAULT", false),
		},
		Azure: AzureConfig{
			Enabled:        getEnvBool("AZURE_ENABLED", false),
			APIKey:         getEnv("AZURE_API_KEY", ""),
			Region:         getEnv("AZURE_REGION", "japaneast"),
			Language:       getEnv("AZURE_LANGUAGE", "ja-JP"),
			Languages:      getEnvList("AZURE_LANGUAGES"),
			DefaultSpeaker: getEnv("AZURE_DEFAULT_SPEAKER", ""),
			Default:        getEnvBool("AZURE_DEFAULT", false),
		},
	}

	if err := getEnvJSON("VOICEVOX_STYLES", &cfg.Voicevox.Styles); err != nil {
		return nil, fmt.Errorf("invalid VOICEVOX_STYLES: %w", err)
	}
	if err := getEnvJSON("AIVIS_STYLES", &cfg.Aivis.Styles); err != nil {
		return nil, fmt.Errorf("invalid AIVIS_STYLES: %w", err)
	}
	if err := getEnvJSON("SBV2_STYLES", &cfg.SBV2.Styles); err != nil {
		return nil, fmt.Errorf("invalid SBV2_STYLES: %w", err)
	}
	if err := getEnvJSON("AIVISSPEECH_STYLES", &cfg.AivisSpeech.Styles); err != nil {
		return nil, fmt.Errorf("invalid AIVISSPEECH_STYLES: %w", err)
	}
	if err := getEnvJSON("NIJIVOICE_SPEEDS", &cfg.NijiVoice.Speeds); err != nil {
		return nil, fmt.Errorf("invalid NIJIVOICE_SPEEDS: %w", err)
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Aivis.Enabled && c.Aivis.APIKey == "" {
		missing = append(missing, "AIVIS_API_KEY")
	}
	if c.NijiVoice.Enabled && c.NijiVoice.APIKey == "" {
		missing = append(missing, "NIJIVOICE_API_KEY")
	}
	if c.Coefont.Enabled && (c.Coefont.AccessKey == "" || c.Coefont.AccessSecret == "") {
		missing = append(missing, "COEFONT_ACCESS_KEY/COEFONT_ACCESS_SECRET")
	}
	if c.OpenAI.Enabled && c.OpenAI.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.Azure.Enabled && c.Azure.APIKey == "" {
		missing = append(missing, "AZURE_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.Cache.Backend != "file" && c.Cache.Backend != "redis" {
		return fmt.Errorf("unknown CACHE_BACKEND: %s", c.Cache.Backend)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// getEnvList splits a comma-separated value, trimming whitespace and
// skipping empty items.
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvJSON decodes a JSON-valued env var into dst. Absence is not an
// error; dst keeps its zero value.
func getEnvJSON(key string, dst any) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	return json.Unmarshal([]byte(v), dst)
}
