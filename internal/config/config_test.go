package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.Equal(t, "file", cfg.Cache.Backend)
	assert.Equal(t, "ja-JP", cfg.Gateway.DefaultLanguage)
	assert.Equal(t, 10*time.Second, cfg.Gateway.Timeout)
	assert.False(t, cfg.Voicevox.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadProviderSettings(t *testing.T) {
	t.Setenv("VOICEVOX_ENABLED", "true")
	t.Setenv("VOICEVOX_URL", "http://engine:50021")
	t.Setenv("VOICEVOX_DEFAULT_SPEAKER", "46")
	t.Setenv("VOICEVOX_DEFAULT", "true")
	t.Setenv("VOICEVOX_LANGUAGES", "ja-JP, ja")
	t.Setenv("VOICEVOX_STYLES", `{"46":{"Joy":"47","Angry":"48"}}`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Voicevox.Enabled)
	assert.True(t, cfg.Voicevox.Default)
	assert.Equal(t, "http://engine:50021", cfg.Voicevox.URL)
	assert.Equal(t, "46", cfg.Voicevox.DefaultSpeaker)
	assert.Equal(t, []string{"ja-JP", "ja"}, cfg.Voicevox.Languages)
	assert.Equal(t, "47", cfg.Voicevox.Styles["46"]["Joy"])
}

func TestValidateMissingCredentials(t *testing.T) {
	t.Setenv("COEFONT_ENABLED", "true")
	t.Setenv("COEFONT_ACCESS_KEY", "key-only")

	cfg, err := Load()
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COEFONT_ACCESS_SECRET")
}

func TestValidateCacheBackend(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "memcached")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadStylesJSON(t *testing.T) {
	t.Setenv("AIVIS_STYLES", "{broken")
	_, err := Load()
	assert.Error(t, err)
}
