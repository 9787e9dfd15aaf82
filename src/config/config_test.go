package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Nil(t, err)

	assert.Equal(t, int64(5242880), cfg.Images.MaxUploadBytes)
	assert.Equal(t, 40_000_000, cfg.Images.MaxPixels)
	assert.Equal(t, ImagePreset{MaxDimension: 400, Quality: 0.7}, cfg.Images.Profile)
	assert.Equal(t, ImagePreset{MaxDimension: 800, Quality: 0.8}, cfg.Images.Product)
	assert.Equal(t, "profile-images", cfg.Storage.ProfileBucket)
	assert.Equal(t, "product-images", cfg.Storage.ProductBucket)
	assert.Equal(t, []string{"DACyTI", "DAIA", "DACB", "Externo"}, cfg.Locations)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
	assert.Equal(t, tracelog.LogLevelWarn, cfg.Postgres.LogLevel)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	err := os.WriteFile(path, []byte(`
addr = ":8080"
log_level = "info"

[storage]
public_base_url = "https://cdn.example.com/storage/v1/object/public/"

[images.product]
max_dimension = 1024
quality = 0.9
`), 0644)
	require.Nil(t, err)

	cfg, err := Load(path)
	require.Nil(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.Equal(t, "https://cdn.example.com/storage/v1/object/public", cfg.Storage.PublicBaseUrl)
	assert.Equal(t, ImagePreset{MaxDimension: 1024, Quality: 0.9}, cfg.Images.Product)
	// untouched sections keep their defaults
	assert.Equal(t, ImagePreset{MaxDimension: 400, Quality: 0.7}, cfg.Images.Profile)
	assert.Equal(t, "product-images", cfg.Storage.ProductBucket)
}

func TestDecodeRejectsBadQuality(t *testing.T) {
	_, err := Decode(`
[images.profile]
quality = 1.5
`)
	assert.NotNil(t, err)

	_, err = Decode(`
[images]
max_pixels = 0
`)
	assert.NotNil(t, err)
}

func TestIsValidLocation(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.IsValidLocation("DAIA"))
	assert.False(t, cfg.IsValidLocation("daia"))
	assert.False(t, cfg.IsValidLocation(""))
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.Nil(t, err)

	assert.Equal(t, Default().Images, cfg.Images)
	assert.Equal(t, Default().Storage, cfg.Storage)
	assert.True(t, cfg.LocalS3.Enabled)
	assert.Equal(t, 168*time.Hour, cfg.Auth.TokenLifetime)
}
