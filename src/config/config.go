package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

const configPathEnvKey = "JUCHIFOOD_CONFIG"

// The global configuration. Populated from Default() and then overlaid with
// the TOML file named by $JUCHIFOOD_CONFIG (or ./config.toml if present).
var Config JFConfig

func init() {
	cfg, err := Load(configPath())
	if err != nil {
		panic(err)
	}
	Config = cfg
}

func configPath() string {
	if p := strings.TrimSpace(os.Getenv(configPathEnvKey)); p != "" {
		return p
	}
	return "config.toml"
}

func Default() JFConfig {
	return JFConfig{
		Env:          Dev,
		Addr:         ":9001",
		BaseUrl:      "http://localhost:9001",
		LogLevelName: "debug",
		Postgres: PostgresConfig{
			User:         "juchifood",
			Password:     "password",
			Hostname:     "localhost",
			Port:         5432,
			DbName:       "juchifood",
			LogLevelName: "warn",
			MinConn:      2,
			MaxConn:      10,
		},
		Storage: StorageConfig{
			Endpoint:      "http://localhost:9004",
			Region:        "us-east-1",
			AccessKey:     "dev",
			SecretKey:     "dev",
			PublicBaseUrl: "http://localhost:9004",
			ProfileBucket: "profile-images",
			ProductBucket: "product-images",
		},
		Images: ImagesConfig{
			MaxUploadBytes: 5 * 1024 * 1024,
			AllowedTypes:   []string{"image/jpeg", "image/jpg", "image/png", "image/webp"},
			MaxPixels:      40_000_000,
			Profile:        ImagePreset{MaxDimension: 400, Quality: 0.7},
			Product:        ImagePreset{MaxDimension: 800, Quality: 0.8},
		},
		Auth: AuthConfig{
			JWTSecret:  "dev-secret-change-me",
			TokenHours: 24 * 7,
		},
		LocalS3: LocalS3Config{
			Enabled: true,
			Dir:     "./tmp/s3",
			Addr:    ":9004",
		},
		Locations: []string{"DACyTI", "DAIA", "DACB", "Externo"},
	}
}

// Load reads the TOML file at path on top of the defaults. A missing file is
// not an error.
func Load(path string) (JFConfig, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return JFConfig{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return JFConfig{}, err
	}

	if err := cfg.resolve(); err != nil {
		return JFConfig{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses TOML text on top of the defaults.
func Decode(text string) (JFConfig, error) {
	cfg := Default()
	if _, err := toml.Decode(text, &cfg); err != nil {
		return JFConfig{}, err
	}
	if err := cfg.resolve(); err != nil {
		return JFConfig{}, err
	}
	return cfg, nil
}

func (cfg *JFConfig) resolve() error {
	level, err := zerolog.ParseLevel(cfg.LogLevelName)
	if err != nil {
		return err
	}
	cfg.LogLevel = level

	pgLevel, err := tracelog.LogLevelFromString(cfg.Postgres.LogLevelName)
	if err != nil {
		return err
	}
	cfg.Postgres.LogLevel = pgLevel
	cfg.Postgres.ConnectTimeout = 30 * time.Second

	if cfg.Images.Profile.Quality <= 0 || cfg.Images.Profile.Quality > 1 ||
		cfg.Images.Product.Quality <= 0 || cfg.Images.Product.Quality > 1 {
		return fmt.Errorf("image quality must be in (0, 1]")
	}
	if cfg.Images.Profile.MaxDimension <= 0 || cfg.Images.Product.MaxDimension <= 0 {
		return fmt.Errorf("image max dimension must be positive")
	}
	if cfg.Images.MaxPixels <= 0 {
		return fmt.Errorf("images.max_pixels must be positive")
	}

	cfg.Auth.TokenLifetime = time.Duration(cfg.Auth.TokenHours) * time.Hour
	cfg.Storage.PublicBaseUrl = strings.TrimSuffix(cfg.Storage.PublicBaseUrl, "/")

	return nil
}

func (cfg JFConfig) IsValidLocation(location string) bool {
	for _, l := range cfg.Locations {
		if l == location {
			return true
		}
	}
	return false
}
