package config

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

type Environment string

const (
	Live Environment = "live"
	Beta Environment = "beta"
	Dev  Environment = "dev"
)

type JFConfig struct {
	Env          Environment    `toml:"env"`
	Addr         string         `toml:"addr"`
	BaseUrl      string         `toml:"base_url"`
	LogLevel     zerolog.Level  `toml:"-"`
	LogLevelName string         `toml:"log_level"`
	Postgres     PostgresConfig `toml:"postgres"`
	Storage      StorageConfig  `toml:"storage"`
	Images       ImagesConfig   `toml:"images"`
	Auth         AuthConfig     `toml:"auth"`
	LocalS3      LocalS3Config  `toml:"local_s3"`

	// Campus locations a vendor may pick from.
	Locations []string `toml:"locations"`
}

type PostgresConfig struct {
	User         string            `toml:"user"`
	Password     string            `toml:"password"`
	Hostname     string            `toml:"hostname"`
	Port         int               `toml:"port"`
	DbName       string            `toml:"db_name"`
	LogLevel     tracelog.LogLevel `toml:"-"`
	LogLevelName string            `toml:"log_level"`
	MinConn      int32             `toml:"min_conn"`
	MaxConn      int32             `toml:"max_conn"`

	// How long NewConnPool keeps retrying before giving up on a database
	// that is still starting up.
	ConnectTimeout time.Duration `toml:"-"`
}

func (info PostgresConfig) DSN() string {
	return fmt.Sprintf("user=%s password=%s host=%s port=%d dbname=%s", info.User, info.Password, info.Hostname, info.Port, info.DbName)
}

// S3-compatible object storage holding profile and product images.
type StorageConfig struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`

	// Objects are publicly readable at <PublicBaseUrl>/<bucket>/<path>.
	PublicBaseUrl string `toml:"public_base_url"`

	ProfileBucket string `toml:"profile_bucket"`
	ProductBucket string `toml:"product_bucket"`

	// Path-style addressing (endpoint/bucket/key) is the default because
	// MinIO and the local S3 server need it.
	VirtualHostStyle bool `toml:"virtual_host_style"`
}

type ImagePreset struct {
	MaxDimension int     `toml:"max_dimension"`
	Quality      float64 `toml:"quality"`
}

type ImagesConfig struct {
	MaxUploadBytes int64    `toml:"max_upload_bytes"`
	AllowedTypes   []string `toml:"allowed_types"`
	// Largest width*height the recompressor will decode. Bigger images are
	// stored as uploaded.
	MaxPixels int         `toml:"max_pixels"`
	Profile   ImagePreset `toml:"profile"`
	Product   ImagePreset `toml:"product"`
}

type AuthConfig struct {
	JWTSecret     string        `toml:"jwt_secret"`
	TokenLifetime time.Duration `toml:"-"`
	TokenHours    int           `toml:"token_hours"`
}

// A filesystem-backed S3 server for development. When enabled, the website
// starts it alongside itself and Storage.Endpoint should point at Addr.
type LocalS3Config struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
	Addr    string `toml:"addr"`
}
