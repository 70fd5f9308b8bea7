// Package config loads PrivyLens settings from privylens.yaml, PRIVYLENS_*
// environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "PRIVYLENS"
	FileName   = "privylens"
	HomeDir    = ".privylens"
	MB         = 1 << 20
	defaultRPM = 60
)

// Config holds PrivyLens configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	NER       NERConfig       `mapstructure:"ner"`
	Vision    VisionConfig    `mapstructure:"vision"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Addr           string          `mapstructure:"addr"` // e.g. ":4000"
	AllowedOrigins []string        `mapstructure:"allowed_origins"`
	MaxBodyBytes   int64           `mapstructure:"max_body_bytes"`
	MaxUploadBytes int64           `mapstructure:"max_upload_bytes"`
	H2C            bool            `mapstructure:"h2c"`
	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a reverse proxy that sets them.
	TrustProxy     bool            `mapstructure:"trust_proxy"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig limits LLM proxy requests per minute. Zero disables a limit.
type RateLimitConfig struct {
	GlobalRPM    int `mapstructure:"global_rpm"`
	PerClientRPM int `mapstructure:"per_client_rpm"`
}

type NERConfig struct {
	Backend     string        `mapstructure:"backend"` // none | onnx | http
	ModelDir    string        `mapstructure:"model_dir"`
	ORTLib      string        `mapstructure:"ort_lib"`
	URL         string        `mapstructure:"url"`
	Token       string        `mapstructure:"token"`
	Timeout     time.Duration `mapstructure:"timeout"`
	IncludeMisc bool          `mapstructure:"include_misc"`
	MinScore    float64       `mapstructure:"min_score"`
	Warm        bool          `mapstructure:"warm"`
}

type VisionConfig struct {
	Detector       string        `mapstructure:"detector"` // none | onnx | http
	ModelPath      string        `mapstructure:"model_path"`
	ORTLib         string        `mapstructure:"ort_lib"`
	URL            string        `mapstructure:"url"`
	Token          string        `mapstructure:"token"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ScoreThreshold float64       `mapstructure:"score_threshold"`
	Intensity      float64       `mapstructure:"intensity"`
	BoxIntensity   float64       `mapstructure:"box_intensity"`
	BlurSigma      float64       `mapstructure:"blur_sigma"`
	MaxPixels      int           `mapstructure:"max_pixels"`
	// Cache keeps detections across requests, keyed by image hash. Off by
	// default so boxes live only for the request that produced them.
	Cache          bool          `mapstructure:"cache"`
	CachePath      string        `mapstructure:"cache_path"`
	CacheEntries   int           `mapstructure:"cache_entries"`
}

type LLMConfig struct {
	Provider             string        `mapstructure:"provider"` // openai | echo
	APIKey               string        `mapstructure:"api_key"`
	BaseURL              string        `mapstructure:"base_url"`
	Model                string        `mapstructure:"model"`
	Temperature          float64       `mapstructure:"temperature"`
	MaxTokens            int           `mapstructure:"max_tokens"`
	Timeout              time.Duration `mapstructure:"timeout"`
	AllowPrivateNetworks bool          `mapstructure:"allow_private_networks"`
}

type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"` // stdout | otlp-grpc | otlp-http
	Endpoint string `mapstructure:"endpoint"`
}

// SetDefaults registers every key with its default so that environment
// variables are honoured for all of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":4000")
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost:3000",
		"http://localhost:3001",
		"http://localhost:3002",
	})
	v.SetDefault("server.max_body_bytes", 100*MB)
	v.SetDefault("server.max_upload_bytes", 8*MB)
	v.SetDefault("server.h2c", false)
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.rate_limit.global_rpm", 10*defaultRPM)
	v.SetDefault("server.rate_limit.per_client_rpm", defaultRPM)

	v.SetDefault("ner.backend", "none")
	v.SetDefault("ner.model_dir", "")
	v.SetDefault("ner.ort_lib", "")
	v.SetDefault("ner.url", "")
	v.SetDefault("ner.token", "")
	v.SetDefault("ner.timeout", 5*time.Second)
	v.SetDefault("ner.include_misc", false)
	v.SetDefault("ner.min_score", 0.0)
	v.SetDefault("ner.warm", false)

	v.SetDefault("vision.detector", "none")
	v.SetDefault("vision.model_path", "")
	v.SetDefault("vision.ort_lib", "")
	v.SetDefault("vision.url", "")
	v.SetDefault("vision.token", "")
	v.SetDefault("vision.timeout", 10*time.Second)
	v.SetDefault("vision.score_threshold", 0.7)
	v.SetDefault("vision.intensity", 0.02)
	v.SetDefault("vision.box_intensity", 0.04)
	v.SetDefault("vision.blur_sigma", 4.0)
	v.SetDefault("vision.max_pixels", 40_000_000)
	v.SetDefault("vision.cache", false)
	v.SetDefault("vision.cache_path", "")
	v.SetDefault("vision.cache_entries", 1024)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.allow_private_networks", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "stdout")
	v.SetDefault("telemetry.endpoint", "")
}

// New returns a viper instance wired for PrivyLens: defaults, PRIVYLENS_
// environment variables (dots become underscores) and the config file at
// path, or privylens.yaml in . and ~/.privylens when path is empty.
func New(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		return v
	}
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, HomeDir))
	}
	return v
}

// Load reads configuration from path (or the default locations). A missing
// default config file is not an error; a missing explicit one is.
func Load(path string) (*Config, error) {
	return FromViper(New(path))
}

// FromViper reads the config file registered on v, if any, and decodes it.
func FromViper(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return &cfg, nil
}

// LoadDotEnv loads .env files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}
