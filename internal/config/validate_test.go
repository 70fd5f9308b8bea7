package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := FromViper(New(""))
	require.NoError(t, err)
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	assert.NoError(t, Validate(validConfig(t)))
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"addr without port", func(c *Config) { c.Server.Addr = "localhost" }, "host:port"},
		{"bad origin", func(c *Config) { c.Server.AllowedOrigins = []string{"localhost:3000"} }, "allowed_origins"},
		{"zero upload limit", func(c *Config) { c.Server.MaxUploadBytes = 0 }, "max_upload_bytes"},
		{"negative rate", func(c *Config) { c.Server.RateLimit.PerClientRPM = -1 }, "rate_limit"},
		{"unknown ner backend", func(c *Config) { c.NER.Backend = "spacy" }, "ner.backend"},
		{"onnx without model", func(c *Config) { c.NER.Backend = "onnx" }, "ner.model_dir"},
		{"http ner without url", func(c *Config) { c.NER.Backend = "http" }, "ner.url"},
		{"min score range", func(c *Config) { c.NER.MinScore = 1.5 }, "ner.min_score"},
		{"unknown detector", func(c *Config) { c.Vision.Detector = "haar" }, "vision.detector"},
		{"onnx detector without model", func(c *Config) { c.Vision.Detector = "onnx" }, "vision.model_path"},
		{"threshold range", func(c *Config) { c.Vision.ScoreThreshold = -0.1 }, "score_threshold"},
		{"intensity range", func(c *Config) { c.Vision.Intensity = 2 }, "intensities"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bard" }, "llm.provider"},
		{"ftp base url", func(c *Config) { c.LLM.BaseURL = "ftp://example.com" }, "http or https"},
		{"private base url", func(c *Config) { c.LLM.BaseURL = "http://127.0.0.1:8080/v1" }, "blocked"},
		{"localhost base url", func(c *Config) { c.LLM.BaseURL = "http://localhost:11434/v1" }, "blocked"},
		{"temperature range", func(c *Config) { c.LLM.Temperature = 3 }, "temperature"},
		{"otlp without endpoint", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "otlp-grpc"
		}, "endpoint"},
		{"unknown exporter", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "zipkin"
		}, "telemetry.exporter"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateAllowsPrivateBaseURLWhenEnabled(t *testing.T) {
	cfg := validConfig(t)
	cfg.LLM.BaseURL = "http://127.0.0.1:8080/v1"
	cfg.LLM.AllowPrivateNetworks = true
	assert.NoError(t, Validate(cfg))
}

func TestValidateNil(t *testing.T) {
	assert.Error(t, Validate(nil))
}
