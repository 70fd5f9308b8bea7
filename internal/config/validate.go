package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validateServerConfig(cfg.Server); err != nil {
		return err
	}
	if err := validateNERConfig(cfg.NER); err != nil {
		return err
	}
	if err := validateVisionConfig(cfg.Vision); err != nil {
		return err
	}
	if err := validateLLMConfig(cfg.LLM); err != nil {
		return err
	}
	return validateTelemetryConfig(cfg.Telemetry)
}

func validateServerConfig(s ServerConfig) error {
	if strings.TrimSpace(s.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	if _, _, err := net.SplitHostPort(s.Addr); err != nil {
		return fmt.Errorf("server.addr %q is not host:port: %w", s.Addr, err)
	}
	for _, o := range s.AllowedOrigins {
		if o == "*" {
			continue
		}
		if err := validateHTTPURL("server.allowed_origins", o); err != nil {
			return err
		}
	}
	if s.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}
	if s.MaxUploadBytes <= 0 {
		return errors.New("server.max_upload_bytes must be positive")
	}
	if s.RateLimit.GlobalRPM < 0 || s.RateLimit.PerClientRPM < 0 {
		return errors.New("server.rate_limit values must not be negative")
	}
	return nil
}

func validateNERConfig(n NERConfig) error {
	switch strings.ToLower(strings.TrimSpace(n.Backend)) {
	case "", "none":
	case "onnx":
		if strings.TrimSpace(n.ModelDir) == "" {
			return errors.New("ner.model_dir must be set for the onnx backend")
		}
	case "http":
		if err := validateHTTPURL("ner.url", n.URL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("ner.backend must be none, onnx or http, got %q", n.Backend)
	}
	if n.Timeout < 0 {
		return errors.New("ner.timeout must not be negative")
	}
	if n.MinScore < 0 || n.MinScore > 1 {
		return fmt.Errorf("ner.min_score must be within [0,1], got %v", n.MinScore)
	}
	return nil
}

func validateVisionConfig(v VisionConfig) error {
	switch strings.ToLower(strings.TrimSpace(v.Detector)) {
	case "", "none":
	case "onnx":
		if strings.TrimSpace(v.ModelPath) == "" {
			return errors.New("vision.model_path must be set for the onnx detector")
		}
	case "http":
		if err := validateHTTPURL("vision.url", v.URL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("vision.detector must be none, onnx or http, got %q", v.Detector)
	}
	if v.ScoreThreshold < 0 || v.ScoreThreshold > 1 {
		return fmt.Errorf("vision.score_threshold must be within [0,1], got %v", v.ScoreThreshold)
	}
	if v.Intensity < 0 || v.Intensity > 1 || v.BoxIntensity < 0 || v.BoxIntensity > 1 {
		return errors.New("vision intensities must be within [0,1]")
	}
	if v.BlurSigma < 0 {
		return errors.New("vision.blur_sigma must not be negative")
	}
	if v.MaxPixels <= 0 {
		return errors.New("vision.max_pixels must be positive")
	}
	return nil
}

func validateLLMConfig(l LLMConfig) error {
	switch strings.ToLower(strings.TrimSpace(l.Provider)) {
	case "", "openai", "echo":
	default:
		return fmt.Errorf("llm.provider must be openai or echo, got %q", l.Provider)
	}
	if l.BaseURL != "" {
		u, err := url.Parse(l.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("llm.base_url is invalid")
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("llm.base_url must be http or https")
		}
		if err := blockPrivateHost(u.Host, l.AllowPrivateNetworks); err != nil {
			return fmt.Errorf("llm.base_url blocked: %w", err)
		}
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0,2], got %v", l.Temperature)
	}
	if l.MaxTokens < 0 {
		return errors.New("llm.max_tokens must not be negative")
	}
	return nil
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(t.Exporter)) {
	case "", "stdout":
		return nil
	case "otlp-grpc", "otlp-http":
		if strings.TrimSpace(t.Endpoint) == "" {
			return errors.New("telemetry enabled but endpoint is empty")
		}
		return nil
	default:
		return fmt.Errorf("telemetry.exporter must be stdout, otlp-grpc or otlp-http, got %q", t.Exporter)
	}
}

func validateHTTPURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s must be set", field)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s has invalid url %q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be http or https", field)
	}
	return nil
}

func blockPrivateHost(hostport string, allowPrivate bool) error {
	if allowPrivate {
		return nil
	}
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	if strings.EqualFold(strings.TrimSpace(host), "localhost") {
		return errors.New("private network host localhost blocked for SSRF safety")
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("private network IP %s blocked for SSRF safety", ip.String())
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
