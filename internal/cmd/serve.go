package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/privylens/privylens/internal/ner"
	"github.com/privylens/privylens/internal/scrub"
	"github.com/privylens/privylens/internal/server"
	"github.com/privylens/privylens/internal/telemetry"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the redaction API and the masked LLM proxy",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Exporter: cfg.Telemetry.Exporter,
		Endpoint: cfg.Telemetry.Endpoint,
		Service:  "privylens",
		Version:  resolvedVersion(),
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	var res closers
	defer func() {
		if err := res.Close(); err != nil {
			log.Warn().Str("error", scrub.Err(err)).Msg("close_failed")
		}
	}()

	rec, err := buildRecognizer(cfg.NER)
	if err != nil {
		return err
	}
	res.add(rec)
	if lz, ok := rec.(*ner.Lazy); ok && cfg.NER.Warm {
		go func() {
			if err := lz.Warm(ctx); err != nil {
				log.Warn().Str("error", scrub.Err(err)).Msg("ner_warmup_failed")
				return
			}
			log.Info().Msg("ner_model_loaded")
		}()
	}

	images, err := buildImageRedactor(cfg.Vision, &res)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithImageRedactor(images),
		server.WithTelemetry(tp),
	}
	provider, err := buildProvider(cfg.LLM)
	if err != nil {
		log.Warn().Str("error", scrub.Err(err)).Msg("llm_provider_unavailable")
	} else {
		opts = append(opts, server.WithProvider(provider, server.ChatDefaults{
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		}))
	}

	log.Info().
		Str("ner", cfg.NER.Backend).
		Str("detector", cfg.Vision.Detector).
		Str("llm", cfg.LLM.Provider).
		Bool("telemetry", tp.Enabled).
		Msg("privylens_components_ready")

	return server.New(cfg.Server, buildEngine(cfg.NER, rec), opts...).ListenAndServe(ctx)
}
