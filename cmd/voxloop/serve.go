package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/voxloop-go/voxloop/pkg/core/agent"
	"github.com/voxloop-go/voxloop/pkg/core/live"
	"github.com/voxloop-go/voxloop/pkg/core/llm"
	"github.com/voxloop-go/voxloop/pkg/gateway/handlers"
	"github.com/voxloop-go/voxloop/pkg/gateway/live/session"
	"github.com/voxloop-go/voxloop/pkg/providers/gemini"
)

const defaultSystemPrompt = "You are a helpful real-time voice assistant. Keep answers short and conversational."

func newServeCmd() *cobra.Command {
	var (
		addr           string
		model          string
		systemPrompt   string
		vadThreshold   float64
		vadSilenceMs   int
		minAudioChunks int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the live websocket gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			client, err := newGeminiClient(cmd.Context(), model, logger)
			if err != nil {
				return err
			}

			orchCfg := live.DefaultOrchestratorConfig()
			if vadThreshold > 0 {
				orchCfg.VAD.Threshold = vadThreshold
			}
			if vadSilenceMs > 0 {
				orchCfg.VAD.SilenceDurationMs = vadSilenceMs
			}
			if minAudioChunks > 0 {
				orchCfg.MinAudioChunks = minAudioChunks
			}

			agentCfg := agent.DefaultConfig()
			agentCfg.SystemPrompt = systemPrompt
			agentCfg.AudioModality = true

			liveHandler := handlers.LiveHandler{
				Client:       client,
				Tools:        demoToolSet(logger),
				LLM:          llm.Config{Model: model},
				Agent:        agentCfg,
				Orchestrator: orchCfg,
				Session:      session.DefaultConfig(),
				Logger:       logger,
			}

			mux := http.NewServeMux()
			mux.Handle("/healthz", handlers.HealthHandler{})
			mux.Handle("/readyz", handlers.ReadyHandler{Orchestrator: orchCfg, Session: session.DefaultConfig()})
			mux.Handle("/v1/live", liveHandler)

			return runServer(cmd.Context(), addr, mux, logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8765", "listen address")
	cmd.Flags().StringVar(&model, "model", gemini.DefaultModel, "model identifier")
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", defaultSystemPrompt, "system prompt installed at the head of each conversation")
	cmd.Flags().Float64Var(&vadThreshold, "vad-threshold", 0, "voice volume threshold, 0-100 (0 uses the default)")
	cmd.Flags().IntVar(&vadSilenceMs, "vad-silence-ms", 0, "silence duration that ends a voice segment (0 uses the default)")
	cmd.Flags().IntVar(&minAudioChunks, "min-audio-chunks", 0, "minimum buffered chunks before a segment becomes a turn (0 uses the default)")
	return cmd
}

// newGeminiClient builds the model transport from the environment. Vertex AI
// is selected when GOOGLE_CLOUD_PROJECT and GOOGLE_CLOUD_LOCATION are both
// set, otherwise GEMINI_API_KEY selects the Gemini API.
func newGeminiClient(ctx context.Context, model string, logger zerolog.Logger) (*gemini.Client, error) {
	cfg := gemini.Config{
		APIKey:   os.Getenv("GEMINI_API_KEY"),
		Project:  os.Getenv("GOOGLE_CLOUD_PROJECT"),
		Location: os.Getenv("GOOGLE_CLOUD_LOCATION"),
		Model:    model,
	}
	client, err := gemini.NewClient(ctx, cfg, logger)
	if err != nil {
		return nil, errors.Wrap(err, "set GEMINI_API_KEY or GOOGLE_CLOUD_PROJECT and GOOGLE_CLOUD_LOCATION")
	}
	return client, nil
}

// runServer serves until the context ends or a signal arrives, then shuts
// down gracefully.
func runServer(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listenErrCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("gateway listening")
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-listenErrCh:
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return <-listenErrCh
}
