// Command clinicmesh runs the guarded appointment service, serving its
// tools over MCP stdio, a JSON HTTP API, or an interactive chat client.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/hupe1980/clinicmesh"
	"github.com/hupe1980/clinicmesh/assistant"
	"github.com/hupe1980/clinicmesh/config"
	"github.com/hupe1980/clinicmesh/core"
	"github.com/hupe1980/clinicmesh/guardrail"
	"github.com/hupe1980/clinicmesh/httpapi"
	"github.com/hupe1980/clinicmesh/logging"
	"github.com/hupe1980/clinicmesh/mcpserver"
	"github.com/hupe1980/clinicmesh/model"
	"github.com/hupe1980/clinicmesh/model/anthropic"
	"github.com/hupe1980/clinicmesh/model/openai"
	"github.com/hupe1980/clinicmesh/observability"
	"github.com/hupe1980/clinicmesh/storage/memory"
	"github.com/hupe1980/clinicmesh/storage/sqlite"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg)

	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	mesh := clinicmesh.New(func(o *clinicmesh.Options) {
		o.Repository = repo
		o.Logger = logger
		o.Sink = observability.NewSlogSink(logger.WithComponent("audit"))
		o.GuardrailConfig = guardrail.Config{
			RateWindow:             cfg.RateWindow,
			UnverifiedLimit:        cfg.UnverifiedLimit,
			VerifiedLimit:          cfg.VerifiedLimit,
			ViolationWindow:        cfg.ViolationWindow,
			BlockThreshold:         cfg.BlockThreshold,
			BlockDuration:          cfg.BlockDuration,
			InjectionBlockDuration: cfg.InjectionBlockDuration,
		}
	})

	janitorStop := make(chan struct{})
	go mesh.Sessions().Janitor(cfg.SessionTTL, cfg.JanitorInterval, janitorStop)
	defer close(janitorStop)

	switch cfg.Mode {
	case "mcp":
		srv := mcpserver.New(mesh.Dispatcher(), func(o *mcpserver.Options) {
			o.Logger = logger.WithComponent("mcp")
		})
		return srv.Serve(ctx)
	case "http":
		return serveHTTP(ctx, cfg, mesh, logger.WithComponent("http"))
	case "chat":
		return serveChat(ctx, cfg, mesh, logger.WithComponent("assistant"))
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

// serveChat runs an interactive terminal session against the configured
// model provider. Every tool call the model makes goes through the same
// guardrail gate as the other serving modes.
func serveChat(ctx context.Context, cfg *config.Config, mesh *clinicmesh.ClinicMesh, logger logging.Logger) error {
	llm, err := buildModel(cfg)
	if err != nil {
		return err
	}

	a := assistant.New(llm, mesh.Dispatcher(), func(o *assistant.Options) {
		o.Logger = logger
	})
	sessionID := uuid.NewString()

	fmt.Println("clinicmesh chat (ctrl-d to quit)")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		turn, err := a.Converse(ctx, sessionID, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("turn failed", "error", err.Error())
			fmt.Println("! something went wrong, please try again")
			continue
		}
		fmt.Println(turn.Reply)
	}
}

func buildModel(cfg *config.Config) (model.Model, error) {
	switch cfg.ModelProvider {
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.ModelName != "" {
				o.Model = anthropicsdk.Model(cfg.ModelName)
			}
		}), nil
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.ModelName != "" {
				o.Model = cfg.ModelName
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.ModelProvider)
	}
}

func newLogger(cfg *config.Config) *logging.ServiceLogger {
	level := logging.LogLevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = logging.LogLevelDebug
	case "warn":
		level = logging.LogLevelWarn
	case "error":
		level = logging.LogLevelError
	}
	return logging.NewSlogLogger(level, cfg.LogFormat, false)
}

func openRepository(cfg *config.Config) (core.Repository, func(), error) {
	if cfg.DBPath == "" {
		return memory.NewRepository(), func() {}, nil
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

func serveHTTP(ctx context.Context, cfg *config.Config, mesh *clinicmesh.ClinicMesh, logger logging.Logger) error {
	api := httpapi.New(mesh.Dispatcher(), mesh.Sessions(), func(o *httpapi.Options) {
		o.Metrics = mesh.Metrics()
		o.Logger = logger
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
