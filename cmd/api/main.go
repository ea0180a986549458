package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vibewidget/internal/config"
	"vibewidget/internal/host"
	"vibewidget/internal/llm"
	"vibewidget/internal/orchestrator"
	"vibewidget/internal/server"
	"vibewidget/internal/store"
	"vibewidget/internal/traits"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	st, auditor, err := buildStore(cfg.Store)
	if err != nil {
		log.Fatalf("init store (%s): %v", cfg.Store.Backend, err)
	}

	client := buildClient(cfg.LLM)
	defer client.Close()

	orch := orchestrator.New(st, client, orchestrator.WithTimeout(cfg.LLM.Timeout))
	registry := traits.NewRegistry()
	h := host.New(registry, orch)

	api := server.NewAPI(st, orch, h, auditor)
	srv := server.New(cfg.Port, api.Routes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-stop:
		log.Printf("received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}

// buildStore selects the artifact backend. Only the disk store exposes audit
// listing; the others return a nil auditor and the endpoint 404s.
func buildStore(cfg config.StoreConfig) (store.Store, server.Auditor, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemoryStore(), nil, nil
	case "postgres":
		s, err := store.NewPostgresStore(cfg.DatabaseURL)
		return s, nil, err
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.SQLitePath)
		return s, nil, err
	default:
		s, err := store.NewDiskStore(cfg.Root)
		if err != nil {
			return nil, nil, err
		}
		if cfg.S3.Enabled {
			mirror, err := store.NewS3CodeStore(store.S3Config{
				Endpoint:  cfg.S3.Endpoint,
				Region:    cfg.S3.Region,
				AccessKey: cfg.S3.AccessKey,
				SecretKey: cfg.S3.SecretKey,
				Bucket:    cfg.S3.Bucket,
				UseSSL:    cfg.S3.UseSSL,
			})
			if err != nil {
				return nil, nil, err
			}
			s.Mirror = mirror
			log.Printf("mirroring artifact code to s3 bucket %q at %s", cfg.S3.Bucket, cfg.S3.Endpoint)
		}
		return s, s, nil
	}
}

func buildClient(cfg config.LLMConfig) llm.Client {
	if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
		log.Printf("no GEMINI_API_KEY set, using canned generation responses")
		return llm.NewFakeClient()
	}
	client, err := llm.NewGeminiClient(context.Background(), cfg.Model)
	if err != nil {
		log.Fatalf("init llm client: %v", err)
	}
	return llm.Wrap(client, llm.Retry(3, 500*time.Millisecond))
}
