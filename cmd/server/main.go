package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"golang.org/x/sync/errgroup"

	"repair-agent/internal/api"
	"repair-agent/internal/integrations/linemsg"
	"repair-agent/internal/integrations/paramstore"
	"repair-agent/internal/integrations/telegram"
	"repair-agent/internal/log"
	"repair-agent/internal/metrics"
	"repair-agent/internal/repository"
	"repair-agent/internal/session"
	"repair-agent/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Configuration (read only here) ----
	listenAddr := envStr("LISTEN_ADDR", ":8080")
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	baseURL := mustEnv("BASE_URL")
	sessionMaxIdle := time.Duration(envInt("SESSION_MAX_IDLE_MINUTES", 30)) * time.Minute
	sweepInterval := time.Duration(envInt("SESSION_SWEEP_MINUTES", 5)) * time.Minute

	log.Configure(log.Config{Service: "repair-agent"})
	logger := log.WithComponent("server")

	// ---- AWS SDK config ----
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	repo, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		slog.Error("failed to create repository", "err", err)
		os.Exit(1)
	}
	lineClient, err := linemsg.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create LINE client", "err", err)
		os.Exit(1)
	}
	opsClient, err := telegram.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create Telegram client", "err", err)
		os.Exit(1)
	}

	// ---- Engines ----
	sessions := session.NewStore()
	conv, err := usecase.NewConversationEngine(
		sessions, repo, repo, lineClient, opsClient,
		usecase.FormLinks{BaseURL: baseURL},
		log.WithComponent("conversation"),
	)
	if err != nil {
		slog.Error("failed to create conversation engine", "err", err)
		os.Exit(1)
	}
	fanout := usecase.NewFanout(lineClient, opsClient, log.WithComponent("fanout"))
	lifecycle, err := usecase.NewLifecycleEngine(repo, fanout, log.WithComponent("lifecycle"))
	if err != nil {
		slog.Error("failed to create lifecycle engine", "err", err)
		os.Exit(1)
	}

	srv, err := api.NewServer(conv, lifecycle, repo, lineClient, log.WithComponent("api"))
	if err != nil {
		slog.Error("failed to create API server", "err", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", listenAddr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := sessions.Sweep(sessionMaxIdle); n > 0 {
					metrics.SessionsSweptTotal.Add(float64(n))
					logger.Info().Int("swept", n).Msg("idle sessions reset")
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
