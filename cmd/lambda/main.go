package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"repair-agent/handler"
	"repair-agent/internal/integrations/linemsg"
	"repair-agent/internal/integrations/paramstore"
	"repair-agent/internal/integrations/telegram"
	"repair-agent/internal/log"
	"repair-agent/internal/repository"
	"repair-agent/internal/session"
	"repair-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	baseURL := mustEnv("BASE_URL")

	log.Configure(log.Config{Service: "repair-agent"})

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
	conv, err := usecase.NewConversationEngine(
		session.NewStore(), repo, repo, lineClient, opsClient,
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

	h, err := handler.NewHandler(conv, lifecycle, lineClient, log.WithComponent("handler"))
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}
