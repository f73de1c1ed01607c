package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"warehouse-wizard/handler"
	"warehouse-wizard/internal/events"
	"warehouse-wizard/internal/export"
	"warehouse-wizard/internal/integrations/notify"
	"warehouse-wizard/internal/integrations/openai"
	"warehouse-wizard/internal/integrations/paramstore"
	"warehouse-wizard/internal/repository"
	"warehouse-wizard/internal/usecase"
	"warehouse-wizard/internal/visualization"
)

type settings struct {
	stateTable      string
	paramPrefix     string
	turnTimeout     time.Duration
	maxMessageLen   int
	completionTopic string
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	h, err := build(context.Background(), logger)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	lambda.Start(h.Handle)
}

// loadSettings is the only place the environment is read.
func loadSettings() (settings, error) {
	var s settings
	var err error
	if s.stateTable, err = requireEnv("STATE_TABLE"); err != nil {
		return s, err
	}
	if s.paramPrefix, err = requireEnv("PARAM_PREFIX"); err != nil {
		return s, err
	}
	s.turnTimeout = time.Duration(envInt("TURN_TIMEOUT_SECONDS", 20)) * time.Second
	s.maxMessageLen = envInt("MAX_MESSAGE_LENGTH", 500)
	s.completionTopic = os.Getenv("COMPLETION_TOPIC_ARN")
	return s, nil
}

func build(ctx context.Context, logger *slog.Logger) (*handler.Handler, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	params, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	store, err := repository.New(awsdynamodb.NewFromConfig(cfg), s.stateTable)
	if err != nil {
		return nil, err
	}
	llm, err := openai.NewClient(params, s.paramPrefix)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(logger)
	panel := visualization.NewPanel(logger)
	bus.Subscribe("visualization", panel.Listen)
	if s.completionTopic != "" {
		forwarder, err := notify.New(awssns.NewFromConfig(cfg), s.completionTopic, logger)
		if err != nil {
			return nil, err
		}
		bus.Subscribe("sns", forwarder.Listen)
	}

	// The dialogue service also screens input through the moderation endpoint.
	dialogue, err := usecase.NewDialogue(params, llm, s.paramPrefix)
	if err != nil {
		return nil, err
	}
	chat, err := usecase.NewChatService(dialogue, dialogue, store, store, bus, usecase.DriverOptions{
		TurnTimeout:   s.turnTimeout,
		MaxMessageLen: s.maxMessageLen,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	configs, err := usecase.NewConfigService(store)
	if err != nil {
		return nil, err
	}
	exports, err := usecase.NewExportService(store, export.XLSX{}, store)
	if err != nil {
		return nil, err
	}

	return handler.NewHandler(chat, configs, exports, panel, logger)
}

func requireEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is not set", key)
	}
	return v, nil
}

func envInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
