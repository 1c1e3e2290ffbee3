package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"tutor-gateway/handler"
	"tutor-gateway/internal/auth"
	"tutor-gateway/internal/integrations/openai"
	"tutor-gateway/internal/integrations/paramstore"
	"tutor-gateway/internal/repository"
	"tutor-gateway/internal/usecase"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	_ = godotenv.Load() // .env is optional; real deployments set the environment directly
	port := envStr("PORT", "8080")
	apiKey := os.Getenv("OPENAI_API_KEY")
	paramPrefix := os.Getenv("PARAM_PREFIX")
	baseURL := os.Getenv("OPENAI_BASE_URL")
	stateTable := os.Getenv("STATE_TABLE")
	jwtSecret := os.Getenv("AUTH_JWT_SECRET")
	allowedOrigins := splitOrigins(os.Getenv("ALLOWED_ORIGINS"))

	cfg := usecase.Config{
		ChatModel:       envStr("CHAT_MODEL", "gpt-4o-mini"),
		STTModel:        envStr("STT_MODEL", "whisper-1"),
		TTSModel:        envStr("TTS_MODEL", "tts-1"),
		TTSVoice:        envStr("TTS_VOICE", "alloy"),
		HistoryWindow:   envInt("HISTORY_WINDOW", 12),
		CleanTranscript: envBool("CLEAN_TRANSCRIPT", false),
	}

	// ---- Provider client ----
	var opts []openai.Option
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	var getter openai.Getter
	if apiKey != "" {
		opts = append(opts, openai.WithStaticAPIKey(apiKey))
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
		ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			logger.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		getter = ps
	}
	providerClient, err := openai.NewClient(getter, paramPrefix, opts...)
	if err != nil {
		logger.Error("failed to create provider client", "err", err)
		os.Exit(1)
	}

	// ---- Conversation store (optional) ----
	var store *repository.Client
	if stateTable != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
		store, err = repository.New(awsdynamodb.NewFromConfig(awsCfg), stateTable)
		if err != nil {
			logger.Error("failed to create conversation store", "err", err)
			os.Exit(1)
		}
	} else {
		logger.Info("STATE_TABLE not set, conversation persistence disabled")
	}

	// ---- Identity verifier (optional) ----
	var verifier auth.Verifier
	if jwtSecret != "" {
		v, err := auth.NewJWTVerifier(jwtSecret)
		if err != nil {
			logger.Error("failed to create identity verifier", "err", err)
			os.Exit(1)
		}
		verifier = v
	} else {
		logger.Info("AUTH_JWT_SECRET not set, all requests treated as anonymous")
	}

	// ---- Use case + handler ----
	var turnStore usecase.TurnStore
	var historyReader handler.HistoryReader
	if store != nil {
		turnStore = store
		historyReader = store
	}
	askService, err := usecase.NewAskService(providerClient, providerClient, providerClient, turnStore, cfg, logger)
	if err != nil {
		logger.Error("failed to create ask service", "err", err)
		os.Exit(1)
	}
	h, err := handler.NewHandler(askService, historyReader, logger)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	router := mux.NewRouter()
	router.Use(handler.CorrelationMiddleware(logger))
	router.Use(handler.CORSMiddleware(allowedOrigins))
	router.Use(handler.AuthMiddleware(verifier))
	h.Routes(router)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server listening", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-stop
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "err", err)
	}
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

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
