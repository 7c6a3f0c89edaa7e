// Command server runs the agentic IDE backend's HTTP Surface: the Run
// Orchestrator, Sandbox Session Manager, and Stream Layer wired behind
// net/http, following the flag + goa.design/clue/log + signal-handling
// pattern of the teacher's example/cmd/assistant/main.go.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goa.design/clue/log"

	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ideagent/backend/internal/config"
	"github.com/ideagent/backend/internal/httpapi"
	"github.com/ideagent/backend/internal/model"
	"github.com/ideagent/backend/internal/orchestrator"
	"github.com/ideagent/backend/internal/runstore"
	"github.com/ideagent/backend/internal/sandbox"
	"github.com/ideagent/backend/internal/telemetry"
	"github.com/ideagent/backend/internal/token"
	"github.com/ideagent/backend/internal/tools"
)

func main() {
	var (
		dbgF = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	cfg := config.FromEnv()
	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewNoopMetrics()

	signer := token.NewSigner(cfg.TokenSecret, cfg.TokenTTL)

	store, err := buildRunStore(ctx, cfg)
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("run store: %w", err))
	}

	modelClient, err := model.NewOpenAIClient(cfg.ModelGatewayBaseURL, cfg.ModelGatewayAPIKey, cfg.ModelGatewayDefault)
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("model gateway client: %w", err))
	}

	sandboxMgr := sandbox.NewManager(sandbox.UnconfiguredPlatform{}, logger, metrics)

	registry, err := tools.BuildDefault(logger, sandboxMgr)
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("tool registry: %w", err))
	}

	orch := orchestrator.New(modelClient, registry, signer, logger)

	srv := httpapi.New(cfg, signer, store, modelClient, sandboxMgr, registry, orch, logger, metrics)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE responses are long-lived.
	}

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		log.Print(ctx, log.KV{K: "http-addr", V: cfg.HTTPAddr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "graceful shutdown failed"})
	}
	log.Print(ctx, log.KV{K: "msg", V: "exited"})
}

// buildRunStore picks the Run Store backend in order of operator intent:
// Mongo (queryable run history) if RUN_STORE_MONGO_URI is set, else Redis
// (shared cache) if REDIS_ADDR is set, else the in-memory default.
func buildRunStore(ctx context.Context, cfg config.Config) (runstore.Store, error) {
	switch {
	case cfg.RunStoreMongoURI != "":
		client, err := mongodriver.Connect(ctx, options.Client().ApplyURI(cfg.RunStoreMongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		store, err := runstore.NewMongoStore(ctx, client, cfg.RunStoreMongoDatabase, "")
		if err != nil {
			return nil, err
		}
		log.Print(ctx, log.KV{K: "run-store", V: "mongo"}, log.KV{K: "database", V: cfg.RunStoreMongoDatabase})
		return store, nil
	case cfg.RedisAddr != "":
		log.Print(ctx, log.KV{K: "run-store", V: "redis"}, log.KV{K: "addr", V: cfg.RedisAddr})
		return runstore.NewRedisStore(cfg.RedisAddr), nil
	default:
		log.Print(ctx, log.KV{K: "run-store", V: "memory"})
		return runstore.NewMemoryStore(), nil
	}
}
