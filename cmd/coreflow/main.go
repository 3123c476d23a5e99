// Command coreflow runs the runtime's single process: event store, workpool,
// projection engine, replay controller, agent bounded context, and the
// admin-only HTTP surface, all sharing one Postgres pool.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coreflow/runtime/internal/store"
	"github.com/coreflow/runtime/pkg/adminapi"
	"github.com/coreflow/runtime/pkg/agentbc"
	"github.com/coreflow/runtime/pkg/eventstore"
	"github.com/coreflow/runtime/pkg/observability"
	"github.com/coreflow/runtime/pkg/orchestrator"
	"github.com/coreflow/runtime/pkg/projection"
	"github.com/coreflow/runtime/pkg/replay"
	"github.com/coreflow/runtime/pkg/runtimeconfig"
	"github.com/coreflow/runtime/pkg/version"
	"github.com/coreflow/runtime/pkg/workpool"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"path to the directory containing coreflow.yaml")
	podID := flag.String("pod-id", getEnv("POD_ID", "local"),
		"identifier this process reports as the workpool lease holder")
	flag.Parse()

	log := slog.Default()
	log.Info("starting coreflow", "version", version.Full(), "config_dir", *configDir, "pod_id", *podID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := runtimeconfig.Load(ctx, *configDir)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := store.Open(ctx, cfg.ToStoreConfig())
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("error closing store", "error", err)
		}
	}()
	log.Info("connected to postgres and applied migrations")

	var leaser workpool.PartitionLeaser
	if cfg.Workpool.RedisAddr != "" {
		leaser = workpool.NewRedisLeaser(redis.NewClient(&redis.Options{Addr: cfg.Workpool.RedisAddr}), "coreflow")
		log.Info("partition leasing backed by redis", "addr", cfg.Workpool.RedisAddr)
	} else {
		log.Warn("no redis address configured; falling back to in-process partition leasing (single-process correctness only)")
	}

	pool := workpool.New(db, cfg.ToWorkpoolConfig(*podID), leaser, log)

	events := eventstore.New(db, log)

	// orchestrator.New builds the 7-step command pipeline over an empty
	// registry: no domainport.CommandHandler ships with this runtime, so
	// there is nothing to Register here. A deployment wiring a concrete
	// bounded context does so before this point in its own main.
	_ = orchestrator.New(db, events, pool, log)

	registry := projection.NewRegistry()
	engine := projection.New(db, registry, pool, log)
	engine.Wire()

	replayer := replay.New(db, events, registry, pool, log)
	replayer.Wire()

	agents := agentbc.NewManager(db.DB, events, pool, agentbc.NoopExecutor{}, log)
	// Same seam as the orchestrator above: no concrete agent.Subscription
	// is registered here since this runtime ships no concrete agent
	// decision logic, only the pipeline it runs through.
	agents.Wire()

	adminGuard := adminapi.GuardConfig{TestMode: cfg.Admin.TestMode}
	admin := adminapi.New(db, pool, replayer, engine, agents,
		agentbc.NewApprovalStore(db.DB), agentbc.NewDeadLetterStore(db.DB), adminGuard)

	metrics := observability.New()
	observability.Register(admin.Echo(), "/metrics")
	go metrics.PollWorkpool(ctx, pool, 10*time.Second, log)

	sweeper, err := adminapi.NewSweeper(admin, cfg.Admin.ApprovalSweepCron, log)
	if err != nil {
		log.Error("failed to build approval sweeper", "error", err)
		os.Exit(1)
	}
	sweeper.Start()
	defer sweeper.Stop()

	pool.Start(ctx)
	defer pool.Stop()

	log.Info("admin surface listening", "addr", cfg.Admin.ListenAddr)
	if err := admin.Start(ctx, cfg.Admin.ListenAddr); err != nil {
		log.Error("admin server exited with error", "error", err)
		os.Exit(1)
	}

	log.Info("coreflow shut down cleanly")
}
