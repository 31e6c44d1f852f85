// Command engine runs the proactive SRE agent: it loads the engine configuration document,
// wires the WatchLoop, MCP Manager, RuleEngine/Executor, ApprovalManager, and Alertmanager
// ingress together, and blocks until SIGINT/SIGTERM. Grounded on chatcli's main.go
// (godotenv -> logger -> component construction -> start, in that order) and
// server/server.go's SIGINT/SIGTERM-driven graceful shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sreops/aiops-engine/config"
	"github.com/sreops/aiops-engine/engine"
	"github.com/sreops/aiops-engine/metrics"
	"github.com/sreops/aiops-engine/utils"
	"github.com/sreops/aiops-engine/version"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("no .env file found, continuing without one")
	}

	logger, err := utils.InitializeLogger()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	configPath, _ := utils.GetEnv("ENGINE_CONFIG", "engine.yaml", logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load engine configuration", zap.String("path", configPath), zap.Error(err))
	}

	buildInfo := version.Current()
	logger.Info("starting aiops engine",
		zap.String("version", buildInfo.Version),
		zap.String("commit", buildInfo.CommitHash),
		zap.String("build_date", buildInfo.BuildDate),
	)

	eng, err := engine.New(cfg, buildInfo.Version, logger)
	if err != nil {
		logger.Fatal("failed to build engine", zap.Error(err))
	}

	metricsPortStr, _ := utils.GetEnv("METRICS_PORT", "9090", logger)
	metricsPort := 9090
	fmt.Sscanf(metricsPortStr, "%d", &metricsPort)
	metricsServer := metrics.NewServer(metricsPort, logger)
	metricsServer.Start()

	ctx, cancel := context.WithCancel(context.Background())

	if err := eng.Start(ctx); err != nil {
		logger.Fatal("failed to start engine", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()
	eng.Stop()
	metricsServer.Stop()

	logger.Info("aiops engine stopped")
}
