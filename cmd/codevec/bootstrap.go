package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/embedhq/codevec/internal/config"
	"github.com/embedhq/codevec/internal/domain"
	logpkg "github.com/embedhq/codevec/internal/logger"
	"github.com/embedhq/codevec/internal/metrics"
	"github.com/embedhq/codevec/internal/transport/qdrant"
	"github.com/embedhq/codevec/internal/usecase/vectorstore"
)

// bootstrapCmd creates the collection and its payload indexes, then exits.
// serve ensures the collection on startup anyway; this command exists for
// provisioning pipelines that prepare the store before rolling out pods.
var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the vector collection and its payload indexes",
	Run:   runBootstrap,
}

func runBootstrap(_ *cobra.Command, _ []string) {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	metrics.RegisterVectorStoreMetrics()

	store, err := qdrant.NewClient(&qdrant.Config{
		URL:     cfg.VectorStore.URL,
		APIKey:  cfg.VectorStore.APIKey,
		Timeout: time.Duration(cfg.VectorStore.TimeoutSec) * time.Second,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("Failed to create vector store client", zap.Error(err))
	}

	manager, err := vectorstore.New(store, domain.CodeSegmentSchema(), logger)
	if err != nil {
		logger.Fatal("Invalid collection schema", zap.Error(err))
	}

	if err := manager.EnsureCollection(context.Background()); err != nil {
		logger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	logger.Info("Collection ready", zap.String("collection", manager.Schema().Name))
}
