package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blockrank/blockrank/internal/api"
	"github.com/blockrank/blockrank/internal/client"
	"github.com/blockrank/blockrank/internal/common"
	"github.com/blockrank/blockrank/internal/config"
	"github.com/blockrank/blockrank/internal/db"
	"github.com/blockrank/blockrank/internal/indexer"
	"github.com/blockrank/blockrank/internal/logger"
	"github.com/blockrank/blockrank/internal/metrics"
	"github.com/blockrank/blockrank/internal/ranking"
	"github.com/blockrank/blockrank/internal/rpc"
	"github.com/blockrank/blockrank/internal/store"
	"github.com/blockrank/blockrank/internal/store/migrations"
)

const version = "1.0.0"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "blockrank",
	Short: "BlockRank - savings-circle chain indexer and ranking service",
	Long: `BlockRank indexes the on-chain events of the savings-circle registry and
its block contracts into a queryable store, maintains day-bucketed ranking
snapshots, and serves blocks, users, transactions and trend-annotated
rankings over a REST API.`,
	Version: version,
	RunE:    runIndexer,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the client-side ranking watcher",
	Long: `Watch the chain for new registry activity and keep a local,
trend-annotated view of the rankings via the query API. Useful for driving a
presentation layer without running the indexer itself.`,
	RunE: runWatcher,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		schema := jsonschema.Reflect(&config.Config{})
		encoded, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode schema: %w", err)
		}
		fmt.Println(string(encoded))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(schemaCmd)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	return ctx, cancel
}

func runIndexer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	log := logger.NewComponentLoggerFromConfig(common.ComponentPipeline, cfg.Logging)

	log.Info("Connecting to Ethereum node...")
	ethClient, err := rpc.NewClient(ctx, cfg.Chain.RPCURL, cfg.Chain.Retry)
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	defer ethClient.Close()
	log.Infof("Connected to Ethereum node: %s", cfg.Chain.RPCURL)

	var metricsServer *metrics.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(ctx); err != nil {
				log.Warnf("Failed to stop metrics server: %v", err)
			}
		}()
		log.Infof("Metrics server started on %s%s", cfg.Metrics.ListenAddress, cfg.Metrics.Path)
	}

	log.Info("Running database migrations...")
	database, err := db.NewSQLiteDBFromConfig(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer database.Close()

	if err := migrations.RunMigrationsDB(logger.NewComponentLoggerFromConfig(common.ComponentStore, cfg.Logging), database); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	entityStore := store.NewStore(database, logger.NewComponentLoggerFromConfig(common.ComponentStore, cfg.Logging))
	engine := ranking.NewEngine(entityStore, logger.NewComponentLoggerFromConfig(common.ComponentRanking, cfg.Logging))

	registryAddr := ethcommon.HexToAddress(cfg.Chain.RegistryAddress)
	sources := indexer.NewSourceRegistry(registryAddr, logger.NewComponentLoggerFromConfig(common.ComponentRegistrar, cfg.Logging))
	if err := sources.Load(ctx, entityStore); err != nil {
		return fmt.Errorf("failed to restore watched sources: %w", err)
	}

	materializer := indexer.NewMaterializer(entityStore, engine, sources, log)
	pipeline := indexer.NewPipeline(ethClient, entityStore, sources, materializer, &cfg.Chain, log)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return pipeline.Run(groupCtx)
	})

	if cfg.API != nil && cfg.API.Enabled {
		apiServer := api.NewServer(cfg.API, entityStore, engine, sources, ethClient,
			logger.NewComponentLoggerFromConfig(common.ComponentAPI, cfg.Logging))
		group.Go(func() error {
			return apiServer.Start(groupCtx)
		})
	}

	log.Info("Starting BlockRank...")

	if err := group.Wait(); err != nil {
		return fmt.Errorf("indexer failed: %w", err)
	}

	log.Info("BlockRank stopped successfully")
	return nil
}

func runWatcher(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Client == nil {
		return fmt.Errorf("client configuration is required for watch mode")
	}

	ctx, cancel := signalContext()
	defer cancel()

	log := logger.NewComponentLoggerFromConfig(common.ComponentPoller, cfg.Logging)

	ethClient, err := rpc.NewClient(ctx, cfg.Chain.RPCURL, cfg.Chain.Retry)
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	defer ethClient.Close()

	guard := client.NewCooldownGuard(cfg.Client.CooldownBase.Duration, cfg.Client.CooldownMax.Duration)
	queries := client.NewQueryClient(cfg.Client, guard, log)
	positions := client.NewPositionCache(cfg.Client.PositionCachePath, log)
	rankings := client.NewTTLCache[int, []string](cfg.Client.CacheTTL.Duration)

	// refreshLevel pulls the ranking of one level and folds it into the
	// local position cache. Rankings are cached with a TTL and the last
	// known value is served when the query API is unavailable.
	refreshLevel := func(ctx context.Context, levelID int) error {
		ids, stale, err := rankings.GetOrFetch(levelID, func() ([]string, error) {
			response, err := queries.Ranking(ctx, levelID)
			if err != nil {
				return nil, err
			}

			ids := make([]string, len(response.Entries))
			for i, entry := range response.Entries {
				ids[i] = entry.Block.ID
			}
			return ids, nil
		})
		if err != nil {
			return err
		}
		if stale {
			log.Warnf("Serving stale ranking for level %d", levelID)
			return nil
		}

		movements, err := positions.Update(levelID, ids)
		if err != nil {
			return err
		}

		for blockID, movement := range movements {
			entry, _ := positions.Get(levelID, blockID)
			log.Infof("Level %d: %s at #%d trend=%s diff=%d",
				levelID, blockID, entry.Position, movement.Trend, movement.Diff)
		}

		return nil
	}

	refreshAll := func(ctx context.Context) error {
		health, err := queries.Health(ctx)
		if err != nil {
			return err
		}
		log.Debugf("Indexer at block %d, lag %d", health.LastIndexedBlock, health.IndexingLag)

		for _, levelID := range cfg.Client.WatchLevels {
			// Expire rather than drop: if the forced refetch fails, the last
			// known ranking is still served stale.
			rankings.Expire(levelID)
			if err := refreshLevel(ctx, levelID); err != nil {
				return err
			}
		}

		return nil
	}

	registryAddr := ethcommon.HexToAddress(cfg.Chain.RegistryAddress)
	poller := client.NewPoller(ethClient, registryAddr, cfg.Client, func() {
		if err := refreshAll(ctx); err != nil {
			log.Warnf("Refresh after chain activity failed: %v", err)
		}
	}, log)

	refresher := client.NewAutoRefresher(cfg.Client.PollInterval.Duration,
		cfg.Client.BackoffMax.Duration, refreshAll, log)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return poller.Run(groupCtx) })
	group.Go(func() error { return refresher.Run(groupCtx) })

	log.Info("Watching rankings...")

	return group.Wait()
}
