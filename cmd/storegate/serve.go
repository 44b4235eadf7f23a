package main

import (
	"os/signal"
	"syscall"

	"storegate/internal/config"
	"storegate/internal/infra/db"
	httpinfra "storegate/internal/infra/http"
	"storegate/internal/log"
	"storegate/internal/usecase"
	"storegate/internal/watch"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket server, the watch fan-out, and the expiry sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			store, err := db.NewStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return err
			}

			listenerConn, err := db.NewListenerConn(ctx, cfg.DSN())
			if err != nil {
				return err
			}
			defer listenerConn.Close(ctx)

			sweeperPool, err := db.NewSweeperPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer sweeperPool.Close()

			kvBuckets := db.NewKVBucketRepo(store)
			kvEntries := db.NewKVEntryRepo(store)
			objBuckets := db.NewObjBucketRepo(store)
			objMetadata := db.NewObjMetadataRepo(store)
			chunks := db.NewChunkRepo(store.Pool)
			audit := db.NewAuditRepo(store.Pool)

			kvEngine := usecase.NewKVEngine(kvBuckets, kvEntries, audit)
			objectPipeline := usecase.NewObjectPipeline(objBuckets, objMetadata, chunks, audit)
			sweeper := usecase.NewExpirySweeper(kvEntries, sweeperPool, cfg.CleanupInterval)

			registry := watch.NewRegistry(cfg.WatchQueueSize)
			objRegistry := watch.NewObjRegistry(cfg.WatchQueueSize)
			fanout := watch.NewFanout(listenerConn, registry, objRegistry, cfg.WatchWorkerCount)

			server := httpinfra.NewServer(cfg, kvEngine, objectPipeline, registry, objRegistry)

			group, ctx := errgroup.WithContext(ctx)
			group.Go(func() error { return server.Run(ctx) })
			group.Go(func() error { return fanout.Run(ctx) })
			group.Go(func() error { sweeper.Run(ctx); return nil })

			log.Info().Str("addr", cfg.HTTPAddr).Msg("storegate listening")
			return group.Wait()
		},
	}
}
