package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"tileview/internal/models"
	"tileview/internal/objstore"
	"tileview/internal/pool"
	"tileview/internal/queue"
	"tileview/internal/raster"
	"tileview/internal/server"
	"tileview/internal/storage"
	"tileview/internal/token"
	"tileview/internal/worker"
)

const (
	configPath = "config.yaml"

	// workerJoin bounds how long shutdown waits for the ingestion worker to
	// finish its in-flight request.
	workerJoin = 20 * time.Second

	reapInterval = time.Hour
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := models.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(ctx, cfg.DatabaseURL, cfg.ViewpointTable)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to the status store")
	}
	defer store.Close()

	requests := queue.New(cfg.KafkaBroker, cfg.RequestTopic, cfg.ConsumerGroup,
		log.With().Str("component", "queue").Logger())
	defer requests.Close()

	objects, err := objstore.NewS3(cfg.AWSRegion, cfg.AssumeRoleARN)
	if err != nil {
		log.Fatal().Err(err).Msg("configuring object storage access")
	}

	driver := raster.NewImagingDriver()
	pools, err := pool.NewCache(cfg.PoolCacheSize, driver,
		log.With().Str("component", "pool").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("building the decoder pool cache")
	}

	sealer, err := token.NewSealer(cfg.CacheMountPath)
	if err != nil {
		log.Fatal().Err(err).Msg("initializing the pagination token key")
	}

	ttl := time.Duration(cfg.RecordTTLDays) * 24 * time.Hour
	w := worker.New(requests, store, objects, pools, driver, cfg.CacheMountPath, ttl,
		log.With().Str("component", "worker").Logger())
	go w.Run(ctx)

	go reapLoop(ctx, store, log)

	srv := server.NewServer(cfg, store, requests, pools, sealer,
		log.With().Str("component", "server").Logger())
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()
	log.Info().Str("addr", cfg.ServerAddr).Msg("tileview started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("stopping http server")
	}

	cancel()
	select {
	case <-w.Done():
		log.Info().Msg("ingestion worker stopped")
	case <-time.After(workerJoin):
		log.Warn().Msg("ingestion worker did not stop in time, forcing exit")
	}
}

// reapLoop periodically removes status records whose retention window has
// lapsed, matching the table's expire_time contract.
func reapLoop(ctx context.Context, store *storage.Store, log zerolog.Logger) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.DeleteExpired(ctx, time.Now().Unix())
			if err != nil {
				log.Error().Err(err).Msg("reaping expired viewpoint records")
				continue
			}
			if len(removed) > 0 {
				log.Info().Strs("viewpoint_ids", removed).Msg("reaped expired viewpoint records")
			}
		}
	}
}
