package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/opendata-map/internal/core/config"
	"github.com/mohammed-shakir/opendata-map/internal/core/router"
	"github.com/mohammed-shakir/opendata-map/internal/core/server"
	"github.com/mohammed-shakir/opendata-map/internal/metrics"
	"github.com/mohammed-shakir/opendata-map/internal/refresh"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the map API",
		Long: `Serves the layer API, health probes and Prometheus metrics.

Datasets listed in preload are loaded in the background at start; /readyz
reports ready once all of them loaded. With refresh_enabled the server also
consumes dataset refresh events from Kafka.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), a)
		},
	}
}

func runServe(ctx context.Context, a *app) error {
	cfg, log := a.cfg, a.logger
	if err := cfg.Require(config.PathFetch); err != nil {
		return err
	}

	prov, err := metrics.New(metrics.BuildInfo{Version: metrics.Version, Revision: revision, BuildDate: buildDate})
	if err != nil {
		return err
	}

	store, closeStore, err := a.newStore(ctx, true)
	if err != nil {
		return err
	}
	defer closeStore()

	deps := router.Deps{Layers: store, Metrics: prov.Handler()}
	if err := cfg.Require(config.PathRecommend); err != nil {
		log.Warn("recommendations disabled", "err", err)
	} else {
		req, err := a.newRequester(ctx)
		if err != nil {
			return err
		}
		deps.Recommender = req
	}
	if err := cfg.Require(config.PathMap); err != nil {
		log.Warn("map settings unavailable", "err", err)
	}

	log.Info("starting opendata-map",
		"addr", cfg.Addr,
		"version", metrics.Version,
		"datasets", store.Catalog().Names(),
		"preload", cfg.Preload,
		"cache", cfg.CacheEnabled,
		"refresh", cfg.RefreshEnabled)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg.Addr, log, router.New(log, cfg, deps))
	})
	g.Go(func() error {
		err := store.Preload(gctx, cfg.Preload, cfg.PreloadParallel)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if cfg.RefreshEnabled {
		consumer := refresh.New(refresh.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, log, store)
		g.Go(func() error { return consumer.Start(gctx) })
	}

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "err", err)
		return err
	}
	log.Info("server stopped")
	return nil
}
