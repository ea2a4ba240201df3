package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammed-shakir/opendata-map/internal/cache"
	"github.com/mohammed-shakir/opendata-map/internal/cache/redisstore"
	"github.com/mohammed-shakir/opendata-map/internal/core/httpclient"
	"github.com/mohammed-shakir/opendata-map/internal/dataset"
	"github.com/mohammed-shakir/opendata-map/internal/layers"
	"github.com/mohammed-shakir/opendata-map/internal/recommend"
	"github.com/mohammed-shakir/opendata-map/internal/socrata"
)

func (a *app) catalog() (*dataset.Catalog, error) {
	if a.cfg.DatasetsFile == "" {
		return dataset.Default(), nil
	}
	return dataset.Load(a.cfg.DatasetsFile)
}

// newStore builds the layer store. With withCache the Redis FeatureCollection
// cache is attached when enabled in config; the returned func closes it.
func (a *app) newStore(ctx context.Context, withCache bool) (*layers.Store, func(), error) {
	cat, err := a.catalog()
	if err != nil {
		return nil, nil, err
	}
	fetcher := socrata.New(a.logger, httpclient.NewOutbound(a.cfg.HTTPTimeout), socrata.Config{
		AppToken:  a.cfg.SocrataAppToken,
		PageSize:  a.cfg.PageSize,
		Retries:   a.cfg.FetchRetries,
		RetryWait: a.cfg.FetchRetryWait,
	})

	closeFn := func() {}
	var fc cache.Interface
	if withCache && a.cfg.CacheEnabled {
		rc, err := redisstore.New(ctx, a.cfg.RedisAddr,
			redisstore.WithDialTimeout(a.cfg.CacheOpTimeout*4),
			redisstore.WithReadTimeout(a.cfg.CacheOpTimeout),
			redisstore.WithWriteTimeout(a.cfg.CacheOpTimeout),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("feature cache: %w", err)
		}
		fc = rc
		closeFn = func() { _ = rc.Close() }
		a.logger.Info("feature cache enabled", "redis", a.cfg.RedisAddr, "ttl", a.cfg.CacheTTL.String())
	}

	st, err := layers.New(a.logger, cat, fetcher, fc, layers.Options{
		Size:           a.cfg.LayerStoreSize,
		CacheTTL:       a.cfg.CacheTTL,
		CacheOpTimeout: a.cfg.CacheOpTimeout,
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return st, closeFn, nil
}

func (a *app) newCompleter(ctx context.Context) (recommend.Completer, error) {
	switch strings.ToLower(a.cfg.LLMProvider) {
	case "gemini":
		g, err := recommend.NewGeminiClient(ctx, a.cfg.LLMAPIKey, a.cfg.Model(), a.cfg.LLMBase())
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return recommend.NewChatClient(a.logger, httpclient.NewOutbound(a.cfg.HTTPTimeout), recommend.ChatConfig{
			Name:    a.cfg.LLMProvider,
			BaseURL: a.cfg.LLMBase(),
			APIKey:  a.cfg.LLMAPIKey,
			Model:   a.cfg.Model(),
		}), nil
	}
}

func (a *app) newRequester(ctx context.Context) (*recommend.Requester, error) {
	c, err := a.newCompleter(ctx)
	if err != nil {
		return nil, err
	}
	return recommend.NewRequester(a.logger, c, recommend.Options{
		Temperature: a.cfg.LLMTemperature,
		MaxTokens:   a.cfg.LLMMaxTokens,
	}), nil
}
