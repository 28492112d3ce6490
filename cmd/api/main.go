package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"curator/api/internal/app"
	"curator/api/internal/cache"
	"curator/api/internal/classify"
	"curator/api/internal/config"
	"curator/api/internal/gateway"
	"curator/api/internal/logging"
	"curator/api/internal/search"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	domains, err := config.LoadDomains(cfg.DomainsFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.DomainsFile).Msg("domain definitions invalid")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	upstream := gateway.New(gateway.Options{
		BaseURL:          cfg.UpstreamURL,
		Token:            cfg.UpstreamToken,
		Timeout:          cfg.UpstreamTimeout,
		RatePerSecond:    cfg.UpstreamRPS,
		WriteConcurrency: cfg.UpstreamWriteConcurrency,
		Location:         cfg.Location(),
	})

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewMemory(), log)

	var classifier classify.Classifier
	classifier, err = classify.New(classify.Config{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
		BaseURL:  cfg.LLMBaseURL,
	})
	switch {
	case errors.Is(err, classify.ErrNotConfigured):
		log.Info().Msg("LLM_API_KEY not set, classification disabled")
	case err != nil:
		log.Fatal().Err(err).Msg("classifier setup failed")
	}

	service := app.New(cfg, domains, upstream, searchService, classifier, log, cache.WithContext(ctx))
	defer service.Close()

	warmer := app.NewWarmer(service, cfg.CacheWarmSchedule, cfg.UpstreamTimeout*2, cfg.Location(), log)
	if err := warmer.Start(ctx); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.CacheWarmSchedule).Msg("cache warmer schedule invalid")
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Int("domains", len(domains)).Msg("curator API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	warmer.Stop()
	stop()
}
