package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"openlearn/api/internal/app"
	"openlearn/api/internal/blobrepo"
	"openlearn/api/internal/catalog"
	"openlearn/api/internal/config"
	"openlearn/api/internal/docstore"
	"openlearn/api/internal/export"
	"openlearn/api/internal/matcher"
	"openlearn/api/internal/media"
	"openlearn/api/internal/search"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	if err := os.MkdirAll(cfg.RepoDir, 0o755); err != nil {
		log.Fatalf("failed to create repo dir: %v", err)
	}

	repo, err := blobrepo.New(blobrepo.Config{
		Dir:    cfg.RepoDir,
		Owner:  cfg.RepoOwner,
		Name:   cfg.RepoName,
		Branch: cfg.RepoBranch,
		Author: cfg.AuthorName,
	})
	if err != nil {
		log.Fatalf("content repository init failed: %v", err)
	}
	store := docstore.New(repo)

	var cache *catalog.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		cache, err = catalog.NewCache(cfg.RedisURL, time.Duration(cfg.CacheTTLSeconds)*time.Second)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer cache.Close()
		log.Printf("Using Redis for catalog snapshot cache")
	}
	catalogService := catalog.NewService(store, cache)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewMemory(catalogService))

	var mediaService *media.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		mediaService, err = media.New(ctx, media.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("media storage init failed: %v", err)
		}
	}

	service := app.NewService(store, catalogService, matcher.New(), searchService, export.NewService(), mediaService)
	service.Bootstrap(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("OpenLearn API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
