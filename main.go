package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/john/livewatch/internal/api"
	"github.com/john/livewatch/internal/config"
	"github.com/john/livewatch/internal/discovery"
	"github.com/john/livewatch/internal/engine"
	"github.com/john/livewatch/internal/kick"
	"github.com/john/livewatch/internal/live"
	"github.com/john/livewatch/internal/recorder"
	"github.com/john/livewatch/internal/snapshot"
	"github.com/john/livewatch/internal/tracked"
	"github.com/john/livewatch/internal/transport"
	"github.com/john/livewatch/internal/twitch"
	"github.com/john/livewatch/internal/uploader"
)

func main() {
	// Get config path from environment variable or use default
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)
	slog.Info("livewatch starting", slog.String("config", configPath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	httpClient, err := transport.New(transport.Options{
		Mode:       transport.Mode(cfg.Transport.Mode),
		Timeout:    cfg.Transport.Timeout,
		MaxRetries: cfg.Transport.MaxRetries,
	})
	if err != nil {
		slog.Error("failed to create http client", slog.Any("error", err))
		os.Exit(1)
	}

	twitchClient := twitch.New(httpClient, cfg.Twitch.GQLURL, cfg.Twitch.ClientID)
	kickClient := kick.New(httpClient, kick.Options{
		APIBaseURL:        cfg.Kick.APIBaseURL,
		FeaturedURL:       cfg.Kick.FeaturedURL,
		RequestsPerSecond: cfg.Kick.RequestsPerSecond,
	})

	favorites := tracked.NewFavorites()
	favorites.Replace(cfg.Favorites())
	recents := tracked.NewRecents()
	recents.Replace(cfg.Recents())
	union := tracked.NewUnion(favorites, recents)
	slog.Info("tracked channels loaded",
		slog.Int("favorites", favorites.Len()),
		slog.Int("recents", recents.Len()),
	)

	eng := engine.New(engine.Deps{
		Source:   union,
		Notifier: union,
		Adapters: []live.StatusAdapter{twitchClient, kickClient},
		Top:      twitchClient,
		Featured: kickClient,
	}, engine.Options{
		PollInterval:       cfg.Poll.Interval,
		SuggestionInterval: cfg.Discovery.Interval,
		Language:           cfg.Language,
		Discovery: discovery.Config{
			Limit:              cfg.Discovery.Limit,
			FeaturedPages:      cfg.Discovery.FeaturedPages,
			MinLanguageMatches: cfg.Discovery.MinLanguageMatches,
			TopPageSize:        cfg.Discovery.TopPageSize,
		},
	})
	defer eng.Close()

	// Warm start: last known suggestions are served until the first refresh lands
	store := snapshot.New(ctx, cfg.Redis.URL, cfg.Redis.TTL)
	defer store.Close()
	if list, ok := store.LoadSuggestions(ctx); ok {
		eng.SeedSuggestions(list)
		slog.Info("restored suggestions from snapshot", slog.Int("count", len(list)))
	}
	eng.Subscribe(store.Record(ctx))

	server := api.New(cfg.Server.Addr, eng, map[string]*tracked.List{
		"favorites": favorites,
		"recents":   recents,
	})
	eng.Subscribe(func(ev engine.Event) { server.Hub().Broadcast(ev) })

	var wg sync.WaitGroup

	if cfg.Recorder.Enabled {
		transitions := make(chan live.Transition, cfg.Recorder.BufferSize)
		fileChan := make(chan string, 100)

		rec := recorder.New(
			cfg.Recorder.OutputDir,
			cfg.Recorder.BufferSize,
			cfg.Recorder.RotateMinutes,
			cfg.Recorder.RotateMegabytes,
		)
		eng.Subscribe(recorder.Feed(transitions))

		var files chan<- string
		if cfg.UploadEnabled() {
			up, err := uploader.New(ctx, uploader.Options{
				Bucket:          cfg.S3.Bucket,
				Region:          cfg.S3.Region,
				Prefix:          cfg.S3.Prefix,
				Endpoint:        cfg.S3.Endpoint,
				RoleARN:         cfg.S3.RoleARN,
				AccessKeyID:     cfg.S3.AccessKeyID,
				SecretAccessKey: cfg.S3.SecretAccessKey,
				DeleteAfter:     cfg.Uploader.DeleteAfterUpload,
				MaxRetries:      cfg.Uploader.MaxRetries,
			})
			if err != nil {
				slog.Error("failed to create uploader", slog.Any("error", err))
				os.Exit(1)
			}

			if err := up.ScanAndUploadExisting(ctx, cfg.Recorder.OutputDir); err != nil && !errors.Is(err, os.ErrNotExist) {
				slog.Warn("failed to scan for existing files", slog.Any("error", err))
			}

			files = fileChan
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := up.Start(ctx, fileChan); err != nil && !errors.Is(err, context.Canceled) {
					slog.Error("uploader error", slog.Any("error", err))
				}
			}()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rec.Start(ctx, transitions, files); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("recorder error", slog.Any("error", err))
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			slog.Error("api server error", slog.Any("error", err))
			select {
			case sigChan <- syscall.SIGTERM:
			default:
			}
		}
	}()

	eng.Start()
	slog.Info("all components started")

	<-sigChan
	slog.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	eng.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("error shutting down api server", slog.Any("error", err))
	}

	// Cancel main context to stop the recorder and uploader
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("all components stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("shutdown timeout exceeded, forcing exit")
	}
	slog.Info("livewatch stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
