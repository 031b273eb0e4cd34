package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audio-delivery/internal/cache"
	"audio-delivery/internal/delivery"
	"audio-delivery/internal/limiter"
	"audio-delivery/internal/platform/config"
	"audio-delivery/internal/platform/logger"
	"audio-delivery/internal/platform/metrics"
	"audio-delivery/internal/platform/ratelimit"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const readHeaderTimeout = 10 * time.Second

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat, logger.Output(cfg.LogFile))
	met := metrics.New()

	library := afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), cfg.LibraryRoot))
	lim := limiter.New(limiter.Config{
		GlobalMax:  cfg.GlobalMaxConcurrentStreams,
		PerUserMax: cfg.PerUserMaxConcurrentStreams,
	})
	etags := cache.NewETagCache(cache.Options{
		MaxEntries: cfg.ETagCacheMaxEntries,
		MaxAge:     cfg.ETagCacheEntryMaxAge,
		OnEvict: func(reason cache.EvictReason, n int) {
			met.AddCacheEvictions("etag", string(reason), n)
		},
	})
	nowPlaying := cache.NewNowPlayingCache(cache.Options{
		MaxEntries: cfg.NowPlayingMaxEntries,
		MaxAge:     cfg.NowPlayingEntryMaxAge,
		OnEvict: func(reason cache.EvictReason, n int) {
			met.AddCacheEvictions("now_playing", string(reason), n)
		},
	})

	svc := delivery.NewService(
		delivery.NewDirCatalog(library),
		delivery.NewStreamer(library, cfg.BufferSize),
		lim, etags, log, met,
	)
	h := delivery.NewHandler(svc, nowPlaying, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			met.SetActiveStreams(lim.Active())
			met.SetCacheEntries("etag", etags.Len())
			met.SetCacheEntries("now_playing", nowPlaying.Len())
		}).ServeHTTP(w, r)
	})
	h.Register(r, ratelimit.Config{
		RequestLimit: cfg.ScrobbleRateLimit,
		Window:       time.Minute,
		KeyFunc: func(r *http.Request) (string, error) {
			return delivery.UserKey(r), nil
		},
	})

	// No WriteTimeout: a stream lasts as long as the track.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server starting",
			"port", cfg.Port,
			"library_root", cfg.LibraryRoot,
			"buffer_size", cfg.BufferSize,
			"global_max_streams", cfg.GlobalMaxConcurrentStreams,
			"per_user_max_streams", cfg.PerUserMaxConcurrentStreams,
			"log_level", cfg.LogLevel,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		etags.Run(ctx, cfg.CacheSweepInterval)
		return nil
	})
	g.Go(func() error {
		nowPlaying.Run(ctx, cfg.CacheSweepInterval)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutdown signal received, draining connections")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
