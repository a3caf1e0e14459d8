package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/go-meetup/internal/api"
	"github.com/npezzotti/go-meetup/internal/cache"
	"github.com/npezzotti/go-meetup/internal/config"
	"github.com/npezzotti/go-meetup/internal/database"
	"github.com/npezzotti/go-meetup/internal/meetup"
	"github.com/npezzotti/go-meetup/internal/oauth"
	"github.com/npezzotti/go-meetup/internal/scheduler"
	"github.com/npezzotti/go-meetup/internal/server"
	"github.com/npezzotti/go-meetup/internal/stats"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

const (
	shutdownTimeout   = 10 * time.Second
	workerConcurrency = 4
)

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.LogJSON {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger.Level(level).With().Timestamp().Str("service", "go-meetup").Logger()
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config")
	}

	logger := newLogger(cfg)

	dbConn, err := database.NewPgMeetupRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("db open")
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error().Err(err).Msg("db close")
		}
	}()

	if cfg.MigrateOnStart {
		if err := database.Migrate(dbConn.DB()); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
		logger.Info().Msg("database migrations applied")
	}

	opts := []meetup.Option{
		meetup.WithLocation(cfg.Location),
		meetup.WithAssetBaseURL(cfg.AssetBaseURL),
	}

	var (
		sched  *scheduler.Client
		worker *scheduler.Worker
		rc     cache.Cache = cache.Nop{}
	)
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		rc = redisCache

		sched, err = scheduler.NewClient(cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler client")
		}
		opts = append(opts, meetup.WithCache(rc), meetup.WithScheduler(sched))
	} else {
		logger.Warn().Msg("no redis url configured, rooms are only finalized on access")
	}
	defer func() {
		if err := rc.Close(); err != nil {
			logger.Error().Err(err).Msg("cache close")
		}
	}()

	svc := meetup.NewService(dbConn, logger, opts...)

	if cfg.RedisURL != "" {
		worker, err = scheduler.NewWorker(cfg.RedisURL, svc, logger, workerConcurrency)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler worker")
		}
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, svc, statsUpdater)
	if err != nil {
		logger.Fatal().Err(err).Msg("new chat server")
	}
	svc.SetNotifier(chatServer)

	var provider oauth.Provider
	kakao, err := oauth.NewKakao(cfg.OAuth)
	if err != nil {
		logger.Warn().Err(err).Msg("kakao login disabled")
	} else {
		provider = kakao
	}

	srv := api.NewMeetupApp(mux, logger, chatServer, svc, provider, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg conc.WaitGroup
	if worker != nil {
		wg.Go(func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("scheduler worker")
			}
		})
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("received signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server")
		}
	}

	shutDownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown")
	}

	logger.Info().Msg("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("chat server shutdown")
	}

	cancel()
	wg.Wait()

	if sched != nil {
		if err := sched.Close(); err != nil {
			logger.Error().Err(err).Msg("scheduler close")
		}
	}

	logger.Info().Msg("shutdown complete")
}
