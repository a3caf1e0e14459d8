package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/npezzotti/go-meetup/internal/meetup"
	"github.com/rs/zerolog"
)

// Finalizer ends a room whose cutoff has passed.
type Finalizer interface {
	CheckAndAutoEnd(ctx context.Context, roomId string) (bool, error)
}

// Worker consumes scheduled finalize tasks.
type Worker struct {
	srv *asynq.Server
	mux *asynq.ServeMux
	log zerolog.Logger
}

func NewWorker(redisURL string, f Finalizer, logger zerolog.Logger, concurrency int) (*Worker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 2
	}

	log := logger.With().Str("component", "scheduler").Logger()
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Logger:      asynqLogger{log: log},
		LogLevel:    asynq.WarnLevel,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error().Err(err).Str("type", task.Type()).Msg("task failed")
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeRoomFinalize, finalizeHandler(f, log))

	return &Worker{srv: srv, mux: mux, log: log}, nil
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.srv.Start(w.mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	w.log.Info().Msg("scheduler worker started")

	<-ctx.Done()
	w.srv.Shutdown()
	w.log.Info().Msg("scheduler worker stopped")
	return nil
}

func finalizeHandler(f Finalizer, log zerolog.Logger) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		roomId, err := parseFinalizePayload(t)
		if err != nil {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}

		ended, err := f.CheckAndAutoEnd(ctx, roomId)
		if err != nil {
			// deleted rooms have nothing left to finalize
			if errors.Is(err, meetup.ErrRoomNotFound) {
				log.Debug().Str("room_id", roomId).Msg("skipping finalize for missing room")
				return nil
			}
			return fmt.Errorf("finalize room %s: %w", roomId, err)
		}

		if !ended {
			// The cutoff moved or the clock is behind. Lazy checks cover it.
			log.Warn().Str("room_id", roomId).Msg("finalize task ran before the room ended")
		}
		return nil
	}
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
