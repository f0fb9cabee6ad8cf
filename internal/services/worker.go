package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/clubstack/memberhub/internal/config"
	"github.com/clubstack/memberhub/pkg/logger"
	"github.com/hibiken/asynq"
)

// Worker consumes queued notification tasks from Redis and hands them to the
// email service. It runs only when the queue is enabled; otherwise
// notifications are sent inline.
type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	email   *EmailService
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewWorker creates a worker bound to the Redis queue, or nil when the queue
// is disabled.
func NewWorker(cfg *config.RedisConfig, email *EmailService) *Worker {
	if !cfg.Enabled {
		return nil
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		},
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Warn().Err(err).Str("task", task.Type()).Msg("task processing failed")
			}),
		},
	)

	return &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		email:  email,
	}
}

// Start begins processing tasks in the background.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.mux.HandleFunc(TaskTypeStatusEmail, w.handleStatusEmail)

	w.running = true
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		logger.Info().Msg("notification worker starting")
		if err := w.server.Run(w.mux); err != nil {
			logger.Error().Err(err).Msg("notification worker stopped")
		}
	}()

	return nil
}

// Stop gracefully shuts down the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	logger.Info().Msg("notification worker shutting down")
	w.server.Shutdown()
	w.running = false
	w.wg.Wait()
}

func (w *Worker) handleStatusEmail(ctx context.Context, t *asynq.Task) error {
	var n StatusNotification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		logger.Warn().Err(err).Msg("malformed status email task")
		return err
	}
	return w.email.SendStatusEmail(&n)
}
