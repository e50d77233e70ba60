package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/alejandroruanova/sfumato/internal/pkg/config"
)

// Task types
const (
	TaskTypeAutorun = "session:autorun"
)

// Queue names, by priority
const (
	QueueCritical = "critical"
	QueueHigh     = "high"
	QueueDefault  = "default"
)

// maxRetryDelay caps the exponential backoff between task attempts
const maxRetryDelay = 2 * time.Minute

func redisClientOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:         fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  time.Duration(cfg.DialTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}
}

// RetryDelay is an exponential backoff: 2s, 4s, 8s, ... capped at maxRetryDelay
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < 1 {
		n = 1
	}
	if n > 7 {
		return maxRetryDelay
	}
	d := time.Duration(1<<uint(n)) * time.Second
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// AsynqClient enqueues background session tasks
type AsynqClient struct {
	client     *asynq.Client
	maxRetries int
	logger     *slog.Logger
}

// NewAsynqClient creates a new Asynq client
func NewAsynqClient(cfg *config.QueueConfig, logger *slog.Logger) (*AsynqClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := asynq.NewClient(redisClientOpt(cfg))

	logger.Info("asynq client created",
		slog.String("redis_host", cfg.RedisHost),
		slog.Int("redis_port", cfg.RedisPort),
	)

	return &AsynqClient{
		client:     client,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}, nil
}

// Close closes the Asynq client
func (a *AsynqClient) Close() error {
	a.logger.Info("closing asynq client")
	return a.client.Close()
}

// EnqueueContext adds a task to the queue. The configured retry budget is
// applied unless opts override it.
func (a *AsynqClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	opts = append([]asynq.Option{asynq.MaxRetry(a.maxRetries)}, opts...)

	info, err := a.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		a.logger.Error("failed to enqueue task",
			slog.String("task_type", task.Type()),
			slog.Any("error", err),
		)
		return nil, err
	}

	a.logger.Debug("task enqueued",
		slog.String("task_id", info.ID),
		slog.String("task_type", task.Type()),
		slog.String("queue", info.Queue),
	)

	return info, nil
}

// AsynqServer processes background session tasks
type AsynqServer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewAsynqServer creates a new Asynq server
func NewAsynqServer(cfg *config.QueueConfig, logger *slog.Logger) (*AsynqServer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	server := asynq.NewServer(
		redisClientOpt(cfg),
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				QueueCritical: 6,
				QueueHigh:     3,
				QueueDefault:  1,
			},
			StrictPriority: cfg.StrictPriority,
			RetryDelayFunc: RetryDelay,

			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Error("task processing failed",
					slog.String("task_type", task.Type()),
					slog.Int("retried", retried),
					slog.Int("max_retry", maxRetry),
					slog.Any("error", err),
				)
			}),

			HealthCheckFunc: func(e error) {
				if e != nil {
					logger.Error("health check failed", slog.Any("error", e))
				}
			},
			HealthCheckInterval: 20 * time.Second,

			// Autorun cycles can take minutes; leave them room to finish
			ShutdownTimeout: 2 * time.Minute,
		},
	)

	logger.Info("asynq server created",
		slog.String("redis_host", cfg.RedisHost),
		slog.Int("redis_port", cfg.RedisPort),
		slog.Int("concurrency", cfg.Concurrency),
	)

	return &AsynqServer{
		server: server,
		mux:    asynq.NewServeMux(),
		logger: logger,
	}, nil
}

// HandleFunc registers a handler function for a task type
func (a *AsynqServer) HandleFunc(pattern string, handler func(context.Context, *asynq.Task) error) {
	a.mux.HandleFunc(pattern, handler)
	a.logger.Debug("handler registered", slog.String("pattern", pattern))
}

// Start processes tasks in the background. It returns once the server is running.
func (a *AsynqServer) Start() error {
	a.logger.Info("starting asynq server")
	if err := a.server.Start(a.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (a *AsynqServer) Shutdown() {
	a.logger.Info("shutting down asynq server")
	a.server.Shutdown()
}
