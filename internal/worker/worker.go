package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vagrigoreva/moderation-be/internal/moderation/domain"
	"github.com/vagrigoreva/moderation-be/shared/rabbitmq"
)

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	RabbitClient  *rabbitmq.Client
	Processor     *Processor
	TaskQueue     string
	Concurrency   int
	PrefetchCount int
	TaskTimeout   time.Duration
}

// Worker consumes moderation tasks and drives them through the processor
type Worker struct {
	logger        *slog.Logger
	rabbitClient  *rabbitmq.Client
	processor     *Processor
	taskQueue     string
	concurrency   int
	prefetchCount int
	taskTimeout   time.Duration
	workerID      string
	tasksChan     chan *taskDelivery
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// taskDelivery pairs a decoded task with its bus acknowledgment handle
type taskDelivery struct {
	msg         domain.TaskMessage
	deliveryTag uint64
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:        cfg.Logger,
		rabbitClient:  cfg.RabbitClient,
		processor:     cfg.Processor,
		taskQueue:     cfg.TaskQueue,
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
		taskTimeout:   cfg.TaskTimeout,
		workerID:      fmt.Sprintf("moderation-worker-%s", uuid.New().String()[:8]),
		tasksChan:     make(chan *taskDelivery),
		stopChan:      make(chan struct{}),
	}
}

// Start begins consuming and processing tasks until ctx is canceled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("task_timeout", w.taskTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker, draining in-flight tasks
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...",
		slog.String("worker_id", w.workerID),
	)
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine. Each
// task is handled end-to-end before the next one is fetched, and the
// delivery is only acked once the processor has persisted or routed it.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case delivery, ok := <-w.tasksChan:
			if !ok {
				w.logger.Info("Worker goroutine stopping - tasksChan closed",
					slog.String("worker_name", workerName),
				)
				return
			}

			w.handleDelivery(ctx, workerName, delivery)
		}
	}
}

func (w *Worker) handleDelivery(ctx context.Context, workerName string, delivery *taskDelivery) {
	w.logger.Info("Worker received task",
		slog.String("worker_name", workerName),
		slog.Int64("task_id", delivery.msg.TaskID),
		slog.Int64("item_id", delivery.msg.ItemID),
		slog.Int("retry_count", delivery.msg.RetryCount),
	)

	taskCtx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	err := w.processor.Process(taskCtx, delivery.msg)
	cancel()

	channel := w.rabbitClient.GetChannel()
	if channel == nil {
		w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
			slog.String("worker_name", workerName),
			slog.Int64("task_id", delivery.msg.TaskID),
		)
		return
	}

	if err != nil {
		// The processor only errors when it could not route the failure;
		// requeue so the bus redelivers and the idempotent short-circuit
		// sorts out any partial progress.
		w.logger.Error("Task routing failed, requeueing delivery",
			slog.String("worker_name", workerName),
			slog.Int64("task_id", delivery.msg.TaskID),
			slog.String("error", err.Error()),
		)

		if nackErr := channel.Nack(delivery.deliveryTag, false, true); nackErr != nil {
			w.logger.Error("Failed to NACK message",
				slog.String("worker_name", workerName),
				slog.Int64("task_id", delivery.msg.TaskID),
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	if ackErr := channel.Ack(delivery.deliveryTag, false); ackErr != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("worker_name", workerName),
			slog.Int64("task_id", delivery.msg.TaskID),
			slog.String("error", ackErr.Error()),
		)
	}
}
