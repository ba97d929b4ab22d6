package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mlquarizm/payment-gateway/internal/core/events"
)

// Job is one outcome event queued for delivery to the host webhook.
type Job struct {
	EventID   string
	EventType string
	Payload   interface{}
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker delivering event", "worker_id", w.ID, "event_id", job.EventID)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type Config struct {
	WebhookURL      string
	DeliveryTimeout time.Duration
	MaxWorkers      int
	JobQueueSize    int
	WorkerPoolSize  int
}

// Notifier forwards payment outcome events to the host application's webhook
// URL through a bounded worker pool. Delivery is best effort: a failed POST is
// logged, not retried, since the host can always read the transaction status
// endpoint.
type Notifier struct {
	webhookURL      string
	deliveryTimeout time.Duration
	httpClient      *http.Client
	logger          *slog.Logger

	jobQueue   chan Job
	workerPool chan chan Job
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func New(config Config, logger *slog.Logger) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}
	workerPoolSize := config.WorkerPoolSize
	if workerPoolSize <= 0 {
		workerPoolSize = maxWorkers
	}
	deliveryTimeout := config.DeliveryTimeout
	if deliveryTimeout <= 0 {
		deliveryTimeout = 10 * time.Second
	}

	n := &Notifier{
		webhookURL:      config.WebhookURL,
		deliveryTimeout: deliveryTimeout,
		httpClient:      &http.Client{Timeout: deliveryTimeout},
		logger:          logger,

		maxWorkers: maxWorkers,
		jobQueue:   make(chan Job, jobQueueSize),
		workerPool: make(chan chan Job, workerPoolSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	n.startWorkerPool()

	return n
}

func (n *Notifier) startWorkerPool() {
	n.once.Do(func() {
		for i := 0; i < n.maxWorkers; i++ {
			worker := NewWorker(i, n.workerPool, n.logger)
			worker.Start(n.ctx, &n.wg, n.deliver)
		}

		n.wg.Add(1)
		go n.dispatch()

		n.logger.Info("outcome notifier worker pool started",
			"max_workers", n.maxWorkers,
			"queue_size", cap(n.jobQueue),
			"webhook_url", n.webhookURL)
	})
}

func (n *Notifier) dispatch() {
	defer n.wg.Done()

	for {
		select {
		case job := <-n.jobQueue:
			select {
			case jobChannel := <-n.workerPool:
				select {
				case jobChannel <- job:
				case <-n.ctx.Done():
					n.logger.Info("dispatcher shutting down")
					return
				}
			case <-n.ctx.Done():
				n.logger.Info("dispatcher shutting down")
				return
			}
		case <-n.ctx.Done():
			n.logger.Info("dispatcher shutting down")
			return
		}
	}
}

// SubscribeTo registers the notifier for the payment outcome events on the
// bus. Events are queued; a full queue drops the event with a warning.
func (n *Notifier) SubscribeTo(bus *events.EventBus) {
	handler := func(ctx context.Context, event events.Event) error {
		return n.Enqueue(event)
	}
	bus.Subscribe(events.EventTypePaymentSucceeded, handler)
	bus.Subscribe(events.EventTypePaymentFailed, handler)
	bus.Subscribe(events.EventTypePaymentCancelled, handler)
}

func (n *Notifier) Enqueue(event events.Event) error {
	job := Job{
		EventID:   event.EventID(),
		EventType: event.EventType(),
		Payload:   event.Payload(),
	}

	select {
	case n.jobQueue <- job:
		n.logger.Debug("outcome event queued",
			"event_id", job.EventID,
			"event_type", job.EventType,
			"queue_length", len(n.jobQueue))
		return nil
	default:
		n.logger.Warn("outcome event dropped, queue full",
			"event_id", job.EventID,
			"queue_capacity", cap(n.jobQueue))
		return fmt.Errorf("notifier queue full")
	}
}

func (n *Notifier) deliver(job Job) {
	if n.webhookURL == "" {
		return
	}

	body, err := json.Marshal(map[string]interface{}{
		"event_id":   job.EventID,
		"event_type": job.EventType,
		"data":       job.Payload,
	})
	if err != nil {
		n.logger.Error("failed to marshal outcome event", "event_id", job.EventID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(n.ctx, n.deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("failed to build delivery request", "event_id", job.EventID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Error("outcome delivery failed",
			"event_id", job.EventID,
			"event_type", job.EventType,
			"error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("outcome delivery rejected",
			"event_id", job.EventID,
			"event_type", job.EventType,
			"status", resp.StatusCode)
		return
	}

	n.logger.Info("outcome delivered",
		"event_id", job.EventID,
		"event_type", job.EventType)
}

func (n *Notifier) Shutdown() {
	n.logger.Info("shutting down outcome notifier")
	n.cancel()
	n.wg.Wait()
	n.logger.Info("outcome notifier shutdown complete")
}
