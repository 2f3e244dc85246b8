package processing

import (
	"context"
	"sync"
	"time"

	customlog "github.com/open-teleop/omnidrive/pkg/log"
)

// Processor handles one value taken from the slot.
type Processor[T any] func(ctx context.Context, item T) error

// Source is what a Worker drains: a Slot for samples where only the newest matters,
// a Queue for events that must each be delivered.
type Source[T any] interface {
	Take(ctx context.Context) (T, error)
	Dropped() int64
}

// Worker drains a Source on a single goroutine. Producers never block on it.
type Worker[T any] struct {
	name      string
	logger    customlog.Logger
	slot      Source[T]
	processor Processor[T]
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	metricsMu sync.Mutex
	metrics   TransferMetrics
}

// TransferMetrics tracks processed items for a worker.
type TransferMetrics struct {
	ProcessedCount    int64 `json:"processed"`
	ErrorCount        int64 `json:"errors"`
	DroppedCount      int64 `json:"dropped"`
	LastProcessedTime int64 `json:"last_processed_ns"`
	ProcessingTimeAvg int64 `json:"avg_us"`
	ProcessingTimeMax int64 `json:"max_us"`
}

func NewWorker[T any](name string, slot Source[T], processor Processor[T], logger customlog.Logger) *Worker[T] {
	return &Worker[T]{
		name:      name,
		logger:    logger,
		slot:      slot,
		processor: processor,
	}
}

// Start launches the worker goroutine. Calling Start on a running worker is a no-op.
func (w *Worker[T]) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true
	w.logger.Infof("Starting %s worker", w.name)

	w.wg.Add(1)
	go w.run(ctx)
}

// Stop cancels the worker and waits for the item in flight to finish. Values still
// in the slot are left there.
func (w *Worker[T]) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()

	w.logger.Infof("%s worker stopped", w.name)
	w.logMetrics()
}

func (w *Worker[T]) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		item, err := w.slot.Take(ctx)
		if err != nil {
			return
		}

		startTime := time.Now()
		err = w.processor(ctx, item)
		w.record(time.Since(startTime).Microseconds(), err)

		if err != nil {
			w.logger.Errorf("Error processing item in %s worker: %v", w.name, err)
		}
	}
}

func (w *Worker[T]) record(elapsedMicros int64, err error) {
	w.metricsMu.Lock()
	defer w.metricsMu.Unlock()

	m := &w.metrics
	m.ProcessedCount++
	m.LastProcessedTime = time.Now().UnixNano()
	if m.ProcessingTimeAvg == 0 {
		m.ProcessingTimeAvg = elapsedMicros
	} else {
		m.ProcessingTimeAvg = (m.ProcessingTimeAvg + elapsedMicros) / 2
	}
	if elapsedMicros > m.ProcessingTimeMax {
		m.ProcessingTimeMax = elapsedMicros
	}
	if err != nil {
		m.ErrorCount++
	}
}

// GetMetrics returns a copy of the current metrics.
func (w *Worker[T]) GetMetrics() TransferMetrics {
	w.metricsMu.Lock()
	m := w.metrics
	w.metricsMu.Unlock()

	m.DroppedCount = w.slot.Dropped()
	return m
}

func (w *Worker[T]) logMetrics() {
	m := w.GetMetrics()
	w.logger.Infof("%s worker metrics: processed=%d, errors=%d, dropped=%d, avg_time=%dµs, max_time=%dµs",
		w.name, m.ProcessedCount, m.ErrorCount, m.DroppedCount, m.ProcessingTimeAvg, m.ProcessingTimeMax)
}

func (w *Worker[T]) GetName() string {
	return w.name
}
