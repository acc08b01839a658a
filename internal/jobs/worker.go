package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cloo-solutions/campaignkb/internal/telemetry"
)

// JobProcessor defines the interface for processing jobs
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker runs a JobProcessor once at start and then on every tick. Each
// pass is bounded by the interval, so a hung pull cannot stack up passes.
type Worker struct {
	name      string
	processor JobProcessor
	interval  time.Duration
	stopChan  chan struct{}
	doneChan  chan struct{}
	stopOnce  sync.Once
}

// NewWorker creates a new Worker instance
func NewWorker(name string, processor JobProcessor, interval time.Duration) *Worker {
	return &Worker{
		name:      name,
		processor: processor,
		interval:  interval,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start runs the loop until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.doneChan)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Printf("%s worker started with interval: %v", w.name, w.interval)
	w.run(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("%s worker stopped", w.name)
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

func (w *Worker) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "jobs."+w.name, telemetry.SpanAttributes{Operation: w.name})
	defer span.End()

	if err := w.processor.ProcessJobs(ctx); err != nil {
		log.Printf("%s worker: pass failed: %v", w.name, err)
		span.SetError(err)
		telemetry.CaptureError(ctx, err)
	}
}

// Stop cancels a running pass and waits for the loop to exit. It is safe
// to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.doneChan
	log.Printf("%s worker shutdown complete", w.name)
}
