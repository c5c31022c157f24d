package audit

import (
	"context"
	"log/slog"
)

// Worker drains the sink's queue into the configured backends. Store errors
// are logged and the worker keeps going: audit persistence problems must
// never surface as request failures.
type Worker struct {
	store  Appender
	sink   *Sink
	logger *slog.Logger
}

func NewWorker(store Appender, sink *Sink, logger *slog.Logger) *Worker {
	return &Worker{store: store, sink: sink, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case rec := <-w.sink.Records():
			w.append(ctx, rec)
		}
	}
}

// drain flushes whatever is still queued when the run context is cancelled.
// Requests finishing during server shutdown keep recording after the signal
// arrives; their records must reach the stores too.
func (w *Worker) drain() {
	ctx := context.Background()
	for {
		select {
		case rec := <-w.sink.Records():
			w.append(ctx, rec)
		default:
			return
		}
	}
}

func (w *Worker) append(ctx context.Context, rec Record) {
	if err := w.store.Append(ctx, rec); err != nil {
		if w.logger != nil {
			w.logger.ErrorContext(ctx, "audit append failed",
				"request_id", rec.RequestID,
				"dependency", rec.Dependency,
				"error", err,
			)
		}
	}
}
