package signal

import (
	"context"
	"sync"
	"time"
)

// BatchWriter stores many signals in one call.
type BatchWriter interface {
	StoreBatch(ctx context.Context, batch []Signal) error
}

// AsyncOptions tunes AsyncWriter buffering. Zero values take defaults.
type AsyncOptions struct {
	BufferSize     int           // queued signals before Store falls back to a direct write; default 256
	BatchSize      int           // signals per StoreBatch call; default 50
	BatchTimeout   time.Duration // flush interval for partial batches; default 250ms
	StorageTimeout time.Duration // per-flush deadline; default 5s
}

// AsyncWriter queues signals and writes them in batches from one goroutine.
// Store does not wait for the write.
type AsyncWriter struct {
	bw      BatchWriter
	queue   chan Signal
	done    chan struct{}
	wg      sync.WaitGroup
	opts    AsyncOptions
	onError func(error)
	once    sync.Once
}

// NewAsyncWriter starts the writer goroutine. onError receives flush failures
// and may be nil.
func NewAsyncWriter(bw BatchWriter, opts AsyncOptions, onError func(error)) *AsyncWriter {
	if bw == nil {
		panic("signal: batch writer cannot be nil")
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 250 * time.Millisecond
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 5 * time.Second
	}
	if onError == nil {
		onError = func(error) {}
	}

	w := &AsyncWriter{
		bw:      bw,
		queue:   make(chan Signal, opts.BufferSize),
		done:    make(chan struct{}),
		opts:    opts,
		onError: onError,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Store enqueues s. A full buffer writes s synchronously instead of dropping it.
func (w *AsyncWriter) Store(ctx context.Context, s Signal) error {
	select {
	case <-w.done:
		return ErrStorageNotAvailable
	default:
	}
	select {
	case w.queue <- s:
		return nil
	default:
		return w.bw.StoreBatch(ctx, []Signal{s})
	}
}

func (w *AsyncWriter) run() {
	defer w.wg.Done()

	batch := make([]Signal, 0, w.opts.BatchSize)
	ticker := time.NewTicker(w.opts.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), w.opts.StorageTimeout)
		defer cancel()
		if err := w.bw.StoreBatch(ctx, batch); err != nil {
			w.onError(err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case s := <-w.queue:
			batch = append(batch, s)
			if len(batch) >= w.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.done:
			for {
				select {
				case s := <-w.queue:
					batch = append(batch, s)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close flushes queued signals and stops the writer. ctx bounds the wait.
func (w *AsyncWriter) Close(ctx context.Context) error {
	w.once.Do(func() { close(w.done) })

	stopped := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
