package signal

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrymomot/entitlements/pkg/webhook"
)

// WebhookNotifier posts alerting signals to an operator endpoint.
type WebhookNotifier struct {
	sender *webhook.Sender
	cfg    webhook.Config
}

// NewWebhookNotifier returns nil when cfg has no URL, which disables alerts.
func NewWebhookNotifier(sender *webhook.Sender, cfg webhook.Config) *WebhookNotifier {
	if !cfg.Enabled() {
		return nil
	}
	if sender == nil {
		sender = webhook.NewSender()
	}
	return &WebhookNotifier{sender: sender, cfg: cfg}
}

type alertPayload struct {
	Type   string `json:"type"`
	Signal Signal `json:"signal"`
}

// Notify is a no-op on a nil notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, s Signal) error {
	if n == nil {
		return nil
	}
	return n.sender.Send(ctx, n.cfg.URL, alertPayload{Type: "entitlements." + string(s.Kind), Signal: s}, n.cfg.Options()...)
}

// AsyncNotifier hands signals to a Notifier from one background goroutine,
// so callers never wait on delivery or its retries.
type AsyncNotifier struct {
	next    Notifier
	queue   chan Signal
	done    chan struct{}
	wg      sync.WaitGroup
	timeout time.Duration
	onError func(error)
	once    sync.Once
}

// NewAsyncNotifier starts the delivery goroutine. bufferSize <= 0 means 64,
// timeout <= 0 bounds each delivery at 30s. onError receives delivery
// failures and may be nil.
func NewAsyncNotifier(next Notifier, bufferSize int, timeout time.Duration, onError func(error)) *AsyncNotifier {
	if next == nil {
		panic("signal: notifier cannot be nil")
	}
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if onError == nil {
		onError = func(error) {}
	}
	n := &AsyncNotifier{
		next:    next,
		queue:   make(chan Signal, bufferSize),
		done:    make(chan struct{}),
		timeout: timeout,
		onError: onError,
	}
	n.wg.Add(1)
	go n.run()
	return n
}

// Notify enqueues s. A full queue drops s and reports ErrNotifierQueueFull.
func (n *AsyncNotifier) Notify(_ context.Context, s Signal) error {
	select {
	case <-n.done:
		return ErrNotifierClosed
	default:
	}
	select {
	case n.queue <- s:
		return nil
	default:
		return ErrNotifierQueueFull
	}
}

func (n *AsyncNotifier) run() {
	defer n.wg.Done()
	for {
		select {
		case s := <-n.queue:
			n.deliver(s)
		case <-n.done:
			for {
				select {
				case s := <-n.queue:
					n.deliver(s)
				default:
					return
				}
			}
		}
	}
}

func (n *AsyncNotifier) deliver(s Signal) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	if err := n.next.Notify(ctx, s); err != nil {
		n.onError(err)
	}
}

// Close delivers what is queued and stops the goroutine. ctx bounds the wait.
func (n *AsyncNotifier) Close(ctx context.Context) error {
	n.once.Do(func() { close(n.done) })

	stopped := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
