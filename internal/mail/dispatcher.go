// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package mail

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ErrQueueFull is returned by Enqueue when the buffer has no room.
var ErrQueueFull = errors.New("mail queue full")

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("mail dispatcher closed")

// Message is one queued email.
type Message struct {
	Kind     string
	To       string
	Subject  string
	HTMLBody string
}

// DispatcherConfig controls a Dispatcher. Zero values take defaults.
type DispatcherConfig struct {
	Workers   int           // default 2
	QueueSize int           // default 100
	Attempts  uint64        // sends per message, default 3
	Backoff   time.Duration // first retry delay, default 500ms, doubling
	// OnFailure is called after a message exhausts its attempts.
	OnFailure func(Message, error)
	Logger    *slog.Logger
}

// Dispatcher delivers messages on worker goroutines. Enqueue never blocks on
// the network; failures are logged and reported to OnFailure, never to the
// caller that enqueued.
type Dispatcher struct {
	sender Sender
	cfg    DispatcherConfig
	logger *slog.Logger

	queue  chan Message
	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher starts cfg.Workers workers sending through sender.
func NewDispatcher(sender Sender, cfg DispatcherConfig) (*Dispatcher, error) {
	if sender == nil {
		return nil, oops.Errorf("mail sender is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sender: sender,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Message, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for range cfg.Workers {
		d.wg.Add(1)
		go d.worker()
	}
	return d, nil
}

// Enqueue queues msg for delivery.
func (d *Dispatcher) Enqueue(msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return oops.Code("MAIL_DISPATCHER_CLOSED").With("kind", msg.Kind).Wrap(ErrClosed)
	}
	select {
	case d.queue <- msg:
		return nil
	default:
		Deliveries.WithLabelValues(StatusDropped).Inc()
		return oops.Code("MAIL_QUEUE_FULL").
			With("kind", msg.Kind).
			With("queue_size", d.cfg.QueueSize).
			Wrap(ErrQueueFull)
	}
}

// Close stops accepting messages and waits for queued ones to be sent. If
// ctx ends first, in-flight sends are cancelled, the rest of the queue is
// dropped and ctx's error is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return oops.Code("MAIL_DRAIN_INCOMPLETE").Wrap(ctx.Err())
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		if d.ctx.Err() != nil {
			Deliveries.WithLabelValues(StatusDropped).Inc()
			continue
		}
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	b := retry.NewExponential(d.cfg.Backoff)
	b = retry.WithCappedDuration(30*time.Second, b)
	b = retry.WithMaxRetries(d.cfg.Attempts-1, b)

	attempt := 0
	err := retry.Do(d.ctx, b, func(ctx context.Context) error {
		attempt++
		if err := d.sender.Send(ctx, msg.To, msg.Subject, msg.HTMLBody); err != nil {
			d.logger.WarnContext(ctx, "email send failed",
				"kind", msg.Kind,
				"attempt", attempt,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		Deliveries.WithLabelValues(StatusFailed).Inc()
		d.logger.Error("email delivery failed",
			"kind", msg.Kind,
			"attempts", attempt,
			"error", err)
		if d.cfg.OnFailure != nil {
			d.cfg.OnFailure(msg, err)
		}
		return
	}
	Deliveries.WithLabelValues(StatusSent).Inc()
}
