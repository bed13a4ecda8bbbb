package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrClosed    = errors.New("notify: dispatcher closed")
	ErrQueueFull = errors.New("notify: queue full")
)

// Dispatcher sends mail either inline (Deliver) or from a bounded queue
// drained by background workers (Enqueue).
type Dispatcher struct {
	mailer      Mailer
	logger      *logrus.Logger
	workers     int
	sendTimeout time.Duration
	onResult    func(Message, error)

	queue  chan Message
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

type Option func(*Dispatcher)

func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Message, n)
		}
	}
}

func WithSendTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.sendTimeout = t
		}
	}
}

// WithOnResult registers a hook called after every send attempt.
func WithOnResult(fn func(Message, error)) Option {
	return func(d *Dispatcher) { d.onResult = fn }
}

func NewDispatcher(mailer Mailer, logger *logrus.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		mailer:      mailer,
		logger:      logger,
		workers:     2,
		sendTimeout: 30 * time.Second,
		queue:       make(chan Message, 256),
	}
	for _, opt := range opts {
		opt(d)
	}

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

// Deliver sends msg before returning.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return d.send(ctx, msg)
}

// Enqueue hands msg to the workers without waiting for delivery.
func (d *Dispatcher) Enqueue(msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for queued ones to be sent.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
		if err := d.send(ctx, msg); err != nil {
			d.logger.WithError(err).WithFields(logrus.Fields{
				"email_to": msg.To,
				"subject":  msg.Subject,
			}).Error("queued mail delivery failed")
		}
		cancel()
	}
}

func (d *Dispatcher) send(ctx context.Context, msg Message) error {
	err := d.mailer.Send(ctx, msg)
	if d.onResult != nil {
		d.onResult(msg, err)
	}
	return err
}
