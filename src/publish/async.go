package publish

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type batch struct {
	market string
	events []TradeEvent
}

// Async moves publication off the matching path. Batches are delivered in
// submission order by a single goroutine; failures go to onError and are
// otherwise dropped.
type Async struct {
	next    Publisher
	timeout time.Duration
	onError func(market string, err error)

	queue     chan batch
	done      chan struct{}
	closeOnce sync.Once
}

func NewAsync(next Publisher, buffer int, timeout time.Duration, onError func(market string, err error)) *Async {
	if onError == nil {
		onError = func(string, error) {}
	}
	a := &Async{
		next:    next,
		timeout: timeout,
		onError: onError,
		queue:   make(chan batch, buffer),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Publish enqueues the batch, blocking while the queue is full.
func (a *Async) Publish(ctx context.Context, market string, events []TradeEvent) error {
	if len(events) == 0 {
		return nil
	}
	select {
	case a.queue <- batch{market: market, events: events}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)
	for b := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.next.Publish(ctx, b.market, b.events)
		cancel()
		if err != nil {
			log.Error().
				Err(err).
				Str("market", b.market).
				Int("trades", len(b.events)).
				Msg("Failed to publish trades")
			a.onError(b.market, err)
		}
	}
}

// Close flushes queued batches and closes the wrapped publisher. Publish
// must not be called after Close.
func (a *Async) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.queue)
		<-a.done
		err = a.next.Close()
	})
	return err
}
