package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"matchcore/src/engine"
	"matchcore/src/journal"
	"matchcore/src/metrics"
	"matchcore/src/publish"
)

type request struct {
	fn   func()
	done chan struct{}
}

// Market owns one order book. Every command runs on the market's worker
// goroutine, one at a time, in the order it was queued.
type Market struct {
	code string
	book *engine.OrderBook

	journal   CommandJournal
	publisher publish.Publisher
	metrics   *metrics.Metrics

	requests  chan request
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func newMarket(code string, opts Options) *Market {
	m := &Market{
		code:      code,
		book:      engine.NewOrderBook(code),
		journal:   opts.Journal,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		requests:  make(chan request, opts.QueueSize),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Market) Code() string {
	return m.code
}

func (m *Market) run() {
	defer close(m.stopped)
	for {
		select {
		case req := <-m.requests:
			m.execute(req)
		case <-m.quit:
			// edge case: commands already queued still run before the worker exits
			for {
				select {
				case req := <-m.requests:
					m.execute(req)
				default:
					return
				}
			}
		}
	}
}

func (m *Market) execute(req request) {
	defer close(req.done)
	req.fn()
}

// do runs fn on the worker. ctx bounds only the wait: once fn has been
// queued it runs to completion even if the caller gives up.
func (m *Market) do(ctx context.Context, fn func()) error {
	req := request{fn: fn, done: make(chan struct{})}

	select {
	case m.requests <- req:
	case <-m.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-m.stopped:
		select {
		case <-req.done:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Market) close() {
	m.closeOnce.Do(func() {
		close(m.quit)
	})
	<-m.stopped
}

func (m *Market) PlaceOrder(ctx context.Context, order engine.Order) (engine.MatchOutcome, error) {
	var out engine.MatchOutcome
	var execErr error
	if err := m.do(ctx, func() { out, execErr = m.place(order, true) }); err != nil {
		return engine.MatchOutcome{}, err
	}
	return out, execErr
}

func (m *Market) CancelOrder(ctx context.Context, id uint64) (engine.CancelOutcome, error) {
	var out engine.CancelOutcome
	var execErr error
	if err := m.do(ctx, func() { out, execErr = m.cancel(id, true) }); err != nil {
		return engine.CancelOutcome{}, err
	}
	return out, execErr
}

// place runs on the worker. live is false during replay, which neither
// journals nor publishes.
func (m *Market) place(order engine.Order, live bool) (engine.MatchOutcome, error) {
	if live {
		m.metrics.OrderReceived(m.code)
		if m.journal != nil {
			if _, err := m.journal.Append(journal.PlaceCommand(m.code, order)); err != nil {
				log.Error().Err(err).Str("market", m.code).Uint64("order_id", order.ID).Msg("Failed to journal order, rejecting")
				m.metrics.OrderRejected(m.code, "journal")
				return engine.MatchOutcome{}, fmt.Errorf("%w: %v", ErrJournal, err)
			}
		}
	}

	start := time.Now()
	out, err := m.book.PlaceOrder(order)
	elapsed := time.Since(start)

	if err != nil {
		m.logRejection(err, order.ID, "place", live)
		return out, err
	}

	if live {
		m.metrics.ObserveLatency(m.code, "place", elapsed)
		m.metrics.TradesExecuted(m.code, len(out.Trades), out.Filled)
		m.publish(out.Trades)
	}
	m.metrics.SetRestingOrders(m.code, m.book.Len())

	log.Debug().
		Str("market", m.code).
		Uint64("order_id", out.OrderID).
		Uint64("sequence", out.Sequence).
		Str("status", out.Status.String()).
		Int64("filled", out.Filled).
		Int64("remaining", out.Remaining).
		Int("trades", len(out.Trades)).
		Bool("replay", !live).
		Msg("Order processed")

	return out, nil
}

func (m *Market) cancel(id uint64, live bool) (engine.CancelOutcome, error) {
	if live && m.journal != nil {
		if _, err := m.journal.Append(journal.CancelCommand(m.code, id)); err != nil {
			log.Error().Err(err).Str("market", m.code).Uint64("order_id", id).Msg("Failed to journal cancel, rejecting")
			m.metrics.OrderRejected(m.code, "journal")
			return engine.CancelOutcome{}, fmt.Errorf("%w: %v", ErrJournal, err)
		}
	}

	start := time.Now()
	out, err := m.book.CancelOrder(id)
	elapsed := time.Since(start)

	if err != nil {
		m.logRejection(err, id, "cancel", live)
		return out, err
	}

	if live {
		m.metrics.ObserveLatency(m.code, "cancel", elapsed)
		m.metrics.OrderCancelled(m.code)
	}
	m.metrics.SetRestingOrders(m.code, m.book.Len())

	log.Debug().
		Str("market", m.code).
		Uint64("order_id", id).
		Int64("cancelled", out.Cancelled).
		Bool("replay", !live).
		Msg("Order cancelled")

	return out, nil
}

func (m *Market) logRejection(err error, id uint64, command string, live bool) {
	reason := engine.Reason(err)
	if live {
		m.metrics.OrderRejected(m.code, reason)
	}
	if errors.Is(err, engine.ErrInvariantViolation) {
		log.Error().
			Err(err).
			Str("market", m.code).
			Uint64("order_id", id).
			Str("command", command).
			Msg("Order book invariant violated")
		return
	}
	log.Debug().
		Err(err).
		Str("market", m.code).
		Uint64("order_id", id).
		Str("command", command).
		Str("reason", reason).
		Msg("Command rejected")
}

func (m *Market) publish(trades []engine.Trade) {
	if m.publisher == nil || len(trades) == 0 {
		return
	}
	if err := m.publisher.Publish(context.Background(), m.code, publish.NewTradeEvents(m.code, trades)); err != nil {
		log.Error().Err(err).Str("market", m.code).Int("trades", len(trades)).Msg("Failed to publish trades")
		m.metrics.PublishFailed(m.code)
	}
}

// apply replays one journaled command. Rejections are part of the recorded
// history; only a broken book aborts the replay.
func (m *Market) apply(cmd journal.Command) error {
	var err error
	switch cmd.Kind {
	case journal.KindPlace:
		order, convErr := cmd.Order()
		if convErr != nil {
			return fmt.Errorf("replay %s/%d: %w", m.code, cmd.Seq, convErr)
		}
		_, err = m.place(order, false)
	case journal.KindCancel:
		_, err = m.cancel(cmd.OrderID, false)
	default:
		return fmt.Errorf("replay %s/%d: unknown command %q", m.code, cmd.Seq, cmd.Kind)
	}
	if errors.Is(err, engine.ErrInvariantViolation) {
		return fmt.Errorf("replay %s/%d: %w", m.code, cmd.Seq, err)
	}
	return nil
}
