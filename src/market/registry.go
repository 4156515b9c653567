package market

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"matchcore/src/engine"
	"matchcore/src/journal"
	"matchcore/src/metrics"
	"matchcore/src/publish"
)

var (
	ErrUnknownMarket = errors.New("unknown market")
	ErrAlreadyExists = errors.New("market already exists")
	ErrClosed        = errors.New("market registry closed")
	ErrJournal       = errors.New("journal write failed")
)

type CommandJournal interface {
	Append(cmd journal.Command) (uint64, error)
}

type CommandSource interface {
	Replay(market string, fn func(journal.Command) error) error
}

type Options struct {
	QueueSize int
	Journal   CommandJournal    // optional
	Publisher publish.Publisher // optional
	Metrics   *metrics.Metrics  // optional
}

// Registry maps instrument codes to markets. Commands for one market are
// serialized by its worker; different markets run in parallel.
type Registry struct {
	opts Options

	mu      sync.RWMutex
	markets map[string]*Market
	closed  bool
}

func NewRegistry(opts Options) *Registry {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	return &Registry{
		opts:    opts,
		markets: make(map[string]*Market),
	}
}

func (r *Registry) CreateBook(code string) error {
	if code == "" {
		return errors.New("market code must not be empty")
	}

	r.mu.RLock()
	_, exists := r.markets[code]
	r.mu.RUnlock()
	if exists {
		return ErrAlreadyExists
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	// edge case: double-check after acquiring write lock
	if _, exists := r.markets[code]; exists {
		return ErrAlreadyExists
	}

	r.markets[code] = newMarket(code, r.opts)
	log.Info().Str("market", code).Msg("Order book created")
	return nil
}

func (r *Registry) Market(code string) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}
	m, ok := r.markets[code]
	if !ok {
		return nil, ErrUnknownMarket
	}
	return m, nil
}

// Codes returns the registered market codes in sorted order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]string, 0, len(r.markets))
	for code := range r.markets {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (r *Registry) PlaceOrder(ctx context.Context, code string, order engine.Order) (engine.MatchOutcome, error) {
	m, err := r.Market(code)
	if err != nil {
		return engine.MatchOutcome{}, err
	}
	return m.PlaceOrder(ctx, order)
}

func (r *Registry) CancelOrder(ctx context.Context, code string, id uint64) (engine.CancelOutcome, error) {
	m, err := r.Market(code)
	if err != nil {
		return engine.CancelOutcome{}, err
	}
	return m.CancelOrder(ctx, id)
}

type Depth struct {
	Market   string
	Sequence uint64
	Bids     []engine.LevelView
	Asks     []engine.LevelView
}

func (r *Registry) Depth(ctx context.Context, code string, levels int) (Depth, error) {
	m, err := r.Market(code)
	if err != nil {
		return Depth{}, err
	}
	d := Depth{Market: code}
	err = m.do(ctx, func() {
		d.Sequence = m.book.LastSequence()
		d.Bids, d.Asks = m.book.Depth(levels)
	})
	return d, err
}

func (r *Registry) Order(ctx context.Context, code string, id uint64) (engine.Order, bool, error) {
	m, err := r.Market(code)
	if err != nil {
		return engine.Order{}, false, err
	}
	var o engine.Order
	var ok bool
	err = m.do(ctx, func() { o, ok = m.book.Order(id) })
	return o, ok, err
}

func (r *Registry) Snapshot(ctx context.Context, code string) (engine.Snapshot, error) {
	m, err := r.Market(code)
	if err != nil {
		return engine.Snapshot{}, err
	}
	var snap engine.Snapshot
	err = m.do(ctx, func() { snap = m.book.Snapshot() })
	return snap, err
}

type Stats struct {
	Market        string
	RestingOrders int
	LastSequence  uint64
	BestBid       int64
	BestAsk       int64
	HasBid        bool
	HasAsk        bool
}

// Stats reads a summary of every market, in code order.
func (r *Registry) Stats(ctx context.Context) ([]Stats, error) {
	codes := r.Codes()
	out := make([]Stats, 0, len(codes))
	for _, code := range codes {
		m, err := r.Market(code)
		if err != nil {
			return nil, err
		}
		s := Stats{Market: code}
		err = m.do(ctx, func() {
			s.RestingOrders = m.book.Len()
			s.LastSequence = m.book.LastSequence()
			s.BestBid, _, s.HasBid = m.book.BestBid()
			s.BestAsk, _, s.HasAsk = m.book.BestAsk()
		})
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Replay rebuilds every registered book from src without journaling or
// publishing. Journaled markets that are not registered are skipped.
func (r *Registry) Replay(ctx context.Context, src CommandSource) error {
	for _, code := range r.Codes() {
		m, err := r.Market(code)
		if err != nil {
			return err
		}
		var replayed int
		var replayErr error
		err = m.do(ctx, func() {
			replayErr = src.Replay(code, func(cmd journal.Command) error {
				replayed++
				return m.apply(cmd)
			})
		})
		if err != nil {
			return err
		}
		if replayErr != nil {
			return replayErr
		}
		log.Info().Str("market", code).Int("commands", replayed).Msg("Order book replayed from journal")
	}
	return nil
}

// Close stops every market worker after it drains its queue.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	markets := make([]*Market, 0, len(r.markets))
	for _, m := range r.markets {
		markets = append(markets, m)
	}
	r.mu.Unlock()

	for _, m := range markets {
		m.close()
	}
	log.Info().Int("markets", len(markets)).Msg("Market workers stopped")
}
