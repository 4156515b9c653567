package feed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"matchcore/src/config"
	"matchcore/src/engine"
	"matchcore/src/market"
)

const (
	ActionPlace  = "place"
	ActionCancel = "cancel"

	TypeLimit  = "LIMIT"
	TypeMarket = "MARKET"
)

// Line is one scripted command. Prices and quantities are human decimals
// converted through the instrument's tick and lot size.
type Line struct {
	Market      string          `json:"market"`
	Action      string          `json:"action"`
	ID          uint64          `json:"id"`
	Side        string          `json:"side"`
	Type        string          `json:"type"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	TimeInForce string          `json:"tif"`
}

type Submitter interface {
	PlaceOrder(ctx context.Context, code string, order engine.Order) (engine.MatchOutcome, error)
	CancelOrder(ctx context.Context, code string, id uint64) (engine.CancelOutcome, error)
}

type Instruments interface {
	Instrument(code string) (config.Instrument, bool)
}

type Summary struct {
	Lines     int
	Placed    int
	Cancelled int
	Rejected  int
	Trades    int
}

type Runner struct {
	submitter   Submitter
	instruments Instruments
}

func NewRunner(submitter Submitter, instruments Instruments) *Runner {
	return &Runner{submitter: submitter, instruments: instruments}
}

func (r *Runner) RunFile(ctx context.Context, path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()

	log.Info().Str("file", path).Msg("Running order feed")
	sum, err := r.Run(ctx, f)
	if err != nil {
		return sum, fmt.Errorf("%s: %w", path, err)
	}
	log.Info().
		Str("file", path).
		Int("lines", sum.Lines).
		Int("placed", sum.Placed).
		Int("cancelled", sum.Cancelled).
		Int("rejected", sum.Rejected).
		Int("trades", sum.Trades).
		Msg("Order feed finished")
	return sum, nil
}

// Run submits every command of the NDJSON stream in order. Blank lines and
// lines starting with '#' are skipped. Malformed lines stop the run; commands
// the book rejects are logged and counted.
func (r *Runner) Run(ctx context.Context, in io.Reader) (Summary, error) {
	var sum Summary
	scanner := bufio.NewScanner(in)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		var line Line
		if err := json.Unmarshal(raw, &line); err != nil {
			return sum, fmt.Errorf("line %d: %w", lineNo, err)
		}
		sum.Lines++

		if err := r.submit(ctx, lineNo, line, &sum); err != nil {
			return sum, err
		}
	}
	return sum, scanner.Err()
}

func (r *Runner) submit(ctx context.Context, lineNo int, line Line, sum *Summary) error {
	logger := log.With().Int("line", lineNo).Str("market", line.Market).Uint64("order_id", line.ID).Logger()

	switch strings.ToLower(line.Action) {
	case ActionCancel:
		out, err := r.submitter.CancelOrder(ctx, line.Market, line.ID)
		if err != nil {
			if isFatal(err) {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			sum.Rejected++
			logger.Warn().Err(err).Msg("Cancel rejected")
			return nil
		}
		sum.Cancelled++
		logger.Info().Int64("cancelled", out.Cancelled).Int64("filled", out.Filled).Msg("Order cancelled")
		return nil

	case "", ActionPlace:
		inst, ok := r.instruments.Instrument(line.Market)
		if !ok {
			sum.Rejected++
			logger.Warn().Msg("Order rejected: unknown instrument")
			return nil
		}
		order, err := toOrder(inst, line)
		if err != nil {
			sum.Rejected++
			logger.Warn().Err(err).Msg("Order rejected")
			return nil
		}

		out, err := r.submitter.PlaceOrder(ctx, line.Market, order)
		if err != nil {
			if isFatal(err) {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			sum.Rejected++
			logger.Warn().Err(err).Str("reason", engine.Reason(err)).Msg("Order rejected")
			return nil
		}
		sum.Placed++
		sum.Trades += len(out.Trades)

		for _, t := range out.Trades {
			logger.Info().
				Uint64("trade", t.ID).
				Uint64("maker_order_id", t.MakerOrderID).
				Str("price", inst.FromTicks(t.Price).String()).
				Str("quantity", inst.FromLots(t.Quantity).String()).
				Msg("Trade")
		}
		logger.Info().
			Uint64("assigned_id", out.OrderID).
			Uint64("sequence", out.Sequence).
			Str("status", out.Status.String()).
			Str("filled", inst.FromLots(out.Filled).String()).
			Str("remaining", inst.FromLots(out.Remaining).String()).
			Msg("Order placed")
		return nil

	default:
		return fmt.Errorf("line %d: unknown action %q", lineNo, line.Action)
	}
}

// isFatal separates infrastructure failures from ordinary book rejections.
func isFatal(err error) bool {
	return errors.Is(err, engine.ErrInvariantViolation) ||
		errors.Is(err, market.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func toOrder(inst config.Instrument, line Line) (engine.Order, error) {
	side, err := engine.ParseSide(line.Side)
	if err != nil {
		return engine.Order{}, err
	}
	tif, err := engine.ParseTimeInForce(line.TimeInForce)
	if err != nil {
		return engine.Order{}, err
	}
	qty, err := inst.ToLots(line.Quantity)
	if err != nil {
		return engine.Order{}, err
	}

	switch strings.ToUpper(line.Type) {
	case TypeMarket:
		return engine.NewMarketOrder(line.ID, side, qty, tif), nil
	case "", TypeLimit:
		price, err := inst.ToTicks(line.Price)
		if err != nil {
			return engine.Order{}, err
		}
		return engine.NewLimitOrder(line.ID, side, price, qty, tif), nil
	default:
		return engine.Order{}, fmt.Errorf("%w: unknown order type %q", engine.ErrInvalidOrder, line.Type)
	}
}
