package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"matchcore/src/config"
	"matchcore/src/engine"
	"matchcore/src/market"
	"matchcore/src/models"
)

type MarketReader interface {
	Codes() []string
	Depth(ctx context.Context, code string, levels int) (market.Depth, error)
	Order(ctx context.Context, code string, id uint64) (engine.Order, bool, error)
	Stats(ctx context.Context) ([]market.Stats, error)
}

type Instruments interface {
	Instrument(code string) (config.Instrument, bool)
}

// MarketHandler serves read-only views of the books. Orders enter through
// the registry, never through HTTP.
type MarketHandler struct {
	Markets      MarketReader
	Instruments  Instruments
	StartTime    time.Time
	DefaultDepth int
	MaxDepth     int
}

func NewMarketHandler(markets MarketReader, instruments Instruments, cfg config.ServerConfig) *MarketHandler {
	return &MarketHandler{
		Markets:      markets,
		Instruments:  instruments,
		StartTime:    time.Now(),
		DefaultDepth: cfg.DefaultDepth,
		MaxDepth:     cfg.MaxDepth,
	}
}

func (h *MarketHandler) ListMarkets(c *fiber.Ctx) error {
	stats, err := h.Markets.Stats(c.UserContext())
	if err != nil {
		return h.failure(c, err)
	}

	markets := make([]models.MarketInfo, 0, len(stats))
	for _, s := range stats {
		info := models.MarketInfo{
			Market:        s.Market,
			RestingOrders: s.RestingOrders,
			LastSequence:  s.LastSequence,
		}
		if s.HasBid {
			bid := s.BestBid
			info.BestBid = &bid
		}
		if s.HasAsk {
			ask := s.BestAsk
			info.BestAsk = &ask
		}
		if inst, ok := h.Instruments.Instrument(s.Market); ok {
			info.TickSize = inst.TickSize.String()
			info.LotSize = inst.LotSize.String()
		}
		markets = append(markets, info)
	}

	return c.Status(fiber.StatusOK).JSON(models.MarketsResponse{Markets: markets})
}

func (h *MarketHandler) GetOrderBook(c *fiber.Ctx) error {
	code := c.Params("market")

	depth, err := strconv.Atoi(c.Query("depth", strconv.Itoa(h.DefaultDepth)))
	if err != nil || depth <= 0 {
		depth = h.DefaultDepth
	}
	// edge case: enforce maximum depth limit
	if depth > h.MaxDepth {
		depth = h.MaxDepth
	}

	d, err := h.Markets.Depth(c.UserContext(), code, depth)
	if err != nil {
		return h.failure(c, err)
	}

	inst, hasInst := h.Instruments.Instrument(code)
	convert := func(levels []engine.LevelView) []models.PriceLevelInfo {
		out := make([]models.PriceLevelInfo, 0, len(levels))
		for _, l := range levels {
			info := models.PriceLevelInfo{
				Price:    l.Price,
				Quantity: l.Quantity,
				Orders:   l.OrderCount,
			}
			if hasInst {
				info.DisplayPrice = inst.FromTicks(l.Price).String()
				info.DisplaySize = inst.FromLots(l.Quantity).String()
			}
			out = append(out, info)
		}
		return out
	}

	return c.Status(fiber.StatusOK).JSON(models.OrderBookResponse{
		Market:    code,
		Sequence:  d.Sequence,
		Timestamp: time.Now().UnixMilli(),
		Bids:      convert(d.Bids),
		Asks:      convert(d.Asks),
	})
}

func (h *MarketHandler) GetOrderStatus(c *fiber.Ctx) error {
	code := c.Params("market")
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid order id",
		})
	}

	o, ok, err := h.Markets.Order(c.UserContext(), code, id)
	if err != nil {
		return h.failure(c, err)
	}
	// edge case: filled, cancelled and expired orders are no longer in the book
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Order not found",
		})
	}

	status := engine.StatusAccepted
	if o.Filled > 0 {
		status = engine.StatusPartialFill
	}

	return c.Status(fiber.StatusOK).JSON(models.OrderStatusResponse{
		OrderID:           o.ID,
		Market:            code,
		Side:              o.Side.String(),
		TimeInForce:       o.TimeInForce.String(),
		Price:             o.Price,
		Quantity:          o.Quantity,
		FilledQuantity:    o.Filled,
		RemainingQuantity: o.Remaining(),
		Sequence:          o.Sequence,
		Status:            status.String(),
	})
}

func (h *MarketHandler) HealthCheck(c *fiber.Ctx) error {
	uptime := time.Since(h.StartTime).Seconds()

	stats, err := h.Markets.Stats(c.UserContext())
	if err != nil {
		log.Warn().Err(err).Msg("Health check: markets unavailable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.HealthResponse{
			Status:        "unavailable",
			UptimeSeconds: int64(uptime),
		})
	}

	var resting int
	for _, s := range stats {
		resting += s.RestingOrders
	}

	return c.Status(fiber.StatusOK).JSON(models.HealthResponse{
		Status:        "healthy",
		UptimeSeconds: int64(uptime),
		Markets:       len(stats),
		RestingOrders: resting,
	})
}

func (h *MarketHandler) failure(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, market.ErrUnknownMarket):
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Unknown market",
		})
	case errors.Is(err, market.ErrClosed):
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error: "Markets are shutting down",
		})
	default:
		log.Error().
			Err(err).
			Str("path", c.Path()).
			Msg("Error reading market")
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error: "Internal server error",
		})
	}
}
