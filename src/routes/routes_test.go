package routes_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"matchcore/src/config"
	"matchcore/src/engine"
	"matchcore/src/handlers"
	"matchcore/src/market"
	"matchcore/src/metrics"
	"matchcore/src/models"
	"matchcore/src/routes"
)

func testConfig() *config.Config {
	return &config.Config{
		Instruments: []config.Instrument{{
			Code:     "AAPL",
			TickSize: decimal.RequireFromString("0.01"),
			LotSize:  decimal.RequireFromString("1"),
		}},
		Server: config.ServerConfig{
			DefaultDepth:      10,
			MaxDepth:          2,
			RateLimitDisabled: true,
			RateLimitMax:      100,
			RateLimitWindow:   time.Second,
		},
	}
}

// setupTestServer builds the ops server over a registry holding AAPL with
// two bid and three ask levels.
func setupTestServer(t *testing.T, mutate func(*config.ServerConfig)) *fiber.App {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg.Server)
	}

	m := metrics.New("test")
	r := market.NewRegistry(market.Options{Metrics: m})
	t.Cleanup(r.Close)
	if err := r.CreateBook("AAPL"); err != nil {
		t.Fatalf("CreateBook failed: %v", err)
	}

	ctx := context.Background()
	orders := []engine.Order{
		engine.NewLimitOrder(1, engine.SideBid, 15050, 100, engine.GTC),
		engine.NewLimitOrder(2, engine.SideBid, 15040, 50, engine.GTC),
		engine.NewLimitOrder(3, engine.SideAsk, 15060, 70, engine.GTC),
		engine.NewLimitOrder(4, engine.SideAsk, 15070, 30, engine.GTC),
		engine.NewLimitOrder(5, engine.SideAsk, 15080, 20, engine.GTC),
		engine.NewLimitOrder(6, engine.SideBid, 15060, 30, engine.GTC),
	}
	for _, o := range orders {
		if _, err := r.PlaceOrder(ctx, "AAPL", o); err != nil {
			t.Fatalf("PlaceOrder %d failed: %v", o.ID, err)
		}
	}

	h := handlers.NewMarketHandler(r, cfg, cfg.Server)
	app := fiber.New()
	routes.SetupRoutes(app, h, m.Handler(), cfg.Server)
	return app
}

func get(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

func TestGetOrderBookAPI(t *testing.T) {
	app := setupTestServer(t, nil)

	resp := get(t, app, "/api/v1/orderbook/AAPL?depth=10")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got: %d", resp.StatusCode)
	}

	var result models.OrderBookResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if result.Market != "AAPL" {
		t.Errorf("Expected market AAPL, got: %s", result.Market)
	}
	if result.Sequence != 6 {
		t.Errorf("Expected sequence 6, got: %d", result.Sequence)
	}
	// edge case: depth above the configured maximum is capped
	if len(result.Bids) != 2 || len(result.Asks) != 2 {
		t.Fatalf("Expected 2 levels per side, got: %d bids %d asks", len(result.Bids), len(result.Asks))
	}
	if result.Bids[0].Price != 15050 || result.Asks[0].Price != 15060 {
		t.Errorf("Expected top of book 15050/15060, got: %d/%d", result.Bids[0].Price, result.Asks[0].Price)
	}
	if result.Asks[0].Quantity != 40 || result.Asks[0].DisplayPrice != "150.6" {
		t.Errorf("Expected 40 lots at 150.6 after the cross, got: %+v", result.Asks[0])
	}
}

func TestGetOrderBookDepthFallback(t *testing.T) {
	app := setupTestServer(t, func(s *config.ServerConfig) { s.MaxDepth = 100; s.DefaultDepth = 1 })

	for _, q := range []string{"", "?depth=abc", "?depth=-3"} {
		var result models.OrderBookResponse
		resp := get(t, app, "/api/v1/orderbook/AAPL"+q)
		json.NewDecoder(resp.Body).Decode(&result)
		if len(result.Bids) != 1 || len(result.Asks) != 1 {
			t.Errorf("Expected default depth 1 for %q, got: %d bids %d asks", q, len(result.Bids), len(result.Asks))
		}
	}
}

func TestGetOrderBookUnknownMarket(t *testing.T) {
	app := setupTestServer(t, nil)

	resp := get(t, app, "/api/v1/orderbook/TSLA")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got: %d", resp.StatusCode)
	}
}

func TestGetOrderStatusAPI(t *testing.T) {
	app := setupTestServer(t, nil)

	resp := get(t, app, "/api/v1/markets/AAPL/orders/3")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got: %d", resp.StatusCode)
	}
	var result models.OrderStatusResponse
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Status != "PARTIAL_FILL" || result.FilledQuantity != 30 || result.RemainingQuantity != 40 {
		t.Errorf("Unexpected order status: %+v", result)
	}
	if result.Side != "ASK" || result.Sequence != 3 {
		t.Errorf("Unexpected side or sequence: %+v", result)
	}

	// edge case: a fully filled order no longer rests
	resp = get(t, app, "/api/v1/markets/AAPL/orders/6")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404 for filled order, got: %d", resp.StatusCode)
	}

	resp = get(t, app, "/api/v1/markets/AAPL/orders/abc")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad id, got: %d", resp.StatusCode)
	}
}

func TestListMarketsAPI(t *testing.T) {
	app := setupTestServer(t, nil)

	resp := get(t, app, "/api/v1/markets")
	var result models.MarketsResponse
	json.NewDecoder(resp.Body).Decode(&result)

	if len(result.Markets) != 1 {
		t.Fatalf("Expected 1 market, got: %d", len(result.Markets))
	}
	m := result.Markets[0]
	if m.RestingOrders != 5 || m.TickSize != "0.01" {
		t.Errorf("Unexpected market info: %+v", m)
	}
	if m.BestBid == nil || *m.BestBid != 15050 || m.BestAsk == nil || *m.BestAsk != 15060 {
		t.Errorf("Unexpected best prices: %v %v", m.BestBid, m.BestAsk)
	}
}

func TestHealthCheckAPI(t *testing.T) {
	app := setupTestServer(t, nil)

	resp := get(t, app, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got: %d", resp.StatusCode)
	}
	var result models.HealthResponse
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Status != "healthy" || result.Markets != 1 || result.RestingOrders != 5 {
		t.Errorf("Unexpected health response: %+v", result)
	}
}

func TestMetricsAPI(t *testing.T) {
	app := setupTestServer(t, nil)

	resp := get(t, app, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got: %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `test_orders_received_total{market="AAPL"} 6`) {
		t.Errorf("Expected orders_received_total in metrics output, got:\n%s", body)
	}
}

func TestServiceUnavailableMaintenanceMode(t *testing.T) {
	app := setupTestServer(t, func(s *config.ServerConfig) { s.MaintenanceMode = true })

	resp := get(t, app, "/api/v1/markets")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got: %d", resp.StatusCode)
	}

	// edge case: health check stays available during maintenance
	resp = get(t, app, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200 for health check during maintenance, got: %d", resp.StatusCode)
	}
}

func TestRateLimiting(t *testing.T) {
	app := setupTestServer(t, func(s *config.ServerConfig) {
		s.RateLimitDisabled = false
		s.RateLimitMax = 5
		s.RateLimitWindow = time.Hour
	})

	limited := 0
	for i := 0; i < 8; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/markets", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			limited++
		} else if resp.Header.Get("X-RateLimit-Limit") != "5" {
			t.Errorf("Expected X-RateLimit-Limit 5, got: %q", resp.Header.Get("X-RateLimit-Limit"))
		}
	}
	if limited != 3 {
		t.Errorf("Expected 3 rate limited requests, got: %d", limited)
	}

	// edge case: health is outside the rate limited group
	for i := 0; i < 10; i++ {
		if resp := get(t, app, "/health"); resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected health to bypass rate limit, got: %d", resp.StatusCode)
		}
	}
}
