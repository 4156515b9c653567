package engine

import "testing"

func ladderPrices(l *ladder) []int64 {
	var prices []int64
	l.ascend(func(ref levelRef) bool {
		prices = append(prices, ref.price)
		return true
	})
	return prices
}

func TestLadderOrdering(t *testing.T) {
	var levels arena[PriceLevel]
	bids := newLadder(SideBid)
	asks := newLadder(SideAsk)

	for _, p := range []int64{15050, 15060, 15040} {
		bids.getOrCreateLevel(p, &levels)
		asks.getOrCreateLevel(p, &levels)
	}

	if got := ladderPrices(bids); got[0] != 15060 || got[1] != 15050 || got[2] != 15040 {
		t.Errorf("Expected bids descending, got: %v", got)
	}
	if got := ladderPrices(asks); got[0] != 15040 || got[1] != 15050 || got[2] != 15060 {
		t.Errorf("Expected asks ascending, got: %v", got)
	}

	best, ok := bids.best()
	if !ok || best.price != 15060 {
		t.Errorf("Expected best bid 15060, got: %d", best.price)
	}
	best, ok = asks.best()
	if !ok || best.price != 15040 {
		t.Errorf("Expected best ask 15040, got: %d", best.price)
	}
}

func TestLadderGetOrCreateReturnsExistingLevel(t *testing.T) {
	var levels arena[PriceLevel]
	asks := newLadder(SideAsk)

	h1 := asks.getOrCreateLevel(100, &levels)
	h2 := asks.getOrCreateLevel(100, &levels)
	if h1 != h2 {
		t.Errorf("Expected the same level handle, got: %d and %d", h1, h2)
	}
	if asks.len() != 1 || levels.len() != 1 {
		t.Errorf("Expected a single level, got: %d on ladder, %d allocated", asks.len(), levels.len())
	}
}

func TestLadderRemoveLevelIfEmpty(t *testing.T) {
	var levels arena[PriceLevel]
	var nodes arena[orderNode]
	asks := newLadder(SideAsk)

	lh := asks.getOrCreateLevel(100, &levels)
	oh := nodes.alloc(orderNode{order: Order{ID: 1, Side: SideAsk, Price: 100, Quantity: 5}, level: lh, prev: nilHandle, next: nilHandle})
	levels.at(lh).enqueue(&nodes, oh)

	if asks.removeLevelIfEmpty(100, &levels) {
		t.Fatal("Non-empty level must not be removed")
	}

	levels.at(lh).remove(&nodes, oh)
	if !asks.removeLevelIfEmpty(100, &levels) {
		t.Fatal("Empty level should be removed")
	}
	if _, ok := asks.best(); ok {
		t.Error("Ladder should be empty")
	}
	if asks.removeLevelIfEmpty(100, &levels) {
		t.Error("Removing a missing level should report false")
	}
}

func TestLadderCrosses(t *testing.T) {
	var levels arena[PriceLevel]
	asks := newLadder(SideAsk)
	bids := newLadder(SideBid)

	if asks.crosses(100, SideBid) {
		t.Error("Empty ladder never crosses")
	}

	asks.getOrCreateLevel(100, &levels)
	bids.getOrCreateLevel(90, &levels)

	cases := []struct {
		name     string
		l        *ladder
		price    int64
		incoming Side
		want     bool
	}{
		{"bid above best ask", asks, 101, SideBid, true},
		{"bid at best ask", asks, 100, SideBid, true},
		{"bid below best ask", asks, 99, SideBid, false},
		{"market bid", asks, MarketBidPrice, SideBid, true},
		{"same side never crosses", asks, 1000, SideAsk, false},
		{"ask below best bid", bids, 89, SideAsk, true},
		{"ask at best bid", bids, 90, SideAsk, true},
		{"ask above best bid", bids, 91, SideAsk, false},
		{"market ask", bids, MarketAskPrice, SideAsk, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.l.crosses(tc.price, tc.incoming); got != tc.want {
				t.Errorf("Expected crosses=%v, got: %v", tc.want, got)
			}
		})
	}
}
