package engine

import (
	"github.com/google/btree"
)

type levelRef struct {
	price int64
	level handle
}

// ladder orders the price levels of one side so that the best level is always
// the minimum of the tree: ascending prices for asks, descending for bids.
type ladder struct {
	side Side
	tree *btree.BTreeG[levelRef]
}

func newLadder(side Side) *ladder {
	less := func(a, b levelRef) bool { return a.price < b.price }
	if side == SideBid {
		less = func(a, b levelRef) bool { return a.price > b.price }
	}
	return &ladder{
		side: side,
		tree: btree.NewG(32, less),
	}
}

func (l *ladder) best() (levelRef, bool) {
	return l.tree.Min()
}

func (l *ladder) get(price int64) (levelRef, bool) {
	return l.tree.Get(levelRef{price: price})
}

func (l *ladder) getOrCreateLevel(price int64, levels *arena[PriceLevel]) handle {
	if ref, ok := l.get(price); ok {
		return ref.level
	}
	h := levels.alloc(newPriceLevel(price))
	l.tree.ReplaceOrInsert(levelRef{price: price, level: h})
	return h
}

func (l *ladder) removeLevelIfEmpty(price int64, levels *arena[PriceLevel]) bool {
	ref, ok := l.get(price)
	if !ok || !levels.at(ref.level).IsEmpty() {
		return false
	}
	l.tree.Delete(ref)
	levels.release(ref.level)
	return true
}

// marketable reports whether a level at levelPrice on this ladder trades with
// an incoming order limited at price.
func (l *ladder) marketable(levelPrice, price int64) bool {
	if l.side == SideAsk {
		return levelPrice <= price
	}
	return levelPrice >= price
}

func (l *ladder) crosses(price int64, incoming Side) bool {
	if incoming != l.side.Opposite() {
		return false
	}
	best, ok := l.best()
	if !ok {
		return false
	}
	return l.marketable(best.price, price)
}

// ascend walks levels best first until fn returns false.
func (l *ladder) ascend(fn func(levelRef) bool) {
	l.tree.Ascend(fn)
}

func (l *ladder) len() int {
	return l.tree.Len()
}
