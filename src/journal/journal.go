package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
)

// Journal is an append-only command log per market on top of pebble.
// Keys are cmd/<market>/<20-digit seq> so an iterator over one market
// returns its commands in submission order.
type Journal struct {
	db *pebble.DB

	mu   sync.Mutex
	last map[string]uint64
}

// Open opens or creates the journal in dir. opts may be nil.
func Open(dir string, opts *pebble.Options) (*Journal, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", dir, err)
	}
	return &Journal{db: db, last: make(map[string]uint64)}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Append stores cmd under the next sequence of its market and returns the
// sequence. The write is synced before Append returns.
func (j *Journal) Append(cmd Command) (uint64, error) {
	if cmd.Market == "" || strings.Contains(cmd.Market, "/") {
		return 0, fmt.Errorf("journal: invalid market code %q", cmd.Market)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	last, ok := j.last[cmd.Market]
	if !ok {
		var err error
		if last, err = j.lastSeq(cmd.Market); err != nil {
			return 0, err
		}
	}

	cmd.Seq = last + 1
	val, err := json.Marshal(cmd)
	if err != nil {
		return 0, err
	}
	if err := j.db.Set(keyFor(cmd.Market, cmd.Seq), val, pebble.Sync); err != nil {
		return 0, fmt.Errorf("journal append %s/%d: %w", cmd.Market, cmd.Seq, err)
	}
	j.last[cmd.Market] = cmd.Seq
	return cmd.Seq, nil
}

// Replay calls fn for every command of market in sequence order. It stops at
// the first error fn returns.
func (j *Journal) Replay(market string, fn func(Command) error) error {
	lower, upper := bounds(market)
	iter, err := j.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var cmd Command
		if err := json.Unmarshal(iter.Value(), &cmd); err != nil {
			return fmt.Errorf("journal: decode %s: %w", iter.Key(), err)
		}
		if err := fn(cmd); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LastSeq returns the highest journaled sequence for market, 0 when empty.
func (j *Journal) LastSeq(market string) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if last, ok := j.last[market]; ok {
		return last, nil
	}
	return j.lastSeq(market)
}

func (j *Journal) lastSeq(market string) (uint64, error) {
	lower, upper := bounds(market)
	iter, err := j.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	seq, err := parseKey(market, iter.Key())
	if err != nil {
		return 0, err
	}
	j.last[market] = seq
	return seq, nil
}

func prefix(market string) string {
	return "cmd/" + market + "/"
}

// edge case: '0' sorts right after '/', so the upper bound covers every
// sequence of this market and nothing of a market sharing its prefix
func bounds(market string) ([]byte, []byte) {
	return []byte(prefix(market)), []byte("cmd/" + market + "0")
}

func keyFor(market string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix(market), seq))
}

func parseKey(market string, key []byte) (uint64, error) {
	rest, ok := strings.CutPrefix(string(key), prefix(market))
	if !ok {
		return 0, errors.New("journal: key outside market range")
	}
	var seq uint64
	if _, err := fmt.Sscanf(rest, "%d", &seq); err != nil {
		return 0, fmt.Errorf("journal: bad key %q: %w", key, err)
	}
	return seq, nil
}
