package engine

import (
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// OrderUpdate is the display-facing event published whenever a trade is
// placed, squared off, or fails.
type OrderUpdate struct {
	Status     string          `json:"status"`
	Instrument string          `json:"instrumentToken"`
	Price      decimal.Decimal `json:"price"`
	LegType    string          `json:"type"`
	Reason     string          `json:"reason,omitempty"`
}

// Notifier fans order updates out to subscribers over channels. Slow
// subscribers are skipped, never blocked on; the risk path must not stall on
// a dashboard.
type Notifier struct {
	mu      sync.RWMutex
	subs    []chan OrderUpdate
	dropped uint64
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe returns a channel receiving future order updates.
func (n *Notifier) Subscribe(buf int) <-chan OrderUpdate {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan OrderUpdate, buf)
	n.mu.Lock()
	n.subs = append(n.subs, ch)
	n.mu.Unlock()
	return ch
}

func (n *Notifier) Publish(update OrderUpdate) {
	if n == nil {
		return
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs {
		select {
		case ch <- update:
		default:
			atomic.AddUint64(&n.dropped, 1)
		}
	}
}

// Dropped reports how many updates were discarded due to slow subscribers.
func (n *Notifier) Dropped() uint64 {
	return atomic.LoadUint64(&n.dropped)
}
