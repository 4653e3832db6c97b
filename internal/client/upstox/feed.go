package upstox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ErrFeedUnavailable signals that the feed gave up reconnecting. Consumers
// must stop evaluating prices; ticks after this point would be stale.
var ErrFeedUnavailable = errors.New("market data feed unavailable")

// Tick is one normalized price event from the streaming feed.
type Tick struct {
	Instrument string
	Price      decimal.Decimal
	Change     decimal.Decimal
	At         time.Time
}

type FeedOptions struct {
	URL                  string
	AccessToken          string
	InstrumentKey        string
	ReconnectBase        time.Duration
	ReconnectMax         time.Duration
	MaxReconnectAttempts int
	Logger               *zap.Logger
}

// Feed maintains the persistent market-data stream and republishes normalized
// ticks on the channel passed to Run. It owns reconnection; a single decode
// failure never tears down the session.
type Feed struct {
	opts FeedOptions

	mu   sync.RWMutex
	last *Tick
}

func NewFeed(opts FeedOptions) *Feed {
	if opts.URL == "" {
		opts.URL = "wss://api.upstox.com/v2/feed/market-data-feed"
	}
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = 1 * time.Second
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30 * time.Second
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 5
	}
	return &Feed{opts: opts}
}

// LastTick returns the most recent tick, so a late attacher (the dashboard)
// can render current state without waiting for the next frame. Read-only
// cache; not part of the risk path.
func (f *Feed) LastTick() *Tick {
	if f == nil {
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.last == nil {
		return nil
	}
	tick := *f.last
	return &tick
}

type subscribeRequest struct {
	GUID   string        `json:"guid"`
	Method string        `json:"method"`
	Data   subscribeData `json:"data"`
}

type subscribeData struct {
	Mode           string   `json:"mode"`
	InstrumentKeys []string `json:"instrumentKeys"`
}

// Run connects, subscribes, and pushes ticks onto out until ctx is canceled
// or reconnection is exhausted. It closes out on return so consumers observe
// end-of-stream instead of blocking forever.
func (f *Feed) Run(ctx context.Context, out chan<- Tick) error {
	if f == nil {
		return fmt.Errorf("feed is nil")
	}
	defer close(out)

	attempt := 0
	backoff := f.opts.ReconnectBase
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := f.dial(ctx)
		if err != nil {
			attempt++
			if f.opts.Logger != nil {
				f.opts.Logger.Warn("feed connect failed",
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
			}
			if attempt >= f.opts.MaxReconnectAttempts {
				return ErrFeedUnavailable
			}
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, f.opts.ReconnectMax)
			continue
		}

		if err := f.subscribe(ctx, conn); err != nil {
			_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
			attempt++
			if f.opts.Logger != nil {
				f.opts.Logger.Warn("feed subscribe failed", zap.Error(err))
			}
			if attempt >= f.opts.MaxReconnectAttempts {
				return ErrFeedUnavailable
			}
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, f.opts.ReconnectMax)
			continue
		}

		if f.opts.Logger != nil {
			f.opts.Logger.Info("feed connected", zap.String("instrument", f.opts.InstrumentKey))
		}
		attempt = 0
		backoff = f.opts.ReconnectBase

		err = f.consume(ctx, conn, out)
		_ = conn.Close(websocket.StatusNormalClosure, "reconnect")
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return ctx.Err()
		}
		if f.opts.Logger != nil {
			f.opts.Logger.Warn("feed session ended", zap.Error(err))
		}
		attempt++
		if attempt >= f.opts.MaxReconnectAttempts {
			return ErrFeedUnavailable
		}
		if err := sleepCtx(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, f.opts.ReconnectMax)
	}
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+f.opts.AccessToken)
	header.Set("Api-Version", "2.0")
	conn, _, err := websocket.Dial(ctx, f.opts.URL, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return conn, nil
}

func (f *Feed) subscribe(ctx context.Context, conn *websocket.Conn) error {
	req := subscribeRequest{
		GUID:   strconv.FormatInt(time.Now().UnixNano(), 10),
		Method: "sub",
		Data: subscribeData{
			Mode:           "ltpc",
			InstrumentKeys: []string{f.opts.InstrumentKey},
		},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageBinary, payload)
}

func (f *Feed) consume(ctx context.Context, conn *websocket.Conn, out chan<- Tick) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		// Control acknowledgments arrive as JSON on the same stream; probe
		// the format instead of trusting frame length.
		if isControlFrame(data) {
			if f.opts.Logger != nil {
				f.opts.Logger.Debug("feed control message", zap.ByteString("payload", data))
			}
			continue
		}

		tick, ok, err := decodeTick(data)
		if err != nil {
			// Malformed frame: drop it, keep the session.
			if f.opts.Logger != nil {
				f.opts.Logger.Warn("feed frame decode failed",
					zap.Int("bytes", len(data)),
					zap.Error(err),
				)
			}
			continue
		}
		if !ok {
			continue
		}

		f.mu.Lock()
		f.last = &tick
		f.mu.Unlock()

		select {
		case out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// isControlFrame reports whether the frame looks like a JSON control message
// rather than a binary tick.
func isControlFrame(data []byte) bool {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{', '[':
			return true
		default:
			return false
		}
	}
	return false
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
