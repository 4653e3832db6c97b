package upstox

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"
)

// The feed's binary frames follow the broker's FeedResponse schema. Only the
// ltpc subset is decoded here; the field numbers below mirror that schema:
//
//	FeedResponse { feeds = 2 (map<string, Feed>) }
//	Feed         { ltpc = 1 }
//	LTPC         { ltp = 1 (double), ltt = 2 (int64), cp = 4 (double) }
const (
	feedResponseFeedsField = 2

	mapEntryKeyField   = 1
	mapEntryValueField = 2

	feedLtpcField = 1

	ltpcLtpField = 1
	ltpcLttField = 2
	ltpcCpField  = 4
)

type ltpc struct {
	ltp float64
	ltt int64
	cp  float64
}

// decodeTick extracts the first ltpc feed from a binary frame. ok is false
// when the frame is valid but carries no price update.
func decodeTick(data []byte) (Tick, bool, error) {
	rest := data
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return Tick{}, false, fmt.Errorf("invalid tag: %w", protowire.ParseError(n))
		}
		rest = rest[n:]

		if num == feedResponseFeedsField && typ == protowire.BytesType {
			entry, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return Tick{}, false, fmt.Errorf("invalid feeds entry: %w", protowire.ParseError(n))
			}
			rest = rest[n:]

			instrument, quote, found, err := decodeFeedEntry(entry)
			if err != nil {
				return Tick{}, false, err
			}
			if !found {
				continue
			}
			tick := Tick{
				Instrument: instrument,
				Price:      decimal.NewFromFloat(quote.ltp),
				At:         time.Now().UTC(),
			}
			if quote.cp != 0 {
				tick.Change = tick.Price.Sub(decimal.NewFromFloat(quote.cp))
			}
			if quote.ltt > 0 {
				tick.At = time.UnixMilli(quote.ltt).UTC()
			}
			return tick, true, nil
		}

		n = protowire.ConsumeFieldValue(num, typ, rest)
		if n < 0 {
			return Tick{}, false, fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(n))
		}
		rest = rest[n:]
	}
	return Tick{}, false, nil
}

// decodeFeedEntry walks one feeds map entry: key is the instrument, value the
// Feed message whose ltpc branch holds the quote.
func decodeFeedEntry(entry []byte) (string, ltpc, bool, error) {
	var instrument string
	var quote ltpc
	found := false

	rest := entry
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return "", ltpc{}, false, fmt.Errorf("invalid map entry tag: %w", protowire.ParseError(n))
		}
		rest = rest[n:]

		switch {
		case num == mapEntryKeyField && typ == protowire.BytesType:
			key, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return "", ltpc{}, false, fmt.Errorf("invalid map key: %w", protowire.ParseError(n))
			}
			rest = rest[n:]
			instrument = string(key)
		case num == mapEntryValueField && typ == protowire.BytesType:
			feed, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return "", ltpc{}, false, fmt.Errorf("invalid map value: %w", protowire.ParseError(n))
			}
			rest = rest[n:]
			q, ok, err := decodeFeed(feed)
			if err != nil {
				return "", ltpc{}, false, err
			}
			if ok {
				quote = q
				found = true
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, rest)
			if n < 0 {
				return "", ltpc{}, false, fmt.Errorf("invalid map entry field %d: %w", num, protowire.ParseError(n))
			}
			rest = rest[n:]
		}
	}
	return instrument, quote, found, nil
}

func decodeFeed(feed []byte) (ltpc, bool, error) {
	rest := feed
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return ltpc{}, false, fmt.Errorf("invalid feed tag: %w", protowire.ParseError(n))
		}
		rest = rest[n:]

		if num == feedLtpcField && typ == protowire.BytesType {
			payload, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return ltpc{}, false, fmt.Errorf("invalid ltpc payload: %w", protowire.ParseError(n))
			}
			quote, err := decodeLtpc(payload)
			if err != nil {
				return ltpc{}, false, err
			}
			return quote, true, nil
		}

		n = protowire.ConsumeFieldValue(num, typ, rest)
		if n < 0 {
			return ltpc{}, false, fmt.Errorf("invalid feed field %d: %w", num, protowire.ParseError(n))
		}
		rest = rest[n:]
	}
	return ltpc{}, false, nil
}

func decodeLtpc(payload []byte) (ltpc, error) {
	var quote ltpc
	rest := payload
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return ltpc{}, fmt.Errorf("invalid ltpc tag: %w", protowire.ParseError(n))
		}
		rest = rest[n:]

		switch {
		case num == ltpcLtpField && typ == protowire.Fixed64Type:
			bits, n := protowire.ConsumeFixed64(rest)
			if n < 0 {
				return ltpc{}, fmt.Errorf("invalid ltp: %w", protowire.ParseError(n))
			}
			rest = rest[n:]
			quote.ltp = math.Float64frombits(bits)
		case num == ltpcLttField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return ltpc{}, fmt.Errorf("invalid ltt: %w", protowire.ParseError(n))
			}
			rest = rest[n:]
			quote.ltt = int64(v)
		case num == ltpcCpField && typ == protowire.Fixed64Type:
			bits, n := protowire.ConsumeFixed64(rest)
			if n < 0 {
				return ltpc{}, fmt.Errorf("invalid cp: %w", protowire.ParseError(n))
			}
			rest = rest[n:]
			quote.cp = math.Float64frombits(bits)
		default:
			n = protowire.ConsumeFieldValue(num, typ, rest)
			if n < 0 {
				return ltpc{}, fmt.Errorf("invalid ltpc field %d: %w", num, protowire.ParseError(n))
			}
			rest = rest[n:]
		}
	}
	return quote, nil
}
