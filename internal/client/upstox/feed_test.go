package upstox

import (
	"math"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

func buildLtpc(ltp float64, ltt int64, cp float64) []byte {
	var out []byte
	out = protowire.AppendTag(out, ltpcLtpField, protowire.Fixed64Type)
	out = protowire.AppendFixed64(out, math.Float64bits(ltp))
	if ltt != 0 {
		out = protowire.AppendTag(out, ltpcLttField, protowire.VarintType)
		out = protowire.AppendVarint(out, uint64(ltt))
	}
	if cp != 0 {
		out = protowire.AppendTag(out, ltpcCpField, protowire.Fixed64Type)
		out = protowire.AppendFixed64(out, math.Float64bits(cp))
	}
	return out
}

func buildFrame(instrument string, ltp float64, ltt int64, cp float64) []byte {
	feed := protowire.AppendTag(nil, feedLtpcField, protowire.BytesType)
	feed = protowire.AppendBytes(feed, buildLtpc(ltp, ltt, cp))

	entry := protowire.AppendTag(nil, mapEntryKeyField, protowire.BytesType)
	entry = protowire.AppendBytes(entry, []byte(instrument))
	entry = protowire.AppendTag(entry, mapEntryValueField, protowire.BytesType)
	entry = protowire.AppendBytes(entry, feed)

	frame := protowire.AppendTag(nil, feedResponseFeedsField, protowire.BytesType)
	frame = protowire.AppendBytes(frame, entry)
	return frame
}

func TestDecodeTick(t *testing.T) {
	at := time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC)
	frame := buildFrame("NSE_INDEX|Nifty Bank", 50123.45, at.UnixMilli(), 50000)

	tick, ok, err := decodeTick(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ok {
		t.Fatalf("frame carried a quote but ok = false")
	}
	if tick.Instrument != "NSE_INDEX|Nifty Bank" {
		t.Fatalf("instrument = %q", tick.Instrument)
	}
	if tick.Price.String() != "50123.45" {
		t.Fatalf("price = %s, want 50123.45", tick.Price)
	}
	if tick.Change.String() != "123.45" {
		t.Fatalf("change = %s, want 123.45", tick.Change)
	}
	if !tick.At.Equal(at) {
		t.Fatalf("at = %v, want %v", tick.At, at)
	}
}

func TestDecodeTickWithoutQuote(t *testing.T) {
	// A frame with a feeds entry but no ltpc branch is valid and empty.
	entry := protowire.AppendTag(nil, mapEntryKeyField, protowire.BytesType)
	entry = protowire.AppendBytes(entry, []byte("NSE_INDEX|Nifty Bank"))
	frame := protowire.AppendTag(nil, feedResponseFeedsField, protowire.BytesType)
	frame = protowire.AppendBytes(frame, entry)

	_, ok, err := decodeTick(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ok {
		t.Fatalf("empty feed reported a quote")
	}
}

func TestDecodeTickMalformed(t *testing.T) {
	frame := buildFrame("NSE_INDEX|Nifty Bank", 50000, 0, 0)
	if _, _, err := decodeTick(frame[:len(frame)-3]); err == nil {
		t.Fatalf("truncated frame decoded without error")
	}
}

func TestIsControlFrame(t *testing.T) {
	cases := []struct {
		data []byte
		want bool
	}{
		{[]byte(`{"success":true}`), true},
		{[]byte("  \n\t[1,2]"), true},
		{buildFrame("x", 1, 0, 0), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := isControlFrame(tc.data); got != tc.want {
			t.Fatalf("isControlFrame(%q) = %v, want %v", tc.data, got, tc.want)
		}
	}
}

func TestNextBackoffDoublesAndCaps(t *testing.T) {
	max := 30 * time.Second
	backoff := time.Second
	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, expect := range want {
		backoff = nextBackoff(backoff, max)
		if backoff != expect {
			t.Fatalf("step %d: backoff = %v, want %v", i, backoff, expect)
		}
	}
}

func TestFeedOptionDefaults(t *testing.T) {
	feed := NewFeed(FeedOptions{})
	if feed.opts.ReconnectBase != time.Second {
		t.Fatalf("reconnect base = %v", feed.opts.ReconnectBase)
	}
	if feed.opts.ReconnectMax != 30*time.Second {
		t.Fatalf("reconnect max = %v", feed.opts.ReconnectMax)
	}
	if feed.opts.MaxReconnectAttempts != 5 {
		t.Fatalf("max reconnect attempts = %d", feed.opts.MaxReconnectAttempts)
	}
	if feed.LastTick() != nil {
		t.Fatalf("fresh feed has a last tick")
	}
}
