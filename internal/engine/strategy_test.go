package engine

import (
	"testing"

	"github.com/shopspring/decimal"

	"banknifty/internal/models"
)

func TestEntryStrikeRoundsToNearestHundred(t *testing.T) {
	cases := []struct {
		name      string
		price     string
		pct       float64
		tradeType string
		want      int
	}{
		{"call shifts up", "50000", 1.0, models.TradeTypeCall, 50500},
		{"put shifts down", "50000", 1.0, models.TradeTypePut, 49500},
		{"call rounds down to nearest", "50010", 1.0, models.TradeTypeCall, 50500},
		{"call rounds up to nearest", "50060", 1.0, models.TradeTypeCall, 50600},
		{"put nearest hundred", "49980", 1.0, models.TradeTypePut, 49500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			price, err := decimal.NewFromString(tc.price)
			if err != nil {
				t.Fatalf("parse price: %v", err)
			}
			got := entryStrike(price, tc.pct, tc.tradeType)
			if got != tc.want {
				t.Fatalf("entryStrike(%s, %.1f, %s) = %d, want %d", tc.price, tc.pct, tc.tradeType, got, tc.want)
			}
		})
	}
}

func TestEntryStopLoss(t *testing.T) {
	price := decimal.NewFromInt(50000)

	call := entryStopLoss(price, 1.3, models.TradeTypeCall)
	if call.String() != "50650" {
		t.Fatalf("call stop loss = %s, want 50650", call)
	}
	put := entryStopLoss(price, 1.3, models.TradeTypePut)
	if put.String() != "49350" {
		t.Fatalf("put stop loss = %s, want 49350", put)
	}
}

func TestReentryStrikeRoundsAwayFromPrice(t *testing.T) {
	price, _ := decimal.NewFromString("50010")

	// 50010 * 1.01 = 50510.1 -> ceil to 50600 for a call.
	call := reentryStrike(price, 1.0, models.TradeTypeCall)
	if call != 50600 {
		t.Fatalf("call re-entry strike = %d, want 50600", call)
	}
	// 50010 * 0.99 = 49509.9 -> floor to 49500 for a put.
	put := reentryStrike(price, 1.0, models.TradeTypePut)
	if put != 49500 {
		t.Fatalf("put re-entry strike = %d, want 49500", put)
	}
}

func TestReentryStopLossRoundsToWholePoint(t *testing.T) {
	price, _ := decimal.NewFromString("50010.50")

	// 50010.50 * 1.013 = 50660.6365 -> ceil for a call.
	call := reentryStopLoss(price, 1.3, models.TradeTypeCall)
	if call.String() != "50661" {
		t.Fatalf("call re-entry stop = %s, want 50661", call)
	}
	// 50010.50 * 0.987 = 49360.3635 -> floor for a put.
	put := reentryStopLoss(price, 1.3, models.TradeTypePut)
	if put.String() != "49360" {
		t.Fatalf("put re-entry stop = %s, want 49360", put)
	}
}

func TestInstrumentSymbol(t *testing.T) {
	if got := instrumentSymbol(50500, models.TradeTypeCall); got != "BANKNIFTY50500CE" {
		t.Fatalf("call symbol = %q", got)
	}
	if got := instrumentSymbol(49500, models.TradeTypePut); got != "BANKNIFTY49500PE" {
		t.Fatalf("put symbol = %q", got)
	}
}
