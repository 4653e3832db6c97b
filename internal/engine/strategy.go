package engine

import (
	"strconv"

	"github.com/shopspring/decimal"

	"banknifty/internal/models"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// entryFactor builds the multiplier price*(1 ± pct/100); CALL shifts up,
// PUT shifts down.
func entryFactor(pct float64, tradeType string) decimal.Decimal {
	shift := decimal.NewFromFloat(pct).Div(hundred)
	if tradeType == models.TradeTypePut {
		return one.Sub(shift)
	}
	return one.Add(shift)
}

// entryStrike computes the day's entry strike: the shifted price rounded to
// the nearest 100, the index option strike interval.
func entryStrike(price decimal.Decimal, pct float64, tradeType string) int {
	shifted := price.Mul(entryFactor(pct, tradeType))
	return int(shifted.Div(hundred).Round(0).Mul(hundred).IntPart())
}

// entryStopLoss is the underlying level at which the leg is abandoned.
func entryStopLoss(price decimal.Decimal, pct float64, tradeType string) decimal.Decimal {
	return price.Mul(entryFactor(pct, tradeType)).Round(2)
}

// reentryStrike rounds away from the current price: CALL strikes round up to
// the next 100, PUT strikes down, so a re-entry never lands closer to spot
// than the shift percentage implies.
func reentryStrike(price decimal.Decimal, pct float64, tradeType string) int {
	shifted := price.Mul(entryFactor(pct, tradeType))
	if tradeType == models.TradeTypePut {
		return int(shifted.Div(hundred).Floor().Mul(hundred).IntPart())
	}
	return int(shifted.Div(hundred).Ceil().Mul(hundred).IntPart())
}

// reentryStopLoss rounds the fresh stop to a whole index point, again away
// from the current price per leg direction.
func reentryStopLoss(price decimal.Decimal, pct float64, tradeType string) decimal.Decimal {
	shifted := price.Mul(entryFactor(pct, tradeType))
	if tradeType == models.TradeTypePut {
		return shifted.Floor()
	}
	return shifted.Ceil()
}

// instrumentType maps a leg type onto the exchange option type suffix.
func instrumentType(tradeType string) string {
	if tradeType == models.TradeTypePut {
		return "PE"
	}
	return "CE"
}

// instrumentSymbol is the display symbol for an index option leg.
func instrumentSymbol(strike int, tradeType string) string {
	return "BANKNIFTY" + strconv.Itoa(strike) + instrumentType(tradeType)
}
