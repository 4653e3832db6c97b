package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"banknifty/internal/engine"
	"banknifty/internal/models"
)

func seedPending(t *testing.T, repo *stubRepo, orderID string) *models.Trade {
	t.Helper()
	trade := &models.Trade{
		OrderID:         &orderID,
		InstrumentToken: "NSE_FO|50500CE",
		TradeType:       models.TradeTypeCall,
		EntryStrike:     50500,
		EntryPrice:      decimal.NewFromInt(50000),
		StopLoss:        decimal.NewFromInt(50650),
		Quantity:        25,
		Status:          models.TradeStatusPending,
		EntryTime:       time.Now().UTC(),
		ExecutionCount:  1,
	}
	if err := repo.CreateTrade(context.Background(), trade); err != nil {
		t.Fatalf("seed trade: %v", err)
	}
	return trade
}

func TestApplyCompleteOpensTrade(t *testing.T) {
	repo := newStubRepo()
	rec := New(repo, engine.NewNotifier(), nil)
	seed := seedPending(t, repo, "ORD-1")

	payload := []byte(`{"order_id":"ORD-1","status":"complete","average_price":212.4,"filled_quantity":25}`)
	if err := rec.Apply(context.Background(), payload); err != nil {
		t.Fatalf("apply: %v", err)
	}

	trade, _ := repo.GetTradeByID(context.Background(), seed.ID)
	if trade.Status != models.TradeStatusOpen {
		t.Fatalf("status = %s, want OPEN", trade.Status)
	}
	if trade.AveragePrice == nil || trade.AveragePrice.String() != "212.4" {
		t.Fatalf("average price = %v, want 212.4", trade.AveragePrice)
	}
	if trade.FilledQuantity == nil || *trade.FilledQuantity != 25 {
		t.Fatalf("filled quantity = %v, want 25", trade.FilledQuantity)
	}
	if len(repo.events) != 1 || repo.events[0].OrderID != "ORD-1" {
		t.Fatalf("audit events = %+v", repo.events)
	}
}

func TestApplyRejectedFailsTrade(t *testing.T) {
	repo := newStubRepo()
	rec := New(repo, nil, nil)
	seed := seedPending(t, repo, "ORD-2")

	payload := []byte(`{"order_id":"ORD-2","status":"rejected","status_message":"insufficient funds"}`)
	if err := rec.Apply(context.Background(), payload); err != nil {
		t.Fatalf("apply: %v", err)
	}

	trade, _ := repo.GetTradeByID(context.Background(), seed.ID)
	if trade.Status != models.TradeStatusFailed {
		t.Fatalf("status = %s, want FAILED", trade.Status)
	}
	if trade.ExitReason == nil || *trade.ExitReason != "insufficient funds" {
		t.Fatalf("reason = %v, want insufficient funds", trade.ExitReason)
	}

	// A FAILED trade must never show up in stop-loss evaluation.
	open, _ := repo.ListOpenTrades(context.Background())
	if len(open) != 0 {
		t.Fatalf("failed trade listed as open")
	}
}

func TestApplyCancelledAfterMarketOrder(t *testing.T) {
	repo := newStubRepo()
	rec := New(repo, nil, nil)
	seed := seedPending(t, repo, "ORD-3")

	payload := []byte(`{"order_id":"ORD-3","status":"Cancelled after market order"}`)
	if err := rec.Apply(context.Background(), payload); err != nil {
		t.Fatalf("apply: %v", err)
	}
	trade, _ := repo.GetTradeByID(context.Background(), seed.ID)
	if trade.Status != models.TradeStatusFailed {
		t.Fatalf("status = %s, want FAILED", trade.Status)
	}
}

func TestApplyUnknownOrderIgnored(t *testing.T) {
	repo := newStubRepo()
	rec := New(repo, nil, nil)

	payload := []byte(`{"order_id":"NOPE","status":"complete"}`)
	if err := rec.Apply(context.Background(), payload); err != nil {
		t.Fatalf("apply for unknown order must not error: %v", err)
	}
	if len(repo.events) != 1 {
		t.Fatalf("push not audited: events = %d", len(repo.events))
	}
}

func TestApplyUnknownStatusLeavesTrade(t *testing.T) {
	repo := newStubRepo()
	rec := New(repo, nil, nil)
	seed := seedPending(t, repo, "ORD-4")

	payload := []byte(`{"order_id":"ORD-4","status":"modified"}`)
	if err := rec.Apply(context.Background(), payload); err != nil {
		t.Fatalf("apply: %v", err)
	}
	trade, _ := repo.GetTradeByID(context.Background(), seed.ID)
	if trade.Status != models.TradeStatusPending {
		t.Fatalf("status = %s, want unchanged PENDING", trade.Status)
	}
}

func TestApplyRejectsMissingOrderID(t *testing.T) {
	repo := newStubRepo()
	rec := New(repo, nil, nil)

	if err := rec.Apply(context.Background(), []byte(`{"status":"complete"}`)); err == nil {
		t.Fatalf("expected error for missing order_id")
	}
	if err := rec.Apply(context.Background(), []byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
