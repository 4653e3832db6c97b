package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"banknifty/internal/models"
	"banknifty/internal/repository"
)

type countRepo struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countRepo) GetExecutionCount(ctx context.Context, date string, tradeType string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[date+"|"+tradeType], nil
}

func (r *countRepo) IncrementExecutionCount(ctx context.Context, date string, tradeType string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := date + "|" + tradeType
	r.counts[key]++
	return r.counts[key], nil
}

func (r *countRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }
func (r *countRepo) CreateTrade(ctx context.Context, item *models.Trade) error { return nil }
func (r *countRepo) GetTradeByID(ctx context.Context, id uint64) (*models.Trade, error) {
	return nil, nil
}
func (r *countRepo) GetTradeByOrderID(ctx context.Context, orderID string) (*models.Trade, error) {
	return nil, nil
}
func (r *countRepo) ListOpenTrades(ctx context.Context) ([]models.Trade, error) { return nil, nil }
func (r *countRepo) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	return nil, nil
}
func (r *countRepo) CountOpenTrades(ctx context.Context) (int64, error) { return 0, nil }
func (r *countRepo) HasActiveTrade(ctx context.Context, tradeType string) (bool, error) {
	return false, nil
}
func (r *countRepo) CloseTrade(ctx context.Context, id uint64, params repository.CloseParams) (bool, error) {
	return false, nil
}
func (r *countRepo) MarkTradeOpen(ctx context.Context, id uint64, avgPrice decimal.Decimal, filledQty int) error {
	return nil
}
func (r *countRepo) MarkTradeFailed(ctx context.Context, id uint64, reason string) error { return nil }
func (r *countRepo) MarkTradePending(ctx context.Context, id uint64) error               { return nil }
func (r *countRepo) DailyPnL(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (r *countRepo) TotalPnL(ctx context.Context) (repository.PnLSummary, error) {
	return repository.PnLSummary{}, nil
}
func (r *countRepo) InsertOrderEvent(ctx context.Context, item *models.OrderEvent) error { return nil }

var _ repository.Repository = (*countRepo)(nil)

func TestTodayUsesExchangeLocalDay(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	tracker := New(&countRepo{counts: map[string]int{}}, loc)

	want := time.Now().In(loc).Format("2006-01-02")
	if got := tracker.Today(); got != want {
		t.Fatalf("Today() = %s, want %s", got, want)
	}
}

func TestNilLocationDefaultsToUTC(t *testing.T) {
	tracker := New(&countRepo{counts: map[string]int{}}, nil)
	want := time.Now().UTC().Format("2006-01-02")
	if got := tracker.Today(); got != want {
		t.Fatalf("Today() = %s, want %s", got, want)
	}
}

func TestConcurrentIncrementsNeverLoseUpdates(t *testing.T) {
	repo := &countRepo{counts: map[string]int{}}
	tracker := New(repo, time.UTC)

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tracker.Increment(context.Background(), models.TradeTypeCall); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	count, err := tracker.Count(context.Background(), models.TradeTypeCall)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != workers {
		t.Fatalf("count = %d, want %d", count, workers)
	}

	// The other leg's quota is independent.
	other, _ := tracker.Count(context.Background(), models.TradeTypePut)
	if other != 0 {
		t.Fatalf("put count = %d, want 0", other)
	}
}
