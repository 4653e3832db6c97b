package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"banknifty/internal/models"
	"banknifty/internal/repository"
)

type stubRepo struct {
	mu     sync.Mutex
	nextID uint64
	trades map[uint64]*models.Trade
	events []models.OrderEvent
}

func newStubRepo() *stubRepo {
	return &stubRepo{trades: map[uint64]*models.Trade{}}
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (s *stubRepo) CreateTrade(ctx context.Context, item *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	item.ID = s.nextID
	cp := *item
	s.trades[item.ID] = &cp
	return nil
}

func (s *stubRepo) GetTradeByID(ctx context.Context, id uint64) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.trades[id]; ok {
		cp := *item
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) GetTradeByOrderID(ctx context.Context, orderID string) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.trades {
		if item.OrderID != nil && *item.OrderID == orderID {
			cp := *item
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListOpenTrades(ctx context.Context) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Trade
	for _, item := range s.trades {
		if item.Status == models.TradeStatusOpen {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *stubRepo) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	return nil, nil
}

func (s *stubRepo) CountOpenTrades(ctx context.Context) (int64, error) {
	items, _ := s.ListOpenTrades(ctx)
	return int64(len(items)), nil
}

func (s *stubRepo) HasActiveTrade(ctx context.Context, tradeType string) (bool, error) {
	return false, nil
}

func (s *stubRepo) CloseTrade(ctx context.Context, id uint64, params repository.CloseParams) (bool, error) {
	return false, nil
}

func (s *stubRepo) MarkTradeOpen(ctx context.Context, id uint64, avgPrice decimal.Decimal, filledQty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.trades[id]; ok {
		item.Status = models.TradeStatusOpen
		item.AveragePrice = &avgPrice
		item.FilledQuantity = &filledQty
	}
	return nil
}

func (s *stubRepo) MarkTradeFailed(ctx context.Context, id uint64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.trades[id]; ok {
		item.Status = models.TradeStatusFailed
		item.ExitReason = &reason
	}
	return nil
}

func (s *stubRepo) MarkTradePending(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.trades[id]; ok {
		item.Status = models.TradeStatusPending
	}
	return nil
}

func (s *stubRepo) DailyPnL(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (s *stubRepo) TotalPnL(ctx context.Context) (repository.PnLSummary, error) {
	return repository.PnLSummary{}, nil
}

func (s *stubRepo) GetExecutionCount(ctx context.Context, date string, tradeType string) (int, error) {
	return 0, nil
}

func (s *stubRepo) IncrementExecutionCount(ctx context.Context, date string, tradeType string) (int, error) {
	return 0, nil
}

func (s *stubRepo) InsertOrderEvent(ctx context.Context, item *models.OrderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *item)
	return nil
}

var _ repository.Repository = (*stubRepo)(nil)
