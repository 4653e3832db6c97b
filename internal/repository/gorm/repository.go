package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"banknifty/internal/models"
	"banknifty/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Trades -----------------------------------------------------------------

func (s *Store) CreateTrade(ctx context.Context, item *models.Trade) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetTradeByID(ctx context.Context, id uint64) (*models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Trade
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetTradeByOrderID(ctx context.Context, orderID string) (*models.Trade, error) {
	if s == nil || s.db == nil || strings.TrimSpace(orderID) == "" {
		return nil, nil
	}
	var item models.Trade
	err := s.db.WithContext(ctx).First(&item, "order_id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListOpenTrades(ctx context.Context) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Trade
	err := s.db.WithContext(ctx).
		Where("status = ?", models.TradeStatusOpen).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Trade{})
	if status := strings.TrimSpace(params.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	limit := params.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	var items []models.Trade
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountOpenTrades(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("status = ?", models.TradeStatusOpen).
		Count(&count).Error
	return count, err
}

func (s *Store) HasActiveTrade(ctx context.Context, tradeType string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("trade_type = ?", tradeType).
		Where("status IN ?", []string{models.TradeStatusOpen, models.TradeStatusPending}).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) CloseTrade(ctx context.Context, id uint64, params repository.CloseParams) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	status := params.Status
	if status == "" {
		status = models.TradeStatusClosed
	}
	exitTime := params.ExitTime
	if exitTime.IsZero() {
		exitTime = time.Now().UTC()
	}
	// Guard on the current status so a second square-off of the same row is a
	// no-op rather than a double transition.
	res := s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("id = ?", id).
		Where("status = ?", models.TradeStatusOpen).
		Updates(map[string]any{
			"status":      status,
			"exit_time":   exitTime,
			"exit_price":  params.ExitPrice,
			"exit_reason": params.ExitReason,
			"profit_loss": params.ProfitLoss,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) MarkTradeOpen(ctx context.Context, id uint64, avgPrice decimal.Decimal, filledQty int) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          models.TradeStatusOpen,
			"average_price":   avgPrice,
			"filled_quantity": filledQty,
		}).Error
}

func (s *Store) MarkTradeFailed(ctx context.Context, id uint64, reason string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      models.TradeStatusFailed,
			"exit_reason": reason,
		}).Error
}

func (s *Store) MarkTradePending(ctx context.Context, id uint64) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("id = ?", id).
		Update("status", models.TradeStatusPending).Error
}

// --- PnL --------------------------------------------------------------------

func (s *Store) DailyPnL(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return decimal.Zero, nil
	}
	var out struct {
		Net decimal.Decimal
	}
	err := s.db.WithContext(ctx).Model(&models.Trade{}).
		Select("COALESCE(SUM(profit_loss), 0) AS net").
		Where("status = ?", models.TradeStatusClosed).
		Where("exit_time >= ?", since).
		Scan(&out).Error
	if err != nil {
		return decimal.Zero, err
	}
	return out.Net, nil
}

func (s *Store) TotalPnL(ctx context.Context) (repository.PnLSummary, error) {
	if s == nil || s.db == nil {
		return repository.PnLSummary{}, nil
	}
	var out struct {
		TotalProfit decimal.Decimal
		TotalLoss   decimal.Decimal
		NetPnL      decimal.Decimal
	}
	err := s.db.WithContext(ctx).Model(&models.Trade{}).
		Select(
			"COALESCE(SUM(CASE WHEN profit_loss > 0 THEN profit_loss ELSE 0 END), 0) AS total_profit, " +
				"COALESCE(SUM(CASE WHEN profit_loss < 0 THEN profit_loss ELSE 0 END), 0) AS total_loss, " +
				"COALESCE(SUM(profit_loss), 0) AS net_pn_l").
		Where("status = ?", models.TradeStatusClosed).
		Scan(&out).Error
	if err != nil {
		return repository.PnLSummary{}, err
	}
	return repository.PnLSummary{
		TotalProfit: out.TotalProfit,
		TotalLoss:   out.TotalLoss,
		NetPnL:      out.NetPnL,
	}, nil
}

// --- Daily execution quota --------------------------------------------------

func (s *Store) GetExecutionCount(ctx context.Context, date string, tradeType string) (int, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var item models.DailyExecutionCount
	err := s.db.WithContext(ctx).
		First(&item, "date = ? AND trade_type = ?", date, tradeType).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return item.Count, nil
}

func (s *Store) IncrementExecutionCount(ctx context.Context, date string, tradeType string) (int, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	// Find-or-create and increment in one statement. The unique index on
	// (date, trade_type) plus ON CONFLICT makes concurrent increments safe
	// without a prior existence check.
	var count int
	err := s.db.WithContext(ctx).Raw(
		`INSERT INTO daily_execution_counts (date, trade_type, count, created_at, updated_at)
		 VALUES (?, ?, 1, now(), now())
		 ON CONFLICT (date, trade_type)
		 DO UPDATE SET count = daily_execution_counts.count + 1, updated_at = now()
		 RETURNING count`,
		date, tradeType,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// --- Webhook audit ----------------------------------------------------------

func (s *Store) InsertOrderEvent(ctx context.Context, item *models.OrderEvent) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

var _ repository.Repository = (*Store)(nil)
