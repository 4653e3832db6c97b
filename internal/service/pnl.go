package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"banknifty/internal/models"
	"banknifty/internal/repository"
)

// TradeService answers the read-side queries: trade history and realized PnL
// aggregates. It never mutates trades.
type TradeService struct {
	Repo     repository.Repository
	Location *time.Location
	Logger   *zap.Logger
}

// History lists trades newest first, optionally filtered by status.
func (s *TradeService) History(ctx context.Context, status string, limit, offset int) ([]models.Trade, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.Repo.ListTrades(ctx, repository.ListTradesParams{
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
}

// DailyPnL sums realized PnL over trades closed since exchange-local
// midnight. The trading day and the calendar day coincide for an intraday
// book, so no session table is needed.
func (s *TradeService) DailyPnL(ctx context.Context) (decimal.Decimal, error) {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return s.Repo.DailyPnL(ctx, midnight.UTC())
}

// TotalPnL aggregates profit, loss, and net over all closed trades.
func (s *TradeService) TotalPnL(ctx context.Context) (repository.PnLSummary, error) {
	return s.Repo.TotalPnL(ctx)
}
