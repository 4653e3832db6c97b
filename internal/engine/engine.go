package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"banknifty/internal/client/upstox"
	"banknifty/internal/config"
	"banknifty/internal/models"
	"banknifty/internal/quota"
	"banknifty/internal/repository"
)

var (
	// ErrTradingInProgress is returned when a start request arrives while a
	// session is already live or open positions remain from a previous one.
	ErrTradingInProgress = errors.New("trading already in progress")

	// ErrNoOpenPositions is returned by a square-off request that found
	// nothing to close. No broker call is made in that case.
	ErrNoOpenPositions = errors.New("no open positions")

	// ErrQuotaExhausted is returned when the daily execution cap for a leg
	// type has been reached.
	ErrQuotaExhausted = errors.New("daily execution quota exhausted")
)

// Broker is the slice of the trading API the engine needs. *upstox.Client
// satisfies it.
type Broker interface {
	LastTradedPrice(ctx context.Context) (decimal.Decimal, error)
	ResolveInstrument(ctx context.Context, strike int, instrumentType string) (string, error)
	PlaceMarketOrder(ctx context.Context, instrumentToken string, quantity int) (string, error)
	SquareOff(ctx context.Context, instrumentToken string) error
	CancelAllOrders(ctx context.Context) error
}

// Settings overrides the configured strategy parameters for one session.
// Nil fields keep the configured value.
type Settings struct {
	CallEntryPercent    *float64 `json:"callEntryPercent"`
	PutEntryPercent     *float64 `json:"putEntryPercent"`
	CallStopLossPercent *float64 `json:"callStopLossPercent"`
	PutStopLossPercent  *float64 `json:"putStopLossPercent"`
	Quantity            *int     `json:"quantity"`
}

// Status is a point-in-time snapshot for the status endpoint.
type Status struct {
	IsTrading  bool            `json:"isTrading"`
	OpenTrades int64           `json:"openTrades"`
	LastPrice  decimal.Decimal `json:"lastPrice"`
}

// Engine is the risk controller. It consumes the tick stream, watches every
// open trade against its stop level, squares breached legs off, and re-enters
// while the daily quota allows.
type Engine struct {
	cfg      config.StrategyConfig
	repo     repository.Repository
	broker   Broker
	quota    *quota.Tracker
	notifier *Notifier
	log      *zap.Logger

	mu        sync.Mutex
	trading   bool
	lastPrice decimal.Decimal
}

func New(cfg config.StrategyConfig, repo repository.Repository, broker Broker, tracker *quota.Tracker, notifier *Notifier, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewNotifier()
	}
	return &Engine{
		cfg:      cfg,
		repo:     repo,
		broker:   broker,
		quota:    tracker,
		notifier: notifier,
		log:      log,
	}
}

// Run is the evaluation loop. It consumes ticks until the channel closes or
// ctx is canceled; the feed closes the channel when it gives up reconnecting,
// so a dead feed stops stop-loss evaluation instead of freezing it on a stale
// price. Ticks are processed one at a time; all breached trades within a tick
// are squared off concurrently, and the loop does not advance until every
// square-off for that tick has finished.
func (e *Engine) Run(ctx context.Context, ticks <-chan upstox.Tick) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick, ok := <-ticks:
			if !ok {
				e.log.Warn("tick stream closed, stop-loss evaluation stopped")
				return nil
			}
			e.handleTick(ctx, tick)
		}
	}
}

func (e *Engine) handleTick(ctx context.Context, tick upstox.Tick) {
	e.mu.Lock()
	e.lastPrice = tick.Price
	e.mu.Unlock()

	trades, err := e.repo.ListOpenTrades(ctx)
	if err != nil {
		e.log.Error("list open trades failed", zap.Error(err))
		return
	}
	if len(trades) == 0 {
		return
	}

	var wg sync.WaitGroup
	for i := range trades {
		trade := trades[i]
		if !breached(&trade, tick.Price) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.squareOffTrade(ctx, &trade, tick.Price, models.ExitReasonStopLoss); err != nil {
				e.log.Error("stop-loss square-off failed",
					zap.Uint64("trade_id", trade.ID),
					zap.String("trade_type", trade.TradeType),
					zap.Error(err),
				)
				return
			}
			if err := e.maybeReenter(ctx, &trade, tick.Price); err != nil {
				if errors.Is(err, ErrQuotaExhausted) {
					e.log.Info("re-entry skipped, quota exhausted",
						zap.String("trade_type", trade.TradeType))
					return
				}
				e.log.Error("re-entry failed",
					zap.String("trade_type", trade.TradeType),
					zap.Error(err),
				)
			}
		}()
	}
	wg.Wait()
}

// breached reports whether the underlying price has crossed the trade's stop
// level. CALL legs stop when the index rises to the level, PUT legs when it
// falls to it.
func breached(trade *models.Trade, price decimal.Decimal) bool {
	if trade.TradeType == models.TradeTypePut {
		return price.LessThanOrEqual(trade.StopLoss)
	}
	return price.GreaterThanOrEqual(trade.StopLoss)
}

// squareOffTrade closes one leg at the broker and stamps the row terminal.
// The status-guarded update makes a second square-off of the same trade a
// no-op, so duplicate breach signals cannot double-close.
func (e *Engine) squareOffTrade(ctx context.Context, trade *models.Trade, price decimal.Decimal, reason string) error {
	if err := e.broker.SquareOff(ctx, trade.InstrumentToken); err != nil {
		return fmt.Errorf("broker square off: %w", err)
	}

	pnl := price.Sub(trade.EntryPrice).
		Mul(decimal.NewFromInt(trade.Direction())).
		Mul(decimal.NewFromInt(int64(trade.Quantity))).
		Round(2)

	closed, err := e.repo.CloseTrade(ctx, trade.ID, repository.CloseParams{
		Status:     models.TradeStatusClosed,
		ExitPrice:  price,
		ExitReason: reason,
		ExitTime:   time.Now().UTC(),
		ProfitLoss: pnl,
	})
	if err != nil {
		return fmt.Errorf("close trade: %w", err)
	}
	if !closed {
		return nil
	}

	e.log.Info("trade squared off",
		zap.Uint64("trade_id", trade.ID),
		zap.String("trade_type", trade.TradeType),
		zap.String("reason", reason),
		zap.String("exit_price", price.String()),
		zap.String("pnl", pnl.String()),
	)
	e.notifier.Publish(OrderUpdate{
		Status:     "SQUARED_OFF",
		Instrument: trade.InstrumentToken,
		Price:      price,
		LegType:    trade.TradeType,
		Reason:     reason,
	})
	return nil
}

// maybeReenter opens a replacement leg after a stop-loss exit, with the
// strike and stop pushed away from the current price. The quota is only
// incremented once the broker accepted the order, so a failed placement does
// not burn an execution.
func (e *Engine) maybeReenter(ctx context.Context, parent *models.Trade, price decimal.Decimal) error {
	count, err := e.quota.Count(ctx, parent.TradeType)
	if err != nil {
		return fmt.Errorf("read execution count: %w", err)
	}
	if count >= e.cfg.MaxExecutionsPerDay {
		return ErrQuotaExhausted
	}

	strike := reentryStrike(price, e.cfg.ReentryEntryPercent, parent.TradeType)
	stop := reentryStopLoss(price, e.cfg.ReentryStopPercent, parent.TradeType)

	token, err := e.broker.ResolveInstrument(ctx, strike, instrumentType(parent.TradeType))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", instrumentSymbol(strike, parent.TradeType), err)
	}
	orderID, err := e.broker.PlaceMarketOrder(ctx, token, parent.Quantity)
	if err != nil {
		return fmt.Errorf("place re-entry order: %w", err)
	}

	newCount, err := e.quota.Increment(ctx, parent.TradeType)
	if err != nil {
		return fmt.Errorf("increment execution count: %w", err)
	}

	child := &models.Trade{
		OrderID:         &orderID,
		InstrumentToken: token,
		TradeType:       parent.TradeType,
		EntryStrike:     strike,
		EntryPrice:      price,
		StopLoss:        stop,
		Quantity:        parent.Quantity,
		Status:          models.TradeStatusPending,
		EntryTime:       time.Now().UTC(),
		ExecutionCount:  newCount,
		ParentTradeID:   &parent.ID,
	}
	if err := e.repo.CreateTrade(ctx, child); err != nil {
		return fmt.Errorf("record re-entry trade: %w", err)
	}

	e.log.Info("re-entered after stop-loss",
		zap.Uint64("parent_trade_id", parent.ID),
		zap.Uint64("trade_id", child.ID),
		zap.String("trade_type", child.TradeType),
		zap.Int("strike", strike),
		zap.String("stop_loss", stop.String()),
		zap.Int("execution", newCount),
	)
	e.notifier.Publish(OrderUpdate{
		Status:     "REENTRY_PLACED",
		Instrument: token,
		Price:      price,
		LegType:    child.TradeType,
	})
	return nil
}

// StartTradingDay is the scheduled session entry. A session already in
// progress is not an error here; the schedule just yields to it.
func (e *Engine) StartTradingDay(ctx context.Context) {
	if err := e.StartTradingWithSettings(ctx, Settings{}); err != nil {
		if errors.Is(err, ErrTradingInProgress) {
			e.log.Info("scheduled start skipped, session already active")
			return
		}
		e.log.Error("scheduled session start failed", zap.Error(err))
	}
}

// StartTradingWithSettings opens the day's strangle: one CALL leg above the
// current index price and one PUT leg below it. Legs fail independently; the
// session starts if at least one leg was placed.
func (e *Engine) StartTradingWithSettings(ctx context.Context, settings Settings) error {
	e.mu.Lock()
	if e.trading {
		e.mu.Unlock()
		return ErrTradingInProgress
	}
	e.trading = true
	e.mu.Unlock()

	started := false
	defer func() {
		if !started {
			e.mu.Lock()
			e.trading = false
			e.mu.Unlock()
		}
	}()

	open, err := e.repo.CountOpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("count open trades: %w", err)
	}
	if open > 0 {
		return ErrTradingInProgress
	}

	cfg := e.sessionConfig(settings)

	price, err := e.broker.LastTradedPrice(ctx)
	if err != nil {
		return fmt.Errorf("fetch index price: %w", err)
	}
	e.mu.Lock()
	e.lastPrice = price
	e.mu.Unlock()

	legs := []struct {
		tradeType   string
		entryPct    float64
		stopLossPct float64
	}{
		{models.TradeTypeCall, cfg.CallEntryPercent, cfg.CallStopLossPercent},
		{models.TradeTypePut, cfg.PutEntryPercent, cfg.PutStopLossPercent},
	}

	var placed int
	var legErrs []error
	for _, leg := range legs {
		if err := e.enterLeg(ctx, leg.tradeType, price, leg.entryPct, leg.stopLossPct, cfg.Quantity); err != nil {
			e.log.Error("leg entry failed",
				zap.String("trade_type", leg.tradeType),
				zap.Error(err),
			)
			legErrs = append(legErrs, fmt.Errorf("%s leg: %w", leg.tradeType, err))
			continue
		}
		placed++
	}
	if placed == 0 {
		return errors.Join(legErrs...)
	}

	started = true
	e.log.Info("trading session started",
		zap.String("index_price", price.String()),
		zap.Int("legs_placed", placed),
	)
	return nil
}

// enterLeg places the initial order for one leg and records it as PENDING.
// The reconciler flips it to OPEN once the fill confirmation arrives.
func (e *Engine) enterLeg(ctx context.Context, tradeType string, price decimal.Decimal, entryPct, stopLossPct float64, quantity int) error {
	active, err := e.repo.HasActiveTrade(ctx, tradeType)
	if err != nil {
		return fmt.Errorf("check active trade: %w", err)
	}
	if active {
		return ErrTradingInProgress
	}

	count, err := e.quota.Count(ctx, tradeType)
	if err != nil {
		return fmt.Errorf("read execution count: %w", err)
	}
	if count >= e.cfg.MaxExecutionsPerDay {
		return ErrQuotaExhausted
	}

	strike := entryStrike(price, entryPct, tradeType)
	stop := entryStopLoss(price, stopLossPct, tradeType)

	token, err := e.broker.ResolveInstrument(ctx, strike, instrumentType(tradeType))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", instrumentSymbol(strike, tradeType), err)
	}
	orderID, err := e.broker.PlaceMarketOrder(ctx, token, quantity)
	if err != nil {
		return fmt.Errorf("place order: %w", err)
	}

	newCount, err := e.quota.Increment(ctx, tradeType)
	if err != nil {
		return fmt.Errorf("increment execution count: %w", err)
	}

	trade := &models.Trade{
		OrderID:         &orderID,
		InstrumentToken: token,
		TradeType:       tradeType,
		EntryStrike:     strike,
		EntryPrice:      price,
		StopLoss:        stop,
		Quantity:        quantity,
		Status:          models.TradeStatusPending,
		EntryTime:       time.Now().UTC(),
		ExecutionCount:  newCount,
	}
	if err := e.repo.CreateTrade(ctx, trade); err != nil {
		return fmt.Errorf("record trade: %w", err)
	}

	e.log.Info("leg entered",
		zap.Uint64("trade_id", trade.ID),
		zap.String("trade_type", tradeType),
		zap.Int("strike", strike),
		zap.String("stop_loss", stop.String()),
		zap.String("order_id", orderID),
	)
	e.notifier.Publish(OrderUpdate{
		Status:     "ORDER_PLACED",
		Instrument: token,
		Price:      price,
		LegType:    tradeType,
	})
	return nil
}

// sessionConfig merges per-session overrides over the configured defaults.
func (e *Engine) sessionConfig(settings Settings) config.StrategyConfig {
	cfg := e.cfg
	if settings.CallEntryPercent != nil {
		cfg.CallEntryPercent = *settings.CallEntryPercent
	}
	if settings.PutEntryPercent != nil {
		cfg.PutEntryPercent = *settings.PutEntryPercent
	}
	if settings.CallStopLossPercent != nil {
		cfg.CallStopLossPercent = *settings.CallStopLossPercent
	}
	if settings.PutStopLossPercent != nil {
		cfg.PutStopLossPercent = *settings.PutStopLossPercent
	}
	if settings.Quantity != nil && *settings.Quantity > 0 {
		cfg.Quantity = *settings.Quantity
	}
	return cfg
}

// SquareOffAllPositions force-closes every open trade with the given exit
// reason. Trades fail independently; one broker rejection does not leave the
// rest open. The trading flag drops regardless, ending the session.
func (e *Engine) SquareOffAllPositions(ctx context.Context, reason string) error {
	trades, err := e.repo.ListOpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("list open trades: %w", err)
	}
	if len(trades) == 0 {
		e.mu.Lock()
		e.trading = false
		e.mu.Unlock()
		return ErrNoOpenPositions
	}

	// Unfilled entry orders would otherwise fill into a session that no longer
	// exists.
	if err := e.broker.CancelAllOrders(ctx); err != nil {
		e.log.Warn("cancel pending orders failed", zap.Error(err))
	}

	price := e.exitPrice(ctx)

	var errs []error
	for i := range trades {
		trade := trades[i]
		if err := e.squareOffTrade(ctx, &trade, price, reason); err != nil {
			e.log.Error("square-off failed",
				zap.Uint64("trade_id", trade.ID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("trade %d: %w", trade.ID, err))
		}
	}

	e.mu.Lock()
	e.trading = false
	e.mu.Unlock()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	e.log.Info("all positions squared off",
		zap.String("reason", reason),
		zap.Int("count", len(trades)),
	)
	return nil
}

// SquareOffDay is the scheduled end-of-day close. An empty book is the normal
// case on days the session never started.
func (e *Engine) SquareOffDay(ctx context.Context) {
	if err := e.SquareOffAllPositions(ctx, models.ExitReasonManualStop); err != nil {
		if errors.Is(err, ErrNoOpenPositions) {
			return
		}
		e.log.Error("scheduled square-off failed", zap.Error(err))
	}
}

// exitPrice is the index level used to value a forced exit: the last streamed
// tick if the feed is alive, a REST quote otherwise.
func (e *Engine) exitPrice(ctx context.Context) decimal.Decimal {
	e.mu.Lock()
	last := e.lastPrice
	e.mu.Unlock()
	if !last.IsZero() {
		return last
	}
	price, err := e.broker.LastTradedPrice(ctx)
	if err != nil {
		e.log.Warn("exit price fetch failed, valuing at zero", zap.Error(err))
		return decimal.Zero
	}
	return price
}

// CurrentStatus reports whether a session is live and how many legs are open.
func (e *Engine) CurrentStatus(ctx context.Context) (Status, error) {
	open, err := e.repo.CountOpenTrades(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("count open trades: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		IsTrading:  e.trading || open > 0,
		OpenTrades: open,
		LastPrice:  e.lastPrice,
	}, nil
}

// Notifier exposes the order update stream for transports that relay it.
func (e *Engine) Notifier() *Notifier {
	return e.notifier
}

// LastPrice is the most recent index level seen by the engine.
func (e *Engine) LastPrice() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPrice
}
