package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"jinktrader/config"
	"jinktrader/internal/domain"
	"jinktrader/internal/engine"
	"jinktrader/internal/metrics"
	"jinktrader/internal/ports"
	"jinktrader/internal/pricing"
)

// Service is the trading agent. It pulls buy signals from the coordination
// service, opens positions on the signalled venue and hands each open trade to
// its own monitor goroutine. The main loop is the only writer of the venue,
// filter and balance maps after startup; monitors only read trade state they
// exclusively own.
type Service struct {
	cfg     *config.Config
	logger  ports.Logger
	coord   ports.Coordinator
	journal ports.TradeJournal
	machine *engine.Machine

	// venues is owned by the service; entries that fail the startup checks
	// are removed before the main loop starts.
	venues map[domain.Exchange]ports.ExchangeClient

	mu       sync.RWMutex
	filters  map[domain.Exchange]pricing.FilterSet
	balances map[domain.Exchange]map[string]float64

	openCount atomic.Int32
	monitors  sync.WaitGroup
}

// NewService validates the dependencies and assembles the agent.
func NewService(cfg *config.Config, logger ports.Logger, coord ports.Coordinator, journal ports.TradeJournal, machine *engine.Machine, venues map[domain.Exchange]ports.ExchangeClient) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("app.NewService: config is required")
	}
	if logger == nil {
		return nil, errors.New("app.NewService: logger is required")
	}
	if coord == nil {
		return nil, errors.New("app.NewService: coordinator is required")
	}
	if journal == nil {
		return nil, errors.New("app.NewService: trade journal is required")
	}
	if machine == nil {
		return nil, errors.New("app.NewService: trade machine is required")
	}
	if len(venues) == 0 {
		return nil, errors.New("app.NewService: at least one exchange client is required")
	}
	return &Service{
		cfg:      cfg,
		logger:   logger,
		coord:    coord,
		journal:  journal,
		machine:  machine,
		venues:   venues,
		filters:  make(map[domain.Exchange]pricing.FilterSet, len(venues)),
		balances: make(map[domain.Exchange]map[string]float64, len(venues)),
	}, nil
}

// Start runs the main signal loop until ctx is cancelled. On shutdown it
// waits for all trade monitors to return; open positions are left open.
func (s *Service) Start(ctx context.Context) error {
	if err := s.enableVenues(ctx); err != nil {
		return err
	}
	if err := s.coord.Register(ctx); err != nil {
		return fmt.Errorf("app.Start: registering client: %w", err)
	}
	s.logger.Info(ctx, "trading agent started", map[string]interface{}{
		"production": s.cfg.Production,
		"venues":     len(s.venues),
		"interval":   s.cfg.Interval.String(),
		"max_trades": s.cfg.MaxTrades,
	})

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "shutting down, waiting for trade monitors", map[string]interface{}{
				"open_trades": s.openCount.Load(),
			})
			s.monitors.Wait()
			return nil
		case <-ticker.C:
			rep := newReporter(s.coord, s.logger)
			if tick%s.cfg.HeartbeatTick == 0 {
				rep.log(ctx, fmt.Sprintf("Heartbeat [%d running trades]", s.openCount.Load()), domain.LogLevelSystem)
			}
			tick++
			s.pollSignal(ctx, rep)
			rep.flush(ctx)
		}
	}
}

// enableVenues probes every configured exchange and drops the ones that fail
// the balance or filter checks. At least one venue must survive.
func (s *Service) enableVenues(ctx context.Context) error {
	for kind, ex := range s.venues {
		balances, err := ex.GetBalances(ctx)
		if err != nil {
			s.logger.Warn(ctx, "venue disabled, balance check failed", map[string]interface{}{
				"exchange": string(kind), "error": err.Error(),
			})
			delete(s.venues, kind)
			continue
		}
		if err := s.refreshFilters(ctx, ex); err != nil {
			s.logger.Warn(ctx, "venue disabled, loading trading filters failed", map[string]interface{}{
				"exchange": string(kind), "error": err.Error(),
			})
			delete(s.venues, kind)
			continue
		}
		s.mu.Lock()
		s.balances[kind] = balances
		pairs := len(s.filters[kind])
		s.mu.Unlock()
		s.logger.Info(ctx, "venue enabled", map[string]interface{}{
			"exchange": string(kind), "pairs": pairs,
		})
	}
	if len(s.venues) == 0 {
		return errors.New("app.Start: no venue is available for trading")
	}
	return nil
}

// refreshFilters replaces the venue's filter snapshot wholesale.
func (s *Service) refreshFilters(ctx context.Context, ex ports.ExchangeClient) error {
	raw, err := ex.GetTradingFilters(ctx)
	if err != nil {
		return fmt.Errorf("app.refreshFilters: %s: %w", ex.Kind(), err)
	}
	s.mu.Lock()
	s.filters[ex.Kind()] = pricing.FilterSet(raw)
	s.mu.Unlock()
	return nil
}

func (s *Service) lookupFilters(ex domain.Exchange, pair string) (domain.SymbolFilters, bool) {
	s.mu.RLock()
	fs := s.filters[ex]
	s.mu.RUnlock()
	if fs == nil {
		return domain.SymbolFilters{}, false
	}
	return fs.Lookup(pair)
}

func (s *Service) balance(ex domain.Exchange, asset string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[ex][asset]
}

func (s *Service) pollSignal(ctx context.Context, rep *reporter) {
	env, err := s.coord.PullSignal(ctx)
	if err != nil {
		s.logger.Warn(ctx, "pulling signal failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if env == nil || env.Settings == nil {
		return
	}
	s.handleSignal(ctx, env, rep)
}

// handleSignal fans a signal out into one trade attempt per quote asset
// configured in the signal settings.
func (s *Service) handleSignal(ctx context.Context, env *domain.SignalEnvelope, rep *reporter) {
	ex, ok := s.venues[env.Signal.Exchange]
	if !ok {
		metrics.SignalsTotal.WithLabelValues(string(env.Signal.Exchange), "ignored").Inc()
		rep.log(ctx, fmt.Sprintf("Ignoring %s signal for %s, venue is not configured",
			env.Signal.Exchange, env.Signal.Token), domain.LogLevelInfo)
		return
	}
	rep.log(ctx, fmt.Sprintf("New signal for %s on %s [strength: %s]",
		env.Signal.Token, env.Signal.Exchange, env.Signal.Strength), domain.LogLevelInfo)
	for basicToken, amount := range env.Settings.Token {
		s.openTrade(ctx, env, ex, basicToken, amount, rep)
	}
}

// openTrade runs the admission checks for one quote asset, places the buy and
// spawns the monitor. Every rejection path leaves the agent in the state it
// was in before the signal arrived.
func (s *Service) openTrade(ctx context.Context, env *domain.SignalEnvelope, ex ports.ExchangeClient, basicToken string, amount float64, rep *reporter) {
	venue := string(ex.Kind())
	if env.Signal.BasicToken != "" && env.Signal.BasicToken != basicToken {
		return
	}

	t := domain.NewTrade()
	t.BasicToken = basicToken
	t.Token = env.Signal.Token
	t.Exchange = ex.Kind()
	t.Amount = amount
	t.Limit = domain.Limit{
		Profit: env.Settings.Limit.Profit,
		Dump:   env.Settings.Limit.Dump,
		Loss:   env.Settings.Limit.Loss,
		Time:   env.Settings.Limit.Time,
	}
	t.Signal = env

	if amount <= 0 {
		metrics.SignalsTotal.WithLabelValues(venue, "skipped").Inc()
		rep.log(ctx, fmt.Sprintf("Ignoring %s according to settings", t.DisplayPair()), domain.LogLevelInfo)
		return
	}
	if int(s.openCount.Load()) >= s.cfg.MaxTrades {
		metrics.SignalsTotal.WithLabelValues(venue, "rejected").Inc()
		rep.log(ctx, fmt.Sprintf("Cannot buy %s, too many running trades", t.DisplayPair()), domain.LogLevelError)
		return
	}
	filters, ok := s.lookupFilters(t.Exchange, t.Pair())
	if !ok {
		metrics.SignalsTotal.WithLabelValues(venue, "rejected").Inc()
		rep.log(ctx, fmt.Sprintf("No trading filters for %s on %s, refreshing exchange info",
			t.DisplayPair(), venue), domain.LogLevelError)
		if err := s.refreshFilters(ctx, ex); err != nil {
			s.logger.Error(ctx, err, "refreshing trading filters failed", map[string]interface{}{"exchange": venue})
		}
		return
	}
	t.Filters = filters
	if bal := s.balance(t.Exchange, basicToken); bal < amount {
		metrics.SignalsTotal.WithLabelValues(venue, "rejected").Inc()
		rep.log(ctx, fmt.Sprintf("Insufficient %s balance on %s: have %.8f, need %.8f",
			basicToken, venue, bal, amount), domain.LogLevelError)
		return
	}

	asks, err := ex.GetOrderBook(ctx, t.Pair(), domain.Buy)
	var estimate float64
	if err == nil {
		estimate, err = pricing.EstimatePrice(asks, amount)
	}
	if err != nil {
		metrics.SignalsTotal.WithLabelValues(venue, "rejected").Inc()
		rep.log(ctx, fmt.Sprintf("Cannot estimate buy price for %s: %v", t.DisplayPair(), err), domain.LogLevelError)
		return
	}
	t.BuyQty = amount / estimate

	start := time.Now()
	if err := s.machine.Open(ctx, t, ex); err != nil {
		metrics.SignalsTotal.WithLabelValues(venue, "rejected").Inc()
		if engine.IsQuantityRejection(err) {
			rep.log(ctx, fmt.Sprintf("Invalid amount to buy %s: %v", t.DisplayPair(), err), domain.LogLevelError)
		} else {
			rep.log(ctx, fmt.Sprintf("Error while buying %s: %v", t.DisplayPair(), err), domain.LogLevelError)
		}
		return
	}

	metrics.SignalsTotal.WithLabelValues(venue, "accepted").Inc()
	metrics.OrdersTotal.WithLabelValues(venue, "buy").Inc()
	metrics.OrderLatency.WithLabelValues(venue, "buy").Observe(time.Since(start).Seconds())
	metrics.OpenTrades.Inc()
	rep.event(domain.EventBuy, t)
	rep.log(ctx, fmt.Sprintf("Placed market buy for %s at %.8f [qty: %.8f]",
		t.DisplayPair(), t.Price.Buy, t.BuyQty), domain.LogLevelInfo)

	s.openCount.Add(1)
	s.monitors.Add(1)
	go s.monitor(ctx, t, ex)
}
