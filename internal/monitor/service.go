package monitor

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"price-sentinel/lib/format"
)

const defaultFetchTimeout = 10 * time.Second

// Service owns the poll scheduler and the in-memory per-symbol state cache.
// All collaborators are injected; the service itself holds no connections.
//
// One worker goroutine drives sequential cycles, so the cache has a single
// writer. The mutex exists for the command surface (Status/Configure), which
// reads from other goroutines.
type Service struct {
	source  PriceSource
	configs ConfigStore
	states  StateStore
	sink    AlertSink
	metrics *Metrics

	now          func() time.Time
	fetchTimeout time.Duration

	mu          sync.RWMutex
	cfg         Config
	cache       map[string]SymbolState
	running     bool
	stop        chan struct{}
	wg          sync.WaitGroup
	lastCycleAt time.Time
	lastErr     string
}

// NewService wires a monitor from its collaborators. metrics may be nil.
func NewService(source PriceSource, configs ConfigStore, states StateStore, sink AlertSink, metrics *Metrics) *Service {
	return &Service{
		source:       source,
		configs:      configs,
		states:       states,
		sink:         sink,
		metrics:      metrics,
		now:          time.Now,
		fetchTimeout: defaultFetchTimeout,
		cache:        make(map[string]SymbolState),
	}
}

// Load pulls the persisted configuration and per-symbol records into memory.
// A missing configuration is replaced by defaults, which are persisted right
// away. Store failures are absorbed; the monitor runs on what it has.
func (s *Service) Load(ctx context.Context) {
	cfg, err := s.configs.LoadConfig(ctx)
	if err != nil {
		log.Errorf("❌ failed to load monitor config, falling back to defaults: %v", err)
		cfg = nil
	}
	if cfg == nil {
		def := DefaultConfig()
		cfg = &def
		if err := s.configs.SaveConfig(ctx, def); err != nil {
			log.Errorf("❌ failed to persist default config: %v", err)
		} else {
			log.Info("no persisted config found, defaults applied")
		}
	} else if err := cfg.Validate(); err != nil {
		log.Warnf("⚠️ persisted config is invalid (%v), falling back to defaults", err)
		def := DefaultConfig()
		cfg = &def
	}

	states, err := s.states.LoadStates(ctx)
	if err != nil {
		log.Errorf("❌ failed to load alert states, starting from scratch: %v", err)
		states = nil
	}

	s.mu.Lock()
	s.cfg = cfg.clone()
	for _, st := range states {
		s.cache[st.Symbol] = st
	}
	s.mu.Unlock()

	s.metrics.trackSymbols(len(cfg.Symbols))
	log.Infof("monitor loaded: %d symbols, threshold %s, cooldown %s, poll every %s",
		len(cfg.Symbols), cfg.Threshold, cfg.Cooldown, cfg.PollInterval)
}

// Start runs one cycle immediately, then arms the recurring poll. Calling
// Start on a running monitor is a logged no-op. A monitor without a valid
// configuration (Load never ran) refuses to start rather than arm a
// zero-interval ticker.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Info("price monitor already running")
		return
	}
	if err := s.cfg.Validate(); err != nil {
		s.mu.Unlock()
		log.Warnf("⚠️ price monitor not started, configuration not loaded: %v", err)
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	stop := s.stop
	interval := s.cfg.PollInterval
	s.mu.Unlock()

	if err := s.runCycle(context.Background()); err != nil {
		log.Errorf("❌ price check failed: %v", err)
	}

	s.wg.Add(1)
	go s.loop(stop, interval)

	log.Infof("🚀 price monitor started (poll every %s)", interval)
}

// Stop cancels the recurring poll and waits for an in-flight cycle to finish.
// It never aborts a cycle already running; it only prevents new ones.
// Idempotent.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		log.Debug("price monitor already stopped")
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	log.Info("price monitor stopped")
}

func (s *Service) loop(stop <-chan struct{}, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.runCycle(context.Background()); err != nil {
				log.Errorf("❌ price check failed: %v", err)
			}
		}
	}
}

// Configure applies a partial update, persists the result and returns the
// effective configuration. When the poll interval changes on a running
// monitor the scheduler is restarted so the new interval takes effect
// immediately; everything else is simply picked up by the next cycle.
func (s *Service) Configure(ctx context.Context, u Updates) (Config, error) {
	s.mu.Lock()
	next := s.cfg.clone()
	if u.Symbols != nil {
		next.Symbols = normalizeSymbols(u.Symbols)
	}
	if u.Threshold != nil {
		next.Threshold = *u.Threshold
	}
	if u.CooldownMs != nil {
		next.Cooldown = time.Duration(*u.CooldownMs) * time.Millisecond
	}
	if u.PollIntervalMs != nil {
		next.PollInterval = time.Duration(*u.PollIntervalMs) * time.Millisecond
	}
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return Config{}, errors.Wrap(err, "invalid configuration update")
	}
	intervalChanged := next.PollInterval != s.cfg.PollInterval
	running := s.running
	s.cfg = next
	s.mu.Unlock()

	if err := s.configs.SaveConfig(ctx, next); err != nil {
		log.Errorf("❌ failed to persist config update: %v", err)
	}
	s.metrics.trackSymbols(len(next.Symbols))
	log.Infof("config updated: %d symbols, threshold %s, cooldown %s, poll every %s",
		len(next.Symbols), next.Threshold, next.Cooldown, next.PollInterval)

	if intervalChanged && running {
		log.Infof("🔄 poll interval changed, restarting scheduler")
		s.Stop()
		s.Start()
	}

	return next.clone(), nil
}

// Status reports the effective configuration and the cached per-symbol
// states, tracked symbols first in configuration order.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]SymbolState, 0, len(s.cache))
	seen := make(map[string]bool, len(s.cache))
	for _, symbol := range s.cfg.Symbols {
		if st, ok := s.cache[symbol]; ok {
			states = append(states, st)
			seen[symbol] = true
		}
	}
	var rest []SymbolState
	for symbol, st := range s.cache {
		if !seen[symbol] {
			rest = append(rest, st)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Symbol < rest[j].Symbol })
	states = append(states, rest...)

	return Status{
		Running:      s.running,
		Config:       s.cfg.clone(),
		States:       states,
		LastCycleAt:  s.lastCycleAt,
		LastCycleErr: s.lastErr,
	}
}

// runCycle executes one fetch→decide→persist→notify pass over the tracked
// symbols. A fetch failure aborts the whole cycle without touching any state;
// per-symbol store and delivery failures are logged and absorbed.
func (s *Service) runCycle(ctx context.Context) error {
	s.mu.RLock()
	cfg := s.cfg.clone()
	s.mu.RUnlock()

	if len(cfg.Symbols) == 0 {
		log.Debug("no symbols tracked, skipping price fetch")
		s.finishCycle(nil)
		return nil
	}

	log.Debugf("🔄 checking %d tracked symbols", len(cfg.Symbols))

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	prices, err := s.source.FetchPrices(fetchCtx, cfg.Symbols)
	if err != nil {
		s.metrics.cycleFailed()
		s.finishCycle(err)
		return errors.Wrap(err, "price fetch failed")
	}

	now := s.now()
	for _, symbol := range cfg.Symbols {
		price, ok := prices[symbol]
		if !ok {
			log.Warnf("⚠️ no price returned for %s, skipping this cycle", symbol)
			continue
		}
		if !price.IsPositive() {
			log.Warnf("⚠️ non-positive price %s for %s, skipping this cycle", price, symbol)
			continue
		}
		s.applyDecision(ctx, symbol, price, cfg, now)
	}

	s.finishCycle(nil)
	return nil
}

func (s *Service) applyDecision(ctx context.Context, symbol string, price decimal.Decimal, cfg Config, now time.Time) {
	prev := s.lookup(symbol)
	out := Decide(prev, symbol, price, cfg, now)

	switch out.Action {
	case ActionSeed:
		log.Infof("👀 tracking %s, baseline $%s", symbol, format.USD(price))
	case ActionRepair:
		log.Warnf("⚠️ invalid alert baseline for %s, re-seeding at $%s", symbol, format.USD(price))
	case ActionAlert:
		s.sink.Dispatch(ctx, Alert{
			Symbol:        symbol,
			Price:         price,
			PercentChange: out.PercentChange,
			At:            now,
		})
		s.metrics.alertDispatched()
		log.Infof("🚨 %s moved %s%% since last alert (%s), now $%s",
			symbol, out.PercentChange.StringFixed(2), format.RelTime(prev.LastAlertAt), format.USD(price))
	case ActionHold:
		// Observation cached in memory only.
	}

	s.mu.Lock()
	s.cache[symbol] = out.State
	s.mu.Unlock()

	if out.Persist {
		if err := s.states.SaveState(ctx, out.State); err != nil {
			log.Errorf("❌ failed to persist alert state for %s: %v", symbol, err)
		}
	}
}

// lookup returns a copy of the cached record, or nil when the symbol has
// never been observed.
func (s *Service) lookup(symbol string) *SymbolState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.cache[symbol]
	if !ok {
		return nil
	}
	return &st
}

func (s *Service) finishCycle(err error) {
	now := s.now()

	s.mu.Lock()
	s.lastCycleAt = now
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
	s.mu.Unlock()

	if err == nil {
		s.metrics.cycleRan(float64(now.Unix()))
	}
}

// normalizeSymbols trims whitespace and drops duplicates while preserving
// first-seen order.
func normalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
