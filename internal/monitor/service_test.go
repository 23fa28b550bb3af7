package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeSource struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	err    error
	calls  int
}

func (f *fakeSource) FetchPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]decimal.Decimal, len(f.prices))
	for k, v := range f.prices {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSource) set(prices map[string]decimal.Decimal, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices = prices
	f.err = err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memConfigStore struct {
	mu  sync.Mutex
	cfg *Config
}

func (m *memConfigStore) LoadConfig(ctx context.Context) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return nil, nil
	}
	c := m.cfg.clone()
	return &c, nil
}

func (m *memConfigStore) SaveConfig(ctx context.Context, cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := cfg.clone()
	m.cfg = &c
	return nil
}

type memStateStore struct {
	mu     sync.Mutex
	states map[string]SymbolState
	log    *eventLog
}

func (m *memStateStore) LoadStates(ctx context.Context) ([]SymbolState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SymbolState, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, st)
	}
	return out, nil
}

func (m *memStateStore) SaveState(ctx context.Context, st SymbolState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states == nil {
		m.states = make(map[string]SymbolState)
	}
	m.states[st.Symbol] = st
	if m.log != nil {
		m.log.add("persist " + st.Symbol)
	}
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []Alert
	log    *eventLog
}

func (r *recordingSink) Dispatch(ctx context.Context, a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	if r.log != nil {
		r.log.add("dispatch " + a.Symbol)
	}
}

func (r *recordingSink) all() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

type harness struct {
	svc     *Service
	source  *fakeSource
	configs *memConfigStore
	states  *memStateStore
	sink    *recordingSink
	clock   *fakeClock
	log     *eventLog
}

func newHarness(cfg *Config) *harness {
	h := &harness{
		source:  &fakeSource{},
		configs: &memConfigStore{},
		states:  &memStateStore{},
		sink:    &recordingSink{},
		clock:   &fakeClock{t: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)},
		log:     &eventLog{},
	}
	h.states.log = h.log
	h.sink.log = h.log
	if cfg != nil {
		h.configs.cfg = cfg
	}
	h.svc = NewService(h.source, h.configs, h.states, h.sink, nil)
	h.svc.now = h.clock.Now
	return h
}

func trackedConfig(symbols ...string) *Config {
	return &Config{
		Symbols:      symbols,
		Threshold:    dec("0.05"),
		Cooldown:     15 * time.Minute,
		PollInterval: time.Hour,
	}
}

func TestServiceLoadAppliesAndPersistsDefaults(t *testing.T) {
	h := newHarness(nil)
	h.svc.Load(context.Background())

	got := h.svc.Status().Config
	want := DefaultConfig()
	if len(got.Symbols) != len(want.Symbols) || !got.Threshold.Equal(want.Threshold) {
		t.Errorf("expected default config, got %s", spew.Sdump(got))
	}
	if h.configs.cfg == nil {
		t.Error("defaults should be persisted on first load")
	}
}

func TestServiceLoadRestoresPersistedState(t *testing.T) {
	h := newHarness(trackedConfig("bitcoin"))
	h.states.states = map[string]SymbolState{
		"bitcoin": {
			Symbol:         "bitcoin",
			LastPrice:      dec("100"),
			LastAlertPrice: dec("100"),
			LastAlertAt:    h.clock.Now().Add(-time.Hour),
		},
	}
	h.svc.Load(context.Background())

	// A restored baseline means the next big move alerts instead of seeding.
	h.source.set(map[string]decimal.Decimal{"bitcoin": dec("106")}, nil)
	if err := h.svc.runCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	alerts := h.sink.all()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert from the restored baseline, got %d", len(alerts))
	}
	if got := alerts[0].PercentChange.StringFixed(2); got != "6.00" {
		t.Errorf("expected +6.00%% from the restored baseline, got %s%%", got)
	}
}

func TestServiceSeedThenAlert(t *testing.T) {
	h := newHarness(trackedConfig("bitcoin"))
	h.svc.Load(context.Background())

	h.source.set(map[string]decimal.Decimal{"bitcoin": dec("100")}, nil)
	if err := h.svc.runCycle(context.Background()); err != nil {
		t.Fatalf("seed cycle failed: %v", err)
	}
	if n := len(h.sink.all()); n != 0 {
		t.Fatalf("seeding must not alert, got %d alerts", n)
	}

	h.clock.Advance(20 * time.Minute)
	h.source.set(map[string]decimal.Decimal{"bitcoin": dec("106")}, nil)
	if err := h.svc.runCycle(context.Background()); err != nil {
		t.Fatalf("alert cycle failed: %v", err)
	}

	alerts := h.sink.all()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d: %s", len(alerts), spew.Sdump(alerts))
	}
	a := alerts[0]
	if a.Symbol != "bitcoin" || !a.Price.Equal(dec("106")) {
		t.Errorf("unexpected alert payload: %s", spew.Sdump(a))
	}
	if got := a.PercentChange.StringFixed(2); got != "6.00" {
		t.Errorf("expected +6.00%%, got %s%%", got)
	}
	if !a.At.Equal(h.clock.Now()) {
		t.Errorf("alert should carry the cycle time, got %v", a.At)
	}
}

func TestServiceDispatchesBeforePersisting(t *testing.T) {
	h := newHarness(trackedConfig("bitcoin"))
	h.svc.Load(context.Background())

	h.source.set(map[string]decimal.Decimal{"bitcoin": dec("100")}, nil)
	_ = h.svc.runCycle(context.Background())

	h.clock.Advance(20 * time.Minute)
	h.source.set(map[string]decimal.Decimal{"bitcoin": dec("106")}, nil)
	_ = h.svc.runCycle(context.Background())

	want := []string{"persist bitcoin", "dispatch bitcoin", "persist bitcoin"}
	got := h.log.all()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}

func TestServiceFetchFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(trackedConfig("bitcoin"))
	h.svc.Load(context.Background())

	h.source.set(map[string]decimal.Decimal{"bitcoin": dec("100")}, nil)
	_ = h.svc.runCycle(context.Background())

	before := h.svc.lookup("bitcoin")
	if before == nil {
		t.Fatal("expected a seeded record")
	}

	h.clock.Advance(20 * time.Minute)
	h.source.set(nil, errors.New("upstream down"))
	if err := h.svc.runCycle(context.Background()); err == nil {
		t.Fatal("expected the cycle to surface the fetch failure")
	}
	if st := h.svc.Status(); st.LastCycleErr == "" {
		t.Error("status should report the failed cycle")
	}

	after := h.svc.lookup("bitcoin")
	if !statesEqual(*before, *after) {
		t.Errorf("failed cycle must not mutate state:\nbefore: %safter: %s",
			spew.Sdump(*before), spew.Sdump(*after))
	}

	// The next healthy cycle proceeds as if nothing happened.
	h.source.set(map[string]decimal.Decimal{"bitcoin": dec("106")}, nil)
	if err := h.svc.runCycle(context.Background()); err != nil {
		t.Fatalf("recovery cycle failed: %v", err)
	}
	if len(h.sink.all()) != 1 {
		t.Error("expected the recovery cycle to alert")
	}
	if st := h.svc.Status(); st.LastCycleErr != "" {
		t.Errorf("recovered status should clear the error, got %q", st.LastCycleErr)
	}
}

func TestServiceSkipsMissingAndNonPositivePrices(t *testing.T) {
	h := newHarness(trackedConfig("bitcoin", "ethereum"))
	h.svc.Load(context.Background())

	// ethereum missing entirely, bitcoin quoted at zero.
	h.source.set(map[string]decimal.Decimal{"bitcoin": decimal.Zero}, nil)
	if err := h.svc.runCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if h.svc.lookup("bitcoin") != nil || h.svc.lookup("ethereum") != nil {
		t.Error("unusable quotes must not create state")
	}
	if len(h.sink.all()) != 0 {
		t.Error("unusable quotes must not alert")
	}
}

func TestServiceEmptySymbolsSkipsFetch(t *testing.T) {
	h := newHarness(trackedConfig())
	h.svc.Load(context.Background())

	if err := h.svc.runCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if h.source.callCount() != 0 {
		t.Error("no symbols tracked, the price source must not be called")
	}
	if st := h.svc.Status(); st.LastCycleAt.IsZero() {
		t.Error("the cycle should still be recorded")
	}
}

func TestServiceStartStopIdempotent(t *testing.T) {
	h := newHarness(trackedConfig("bitcoin"))
	h.source.set(map[string]decimal.Decimal{"bitcoin": dec("100")}, nil)
	h.svc.Load(context.Background())

	h.svc.Start()
	h.svc.Start()
	if got := h.source.callCount(); got != 1 {
		t.Errorf("double start should run exactly one first cycle, got %d", got)
	}
	if !h.svc.Status().Running {
		t.Error("expected running after start")
	}

	h.svc.Stop()
	h.svc.Stop()
	if h.svc.Status().Running {
		t.Error("expected stopped after stop")
	}
}

func TestServiceStartWithoutLoadRefuses(t *testing.T) {
	h := newHarness(nil)

	h.svc.Start()

	if h.svc.Status().Running {
		t.Error("a monitor without configuration must refuse to start")
	}
	if h.source.callCount() != 0 {
		t.Error("a refused start must not poll")
	}

	// Stop stays safe after a refused start.
	h.svc.Stop()
}

func TestServiceConfigurePartialUpdate(t *testing.T) {
	h := newHarness(trackedConfig("bitcoin", "ethereum"))
	h.svc.Load(context.Background())

	threshold := dec("0.10")
	got, err := h.svc.Configure(context.Background(), Updates{Threshold: &threshold})
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if !got.Threshold.Equal(threshold) {
		t.Errorf("expected threshold 0.10, got %s", got.Threshold)
	}
	if len(got.Symbols) != 2 {
		t.Errorf("untouched fields must survive a partial update: %s", spew.Sdump(got))
	}
	if h.configs.cfg == nil || !h.configs.cfg.Threshold.Equal(threshold) {
		t.Error("configure should persist the effective config")
	}
}

func TestServiceConfigureRejectsInvalidUpdate(t *testing.T) {
	h := newHarness(trackedConfig("bitcoin"))
	h.svc.Load(context.Background())

	bad := dec("-0.05")
	if _, err := h.svc.Configure(context.Background(), Updates{Threshold: &bad}); err == nil {
		t.Fatal("expected a validation error")
	}
	if !h.svc.Status().Config.Threshold.Equal(dec("0.05")) {
		t.Error("a rejected update must leave the config unchanged")
	}
}

func TestServiceConfigureUntracksAll(t *testing.T) {
	h := newHarness(trackedConfig("bitcoin", "ethereum"))
	h.svc.Load(context.Background())

	got, err := h.svc.Configure(context.Background(), Updates{Symbols: []string{}})
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if len(got.Symbols) != 0 {
		t.Errorf("an explicit empty list should untrack everything, got %v", got.Symbols)
	}

	if err := h.svc.runCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if h.source.callCount() != 0 {
		t.Error("untracked monitor must not call the price source")
	}
}

func TestServiceConfigureRestartsOnIntervalChange(t *testing.T) {
	h := newHarness(trackedConfig("bitcoin"))
	h.source.set(map[string]decimal.Decimal{"bitcoin": dec("100")}, nil)
	h.svc.Load(context.Background())

	h.svc.Start()
	defer h.svc.Stop()
	if got := h.source.callCount(); got != 1 {
		t.Fatalf("expected one first cycle, got %d", got)
	}

	interval := (30 * time.Minute).Milliseconds()
	got, err := h.svc.Configure(context.Background(), Updates{PollIntervalMs: &interval})
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if got.PollInterval != 30*time.Minute {
		t.Errorf("expected a 30m interval, got %s", got.PollInterval)
	}
	if !h.svc.Status().Running {
		t.Error("monitor should keep running across a scheduler restart")
	}
	if got := h.source.callCount(); got != 2 {
		t.Errorf("an interval change should restart with a fresh first cycle, got %d calls", got)
	}
}

func TestServiceStatusOrdersTrackedSymbolsFirst(t *testing.T) {
	h := newHarness(trackedConfig("ethereum", "bitcoin"))
	h.svc.Load(context.Background())

	h.source.set(map[string]decimal.Decimal{
		"bitcoin":  dec("100"),
		"ethereum": dec("4000"),
	}, nil)
	_ = h.svc.runCycle(context.Background())

	st := h.svc.Status()
	if len(st.States) != 2 {
		t.Fatalf("expected 2 states, got %d", len(st.States))
	}
	if st.States[0].Symbol != "ethereum" || st.States[1].Symbol != "bitcoin" {
		t.Errorf("states should follow configuration order: %s", spew.Sdump(st.States))
	}
}
