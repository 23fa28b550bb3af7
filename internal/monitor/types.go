package monitor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Config is the durable monitoring configuration: which symbols to track and
// the threshold/cooldown/poll policy applied to them. One record exists per
// service; it is loaded at start, defaulted and persisted when absent, and
// overwritten by Configure.
type Config struct {
	Symbols      []string
	Threshold    decimal.Decimal
	Cooldown     time.Duration
	PollInterval time.Duration
}

// DefaultConfig is applied and persisted when no configuration record exists.
func DefaultConfig() Config {
	return Config{
		Symbols:      []string{"bitcoin", "ethereum", "solana"},
		Threshold:    decimal.NewFromFloat(0.05),
		Cooldown:     15 * time.Minute,
		PollInterval: time.Minute,
	}
}

// Validate checks the configuration invariants. An empty symbol list is legal
// (the monitor idles); empty identifiers are not.
func (c Config) Validate() error {
	for _, s := range c.Symbols {
		if s == "" {
			return errors.New("symbol identifiers must be non-empty")
		}
	}
	if !c.Threshold.IsPositive() {
		return errors.New("threshold must be positive")
	}
	if c.Cooldown < 0 {
		return errors.New("cooldown must not be negative")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}

func (c Config) clone() Config {
	out := c
	out.Symbols = append([]string(nil), c.Symbols...)
	return out
}

type configJSON struct {
	Symbols        []string        `json:"symbols"`
	Threshold      decimal.Decimal `json:"threshold"`
	CooldownMs     int64           `json:"cooldown_ms"`
	PollIntervalMs int64           `json:"poll_interval_ms"`
}

// MarshalJSON renders durations as milliseconds, the unit the command surface
// speaks.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configJSON{
		Symbols:        c.Symbols,
		Threshold:      c.Threshold,
		CooldownMs:     c.Cooldown.Milliseconds(),
		PollIntervalMs: c.PollInterval.Milliseconds(),
	})
}

func (c *Config) UnmarshalJSON(data []byte) error {
	var raw configJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Symbols = raw.Symbols
	c.Threshold = raw.Threshold
	c.Cooldown = time.Duration(raw.CooldownMs) * time.Millisecond
	c.PollInterval = time.Duration(raw.PollIntervalMs) * time.Millisecond
	return nil
}

// Updates carries a partial configuration change. Nil fields leave the
// current value untouched; a non-nil empty symbol list untracks everything.
type Updates struct {
	Symbols        []string         `json:"symbols,omitempty"`
	Threshold      *decimal.Decimal `json:"threshold,omitempty"`
	CooldownMs     *int64           `json:"cooldown_ms,omitempty"`
	PollIntervalMs *int64           `json:"poll_interval_ms,omitempty"`
}

// SymbolState is the per-symbol alert record. LastPrice is refreshed in
// memory on every observation; LastAlertPrice and LastAlertAt move only when
// an alert fires (or on first observation), and only those transitions are
// persisted.
type SymbolState struct {
	Symbol         string
	LastPrice      decimal.Decimal
	LastAlertPrice decimal.Decimal
	LastAlertAt    time.Time
}

type symbolStateJSON struct {
	Symbol         string          `json:"symbol"`
	LastPrice      decimal.Decimal `json:"last_price"`
	LastAlertPrice decimal.Decimal `json:"last_alert_price"`
	LastAlertAtMs  int64           `json:"last_alert_at_ms"`
}

func (s SymbolState) MarshalJSON() ([]byte, error) {
	var ms int64
	if !s.LastAlertAt.IsZero() {
		ms = s.LastAlertAt.UnixMilli()
	}
	return json.Marshal(symbolStateJSON{
		Symbol:         s.Symbol,
		LastPrice:      s.LastPrice,
		LastAlertPrice: s.LastAlertPrice,
		LastAlertAtMs:  ms,
	})
}

// Alert is what the decision engine hands to the dispatcher when a threshold
// crossing fires. PercentChange is signed and anchored to the previous alert
// price.
type Alert struct {
	Symbol        string
	Price         decimal.Decimal
	PercentChange decimal.Decimal
	At            time.Time
}

// Status is the snapshot returned by the command surface.
type Status struct {
	Running      bool          `json:"running"`
	Config       Config        `json:"config"`
	States       []SymbolState `json:"symbols"`
	LastCycleAt  time.Time     `json:"last_cycle_at"`
	LastCycleErr string        `json:"last_cycle_error,omitempty"`
}

// PriceSource fetches current quotes for the tracked symbols. Symbols the
// provider has no data for are omitted from the result; any transport or
// decode failure aborts the whole cycle.
type PriceSource interface {
	FetchPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// ConfigStore persists the monitoring configuration. LoadConfig returns
// (nil, nil) when no record exists.
type ConfigStore interface {
	LoadConfig(ctx context.Context) (*Config, error)
	SaveConfig(ctx context.Context, cfg Config) error
}

// StateStore persists per-symbol alert records.
type StateStore interface {
	LoadStates(ctx context.Context) ([]SymbolState, error)
	SaveState(ctx context.Context, st SymbolState) error
}

// AlertSink receives fired alerts. Delivery failures are absorbed by the
// sink; they never reach the poll loop.
type AlertSink interface {
	Dispatch(ctx context.Context, a Alert)
}
