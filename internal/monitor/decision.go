package monitor

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is the outcome kind of a single decision step.
type Action int

const (
	// ActionSeed establishes the baseline for a symbol seen for the first
	// time. No alert fires.
	ActionSeed Action = iota
	// ActionRepair resets a record whose alert baseline is invalid
	// (non-positive). No alert fires.
	ActionRepair
	// ActionAlert fires an alert and moves the baseline to the current price.
	ActionAlert
	// ActionHold records the observation in memory only.
	ActionHold
)

func (a Action) String() string {
	switch a {
	case ActionSeed:
		return "seed"
	case ActionRepair:
		return "repair"
	case ActionAlert:
		return "alert"
	case ActionHold:
		return "hold"
	}
	return "unknown"
}

// Outcome is the decision for one symbol in one cycle: the action taken, the
// state the symbol transitions to, and whether that state must be written
// through to the store.
type Outcome struct {
	Action        Action
	State         SymbolState
	Persist       bool
	PercentChange decimal.Decimal
}

// Decide maps (previous state, current price, config) to an alert/no-alert
// outcome and the state transition that follows. prev == nil means the symbol
// has never been observed. The function is pure; the caller owns cache
// updates, persistence and dispatch.
//
// Rules, in order:
//  1. Unseen symbol: seed the baseline at the current price, no alert.
//  2. Non-positive baseline on an existing record: reset as in 1, no alert.
//  3. Otherwise refresh the observed price, then alert only when the cooldown
//     has elapsed and |price-baseline|/baseline >= threshold (inclusive).
//     Percent change is anchored to the baseline, not the previous
//     observation.
func Decide(prev *SymbolState, symbol string, price decimal.Decimal, cfg Config, now time.Time) Outcome {
	if prev == nil {
		return Outcome{Action: ActionSeed, State: seedState(symbol, price, now), Persist: true}
	}

	if !prev.LastAlertPrice.IsPositive() {
		// Never divide by a corrupted baseline; rebuild the record instead.
		return Outcome{Action: ActionRepair, State: seedState(symbol, price, now), Persist: true}
	}

	next := *prev
	next.LastPrice = price

	if now.Sub(prev.LastAlertAt) < cfg.Cooldown {
		return Outcome{Action: ActionHold, State: next}
	}

	baseline := prev.LastAlertPrice
	delta := price.Sub(baseline).Abs().Div(baseline)
	if delta.LessThan(cfg.Threshold) {
		return Outcome{Action: ActionHold, State: next}
	}

	change := price.Sub(baseline).Div(baseline).Mul(decimal.NewFromInt(100))
	next.LastAlertPrice = price
	next.LastAlertAt = now
	return Outcome{Action: ActionAlert, State: next, Persist: true, PercentChange: change}
}

func seedState(symbol string, price decimal.Decimal, now time.Time) SymbolState {
	return SymbolState{
		Symbol:         symbol,
		LastPrice:      price,
		LastAlertPrice: price,
		LastAlertAt:    now,
	}
}
