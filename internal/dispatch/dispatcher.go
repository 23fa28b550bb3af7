package dispatch

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"price-sentinel/internal/monitor"
	"price-sentinel/internal/store"
	"price-sentinel/lib/format"
)

const (
	messageSource = "price-sentinel"
	messageKind   = "PRICE_ALERT"
)

// ChannelDirectory is the slice of the store the broadcaster needs:
// enumerate the channels owned by an agent and write message rows.
type ChannelDirectory interface {
	ListChannels(ctx context.Context, agentID string) ([]store.Channel, error)
	InsertMessage(ctx context.Context, channelID, body, source, kind string) (string, error)
}

// Relay is a side channel that receives every alert text after the durable
// channel writes, e.g. a Telegram chat.
type Relay interface {
	Relay(text string)
}

// Broadcaster formats alerts and delivers them: one durable message row per
// registered channel, then the same text to every relay. Delivery problems
// are logged and counted, never surfaced to the scheduler.
type Broadcaster struct {
	directory ChannelDirectory
	agentID   string
	metrics   *monitor.Metrics
	relays    []Relay
}

// NewBroadcaster wires a broadcaster for the given agent. metrics may be nil.
func NewBroadcaster(directory ChannelDirectory, agentID string, metrics *monitor.Metrics, relays ...Relay) *Broadcaster {
	return &Broadcaster{
		directory: directory,
		agentID:   agentID,
		metrics:   metrics,
		relays:    relays,
	}
}

// Dispatch implements monitor.AlertSink.
func (b *Broadcaster) Dispatch(ctx context.Context, a monitor.Alert) {
	text := FormatAlertText(a)

	channels, err := b.directory.ListChannels(ctx, b.agentID)
	switch {
	case err != nil:
		b.metrics.DeliveryFailed()
		log.Errorf("❌ failed to enumerate notification channels: %v", err)
	case len(channels) == 0:
		log.Warnf("⚠️ no notification channels registered for agent %q, alert not stored", b.agentID)
	default:
		for _, ch := range channels {
			id, err := b.directory.InsertMessage(ctx, ch.ID, text, messageSource, messageKind)
			if err != nil {
				b.metrics.DeliveryFailed()
				log.Errorf("❌ failed to write alert to channel %s: %v", ch.ID, err)
				continue
			}
			log.Debugf("alert %s written to channel %s", id, ch.ID)
		}
	}

	for _, relay := range b.relays {
		relay.Relay(text)
	}

	log.Infof("✅ alert dispatched: %s", text)
}

// FormatAlertText renders the alert notification text, e.g.
// "Bitcoin Price Alert: $96,450.00 ↑5.23%".
func FormatAlertText(a monitor.Alert) string {
	arrow := "↑"
	if a.PercentChange.IsNegative() {
		arrow = "↓"
	}
	return fmt.Sprintf("%s Price Alert: $%s %s%s%%",
		displayName(a.Symbol), format.USD(a.Price), arrow, format.Percent(a.PercentChange))
}

// displayNames maps the common quote identifiers to their display names;
// anything else falls back to a title-cased identifier.
var displayNames = map[string]string{
	"bitcoin":     "Bitcoin",
	"ethereum":    "Ethereum",
	"solana":      "Solana",
	"dogecoin":    "Dogecoin",
	"cardano":     "Cardano",
	"ripple":      "XRP",
	"binancecoin": "BNB",
	"polkadot":    "Polkadot",
	"litecoin":    "Litecoin",
	"chainlink":   "Chainlink",
	"avalanche-2": "Avalanche",
	"tron":        "TRON",
}

var titleCaser = cases.Title(language.English)

func displayName(symbol string) string {
	if name, ok := displayNames[symbol]; ok {
		return name
	}
	return titleCaser.String(strings.ReplaceAll(symbol, "-", " "))
}
