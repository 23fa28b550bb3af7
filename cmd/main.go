package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"

	"price-sentinel/config"
	"price-sentinel/internal/dispatch"
	"price-sentinel/internal/monitor"
	"price-sentinel/internal/pricesource"
	"price-sentinel/internal/store"
)

const metricsSaveInterval = 5 * time.Minute

func init() {
	config.InitConfig()
	setupLogging()
}

func main() {
	st, err := store.Open(config.GetString("db_path"))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()

	metrics := monitor.NewMetrics()
	loadMetrics(st, metrics)

	service := monitor.NewService(buildPriceSource(), st, st, buildBroadcaster(st, metrics), metrics)
	service.Load(context.Background())
	service.Start()

	go func() {
		for {
			time.Sleep(metricsSaveInterval)
			saveMetrics(st, metrics)
		}
	}()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Info("🔄 shutting down...")
		service.Stop()
		saveMetrics(st, metrics)
		st.Close()
		log.Info("State saved, shutting down.")
		os.Exit(0)
	}()

	if err := launchServer(service, st, config.GetInt("http_port")); err != nil {
		log.Fatalf("Failed to start http server: %v", err)
	}
}

func setupLogging() {
	log.SetLevel(log.InfoLevel)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting price sentinel...")
}

func buildPriceSource() monitor.PriceSource {
	currency := config.GetString("vs_currency")

	switch config.GetString("price_source") {
	case "paprika":
		log.Info("using the coinpaprika price source")
		return pricesource.NewPaprika(config.GetString("api_pro_key"), currency)
	default:
		return pricesource.NewClient(
			config.GetString("price_api_url"),
			config.GetString("price_api_key"),
			currency,
		)
	}
}

func buildBroadcaster(st *store.Store, metrics *monitor.Metrics) *dispatch.Broadcaster {
	var relays []dispatch.Relay

	if token := config.GetString("telegram_bot_token"); token != "" {
		chatIDs := parseChatIDs(config.GetString("telegram_chat_ids"))
		if len(chatIDs) == 0 {
			log.Warn("⚠️ telegram token set but no chat ids configured, relay disabled")
		} else if relay, err := dispatch.NewTelegramRelay(token, chatIDs, config.GetBool("debug")); err != nil {
			log.Errorf("❌ telegram relay disabled: %v", err)
		} else {
			relays = append(relays, relay)
		}
	}

	return dispatch.NewBroadcaster(st, config.GetString("agent_id"), metrics, relays...)
}

func parseChatIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Warnf("⚠️ skipping invalid telegram chat id %q", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func launchServer(service *monitor.Service, st *store.Store, port int) error {
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", healthCheckHandler)
	http.HandleFunc("/status", statusHandler(service))
	http.HandleFunc("/config", configHandler(service))
	http.HandleFunc("/channels", channelsHandler(st))

	log.Infof("Launching http endpoint on :%d", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), http.DefaultServeMux)
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func statusHandler(service *monitor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, service.Status())
	}
}

func configHandler(service *monitor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var updates monitor.Updates
		if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		cfg, err := service.Configure(r.Context(), updates)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

func channelsHandler(st *store.Store) http.HandlerFunc {
	agentID := config.GetString("agent_id")

	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			channels, err := st.ListChannels(r.Context(), agentID)
			if err != nil {
				log.Errorf("❌ failed to list channels: %v", err)
				writeError(w, http.StatusInternalServerError, "failed to list channels")
				return
			}
			if channels == nil {
				channels = []store.Channel{}
			}
			writeJSON(w, http.StatusOK, channels)

		case http.MethodPost:
			var body struct {
				ID string `json:"id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
				writeError(w, http.StatusBadRequest, `body must be {"id": "<channel id>"}`)
				return
			}
			if err := st.AddChannel(r.Context(), body.ID, agentID); err != nil {
				log.Errorf("❌ failed to add channel: %v", err)
				writeError(w, http.StatusInternalServerError, "failed to add channel")
				return
			}
			writeJSON(w, http.StatusCreated, map[string]string{"id": body.ID, "agent_id": agentID})

		case http.MethodDelete:
			id := r.URL.Query().Get("id")
			if id == "" {
				writeError(w, http.StatusBadRequest, "missing id query parameter")
				return
			}
			if err := st.RemoveChannel(r.Context(), id); err != nil {
				log.Errorf("❌ failed to remove channel: %v", err)
				writeError(w, http.StatusInternalServerError, "failed to remove channel")
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"removed": id})

		default:
			w.Header().Set("Allow", "GET, POST, DELETE")
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Errorf("Failed to encode JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func counterSnapshots(m *monitor.Metrics) map[string]prometheus.Counter {
	return map[string]prometheus.Counter{
		"cycles_total":            m.Cycles,
		"cycle_failures_total":    m.CycleFailures,
		"alerts_dispatched_total": m.AlertsDispatched,
		"delivery_failures_total": m.DeliveryFailures,
	}
}

func loadMetrics(st *store.Store, m *monitor.Metrics) {
	ctx := context.Background()
	for name, counter := range counterSnapshots(m) {
		value, err := st.GetMetric(ctx, name)
		if err != nil {
			log.Errorf("❌ failed to load metric %s: %v", name, err)
			continue
		}
		if value > 0 {
			counter.Add(value)
		}
	}
	log.Debug("Metrics loaded from database.")
}

func saveMetrics(st *store.Store, m *monitor.Metrics) {
	ctx := context.Background()
	for name, counter := range counterSnapshots(m) {
		if err := st.SaveMetric(ctx, name, getMetricValue(counter)); err != nil {
			log.Errorf("❌ failed to save metric %s: %v", name, err)
		}
	}
	log.Debug("Metrics saved to database.")
}

func getMetricValue(metric prometheus.Collector) float64 {
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.Errorf("Failed to read metric value: %v", err)
		return 0
	}

	if metricProto.Counter != nil {
		return metricProto.Counter.GetValue()
	}
	if metricProto.Gauge != nil {
		return metricProto.Gauge.GetValue()
	}
	return 0
}
