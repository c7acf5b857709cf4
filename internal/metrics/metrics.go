package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// WebhookResult counts webhook deliveries by outcome.
func WebhookResult(result string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`easel_webhook_deliveries_total{result=%q}`, result)).Inc()
}

// SlotAllocated counts successful allocations and the number of optimistic
// claim conflicts that were retried on the way.
func SlotAllocated(competition string, conflicts int) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`easel_slots_allocated_total{competition=%q}`, competition)).Inc()
	if conflicts > 0 {
		metrics.GetOrCreateCounter(fmt.Sprintf(`easel_slot_claim_conflicts_total{competition=%q}`, competition)).Add(conflicts)
	}
}

// CapacityExceeded counts allocations rejected because every slot is taken.
func CapacityExceeded(competition string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`easel_capacity_exceeded_total{competition=%q}`, competition)).Inc()
}

// CheckoutResult counts checkout creation outcomes.
func CheckoutResult(result string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`easel_checkouts_total{result=%q}`, result)).Inc()
}

// ProviderLatency records the duration of outbound payment provider calls.
func ProviderLatency(start time.Time) {
	metrics.GetOrCreateHistogram(`easel_provider_request_duration_seconds`).UpdateDuration(start)
}

// Handler exposes all metrics in Prometheus text format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
}

// Setup starts pushing metrics to url when it is set.
func Setup(url string, interval time.Duration, logger *slog.Logger) {
	if url == "" {
		return
	}
	if err := metrics.InitPush(url, interval, `service="easel-entry"`, true); err != nil {
		logger.Error("metrics push init failed", "error", err)
	}
}
