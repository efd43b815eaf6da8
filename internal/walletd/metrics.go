package walletd

import (
	"github.com/kaigoh/xmrwallet/internal/xmrwallet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics
var (
	refreshPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xmrwallet_refresh_passes_total",
			Help: "Completed refresh passes by outcome",
		},
		[]string{"status"},
	)

	walletEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xmrwallet_events_total",
			Help: "Wallet events delivered to listeners",
		},
		[]string{"type"},
	)

	transfersBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xmrwallet_transfers_total",
			Help: "Transfer construction attempts by error kind",
		},
		[]string{"kind"},
	)

	walletHealthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "xmrwallet_wallet_ok",
			Help: "1 when the last wallet operation succeeded",
		},
	)

	journalEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "xmrwallet_journal_entries",
			Help: "Pending transfers held in the journal",
		},
	)

	rateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xmrwallet_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

// transferOutcome labels a transfer attempt; "ok" on success, else the kind.
func transferOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	return xmrwallet.KindOf(err).String()
}
