package walletd

import (
	"log/slog"
	"time"

	"github.com/kaigoh/xmrwallet/internal/xmrwallet"
	"google.golang.org/grpc/health"
)

// walletMonitor is the daemon's wallet listener. It publishes events to
// websocket subscribers, feeds metrics, and tracks wallet health for the
// HTTP and gRPC health endpoints. It runs inside refresh passes, so it only
// reads wallet status and never calls into the engine.
type walletMonitor struct {
	wallet   *xmrwallet.Wallet
	hub      *EventHub
	statuses *StatusStore
	health   *health.Server
}

var _ xmrwallet.Listener = (*walletMonitor)(nil)

func newWalletMonitor(w *xmrwallet.Wallet, hub *EventHub, statuses *StatusStore, hs *health.Server) *walletMonitor {
	return &walletMonitor{wallet: w, hub: hub, statuses: statuses, health: hs}
}

func (m *walletMonitor) MoneySpent(txHash string, amount uint64) {
	walletEvents.WithLabelValues(EventMoneySpent).Inc()
	slog.Info("money spent", "tx", txHash, "amount", xmrwallet.FormatAmount(amount))
	m.hub.Broadcast(Event{Type: EventMoneySpent, TxHash: txHash, Amount: xmrwallet.FormatAmount(amount), AtomicAmount: amount})
}

func (m *walletMonitor) MoneyReceived(txHash string, amount uint64) {
	walletEvents.WithLabelValues(EventMoneyReceived).Inc()
	slog.Info("money received", "tx", txHash, "amount", xmrwallet.FormatAmount(amount))
	m.hub.Broadcast(Event{Type: EventMoneyReceived, TxHash: txHash, Amount: xmrwallet.FormatAmount(amount), AtomicAmount: amount})
}

func (m *walletMonitor) Updated() {
	walletEvents.WithLabelValues(EventUpdated).Inc()
	m.hub.Broadcast(Event{Type: EventUpdated})
}

func (m *walletMonitor) Refreshed() {
	walletEvents.WithLabelValues(EventRefreshed).Inc()
	status := m.observe(true)
	refreshPasses.WithLabelValues(status.Status).Inc()
	m.hub.Broadcast(Event{Type: EventRefreshed, Status: status.Status, Error: status.Error})
}

// observe snapshots the wallet status into the status store and the gRPC
// health server.
func (m *walletMonitor) observe(refreshed bool) WalletStatus {
	now := time.Now().UTC()
	st := m.wallet.Status()
	errString := m.wallet.ErrorString()
	kind := ""
	if st == xmrwallet.StatusError {
		kind = xmrwallet.KindOf(m.wallet.Err()).String()
	}
	enabled := m.wallet.RefreshEnabled()

	status := m.statuses.Update(func(s *WalletStatus) {
		s.Status = st.String()
		s.Kind = kind
		s.Error = errString
		s.RefreshEnabled = enabled
		s.LastChecked = now
		if refreshed {
			s.Refreshes++
			s.LastRefresh = now
		}
	})

	if st == xmrwallet.StatusOk {
		walletHealthy.Set(1)
	} else {
		walletHealthy.Set(0)
	}
	if m.health != nil {
		m.health.SetServingStatus(HealthServiceName, servingStatus(st))
	}
	return status
}
