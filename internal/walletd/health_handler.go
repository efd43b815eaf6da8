package walletd

import (
	"encoding/json"
	"net/http"
	"time"
)

const VERSION = 0

type healthResponse struct {
	Status    string       `json:"status"`
	Version   uint         `json:"version"`
	Time      time.Time    `json:"time"`
	OverallOK bool         `json:"overall_ok"`
	Wallet    WalletStatus `json:"wallet"`
}

// HealthHandler is a liveness endpoint intended for container health checks.
// It always returns 200 when the process is up, and reports wallet health in the body.
func HealthHandler(statuses *StatusStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:    "ok",
			Version:   VERSION,
			Time:      time.Now().UTC(),
			OverallOK: true,
		}
		if statuses != nil {
			resp.Wallet = statuses.Get()
			resp.OverallOK = resp.Wallet.Healthy()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
