package handler

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"otpmarket/internal/ledger"
	"otpmarket/internal/model"
	"otpmarket/internal/mw"
	"otpmarket/internal/provider"
)

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

func BalanceHandler(lg *ledger.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID := mw.UserID(r.Context())

		balance, err := lg.Balance(r.Context(), userID)
		if err != nil {
			if errors.Is(err, ledger.ErrUserNotFound) {
				http.Error(w, "user not found", http.StatusNotFound)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
	}
}

// ProviderBalanceHandler reports the remaining funds on the vendor account,
// not the caller's ledger balance.
func ProviderBalanceHandler(providers *provider.Registry, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		id := model.Provider(r.URL.Query().Get("provider"))
		if id == "" {
			id = model.ProviderFiveSim
		}

		gw, err := providers.Lookup(id)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		balance, err := gw.Balance(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, balance)
	}
}
