package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"otpmarket/internal/ledger"
	"otpmarket/internal/model"
	"otpmarket/internal/registry"
	"otpmarket/internal/store"
)

type adjustRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

func AdminCreditHandler(lg *ledger.Ledger, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID := chi.URLParam(r, "userID")

		var req adjustRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		entry, err := lg.Credit(r.Context(), userID, req.Amount, model.SourceAdmin, req.Description)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		logger.Infow("admin credit", "user", userID, "amount", req.Amount)
		writeJSON(w, http.StatusOK, entry)
	}
}

func AdminDebitHandler(lg *ledger.Ledger, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID := chi.URLParam(r, "userID")

		var req adjustRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		entry, err := lg.Debit(r.Context(), userID, req.Amount, model.SourceAdmin, req.Description)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		logger.Infow("admin debit", "user", userID, "amount", req.Amount)
		writeJSON(w, http.StatusOK, entry)
	}
}

func AdminVerifyHandler(lg *ledger.Ledger, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		result, err := lg.Verify(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, logger, err)
			return
		}

		if !result.Matches {
			logger.Warnw("ledger mismatch",
				"user", chi.URLParam(r, "userID"),
				"balance", result.Balance, "calculated", result.Calculated)
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// AdminStatisticsHandler aggregates orders for one user, or globally when
// user_id is absent.
func AdminStatisticsHandler(orders *store.OrderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		stats, err := orders.Statistics(r.Context(), r.URL.Query().Get("user_id"))
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, stats)
	}
}

func AdminActiveHandler(active *registry.Active) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		writeJSON(w, http.StatusOK, active.Snapshot())
	}
}
