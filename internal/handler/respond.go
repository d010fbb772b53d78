package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"otpmarket/internal/coordinator"
	"otpmarket/internal/ledger"
	"otpmarket/internal/provider"
	"otpmarket/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates domain failures into HTTP statuses. Vendor
// rejections forward the vendor's message; anything unexpected is logged
// and hidden behind a 500.
func writeError(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	var provErr *provider.Error
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		http.Error(w, "insufficient funds", http.StatusPaymentRequired)
	case errors.Is(err, coordinator.ErrAccessDenied):
		http.Error(w, "access denied", http.StatusForbidden)
	case errors.Is(err, store.ErrOrderNotFound):
		http.Error(w, "order not found", http.StatusNotFound)
	case errors.Is(err, ledger.ErrUserNotFound):
		http.Error(w, "user not found", http.StatusNotFound)
	case errors.Is(err, store.ErrDuplicateOrder):
		http.Error(w, "order already exists", http.StatusConflict)
	case errors.Is(err, coordinator.ErrOrderClosed):
		http.Error(w, "order is closed", http.StatusConflict)
	case errors.Is(err, ledger.ErrInvalidAmount):
		http.Error(w, "amount must be positive", http.StatusUnprocessableEntity)
	case errors.Is(err, provider.ErrUnsupported):
		http.Error(w, "unsupported provider", http.StatusBadRequest)
	case errors.Is(err, provider.ErrUnavailable):
		http.Error(w, "provider unavailable", http.StatusServiceUnavailable)
	case errors.As(err, &provErr):
		logger.Warnw("provider rejected request",
			"provider", provErr.Provider, "op", provErr.Op,
			"status", provErr.Status, "message", provErr.Message)
		http.Error(w, fmt.Sprintf("provider error: %s", provErr.Message), http.StatusBadGateway)
	default:
		logger.Errorw("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
