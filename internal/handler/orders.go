package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"otpmarket/internal/mw"
	"otpmarket/internal/store"
)

func ListOrdersHandler(orders *store.OrderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID := mw.UserID(r.Context())

		q := r.URL.Query()
		filter := store.ListFilter{
			Status:   q.Get("status"),
			Provider: q.Get("provider"),
		}
		filter.Limit, _ = strconv.Atoi(q.Get("limit"))
		filter.Page, _ = strconv.Atoi(q.Get("page"))

		list, err := orders.ListByUser(r.Context(), userID, filter)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if len(list) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(list); err != nil {
			http.Error(w, "encode error", http.StatusInternalServerError)
		}
	}
}

func StatisticsHandler(orders *store.OrderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID := mw.UserID(r.Context())
		if userID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		stats, err := orders.Statistics(r.Context(), userID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, stats)
	}
}
