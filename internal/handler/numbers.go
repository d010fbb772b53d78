package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"otpmarket/internal/coordinator"
	"otpmarket/internal/model"
	"otpmarket/internal/mw"
)

type buyRequest struct {
	Provider string `json:"provider"`
	Country  string `json:"country"`
	Product  string `json:"product"`
	Operator string `json:"operator"`
}

func BuyNumberHandler(coord *coordinator.Coordinator, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID := mw.UserID(r.Context())
		if userID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req buyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		if req.Country == "" || req.Product == "" {
			http.Error(w, "country and product required", http.StatusBadRequest)
			return
		}

		order, err := coord.BuyNumber(r.Context(), userID, model.Provider(req.Provider), req.Country, req.Product, req.Operator)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, order)
	}
}

type checkResponse struct {
	OrderID  string            `json:"order_id"`
	Status   model.OrderStatus `json:"status"`
	Messages []model.SMS       `json:"messages"`
	Code     string            `json:"code,omitempty"`
	Waiting  bool              `json:"waiting"`
}

func newCheckResponse(order *model.Order) checkResponse {
	messages := order.SMS
	if messages == nil {
		messages = []model.SMS{}
	}
	return checkResponse{
		OrderID:  order.ID,
		Status:   order.Status,
		Messages: messages,
		Code:     order.Code,
		Waiting:  order.Code == "" && !order.Status.Terminal(),
	}
}

func CheckSMSHandler(coord *coordinator.Coordinator, logger *zap.SugaredLogger) http.HandlerFunc {
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

		order, err := coord.CheckSMS(r.Context(), userID, chi.URLParam(r, "orderID"))
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, newCheckResponse(order))
	}
}

func FinishOrderHandler(coord *coordinator.Coordinator, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID := mw.UserID(r.Context())
		if userID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		order, err := coord.Finish(r.Context(), userID, chi.URLParam(r, "orderID"))
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, order)
	}
}

func CancelOrderHandler(coord *coordinator.Coordinator, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID := mw.UserID(r.Context())
		if userID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		order, err := coord.Cancel(r.Context(), userID, chi.URLParam(r, "orderID"))
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, order)
	}
}
