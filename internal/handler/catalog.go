package handler

import (
	"net/http"

	"go.uber.org/zap"

	"otpmarket/internal/model"
	"otpmarket/internal/provider"
)

func CountriesHandler(providers *provider.Registry, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		gw, err := providers.Lookup(catalogProvider(r))
		if err != nil {
			writeError(w, logger, err)
			return
		}

		countries, err := gw.Countries(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, countries)
	}
}

func ProductsHandler(providers *provider.Registry, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		country := r.URL.Query().Get("country")
		if country == "" {
			http.Error(w, "country required", http.StatusBadRequest)
			return
		}

		gw, err := providers.Lookup(catalogProvider(r))
		if err != nil {
			writeError(w, logger, err)
			return
		}

		products, err := gw.Products(r.Context(), country)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, products)
	}
}

func catalogProvider(r *http.Request) model.Provider {
	if id := r.URL.Query().Get("provider"); id != "" {
		return model.Provider(id)
	}
	return model.ProviderFiveSim
}
