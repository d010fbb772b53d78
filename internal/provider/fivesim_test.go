package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otpmarket/internal/model"
)

func TestFiveSimBuy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/user/buy/activation/russia/any/telegram", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": 636016382,
			"phone": "+79991112233",
			"price": 12.5,
			"status": "PENDING",
			"expires": "2026-09-01T12:00:00Z",
			"sms": null
		}`))
	}))
	defer srv.Close()

	gw := NewFiveSim(srv.URL, "test-key", time.Second)

	purchase, err := gw.Buy(context.Background(), "russia", "telegram", "")
	require.NoError(t, err)
	assert.Equal(t, "636016382", purchase.OrderID)
	assert.Equal(t, "+79991112233", purchase.Phone)
	assert.Equal(t, "12.5", purchase.Cost.String())
	assert.Equal(t, 2026, purchase.ExpiresAt.Year())
}

func TestFiveSimBuyKeepsOperator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/user/buy/activation/russia/beeline/telegram", r.URL.Path)
		w.Write([]byte(`{"id": 1, "phone": "+7", "price": 1, "status": "PENDING"}`))
	}))
	defer srv.Close()

	gw := NewFiveSim(srv.URL, "k", time.Second)
	_, err := gw.Buy(context.Background(), "russia", "telegram", "beeline")
	require.NoError(t, err)
}

func TestFiveSimCheckSMS(t *testing.T) {
	t.Run("messages present", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/user/check/636016382", r.URL.Path)
			w.Write([]byte(`{
				"id": 636016382,
				"status": "RECEIVED",
				"sms": [{
					"created_at": "2026-09-01T12:01:00Z",
					"sender": "Telegram",
					"text": "Your code is 482913, do not share",
					"code": "482913"
				}]
			}`))
		}))
		defer srv.Close()

		gw := NewFiveSim(srv.URL, "k", time.Second)
		status, err := gw.CheckSMS(context.Background(), "636016382")
		require.NoError(t, err)
		require.Len(t, status.Messages, 1)
		assert.Equal(t, "Your code is 482913, do not share", status.Messages[0].Text)
		assert.Equal(t, "Telegram", status.Messages[0].Sender)
		assert.False(t, status.Expired)
	})

	t.Run("no messages yet", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id": 1, "status": "PENDING", "sms": []}`))
		}))
		defer srv.Close()

		gw := NewFiveSim(srv.URL, "k", time.Second)
		status, err := gw.CheckSMS(context.Background(), "1")
		require.NoError(t, err)
		assert.Empty(t, status.Messages)
		assert.False(t, status.Expired)
	})

	t.Run("vendor closed the activation", func(t *testing.T) {
		for _, vendorStatus := range []string{"TIMEOUT", "CANCELED", "BANNED"} {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"id": 1, "status": "` + vendorStatus + `", "sms": []}`))
			}))

			gw := NewFiveSim(srv.URL, "k", time.Second)
			status, err := gw.CheckSMS(context.Background(), "1")
			require.NoError(t, err)
			assert.True(t, status.Expired, "status %s must close the order", vendorStatus)
			srv.Close()
		}
	})
}

func TestFiveSimFinishAndCancel(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"id": 1, "status": "FINISHED"}`))
	}))
	defer srv.Close()

	gw := NewFiveSim(srv.URL, "k", time.Second)

	require.NoError(t, gw.Finish(context.Background(), "42"))
	assert.Equal(t, "/v1/user/finish/42", gotPath)

	require.NoError(t, gw.Cancel(context.Background(), "42"))
	assert.Equal(t, "/v1/user/cancel/42", gotPath)
}

func TestFiveSimBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/user/profile", r.URL.Path)
		w.Write([]byte(`{"id": 1, "email": "x@y.z", "balance": 310.52}`))
	}))
	defer srv.Close()

	gw := NewFiveSim(srv.URL, "k", time.Second)
	balance, err := gw.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "310.52", balance.Amount.String())
	assert.Equal(t, "RUB", balance.Currency)
}

func TestFiveSimCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/guest/countries":
			w.Write([]byte(`{"russia": {"text_en": "Russia"}, "england": {"text_en": "England"}}`))
		case "/v1/guest/products/russia/any":
			w.Write([]byte(`{"telegram": {"Category": "activation", "Qty": 110, "Price": 12.5}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	gw := NewFiveSim(srv.URL, "k", time.Second)

	countries, err := gw.Countries(context.Background())
	require.NoError(t, err)
	require.Len(t, countries, 2)
	assert.Equal(t, "england", countries[0].Name, "countries must be sorted by name")
	assert.Equal(t, "Russia", countries[1].Title)

	products, err := gw.Products(context.Background(), "russia")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "telegram", products[0].Name)
	assert.Equal(t, 110, products[0].Quantity)
	assert.Equal(t, "12.5", products[0].Price.String())
}

func TestFiveSimVendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("no free phones"))
	}))
	defer srv.Close()

	gw := NewFiveSim(srv.URL, "k", time.Second)
	_, err := gw.Buy(context.Background(), "russia", "telegram", "")
	require.Error(t, err)

	var provErr *Error
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, model.ProviderFiveSim, provErr.Provider)
	assert.Equal(t, "buy", provErr.Op)
	assert.Equal(t, http.StatusBadRequest, provErr.Status)
	assert.Equal(t, "no free phones", provErr.Message)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestFiveSimUnavailable(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // nothing listens anymore

		gw := NewFiveSim(srv.URL, "k", time.Second)
		_, err := gw.Buy(context.Background(), "russia", "telegram", "")
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		gw := NewFiveSim(srv.URL, "k", 20*time.Millisecond)
		_, err := gw.CheckSMS(context.Background(), "1")
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	gw := NewFiveSim("http://localhost", "k", time.Second)
	reg.Register(model.ProviderFiveSim, gw)

	got, err := reg.Lookup(model.ProviderFiveSim)
	require.NoError(t, err)
	assert.Equal(t, gw, got)

	_, err = reg.Lookup(model.ProviderSMSHub)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = reg.Lookup("unknown")
	assert.ErrorIs(t, err, ErrUnsupported)
}
