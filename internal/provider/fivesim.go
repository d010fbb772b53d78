package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"otpmarket/internal/model"
)

// FiveSim talks to the 5sim.net v1 HTTP API. Activation ids are numeric on
// the wire and carried as strings everywhere else.
type FiveSim struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewFiveSim(baseURL, apiKey string, timeout time.Duration) *FiveSim {
	return &FiveSim{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type fiveSimOrder struct {
	ID      int64           `json:"id"`
	Phone   string          `json:"phone"`
	Price   decimal.Decimal `json:"price"`
	Status  string          `json:"status"`
	Expires time.Time       `json:"expires"`
	SMS     []fiveSimSMS    `json:"sms"`
}

type fiveSimSMS struct {
	CreatedAt time.Time `json:"created_at"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Code      string    `json:"code"`
}

// 5sim activation statuses that mean the number is closed on the vendor side.
func fiveSimClosed(status string) bool {
	switch status {
	case "TIMEOUT", "CANCELED", "BANNED":
		return true
	}
	return false
}

func (f *FiveSim) Buy(ctx context.Context, country, product, operator string) (*Purchase, error) {
	if operator == "" {
		operator = "any"
	}

	var order fiveSimOrder
	path := fmt.Sprintf("/v1/user/buy/activation/%s/%s/%s", country, operator, product)
	if err := f.get(ctx, "buy", path, &order); err != nil {
		return nil, err
	}

	return &Purchase{
		OrderID:   strconv.FormatInt(order.ID, 10),
		Phone:     order.Phone,
		Cost:      order.Price,
		ExpiresAt: order.Expires,
	}, nil
}

func (f *FiveSim) CheckSMS(ctx context.Context, orderID string) (*SMSStatus, error) {
	var order fiveSimOrder
	if err := f.get(ctx, "check", "/v1/user/check/"+orderID, &order); err != nil {
		return nil, err
	}

	messages := make([]model.SMS, 0, len(order.SMS))
	for _, sms := range order.SMS {
		messages = append(messages, model.SMS{
			Text:       sms.Text,
			Sender:     sms.Sender,
			ReceivedAt: sms.CreatedAt,
		})
	}

	return &SMSStatus{
		Messages: messages,
		Expired:  fiveSimClosed(order.Status),
	}, nil
}

func (f *FiveSim) Finish(ctx context.Context, orderID string) error {
	return f.get(ctx, "finish", "/v1/user/finish/"+orderID, nil)
}

func (f *FiveSim) Cancel(ctx context.Context, orderID string) error {
	return f.get(ctx, "cancel", "/v1/user/cancel/"+orderID, nil)
}

func (f *FiveSim) Balance(ctx context.Context) (*AccountBalance, error) {
	var profile struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := f.get(ctx, "balance", "/v1/user/profile", &profile); err != nil {
		return nil, err
	}
	return &AccountBalance{Amount: profile.Balance, Currency: "RUB"}, nil
}

func (f *FiveSim) Countries(ctx context.Context) ([]Country, error) {
	var raw map[string]struct {
		TextEn string `json:"text_en"`
	}
	if err := f.get(ctx, "countries", "/v1/guest/countries", &raw); err != nil {
		return nil, err
	}

	countries := make([]Country, 0, len(raw))
	for name, info := range raw {
		countries = append(countries, Country{Name: name, Title: info.TextEn})
	}
	sort.Slice(countries, func(i, j int) bool { return countries[i].Name < countries[j].Name })
	return countries, nil
}

func (f *FiveSim) Products(ctx context.Context, country string) ([]Product, error) {
	var raw map[string]struct {
		Category string          `json:"Category"`
		Qty      int             `json:"Qty"`
		Price    decimal.Decimal `json:"Price"`
	}
	if err := f.get(ctx, "products", fmt.Sprintf("/v1/guest/products/%s/any", country), &raw); err != nil {
		return nil, err
	}

	products := make([]Product, 0, len(raw))
	for name, info := range raw {
		products = append(products, Product{
			Name:     name,
			Category: info.Category,
			Quantity: info.Qty,
			Price:    info.Price,
		})
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

// get performs one API call. Network and timeout failures wrap
// ErrUnavailable; non-2xx answers become *Error with the vendor's message
// (5sim reports errors as plain text bodies).
func (f *FiveSim) get(ctx context.Context, op, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", model.ProviderFiveSim, op, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &Error{
			Provider: model.ProviderFiveSim,
			Op:       op,
			Status:   resp.StatusCode,
			Message:  strings.TrimSpace(string(body)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", model.ProviderFiveSim, op, err)
	}
	return nil
}
