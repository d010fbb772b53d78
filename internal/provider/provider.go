package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"otpmarket/internal/model"
)

var (
	// ErrUnavailable wraps network and timeout failures; callers may retry.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrUnsupported is returned by the registry before any network call
	// when the vendor id is not backed by an implementation.
	ErrUnsupported = errors.New("unsupported provider")
)

// Error is a vendor rejection: the provider answered with a non-2xx status.
// 4xx responses are not retryable, 5xx may be retried by the caller after
// backoff.
type Error struct {
	Provider model.Provider
	Op       string
	Status   int
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: status %d: %s", e.Provider, e.Op, e.Status, e.Message)
}

// Purchase is the uniform result of buying a number from any vendor.
type Purchase struct {
	OrderID   string
	Phone     string
	Cost      decimal.Decimal
	ExpiresAt time.Time
}

// SMSStatus is the uniform result of polling a vendor for received messages.
// Expired means the vendor closed the activation on its side.
type SMSStatus struct {
	Messages []model.SMS
	Expired  bool
}

type AccountBalance struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type Country struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
}

type Product struct {
	Name     string          `json:"name"`
	Category string          `json:"category,omitempty"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Gateway abstracts one OTP vendor. Implementations are stateless: they hold
// no order state and every method is a single remote call.
type Gateway interface {
	Buy(ctx context.Context, country, product, operator string) (*Purchase, error)
	CheckSMS(ctx context.Context, orderID string) (*SMSStatus, error)
	Finish(ctx context.Context, orderID string) error
	Cancel(ctx context.Context, orderID string) error
	Balance(ctx context.Context) (*AccountBalance, error)
	Countries(ctx context.Context) ([]Country, error)
	Products(ctx context.Context, country string) ([]Product, error)
}

// Registry maps vendor ids to gateway implementations. Vendors are
// registered once at startup; lookups afterwards are read-only, so no
// locking is needed. Adding a vendor means registering an implementation,
// not editing dispatch conditionals.
type Registry struct {
	gateways map[model.Provider]Gateway
}

func NewRegistry() *Registry {
	return &Registry{gateways: make(map[model.Provider]Gateway)}
}

func (r *Registry) Register(id model.Provider, gw Gateway) {
	r.gateways[id] = gw
}

func (r *Registry) Lookup(id model.Provider) (Gateway, error) {
	gw, ok := r.gateways[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnsupported)
	}
	return gw, nil
}
