package coordinator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"otpmarket/internal/ledger"
	"otpmarket/internal/model"
	"otpmarket/internal/provider"
	"otpmarket/internal/registry"
	"otpmarket/internal/store"
)

var (
	// ErrOrderClosed rejects any mutation of an order in a terminal status.
	ErrOrderClosed = errors.New("order is closed")
	// ErrAccessDenied rejects operations by a caller who does not own the order.
	ErrAccessDenied = errors.New("access denied")
)

const defaultProvider = model.ProviderFiveSim

// transitions lists the statuses reachable from each non-terminal status.
// Terminal statuses have no entry: nothing leaves them.
var transitions = map[model.OrderStatus][]model.OrderStatus{
	model.StatusPending:  {model.StatusWaiting, model.StatusReceived, model.StatusCompleted, model.StatusCancelled, model.StatusExpired},
	model.StatusWaiting:  {model.StatusWaiting, model.StatusReceived, model.StatusCompleted, model.StatusCancelled, model.StatusExpired},
	model.StatusReceived: {model.StatusReceived, model.StatusCompleted, model.StatusCancelled, model.StatusExpired},
}

func canTransition(from, to model.OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Coordinator drives orders through their lifecycle. It is the only writer
// of order records and the only caller of ledger mutations for purchases.
// Operations on the same order are serialized through a per-order lock;
// different orders proceed independently.
type Coordinator struct {
	db        *sql.DB
	providers *provider.Registry
	orders    *store.OrderStore
	ledger    *ledger.Ledger
	active    *registry.Active
	logger    *zap.SugaredLogger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(db *sql.DB, providers *provider.Registry, orders *store.OrderStore, lg *ledger.Ledger, active *registry.Active, logger *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		db:        db,
		providers: providers,
		orders:    orders,
		ledger:    lg,
		active:    active,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// BuyNumber purchases a number from the vendor and materializes the order:
// the order row and the purchase debit commit in one transaction, so a
// duplicate provider order id can never debit twice, and a failed debit
// leaves no order behind. If the debit fails after the vendor has already
// charged, a compensating cancel is attempted best-effort.
func (c *Coordinator) BuyNumber(ctx context.Context, userID string, providerID model.Provider, country, product, operator string) (*model.Order, error) {
	if providerID == "" {
		providerID = defaultProvider
	}

	gw, err := c.providers.Lookup(providerID)
	if err != nil {
		return nil, err
	}

	purchase, err := gw.Buy(ctx, country, product, operator)
	if err != nil {
		return nil, fmt.Errorf("buy number: %w", err)
	}

	unlock := c.lockOrder(purchase.OrderID)
	defer unlock()

	now := time.Now()
	order := &model.Order{
		ID:        purchase.OrderID,
		Provider:  providerID,
		UserID:    userID,
		Phone:     purchase.Phone,
		Country:   country,
		Product:   product,
		Operator:  operator,
		Cost:      purchase.Cost,
		Status:    model.StatusPending,
		ExpiresAt: purchase.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := c.persistPurchase(ctx, order); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			c.compensate(ctx, gw, order)
		}
		return nil, err
	}

	c.active.Add(registry.Entry{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Provider:  order.Provider,
		Phone:     order.Phone,
		Status:    order.Status,
		ExpiresAt: order.ExpiresAt,
	})

	c.logger.Infow("number purchased",
		"order", order.ID, "user", userID, "provider", providerID,
		"phone", order.Phone, "cost", order.Cost)

	return order, nil
}

func (c *Coordinator) persistPurchase(ctx context.Context, order *model.Order) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := c.orders.CreateTx(ctx, tx, order); err != nil {
		return err
	}

	description := fmt.Sprintf("number %s for %s (%s)", order.Phone, order.Product, order.Provider)
	if _, err := c.ledger.DebitTx(ctx, tx, order.UserID, order.Cost, model.SourceOrder, description); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// compensate releases a vendor-charged number when the local purchase could
// not be recorded. Failures are logged, not surfaced: the caller already has
// the original error.
func (c *Coordinator) compensate(ctx context.Context, gw provider.Gateway, order *model.Order) {
	if err := gw.Cancel(ctx, order.ID); err != nil {
		c.logger.Warnw("compensating cancel failed",
			"order", order.ID, "provider", order.Provider, "error", err)
		return
	}
	c.logger.Infow("compensating cancel issued", "order", order.ID, "provider", order.Provider)
}

// CheckSMS polls the vendor for messages. No messages is not an error: the
// order settles into waiting and the caller polls again. A vendor-side
// closure surfaces here as the expired transition.
func (c *Coordinator) CheckSMS(ctx context.Context, userID, orderID string) (*model.Order, error) {
	unlock := c.lockOrder(orderID)
	defer unlock()

	order, gw, err := c.loadOwned(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	status, err := gw.CheckSMS(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("check sms: %w", err)
	}

	if status.Expired {
		return c.expire(ctx, order)
	}

	if len(status.Messages) == 0 {
		if canTransition(order.Status, model.StatusWaiting) {
			order.Status = model.StatusWaiting
		}
		if err := c.orders.Update(ctx, order.ID, store.OrderPatch{Status: &order.Status}); err != nil {
			return nil, err
		}
		c.active.Touch(order.ID, order.Status)
		return order, nil
	}

	patch := store.OrderPatch{SMS: &status.Messages}
	order.SMS = status.Messages

	if order.Code == "" {
		if code := model.ExtractCode(status.Messages); code != "" {
			patch.Code = &code
			order.Code = code
		}
	}
	if order.Status != model.StatusReceived {
		now := time.Now()
		order.Status = model.StatusReceived
		order.ReceivedAt = &now
		patch.Status = &order.Status
		patch.ReceivedAt = &now
		c.logger.Infow("sms received", "order", order.ID, "messages", len(status.Messages), "code", order.Code)
	}

	if err := c.orders.Update(ctx, order.ID, patch); err != nil {
		return nil, err
	}
	c.active.Touch(order.ID, order.Status)
	return order, nil
}

// Finish closes the order successfully. The vendor is told first; local
// state only moves when the vendor acknowledged.
func (c *Coordinator) Finish(ctx context.Context, userID, orderID string) (*model.Order, error) {
	unlock := c.lockOrder(orderID)
	defer unlock()

	order, gw, err := c.loadOwned(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	if err := gw.Finish(ctx, order.ID); err != nil {
		return nil, fmt.Errorf("finish order: %w", err)
	}

	now := time.Now()
	order.Status = model.StatusCompleted
	order.CompletedAt = &now
	err = c.orders.Update(ctx, order.ID, store.OrderPatch{Status: &order.Status, CompletedAt: &now})
	if err != nil {
		return nil, err
	}

	c.close(order)
	c.logger.Infow("order completed", "order", order.ID, "user", userID)
	return order, nil
}

// Cancel closes the order without completion. The purchase debit stands:
// the vendor has already charged for the number, so nothing is credited
// back.
func (c *Coordinator) Cancel(ctx context.Context, userID, orderID string) (*model.Order, error) {
	unlock := c.lockOrder(orderID)
	defer unlock()

	order, gw, err := c.loadOwned(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	if err := gw.Cancel(ctx, order.ID); err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	now := time.Now()
	order.Status = model.StatusCancelled
	order.CancelledAt = &now
	err = c.orders.Update(ctx, order.ID, store.OrderPatch{Status: &order.Status, CancelledAt: &now})
	if err != nil {
		return nil, err
	}

	c.close(order)
	c.logger.Infow("order cancelled", "order", order.ID, "user", userID)
	return order, nil
}

func (c *Coordinator) expire(ctx context.Context, order *model.Order) (*model.Order, error) {
	order.Status = model.StatusExpired
	err := c.orders.Update(ctx, order.ID, store.OrderPatch{Status: &order.Status})
	if err != nil {
		return nil, err
	}

	c.close(order)
	c.logger.Infow("order expired by provider", "order", order.ID, "provider", order.Provider)
	return order, nil
}

// loadOwned fetches the order and runs the ownership and terminal checks
// that guard every mutation. Both checks consult the store, never the
// registry, and both run before any vendor call.
func (c *Coordinator) loadOwned(ctx context.Context, userID, orderID string) (*model.Order, provider.Gateway, error) {
	order, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	if order.UserID != userID {
		return nil, nil, fmt.Errorf("order %s: %w", orderID, ErrAccessDenied)
	}
	if order.Status.Terminal() {
		return nil, nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, ErrOrderClosed)
	}

	gw, err := c.providers.Lookup(order.Provider)
	if err != nil {
		return nil, nil, err
	}
	return order, gw, nil
}

// close removes terminal orders from the registry and retires their lock;
// the terminal check stops any later caller regardless of which lock
// instance it acquired.
func (c *Coordinator) close(order *model.Order) {
	c.active.Remove(order.ID)

	c.mu.Lock()
	delete(c.locks, order.ID)
	c.mu.Unlock()
}

func (c *Coordinator) lockOrder(orderID string) func() {
	c.mu.Lock()
	l, ok := c.locks[orderID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[orderID] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}
