package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"otpmarket/internal/model"
)

var (
	ErrDuplicateOrder = errors.New("order already exists")
	ErrOrderNotFound  = errors.New("order not found")
)

const defaultPageLimit = 50

// OrderStore persists order records. Orders are created once, mutated only
// through Update and never deleted; closed orders stay for audit and
// statistics.
type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

const orderColumns = `id, provider, user_id, phone, country, product, operator, cost, status,
		sms, code, expires_at, created_at, updated_at, received_at, completed_at, cancelled_at`

// OrderPatch is a partial update: only non-nil fields are written.
// updated_at is always set.
type OrderPatch struct {
	Status      *model.OrderStatus
	SMS         *[]model.SMS
	Code        *string
	ReceivedAt  *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

// ListFilter narrows ListByUser results. Pages are 1-indexed; a zero Limit
// falls back to the default of 50.
type ListFilter struct {
	Status   string
	Provider string
	Limit    int
	Page     int
}

func (s *OrderStore) Create(ctx context.Context, order *model.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.CreateTx(ctx, tx, order); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CreateTx inserts the order inside a caller-owned transaction so the insert
// can share a commit with the purchase debit.
func (s *OrderStore) CreateTx(ctx context.Context, tx *sql.Tx, order *model.Order) error {
	smsJSON, err := marshalSMS(order.SMS)
	if err != nil {
		return fmt.Errorf("marshal sms: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, provider, user_id, phone, country, product, operator, cost, status, sms, code, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`,
		order.ID, order.Provider, order.UserID, order.Phone, order.Country, order.Product,
		order.Operator, order.Cost, order.Status, smsJSON, order.Code, order.ExpiresAt, order.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return fmt.Errorf("order %s: %w", order.ID, ErrDuplicateOrder)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *OrderStore) Get(ctx context.Context, orderID string) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", orderID, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

func (s *OrderStore) Update(ctx context.Context, orderID string, patch OrderPatch) error {
	set := []string{"updated_at = NOW()"}
	args := []interface{}{orderID}

	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.SMS != nil {
		smsJSON, err := marshalSMS(*patch.SMS)
		if err != nil {
			return fmt.Errorf("marshal sms: %w", err)
		}
		add("sms", smsJSON)
	}
	if patch.Code != nil {
		add("code", *patch.Code)
	}
	if patch.ReceivedAt != nil {
		add("received_at", *patch.ReceivedAt)
	}
	if patch.CompletedAt != nil {
		add("completed_at", *patch.CompletedAt)
	}
	if patch.CancelledAt != nil {
		add("cancelled_at", *patch.CancelledAt)
	}

	query := fmt.Sprintf("UPDATE orders SET %s WHERE id = $1", strings.Join(set, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("order %s: %w", orderID, ErrOrderNotFound)
	}
	return nil
}

func (s *OrderStore) ListByUser(ctx context.Context, userID string, filter ListFilter) ([]model.Order, error) {
	where := []string{"user_id = $1"}
	args := []interface{}{userID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Provider != "" {
		args = append(args, filter.Provider)
		where = append(where, fmt.Sprintf("provider = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)

	query := fmt.Sprintf(`SELECT %s FROM orders WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return orders, nil
}

// Statistics aggregates order counts and spend. An empty userID aggregates
// across all users.
func (s *OrderStore) Statistics(ctx context.Context, userID string) (*model.Statistics, error) {
	query := `SELECT status, COUNT(*), COALESCE(SUM(cost), 0) FROM orders GROUP BY status`
	args := []interface{}{}
	if userID != "" {
		query = `SELECT status, COUNT(*), COALESCE(SUM(cost), 0) FROM orders WHERE user_id = $1 GROUP BY status`
		args = append(args, userID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query statistics: %w", err)
	}
	defer rows.Close()

	stats := &model.Statistics{ByStatus: make(map[model.OrderStatus]int)}
	for rows.Next() {
		var (
			status model.OrderStatus
			count  int
			cost   decimal.Decimal
		)
		if err := rows.Scan(&status, &count, &cost); err != nil {
			return nil, fmt.Errorf("scan statistics: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
		stats.TotalCost = stats.TotalCost.Add(cost)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return stats, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row scanner) (*model.Order, error) {
	var (
		order     model.Order
		smsJSON   []byte
		expiresAt sql.NullTime
		received  sql.NullTime
		completed sql.NullTime
		cancelled sql.NullTime
	)

	err := row.Scan(
		&order.ID, &order.Provider, &order.UserID, &order.Phone, &order.Country,
		&order.Product, &order.Operator, &order.Cost, &order.Status,
		&smsJSON, &order.Code, &expiresAt, &order.CreatedAt, &order.UpdatedAt,
		&received, &completed, &cancelled,
	)
	if err != nil {
		return nil, err
	}

	if len(smsJSON) > 0 {
		if err := json.Unmarshal(smsJSON, &order.SMS); err != nil {
			return nil, fmt.Errorf("unmarshal sms: %w", err)
		}
	}
	if expiresAt.Valid {
		order.ExpiresAt = expiresAt.Time
	}
	if received.Valid {
		order.ReceivedAt = &received.Time
	}
	if completed.Valid {
		order.CompletedAt = &completed.Time
	}
	if cancelled.Valid {
		order.CancelledAt = &cancelled.Time
	}

	return &order, nil
}

func marshalSMS(messages []model.SMS) ([]byte, error) {
	if messages == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(messages)
}
