package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, guest_name, guest_email, subtotal, shipping_cost, tax_amount, total,
shipping_address, payment_method, payment_status, fulfillment_status, stripe_payment_id, stripe_session_id,
paid_at, created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.GuestName, &o.GuestEmail, &o.Subtotal, &o.ShippingCost, &o.TaxAmount, &o.Total,
		&o.ShippingAddress, &o.PaymentMethod, &o.PaymentStatus, &o.FulfillmentStatus, &o.StripePaymentID, &o.StripeSessionID,
		&o.PaidAt, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

const getOrderBySessionID = `SELECT ` + orderColumns + ` FROM orders WHERE stripe_session_id = $1`

// GetOrderBySessionID looks up the order created for an external payment session.
func (q *Queries) GetOrderBySessionID(ctx context.Context, sessionID string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderBySessionID, sessionID))
}

const getOrderByID = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

// GetOrderByID fetches one order by internal identifier.
func (q *Queries) GetOrderByID(ctx context.Context, id pgtype.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByID, id))
}

const orderNumberExists = `SELECT EXISTS(SELECT 1 FROM orders WHERE order_number = $1)`

// OrderNumberExists probes whether a human-readable order number is taken.
func (q *Queries) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, orderNumberExists, number).Scan(&exists)
	return exists, err
}

const createOrder = `
INSERT INTO orders (
	order_number, guest_name, guest_email, subtotal, shipping_cost, tax_amount, total,
	shipping_address, payment_method, payment_status, fulfillment_status,
	stripe_payment_id, stripe_session_id, paid_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING ` + orderColumns

// CreateOrderParams carries every column written at ingestion time.
type CreateOrderParams struct {
	OrderNumber       string
	GuestName         string
	GuestEmail        string
	Subtotal          int64
	ShippingCost      int64
	TaxAmount         int64
	Total             int64
	ShippingAddress   []byte
	PaymentMethod     string
	PaymentStatus     string
	FulfillmentStatus string
	StripePaymentID   pgtype.Text
	StripeSessionID   string
	PaidAt            pgtype.Timestamptz
}

// CreateOrder inserts the order row and returns it.
func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder,
		arg.OrderNumber, arg.GuestName, arg.GuestEmail, arg.Subtotal, arg.ShippingCost, arg.TaxAmount, arg.Total,
		arg.ShippingAddress, arg.PaymentMethod, arg.PaymentStatus, arg.FulfillmentStatus,
		arg.StripePaymentID, arg.StripeSessionID, arg.PaidAt,
	))
}

const createOrderItem = `
INSERT INTO order_items (order_id, product_id, quantity, unit_price, total, variant_selections, personalization_text)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// CreateOrderItemParams carries one line-item snapshot.
type CreateOrderItemParams struct {
	OrderID             pgtype.UUID
	ProductID           pgtype.UUID
	Quantity            int32
	UnitPrice           int64
	Total               int64
	VariantSelections   []byte
	PersonalizationText pgtype.Text
}

// CreateOrderItem inserts one order item row.
func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) error {
	_, err := q.db.Exec(ctx, createOrderItem,
		arg.OrderID, arg.ProductID, arg.Quantity, arg.UnitPrice, arg.Total, arg.VariantSelections, arg.PersonalizationText,
	)
	return err
}

const listOrderItems = `
SELECT id, order_id, product_id, quantity, unit_price, total, variant_selections, personalization_text
FROM order_items
WHERE order_id = $1
ORDER BY id
`

// ListOrderItems returns the line items of one order.
func (q *Queries) ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItems, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []OrderItem
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.Total,
			&item.VariantSelections, &item.PersonalizationText,
		); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

const listRecentOrders = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`

// ListRecentOrders returns newest orders first for admin screens.
func (q *Queries) ListRecentOrders(ctx context.Context, limit, offset int32) ([]Order, error) {
	rows, err := q.db.Query(ctx, listRecentOrders, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, order)
	}
	return result, rows.Err()
}

const countOrdersSince = `SELECT COUNT(*) FROM orders WHERE created_at >= $1`

// CountOrdersSince counts orders created at or after the given time.
func (q *Queries) CountOrdersSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countOrdersSince, since).Scan(&count)
	return count, err
}

const updateOrderFulfillmentStatus = `
UPDATE orders SET fulfillment_status = $2, updated_at = now() WHERE id = $1
`

// UpdateOrderFulfillmentStatus records a fulfillment transition.
func (q *Queries) UpdateOrderFulfillmentStatus(ctx context.Context, id pgtype.UUID, status string) error {
	_, err := q.db.Exec(ctx, updateOrderFulfillmentStatus, id, status)
	return err
}
