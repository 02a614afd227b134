package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gardencraft/storefront-api/internal/db"
	"github.com/gardencraft/storefront-api/internal/events"
	"github.com/gardencraft/storefront-api/internal/pricing"
)

// Permanent ingestion failures. Retrying the same notification cannot fix
// these; the caller should acknowledge and surface them for manual follow-up.
var (
	ErrInvalidPayload       = errors.New("payment notification payload is invalid")
	ErrProductNotFound      = errors.New("ordered product not found")
	ErrVariantNotFound      = errors.New("ordered variant not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrOrderNumberExhausted = errors.New("order number space exhausted")
)

// Querier is the slice of storage operations ingestion uses.
type Querier interface {
	GetOrderBySessionID(ctx context.Context, sessionID string) (db.Order, error)
	OrderNumberExists(ctx context.Context, number string) (bool, error)
	GetProductsWithStock(ctx context.Context, ids []string) ([]db.ProductStockRow, error)
	ListVariantsByProducts(ctx context.Context, ids []string) ([]db.ProductVariant, error)
	DecrementProductStock(ctx context.Context, id pgtype.UUID, qty int32) (int64, error)
	DecrementVariantStock(ctx context.Context, id pgtype.UUID, qty int32) (int64, error)
	CreateOrder(ctx context.Context, arg db.CreateOrderParams) (db.Order, error)
	CreateOrderItem(ctx context.Context, arg db.CreateOrderItemParams) error
}

// Store extends Querier with the ability to run operations inside one
// transaction. The transactional view sees and holds the row locks taken by
// the conditional stock decrements.
type Store interface {
	Querier
	InTx(ctx context.Context, fn func(Querier) error) error
}

// PgxStore backs Store with a pgx connection pool.
type PgxStore struct {
	*db.Queries
	Pool *pgxpool.Pool
}

// NewStore wraps a pool in the ingestion storage interface.
func NewStore(pool *pgxpool.Pool) *PgxStore {
	return &PgxStore{Queries: db.New(pool), Pool: pool}
}

// InTx runs fn inside a single read-committed transaction.
func (s *PgxStore) InTx(ctx context.Context, fn func(Querier) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(s.Queries.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Ingestor turns completed-payment notifications into durable orders. It is
// safe against redelivery: the unique index on stripe_session_id guarantees
// at most one order per session no matter how many times a notification
// arrives or how many instances race on it.
type Ingestor struct {
	Store   Store
	Tax     pricing.Calculator
	Numbers NumberGenerator
	Events  *events.Bus
	Log     zerolog.Logger
	Timeout time.Duration
}

// Ingest processes one notification and returns the order it resolved to.
// A duplicate delivery resolves to the previously created order with
// Duplicate set; only transient storage errors warrant a retry by the caller.
func (ing *Ingestor) Ingest(ctx context.Context, n Notification) (Result, error) {
	if ing.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ing.Timeout)
		defer cancel()
	}
	log := ing.Log.With().Str("sessionId", n.SessionID).Logger()

	if strings.TrimSpace(n.SessionID) == "" {
		return Result{}, fmt.Errorf("%w: missing session id", ErrInvalidPayload)
	}
	items, err := ParseItems(n.Metadata.ItemsJSON)
	if err != nil {
		return Result{}, fmt.Errorf("%w: items metadata: %v", ErrInvalidPayload, err)
	}
	if len(items) == 0 {
		return Result{}, fmt.Errorf("%w: no valid items", ErrInvalidPayload)
	}

	// Fast path for redeliveries: most duplicates are caught here without
	// opening a transaction.
	if existing, err := ing.Store.GetOrderBySessionID(ctx, n.SessionID); err == nil {
		log.Info().Str("orderNumber", existing.OrderNumber).Msg("duplicate payment notification, order already exists")
		return duplicateResult(existing), nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return Result{}, fmt.Errorf("lookup existing order: %w", err)
	}

	totals, branch := ing.deriveTotals(n, items)
	log.Info().
		Str("totals", branch).
		Int64("subtotal", totals.Subtotal).
		Int64("shipping", totals.ShippingCost).
		Int64("tax", totals.TaxAmount).
		Int64("total", totals.Total).
		Msg("derived order totals")

	productQty, variantQty, err := accumulateQuantities(items)
	if err != nil {
		return Result{}, err
	}

	var created db.Order
	txErr := ing.Store.InTx(ctx, func(q Querier) error {
		// Re-check under the transaction: a concurrent delivery may have
		// committed between the fast probe and here.
		if existing, err := q.GetOrderBySessionID(ctx, n.SessionID); err == nil {
			created = existing
			return errAlreadyIngested
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("recheck existing order: %w", err)
		}

		if err := ing.checkAvailability(ctx, q, productQty, variantQty); err != nil {
			return err
		}

		number, err := ing.Numbers.Next(ctx, q)
		if err != nil {
			return err
		}

		for id, qty := range productQty {
			affected, err := q.DecrementProductStock(ctx, id, int32(qty))
			if err != nil {
				return fmt.Errorf("decrement product stock: %w", err)
			}
			if affected == 0 {
				return fmt.Errorf("%w: product %s", ErrInsufficientStock, uuidString(id))
			}
		}
		for key, vq := range variantQty {
			affected, err := q.DecrementVariantStock(ctx, vq.variantID, int32(vq.qty))
			if err != nil {
				return fmt.Errorf("decrement variant stock: %w", err)
			}
			if affected == 0 {
				return fmt.Errorf("%w: variant %s=%s of product %s", ErrInsufficientStock, key.selType, key.selValue, uuidString(vq.variantID))
			}
		}

		address, err := json.Marshal(n.ShippingAddress)
		if err != nil {
			return fmt.Errorf("encode shipping address: %w", err)
		}
		created, err = q.CreateOrder(ctx, db.CreateOrderParams{
			OrderNumber:       number,
			GuestName:         n.CustomerName,
			GuestEmail:        n.CustomerEmail,
			Subtotal:          totals.Subtotal,
			ShippingCost:      totals.ShippingCost,
			TaxAmount:         totals.TaxAmount,
			Total:             totals.Total,
			ShippingAddress:   address,
			PaymentMethod:     "stripe",
			PaymentStatus:     db.PaymentStatusPaid,
			FulfillmentStatus: db.FulfillmentStatusUnfulfilled,
			StripePaymentID:   pgtype.Text{String: n.PaymentIntentID, Valid: n.PaymentIntentID != ""},
			StripeSessionID:   n.SessionID,
			PaidAt:            pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true},
		})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, it := range items {
			productID, err := parseUUID(it.ProductID)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
			}
			selections, err := json.Marshal(it.VariantSelections)
			if err != nil {
				return fmt.Errorf("encode variant selections: %w", err)
			}
			if err := q.CreateOrderItem(ctx, db.CreateOrderItemParams{
				OrderID:             created.ID,
				ProductID:           productID,
				Quantity:            int32(it.Quantity),
				UnitPrice:           it.UnitPrice,
				Total:               it.UnitPrice * pricing.Money(it.Quantity),
				VariantSelections:   selections,
				PersonalizationText: pgtype.Text{String: it.PersonalizationText, Valid: it.PersonalizationText != ""},
			}); err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
		}
		return nil
	})

	switch {
	case txErr == nil:
		ing.emitCreated(ctx, created)
		log.Info().Str("orderNumber", created.OrderNumber).Msg("order ingested")
		return Result{OrderID: uuidString(created.ID), OrderNumber: created.OrderNumber}, nil
	case errors.Is(txErr, errAlreadyIngested):
		log.Info().Str("orderNumber", created.OrderNumber).Msg("duplicate payment notification, order already exists")
		return duplicateResult(created), nil
	}

	// A unique violation on the session id means another delivery won the
	// race after our re-check. Surface the winner's order as a success.
	var pgErr *pgconn.PgError
	if errors.As(txErr, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "stripe_session_id") {
			winner, err := ing.Store.GetOrderBySessionID(ctx, n.SessionID)
			if err != nil {
				return Result{}, fmt.Errorf("lookup winning order: %w", err)
			}
			log.Info().Str("orderNumber", winner.OrderNumber).Msg("lost ingestion race, returning winning order")
			return duplicateResult(winner), nil
		}
		if strings.Contains(pgErr.ConstraintName, "order_number") {
			// Number collided between probe and insert. Retryable.
			return Result{}, fmt.Errorf("order number collision: %w", txErr)
		}
	}

	if isPermanent(txErr) {
		ing.emitFailed(ctx, n, txErr)
		log.Error().Err(txErr).Msg("payment notification cannot be ingested")
	}
	return Result{}, txErr
}

// errAlreadyIngested aborts the transaction when the re-check finds an order.
var errAlreadyIngested = errors.New("order already ingested")

func isPermanent(err error) bool {
	return errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrVariantNotFound) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrOrderNumberExhausted)
}

type orderTotals struct {
	Subtotal     pricing.Money
	ShippingCost pricing.Money
	TaxAmount    pricing.Money
	Total        pricing.Money
}

// deriveTotals prefers the amounts this system pinned into the session
// metadata at quote time. When any of them is missing or malformed it
// recomputes from the item snapshot and the provider's shipping amount.
// Either way the stored total is the sum of its parts, never the provider's
// own total.
func (ing *Ingestor) deriveTotals(n Notification, items []pricing.PricedItem) (orderTotals, string) {
	subtotal, okSub := parseCents(n.Metadata.Subtotal)
	shipping, okShip := parseCents(n.Metadata.ShippingCost)
	tax, okTax := parseCents(n.Metadata.TaxAmount)
	if okSub && okShip && okTax {
		return orderTotals{
			Subtotal:     subtotal,
			ShippingCost: shipping,
			TaxAmount:    tax,
			Total:        subtotal + shipping + tax,
		}, "metadata"
	}

	state := ing.Tax.Normalize(n.Metadata.ShippingState)
	if state == "" {
		state = ing.Tax.Normalize(n.ShippingAddress.State)
	}
	recomputedSubtotal := pricing.Subtotal(items)
	recomputedShipping := n.ShippingAmount
	recomputedTax := ing.Tax.Amount(recomputedSubtotal, recomputedShipping, state)
	return orderTotals{
		Subtotal:     recomputedSubtotal,
		ShippingCost: recomputedShipping,
		TaxAmount:    recomputedTax,
		Total:        recomputedSubtotal + recomputedShipping + recomputedTax,
	}, "recomputed"
}

type variantKey struct {
	productID string
	selType   string
	selValue  string
}

type variantDemand struct {
	selType   string
	selValue  string
	qty       int
	variantID pgtype.UUID
}

// accumulateQuantities sums demand per product and per variant selection
// across all lines before any stock check, so that two lines of the same
// product are checked and decremented as one combined quantity.
func accumulateQuantities(items []pricing.PricedItem) (map[pgtype.UUID]int, map[variantKey]*variantDemand, error) {
	productQty := make(map[pgtype.UUID]int, len(items))
	variantQty := make(map[variantKey]*variantDemand)
	for _, it := range items {
		id, err := parseUUID(it.ProductID)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
		}
		productQty[id] += it.Quantity
		for selType, selValue := range it.VariantSelections {
			key := variantKey{productID: it.ProductID, selType: selType, selValue: selValue}
			if d, ok := variantQty[key]; ok {
				d.qty += it.Quantity
			} else {
				variantQty[key] = &variantDemand{selType: selType, selValue: selValue, qty: it.Quantity}
			}
		}
	}
	return productQty, variantQty, nil
}

// checkAvailability verifies every product exists and every demanded variant
// row exists with enough stock, and resolves variant ids for the decrement
// pass. The conditional decrements remain the authoritative guard; this check
// exists to fail with a precise error instead of a bare shortfall.
func (ing *Ingestor) checkAvailability(ctx context.Context, q Querier, productQty map[pgtype.UUID]int, variantQty map[variantKey]*variantDemand) error {
	ids := make([]string, 0, len(productQty))
	for id := range productQty {
		ids = append(ids, uuidString(id))
	}

	stockRows, err := q.GetProductsWithStock(ctx, ids)
	if err != nil {
		return fmt.Errorf("load product stock: %w", err)
	}
	stockByID := make(map[pgtype.UUID]int32, len(stockRows))
	for _, row := range stockRows {
		stockByID[row.ID] = row.Stock
	}
	for id, qty := range productQty {
		stock, ok := stockByID[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrProductNotFound, uuidString(id))
		}
		if int(stock) < qty {
			return fmt.Errorf("%w: product %s has %d, need %d", ErrInsufficientStock, uuidString(id), stock, qty)
		}
	}

	if len(variantQty) == 0 {
		return nil
	}
	variants, err := q.ListVariantsByProducts(ctx, ids)
	if err != nil {
		return fmt.Errorf("load variants: %w", err)
	}
	byKey := make(map[variantKey]db.ProductVariant, len(variants))
	for _, v := range variants {
		byKey[variantKey{productID: uuidString(v.ProductID), selType: v.Type, selValue: v.Value}] = v
	}
	for key, demand := range variantQty {
		v, ok := byKey[key]
		if !ok {
			return fmt.Errorf("%w: %s=%s on product %s", ErrVariantNotFound, key.selType, key.selValue, key.productID)
		}
		if int(v.Stock) < demand.qty {
			return fmt.Errorf("%w: variant %s=%s has %d, need %d", ErrInsufficientStock, key.selType, key.selValue, v.Stock, demand.qty)
		}
		demand.variantID = v.ID
	}
	return nil
}

func (ing *Ingestor) emitCreated(ctx context.Context, o db.Order) {
	if ing.Events == nil {
		return
	}
	payload := map[string]any{
		"orderNumber": o.OrderNumber,
		"sessionId":   o.StripeSessionID,
		"total":       o.Total,
	}
	if _, err := ing.Events.Emit(ctx, events.TopicOrderCreated, o.ID, payload); err != nil {
		ing.Log.Warn().Err(err).Str("orderNumber", o.OrderNumber).Msg("emit order.created")
	}
}

func (ing *Ingestor) emitFailed(ctx context.Context, n Notification, cause error) {
	if ing.Events == nil {
		return
	}
	// Failures have no order row; key the event by a fresh id so the log
	// still carries one entry per dropped notification.
	payload := map[string]any{
		"sessionId": n.SessionID,
		"reason":    cause.Error(),
	}
	aggregate := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	if _, err := ing.Events.Emit(ctx, events.TopicOrderIngestFailed, aggregate, payload); err != nil {
		ing.Log.Warn().Err(err).Str("sessionId", n.SessionID).Msg("emit order.ingest_failed")
	}
}

func duplicateResult(o db.Order) Result {
	return Result{OrderID: uuidString(o.ID), OrderNumber: o.OrderNumber, Duplicate: true}
}

func parseUUID(s string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return uuid.UUID(id.Bytes).String()
}
