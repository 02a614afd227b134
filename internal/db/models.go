package db

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// Order payment and fulfillment states. Fulfillment transitions happen in the
// admin screens after ingestion; ingestion always writes paid/unfulfilled.
const (
	PaymentStatusPaid = "paid"

	FulfillmentStatusUnfulfilled = "unfulfilled"
	FulfillmentStatusShipped     = "shipped"
	FulfillmentStatusDelivered   = "delivered"
)

// ShippingProfile holds per-product carrier rate rules.
type ShippingProfile struct {
	ID                  pgtype.UUID
	Name                string
	DomesticRate        int64
	AdditionalItemRate  int64
	FreeShippingEnabled bool
	FreeShippingMinimum pgtype.Int8
	CreatedAt           pgtype.Timestamptz
	UpdatedAt           pgtype.Timestamptz
}

// Product is the catalog record read by pricing and mutated (stock only) by ingestion.
type Product struct {
	ID                pgtype.UUID
	Name              string
	Price             int64
	Stock             int32
	Image             pgtype.Text
	ShippingProfileID pgtype.UUID
	CreatedAt         pgtype.Timestamptz
	UpdatedAt         pgtype.Timestamptz
}

// ProductVariant is one (type, value) axis entry with its own stock.
type ProductVariant struct {
	ID        pgtype.UUID
	ProductID pgtype.UUID
	Type      string
	Value     string
	Stock     int32
}

// Order is the durable record created exactly once per payment session.
type Order struct {
	ID                pgtype.UUID
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
	CreatedAt         pgtype.Timestamptz
	UpdatedAt         pgtype.Timestamptz
}

// OrderItem snapshots a line as sold; immutable after creation.
type OrderItem struct {
	ID                  pgtype.UUID
	OrderID             pgtype.UUID
	ProductID           pgtype.UUID
	Quantity            int32
	UnitPrice           int64
	Total               int64
	VariantSelections   []byte
	PersonalizationText pgtype.Text
}

// DomainEvent is an append-only record emitted by the event bus.
type DomainEvent struct {
	ID          pgtype.UUID
	Topic       string
	AggregateID pgtype.UUID
	Payload     []byte
	OccurredAt  pgtype.Timestamptz
}
