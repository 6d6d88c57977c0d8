package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderMessage is the inbound event read from the orders topic. It is
// immutable once received.
type OrderMessage struct {
	OrderID    string                 `json:"orderId"`
	CustomerID string                 `json:"customerId"`
	Products   []OrderMessageProduct  `json:"products"`
}

// OrderMessageProduct is one line item of an inbound OrderMessage.
type OrderMessageProduct struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Validate enforces the parse-time shape rules from the data model: a
// non-blank orderId and customerId, and a non-empty product list with
// positive quantities. It does not touch the catalog.
func (m OrderMessage) Validate() error {
	if m.OrderID == "" {
		return NewMalformed("orderId is blank")
	}
	if m.CustomerID == "" {
		return NewMalformed("customerId is blank")
	}
	if len(m.Products) == 0 {
		return NewMalformed("products is empty")
	}
	for _, p := range m.Products {
		if p.ProductID == "" {
			return NewMalformed("productId is blank")
		}
		if p.Quantity <= 0 {
			return NewMalformed("quantity must be positive")
		}
	}
	return nil
}

// UniqueProductIDs returns the distinct productIds referenced by the
// message, preserving first-seen order.
func (m OrderMessage) UniqueProductIDs() []string {
	seen := make(map[string]struct{}, len(m.Products))
	ids := make([]string, 0, len(m.Products))
	for _, p := range m.Products {
		if _, ok := seen[p.ProductID]; ok {
			continue
		}
		seen[p.ProductID] = struct{}{}
		ids = append(ids, p.ProductID)
	}
	return ids
}

// OrderStatus is the terminal or transient state of a persisted order.
type OrderStatus string

const (
	StatusProcessed OrderStatus = "PROCESSED"
	StatusFailed    OrderStatus = "FAILED"
	StatusRetry     OrderStatus = "RETRY"
)

// CustomerStatus mirrors the catalog's enumeration of account states.
type CustomerStatus string

const (
	CustomerActive   CustomerStatus = "ACTIVE"
	CustomerInactive CustomerStatus = "INACTIVE"
)

// Customer is the catalog's view of an account, as returned by C1.
type Customer struct {
	CustomerID string         `json:"customerId"`
	Name       string         `json:"name"`
	Status     CustomerStatus `json:"status"`
}

// Product is the catalog's view of a sellable item, as returned by C1.
type Product struct {
	ProductID   string          `json:"productId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	InStock     bool            `json:"inStock"`
}

// IsValid reports whether the catalog's view of a product satisfies the
// enrichment validity rule: named, priced, and in stock.
func (p Product) IsValid() bool {
	return p.Name != "" && p.Price.IsPositive() && p.InStock
}

// EnrichedProduct is the persisted, priced line item embedded in an
// EnrichedOrder.
type EnrichedProduct struct {
	ProductID   string          `bson:"productId" json:"productId"`
	Name        string          `bson:"name" json:"name"`
	Description string          `bson:"description" json:"description"`
	Price       decimal.Decimal `bson:"price" json:"price"`
	Quantity    int             `bson:"quantity" json:"quantity"`
	Subtotal    decimal.Decimal `bson:"subtotal" json:"subtotal"`
}

// EnrichedOrder is the persisted record, keyed by OrderID (unique).
type EnrichedOrder struct {
	OrderID        string            `bson:"orderId" json:"orderId"`
	CustomerID     string            `bson:"customerId" json:"customerId"`
	CustomerName   string            `bson:"customerName" json:"customerName"`
	CustomerStatus CustomerStatus    `bson:"customerStatus" json:"customerStatus"`
	Products       []EnrichedProduct `bson:"products" json:"products"`
	TotalAmount    decimal.Decimal   `bson:"totalAmount" json:"totalAmount"`
	ProcessedAt    time.Time         `bson:"processedAt" json:"processedAt"`
	Status         OrderStatus       `bson:"status" json:"status"`
}
