package order

import (
	"errors"
	"time"

	"github.com/noah-isme/backend-impor/internal/cart"
	"github.com/noah-isme/backend-impor/internal/pricing"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order: not found")
	// ErrOutOfStock is returned when stock ran out between assembly and commit.
	ErrOutOfStock = errors.New("order: out of stock")
	// ErrRejected is returned when the cart still has rejected items.
	ErrRejected = errors.New("order: cart has rejected items")
	// ErrContention is returned when Postgres aborted the commit transaction
	// because of a deadlock or a serialization failure. The commit can be retried.
	ErrContention = errors.New("order: commit aborted by concurrent transaction")
)

// StatusPlaced is the only status this service assigns; fulfilment happens downstream.
const StatusPlaced = "PLACED"

// Order is a committed cart.
type Order struct {
	ID              string          `json:"id"`
	CartID          string          `json:"cartId"`
	VehicleID       string          `json:"vehicleId,omitempty"`
	Status          string          `json:"status"`
	Currency        string          `json:"currency"`
	SnapshotVersion int64           `json:"snapshotVersion"`
	Totals          pricing.Summary `json:"totals"`
	Items           []Item          `json:"items"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Item is a stored order line. Unit prices are frozen at commit time.
type Item struct {
	PartID        string        `json:"partId"`
	Name          string        `json:"name"`
	Qty           int           `json:"qty"`
	UnitSupplier  pricing.Money `json:"unitSupplier"`
	UnitTransport pricing.Money `json:"unitTransport"`
	UnitCustoms   pricing.Money `json:"unitCustoms"`
	UnitMargin    pricing.Money `json:"unitMargin"`
	UnitPrice     pricing.Money `json:"unitPrice"`
	LineTotal     pricing.Money `json:"lineTotal"`
}

// StockError names the part whose conditional decrement failed.
type StockError struct {
	PartID    string
	Requested int
}

func (e *StockError) Error() string {
	return "order: part " + e.PartID + " no longer has enough stock"
}

// Unwrap lets errors.Is match ErrOutOfStock.
func (e *StockError) Unwrap() error { return ErrOutOfStock }

// RejectedError carries the assembled cart whose rejections blocked the commit.
type RejectedError struct {
	Cart cart.Cart
}

func (e *RejectedError) Error() string { return ErrRejected.Error() }

// Unwrap lets errors.Is match ErrRejected.
func (e *RejectedError) Unwrap() error { return ErrRejected }

func fromCart(c cart.Cart) Order {
	o := Order{
		CartID:          c.ID,
		VehicleID:       c.VehicleID,
		Status:          StatusPlaced,
		Currency:        c.Currency,
		SnapshotVersion: c.SnapshotVersion,
		Totals:          c.Totals,
		Items:           make([]Item, 0, len(c.Lines)),
	}
	for _, l := range c.Lines {
		o.Items = append(o.Items, Item{
			PartID:        l.PartID,
			Name:          l.Name,
			Qty:           l.Qty,
			UnitSupplier:  l.Unit.SupplierPrice,
			UnitTransport: l.Unit.TransportCost,
			UnitCustoms:   l.Unit.CustomsCost,
			UnitMargin:    l.Unit.MarginCost,
			UnitPrice:     l.Unit.FinalPrice,
			LineTotal:     l.LineTotal,
		})
	}
	return o
}
