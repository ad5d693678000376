package cart

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/noah-isme/backend-impor/internal/compat"
	"github.com/noah-isme/backend-impor/internal/pricing"
)

// Pricer binds quotes to a rate snapshot.
type Pricer interface {
	Snapshot(ctx context.Context, version *int64) (*pricing.RateSnapshot, error)
	Price(snap *pricing.RateSnapshot, sourcePrice int64, weightKg float64, category pricing.Category) (pricing.Breakdown, error)
}

// ItemRequest asks for qty units of one part.
type ItemRequest struct {
	PartID string `json:"partId" validate:"required,max=64"`
	Qty    int    `json:"qty" validate:"required,gt=0,lte=1000"`
}

// Request is a cart to assemble.
type Request struct {
	CartID          string        `json:"cartId,omitempty" validate:"omitempty,max=64"`
	VehicleID       string        `json:"vehicleId,omitempty" validate:"omitempty,max=64"`
	SnapshotVersion *int64        `json:"snapshotVersion,omitempty" validate:"omitempty,gte=0"`
	Items           []ItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

// Line is an accepted, priced cart line.
type Line struct {
	PartID    string            `json:"partId"`
	Name      string            `json:"name"`
	Brand     string            `json:"brand"`
	Qty       int               `json:"qty"`
	Unit      pricing.Breakdown `json:"unit"`
	LineTotal pricing.Money     `json:"lineTotal"`
	Note      string            `json:"note,omitempty"`
}

// Rejection explains why a requested item was not added.
type Rejection struct {
	PartID            string   `json:"partId"`
	Qty               int      `json:"qty"`
	Code              string   `json:"code"`
	Reason            string   `json:"reason"`
	QuantityAvailable int64    `json:"quantityAvailable"`
	Alternatives      []string `json:"alternatives,omitempty"`
}

// Cart is the assembled result. Only a cart without rejections may be committed.
type Cart struct {
	ID              string          `json:"id"`
	VehicleID       string          `json:"vehicleId,omitempty"`
	Currency        string          `json:"currency"`
	SnapshotVersion int64           `json:"snapshotVersion"`
	Lines           []Line          `json:"lines"`
	Rejections      []Rejection     `json:"rejections"`
	Totals          pricing.Summary `json:"totals"`
}

// Committable reports whether every requested item was accepted.
func (c Cart) Committable() bool {
	return len(c.Lines) > 0 && len(c.Rejections) == 0
}

// Assembler composes the compatibility check, the stock check and the pricing
// engine into cart lines.
type Assembler struct {
	resolver *compat.Resolver
	pricer   Pricer
}

// NewAssembler constructs an Assembler.
func NewAssembler(resolver *compat.Resolver, pricer Pricer) (*Assembler, error) {
	if resolver == nil || pricer == nil {
		return nil, errors.New("cart: resolver and pricer are required")
	}
	return &Assembler{resolver: resolver, pricer: pricer}, nil
}

// Assemble prices every item that passes both the compatibility and the stock
// check against one snapshot. Items that fail are returned as rejections, not
// errors; only a missing rate snapshot fails the whole call.
func (a *Assembler) Assemble(ctx context.Context, req Request) (Cart, error) {
	rates, err := a.pricer.Snapshot(ctx, req.SnapshotVersion)
	if err != nil {
		return Cart{}, err
	}
	resolver := a.resolver.Pin()
	snap := resolver.Snapshot()

	cart := Cart{
		ID:              strings.TrimSpace(req.CartID),
		VehicleID:       strings.TrimSpace(req.VehicleID),
		Currency:        rates.DestinationCurrency,
		SnapshotVersion: rates.Version,
		Lines:           []Line{},
		Rejections:      []Rejection{},
	}
	if cart.ID == "" {
		cart.ID = uuid.NewString()
	}

	for _, item := range mergeItems(req.Items) {
		if item.Qty <= 0 {
			cart.Rejections = append(cart.Rejections, Rejection{PartID: item.PartID, Qty: item.Qty, Code: "INVALID_INPUT", Reason: "quantity must be positive"})
			continue
		}
		res := resolver.CheckCompatibility(cart.VehicleID, item.PartID)
		if !res.Compatible {
			cart.Rejections = append(cart.Rejections, Rejection{
				PartID:       item.PartID,
				Qty:          item.Qty,
				Code:         res.Code,
				Reason:       res.Reason,
				Alternatives: res.Alternatives,
			})
			continue
		}
		stock := resolver.CheckStock(item.PartID)
		if !stock.InStock || int64(item.Qty) > stock.QuantityAvailable {
			code, reason := stock.Code, stock.Reason
			if stock.InStock {
				code, reason = compat.CodeOutOfStock, "only "+strconv.FormatInt(stock.QuantityAvailable, 10)+" left in stock"
			}
			cart.Rejections = append(cart.Rejections, Rejection{
				PartID:            item.PartID,
				Qty:               item.Qty,
				Code:              code,
				Reason:            reason,
				QuantityAvailable: stock.QuantityAvailable,
			})
			continue
		}
		part, _ := snap.Part(item.PartID)
		unit, err := a.pricer.Price(rates, part.UnitPrice, part.WeightKg, part.Category)
		if err != nil {
			if errors.Is(err, pricing.ErrInvalidInput) {
				cart.Rejections = append(cart.Rejections, Rejection{PartID: item.PartID, Qty: item.Qty, Code: "INVALID_INPUT", Reason: err.Error()})
				continue
			}
			return Cart{}, err
		}
		cart.Lines = append(cart.Lines, Line{
			PartID:    part.ID,
			Name:      part.Name,
			Brand:     part.Brand,
			Qty:       item.Qty,
			Unit:      unit,
			LineTotal: unit.FinalPrice * pricing.Money(item.Qty),
			Note:      res.Note,
		})
	}

	cart.Totals = pricing.Compute(lo.Map(cart.Lines, func(l Line, _ int) pricing.Item {
		return pricing.Item{Qty: l.Qty, Unit: l.Unit}
	}))
	return cart, nil
}

// mergeItems folds repeated part IDs into one request, keeping first-seen order.
func mergeItems(items []ItemRequest) []ItemRequest {
	out := make([]ItemRequest, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		it.PartID = strings.TrimSpace(it.PartID)
		if i, ok := index[it.PartID]; ok {
			out[i].Qty += it.Qty
			continue
		}
		index[it.PartID] = len(out)
		out = append(out, it)
	}
	return out
}
