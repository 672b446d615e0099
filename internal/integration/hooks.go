package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/documents"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Reservations is the part of the item store used by checkout.
type Reservations interface {
	Reserve(ctx context.Context, productID, locationID, qty int64) (inventory.Item, error)
	Release(ctx context.Context, productID, locationID, qty int64) (inventory.Item, error)
	Get(ctx context.Context, productID, locationID int64) (inventory.Item, error)
}

// DocumentWriter records instant documents.
type DocumentWriter interface {
	CreateAndConfirm(ctx context.Context, input documents.InstantInput) (documents.Document, error)
}

// refNamespace scopes external references derived from collaborator ids.
var refNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("stockledger.integration"))

func externalRef(kind, id string) string {
	return uuid.NewSHA1(refNamespace, []byte(kind+":"+id)).String()
}

// Order is a checkout order holding stock at one location.
type Order struct {
	ID         string     `json:"id" validate:"required,max=64"`
	LocationID int64      `json:"location_id" validate:"required,gt=0"`
	Lines      []ItemLine `json:"lines" validate:"required,min=1,dive"`
}

// Checkout adapts order lifecycle events to reservations. Placing an order
// reserves its lines, cancelling releases them and fulfilling turns the
// reservation into a writeoff.
type Checkout struct {
	stock     Reservations
	docs      DocumentWriter
	logger    *slog.Logger
	validator *validator.Validate
}

// NewCheckout constructs the checkout adapter.
func NewCheckout(stock Reservations, docs DocumentWriter, logger *slog.Logger) *Checkout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checkout{stock: stock, docs: docs, logger: logger, validator: validator.New()}
}

// PlaceOrder reserves every line or none of them.
func (c *Checkout) PlaceOrder(ctx context.Context, order Order) error {
	if err := httpx.Validate(c.validator, order); err != nil {
		return err
	}
	lines := mergeLines(order.Lines)
	for i, line := range lines {
		if _, err := c.stock.Reserve(ctx, line.ProductID, order.LocationID, line.Quantity); err != nil {
			c.release(ctx, order, lines[:i])
			return fmt.Errorf("integration: reserve order %s: %w", order.ID, err)
		}
	}
	c.logger.Info("order reserved", slog.String("order_id", order.ID), slog.Int("lines", len(lines)))
	return nil
}

// CancelOrder releases the reservation of an order.
func (c *Checkout) CancelOrder(ctx context.Context, order Order) error {
	if err := httpx.Validate(c.validator, order); err != nil {
		return err
	}
	c.release(ctx, order, mergeLines(order.Lines))
	return nil
}

// FulfilOrder writes off the shipped stock and consumes the order's
// reservation in the same locked confirmation, keyed by the order id. A
// repeated call fails with shared.ErrIdempotencyConflict and moves nothing.
func (c *Checkout) FulfilOrder(ctx context.Context, order Order) (documents.Document, error) {
	if err := httpx.Validate(c.validator, order); err != nil {
		return documents.Document{}, err
	}
	doc, err := c.docs.CreateAndConfirm(ctx, documents.InstantInput{
		CreateInput: documents.CreateInput{
			Type:       documents.TypeWriteoff,
			LocationID: order.LocationID,
			Reason:     "order fulfilment",
			Comment:    "order " + order.ID,
		},
		Lines:              writeoffLines(mergeLines(order.Lines)),
		ExternalRef:        externalRef("order", order.ID),
		ConsumeReservation: true,
	})
	if err != nil {
		return documents.Document{}, fmt.Errorf("integration: fulfil order %s: %w", order.ID, err)
	}
	c.logger.Info("order fulfilled", slog.String("order_id", order.ID), slog.String("document", doc.Number))
	return doc, nil
}

func (c *Checkout) release(ctx context.Context, order Order, lines []ItemLine) {
	for _, line := range lines {
		if _, err := c.stock.Release(ctx, line.ProductID, order.LocationID, line.Quantity); err != nil {
			c.logger.Warn("release reservation failed",
				slog.String("order_id", order.ID),
				slog.Int64("product_id", line.ProductID),
				slog.Any("error", err))
		}
	}
}

// Sale is a completed POS sale or return.
type Sale struct {
	ID         string     `json:"id" validate:"required,max=64"`
	LocationID int64      `json:"location_id" validate:"required,gt=0"`
	Terminal   string     `json:"terminal" validate:"max=64"`
	Lines      []ItemLine `json:"lines" validate:"required,min=1,dive"`
}

// POS records terminal sales as instant documents. The sale id is turned
// into the document external reference so a terminal resending a sale does
// not move stock twice.
type POS struct {
	stock     Reservations
	docs      DocumentWriter
	logger    *slog.Logger
	validator *validator.Validate
}

// NewPOS constructs the POS adapter.
func NewPOS(stock Reservations, docs DocumentWriter, logger *slog.Logger) *POS {
	if logger == nil {
		logger = slog.Default()
	}
	return &POS{stock: stock, docs: docs, logger: logger, validator: validator.New()}
}

// RecordSale writes off the sold stock.
func (p *POS) RecordSale(ctx context.Context, sale Sale) (documents.Document, error) {
	if err := httpx.Validate(p.validator, sale); err != nil {
		return documents.Document{}, err
	}
	doc, err := p.docs.CreateAndConfirm(ctx, documents.InstantInput{
		CreateInput: documents.CreateInput{
			Type:       documents.TypeWriteoff,
			LocationID: sale.LocationID,
			Reason:     "sale",
			Comment:    saleComment(sale),
		},
		Lines:       writeoffLines(sale.Lines),
		ExternalRef: externalRef("sale", sale.ID),
	})
	if err != nil {
		return documents.Document{}, err
	}
	p.logger.Info("sale recorded", slog.String("sale_id", sale.ID), slog.String("document", doc.Number))
	return doc, nil
}

// RecordReturn puts returned stock back at the row's current unit cost so
// the return does not move the average.
func (p *POS) RecordReturn(ctx context.Context, sale Sale) (documents.Document, error) {
	if err := httpx.Validate(p.validator, sale); err != nil {
		return documents.Document{}, err
	}
	merged := mergeLines(sale.Lines)
	lines := make([]documents.LineInput, 0, len(merged))
	for _, line := range merged {
		cost := decimal.Zero
		item, err := p.stock.Get(ctx, line.ProductID, sale.LocationID)
		switch {
		case err == nil:
			cost = item.UnitCost
		case !errors.Is(err, shared.ErrNotFound):
			return documents.Document{}, err
		}
		lines = append(lines, documents.LineInput{ProductID: line.ProductID, Quantity: line.Quantity, UnitCost: &cost})
	}
	return p.docs.CreateAndConfirm(ctx, documents.InstantInput{
		CreateInput: documents.CreateInput{
			Type:       documents.TypeReceipt,
			LocationID: sale.LocationID,
			Reason:     "return",
			Comment:    saleComment(sale),
		},
		Lines:       lines,
		ExternalRef: externalRef("return", sale.ID),
	})
}

func saleComment(sale Sale) string {
	if sale.Terminal == "" {
		return "sale " + sale.ID
	}
	return fmt.Sprintf("sale %s on %s", sale.ID, sale.Terminal)
}
