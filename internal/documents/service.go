package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/catalog"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/sequence"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

const idempotencyModule = "documents"

// maxKeyRetries bounds how often Confirm re-locks when lines changed
// between the optimistic read and the locked read.
const maxKeyRetries = 3

// Dependencies groups the collaborators of Service. Audit, Idempotency,
// Observer and Hook are optional.
type Dependencies struct {
	Locker      inventory.Locker
	Stock       StockReader
	Locations   LocationLookup
	Products    catalog.ProductChecker
	Sequencer   sequence.Sequencer
	Idempotency IdempotencyPort
	Audit       AuditPort
	Observer    Observer
	Hook        ConfirmHook
	Logger      *slog.Logger
}

// Service is the document engine.
type Service struct {
	repo      Repository
	deps      Dependencies
	logger    *slog.Logger
	validator *validator.Validate
	now       func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		deps:      deps,
		logger:    logger,
		validator: validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HasDraftDocuments lets the location registry refuse deactivation.
func (s *Service) HasDraftDocuments(ctx context.Context, locationID int64) (bool, error) {
	return s.repo.HasDraftDocuments(ctx, locationID)
}

// Get returns a document with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	if id <= 0 {
		return Document{}, ErrDocumentNotFound
	}
	return s.repo.Get(ctx, id)
}

// List returns document headers.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Document, int, error) {
	if filters.Type != "" && !filters.Type.Valid() {
		return nil, 0, fmt.Errorf("unknown type %q: %w", filters.Type, ErrInvalidDocument)
	}
	return s.repo.List(ctx, filters)
}

// Create opens a draft document with a fresh number and no lines.
func (s *Service) Create(ctx context.Context, input CreateInput) (Document, error) {
	doc, err := s.newDraft(ctx, input)
	if err != nil {
		return Document{}, err
	}
	return s.insert(ctx, doc)
}

// OpenStocktaking opens a stocktaking at a location with one line per
// existing row, snapshotting its on-hand quantity as the expected quantity.
func (s *Service) OpenStocktaking(ctx context.Context, locationID int64, comment string) (Document, error) {
	doc, err := s.newDraft(ctx, CreateInput{Type: TypeStocktaking, LocationID: locationID, Comment: comment})
	if err != nil {
		return Document{}, err
	}
	items, err := s.deps.Stock.ListByLocation(ctx, locationID)
	if err != nil {
		return Document{}, err
	}
	for i, item := range items {
		doc.Lines = append(doc.Lines, Line{
			LineNo:           i + 1,
			ProductID:        item.ProductID,
			ExpectedQuantity: item.OnHand,
			UnitCost:         item.UnitCost,
		})
	}
	return s.insert(ctx, doc)
}

func (s *Service) newDraft(ctx context.Context, input CreateInput) (Document, error) {
	if err := httpx.Validate(s.validator, input); err != nil {
		return Document{}, err
	}
	doc := Document{
		Type:                input.Type,
		Status:              StatusDraft,
		Reason:              input.Reason,
		CounterpartyName:    input.CounterpartyName,
		CounterpartyInvoice: input.CounterpartyInvoice,
		Comment:             input.Comment,
		TotalAmount:         decimal.Zero,
		CreatedBy:           shared.ActorFromContext(ctx),
	}
	if input.Type == TypeTransfer {
		if input.FromLocationID == 0 || input.ToLocationID == 0 {
			return Document{}, fmt.Errorf("transfer needs from and to locations: %w", ErrInvalidDocument)
		}
		if input.FromLocationID == input.ToLocationID {
			return Document{}, fmt.Errorf("transfer source and destination must differ: %w", ErrInvalidDocument)
		}
		doc.FromLocationID, doc.ToLocationID = input.FromLocationID, input.ToLocationID
	} else {
		if input.LocationID == 0 {
			return Document{}, fmt.Errorf("location required: %w", ErrInvalidDocument)
		}
		doc.LocationID = input.LocationID
	}
	for _, locationID := range doc.Locations() {
		if _, err := s.deps.Locations.RequireActive(ctx, locationID); err != nil {
			return Document{}, err
		}
	}
	number, err := s.deps.Sequencer.Next(ctx, input.Type.Prefix())
	if err != nil {
		return Document{}, err
	}
	doc.Number = number
	now := s.now()
	doc.CreatedAt, doc.UpdatedAt = now, now
	return doc, nil
}

func (s *Service) insert(ctx context.Context, doc Document) (Document, error) {
	created, err := s.repo.Create(ctx, doc)
	if err != nil {
		return Document{}, err
	}
	s.logger.Info("document created",
		slog.Int64("document_id", created.ID),
		slog.String("number", created.Number),
		slog.String("type", string(created.Type)))
	s.record(ctx, "documents:create", created, nil)
	return created, nil
}

// AddLine appends a line to a draft document.
func (s *Service) AddLine(ctx context.Context, docID int64, input LineInput) (Line, error) {
	var added Line
	err := s.editDraft(ctx, docID, func(ctx context.Context, tx TxRepository, doc *Document) error {
		line, err := s.buildLine(ctx, *doc, Line{LineNo: doc.nextLineNo()}, input)
		if err != nil {
			return err
		}
		if err := s.checkDuplicate(*doc, line); err != nil {
			return err
		}
		added, err = tx.InsertLine(ctx, doc.ID, line)
		if err != nil {
			return err
		}
		doc.Lines = append(doc.Lines, added)
		return nil
	})
	return added, err
}

// UpdateLine replaces the fields of a line on a draft document.
func (s *Service) UpdateLine(ctx context.Context, docID, lineID int64, input LineInput) (Line, error) {
	var updated Line
	err := s.editDraft(ctx, docID, func(ctx context.Context, tx TxRepository, doc *Document) error {
		current, ok := doc.Line(lineID)
		if !ok {
			return ErrLineNotFound
		}
		line, err := s.buildLine(ctx, *doc, current, input)
		if err != nil {
			return err
		}
		if err := s.checkDuplicate(*doc, line); err != nil {
			return err
		}
		if err := tx.UpdateLine(ctx, doc.ID, line); err != nil {
			return err
		}
		for i := range doc.Lines {
			if doc.Lines[i].ID == lineID {
				doc.Lines[i] = line
			}
		}
		updated = line
		return nil
	})
	return updated, err
}

// RemoveLine deletes a line from a draft document.
func (s *Service) RemoveLine(ctx context.Context, docID, lineID int64) error {
	return s.editDraft(ctx, docID, func(ctx context.Context, tx TxRepository, doc *Document) error {
		if _, ok := doc.Line(lineID); !ok {
			return ErrLineNotFound
		}
		if err := tx.DeleteLine(ctx, doc.ID, lineID); err != nil {
			return err
		}
		doc.Lines = slices.DeleteFunc(doc.Lines, func(l Line) bool { return l.ID == lineID })
		return nil
	})
}

// editDraft runs fn against the locked document and refreshes the draft total.
func (s *Service) editDraft(ctx context.Context, docID int64, fn func(context.Context, TxRepository, *Document) error) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if !doc.IsDraft() {
			return ErrDocumentNotEditable
		}
		if err := fn(ctx, tx, &doc); err != nil {
			return err
		}
		return tx.SaveDraftTotal(ctx, doc.ID, doc.draftTotal())
	})
}

// buildLine fills base from input according to the document type.
func (s *Service) buildLine(ctx context.Context, doc Document, base Line, input LineInput) (Line, error) {
	if err := httpx.Validate(s.validator, input); err != nil {
		return Line{}, err
	}
	eff, err := effectFor(doc.Type)
	if err != nil {
		return Line{}, err
	}
	exists, err := s.deps.Products.ProductExists(ctx, input.ProductID)
	if err != nil {
		return Line{}, err
	}
	if !exists {
		return Line{}, fmt.Errorf("product %d: %w", input.ProductID, ErrProductNotFound)
	}

	line := Line{ID: base.ID, LineNo: base.LineNo, ProductID: input.ProductID}
	switch doc.Type {
	case TypeReceipt:
		if input.UnitCost == nil {
			return Line{}, lineError(line, "unit cost required")
		}
		line.Quantity = input.Quantity
		line.UnitCost = *input.UnitCost
	case TypeWriteoff, TypeTransfer:
		line.Quantity = input.Quantity
	case TypeRevaluation:
		if input.NewUnitCost == nil {
			return Line{}, lineError(line, "new unit cost required")
		}
		line.NewUnitCost = *input.NewUnitCost
		if input.OldUnitCost != nil {
			line.OldUnitCost = *input.OldUnitCost
		} else {
			item, err := s.currentItem(ctx, doc.LocationID, input.ProductID)
			if err != nil {
				return Line{}, err
			}
			line.OldUnitCost = item.UnitCost
		}
	case TypeStocktaking:
		line.CountedQuantity = input.CountedQuantity
		if base.ID != 0 && base.ProductID == input.ProductID {
			line.ExpectedQuantity = base.ExpectedQuantity
			line.UnitCost = base.UnitCost
		} else {
			item, err := s.currentItem(ctx, doc.LocationID, input.ProductID)
			if err != nil {
				return Line{}, err
			}
			line.ExpectedQuantity = item.OnHand
			line.UnitCost = item.UnitCost
		}
	}
	if err := eff.checkLine(line); err != nil {
		return Line{}, err
	}
	return line, nil
}

// checkDuplicate rejects a second line for the same product where the
// effect sets an absolute value.
func (s *Service) checkDuplicate(doc Document, line Line) error {
	if doc.Type != TypeRevaluation && doc.Type != TypeStocktaking {
		return nil
	}
	for _, other := range doc.Lines {
		if other.ID != line.ID && other.ProductID == line.ProductID {
			return lineError(line, fmt.Sprintf("product %d already on line %d", line.ProductID, other.LineNo))
		}
	}
	return nil
}

func (s *Service) currentItem(ctx context.Context, locationID, productID int64) (inventory.Item, error) {
	item, err := s.deps.Stock.Get(ctx, productID, locationID)
	if errors.Is(err, shared.ErrNotFound) {
		return inventory.Item{LocationID: locationID, ProductID: productID}, nil
	}
	return item, err
}

// Cancel moves a draft to CANCELLED. No stock is touched.
func (s *Service) Cancel(ctx context.Context, docID int64) (Document, error) {
	var cancelled Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if !doc.IsDraft() {
			return ErrAlreadyFinalized
		}
		at := s.now()
		if err := tx.MarkCancelled(ctx, docID, at); err != nil {
			return err
		}
		doc.Status = StatusCancelled
		doc.CancelledAt = &at
		cancelled = doc
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.logger.Info("document cancelled", slog.Int64("document_id", docID), slog.String("number", cancelled.Number))
	s.record(ctx, "documents:cancel", cancelled, nil)
	return cancelled, nil
}

// Confirm applies the stock effect of a draft exactly once. Either every
// row change and the status transition commit together, or the document
// stays a draft and the error is returned unchanged.
func (s *Service) Confirm(ctx context.Context, docID int64) (Document, error) {
	start := time.Now()
	doc, err := s.confirm(ctx, docID)
	docType := string(doc.Type)
	if err != nil {
		s.observe(docType, outcome(err), start)
		s.logger.Info("document confirmation failed", slog.Int64("document_id", docID), slog.Any("error", err))
		return Document{}, err
	}
	s.observe(docType, "confirmed", start)
	s.logger.Info("document confirmed",
		slog.Int64("document_id", doc.ID),
		slog.String("number", doc.Number),
		slog.String("type", docType),
		slog.String("total", doc.TotalAmount.StringFixed(2)),
		slog.Int("drift_lines", len(doc.DriftLines())))
	s.record(ctx, "documents:confirm", doc, map[string]any{"total": doc.TotalAmount.String()})
	if s.deps.Hook != nil {
		if err := s.deps.Hook.DocumentConfirmed(ctx, doc); err != nil {
			s.logger.Warn("confirm hook failed", slog.Int64("document_id", doc.ID), slog.Any("error", err))
		}
	}
	return doc, nil
}

var errKeysChanged = errors.New("documents: lines changed while locking")

func (s *Service) confirm(ctx context.Context, docID int64) (Document, error) {
	doc, err := s.repo.Get(ctx, docID)
	if err != nil {
		return Document{}, err
	}
	for attempt := 0; ; attempt++ {
		if !doc.IsDraft() {
			return doc, ErrAlreadyFinalized
		}
		eff, err := effectFor(doc.Type)
		if err != nil {
			return doc, err
		}
		keys := inventory.SortKeys(eff.keys(doc))
		if len(keys) == 0 {
			return doc, ErrEmptyDocument
		}
		confirmed, latest, err := s.confirmLocked(ctx, docID, keys)
		if errors.Is(err, errKeysChanged) && attempt < maxKeyRetries {
			doc = latest
			continue
		}
		if errors.Is(err, errKeysChanged) {
			return latest, fmt.Errorf("documents: lines kept changing during confirmation: %w", shared.ErrConcurrencyConflict)
		}
		if err != nil {
			return doc, err
		}
		return confirmed, nil
	}
}

// confirmLocked holds the row locks for keys and runs the transaction. When
// the locked document needs other rows it returns errKeysChanged and the
// latest document.
func (s *Service) confirmLocked(ctx context.Context, docID int64, keys []inventory.Key) (Document, Document, error) {
	release, err := s.deps.Locker.Acquire(ctx, keys)
	if err != nil {
		return Document{}, Document{}, err
	}
	defer release()

	var confirmed, latest Document
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		latest = doc
		if !doc.IsDraft() {
			return ErrAlreadyFinalized
		}
		eff, err := effectFor(doc.Type)
		if err != nil {
			return err
		}
		if !slices.Equal(inventory.SortKeys(eff.keys(doc)), keys) {
			return errKeysChanged
		}
		rows, err := tx.Inventory().LockItems(ctx, keys)
		if err != nil {
			return err
		}
		now := s.now()
		batch := inventory.NewBatch(rows, inventory.Reference{
			Type:   "DOCUMENT",
			ID:     strconv.FormatInt(doc.ID, 10),
			Number: doc.Number,
			Note:   doc.Reason,
		}, now)
		total, err := eff.apply(&doc, batch)
		if err != nil {
			return err
		}
		if err := batch.Commit(ctx, tx.Inventory()); err != nil {
			return err
		}
		doc.Status = StatusConfirmed
		doc.ConfirmedAt = &now
		doc.ConfirmedBy = shared.ActorFromContext(ctx)
		doc.TotalAmount = total
		doc.UpdatedAt = now
		if err := tx.MarkConfirmed(ctx, doc); err != nil {
			return err
		}
		confirmed = doc
		return nil
	})
	return confirmed, latest, err
}

// CreateAndConfirm records a document in one call, as a POS sale does. If
// any step after creation fails the draft is cancelled so it never blocks
// its location, and the original error is returned.
func (s *Service) CreateAndConfirm(ctx context.Context, input InstantInput) (Document, error) {
	if err := httpx.Validate(s.validator, input); err != nil {
		return Document{}, err
	}
	if input.ExternalRef != "" && s.deps.Idempotency != nil {
		if err := s.deps.Idempotency.CheckAndInsert(ctx, input.ExternalRef, idempotencyModule); err != nil {
			return Document{}, err
		}
	}
	doc, err := s.createAndConfirm(ctx, input)
	if err != nil && input.ExternalRef != "" && s.deps.Idempotency != nil {
		if delErr := s.deps.Idempotency.Delete(ctx, input.ExternalRef); delErr != nil {
			s.logger.Warn("release idempotency key", slog.String("external_ref", input.ExternalRef), slog.Any("error", delErr))
		}
	}
	return doc, err
}

func (s *Service) createAndConfirm(ctx context.Context, input InstantInput) (Document, error) {
	if input.ConsumeReservation && input.Type != TypeWriteoff {
		return Document{}, fmt.Errorf("only writeoffs consume reservations: %w", ErrInvalidDocument)
	}
	doc, err := s.newDraft(ctx, input.CreateInput)
	if err != nil {
		return Document{}, err
	}
	doc.ExternalRef = input.ExternalRef
	doc.ConsumesReservation = input.ConsumeReservation
	doc, err = s.insert(ctx, doc)
	if err != nil {
		return Document{}, err
	}
	confirmed, err := s.fillAndConfirm(ctx, doc.ID, input.Lines)
	if err != nil {
		if _, cancelErr := s.Cancel(ctx, doc.ID); cancelErr != nil {
			s.logger.Error("cancel failed instant document",
				slog.Int64("document_id", doc.ID),
				slog.Any("error", cancelErr))
		}
		return Document{}, err
	}
	return confirmed, nil
}

func (s *Service) fillAndConfirm(ctx context.Context, docID int64, lines []LineInput) (Document, error) {
	for _, line := range lines {
		if _, err := s.AddLine(ctx, docID, line); err != nil {
			return Document{}, err
		}
	}
	return s.Confirm(ctx, docID)
}

func (s *Service) observe(docType, result string, start time.Time) {
	if s.deps.Observer != nil {
		s.deps.Observer.ObserveConfirmation(docType, result, time.Since(start))
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, shared.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, shared.ErrInvalidReservation):
		return "invalid_reservation"
	case errors.Is(err, shared.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, shared.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

func (s *Service) record(ctx context.Context, action string, doc Document, meta map[string]any) {
	if s.deps.Audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = doc.Number
	meta["type"] = string(doc.Type)
	err := s.deps.Audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "inventory_document",
		EntityID: strconv.FormatInt(doc.ID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit document change", slog.String("action", action), slog.Any("error", err))
	}
}
