package documents

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockledger/internal/catalog"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/locations"
	"github.com/odyssey-erp/stockledger/internal/sequence"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

type recordingHook struct {
	mu   sync.Mutex
	docs []Document
}

func (h *recordingHook) DocumentConfirmed(_ context.Context, doc Document) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.docs = append(h.docs, doc)
	return nil
}

type fixture struct {
	svc       *Service
	stock     *inventory.Store
	locations *locations.Service
	products  *catalog.MemoryChecker
	hook      *recordingHook
	store     int64
	warehouse int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	locker := inventory.NewLocalLocker(0, nil)
	stockRepo := inventory.NewMemoryRepository()
	stock := inventory.NewStore(stockRepo, locker, nil, logger)
	locs := locations.NewService(locations.NewMemoryRepository(), nil, nil, logger)

	store, err := locs.Create(ctx, locations.CreateInput{Code: "S1", Name: "Main Street", Kind: locations.KindStore})
	require.NoError(t, err)
	warehouse, err := locs.Create(ctx, locations.CreateInput{Code: "W1", Name: "Central", Kind: locations.KindWarehouse})
	require.NoError(t, err)

	products := catalog.NewMemoryChecker(1, 2, 3)
	hook := &recordingHook{}
	svc := NewService(NewMemoryRepository(stockRepo), Dependencies{
		Locker:      locker,
		Stock:       stock,
		Locations:   locs,
		Products:    products,
		Sequencer:   sequence.NewMemorySequencer(),
		Idempotency: shared.NewMemoryIdempotencyStore(),
		Hook:        hook,
		Logger:      logger,
	})
	locs.SetDraftChecker(svc)
	return &fixture{svc: svc, stock: stock, locations: locs, products: products, hook: hook, store: store.ID, warehouse: warehouse.ID}
}

func amount(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func qty(n int64) *int64 { return &n }

func (f *fixture) receive(t *testing.T, locationID, productID, quantity int64, unitCost string) Document {
	t.Helper()
	doc, err := f.svc.CreateAndConfirm(context.Background(), InstantInput{
		CreateInput: CreateInput{Type: TypeReceipt, LocationID: locationID},
		Lines:       []LineInput{{ProductID: productID, Quantity: quantity, UnitCost: amount(unitCost)}},
	})
	require.NoError(t, err)
	return doc
}

func (f *fixture) item(t *testing.T, locationID, productID int64) inventory.Item {
	t.Helper()
	item, err := f.stock.Get(context.Background(), productID, locationID)
	require.NoError(t, err)
	return item
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s got %s", want, got)
}

func TestReceiptLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := shared.ContextWithActor(context.Background(), 7)

	doc, err := f.svc.Create(ctx, CreateInput{Type: TypeReceipt, LocationID: f.store, CounterpartyName: "Acme"})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, doc.Status)
	require.Regexp(t, `^RCP-\d{8}-00001$`, doc.Number)
	require.EqualValues(t, 7, doc.CreatedBy)

	_, err = f.svc.AddLine(ctx, doc.ID, LineInput{ProductID: 1, Quantity: 10, UnitCost: amount("100")})
	require.NoError(t, err)
	_, err = f.svc.AddLine(ctx, doc.ID, LineInput{ProductID: 2, Quantity: 4, UnitCost: amount("2.50")})
	require.NoError(t, err)

	draft, err := f.svc.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, draft.Lines, 2)
	requireAmount(t, "1010", draft.TotalAmount)

	confirmed, err := f.svc.Confirm(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)
	require.EqualValues(t, 7, confirmed.ConfirmedBy)
	requireAmount(t, "1010", confirmed.TotalAmount)

	item := f.item(t, f.store, 1)
	require.EqualValues(t, 10, item.OnHand)
	requireAmount(t, "100", item.UnitCost)

	movements, err := f.stock.ListMovements(ctx, inventory.MovementFilter{LocationID: f.store, ProductID: 1})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, inventory.MovementReceipt, movements[0].Kind)
	require.Equal(t, doc.Number, movements[0].Ref.Number)
	require.Len(t, f.hook.docs, 1)
}

func TestFinalizedDocumentsRejectChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	confirmed := f.receive(t, f.store, 1, 5, "10")

	_, err := f.svc.Confirm(ctx, confirmed.ID)
	require.ErrorIs(t, err, ErrAlreadyFinalized)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.EqualValues(t, 5, f.item(t, f.store, 1).OnHand)

	_, err = f.svc.Cancel(ctx, confirmed.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = f.svc.AddLine(ctx, confirmed.ID, LineInput{ProductID: 2, Quantity: 1, UnitCost: amount("1")})
	require.ErrorIs(t, err, ErrDocumentNotEditable)

	draft, err := f.svc.Create(ctx, CreateInput{Type: TypeWriteoff, LocationID: f.store})
	require.NoError(t, err)
	_, err = f.svc.AddLine(ctx, draft.ID, LineInput{ProductID: 1, Quantity: 2})
	require.NoError(t, err)
	cancelled, err := f.svc.Cancel(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	_, err = f.svc.Confirm(ctx, draft.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	_, err = f.svc.Cancel(ctx, draft.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.EqualValues(t, 5, f.item(t, f.store, 1).OnHand)
}

func TestConfirmEmptyDocument(t *testing.T) {
	f := newFixture(t)
	doc, err := f.svc.Create(context.Background(), CreateInput{Type: TypeWriteoff, LocationID: f.store})
	require.NoError(t, err)

	_, err = f.svc.Confirm(context.Background(), doc.ID)
	require.ErrorIs(t, err, ErrEmptyDocument)

	got, err := f.svc.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, got.Status)
}

func TestTransferIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, f.warehouse, 1, 5, "20")
	f.receive(t, f.warehouse, 2, 1, "3")

	doc, err := f.svc.Create(ctx, CreateInput{Type: TypeTransfer, FromLocationID: f.warehouse, ToLocationID: f.store})
	require.NoError(t, err)
	_, err = f.svc.AddLine(ctx, doc.ID, LineInput{ProductID: 1, Quantity: 3})
	require.NoError(t, err)
	second, err := f.svc.AddLine(ctx, doc.ID, LineInput{ProductID: 2, Quantity: 2})
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, doc.ID)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	var stockErr *shared.StockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, 2, stockErr.Line)
	require.EqualValues(t, f.warehouse, stockErr.LocationID)
	require.EqualValues(t, 1, stockErr.OnHand)

	require.EqualValues(t, 5, f.item(t, f.warehouse, 1).OnHand)
	_, err = f.stock.Get(ctx, 1, f.store)
	require.ErrorIs(t, err, shared.ErrNotFound)
	got, err := f.svc.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, got.Status)

	_, err = f.svc.UpdateLine(ctx, doc.ID, second.ID, LineInput{ProductID: 2, Quantity: 1})
	require.NoError(t, err)
	confirmed, err := f.svc.Confirm(ctx, doc.ID)
	require.NoError(t, err)
	requireAmount(t, "63", confirmed.TotalAmount)

	require.EqualValues(t, 2, f.item(t, f.warehouse, 1).OnHand)
	moved := f.item(t, f.store, 1)
	require.EqualValues(t, 3, moved.OnHand)
	requireAmount(t, "20", moved.UnitCost)
	require.EqualValues(t, 0, f.item(t, f.warehouse, 2).OnHand)
}

func TestReceiptTransferReserveScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	receipt := f.receive(t, f.warehouse, 1, 100, "50")
	requireAmount(t, "5000", receipt.TotalAmount)

	transfer, err := f.svc.CreateAndConfirm(ctx, InstantInput{
		CreateInput: CreateInput{Type: TypeTransfer, FromLocationID: f.warehouse, ToLocationID: f.store},
		Lines:       []LineInput{{ProductID: 1, Quantity: 30}},
	})
	require.NoError(t, err)
	requireAmount(t, "1500", transfer.TotalAmount)

	_, err = f.stock.Reserve(ctx, 1, f.store, 10)
	require.NoError(t, err)

	source := f.item(t, f.warehouse, 1)
	require.EqualValues(t, 70, source.OnHand)
	require.EqualValues(t, 0, source.Reserved)
	requireAmount(t, "50", source.UnitCost)

	dest := f.item(t, f.store, 1)
	require.EqualValues(t, 30, dest.OnHand)
	require.EqualValues(t, 10, dest.Reserved)
	require.EqualValues(t, 20, dest.Available())
	requireAmount(t, "50", dest.UnitCost)
}

func TestWriteoffConsumingReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, f.store, 1, 10, "4")
	_, err := f.stock.Reserve(ctx, 1, f.store, 6)
	require.NoError(t, err)

	input := InstantInput{
		CreateInput:        CreateInput{Type: TypeWriteoff, LocationID: f.store, Reason: "order fulfilment"},
		Lines:              []LineInput{{ProductID: 1, Quantity: 8}},
		ConsumeReservation: true,
	}
	_, err = f.svc.CreateAndConfirm(ctx, input)
	require.ErrorIs(t, err, shared.ErrInvalidReservation)
	require.EqualValues(t, 6, f.item(t, f.store, 1).Reserved)

	input.Lines[0].Quantity = 6
	doc, err := f.svc.CreateAndConfirm(ctx, input)
	require.NoError(t, err)
	require.True(t, doc.ConsumesReservation)
	item := f.item(t, f.store, 1)
	require.EqualValues(t, 4, item.OnHand)
	require.EqualValues(t, 0, item.Reserved)

	_, err = f.svc.CreateAndConfirm(ctx, InstantInput{
		CreateInput:        CreateInput{Type: TypeReceipt, LocationID: f.store},
		Lines:              []LineInput{{ProductID: 1, Quantity: 1, UnitCost: amount("1")}},
		ConsumeReservation: true,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestTransferValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), CreateInput{Type: TypeTransfer, FromLocationID: f.store, ToLocationID: f.store})
	require.ErrorIs(t, err, ErrInvalidDocument)
	_, err = f.svc.Create(context.Background(), CreateInput{Type: TypeTransfer, FromLocationID: f.store})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestStocktakingAppliesDiscrepancy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, f.store, 1, 50, "10")

	doc, err := f.svc.OpenStocktaking(ctx, f.store, "monthly count")
	require.NoError(t, err)
	require.Len(t, doc.Lines, 1)
	require.EqualValues(t, 50, doc.Lines[0].ExpectedQuantity)

	_, err = f.svc.UpdateLine(ctx, doc.ID, doc.Lines[0].ID, LineInput{ProductID: 1, CountedQuantity: qty(47)})
	require.NoError(t, err)

	confirmed, err := f.svc.Confirm(ctx, doc.ID)
	require.NoError(t, err)
	requireAmount(t, "-30", confirmed.TotalAmount)
	require.Empty(t, confirmed.DriftLines())
	require.EqualValues(t, 47, f.item(t, f.store, 1).OnHand)
}

func TestStocktakingFlagsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, f.store, 1, 50, "10")
	f.receive(t, f.store, 2, 8, "4")

	doc, err := f.svc.OpenStocktaking(ctx, f.store, "")
	require.NoError(t, err)
	require.Len(t, doc.Lines, 2)

	// Stock moves after the count sheet was printed.
	_, err = f.svc.CreateAndConfirm(ctx, InstantInput{
		CreateInput: CreateInput{Type: TypeWriteoff, LocationID: f.store},
		Lines:       []LineInput{{ProductID: 1, Quantity: 5}},
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateLine(ctx, doc.ID, doc.Lines[0].ID, LineInput{ProductID: 1, CountedQuantity: qty(44)})
	require.NoError(t, err)

	confirmed, err := f.svc.Confirm(ctx, doc.ID)
	require.NoError(t, err)
	requireAmount(t, "-10", confirmed.TotalAmount)
	require.EqualValues(t, 44, f.item(t, f.store, 1).OnHand)
	require.EqualValues(t, 8, f.item(t, f.store, 2).OnHand, "uncounted lines stay untouched")

	drift := confirmed.DriftLines()
	require.Len(t, drift, 1)
	require.EqualValues(t, 1, drift[0].ProductID)
	require.EqualValues(t, 45, *drift[0].OnHandAtConfirm)
}

func TestStocktakingRejectsDuplicateProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, err := f.svc.Create(ctx, CreateInput{Type: TypeStocktaking, LocationID: f.store})
	require.NoError(t, err)
	_, err = f.svc.AddLine(ctx, doc.ID, LineInput{ProductID: 3, CountedQuantity: qty(2)})
	require.NoError(t, err)
	_, err = f.svc.AddLine(ctx, doc.ID, LineInput{ProductID: 3, CountedQuantity: qty(1)})
	require.ErrorIs(t, err, ErrInvalidLine)

	confirmed, err := f.svc.Confirm(ctx, doc.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, f.item(t, f.store, 3).OnHand)
	requireAmount(t, "0", confirmed.TotalAmount)
}

func TestConcurrentWriteoffsNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, f.store, 1, 10, "5")

	ids := make([]int64, 2)
	for i := range ids {
		doc, err := f.svc.Create(ctx, CreateInput{Type: TypeWriteoff, LocationID: f.store, Reason: "damaged"})
		require.NoError(t, err)
		_, err = f.svc.AddLine(ctx, doc.ID, LineInput{ProductID: 1, Quantity: 6})
		require.NoError(t, err)
		ids[i] = doc.ID
	}

	errs := make([]error, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			_, errs[i] = f.svc.Confirm(ctx, id)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var succeeded, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case shared.IsRetryable(err):
			t.Fatalf("unexpected conflict: %v", err)
		default:
			require.ErrorIs(t, err, shared.ErrInsufficientStock)
			rejected++
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, rejected)
	require.EqualValues(t, 4, f.item(t, f.store, 1).OnHand)
}

func TestRevaluationTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, f.store, 1, 10, "100")

	doc, err := f.svc.Create(ctx, CreateInput{Type: TypeRevaluation, LocationID: f.store, Reason: "supplier price change"})
	require.NoError(t, err)
	line, err := f.svc.AddLine(ctx, doc.ID, LineInput{ProductID: 1, NewUnitCost: amount("120")})
	require.NoError(t, err)
	requireAmount(t, "100", line.OldUnitCost)

	_, err = f.svc.AddLine(ctx, doc.ID, LineInput{ProductID: 1, NewUnitCost: amount("130")})
	require.ErrorIs(t, err, ErrInvalidLine)

	confirmed, err := f.svc.Confirm(ctx, doc.ID)
	require.NoError(t, err)
	requireAmount(t, "200", confirmed.TotalAmount)
	require.EqualValues(t, 10, *confirmed.Lines[0].OnHandAtConfirm)

	item := f.item(t, f.store, 1)
	require.EqualValues(t, 10, item.OnHand)
	requireAmount(t, "120", item.UnitCost)
}

func TestCostFollowsStockAcrossDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, f.warehouse, 1, 10, "100")
	f.receive(t, f.warehouse, 1, 10, "200")
	requireAmount(t, "150", f.item(t, f.warehouse, 1).UnitCost)

	writeoff, err := f.svc.CreateAndConfirm(ctx, InstantInput{
		CreateInput: CreateInput{Type: TypeWriteoff, LocationID: f.warehouse},
		Lines:       []LineInput{{ProductID: 1, Quantity: 5}},
	})
	require.NoError(t, err)
	requireAmount(t, "-750", writeoff.TotalAmount)
	requireAmount(t, "150", writeoff.Lines[0].UnitCost)

	f.receive(t, f.store, 1, 5, "90")
	_, err = f.svc.CreateAndConfirm(ctx, InstantInput{
		CreateInput: CreateInput{Type: TypeTransfer, FromLocationID: f.warehouse, ToLocationID: f.store},
		Lines:       []LineInput{{ProductID: 1, Quantity: 5}},
	})
	require.NoError(t, err)

	dest := f.item(t, f.store, 1)
	require.EqualValues(t, 10, dest.OnHand)
	requireAmount(t, "120", dest.UnitCost)
	requireAmount(t, "150", f.item(t, f.warehouse, 1).UnitCost)
}

func TestLineValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, err := f.svc.Create(ctx, CreateInput{Type: TypeReceipt, LocationID: f.store})
	require.NoError(t, err)

	_, err = f.svc.AddLine(ctx, doc.ID, LineInput{ProductID: 1, Quantity: 2})
	require.ErrorIs(t, err, ErrInvalidLine)
	_, err = f.svc.AddLine(ctx, doc.ID, LineInput{ProductID: 1, Quantity: 0, UnitCost: amount("1")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.AddLine(ctx, doc.ID, LineInput{ProductID: 99, Quantity: 1, UnitCost: amount("1")})
	require.ErrorIs(t, err, ErrProductNotFound)
	_, err = f.svc.UpdateLine(ctx, doc.ID, 12345, LineInput{ProductID: 1, Quantity: 1, UnitCost: amount("1")})
	require.ErrorIs(t, err, ErrLineNotFound)
	require.ErrorIs(t, f.svc.RemoveLine(ctx, doc.ID, 12345), shared.ErrNotFound)

	_, err = f.svc.Get(ctx, 999)
	require.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestInactiveLocationRejectsNewDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.locations.SetDefault(ctx, f.warehouse)
	require.NoError(t, err)
	_, err = f.locations.Deactivate(ctx, f.store)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, CreateInput{Type: TypeReceipt, LocationID: f.store})
	require.ErrorIs(t, err, locations.ErrLocationInactive)
}

func TestDraftBlocksLocationDeactivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.locations.SetDefault(ctx, f.warehouse)
	require.NoError(t, err)

	doc, err := f.svc.Create(ctx, CreateInput{Type: TypeTransfer, FromLocationID: f.warehouse, ToLocationID: f.store})
	require.NoError(t, err)
	_, err = f.locations.Deactivate(ctx, f.store)
	require.ErrorIs(t, err, locations.ErrLocationInUse)

	_, err = f.svc.Cancel(ctx, doc.ID)
	require.NoError(t, err)
	_, err = f.locations.Deactivate(ctx, f.store)
	require.NoError(t, err)
}

func TestCreateAndConfirmCancelsFailedDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := InstantInput{
		CreateInput: CreateInput{Type: TypeWriteoff, LocationID: f.store, Reason: "sale"},
		Lines:       []LineInput{{ProductID: 1, Quantity: 3}},
		ExternalRef: "pos-receipt-1",
	}

	_, err := f.svc.CreateAndConfirm(ctx, input)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	cancelled, total, err := f.svc.List(ctx, ListFilters{Type: TypeWriteoff, Status: StatusCancelled})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "pos-receipt-1", cancelled[0].ExternalRef)
	hasDrafts, err := f.svc.HasDraftDocuments(ctx, f.store)
	require.NoError(t, err)
	require.False(t, hasDrafts)

	// The external reference was released, so the retry is processed.
	f.receive(t, f.store, 1, 3, "7")
	doc, err := f.svc.CreateAndConfirm(ctx, input)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, doc.Status)
	require.EqualValues(t, 0, f.item(t, f.store, 1).OnHand)

	_, err = f.svc.CreateAndConfirm(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestListFiltersByLocationAndPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := range 3 {
		f.receive(t, f.store, 1, int64(i+1), "1")
	}
	f.receive(t, f.warehouse, 1, 1, "1")

	docs, total, err := f.svc.List(ctx, ListFilters{LocationID: f.store, Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, docs, 2)
	require.Nil(t, docs[0].Lines)
	require.Greater(t, docs[0].ID, docs[1].ID)

	_, _, err = f.svc.List(ctx, ListFilters{Type: "PURCHASE"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestNumbersAreUniquePerType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seen := map[string]bool{}
	for _, typ := range []Type{TypeReceipt, TypeReceipt, TypeWriteoff, TypeRevaluation, TypeStocktaking} {
		doc, err := f.svc.Create(ctx, CreateInput{Type: typ, LocationID: f.store})
		require.NoError(t, err)
		require.False(t, seen[doc.Number], doc.Number)
		seen[doc.Number] = true
		require.Contains(t, doc.Number, fmt.Sprintf("%s-", typ.Prefix()))
	}
}
