package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/repressales/salescart/internal/cart"
	"github.com/repressales/salescart/internal/domain"
	"github.com/repressales/salescart/internal/money"
	"github.com/repressales/salescart/internal/session"
	apperrors "github.com/repressales/salescart/pkg/errors"
	"github.com/repressales/salescart/pkg/pagination"
)

// --- Mocks ---

type mockCartRepository struct {
	mock.Mock
}

func (m *mockCartRepository) Load(ctx context.Context, sessionID string) (map[string]int, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *mockCartRepository) Save(ctx context.Context, sessionID string, lines map[string]int) error {
	return m.Called(ctx, sessionID, lines).Error(0)
}

func (m *mockCartRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) Get(ctx context.Context, productID string) (*domain.ProductEntry, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProductEntry), args.Error(1)
}

func (m *mockCatalog) GetMany(ctx context.Context, ids []string) (map[string]domain.ProductEntry, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.ProductEntry), args.Error(1)
}

func (m *mockCatalog) List(ctx context.Context, offset, limit int) ([]domain.ProductEntry, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.ProductEntry), args.Int(1), args.Error(2)
}

func (m *mockCatalog) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishCartUpdated(ctx context.Context, sessionID string, change cart.Change, store *cart.Store) error {
	return m.Called(ctx, sessionID, change, store).Error(0)
}

func (m *mockEvents) PublishCartReconciled(ctx context.Context, sessionID, trigger string, changes []cart.Change) error {
	return m.Called(ctx, sessionID, trigger, changes).Error(0)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	svc     *CartService
	repo    *mockCartRepository
	catalog *mockCatalog
	events  *mockEvents
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := new(mockCartRepository)
	repo.On("Save", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	formatter, err := money.NewLocaleFormatter("en-US", "USD")
	require.NoError(t, err)

	f := &fixture{repo: repo, catalog: new(mockCatalog), events: new(mockEvents)}
	f.svc = NewCartService(session.NewManager(repo, newTestLogger()), f.catalog, formatter, f.events, newTestLogger())
	return f
}

func (f *fixture) open(t *testing.T) string {
	t.Helper()
	view, err := f.svc.OpenSession(context.Background())
	require.NoError(t, err)
	return view.SessionID
}

func entry(id, price string, stock int) *domain.ProductEntry {
	p := &domain.ProductEntry{ProductID: id, Name: "Product " + id, StockCount: stock}
	if price != "" {
		d := decimal.RequireFromString(price)
		p.Price = &d
	}
	return p
}

// --- Tests ---

func TestOpenSession_EmptyCart(t *testing.T) {
	f := newFixture(t)

	view, err := f.svc.OpenSession(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, view.SessionID)
	assert.Empty(t, view.Lines)
	assert.Equal(t, 0, view.ItemCount)
}

func TestGetCart_UnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetCart(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestProductCard_Projection(t *testing.T) {
	f := newFixture(t)
	id := f.open(t)

	p := entry("P1", "1234.5", 2)
	p.Article = "  ART-7 "
	p.Category = "Tools"
	wholesale := decimal.RequireFromString("999")
	p.PriceWholesale = &wholesale
	f.catalog.On("Get", mock.Anything, "P1").Return(p, nil)

	card, err := f.svc.ProductCard(context.Background(), id, "P1")
	require.NoError(t, err)

	assert.Equal(t, "ART-7", card.Article)
	assert.Equal(t, "Tools", card.Category)
	assert.Equal(t, "1,234.50 USD", card.Price)
	assert.Equal(t, "999.00 USD", card.WholesalePrice)
	assert.Equal(t, domain.LowStock, card.Availability)
	assert.Equal(t, "Only 2 left", card.Status)
	assert.True(t, card.Orderable)
	assert.True(t, card.CanAdd)
	assert.False(t, card.InCart)
	assert.False(t, card.CanIncrease)
	assert.False(t, card.CanDecrease)
}

func TestProductCard_NoPrice(t *testing.T) {
	f := newFixture(t)
	id := f.open(t)

	p := entry("P1", "", 10)
	p.Article = "   "
	zero := decimal.Zero
	p.PriceWholesale = &zero
	f.catalog.On("Get", mock.Anything, "P1").Return(p, nil)

	card, err := f.svc.ProductCard(context.Background(), id, "P1")
	require.NoError(t, err)
	assert.Equal(t, PriceNotSpecified, card.Price)
	assert.Empty(t, card.WholesalePrice)
	assert.Empty(t, card.Article)
	assert.False(t, card.Orderable)
	assert.False(t, card.CanAdd)
	assert.Equal(t, "In stock", card.Status)
}

func TestAddIncreaseDecrease_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.open(t)

	f.catalog.On("Get", mock.Anything, "P1").Return(entry("P1", "100", 5), nil)
	f.events.On("PublishCartUpdated", mock.Anything, id, mock.Anything, mock.Anything).Return(nil)

	card, err := f.svc.AddItem(ctx, id, "P1")
	require.NoError(t, err)
	assert.Equal(t, 1, card.Quantity)
	assert.True(t, card.InCart)
	assert.False(t, card.CanAdd)

	card, err = f.svc.AddItem(ctx, id, "P1")
	require.NoError(t, err)
	assert.Equal(t, 1, card.Quantity, "add is idempotent")

	for i := 0; i < 5; i++ {
		card, err = f.svc.IncreaseItem(ctx, id, "P1")
		require.NoError(t, err)
	}
	assert.Equal(t, 5, card.Quantity)
	assert.False(t, card.CanIncrease)

	for i := 0; i < 5; i++ {
		card, err = f.svc.DecreaseItem(ctx, id, "P1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, card.Quantity)
	assert.True(t, card.InCart)
	assert.False(t, card.CanDecrease)

	// 1 add + 4 increases + 4 decreases changed the cart.
	f.events.AssertNumberOfCalls(t, "PublishCartUpdated", 9)
	f.events.AssertCalled(t, "PublishCartUpdated", mock.Anything, id,
		cart.Change{Kind: cart.ChangeDecreased, ProductID: "P1", Quantity: 1}, mock.Anything)
}

func TestAddItem_NotOrderable(t *testing.T) {
	f := newFixture(t)
	id := f.open(t)

	f.catalog.On("Get", mock.Anything, "P1").Return(entry("P1", "0", 10), nil)

	card, err := f.svc.AddItem(context.Background(), id, "P1")
	require.NoError(t, err)
	assert.False(t, card.InCart)
	f.events.AssertNotCalled(t, "PublishCartUpdated", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProductCard_ClampsToCurrentStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.open(t)

	f.catalog.On("Get", mock.Anything, "P1").Return(entry("P1", "100", 5), nil).Times(5)
	f.events.On("PublishCartUpdated", mock.Anything, id, mock.Anything, mock.Anything).Return(nil)
	_, err := f.svc.AddItem(ctx, id, "P1")
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = f.svc.IncreaseItem(ctx, id, "P1")
		require.NoError(t, err)
	}

	f.catalog.On("Get", mock.Anything, "P1").Return(entry("P1", "100", 1), nil)
	f.events.On("PublishCartReconciled", mock.Anything, id, TriggerCatalog,
		[]cart.Change{{Kind: cart.ChangeClamped, ProductID: "P1", Quantity: 1}}).Return(nil).Once()

	card, err := f.svc.ProductCard(ctx, id, "P1")
	require.NoError(t, err)
	assert.Equal(t, 1, card.Quantity)
	assert.False(t, card.CanIncrease)
	f.events.AssertExpectations(t)
}

func TestIntent_ProductGoneFromCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.open(t)

	f.catalog.On("Get", mock.Anything, "P1").Return(entry("P1", "100", 5), nil).Once()
	f.events.On("PublishCartUpdated", mock.Anything, id, mock.Anything, mock.Anything).Return(nil)
	_, err := f.svc.AddItem(ctx, id, "P1")
	require.NoError(t, err)

	f.catalog.On("Get", mock.Anything, "P1").Return(nil, apperrors.NotFound("product", "P1"))
	f.events.On("PublishCartReconciled", mock.Anything, id, TriggerCatalog, mock.Anything).Return(nil)

	_, err = f.svc.IncreaseItem(ctx, id, "P1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	view, err := f.svc.GetCart(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}

func TestIntent_CatalogUnavailable(t *testing.T) {
	f := newFixture(t)
	id := f.open(t)

	f.catalog.On("Get", mock.Anything, "P1").Return(nil, errors.New("connection refused"))

	_, err := f.svc.AddItem(context.Background(), id, "P1")
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

func TestIntent_CatalogClientErrorsReportUnavailable(t *testing.T) {
	downstream := []error{
		apperrors.InvalidInput("bad product filter"),
		apperrors.Unauthorized("catalog token rejected"),
		apperrors.Conflict("catalog version mismatch"),
	}

	for _, catalogErr := range downstream {
		t.Run(catalogErr.Error(), func(t *testing.T) {
			f := newFixture(t)
			id := f.open(t)
			f.catalog.On("Get", mock.Anything, "P1").Return(nil, catalogErr)

			_, err := f.svc.AddItem(context.Background(), id, "P1")
			assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
			assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(err))
		})
	}
}

func TestIncreaseItem_ConcurrentEventsCarryOwnQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.open(t)

	f.catalog.On("Get", mock.Anything, "P1").Return(entry("P1", "100", 50), nil)
	f.events.On("PublishCartUpdated", mock.Anything, id, mock.Anything, mock.Anything).Return(nil)
	_, err := f.svc.AddItem(ctx, id, "P1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.IncreaseItem(ctx, id, "P1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, call := range f.events.Calls {
		change := call.Arguments.Get(2).(cart.Change)
		if change.Kind != cart.ChangeIncreased {
			continue
		}
		assert.False(t, seen[change.Quantity], "quantity %d published twice", change.Quantity)
		seen[change.Quantity] = true
	}
	assert.Len(t, seen, 20)
	for q := 2; q <= 21; q++ {
		assert.True(t, seen[q], "missing quantity %d", q)
	}
}

func TestRemoveItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.open(t)

	f.catalog.On("Get", mock.Anything, "P1").Return(entry("P1", "100", 5), nil)
	f.events.On("PublishCartUpdated", mock.Anything, id, mock.Anything, mock.Anything).Return(nil)
	_, err := f.svc.AddItem(ctx, id, "P1")
	require.NoError(t, err)

	view, err := f.svc.RemoveItem(ctx, id, "P1")
	require.NoError(t, err)
	assert.Empty(t, view.Lines)

	view, err = f.svc.RemoveItem(ctx, id, "P1")
	require.NoError(t, err)
	assert.Empty(t, view.Lines)

	f.events.AssertCalled(t, "PublishCartUpdated", mock.Anything, id, cart.Change{Kind: cart.ChangeRemoved, ProductID: "P1"}, mock.Anything)
	f.events.AssertNumberOfCalls(t, "PublishCartUpdated", 2)
}

func TestReconcile_WholeCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.open(t)

	f.events.On("PublishCartUpdated", mock.Anything, id, mock.Anything, mock.Anything).Return(nil)
	for _, pid := range []string{"P1", "P2", "P3"} {
		f.catalog.On("Get", mock.Anything, pid).Return(entry(pid, "10", 5), nil).Once()
		_, err := f.svc.AddItem(ctx, id, pid)
		require.NoError(t, err)
	}
	f.catalog.On("Get", mock.Anything, "P1").Return(entry("P1", "10", 5), nil)
	_, err := f.svc.IncreaseItem(ctx, id, "P1")
	require.NoError(t, err)

	f.catalog.On("GetMany", mock.Anything, []string{"P1", "P2", "P3"}).Return(map[string]domain.ProductEntry{
		"P1": *entry("P1", "10", 1),
		"P2": *entry("P2", "10", 0),
	}, nil)
	f.events.On("PublishCartReconciled", mock.Anything, id, TriggerExplicit, mock.Anything).Return(nil).Once()

	res, err := f.svc.Reconcile(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, []cart.Change{
		{Kind: cart.ChangeClamped, ProductID: "P1", Quantity: 1},
		{Kind: cart.ChangeRemoved, ProductID: "P2"},
		{Kind: cart.ChangeRemoved, ProductID: "P3"},
	}, res.Changes)
	assert.Equal(t, []domain.CartLine{{ProductID: "P1", Quantity: 1}}, res.Cart.Lines)
}

func TestReconcile_CatalogErrorAborts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.open(t)

	f.catalog.On("Get", mock.Anything, "P1").Return(entry("P1", "10", 5), nil)
	f.events.On("PublishCartUpdated", mock.Anything, id, mock.Anything, mock.Anything).Return(nil)
	_, err := f.svc.AddItem(ctx, id, "P1")
	require.NoError(t, err)

	f.catalog.On("GetMany", mock.Anything, []string{"P1"}).Return(nil, errors.New("timeout"))

	_, err = f.svc.Reconcile(ctx, id)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)

	view, _ := f.svc.GetCart(ctx, id)
	assert.Equal(t, 1, view.ItemCount)
}

func TestReconcile_EmptyCartSkipsCatalog(t *testing.T) {
	f := newFixture(t)
	id := f.open(t)

	res, err := f.svc.Reconcile(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, res.Changes)
	f.catalog.AssertNotCalled(t, "GetMany", mock.Anything, mock.Anything)
}

func TestApplyStockChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.open(t), f.open(t), f.open(t)

	f.catalog.On("Get", mock.Anything, "P1").Return(entry("P1", "10", 5), nil)
	f.events.On("PublishCartUpdated", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	for _, id := range []string{a, b} {
		_, err := f.svc.AddItem(ctx, id, "P1")
		require.NoError(t, err)
	}
	_, err := f.svc.IncreaseItem(ctx, a, "P1")
	require.NoError(t, err)

	f.events.On("PublishCartReconciled", mock.Anything, mock.Anything, TriggerInventory, mock.Anything).Return(nil)

	n, err := f.svc.ApplyStockChange(ctx, "P1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the session above stock changes")

	n, err = f.svc.ApplyStockChange(ctx, "P1", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{a, b, c} {
		view, err := f.svc.GetCart(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, view.Lines)
	}
}

func TestListProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.open(t)

	f.catalog.On("List", mock.Anything, 0, 2).Return([]domain.ProductEntry{
		*entry("P1", "10", 0),
		*entry("P2", "", 10),
	}, 3, nil)

	params := pagination.Params{Page: 1, PerPage: 2, Offset: 0}
	res, err := f.svc.ListProducts(ctx, id, params)
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	assert.Equal(t, "Out of stock", res.Items[0].Status)
	assert.Equal(t, PriceNotSpecified, res.Items[1].Price)
	assert.Equal(t, 3, res.TotalCount)
	assert.Equal(t, 2, res.TotalPages)
	assert.True(t, res.HasNext)
}

func TestResumeSession_Reconciles(t *testing.T) {
	repo := new(mockCartRepository)
	repo.On("Load", mock.Anything, "sess-1").Return(map[string]int{"P1": 4}, nil)
	repo.On("Save", mock.Anything, "sess-1", map[string]int{"P1": 2}).Return(nil).Once()

	catalog := new(mockCatalog)
	catalog.On("GetMany", mock.Anything, []string{"P1"}).Return(map[string]domain.ProductEntry{"P1": *entry("P1", "10", 2)}, nil)

	events := new(mockEvents)
	events.On("PublishCartReconciled", mock.Anything, "sess-1", TriggerResume, mock.Anything).Return(nil)

	formatter, _ := money.NewLocaleFormatter("en-US", "USD")
	svc := NewCartService(session.NewManager(repo, newTestLogger()), catalog, formatter, events, newTestLogger())

	view, err := svc.ResumeSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.CartLine{{ProductID: "P1", Quantity: 2}}, view.Lines)
	repo.AssertExpectations(t)
}

func TestCloseSession(t *testing.T) {
	f := newFixture(t)
	id := f.open(t)

	require.NoError(t, f.svc.CloseSession(context.Background(), id))
	_, err := f.svc.GetCart(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.ErrSessionClosed)
}
