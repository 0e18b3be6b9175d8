package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/repressales/salescart/internal/cart"
	"github.com/repressales/salescart/internal/catalog"
	"github.com/repressales/salescart/internal/domain"
	"github.com/repressales/salescart/internal/engine"
	"github.com/repressales/salescart/internal/money"
	"github.com/repressales/salescart/internal/session"
	apperrors "github.com/repressales/salescart/pkg/errors"
	"github.com/repressales/salescart/pkg/pagination"
)

// Reconcile triggers reported in cart.reconciled events.
const (
	TriggerExplicit  = "explicit"
	TriggerCatalog   = "catalog_read"
	TriggerInventory = "inventory"
	TriggerResume    = "resume"
)

// EventPublisher publishes cart domain events.
type EventPublisher interface {
	PublishCartUpdated(ctx context.Context, sessionID string, change cart.Change, store *cart.Store) error
	PublishCartReconciled(ctx context.Context, sessionID, trigger string, changes []cart.Change) error
}

// CartView is the read model of a session cart.
type CartView struct {
	SessionID string            `json:"session_id"`
	Lines     []domain.CartLine `json:"lines"`
	ItemCount int               `json:"item_count"`
}

// ReconcileResult reports what a whole-cart clamp pass changed.
type ReconcileResult struct {
	Changes []cart.Change `json:"changes"`
	Cart    CartView      `json:"cart"`
}

// CartService orchestrates sessions, the catalog, cart persistence and
// events around the cart engine.
type CartService struct {
	sessions  *session.Manager
	catalog   catalog.Source
	formatter money.Formatter
	events    EventPublisher
	logger    *slog.Logger
}

// NewCartService creates a new cart service.
func NewCartService(sessions *session.Manager, source catalog.Source, formatter money.Formatter, events EventPublisher, logger *slog.Logger) *CartService {
	return &CartService{
		sessions:  sessions,
		catalog:   source,
		formatter: formatter,
		events:    events,
		logger:    logger,
	}
}

func viewOf(s *session.Session) CartView {
	lines := s.Cart().Lines()
	return CartView{SessionID: s.ID, Lines: lines, ItemCount: s.Cart().ItemCount()}
}

// OpenSession starts a session with an empty cart.
func (s *CartService) OpenSession(ctx context.Context) (CartView, error) {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return CartView{}, err
	}
	return viewOf(sess), nil
}

// ResumeSession restores a saved session and clamps it to current stock.
// A catalog failure during the clamp is logged and the cart returned as is.
func (s *CartService) ResumeSession(ctx context.Context, sessionID string) (CartView, error) {
	sess, err := s.sessions.Resume(ctx, sessionID)
	if err != nil {
		return CartView{}, err
	}

	if _, err := s.reconcileSession(ctx, sess, TriggerResume); err != nil {
		s.logger.WarnContext(ctx, "reconcile on resume failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
	return viewOf(sess), nil
}

// CloseSession persists and ends a session.
func (s *CartService) CloseSession(ctx context.Context, sessionID string) error {
	return s.sessions.Close(ctx, sessionID)
}

// GetCart returns the session's cart lines.
func (s *CartService) GetCart(ctx context.Context, sessionID string) (CartView, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return CartView{}, err
	}
	return viewOf(sess), nil
}

// ProductCard returns the card of one product after clamping the session's
// line for it to current stock.
func (s *CartService) ProductCard(ctx context.Context, sessionID, productID string) (ProductCard, error) {
	sess, p, err := s.loadProduct(ctx, sessionID, productID)
	if err != nil {
		return ProductCard{}, err
	}
	return buildCard(*p, sess.Engine(), s.formatter), nil
}

// ListProducts returns one page of product cards. Every product on the page
// is clamped first.
func (s *CartService) ListProducts(ctx context.Context, sessionID string, params pagination.Params) (pagination.Result[ProductCard], error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return pagination.Result[ProductCard]{}, err
	}

	entries, total, err := s.catalog.List(ctx, params.Offset, params.PerPage)
	if err != nil {
		return pagination.Result[ProductCard]{}, catalogError(err)
	}

	s.applyChanges(ctx, sess, TriggerCatalog, sess.Engine().Reconcile(entries...))

	cards := make([]ProductCard, 0, len(entries))
	for _, p := range entries {
		cards = append(cards, buildCard(p, sess.Engine(), s.formatter))
	}
	return pagination.NewResult(cards, total, params), nil
}

// AddItem puts a product in the cart with quantity 1. Adding a product that
// is already in the cart or not orderable leaves the cart unchanged.
func (s *CartService) AddItem(ctx context.Context, sessionID, productID string) (ProductCard, error) {
	return s.intent(ctx, sessionID, productID, "item added to cart", (*engine.Engine).Add)
}

// IncreaseItem adds one unit while the quantity is below stock.
func (s *CartService) IncreaseItem(ctx context.Context, sessionID, productID string) (ProductCard, error) {
	return s.intent(ctx, sessionID, productID, "item quantity increased", (*engine.Engine).Increase)
}

// DecreaseItem removes one unit while the quantity is above 1.
func (s *CartService) DecreaseItem(ctx context.Context, sessionID, productID string) (ProductCard, error) {
	return s.intent(ctx, sessionID, productID, "item quantity decreased", (*engine.Engine).Decrease)
}

func (s *CartService) intent(
	ctx context.Context,
	sessionID, productID string,
	message string,
	apply func(*engine.Engine, domain.ProductEntry) (cart.Change, bool),
) (ProductCard, error) {
	sess, p, err := s.loadProduct(ctx, sessionID, productID)
	if err != nil {
		return ProductCard{}, err
	}

	e := sess.Engine()
	if change, ok := apply(e, *p); ok {
		s.afterIntent(ctx, sess, change)
		s.logger.InfoContext(ctx, message,
			slog.String("session_id", sessionID),
			slog.String("product_id", productID),
			slog.Int("quantity", change.Quantity),
		)
	}
	return buildCard(*p, e, s.formatter), nil
}

// RemoveItem deletes the product's line. Removing an absent line is a no-op.
func (s *CartService) RemoveItem(ctx context.Context, sessionID, productID string) (CartView, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return CartView{}, err
	}

	if change, ok := sess.Engine().Remove(productID); ok {
		s.afterIntent(ctx, sess, change)
		s.logger.InfoContext(ctx, "item removed from cart",
			slog.String("session_id", sessionID),
			slog.String("product_id", productID),
		)
	}
	return viewOf(sess), nil
}

// Reconcile clamps the whole cart against the catalog. Products the catalog
// no longer has are treated as out of stock.
func (s *CartService) Reconcile(ctx context.Context, sessionID string) (ReconcileResult, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return ReconcileResult{}, err
	}

	changes, err := s.reconcileSession(ctx, sess, TriggerExplicit)
	if err != nil {
		return ReconcileResult{}, err
	}
	if changes == nil {
		changes = []cart.Change{}
	}
	return ReconcileResult{Changes: changes, Cart: viewOf(sess)}, nil
}

// ApplyStockChange clamps every live session holding productID to stock and
// returns how many sessions changed.
func (s *CartService) ApplyStockChange(ctx context.Context, productID string, stock int) (int, error) {
	affected := 0
	for _, sess := range s.sessions.HoldingProduct(productID) {
		changes := sess.Engine().ReconcileStock(map[string]int{productID: stock})
		if len(changes) == 0 {
			continue
		}
		affected++
		s.applyChanges(ctx, sess, TriggerInventory, changes)
	}
	return affected, nil
}

func (s *CartService) reconcileSession(ctx context.Context, sess *session.Session, trigger string) ([]cart.Change, error) {
	ids := sess.Cart().ProductIDs()
	if len(ids) == 0 {
		return nil, nil
	}

	entries, err := s.catalog.GetMany(ctx, ids)
	if err != nil {
		return nil, catalogError(err)
	}

	stock := make(map[string]int, len(ids))
	for _, id := range ids {
		stock[id] = 0
		if p, ok := entries[id]; ok {
			stock[id] = p.StockCount
		}
	}

	changes := sess.Engine().ReconcileStock(stock)
	s.applyChanges(ctx, sess, trigger, changes)
	return changes, nil
}

// loadProduct resolves the session and a fresh catalog entry, then runs the
// clamp pass for that product. A product the catalog no longer has is
// clamped out of the cart before NotFound is returned.
func (s *CartService) loadProduct(ctx context.Context, sessionID, productID string) (*session.Session, *domain.ProductEntry, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, nil, err
	}

	p, err := s.catalog.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			changes := sess.Engine().ReconcileStock(map[string]int{productID: 0})
			s.applyChanges(ctx, sess, TriggerCatalog, changes)
			return nil, nil, apperrors.NotFound("product", productID)
		}
		return nil, nil, catalogError(err)
	}

	s.applyChanges(ctx, sess, TriggerCatalog, sess.Engine().Reconcile(*p))
	return sess, p, nil
}

// afterIntent persists the cart and publishes cart.updated. Both are best
// effort: the in-memory cart is authoritative for the live session.
func (s *CartService) afterIntent(ctx context.Context, sess *session.Session, change cart.Change) {
	s.persist(ctx, sess)
	if err := s.events.PublishCartUpdated(ctx, sess.ID, change, sess.Cart()); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}
}

// applyChanges persists and publishes the result of a clamp pass.
func (s *CartService) applyChanges(ctx context.Context, sess *session.Session, trigger string, changes []cart.Change) {
	if len(changes) == 0 {
		return
	}

	s.persist(ctx, sess)
	if err := s.events.PublishCartReconciled(ctx, sess.ID, trigger, changes); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.reconciled event",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart reconciled",
		slog.String("session_id", sess.ID),
		slog.String("trigger", trigger),
		slog.Int("changes", len(changes)),
	)
}

func (s *CartService) persist(ctx context.Context, sess *session.Session) {
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist cart",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}
}

// catalogError keeps a catalog NotFound and reports any other catalog
// failure as the catalog being unavailable.
func catalogError(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	return apperrors.Unavailable("catalog", fmt.Errorf("catalog read: %w", err))
}
