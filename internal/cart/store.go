// Package cart holds the per-session cart state and its guarded mutations.
package cart

import (
	"sort"
	"sync"

	"github.com/repressales/salescart/internal/domain"
)

// ChangeKind names a cart state transition.
type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeIncreased ChangeKind = "increased"
	ChangeDecreased ChangeKind = "decreased"
	ChangeRemoved   ChangeKind = "removed"
	ChangeClamped   ChangeKind = "clamped"
)

// Change describes one applied transition. Quantity is the line quantity
// after the change, zero when the line was removed.
type Change struct {
	Kind      ChangeKind `json:"kind"`
	ProductID string     `json:"product_id"`
	Quantity  int        `json:"quantity"`
}

// Listener receives changes after the store lock has been released, in the
// order the mutations were applied. A listener must not mutate the store.
type Listener func(Change)

// Store is the cart state of one session. Every method is safe for
// concurrent use; mutations are serialized by a single mutex and never fail.
// Every line satisfies 1 <= quantity.
type Store struct {
	mu    sync.Mutex
	lines map[string]int

	// notifyMu is taken before mu is released so that notifications
	// follow mutation order.
	notifyMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int
}

// NewStore returns an empty cart.
func NewStore() *Store {
	return &Store{
		lines:     make(map[string]int),
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// unlockAndNotify releases mu and delivers changes. The caller holds mu.
func (s *Store) unlockAndNotify(changes ...Change) {
	if len(changes) == 0 {
		s.mu.Unlock()
		return
	}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.listenersMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.RUnlock()

	for _, c := range changes {
		for _, l := range listeners {
			l(c)
		}
	}
}

// IsInCart reports whether the product has a line.
func (s *Store) IsInCart(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lines[productID]
	return ok
}

// QuantityOf returns the line quantity, or 0 when absent.
func (s *Store) QuantityOf(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines[productID]
}

// Lines returns the cart lines ordered by product ID.
func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	lines := make([]domain.CartLine, 0, len(s.lines))
	for id, qty := range s.lines {
		lines = append(lines, domain.CartLine{ProductID: id, Quantity: qty})
	}
	s.mu.Unlock()

	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}

// ProductIDs returns the IDs of every product in the cart.
func (s *Store) ProductIDs() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.lines))
	for id := range s.lines {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// ItemCount returns the sum of all line quantities.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, qty := range s.lines {
		n += qty
	}
	return n
}

// AddItem creates a line with quantity 1. It is a no-op when the product is
// not orderable or already in the cart. The returned change is only
// meaningful when ok is true.
func (s *Store) AddItem(product domain.ProductEntry) (c Change, ok bool) {
	if !product.Orderable() {
		return Change{}, false
	}

	s.mu.Lock()
	if _, exists := s.lines[product.ProductID]; exists {
		s.mu.Unlock()
		return Change{}, false
	}
	s.lines[product.ProductID] = 1
	c = Change{Kind: ChangeAdded, ProductID: product.ProductID, Quantity: 1}
	s.unlockAndNotify(c)
	return c, true
}

// IncreaseQuantity adds one to an existing line while it stays below
// maxQuantity, the product's current stock.
func (s *Store) IncreaseQuantity(productID string, maxQuantity int) (c Change, ok bool) {
	s.mu.Lock()
	qty, exists := s.lines[productID]
	if !exists || qty >= maxQuantity {
		s.mu.Unlock()
		return Change{}, false
	}
	qty++
	s.lines[productID] = qty
	c = Change{Kind: ChangeIncreased, ProductID: productID, Quantity: qty}
	s.unlockAndNotify(c)
	return c, true
}

// DecreaseQuantity subtracts one from an existing line above 1. A line is
// never removed this way.
func (s *Store) DecreaseQuantity(productID string) (c Change, ok bool) {
	s.mu.Lock()
	qty, exists := s.lines[productID]
	if !exists || qty <= 1 {
		s.mu.Unlock()
		return Change{}, false
	}
	qty--
	s.lines[productID] = qty
	c = Change{Kind: ChangeDecreased, ProductID: productID, Quantity: qty}
	s.unlockAndNotify(c)
	return c, true
}

// RemoveItem deletes the line if present.
func (s *Store) RemoveItem(productID string) (c Change, ok bool) {
	s.mu.Lock()
	if _, ok = s.lines[productID]; !ok {
		s.mu.Unlock()
		return Change{}, false
	}
	delete(s.lines, productID)
	c = Change{Kind: ChangeRemoved, ProductID: productID}
	s.unlockAndNotify(c)
	return c, true
}

// Clamp bounds every listed line by its stock in one critical section. A
// line above its stock is lowered to it; a line whose stock is zero or less
// is removed. Products not in the cart are ignored.
func (s *Store) Clamp(stock map[string]int) []Change {
	s.mu.Lock()
	var changes []Change
	for id, limit := range stock {
		qty, ok := s.lines[id]
		if !ok || qty <= limit {
			continue
		}
		if limit <= 0 {
			delete(s.lines, id)
			changes = append(changes, Change{Kind: ChangeRemoved, ProductID: id})
			continue
		}
		s.lines[id] = limit
		changes = append(changes, Change{Kind: ChangeClamped, ProductID: id, Quantity: limit})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].ProductID < changes[j].ProductID })
	s.unlockAndNotify(changes...)
	return changes
}

// Snapshot returns a copy of the productID → quantity map.
func (s *Store) Snapshot() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.lines))
	for id, qty := range s.lines {
		out[id] = qty
	}
	return out
}

// Restore replaces the cart contents with lines, skipping quantities below 1.
// Listeners are not notified.
func (s *Store) Restore(lines map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = make(map[string]int, len(lines))
	for id, qty := range lines {
		if id != "" && qty >= 1 {
			s.lines[id] = qty
		}
	}
}
