package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/app"
	"github.com/linhnh2711/examen-civique-app-sub000/internal/domain"
)

// PurchaseClient is a fake platform store: orders resolve asynchronously
// through the event stream exactly like the native plugin, so the
// purchase flow is exercisable in tests and demo runs.
type PurchaseClient struct {
	mu          sync.Mutex
	registered  map[string]app.Product
	owned       []domain.PurchaseMetadata
	events      chan app.PurchaseEvent
	nextOutcome *app.PurchaseEvent
	restoreErr  error
	txCounter   int
	clock       func() time.Time
}

func NewPurchaseClient() *PurchaseClient {
	return &PurchaseClient{
		registered: make(map[string]app.Product),
		events:     make(chan app.PurchaseEvent, 8),
		clock:      time.Now,
	}
}

func (c *PurchaseClient) RegisterProducts(products []app.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, product := range products {
		c.registered[product.ID] = product
	}
	return nil
}

func (c *PurchaseClient) Initialize(_ context.Context) error { return nil }

// Order emits the scripted outcome (approved by default) on the event
// stream, as the real store would after its payment dialog.
func (c *PurchaseClient) Order(_ context.Context, productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.registered[productID]; !ok {
		return fmt.Errorf("product %q not registered", productID)
	}

	if c.nextOutcome != nil {
		event := *c.nextOutcome
		event.ProductID = productID
		c.nextOutcome = nil
		c.events <- event
		return nil
	}

	c.txCounter++
	now := c.clock()
	c.owned = append(c.owned, domain.PurchaseMetadata{
		ProductID:     productID,
		TransactionID: fmt.Sprintf("tx-%d", c.txCounter),
		Platform:      "fake-store",
		PurchaseDate:  now,
	})
	c.events <- app.PurchaseEvent{
		Type:          app.EventApproved,
		ProductID:     productID,
		TransactionID: fmt.Sprintf("tx-%d", c.txCounter),
		PurchasedAt:   now,
	}
	return nil
}

func (c *PurchaseClient) RestorePurchases(_ context.Context) ([]domain.PurchaseMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restoreErr != nil {
		return nil, c.restoreErr
	}
	out := make([]domain.PurchaseMetadata, len(c.owned))
	copy(out, c.owned)
	return out, nil
}

func (c *PurchaseClient) Events() <-chan app.PurchaseEvent {
	return c.events
}

// ScriptNextOutcome makes the next Order resolve with the given event
// instead of an approval.
func (c *PurchaseClient) ScriptNextOutcome(event app.PurchaseEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextOutcome = &event
}

// SetOwned overrides the purchases a restore reports.
func (c *PurchaseClient) SetOwned(owned []domain.PurchaseMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owned = append([]domain.PurchaseMetadata(nil), owned...)
}

// SetRestoreError makes restores fail with err (store unreachable).
func (c *PurchaseClient) SetRestoreError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restoreErr = err
}

// Emit pushes an unsolicited event on the stream.
func (c *PurchaseClient) Emit(event app.PurchaseEvent) {
	c.events <- event
}
