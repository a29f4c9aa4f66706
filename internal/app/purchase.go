package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/domain"
)

// Product IDs registered with the platform store.
const (
	ProductBasic = "civique_basic"
	ProductFull  = "civique_full"
)

// DefaultPurchaseTimeout bounds how long an order waits for the store's
// approved/failed answer.
const DefaultPurchaseTimeout = 60 * time.Second

// Product describes one purchasable upgrade.
type Product struct {
	ID    string
	Tier  domain.Tier
	Title string
}

// Products is the fixed upgrade catalog.
var Products = []Product{
	{ID: ProductBasic, Tier: domain.TierBasic, Title: "Accès Basique"},
	{ID: ProductFull, Tier: domain.TierFull, Title: "Accès Complet"},
}

// PurchaseEventType tags events on the collaborator's stream.
type PurchaseEventType int

const (
	EventApproved PurchaseEventType = iota
	EventFailed
)

// PurchaseEvent is one message from the platform store: exactly one
// approved event per successful transaction, or a failure carrying a
// cancellation flag.
type PurchaseEvent struct {
	Type          PurchaseEventType
	ProductID     string
	TransactionID string
	PurchasedAt   time.Time
	Cancelled     bool
	Message       string
}

// PurchaseClient is the native purchase plugin boundary. Its internals
// (receipt validation, store dialogs) are out of scope.
type PurchaseClient interface {
	RegisterProducts(products []Product) error
	Initialize(ctx context.Context) error
	Order(ctx context.Context, productID string) error
	// RestorePurchases returns the purchases the platform confirms the
	// user owns. An empty slice with a nil error is an authoritative
	// "nothing owned" answer.
	RestorePurchases(ctx context.Context) ([]domain.PurchaseMetadata, error)
	Events() <-chan PurchaseEvent
}

// PurchaseState classifies the outcome of a Purchase call.
type PurchaseState int

const (
	PurchaseApproved PurchaseState = iota
	PurchaseCancelled
	PurchaseFailed
)

// PurchaseResult is the resolved outcome of one order. Cancellation is a
// normal result, not an error: the UI stays silent on it.
type PurchaseResult struct {
	State   PurchaseState
	Tier    domain.Tier
	Message string
}

// PurchaseFlow turns the collaborator's event stream into single-shot
// Purchase calls. Each in-flight order owns a one-shot channel that the
// dispatcher resolves; there are no free-floating pending resolvers.
type PurchaseFlow struct {
	client       PurchaseClient
	entitlements *EntitlementStore
	log          logrus.FieldLogger
	timeout      time.Duration
	platform     string
	clock        func() time.Time

	mu      sync.Mutex
	pending map[string]chan PurchaseEvent
	done    chan struct{}
}

func NewPurchaseFlow(client PurchaseClient, entitlements *EntitlementStore, platform string, timeout time.Duration, log logrus.FieldLogger) *PurchaseFlow {
	if timeout <= 0 {
		timeout = DefaultPurchaseTimeout
	}
	f := &PurchaseFlow{
		client:       client,
		entitlements: entitlements,
		log:          log,
		timeout:      timeout,
		platform:     platform,
		clock:        time.Now,
		pending:      make(map[string]chan PurchaseEvent),
		done:         make(chan struct{}),
	}
	go f.dispatch()
	return f
}

// Initialize registers the product catalog with the store and caches it
// for the session.
func (f *PurchaseFlow) Initialize(ctx context.Context) error {
	if err := f.client.RegisterProducts(Products); err != nil {
		return fmt.Errorf("register products: %w", err)
	}
	if err := f.client.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	f.entitlements.CacheProducts(Products)
	return nil
}

// Close stops the event dispatcher.
func (f *PurchaseFlow) Close() {
	close(f.done)
}

// Purchase orders the product and waits for the store's answer, the
// timeout, or ctx cancellation. An approved answer unlocks the tier
// before the result is returned.
func (f *PurchaseFlow) Purchase(ctx context.Context, productID string) (PurchaseResult, error) {
	product, ok := productByID(productID)
	if !ok {
		return PurchaseResult{}, domain.ErrUnknownProduct
	}

	ch, err := f.register(productID)
	if err != nil {
		return PurchaseResult{}, err
	}
	defer f.unregister(productID)

	if err := f.client.Order(ctx, productID); err != nil {
		return PurchaseResult{}, fmt.Errorf("order %s: %w", productID, err)
	}

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	select {
	case event := <-ch:
		return f.resolve(product, event)
	case <-timer.C:
		return PurchaseResult{}, domain.ErrPurchaseTimeout
	case <-ctx.Done():
		return PurchaseResult{}, ctx.Err()
	}
}

// Restore asks the platform to re-confirm ownership. Confirmed purchases
// re-unlock their tier; an authoritative empty answer is the one path
// that downgrades to FREE. A transport error changes nothing.
func (f *PurchaseFlow) Restore(ctx context.Context) (domain.Tier, error) {
	owned, err := f.client.RestorePurchases(ctx)
	if err != nil {
		f.log.WithError(err).Warn("restore purchases unreachable, keeping cached tier")
		return f.entitlements.Tier(), fmt.Errorf("restore purchases: %w", err)
	}

	if len(owned) == 0 {
		f.entitlements.ClearStatus()
		f.entitlements.MarkSessionVerified()
		return domain.TierFree, nil
	}

	best := domain.TierFree
	var bestMeta domain.PurchaseMetadata
	for _, meta := range owned {
		product, ok := productByID(meta.ProductID)
		if !ok {
			f.log.WithField("productId", meta.ProductID).Warn("restore returned unknown product, skipping")
			continue
		}
		if product.Tier > best {
			best = product.Tier
			bestMeta = meta
		}
	}
	if best == domain.TierFree {
		// Only unknown products came back; leave the cached tier alone.
		return f.entitlements.Tier(), nil
	}
	if bestMeta.Platform == "" {
		bestMeta.Platform = f.platform
	}
	bestMeta.VerifiedAt = f.clock()
	f.entitlements.SetStatus(best, bestMeta)
	return best, nil
}

func (f *PurchaseFlow) resolve(product Product, event PurchaseEvent) (PurchaseResult, error) {
	switch event.Type {
	case EventApproved:
		meta := domain.PurchaseMetadata{
			ProductID:     product.ID,
			TransactionID: event.TransactionID,
			Platform:      f.platform,
			PurchaseDate:  event.PurchasedAt,
			VerifiedAt:    f.clock(),
		}
		f.entitlements.SetStatus(product.Tier, meta)
		return PurchaseResult{State: PurchaseApproved, Tier: product.Tier}, nil
	default:
		if event.Cancelled {
			return PurchaseResult{State: PurchaseCancelled, Tier: f.entitlements.Tier()}, nil
		}
		return PurchaseResult{State: PurchaseFailed, Tier: f.entitlements.Tier(), Message: event.Message}, nil
	}
}

func (f *PurchaseFlow) register(productID string) (chan PurchaseEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.pending[productID]; exists {
		return nil, domain.ErrPurchasePending
	}
	ch := make(chan PurchaseEvent, 1)
	f.pending[productID] = ch
	return ch, nil
}

func (f *PurchaseFlow) unregister(productID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, productID)
}

// dispatch routes store events to their pending order. An approved event
// with no waiter (app restarted mid-transaction) still unlocks the tier:
// the approval itself is the authority, not the in-flight call.
func (f *PurchaseFlow) dispatch() {
	for {
		select {
		case event, ok := <-f.client.Events():
			if !ok {
				return
			}
			f.mu.Lock()
			ch, waiting := f.pending[event.ProductID]
			f.mu.Unlock()
			if waiting {
				select {
				case ch <- event:
				default:
				}
				continue
			}
			if event.Type == EventApproved {
				if product, ok := productByID(event.ProductID); ok {
					f.entitlements.SetStatus(product.Tier, domain.PurchaseMetadata{
						ProductID:     product.ID,
						TransactionID: event.TransactionID,
						Platform:      f.platform,
						PurchaseDate:  event.PurchasedAt,
						VerifiedAt:    f.clock(),
					})
				}
			}
		case <-f.done:
			return
		}
	}
}

func productByID(id string) (Product, bool) {
	for _, product := range Products {
		if product.ID == id {
			return product, true
		}
	}
	return Product{}, false
}
