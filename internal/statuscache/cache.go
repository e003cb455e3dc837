// Package statuscache memoizes offer verification results per offer id,
// deduplicating concurrent verifications and exposing a reactive read model
// for rendering layers.
package statuscache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"xololegend-market/internal/covenant"
	"xololegend-market/internal/verifier"
)

// Status is the flattened cached view of one offer's last known outcome.
// While IsChecking is true the previous terms and price fields are retained
// so a refresh never blanks already-displayed pricing.
type Status struct {
	OfferID      string
	Availability verifier.Availability
	Txid         string
	Vout         uint32
	Terms        covenant.Terms
	TermsStatus  verifier.TermsStatus
	SpentBy      string
	Reason       string
	IsChecking   bool
	UpdatedAt    time.Time
}

// StatusUnknown is the availability of an entry whose first verification has
// not completed yet.
const StatusUnknown verifier.Availability = "unknown"

// OfferVerifier resolves an offer id to an outcome.
type OfferVerifier interface {
	Verify(ctx context.Context, raw string) verifier.Outcome
}

// Cache is a process-wide verification memo. Entries are created on first
// request, overwritten on each re-verification, and never expire; callers
// decide when to re-verify.
type Cache struct {
	verifier OfferVerifier
	logger   zerolog.Logger
	now      func() time.Time

	mu        sync.Mutex
	entries   map[string]Status
	inFlight  map[string]struct{}
	listeners map[int]func()
	nextID    int
}

// New constructs a Cache around a verifier.
func New(v OfferVerifier, logger zerolog.Logger) *Cache {
	return &Cache{
		verifier:  v,
		logger:    logger.With().Str("component", "offer_status_cache").Logger(),
		now:       time.Now,
		entries:   make(map[string]Status),
		inFlight:  make(map[string]struct{}),
		listeners: make(map[int]func()),
	}
}

// Status returns the cached entry for an offer id, if any.
func (c *Cache) Status(offerID string) (Status, bool) {
	key := strings.TrimSpace(offerID)
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	return entry, ok
}

// Subscribe registers a change listener, invoked synchronously after every
// cache mutation. The returned func cancels the subscription.
func (c *Cache) Subscribe(fn func()) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// VerifyOffer verifies an offer id and records the outcome. At most one
// verification per offer id is in flight at a time: a concurrent call for
// the same key returns the current cached value immediately instead of
// issuing a duplicate query; subscribers see the fresh result once the
// in-flight verification settles.
func (c *Cache) VerifyOffer(ctx context.Context, offerID string) Status {
	key := strings.TrimSpace(offerID)
	if key == "" {
		return Status{}
	}

	c.mu.Lock()
	if _, busy := c.inFlight[key]; busy {
		entry := c.entries[key]
		c.mu.Unlock()
		return entry
	}
	c.inFlight[key] = struct{}{}

	entry, known := c.entries[key]
	if !known {
		entry = Status{OfferID: key, Availability: StatusUnknown}
	}
	entry.IsChecking = true
	entry.UpdatedAt = c.now()
	c.entries[key] = entry
	c.mu.Unlock()
	c.notify()

	outcome := c.verifier.Verify(ctx, key)

	next := fromOutcome(key, outcome)
	next.UpdatedAt = c.now()

	c.mu.Lock()
	c.entries[key] = next
	delete(c.inFlight, key)
	c.mu.Unlock()
	c.notify()

	return next
}

func fromOutcome(offerID string, outcome verifier.Outcome) Status {
	status := Status{OfferID: offerID, Availability: outcome.Availability()}
	switch o := outcome.(type) {
	case verifier.Available:
		status.Txid = o.Txid
		status.Vout = o.Vout
		status.Terms = o.Terms
		status.TermsStatus = o.TermsStatus
	case verifier.Spent:
		status.Txid = o.Txid
		status.Vout = o.Vout
		status.SpentBy = o.SpentBy
	case verifier.NotFound:
		status.Txid = o.Txid
		status.Vout = o.Vout
	case verifier.Invalid:
		status.Reason = o.Reason
	}
	return status
}

func (c *Cache) notify() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
