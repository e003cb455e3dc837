// Package liveoffers is a small event-sourced store of offers announced in
// real time over the wallet pairing channel: validation, deduplication by
// (offerId, topic), dismissal, and 24-hour TTL eviction.
package liveoffers

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Kind tags what an announced offer sells.
type Kind string

const (
	KindNft      Kind = "nft"
	KindRmz      Kind = "rmz"
	KindEtoken   Kind = "etoken"
	KindMintpass Kind = "mintpass"
)

// OfferStatus tracks an announced offer's lifecycle.
type OfferStatus string

const (
	StatusLive   OfferStatus = "live"
	StatusBought OfferStatus = "bought"
)

// expectedSource is the only accepted announcement source tag.
const expectedSource = "tonalli"

// DefaultTTL is how long an announced offer stays listed.
const DefaultTTL = 24 * time.Hour

// chain-address prefix stripped from announced seller addresses.
const sellerAddressPrefix = "ecash:"

// Offer is a validated, normalized live offer announcement. Timestamp is
// Unix milliseconds.
type Offer struct {
	OfferID      string
	Kind         Kind
	Timestamp    int64
	Topic        string
	Txid         string
	TokenID      string
	Seller       string
	SellerRaw    string
	PriceXec     *decimal.Decimal
	Amount       string
	Dismissed    bool
	Status       OfferStatus
	PurchaseTxid string
}

// AnnounceMeta identifies the announcing pairing channel.
type AnnounceMeta struct {
	Topic string
}

// SubmitResult reports the outcome of an announcement submission.
type SubmitResult struct {
	OK     bool
	Offer  *Offer
	Reason string
}

func rejected(reason string) SubmitResult {
	return SubmitResult{OK: false, Reason: reason}
}

// Registry holds live offers for the session. All mutations notify
// subscribers synchronously.
type Registry struct {
	logger zerolog.Logger
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	offers    []Offer
	listeners map[int]func()
	nextID    int
}

// New constructs a Registry. ttl <= 0 falls back to DefaultTTL.
func New(ttl time.Duration, logger zerolog.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		logger:    logger.With().Str("component", "live_offer_registry").Logger(),
		ttl:       ttl,
		now:       time.Now,
		listeners: make(map[int]func()),
	}
}

// Submit validates an announcement payload (a decoded JSON value) and
// upserts it under the announcing topic. The first validation failure wins.
func (r *Registry) Submit(payload any, meta AnnounceMeta) SubmitResult {
	offer, reason := normalizePayload(payload)
	if reason != "" {
		return rejected(reason)
	}

	topic := strings.TrimSpace(meta.Topic)
	if topic == "" {
		topic = "unknown"
	}
	offer.Topic = topic
	offer.Dismissed = false
	offer.Status = StatusLive

	r.mu.Lock()
	next := make([]Offer, 0, len(r.offers)+1)
	next = append(next, *offer)
	for _, item := range r.offers {
		if item.OfferID == offer.OfferID && item.Topic == offer.Topic {
			continue
		}
		next = append(next, item)
	}
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].Timestamp > next[j].Timestamp
	})
	r.offers = r.evictExpired(next)
	r.mu.Unlock()
	r.notify()

	return SubmitResult{OK: true, Offer: offer}
}

// Dismiss marks matching offers dismissed. An empty topic dismisses the
// offer id across all topics.
func (r *Registry) Dismiss(offerID, topic string) {
	if offerID == "" {
		return
	}
	hasTopic := strings.TrimSpace(topic) != ""

	r.mu.Lock()
	for i := range r.offers {
		if r.offers[i].OfferID != offerID {
			continue
		}
		if hasTopic && r.offers[i].Topic != topic {
			continue
		}
		r.offers[i].Dismissed = true
	}
	r.mu.Unlock()
	r.notify()
}

// MarkSold marks an offer bought and records the settling transaction id.
func (r *Registry) MarkSold(offerID, txid string) {
	if offerID == "" {
		return
	}

	r.mu.Lock()
	for i := range r.offers {
		if r.offers[i].OfferID != offerID {
			continue
		}
		r.offers[i].Status = StatusBought
		r.offers[i].PurchaseTxid = txid
	}
	r.mu.Unlock()
	r.notify()
}

// Remove drops all entries for an offer id.
func (r *Registry) Remove(offerID string) {
	if offerID == "" {
		return
	}

	r.mu.Lock()
	next := r.offers[:0:0]
	for _, item := range r.offers {
		if item.OfferID != offerID {
			next = append(next, item)
		}
	}
	changed := len(next) != len(r.offers)
	r.offers = next
	r.mu.Unlock()

	if changed {
		r.notify()
	}
}

// RemoveAll clears the registry, used when the announcing channel's session
// terminates.
func (r *Registry) RemoveAll() {
	r.mu.Lock()
	empty := len(r.offers) == 0
	r.offers = nil
	r.mu.Unlock()

	if !empty {
		r.notify()
	}
}

// Offers returns a snapshot of all live offers, newest first.
func (r *Registry) Offers() []Offer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Offer(nil), r.offers...)
}

// OffersByKind returns a snapshot filtered to one kind.
func (r *Registry) OffersByKind(kind Kind) []Offer {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Offer
	for _, item := range r.offers {
		if item.Kind == kind {
			out = append(out, item)
		}
	}
	return out
}

// Subscribe registers a change listener; the returned func cancels it.
func (r *Registry) Subscribe(fn func()) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Registry) evictExpired(offers []Offer) []Offer {
	cutoff := r.now().UnixMilli() - r.ttl.Milliseconds()
	kept := offers[:0]
	for _, item := range offers {
		if item.Timestamp >= cutoff {
			kept = append(kept, item)
		}
	}
	return kept
}

func (r *Registry) notify() {
	r.mu.Lock()
	fns := make([]func(), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// normalizePayload validates an announcement and produces a normalized
// Offer. The returned reason is empty on success.
func normalizePayload(payload any) (*Offer, string) {
	m, ok := payload.(map[string]any)
	if !ok || m == nil {
		return nil, "invalid payload"
	}

	offerID, _ := m["offerId"].(string)
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return nil, "missing offerId"
	}

	ts, ok := numberValue(m["timestamp"])
	if !ok {
		ts, ok = numberValue(m["ts"])
	}
	if !ok {
		return nil, "missing timestamp"
	}

	kindStr, _ := m["listingType"].(string)
	if kindStr == "" {
		kindStr, _ = m["kind"].(string)
	}
	var kind Kind
	switch Kind(kindStr) {
	case KindNft, KindRmz, KindEtoken, KindMintpass:
		kind = Kind(kindStr)
	default:
		return nil, "unsupported kind"
	}

	if v, present := m["tokenId"]; present {
		if _, ok := v.(string); !ok {
			return nil, "invalid tokenId"
		}
	}
	if v, present := m["seller"]; present {
		if _, ok := v.(string); !ok {
			return nil, "invalid seller"
		}
	}
	if v, present := m["priceXec"]; present {
		if _, ok := numberValue(v); !ok {
			return nil, "invalid priceXec"
		}
	}
	if v, present := m["txid"]; present {
		if _, ok := v.(string); !ok {
			return nil, "invalid txid"
		}
	}
	if v, present := m["source"]; present {
		s, ok := v.(string)
		if !ok || s != expectedSource {
			return nil, "invalid source"
		}
	}
	if v, present := m["amount"]; present {
		if _, isStr := v.(string); !isStr {
			if _, isNum := numberValue(v); !isNum {
				return nil, "invalid amount"
			}
		}
	}

	// Announcers send seconds or milliseconds; scale seconds up.
	timestamp := int64(ts)
	if timestamp < 1_000_000_000_000 {
		timestamp *= 1000
	}

	offer := &Offer{
		OfferID:   offerID,
		Kind:      kind,
		Timestamp: timestamp,
	}

	if v, ok := m["txid"].(string); ok {
		offer.Txid = v
	}
	if v, ok := m["tokenId"].(string); ok {
		offer.TokenID = v
	}
	if v, ok := m["seller"].(string); ok {
		offer.SellerRaw = v
		if strings.HasPrefix(strings.ToLower(v), sellerAddressPrefix) {
			offer.Seller = v[len(sellerAddressPrefix):]
		} else {
			offer.Seller = v
		}
	}
	if v, ok := numberValue(m["priceXec"]); ok {
		price := decimal.NewFromFloat(v)
		offer.PriceXec = &price
	}
	if v, present := m["amount"]; present {
		switch amount := v.(type) {
		case string:
			offer.Amount = strings.TrimSpace(amount)
		default:
			if n, ok := numberValue(v); ok {
				offer.Amount = decimal.NewFromFloat(n).String()
			}
		}
	}

	return offer, ""
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
