// Package tracker maintains the set of outpoints backing currently live
// offers so streamed transactions can be matched against them for proactive
// spent-invalidation.
package tracker

import (
	"strings"
	"sync"

	"xololegend-market/internal/chain"
	"xololegend-market/internal/offerid"
)

// Tracker holds the offer-id to outpoint relations for live offers. An offer
// id normalizes to exactly one outpoint; one outpoint may back several offer
// ids when announced redundantly.
type Tracker struct {
	mu                sync.Mutex
	liveOutpoints     map[string]struct{}
	offerIDToOutpoint map[string]string
	outpointOfferIDs  map[string]map[string]struct{}
}

// New constructs an empty Tracker.
func New() *Tracker {
	return &Tracker{
		liveOutpoints:     make(map[string]struct{}),
		offerIDToOutpoint: make(map[string]string),
		outpointOfferIDs:  make(map[string]map[string]struct{}),
	}
}

// Register starts tracking an offer id. Unparseable ids are ignored and
// re-registering is idempotent.
func (t *Tracker) Register(offerID string) {
	ref, ok := offerid.Parse(offerID)
	if !ok {
		return
	}
	outpoint := ref.Raw

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.offerIDToOutpoint[ref.Raw]; ok {
		if existing == outpoint {
			return
		}
		t.removeOfferLocked(ref.Raw, existing)
	}

	t.offerIDToOutpoint[ref.Raw] = outpoint
	t.liveOutpoints[outpoint] = struct{}{}
	ids, ok := t.outpointOfferIDs[outpoint]
	if !ok {
		ids = make(map[string]struct{})
		t.outpointOfferIDs[outpoint] = ids
	}
	ids[ref.Raw] = struct{}{}
}

// Unregister stops tracking an offer id.
func (t *Tracker) Unregister(offerID string) {
	ref, ok := offerid.Parse(offerID)
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	outpoint, ok := t.offerIDToOutpoint[ref.Raw]
	if !ok {
		return
	}
	t.removeOfferLocked(ref.Raw, outpoint)
}

// HasLiveOutpoints is a fast short-circuit for the stream consumer.
func (t *Tracker) HasLiveOutpoints() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.liveOutpoints) > 0
}

// OnStreamedTx inspects a newly observed transaction's inputs against the
// tracked outpoints. Matching outpoints are removed from tracking (they are
// now known spent) and the deduplicated offer ids they backed are returned
// so callers can retract the corresponding listings.
func (t *Tracker) OnStreamedTx(tx *chain.Tx) []string {
	if tx == nil || len(tx.Inputs) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.liveOutpoints) == 0 {
		return nil
	}

	spentOffers := make(map[string]struct{})
	var spentOutpoints []string

	for _, input := range tx.Inputs {
		prev := input.PrevOut
		if prev == nil || prev.Txid == "" {
			continue
		}
		outpoint := offerid.Outpoint(strings.ToLower(prev.Txid), prev.OutIdx)
		if _, live := t.liveOutpoints[outpoint]; !live {
			continue
		}
		spentOutpoints = append(spentOutpoints, outpoint)
		for id := range t.outpointOfferIDs[outpoint] {
			spentOffers[id] = struct{}{}
		}
	}

	for _, outpoint := range spentOutpoints {
		for id := range t.outpointOfferIDs[outpoint] {
			delete(t.offerIDToOutpoint, id)
		}
		delete(t.outpointOfferIDs, outpoint)
		delete(t.liveOutpoints, outpoint)
	}

	if len(spentOffers) == 0 {
		return nil
	}
	result := make([]string, 0, len(spentOffers))
	for id := range spentOffers {
		result = append(result, id)
	}
	return result
}

// removeOfferLocked drops one offer id from an outpoint; the last offer id
// also retires the outpoint from the live set.
func (t *Tracker) removeOfferLocked(offerID, outpoint string) {
	delete(t.offerIDToOutpoint, offerID)
	ids, ok := t.outpointOfferIDs[outpoint]
	if !ok {
		return
	}
	delete(ids, offerID)
	if len(ids) == 0 {
		delete(t.outpointOfferIDs, outpoint)
		delete(t.liveOutpoints, outpoint)
	}
}
