package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"xololegend-market/internal/alerting"
	"xololegend-market/internal/chain"
	"xololegend-market/internal/listings"
	"xololegend-market/internal/liveoffers"
	"xololegend-market/internal/statuscache"
	"xololegend-market/internal/tracker"
	"xololegend-market/internal/verifier"
)

const offerTxid = "6666666666666666666666666666666666666666666666666666666666666666"

type fakeSource struct {
	mu      sync.Mutex
	txs     map[string]*chain.Tx
	fetches int
}

func (f *fakeSource) OpenTxStream(ctx context.Context, onMessage func(chain.TxMsg)) (*chain.StreamHandle, error) {
	return nil, errors.New("not used in tests")
}

func (f *fakeSource) Tx(ctx context.Context, txid string) (*chain.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	tx, ok := f.txs[txid]
	if !ok {
		return nil, &chain.NotFoundError{Resource: "/tx/" + txid}
	}
	return tx, nil
}

type stubVerifier struct {
	mu       sync.Mutex
	verified []string
}

func (s *stubVerifier) Verify(ctx context.Context, raw string) verifier.Outcome {
	s.mu.Lock()
	s.verified = append(s.verified, raw)
	s.mu.Unlock()
	return verifier.Spent{Txid: offerTxid, Vout: 0}
}

func (s *stubVerifier) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.verified...)
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
	return nil
}

func newTestWatcher(source StreamSource, store listings.ListingStore, notifier alerting.Notifier) (*Watcher, *tracker.Tracker, *liveoffers.Registry, *stubVerifier) {
	trk := tracker.New()
	offers := liveoffers.New(0, zerolog.Nop())
	sv := &stubVerifier{}
	cache := statuscache.New(sv, zerolog.Nop())
	w := New(source, trk, offers, cache, store, notifier, Options{ReconnectDelay: time.Millisecond}, zerolog.Nop())
	return w, trk, offers, sv
}

func spendTx(txid string) *chain.Tx {
	return &chain.Tx{
		Txid: txid,
		Inputs: []chain.TxInput{
			{PrevOut: &chain.OutPoint{Txid: offerTxid, OutIdx: 0}},
		},
	}
}

func TestHandleTxMsgRetiresSpentOffer(t *testing.T) {
	spender := "7777777777777777777777777777777777777777777777777777777777777777"
	source := &fakeSource{txs: map[string]*chain.Tx{spender: spendTx(spender)}}
	notifier := &recordingNotifier{}
	w, trk, offers, sv := newTestWatcher(source, nil, notifier)

	offerID := offerTxid + ":0"
	trk.Register(offerID)
	offers.Submit(map[string]any{
		"offerId":     offerID,
		"timestamp":   float64(time.Now().UnixMilli()),
		"listingType": "nft",
	}, liveoffers.AnnounceMeta{Topic: "a"})

	w.handleTxMsg(context.Background(), chain.TxMsg{Type: "Tx", Txid: spender})

	if trk.HasLiveOutpoints() {
		t.Fatal("命中后 outpoint 应被移除")
	}
	if got := offers.Offers(); len(got) != 0 {
		t.Fatalf("已花费的 offer 应从注册表移除: %#v", got)
	}

	notifier.mu.Lock()
	notes := append([]alerting.Notification(nil), notifier.notes...)
	notifier.mu.Unlock()
	if len(notes) != 1 || notes[0].OfferID != offerID || notes[0].SpendingTxid != spender {
		t.Fatalf("告警内容不符: %#v", notes)
	}

	// The async cache refresh re-verifies the retired offer.
	deadline := time.After(time.Second)
	for {
		if calls := sv.calls(); len(calls) == 1 && calls[0] == offerID {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("缓存应被异步复查: %#v", sv.calls())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHandleTxMsgDeduplicatesTxids(t *testing.T) {
	spender := "8888888888888888888888888888888888888888888888888888888888888888"
	source := &fakeSource{txs: map[string]*chain.Tx{spender: spendTx(spender)}}
	w, trk, _, _ := newTestWatcher(source, nil, nil)

	trk.Register(offerTxid + ":0")
	trk.Register(offerTxid + ":1")

	w.handleTxMsg(context.Background(), chain.TxMsg{Type: "Tx", Txid: spender})
	w.handleTxMsg(context.Background(), chain.TxMsg{Type: "Tx", Txid: spender})

	if source.fetches != 1 {
		t.Fatalf("相同 txid 应只抓取一次: %d", source.fetches)
	}
}

func TestHandleTxMsgShortCircuitsWithoutLiveOutpoints(t *testing.T) {
	source := &fakeSource{txs: map[string]*chain.Tx{}}
	w, _, _, _ := newTestWatcher(source, nil, nil)

	w.handleTxMsg(context.Background(), chain.TxMsg{Type: "Tx", Txid: "9999999999999999999999999999999999999999999999999999999999999999"})

	if source.fetches != 0 {
		t.Fatalf("无 live outpoint 时不应抓取: %d", source.fetches)
	}
}

func TestHandleTxMsgIgnoresFetchFailure(t *testing.T) {
	source := &fakeSource{txs: map[string]*chain.Tx{}}
	w, trk, _, _ := newTestWatcher(source, nil, nil)
	trk.Register(offerTxid + ":0")

	w.handleTxMsg(context.Background(), chain.TxMsg{Type: "Tx", Txid: "aaaa000000000000000000000000000000000000000000000000000000000000"})

	if !trk.HasLiveOutpoints() {
		t.Fatal("抓取失败不应移除 outpoint")
	}
}

type fakeStore struct {
	mu      sync.Mutex
	items   []listings.Listing
	updated map[string]listings.Verification
}

func (f *fakeStore) UpsertListing(ctx context.Context, listing listings.Listing) error { return nil }

func (f *fakeStore) ListRecentListings(ctx context.Context, limit int) ([]listings.Listing, error) {
	return f.items, nil
}

func (f *fakeStore) GetListing(ctx context.Context, id string) (listings.Listing, error) {
	return listings.Listing{}, nil
}

func (f *fakeStore) UpdateVerification(ctx context.Context, id string, verification listings.Verification, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updated == nil {
		f.updated = make(map[string]listings.Verification)
	}
	f.updated[id] = verification
	return nil
}

func (f *fakeStore) DeleteListing(ctx context.Context, id string) error { return nil }

func (f *fakeStore) CountListings(ctx context.Context) (int64, error) { return 0, nil }

func TestSweepListingsPersistsVerification(t *testing.T) {
	store := &fakeStore{items: []listings.Listing{
		{ID: "listing-1", OfferTxID: offerTxid + ":0"},
		{ID: "listing-2"}, // no offer reference, skipped
	}}
	source := &fakeSource{txs: map[string]*chain.Tx{}}
	w, _, _, sv := newTestWatcher(source, store, nil)

	w.sweepListings(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.updated) != 1 {
		t.Fatalf("应只更新带 offer 引用的 listing: %#v", store.updated)
	}
	if store.updated["listing-1"] != listings.VerificationSpent {
		t.Fatalf("verification 状态不符: %s", store.updated["listing-1"])
	}
	if calls := sv.calls(); len(calls) != 1 {
		t.Fatalf("应校验一次: %#v", calls)
	}
}
