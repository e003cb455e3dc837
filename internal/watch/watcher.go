// Package watch consumes the indexer's live transaction feed to retire
// offers whose backing outpoint gets spent, and periodically refreshes the
// verification state of stored listings.
package watch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"xololegend-market/internal/alerting"
	"xololegend-market/internal/chain"
	"xololegend-market/internal/listings"
	"xololegend-market/internal/liveoffers"
	"xololegend-market/internal/statuscache"
	"xololegend-market/internal/tracker"
)

// StreamSource opens the live transaction feed and resolves transactions.
type StreamSource interface {
	OpenTxStream(ctx context.Context, onMessage func(chain.TxMsg)) (*chain.StreamHandle, error)
	Tx(ctx context.Context, txid string) (*chain.Tx, error)
}

// Options tune watcher behaviour.
type Options struct {
	ReconnectDelay time.Duration
	FetchTimeout   time.Duration
	SweepInterval  time.Duration
	SweepLimit     int
}

// Watcher wires the tx stream into the spent-outpoint tracker, the live
// offer registry, and the offer status cache.
type Watcher struct {
	source   StreamSource
	tracker  *tracker.Tracker
	offers   *liveoffers.Registry
	cache    *statuscache.Cache
	store    listings.ListingStore
	notifier alerting.Notifier
	opts     Options
	logger   zerolog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// New constructs a Watcher. store and notifier are optional.
func New(source StreamSource, trk *tracker.Tracker, offers *liveoffers.Registry, cache *statuscache.Cache, store listings.ListingStore, notifier alerting.Notifier, opts Options, logger zerolog.Logger) *Watcher {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.SweepLimit <= 0 {
		opts.SweepLimit = 100
	}
	return &Watcher{
		source:   source,
		tracker:  trk,
		offers:   offers,
		cache:    cache,
		store:    store,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With().Str("component", "watcher").Logger(),
		seen:     make(map[string]struct{}),
	}
}

// Run blocks, keeping a stream subscription alive until ctx is cancelled.
// Each disconnect is followed by a fixed-delay redial.
func (w *Watcher) Run(ctx context.Context) error {
	if w.opts.SweepInterval > 0 && w.store != nil {
		go w.sweepLoop(ctx)
	}

	for {
		handle, err := w.source.OpenTxStream(ctx, func(msg chain.TxMsg) {
			w.handleTxMsg(ctx, msg)
		})
		if err != nil {
			w.logger.Warn().Err(err).Dur("retry_in", w.opts.ReconnectDelay).Msg("tx stream dial failed")
			if !sleepCtx(ctx, w.opts.ReconnectDelay) {
				return ctx.Err()
			}
			continue
		}

		select {
		case <-ctx.Done():
			handle.Close()
			return ctx.Err()
		case <-handle.Done():
			w.logger.Info().Dur("retry_in", w.opts.ReconnectDelay).Msg("tx stream closed, reconnecting")
			if !sleepCtx(ctx, w.opts.ReconnectDelay) {
				return ctx.Err()
			}
		}
	}
}

// handleTxMsg processes one streamed transaction in delivery order. The
// stream may replay messages across reconnects; txid is the dedup key.
func (w *Watcher) handleTxMsg(ctx context.Context, msg chain.TxMsg) {
	txid := strings.ToLower(msg.Txid)
	if txid == "" {
		return
	}

	w.mu.Lock()
	if _, dup := w.seen[txid]; dup {
		w.mu.Unlock()
		return
	}
	if !w.tracker.HasLiveOutpoints() {
		w.mu.Unlock()
		return
	}
	w.seen[txid] = struct{}{}
	w.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, w.opts.FetchTimeout)
	defer cancel()

	tx, err := w.source.Tx(fetchCtx, txid)
	if err != nil {
		w.logger.Warn().Err(err).Str("txid", txid).Msg("failed to load streamed tx")
		return
	}

	spentOfferIDs := w.tracker.OnStreamedTx(tx)
	if len(spentOfferIDs) == 0 {
		return
	}

	for _, offerID := range spentOfferIDs {
		w.logger.Info().Str("offer_id", offerID).Str("spending_txid", tx.Txid).Msg("tracked offer spent")
		w.offers.Remove(offerID)
		if w.notifier != nil {
			note := alerting.Notification{
				OfferID:      offerID,
				SpendingTxid: tx.Txid,
				ObservedAt:   time.Now().UTC(),
			}
			if err := w.notifier.Notify(ctx, note); err != nil {
				w.logger.Warn().Err(err).Str("offer_id", offerID).Msg("failed to dispatch retraction alert")
			}
		}
		// Opportunistic refresh so cached entries flip to spent promptly.
		go w.cache.VerifyOffer(context.WithoutCancel(ctx), offerID)
	}
}

// sweepLoop re-verifies stored listings on a fixed interval and persists the
// latest verification state.
func (w *Watcher) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepListings(ctx)
		}
	}
}

func (w *Watcher) sweepListings(ctx context.Context) {
	items, err := w.store.ListRecentListings(ctx, w.opts.SweepLimit)
	if err != nil {
		w.logger.Warn().Err(err).Msg("listing sweep query failed")
		return
	}

	for _, item := range items {
		if item.OfferTxID == "" {
			continue
		}
		status := w.cache.VerifyOffer(ctx, item.OfferTxID)
		verification := listings.Verification(status.Availability)
		if err := w.store.UpdateVerification(ctx, item.ID, verification, status.UpdatedAt); err != nil {
			w.logger.Warn().Err(err).Str("listing_id", item.ID).Msg("failed to persist verification state")
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
