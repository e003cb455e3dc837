// Package app wires configuration into the marketplace components and backs
// the CLI commands.
package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"xololegend-market/internal/alerting"
	"xololegend-market/internal/chain"
	"xololegend-market/internal/config"
	"xololegend-market/internal/covenant"
	"xololegend-market/internal/listings"
	"xololegend-market/internal/liveoffers"
	"xololegend-market/internal/statuscache"
	"xololegend-market/internal/tracker"
	"xololegend-market/internal/verifier"
	"xololegend-market/internal/wallet"
	"xololegend-market/internal/watch"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	Chain    *chain.Client
	Decoder  *covenant.Decoder
	Verifier *verifier.Verifier
	Cache    *statuscache.Cache
	Tracker  *tracker.Tracker
	Offers   *liveoffers.Registry
}

// NewApp constructs the application handle and its component graph.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	appLogger := logger.With().Str("component", "app").Logger()

	chainClient := chain.NewClient(chain.Options{
		BaseURL:   cfg.Chronik.URL,
		WSURL:     cfg.Chronik.WSURL,
		Timeout:   cfg.Chronik.RequestTimeout,
		UserAgent: cfg.Chronik.UserAgent,
	}, logger)

	if cfg.RMZ.TokenID == "" || cfg.RMZ.StateTokenID == "" {
		appLogger.Warn().Msg("rmz token ids not configured; token offers decode without RMZ classification")
	}

	decoder := covenant.NewDecoder(chainClient, cfg.RMZ.TokenID, logger)
	vrf := verifier.New(chainClient, decoder, logger)
	cache := statuscache.New(vrf, logger)
	trk := tracker.New()
	offers := liveoffers.New(cfg.LiveOffers.TTL, logger)

	return &App{
		Config:   cfg,
		Logger:   appLogger,
		Chain:    chainClient,
		Decoder:  decoder,
		Verifier: vrf,
		Cache:    cache,
		Tracker:  trk,
		Offers:   offers,
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

// NewWalletClient returns a pairing-channel client for the configured bridge.
func (a *App) NewWalletClient() *wallet.Client {
	return wallet.NewClient(nil, wallet.Options{
		BridgeURL:  a.Config.Wallet.BridgeURL,
		Topic:      a.Config.Wallet.Topic,
		Timeout:    a.Config.Wallet.RequestTimeout,
		UserAgent:  a.Config.Chronik.UserAgent,
		RequestTTL: a.Config.Wallet.RequestTTL,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*listings.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := listings.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := listings.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running watch service: subscribe to the tx stream,
// retire offers whose outpoint gets spent, and optionally sweep stored
// listings.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var listingStore listings.ListingStore
	if store != nil {
		listingStore = store
	}

	watcher := watch.New(a.Chain, a.Tracker, a.Offers, a.Cache, listingStore, a.newNotifier(), watch.Options{
		ReconnectDelay: a.Config.Watch.ReconnectDelay,
		SweepInterval:  a.Config.Watch.SweepInterval,
		SweepLimit:     a.Config.Watch.SweepLimit,
	}, a.Logger)

	a.Logger.Info().Msg("starting offer watch service")
	err = watcher.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watch service terminated with error")
		return err
	}

	a.Logger.Info().Msg("offer watch service stopped")
	return nil
}

// Verify resolves a single offer id against the chain and returns its cached
// status entry.
func (a *App) Verify(ctx context.Context, offerID string) statuscache.Status {
	status := a.Cache.VerifyOffer(ctx, offerID)
	if status.Availability == verifier.StatusAvailable {
		a.Tracker.Register(status.OfferID)
	}
	return status
}

// Listings returns the most recent stored listings.
func (a *App) Listings(ctx context.Context, limit int) ([]listings.Listing, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("database.dsn not configured")
	}
	defer closeStore()

	if limit <= 0 {
		limit = 20
	}
	return store.ListRecentListings(ctx, limit)
}
