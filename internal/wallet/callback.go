package wallet

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"xololegend-market/internal/offerid"
)

// maxCallbackAge is how stale a connect callback's ts parameter may be.
const maxCallbackAge = 300 * time.Second

// Session is a validated wallet connection established via the return
// callback.
type Session struct {
	Wallet      string
	Chain       string
	Address     string
	Pubkey      string
	RequestID   string
	Nonce       string
	ConnectedAt time.Time
}

// Callback validation failures. Each rule invalidates independently.
var (
	ErrCallbackStatus  = errors.New("wallet: callback status not ok")
	ErrCallbackOrigin  = errors.New("wallet: callback origin mismatch")
	ErrCallbackStale   = errors.New("wallet: callback timestamp stale or invalid")
	ErrCallbackAddress = errors.New("wallet: callback missing address")
)

// ValidateCallback checks the query/fragment parameters the wallet sends
// back after a connect flow and produces a Session on success.
func ValidateCallback(params url.Values, pageOrigin string, now time.Time) (*Session, error) {
	if params.Get("status") != "ok" {
		return nil, ErrCallbackStatus
	}

	if origin := params.Get("origin"); origin == "" || origin != pageOrigin {
		return nil, ErrCallbackOrigin
	}

	tsRaw := params.Get("ts")
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return nil, ErrCallbackStale
	}
	age := now.Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > maxCallbackAge {
		return nil, ErrCallbackStale
	}

	address := params.Get("address")
	if address == "" {
		return nil, ErrCallbackAddress
	}

	return &Session{
		Wallet:      params.Get("wallet"),
		Chain:       params.Get("chain"),
		Address:     address,
		Pubkey:      params.Get("pubkey"),
		RequestID:   params.Get("requestId"),
		Nonce:       params.Get("nonce"),
		ConnectedAt: now,
	}, nil
}

// OfferReturn is the result of parsing an offer-return navigation from the
// wallet. Consumed reports whether the parameters addressed this flow at all.
type OfferReturn struct {
	OfferID  string
	Err      error
	Consumed bool
}

var (
	offerIDKeys = []string{"offerId", "offer_id", "offer"}
	txidKeys    = []string{"txid", "txId"}
)

// ParseOfferReturn extracts a canonical offer id from wallet return-URL
// parameters, accepting either a combined offerId or split txid+vout keys.
func ParseOfferReturn(params url.Values) OfferReturn {
	if value := firstParam(params, offerIDKeys); value != "" {
		ref, ok := offerid.Parse(value)
		if !ok {
			return OfferReturn{Err: errors.New("invalid Offer ID returned from wallet"), Consumed: true}
		}
		return OfferReturn{OfferID: ref.Raw, Consumed: true}
	}

	txid := firstParam(params, txidKeys)
	vout := params.Get("vout")
	if txid == "" && vout == "" {
		return OfferReturn{Consumed: false}
	}
	if txid == "" || vout == "" {
		return OfferReturn{Err: errors.New("missing txid or vout from wallet"), Consumed: true}
	}
	ref, ok := offerid.Parse(fmt.Sprintf("%s:%s", txid, vout))
	if !ok {
		return OfferReturn{Err: errors.New("invalid txid or vout returned from wallet"), Consumed: true}
	}
	return OfferReturn{OfferID: ref.Raw, Consumed: true}
}

func firstParam(params url.Values, keys []string) string {
	for _, key := range keys {
		if value := params.Get(key); value != "" {
			return value
		}
	}
	return ""
}
