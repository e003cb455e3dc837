// Package verifier classifies an opaque offer id into a definitive outcome
// by querying the chain indexer: parse the outpoint, fetch the transaction,
// check spent state, and decode covenant terms when the output is live.
package verifier

import (
	"context"

	"github.com/rs/zerolog"

	"xololegend-market/internal/chain"
	"xololegend-market/internal/covenant"
	"xololegend-market/internal/offerid"
)

// Availability is the outcome discriminator.
type Availability string

const (
	StatusAvailable Availability = "available"
	StatusSpent     Availability = "spent"
	StatusNotFound  Availability = "not_found"
	StatusInvalid   Availability = "invalid"
)

// TermsStatus tells whether pricing came from the chain or must come from
// the seller's manual declaration.
type TermsStatus string

const (
	TermsOnChain TermsStatus = "onchain"
	TermsManual  TermsStatus = "manual"
)

// Outcome is the result of verifying one offer id. Exactly one concrete
// variant is ever returned: Available, Spent, NotFound, or Invalid.
type Outcome interface {
	Availability() Availability
}

// Available means the offer output exists and is unspent. Terms is nil when
// covenant decoding missed; the offer is still purchasable with
// seller-declared pricing (TermsStatus manual).
type Available struct {
	Txid        string
	Vout        uint32
	Terms       covenant.Terms
	TermsStatus TermsStatus
}

func (Available) Availability() Availability { return StatusAvailable }

// Spent means the offer output has been consumed. SpentBy carries the
// spending outpoint when the indexer reports it.
type Spent struct {
	Txid    string
	Vout    uint32
	SpentBy string
}

func (Spent) Availability() Availability { return StatusSpent }

// NotFound means the offer transaction cannot currently be confirmed to
// exist. Indexer downtime intentionally presents the same way: both read as
// "cannot verify right now" and are only retried on explicit user action.
type NotFound struct {
	Txid string
	Vout uint32
}

func (NotFound) Availability() Availability { return StatusNotFound }

// Invalid means the offer id or the referenced output is malformed.
type Invalid struct {
	Reason string
}

func (Invalid) Availability() Availability { return StatusInvalid }

// TxFetcher fetches transactions by id.
type TxFetcher interface {
	Tx(ctx context.Context, txid string) (*chain.Tx, error)
}

// TermsDecoder decodes covenant terms from an output; nil means no
// recognized covenant (an expected miss, not a failure).
type TermsDecoder interface {
	DecodeTerms(ctx context.Context, tx *chain.Tx, outIdx uint32) covenant.Terms
}

// Verifier orchestrates offer verification. It never returns errors: every
// failure mode maps to an Outcome variant.
type Verifier struct {
	txs     TxFetcher
	decoder TermsDecoder
	logger  zerolog.Logger
}

// New constructs a Verifier.
func New(txs TxFetcher, decoder TermsDecoder, logger zerolog.Logger) *Verifier {
	return &Verifier{
		txs:     txs,
		decoder: decoder,
		logger:  logger.With().Str("component", "offer_verifier").Logger(),
	}
}

// Verify resolves a raw offer id to its current on-chain outcome.
func (v *Verifier) Verify(ctx context.Context, raw string) Outcome {
	ref, ok := offerid.Parse(raw)
	if !ok {
		return Invalid{Reason: "Invalid Offer ID. Expected txid:vout"}
	}

	tx, err := v.txs.Tx(ctx, ref.Txid)
	if err != nil {
		// Absence and indexer failure collapse into the same user-facing
		// outcome; neither can confirm the offer exists.
		if !chain.IsNotFound(err) {
			v.logger.Debug().Err(err).Str("txid", ref.Txid).Msg("tx fetch failed")
		}
		return NotFound{Txid: ref.Txid, Vout: ref.Vout}
	}

	if int(ref.Vout) >= len(tx.Outputs) {
		return Invalid{Reason: "Offer output not found in tx"}
	}
	output := tx.Outputs[ref.Vout]

	// Spent check always precedes terms decoding.
	if output.SpentBy != nil && output.SpentBy.Txid != "" {
		return Spent{
			Txid:    ref.Txid,
			Vout:    ref.Vout,
			SpentBy: offerid.Outpoint(output.SpentBy.Txid, output.SpentBy.OutIdx),
		}
	}
	if output.IsSpent {
		return Spent{Txid: ref.Txid, Vout: ref.Vout}
	}

	terms := v.decoder.DecodeTerms(ctx, tx, ref.Vout)
	status := TermsOnChain
	if terms == nil {
		status = TermsManual
	}
	return Available{
		Txid:        ref.Txid,
		Vout:        ref.Vout,
		Terms:       terms,
		TermsStatus: status,
	}
}
