// Package covenant decodes agora sell-covenant metadata embedded in indexer
// transaction outputs into priced offer terms. All quantity arithmetic is
// exact big-integer math; floating point never touches this path.
package covenant

import "math/big"

// Source tags how the total price of a partial offer was obtained.
type Source string

const (
	// SourceAskedSats means the covenant carried an explicit asked-satoshis figure.
	SourceAskedSats Source = "askedSats"
	// SourceDerived means the total was derived from the scaled rate.
	SourceDerived Source = "derived"
)

// Terms is the decoded pricing of a sell covenant. Exactly two shapes exist:
// TokenTerms (partial, divisible) and NftTerms (oneshot, all or nothing).
type Terms interface {
	isTerms()
}

// TokenTerms describes a partial-fill fungible token sell covenant.
type TokenTerms struct {
	TokenID              string
	SellAtoms            *big.Int
	MinAcceptedAtoms     *big.Int
	PriceNanoSatsPerAtom *big.Int
	TotalSats            *big.Int
	XecTotal             string
	XecPerToken          string
	TokenAmount          string
	Source               Source
}

func (TokenTerms) isTerms() {}

// NftTerms describes a oneshot sell covenant enforcing a single all-or-nothing
// purchase, typically an NFT.
type NftTerms struct {
	TokenID   string
	PriceSats *big.Int
	XecTotal  string
}

func (NftTerms) isTerms() {}
