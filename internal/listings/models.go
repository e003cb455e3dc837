package listings

import (
	"time"

	"github.com/shopspring/decimal"
)

// Verification mirrors the offer verification states rendered on listing
// cards. Unknown means no verification has run yet.
type Verification string

const (
	VerificationAvailable Verification = "available"
	VerificationSpent     Verification = "spent"
	VerificationInvalid   Verification = "invalid"
	VerificationNotFound  Verification = "not_found"
	VerificationUnknown   Verification = "unknown"
)

// Listing is a user-submitted marketplace listing. OfferTxID is the
// canonical txid:vout offer reference; PriceSats and AmountAtoms are
// seller-declared and may disagree with on-chain terms.
type Listing struct {
	ID           string
	CreatedAt    time.Time
	Title        string
	Description  *string
	Collection   *string
	ImageURL     *string
	OfferTxID    string
	TokenID      *string
	PriceSats    *decimal.Decimal
	AmountAtoms  *decimal.Decimal
	Verification Verification
	VerifiedAt   *time.Time
}
