package chain

import (
	"fmt"
	"math/big"
	"strings"
)

// Amount is an arbitrary-precision token quantity. The indexer serializes
// atom amounts as JSON strings to avoid 53-bit truncation; some deployments
// still emit bare numbers, so both are accepted.
type Amount struct {
	big.Int
}

// NewAmount builds an Amount from an int64, mostly for tests and fixtures.
func NewAmount(v int64) *Amount {
	a := &Amount{}
	a.SetInt64(v)
	return a
}

// UnmarshalJSON accepts "123", 123 and null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return nil
	}
	if _, ok := a.SetString(s, 10); !ok {
		return fmt.Errorf("chain: invalid amount %q", s)
	}
	return nil
}

// MarshalJSON renders the amount as a decimal string.
func (a *Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// OutPoint references a specific transaction output.
type OutPoint struct {
	Txid   string `json:"txid"`
	OutIdx uint32 `json:"outIdx"`
}

// TokenType carries the token protocol tag (SLP or ALP) and its subtype number.
type TokenType struct {
	Protocol string `json:"protocol"`
	Number   uint32 `json:"number"`
}

// TokenData is the token record attached to an output or UTXO.
type TokenData struct {
	TokenID   string     `json:"tokenId"`
	TokenType *TokenType `json:"tokenType,omitempty"`
	Atoms     *Amount    `json:"atoms,omitempty"`
}

// PluginData is an opaque covenant metadata blob tagged by protocol name.
// Entries in Data and Groups are hex encoded byte arrays.
type PluginData struct {
	Data   []string `json:"data"`
	Groups []string `json:"groups"`
}

// TxInput is a transaction input with its previous-outpoint reference.
type TxInput struct {
	PrevOut *OutPoint `json:"prevOut,omitempty"`
}

// TxOutput is a transaction output as reported by the indexer.
type TxOutput struct {
	Sats         int64                 `json:"sats"`
	OutputScript string                `json:"outputScript"`
	Token        *TokenData            `json:"token,omitempty"`
	SpentBy      *OutPoint             `json:"spentBy,omitempty"`
	IsSpent      bool                  `json:"isSpent,omitempty"`
	Plugins      map[string]PluginData `json:"plugins,omitempty"`
}

// Tx is an indexer transaction.
type Tx struct {
	Txid    string     `json:"txid"`
	Inputs  []TxInput  `json:"inputs"`
	Outputs []TxOutput `json:"outputs"`
}

// GenesisInfo holds token genesis metadata.
type GenesisInfo struct {
	TokenTicker string `json:"tokenTicker"`
	TokenName   string `json:"tokenName"`
	URL         string `json:"url"`
	Decimals    int    `json:"decimals"`
	Hash        string `json:"hash"`
}

// TokenInfo is the indexer token metadata record.
type TokenInfo struct {
	TokenID     string      `json:"tokenId"`
	TokenType   *TokenType  `json:"tokenType,omitempty"`
	GenesisInfo GenesisInfo `json:"genesisInfo"`
	TotalSupply string      `json:"totalSupply,omitempty"`
}

// Utxo is a single unspent output for a script.
type Utxo struct {
	Outpoint OutPoint   `json:"outpoint"`
	Sats     int64      `json:"sats"`
	Token    *TokenData `json:"token,omitempty"`
}

// ScriptUtxos is the UTXO listing for one script.
type ScriptUtxos struct {
	Utxos []Utxo `json:"utxos"`
}

// BlockchainInfo is the chain tip summary.
type BlockchainInfo struct {
	TipHeight int64  `json:"tipHeight"`
	TipHash   string `json:"tipHash"`
}
