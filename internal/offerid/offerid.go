// Package offerid parses the txid:vout offer reference format used across
// the marketplace (URLs, wallet deep links, live-offer announcements).
package offerid

import (
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Ref is a canonicalized offer reference. Txid is always lowercase hex and
// Raw is always "txid:vout" with the vout in plain decimal.
type Ref struct {
	Txid string
	Vout uint32
	Raw  string
}

// Parse splits and validates a raw offer id. It is pure and total: any
// malformed input yields ok=false, never a partially populated Ref.
func Parse(raw string) (Ref, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Ref{}, false
	}
	txidPart, voutPart, found := strings.Cut(s, ":")
	if !found || strings.Contains(voutPart, ":") {
		return Ref{}, false
	}

	txid, ok := normalizeTxid(txidPart)
	if !ok {
		return Ref{}, false
	}

	voutStr := strings.TrimSpace(voutPart)
	vout, err := strconv.ParseUint(voutStr, 10, 32)
	if err != nil {
		return Ref{}, false
	}

	return Ref{
		Txid: txid,
		Vout: uint32(vout),
		Raw:  txid + ":" + strconv.FormatUint(vout, 10),
	}, true
}

// LooksLikeBareTxid reports whether the input is a plain 64-hex transaction
// id with no output index. Used to hint "you pasted a txid, not an outpoint".
func LooksLikeBareTxid(raw string) bool {
	_, ok := normalizeTxid(raw)
	return ok
}

// Outpoint renders the canonical outpoint string for a txid/index pair.
func Outpoint(txid string, outIdx uint32) string {
	return strings.ToLower(txid) + ":" + strconv.FormatUint(uint64(outIdx), 10)
}

func normalizeTxid(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if len(s) != chainhash.MaxHashStringSize {
		return "", false
	}
	hash, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return "", false
	}
	return hash.String(), true
}
