package covenant

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"xololegend-market/internal/chain"
)

// PluginName is the indexer plugin namespace carrying agora covenant metadata.
const PluginName = "agora"

// Covenant variant tags as they appear in plugin data: hex of the ASCII
// variant string pushed by the covenant script.
const (
	oneshotVariantHex = "4f4e4553484f54" // "ONESHOT"
	partialVariantHex = "5041525449414c" // "PARTIAL"

	// Maker pubkey group entries are prefixed with ASCII "P".
	makerPkGroupPrefix = "50"
)

// TokenInfoGetter resolves token metadata, used for decimal precision lookups.
type TokenInfoGetter interface {
	Token(ctx context.Context, tokenID string) (*chain.TokenInfo, error)
}

// Decoder extracts sell-covenant terms from raw transaction outputs.
type Decoder struct {
	tokens     TokenInfoGetter
	rmzTokenID string
	logger     zerolog.Logger

	mu       sync.Mutex
	decimals map[string]int
}

// NewDecoder constructs a Decoder. rmzTokenID, when set, marks the
// marketplace's own token whose decimals are pinned in the cache after the
// first lookup.
func NewDecoder(tokens TokenInfoGetter, rmzTokenID string, logger zerolog.Logger) *Decoder {
	return &Decoder{
		tokens:     tokens,
		rmzTokenID: strings.ToLower(rmzTokenID),
		logger:     logger.With().Str("component", "covenant_decoder").Logger(),
		decimals:   make(map[string]int),
	}
}

// IsRmzToken reports whether tokenID is the marketplace's own RMZ token.
func (d *Decoder) IsRmzToken(tokenID string) bool {
	return d.rmzTokenID != "" && strings.ToLower(tokenID) == d.rmzTokenID
}

// DecodeTerms decodes the sell-covenant terms of the output at outIdx.
// A nil return is the expected miss outcome: the output is not a recognized
// covenant shape and the offer falls back to manual pricing upstream.
func (d *Decoder) DecodeTerms(ctx context.Context, tx *chain.Tx, outIdx uint32) Terms {
	if tx == nil || int(outIdx) >= len(tx.Outputs) {
		return nil
	}
	output := tx.Outputs[outIdx]
	if output.OutputScript == "" {
		return nil
	}
	token := output.Token
	if token == nil || token.TokenID == "" || token.Atoms == nil {
		return nil
	}
	plugin, ok := output.Plugins[PluginName]
	if !ok || len(plugin.Data) == 0 {
		return nil
	}

	switch plugin.Data[0] {
	case partialVariantHex:
		return d.decodePartial(ctx, token, plugin)
	case oneshotVariantHex:
		return d.decodeOneshot(token, plugin)
	}
	// Unrecognized covenant variant: treated as a manually priced offer.
	return nil
}

// partialCovenant mirrors the integer fields the partial covenant script
// commits to. Atom and satoshi amounts are stored with their low-order bytes
// truncated; full quantities are recovered by left shifting.
type partialCovenant struct {
	truncAtoms                  *big.Int
	numAtomsTruncBytes          uint8
	numSatsTruncBytes           uint8
	atomsScaleFactor            uint64
	scaledTruncAtomsPerTruncSat uint64
	minAcceptedScaledTruncAtoms uint64
	enforcedLockTime            uint32
	makerPk                     []byte
}

func (p *partialCovenant) offeredAtoms() *big.Int {
	return new(big.Int).Lsh(p.truncAtoms, 8*uint(p.numAtomsTruncBytes))
}

func (p *partialCovenant) minAcceptedAtoms() *big.Int {
	min := new(big.Int).SetUint64(p.minAcceptedScaledTruncAtoms)
	min.Lsh(min, 8*uint(p.numAtomsTruncBytes))
	return min.Quo(min, new(big.Int).SetUint64(p.atomsScaleFactor))
}

// askedSats computes the satoshis the covenant enforces for accepting
// acceptedAtoms: the scaled truncated amount divided by the rate, rounded
// up, then un-truncated.
func (p *partialCovenant) askedSats(acceptedAtoms *big.Int) *big.Int {
	rate := new(big.Int).SetUint64(p.scaledTruncAtomsPerTruncSat)
	acceptedScaled := new(big.Int).Rsh(acceptedAtoms, 8*uint(p.numAtomsTruncBytes))
	acceptedScaled.Mul(acceptedScaled, new(big.Int).SetUint64(p.atomsScaleFactor))

	truncSats := acceptedScaled.Add(acceptedScaled, new(big.Int).Sub(rate, big.NewInt(1)))
	truncSats.Quo(truncSats, rate)
	return truncSats.Lsh(truncSats, 8*uint(p.numSatsTruncBytes))
}

func (p *partialCovenant) priceNanoSatsPerAtom(acceptedAtoms *big.Int) *big.Int {
	if acceptedAtoms.Sign() == 0 {
		return new(big.Int)
	}
	price := p.askedSats(acceptedAtoms)
	price.Mul(price, bigNano)
	return price.Quo(price, acceptedAtoms)
}

func (d *Decoder) decodePartial(ctx context.Context, token *chain.TokenData, plugin chain.PluginData) Terms {
	if token.TokenType == nil {
		return nil
	}
	protocol := token.TokenType.Protocol
	if protocol != "SLP" && protocol != "ALP" {
		return nil
	}
	if len(plugin.Data) < 7 {
		return nil
	}

	numAtomsTruncBytes, ok := parseHexByte(plugin.Data[1])
	if !ok {
		return nil
	}
	numSatsTruncBytes, ok := parseHexByte(plugin.Data[2])
	if !ok {
		return nil
	}
	atomsScaleFactor, ok := parseHexU64(plugin.Data[3])
	if !ok || atomsScaleFactor == 0 {
		return nil
	}
	scaledTruncAtomsPerTruncSat, ok := parseHexU64(plugin.Data[4])
	if !ok || scaledTruncAtomsPerTruncSat == 0 {
		return nil
	}
	minAcceptedScaledTruncAtoms, ok := parseHexU64(plugin.Data[5])
	if !ok {
		return nil
	}
	enforcedLockTime, ok := parseHexU32(plugin.Data[6])
	if !ok {
		return nil
	}

	makerPk := findMakerPk(plugin.Groups)
	if makerPk == nil {
		return nil
	}

	cov := &partialCovenant{
		truncAtoms:                  new(big.Int).Rsh(&token.Atoms.Int, 8*uint(numAtomsTruncBytes)),
		numAtomsTruncBytes:          numAtomsTruncBytes,
		numSatsTruncBytes:           numSatsTruncBytes,
		atomsScaleFactor:            atomsScaleFactor,
		scaledTruncAtomsPerTruncSat: scaledTruncAtomsPerTruncSat,
		minAcceptedScaledTruncAtoms: minAcceptedScaledTruncAtoms,
		enforcedLockTime:            enforcedLockTime,
		makerPk:                     makerPk,
	}

	sellAtoms := cov.offeredAtoms()
	minAcceptedAtoms := cov.minAcceptedAtoms()
	askedSats := cov.askedSats(sellAtoms)
	priceNanoSats := cov.priceNanoSatsPerAtom(sellAtoms)

	derivedTotalSats := new(big.Int).Mul(priceNanoSats, sellAtoms)
	derivedTotalSats.Quo(derivedTotalSats, bigNano)

	totalSats := derivedTotalSats
	source := SourceDerived
	if askedSats.Sign() > 0 {
		totalSats = askedSats
		source = SourceAskedSats
	}

	decimals := d.tokenDecimals(ctx, token.TokenID)

	return TokenTerms{
		TokenID:              token.TokenID,
		SellAtoms:            sellAtoms,
		MinAcceptedAtoms:     minAcceptedAtoms,
		PriceNanoSatsPerAtom: priceNanoSats,
		TotalSats:            totalSats,
		XecTotal:             FormatXecFromSats(totalSats),
		XecPerToken:          FormatXecPerToken(totalSats, sellAtoms, decimals),
		TokenAmount:          FormatTokenAmount(sellAtoms, decimals),
		Source:               source,
	}
}

func (d *Decoder) decodeOneshot(token *chain.TokenData, plugin chain.PluginData) Terms {
	if len(plugin.Data) < 2 {
		return nil
	}
	outputsSer, err := hex.DecodeString(plugin.Data[1])
	if err != nil {
		return nil
	}

	totalSats, ok := sumSerializedOutputSats(outputsSer)
	if !ok {
		return nil
	}
	// Oneshot offers sell exactly one indivisible unit.
	if token.Atoms.Cmp(big.NewInt(1)) != 0 {
		return nil
	}

	return NftTerms{
		TokenID:   token.TokenID,
		PriceSats: totalSats,
		XecTotal:  FormatXecFromSats(totalSats),
	}
}

// sumSerializedOutputSats walks a serialized enforced-output list (8-byte LE
// satoshi value, compact-size script length, script bytes) and sums the
// satoshi values.
func sumSerializedOutputSats(ser []byte) (*big.Int, bool) {
	total := new(big.Int)
	idx := 0
	for idx < len(ser) {
		if idx+8 > len(ser) {
			return nil, false
		}
		sats := binary.LittleEndian.Uint64(ser[idx : idx+8])
		idx += 8

		scriptLen, n, ok := readCompactSize(ser[idx:])
		if !ok {
			return nil, false
		}
		idx += n
		if uint64(len(ser)-idx) < scriptLen {
			return nil, false
		}
		idx += int(scriptLen)

		total.Add(total, new(big.Int).SetUint64(sats))
	}
	return total, true
}

func readCompactSize(b []byte) (uint64, int, bool) {
	if len(b) == 0 {
		return 0, 0, false
	}
	switch b[0] {
	case 0xfd:
		if len(b) < 3 {
			return 0, 0, false
		}
		return uint64(binary.LittleEndian.Uint16(b[1:3])), 3, true
	case 0xfe:
		if len(b) < 5 {
			return 0, 0, false
		}
		return uint64(binary.LittleEndian.Uint32(b[1:5])), 5, true
	case 0xff:
		if len(b) < 9 {
			return 0, 0, false
		}
		return binary.LittleEndian.Uint64(b[1:9]), 9, true
	default:
		return uint64(b[0]), 1, true
	}
}

func findMakerPk(groups []string) []byte {
	for _, group := range groups {
		if !strings.HasPrefix(group, makerPkGroupPrefix) {
			continue
		}
		pk, err := hex.DecodeString(group[len(makerPkGroupPrefix):])
		if err != nil || len(pk) == 0 {
			continue
		}
		return pk
	}
	return nil
}

// tokenDecimals resolves a token's decimal precision, caching results for
// the session. Lookup failures render as zero decimals rather than failing
// the decode.
func (d *Decoder) tokenDecimals(ctx context.Context, tokenID string) int {
	key := strings.ToLower(tokenID)
	if key == "" {
		return 0
	}

	d.mu.Lock()
	cached, ok := d.decimals[key]
	d.mu.Unlock()
	if ok {
		return cached
	}

	info, err := d.tokens.Token(ctx, tokenID)
	if err != nil {
		d.logger.Warn().Err(err).Str("token_id", tokenID).Msg("token decimals lookup failed")
		return 0
	}

	decimals := info.GenesisInfo.Decimals
	d.mu.Lock()
	d.decimals[key] = decimals
	d.mu.Unlock()
	return decimals
}

func parseHexByte(s string) (uint8, bool) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 1 {
		return 0, false
	}
	return b[0], true
}

func parseHexU64(s string) (uint64, bool) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

func parseHexU32(s string) (uint32, bool) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}
