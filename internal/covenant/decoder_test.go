package covenant

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/rs/zerolog"

	"xololegend-market/internal/chain"
)

const testTokenID = "2222222222222222222222222222222222222222222222222222222222222222"

type fakeTokenInfo struct {
	decimals int
	err      error
	calls    int
}

func (f *fakeTokenInfo) Token(ctx context.Context, tokenID string) (*chain.TokenInfo, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &chain.TokenInfo{
		TokenID:     tokenID,
		GenesisInfo: chain.GenesisInfo{Decimals: f.decimals},
	}, nil
}

func newTestDecoder(tokens TokenInfoGetter) *Decoder {
	return NewDecoder(tokens, "", zerolog.Nop())
}

func partialPluginData() chain.PluginData {
	return chain.PluginData{
		Data: []string{
			partialVariantHex,
			"00",               // atoms trunc bytes
			"00",               // sats trunc bytes
			"e803000000000000", // scale factor 1000
			"e803000000000000", // 1000 scaled trunc atoms per trunc sat
			"a086010000000000", // min accepted 100000
			"00000000",
		},
		Groups: []string{"5003ab"},
	}
}

func tokenTx(atoms int64, protocol string, plugin chain.PluginData) *chain.Tx {
	return &chain.Tx{
		Txid: "aa",
		Outputs: []chain.TxOutput{
			{
				Sats:         546,
				OutputScript: "a914deadbeef87",
				Token: &chain.TokenData{
					TokenID:   testTokenID,
					TokenType: &chain.TokenType{Protocol: protocol, Number: 1},
					Atoms:     chain.NewAmount(atoms),
				},
				Plugins: map[string]chain.PluginData{PluginName: plugin},
			},
		},
	}
}

func TestDecodePartialTerms(t *testing.T) {
	tokens := &fakeTokenInfo{decimals: 2}
	d := newTestDecoder(tokens)

	terms := d.DecodeTerms(context.Background(), tokenTx(1000, "SLP", partialPluginData()), 0)
	tt, ok := terms.(TokenTerms)
	if !ok {
		t.Fatalf("应解码为 TokenTerms, 实际 %T", terms)
	}

	if tt.TokenID != testTokenID {
		t.Fatalf("token id 不符: %s", tt.TokenID)
	}
	if tt.SellAtoms.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("sell atoms 不符: %s", tt.SellAtoms)
	}
	if tt.MinAcceptedAtoms.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("min accepted 不符: %s", tt.MinAcceptedAtoms)
	}
	if tt.TotalSats.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("total sats 不符: %s", tt.TotalSats)
	}
	if tt.Source != SourceAskedSats {
		t.Fatalf("价格来源应为 askedSats, 实际 %s", tt.Source)
	}
	if tt.PriceNanoSatsPerAtom.Cmp(big.NewInt(1_000_000_000)) != 0 {
		t.Fatalf("nano sats 单价不符: %s", tt.PriceNanoSatsPerAtom)
	}
	if tt.XecTotal != "10" {
		t.Fatalf("XEC 总价不符: %s", tt.XecTotal)
	}
	if tt.XecPerToken != "1.0000" {
		t.Fatalf("XEC 单价不符: %s", tt.XecPerToken)
	}
	if tt.TokenAmount != "10" {
		t.Fatalf("token 数量不符: %s", tt.TokenAmount)
	}
}

func TestDecodePartialTruncatedAtoms(t *testing.T) {
	plugin := partialPluginData()
	plugin.Data[1] = "01"
	d := newTestDecoder(&fakeTokenInfo{decimals: 0})

	terms := d.DecodeTerms(context.Background(), tokenTx(256, "ALP", plugin), 0)
	tt, ok := terms.(TokenTerms)
	if !ok {
		t.Fatalf("应解码为 TokenTerms, 实际 %T", terms)
	}

	// 256 atoms, one truncated byte: trunc amount 1, recovered 1<<8.
	if tt.SellAtoms.Cmp(big.NewInt(256)) != 0 {
		t.Fatalf("还原后的 sell atoms 不符: %s", tt.SellAtoms)
	}
	if tt.TotalSats.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("total sats 不符: %s", tt.TotalSats)
	}
}

func TestDecodePartialRejections(t *testing.T) {
	d := newTestDecoder(&fakeTokenInfo{decimals: 0})
	ctx := context.Background()

	zeroRate := partialPluginData()
	zeroRate.Data[4] = "0000000000000000"

	zeroScale := partialPluginData()
	zeroScale.Data[3] = "0000000000000000"

	noMaker := partialPluginData()
	noMaker.Groups = nil

	shortData := partialPluginData()
	shortData.Data = shortData.Data[:4]

	cases := map[string]*chain.Tx{
		"零汇率":     tokenTx(1000, "SLP", zeroRate),
		"零缩放因子":   tokenTx(1000, "SLP", zeroScale),
		"缺少挂单方公钥": tokenTx(1000, "SLP", noMaker),
		"字段不足":    tokenTx(1000, "SLP", shortData),
		"未知协议":    tokenTx(1000, "UNKNOWN", partialPluginData()),
	}
	for name, tx := range cases {
		if terms := d.DecodeTerms(ctx, tx, 0); terms != nil {
			t.Fatalf("%s: 应返回 nil, 实际 %#v", name, terms)
		}
	}
}

func TestDecodeOneshotTerms(t *testing.T) {
	plugin := chain.PluginData{
		Data: []string{
			oneshotVariantHex,
			// 50000 sats with an empty enforced script.
			"50c300000000000000",
		},
	}
	d := newTestDecoder(&fakeTokenInfo{decimals: 0})

	terms := d.DecodeTerms(context.Background(), tokenTx(1, "SLP", plugin), 0)
	nt, ok := terms.(NftTerms)
	if !ok {
		t.Fatalf("应解码为 NftTerms, 实际 %T", terms)
	}
	if nt.PriceSats.Cmp(big.NewInt(50000)) != 0 {
		t.Fatalf("price sats 不符: %s", nt.PriceSats)
	}
	if nt.XecTotal != "500" {
		t.Fatalf("XEC 总价不符: %s", nt.XecTotal)
	}
}

func TestDecodeOneshotSumsMultipleOutputs(t *testing.T) {
	plugin := chain.PluginData{
		Data: []string{
			oneshotVariantHex,
			// 1000 sats + 2-byte script, then 500 sats + empty script.
			"e80300000000000002aabb" + "f40100000000000000",
		},
	}
	d := newTestDecoder(&fakeTokenInfo{decimals: 0})

	terms := d.DecodeTerms(context.Background(), tokenTx(1, "SLP", plugin), 0)
	nt, ok := terms.(NftTerms)
	if !ok {
		t.Fatalf("应解码为 NftTerms, 实际 %T", terms)
	}
	if nt.PriceSats.Cmp(big.NewInt(1500)) != 0 {
		t.Fatalf("多输出求和不符: %s", nt.PriceSats)
	}
}

func TestDecodeOneshotRequiresSingleAtom(t *testing.T) {
	plugin := chain.PluginData{
		Data: []string{oneshotVariantHex, "50c300000000000000"},
	}
	d := newTestDecoder(&fakeTokenInfo{decimals: 0})

	if terms := d.DecodeTerms(context.Background(), tokenTx(2, "SLP", plugin), 0); terms != nil {
		t.Fatalf("多于一个 atom 的 oneshot 应返回 nil, 实际 %#v", terms)
	}
}

func TestDecodeTermsMisses(t *testing.T) {
	d := newTestDecoder(&fakeTokenInfo{decimals: 0})
	ctx := context.Background()

	noPlugin := tokenTx(1000, "SLP", partialPluginData())
	noPlugin.Outputs[0].Plugins = nil

	unknownVariant := partialPluginData()
	unknownVariant.Data[0] = "deadbeef"

	noToken := tokenTx(1000, "SLP", partialPluginData())
	noToken.Outputs[0].Token = nil

	if terms := d.DecodeTerms(ctx, nil, 0); terms != nil {
		t.Fatal("nil tx 应返回 nil")
	}
	if terms := d.DecodeTerms(ctx, noPlugin, 0); terms != nil {
		t.Fatal("无 plugin 数据应返回 nil")
	}
	if terms := d.DecodeTerms(ctx, tokenTx(1000, "SLP", unknownVariant), 0); terms != nil {
		t.Fatal("未知 covenant 变体应返回 nil")
	}
	if terms := d.DecodeTerms(ctx, noToken, 0); terms != nil {
		t.Fatal("无 token 输出应返回 nil")
	}
	if terms := d.DecodeTerms(ctx, tokenTx(1000, "SLP", partialPluginData()), 5); terms != nil {
		t.Fatal("越界输出应返回 nil")
	}
}

func TestIsRmzToken(t *testing.T) {
	d := NewDecoder(&fakeTokenInfo{}, "AABB", zerolog.Nop())
	if !d.IsRmzToken("aabb") {
		t.Fatal("大小写不同的 RMZ token id 应匹配")
	}
	if d.IsRmzToken("ccdd") {
		t.Fatal("其他 token 不应匹配")
	}
	if NewDecoder(&fakeTokenInfo{}, "", zerolog.Nop()).IsRmzToken("") {
		t.Fatal("未配置 RMZ token id 时应恒为 false")
	}
}

func TestTokenDecimalsCached(t *testing.T) {
	tokens := &fakeTokenInfo{decimals: 4}
	d := newTestDecoder(tokens)
	ctx := context.Background()

	d.DecodeTerms(ctx, tokenTx(1000, "SLP", partialPluginData()), 0)
	d.DecodeTerms(ctx, tokenTx(1000, "SLP", partialPluginData()), 0)

	if tokens.calls != 1 {
		t.Fatalf("decimals 查询应命中缓存, 实际调用 %d 次", tokens.calls)
	}
}

func TestTokenDecimalsLookupFailureFallsBackToZero(t *testing.T) {
	tokens := &fakeTokenInfo{err: errors.New("indexer down")}
	d := newTestDecoder(tokens)

	terms := d.DecodeTerms(context.Background(), tokenTx(1000, "SLP", partialPluginData()), 0)
	tt, ok := terms.(TokenTerms)
	if !ok {
		t.Fatalf("查询失败仍应解码成功, 实际 %T", terms)
	}
	// Zero decimals: atom count renders verbatim.
	if tt.TokenAmount != "1000" {
		t.Fatalf("失败时应按零位小数渲染: %s", tt.TokenAmount)
	}
}
