package wallet

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

const pageOrigin = "https://market.example"

func validCallbackParams(now time.Time) url.Values {
	return url.Values{
		"status":    {"ok"},
		"origin":    {pageOrigin},
		"ts":        {strconv.FormatInt(now.Unix(), 10)},
		"address":   {"ecash:qq1234"},
		"wallet":    {"tonalli"},
		"chain":     {"ecash"},
		"requestId": {"req-1"},
		"nonce":     {"abcd"},
	}
}

func TestValidateCallbackSuccess(t *testing.T) {
	now := time.Now()
	session, err := ValidateCallback(validCallbackParams(now), pageOrigin, now)
	if err != nil {
		t.Fatalf("合法回调应通过: %v", err)
	}
	if session.Address != "ecash:qq1234" {
		t.Fatalf("address 不符: %s", session.Address)
	}
	if session.Wallet != "tonalli" || session.RequestID != "req-1" {
		t.Fatalf("会话字段不符: %#v", session)
	}
}

func TestValidateCallbackRejections(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name   string
		mutate func(url.Values)
		want   error
	}{
		{"status 非 ok", func(p url.Values) { p.Set("status", "error") }, ErrCallbackStatus},
		{"缺少 status", func(p url.Values) { p.Del("status") }, ErrCallbackStatus},
		{"origin 不符", func(p url.Values) { p.Set("origin", "https://evil.example") }, ErrCallbackOrigin},
		{"缺少 origin", func(p url.Values) { p.Del("origin") }, ErrCallbackOrigin},
		{"ts 非数字", func(p url.Values) { p.Set("ts", "abc") }, ErrCallbackStale},
		{"ts 过旧", func(p url.Values) { p.Set("ts", strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10)) }, ErrCallbackStale},
		{"ts 在未来过远", func(p url.Values) { p.Set("ts", strconv.FormatInt(now.Add(10*time.Minute).Unix(), 10)) }, ErrCallbackStale},
		{"缺少 address", func(p url.Values) { p.Del("address") }, ErrCallbackAddress},
	}
	for _, tc := range cases {
		params := validCallbackParams(now)
		tc.mutate(params)
		if _, err := ValidateCallback(params, pageOrigin, now); !errors.Is(err, tc.want) {
			t.Fatalf("%s: 错误不符: %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestValidateCallbackAllowsSmallClockSkew(t *testing.T) {
	now := time.Now()
	params := validCallbackParams(now)
	params.Set("ts", strconv.FormatInt(now.Add(2*time.Minute).Unix(), 10))

	if _, err := ValidateCallback(params, pageOrigin, now); err != nil {
		t.Fatalf("五分钟以内的偏差应容忍: %v", err)
	}
}

func TestParseOfferReturn(t *testing.T) {
	txid := strings.Repeat("ab", 32)

	ret := ParseOfferReturn(url.Values{"offerId": {txid + ":1"}})
	if !ret.Consumed || ret.Err != nil || ret.OfferID != txid+":1" {
		t.Fatalf("offerId 解析不符: %#v", ret)
	}

	ret = ParseOfferReturn(url.Values{"offer_id": {txid + ":0"}})
	if ret.OfferID != txid+":0" {
		t.Fatalf("offer_id 别名应支持: %#v", ret)
	}

	ret = ParseOfferReturn(url.Values{"txid": {txid}, "vout": {"2"}})
	if ret.OfferID != txid+":2" {
		t.Fatalf("txid+vout 组合应支持: %#v", ret)
	}

	ret = ParseOfferReturn(url.Values{"txid": {txid}})
	if !ret.Consumed || ret.Err == nil {
		t.Fatalf("缺少 vout 应报错: %#v", ret)
	}

	ret = ParseOfferReturn(url.Values{"offerId": {"garbage"}})
	if !ret.Consumed || ret.Err == nil {
		t.Fatalf("非法 offerId 应报错: %#v", ret)
	}

	ret = ParseOfferReturn(url.Values{"unrelated": {"1"}})
	if ret.Consumed {
		t.Fatalf("无关参数不应消费: %#v", ret)
	}
}

func TestOfferLink(t *testing.T) {
	d := DeepLinks{WebURL: "https://market.example/offers"}
	deep, fallback := d.OfferLink("abc:1")
	if deep != "tonalli://offer/abc%3A1" {
		t.Fatalf("deep link 不符: %s", deep)
	}
	if fallback != "https://market.example/offers?offerId=abc%3A1" {
		t.Fatalf("fallback 不符: %s", fallback)
	}

	deep, fallback = d.OfferLink("  ")
	if deep != "" || fallback != "" {
		t.Fatal("空 offer id 应返回空链接")
	}
}

func TestConnectLink(t *testing.T) {
	d := DeepLinks{WebURL: "https://market.example/"}
	now := time.Now()
	deep, fallback := d.ConnectLink("https://market.example/return", pageOrigin, now)

	parsed, err := url.Parse(strings.TrimPrefix(deep, "tonalli://"))
	if err != nil {
		t.Fatalf("deep link 应可解析: %v", err)
	}
	q := parsed.Query()
	if q.Get("app") != "xololegend" || q.Get("scope") != "connect" {
		t.Fatalf("参数不符: %s", deep)
	}
	if len(q.Get("requestId")) != 32 || len(q.Get("nonce")) != 32 {
		t.Fatalf("requestId/nonce 应为 16 字节 hex: %s", deep)
	}
	if q.Get("ts") != strconv.FormatInt(now.Unix(), 10) {
		t.Fatalf("ts 不符: %s", q.Get("ts"))
	}
	if !strings.HasPrefix(fallback, "https://market.example/connect?") {
		t.Fatalf("fallback 不符: %s", fallback)
	}
}
