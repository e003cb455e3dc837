package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	deepLinkScheme = "tonalli://"
	appIdentifier  = "xololegend"
)

// DeepLinks builds wallet deep-link and web-fallback URLs.
type DeepLinks struct {
	WebURL string
}

// OfferLink returns the deep link opening an offer in the wallet and the
// web fallback used when the app is not installed.
func (d DeepLinks) OfferLink(offerID string) (deep, fallback string) {
	trimmed := strings.TrimSpace(offerID)
	if trimmed == "" {
		return "", ""
	}
	encoded := url.QueryEscape(trimmed)
	deep = deepLinkScheme + "offer/" + encoded

	base := d.WebURL
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	fallback = base + sep + "offerId=" + encoded
	return deep, fallback
}

// ConnectLink builds the connect deep link with a fresh request id, nonce,
// and timestamp, plus its web fallback.
func (d DeepLinks) ConnectLink(returnURL, origin string, now time.Time) (deep, fallback string) {
	params := url.Values{}
	params.Set("app", appIdentifier)
	params.Set("returnUrl", returnURL)
	params.Set("requestId", NonceHex(16))
	params.Set("ts", strconv.FormatInt(now.Unix(), 10))
	params.Set("origin", origin)
	params.Set("nonce", NonceHex(16))
	params.Set("scope", "connect")

	deep = deepLinkScheme + "connect?" + params.Encode()
	fallback = strings.TrimRight(d.WebURL, "/") + "/connect?" + params.Encode()
	return deep, fallback
}

// NonceHex returns byteLength cryptographically random bytes as hex.
func NonceHex(byteLength int) string {
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
