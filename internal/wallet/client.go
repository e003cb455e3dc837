// Package wallet talks to the Tonalli wallet over the pairing channel:
// address retrieval and sign-and-broadcast requests, plus the deep-link and
// return-callback plumbing of the connect flow. Transaction construction and
// signing happen entirely inside the wallet.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	methodGetAddresses     = "ecash_getAddresses"
	methodSignAndBroadcast = "ecash_signAndBroadcastTransaction"

	// Pairing-channel request expiry bounds, in seconds.
	minExpirySeconds     = 300
	maxExpirySeconds     = 604800
	defaultExpirySeconds = 300

	// expiredMessage is the transport's verbatim expiry error.
	expiredMessage = "Request expired"
)

var txidPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// ErrRequestExpired surfaces a wallet request that expired even after the
// automatic retry; callers show "expired, try again".
var ErrRequestExpired = errors.New("wallet: request expired")

// Request is one pairing-channel RPC call.
type Request struct {
	ID            int64  `json:"id"`
	Method        string `json:"method"`
	Params        any    `json:"params"`
	ExpirySeconds int64  `json:"expiry"`
}

// Transport delivers pairing-channel requests and returns the raw result.
type Transport interface {
	Request(ctx context.Context, req Request) (json.RawMessage, error)
}

// Options parameterise the wallet client.
type Options struct {
	BridgeURL  string
	Topic      string
	Timeout    time.Duration
	UserAgent  string
	RequestTTL time.Duration
}

// Client issues requests to the paired wallet.
type Client struct {
	transport Transport
	opts      Options
	logger    zerolog.Logger
	newID     func() int64
}

// NewClient constructs a wallet client over a transport. A nil transport
// gets the HTTP bridge transport from Options.
func NewClient(transport Transport, opts Options, logger zerolog.Logger) *Client {
	if transport == nil {
		transport = NewHTTPTransport(opts, logger)
	}
	return &Client{
		transport: transport,
		opts:      opts,
		logger:    logger.With().Str("component", "wallet_client").Logger(),
		newID:     rand.Int63,
	}
}

// GetAddresses asks the wallet for its receive addresses.
func (c *Client) GetAddresses(ctx context.Context) ([]string, error) {
	raw, err := c.request(ctx, methodGetAddresses, []any{})
	if err != nil {
		return nil, err
	}

	var values []any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode addresses: %w", err)
	}
	addresses := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			addresses = append(addresses, s)
		}
	}
	return addresses, nil
}

// SignAndBroadcast asks the wallet to accept an offer, sign the purchase
// transaction, and broadcast it. Returns the broadcast transaction id.
func (c *Client) SignAndBroadcast(ctx context.Context, offerID string) (string, error) {
	trimmed := strings.TrimSpace(offerID)
	if trimmed == "" {
		return "", errors.New("wallet: missing offerId")
	}

	raw, err := c.request(ctx, methodSignAndBroadcast, map[string]string{"offerId": trimmed})
	if err != nil {
		return "", err
	}

	txid := ExtractTxid(raw)
	if txid == "" {
		return "", fmt.Errorf("wallet: response carried no valid txid")
	}
	return txid, nil
}

// request issues one RPC, retrying exactly once with a fresh request id when
// the transport reports expiry.
func (c *Client) request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	req := Request{
		ID:            c.newID(),
		Method:        method,
		Params:        params,
		ExpirySeconds: clampExpirySeconds(c.opts.RequestTTL),
	}

	raw, err := c.transport.Request(ctx, req)
	if err != nil && isExpired(err) {
		c.logger.Debug().Str("method", method).Msg("request expired, retrying with fresh id")
		req.ID = c.newID()
		raw, err = c.transport.Request(ctx, req)
		if err != nil && isExpired(err) {
			return nil, ErrRequestExpired
		}
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func isExpired(err error) bool {
	return err != nil && strings.Contains(err.Error(), expiredMessage)
}

func clampExpirySeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		return defaultExpirySeconds
	}
	seconds := int64(ttl / time.Second)
	if seconds < minExpirySeconds {
		return minExpirySeconds
	}
	if seconds > maxExpirySeconds {
		return maxExpirySeconds
	}
	return seconds
}

// ExtractTxid pulls a 64-hex transaction id out of a wallet response, which
// may be a bare string or an object with a txid field.
func ExtractTxid(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if txidPattern.MatchString(s) {
			return strings.ToLower(s)
		}
		return ""
	}

	var obj struct {
		Txid string `json:"txid"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if !txidPattern.MatchString(obj.Txid) {
		return ""
	}
	return strings.ToLower(obj.Txid)
}

// HTTPTransport posts pairing-channel requests to the bridge endpoint.
type HTTPTransport struct {
	opts   Options
	logger zerolog.Logger
	client *http.Client
}

// NewHTTPTransport constructs the bridge transport.
func NewHTTPTransport(opts Options, logger zerolog.Logger) *HTTPTransport {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		opts:   opts,
		logger: logger.With().Str("component", "wallet_transport").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

type bridgeEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Request implements Transport over HTTP.
func (t *HTTPTransport) Request(ctx context.Context, req Request) (json.RawMessage, error) {
	if t.opts.BridgeURL == "" {
		return nil, errors.New("wallet: bridge url not configured")
	}

	payload := struct {
		Request
		Topic string `json:"topic,omitempty"`
	}{Request: req, Topic: t.opts.Topic}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.BridgeURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(t.opts.UserAgent); ua != "" {
		httpReq.Header.Set("User-Agent", ua)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wallet bridge error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var envelope bridgeEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("decode bridge response: %w", err)
	}
	if envelope.Error != nil {
		return nil, errors.New(envelope.Error.Message)
	}
	return envelope.Result, nil
}

var _ Transport = (*HTTPTransport)(nil)
