// Package chain is a thin typed client for the chronik-style chain indexer:
// transaction and token lookups, script UTXO listings, and the live
// transaction websocket feed.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NotFoundError reports an indexer 404 for a specific resource.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("chain: %s not found", e.Resource)
}

// IsNotFound reports whether err wraps an indexer 404.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Options parameterise the indexer client.
type Options struct {
	BaseURL   string
	WSURL     string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the chain indexer over HTTP and websocket.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs an indexer client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "chain_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Tx fetches a transaction by id. Returns NotFoundError when the indexer
// has never seen the transaction.
func (c *Client) Tx(ctx context.Context, txid string) (*Tx, error) {
	if txid == "" {
		return nil, errors.New("chain: missing txid for transaction lookup")
	}
	var tx Tx
	if err := c.get(ctx, "/tx/"+strings.ToLower(txid), &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Token fetches token metadata, including decimal precision.
func (c *Client) Token(ctx context.Context, tokenID string) (*TokenInfo, error) {
	if tokenID == "" {
		return nil, errors.New("chain: missing tokenId for token lookup")
	}
	var info TokenInfo
	if err := c.get(ctx, "/token/"+strings.ToLower(tokenID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ScriptUtxos lists the unspent outputs for a script type/payload pair.
func (c *Client) ScriptUtxos(ctx context.Context, scriptType, payload string) (*ScriptUtxos, error) {
	if scriptType == "" || payload == "" {
		return nil, errors.New("chain: missing script type or payload for utxo lookup")
	}
	var utxos ScriptUtxos
	path := fmt.Sprintf("/script/%s/%s/utxos", strings.ToLower(scriptType), strings.ToLower(payload))
	if err := c.get(ctx, path, &utxos); err != nil {
		return nil, err
	}
	return &utxos, nil
}

// BlockchainInfo fetches the current chain tip.
func (c *Client) BlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	var info BlockchainInfo
	if err := c.get(ctx, "/blockchain-info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// TokenBalanceAtoms sums the atom amounts of a token held by a script.
func (c *Client) TokenBalanceAtoms(ctx context.Context, scriptType, payload, tokenID string) (*big.Int, error) {
	utxos, err := c.ScriptUtxos(ctx, scriptType, payload)
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(tokenID)
	total := new(big.Int)
	for _, utxo := range utxos.Utxos {
		if utxo.Token == nil || utxo.Token.Atoms == nil {
			continue
		}
		if strings.ToLower(utxo.Token.TokenID) != want {
			continue
		}
		total.Add(total, &utxo.Token.Atoms.Int)
	}
	return total, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if c.baseURL == "" {
		return errors.New("chain: indexer base url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNotFound {
		return &NotFoundError{Resource: path}
	}
	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

type errorResponse struct {
	Msg   string `json:"msg"`
	Error string `json:"error"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Msg != "" {
			return fmt.Errorf("indexer error (%d): %s", status, apiErr.Msg)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("indexer error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("indexer error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("indexer error (%d)", status)
}
