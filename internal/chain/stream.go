package chain

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

// TxMsg is a message from the indexer's live transaction feed. Delivery is
// at least once with no ordering guarantee across reconnects; consumers
// deduplicate on Txid.
type TxMsg struct {
	Type string `json:"type"`
	Txid string `json:"txid"`
}

type subscribeMsg struct {
	Type string `json:"type"`
}

// StreamHandle is an open websocket subscription. Callers must Close it to
// stop receiving messages; Done is closed when the read loop exits for any
// reason, letting callers redial.
type StreamHandle struct {
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

// Done signals stream termination (remote close, transport error, or Close).
func (h *StreamHandle) Done() <-chan struct{} {
	return h.done
}

// Close tears the subscription down. Safe to call more than once.
func (h *StreamHandle) Close() {
	h.closeOnce.Do(func() {
		_ = h.conn.Close()
	})
}

// OpenTxStream subscribes to the live transaction feed. onMessage is invoked
// from a single goroutine in delivery order, one message at a time.
func (c *Client) OpenTxStream(ctx context.Context, onMessage func(TxMsg)) (*StreamHandle, error) {
	if c.opts.WSURL == "" {
		return nil, errors.New("chain: indexer websocket url not configured")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.WSURL, nil)
	if err != nil {
		return nil, err
	}

	if err := conn.WriteJSON(subscribeMsg{Type: "SubscribeTxs"}); err != nil {
		_ = conn.Close()
		return nil, err
	}

	handle := &StreamHandle{conn: conn, done: make(chan struct{})}

	go func() {
		defer close(handle.done)
		for {
			var msg TxMsg
			if err := conn.ReadJSON(&msg); err != nil {
				c.logger.Debug().Err(err).Msg("tx stream read loop ended")
				return
			}
			if msg.Type != "Tx" || msg.Txid == "" {
				continue
			}
			onMessage(msg)
		}
	}()

	c.logger.Info().Str("url", c.opts.WSURL).Msg("subscribed to tx stream")
	return handle, nil
}
