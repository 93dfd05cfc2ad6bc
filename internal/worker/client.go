package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a Conn to a remote websocket worker.
type Client struct {
	conn      *websocket.Conn
	responses chan Response

	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

var _ Conn = (*Client)(nil)

// Dial connects to the worker at url (ws:// or wss://).
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial worker %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageSize)

	c := &Client{
		conn:      conn,
		responses: make(chan Response, 64),
		done:      make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

func (c *Client) readPump() {
	defer close(c.responses)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Printf("[worker-client] read error: %v", err)
			}
			return
		}
		var resp Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			log.Printf("[worker-client] bad response: %v", err)
			continue
		}
		select {
		case c.responses <- resp:
		case <-c.done:
			return
		}
	}
}

// Send writes msg to the remote worker.
func (c *Client) Send(ctx context.Context, msg Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("send %s: %w", msg.TaskID, err)
	}
	return nil
}

// Responses returns the response stream.
func (c *Client) Responses() <-chan Response { return c.responses }

// Close sends a close frame and tears down the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
