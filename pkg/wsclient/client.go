// Package wsclient keeps a websocket connection to the robot open, reconnecting
// with exponential backoff.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	customlog "github.com/open-teleop/omnidrive/pkg/log"
)

const (
	writeWait        = 2 * time.Second
	handshakeTimeout = 5 * time.Second
)

// ErrNotConnected is returned by Send while the connection is down; the message
// is dropped.
var ErrNotConnected = errors.New("websocket not connected")

// Options configures a Client. Callbacks run on the client's read goroutine.
type Options struct {
	OnOpen    func()
	OnMessage func(data []byte)
	// InitialDelay and MaxDelay bound the reconnect backoff.
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Client is a reconnecting websocket client.
type Client struct {
	url    string
	opts   Options
	logger customlog.Logger
	dialer *websocket.Dialer

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
}

func New(url string, opts Options, logger customlog.Logger) *Client {
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 10 * time.Second
	}
	return &Client{
		url:    url,
		opts:   opts,
		logger: logger.WithField("url", url),
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialDelay
	b.MaxInterval = c.opts.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run connects and reconnects until ctx is done. The backoff starts over after
// every successful open.
func (c *Client) Run(ctx context.Context) error {
	delay := c.newBackOff()

	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := delay.NextBackOff()
			c.logger.Warnf("Connect failed: %v, retrying in %v", err, wait)
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}

		delay.Reset()
		c.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}

		wait := delay.NextBackOff()
		c.logger.Infof("Reconnecting in %v", wait)
		if !sleep(ctx, wait) {
			return nil
		}
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.logger.Infof("Socket opened")

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if c.opts.OnOpen != nil {
		c.opts.OnOpen()
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || ctx.Err() != nil {
				c.logger.Infof("Socket closed")
			} else {
				c.logger.Warnf("Socket closed: %v", err)
			}
			break
		}
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(data)
		}
	}

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	conn.Close()
}

// Send writes v as JSON, or returns ErrNotConnected right away.
func (c *Client) Send(v interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("websocket send: %w", err)
	}
	return nil
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close sends a close frame; Run then reconnects unless its context is done.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
