// Package wsrpc implements the JSON-RPC-over-WebSocket protocol spoken by
// NonKYC-style exchanges: requests carry a monotonically increasing id that
// correlates the response, unsolicited push messages carry a method tag and
// are routed to registered handlers.
package wsrpc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultRequestTimeout = 15 * time.Second
	defaultPingInterval   = 25 * time.Second
	defaultPongTimeout    = 70 * time.Second
	defaultReconnectDelay = 5 * time.Second
	defaultMaxReconnects  = 10
	writeWait             = 10 * time.Second
)

// ErrClosed is returned for calls made after Close.
var ErrClosed = errors.New("wsrpc: client closed")

type request struct {
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
	ID     int64       `json:"id"`
}

type envelope struct {
	ID     *int64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// RPCError error object of a correlated response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// PushHandler receives the params payload of an unsolicited push message.
type PushHandler func(params json.RawMessage)

// Client is a reconnecting JSON-RPC WebSocket client.
type Client struct {
	url       string
	apiKey    string
	apiSecret string
	l         *zap.Logger

	requestTimeout time.Duration
	pingInterval   time.Duration
	pongTimeout    time.Duration
	reconnectDelay time.Duration
	maxReconnects  int

	nextID atomic.Int64

	mu       sync.Mutex
	conn     *websocket.Conn
	pending  map[int64]chan envelope
	handlers map[string]PushHandler
	closed   bool
	done     chan struct{}

	// OnReconnect runs after every successful reconnect (including re-login),
	// so callers can replay subscriptions. Optional.
	OnReconnect func()
}

// New creates a client for the given endpoint. Credentials may be empty for
// public-data-only connections.
func New(url, apiKey, apiSecret string, l *zap.Logger) *Client {
	return &Client{
		url:            url,
		apiKey:         apiKey,
		apiSecret:      apiSecret,
		l:              l,
		requestTimeout: defaultRequestTimeout,
		pingInterval:   defaultPingInterval,
		pongTimeout:    defaultPongTimeout,
		reconnectDelay: defaultReconnectDelay,
		maxReconnects:  defaultMaxReconnects,
		pending:        make(map[int64]chan envelope),
		handlers:       make(map[string]PushHandler),
	}
}

// Connect dials the endpoint, performs the login handshake when credentials
// are present, and starts the read and heartbeat loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		return err
	}

	if c.apiKey != "" {
		if err := c.login(ctx); err != nil {
			c.teardownConn()
			return errors.Wrap(err, "wsrpc login failed")
		}
	}

	return nil
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to dial %s", c.url)
	}

	done := make(chan struct{})
	lastPong := time.Now()
	var pongMu sync.Mutex

	conn.SetPongHandler(func(string) error {
		pongMu.Lock()
		lastPong = time.Now()
		pongMu.Unlock()
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.mu.Unlock()

	go c.readLoop(conn, done)
	go c.heartbeat(conn, done, &pongMu, &lastPong)

	return nil
}

// login performs the HMAC-signed nonce handshake. The server replies with a
// boolean result correlated by request id.
func (c *Client) login(ctx context.Context) error {
	nonce := fmt.Sprintf("%d", time.Now().UnixNano())
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(nonce))

	res, err := c.Call(ctx, "login", map[string]string{
		"algo":      "HMAC_SHA256",
		"pKey":      c.apiKey,
		"nonce":     nonce,
		"signature": hex.EncodeToString(mac.Sum(nil)),
	})
	if err != nil {
		return err
	}

	var ok bool
	if err := json.Unmarshal(res, &ok); err != nil {
		// some backends wrap the flag in an object
		var obj struct {
			Success bool `json:"success"`
		}
		if err2 := json.Unmarshal(res, &obj); err2 != nil {
			return errors.Wrap(err, "unexpected login response")
		}
		ok = obj.Success
	}
	if !ok {
		return errors.New("login rejected")
	}
	return nil
}

// Call sends a request and waits for the correlated response. The pending
// entry is removed on response, context cancellation, or the per-request
// timeout, so a silently dropped connection cannot grow the table.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	ch := make(chan envelope, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, errors.New("wsrpc: not connected")
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.writeJSON(conn, request{Method: method, Params: params, ID: id}); err != nil {
		return nil, errors.Wrapf(err, "failed to send %s request", method)
	}

	timer := time.NewTimer(c.requestTimeout)
	defer timer.Stop()

	select {
	case env := <-ch:
		if env.Error != nil {
			return nil, env.Error
		}
		return env.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, errors.Errorf("request %s (id %d) timed out", method, id)
	}
}

// Handle registers a push handler for method-tagged messages of a symbol.
// An empty symbol matches messages without one.
func (c *Client) Handle(method, symbol string, h PushHandler) {
	c.mu.Lock()
	c.handlers[routeKey(method, symbol)] = h
	c.mu.Unlock()
}

func routeKey(method, symbol string) string {
	return method + "|" + symbol
}

func (c *Client) writeJSON(conn *websocket.Conn, v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.l.Warn("wsrpc read failed", zap.Error(err))
			c.failPending(err)
			c.maybeReconnect(conn)
			return
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.l.Warn("wsrpc received malformed message", zap.Error(err))
			continue
		}

		if env.ID != nil {
			c.mu.Lock()
			ch, ok := c.pending[*env.ID]
			c.mu.Unlock()
			if ok {
				ch <- env
			}
			continue
		}

		if env.Method != "" {
			c.dispatch(env)
		}
	}
}

func (c *Client) dispatch(env envelope) {
	var tagged struct {
		Symbol string `json:"symbol"`
	}
	// ignore unmarshal errors, the symbol is simply empty then
	_ = json.Unmarshal(env.Params, &tagged)

	c.mu.Lock()
	h, ok := c.handlers[routeKey(env.Method, tagged.Symbol)]
	if !ok {
		h, ok = c.handlers[routeKey(env.Method, "")]
	}
	c.mu.Unlock()

	if ok {
		h(env.Params)
	}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, ch := range c.pending {
		select {
		case ch <- envelope{Error: &RPCError{Code: -1, Message: err.Error()}}:
		default:
		}
		delete(c.pending, id)
	}
}

func (c *Client) heartbeat(conn *websocket.Conn, done chan struct{}, pongMu *sync.Mutex, lastPong *time.Time) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			pongMu.Lock()
			silent := time.Since(*lastPong)
			pongMu.Unlock()

			if silent > c.pongTimeout {
				c.l.Warn("wsrpc heartbeat timed out, closing connection",
					zap.Duration("silent", silent))
				conn.Close()
				return
			}

			c.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				c.l.Warn("wsrpc ping failed", zap.Error(err))
				conn.Close()
				return
			}
		}
	}
}

// maybeReconnect re-establishes the connection with a bounded retry count.
// Suppressed after Close.
func (c *Client) maybeReconnect(old *websocket.Conn) {
	old.Close()

	c.mu.Lock()
	if c.closed || c.conn != old {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	for attempt := 1; attempt <= c.maxReconnects; attempt++ {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		time.Sleep(c.reconnectDelay)

		ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			c.l.Info("wsrpc reconnected", zap.Int("attempt", attempt))
			if c.OnReconnect != nil {
				c.OnReconnect()
			}
			return
		}

		c.l.Warn("wsrpc reconnect failed",
			zap.Int("attempt", attempt),
			zap.Int("max", c.maxReconnects),
			zap.Error(err))
	}

	c.l.Error("wsrpc gave up reconnecting, exchange unreachable until restart")
}

func (c *Client) teardownConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Close shuts the client down and suppresses reconnection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}
