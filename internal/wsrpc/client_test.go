package wsrpc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{}

// newTestServer runs handler for every websocket connection and returns the
// ws:// endpoint.
func newTestServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readRequest(t *testing.T, conn *websocket.Conn) request {
	var req request
	require.NoError(t, conn.ReadJSON(&req))
	return req
}

func respond(t *testing.T, conn *websocket.Conn, id int64, result interface{}) {
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"id": id, "result": json.RawMessage(raw)}))
}

func newTestClient(url string, apiKey, apiSecret string) *Client {
	c := New(url, apiKey, apiSecret, zap.NewNop())
	c.requestTimeout = 2 * time.Second
	c.reconnectDelay = 10 * time.Millisecond
	c.maxReconnects = 1
	return c
}

func TestCallCorrelatesById(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		req := readRequest(t, conn)
		require.Equal(t, "getTime", req.Method)

		// an unrelated push before the response must not confuse the caller
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"method": "ticker",
			"params": map[string]string{"symbol": "BTC/USDT"},
		}))
		respond(t, conn, req.ID, "12:00")

		// keep the connection open until the test finishes
		conn.ReadMessage()
	})

	c := newTestClient(url, "", "")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	res, err := c.Call(context.Background(), "getTime", nil)
	require.NoError(t, err)

	var s string
	require.NoError(t, json.Unmarshal(res, &s))
	require.Equal(t, "12:00", s)
}

func TestCallReturnsRPCError(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		req := readRequest(t, conn)
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"id":    req.ID,
			"error": map[string]interface{}{"code": 20002, "message": "order not found"},
		}))
		conn.ReadMessage()
	})

	c := newTestClient(url, "", "")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	_, err := c.Call(context.Background(), "cancelOrder", map[string]string{"orderId": "x"})
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, 20002, rpcErr.Code)
}

func TestLoginHandshake(t *testing.T) {
	const apiKey, apiSecret = "key", "secret"

	url := newTestServer(t, func(conn *websocket.Conn) {
		req := readRequest(t, conn)
		require.Equal(t, "login", req.Method)

		params, ok := req.Params.(map[string]interface{})
		require.True(t, ok)
		require.Equal(t, "HMAC_SHA256", params["algo"])
		require.Equal(t, apiKey, params["pKey"])

		mac := hmac.New(sha256.New, []byte(apiSecret))
		mac.Write([]byte(params["nonce"].(string)))
		require.Equal(t, hex.EncodeToString(mac.Sum(nil)), params["signature"])

		respond(t, conn, req.ID, true)
		conn.ReadMessage()
	})

	c := newTestClient(url, apiKey, apiSecret)
	require.NoError(t, c.Connect(context.Background()))
	c.Close()
}

func TestLoginRejected(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		req := readRequest(t, conn)
		respond(t, conn, req.ID, false)
		conn.ReadMessage()
	})

	c := newTestClient(url, "key", "secret")
	err := c.Connect(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "login")
}

func TestPushDispatchBySymbol(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"method": "ticker",
			"params": map[string]string{"symbol": "BTC/USDT", "last": "50000"},
		}))
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"method": "ticker",
			"params": map[string]string{"symbol": "ETH/USDT", "last": "3000"},
		}))
		conn.ReadMessage()
	})

	c := newTestClient(url, "", "")

	btc := make(chan json.RawMessage, 1)
	other := make(chan json.RawMessage, 1)
	c.Handle("ticker", "BTC/USDT", func(params json.RawMessage) { btc <- params })
	c.Handle("ticker", "", func(params json.RawMessage) { other <- params })

	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	select {
	case params := <-btc:
		require.Contains(t, string(params), "50000")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for BTC ticker push")
	}

	// the ETH push has no exact route and falls back to the empty-symbol one
	select {
	case params := <-other:
		require.Contains(t, string(params), "3000")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fallback push")
	}
}

func TestCallTimesOut(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		// swallow the request and never respond
		conn.ReadMessage()
		conn.ReadMessage()
	})

	c := newTestClient(url, "", "")
	c.requestTimeout = 50 * time.Millisecond
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	_, err := c.Call(context.Background(), "getOrders", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "timed out")
}

func TestCallAfterClose(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
	})

	c := newTestClient(url, "", "")
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Close())

	_, err := c.Call(context.Background(), "getOrders", nil)
	require.ErrorIs(t, err, ErrClosed)
}
