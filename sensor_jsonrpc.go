package vigil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jkbrsn/jsonrpc"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ResultCheck decides whether the result of a JSON-RPC call satisfies the sensor.
type ResultCheck func(result []byte) (bool, error)

// JSONRPCSensor waits for a JSON-RPC method to return a satisfying result. Calls go over HTTP
// POST for http(s) URLs and over a short-lived WebSocket connection for ws(s) URLs. A JSON-RPC
// error response is a resource error.
type JSONRPCSensor struct {
	URL    *url.URL
	Header http.Header
	Method string
	Params []any

	// Check decides on the result. Nil means any result other than null or false.
	Check ResultCheck

	// Transport overrides the base HTTP transport, mainly for tests.
	Transport http.RoundTripper
	// Verbose logs every HTTP request at debug level.
	Verbose bool

	once   sync.Once
	client *http.Client
}

// ResultEquals returns a ResultCheck passing when the result holds want at path. An empty path
// compares the whole result.
func ResultEquals(want any, path ...any) ResultCheck {
	check := JSONFieldEquals(want, path...)
	return func(result []byte) (bool, error) {
		return check(0, nil, result)
	}
}

// Validate checks that the JSONRPCSensor is ready to poke.
func (s *JSONRPCSensor) Validate() error {
	if s.URL == nil {
		return configError("JSONRPCSensor URL is nil")
	}
	switch s.URL.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return configError("JSONRPCSensor URL scheme %q is not supported", s.URL.Scheme)
	}
	if s.Method == "" {
		return configError("JSONRPCSensor method is empty")
	}
	if s.Header == nil {
		s.Header = make(http.Header)
	}
	return nil
}

// Poke makes one call and evaluates the result.
func (s *JSONRPCSensor) Poke(ctx context.Context) (bool, error) {
	// Clone the URL to avoid downstream mutation
	urlClone := *s.URL

	payload, err := s.request()
	if err != nil {
		return false, err
	}
	log.Trace().Str("method", s.Method).Str("url", urlClone.Redacted()).Msg("poking jsonrpc endpoint")

	var raw []byte
	if urlClone.Scheme == "ws" || urlClone.Scheme == "wss" {
		raw, err = s.callWS(ctx, &urlClone, payload)
	} else {
		raw, err = s.callHTTP(ctx, &urlClone, payload)
	}
	if err != nil {
		return false, err
	}

	resp, err := jsonrpc.DecodeResponse(raw)
	if err != nil {
		return false, ResourceError("jsonrpc decode", err)
	}
	if rpcErr := resp.Err(); rpcErr != nil {
		return false, ResourceError("jsonrpc "+s.Method,
			fmt.Errorf("error %d: %s", rpcErr.Code, rpcErr.Message))
	}

	result := []byte(resp.RawResult())
	if s.Check != nil {
		return s.Check(result)
	}
	trimmed := bytes.TrimSpace(result)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) && !bytes.Equal(trimmed, []byte("false")), nil
}

// request marshals a JSON-RPC request with a fresh ID.
func (s *JSONRPCSensor) request() ([]byte, error) {
	var params any
	if len(s.Params) > 0 {
		params = s.Params
	}
	req := jsonrpc.NewRequestWithID(s.Method, params, xid.New().String())
	payload, err := req.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON-RPC request: %w", err)
	}
	return payload, nil
}

func (s *JSONRPCSensor) callHTTP(ctx context.Context, u *url.URL, payload []byte) ([]byte, error) {
	s.once.Do(s.initClient)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	for key, values := range s.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, ResourceError("jsonrpc request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ResourceError("jsonrpc request", fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, ResourceError("jsonrpc read body", err)
	}
	return body, nil
}

// callWS dials, sends the request, reads exactly one message and closes the connection.
func (s *JSONRPCSensor) callWS(ctx context.Context, u *url.URL, payload []byte) ([]byte, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), s.Header)
	if err != nil {
		return nil, ResourceError("jsonrpc dial", err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, ResourceError("jsonrpc write", err)
	}
	_, message, err := conn.ReadMessage()
	if err != nil {
		return nil, ResourceError("jsonrpc read", err)
	}

	// Close gracefully, but ignore errors
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(3*time.Second))
	return message, nil
}

func (s *JSONRPCSensor) initClient() {
	base := s.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if s.Verbose {
		logger := log.Logger.With().Str("component", ComponentHTTP).Logger().Level(zerolog.DebugLevel)
		base = NewLoggingTransport(base, logger)
	}
	s.client = &http.Client{Transport: base}
}
