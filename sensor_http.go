package vigil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// defaultDialTimeout is the default timeout for network dial operations
	defaultDialTimeout = 5 * time.Second
	// maxResponseBody bounds how much of a response body is read for the response check.
	maxResponseBody = 4 << 20
)

// HTTPTimeouts configures various timeout values for the requests of an HTTPSensor.
// Zero values indicate no timeout (except where Go stdlib provides defaults).
type HTTPTimeouts struct {
	// Total is the overall timeout for a request, including reading the response body.
	// Maps to http.Client.Timeout. Zero means no timeout.
	Total time.Duration

	// ResponseHeader is the timeout waiting for the server's response headers after the request
	// has been written. Maps to http.Transport.ResponseHeaderTimeout. Zero means no timeout.
	ResponseHeader time.Duration

	// Dial is the maximum duration waiting for a network dial to complete.
	// Zero uses the default (5 seconds). Negative values are invalid.
	Dial time.Duration
}

// Validate checks that the HTTPTimeouts configuration is valid.
func (t HTTPTimeouts) Validate() error {
	if t.Total < 0 || t.ResponseHeader < 0 {
		return configError("HTTPTimeouts cannot be negative")
	}
	if t.Dial < 0 {
		return configError("HTTPTimeouts.Dial cannot be negative")
	}
	return nil
}

// ResponseCheck decides whether a successful response satisfies the sensor.
type ResponseCheck func(status int, header http.Header, body []byte) (bool, error)

// HTTPSensorOption is a functional option for the HTTPSensor struct.
type HTTPSensorOption func(*HTTPSensor)

// HTTPSensor waits for an HTTP endpoint to answer with a 2xx status, and optionally for the
// response to pass a check. A 404 means "not yet"; any other non-2xx status is an error.
type HTTPSensor struct {
	URL      *url.URL
	Method   string
	Header   http.Header
	Body     []byte
	Check    ResponseCheck
	Timeouts HTTPTimeouts

	// Transport overrides the base transport, mainly for tests.
	Transport http.RoundTripper
	// Verbose logs every request at debug level.
	Verbose bool

	once   sync.Once
	client *http.Client
}

// NewHTTPSensor creates an HTTPSensor polling u with the given method.
func NewHTTPSensor(u *url.URL, method string, opts ...HTTPSensorOption) *HTTPSensor {
	s := &HTTPSensor{
		URL:    u,
		Method: method,
		Header: make(http.Header),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithHTTPHeader sets the request header.
func WithHTTPHeader(h http.Header) HTTPSensorOption {
	return func(s *HTTPSensor) { s.Header = h }
}

// WithHTTPBody sets the request body.
func WithHTTPBody(b []byte) HTTPSensorOption {
	return func(s *HTTPSensor) { s.Body = b }
}

// WithResponseCheck sets the check applied to 2xx responses.
func WithResponseCheck(check ResponseCheck) HTTPSensorOption {
	return func(s *HTTPSensor) { s.Check = check }
}

// WithHTTPTimeouts sets the request timeouts.
func WithHTTPTimeouts(t HTTPTimeouts) HTTPSensorOption {
	return func(s *HTTPSensor) { s.Timeouts = t }
}

// WithHTTPVerbose enables request logging.
func WithHTTPVerbose(verbose bool) HTTPSensorOption {
	return func(s *HTTPSensor) { s.Verbose = verbose }
}

// Validate checks that the HTTPSensor is ready to poke.
func (s *HTTPSensor) Validate() error {
	if s.URL == nil {
		return configError("HTTPSensor URL is nil")
	}
	if s.URL.Scheme != "http" && s.URL.Scheme != "https" {
		return configError("HTTPSensor URL scheme %q is not supported", s.URL.Scheme)
	}
	if s.Method == "" {
		s.Method = http.MethodGet
	}
	if s.Header == nil {
		// Set empty header if nil
		s.Header = make(http.Header)
	}
	return s.Timeouts.Validate()
}

// Poke sends one request and evaluates the response.
func (s *HTTPSensor) Poke(ctx context.Context) (bool, error) {
	s.once.Do(s.initClient)

	// Clone the URL to avoid downstream mutation
	urlClone := *s.URL
	req, err := http.NewRequestWithContext(ctx, s.Method, urlClone.String(), bytes.NewReader(s.Body))
	if err != nil {
		return false, err
	}
	for key, values := range s.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	log.Trace().Str("method", s.Method).Str("url", urlClone.Redacted()).Msg("poking http endpoint")
	resp, err := s.client.Do(req)
	if err != nil {
		return false, ResourceError("http request", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, ResourceError("http request", fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	if s.Check == nil {
		return true, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return false, ResourceError("http read body", err)
	}
	return s.Check(resp.StatusCode, resp.Header, body)
}

func (s *HTTPSensor) initClient() {
	base := s.Transport
	if base == nil {
		dial := s.Timeouts.Dial
		if dial == 0 {
			dial = defaultDialTimeout
		}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.DialContext = (&net.Dialer{Timeout: dial}).DialContext
		tr.ResponseHeaderTimeout = s.Timeouts.ResponseHeader
		base = tr
	}
	if s.Verbose {
		logger := log.Logger.With().Str("component", ComponentHTTP).Logger().Level(zerolog.DebugLevel)
		base = NewLoggingTransport(base, logger)
	}
	s.client = &http.Client{Transport: base, Timeout: s.Timeouts.Total}
}

// errNoJSONValue is returned internally when a JSON path is missing.
var errNoJSONValue = errors.New("no value at path")

// JSONFieldEquals returns a ResponseCheck passing when the JSON body holds want at path. Path
// elements are object keys (string) or array indexes (int).
func JSONFieldEquals(want any, path ...any) ResponseCheck {
	return func(_ int, _ http.Header, body []byte) (bool, error) {
		got, err := jsonValueAt(body, path...)
		if err != nil {
			// An absent or malformed field means the condition does not hold yet.
			return false, nil
		}
		normalized, err := normalizeJSON(want)
		if err != nil {
			return false, err
		}
		return reflect.DeepEqual(got, normalized), nil
	}
}

func jsonValueAt(body []byte, path ...any) (any, error) {
	node, err := sonic.Get(body, path...)
	if err != nil {
		return nil, err
	}
	if !node.Exists() {
		return nil, errNoJSONValue
	}
	return node.Interface()
}

// normalizeJSON round-trips v through JSON so it compares equal to decoded values.
func normalizeJSON(v any) (any, error) {
	b, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := sonic.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
