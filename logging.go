package vigil

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Hook components that can be made verbose through LogConfig.
const (
	ComponentDNS       = "dns"
	ComponentDocuments = "documents"
	ComponentHTTP      = "http"
	ComponentKV        = "kv"
	ComponentWebHDFS   = "webhdfs"
)

// DefaultLogLevel is the base level of a LogConfig without an explicit level.
const DefaultLogLevel = zerolog.InfoLevel

// DefaultVerboseComponents are the components made verbose when LogConfig.Verbose is set
// without an explicit component list.
var DefaultVerboseComponents = []string{
	ComponentDNS,
	ComponentDocuments,
	ComponentHTTP,
	ComponentKV,
	ComponentWebHDFS,
}

// LogConfig is the logging setup of a process. It is built once at startup and the resulting
// Loggers are handed to the hooks that need them; nothing is configured as a side effect of
// importing a package.
type LogConfig struct {
	// Level is the level of the base logger. Nil means DefaultLogLevel.
	Level *zerolog.Level

	// Verbose lowers the level of the VerboseComponents loggers to debug, and makes
	// LoggingTransport log every request they send.
	Verbose bool

	// VerboseComponents lists the components affected by Verbose. Empty means
	// DefaultVerboseComponents.
	VerboseComponents []string

	// Output is where log lines are written. Nil means os.Stderr.
	Output io.Writer

	// Console selects the human readable console format instead of JSON.
	Console bool
}

// Loggers hands out component loggers derived from a single base logger.
type Loggers struct {
	base    zerolog.Logger
	verbose map[string]struct{}
}

// Build creates the Loggers described by the config.
func (c LogConfig) Build() *Loggers {
	out := c.Output
	if out == nil {
		out = os.Stderr
	}
	if c.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level := DefaultLogLevel
	if c.Level != nil {
		level = *c.Level
	}

	l := &Loggers{
		base:    zerolog.New(out).Level(level).With().Timestamp().Logger(),
		verbose: make(map[string]struct{}),
	}
	if c.Verbose {
		components := c.VerboseComponents
		if len(components) == 0 {
			components = DefaultVerboseComponents
		}
		for _, name := range components {
			l.verbose[name] = struct{}{}
		}
	}
	return l
}

// Base returns the base logger.
func (l *Loggers) Base() zerolog.Logger {
	return l.base
}

// For returns the logger of a component. Verbose components log at debug level regardless of
// the base level.
func (l *Loggers) For(component string) zerolog.Logger {
	lg := l.base.With().Str("component", component).Logger()
	if l.Verbose(component) && lg.GetLevel() > zerolog.DebugLevel {
		lg = lg.Level(zerolog.DebugLevel)
	}
	return lg
}

// Verbose reports whether the component was configured as verbose.
func (l *Loggers) Verbose(component string) bool {
	_, ok := l.verbose[component]
	return ok
}

// Install makes the base logger the global zerolog logger.
func (l *Loggers) Install() {
	log.Logger = l.base
}

// LoggingTransport is an http.RoundTripper that logs each request and its result at debug
// level. Hooks wrap their transport with it when their component is verbose.
type LoggingTransport struct {
	Base   http.RoundTripper
	Logger zerolog.Logger
}

// NewLoggingTransport wraps base, which defaults to http.DefaultTransport when nil.
func NewLoggingTransport(base http.RoundTripper, logger zerolog.Logger) *LoggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &LoggingTransport{Base: base, Logger: logger}
}

// RoundTrip sends the request through the base transport.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.Base.RoundTrip(req)
	event := t.Logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Dur("duration", time.Since(start))
	if err != nil {
		event.Err(err).Msg("request failed")
		return nil, err
	}
	event.Int("status", resp.StatusCode).Int64("content_length", resp.ContentLength).Msg("request done")
	return resp, nil
}
