// Package kvhook implements vigil.KVHook on the Consul KV store.
package kvhook

import (
	"context"
	"net/http"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/jkbrsn/vigil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Consul is a vigil.KVHook reading keys from the Consul KV store.
type Consul struct {
	kv     *consulapi.KV
	logger zerolog.Logger
}

// ConsulOption is a functional option for the Consul hook.
type ConsulOption func(*consulapi.Config, *Consul)

// WithConsulToken sets the ACL token.
func WithConsulToken(token string) ConsulOption {
	return func(cfg *consulapi.Config, _ *Consul) { cfg.Token = token }
}

// WithConsulLoggers takes the logger and transport verbosity of the kv component.
func WithConsulLoggers(l *vigil.Loggers) ConsulOption {
	return func(cfg *consulapi.Config, c *Consul) {
		c.logger = l.For(vigil.ComponentKV)
		if l.Verbose(vigil.ComponentKV) {
			cfg.HttpClient = &http.Client{Transport: vigil.NewLoggingTransport(nil, c.logger)}
		}
	}
}

// NewConsul creates a hook for the agent at addr. An empty addr uses the consul defaults,
// including CONSUL_HTTP_ADDR.
func NewConsul(addr string, opts ...ConsulOption) (*Consul, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	c := &Consul{logger: log.Logger.With().Str("component", vigil.ComponentKV).Logger()}
	for _, opt := range opts {
		opt(cfg, c)
	}

	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, vigil.ResourceError("consul client", err)
	}
	c.kv = cli.KV()
	return c, nil
}

// Get returns the value at key, and whether the key exists.
func (c *Consul) Get(ctx context.Context, key string) ([]byte, bool, error) {
	pair, meta, err := c.kv.Get(key, (&consulapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, false, vigil.ResourceError("consul kv get", err)
	}
	event := c.logger.Debug().Str("key", key).Bool("found", pair != nil)
	if meta != nil {
		event = event.Uint64("index", meta.LastIndex)
	}
	event.Msg("consul kv get")

	if pair == nil {
		return nil, false, nil
	}
	return pair.Value, true, nil
}
