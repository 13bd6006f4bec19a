package vigil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// defaultResolvConf is read when a DNSResolver has no explicit servers.
	defaultResolvConf = "/etc/resolv.conf"
	// defaultDNSTimeout bounds each exchange with a server.
	defaultDNSTimeout = 5 * time.Second
)

// DNSResolver implements DNSHook with raw queries sent to a list of servers, tried in order.
type DNSResolver struct {
	// Servers are "host:port" addresses. Empty means the servers of ConfigPath.
	Servers []string
	// ConfigPath is a resolv.conf style file. Empty means /etc/resolv.conf.
	ConfigPath string
	// Timeout bounds each exchange. Zero means 5 seconds.
	Timeout time.Duration
	// Logger receives per-exchange debug output. Nil means the global logger.
	Logger *zerolog.Logger

	once    sync.Once
	servers []string
	cfgErr  error
	client  *dns.Client
}

// NewDNSResolver returns a resolver querying the given servers, or the system configuration
// when none are given.
func NewDNSResolver(servers ...string) *DNSResolver {
	return &DNSResolver{Servers: servers}
}

func (r *DNSResolver) logger() *zerolog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return &log.Logger
}

func (r *DNSResolver) init() {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = defaultDNSTimeout
	}
	r.client = &dns.Client{Timeout: timeout}

	if len(r.Servers) > 0 {
		r.servers = append([]string(nil), r.Servers...)
		return
	}

	path := r.ConfigPath
	if path == "" {
		path = defaultResolvConf
	}
	cfg, err := dns.ClientConfigFromFile(path)
	if err != nil {
		r.cfgErr = err
		return
	}
	for _, server := range cfg.Servers {
		r.servers = append(r.servers, net.JoinHostPort(server, cfg.Port))
	}
	if len(r.servers) == 0 {
		r.cfgErr = fmt.Errorf("no servers in %s", path)
	}
}

// Lookup queries the servers for records of type qtype at host. It returns the first
// successful answer filtered to qtype. A name error (NXDOMAIN) is an empty result, not an error;
// failing to get an answer from any server is.
func (r *DNSResolver) Lookup(ctx context.Context, host string, qtype uint16) ([]dns.RR, error) {
	r.once.Do(r.init)
	if r.cfgErr != nil {
		return nil, ResourceError("dns config", r.cfgErr)
	}

	msg := dns.Msg{}
	msg.SetQuestion(dns.Fqdn(host), qtype)

	var errs []error
	for _, server := range r.servers {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		resp, rtt, err := r.client.ExchangeContext(ctx, &msg, server)
		if err != nil {
			// try next server
			errs = append(errs, fmt.Errorf("%s: %w", server, err))
			continue
		}
		r.logger().Debug().
			Str("server", server).
			Str("host", host).
			Str("rcode", dns.RcodeToString[resp.Rcode]).
			Int("answers", len(resp.Answer)).
			Dur("rtt", rtt).
			Msg("dns exchange")

		switch resp.Rcode {
		case dns.RcodeSuccess:
			var records []dns.RR
			for _, ans := range resp.Answer {
				if qtype == dns.TypeANY || ans.Header().Rrtype == qtype {
					records = append(records, ans)
				}
			}
			return records, nil
		case dns.RcodeNameError:
			return nil, nil
		default:
			errs = append(errs, fmt.Errorf("%s: rcode %s", server, dns.RcodeToString[resp.Rcode]))
		}
	}
	return nil, ResourceError("dns lookup "+host, errors.Join(errs...))
}
