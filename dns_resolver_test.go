package vigil

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDNSServer runs an in-process DNS server answering A queries for the given names.
func startDNSServer(t *testing.T, records map[string]string) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			resp := new(dns.Msg)
			resp.SetReply(req)
			q := req.Question[0]
			ip, ok := records[q.Name]
			switch {
			case !ok:
				resp.Rcode = dns.RcodeNameError
			case q.Qtype == dns.TypeA:
				rr, err := dns.NewRR(q.Name + " 60 IN A " + ip)
				if err == nil {
					resp.Answer = append(resp.Answer, rr)
				}
			}
			_ = w.WriteMsg(resp)
		}),
	}
	go func() { _ = server.ActivateAndServe() }()
	t.Cleanup(func() { _ = server.Shutdown() })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("dns server did not start")
	}
	return pc.LocalAddr().String()
}

func TestDNSResolverLookup(t *testing.T) {
	addr := startDNSServer(t, map[string]string{"ready.example.": "192.0.2.10"})
	resolver := NewDNSResolver(addr)
	ctx := context.Background()

	records, err := resolver.Lookup(ctx, "ready.example", dns.TypeA)
	require.NoError(t, err)
	require.Len(t, records, 1)
	a, ok := records[0].(*dns.A)
	require.True(t, ok)
	assert.Equal(t, "192.0.2.10", a.A.String())

	// NOERROR without records of the requested type
	records, err = resolver.Lookup(ctx, "ready.example", dns.TypeAAAA)
	require.NoError(t, err)
	assert.Empty(t, records)

	// NXDOMAIN
	records, err = resolver.Lookup(ctx, "missing.example", dns.TypeA)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDNSResolverFallsThroughServers(t *testing.T) {
	addr := startDNSServer(t, map[string]string{"ready.example.": "192.0.2.10"})

	// Grab a free port and release it so nothing answers there.
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := pc.LocalAddr().String()
	require.NoError(t, pc.Close())

	resolver := &DNSResolver{Servers: []string{dead, addr}, Timeout: 100 * time.Millisecond}
	records, err := resolver.Lookup(context.Background(), "ready.example", dns.TypeA)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	resolver = &DNSResolver{Servers: []string{dead}, Timeout: 100 * time.Millisecond}
	_, err = resolver.Lookup(context.Background(), "ready.example", dns.TypeA)
	assert.ErrorIs(t, err, ErrResource)
}

func TestDNSResolverConfig(t *testing.T) {
	addr := startDNSServer(t, map[string]string{"ready.example.": "192.0.2.10"})
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	dir := t.TempDir()
	conf := filepath.Join(dir, "resolv.conf")
	require.NoError(t, os.WriteFile(conf, []byte("nameserver "+host+"\n"), 0o600))

	// resolv.conf has no port directive; dns.ClientConfigFromFile defaults to 53, so override it.
	resolver := &DNSResolver{ConfigPath: conf}
	resolver.once.Do(resolver.init)
	require.NoError(t, resolver.cfgErr)
	resolver.servers = []string{net.JoinHostPort(host, port)}

	records, err := resolver.Lookup(context.Background(), "ready.example", dns.TypeA)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = (&DNSResolver{ConfigPath: filepath.Join(dir, "missing.conf")}).Lookup(context.Background(), "x", dns.TypeA)
	assert.ErrorIs(t, err, ErrResource)
}

func TestDNSSensor(t *testing.T) {
	addr := startDNSServer(t, map[string]string{"ready.example.": "192.0.2.10"})
	resolver := NewDNSResolver(addr)

	ok, err := (&DNSSensor{Hook: resolver, Host: "ready.example"}).Poke(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	s := fastSensor(t, "dns", &DNSSensor{Hook: resolver, Host: "missing.example"},
		WithTimeout(30*time.Millisecond), WithSoftFail(true))
	out, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSkipped, out.State)

	assert.ErrorIs(t, (&DNSSensor{Hook: resolver, Host: "x", RecordType: 65000}).Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, (&DNSSensor{Hook: resolver}).Validate(), ErrInvalidConfig)
}
