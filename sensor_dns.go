package vigil

import (
	"context"

	"github.com/miekg/dns"
	"github.com/rs/zerolog/log"
)

// DNSHook looks up DNS records.
type DNSHook interface {
	Lookup(ctx context.Context, host string, qtype uint16) ([]dns.RR, error)
}

// DNSSensor waits for a name to resolve to at least one record of a type.
type DNSSensor struct {
	Hook DNSHook
	Host string
	// RecordType is a dns.Type* value. Zero means dns.TypeA.
	RecordType uint16
}

// Validate checks that the DNSSensor is ready to poke.
func (s *DNSSensor) Validate() error {
	if s.Hook == nil {
		return configError("DNSSensor has no hook")
	}
	if s.Host == "" {
		return configError("DNSSensor host is empty")
	}
	if s.RecordType != 0 {
		if _, ok := dns.TypeToString[s.RecordType]; !ok {
			return configError("DNSSensor record type %d is unknown", s.RecordType)
		}
	}
	return nil
}

// Poke reports whether the name has records of the configured type.
func (s *DNSSensor) Poke(ctx context.Context) (bool, error) {
	qtype := s.RecordType
	if qtype == 0 {
		qtype = dns.TypeA
	}
	log.Trace().Str("host", s.Host).Str("type", dns.TypeToString[qtype]).Msg("poking for dns record")

	records, err := s.Hook.Lookup(ctx, s.Host, qtype)
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}
