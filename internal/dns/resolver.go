package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	mdns "github.com/miekg/dns"

	"github.com/Harvey-AU/site-report/internal/report"
)

// ErrNXDomain is returned when the queried name does not exist.
var ErrNXDomain = errors.New("domain does not exist (NXDOMAIN)")

// DefaultNameserver is used when no resolver configuration can be read.
const DefaultNameserver = "1.1.1.1:53"

// Resolver looks up one record type for a name and returns the answers
// formatted for display. A name with no records of that type yields an
// empty slice and a nil error.
type Resolver interface {
	Lookup(ctx context.Context, name string, rt report.RecordType) ([]string, error)
}

var qtypes = map[report.RecordType]uint16{
	report.RecordA:     mdns.TypeA,
	report.RecordAAAA:  mdns.TypeAAAA,
	report.RecordMX:    mdns.TypeMX,
	report.RecordNS:    mdns.TypeNS,
	report.RecordCNAME: mdns.TypeCNAME,
	report.RecordTXT:   mdns.TypeTXT,
}

// DirectResolver queries a nameserver directly over UDP, retrying over TCP
// when the answer is truncated.
type DirectResolver struct {
	server string
	udp    *mdns.Client
	tcp    *mdns.Client
}

// NewDirectResolver creates a resolver for server ("host:port"). An empty
// server falls back to the first nameserver in /etc/resolv.conf.
func NewDirectResolver(server string, timeout time.Duration) *DirectResolver {
	if server == "" {
		server = SystemNameserver("/etc/resolv.conf")
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	return &DirectResolver{
		server: server,
		udp:    &mdns.Client{Net: "udp", Timeout: timeout},
		tcp:    &mdns.Client{Net: "tcp", Timeout: timeout},
	}
}

// SystemNameserver returns the first nameserver in a resolv.conf style file.
func SystemNameserver(path string) string {
	cfg, err := mdns.ClientConfigFromFile(path)
	if err != nil || len(cfg.Servers) == 0 {
		return DefaultNameserver
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port)
}

// Server returns the nameserver address in use.
func (r *DirectResolver) Server() string {
	return r.server
}

// Lookup implements Resolver.
func (r *DirectResolver) Lookup(ctx context.Context, name string, rt report.RecordType) ([]string, error) {
	qtype, ok := qtypes[rt]
	if !ok {
		return nil, fmt.Errorf("unsupported record type %s", rt)
	}

	msg := new(mdns.Msg)
	msg.SetQuestion(mdns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	resp, _, err := r.udp.ExchangeContext(ctx, msg, r.server)
	if err == nil && resp.Truncated {
		resp, _, err = r.tcp.ExchangeContext(ctx, msg, r.server)
	}
	if err != nil {
		return nil, err
	}

	switch resp.Rcode {
	case mdns.RcodeSuccess:
	case mdns.RcodeNameError:
		return nil, ErrNXDomain
	default:
		return nil, fmt.Errorf("server returned %s", mdns.RcodeToString[resp.Rcode])
	}

	values := make([]string, 0, len(resp.Answer))
	for _, rr := range resp.Answer {
		if rr.Header().Rrtype != qtype {
			continue
		}
		switch v := rr.(type) {
		case *mdns.A:
			values = append(values, v.A.String())
		case *mdns.AAAA:
			values = append(values, v.AAAA.String())
		case *mdns.MX:
			values = append(values, fmt.Sprintf("%d %s", v.Preference, trimRoot(v.Mx)))
		case *mdns.NS:
			values = append(values, trimRoot(v.Ns))
		case *mdns.CNAME:
			values = append(values, trimRoot(v.Target))
		case *mdns.TXT:
			values = append(values, strings.Join(v.Txt, " "))
		}
	}
	return values, nil
}

// SystemResolver uses the platform resolver. It cannot tell a missing name
// from a name without records, and TXT segments arrive already concatenated.
type SystemResolver struct {
	resolver *net.Resolver
}

// NewSystemResolver creates a resolver backed by net.DefaultResolver.
func NewSystemResolver() *SystemResolver {
	return &SystemResolver{resolver: net.DefaultResolver}
}

// Lookup implements Resolver.
func (r *SystemResolver) Lookup(ctx context.Context, name string, rt report.RecordType) ([]string, error) {
	values, err := r.lookup(ctx, name, rt)
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return []string{}, nil
	}
	return values, err
}

func (r *SystemResolver) lookup(ctx context.Context, name string, rt report.RecordType) ([]string, error) {
	switch rt {
	case report.RecordA, report.RecordAAAA:
		network := "ip4"
		if rt == report.RecordAAAA {
			network = "ip6"
		}
		ips, err := r.resolver.LookupIP(ctx, network, name)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(ips))
		for _, ip := range ips {
			out = append(out, ip.String())
		}
		return out, nil
	case report.RecordMX:
		mxs, err := r.resolver.LookupMX(ctx, name)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(mxs))
		for _, mx := range mxs {
			out = append(out, fmt.Sprintf("%d %s", mx.Pref, trimRoot(mx.Host)))
		}
		return out, nil
	case report.RecordNS:
		nss, err := r.resolver.LookupNS(ctx, name)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(nss))
		for _, ns := range nss {
			out = append(out, trimRoot(ns.Host))
		}
		return out, nil
	case report.RecordCNAME:
		cname, err := r.resolver.LookupCNAME(ctx, name)
		if err != nil {
			return nil, err
		}
		if trimRoot(cname) == trimRoot(name) {
			return []string{}, nil
		}
		return []string{trimRoot(cname)}, nil
	case report.RecordTXT:
		return r.resolver.LookupTXT(ctx, name)
	default:
		return nil, fmt.Errorf("unsupported record type %s", rt)
	}
}

// trimRoot drops the trailing root label dot, leaving a bare "." intact.
func trimRoot(name string) string {
	if name == "." {
		return name
	}
	return strings.TrimSuffix(name, ".")
}
