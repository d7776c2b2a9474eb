// Package mdns finds a device by the name it announces on the local link
// once it has joined a network.
package mdns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/miekg/dns"

	"github.com/kleeedolinux/devsettings/gate"
)

// DefaultAddr is the IPv4 mDNS group.
const DefaultAddr = "224.0.0.251:5353"

// unicastResponse is the top bit of the question class (the "QU" bit).
const unicastResponse = 1 << 15

var ErrNotFound = fmt.Errorf("mdns: no answer: %w", errdefs.ErrNotFound)

// Name is the link-local name a device with hostname announces.
func Name(hostname string) string {
	return dns.Fqdn(strings.ToLower(gate.Trim(hostname)) + ".local")
}

type Resolver struct {
	addr     string
	timeout  time.Duration
	interval time.Duration
}

type Option func(*Resolver)

// WithAddr sends queries to addr instead of the multicast group.
func WithAddr(addr string) Option {
	return func(r *Resolver) {
		if addr != "" {
			r.addr = addr
		}
	}
}

// WithTimeout bounds a whole lookup.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithInterval sets how often an unanswered query is repeated.
func WithInterval(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.interval = d
		}
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		addr:     DefaultAddr,
		timeout:  3 * time.Second,
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lookup asks for hostname's IPv4 addresses and returns the first answer.
// Replies are requested by unicast, so no group membership is needed.
func (r *Resolver) Lookup(ctx context.Context, hostname string) ([]net.IP, error) {
	if !gate.Check(gate.FieldHostname, hostname) {
		return nil, fmt.Errorf("mdns: invalid hostname %q: %w", hostname, errdefs.ErrInvalidArgument)
	}
	name := Name(hostname)
	logger := log.G(ctx).WithField("name", name)

	dst, err := net.ResolveUDPAddr("udp4", r.addr)
	if err != nil {
		return nil, fmt.Errorf("mdns: %v: %w", err, errdefs.ErrInvalidArgument)
	}
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("mdns: listen: %w", err)
	}
	defer conn.Close()

	query := new(dns.Msg)
	query.SetQuestion(name, dns.TypeA)
	query.Id = 0
	query.RecursionDesired = false
	query.Question[0].Qclass |= unicastResponse
	packed, err := query.Pack()
	if err != nil {
		return nil, fmt.Errorf("mdns: pack query: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, dns.MaxMsgSize)
	for {
		if _, err := conn.WriteToUDP(packed, dst); err != nil {
			return nil, fmt.Errorf("mdns: send query: %w", err)
		}
		logger.Debug("mdns query sent")

		resend := time.Now().Add(r.interval)
		for time.Now().Before(resend) {
			if err := ctx.Err(); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return nil, ErrNotFound
				}
				return nil, err
			}
			conn.SetReadDeadline(resend)
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				if errors.Is(err, os.ErrDeadlineExceeded) {
					continue
				}
				return nil, fmt.Errorf("mdns: read: %w", err)
			}

			if ips := answers(buf[:n], name); len(ips) > 0 {
				logger.WithField("ips", ips).Info("device found")
				return ips, nil
			}
		}
	}
}

// answers extracts the A records for name from a raw response.
func answers(raw []byte, name string) []net.IP {
	var msg dns.Msg
	if err := msg.Unpack(raw); err != nil || !msg.Response {
		return nil
	}

	var ips []net.IP
	for _, rr := range append(msg.Answer, msg.Extra...) {
		a, ok := rr.(*dns.A)
		if !ok || !strings.EqualFold(a.Hdr.Name, name) {
			continue
		}
		ips = append(ips, a.A)
	}
	return ips
}
