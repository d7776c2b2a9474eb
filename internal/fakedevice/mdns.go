package fakedevice

import (
	"net"
	"strings"

	"github.com/miekg/dns"

	"github.com/kleeedolinux/devsettings/mdns"
)

// DefaultHostname is announced until settings with another hostname are
// posted.
const DefaultHostname = "esp-device"

// Hostname is the name the device currently announces.
func (d *Device) Hostname() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n := len(d.settings); n > 0 {
		return d.settings[n-1].Hostname
	}
	return DefaultHostname
}

// Announcer answers A queries for the device's current name with ip.
func (d *Device) Announcer(ip net.IP) dns.Handler {
	return dns.HandlerFunc(func(w dns.ResponseWriter, query *dns.Msg) {
		if len(query.Question) != 1 {
			return
		}
		q := query.Question[0]
		name := mdns.Name(d.Hostname())
		if q.Qtype != dns.TypeA || !strings.EqualFold(q.Name, name) {
			return
		}

		resp := new(dns.Msg)
		resp.SetReply(query)
		resp.Authoritative = true
		rr := new(dns.A)
		rr.Hdr = dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 120}
		rr.A = ip
		resp.Answer = append(resp.Answer, rr)
		w.WriteMsg(resp)
	})
}
