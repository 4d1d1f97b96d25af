package rfc2136

import (
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
)

// groupRRs turns a zone transfer into record sets of managed types.
// Record sets keep the order of first appearance in the transfer.
func groupRRs(rrs []dns.RR, isManaged func(name string) bool) []provider.Record {
	index := make(map[provider.Key]int)
	var out []provider.Record

	for _, rr := range rrs {
		typ, value, ok := rrValue(rr)
		if !ok {
			continue
		}
		name := provider.CanonicalName(rr.Header().Name)
		if isManaged != nil && !isManaged(name) {
			continue
		}

		key := provider.Key{Name: name, Type: typ}
		if i, ok := index[key]; ok {
			out[i].Values = append(out[i].Values, value)
			continue
		}
		index[key] = len(out)
		out = append(out, provider.Record{
			Name:   name,
			Type:   typ,
			Values: []string{value},
			TTL:    int(rr.Header().Ttl),
		})
	}

	for i := range out {
		sort.Strings(out[i].Values)
	}
	return out
}

func rrValue(rr dns.RR) (provider.RecordType, string, bool) {
	switch v := rr.(type) {
	case *dns.A:
		return provider.RecordTypeA, v.A.String(), true
	case *dns.AAAA:
		return provider.RecordTypeAAAA, v.AAAA.String(), true
	case *dns.CNAME:
		return provider.RecordTypeCNAME, provider.CanonicalName(v.Target), true
	case *dns.TXT:
		return provider.RecordTypeTXT, strings.Join(v.Txt, ""), true
	default:
		return "", "", false
	}
}

// toRRs converts a record into one RR per value.
func toRRs(r provider.Record, ttl uint32) ([]dns.RR, error) {
	if r.TTL > 0 {
		ttl = uint32(r.TTL)
	}
	hdr := dns.RR_Header{Name: dns.Fqdn(r.Name), Class: dns.ClassINET, Ttl: ttl}

	rrs := make([]dns.RR, 0, len(r.Values))
	for _, value := range r.Values {
		h := hdr
		switch r.Type {
		case provider.RecordTypeA:
			ip := net.ParseIP(value).To4()
			if ip == nil {
				return nil, fmt.Errorf("invalid IPv4 address %q", value)
			}
			h.Rrtype = dns.TypeA
			rrs = append(rrs, &dns.A{Hdr: h, A: ip})
		case provider.RecordTypeAAAA:
			ip := net.ParseIP(value)
			if ip == nil || ip.To4() != nil {
				return nil, fmt.Errorf("invalid IPv6 address %q", value)
			}
			h.Rrtype = dns.TypeAAAA
			rrs = append(rrs, &dns.AAAA{Hdr: h, AAAA: ip})
		case provider.RecordTypeCNAME:
			h.Rrtype = dns.TypeCNAME
			rrs = append(rrs, &dns.CNAME{Hdr: h, Target: dns.Fqdn(value)})
		case provider.RecordTypeTXT:
			h.Rrtype = dns.TypeTXT
			rrs = append(rrs, &dns.TXT{Hdr: h, Txt: splitTXT(value)})
		default:
			return nil, fmt.Errorf("unsupported record type %s", r.Type)
		}
	}
	return rrs, nil
}

// splitTXT splits a value into character-strings of at most 255 bytes.
func splitTXT(value string) []string {
	if len(value) <= 255 {
		return []string{value}
	}
	var parts []string
	for len(value) > 255 {
		parts = append(parts, value[:255])
		value = value[255:]
	}
	return append(parts, value)
}

// buildUpdate assembles one UPDATE message for changes to zone.
func buildUpdate(zone string, changes []provider.Change, ttl uint32) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetUpdate(dns.Fqdn(zone))

	for _, c := range changes {
		switch c.Action {
		case provider.ActionCreate:
			rrs, err := toRRs(c.Desired, ttl)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", c.Desired.Key(), err)
			}
			msg.RRsetNotUsed(rrs[:1])
			msg.Insert(rrs)
		case provider.ActionUpdate:
			// Used and Remove rewrite the RR headers they are given, so each
			// section gets its own copy.
			prereq, err := toRRs(c.Current, ttl)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", c.Current.Key(), err)
			}
			current, _ := toRRs(c.Current, ttl)
			desired, err := toRRs(c.Desired, ttl)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", c.Desired.Key(), err)
			}
			msg.Used(prereq)
			msg.Remove(current)
			msg.Insert(desired)
		case provider.ActionDelete:
			current, err := toRRs(c.Current, ttl)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", c.Current.Key(), err)
			}
			msg.Remove(current)
		default:
			return nil, fmt.Errorf("unknown action %q", c.Action)
		}
	}
	return msg, nil
}
