package route53

import (
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/route53"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
)

// decodeName converts a Route53 owner name to canonical form. Route53
// returns special characters as \ddd octal escapes, most commonly \052
// for the wildcard label.
func decodeName(name string) string {
	if !strings.Contains(name, `\`) {
		return provider.CanonicalName(name)
	}

	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if name[i] == '\\' && i+3 < len(name) && isOctal(name[i+1]) && isOctal(name[i+2]) && isOctal(name[i+3]) {
			n, err := strconv.ParseUint(name[i+1:i+4], 8, 8)
			if err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(name[i])
	}
	return provider.CanonicalName(b.String())
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}

// quoteTXT encodes a TXT value as a single quoted character-string.
func quoteTXT(v string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(v); i++ {
		if v[i] == '"' || v[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(v[i])
	}
	b.WriteByte('"')
	return b.String()
}

// unquoteTXT joins the quoted character-strings of a TXT value.
// Unquoted input is returned unchanged.
func unquoteTXT(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, `"`) {
		return v
	}

	var b strings.Builder
	inQuote := false
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c == '\\' && inQuote && i+1 < len(v):
			i++
			b.WriteByte(v[i])
		case c == '"':
			inQuote = !inQuote
		case inQuote:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// fromRecordSet converts a record set. Alias and routing-policy record sets
// are reported as not convertible since they cannot be managed as plain
// records.
func fromRecordSet(rrs *route53.ResourceRecordSet) (provider.Record, bool) {
	if rrs.AliasTarget != nil || rrs.SetIdentifier != nil || len(rrs.ResourceRecords) == 0 {
		return provider.Record{}, false
	}
	t := provider.RecordType(aws.StringValue(rrs.Type))
	if !t.IsManaged() {
		return provider.Record{}, false
	}

	values := make([]string, 0, len(rrs.ResourceRecords))
	for _, rr := range rrs.ResourceRecords {
		v := aws.StringValue(rr.Value)
		if t == provider.RecordTypeTXT {
			v = unquoteTXT(v)
		}
		values = append(values, v)
	}

	return provider.Record{
		Name:   decodeName(aws.StringValue(rrs.Name)),
		Type:   t,
		Values: values,
		TTL:    int(aws.Int64Value(rrs.TTL)),
	}, true
}

// toRecordSet converts a record, filling the TTL with defaultTTL when unset.
func toRecordSet(r provider.Record, defaultTTL int64) *route53.ResourceRecordSet {
	ttl := int64(r.TTL)
	if ttl <= 0 {
		ttl = defaultTTL
	}

	rrs := &route53.ResourceRecordSet{
		Name: aws.String(r.Name),
		Type: aws.String(string(r.Type)),
		TTL:  aws.Int64(ttl),
	}
	for _, v := range r.Values {
		if r.Type == provider.RecordTypeTXT {
			v = quoteTXT(v)
		}
		rrs.ResourceRecords = append(rrs.ResourceRecords, &route53.ResourceRecord{Value: aws.String(v)})
	}
	return rrs
}

// changesFor expands an engine change into Route53 changes. An update
// deletes the exact current set and creates the desired one in the same
// batch, so a concurrent external edit fails the batch instead of being
// overwritten.
func changesFor(c provider.Change, defaultTTL int64) []*route53.Change {
	switch c.Action {
	case provider.ActionCreate:
		return []*route53.Change{{
			Action:            aws.String(route53.ChangeActionCreate),
			ResourceRecordSet: toRecordSet(c.Desired, defaultTTL),
		}}
	case provider.ActionUpdate:
		return []*route53.Change{
			{
				Action:            aws.String(route53.ChangeActionDelete),
				ResourceRecordSet: toRecordSet(c.Current, defaultTTL),
			},
			{
				Action:            aws.String(route53.ChangeActionCreate),
				ResourceRecordSet: toRecordSet(c.Desired, defaultTTL),
			},
		}
	default:
		return []*route53.Change{{
			Action:            aws.String(route53.ChangeActionDelete),
			ResourceRecordSet: toRecordSet(c.Current, defaultTTL),
		}}
	}
}
