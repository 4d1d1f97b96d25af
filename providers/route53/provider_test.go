package route53

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/route53"
	"github.com/aws/aws-sdk-go/service/route53/route53iface"
	"github.com/google/go-cmp/cmp"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/provider"
)

var testZone = provider.Zone{Name: "example.com", ID: "Z123", Provider: "aws"}

// fakeRoute53 implements the parts of route53iface.Route53API the provider
// calls. Unimplemented methods panic through the nil embedded interface.
type fakeRoute53 struct {
	route53iface.Route53API

	mu        sync.Mutex
	pages     [][]*route53.ResourceRecordSet
	zones     []*route53.HostedZone
	batches   []*route53.ChangeBatch
	changeErr error
	listErr   error
}

func (f *fakeRoute53) ListResourceRecordSetsPagesWithContext(_ aws.Context, in *route53.ListResourceRecordSetsInput, fn func(*route53.ListResourceRecordSetsOutput, bool) bool, _ ...request.Option) error {
	if f.listErr != nil {
		return f.listErr
	}
	if aws.StringValue(in.HostedZoneId) != testZone.ID {
		return awserr.New(route53.ErrCodeNoSuchHostedZone, "No hosted zone found", nil)
	}
	for i, page := range f.pages {
		if !fn(&route53.ListResourceRecordSetsOutput{ResourceRecordSets: page}, i == len(f.pages)-1) {
			break
		}
	}
	return nil
}

func (f *fakeRoute53) ChangeResourceRecordSetsWithContext(_ aws.Context, in *route53.ChangeResourceRecordSetsInput, _ ...request.Option) (*route53.ChangeResourceRecordSetsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, in.ChangeBatch)
	if f.changeErr != nil {
		return nil, f.changeErr
	}
	return &route53.ChangeResourceRecordSetsOutput{
		ChangeInfo: &route53.ChangeInfo{Id: aws.String("C1"), Status: aws.String(route53.ChangeStatusPending)},
	}, nil
}

func (f *fakeRoute53) ListHostedZonesByNameWithContext(_ aws.Context, _ *route53.ListHostedZonesByNameInput, _ ...request.Option) (*route53.ListHostedZonesByNameOutput, error) {
	return &route53.ListHostedZonesByNameOutput{HostedZones: f.zones}, nil
}

func newTestProvider(t *testing.T, fake *fakeRoute53) *Provider {
	t.Helper()
	p, err := New("aws", &Config{Region: "us-east-1", TTL: DefaultTTL}, WithAPI(fake))
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	return p
}

func rrset(name, typ string, ttl int64, values ...string) *route53.ResourceRecordSet {
	rrs := &route53.ResourceRecordSet{Name: aws.String(name), Type: aws.String(typ), TTL: aws.Int64(ttl)}
	for _, v := range values {
		rrs.ResourceRecords = append(rrs.ResourceRecords, &route53.ResourceRecord{Value: aws.String(v)})
	}
	return rrs
}

// summarize renders a change batch as "ACTION name type values" lines.
func summarize(batch *route53.ChangeBatch) []string {
	var out []string
	for _, c := range batch.Changes {
		rrs := c.ResourceRecordSet
		line := aws.StringValue(c.Action) + " " + aws.StringValue(rrs.Name) + " " + aws.StringValue(rrs.Type)
		for _, rr := range rrs.ResourceRecords {
			line += " " + aws.StringValue(rr.Value)
		}
		out = append(out, line)
	}
	return out
}

func TestProvider_ListRecords(t *testing.T) {
	fake := &fakeRoute53{pages: [][]*route53.ResourceRecordSet{
		{
			rrset("example.com.", "NS", 172800, "ns-1.awsdns-00.com."),
			rrset("App.Example.com.", "A", 60, "10.0.0.1", "10.0.0.2"),
		},
		{
			rrset(`\052.example.com.`, "CNAME", 300, "lb.example.net."),
			rrset("_traefik-dns.app.example.com.", "TXT", 300, `"heritage=traefik-dns,traefik-dns/owner=default"`),
			{
				Name:        aws.String("alias.example.com."),
				Type:        aws.String("A"),
				AliasTarget: &route53.AliasTarget{DNSName: aws.String("elb.amazonaws.com.")},
			},
		},
	}}

	records, err := newTestProvider(t, fake).ListRecords(context.Background(), testZone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []provider.Record{
		{Name: "app.example.com", Type: provider.RecordTypeA, Values: []string{"10.0.0.1", "10.0.0.2"}, TTL: 60},
		{Name: "*.example.com", Type: provider.RecordTypeCNAME, Values: []string{"lb.example.net."}, TTL: 300},
		{Name: "_traefik-dns.app.example.com", Type: provider.RecordTypeTXT, Values: []string{"heritage=traefik-dns,traefik-dns/owner=default"}, TTL: 300},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("ListRecords mismatch (-want +got):\n%s", diff)
	}
}

func TestProvider_ListRecords_MissingZoneID(t *testing.T) {
	_, err := newTestProvider(t, &fakeRoute53{}).ListRecords(context.Background(), provider.Zone{Name: "example.com"})
	if kind, _ := provider.KindOf(err); kind != provider.KindInvalid {
		t.Errorf("expected invalid, got %v", err)
	}
}

func TestProvider_ApplyChanges(t *testing.T) {
	fake := &fakeRoute53{}
	p := newTestProvider(t, fake)

	current := provider.Record{Name: "old.example.com", Type: provider.RecordTypeA, Values: []string{"10.0.0.1"}, TTL: 60}
	changes := []provider.Change{
		provider.Create(testZone, provider.NewRecord("_traefik-dns.new.example.com", provider.RecordTypeTXT, "heritage=traefik-dns", 0)),
		provider.Create(testZone, provider.NewRecord("new.example.com", provider.RecordTypeA, "10.0.0.5", 0)),
		provider.Update(testZone, current, provider.NewRecord("old.example.com", provider.RecordTypeA, "10.0.0.9", 120)),
		provider.Delete(testZone, provider.Record{Name: "gone.example.com", Type: provider.RecordTypeCNAME, Values: []string{"lb.example.net"}, TTL: 300}),
	}

	if err := p.ApplyChanges(context.Background(), testZone, changes); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(fake.batches))
	}

	want := []string{
		`CREATE _traefik-dns.new.example.com TXT "heritage=traefik-dns"`,
		"CREATE new.example.com A 10.0.0.5",
		"DELETE old.example.com A 10.0.0.1",
		"CREATE old.example.com A 10.0.0.9",
		"DELETE gone.example.com CNAME lb.example.net",
	}
	if diff := cmp.Diff(want, summarize(fake.batches[0])); diff != "" {
		t.Errorf("batch mismatch (-want +got):\n%s", diff)
	}

	changesOut := fake.batches[0].Changes
	if ttl := aws.Int64Value(changesOut[1].ResourceRecordSet.TTL); ttl != DefaultTTL {
		t.Errorf("expected default TTL %d for unset TTL, got %d", DefaultTTL, ttl)
	}
	if ttl := aws.Int64Value(changesOut[2].ResourceRecordSet.TTL); ttl != 60 {
		t.Errorf("expected delete to carry the exact current TTL 60, got %d", ttl)
	}
	if ttl := aws.Int64Value(changesOut[3].ResourceRecordSet.TTL); ttl != 120 {
		t.Errorf("expected desired TTL 120, got %d", ttl)
	}
}

func TestProvider_SingleOperationsUseBatches(t *testing.T) {
	fake := &fakeRoute53{}
	p := newTestProvider(t, fake)

	stored, err := p.CreateRecord(context.Background(), testZone, provider.NewRecord("a.example.com", provider.RecordTypeA, "10.0.0.1", 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.TTL != DefaultTTL {
		t.Errorf("expected stored TTL %d, got %d", DefaultTTL, stored.TTL)
	}
	if err := p.DeleteRecord(context.Background(), testZone, stored); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fake.batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(fake.batches))
	}
	if got := summarize(fake.batches[1]); len(got) != 1 || got[0] != "DELETE a.example.com A 10.0.0.1" {
		t.Errorf("unexpected delete batch %v", got)
	}
}

func TestProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want provider.ErrorKind
	}{
		{"throttling", awserr.New("Throttling", "Rate exceeded", nil), provider.KindRateLimited},
		{"prior request", awserr.New(route53.ErrCodePriorRequestNotComplete, "busy", nil), provider.KindRateLimited},
		{"invalid change batch", awserr.New(route53.ErrCodeInvalidChangeBatch, "Tried to create resource record set but it already exists", nil), provider.KindConflict},
		{"record set already deleted", awserr.New(route53.ErrCodeInvalidChangeBatch, "Tried to delete resource record set [name='a.example.com.', type='A'] but it was not found", nil), provider.KindNotFound},
		{"invalid input", awserr.New(route53.ErrCodeInvalidInput, "bad name", nil), provider.KindInvalid},
		{"no such zone", awserr.New(route53.ErrCodeNoSuchHostedZone, "missing", nil), provider.KindNotFound},
		{"access denied", awserr.New("AccessDenied", "nope", nil), provider.KindUnauthorized},
		{"bad token", awserr.New("InvalidClientTokenId", "nope", nil), provider.KindUnauthorized},
		{"server error", awserr.NewRequestFailure(awserr.New("InternalFailure", "oops", nil), 500, "req-1"), provider.KindTransient},
		{"plain error", errors.New("connection reset"), provider.KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeRoute53{changeErr: tt.err}
			err := newTestProvider(t, fake).DeleteRecord(context.Background(), testZone,
				provider.NewRecord("a.example.com", provider.RecordTypeA, "10.0.0.1", 300))

			kind, ok := provider.KindOf(err)
			if !ok {
				t.Fatalf("expected classified error, got %v", err)
			}
			if kind != tt.want {
				t.Errorf("expected %s, got %s", tt.want, kind)
			}
		})
	}
}

func TestProvider_ApplyChanges_MissingRecordSetIsConflict(t *testing.T) {
	fake := &fakeRoute53{changeErr: awserr.New(route53.ErrCodeInvalidChangeBatch,
		"Tried to delete resource record set [name='a.example.com.', type='A'] but it was not found", nil)}
	p := newTestProvider(t, fake)

	changes := []provider.Change{
		provider.Create(testZone, provider.NewRecord("b.example.com", provider.RecordTypeA, "10.0.0.2", 300)),
		provider.Delete(testZone, provider.NewRecord("a.example.com", provider.RecordTypeA, "10.0.0.1", 300)),
	}
	err := p.ApplyChanges(context.Background(), testZone, changes)
	if !provider.IsConflict(err) {
		t.Errorf("expected a rejected batch to stay a conflict, got %v", err)
	}
	if provider.IsNotFound(err) {
		t.Errorf("expected batch error not to be NotFound, got %v", err)
	}
}

func TestProvider_ResolveZoneID(t *testing.T) {
	public := &route53.HostedZone{Id: aws.String("/hostedzone/ZPUB"), Name: aws.String("example.com."), Config: &route53.HostedZoneConfig{PrivateZone: aws.Bool(false)}}
	private := &route53.HostedZone{Id: aws.String("/hostedzone/ZPRIV"), Name: aws.String("example.com."), Config: &route53.HostedZoneConfig{PrivateZone: aws.Bool(true)}}
	other := &route53.HostedZone{Id: aws.String("/hostedzone/ZOTHER"), Name: aws.String("example.org.")}

	t.Run("single match", func(t *testing.T) {
		p := newTestProvider(t, &fakeRoute53{zones: []*route53.HostedZone{public, other}})
		id, err := p.ResolveZoneID(context.Background(), "example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "ZPUB" {
			t.Errorf("expected ZPUB, got %s", id)
		}
	})

	t.Run("ambiguous", func(t *testing.T) {
		p := newTestProvider(t, &fakeRoute53{zones: []*route53.HostedZone{public, private}})
		if _, err := p.ResolveZoneID(context.Background(), "example.com"); err == nil {
			t.Error("expected error for ambiguous zones")
		}
	})

	t.Run("private selected", func(t *testing.T) {
		p, err := New("aws", &Config{ZoneType: ZoneTypePrivate}, WithAPI(&fakeRoute53{zones: []*route53.HostedZone{public, private}}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		id, err := p.ResolveZoneID(context.Background(), "example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "ZPRIV" {
			t.Errorf("expected ZPRIV, got %s", id)
		}
	})

	t.Run("not found", func(t *testing.T) {
		p := newTestProvider(t, &fakeRoute53{zones: []*route53.HostedZone{other}})
		_, err := p.ResolveZoneID(context.Background(), "example.com")
		if !provider.IsNotFound(err) {
			t.Errorf("expected not found, got %v", err)
		}
	})
}

func TestProvider_Factory(t *testing.T) {
	p, err := Factory(slog.Default())("aws", map[string]string{
		"REGION":            "eu-west-1",
		"ACCESS_KEY_ID":     "AKIA",
		"SECRET_ACCESS_KEY": "secret",
		"TTL":               "60",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r53, ok := p.(*Provider)
	if !ok {
		t.Fatalf("expected *Provider, got %T", p)
	}
	if r53.ttl != 60 {
		t.Errorf("expected TTL 60, got %d", r53.ttl)
	}
	if r53.Type() != "route53" {
		t.Errorf("expected type route53, got %s", r53.Type())
	}
}

func TestConfigFromMap_Validation(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]string
	}{
		{"key without secret", map[string]string{"ACCESS_KEY_ID": "AKIA"}},
		{"session token alone", map[string]string{"SESSION_TOKEN": "tok"}},
		{"bad ttl", map[string]string{"TTL": "soon"}},
		{"bad zone type", map[string]string{"ZONE_TYPE": "hybrid"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ConfigFromMap(tt.config); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestConfigFromMap_Defaults(t *testing.T) {
	cfg, err := ConfigFromMap(map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Region != "us-east-1" {
		t.Errorf("expected default region us-east-1, got %s", cfg.Region)
	}
	if cfg.TTL != DefaultTTL {
		t.Errorf("expected default TTL %d, got %d", DefaultTTL, cfg.TTL)
	}
}
