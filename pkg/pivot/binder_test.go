package pivot

import (
	"context"
	"testing"
	"time"

	"github.com/kestrelsec/huntkit/pkg/entities"
)

func fixedTimespan() Timespan {
	return Timespan{
		Start: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestAttachProviderBindsHostQueries(t *testing.T) {
	prov := testProvider()
	p := New(fixedTimespan)
	p.AttachProvider(prov)

	bound := p.Lookup("Host")
	if len(bound) != 1 {
		t.Fatalf("Expected exactly one Host binding, got %d", len(bound))
	}
	if bound[0].Name != "SecurityEvent_list_host_events" {
		t.Errorf("Binding name should be table-prefixed, got %q", bound[0].Name)
	}
	if bound[0].Environment != "LogAnalytics" {
		t.Errorf("Binding should record provider environment, got %q", bound[0].Environment)
	}
}

func TestAttachProviderSkipsZeroParamQueries(t *testing.T) {
	p := New(fixedTimespan)
	p.AttachProvider(testProvider())

	for _, entType := range p.EntityTypes() {
		for _, b := range p.Lookup(entType) {
			if b.Query == "no_param_query" {
				t.Errorf("Zero-parameter query bound to %s", entType)
			}
		}
	}
}

func TestAttachProviderIdempotent(t *testing.T) {
	prov := testProvider()
	p := New(fixedTimespan)
	p.AttachProvider(prov)
	first := len(p.Lookup("Host"))
	p.AttachProvider(prov)
	second := len(p.Lookup("Host"))

	if first != second {
		t.Errorf("Re-attaching a provider must overwrite, not duplicate: %d then %d", first, second)
	}
}

func TestAttachKeepsOtherEnvironments(t *testing.T) {
	logAnalytics := testProvider()
	localData := testProvider()
	localData.env = "LocalData"

	p := New(fixedTimespan)
	p.AttachProvider(logAnalytics)
	p.AttachProvider(localData)

	bound := p.Lookup("Host")
	if len(bound) != 2 {
		t.Fatalf("Expected one Host binding per environment, got %d", len(bound))
	}
	envs := map[string]bool{}
	for _, b := range bound {
		envs[b.Environment] = true
	}
	if !envs["LogAnalytics"] || !envs["LocalData"] {
		t.Errorf("Both environments must survive attachment, got %v", envs)
	}

	if _, ok := p.GetIn("Host", "LogAnalytics", "SecurityEvent_list_host_events"); !ok {
		t.Error("LogAnalytics binding lost after attaching a second environment")
	}
	if _, ok := p.GetIn("Host", "LocalData", "SecurityEvent_list_host_events"); !ok {
		t.Error("LocalData binding missing")
	}

	// Re-attach replaces only the same environment's namespace.
	p.AttachProvider(localData)
	if got := len(p.Lookup("Host")); got != 2 {
		t.Errorf("Re-attach must overwrite same-environment entries only, got %d bindings", got)
	}
}

func TestLookupUnknownEntityEmpty(t *testing.T) {
	p := New(fixedTimespan)
	p.AttachProvider(testProvider())

	if got := p.Lookup("Mailbox"); len(got) != 0 {
		t.Errorf("Unknown entity type should have no bindings, got %d", len(got))
	}
	if _, ok := p.Get("Host", "no_such_binding"); ok {
		t.Error("Get for unknown binding should return ok=false")
	}
}

func TestRunEntityExtractsAttributes(t *testing.T) {
	prov := testProvider()
	p := New(fixedTimespan)
	p.AttachProvider(prov)

	b, ok := p.Get("Host", "SecurityEvent_list_host_events")
	if !ok {
		t.Fatal("Expected Host binding for list_host_events")
	}

	host := &entities.Host{FQDN: "host1.contoso.com"}
	if _, err := b.RunEntity(context.Background(), host, nil); err != nil {
		t.Fatalf("RunEntity failed: %v", err)
	}

	if len(prov.calls) != 1 {
		t.Fatalf("Expected one underlying call, got %d", len(prov.calls))
	}
	call := prov.calls[0]
	if call["host_name"] != "host1.contoso.com" {
		t.Errorf("Entity attribute should feed host_name, got %v", call["host_name"])
	}
	ts := fixedTimespan()
	if call["start"] != ts.Start || call["end"] != ts.End {
		t.Errorf("Timespan defaults should be applied: %v", call)
	}
}

func TestRunEntityExplicitArgsOverride(t *testing.T) {
	prov := testProvider()
	p := New(fixedTimespan)
	p.AttachProvider(prov)

	b, _ := p.Get("Host", "SecurityEvent_list_host_events")
	host := &entities.Host{FQDN: "host1.contoso.com"}
	_, err := b.RunEntity(context.Background(), host, map[string]interface{}{
		"host_name": "otherhost",
	})
	if err != nil {
		t.Fatalf("RunEntity failed: %v", err)
	}
	if prov.calls[0]["host_name"] != "otherhost" {
		t.Errorf("Explicit argument must override entity attribute, got %v", prov.calls[0]["host_name"])
	}
}

func TestRunEntityUnsetAttributeOmitted(t *testing.T) {
	prov := testProvider()
	p := New(fixedTimespan)
	p.AttachProvider(prov)

	b, _ := p.Get("Host", "SecurityEvent_list_host_events")
	host := &entities.Host{} // FQDN unset
	if _, err := b.RunEntity(context.Background(), host, nil); err != nil {
		t.Fatalf("RunEntity failed: %v", err)
	}
	if _, present := prov.calls[0]["host_name"]; present {
		t.Error("Unset entity attribute must be silently omitted")
	}
}

func TestTimespanEvaluatedAtCallTime(t *testing.T) {
	prov := testProvider()
	current := fixedTimespan()
	p := New(func() Timespan { return current })
	p.AttachProvider(prov)

	b, _ := p.Get("Host", "SecurityEvent_list_host_events")
	host := &entities.Host{FQDN: "h1"}

	if _, err := b.RunEntity(context.Background(), host, nil); err != nil {
		t.Fatal(err)
	}
	// shift the notebook time range after binding
	current.Start = current.Start.AddDate(0, 0, 10)
	if _, err := b.RunEntity(context.Background(), host, nil); err != nil {
		t.Fatal(err)
	}

	if prov.calls[0]["start"] == prov.calls[1]["start"] {
		t.Error("Timespan must be read at call time, not captured at bind time")
	}
}

func TestIpAddressListBinding(t *testing.T) {
	prov := testProvider()
	p := New(fixedTimespan)
	p.AttachProvider(prov)

	b, ok := p.Get("IpAddress", "list_flows_by_ip")
	if !ok {
		t.Fatal("Expected IpAddress binding for list_flows_by_ip")
	}
	ip := &entities.IpAddress{Address: "10.1.2.3"}
	if _, err := b.RunEntity(context.Background(), ip, nil); err != nil {
		t.Fatalf("RunEntity failed: %v", err)
	}
	if prov.calls[0]["ip_address_list"] != "10.1.2.3" {
		t.Errorf("IpAddress.Address should feed ip_address_list, got %v", prov.calls[0]["ip_address_list"])
	}
}
