package entities

import "testing"

func TestHostAttr(t *testing.T) {
	h := &Host{FQDN: "victim01.contoso.com", HostName: "victim01"}

	val, ok := h.Attr("FQDN")
	if !ok || val != "victim01.contoso.com" {
		t.Errorf("FQDN = %v, %v", val, ok)
	}

	if _, ok := h.Attr("IPAddress"); ok {
		t.Error("unset attribute must report not-ok")
	}
	if _, ok := h.Attr("NoSuchField"); ok {
		t.Error("unknown attribute must report not-ok")
	}
}

func TestEntityTypes(t *testing.T) {
	cases := []struct {
		ent  Entity
		want string
	}{
		{&Host{}, "Host"},
		{&Account{}, "Account"},
		{&Process{}, "Process"},
		{&IpAddress{}, "IpAddress"},
		{&File{}, "File"},
		{&Url{}, "Url"},
		{&Dns{}, "Dns"},
		{&HostLogonSession{}, "HostLogonSession"},
	}
	for _, tc := range cases {
		if got := tc.ent.Type(); got != tc.want {
			t.Errorf("Type() = %s, want %s", got, tc.want)
		}
	}
}

func TestAccountAttrCaseSensitive(t *testing.T) {
	a := &Account{Name: "jdoe", Sid: "S-1-5-21-1"}

	if val, ok := a.Attr("Name"); !ok || val != "jdoe" {
		t.Errorf("Name = %v, %v", val, ok)
	}
	if _, ok := a.Attr("name"); ok {
		t.Error("attribute names are case sensitive")
	}
}
