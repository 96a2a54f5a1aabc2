package pivot

// EntityBinding names an entity type and the attribute whose value
// feeds a query parameter.
type EntityBinding struct {
	Entity string
	Attr   string
}

// ParamEntityMap maps known query parameter names to candidate entity
// attributes, in preference order. Parameter names are case-sensitive.
// A parameter with no candidates (proc_op) never binds.
var ParamEntityMap = map[string][]EntityBinding{
	"account_name":     {{Entity: "Account", Attr: "Name"}},
	"host_name":        {{Entity: "Host", Attr: "FQDN"}},
	"process_name":     {{Entity: "Process", Attr: "ProcessFilePath"}},
	"source_ip_list":   {{Entity: "IpAddress", Attr: "Address"}},
	"ip_address_list":  {{Entity: "IpAddress", Attr: "Address"}},
	"ip_address":       {{Entity: "IpAddress", Attr: "Address"}},
	"user":             {{Entity: "Account", Attr: "Name"}},
	"observables": {
		{Entity: "IpAddress", Attr: "Address"},
		{Entity: "Dns", Attr: "DomainName"},
		{Entity: "File", Attr: "FileHash"},
		{Entity: "Url", Attr: "Url"},
	},
	"logon_session_id": {
		{Entity: "Process", Attr: "LogonSession"},
		{Entity: "HostLogonSession", Attr: "SessionId"},
		{Entity: "Account", Attr: "LogonId"},
	},
	"proc_op":     {},
	"process_id":  {{Entity: "Process", Attr: "ProcessId"}},
	"commandline": {{Entity: "Process", Attr: "CommandLine"}},
	"url":         {{Entity: "Url", Attr: "Url"}},
	"file_hash":   {{Entity: "File", Attr: "FileHash"}},
}
