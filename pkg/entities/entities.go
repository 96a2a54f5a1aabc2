// Package entities holds the security entity value types that pivot
// queries operate over. Each entity exposes its populated attributes by
// name so query parameters can be sourced from entity instances without
// reflection at the call site.
package entities

// Entity is the minimal capability pivot binding needs: a type name and
// readable named attributes. Attr returns ok=false for attributes that
// are unknown or unpopulated, so callers can silently skip them.
type Entity interface {
	Type() string
	Attr(name string) (interface{}, bool)
}

func strAttr(v string) (interface{}, bool) {
	if v == "" {
		return nil, false
	}
	return v, true
}

// Host represents a host or device.
type Host struct {
	FQDN      string
	HostName  string
	NTDomain  string
	DNSDomain string
	OSFamily  string
	IPAddress string
}

func (h *Host) Type() string { return "Host" }

func (h *Host) Attr(name string) (interface{}, bool) {
	switch name {
	case "FQDN":
		return strAttr(h.FQDN)
	case "HostName":
		return strAttr(h.HostName)
	case "NTDomain":
		return strAttr(h.NTDomain)
	case "DNSDomain":
		return strAttr(h.DNSDomain)
	case "OSFamily":
		return strAttr(h.OSFamily)
	case "IPAddress":
		return strAttr(h.IPAddress)
	}
	return nil, false
}

// Account represents a user or service account.
type Account struct {
	Name      string
	NTDomain  string
	UPNSuffix string
	Sid       string
	LogonId   string
}

func (a *Account) Type() string { return "Account" }

func (a *Account) Attr(name string) (interface{}, bool) {
	switch name {
	case "Name":
		return strAttr(a.Name)
	case "NTDomain":
		return strAttr(a.NTDomain)
	case "UPNSuffix":
		return strAttr(a.UPNSuffix)
	case "Sid":
		return strAttr(a.Sid)
	case "LogonId":
		return strAttr(a.LogonId)
	}
	return nil, false
}

// Process represents an OS process observed in an alert or event.
type Process struct {
	ProcessId       string
	ProcessFilePath string
	CommandLine     string
	LogonSession    string
	CreationTime    string
	ParentProcessId string
}

func (p *Process) Type() string { return "Process" }

func (p *Process) Attr(name string) (interface{}, bool) {
	switch name {
	case "ProcessId":
		return strAttr(p.ProcessId)
	case "ProcessFilePath":
		return strAttr(p.ProcessFilePath)
	case "CommandLine":
		return strAttr(p.CommandLine)
	case "LogonSession":
		return strAttr(p.LogonSession)
	case "CreationTime":
		return strAttr(p.CreationTime)
	case "ParentProcessId":
		return strAttr(p.ParentProcessId)
	}
	return nil, false
}

// IpAddress represents an IP address entity.
type IpAddress struct {
	Address string
}

func (i *IpAddress) Type() string { return "IpAddress" }

func (i *IpAddress) Attr(name string) (interface{}, bool) {
	if name == "Address" {
		return strAttr(i.Address)
	}
	return nil, false
}

// File represents a file observed on a host.
type File struct {
	FullPath string
	Name     string
	FileHash string
}

func (f *File) Type() string { return "File" }

func (f *File) Attr(name string) (interface{}, bool) {
	switch name {
	case "FullPath":
		return strAttr(f.FullPath)
	case "Name":
		return strAttr(f.Name)
	case "FileHash":
		return strAttr(f.FileHash)
	}
	return nil, false
}

// Url represents a URL observable.
type Url struct {
	Url string
}

func (u *Url) Type() string { return "Url" }

func (u *Url) Attr(name string) (interface{}, bool) {
	if name == "Url" {
		return strAttr(u.Url)
	}
	return nil, false
}

// Dns represents a DNS domain observable.
type Dns struct {
	DomainName string
}

func (d *Dns) Type() string { return "Dns" }

func (d *Dns) Attr(name string) (interface{}, bool) {
	if name == "DomainName" {
		return strAttr(d.DomainName)
	}
	return nil, false
}

// HostLogonSession represents a logon session on a host.
type HostLogonSession struct {
	SessionId string
	Account   string
	HostName  string
}

func (s *HostLogonSession) Type() string { return "HostLogonSession" }

func (s *HostLogonSession) Attr(name string) (interface{}, bool) {
	switch name {
	case "SessionId":
		return strAttr(s.SessionId)
	case "Account":
		return strAttr(s.Account)
	case "HostName":
		return strAttr(s.HostName)
	}
	return nil, false
}
