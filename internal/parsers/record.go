// Package parsers implements the tool-specific parse(raw) → []Record
// transforms described in spec §4.2. Each tool gets a distinct record
// type (the "tagged-variant-per-tool" design from §9) so the collector's
// batch insert can route a slice of records straight into the matching
// registry schema without reflection or stringly-typed maps.
package parsers

import "time"

// Record is implemented by every tool's row type. Values returns the
// column values in the exact order of the tool's registry schema
// (registry.columnSets), after `timestamp`.
type Record interface {
	Timestamp() time.Time
	Values() []any
}

// PacketRecord is the common shape for the PCAP-consuming packet-capture
// tools (tcpdump, netsniff-ng), which share the same L2/L3/L4/app fields.
type PacketRecord struct {
	Ts           time.Time
	SrcIP        string
	DestIP       string
	SrcPort      int
	DestPort     int
	Protocol     string
	Length       int
	TCPSyn       bool
	TCPAck       bool
	TCPFin       bool
	TTL          int
	HTTPHost     string
	DNSQuery     string
	TLSSNI       string
	ThreatScore  int
	IsSuspicious bool
	Country      string
}

func (r PacketRecord) Timestamp() time.Time { return r.Ts }

func (r PacketRecord) Values() []any {
	return []any{
		r.SrcIP, r.DestIP, r.SrcPort, r.DestPort, r.Protocol, r.Length,
		boolToInt(r.TCPSyn), boolToInt(r.TCPAck), boolToInt(r.TCPFin), r.TTL,
		r.HTTPHost, r.DNSQuery, r.TLSSNI, r.ThreatScore, boolToInt(r.IsSuspicious), r.Country,
	}
}

// TsharkRecord is tshark's richer packet shape (no TTL/SYN/ACK/FIN, but
// adds HTTP method/URI).
type TsharkRecord struct {
	Ts           time.Time
	SrcIP        string
	DestIP       string
	SrcPort      int
	DestPort     int
	Protocol     string
	Length       int
	HTTPMethod   string
	HTTPHost     string
	HTTPURI      string
	DNSQuery     string
	TLSSNI       string
	ThreatScore  int
	IsSuspicious bool
	Country      string
}

func (r TsharkRecord) Timestamp() time.Time { return r.Ts }

func (r TsharkRecord) Values() []any {
	return []any{
		r.SrcIP, r.DestIP, r.SrcPort, r.DestPort, r.Protocol, r.Length,
		r.HTTPMethod, r.HTTPHost, r.HTTPURI, r.DNSQuery, r.TLSSNI,
		r.ThreatScore, boolToInt(r.IsSuspicious), r.Country,
	}
}

// P0fRecord is an OS-fingerprint row.
type P0fRecord struct {
	Ts            time.Time
	SrcIP         string
	DestIP        string
	OSGuess       string
	LinkType      string
	Distance      int
	UptimeSeconds int
	RawSignature  string
}

func (r P0fRecord) Timestamp() time.Time { return r.Ts }

func (r P0fRecord) Values() []any {
	return []any{r.SrcIP, r.DestIP, r.OSGuess, r.LinkType, r.Distance, r.UptimeSeconds, r.RawSignature}
}

// NgrepRecord is a pattern-match row.
type NgrepRecord struct {
	Ts             time.Time
	SrcIP          string
	DestIP         string
	SrcPort        int
	DestPort       int
	Protocol       string
	MatchedPattern string
	PayloadExcerpt string
	ThreatScore    int
	IsSuspicious   bool
}

func (r NgrepRecord) Timestamp() time.Time { return r.Ts }

func (r NgrepRecord) Values() []any {
	return []any{
		r.SrcIP, r.DestIP, r.SrcPort, r.DestPort, r.Protocol,
		r.MatchedPattern, r.PayloadExcerpt, r.ThreatScore, boolToInt(r.IsSuspicious),
	}
}

// HTTPryRecord is an HTTP request row.
type HTTPryRecord struct {
	Ts           time.Time
	SrcIP        string
	DestIP       string
	Method       string
	Host         string
	URI          string
	UserAgent    string
	StatusCode   int
	ThreatScore  int
	IsSuspicious bool
}

func (r HTTPryRecord) Timestamp() time.Time { return r.Ts }

func (r HTTPryRecord) Values() []any {
	return []any{
		r.SrcIP, r.DestIP, r.Method, r.Host, r.URI, r.UserAgent,
		r.StatusCode, r.ThreatScore, boolToInt(r.IsSuspicious),
	}
}

// ArgusRecord is a flow row produced by the capture→analyse→`ra` pipeline.
type ArgusRecord struct {
	Ts           time.Time
	SrcIP        string
	DestIP       string
	SrcPort      int
	DestPort     int
	Protocol     string
	Packets      int64
	Bytes        int64
	DurationMs   int64
	FlowState    string
	ThreatScore  int
	IsSuspicious bool
}

func (r ArgusRecord) Timestamp() time.Time { return r.Ts }

func (r ArgusRecord) Values() []any {
	return []any{
		r.SrcIP, r.DestIP, r.SrcPort, r.DestPort, r.Protocol, r.Packets,
		r.Bytes, r.DurationMs, r.FlowState, r.ThreatScore, boolToInt(r.IsSuspicious),
	}
}

// IftopRecord is a bandwidth-per-connection row.
type IftopRecord struct {
	Ts            time.Time
	SrcIP         string
	DestIP        string
	BytesSent     int64
	BytesReceived int64
	BandwidthBps  float64
}

func (r IftopRecord) Timestamp() time.Time { return r.Ts }

func (r IftopRecord) Values() []any {
	return []any{r.SrcIP, r.DestIP, r.BytesSent, r.BytesReceived, r.BandwidthBps}
}

// NethogsRecord is a per-process bandwidth row.
type NethogsRecord struct {
	Ts            time.Time
	ProcessName   string
	PID           int
	LocalIP       string
	BytesSent     int64
	BytesReceived int64
}

func (r NethogsRecord) Timestamp() time.Time { return r.Ts }

func (r NethogsRecord) Values() []any {
	return []any{r.ProcessName, r.PID, r.LocalIP, r.BytesSent, r.BytesReceived}
}

// SuricataRecord carries one EVE JSON event, with EventType selecting
// which of the 11 category tables it belongs to and Fields holding the
// category-specific projection in schema-column order.
type SuricataRecord struct {
	Ts        time.Time
	EventType string
	Fields    []any
}

func (r SuricataRecord) Timestamp() time.Time { return r.Ts }
func (r SuricataRecord) Values() []any        { return r.Fields }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
