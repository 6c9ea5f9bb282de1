package parsers

import (
	"bufio"
	"encoding/json"
	"strings"
	"time"

	"github.com/netguardpro/netguard/internal/registry"
)

// eveEvent is the subset of Suricata's EVE JSON fields this collector
// projects into the 11 event-type tables (§4.3).
type eveEvent struct {
	Timestamp string `json:"timestamp"`
	EventType string `json:"event_type"`
	SrcIP     string `json:"src_ip"`
	DestIP    string `json:"dest_ip"`
	SrcPort   int    `json:"src_port"`
	DestPort  int    `json:"dest_port"`
	Proto     string `json:"proto"`

	Alert *struct {
		Signature string `json:"signature"`
		Category  string `json:"category"`
		Severity  int    `json:"severity"`
	} `json:"alert"`

	DNS *struct {
		Type    string `json:"type"`
		RRName  string `json:"rrname"`
		RRType  string `json:"rrtype"`
		Rcode   string `json:"rcode"`
		Answers []struct {
			RData string `json:"rdata"`
		} `json:"answers"`
	} `json:"dns"`

	HTTP *struct {
		Hostname  string `json:"hostname"`
		URL       string `json:"url"`
		Method    string `json:"http_method"`
		Status    int    `json:"status"`
		UserAgent string `json:"http_user_agent"`
	} `json:"http"`

	TLS *struct {
		SNI     string `json:"sni"`
		Version string `json:"version"`
		Subject string `json:"subject"`
		Issuer  string `json:"issuerdn"`
		JA3     struct {
			Hash string `json:"hash"`
		} `json:"ja3"`
	} `json:"tls"`

	Flow *struct {
		BytesToserver int64  `json:"bytes_toserver"`
		BytesToclient int64  `json:"bytes_toclient"`
		State         string `json:"state"`
	} `json:"flow"`

	Fileinfo *struct {
		Filename string `json:"filename"`
		Size     int64  `json:"size"`
		Magic    string `json:"magic"`
		MD5      string `json:"md5"`
	} `json:"fileinfo"`

	SSH *struct {
		Client struct {
			Software string `json:"software_version"`
		} `json:"client"`
		Server struct {
			Software        string `json:"software_version"`
			ProtocolVersion string `json:"proto_version"`
		} `json:"server"`
	} `json:"ssh"`

	SMTP *struct {
		MailFrom string `json:"mail_from"`
		RcptTo   string `json:"rcpt_to,omitempty"`
		Helo     string `json:"helo"`
	} `json:"smtp"`

	DHCP *struct {
		ClientMAC  string `json:"client_mac"`
		AssignedIP string `json:"assigned_ip"`
		Hostname   string `json:"hostname"`
		DHCPType   string `json:"dhcp_type"`
	} `json:"dhcp"`

	Stats *struct {
		UptimeSec        int   `json:"uptime"`
		CapturedPackets  int64 `json:"pkts"`
		DroppedPackets   int64 `json:"drop"`
	} `json:"stats"`

	Anomaly *struct {
		Type  string `json:"type"`
		Event string `json:"event"`
	} `json:"anomaly"`
}

// ParseSuricataEVE consumes complete newline-delimited EVE JSON lines
// from chunk (one JSON object per line is Suricata's native format) and
// dispatches each into the SuricataRecord shape for its event type.
// Unrecognised event types and malformed lines are skipped rather than
// aborting the whole chunk. basePos/returned offset follow the same
// partial-last-line convention as the other line-oriented parsers.
func ParseSuricataEVE(chunk []byte, basePos int64) ([]Record, int64) {
	text := string(chunk)
	lastNewline := strings.LastIndexByte(text, '\n')
	if lastNewline < 0 {
		return nil, basePos
	}
	complete := text[:lastNewline+1]

	var records []Record
	scanner := bufio.NewScanner(strings.NewReader(complete))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var evt eveEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			continue
		}
		if rec, ok := suricataRecordFor(evt); ok {
			records = append(records, rec)
		}
	}
	return records, basePos + int64(len(complete))
}

func suricataRecordFor(evt eveEvent) (Record, bool) {
	ts, err := time.Parse(time.RFC3339Nano, evt.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}

	var fields []any
	switch evt.EventType {
	case "alert":
		if evt.Alert == nil {
			return nil, false
		}
		fields = []any{evt.SrcIP, evt.DestIP, evt.SrcPort, evt.DestPort, evt.Alert.Signature, evt.Alert.Category, evt.Alert.Severity}
	case "dns":
		if evt.DNS == nil {
			return nil, false
		}
		answer := ""
		if len(evt.DNS.Answers) > 0 {
			answer = evt.DNS.Answers[0].RData
		}
		fields = []any{evt.SrcIP, evt.DestIP, evt.DNS.RRName, evt.DNS.RRType, evt.DNS.Rcode, answer}
	case "http":
		if evt.HTTP == nil {
			return nil, false
		}
		fields = []any{evt.SrcIP, evt.DestIP, evt.HTTP.Hostname, evt.HTTP.URL, evt.HTTP.Method, evt.HTTP.Status, evt.HTTP.UserAgent}
	case "tls":
		if evt.TLS == nil {
			return nil, false
		}
		fields = []any{evt.SrcIP, evt.DestIP, evt.TLS.SNI, evt.TLS.Version, evt.TLS.Subject, evt.TLS.Issuer, evt.TLS.JA3.Hash}
	case "flow":
		if evt.Flow == nil {
			return nil, false
		}
		fields = []any{evt.SrcIP, evt.DestIP, evt.SrcPort, evt.DestPort, evt.Proto, evt.Flow.BytesToserver, evt.Flow.BytesToclient, evt.Flow.State}
	case "fileinfo":
		if evt.Fileinfo == nil {
			return nil, false
		}
		fields = []any{evt.SrcIP, evt.DestIP, evt.Fileinfo.Filename, evt.Fileinfo.Size, evt.Fileinfo.Magic, evt.Fileinfo.MD5}
	case "ssh":
		if evt.SSH == nil {
			return nil, false
		}
		fields = []any{evt.SrcIP, evt.DestIP, evt.SSH.Client.Software, evt.SSH.Server.Software, evt.SSH.Server.ProtocolVersion}
	case "smtp":
		if evt.SMTP == nil {
			return nil, false
		}
		fields = []any{evt.SrcIP, evt.DestIP, evt.SMTP.MailFrom, evt.SMTP.RcptTo, evt.SMTP.Helo}
	case "dhcp":
		if evt.DHCP == nil {
			return nil, false
		}
		fields = []any{evt.DHCP.ClientMAC, evt.DHCP.AssignedIP, evt.DHCP.Hostname, evt.DHCP.DHCPType}
	case "stats":
		if evt.Stats == nil {
			return nil, false
		}
		fields = []any{evt.Stats.UptimeSec, evt.Stats.CapturedPackets, evt.Stats.DroppedPackets}
	case "anomaly":
		if evt.Anomaly == nil {
			return nil, false
		}
		fields = []any{evt.SrcIP, evt.DestIP, evt.Anomaly.Event, evt.Anomaly.Type}
	default:
		return nil, false
	}

	return SuricataRecord{Ts: ts, EventType: evt.EventType, Fields: fields}, true
}

// SuricataTableTool maps an EVE event type to its registry Tool for
// table naming/creation, delegating to the registry's own mapping so
// the two stay in lockstep.
func SuricataTableTool(eventType string) registry.Tool {
	return registry.SuricataTool(eventType)
}
