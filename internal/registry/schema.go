package registry

import (
	"fmt"
	"strings"
)

// columnSets holds the fixed column list (minus the auto-filled
// `timestamp`/`created_at`) for every tool's row shape. Each tool has a
// distinct record type upstream (internal/parsers); this is its storage
// projection.
var columnSets = map[Tool][]string{
	ToolTcpdump: {
		"src_ip TEXT", "dest_ip TEXT", "src_port INTEGER", "dest_port INTEGER",
		"protocol TEXT", "length INTEGER", "tcp_syn INTEGER", "tcp_ack INTEGER",
		"tcp_fin INTEGER", "ttl INTEGER", "http_host TEXT", "dns_query TEXT",
		"tls_sni TEXT", "threat_score INTEGER", "is_suspicious INTEGER", "country TEXT",
	},
	ToolTshark: {
		"src_ip TEXT", "dest_ip TEXT", "src_port INTEGER", "dest_port INTEGER",
		"protocol TEXT", "length INTEGER", "http_method TEXT", "http_host TEXT",
		"http_uri TEXT", "dns_query TEXT", "tls_sni TEXT", "threat_score INTEGER",
		"is_suspicious INTEGER", "country TEXT",
	},
	ToolP0f: {
		"src_ip TEXT", "dest_ip TEXT", "os_guess TEXT", "link_type TEXT",
		"distance INTEGER", "uptime_seconds INTEGER", "raw_signature TEXT",
	},
	ToolNgrep: {
		"src_ip TEXT", "dest_ip TEXT", "src_port INTEGER", "dest_port INTEGER",
		"protocol TEXT", "matched_pattern TEXT", "payload_excerpt TEXT",
		"threat_score INTEGER", "is_suspicious INTEGER",
	},
	ToolHTTPry: {
		"src_ip TEXT", "dest_ip TEXT", "method TEXT", "host TEXT", "uri TEXT",
		"user_agent TEXT", "status_code INTEGER", "threat_score INTEGER", "is_suspicious INTEGER",
	},
	ToolArgus: {
		"src_ip TEXT", "dest_ip TEXT", "src_port INTEGER", "dest_port INTEGER",
		"protocol TEXT", "packets INTEGER", "bytes INTEGER", "duration_ms INTEGER",
		"flow_state TEXT", "threat_score INTEGER", "is_suspicious INTEGER",
	},
	ToolNetsniff: {
		"src_ip TEXT", "dest_ip TEXT", "src_port INTEGER", "dest_port INTEGER",
		"protocol TEXT", "length INTEGER", "tcp_syn INTEGER", "tcp_ack INTEGER",
		"tcp_fin INTEGER", "ttl INTEGER", "http_host TEXT", "dns_query TEXT",
		"tls_sni TEXT", "threat_score INTEGER", "is_suspicious INTEGER", "country TEXT",
	},
	ToolIftop: {
		"src_ip TEXT", "dest_ip TEXT", "bytes_sent INTEGER", "bytes_received INTEGER",
		"bandwidth_bps REAL",
	},
	ToolNethogs: {
		"process_name TEXT", "pid INTEGER", "local_ip TEXT", "bytes_sent INTEGER",
		"bytes_received INTEGER",
	},
}

// suricataColumnSets gives each EVE event type its own projection,
// reflecting §4.3's "11 separate category tables".
var suricataColumnSets = map[string][]string{
	"alert":    {"src_ip TEXT", "dest_ip TEXT", "src_port INTEGER", "dest_port INTEGER", "signature TEXT", "category TEXT", "severity INTEGER"},
	"dns":      {"src_ip TEXT", "dest_ip TEXT", "query TEXT", "query_type TEXT", "rcode TEXT", "answer TEXT"},
	"http":     {"src_ip TEXT", "dest_ip TEXT", "hostname TEXT", "url TEXT", "method TEXT", "status INTEGER", "user_agent TEXT"},
	"tls":      {"src_ip TEXT", "dest_ip TEXT", "sni TEXT", "version TEXT", "subject TEXT", "issuer TEXT", "ja3 TEXT"},
	"flow":     {"src_ip TEXT", "dest_ip TEXT", "src_port INTEGER", "dest_port INTEGER", "proto TEXT", "bytes_toserver INTEGER", "bytes_toclient INTEGER", "state TEXT"},
	"fileinfo": {"src_ip TEXT", "dest_ip TEXT", "filename TEXT", "file_size INTEGER", "magic TEXT", "md5 TEXT"},
	"ssh":      {"src_ip TEXT", "dest_ip TEXT", "client_software TEXT", "server_software TEXT", "protocol_version TEXT"},
	"smtp":     {"src_ip TEXT", "dest_ip TEXT", "mail_from TEXT", "rcpt_to TEXT", "helo TEXT"},
	"dhcp":     {"client_mac TEXT", "assigned_ip TEXT", "hostname TEXT", "dhcp_type TEXT"},
	"stats":    {"uptime_seconds INTEGER", "packets_captured INTEGER", "packets_dropped INTEGER"},
	"anomaly":  {"src_ip TEXT", "dest_ip TEXT", "event_type TEXT", "anomaly_type TEXT"},
}

// ColumnNames returns the bare column names (no type) for tool, in the
// same order parsers.Record.Values() produces them, so callers can build
// an explicit INSERT column list instead of relying on table column order.
func ColumnNames(tool Tool) ([]string, error) {
	cols, ok := columnSets[tool]
	if !ok {
		if eventType, isSuricata := strings.CutPrefix(string(tool), "suricata_"); isSuricata {
			cols, ok = suricataColumnSets[eventType]
		}
	}
	if !ok {
		return nil, fmt.Errorf("no schema registered for tool %q", tool)
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		name, _, _ := strings.Cut(c, " ")
		names[i] = name
	}
	return names, nil
}

func schemaFor(tool Tool, tableName string) (string, error) {
	cols, ok := columnSets[tool]
	if !ok {
		if eventType, isSuricata := strings.CutPrefix(string(tool), "suricata_"); isSuricata {
			cols, ok = suricataColumnSets[eventType]
		}
	}
	if !ok {
		return "", fmt.Errorf("no schema registered for tool %q", tool)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %q (\n", tableName)
	b.WriteString("\tid INTEGER PRIMARY KEY AUTOINCREMENT,\n")
	b.WriteString("\ttimestamp DATETIME NOT NULL,\n")
	for _, c := range cols {
		fmt.Fprintf(&b, "\t%s,\n", c)
	}
	b.WriteString("\tcreated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP\n")
	b.WriteString(")")
	return b.String(), nil
}
