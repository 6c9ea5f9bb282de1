// Package aiaggregator implements the AI Aggregator (C10): periodic
// snapshot building, provider-neutral prompt rendering, dispatch to the
// provider chain, response parsing and persistence to ai_analysis
// (§4.9).
package aiaggregator

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/netguardpro/netguard/internal/registry"
	"github.com/netguardpro/netguard/internal/store"
)

// toolSampleCaps mirrors §4.9 step 1's "tool-specific caps: 50-200".
var toolSampleCaps = map[registry.Tool]int{
	registry.ToolTcpdump:  200,
	registry.ToolTshark:   200,
	registry.ToolP0f:      100,
	registry.ToolNgrep:    100,
	registry.ToolHTTPry:   150,
	registry.ToolArgus:    150,
	registry.ToolNetsniff: 100,
	registry.ToolIftop:    50,
	registry.ToolNethogs:  50,
}

const suricataSampleCap = 50

// Snapshot is the structured document built each cycle before rendering
// into a prompt.
type Snapshot struct {
	ToolSamples     map[string][]map[string]any
	NetworkSummary  NetworkSummary
	IoTDevices      []IoTDeviceSummary
	IoTSecurity     []VulnSummary
}

type NetworkSummary struct {
	DeviceCount    int
	UniqueDevices  []string
	OSDistribution map[string]int
}

type IoTDeviceSummary struct {
	IPAddress string
	Hostname  string
	Category  string
}

type VulnSummary struct {
	DeviceIP    string
	Type        string
	Severity    string
	Description string
}

// BuildSnapshot reads latest(tool) for every supported tool plus
// derived state, sampling each tool's rows up to its cap.
func BuildSnapshot(ctx context.Context, s *store.Store, dataWindowMaxRows int) (*Snapshot, error) {
	snap := &Snapshot{ToolSamples: make(map[string][]map[string]any)}

	for tool, cap := range toolSampleCaps {
		limit := cap
		if dataWindowMaxRows > 0 && dataWindowMaxRows < limit {
			limit = dataWindowMaxRows
		}
		rows, err := sampleLatest(ctx, s, tool, limit)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", tool, err)
		}
		snap.ToolSamples[string(tool)] = rows
	}

	for _, eventType := range registry.SuricataEventTypes {
		rows, err := sampleLatest(ctx, s, registry.SuricataTool(eventType), suricataSampleCap)
		if err != nil {
			return nil, fmt.Errorf("sample suricata_%s: %w", eventType, err)
		}
		snap.ToolSamples["suricata_"+eventType] = rows
	}

	summary, err := buildNetworkSummary(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("network summary: %w", err)
	}
	snap.NetworkSummary = summary

	devices, err := buildIoTDevices(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("iot devices: %w", err)
	}
	snap.IoTDevices = devices

	vulns, err := buildIoTSecurity(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("iot security: %w", err)
	}
	snap.IoTSecurity = vulns

	return snap, nil
}

func sampleLatest(ctx context.Context, s *store.Store, tool registry.Tool, limit int) ([]map[string]any, error) {
	table, err := registry.Latest(ctx, s.DB(), tool)
	if err != nil || table == "" {
		return nil, err
	}

	rows, err := s.DB().QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %q ORDER BY id DESC LIMIT ?`, table), limit)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func buildNetworkSummary(ctx context.Context, s *store.Store) (NetworkSummary, error) {
	var summary NetworkSummary
	summary.OSDistribution = make(map[string]int)

	rows, err := s.DB().QueryContext(ctx, `SELECT ip_address FROM devices`)
	if err != nil {
		return summary, err
	}
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			rows.Close()
			return summary, err
		}
		summary.UniqueDevices = append(summary.UniqueDevices, ip)
	}
	rows.Close()
	summary.DeviceCount = len(summary.UniqueDevices)

	p0fTable, err := registry.Latest(ctx, s.DB(), registry.ToolP0f)
	if err == nil && p0fTable != "" {
		osRows, err := s.DB().QueryContext(ctx, fmt.Sprintf(`SELECT os_guess FROM %q WHERE os_guess IS NOT NULL AND os_guess != ''`, p0fTable))
		if err == nil {
			for osRows.Next() {
				var guess string
				if err := osRows.Scan(&guess); err == nil {
					summary.OSDistribution[normalizeOS(guess)]++
				}
			}
			osRows.Close()
		}
	}
	return summary, nil
}

func normalizeOS(guess string) string {
	g := strings.ToLower(guess)
	switch {
	case strings.Contains(g, "linux"):
		return "Linux"
	case strings.Contains(g, "windows"):
		return "Windows"
	case strings.Contains(g, "mac") || strings.Contains(g, "ios"):
		return "Apple"
	case strings.Contains(g, "android"):
		return "Android"
	default:
		return "Other"
	}
}

func buildIoTDevices(ctx context.Context, s *store.Store) ([]IoTDeviceSummary, error) {
	rows, err := s.DB().QueryContext(ctx, `
		SELECT ip_address, hostname, device_category FROM devices
		WHERE device_type = 'IoT' ORDER BY last_seen DESC LIMIT 100`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IoTDeviceSummary
	for rows.Next() {
		var d IoTDeviceSummary
		var hostname sql.NullString
		if err := rows.Scan(&d.IPAddress, &hostname, &d.Category); err != nil {
			return nil, err
		}
		d.Hostname = hostname.String
		out = append(out, d)
	}
	return out, rows.Err()
}

func buildIoTSecurity(ctx context.Context, s *store.Store) ([]VulnSummary, error) {
	rows, err := s.DB().QueryContext(ctx, `
		SELECT device_ip, vulnerability_type, severity, description FROM iot_vulnerabilities
		WHERE resolved = 0
		ORDER BY CASE severity WHEN 'CRITICAL' THEN 4 WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 ELSE 1 END DESC
		LIMIT 50`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VulnSummary
	for rows.Next() {
		var v VulnSummary
		if err := rows.Scan(&v.DeviceIP, &v.Type, &v.Severity, &v.Description); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
