// Package vuln implements the Vulnerability Scanner (C7): per-cycle
// probing of IoT devices for risky open ports, suspicious connections,
// excess traffic, risky vendors and stale firmware, deduped against
// existing unresolved findings within a 24h window (§4.6).
package vuln

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/netguardpro/netguard/internal/models"
	"github.com/netguardpro/netguard/internal/oui"
	"github.com/netguardpro/netguard/internal/registry"
	"github.com/netguardpro/netguard/internal/store"
)

// riskyPorts is the fixed probe list from §4.6. telnet (23, 2323) is
// escalated to HIGH; everything else that answers is MEDIUM.
var riskyPorts = []int{21, 23, 2323, 80, 445, 1433, 3306, 3389, 5900, 8080, 8443, 8888}

var telnetPorts = map[int]bool{23: true, 2323: true}

// badDestPorts models known C2/mining-pool destination ports for the
// suspicious-connection check. A real deployment would source this from
// a threat-intel feed; the fixed set here covers the common defaults.
var badDestPorts = map[int]bool{
	4444:  true, // common metasploit/C2 handler default
	6667:  true, // IRC-based botnet C2
	8333:  true, // bitcoin/mining traffic
	14444: true, // stratum mining pool default
}

// trafficThresholds gives a per-category byte ceiling for the
// excess-traffic check (§4.6). Categories not listed fall back to
// defaultTrafficThreshold.
var trafficThresholds = map[string]int64{
	"Smart Light": 500 * 1024,
}

const defaultTrafficThreshold = 50 * 1024 * 1024

const (
	portProbeTimeout    = 500 * time.Millisecond
	firmwareStaleAfter  = 90 * 24 * time.Hour
	dedupWindow         = 24 * time.Hour
	activeDeviceWindow  = time.Hour
)

// probeRateLimit caps the combined TCP and SNMP probe rate so scanning a
// large device population doesn't burst the local network.
const probeRateLimit = 50 // probes/sec

// Scanner runs the C7 loop.
type Scanner struct {
	Store       *store.Store
	probeLimiter *rate.Limiter
}

func New(s *store.Store) *Scanner {
	return &Scanner{Store: s, probeLimiter: rate.NewLimiter(rate.Limit(probeRateLimit), probeRateLimit)}
}

// Cycle scans every IoT device seen within the last hour.
func (s *Scanner) Cycle(ctx context.Context) error {
	devices, err := s.iotDevices(ctx)
	if err != nil {
		return fmt.Errorf("vuln: list iot devices: %w", err)
	}

	badDestIPs, err := s.suspiciousDestinations(ctx, devices)
	if err != nil {
		log.Error().Err(err).Msg("vuln: suspicious-connection scan failed, continuing without it")
	}

	for _, d := range devices {
		s.scanDevice(ctx, d, badDestIPs)
	}
	return nil
}

func (s *Scanner) iotDevices(ctx context.Context) ([]models.Device, error) {
	cutoff := time.Now().UTC().Add(-activeDeviceWindow)
	rows, err := s.Store.DB().QueryContext(ctx, `
		SELECT ip_address, mac_address, hostname, vendor, device_type, device_category,
			security_score, is_trusted, first_seen, last_seen, total_packets, total_bytes
		FROM devices WHERE device_type = ? AND last_seen >= ?`,
		string(models.DeviceTypeIoT), cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Device
	for rows.Next() {
		var d models.Device
		var mac, hostname, vendor sql.NullString
		if err := rows.Scan(&d.IPAddress, &mac, &hostname, &vendor, &d.DeviceType, &d.DeviceCategory,
			&d.SecurityScore, &d.IsTrusted, &d.FirstSeen, &d.LastSeen, &d.TotalPackets, &d.TotalBytes); err != nil {
			return nil, err
		}
		d.MACAddress, d.Hostname, d.Vendor = mac.String, hostname.String, vendor.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// suspiciousDestinations reads latest(tcpdump) once per cycle and returns
// the set of device IPs that connected to a known-bad destination port.
func (s *Scanner) suspiciousDestinations(ctx context.Context, devices []models.Device) (map[string]bool, error) {
	result := make(map[string]bool)
	table, err := registry.Latest(ctx, s.Store.DB(), registry.ToolTcpdump)
	if err != nil || table == "" {
		return result, err
	}

	rows, err := s.Store.DB().QueryContext(ctx, fmt.Sprintf(`SELECT src_ip, dest_port FROM %q`, table))
	if err != nil {
		return result, fmt.Errorf("scan %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var srcIP string
		var destPort int
		if err := rows.Scan(&srcIP, &destPort); err != nil {
			return result, err
		}
		if badDestPorts[destPort] {
			result[srcIP] = true
		}
	}
	return result, rows.Err()
}

func (s *Scanner) scanDevice(ctx context.Context, d models.Device, suspiciousIPs map[string]bool) {
	if err := s.scanOpenPorts(ctx, d); err != nil {
		log.Error().Err(err).Str("ip", d.IPAddress).Msg("vuln: port probe failed")
	}

	if suspiciousIPs[d.IPAddress] {
		s.record(ctx, d.IPAddress, "suspicious_connection", models.SeverityHigh,
			"Device communicated with a known command-and-control or mining-pool destination port",
			"Isolate the device and inspect outbound connections")
	}

	threshold := defaultTrafficThreshold
	if t, ok := trafficThresholds[d.DeviceCategory]; ok {
		threshold = int(t)
	}
	if d.TotalBytes > int64(threshold) {
		s.record(ctx, d.IPAddress, "excess_traffic", models.SeverityMedium,
			"Device transferred more data than expected for its category, possible data exfiltration",
			"Review the device's network activity and restrict its outbound access if unexpected")
	}

	if oui.IsRiskyVendor(d.Vendor) {
		s.record(ctx, d.IPAddress, "default_credentials_risk", models.SeverityMedium,
			fmt.Sprintf("Vendor %q is commonly shipped with unchanged default credentials", d.Vendor),
			"Change the device's default admin credentials")
	}

	if err := s.probeLimiter.Wait(ctx); err == nil {
		if community := probeSNMPDefaults(d.IPAddress); community != "" {
			s.record(ctx, d.IPAddress, "default_credentials_risk", models.SeverityHigh,
				snmpFindingDescription(d.IPAddress, community),
				"Change the SNMP community string from its factory default or disable SNMP")
		}
	}

	if time.Since(d.FirstSeen) > firmwareStaleAfter {
		s.record(ctx, d.IPAddress, "stale_firmware", models.SeverityLow,
			"Device has not shown a recorded firmware update in over 90 days",
			"Check the manufacturer's site for firmware updates")
	}
}

func (s *Scanner) scanOpenPorts(ctx context.Context, d models.Device) error {
	for _, port := range riskyPorts {
		if err := s.probeLimiter.Wait(ctx); err != nil {
			return err
		}
		addr := net.JoinHostPort(d.IPAddress, fmt.Sprintf("%d", port))
		conn, err := net.DialTimeout("tcp", addr, portProbeTimeout)
		if err != nil {
			continue
		}
		conn.Close()

		severity := models.SeverityMedium
		if telnetPorts[port] {
			severity = models.SeverityHigh
		}
		s.record(ctx, d.IPAddress, "open_port", severity,
			fmt.Sprintf("Port %d is open and reachable", port),
			"Close the port or place the device behind a firewall rule")
	}
	return nil
}

// record inserts a finding unless an unresolved row of the same
// (device_ip, vulnerability_type) already exists within the dedup window.
func (s *Scanner) record(ctx context.Context, ip, vulnType string, severity models.Severity, description, recommendation string) {
	err := s.Store.WithTx(ctx, func(tx *sql.Tx) error {
		cutoff := time.Now().UTC().Add(-dedupWindow)
		var exists int
		err := tx.QueryRowContext(ctx, `
			SELECT 1 FROM iot_vulnerabilities
			WHERE device_ip = ? AND vulnerability_type = ? AND resolved = 0 AND detected_at >= ?
			LIMIT 1`, ip, vulnType, cutoff,
		).Scan(&exists)
		if err == nil {
			return nil // already have an unresolved row within the window
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("dedup check: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO iot_vulnerabilities (device_ip, vulnerability_type, severity, description, recommendation, detected_at, resolved)
			VALUES (?, ?, ?, ?, ?, ?, 0)`,
			ip, vulnType, string(severity), description, recommendation, time.Now().UTC(),
		)
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("ip", ip).Str("type", vulnType).Msg("vuln: record finding failed")
	}
}
