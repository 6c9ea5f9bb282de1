package alertengine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/netguardpro/netguard/internal/models"
	"github.com/netguardpro/netguard/internal/netutil"
	"github.com/netguardpro/netguard/internal/registry"
)

// Draft is one Phase 1 detection before dedup/persistence (§4.8).
type Draft struct {
	Severity                 models.Severity
	AlertType                string
	Title                    string
	Description              string
	SourceIP                 string
	AffectedDevices          []string
	ThreatIndicators         []string
	RemediationSteps         []string
	AutoRemediationAvailable bool
	AutoRemediationCommand   string
}

// RuleParams is the decoded `params` JSON blob of an alert_rules row.
// Fields are optional per rule_type; zero values fall back to the
// built-in default for that rule.
type RuleParams struct {
	WindowMinutes    int      `json:"window_minutes"`
	Threshold        int      `json:"threshold"`
	ThresholdBytes   int64    `json:"threshold_bytes"`
	MaxLabelLength   int      `json:"max_label_length"`
	QueryRatePerMin  int      `json:"query_rate_per_minute"`
	IndicatorIPs     []string `json:"indicator_ips"`
}

func (p RuleParams) window(defMinutes int) time.Duration {
	m := p.WindowMinutes
	if m <= 0 {
		m = defMinutes
	}
	return time.Duration(m) * time.Minute
}

func (p RuleParams) threshold(def int) int {
	if p.Threshold <= 0 {
		return def
	}
	return p.Threshold
}

// evaluator is implemented by each built-in rule family.
type evaluator func(ctx context.Context, db *sql.DB, params RuleParams) ([]Draft, error)

var evaluators = map[string]evaluator{
	"port_scan":      evaluatePortScan,
	"brute_force":    evaluateBruteForce,
	"outbound_bytes": evaluateOutboundBytes,
	"iot_compromise": evaluateIoTCompromise,
	"malware_c2":     evaluateMalwareC2,
	"dns_tunneling":  evaluateDNSTunnelling,
}

// evaluatePortScan flags a source IP that has hit more than the
// threshold of distinct external destination ports within the window
// (§4.8, §8 scenario 1: strict ">", not "≥").
func evaluatePortScan(ctx context.Context, db *sql.DB, params RuleParams) ([]Draft, error) {
	table, err := registry.Latest(ctx, db, registry.ToolTcpdump)
	if err != nil || table == "" {
		return nil, err
	}
	window := params.window(5)
	threshold := params.threshold(20)
	cutoff := time.Now().UTC().Add(-window)

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT src_ip, dest_ip, dest_port FROM %q
		WHERE tcp_syn = 1 AND tcp_ack = 0 AND timestamp >= ?`, table), cutoff)
	if err != nil {
		return nil, fmt.Errorf("port_scan scan %s: %w", table, err)
	}
	defer rows.Close()

	portsBySource := make(map[string]map[int]bool)
	for rows.Next() {
		var srcIP, destIP string
		var destPort int
		if err := rows.Scan(&srcIP, &destIP, &destPort); err != nil {
			return nil, err
		}
		if netutil.IsPrivate(destIP) || netutil.IsMulticast(destIP) {
			continue
		}
		if portsBySource[srcIP] == nil {
			portsBySource[srcIP] = make(map[int]bool)
		}
		portsBySource[srcIP][destPort] = true
	}

	var drafts []Draft
	for src, ports := range portsBySource {
		if len(ports) <= threshold {
			continue
		}
		drafts = append(drafts, Draft{
			Severity:                 models.SeverityHigh,
			AlertType:                "port_scan",
			Title:                    fmt.Sprintf("Port scan detected from %s", src),
			Description:              fmt.Sprintf("%s contacted %d distinct destination ports within %s", src, len(ports), window),
			SourceIP:                 src,
			AffectedDevices:          []string{src},
			ThreatIndicators:         []string{fmt.Sprintf("%d distinct destination ports", len(ports))},
			RemediationSteps:         []string{"Investigate the source device", "Consider blocking outbound traffic from this IP"},
			AutoRemediationAvailable: true,
			AutoRemediationCommand:   fmt.Sprintf("iptables -A OUTPUT -s %s -j DROP", src),
		})
	}
	return drafts, rows.Err()
}

// evaluateBruteForce flags repeated failed-auth events, fed by Suricata's
// alert category (§4.8).
func evaluateBruteForce(ctx context.Context, db *sql.DB, params RuleParams) ([]Draft, error) {
	table, err := registry.Latest(ctx, db, registry.SuricataTool("alert"))
	if err != nil || table == "" {
		return nil, err
	}
	window := params.window(10)
	threshold := params.threshold(5)
	cutoff := time.Now().UTC().Add(-window)

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT src_ip, dest_ip FROM %q
		WHERE timestamp >= ? AND (lower(category) LIKE '%%brute%%' OR lower(signature) LIKE '%%failed%%login%%' OR lower(signature) LIKE '%%auth%%fail%%')`,
		table), cutoff)
	if err != nil {
		return nil, fmt.Errorf("brute_force scan %s: %w", table, err)
	}
	defer rows.Close()

	countsBySource := make(map[string]int)
	targetsBySource := make(map[string]map[string]bool)
	for rows.Next() {
		var srcIP, destIP string
		if err := rows.Scan(&srcIP, &destIP); err != nil {
			return nil, err
		}
		countsBySource[srcIP]++
		if targetsBySource[srcIP] == nil {
			targetsBySource[srcIP] = make(map[string]bool)
		}
		targetsBySource[srcIP][destIP] = true
	}

	var drafts []Draft
	for src, count := range countsBySource {
		if count <= threshold {
			continue
		}
		var targets []string
		for ip := range targetsBySource[src] {
			targets = append(targets, ip)
		}
		drafts = append(drafts, Draft{
			Severity:         models.SeverityHigh,
			AlertType:        "brute_force",
			Title:            fmt.Sprintf("Brute-force authentication attempts from %s", src),
			Description:      fmt.Sprintf("%d failed authentication events from %s within %s", count, src, window),
			SourceIP:         src,
			AffectedDevices:  targets,
			ThreatIndicators: []string{fmt.Sprintf("%d failed auth events", count)},
			RemediationSteps: []string{"Lock out the offending source", "Rotate credentials on affected devices"},
		})
	}
	return drafts, rows.Err()
}

// evaluateOutboundBytes flags a single local device exceeding a byte
// threshold to external destinations within the window.
func evaluateOutboundBytes(ctx context.Context, db *sql.DB, params RuleParams) ([]Draft, error) {
	table, err := registry.Latest(ctx, db, registry.ToolArgus)
	if err != nil || table == "" {
		return nil, err
	}
	window := params.window(15)
	threshold := params.ThresholdBytes
	if threshold <= 0 {
		threshold = 100 * 1024 * 1024
	}
	cutoff := time.Now().UTC().Add(-window)

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT src_ip, dest_ip, bytes FROM %q WHERE timestamp >= ?`, table), cutoff)
	if err != nil {
		return nil, fmt.Errorf("outbound_bytes scan %s: %w", table, err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var srcIP, destIP string
		var b int64
		if err := rows.Scan(&srcIP, &destIP, &b); err != nil {
			return nil, err
		}
		if netutil.IsPrivate(destIP) {
			continue
		}
		totals[srcIP] += b
	}

	var drafts []Draft
	for src, total := range totals {
		if total <= threshold {
			continue
		}
		drafts = append(drafts, Draft{
			Severity:         models.SeverityMedium,
			AlertType:        "outbound_bytes",
			Title:            fmt.Sprintf("Unusually high outbound traffic from %s", src),
			Description:      fmt.Sprintf("%s sent %d bytes to external destinations within %s", src, total, window),
			SourceIP:         src,
			AffectedDevices:  []string{src},
			ThreatIndicators: []string{fmt.Sprintf("%d bytes outbound", total)},
			RemediationSteps: []string{"Review what process on the device is generating this traffic"},
		})
	}
	return drafts, rows.Err()
}

// evaluateIoTCompromise flags IoT devices with ≥2 unresolved
// CRITICAL/HIGH vulnerabilities.
func evaluateIoTCompromise(ctx context.Context, db *sql.DB, params RuleParams) ([]Draft, error) {
	threshold := params.threshold(2)
	rows, err := db.QueryContext(ctx, `
		SELECT v.device_ip, COUNT(*) FROM iot_vulnerabilities v
		JOIN devices d ON d.ip_address = v.device_ip
		WHERE d.device_type = 'IoT' AND v.resolved = 0 AND v.severity IN ('CRITICAL', 'HIGH')
		GROUP BY v.device_ip`)
	if err != nil {
		return nil, fmt.Errorf("iot_compromise scan: %w", err)
	}
	defer rows.Close()

	var drafts []Draft
	for rows.Next() {
		var ip string
		var count int
		if err := rows.Scan(&ip, &count); err != nil {
			return nil, err
		}
		if count < threshold {
			continue
		}
		drafts = append(drafts, Draft{
			Severity:         models.SeverityCritical,
			AlertType:        "iot_compromise",
			Title:            fmt.Sprintf("Possible IoT device compromise: %s", ip),
			Description:      fmt.Sprintf("%s has %d unresolved high-severity vulnerabilities", ip, count),
			SourceIP:         ip,
			AffectedDevices:  []string{ip},
			ThreatIndicators: []string{fmt.Sprintf("%d unresolved CRITICAL/HIGH vulnerabilities", count)},
			RemediationSteps: []string{"Isolate the device", "Apply firmware updates or replace the device"},
		})
	}
	return drafts, rows.Err()
}

// evaluateMalwareC2 flags outbound connections to an IP in the
// configured indicator list.
func evaluateMalwareC2(ctx context.Context, db *sql.DB, params RuleParams) ([]Draft, error) {
	if len(params.IndicatorIPs) == 0 {
		return nil, nil
	}
	table, err := registry.Latest(ctx, db, registry.ToolTcpdump)
	if err != nil || table == "" {
		return nil, err
	}

	indicators := make(map[string]bool, len(params.IndicatorIPs))
	for _, ip := range params.IndicatorIPs {
		indicators[ip] = true
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT src_ip, dest_ip FROM %q`, table))
	if err != nil {
		return nil, fmt.Errorf("malware_c2 scan %s: %w", table, err)
	}
	defer rows.Close()

	seen := make(map[string]string)
	for rows.Next() {
		var srcIP, destIP string
		if err := rows.Scan(&srcIP, &destIP); err != nil {
			return nil, err
		}
		if indicators[destIP] {
			seen[srcIP] = destIP
		}
	}

	var drafts []Draft
	for src, dst := range seen {
		drafts = append(drafts, Draft{
			Severity:         models.SeverityCritical,
			AlertType:        "malware_c2",
			Title:            fmt.Sprintf("Possible malware C2 traffic from %s", src),
			Description:      fmt.Sprintf("%s connected to known-bad indicator IP %s", src, dst),
			SourceIP:         src,
			AffectedDevices:  []string{src},
			ThreatIndicators: []string{dst},
			RemediationSteps: []string{"Isolate the device immediately", "Run a full malware scan"},
		})
	}
	return drafts, rows.Err()
}

// evaluateDNSTunnelling flags abnormally long DNS query labels or
// abnormally high query rates, fed by Suricata's dns category.
func evaluateDNSTunnelling(ctx context.Context, db *sql.DB, params RuleParams) ([]Draft, error) {
	table, err := registry.Latest(ctx, db, registry.SuricataTool("dns"))
	if err != nil || table == "" {
		return nil, err
	}
	maxLabel := params.MaxLabelLength
	if maxLabel <= 0 {
		maxLabel = 50
	}
	rateLimit := params.QueryRatePerMin
	if rateLimit <= 0 {
		rateLimit = 120
	}
	window := time.Minute
	cutoff := time.Now().UTC().Add(-window)

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT src_ip, query FROM %q WHERE timestamp >= ?`, table), cutoff)
	if err != nil {
		return nil, fmt.Errorf("dns_tunneling scan %s: %w", table, err)
	}
	defer rows.Close()

	queryCount := make(map[string]int)
	longLabelSources := make(map[string]string)
	for rows.Next() {
		var srcIP, query string
		if err := rows.Scan(&srcIP, &query); err != nil {
			return nil, err
		}
		queryCount[srcIP]++
		for _, label := range strings.Split(query, ".") {
			if len(label) > maxLabel {
				longLabelSources[srcIP] = query
				break
			}
		}
	}

	var drafts []Draft
	seen := make(map[string]bool)
	for src, query := range longLabelSources {
		seen[src] = true
		drafts = append(drafts, Draft{
			Severity:         models.SeverityHigh,
			AlertType:        "dns_tunneling",
			Title:            fmt.Sprintf("Possible DNS tunnelling from %s", src),
			Description:      fmt.Sprintf("%s issued an abnormally long DNS query label: %s", src, query),
			SourceIP:         src,
			AffectedDevices:  []string{src},
			ThreatIndicators: []string{"oversized DNS query label"},
			RemediationSteps: []string{"Inspect the device for tunnelling/exfiltration tooling"},
		})
	}
	for src, count := range queryCount {
		if seen[src] || count <= rateLimit {
			continue
		}
		drafts = append(drafts, Draft{
			Severity:         models.SeverityMedium,
			AlertType:        "dns_tunneling",
			Title:            fmt.Sprintf("Abnormal DNS query rate from %s", src),
			Description:      fmt.Sprintf("%s issued %d DNS queries within %s", src, count, window),
			SourceIP:         src,
			AffectedDevices:  []string{src},
			ThreatIndicators: []string{fmt.Sprintf("%d queries/min", count)},
			RemediationSteps: []string{"Inspect the device for tunnelling/exfiltration tooling"},
		})
	}
	return drafts, rows.Err()
}
