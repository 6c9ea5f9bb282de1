// Package models holds the shared domain types written to and read from
// the derived-state tables (devices, iot_vulnerabilities, security_alerts,
// alert_history, alert_rules, ai_analysis).
package models

import "time"

// DeviceType is the coarse classification assigned to every device.
type DeviceType string

const (
	DeviceTypeIoT      DeviceType = "IoT"
	DeviceTypeMobile   DeviceType = "Mobile"
	DeviceTypeComputer DeviceType = "Computer"
	DeviceTypeNetwork  DeviceType = "Network"
	DeviceTypeServer   DeviceType = "Server"
	DeviceTypeVirtual  DeviceType = "Virtual"
	DeviceTypeUnknown  DeviceType = "Unknown"
)

// Severity orders CRITICAL > HIGH > MEDIUM > LOW.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Rank returns a numeric ordering for severity comparisons; higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// AlertStatus is the lifecycle state of a security_alerts row.
type AlertStatus string

const (
	AlertStatusActive        AlertStatus = "active"
	AlertStatusResolved      AlertStatus = "resolved"
	AlertStatusFalsePositive AlertStatus = "false_positive"
)

// Device is the canonical `devices` row, keyed by IP address.
type Device struct {
	IPAddress      string
	MACAddress     string
	Hostname       string
	Vendor         string
	DeviceType     DeviceType
	DeviceCategory string
	SecurityScore  int
	IsTrusted      bool
	FirstSeen      time.Time
	LastSeen       time.Time
	TotalPackets   int64
	TotalBytes     int64
}

// Vulnerability is an `iot_vulnerabilities` row.
type Vulnerability struct {
	ID                int64
	DeviceIP          string
	VulnerabilityType string
	Severity          Severity
	Description       string
	Recommendation    string
	DetectedAt        time.Time
	Resolved          bool
	ResolvedAt        *time.Time
}

// Alert is a `security_alerts` row.
type Alert struct {
	AlertID                  string
	Severity                 Severity
	AlertType                string
	Title                    string
	Description              string
	SourceIP                 string
	AffectedDevices          []string
	ThreatIndicators         []string
	RemediationSteps         []string
	AutoRemediationAvailable bool
	AutoRemediationCommand   string
	Status                   AlertStatus
	CreatedAt                time.Time
	UpdatedAt                time.Time
	ResolvedAt               *time.Time
	ResolvedBy               string
	RecurrenceCount          int
	LastSeen                 time.Time
}

// AlertHistoryEntry is an append-only `alert_history` row.
type AlertHistoryEntry struct {
	ID        int64
	AlertID   string
	Action    string
	ActionBy  string
	Notes     string
	CreatedAt time.Time
}

// AlertRule is a declarative `alert_rules` row (§4.8 Phase 1).
type AlertRule struct {
	ID        int64
	Name      string
	RuleType  string
	Enabled   bool
	Params    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AIAnalysis is an append-only `ai_analysis` row.
type AIAnalysis struct {
	ID                  int64
	Timestamp           time.Time
	ThreatLevel         Severity
	NetworkHealthScore  int
	Summary             string
	ThreatsDetected     []byte // raw JSON array
	NetworkInsights     []byte // raw JSON object
	DeviceAnalysis      []byte // raw JSON object
	HTTPActivity        []byte // raw JSON array
	Recommendations     []byte // raw JSON array
	Provider            string
	Success             bool
	ErrorMessage        string
	RawProviderResponse string
}
