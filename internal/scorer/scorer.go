// Package scorer implements the Scorer (C8): the per-device security
// score computation from §4.7, writing back to devices.security_score.
package scorer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netguardpro/netguard/internal/models"
	"github.com/netguardpro/netguard/internal/registry"
	"github.com/netguardpro/netguard/internal/store"
)

const (
	staleAfter        = 24 * time.Hour
	minWebSample      = 10
	unencryptedHigh   = 0.70
	unencryptedMedium = 0.40
)

// Result carries one device's computed score and the ordered reasons
// behind it, for observability (§4.7: "Each evaluation also emits an
// ordered reason list").
type Result struct {
	IPAddress string
	Score     int
	Grade     string
	Reasons   []string
}

// Scorer runs the C8 pass.
type Scorer struct {
	Store *store.Store
}

func New(s *store.Store) *Scorer {
	return &Scorer{Store: s}
}

// Cycle recomputes every device's score. Running it twice without
// intervening changes is a no-op on security_score (§8 idempotence).
func (s *Scorer) Cycle(ctx context.Context) ([]Result, error) {
	devices, err := s.loadDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("scorer: load devices: %w", err)
	}

	webRatios, err := s.unencryptedWebRatios(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scorer: web-traffic ratio scan failed, skipping that penalty")
	}

	var results []Result
	for _, d := range devices {
		maxSeverity, err := s.maxUnresolvedSeverity(ctx, d.IPAddress)
		if err != nil {
			log.Error().Err(err).Str("ip", d.IPAddress).Msg("scorer: vulnerability lookup failed")
		}

		result := Evaluate(d, maxSeverity, webRatios[d.IPAddress])
		if err := s.writeBack(ctx, result); err != nil {
			log.Error().Err(err).Str("ip", d.IPAddress).Msg("scorer: write-back failed")
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

// Evaluate computes the score formula from §4.7 for one device. The
// unencrypted-web penalty applies only when ratio counts at least
// minWebSample (10) web connections.
func Evaluate(d models.Device, maxVulnSeverity models.Severity, ratio webRatio) Result {
	score := 100
	var reasons []string

	if d.Hostname == "" {
		score -= 10
		reasons = append(reasons, "hostname missing (-10)")
	}
	if d.MACAddress == "" {
		score -= 15
		reasons = append(reasons, "MAC address missing (-15)")
	}
	if d.DeviceType == models.DeviceTypeUnknown {
		score -= 10
		reasons = append(reasons, "device type unknown (-10)")
	}

	if penalty, label := severityPenalty(maxVulnSeverity); penalty > 0 {
		score -= penalty
		reasons = append(reasons, fmt.Sprintf("unresolved %s vulnerability (-%d)", label, penalty))
	}

	if ratio.sampled >= minWebSample {
		frac := float64(ratio.httpCount) / float64(ratio.sampled)
		switch {
		case frac > unencryptedHigh:
			score -= 15
			reasons = append(reasons, "more than 70% of recent web traffic is unencrypted (-15)")
		case frac > unencryptedMedium:
			score -= 8
			reasons = append(reasons, "40-70% of recent web traffic is unencrypted (-8)")
		}
	}

	if time.Since(d.LastSeen) > staleAfter {
		score -= 5
		reasons = append(reasons, "not seen in over 24h (-5)")
	}

	switch d.DeviceType {
	case models.DeviceTypeIoT:
		score -= 5
		reasons = append(reasons, "IoT device type modifier (-5)")
		if d.DeviceCategory != "Unknown" && d.DeviceCategory != "" {
			score += 3
			reasons = append(reasons, "IoT device has a known category (+3)")
		}
	case models.DeviceTypeNetwork:
		score += 10
		reasons = append(reasons, "network infrastructure device type modifier (+10)")
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	return Result{IPAddress: d.IPAddress, Score: score, Grade: grade(score), Reasons: reasons}
}

func grade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// severityPenalty returns only the maximum applicable penalty (§4.7:
// "only the maximum applies").
func severityPenalty(sev models.Severity) (int, string) {
	switch sev {
	case models.SeverityCritical:
		return 40, "CRITICAL"
	case models.SeverityHigh:
		return 25, "HIGH"
	case models.SeverityMedium:
		return 15, "MEDIUM"
	case models.SeverityLow:
		return 5, "LOW"
	default:
		return 0, ""
	}
}

type webRatio struct {
	httpCount int
	sampled   int
}

func (s *Scorer) loadDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.Store.DB().QueryContext(ctx, `
		SELECT ip_address, mac_address, hostname, vendor, device_type, device_category,
			security_score, is_trusted, first_seen, last_seen, total_packets, total_bytes
		FROM devices`)
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

func (s *Scorer) maxUnresolvedSeverity(ctx context.Context, ip string) (models.Severity, error) {
	rows, err := s.Store.DB().QueryContext(ctx,
		`SELECT severity FROM iot_vulnerabilities WHERE device_ip = ? AND resolved = 0`, ip)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	best := models.Severity("")
	for rows.Next() {
		var sev string
		if err := rows.Scan(&sev); err != nil {
			return "", err
		}
		s := models.Severity(sev)
		if s.Rank() > best.Rank() {
			best = s
		}
	}
	return best, rows.Err()
}

// unencryptedWebRatios computes, per local src_ip, the fraction of
// port-80/443 connections in latest(tcpdump) that were plain HTTP.
func (s *Scorer) unencryptedWebRatios(ctx context.Context) (map[string]webRatio, error) {
	out := make(map[string]webRatio)
	table, err := registry.Latest(ctx, s.Store.DB(), registry.ToolTcpdump)
	if err != nil || table == "" {
		return out, err
	}

	rows, err := s.Store.DB().QueryContext(ctx,
		fmt.Sprintf(`SELECT src_ip, dest_port FROM %q WHERE dest_port IN (80, 443)`, table))
	if err != nil {
		return out, fmt.Errorf("scan %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var srcIP string
		var destPort int
		if err := rows.Scan(&srcIP, &destPort); err != nil {
			return out, err
		}
		r := out[srcIP]
		r.sampled++
		if destPort == 80 {
			r.httpCount++
		}
		out[srcIP] = r
	}
	return out, rows.Err()
}

func (s *Scorer) writeBack(ctx context.Context, r Result) error {
	return s.Store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE devices SET security_score = ? WHERE ip_address = ?`, r.Score, r.IPAddress)
		return err
	})
}
