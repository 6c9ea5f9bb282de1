package alertengine

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netguardpro/netguard/internal/registry"
	"github.com/netguardpro/netguard/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTcpdumpSynRows(t *testing.T, db *sql.DB, srcIP string, destPorts []int) {
	t.Helper()
	table, err := registry.Create(context.Background(), db, registry.ToolTcpdump, time.Now())
	require.NoError(t, err)
	for _, port := range destPorts {
		_, err := db.Exec(
			`INSERT INTO `+quoted(table)+` (timestamp, src_ip, dest_ip, dest_port, tcp_syn, tcp_ack) VALUES (?, ?, ?, ?, 1, 0)`,
			time.Now().UTC(), srcIP, "8.8.8.8", port)
		require.NoError(t, err)
	}
}

func quoted(name string) string { return `"` + name + `"` }

func TestEvaluatePortScan_StrictlyGreaterThanThreshold(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()
	ctx := context.Background()

	// exactly 20 distinct ports must NOT trigger (threshold is "> 20", not ">= 20").
	ports := make([]int, 20)
	for i := range ports {
		ports[i] = 1000 + i
	}
	seedTcpdumpSynRows(t, db, "192.168.1.30", ports)

	drafts, err := evaluatePortScan(ctx, db, RuleParams{})
	require.NoError(t, err)
	require.Empty(t, drafts, "exactly at threshold must not alert")
}

func TestEvaluatePortScan_OneOverThresholdTriggers(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()
	ctx := context.Background()

	ports := make([]int, 21)
	for i := range ports {
		ports[i] = 1000 + i
	}
	seedTcpdumpSynRows(t, db, "192.168.1.31", ports)

	drafts, err := evaluatePortScan(ctx, db, RuleParams{})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Equal(t, "port_scan", drafts[0].AlertType)
	require.Equal(t, "192.168.1.31", drafts[0].SourceIP)
}

func TestEvaluatePortScan_IgnoresPrivateDestinations(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()
	ctx := context.Background()

	table, err := registry.Create(ctx, db, registry.ToolTcpdump, time.Now())
	require.NoError(t, err)
	for i := 0; i < 30; i++ {
		_, err := db.Exec(
			`INSERT INTO `+quoted(table)+` (timestamp, src_ip, dest_ip, dest_port, tcp_syn, tcp_ack) VALUES (?, ?, ?, ?, 1, 0)`,
			time.Now().UTC(), "192.168.1.32", "10.0.0.5", 1000+i)
		require.NoError(t, err)
	}

	drafts, err := evaluatePortScan(ctx, db, RuleParams{})
	require.NoError(t, err)
	require.Empty(t, drafts, "scans confined to private destinations must not alert")
}

func TestEvaluateIoTCompromise_RequiresAtLeastTwoHighSeverityFindings(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()
	ctx := context.Background()

	_, err := db.Exec(`INSERT INTO devices (ip_address, device_type, first_seen, last_seen) VALUES (?, 'IoT', ?, ?)`,
		"192.168.1.40", time.Now(), time.Now())
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO iot_vulnerabilities (device_ip, vulnerability_type, severity, description, detected_at, resolved)
		VALUES (?, 'open_port', 'HIGH', 'd', ?, 0)`, "192.168.1.40", time.Now())
	require.NoError(t, err)

	drafts, err := evaluateIoTCompromise(ctx, db, RuleParams{})
	require.NoError(t, err)
	require.Empty(t, drafts, "a single unresolved finding must not trigger iot_compromise")

	_, err = db.Exec(`INSERT INTO iot_vulnerabilities (device_ip, vulnerability_type, severity, description, detected_at, resolved)
		VALUES (?, 'default_credentials_risk', 'CRITICAL', 'd', ?, 0)`, "192.168.1.40", time.Now())
	require.NoError(t, err)

	drafts, err = evaluateIoTCompromise(ctx, db, RuleParams{})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Equal(t, "192.168.1.40", drafts[0].SourceIP)
}

func TestEvaluateMalwareC2_NoIndicatorsConfiguredReturnsNothing(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	drafts, err := evaluateMalwareC2(context.Background(), db, RuleParams{})
	require.NoError(t, err)
	require.Empty(t, drafts)
}

func TestEvaluateMalwareC2_MatchesIndicatorIP(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()
	ctx := context.Background()

	table, err := registry.Create(ctx, db, registry.ToolTcpdump, time.Now())
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO `+quoted(table)+` (timestamp, src_ip, dest_ip) VALUES (?, ?, ?)`,
		time.Now().UTC(), "192.168.1.41", "203.0.113.9")
	require.NoError(t, err)

	drafts, err := evaluateMalwareC2(ctx, db, RuleParams{IndicatorIPs: []string{"203.0.113.9"}})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Equal(t, "192.168.1.41", drafts[0].SourceIP)
}

func TestEvaluateOutboundBytes_ExcludesPrivateDestinations(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()
	ctx := context.Background()

	table, err := registry.Create(ctx, db, registry.ToolArgus, time.Now())
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO `+quoted(table)+` (timestamp, src_ip, dest_ip, bytes) VALUES (?, ?, ?, ?)`,
		time.Now().UTC(), "192.168.1.42", "10.0.0.9", int64(500*1024*1024))
	require.NoError(t, err)

	drafts, err := evaluateOutboundBytes(ctx, db, RuleParams{ThresholdBytes: 1024})
	require.NoError(t, err)
	require.Empty(t, drafts)
}

func TestEvaluateBruteForce_CountsFailedAuthEvents(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()
	ctx := context.Background()

	table, err := registry.Create(ctx, db, registry.SuricataTool("alert"), time.Now())
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		_, err := db.Exec(`INSERT INTO `+quoted(table)+` (timestamp, src_ip, dest_ip, signature, category) VALUES (?, ?, ?, ?, ?)`,
			time.Now().UTC(), "192.168.1.44", "192.168.1.1", "Failed login attempt", "auth")
		require.NoError(t, err)
	}

	drafts, err := evaluateBruteForce(ctx, db, RuleParams{})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Equal(t, "192.168.1.44", drafts[0].SourceIP)
}

func TestEvaluateDNSTunnelling_LongLabelTriggersRegardlessOfRate(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()
	ctx := context.Background()

	table, err := registry.Create(ctx, db, registry.SuricataTool("dns"), time.Now())
	require.NoError(t, err)
	longLabel := ""
	for i := 0; i < 60; i++ {
		longLabel += "a"
	}
	_, err = db.Exec(`INSERT INTO `+quoted(table)+` (timestamp, src_ip, query) VALUES (?, ?, ?)`,
		time.Now().UTC(), "192.168.1.43", longLabel+".example.com")
	require.NoError(t, err)

	drafts, err := evaluateDNSTunnelling(ctx, db, RuleParams{})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Equal(t, "dns_tunneling", drafts[0].AlertType)
}
