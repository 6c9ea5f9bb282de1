package alertengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netguardpro/netguard/internal/models"
)

func sampleDraft(ip string) Draft {
	return Draft{
		Severity:         models.SeverityHigh,
		AlertType:        "port_scan",
		Title:            "Port scan detected from " + ip,
		Description:      "synthetic finding",
		SourceIP:         ip,
		AffectedDevices:  []string{ip},
		ThreatIndicators: []string{"21 distinct destination ports"},
		RemediationSteps: []string{"investigate"},
	}
}

func TestPersist_FirstDraftCreatesAlertAndHistoryRow(t *testing.T) {
	s := openTestStore(t)
	e := New(s)
	ctx := context.Background()

	require.NoError(t, e.persist(ctx, sampleDraft("192.168.1.60")))

	var count, recurrence int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*), MAX(recurrence_count) FROM security_alerts WHERE source_ip = ?`,
		"192.168.1.60").Scan(&count, &recurrence))
	require.Equal(t, 1, count)
	require.Equal(t, 1, recurrence)

	var historyCount int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM alert_history`).Scan(&historyCount))
	require.Equal(t, 1, historyCount)
}

func TestPersist_DuplicateWithinWindowBumpsRecurrenceInstead(t *testing.T) {
	s := openTestStore(t)
	e := New(s)
	ctx := context.Background()

	require.NoError(t, e.persist(ctx, sampleDraft("192.168.1.61")))
	require.NoError(t, e.persist(ctx, sampleDraft("192.168.1.61")))

	var count, recurrence int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*), MAX(recurrence_count) FROM security_alerts WHERE source_ip = ?`,
		"192.168.1.61").Scan(&count, &recurrence))
	require.Equal(t, 1, count, "invariant: active duplicates within the dedup window must not create a second row")
	require.Equal(t, 2, recurrence)

	var historyCount int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM alert_history`).Scan(&historyCount))
	require.Equal(t, 2, historyCount, "a recurrence still gets its own history row")
}

func TestPersist_ResolvedAlertDoesNotSuppressFreshDetection(t *testing.T) {
	s := openTestStore(t)
	e := New(s)
	ctx := context.Background()

	require.NoError(t, e.persist(ctx, sampleDraft("192.168.1.62")))

	var alertID string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT alert_id FROM security_alerts WHERE source_ip = ?`,
		"192.168.1.62").Scan(&alertID))
	require.NoError(t, e.Resolve(ctx, alertID, "operator", "handled"))

	require.NoError(t, e.persist(ctx, sampleDraft("192.168.1.62")))

	var count int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM security_alerts WHERE source_ip = ?`,
		"192.168.1.62").Scan(&count))
	require.Equal(t, 2, count, "a resolved alert must not dedup against a new detection")
}

func TestResolve_TransitionsStatusAndRecordsHistory(t *testing.T) {
	s := openTestStore(t)
	e := New(s)
	ctx := context.Background()

	require.NoError(t, e.persist(ctx, sampleDraft("192.168.1.63")))
	var alertID string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT alert_id FROM security_alerts WHERE source_ip = ?`,
		"192.168.1.63").Scan(&alertID))

	require.NoError(t, e.Resolve(ctx, alertID, "operator", "false alarm cleared"))

	var status string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT status FROM security_alerts WHERE alert_id = ?`, alertID).Scan(&status))
	require.Equal(t, "resolved", status)

	var action string
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT action FROM alert_history WHERE alert_id = ? ORDER BY id DESC LIMIT 1`, alertID).Scan(&action))
	require.Equal(t, "resolve", action)
}

func TestMarkFalsePositive_TransitionsStatus(t *testing.T) {
	s := openTestStore(t)
	e := New(s)
	ctx := context.Background()

	require.NoError(t, e.persist(ctx, sampleDraft("192.168.1.64")))
	var alertID string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT alert_id FROM security_alerts WHERE source_ip = ?`,
		"192.168.1.64").Scan(&alertID))

	require.NoError(t, e.MarkFalsePositive(ctx, alertID, "operator", "benign scanner"))

	var status string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT status FROM security_alerts WHERE alert_id = ?`, alertID).Scan(&status))
	require.Equal(t, "false_positive", status)
}
