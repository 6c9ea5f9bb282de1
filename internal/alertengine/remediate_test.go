package alertengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAutoRemediate_SuccessfulCommandResolvesAlert(t *testing.T) {
	s := openTestStore(t)
	e := New(s)
	ctx := context.Background()

	d := sampleDraft("192.168.1.70")
	d.AutoRemediationCommand = "true"
	require.NoError(t, e.persist(ctx, d))

	var alertID string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT alert_id FROM security_alerts WHERE source_ip = ?`,
		"192.168.1.70").Scan(&alertID))

	require.NoError(t, e.AutoRemediate(ctx, alertID))

	var status, resolvedBy string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT status, resolved_by FROM security_alerts WHERE alert_id = ?`,
		alertID).Scan(&status, &resolvedBy))
	require.Equal(t, "resolved", status)
	require.Equal(t, "auto_remediation", resolvedBy)
}

func TestAutoRemediate_FailingCommandLeavesAlertActive(t *testing.T) {
	s := openTestStore(t)
	e := New(s)
	ctx := context.Background()

	d := sampleDraft("192.168.1.71")
	d.AutoRemediationCommand = "false"
	require.NoError(t, e.persist(ctx, d))

	var alertID string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT alert_id FROM security_alerts WHERE source_ip = ?`,
		"192.168.1.71").Scan(&alertID))

	require.NoError(t, e.AutoRemediate(ctx, alertID))

	var status string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT status FROM security_alerts WHERE alert_id = ?`, alertID).Scan(&status))
	require.Equal(t, "active", status)

	var action string
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT action FROM alert_history WHERE alert_id = ? ORDER BY id DESC LIMIT 1`, alertID).Scan(&action))
	require.Equal(t, "auto_remediation_failed", action)
}

func TestAutoRemediate_NoCommandConfiguredReturnsError(t *testing.T) {
	s := openTestStore(t)
	e := New(s)
	ctx := context.Background()

	require.NoError(t, e.persist(ctx, sampleDraft("192.168.1.72")))
	var alertID string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT alert_id FROM security_alerts WHERE source_ip = ?`,
		"192.168.1.72").Scan(&alertID))

	err := e.AutoRemediate(ctx, alertID)
	require.Error(t, err)
}

func TestAutoRemediate_UnknownAlertReturnsError(t *testing.T) {
	s := openTestStore(t)
	e := New(s)

	err := e.AutoRemediate(context.Background(), "does-not-exist")
	require.Error(t, err)
}
