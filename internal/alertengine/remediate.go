package alertengine

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os/exec"
	"time"
)

const autoRemediationTimeout = 30 * time.Second

// AutoRemediate executes an alert's configured auto_remediation_command
// with a hard 30s timeout and records the outcome: rc=0 resolves the
// alert, rc≠0 leaves it active with a failure history row (§4.8).
func (e *Engine) AutoRemediate(ctx context.Context, alertID string) error {
	var command string
	err := e.Store.DB().QueryRowContext(ctx,
		`SELECT auto_remediation_command FROM security_alerts WHERE alert_id = ?`, alertID,
	).Scan(&command)
	if err == sql.ErrNoRows {
		return fmt.Errorf("alertengine: no such alert %s", alertID)
	}
	if err != nil {
		return fmt.Errorf("alertengine: lookup alert %s: %w", alertID, err)
	}
	if command == "" {
		return fmt.Errorf("alertengine: alert %s has no auto_remediation_command", alertID)
	}

	runCtx, cancel := context.WithTimeout(ctx, autoRemediationTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()
	note := out.String()
	if len(note) > 4096 {
		note = note[:4096]
	}

	if runErr == nil {
		return e.Store.WithTx(ctx, func(tx *sql.Tx) error {
			now := time.Now().UTC()
			if _, err := tx.ExecContext(ctx, `
				UPDATE security_alerts SET status = 'resolved', resolved_at = ?, resolved_by = 'auto_remediation', updated_at = ?
				WHERE alert_id = ?`, now, now, alertID); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO alert_history (alert_id, action, action_by, notes) VALUES (?, 'auto_remediation', 'auto_remediation', ?)`,
				alertID, note)
			return err
		})
	}

	return e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO alert_history (alert_id, action, action_by, notes) VALUES (?, 'auto_remediation_failed', 'auto_remediation', ?)`,
			alertID, fmt.Sprintf("%s\n---\n%v", note, runErr))
		return err
	})
}
