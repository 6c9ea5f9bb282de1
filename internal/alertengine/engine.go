// Package alertengine implements the Alert Engine (C9): rule-driven
// detection, dedup/persistence, and the alert lifecycle state machine
// from §4.8.
package alertengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/netguardpro/netguard/internal/models"
	"github.com/netguardpro/netguard/internal/store"
)

const dedupWindow = time.Hour

// Engine runs the C9 loop.
type Engine struct {
	Store *store.Store
}

func New(s *store.Store) *Engine {
	return &Engine{Store: s}
}

// Cycle runs Phase 1 (detection) then Phase 2 (dedup/persistence).
func (e *Engine) Cycle(ctx context.Context) error {
	rules, err := e.enabledRules(ctx)
	if err != nil {
		return fmt.Errorf("alertengine: load rules: %w", err)
	}

	var drafts []Draft
	for _, rule := range rules {
		eval, ok := evaluators[rule.RuleType]
		if !ok {
			log.Warn().Str("rule", rule.Name).Str("type", rule.RuleType).Msg("alertengine: unknown rule_type, skipping")
			continue
		}
		found, err := eval(ctx, e.Store.DB(), rule.Params)
		if err != nil {
			log.Error().Err(err).Str("rule", rule.Name).Msg("alertengine: rule evaluation failed")
			continue
		}
		drafts = append(drafts, found...)
	}

	for _, d := range drafts {
		if err := e.persist(ctx, d); err != nil {
			log.Error().Err(err).Str("alert_type", d.AlertType).Str("source_ip", d.SourceIP).Msg("alertengine: persist draft failed")
		}
	}
	return nil
}

type rule struct {
	Name     string
	RuleType string
	Params   RuleParams
}

func (e *Engine) enabledRules(ctx context.Context) ([]rule, error) {
	rows, err := e.Store.DB().QueryContext(ctx, `SELECT name, rule_type, params FROM alert_rules WHERE enabled = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rule
	for rows.Next() {
		var name, ruleType, paramsJSON string
		if err := rows.Scan(&name, &ruleType, &paramsJSON); err != nil {
			return nil, err
		}
		var params RuleParams
		if paramsJSON != "" {
			_ = json.Unmarshal([]byte(paramsJSON), &params)
		}
		out = append(out, rule{Name: name, RuleType: ruleType, Params: params})
	}
	return out, rows.Err()
}

// persist implements Phase 2: dedup against an active alert of the same
// type/source within the window, or insert a fresh alert with a
// `created` history row.
func (e *Engine) persist(ctx context.Context, d Draft) error {
	return e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		cutoff := time.Now().UTC().Add(-dedupWindow)
		var existingID string
		err := tx.QueryRowContext(ctx, `
			SELECT alert_id FROM security_alerts
			WHERE alert_type = ? AND source_ip = ? AND status = 'active' AND last_seen >= ?
			ORDER BY last_seen DESC LIMIT 1`,
			d.AlertType, d.SourceIP, cutoff,
		).Scan(&existingID)

		now := time.Now().UTC()
		if err == nil {
			_, err = tx.ExecContext(ctx, `
				UPDATE security_alerts SET recurrence_count = recurrence_count + 1, last_seen = ?, updated_at = ?
				WHERE alert_id = ?`, now, now, existingID)
			if err != nil {
				return fmt.Errorf("bump recurrence: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO alert_history (alert_id, action, action_by, notes) VALUES (?, 'recurrence', 'alert_engine', ?)`,
				existingID, d.Description)
			return err
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("dedup check: %w", err)
		}

		alertID := uuid.NewString()
		affected, _ := json.Marshal(d.AffectedDevices)
		indicators, _ := json.Marshal(d.ThreatIndicators)
		remediation, _ := json.Marshal(d.RemediationSteps)

		_, err = tx.ExecContext(ctx, `
			INSERT INTO security_alerts (alert_id, severity, alert_type, title, description, source_ip,
				affected_devices, threat_indicators, remediation_steps,
				auto_remediation_available, auto_remediation_command,
				status, created_at, updated_at, recurrence_count, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'active', ?, ?, 1, ?)`,
			alertID, string(d.Severity), d.AlertType, d.Title, d.Description, d.SourceIP,
			string(affected), string(indicators), string(remediation),
			d.AutoRemediationAvailable, nullIfEmpty(d.AutoRemediationCommand),
			now, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO alert_history (alert_id, action, action_by, notes) VALUES (?, 'created', 'alert_engine', ?)`,
			alertID, d.Description)
		return err
	})
}

// Resolve transitions an active alert to resolved (manual operator action).
func (e *Engine) Resolve(ctx context.Context, alertID, resolvedBy, notes string) error {
	return e.transition(ctx, alertID, models.AlertStatusResolved, resolvedBy, "resolve", notes)
}

// MarkFalsePositive transitions an active alert to false_positive.
func (e *Engine) MarkFalsePositive(ctx context.Context, alertID, actionBy, notes string) error {
	return e.transition(ctx, alertID, models.AlertStatusFalsePositive, actionBy, "mark_false_positive", notes)
}

func (e *Engine) transition(ctx context.Context, alertID string, status models.AlertStatus, actionBy, action, notes string) error {
	return e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		_, err := tx.ExecContext(ctx, `
			UPDATE security_alerts SET status = ?, resolved_at = ?, resolved_by = ?, updated_at = ? WHERE alert_id = ?`,
			string(status), now, actionBy, now, alertID)
		if err != nil {
			return fmt.Errorf("transition alert: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO alert_history (alert_id, action, action_by, notes) VALUES (?, ?, ?, ?)`,
			alertID, action, actionBy, notes)
		return err
	})
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
