// Package registry implements the Table Registry (C2): naming, rotation
// and discovery of the timestamped per-collector tables described in
// spec §3 and §4.4. "Latest table" is the lexicographically greatest
// non-template name with the tool's prefix, which holds because table
// names embed a sortable `YYYYMMDD_HHMMSS` timestamp.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Tool identifies one of the supported capture tools. Suricata carries a
// per-event-type suffix (e.g. "suricata_dns") since §3 gives it 11
// separate category tables.
type Tool string

const (
	ToolTcpdump  Tool = "tcpdump"
	ToolTshark   Tool = "tshark"
	ToolP0f      Tool = "p0f"
	ToolNgrep    Tool = "ngrep"
	ToolHTTPry   Tool = "httpry"
	ToolArgus    Tool = "argus"
	ToolNetsniff Tool = "netsniff"
	ToolIftop    Tool = "iftop"
	ToolNethogs  Tool = "nethogs"
)

// SuricataEventTypes lists the 11 EVE JSON categories each collector
// fans out into, per §4.3's suricata row.
var SuricataEventTypes = []string{
	"alert", "dns", "http", "tls", "flow", "fileinfo",
	"ssh", "smtp", "dhcp", "stats", "anomaly",
}

// SuricataTool returns the synthetic tool name for an event type, e.g.
// "suricata_dns".
func SuricataTool(eventType string) Tool {
	return Tool("suricata_" + eventType)
}

const tableTimestampLayout = "20060102_150405"

// TableName returns the timestamped table name for tool at ts, e.g.
// "tcpdump_20250101_000000".
func TableName(tool Tool, ts time.Time) string {
	return fmt.Sprintf("%s_%s", tool, ts.UTC().Format(tableTimestampLayout))
}

// TemplateName returns the schema-reference-only template table name for
// tool, e.g. "tcpdump_template". Correlators never query it (§3).
func TemplateName(tool Tool) string {
	return string(tool) + "_template"
}

func isTemplate(name string) bool {
	return strings.HasSuffix(name, "_template")
}

// Latest returns the lexicographically greatest non-template table for
// tool, or "" if none exists.
func Latest(ctx context.Context, db *sql.DB, tool Tool) (string, error) {
	tables, err := List(ctx, db, tool)
	if err != nil {
		return "", err
	}
	if len(tables) == 0 {
		return "", nil
	}
	return tables[len(tables)-1], nil
}

// List returns every non-template table for tool in chronological order.
func List(ctx context.Context, db *sql.DB, tool Tool) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name LIKE ? ESCAPE '\'`,
		escapeLike(string(tool))+`_%`,
	)
	if err != nil {
		return nil, fmt.Errorf("list tables for %s: %w", tool, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if isTemplate(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Create idempotently creates a fresh timestamped table for tool with the
// tool-specific schema and returns its name.
func Create(ctx context.Context, db *sql.DB, tool Tool, ts time.Time) (string, error) {
	name := TableName(tool, ts)
	ddl, err := schemaFor(tool, name)
	if err != nil {
		return "", err
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return "", fmt.Errorf("create table %s: %w", name, err)
	}
	return name, nil
}

// Drop drops a table by name. Used only by retention (§4.4): never called
// by collectors or correlators.
func Drop(ctx context.Context, db *sql.DB, tableName string) error {
	if tableName == "" {
		return fmt.Errorf("empty table name")
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %q", tableName))
	return err
}

// CreateTemplates creates every tool's `<tool>_template` schema-reference
// table if absent. Called once at startup by the Store's bootstrap.
func CreateTemplates(ctx context.Context, db *sql.DB) error {
	tools := []Tool{ToolTcpdump, ToolTshark, ToolP0f, ToolNgrep, ToolHTTPry,
		ToolArgus, ToolNetsniff, ToolIftop, ToolNethogs}
	for _, t := range tools {
		ddl, err := schemaFor(t, TemplateName(t))
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create template for %s: %w", t, err)
		}
	}
	for _, et := range SuricataEventTypes {
		tool := SuricataTool(et)
		ddl, err := schemaFor(tool, TemplateName(tool))
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create template for %s: %w", tool, err)
		}
	}
	return nil
}
