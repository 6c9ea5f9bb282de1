// Package collector implements the Collector (C5): the per-tool
// composition of a Capture Runner (C3), a parser (C4) and a
// PositionStore, producing batch inserts into timestamped per-collector
// tables (§4.3). Each tool gets its own thin driver type below because
// the tools fall into a handful of genuinely different shapes (growing
// log file, PCAP directory, bounded short-lived run, streaming JSON) —
// but all of them share the batch-insert/ceiling/drop-count plumbing in
// this file.
package collector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netguardpro/netguard/internal/appmetrics"
	"github.com/netguardpro/netguard/internal/parsers"
	"github.com/netguardpro/netguard/internal/registry"
	"github.com/netguardpro/netguard/internal/store"
)

// PerCycleCeiling bounds how many records a single cycle will insert
// (§5 Backpressure: "excess is dropped with a counted log").
const PerCycleCeiling = 5000

// Flush creates (if needed) a fresh timestamped table for tool and
// inserts records into it, dropping anything beyond PerCycleCeiling.
// Returns the table name used and the number of rows actually inserted.
func Flush(ctx context.Context, s *store.Store, tool registry.Tool, records []parsers.Record) (string, int, error) {
	if len(records) == 0 {
		return "", 0, nil
	}

	kept := records
	dropped := 0
	if len(kept) > PerCycleCeiling {
		dropped = len(kept) - PerCycleCeiling
		kept = kept[:PerCycleCeiling]
	}
	if dropped > 0 {
		log.Warn().Str("tool", string(tool)).Int("dropped", dropped).Msg("per-cycle ceiling exceeded, dropping excess records")
		appmetrics.CollectorRowsDropped.WithLabelValues(string(tool)).Add(float64(dropped))
	}

	tableName, err := registry.Create(ctx, s.DB(), tool, time.Now())
	if err != nil {
		return "", 0, fmt.Errorf("create table for %s: %w", tool, err)
	}

	colNames, err := registry.ColumnNames(tool)
	if err != nil {
		return tableName, 0, err
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range kept {
			if err := insertRow(ctx, tx, tableName, colNames, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return tableName, 0, fmt.Errorf("insert batch into %s: %w", tableName, err)
	}
	appmetrics.CollectorRowsInserted.WithLabelValues(string(tool)).Add(float64(len(kept)))
	return tableName, len(kept), nil
}

func insertRow(ctx context.Context, tx *sql.Tx, tableName string, colNames []string, rec parsers.Record) error {
	values := rec.Values()
	if len(values) != len(colNames) {
		return fmt.Errorf("insert %s: record has %d values, schema expects %d", tableName, len(values), len(colNames))
	}

	columns := "timestamp"
	placeholders := "?"
	args := make([]any, 0, len(values)+1)
	args = append(args, rec.Timestamp())
	for i, name := range colNames {
		columns += ", " + name
		placeholders += ", ?"
		args = append(args, values[i])
	}

	query := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)", tableName, columns, placeholders)
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
