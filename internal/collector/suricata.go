package collector

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/netguardpro/netguard/internal/capture"
	"github.com/netguardpro/netguard/internal/parsers"
	"github.com/netguardpro/netguard/internal/positionstore"
	"github.com/netguardpro/netguard/internal/registry"
	"github.com/netguardpro/netguard/internal/store"
)

// SuricataCollector tails the EVE JSON log and fans records out across
// the 11 per-event-type tables (§4.3's suricata row: "11 separate
// category tables").
type SuricataCollector struct {
	EVEPath  string
	SourceID string

	Store    *store.Store
	Runner   *capture.Runner
	Position *positionstore.Store
}

const suricataPositionTool = "suricata"

func (c *SuricataCollector) Cycle(ctx context.Context) error {
	pos, _, err := c.Position.Get(ctx, suricataPositionTool, c.SourceID)
	if err != nil {
		return fmt.Errorf("suricata: get position: %w", err)
	}

	chunk, end, err := parsers.ReadFrom(c.EVEPath, pos)
	if err != nil {
		return fmt.Errorf("suricata: read eve log: %w", err)
	}
	if len(chunk) == 0 {
		return nil
	}
	// ReadFrom restarts at offset 0 when the log shrank below pos, so
	// parse relative to where the chunk actually begins.
	pos = end - int64(len(chunk))

	records, newPos := parsers.ParseSuricataEVE(chunk, pos)
	if len(records) == 0 {
		if newPos != pos {
			return c.Position.Set(ctx, suricataPositionTool, c.SourceID, newPos)
		}
		return nil
	}

	byEventType := make(map[string][]parsers.Record)
	for _, rec := range records {
		sr := rec.(parsers.SuricataRecord)
		byEventType[sr.EventType] = append(byEventType[sr.EventType], rec)
	}

	for eventType, recs := range byEventType {
		tool := registry.SuricataTool(eventType)
		tableName, inserted, err := Flush(ctx, c.Store, tool, recs)
		if err != nil {
			return fmt.Errorf("suricata: flush %s: %w", eventType, err)
		}
		log.Debug().Str("tool", string(tool)).Str("table", tableName).Int("rows", inserted).Msg("collector cycle flushed")
	}

	if err := c.Position.Set(ctx, suricataPositionTool, c.SourceID, newPos); err != nil {
		return fmt.Errorf("suricata: advance position: %w", err)
	}
	return nil
}
