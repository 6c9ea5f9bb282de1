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

// ChunkParser is the shape shared by the log-tailing parsers (p0f, ngrep,
// httpry): consume a byte chunk starting at basePos, return the records
// found and the offset to resume from.
type ChunkParser func(chunk []byte, basePos int64) ([]parsers.Record, int64)

// LogTailCollector drives one log-tailing tool: it reads new bytes from
// LogPath since the last committed position, parses them, flushes any
// records, then advances the position only after the insert commits
// (§4.3's at-least-once guarantee).
type LogTailCollector struct {
	Tool     registry.Tool
	LogPath  string
	SourceID string // usually LogPath itself; kept distinct for tools with rotating logs
	Parse    ChunkParser

	Store    *store.Store
	Runner   *capture.Runner
	Position *positionstore.Store
}

// Cycle runs one read→parse→flush→advance iteration.
func (c *LogTailCollector) Cycle(ctx context.Context) error {
	pos, _, err := c.Position.Get(ctx, string(c.Tool), c.SourceID)
	if err != nil {
		return fmt.Errorf("%s: get position: %w", c.Tool, err)
	}

	chunk, end, err := parsers.ReadFrom(c.LogPath, pos)
	if err != nil {
		return fmt.Errorf("%s: read log: %w", c.Tool, err)
	}
	if len(chunk) == 0 {
		return nil
	}
	// ReadFrom restarts at offset 0 when the log shrank below pos, so
	// parse relative to where the chunk actually begins.
	pos = end - int64(len(chunk))

	records, newPos := c.Parse(chunk, pos)
	if len(records) == 0 {
		if newPos != pos {
			return c.Position.Set(ctx, string(c.Tool), c.SourceID, newPos)
		}
		return nil
	}

	tableName, inserted, err := Flush(ctx, c.Store, c.Tool, records)
	if err != nil {
		return fmt.Errorf("%s: flush: %w", c.Tool, err)
	}

	if err := c.Position.Set(ctx, string(c.Tool), c.SourceID, newPos); err != nil {
		return fmt.Errorf("%s: advance position: %w", c.Tool, err)
	}

	log.Debug().Str("tool", string(c.Tool)).Str("table", tableName).Int("rows", inserted).Msg("collector cycle flushed")
	return nil
}
