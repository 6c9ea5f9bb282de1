package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netguardpro/netguard/internal/parsers"
	"github.com/netguardpro/netguard/internal/positionstore"
	"github.com/netguardpro/netguard/internal/registry"
	"github.com/netguardpro/netguard/internal/store"
)

// ArgusCollector drains a directory of rotated argus binary capture
// files, each produced by the capture Runner's argus daemon rotating on
// a fixed interval, and projects them through `ra` (§4.2's
// capture→analyse→`ra` pipeline flow rows).
type ArgusCollector struct {
	CaptureDir string

	Store    *store.Store
	Position *positionstore.Store
}

const argusStableAge = 2 * time.Second

func (c *ArgusCollector) Cycle(ctx context.Context) error {
	entries, err := os.ReadDir(c.CaptureDir)
	if err != nil {
		return fmt.Errorf("argus: read capture dir: %w", err)
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".argus") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) < argusStableAge {
			continue // still being written
		}
		processed, err := c.Position.IsFileProcessed(ctx, string(registry.ToolArgus), e.Name())
		if err != nil {
			return fmt.Errorf("argus: check processed %s: %w", e.Name(), err)
		}
		if processed {
			continue
		}
		candidates = append(candidates, e.Name())
	}
	sort.Strings(candidates)

	for _, name := range candidates {
		path := filepath.Join(c.CaptureDir, name)
		records, err := parsers.ParseArgus(ctx, path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("argus: parse failed, marking processed to avoid poison-pill retry")
			if markErr := c.Position.MarkFileProcessed(ctx, string(registry.ToolArgus), name); markErr != nil {
				return markErr
			}
			continue
		}

		tableName, inserted, err := Flush(ctx, c.Store, registry.ToolArgus, records)
		if err != nil {
			return fmt.Errorf("argus: flush %s: %w", path, err)
		}
		if err := c.Position.MarkFileProcessed(ctx, string(registry.ToolArgus), name); err != nil {
			return fmt.Errorf("argus: mark processed %s: %w", path, err)
		}
		log.Debug().Str("tool", string(registry.ToolArgus)).Str("table", tableName).Int("rows", inserted).Str("file", path).Msg("collector cycle flushed")
	}
	return nil
}
