package collector

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/netguardpro/netguard/internal/capture"
	"github.com/netguardpro/netguard/internal/parsers"
	"github.com/netguardpro/netguard/internal/positionstore"
	"github.com/netguardpro/netguard/internal/registry"
	"github.com/netguardpro/netguard/internal/store"
)

// PCAPParser is the shape shared by tcpdump and netsniff-ng's offline
// tshark-JSON analysis path.
type PCAPParser func(ctx context.Context, pcapPath string, geo *parsers.GeoIP) ([]parsers.Record, error)

// PCAPCollector drains a capture directory of stable, unprocessed PCAP
// files (§4.2: PCAP-producing tools write to a directory, a collector
// cycle picks up files once they stop growing).
type PCAPCollector struct {
	Tool      registry.Tool
	CaptureDir string
	Parse     PCAPParser
	GeoIP     *parsers.GeoIP

	Store    *store.Store
	Runner   *capture.Runner
	Position *positionstore.Store
}

func (c *PCAPCollector) Cycle(ctx context.Context) error {
	already := func(name string) bool {
		processed, err := c.Position.IsFileProcessed(ctx, string(c.Tool), name)
		if err != nil {
			log.Error().Err(err).Str("tool", string(c.Tool)).Str("file", name).Msg("check processed file failed")
			return false
		}
		return processed
	}

	files, err := parsers.PendingPCAPFiles(c.CaptureDir, already)
	if err != nil {
		return fmt.Errorf("%s: list pcap files: %w", c.Tool, err)
	}

	for _, path := range files {
		records, err := c.Parse(ctx, path, c.GeoIP)
		if err != nil {
			log.Error().Err(err).Str("tool", string(c.Tool)).Str("file", path).Msg("parse pcap failed, marking processed to avoid poison-pill retry")
			if markErr := c.Position.MarkFileProcessed(ctx, string(c.Tool), filepath.Base(path)); markErr != nil {
				return markErr
			}
			continue
		}

		tableName, inserted, err := Flush(ctx, c.Store, c.Tool, records)
		if err != nil {
			return fmt.Errorf("%s: flush %s: %w", c.Tool, path, err)
		}

		if err := c.Position.MarkFileProcessed(ctx, string(c.Tool), filepath.Base(path)); err != nil {
			return fmt.Errorf("%s: mark processed %s: %w", c.Tool, path, err)
		}

		log.Debug().Str("tool", string(c.Tool)).Str("table", tableName).Int("rows", inserted).Str("file", path).Msg("collector cycle flushed")
	}
	return nil
}
