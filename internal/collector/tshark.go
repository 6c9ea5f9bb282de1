package collector

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/netguardpro/netguard/internal/parsers"
	"github.com/netguardpro/netguard/internal/registry"
	"github.com/netguardpro/netguard/internal/store"
)

// TsharkCollector runs a short live-capture window each cycle rather
// than tailing a growing file or PCAP directory — tshark's JSON mode is
// driven directly off the interface (§4.2).
type TsharkCollector struct {
	Interface  string
	WindowSecs int
	GeoIP      *parsers.GeoIP

	Store *store.Store
}

func (c *TsharkCollector) Cycle(ctx context.Context) error {
	records, err := parsers.ParseTsharkLiveWindow(ctx, c.Interface, c.WindowSecs, c.GeoIP)
	if err != nil {
		return fmt.Errorf("tshark: capture window: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	tableName, inserted, err := Flush(ctx, c.Store, registry.ToolTshark, records)
	if err != nil {
		return fmt.Errorf("tshark: flush: %w", err)
	}
	log.Debug().Str("tool", string(registry.ToolTshark)).Str("table", tableName).Int("rows", inserted).Msg("collector cycle flushed")
	return nil
}
