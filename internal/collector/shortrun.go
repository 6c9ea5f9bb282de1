package collector

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netguardpro/netguard/internal/parsers"
	"github.com/netguardpro/netguard/internal/registry"
	"github.com/netguardpro/netguard/internal/store"
)

// TextParser projects the captured stdout of a short bounded run into
// records (iftop, nethogs — §4.3: "short bounded run, no long-lived
// subprocess").
type TextParser func(output string) []parsers.Record

// ShortRunCollector spawns Command/Args fresh every cycle, bounded by
// RunFor, captures its stdout, and parses it — rather than owning a
// long-lived Capture Runner like the other tools.
type ShortRunCollector struct {
	Tool    registry.Tool
	Command string
	Args    []string
	RunFor  time.Duration
	Parse   TextParser

	Store *store.Store
}

func (c *ShortRunCollector) Cycle(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, c.RunFor)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Command, c.Args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil && runCtx.Err() == nil {
		// a non-zero exit that isn't just our own timeout killing it
		return fmt.Errorf("%s: run: %w", c.Tool, err)
	}

	records := c.Parse(stdout.String())
	if len(records) == 0 {
		return nil
	}

	tableName, inserted, err := Flush(ctx, c.Store, c.Tool, records)
	if err != nil {
		return fmt.Errorf("%s: flush: %w", c.Tool, err)
	}
	log.Debug().Str("tool", string(c.Tool)).Str("table", tableName).Int("rows", inserted).Msg("collector cycle flushed")
	return nil
}
