// Package supervisor implements the Supervisor (C11): startup sequence,
// one worker per collector and one per correlator, and coordinated
// shutdown (§4.10).
package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/netguardpro/netguard/internal/ai/providers"
	"github.com/netguardpro/netguard/internal/aiaggregator"
	"github.com/netguardpro/netguard/internal/alertengine"
	"github.com/netguardpro/netguard/internal/appmetrics"
	"github.com/netguardpro/netguard/internal/capture"
	"github.com/netguardpro/netguard/internal/collector"
	"github.com/netguardpro/netguard/internal/config"
	"github.com/netguardpro/netguard/internal/devices"
	"github.com/netguardpro/netguard/internal/parsers"
	"github.com/netguardpro/netguard/internal/positionstore"
	"github.com/netguardpro/netguard/internal/registry"
	"github.com/netguardpro/netguard/internal/scorer"
	"github.com/netguardpro/netguard/internal/store"
	"github.com/netguardpro/netguard/internal/vuln"
)

const (
	collectorInterval = 30 * time.Second
	shortRunDuration  = 10 * time.Second
	tsharkWindowSecs  = 20
	devicesInterval   = time.Minute
	vulnInterval      = 10 * time.Minute
	scorerInterval    = 5 * time.Minute
	alertInterval     = 30 * time.Second
)

// Options configures the whole runtime. Argv templates per capture tool
// are an implementation detail (§6); defaults below are reasonable
// per-tool invocations, not contractual.
type Options struct {
	DBPath       string
	BaseDir      string // capture directories and log files live under here
	Interface    string
	GeoIPPath    string // optional; "" disables GeoIP enrichment
	AIConfigPath string
	MetricsAddr  string // "" disables the /metrics server
}

// Supervisor owns every long-lived worker in the process.
type Supervisor struct {
	opts   Options
	store  *store.Store
	pos    *positionstore.Store
	geo    *parsers.GeoIP
	cfg    *config.Watcher
	chain  *providers.Chain
}

// New opens the Store and wires every component. Callers call Run to
// start the workers.
func New(opts Options) (*Supervisor, error) {
	s, err := store.Open(opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("supervisor: open store: %w", err)
	}

	for _, dir := range []string{
		filepath.Join(opts.BaseDir, "tcpdump"),
		filepath.Join(opts.BaseDir, "netsniff"),
		filepath.Join(opts.BaseDir, "argus"),
		filepath.Join(opts.BaseDir, "logs"),
		filepath.Join(opts.BaseDir, "suricata"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.Close()
			return nil, fmt.Errorf("supervisor: create %s: %w", dir, err)
		}
	}

	geo, err := parsers.OpenGeoIP(opts.GeoIPPath)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("supervisor: open geoip: %w", err)
	}

	cfgWatcher, err := config.NewWatcher(opts.AIConfigPath)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("supervisor: load ai config: %w", err)
	}

	cur := cfgWatcher.Current()
	chain := providers.BuildChain(log.Logger, providers.Keys{
		Gemini:     cur.APIKeys.GeminiAPIKey,
		Groq:       cur.APIKeys.GroqAPIKey,
		OpenRouter: cur.APIKeys.OpenRouterAPIKey,
	}, cur.Providers)

	return &Supervisor{
		opts:  opts,
		store: s,
		pos:   positionstore.New(s.DB()),
		geo:   geo,
		cfg:   cfgWatcher,
		chain: chain,
	}, nil
}

// Close releases everything New acquired. Call after Run returns.
func (sv *Supervisor) Close() error {
	sv.cfg.Stop()
	if err := sv.geo.Close(); err != nil {
		log.Warn().Err(err).Msg("supervisor: geoip close failed")
	}
	return sv.store.Close()
}

// Run starts every collector and correlator worker and blocks until ctx
// is cancelled or a worker returns a fatal error. Each worker polls ctx
// at the top of its loop (§5 Cancellation); capture children get a 5s
// termination grace from capture.Runner itself.
func (sv *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if sv.opts.MetricsAddr != "" {
		g.Go(func() error {
			appmetrics.Serve(ctx, sv.opts.MetricsAddr)
			return nil
		})
	}

	for _, c := range sv.buildCaptureCollectors() {
		c := c
		if c.runner != nil {
			g.Go(func() error {
				c.runner.Run(ctx)
				return nil
			})
		}
		g.Go(func() error {
			return runLoop(ctx, c.name, collectorInterval, c.cycle)
		})
	}

	for _, c := range sv.buildShortRunCollectors() {
		c := c
		g.Go(func() error {
			return runLoop(ctx, c.name, collectorInterval, c.cycle)
		})
	}

	deviceRegistry := devices.New(sv.store)
	g.Go(func() error { return runLoop(ctx, "devices", devicesInterval, deviceRegistry.Cycle) })

	vulnScanner := vuln.New(sv.store)
	g.Go(func() error { return runLoop(ctx, "vuln", vulnInterval, vulnScanner.Cycle) })

	securityScorer := scorer.New(sv.store)
	g.Go(func() error {
		return runLoop(ctx, "scorer", scorerInterval, func(ctx context.Context) error {
			_, err := securityScorer.Cycle(ctx)
			return err
		})
	})

	alerts := alertengine.New(sv.store)
	g.Go(func() error { return runLoop(ctx, "alertengine", alertInterval, alerts.Cycle) })

	aggregator := aiaggregator.New(sv.store, sv.chain, sv.cfg.Current().Interval())
	g.Go(func() error {
		return runLoop(ctx, "aiaggregator", sv.cfg.Current().Interval(), func(ctx context.Context) error {
			if !sv.cfg.Current().AIEnabled {
				return nil
			}
			return aggregator.Cycle(ctx)
		})
	})

	return g.Wait()
}

type captureCollector struct {
	name   string
	runner *capture.Runner
	cycle  func(context.Context) error
}

func (sv *Supervisor) buildCaptureCollectors() []captureCollector {
	logDir := filepath.Join(sv.opts.BaseDir, "logs")
	iface := sv.opts.Interface

	p0fRunner := capture.New(capture.Spec{
		Name: "p0f", Command: "p0f", Args: []string{"-i", iface},
		OutputMode: capture.OutputFile, OutputPath: filepath.Join(logDir, "p0f.log"),
	})
	p0fCollector := &collector.LogTailCollector{
		Tool: registry.ToolP0f, LogPath: filepath.Join(logDir, "p0f.log"), SourceID: "p0f.log",
		Parse: parsers.ParseP0f, Store: sv.store, Runner: p0fRunner, Position: sv.pos,
	}

	ngrepRunner := capture.New(capture.Spec{
		Name: "ngrep", Command: "ngrep", Args: []string{"-i", iface, "-t", "-q"},
		OutputMode: capture.OutputFile, OutputPath: filepath.Join(logDir, "ngrep.log"),
	})
	ngrepCollector := &collector.LogTailCollector{
		Tool: registry.ToolNgrep, LogPath: filepath.Join(logDir, "ngrep.log"), SourceID: "ngrep.log",
		Parse: parsers.ParseNgrep, Store: sv.store, Runner: ngrepRunner, Position: sv.pos,
	}

	httpryRunner := capture.New(capture.Spec{
		Name: "httpry", Command: "httpry", Args: []string{"-i", iface},
		OutputMode: capture.OutputFile, OutputPath: filepath.Join(logDir, "httpry.log"),
	})
	httpryCollector := &collector.LogTailCollector{
		Tool: registry.ToolHTTPry, LogPath: filepath.Join(logDir, "httpry.log"), SourceID: "httpry.log",
		Parse: parsers.ParseHTTPry, Store: sv.store, Runner: httpryRunner, Position: sv.pos,
	}

	suricataDir := filepath.Join(sv.opts.BaseDir, "suricata")
	suricataRunner := capture.New(capture.Spec{
		Name: "suricata", Command: "suricata", Args: []string{"-i", iface, "-l", suricataDir},
		OutputMode: capture.OutputDiscard,
	})
	suricataCollector := &collector.SuricataCollector{
		EVEPath: filepath.Join(suricataDir, "eve.json"), SourceID: "eve.json",
		Store: sv.store, Runner: suricataRunner, Position: sv.pos,
	}

	tcpdumpDir := filepath.Join(sv.opts.BaseDir, "tcpdump")
	tcpdumpRunner := capture.New(capture.Spec{
		Name: "tcpdump", Command: "tcpdump",
		Args:       []string{"-i", iface, "-w", filepath.Join(tcpdumpDir, "tcpdump_%Y%m%d_%H%M%S.pcap"), "-G", "60"},
		OutputMode: capture.OutputDiscard,
	})
	tcpdumpCollector := &collector.PCAPCollector{
		Tool: registry.ToolTcpdump, CaptureDir: tcpdumpDir, Parse: parsers.ParseTcpdumpPCAP, GeoIP: sv.geo,
		Store: sv.store, Runner: tcpdumpRunner, Position: sv.pos,
	}

	netsniffDir := filepath.Join(sv.opts.BaseDir, "netsniff")
	netsniffRunner := capture.New(capture.Spec{
		Name: "netsniff-ng", Command: "netsniff-ng",
		Args:       []string{"-i", iface, "-o", filepath.Join(netsniffDir, "netsniff_%Y%m%d_%H%M%S.pcap"), "--interval", "60s", "-s"},
		OutputMode: capture.OutputDiscard,
	})
	netsniffCollector := &collector.PCAPCollector{
		Tool: registry.ToolNetsniff, CaptureDir: netsniffDir, Parse: parsers.ParseNetsniffPCAP, GeoIP: sv.geo,
		Store: sv.store, Runner: netsniffRunner, Position: sv.pos,
	}

	argusDir := filepath.Join(sv.opts.BaseDir, "argus")
	argusRunner := capture.New(capture.Spec{
		Name: "argus", Command: "argus",
		Args:       []string{"-i", iface, "-w", filepath.Join(argusDir, "argus_%Y%m%d_%H%M%S.argus")},
		OutputMode: capture.OutputDiscard,
	})
	argusCollector := &collector.ArgusCollector{
		CaptureDir: argusDir, Store: sv.store, Position: sv.pos,
	}

	return []captureCollector{
		{name: "collector.p0f", runner: p0fRunner, cycle: p0fCollector.Cycle},
		{name: "collector.ngrep", runner: ngrepRunner, cycle: ngrepCollector.Cycle},
		{name: "collector.httpry", runner: httpryRunner, cycle: httpryCollector.Cycle},
		{name: "collector.suricata", runner: suricataRunner, cycle: suricataCollector.Cycle},
		{name: "collector.tcpdump", runner: tcpdumpRunner, cycle: tcpdumpCollector.Cycle},
		{name: "collector.netsniff", runner: netsniffRunner, cycle: netsniffCollector.Cycle},
		{name: "collector.argus", runner: argusRunner, cycle: argusCollector.Cycle},
		{name: "collector.tshark", runner: nil, cycle: (&collector.TsharkCollector{
			Interface: iface, WindowSecs: tsharkWindowSecs, GeoIP: sv.geo, Store: sv.store,
		}).Cycle},
	}
}

func (sv *Supervisor) buildShortRunCollectors() []captureCollector {
	iface := sv.opts.Interface

	iftop := &collector.ShortRunCollector{
		Tool: registry.ToolIftop, Command: "iftop", Args: []string{"-i", iface, "-t", "-s", "5"},
		RunFor: shortRunDuration, Parse: parsers.ParseIftop, Store: sv.store,
	}
	nethogs := &collector.ShortRunCollector{
		Tool: registry.ToolNethogs, Command: "nethogs", Args: []string{"-t", "-c", "5", iface},
		RunFor: shortRunDuration, Parse: parsers.ParseNethogs, Store: sv.store,
	}

	return []captureCollector{
		{name: "collector.iftop", cycle: iftop.Cycle},
		{name: "collector.nethogs", cycle: nethogs.Cycle},
	}
}
