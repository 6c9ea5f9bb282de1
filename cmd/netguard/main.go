package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/netguardpro/netguard/internal/registry"
	"github.com/netguardpro/netguard/internal/scorer"
	"github.com/netguardpro/netguard/internal/store"
	"github.com/netguardpro/netguard/internal/supervisor"
	"github.com/netguardpro/netguard/internal/vuln"
)

var (
	// Version is set at build time with -ldflags.
	Version = "dev"

	dbPath       string
	baseDir      string
	iface        string
	geoIPPath    string
	aiConfigPath string
	metricsAddr  string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:     "netguard",
	Short:   "NetGuard Pro - home network security monitor",
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSupervisor()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("netguard %s\n", Version)
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Recompute every device's security score and print the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScoreOnce()
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one vulnerability-scanner cycle against active IoT devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScanOnce()
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Drop all collector tables and truncate derived-state tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFlush()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "netguard.db", "path to the embedded database file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.Flags().StringVar(&baseDir, "base-dir", "./netguard-data", "root directory for capture output and logs")
	rootCmd.Flags().StringVar(&iface, "interface", "eth0", "network interface to monitor")
	rootCmd.Flags().StringVar(&geoIPPath, "geoip-db", "", "optional path to a MaxMind country database")
	rootCmd.Flags().StringVar(&aiConfigPath, "ai-config", "ai_config.json", "path to the AI configuration file")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "127.0.0.1:9090", "loopback address for the /metrics and /healthz server")

	rootCmd.AddCommand(versionCmd, scoreCmd, scanCmd, flushCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setupLogging() {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

func runSupervisor() error {
	setupLogging()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sv, err := supervisor.New(supervisor.Options{
		DBPath:       dbPath,
		BaseDir:      baseDir,
		Interface:    iface,
		GeoIPPath:    geoIPPath,
		AIConfigPath: aiConfigPath,
		MetricsAddr:  metricsAddr,
	})
	if err != nil {
		return err
	}
	defer sv.Close()

	log.Info().Str("version", Version).Str("interface", iface).Msg("netguard starting")
	return sv.Run(ctx)
}

func runScoreOnce() error {
	setupLogging()
	s, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	results, err := scorer.New(s).Cycle(context.Background())
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("%-15s score=%-3d grade=%s  %v\n", r.IPAddress, r.Score, r.Grade, r.Reasons)
	}
	return nil
}

func runScanOnce() error {
	setupLogging()
	s, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := vuln.New(s).Cycle(context.Background()); err != nil {
		return err
	}
	fmt.Println("vulnerability scan complete")
	return nil
}

func runFlush() error {
	setupLogging()
	s, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	db := s.DB()

	tools := []registry.Tool{
		registry.ToolTcpdump, registry.ToolTshark, registry.ToolP0f, registry.ToolNgrep,
		registry.ToolHTTPry, registry.ToolArgus, registry.ToolNetsniff, registry.ToolIftop, registry.ToolNethogs,
	}
	for _, et := range registry.SuricataEventTypes {
		tools = append(tools, registry.SuricataTool(et))
	}

	dropped := 0
	for _, tool := range tools {
		tables, err := registry.List(ctx, db, tool)
		if err != nil {
			return fmt.Errorf("list tables for %s: %w", tool, err)
		}
		for _, t := range tables {
			if err := registry.Drop(ctx, db, t); err != nil {
				return fmt.Errorf("drop %s: %w", t, err)
			}
			dropped++
		}
	}

	for _, table := range []string{"devices", "security_alerts", "alert_history", "iot_vulnerabilities", "ai_analysis", "collector_positions"} {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %q", table)); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}

	fmt.Printf("flushed %d collector tables and truncated derived-state tables\n", dropped)
	return nil
}
