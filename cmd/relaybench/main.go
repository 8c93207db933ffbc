package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/studiowebux/relaybench/internal/config"
	"github.com/studiowebux/relaybench/internal/executor"
	"github.com/studiowebux/relaybench/internal/logging"
	"github.com/studiowebux/relaybench/internal/stresstest"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	version = "0.1.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "relaybench",
	Short: "Nostr relay benchmark",
	Long: `relaybench opens many WebSocket connections to a Nostr relay and measures
how fast it answers subscriptions.

Settings come from flags, RELAYBENCH_* environment variables or a YAML file
passed with --config, in that order of precedence.

Examples:
  relaybench req ws://127.0.0.1:7000                  # 100 clients, 50 per second
  relaybench req wss://relay.example.com -c 5000 -r 200 -k 60
  relaybench req ws://10.0.0.5:7000 -i 10.0.0.2 -i 10.0.0.3
  relaybench config ws://127.0.0.1:7000 -c 5000 > bench.yaml
  relaybench req --config bench.yaml`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var reqCmd = &cobra.Command{
	Use:   "req [URL]",
	Short: "Benchmark REQ/EOSE round trips over many connections",
	Long: `Each connection sends a REQ, waits for EOSE, sends CLOSE and starts over until
the keepalive deadline closes it or the relay drops it. A summary line is
printed every 2 seconds until every connection has finished.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReq,
}

var configCmd = &cobra.Command{
	Use:   "config [URL]",
	Short: "Print the resolved configuration as YAML",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfig,
}

// Flags for the root command
var (
	flagConfigFile string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "YAML config file")

	addBenchFlags(reqCmd.Flags())
	addBenchFlags(configCmd.Flags())

	rootCmd.AddCommand(reqCmd)
	rootCmd.AddCommand(configCmd)
}

// addBenchFlags registers the benchmark flags. Their names are the config keys.
func addBenchFlags(flags *pflag.FlagSet) {
	flags.IntP("count", "c", config.DefaultCount, "Count of clients")
	flags.IntP("rate", "r", config.DefaultRate, "Open connection rate every second")
	flags.IntP("keepalive", "k", config.DefaultKeepaliveSec, "Close connection after seconds, 0 keeps it open")
	flags.IntP("threads", "t", config.DefaultThreads, "Amount of threads, 0 uses all available cores")
	flags.StringSliceP("interface", "i", nil, "Local address to bind, can be repeated")
	flags.IntSlice("kinds", nil, "Event kinds in the subscription filter")
	flags.Int("limit", config.DefaultLimit, "Limit in the subscription filter")
	flags.Bool("insecure", false, "Skip TLS certificate verification")
	flags.String("ca-file", "", "CA certificate used to verify the relay")
	flags.String("cert-file", "", "Client certificate (mTLS)")
	flags.String("key-file", "", "Client key (mTLS)")
	flags.Int("handshake-timeout", config.DefaultHandshakeTimeout, "WebSocket handshake timeout in seconds")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.String("log-level", config.DefaultLogLevel, "Log level (debug/info/warn/error)")
	flags.Bool("log-json", false, "Log in JSON")
}

// loadConfig resolves the configuration of a command invocation
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	v := config.New()
	if len(args) > 0 {
		v.Set("url", args[0])
	}

	cfg, err := config.Load(v, cmd.Flags(), flagConfigFile)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// runReq runs the request benchmark
func runReq(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	fmt.Fprintln(cmd.OutOrStdout(), cfg.String())

	if cfg.Threads > 0 {
		runtime.GOMAXPROCS(cfg.Threads)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interfaces, err := config.ParseInterfaces(cfg.Interfaces)
	if err != nil {
		return err
	}

	dialer, err := executor.NewWebSocketDialer(ctx, executor.Options{
		URL:              cfg.URL,
		TLS:              &cfg.TLS,
		HandshakeTimeout: time.Duration(cfg.HandshakeTimeoutSec) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to prepare dialer: %w", err)
	}
	logger.Info("target resolved", zap.String("url", cfg.URL), zap.String("addr", dialer.Addr()))

	exec, err := stresstest.NewExecutor(&stresstest.ExecutionConfig{
		Config: &stresstest.Config{
			Count:        cfg.Count,
			Rate:         cfg.Rate,
			KeepaliveSec: cfg.KeepaliveSec,
			Interfaces:   interfaces,
			Filter:       cfg.Filter,
		},
		Dial:   stresstest.WebSocketDial(dialer),
		Logger: logger,
		Output: cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		_, shutdown, err := serveMetrics(cfg.MetricsAddr, exec.Stats(), logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	conn, events, err := exec.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("run interrupted")
		err = nil
	}

	logger.Info("run finished",
		zap.Int("completed", conn.Completed),
		zap.Int("closed", conn.Closed),
		zap.Int("lost", conn.Lost),
		zap.Int("errored", conn.Errored),
		zap.Int("requests", events.Total),
		zap.Duration("avg_connect", conn.AvgSuccessTime()),
		zap.Duration("avg_round_trip", events.AvgRoundTripTime()),
	)

	return err
}

// runConfig prints the resolved configuration
func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
