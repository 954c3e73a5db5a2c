package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/codefionn/vtsclient/internal/config"
	"github.com/spf13/cobra"
)

var (
	configFile    string
	urlFlag       string
	tokenFile     string
	logLevel      string
	metricsAddr   string
	transportFlag string
	sealToken     bool
	enablePprof   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "vtsclient",
	Short: "Command line client for the VTube Studio plugin API",
	Long: `vtsclient talks to a running VTube Studio over its plugin websocket API.

The first request asks VTube Studio for a plugin token; accept the popup in
VTube Studio once and the token is stored for later runs.

Use 'vtsclient help <command>' for more information on a specific command.`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.GetConfigPath(), "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&urlFlag, "url", "", "VTube Studio websocket URL")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", "", "File the plugin token is stored in")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error, none)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	rootCmd.PersistentFlags().BoolVar(&enablePprof, "pprof", false, "Also serve /debug/pprof on the metrics address")
	rootCmd.PersistentFlags().StringVar(&transportFlag, "transport", "", "Websocket implementation (gorilla, coder)")
	rootCmd.PersistentFlags().BoolVar(&sealToken, "seal", false, "Encrypt the stored token with a password")

	rootCmd.AddCommand(stateCmd, statsCmd, sendCmd, hotkeyCmd, eventsCmd, configCmd)
}

// loadConfig reads the config file and applies command line overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.URL = urlFlag
	}
	if flags.Changed("token-file") {
		cfg.TokenFile = tokenFile
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
	if flags.Changed("transport") {
		cfg.Transport = transportFlag
	}
	if flags.Changed("seal") {
		cfg.SealToken = sealToken
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
