// Package main is the entry point for dynproxy.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/vyrodovalexey/dynproxy/internal/config"
	"github.com/vyrodovalexey/dynproxy/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Bootstrap logger defaults, used until the configuration is loaded.
const (
	defaultConfigPath = "configs/dynproxy.yaml"
	defaultLogLevel   = "info"
	defaultLogFormat  = "json"
)

// cliFlags holds command line flags. Empty log settings defer to the
// configuration file.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	if flags.showVersion {
		printVersion(os.Stdout)
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)

	logger = reconfigureLogger(flags, cfg, logger)
	app := initApplication(cfg, logger)

	runProxy(app, flags.configPath, logger)
}

// parseFlags parses command line flags. Each flag falls back to a
// DYNPROXY_* environment variable.
func parseFlags(args []string) (cliFlags, error) {
	var flags cliFlags

	fs := pflag.NewFlagSet("dynproxy", pflag.ContinueOnError)
	fs.StringVarP(&flags.configPath, "config", "c",
		getEnvOrDefault("DYNPROXY_CONFIG", defaultConfigPath),
		"Path to configuration file")
	fs.StringVar(&flags.logLevel, "log-level",
		getEnvOrDefault("DYNPROXY_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error); overrides the configuration file")
	fs.StringVar(&flags.logFormat, "log-format",
		getEnvOrDefault("DYNPROXY_LOG_FORMAT", ""),
		"Log format (json, console); overrides the configuration file")
	fs.BoolVarP(&flags.showVersion, "version", "v",
		getEnvBool("DYNPROXY_VERSION", false),
		"Show version information")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}

	return flags, nil
}

// printVersion prints version information.
func printVersion(w io.Writer) {
	_, _ = fmt.Fprintf(w, "dynproxy version %s\n", version)
	_, _ = fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	_, _ = fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

// initLogger initializes the bootstrap logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  firstNonEmpty(flags.logLevel, defaultLogLevel),
		Format: firstNonEmpty(flags.logFormat, defaultLogFormat),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// reconfigureLogger rebuilds the logger from the configuration file,
// keeping any level or format given on the command line.
func reconfigureLogger(
	flags cliFlags,
	cfg *config.ProxyConfig,
	current observability.Logger,
) observability.Logger {
	logging := cfg.Spec.Observability.Logging

	logger, err := observability.NewLogger(loggerConfig(flags, logging))
	if err != nil {
		current.Fatal("failed to initialize logger from configuration", observability.Error(err))
		return current
	}

	_ = current.Sync()
	observability.SetGlobalLogger(logger)
	return logger
}

// loggerConfig merges command line and file logging settings.
func loggerConfig(flags cliFlags, logging config.LoggingConfig) observability.LogConfig {
	return observability.LogConfig{
		Level:  firstNonEmpty(flags.logLevel, logging.Level, defaultLogLevel),
		Format: firstNonEmpty(flags.logFormat, logging.Format, defaultLogFormat),
		Output: logging.Output,
	}
}

// loadAndValidateConfig loads and validates the configuration. Any error
// stops the process before a listener is opened.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.ProxyConfig {
	logger.Info("starting dynproxy",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
		return nil
	}

	if err := config.ValidateConfig(cfg); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
		return nil
	}

	upstream := cfg.Spec.Upstream
	logger.Info("configuration loaded",
		observability.String("name", cfg.Metadata.Name),
		observability.String("listener", cfg.Spec.Listener.Address),
		observability.String("upstream", upstream.Scheme+"://"+upstream.Host+upstream.PathBase),
		observability.Bool("dynamic", upstream.UseDynamicSchemeAndHost),
		observability.Int("append_query", len(upstream.AppendQuery)),
	)

	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
