package config

import (
	"flag"
	"io"
)

// CLIFlags holds command-line overrides. A nil field means the flag was not
// set on the command line and must not override anything.
type CLIFlags struct {
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
	ConfigPath *string
}

// ParseFlags parses command-line arguments into CLIFlags.
// Shorthand aliases: -p for --port, -c for --config.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("agentsd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	port := fs.String("port", "", "HTTP server port")
	fs.StringVar(port, "p", "", "HTTP server port (shorthand)")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	dsn := fs.String("dsn", "", "PostgreSQL DSN")
	natsURL := fs.String("nats-url", "", "NATS server URL")
	configPath := fs.String("config", "", "path to YAML config file")
	fs.StringVar(configPath, "c", "", "path to YAML config file (shorthand)")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var flags CLIFlags
	if set["port"] || set["p"] {
		flags.Port = port
	}
	if set["log-level"] {
		flags.LogLevel = logLevel
	}
	if set["dsn"] {
		flags.DSN = dsn
	}
	if set["nats-url"] {
		flags.NatsURL = natsURL
	}
	if set["config"] || set["c"] {
		flags.ConfigPath = configPath
	}
	return flags, nil
}

// LoadWithCLI loads configuration with CLI flags as the highest-precedence
// layer: defaults < YAML < ENV < CLI. It returns the resolved YAML path.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if flags.ConfigPath != nil {
		path = *flags.ConfigPath
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		return nil, path, err
	}

	applyCLI(cfg, flags)
	return cfg, path, nil
}

// applyCLI overlays non-nil CLI flags onto cfg.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DSN != nil {
		cfg.Postgres.DSN = *flags.DSN
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
}
