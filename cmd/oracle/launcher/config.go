package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/edgeandnode/block-oracle/oracle"
)

// Config aggregates every subsystem's configuration the launcher needs.
// Values are merged from defaults, an optional TOML config file, and CLI
// flag overrides, in that order.
type Config struct {
	Node    NodeConfig
	Oracle  oracle.Rules
	Source  SourceConfig
	Metrics MetricsConfig
	Sentry  SentryConfig
}

type NodeConfig struct {
	// DataDir hosts the entity store. Empty selects an in-memory store,
	// which only makes sense for one-shot harness runs.
	DataDir string
	Logging LoggingConfig
}

type LoggingConfig struct {
	Verbosity int
	Format    string
	Color     bool
}

type SourceConfig struct {
	CallsFile string
}

type MetricsConfig struct {
	Enabled bool
	Addr    string
	Port    int
}

type SentryConfig struct {
	DSN string
}

// MakeAllConfigs merges defaults, config-file values, and CLI overrides
// into a single config struct.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := DefaultConfig()

	if file := ctx.GlobalString("config"); file != "" {
		if _, err := toml.DecodeFile(file, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file %s: %w", file, err)
		}
	}
	applyCLIOverrides(ctx, &cfg)

	if err := cfg.Oracle.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) {
	if ctx.GlobalIsSet("datadir") {
		cfg.Node.DataDir = resolvePath(ctx.GlobalString("datadir"))
	}
	if ctx.GlobalIsSet("calls") {
		cfg.Source.CallsFile = ctx.GlobalString("calls")
	}
	if ctx.GlobalIsSet("log.format") {
		cfg.Node.Logging.Format = ctx.GlobalString("log.format")
	}
	if ctx.GlobalIsSet("log.verbosity") {
		cfg.Node.Logging.Verbosity = ctx.GlobalInt("log.verbosity")
	}
	if ctx.GlobalIsSet("log.color") {
		cfg.Node.Logging.Color = ctx.GlobalBool("log.color")
	}
	if ctx.GlobalBool("metrics") {
		cfg.Metrics.Enabled = true
	}
	if ctx.GlobalIsSet("metrics.addr") {
		cfg.Metrics.Addr = ctx.GlobalString("metrics.addr")
	}
	if ctx.GlobalIsSet("metrics.port") {
		cfg.Metrics.Port = ctx.GlobalInt("metrics.port")
	}
	if ctx.GlobalIsSet("sentry.dsn") {
		cfg.Sentry.DSN = ctx.GlobalString("sentry.dsn")
	}
	if ctx.GlobalIsSet("oracle.idscheme") {
		cfg.Oracle.NetworkIDScheme = oracle.NetworkIDScheme(ctx.GlobalString("oracle.idscheme"))
	}
	if ctx.GlobalBool("oracle.auxstate") {
		cfg.Oracle.KeepAuxGlobalState = true
	}
}

func resolvePath(p string) string {
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "~") {
		return filepath.Join(guessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	return p
}

func guessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
