package flags

import (
	cli "gopkg.in/urfave/cli.v1"
)

// OracleFlags returns the base set of CLI flags shared across commands.
func OracleFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "datadir",
			Usage: "Data directory for the entity store (defaults to in-memory)",
		},
		cli.StringFlag{
			Name:  "config",
			Usage: "TOML configuration file",
		},
		cli.StringFlag{
			Name:  "calls",
			Usage: "JSON-lines file of oracle calls to process",
		},
		cli.StringFlag{
			Name:  "log.format",
			Usage: "Log output format (text|json)",
			Value: "text",
		},
		cli.IntFlag{
			Name:  "log.verbosity",
			Usage: "Logging verbosity (0=fatal,1=error,2=warn,3=info,4=debug,5=trace)",
			Value: 3,
		},
		cli.BoolFlag{
			Name:  "log.color",
			Usage: "Enable colored log output",
		},
		cli.BoolFlag{
			Name:  "metrics",
			Usage: "Enable collection of Prometheus-compatible metrics",
		},
		cli.StringFlag{
			Name:  "metrics.addr",
			Usage: "Metrics server listening interface",
			Value: "127.0.0.1",
		},
		cli.IntFlag{
			Name:  "metrics.port",
			Usage: "Metrics server listening port",
			Value: 6060,
		},
		cli.StringFlag{
			Name:  "sentry.dsn",
			Usage: "Sentry DSN for error reporting (disabled when empty)",
		},
		cli.StringFlag{
			Name:  "oracle.idscheme",
			Usage: "Network identity scheme (chainid|counter)",
		},
		cli.BoolFlag{
			Name:  "oracle.auxstate",
			Usage: "Re-publish the global state under the legacy auxiliary id",
		},
	}
}
