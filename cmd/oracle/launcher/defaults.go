package launcher

import "github.com/edgeandnode/block-oracle/oracle"

// DefaultConfig returns the configuration of a stock deployment.
func DefaultConfig() Config {
	return Config{
		Node: NodeConfig{
			DataDir: "",
			Logging: LoggingConfig{
				Verbosity: 3,
				Format:    "text",
			},
		},
		Oracle: oracle.DefaultRules(),
		Metrics: MetricsConfig{
			Addr: "127.0.0.1",
			Port: 6060,
		},
	}
}
