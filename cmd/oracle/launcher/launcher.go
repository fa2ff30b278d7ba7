package launcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Fantom-foundation/lachesis-base/kvdb/memorydb"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/evalphobia/logrus_sentry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/edgeandnode/block-oracle/entity"
	"github.com/edgeandnode/block-oracle/flags"
	"github.com/edgeandnode/block-oracle/metrics"
	"github.com/edgeandnode/block-oracle/oracle"
	"github.com/edgeandnode/block-oracle/source"
	"github.com/edgeandnode/block-oracle/store"
)

func makeApp() *cli.App {
	app := flags.NewApp("cross-chain epoch oracle indexer")
	app.Flags = flags.OracleFlags()
	app.Commands = []cli.Command{
		{
			Name:      "run",
			Usage:     "Process a calls file through the indexer",
			Action:    runIndexer,
			ArgsUsage: "[calls file]",
		},
		{
			Name:      "encode",
			Usage:     "Encode a JSON message list into payload bytes",
			Action:    encodePayload,
			ArgsUsage: "<messages file>",
		},
		{
			Name:      "query",
			Usage:     "Look up one entity by kind and id",
			Action:    queryEntity,
			ArgsUsage: "<kind> <id>",
		},
	}
	return app
}

// Launch parses flags and runs the selected command.
func Launch(args []string) error {
	return makeApp().Run(args)
}

func makeLogger(cfg LoggingConfig) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{ForceColors: cfg.Color})
	}
	levels := []logrus.Level{
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
		logrus.DebugLevel,
		logrus.TraceLevel,
	}
	verbosity := cfg.Verbosity
	if verbosity < 0 {
		verbosity = 0
	}
	if verbosity >= len(levels) {
		verbosity = len(levels) - 1
	}
	log.SetLevel(levels[verbosity])
	return log
}

func installSentryHook(log *logrus.Logger, dsn string) error {
	hook, err := logrus_sentry.NewSentryHook(dsn, []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
	})
	if err != nil {
		return fmt.Errorf("sentry hook: %w", err)
	}
	log.AddHook(hook)
	return nil
}

// openEntityStore picks the key-value backend: LevelDB under the data
// directory, or an in-memory store when none is configured.
func openEntityStore(cfg NodeConfig, log *logrus.Logger) (*store.EntityStore, error) {
	if cfg.DataDir == "" {
		log.Warn("no data directory configured, using in-memory entity store")
		return store.NewEntityStore(memorydb.New(), log), nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create datadir %s: %w", cfg.DataDir, err)
	}
	db, err := store.OpenLevelDB(filepath.Join(cfg.DataDir, "entities"))
	if err != nil {
		return nil, fmt.Errorf("open entity database: %w", err)
	}
	return store.NewEntityStore(db, log), nil
}

func runIndexer(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	log := makeLogger(cfg.Node.Logging)
	if cfg.Sentry.DSN != "" {
		if err := installSentryHook(log, cfg.Sentry.DSN); err != nil {
			return err
		}
	}

	callsFile := cfg.Source.CallsFile
	if ctx.Args().Present() {
		callsFile = ctx.Args().First()
	}
	if callsFile == "" {
		return fmt.Errorf("no calls file configured; pass one as an argument or via --calls")
	}

	entityStore, err := openEntityStore(cfg.Node, log)
	if err != nil {
		return err
	}
	defer entityStore.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		m = metrics.New(registry)
		addr := fmt.Sprintf("%s:%d", cfg.Metrics.Addr, cfg.Metrics.Port)
		srv := metrics.Serve(addr, registry)
		defer srv.Close()
		log.WithField("addr", addr).Info("metrics server started")
	}

	drv, err := oracle.New(entityStore, cfg.Oracle, log, m)
	if err != nil {
		return err
	}

	src, err := source.OpenFile(callsFile)
	if err != nil {
		return err
	}
	defer src.Close()

	processed := 0
	for {
		call, ok, err := src.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := drv.ProcessCall(call); err != nil {
			return fmt.Errorf("call %s: %w", call.TxHash.Hex(), err)
		}
		processed++
	}
	log.WithField("calls", processed).Info("calls file processed")
	return nil
}

func encodePayload(ctx *cli.Context) error {
	if !ctx.Args().Present() {
		return fmt.Errorf("encode needs a JSON messages file argument")
	}
	raw, err := os.ReadFile(ctx.Args().First())
	if err != nil {
		return err
	}
	var msgs []oracle.MessageSpec
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return fmt.Errorf("parse messages file: %w", err)
	}
	payload, err := oracle.EncodeMessages(msgs)
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.App.Writer, hexutil.Encode(payload))
	return nil
}

func queryEntity(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return fmt.Errorf("query needs <kind> and <id> arguments")
	}
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	log := makeLogger(cfg.Node.Logging)

	entityStore, err := openEntityStore(cfg.Node, log)
	if err != nil {
		return err
	}
	defer entityStore.Close()

	kind := entity.Kind(ctx.Args().Get(0))
	id := ctx.Args().Get(1)
	ent, ok, err := entityStore.Load(kind, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no %s entity with id %q", kind, id)
	}
	out, err := json.MarshalIndent(ent, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.App.Writer, string(out))
	return nil
}
