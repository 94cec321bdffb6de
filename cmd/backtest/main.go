package main

import (
	"context"
	stderrors "errors"
	"flag"
	"io"
	"os"

	"github.com/google/uuid"
	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"backtester/internal/core"
	"backtester/internal/feed"
	"backtester/internal/obs"
	"backtester/internal/ops"
	"backtester/internal/recorder"
	"backtester/internal/state"
	"backtester/internal/strategy"
)

const (
	exitOK   = 0
	exitFail = 1
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

type options struct {
	configPath  string
	slippage    string
	strategy    string
	logEvery    int
	journalDir  string
	inputPrefix string
	snapshot    string
	pyroscope   string
	dataPath    string
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("backtest", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "", "Path to JSON config")
	fs.StringVar(&opts.slippage, "slippage", "", "Absolute slippage applied to fills (overrides config)")
	fs.StringVar(&opts.strategy, "strategy", "", "Registered strategy name (overrides config)")
	fs.IntVar(&opts.logEvery, "log-every", -1, "Log every Nth tick, 0 logs signals only (overrides config)")
	fs.StringVar(&opts.journalDir, "journal", "", "Directory for the run journal (overrides config)")
	fs.StringVar(&opts.inputPrefix, "input-prefix", "", "Journal file prefix to read when the data path is a directory (default: config journal prefix)")
	fs.StringVar(&opts.snapshot, "snapshot", "", "Write final positions as JSON to this path")
	fs.StringVar(&opts.pyroscope, "pyroscope", "", "Pyroscope server address, e.g. http://localhost:4040")
	fs.Usage = func() {
		logs.Errorf("Usage: backtest [flags] <ticks.csv|journal-dir>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return opts, errors.New("missing data path")
	}
	opts.dataPath = fs.Arg(0)
	return opts, nil
}

func resolveConfig(opts options) (ops.Config, error) {
	cfg, err := ops.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}
	if opts.slippage != "" {
		cfg.Slippage, err = decimal.NewFromString(opts.slippage)
		if err != nil {
			return cfg, errors.Wrapf(err, "parse slippage %q", opts.slippage)
		}
	}
	if opts.strategy != "" {
		cfg.Strategy.Name = opts.strategy
	}
	if opts.logEvery >= 0 {
		cfg.LogEvery = opts.logEvery
	}
	if opts.journalDir != "" {
		cfg.Journal.Dir = opts.journalDir
	}
	return cfg, cfg.Validate()
}

func run(args []string, output io.Writer) int {
	opts, err := parseFlags(args, output)
	if err != nil {
		return exitFail
	}
	logs.Info("--- Backtester Starting ---")
	logs.Infof("Data file path: %s", opts.dataPath)

	cfg, err := resolveConfig(opts)
	if err != nil {
		logs.Errorf("Config load failed, err: %+v", err)
		return exitFail
	}

	strat, err := strategy.New(cfg.Strategy.Name, cfg.StrategyParams())
	if err != nil {
		logs.Errorf("Strategy init failed, err: %+v", err)
		return exitFail
	}

	if opts.pyroscope != "" {
		profiler, err := startProfiler(opts.pyroscope)
		if err != nil {
			logs.Errorf("Pyroscope start failed, err: %+v", err)
			return exitFail
		}
		defer func() { _ = profiler.Stop() }()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Warnf("Shutdown requested, stopping simulation")
			cancel()
		case <-ctx.Done():
		}
	}()

	prefix := cfg.Journal.Prefix
	if opts.inputPrefix != "" {
		prefix = opts.inputPrefix
	}
	src, err := feed.Open(ctx, opts.dataPath, prefix)
	if err != nil {
		logs.Errorf("Failed to load market data, err: %+v", err)
		return exitFail
	}

	runID := uuid.NewString()
	metrics := obs.NewMetrics()
	runnerOpts := []core.Option{core.WithMetrics(metrics)}

	var journal *recorder.Journal
	if cfg.Journal.Dir != "" {
		journal, err = openJournal(ctx, cfg.Journal, runID)
		if err != nil {
			logs.Errorf("Journal init failed, err: %+v", err)
			return exitFail
		}
		runnerOpts = append(runnerOpts, core.WithJournal(journal))
	}

	runner, err := core.NewRunner(core.Config{
		RunID:      runID,
		Instrument: cfg.Instrument,
		Slippage:   cfg.Slippage,
		LogEvery:   cfg.LogEvery,
		Risk:       cfg.Risk,
	}, src, strat, runnerOpts...)
	if err != nil {
		logs.Errorf("Runner init failed, err: %+v", err)
		return exitFail
	}

	code := exitOK
	res, err := runner.Run(ctx)
	if err != nil && !stderrors.Is(err, context.Canceled) {
		logs.Errorf("Simulation failed, err: %+v", err)
		code = exitFail
	}

	if journal != nil {
		if err := journal.Close(); err != nil {
			logs.Errorf("Journal close failed, err: %+v", err)
			code = exitFail
		} else {
			logs.Infof("Journal written, dir: %s, records: %d", cfg.Journal.Dir, journal.Written())
		}
	}

	if opts.snapshot != "" {
		if err := state.WriteSnapshot(opts.snapshot, runner.Book().Snapshot(runID, res.LastTick.Timestamp)); err != nil {
			logs.Errorf("Snapshot write failed, err: %+v", err)
			code = exitFail
		}
	}

	logSummary(res, metrics)
	logs.Info("--- Backtester Shutting Down ---")
	return code
}

func openJournal(ctx context.Context, cfg ops.JournalConfig, runID string) (*recorder.Journal, error) {
	wcfg := recorder.DefaultConfig(cfg.Dir)
	wcfg.FilePrefix = recorder.RunPrefix(cfg.Prefix, runID)
	w, err := recorder.NewWriter(wcfg)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return recorder.NewJournal(w), nil
}

func logSummary(res core.Result, metrics *obs.Metrics) {
	logs.Infof("Total ticks processed: %d", res.Ticks)
	logs.Infof("Run %s: signals=%d orders=%d executions=%d rejected=%d",
		res.RunID, res.Signals, res.Orders, res.Executions, res.Rejected)
	for _, p := range res.Positions {
		logs.Infof("Position %s: qty=%s avg=%s realized=%s unrealized=%s",
			p.Instrument, p.Quantity, p.AvgEntryPrice, p.RealizedPnL, p.UnrealizedPnL)
	}
	summary, err := metrics.Summary()
	if err != nil {
		logs.Warnf("Gather metrics failed, err: %+v", err)
		return
	}
	logs.Infof("Metrics: %v", summary)
}

func startProfiler(addr string) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: "backtester",
		ServerAddress:   addr,
		Logger:          profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...interface{})  { logs.Infof(format, args...) }
func (profilerLogger) Debugf(_ string, _ ...interface{})         {}
func (profilerLogger) Errorf(format string, args ...interface{}) { logs.Errorf(format, args...) }
