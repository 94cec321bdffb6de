package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"backtester/internal/chaos"
	"backtester/internal/feed"
	"backtester/internal/ops"
	"backtester/internal/recorder"
	"backtester/internal/schema"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

type options struct {
	input        string
	inputPrefix  string
	outputDir    string
	outputPrefix string
	chaos        chaos.Config
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("chaos", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.input, "input", "", "Tick CSV file or journal directory")
	fs.StringVar(&opts.inputPrefix, "input-prefix", ops.DefaultJournalPrefix, "Journal file prefix when input is a directory")
	fs.StringVar(&opts.outputDir, "output-dir", "journal_chaos", "Output journal directory")
	fs.StringVar(&opts.outputPrefix, "output-prefix", ops.DefaultJournalPrefix, "Output journal file prefix, a run id is appended")
	fs.Uint64Var(&opts.chaos.Seed, "seed", 0, "RNG seed (0=now)")
	fs.Float64Var(&opts.chaos.DropRate, "drop-rate", 0, "Drop probability [0-1]")
	fs.Float64Var(&opts.chaos.DuplicateRate, "dup-rate", 0, "Duplicate probability [0-1]")
	fs.IntVar(&opts.chaos.ReorderWindow, "reorder-window", 1, "Reorder window (>=1)")
	fs.Int64Var(&opts.chaos.JitterBps, "jitter-bps", 0, "Max price jitter in basis points")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.input == "" {
		logs.Errorf("Usage: chaos -input <ticks.csv|journal-dir> [flags]")
		return opts, errors.New("missing input")
	}
	return opts, nil
}

func run(args []string, output io.Writer) int {
	opts, err := parseFlags(args, output)
	if err != nil {
		return 1
	}

	ctx := context.Background()
	src, err := feed.Open(ctx, opts.input, opts.inputPrefix)
	if err != nil {
		logs.Errorf("Load input failed, err: %+v", err)
		return 1
	}

	engine, err := chaos.NewEngine(opts.chaos)
	if err != nil {
		logs.Errorf("Chaos config invalid, err: %+v", err)
		return 1
	}

	ticks := make([]schema.Tick, 0, src.Len())
	for tick, ok := src.Next(); ok; tick, ok = src.Next() {
		ticks = append(ticks, tick)
	}
	out := engine.Apply(ticks)

	cfg := recorder.DefaultConfig(opts.outputDir)
	cfg.FilePrefix = recorder.RunPrefix(opts.outputPrefix, uuid.NewString())
	w, err := recorder.NewWriter(cfg)
	if err != nil {
		logs.Errorf("Writer init failed, err: %+v", err)
		return 1
	}
	if err := w.Start(ctx); err != nil {
		logs.Errorf("Writer start failed, err: %+v", err)
		return 1
	}
	journal := recorder.NewJournal(w)
	code := 0
	for _, tick := range out {
		if err := journal.Tick(ctx, tick); err != nil {
			logs.Errorf("Append tick failed, err: %+v", err)
			code = 1
			break
		}
	}
	if err := journal.Close(); err != nil {
		logs.Errorf("Writer close failed, err: %+v", err)
		return 1
	}
	logs.Infof("Chaos completed: in=%d out=%d written=%d run=%s", len(ticks), len(out), journal.Written(), cfg.FilePrefix)
	return code
}
