package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/yanun0323/logs"

	"backtester/internal/codec"
	"backtester/internal/recorder"
	"backtester/internal/schema"
	"backtester/internal/state"
)

func main() {
	dir := flag.String("dir", "journal", "Journal directory")
	prefix := flag.String("prefix", "", "Journal file prefix (default: backtest)")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	noChecksum := flag.Bool("no-checksum", false, "Skip checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	decode := flag.Bool("decode", false, "Decode payloads")
	positions := flag.Bool("positions", false, "Rebuild positions from executions and print them")
	flag.Parse()

	cfg := recorder.PlaybackConfig{
		Dir:            *dir,
		FilePrefix:     *prefix,
		Speed:          *speed,
		SkipChecksum:   *noChecksum,
		MaxPayloadSize: *maxPayload,
	}
	ctx := context.Background()

	if *positions {
		res, err := state.Rebuild(ctx, cfg)
		if err != nil {
			logs.Errorf("Rebuild positions failed, err: %+v", err)
			os.Exit(1)
		}
		for _, p := range res.Book.Positions() {
			fmt.Printf("%s qty=%s avg=%s realized=%s unrealized=%s\n",
				p.Instrument, p.Quantity, p.AvgEntryPrice, p.RealizedPnL, p.UnrealizedPnL)
		}
		logs.Infof("Rebuilt positions from %d executions, last seq: %d", res.Executions, res.LastSeq)
		return
	}

	pb, err := recorder.NewPlayback(cfg)
	if err != nil {
		logs.Errorf("Playback init failed, err: %+v", err)
		os.Exit(1)
	}

	var index int
	err = pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		index++
		fmt.Printf("%06d seq=%d type=%s ts_event=%d ts_recv=%d len=%d\n",
			index, header.Seq, header.Type, header.TsEvent, header.TsRecv, len(payload))
		if *decode {
			fmt.Println("  " + describe(header.Type, payload))
		}
		return nil
	})
	if err != nil {
		logs.Errorf("Playback run failed, err: %+v", err)
		os.Exit(1)
	}
}

func describe(t schema.EventType, payload []byte) string {
	switch t {
	case schema.EventTick:
		tick, err := codec.DecodeTick(payload)
		if err != nil {
			return "decode Tick failed: " + err.Error()
		}
		return fmt.Sprintf("tick time=%s price=%s volume=%s",
			tick.Timestamp.Format("2006-01-02 15:04:05.000"), tick.Price, tick.Volume)
	case schema.EventOrder:
		o, err := codec.DecodeOrder(payload)
		if err != nil {
			return "decode Order failed: " + err.Error()
		}
		return fmt.Sprintf("order id=%s instrument=%s type=%s side=%s qty=%s price=%s status=%s",
			o.ID, o.Instrument, o.Type, o.Side, o.Quantity, o.Price, o.Status)
	case schema.EventExecution:
		e, err := codec.DecodeExecution(payload)
		if err != nil {
			return "decode Execution failed: " + err.Error()
		}
		return fmt.Sprintf("execution id=%s order=%s instrument=%s side=%s qty=%s price=%s",
			e.ExecutionID, e.OrderID, e.Instrument, e.Side, e.Quantity, e.Price)
	case schema.EventRiskDecision:
		d, err := codec.DecodeRiskDecision(payload)
		if err != nil {
			return "decode RiskDecision failed: " + err.Error()
		}
		return fmt.Sprintf("risk order=%s action=%s reason=%s", d.OrderID, d.Action, d.Reason)
	default:
		return fmt.Sprintf("unknown payload type %d", t)
	}
}
