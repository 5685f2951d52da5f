package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/bytedance/sonic"

	"github.com/ordermesh/pingpong/internal/recorder"
	"github.com/ordermesh/pingpong/internal/state"
	"github.com/ordermesh/pingpong/internal/wal"
)

func main() {
	dir := flag.String("dir", "testdata/wal", "WAL directory")
	prefix := flag.String("prefix", "", "WAL file prefix (default: wal)")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	useRecv := flag.Bool("use-recv-time", false, "Use receive timestamp for pacing")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	decode := flag.Bool("decode", false, "Decode known payload types")
	flag.Parse()

	cfg := recorder.PlaybackConfig{
		Dir:             *dir,
		FilePrefix:      *prefix,
		Speed:           *speed,
		UseRecvTime:     *useRecv,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
	}
	pb, err := recorder.NewPlayback(cfg)
	if err != nil {
		log.Fatalf("playback init failed: %v", err)
	}

	ctx := context.Background()
	var index int
	err = pb.Run(ctx, func(header wal.Header, payload []byte) error {
		index++
		fmt.Printf("%06d seq=%d type=%s ts_event=%d ts_recv=%d len=%d\n", index, header.Seq, header.Type, header.TsEvent, header.TsRecv, len(payload))
		if *decode {
			printDecoded(header.Type, payload)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("playback run failed: %v", err)
	}
}

func printDecoded(t wal.EventType, payload []byte) {
	switch t {
	case wal.EventFill:
		var fill state.FillRecord
		if err := sonic.Unmarshal(payload, &fill); err != nil {
			fmt.Printf("  decode fill failed: %v\n", err)
			return
		}
		fmt.Printf("  fill market=%s side=%s qty=%s\n", fill.Market, fill.Side, fill.Qty)
	default:
		return
	}
}
