package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/ordermesh/pingpong/internal/bus"
	"github.com/ordermesh/pingpong/internal/ops"
)

// watchConfig polls path's mtime and republishes the risk section onto
// queue as a bus.KindConfigReload event whenever the file changes, so an
// operator can tighten limits (or flip the kill switch) without a
// restart.
func watchConfig(ctx context.Context, path string, interval time.Duration, queue *bus.Queue) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				log.Printf("config stat failed: %v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			loaded, err := ops.Load(path)
			if err != nil {
				log.Printf("config reload failed: %v", err)
				continue
			}
			if err := queue.TryPublish(bus.Event{Kind: bus.KindConfigReload, Ts: time.Now().UnixNano(), Payload: loaded.Risk}); err != nil {
				log.Printf("config reload publish failed: %v", err)
				continue
			}
			lastMod = info.ModTime()
			log.Printf("config reloaded: %s", path)
		}
	}
}
