package main

import (
	"github.com/ordermesh/pingpong/internal/bus"
	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/paper"
	"github.com/ordermesh/pingpong/internal/transport"
)

// newDryRunClient wires the in-process paper venue as the transport for a
// -dry-run trader, charging no simulated fee.
func newDryRunClient(queue *bus.Queue) transport.Outbound {
	return paper.New(paper.Config{FeeRate: coin.Zero}, queue)
}
