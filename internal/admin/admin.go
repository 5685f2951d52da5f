// Package admin exposes a Unix domain socket control plane for operators:
// cancelAll/cancelLocal per market and a status dump, built on pkg/uds's
// generic listener/dialer wrappers and pkg/scanner's flat-text field
// scanner instead of a full JSON decoder, since every command is a single
// flat line.
package admin

import (
	"fmt"
	"net"

	"github.com/ordermesh/pingpong/internal/engine"
	"github.com/ordermesh/pingpong/internal/logging"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/pkg/scanner"
	"github.com/ordermesh/pingpong/pkg/uds"
)

// Reactor is the subset of reactor state the control socket can act on.
type Reactor interface {
	Engine() *engine.Engine
	Markets() []market.Market
}

// Server accepts control connections on a Unix domain socket and dispatches
// single-line commands of the form `{"command":"cancelAll","market":"BTC_USDT"}`.
type Server struct {
	uds     *uds.Server
	reactor Reactor
	log     logging.Logger
}

// New creates a control socket server bound to path, not yet listening.
func New(path string, reactor Reactor, log logging.Logger) (*Server, error) {
	s, err := uds.NewServer(path)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Server{uds: s, reactor: reactor, log: log}, nil
}

// Run listens and serves connections until Close is called.
func (s *Server) Run() error {
	if err := s.uds.Listen(); err != nil {
		return err
	}
	for {
		conn, err := s.uds.Accept()
		if err != nil {
			return err
		}
		go s.handle(conn)
	}
}

// Close stops the listener.
func (s *Server) Close() error {
	return s.uds.Close()
}

func (s *Server) handle(conn *net.UnixConn) {
	defer conn.Close()
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return
	}
	reply := s.dispatch(buf[:n])
	_, _ = conn.Write(reply)
}

func (s *Server) dispatch(line []byte) []byte {
	cmd, ok := scanner.ScanStringField(line, []byte(`"command"`))
	if !ok {
		return []byte(`{"error":"missing command"}`)
	}
	switch string(cmd) {
	case "cancelAll":
		return s.cancelEvery(line, func(e *engine.Engine, m market.Market) error { return e.CancelAll(m) })
	case "cancelLocal":
		return s.cancelEvery(line, func(e *engine.Engine, m market.Market) error { return e.CancelLocal(m) })
	case "status":
		return s.status()
	default:
		return []byte(fmt.Sprintf(`{"error":"unknown command %q"}`, cmd))
	}
}

func (s *Server) cancelEvery(line []byte, fn func(*engine.Engine, market.Market) error) []byte {
	raw, hasMarket := scanner.ScanStringField(line, []byte(`"market"`))
	markets := s.reactor.Markets()
	if hasMarket {
		markets = []market.Market{market.Market(raw)}
	}
	e := s.reactor.Engine()
	if e == nil {
		return []byte(`{"error":"no engine"}`)
	}
	for _, m := range markets {
		if err := fn(e, m); err != nil {
			s.log.Error("admin command failed", "market", m, "error", err)
			return []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
		}
	}
	return []byte(`{"ok":true}`)
}

func (s *Server) status() []byte {
	markets := s.reactor.Markets()
	out := []byte(`{"markets":[`)
	for i, m := range markets {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '"')
		out = append(out, []byte(m)...)
		out = append(out, '"')
	}
	out = append(out, []byte(`]}`)...)
	return out
}
