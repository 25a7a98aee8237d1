package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/time/rate"

	"distfs/internal/logging"
	"distfs/internal/protocol"
)

// HandlerFunc decodes a command's raw payload and returns the response
// value to encode back to the caller. Handlers are expected to encode
// their own failures as a typed response (e.g. Ack{OK:false, Error:...})
// rather than returning a Go error for ordinary, expected failures;
// returning an error here is reserved for payloads so malformed the
// handler cannot even build a typed error response.
type HandlerFunc func(payload []byte) (interface{}, error)

// Server accepts framed connections and dispatches each request by its
// "command" field to a registered HandlerFunc. One connection may carry
// many request/response pairs in sequence (spec §2: "synchronous
// request/response over stream sockets"); the server loops reading
// frames from a connection until the peer closes it or a framing error
// occurs.
//
// Connection accept can be gated by a token-bucket rate limiter (see
// NewServer; a zero rate leaves it off) rather than
// a hard worker pool, per spec §5's resource-bounds note that an
// unbounded thread-per-connection model is permitted and a cap is only
// "encouraged".
type Server struct {
	ln      net.Listener
	limiter *rate.Limiter
	logger  *slog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	wg   sync.WaitGroup
	quit chan struct{}
}

// NewServer binds addr (":0" auto-assigns a port, per spec §6's
// storage-server base_port auto-assignment) and returns an unstarted
// Server. ratePerSec <= 0 disables the limiter.
func NewServer(addr string, ratePerSec float64, burst int, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	return &Server{
		ln:       ln,
		limiter:  limiter,
		logger:   logging.Default(logger),
		handlers: make(map[string]HandlerFunc),
		quit:     make(chan struct{}),
	}, nil
}

// Handle registers fn for the given command name.
func (s *Server) Handle(command string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[command] = fn
}

// Addr returns the listener's bound address (useful after ":0" binds).
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve blocks accepting connections until Stop is called.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				return fmt.Errorf("rpc: accept: %w", err)
			}
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(context.Background()); err != nil {
				_ = conn.Close()
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	for {
		payload, err := protocol.ReadFrame(conn)
		if err != nil {
			return // peer closed or framing error; connection is done
		}
		cmd, err := protocol.PeekCommand(payload)
		if err != nil {
			s.logger.Warn("rpc: malformed frame", "error", err)
			return
		}

		s.mu.RLock()
		fn, ok := s.handlers[cmd]
		s.mu.RUnlock()

		if !ok {
			ack := protocol.Ack{OK: false, Error: protocol.NewError(protocol.ErrState, "unknown command %q", cmd)}
			if err := protocol.WriteMessage(conn, ack); err != nil {
				return
			}
			continue
		}

		resp, err := fn(payload)
		if err != nil {
			s.logger.Error("rpc: handler error", "command", cmd, "error", err)
			return
		}
		if err := protocol.WriteMessage(conn, resp); err != nil {
			return
		}
	}
}

// Stop closes the listener and waits until every open connection's
// handler has returned, which happens when its peer closes the
// connection or a read fails. New Accept calls fail immediately.
func (s *Server) Stop() error {
	close(s.quit)
	err := s.ln.Close()
	s.wg.Wait()
	return err
}
