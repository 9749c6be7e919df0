package ipc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"time"

	cerrs "github.com/cerberusindex/cerberus/internal/errors"
	"github.com/cerberusindex/cerberus/internal/store"
	"github.com/cerberusindex/cerberus/internal/watch"
)

// connTimeout bounds one request/response exchange.
const connTimeout = 10 * time.Second

// Server serves the daemon protocol over a Unix domain socket, reusing
// the watcher process's already-open store connection.
type Server struct {
	socketPath string
	store      store.Store
	root       string
	watcher    *watch.Watcher
	logger     *slog.Logger

	listener net.Listener
}

// NewServer builds a server; watcher may be nil when health reporting is
// not wanted.
func NewServer(socketPath string, st store.Store, root string, watcher *watch.Watcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{socketPath: socketPath, store: st, root: root, watcher: watcher, logger: logger}
}

// Serve listens until ctx is canceled. A stale socket file from a dead
// daemon is removed before binding.
func (s *Server) Serve(ctx context.Context) error {
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	s.listener = listener
	defer func() {
		listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.respond(conn, ErrResponse(cerrs.ErrCodeInvalidInput, "malformed request: "+err.Error()))
		return
	}
	s.respond(conn, s.dispatch(ctx, req))
}

func (s *Server) respond(conn net.Conn, resp Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Warn("ipc response write failed", slog.String("error", err.Error()))
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Command {
	case CmdGetSymbol:
		return s.getSymbol(ctx, req.Args)
	case CmdHealth:
		if s.watcher == nil {
			return ErrResponse(cerrs.ErrCodeInvalidInput, "no watcher in this process")
		}
		return OKResponse(s.watcher.Health())
	case CmdStatus:
		return OKResponse(StatusResult{Running: true, PID: os.Getpid(), Root: s.root})
	default:
		return ErrResponse(cerrs.ErrCodeInvalidInput, "unknown command: "+req.Command)
	}
}

func (s *Server) getSymbol(ctx context.Context, rawArgs json.RawMessage) Response {
	var args GetSymbolArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return ErrResponse(cerrs.ErrCodeInvalidInput, "malformed args: "+err.Error())
		}
	}
	if err := args.Validate(); err != nil {
		return ErrResponse(cerrs.ErrCodeInvalidInput, err.Error())
	}

	symbols, err := s.store.QuerySymbols(ctx, store.SymbolFilter{
		Name: args.Name, FilePath: args.FilePath, ParentClass: args.ParentClass,
	})
	if err != nil {
		return ErrResponse(cerrs.ErrCodeInternal, err.Error())
	}
	if len(symbols) == 0 {
		return ErrResponse(cerrs.ErrCodeSymbolNotFound, "symbol not found: "+args.Name)
	}
	return OKResponse(symbols)
}
