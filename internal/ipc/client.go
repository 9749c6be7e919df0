package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	cerrs "github.com/cerberusindex/cerberus/internal/errors"
	"github.com/cerberusindex/cerberus/internal/store"
)

// ErrUnavailable reports that no daemon is listening; callers fall back
// to direct store access rather than surfacing this to the user.
var ErrUnavailable = errors.New("daemon socket unreachable")

// dialTimeout bounds the connection attempt; a missing daemon should be
// detected quickly so the fallback path stays cheap.
const dialTimeout = 500 * time.Millisecond

// Client calls the daemon protocol over a Unix socket. A circuit breaker
// over the dial step stops a dead daemon from charging the dial timeout
// on every call; while the circuit is open, calls fail over immediately.
type Client struct {
	socketPath string
	breaker    *cerrs.CircuitBreaker
}

// NewClient returns a client for the given socket path.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		breaker: cerrs.NewCircuitBreaker("daemon-socket",
			cerrs.WithMaxFailures(3), cerrs.WithResetTimeout(10*time.Second)),
	}
}

// Call sends one request and decodes one response.
func (c *Client) Call(ctx context.Context, command string, args any) (json.RawMessage, error) {
	var rawArgs json.RawMessage
	if args != nil {
		encoded, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		rawArgs = encoded
	}

	if !c.breaker.Allow() {
		return nil, ErrUnavailable
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, ErrUnavailable
	}
	c.breaker.RecordSuccess()
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(connTimeout))
	}

	if err := json.NewEncoder(conn).Encode(Request{Command: command, Args: rawArgs}); err != nil {
		return nil, ErrUnavailable
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, ErrUnavailable
	}
	if resp.Status != "ok" {
		if resp.Error != nil {
			return nil, cerrs.New(resp.Error.Code, resp.Error.Message, nil)
		}
		return nil, fmt.Errorf("daemon error with no body")
	}
	return resp.Result, nil
}

// GetSymbol looks a symbol up through the daemon. st is the fallback: if
// the socket is unreachable the lookup runs directly against the store,
// invisible to the caller.
func (c *Client) GetSymbol(ctx context.Context, st store.Store, args GetSymbolArgs) ([]*store.Symbol, error) {
	raw, err := c.Call(ctx, CmdGetSymbol, args)
	if errors.Is(err, ErrUnavailable) {
		return st.QuerySymbols(ctx, store.SymbolFilter{
			Name: args.Name, FilePath: args.FilePath, ParentClass: args.ParentClass,
		})
	}
	if err != nil {
		return nil, err
	}

	var symbols []*store.Symbol
	if err := json.Unmarshal(raw, &symbols); err != nil {
		return nil, err
	}
	return symbols, nil
}

// Health fetches the daemon's health snapshot.
func (c *Client) Health(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, CmdHealth, nil)
}

// Status probes whether a daemon is serving this socket.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	raw, err := c.Call(ctx, CmdStatus, nil)
	if err != nil {
		return nil, err
	}
	var status StatusResult
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
