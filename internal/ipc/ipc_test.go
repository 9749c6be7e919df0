package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cerberusindex/cerberus/internal/store"
)

func seedStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.WriteFileRecord(context.Background(), &store.FileRecord{
		File: store.File{Path: "svc.py", Size: 10, LastModified: 1},
		Symbols: []*store.Symbol{
			{Name: "serve", Type: store.SymbolFunction, FilePath: "svc.py",
				StartLine: 1, EndLine: 3, Signature: "def serve(port)"},
		},
	}))
	return st
}

func startServer(t *testing.T, st store.Store) string {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "test.sock")
	server := NewServer(socketPath, st, "/proj", nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = server.Serve(ctx) }()

	// Wait for the socket to come up.
	client := NewClient(socketPath)
	require.Eventually(t, func() bool {
		_, err := client.Status(context.Background())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	return socketPath
}

func TestGetSymbolOverSocket(t *testing.T) {
	st := seedStore(t)
	socketPath := startServer(t, st)

	client := NewClient(socketPath)
	symbols, err := client.GetSymbol(context.Background(), st, GetSymbolArgs{Name: "serve"})
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	assert.Equal(t, "serve", symbols[0].Name)
	assert.Equal(t, "svc.py", symbols[0].FilePath)
}

func TestGetSymbolNotFound(t *testing.T) {
	st := seedStore(t)
	socketPath := startServer(t, st)

	client := NewClient(socketPath)
	_, err := client.Call(context.Background(), CmdGetSymbol, GetSymbolArgs{Name: "ghost"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestUnknownCommandReturnsStructuredError(t *testing.T) {
	st := seedStore(t)
	socketPath := startServer(t, st)

	client := NewClient(socketPath)
	_, err := client.Call(context.Background(), "explode", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestClientFallsBackWhenSocketMissing(t *testing.T) {
	st := seedStore(t)
	client := NewClient(filepath.Join(t.TempDir(), "nobody-home.sock"))

	// Raw calls surface unavailability...
	_, err := client.Call(context.Background(), CmdStatus, nil)
	require.True(t, errors.Is(err, ErrUnavailable))

	// ...but GetSymbol degrades to the direct store, invisible to the
	// caller.
	symbols, err := client.GetSymbol(context.Background(), st, GetSymbolArgs{Name: "serve"})
	require.NoError(t, err)
	require.Len(t, symbols, 1)
}

func TestStatus(t *testing.T) {
	st := seedStore(t)
	socketPath := startServer(t, st)

	status, err := NewClient(socketPath).Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, "/proj", status.Root)
	assert.NotZero(t, status.PID)
}

func TestGetSymbolArgsValidate(t *testing.T) {
	args := GetSymbolArgs{}
	require.Error(t, args.Validate())

	raw, _ := json.Marshal(GetSymbolArgs{Name: "x"})
	var decoded GetSymbolArgs
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NoError(t, decoded.Validate())
}
