package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
	"github.com/lightforgemedia/go-maxclient/pkg/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Go version:")
}

func TestInspectCommand(t *testing.T) {
	ms := testutil.NewMockServer(t)
	ms.Handle(protocol.OpLogin, testutil.Reply(map[string]any{
		"chats": []any{
			map[string]any{"id": 1, "type": "DIALOG"},
			map[string]any{"id": 2, "type": "CHANNEL"},
		},
		"contacts": []any{},
		"profile": map[string]any{
			"contact": map[string]any{"id": 7, "names": []any{map[string]any{"name": "Ann"}}},
		},
	}))
	url := ms.StartWebSocket()

	path := filepath.Join(t.TempDir(), "maxclient.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: "+url+"\nlog:\n  level: error\n"), 0o600))

	out, err := execute(t, "--config", path, "inspect", "--timeout", "5s")
	require.NoError(t, err)
	assert.Contains(t, out, "State:      connected")
	assert.Contains(t, out, "Dialogs:    1")
	assert.Contains(t, out, "Channels:   1")

	frames := ms.Received(protocol.OpLogin)
	require.Len(t, frames, 1)
}

func TestInspectRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maxclient.toml")
	require.NoError(t, os.WriteFile(path, []byte(`transport = "quic"`), 0o600))

	_, err := execute(t, "--config", path, "inspect")
	assert.ErrorContains(t, err, "invalid configuration")
}
