package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/colorfulnotion/cloudop/ledger"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/colorfulnotion/cloudop/rollback"
	"github.com/colorfulnotion/cloudop/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseHeight(t *testing.T) {
	h, err := parseHeight("42")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), h)

	_, err = parseHeight("-1")
	assert.ErrorIs(t, err, operrors.ErrConfig)
}

func TestMissingConfig(t *testing.T) {
	_, err := execute("-n", t.TempDir(), "rollback", "5")
	assert.ErrorIs(t, err, operrors.ErrConfig)
	assert.Equal(t, 11, operrors.ExitCode(err))
}

func TestBadLogLevel(t *testing.T) {
	_, err := execute("--log-level", "loud", "status")
	assert.ErrorIs(t, err, operrors.ErrConfig)
}

func TestStatusTree(t *testing.T) {
	st := &rollback.Status{
		Kind:   storage.KindLocal,
		Record: &ledger.Record{Height: 7, Hash: []byte{0xab}, Watermark: 3, HasWatermark: true},
		Locks: []rollback.LockSlot{
			{LockID: 1000},
			{LockID: 1005, Value: []byte{0x01, 0x02}, Present: true},
		},
	}
	out := statusTree(st).String()
	assert.Contains(t, out, "local backend")
	assert.Contains(t, out, "height: 7")
	assert.Contains(t, out, "hash: 0xab")
	assert.Contains(t, out, "delete height: 3")
	assert.Contains(t, out, "1000: -")
	assert.Contains(t, out, "1005: 0x0102")
}

func TestConfigPathRelativeToNodeRoot(t *testing.T) {
	g := &globalFlags{configPath: "config.toml", nodeRoot: t.TempDir()}
	_, err := g.open()
	require.Error(t, err)
	assert.Contains(t, err.Error(), filepath.Join(g.nodeRoot, "config.toml"))
}
