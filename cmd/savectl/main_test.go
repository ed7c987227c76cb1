package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriumgames/persist"
	"github.com/oriumgames/persist/simworld"
	"github.com/oriumgames/persist/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func seed(t *testing.T, dir string) *persist.Session {
	t.Helper()
	s, err := store.NewDir(dir)
	require.NoError(t, err)
	m, err := persist.NewBuilder().World(simworld.New()).Store(s).Options(persist.WithLogger(quiet)).Init()
	require.NoError(t, err)
	sess, err := m.NewGame(context.Background(), "Cave Run")
	require.NoError(t, err)
	return sess
}

func TestListAndInspect(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sess := seed(t, dir)
	id := sess.Slot().ID.String()
	opts := options{dir: dir}

	var out bytes.Buffer
	require.NoError(t, run(ctx, opts, []string{"list"}, &out, quiet))
	assert.Contains(t, out.String(), id)
	assert.Contains(t, out.String(), "Cave Run")

	out.Reset()
	require.NoError(t, run(ctx, opts, []string{"inspect", id}, &out, quiet))
	assert.Contains(t, out.String(), "open      main")

	out.Reset()
	opts.json = true
	require.NoError(t, run(ctx, opts, []string{"inspect", id}, &out, quiet))
	assert.Contains(t, out.String(), `"name": "Cave Run"`)

	require.NoError(t, run(ctx, opts, []string{"delete", id}, io.Discard, quiet))
	err := run(ctx, opts, []string{"inspect", id}, io.Discard, quiet)
	assert.ErrorIs(t, err, persist.ErrUnknownSlot)
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	seed(t, dir)

	files, err := filepath.Glob(filepath.Join(dir, "*.sav"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	var out bytes.Buffer
	require.NoError(t, run(ctx, options{}, []string{"verify", files[0]}, &out, quiet))
	assert.Contains(t, out.String(), "ok")

	broken := filepath.Join(t.TempDir(), "broken.sav")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0o644))
	assert.Error(t, run(ctx, options{}, []string{"verify", broken}, io.Discard, quiet))
}

func TestSchemaAndUsage(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	require.NoError(t, run(ctx, options{}, []string{"schema"}, &out, quiet))
	assert.Contains(t, out.String(), "SaveData")

	assert.ErrorIs(t, run(ctx, options{}, nil, io.Discard, quiet), errUsage)
	assert.ErrorIs(t, run(ctx, options{dir: t.TempDir()}, []string{"inspect"}, io.Discard, quiet), errUsage)
	assert.Error(t, run(ctx, options{dir: t.TempDir()}, []string{"frobnicate"}, io.Discard, quiet))
}
