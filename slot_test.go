package persist_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriumgames/persist"
	"github.com/oriumgames/persist/simworld"
)

func TestSanitizeName(t *testing.T) {
	for in, want := range map[string]string{
		"My World":              "My World",
		`a<b>c:d"e/f\g|h?i*j`:   "a_b_c_d_e_f_g_h_i_j",
		"  ..hidden.. ":         "hidden",
		"":                      "Save",
		"...":                   "Save",
		"tab\there":             "tab_here",
		strings.Repeat("x", 60): strings.Repeat("x", 50),
		strings.Repeat("é", 55): strings.Repeat("é", 50),
	} {
		assert.Equal(t, want, persist.SanitizeName(in), "input %q", in)
	}
}

func TestSlots(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, simworld.New())

	first, err := h.manager.NewGame(ctx, "first/world")
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	second, err := h.manager.NewGame(ctx, "second")
	require.NoError(t, err)

	names, err := h.store.List(ctx, "slot_")
	require.NoError(t, err)
	require.Len(t, names, 2)
	assert.Contains(t, names, "slot_"+first.Slot().ID.String()+"_first_world")

	slots, err := h.manager.Slots(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "second", slots[0].Name, "newest first")
	assert.Equal(t, "first/world", slots[1].Name, "display names survive sanitizing")

	// Saving the older slot makes it the newest.
	h.clock.Advance(time.Minute)
	require.NoError(t, first.Save(ctx))
	slots, err = h.manager.Slots(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Slot().ID, slots[0].ID)
	assert.True(t, slots[0].Timestamp.Equal(h.clock.Now()))

	latest, err := h.manager.ResumeLatest(ctx)
	require.NoError(t, err)
	assert.Same(t, first, latest, "live sessions are reused")

	require.NoError(t, h.manager.DeleteSlot(ctx, second.Slot().ID))
	assert.True(t, second.Closed())
	slots, err = h.manager.Slots(ctx)
	require.NoError(t, err)
	assert.Len(t, slots, 1)

	_, err = h.manager.Resume(ctx, ulid.Make())
	assert.ErrorIs(t, err, persist.ErrUnknownSlot)
	assert.ErrorIs(t, h.manager.DeleteSlot(ctx, second.Slot().ID), persist.ErrUnknownSlot)
}

func TestSlotCreated(t *testing.T) {
	h := newHarness(t, simworld.New())
	s, err := h.manager.NewGame(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, s.Slot().Created().Equal(epoch))
}

func TestResumeUnreadableBlob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, overworld())
	s := newGame(t, h)
	id := s.Slot().ID
	require.NoError(t, h.manager.CloseSession(ctx, s))

	names, err := h.store.List(ctx, "slot_"+id.String())
	require.NoError(t, err)
	require.Len(t, names, 1)
	require.NoError(t, h.store.Write(ctx, names[0], []byte("{broken")))

	resumed, err := h.manager.Resume(ctx, id)
	require.NoError(t, err)
	assert.True(t, resumed.Data().Main.Baseline.Empty())
	assert.Contains(t, h.log.String(), "starting fresh")

	report, err := resumed.RestoreMain()
	require.NoError(t, err)
	assert.True(t, report.BaselineEstablished, "unreadable saves take the fresh-baseline path")
}

func TestManagerClose(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, simworld.New())
	a, err := h.manager.NewGame(ctx, "a")
	require.NoError(t, err)
	b, err := h.manager.NewGame(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, h.manager.Sessions(), 2)

	require.NoError(t, h.manager.Close(ctx))
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
	assert.Empty(t, h.manager.Sessions())
}

func TestReadSlot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, simworld.New())
	s, err := h.manager.NewGame(ctx, "peek")
	require.NoError(t, err)

	blob, err := h.manager.ReadSlot(ctx, s.Slot().ID)
	require.NoError(t, err)
	data, err := persist.DecodeSaveData(blob, nil)
	require.NoError(t, err)
	assert.Equal(t, "peek", data.Name)

	_, err = h.manager.ReadSlot(ctx, ulid.Make())
	assert.ErrorIs(t, err, persist.ErrUnknownSlot)
}
