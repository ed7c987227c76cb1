package simworld

import (
	"fmt"
	"maps"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/oriumgames/persist"
)

// Load implements persist.Streamer. The level's placements are spawned
// immediately but completion is only reported by Complete.
func (w *World) Load(space persist.SpaceID, anchor mgl64.Vec3, definition string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failLoad != nil {
		return w.failLoad
	}
	placements, ok := w.levels[definition]
	if !ok && definition != "" {
		return fmt.Errorf("%w: %q", ErrUnknownLevel, definition)
	}
	w.place(space, persist.Anchor(anchor), placements)
	w.loaded[space] = definition
	w.pending = append(w.pending, completion{space: space, loaded: true})
	return nil
}

// Unload implements persist.Streamer. Every entity in the space is
// destroyed immediately; completion is reported by Complete.
func (w *World) Unload(space persist.SpaceID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clear(space)
	delete(w.loaded, space)
	w.pending = append(w.pending, completion{space: space})
	return nil
}

// Loaded reports whether space is currently streamed in.
func (w *World) Loaded(space persist.SpaceID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.loaded[space]
	return ok
}

// FailLoads makes every subsequent Load return err. A nil err clears it.
func (w *World) FailLoads(err error) {
	w.mu.Lock()
	w.failLoad = err
	w.mu.Unlock()
}

// Complete delivers queued load and unload completions to c, in order. It
// returns how many were delivered.
func (w *World) Complete(c Completer) int {
	w.mu.Lock()
	pending := w.pending
	w.pending = nil
	w.mu.Unlock()

	for _, p := range pending {
		if p.loaded {
			c.SpaceLoaded(p.space)
		} else {
			c.SpaceUnloaded(p.space)
		}
	}
	return len(pending)
}

// LoadMain spawns the placements of definition into the main world.
func (w *World) LoadMain(definition string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	placements, ok := w.levels[definition]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLevel, definition)
	}
	w.place(persist.MainSpace, persist.Anchor{}, placements)
	w.loaded[persist.MainSpace] = definition
	return nil
}

// Reload tears down every entity and respawns the main world from its
// level, as a fresh process start would. Sub-spaces are left unloaded and
// pending completions are discarded.
func (w *World) Reload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.arena {
		w.arena[i] = nil
	}
	w.pending = nil
	def, ok := w.loaded[persist.MainSpace]
	clear(w.loaded)
	if ok {
		w.place(persist.MainSpace, persist.Anchor{}, w.levels[def])
		w.loaded[persist.MainSpace] = def
	}
}

// place spawns placements into space. Callers hold the lock.
func (w *World) place(space persist.SpaceID, anchor persist.Anchor, placements []Placement) {
	for _, p := range placements {
		w.spawn(&Entity{
			Type:    p.Type,
			Space:   space,
			Pose:    anchor.World(p.Pose),
			Payload: maps.Clone(p.Payload),
		})
	}
}

// clear destroys every entity in space. Callers hold the lock.
func (w *World) clear(space persist.SpaceID) {
	for i, e := range w.arena {
		if e != nil && e.Space == space {
			w.arena[i] = nil
		}
	}
}
