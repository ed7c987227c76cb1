// Package persist lets world entities survive save/load cycles and
// level-streaming boundaries, even though the runtime recreates them with
// new identities on every load.
//
// The package provides:
//   - Identity tags and space-local poses for persistable entities
//   - A Snapshotter that diffs live entities against a write-once baseline
//   - A Reconciler that restores, recreates and re-identifies entities,
//     falling back to fuzzy matching on type and pose
//   - A lifecycle for dynamically loaded sub-worlds ("state spaces")
//   - Cross references that let a carried item re-open a sub-world later
//   - Save slots over any named-blob Store
//
// # Quick Start
//
//	saves, err := store.NewDir("saves")
//	if err != nil {
//	    return err
//	}
//	mngr, err := persist.NewBuilder().
//	    World(myWorld).
//	    Store(saves).
//	    Payload(persist.PayloadStorage, chestCodec).
//	    Init()
//	if err != nil {
//	    return err
//	}
//
//	sess, err := mngr.ResumeLatest(ctx)
//	if errors.Is(err, persist.ErrUnknownSlot) {
//	    sess, err = mngr.NewGame(ctx, "My World")
//	}
//	sess.RestoreMain()
//
//	for now := range ticker.C {
//	    sess.Tick(now)
//	}
//
// # Spaces
//
// The main world is always open. At most one sub-space is active at a time:
//
//	tok, err := sess.Enter(item, portalPos, "dimensions/cave")
//	sess.AwaitOpen(tok.Space, 0, func(r persist.PollResult) {
//	    teleport(player, portalPos)
//	})
//	...
//	sess.CloseSpace(tok.Space)
//
// # Identity
//
// Tokens are assigned by the Snapshotter the first time it sees an entity.
// The first snapshot of a space defines its baseline, which never changes
// afterwards. On load the Reconciler matches saved records to live entities
// by token, and by type and approximate original pose when tokens were lost.
package persist

// Version is the persist version.
const Version = "1.0.0"
