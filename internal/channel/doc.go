// Package channel turns a chat platform into the storage substrate the rest
// of timekeeper runs on.
//
// # Architecture
//
// Platform is the collaborator interface: the handful of primitives a chat
// platform offers (find/create a channel, send/edit/pin a message, list pins,
// read recent history). Store wraps a Platform with the behavior callers rely
// on:
//
//   - ResolveOrCreate returns an existing channel by name before creating one
//   - ListPinned is capped at the platform pin limit (50 by default)
//   - FetchHistory is newest-first and bounded by the requested limit
//
// History beyond the limit is never fetched. Callers pick the limit per use
// case and accept that older records are invisible.
//
// # Backends
//
//   - MatrixPlatform: a Matrix homeserver via mautrix. Guilds are spaces,
//     channels are rooms, pins are m.room.pinned_events, edits are m.replace
//     relations.
//   - SQLitePlatform: an embedded database with the same contract, for
//     running without a homeserver.
//   - MemoryPlatform: in-memory, with failure injection, for tests.
//
// # Error Handling
//
//   - ErrNotFound: no channel with that name, or no such message
//   - ErrPermissionDenied: the bot lacks rights; callers warn and carry on
//
// Every other error is a transient platform failure and is returned as-is.
// Nothing in this package retries.
package channel
