// Package bot exposes the tracker as text commands in Matrix rooms.
//
// Commands is transport-independent: it parses one line of text and returns
// the reply. Bridge feeds it m.room.message events from a Matrix sync loop,
// drops replayed event IDs, and posts replies as markdown.
//
//	!start Study
//	!stop finished chapter 3
//	!today
//	!progress
package bot
