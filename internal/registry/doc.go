// Package registry stores the task list and goal set as pinned config records.
//
// # Overview
//
// Each record is a pinned message whose content starts with a tag marker
// followed by JSON:
//
//	CONFIG_TASKS:[{"name":"Study","style":"primary"}]
//	CONFIG_GOALS:{"Study":[{"target":60,"period":"daily","created_at":"..."}]}
//
// Load scans the pins for the first readable record with the tag and runs it
// through the migrate package. On a miss it writes and pins a default record.
// Save edits the tagged pin in place, or creates and pins one if none exists,
// so there is never more than one tagged pin per channel.
//
// # Unpinned records
//
// When the bot may not pin, a record is still written and Save returns an
// error wrapping ErrUnpinned. Without a tagged pin, Load and Save fall back to
// the newest tagged message in recent history, so the record stays readable
// and is edited in place until it scrolls out of that window. The next Save
// with pin permission pins it.
//
// Goal timestamps stored without an offset are read in the WithLocation zone.
//
// # Concurrency
//
// Nothing is locked. Two saves on the same tag can interleave their
// read-modify-write and the later edit wins.
//
// # Validation
//
// The typed mutations (AddTask, AddGoal, ...) check model struct tags with
// go-playground/validator and return *model.ValidationError without writing
// anything when a check fails.
package registry
