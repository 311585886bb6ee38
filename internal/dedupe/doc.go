// Package dedupe remembers recently seen keys, such as chat event IDs, so
// replays can be dropped. Expired keys are pruned on writes; the cache owns
// no goroutines.
package dedupe
