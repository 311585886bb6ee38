// Package migrate normalizes the historical JSON shapes of the config records.
//
// Two legacy shapes exist in the wild:
//
//   - task lists stored as bare strings: ["Study", "Work"]
//   - goal sets storing a single object per task: {"Study": {"target": 60, ...}}
//
// NormalizeTaskList and NormalizeGoalSet rewrite those into the current shape
// at the JSON level and are idempotent. DecodeTaskList and DecodeGoalSet then
// resolve the normalized JSON into model types, so nothing downstream ever
// sees more than one shape. None of the functions in this package return
// errors: anything unrecognized passes through or is dropped.
package migrate
