// Package model defines the domain records shared by the timekeeper packages.
//
// Task and Goal are configuration: they live in the TASKS and GOALS config
// records and are edited in place. SessionLog is an event: it is written once
// when a session completes and never changed afterwards.
//
// GoalSet is an ordered slice rather than a map because the order tasks were
// added in determines the order progress is reported in.
package model
