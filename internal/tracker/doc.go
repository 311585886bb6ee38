// Package tracker is the application layer of timekeeper.
//
// # Overview
//
// Service ties the persistence packages together behind the operations the
// chat bridge and the CLI expose:
//
//   - Setup provisions the timekeeper channels, clears the dashboard, and
//     posts the dashboard and goals panels
//   - Start and Finish run a session through the timer table and append the
//     completed record to the log store
//   - Record appends a manually entered session
//   - Today, Progress, and Report read records back for display
//
// # Channels
//
// All records live in a hidden, write-restricted data channel. Completed
// sessions are mirrored as summaries to the timeline channel; the goals
// channel carries the progress panel, which is rewritten after every change.
//
// # Failure Handling
//
// Permission failures while provisioning or clearing channels are collected
// as warnings in the SetupReport instead of aborting setup. Platform errors
// on the record path are returned as-is and nothing is retried.
package tracker
