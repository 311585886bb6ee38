// Package timer keeps the table of running sessions, keyed by user.
//
// Sessions live in process memory only. A restart drops every running
// session; nothing is written until a session is stopped and handed to the
// log store.
package timer
