// Package logstore appends completed sessions to a channel and reads them back.
//
// A record is a message whose content is a readable summary and whose payload
// is "LOG_ID:" followed by the JSON record. Fetch reads only the newest
// messages up to the requested limit and skips anything it cannot parse.
package logstore
