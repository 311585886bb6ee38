// ABOUTME: Lenient decoding of session log payloads written by older and current builds
// ABOUTME: Resolves timestamp and duration variants into model.SessionLog

package migrate

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/2389/coven-timekeeper/internal/model"
)

type sessionLogWire struct {
	Task          string `json:"task"`
	DurationMin   any    `json:"duration_min"`
	DurationLabel string `json:"duration_str"`
	Memo          string `json:"memo"`
	Date          string `json:"date"`
	Timestamp     string `json:"timestamp"`
}

// DecodeSessionLog parses a log payload. Naive timestamps are read in loc.
// It reports false when the payload is not an object, names no task, has a
// negative duration, or carries neither a usable timestamp nor a date.
func DecodeSessionLog(raw json.RawMessage, loc *time.Location) (model.SessionLog, bool) {
	if firstByte(raw) != '{' {
		return model.SessionLog{}, false
	}
	var w sessionLogWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.SessionLog{}, false
	}

	log := model.SessionLog{
		Task:          strings.TrimSpace(w.Task),
		DurationMin:   LenientInt(w.DurationMin),
		DurationLabel: w.DurationLabel,
		Memo:          w.Memo,
		Date:          strings.TrimSpace(w.Date),
		EndedAt:       ParseTimestamp(w.Timestamp, loc),
	}
	if log.Task == "" || log.DurationMin < 0 {
		return model.SessionLog{}, false
	}
	if log.EndedAt.IsZero() {
		log.EndedAt = ParseTimestamp(log.Date, loc)
		if log.EndedAt.IsZero() {
			return model.SessionLog{}, false
		}
	}
	if log.Date == "" {
		log.Date = log.EndedAt.In(orUTC(loc)).Format(model.DateLayout)
	}
	if log.DurationLabel == "" {
		log.DurationLabel = model.FormatDuration(log.DurationMin)
	}
	return log, true
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
