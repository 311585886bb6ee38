// ABOUTME: Idempotent normalization of legacy task-list and goal-set JSON shapes
// ABOUTME: Decodes normalized records leniently into model.Task and model.GoalSet

package migrate

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/2389/coven-timekeeper/internal/model"
)

// NormalizeTaskList converts bare-string entries of a task list into
// {"name": s, "style": "secondary"} objects. Object entries and non-list
// input are returned unchanged.
func NormalizeTaskList(raw json.RawMessage) json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return raw
	}

	changed := false
	for i, item := range items {
		var name string
		if firstByte(item) != '"' || json.Unmarshal(item, &name) != nil {
			continue
		}
		obj, err := json.Marshal(model.Task{Name: name, Style: model.StyleSecondary})
		if err != nil {
			continue
		}
		items[i] = obj
		changed = true
	}
	if !changed {
		return raw
	}

	out, err := json.Marshal(items)
	if err != nil {
		return raw
	}
	return out
}

// NormalizeGoalSet wraps bare goal objects into one-element lists. Key order
// is preserved. Lists and non-object input are returned unchanged.
func NormalizeGoalSet(raw json.RawMessage) json.RawMessage {
	members, ok := orderedObject(raw)
	if !ok {
		return raw
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(m.key)
		if err != nil {
			return raw
		}
		buf.Write(key)
		buf.WriteByte(':')
		if firstByte(m.value) == '{' {
			buf.WriteByte('[')
			buf.Write(m.value)
			buf.WriteByte(']')
		} else {
			buf.Write(m.value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// DecodeTaskList normalizes raw and decodes it. Entries without a name and
// repeated names are dropped; unknown styles fall back to secondary.
func DecodeTaskList(raw json.RawMessage) []model.Task {
	var items []json.RawMessage
	if err := json.Unmarshal(NormalizeTaskList(raw), &items); err != nil {
		return []model.Task{}
	}

	tasks := make([]model.Task, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		var w struct {
			Name  string `json:"name"`
			Style string `json:"style"`
		}
		if err := json.Unmarshal(item, &w); err != nil {
			continue
		}
		name := strings.TrimSpace(w.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		style := model.Style(w.Style)
		if !style.Valid() {
			style = model.StyleSecondary
		}
		tasks = append(tasks, model.Task{Name: name, Style: style})
	}
	return tasks
}

// DecodeGoalSet normalizes raw and decodes it in key order. Fields are read
// leniently; invalid values are kept as zero values and left for the progress
// calculation to exclude. A created_at without an offset is read in loc, the
// same rule DecodeSessionLog applies to log timestamps.
func DecodeGoalSet(raw json.RawMessage, loc *time.Location) model.GoalSet {
	members, ok := orderedObject(NormalizeGoalSet(raw))
	if !ok {
		return model.GoalSet{}
	}

	gs := model.GoalSet{}
	for _, m := range members {
		var items []json.RawMessage
		if err := json.Unmarshal(m.value, &items); err != nil {
			continue
		}
		for _, item := range items {
			goal, ok := decodeGoal(item, loc)
			if !ok {
				continue
			}
			gs = gs.Add(m.key, goal)
		}
	}
	return gs
}

type goalWire struct {
	Target     any    `json:"target"`
	Period     string `json:"period"`
	CustomDays any    `json:"custom_days"`
	CreatedAt  string `json:"created_at"`
}

func decodeGoal(item json.RawMessage, loc *time.Location) (model.Goal, bool) {
	if firstByte(item) != '{' {
		return model.Goal{}, false
	}
	var w goalWire
	if err := json.Unmarshal(item, &w); err != nil {
		// A field of the wrong JSON type (e.g. created_at as a number) fails the
		// whole struct; retry field by field.
		w = decodeGoalFields(item)
	}
	return model.Goal{
		Target:     LenientInt(w.Target),
		Period:     model.Period(strings.ToLower(strings.TrimSpace(w.Period))),
		CustomDays: LenientInt(w.CustomDays),
		CreatedAt:  ParseTimestamp(w.CreatedAt, loc),
	}, true
}

func decodeGoalFields(item json.RawMessage) goalWire {
	var fields map[string]json.RawMessage
	var w goalWire
	if err := json.Unmarshal(item, &fields); err != nil {
		return w
	}
	_ = json.Unmarshal(fields["target"], &w.Target)
	_ = json.Unmarshal(fields["period"], &w.Period)
	_ = json.Unmarshal(fields["custom_days"], &w.CustomDays)
	_ = json.Unmarshal(fields["created_at"], &w.CreatedAt)
	return w
}

// LenientInt reads a JSON number or numeric string as an int, truncating
// fractions. Anything else is 0.
func LenientInt(v any) int {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return int(n)
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.Atoi(s); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f)
		}
	}
	return 0
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	model.DateLayout,
}

// ParseTimestamp accepts RFC 3339 and the naive ISO forms older records used.
// Naive values are read in loc. Unparseable input yields the zero time.
func ParseTimestamp(s string, loc *time.Location) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

type member struct {
	key   string
	value json.RawMessage
}

// orderedObject splits a JSON object into its members in document order.
func orderedObject(raw json.RawMessage) ([]member, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, false
	}

	var members []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := tok.(string)
		if !ok {
			return nil, false
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, false
		}
		members = append(members, member{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, false
	}
	return members, true
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
