package trace

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Timestamps without a UTC offset are read in local time. Fractional seconds
// are accepted after the seconds field by time.Parse.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp reads an ISO-8601 timestamp. RFC 3339 is tried first, then
// the offset-less forms written by other recorders.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// UnmarshalJSON accepts any ISO-8601 timestamp and ignores an id that is not
// an integer; ids are reassigned on commit anyway. Encoding keeps RFC 3339.
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	var aux struct {
		plain
		ID        json.RawMessage `json:"id"`
		Timestamp string          `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ts, err := ParseTimestamp(aux.Timestamp)
	if err != nil {
		return err
	}
	*e = Event(aux.plain)
	e.Timestamp = ts
	e.ID = 0
	if len(aux.ID) > 0 {
		var id int
		if json.Unmarshal(aux.ID, &id) == nil {
			e.ID = id
		}
	}
	return nil
}

func (s *Session) UnmarshalJSON(data []byte) error {
	type plain Session
	var aux struct {
		plain
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	start, err := ParseTimestamp(aux.StartTime)
	if err != nil {
		return fmt.Errorf("start_time: %w", err)
	}
	end, err := ParseTimestamp(aux.EndTime)
	if err != nil {
		return fmt.Errorf("end_time: %w", err)
	}
	*s = Session(aux.plain)
	s.StartTime = start
	s.EndTime = end
	return nil
}
