package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Upload metadata keys that tie an upload to a scheduled instance.
const (
	MetadataInstanceGUID   = "instanceGuid"
	MetadataEventTimestamp = "eventTimestamp"
	MetadataStartedOn      = "startedOn"
)

// AdherenceMetadata is the typed view of the adherence keys of upload metadata.
type AdherenceMetadata struct {
	InstanceGUID   string
	EventTimestamp time.Time
	StartedOn      time.Time
}

// MalformedTimestampError reports a metadata timestamp that is not ISO-8601.
type MalformedTimestampError struct {
	Field string
	Value string
	Err   error
}

func (e *MalformedTimestampError) Error() string {
	return fmt.Sprintf("malformed %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *MalformedTimestampError) Unwrap() error {
	return e.Err
}

// ParseAdherenceMetadata extracts the adherence keys from raw upload
// metadata. ok is false when the metadata is absent, is not a JSON object,
// or lacks any of the three keys as a non-blank string. A present but
// unparseable timestamp yields a *MalformedTimestampError.
func ParseAdherenceMetadata(raw json.RawMessage) (meta AdherenceMetadata, ok bool, err error) {
	if len(raw) == 0 {
		return AdherenceMetadata{}, false, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return AdherenceMetadata{}, false, nil
	}

	instanceGUID, ok1 := stringField(fields, MetadataInstanceGUID)
	eventTimestamp, ok2 := stringField(fields, MetadataEventTimestamp)
	startedOn, ok3 := stringField(fields, MetadataStartedOn)
	if !ok1 || !ok2 || !ok3 {
		return AdherenceMetadata{}, false, nil
	}

	meta.InstanceGUID = instanceGUID
	if meta.EventTimestamp, err = parseTimestamp(MetadataEventTimestamp, eventTimestamp); err != nil {
		return AdherenceMetadata{}, false, err
	}
	if meta.StartedOn, err = parseTimestamp(MetadataStartedOn, startedOn); err != nil {
		return AdherenceMetadata{}, false, err
	}
	return meta, true, nil
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	v, found := fields[key]
	if !found {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// parseTimestamp keeps millisecond precision so a timestamp compares equal
// to its stored copy after a round trip through Postgres.
func parseTimestamp(field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, &MalformedTimestampError{Field: field, Value: value, Err: err}
	}
	return t.Truncate(time.Millisecond), nil
}
