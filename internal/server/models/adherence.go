package models

import "time"

// AdherenceRecord tracks a participant's completion of one scheduled instance.
type AdherenceRecord struct {
	ID           string
	AppID        string
	StudyID      string
	UserID       string
	InstanceGUID string
	// EventTimestamp identifies which occurrence of the triggering event the
	// instance was scheduled against.
	EventTimestamp time.Time
	// InstanceTimestamp is StartedOn for persistent windows and
	// EventTimestamp otherwise; it completes the record's identity.
	InstanceTimestamp time.Time
	StartedOn         *time.Time
	UploadedOn        *time.Time
	UploadIDs         []string
	Version           int64
}

// AdherenceQuery selects adherence records of one user in one study.
type AdherenceQuery struct {
	AppID         string
	StudyID       string
	UserID        string
	InstanceGUIDs []string
	// StartedOn, when set, restricts the search to records started at exactly that instant.
	StartedOn *time.Time
}

// TimelineMetadata maps a scheduled instance to its schedule. Read-only here.
type TimelineMetadata struct {
	InstanceGUID         string
	AppID                string
	ScheduleGUID         string
	SessionGUID          string
	AssessmentGUID       string
	TimeWindowPersistent bool
}

// DedupeEntry remembers which upload first carried a given content hash.
type DedupeEntry struct {
	HealthCode  string
	ContentMD5  string
	RequestedOn time.Time
	UploadID    string
}
