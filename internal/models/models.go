package models

import (
	"encoding/json"
	"time"
)

// SubmissionStatus tracks a submission through the publish pipeline.
type SubmissionStatus string

const (
	StatusQueued     SubmissionStatus = "queued"
	StatusProcessing SubmissionStatus = "processing"
	StatusPublished  SubmissionStatus = "published"
	StatusError      SubmissionStatus = "error"
)

// Terminal reports whether no further automatic transition occurs from s.
func (s SubmissionStatus) Terminal() bool {
	return s == StatusPublished || s == StatusError
}

// VideoSubmission is one pending unit of publish work owned by a user.
//
// The dispatcher is the sole writer of Status, UpdatedAt, PublishedAt,
// ResultID and ErrorMessage while a submission is in flight.
type VideoSubmission struct {
	ID           string           `gorm:"type:uuid;primaryKey"`
	OwnerID      string           `gorm:"index"`
	Title        string           `gorm:"type:text"`
	Description  string           `gorm:"type:text"`
	SourceURL    string           `gorm:"type:text"`
	Status       SubmissionStatus `gorm:"type:varchar(16);index"`
	SubmittedAt  time.Time        `gorm:"index"`
	UpdatedAt    time.Time
	PublishedAt  *time.Time
	ResultID     string `gorm:"type:varchar(64)"`
	ErrorMessage string `gorm:"type:text"`
}

// ScheduleSlot assigns users to a 15-minute UTC publishing window.
// Maintained by the scheduling frontend; the dispatcher only reads it.
type ScheduleSlot struct {
	SlotID    string `gorm:"type:varchar(8);primaryKey"`
	Users     string `gorm:"type:text"` // JSON array of user IDs
	UpdatedAt time.Time
}

// UserIDs decodes the slot's user list. A missing or empty list is normal.
func (s *ScheduleSlot) UserIDs() ([]string, error) {
	if s.Users == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(s.Users), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// SetUserIDs encodes the slot's user list.
func (s *ScheduleSlot) SetUserIDs(ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	s.Users = string(data)
	return nil
}

// UserCredential holds a user's stored OAuth refresh token.
// Deleted when the upstream reports the grant is permanently invalid.
type UserCredential struct {
	UserID       string `gorm:"type:uuid;primaryKey"`
	RefreshToken string `gorm:"type:text"`
	UpdatedAt    time.Time
}
