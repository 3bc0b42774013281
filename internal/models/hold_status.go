package models

import "time"

// HoldReason classifies why a summary could not be generated.
type HoldReason string

const (
	HoldRateLimit       HoldReason = "rate_limit"
	HoldAPIError        HoldReason = "api_error"
	HoldTimeout         HoldReason = "timeout"
	HoldInvalidResponse HoldReason = "invalid_response"
	HoldUnknown         HoldReason = "unknown"
)

// EntryHoldStatus records the last failed summary attempt for an entry.
// There is at most one per entry and it never coexists with an EntrySummary.
type EntryHoldStatus struct {
	Base         `bson:",inline"`
	EntryID      string     `json:"entry_id"             bson:"entry_id"             gorm:"type:char(36);not null;uniqueIndex:idx_hold_status_owner"`
	Reason       HoldReason `json:"reason"               bson:"reason"               gorm:"type:varchar(32)"`
	ErrorMessage string     `json:"error_message"        bson:"error_message"        gorm:"type:text"`
	ErrorCode    string     `json:"error_code,omitempty" bson:"error_code,omitempty" gorm:"type:varchar(32)"`
	RetryCount   int        `json:"retry_count"          bson:"retry_count"`
	LastAttempt  time.Time  `json:"last_attempt"         bson:"last_attempt"`
}

func (EntryHoldStatus) TableName() string { return "entry_hold_statuses" }
