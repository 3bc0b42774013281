package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Trend is the direction of an emotional pattern across a week.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// EmotionalPattern describes one recurring emotion in a weekly window.
type EmotionalPattern struct {
	Emotion   string  `json:"emotion"           bson:"emotion"`
	Frequency float64 `json:"frequency"         bson:"frequency"`
	Trend     Trend   `json:"trend"             bson:"trend"`
	Context   string  `json:"context,omitempty" bson:"context,omitempty"`
}

// EmotionalPatterns is stored as a JSON column.
type EmotionalPatterns []EmotionalPattern

func (p EmotionalPatterns) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]EmotionalPattern(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *EmotionalPatterns) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*p = EmotionalPatterns{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("models.EmotionalPatterns: unsupported Scan type %T", value)
	}
	if len(raw) == 0 {
		*p = EmotionalPatterns{}
		return nil
	}
	return json.Unmarshal(raw, (*[]EmotionalPattern)(p))
}

// WeeklySummary is the AI-derived insight over a run of seven entry days.
type WeeklySummary struct {
	Base                `bson:",inline"`
	WeekStart           time.Time         `json:"week_start"           bson:"week_start"           gorm:"index"`
	WeekEnd             time.Time         `json:"week_end"             bson:"week_end"             gorm:"index"`
	EntriesAnalyzed     int               `json:"entries_analyzed"     bson:"entries_analyzed"`
	Themes              StringArray       `json:"themes"               bson:"themes"               gorm:"type:text"`
	EmotionalPatterns   EmotionalPatterns `json:"emotional_patterns"   bson:"emotional_patterns"   gorm:"type:text"`
	Achievements        StringArray       `json:"achievements"         bson:"achievements"         gorm:"type:text"`
	Improvements        StringArray       `json:"improvements"         bson:"improvements"         gorm:"type:text"`
	Suggestions         StringArray       `json:"suggestions"          bson:"suggestions"          gorm:"type:text"`
	MotivationalInsight string            `json:"motivational_insight" bson:"motivational_insight" gorm:"type:text"`
	ActionSteps         StringArray       `json:"action_steps"         bson:"action_steps"         gorm:"type:text"`
}

func (WeeklySummary) TableName() string { return "weekly_summaries" }
