package models

import "time"

// Mood is the optional self-reported mood attached to an entry.
type Mood string

const (
	MoodHappy    Mood = "happy"
	MoodExcited  Mood = "excited"
	MoodGrateful Mood = "grateful"
	MoodCalm     Mood = "calm"
	MoodNeutral  Mood = "neutral"
	MoodTired    Mood = "tired"
	MoodAnxious  Mood = "anxious"
	MoodSad      Mood = "sad"
	MoodAngry    Mood = "angry"
)

var validMoods = map[Mood]bool{
	MoodHappy: true, MoodExcited: true, MoodGrateful: true,
	MoodCalm: true, MoodNeutral: true, MoodTired: true,
	MoodAnxious: true, MoodSad: true, MoodAngry: true,
}

// Valid reports whether m is empty (absent) or a known mood.
func (m Mood) Valid() bool {
	return m == "" || validMoods[m]
}

// DateLayout is the calendar-day format of JournalEntry.Date.
const DateLayout = "2006-01-02"

// JournalEntry is a single dated free-text journal record.
type JournalEntry struct {
	Base      `bson:",inline"`
	Title     string      `json:"title"      bson:"title"      gorm:"type:varchar(255)"`
	Content   string      `json:"content"    bson:"content"    gorm:"type:longtext"`
	Date      string      `json:"date"       bson:"date"       gorm:"type:char(10);index"`
	Mood      Mood        `json:"mood"       bson:"mood"       gorm:"type:varchar(16)"`
	Tags      StringArray `json:"tags"       bson:"tags"       gorm:"type:text"`
	UpdatedAt time.Time   `json:"updated_at" bson:"updated_at"`
}

func (JournalEntry) TableName() string { return "journal_entries" }
