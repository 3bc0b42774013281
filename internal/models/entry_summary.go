package models

// EntrySummary is the AI-derived insight for exactly one entry.
type EntrySummary struct {
	Base              `bson:",inline"`
	EntryID           string      `json:"entry_id"           bson:"entry_id"           gorm:"type:char(36);not null;uniqueIndex:idx_entry_summary_owner"`
	KeyThemes         StringArray `json:"key_themes"         bson:"key_themes"         gorm:"type:text"`
	EmotionalInsights StringArray `json:"emotional_insights" bson:"emotional_insights" gorm:"type:text"`
	PersonalGrowth    StringArray `json:"personal_growth"    bson:"personal_growth"    gorm:"type:text"`
	Patterns          StringArray `json:"patterns"           bson:"patterns"           gorm:"type:text"`
	Suggestions       StringArray `json:"suggestions"        bson:"suggestions"        gorm:"type:text"`
	MotivationalNote  string      `json:"motivational_note"  bson:"motivational_note"  gorm:"type:text"`
	Reflection        string      `json:"reflection"         bson:"reflection"         gorm:"type:text"`
}

func (EntrySummary) TableName() string { return "entry_summaries" }
