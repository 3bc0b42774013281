package session

import (
	"github.com/mx-space/journal/internal/models"
	"github.com/mx-space/journal/internal/modules/entrysummary"
	"github.com/mx-space/journal/internal/modules/journal"
)

type syncResponse struct {
	Replayed int           `json:"replayed"`
	State    journal.State `json:"state"`
}

type summaryView struct {
	State      entrysummary.State      `json:"state"`
	Summary    *models.EntrySummary    `json:"summary,omitempty"`
	Hold       *models.EntryHoldStatus `json:"hold,omitempty"`
	MaxRetries int                     `json:"max_retries"`
	CanRetry   bool                    `json:"can_retry"`
}
