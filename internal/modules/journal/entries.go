package journal

import (
	"context"
	"strings"
	"time"

	"github.com/mx-space/journal/internal/config"
	"github.com/mx-space/journal/internal/models"
	"github.com/mx-space/journal/internal/pkg/localcache"
	"github.com/mx-space/journal/internal/pkg/tags"
	"go.uber.org/zap"
)

// EntryInput is a new entry as the user typed it. An empty Date means today
// in the session's zone.
type EntryInput struct {
	Title   string      `json:"title"`
	Content string      `json:"content"`
	Date    string      `json:"date"`
	Mood    models.Mood `json:"mood"`
	Tags    []string    `json:"tags"`
}

// EntryPatch holds the fields to change; nil fields are kept.
type EntryPatch struct {
	Title   *string      `json:"title"`
	Content *string      `json:"content"`
	Date    *string      `json:"date"`
	Mood    *models.Mood `json:"mood"`
	Tags    *[]string    `json:"tags"`
}

func validDate(day string) bool {
	_, err := time.Parse(models.DateLayout, day)
	return err == nil
}

func (o *Orchestrator) CreateEntry(ctx context.Context, in EntryInput) (models.JournalEntry, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return models.JournalEntry{}, ErrEmptyContent
	}
	if !in.Mood.Valid() {
		return models.JournalEntry{}, ErrInvalidMood
	}
	now := o.now()
	date := strings.TrimSpace(in.Date)
	if date == "" {
		date = now.In(o.loc).Format(models.DateLayout)
	} else if !validDate(date) {
		return models.JournalEntry{}, ErrInvalidDate
	}

	entry := models.JournalEntry{
		Title:     strings.TrimSpace(in.Title),
		Content:   in.Content,
		Date:      date,
		Mood:      in.Mood,
		Tags:      tags.Merge(in.Tags, in.Content),
		UpdatedAt: now,
	}
	entry.ID = models.NewID()
	entry.UserID = o.userID
	entry.CreatedAt = now

	err := o.commit(ctx, mutation{
		op:         "create entry",
		collection: localcache.Entries,
		id:         entry.ID,
		value:      entry,
		remote: func(ctx context.Context) error {
			return o.remote.CreateEntry(ctx, &entry)
		},
		apply: func() {
			o.entries = append(o.entries, entry)
		},
	})
	if err != nil {
		return models.JournalEntry{}, err
	}
	return entry, nil
}

func (o *Orchestrator) UpdateEntry(ctx context.Context, id string, patch EntryPatch) (models.JournalEntry, error) {
	current, ok := o.Entry(id)
	if !ok {
		return models.JournalEntry{}, ErrEntryNotFound
	}

	updated := current
	if patch.Title != nil {
		updated.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Content != nil {
		if strings.TrimSpace(*patch.Content) == "" {
			return models.JournalEntry{}, ErrEmptyContent
		}
		updated.Content = *patch.Content
	}
	if patch.Date != nil {
		if !validDate(*patch.Date) {
			return models.JournalEntry{}, ErrInvalidDate
		}
		updated.Date = *patch.Date
	}
	if patch.Mood != nil {
		if !patch.Mood.Valid() {
			return models.JournalEntry{}, ErrInvalidMood
		}
		updated.Mood = *patch.Mood
	}
	explicit := explicitTags(current)
	if patch.Tags != nil {
		explicit = *patch.Tags
	}
	updated.Tags = tags.Merge(explicit, updated.Content)
	updated.UpdatedAt = o.now()

	err := o.commit(ctx, mutation{
		op:         "update entry",
		collection: localcache.Entries,
		id:         updated.ID,
		value:      updated,
		remote: func(ctx context.Context) error {
			return o.remote.UpdateEntry(ctx, &updated)
		},
		apply: func() {
			o.entries = upsert(o.entries, updated, func(e models.JournalEntry) bool { return e.ID == id })
		},
	})
	if err != nil {
		return models.JournalEntry{}, err
	}

	contentChanged := updated.Content != current.Content
	if o.invalidation == config.InvalidateAlways || contentChanged {
		if _, has := o.EntrySummaryFor(id); has {
			if err := o.DeleteEntrySummary(ctx, id); err != nil {
				o.logger.Warn("summary invalidation failed", zap.String("entry", id), zap.Error(err))
			}
		}
	}
	return updated, nil
}

// DeleteEntry removes the entry, then its summary and hold. Failures of the
// cascade are logged and do not fail the delete.
func (o *Orchestrator) DeleteEntry(ctx context.Context, id string) error {
	if _, ok := o.Entry(id); !ok {
		return ErrEntryNotFound
	}
	err := o.commit(ctx, mutation{
		op:         "delete entry",
		collection: localcache.Entries,
		id:         id,
		remote: func(ctx context.Context) error {
			return o.remote.DeleteEntry(ctx, o.userID, id)
		},
		apply: func() {
			o.entries = without(o.entries, func(e models.JournalEntry) bool { return e.ID == id })
		},
	})
	if err != nil {
		return err
	}

	if err := o.DeleteEntrySummary(ctx, id); err != nil {
		o.logger.Warn("summary cascade failed", zap.String("entry", id), zap.Error(err))
	}
	if err := o.RemoveHoldStatus(ctx, id); err != nil {
		o.logger.Warn("hold cascade failed", zap.String("entry", id), zap.Error(err))
	}
	return nil
}

// explicitTags are the stored tags that the content does not produce.
func explicitTags(entry models.JournalEntry) []string {
	inline := make(map[string]bool)
	for _, t := range tags.Extract(entry.Content) {
		inline[t] = true
	}
	out := make([]string, 0, len(entry.Tags))
	for _, t := range entry.Tags {
		if !inline[t] {
			out = append(out, t)
		}
	}
	return out
}
