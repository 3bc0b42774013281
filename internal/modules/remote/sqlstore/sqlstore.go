// Package sqlstore implements the remote store on MySQL through gorm.
package sqlstore

import (
	"context"
	"errors"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/mx-space/journal/internal/models"
	"github.com/mx-space/journal/internal/modules/remote"
	"gorm.io/gorm"
)

// Store is a remote.Store over a gorm connection.
type Store struct {
	db *gorm.DB
}

var _ remote.Store = (*Store)(nil)

// New wraps an already migrated gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

const mysqlDuplicateEntry = 1062

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return remote.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return remote.ErrConflict
	}
	var me *mysqldriver.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return remote.ErrConflict
	}
	return err
}

func list[T any](ctx context.Context, db *gorm.DB, userID string) ([]T, error) {
	out := make([]T, 0)
	if err := db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("sql list: %w", err)
	}
	return out, nil
}

func create(ctx context.Context, db *gorm.DB, value interface{}) error {
	return translate(db.WithContext(ctx).Create(value).Error)
}

func save[T any](ctx context.Context, db *gorm.DB, userID, id string, value *T) error {
	res := db.WithContext(ctx).Model(new(T)).Where("id = ? AND user_id = ?", id, userID).Select("*").Updates(value)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := db.WithContext(ctx).Model(new(T)).Where("id = ? AND user_id = ?", id, userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return remote.ErrNotFound
		}
	}
	return nil
}

func remove[T any](ctx context.Context, db *gorm.DB, query string, mustExist bool, args ...interface{}) error {
	res := db.WithContext(ctx).Where(query, args...).Delete(new(T))
	if res.Error != nil {
		return fmt.Errorf("sql delete: %w", res.Error)
	}
	if mustExist && res.RowsAffected == 0 {
		return remote.ErrNotFound
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context, userID string) ([]models.JournalEntry, error) {
	return list[models.JournalEntry](ctx, s.db, userID)
}

func (s *Store) CreateEntry(ctx context.Context, entry *models.JournalEntry) error {
	return create(ctx, s.db, entry)
}

func (s *Store) UpdateEntry(ctx context.Context, entry *models.JournalEntry) error {
	return save(ctx, s.db, entry.UserID, entry.ID, entry)
}

func (s *Store) DeleteEntry(ctx context.Context, userID, id string) error {
	return remove[models.JournalEntry](ctx, s.db, "id = ? AND user_id = ?", true, id, userID)
}

func (s *Store) ListWeeklySummaries(ctx context.Context, userID string) ([]models.WeeklySummary, error) {
	return list[models.WeeklySummary](ctx, s.db, userID)
}

func (s *Store) CreateWeeklySummary(ctx context.Context, summary *models.WeeklySummary) error {
	return create(ctx, s.db, summary)
}

func (s *Store) DeleteWeeklySummary(ctx context.Context, userID, id string) error {
	return remove[models.WeeklySummary](ctx, s.db, "id = ? AND user_id = ?", true, id, userID)
}

func (s *Store) ListEntrySummaries(ctx context.Context, userID string) ([]models.EntrySummary, error) {
	return list[models.EntrySummary](ctx, s.db, userID)
}

func (s *Store) CreateEntrySummary(ctx context.Context, summary *models.EntrySummary) error {
	return create(ctx, s.db, summary)
}

func (s *Store) DeleteEntrySummary(ctx context.Context, userID, id string) error {
	return remove[models.EntrySummary](ctx, s.db, "id = ? AND user_id = ?", true, id, userID)
}

func (s *Store) RemoveEntrySummary(ctx context.Context, userID, entryID string) error {
	return remove[models.EntrySummary](ctx, s.db, "entry_id = ? AND user_id = ?", false, entryID, userID)
}

func (s *Store) ListHoldStatuses(ctx context.Context, userID string) ([]models.EntryHoldStatus, error) {
	return list[models.EntryHoldStatus](ctx, s.db, userID)
}

func (s *Store) CreateHoldStatus(ctx context.Context, status *models.EntryHoldStatus) error {
	return create(ctx, s.db, status)
}

func (s *Store) UpdateHoldStatus(ctx context.Context, status *models.EntryHoldStatus) error {
	return save(ctx, s.db, status.UserID, status.ID, status)
}

func (s *Store) DeleteHoldStatus(ctx context.Context, userID, id string) error {
	return remove[models.EntryHoldStatus](ctx, s.db, "id = ? AND user_id = ?", true, id, userID)
}

func (s *Store) RemoveHoldStatus(ctx context.Context, userID, entryID string) error {
	return remove[models.EntryHoldStatus](ctx, s.db, "entry_id = ? AND user_id = ?", false, entryID, userID)
}

func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
