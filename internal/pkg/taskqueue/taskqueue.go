package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisc "github.com/mx-space/journal/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is one unit of background work recorded in Redis.
type Task struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	DedupKey  string          `json:"dedup_key"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Status    TaskStatus      `json:"status"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Done reports whether the task reached a terminal status.
func (t *Task) Done() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}

const (
	keyPrefix   = "journal:task:"
	keyIndex    = "journal:tasks:index"     // sorted set: score=created_at, member=task_id
	keyInflight = "journal:tasks:inflight:" // hash per type: dedup_key -> task_id
	taskTTL     = 7 * 24 * time.Hour

	// A running task not touched for this long is treated as abandoned by a
	// crashed process and may be taken over.
	defaultStaleAfter = 2 * time.Minute
)

// Service keeps the Redis-backed task ledger.
type Service struct {
	rc         *redisc.Client
	staleAfter time.Duration
	now        func() time.Time
}

func NewService(rc *redisc.Client) *Service {
	return &Service{rc: rc, staleAfter: defaultStaleAfter, now: time.Now}
}

func (s *Service) taskKey(id string) string { return keyPrefix + id }

// Begin records a running task unless another task with the same dedup key is
// still in flight. acquired is false when an existing task holds the key; that
// task is returned instead.
func (s *Service) Begin(ctx context.Context, taskType, dedupKey string, payload interface{}) (task *Task, acquired bool, err error) {
	if dedupKey == "" {
		return nil, false, errors.New("taskqueue: dedup key required")
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, false, err
	}
	now := s.now()
	task = &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		DedupKey:  dedupKey,
		Payload:   payloadBytes,
		Status:    TaskRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}

	inflight := keyInflight + taskType
	ok, err := s.rc.Raw().HSetNX(ctx, inflight, dedupKey, task.ID).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		existingID, err := s.rc.Raw().HGet(ctx, inflight, dedupKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, false, err
		}
		existing, err := s.GetByID(ctx, existingID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil && !existing.Done() && now.Sub(existing.UpdatedAt) < s.staleAfter {
			return existing, false, nil
		}
		// Holder finished without clearing the key, or went away.
		if err := s.rc.Raw().HSet(ctx, inflight, dedupKey, task.ID).Err(); err != nil {
			return nil, false, err
		}
	}

	data, err := json.Marshal(task)
	if err != nil {
		return nil, false, err
	}
	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(task.ID), data, taskTTL)
	pipe.ZAdd(ctx, keyIndex, redis.Z{
		Score:  float64(task.CreatedAt.UnixMilli()),
		Member: task.ID,
	})
	pipe.Expire(ctx, inflight, taskTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, err
	}
	return task, true, nil
}

// Finish marks a task completed, or failed when failure is non-nil, and frees
// its dedup key.
func (s *Service) Finish(ctx context.Context, id string, failure error) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %s not found", id)
	}

	task.Status = TaskCompleted
	task.Error = ""
	if failure != nil {
		task.Status = TaskFailed
		task.Error = failure.Error()
	}
	task.UpdatedAt = s.now()

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(id), data, taskTTL)
	pipe.Eval(ctx, releaseScript, []string{keyInflight + task.Type}, task.DedupKey, task.ID)
	_, err = pipe.Exec(ctx)
	return err
}

const releaseScript = `
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
	return redis.call("HDEL", KEYS[1], ARGV[1])
end
return 0
`

// GetByID retrieves a task by its ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Task, error) {
	if id == "" {
		return nil, nil
	}
	data, err := s.rc.Raw().Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var task Task
	return &task, json.Unmarshal(data, &task)
}

// List returns tasks matching optional filters, newest first.
func (s *Service) List(ctx context.Context, limit int, taskType string, status TaskStatus) ([]*Task, error) {
	ids, err := s.rc.Raw().ZRevRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	tasks := make([]*Task, 0)
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if err != nil || task == nil {
			continue
		}
		if taskType != "" && task.Type != taskType {
			continue
		}
		if status != "" && task.Status != status {
			continue
		}
		tasks = append(tasks, task)
		if limit > 0 && len(tasks) >= limit {
			break
		}
	}
	return tasks, nil
}

// DeleteCompleted removes finished tasks created before the cutoff and prunes
// index members whose task payload already expired.
func (s *Service) DeleteCompleted(ctx context.Context, before time.Time) error {
	ids, err := s.rc.Raw().ZRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return err
	}
	pipe := s.rc.Raw().TxPipeline()
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if err != nil {
			continue
		}
		if task == nil {
			pipe.ZRem(ctx, keyIndex, id)
			continue
		}
		if !task.Done() || !task.CreatedAt.Before(before) {
			continue
		}
		pipe.Del(ctx, s.taskKey(id))
		pipe.ZRem(ctx, keyIndex, id)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Tracker binds the ledger to one task type.
type Tracker struct {
	svc      *Service
	taskType string
}

// Tracker returns a Tracker for taskType.
func (s *Service) Tracker(taskType string) *Tracker {
	return &Tracker{svc: s, taskType: taskType}
}

// Begin claims key. acquired is false while another process holds it.
func (t *Tracker) Begin(ctx context.Context, key string) (taskID string, acquired bool, err error) {
	task, acquired, err := t.svc.Begin(ctx, t.taskType, key, map[string]string{"key": key})
	if err != nil || task == nil {
		return "", false, err
	}
	return task.ID, acquired, nil
}

// Finish releases a claim taken by Begin.
func (t *Tracker) Finish(ctx context.Context, taskID string, failure error) error {
	return t.svc.Finish(ctx, taskID, failure)
}
