package localcache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"os"
	"sync"

	redisc "github.com/mx-space/journal/internal/pkg/redis"
	"github.com/peterbourgon/diskv/v3"
)

// MemoryBackend keeps values in process memory.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotCached
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryBackend) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// DiskBackend persists values as files under a base directory.
type DiskBackend struct {
	d *diskv.Diskv
}

// NewDiskBackend opens a diskv store rooted at dir. Keys are hashed into a
// two-level directory fan-out.
func NewDiskBackend(dir string) *DiskBackend {
	return &DiskBackend{d: diskv.New(diskv.Options{
		BasePath:          dir,
		AdvancedTransform: hashedPathTransform,
		InverseTransform:  func(pk *diskv.PathKey) string { return pk.FileName },
		CacheSizeMax:      1024 * 1024,
	})}
}

func hashedPathTransform(key string) *diskv.PathKey {
	sum := sha1.Sum([]byte(key))
	name := hex.EncodeToString(sum[:])
	return &diskv.PathKey{
		Path:     []string{name[0:2], name[2:4]},
		FileName: name,
	}
}

func (b *DiskBackend) Get(_ context.Context, key string) ([]byte, error) {
	v, err := b.d.Read(key)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotCached
	}
	return v, err
}

func (b *DiskBackend) Put(_ context.Context, key string, value []byte) error {
	return b.d.Write(key, value)
}

func (b *DiskBackend) Delete(_ context.Context, key string) error {
	err := b.d.Erase(key)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// RedisBackend shares snapshots between processes through Redis.
type RedisBackend struct {
	rc *redisc.Client
}

func NewRedisBackend(rc *redisc.Client) *RedisBackend {
	return &RedisBackend{rc: rc}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, found, err := b.rc.GetBytes(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotCached
	}
	return v, nil
}

func (b *RedisBackend) Put(ctx context.Context, key string, value []byte) error {
	return b.rc.Set(ctx, key, value, 0)
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.rc.Del(ctx, key)
}
