package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// MemoryStore keeps objects in process. Used by tests and local runs
// without MinIO.
type MemoryStore struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memoryObject
}

func NewMemoryStore(bucket string) *MemoryStore {
	if bucket == "" {
		bucket = "documents"
	}
	return &MemoryStore{bucket: bucket, objects: make(map[string]memoryObject)}
}

func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, progress ProgressFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	_, exists := m.objects[key]
	m.mu.RUnlock()
	if exists {
		return fmt.Errorf("put object %s: %w", key, ErrObjectExists)
	}

	var buf bytes.Buffer
	if progress != nil {
		r = io.TeeReader(r, &progressReader{total: size, fn: progress})
	}
	if _, err := io.Copy(&buf, r); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[key]; exists {
		return fmt.Errorf("put object %s: %w", key, ErrObjectExists)
	}
	m.objects[key] = memoryObject{data: buf.Bytes(), contentType: contentType, modified: time.Now().UTC()}
	return nil
}

func (m *MemoryStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("presign get %s: %w", key, ErrNotFound)
	}
	u := url.URL{Scheme: "memory", Host: m.bucket, Path: "/" + key}
	q := u.Query()
	q.Set("expires", time.Now().Add(expiry).UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ObjectInfo, 0)
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ObjectInfo{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType, LastModified: obj.modified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Open returns a stored object's bytes.
func (m *MemoryStore) Open(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj.data, ok
}
