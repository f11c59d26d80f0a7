package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps objects in process memory. Used for local runs without
// an S3 endpoint and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data     []byte
	modified time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (m *MemoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ PutOptions) (ObjectInfo, error) {
	if strings.TrimSpace(key) == "" {
		return ObjectInfo{}, fmt.Errorf("object key is required")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("read object body: %w", err)
	}
	obj := memoryObject{data: data, modified: time.Now().UTC()}
	m.mu.Lock()
	m.objects[key] = obj
	m.mu.Unlock()
	return obj.info(key), nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemoryStore) Stat(_ context.Context, key string) (ObjectInfo, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return ObjectInfo{}, ErrObjectNotFound
	}
	return obj.info(key), nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.RLock()
	out := make([]ObjectInfo, 0)
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, obj.info(key))
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (o memoryObject) info(key string) ObjectInfo {
	sum := md5.Sum(o.data)
	return ObjectInfo{
		Key:          key,
		Size:         int64(len(o.data)),
		ETag:         hex.EncodeToString(sum[:]),
		LastModified: o.modified,
	}
}
