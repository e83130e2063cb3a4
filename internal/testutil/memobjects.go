package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"logbook/internal/storage"
	"logbook/pkg/types"
)

type memObject struct {
	body     []byte
	modified time.Time
}

// MemObjects is an in-memory object store. FailUpload, when set, decides
// per key whether an upload fails. OnUpload runs before every upload,
// outside the store's lock.
type MemObjects struct {
	mu      sync.Mutex
	objects map[string]memObject // "bucket/key"

	FailUpload func(bucket, key string) bool
	OnUpload   func(bucket, key string)
	DeleteErr  error
	Uploads    int
}

func NewMemObjects() *MemObjects {
	return &MemObjects{objects: map[string]memObject{}}
}

func (m *MemObjects) Upload(_ context.Context, bucket, key string, body []byte, _ string) (string, error) {
	if m.OnUpload != nil {
		m.OnUpload(bucket, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailUpload != nil && m.FailUpload(bucket, key) {
		return "", fmt.Errorf("%w: upload %s/%s: injected failure", types.ErrStorage, bucket, key)
	}

	m.Uploads++
	m.objects[bucket+"/"+key] = memObject{body: append([]byte(nil), body...), modified: time.Now()}
	return "https://objects.test/" + bucket + "/" + key, nil
}

func (m *MemObjects) Delete(_ context.Context, bucket string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeleteErr != nil {
		return m.DeleteErr
	}

	for _, key := range keys {
		delete(m.objects, bucket+"/"+key)
	}
	return nil
}

func (m *MemObjects) List(_ context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []storage.ObjectInfo
	for k, object := range m.objects {
		b, key, _ := strings.Cut(k, "/")
		if b == bucket && strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(object.body)), LastModified: object.modified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Put stores an object directly with the given modification time.
func (m *MemObjects) Put(bucket, key string, body []byte, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = memObject{body: body, modified: modified}
}

func (m *MemObjects) Has(bucket, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[bucket+"/"+key]
	return ok
}

// Keys returns every key stored in bucket.
func (m *MemObjects) Keys(bucket string) []string {
	objects, _ := m.List(context.Background(), bucket, "")

	keys := make([]string, 0, len(objects))
	for _, object := range objects {
		keys = append(keys, object.Key)
	}
	return keys
}
