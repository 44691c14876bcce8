package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Memory is an in-process ObjectStore for tests and local runs without a
// bucket.
type Memory struct {
	Bucket string

	mu      sync.Mutex
	objects map[string]MemoryObject
	// FailUploads makes Upload return an error.
	FailUploads bool
}

// MemoryObject is a stored object.
type MemoryObject struct {
	ContentType string
	Data        []byte
}

var _ ObjectStore = (*Memory)(nil)

func NewMemory(bucket string) *Memory {
	return &Memory{Bucket: bucket, objects: make(map[string]MemoryObject)}
}

func (m *Memory) Upload(_ context.Context, object, contentType string, r io.Reader) (string, error) {
	if m.FailUploads {
		return "", fmt.Errorf("upload %s: simulated failure", object)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[object] = MemoryObject{ContentType: contentType, Data: data}
	return PublicURL(m.Bucket, object), nil
}

func (m *Memory) Delete(_ context.Context, url string) error {
	object, err := ObjectFromURL(m.Bucket, url)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, object)
	return nil
}

// Objects returns a snapshot of stored objects keyed by name.
func (m *Memory) Objects() map[string]MemoryObject {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]MemoryObject, len(m.objects))
	for k, v := range m.objects {
		out[k] = v
	}
	return out
}
