package client

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStorage holds uploads in process memory. It stands in for the
// bucket during local development and in tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte)}
}

func (c *MemoryStorage) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(body))
	copy(buf, body)
	c.objects[key] = buf
	return c.GetPublicURL(key), nil
}

func (c *MemoryStorage) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, key)
	return nil
}

func (c *MemoryStorage) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return c.GetPublicURL(key), nil
}

func (c *MemoryStorage) GetPublicURL(key string) string {
	return fmt.Sprintf("memory://%s", key)
}

// Object returns a stored object, for test assertions.
func (c *MemoryStorage) Object(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.objects[key]
	return obj, ok
}

// Keys lists stored object keys, for test assertions.
func (c *MemoryStorage) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.objects))
	for k := range c.objects {
		keys = append(keys, k)
	}
	return keys
}
