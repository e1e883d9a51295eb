package tokenstore

import "sync"

// Backend is a string key/value store shaped like Web Storage.
type Backend interface {
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// MemoryBackend is a map-backed Backend.
type MemoryBackend struct {
	mu    sync.Mutex
	items map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string]string)}
}

func (b *MemoryBackend) GetItem(key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.items[key]
	return v, ok, nil
}

func (b *MemoryBackend) SetItem(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[key] = value
	return nil
}

func (b *MemoryBackend) RemoveItem(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.items, key)
	return nil
}

// Len reports the number of stored items.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
