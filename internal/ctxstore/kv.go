package ctxstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// KV is a string key/value backend. A missing key is reported with ok=false, not an error.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Batcher is implemented by backends that can apply several writes in one step.
type Batcher interface {
	Apply(ctx context.Context, set map[string]string, del []string) error
}

// MemoryKV keeps values in process memory.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryKV) Apply(_ context.Context, set map[string]string, del []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range set {
		m.data[k] = v
	}
	for _, k := range del {
		delete(m.data, k)
	}
	return nil
}

// FileKV persists a flat JSON object on disk. A missing or unparseable file reads as empty.
type FileKV struct {
	path string
	mu   sync.Mutex
}

func NewFileKV(path string) *FileKV {
	return &FileKV{path: path}
}

func (f *FileKV) Path() string { return f.path }

func (f *FileKV) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.read()
	if err != nil {
		return "", false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

func (f *FileKV) Set(ctx context.Context, key, value string) error {
	return f.Apply(ctx, map[string]string{key: value}, nil)
}

func (f *FileKV) Delete(ctx context.Context, key string) error {
	return f.Apply(ctx, nil, []string{key})
}

func (f *FileKV) Apply(_ context.Context, set map[string]string, del []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.read()
	if err != nil {
		return err
	}
	for k, v := range set {
		data[k] = v
	}
	for _, k := range del {
		delete(data, k)
	}
	return f.write(data)
}

func (f *FileKV) read() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read context file: %w", err)
	}
	data := map[string]string{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return map[string]string{}, nil
	}
	return data, nil
}

// write replaces the file through a rename so readers never see a partial document.
func (f *FileKV) write(data map[string]string) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create context dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".ctx-*.json")
	if err != nil {
		return fmt.Errorf("write context file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write context file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write context file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("write context file: %w", err)
	}
	return nil
}
