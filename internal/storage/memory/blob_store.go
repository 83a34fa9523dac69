package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
)

// BlobStore stores exported artifacts in-memory and returns pseudo URIs.
type BlobStore struct {
	mu      sync.RWMutex
	data    map[string][]byte
	updated map[string]time.Time
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		data:    make(map[string][]byte),
		updated: make(map[string]time.Time),
	}
}

// PutObject persists the content and returns a URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = append([]byte(nil), byteData...)
	s.updated[path] = time.Now().UTC()
	return uriFor(path), nil
}

// List returns stored objects under prefix, sorted by path.
func (s *BlobStore) List(_ context.Context, prefix string) ([]scraping.BlobObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scraping.BlobObject, 0, len(s.data))
	for path, body := range s.data {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		out = append(out, scraping.BlobObject{
			Path:    path,
			URI:     uriFor(path),
			Size:    int64(len(body)),
			Updated: s.updated[path],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func uriFor(path string) string {
	return fmt.Sprintf("memory://%s", path)
}
