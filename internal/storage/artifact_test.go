package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/timmy/emosense/internal/vector"
)

// memStorage is an in-memory ObjectStorage.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (m *memStorage) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return nil
}

func (m *memStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) EnsureBucket(context.Context) error { return nil }

func (m *memStorage) GetURL(key string) string { return "mem://" + key }

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *memStorage) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func TestPublishAndFetchIndex(t *testing.T) {
	idx, err := vector.BuildFromVectors(
		[]vector.Example{{Text: "I'm so thrilled!", Label: "joy"}, {Text: "This is awful", Label: "sadness"}},
		[][]float32{{1, 0}, {0, 1}},
	)
	if err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(t.TempDir(), "built.index")
	if err := idx.Persist(src); err != nil {
		t.Fatal(err)
	}

	store := newMemStorage()
	ctx := context.Background()
	if err := PublishIndex(ctx, store, src, "indexes/v1/emotion.index"); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"indexes/v1/emotion.index", "indexes/v1/emotion.index.meta"} {
		if ok, _ := store.Exists(ctx, key); !ok {
			t.Fatalf("expected %s to be published", key)
		}
	}

	dst := filepath.Join(t.TempDir(), "nested", "emotion.index")
	if err := FetchIndex(ctx, store, "indexes/v1/emotion.index", dst); err != nil {
		t.Fatal(err)
	}
	loaded, err := vector.Load(dst)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 || loaded.Examples()[0].Label != "joy" {
		t.Errorf("unexpected fetched index: %+v", loaded.Examples())
	}
}

func TestFetchIndex_MissingMetaLeavesNothing(t *testing.T) {
	store := newMemStorage()
	ctx := context.Background()
	store.Upload(ctx, "k", bytes.NewReader([]byte("payload")), 7, indexContentType)

	dst := filepath.Join(t.TempDir(), "emotion.index")
	err := FetchIndex(ctx, store, "k", dst)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected ErrNotExist for missing metadata object, got %v", err)
	}
	if _, err := os.Stat(dst); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected no payload file, got %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(dst))
	if len(entries) != 0 {
		t.Errorf("expected empty directory, found %d entries", len(entries))
	}
}

func TestFetchIndex_MissingPayload(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "emotion.index")
	err := FetchIndex(context.Background(), newMemStorage(), "indexes/v2/emotion.index", dst)
	if !errors.Is(err, ErrObjectNotFound) || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

// metaRejectingStorage fails every upload of a metadata sidecar.
type metaRejectingStorage struct {
	*memStorage
}

func (m metaRejectingStorage) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if strings.HasSuffix(key, ".meta") {
		return errors.New("quota exceeded")
	}
	return m.memStorage.Upload(ctx, key, r, size, contentType)
}

func TestPublishIndex_RollsBackPayloadWhenMetaFails(t *testing.T) {
	idx, err := vector.BuildFromVectors(
		[]vector.Example{{Text: "so calm today", Label: "neutral"}},
		[][]float32{{1, 1}},
	)
	if err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(t.TempDir(), "built.index")
	if err := idx.Persist(src); err != nil {
		t.Fatal(err)
	}

	store := metaRejectingStorage{newMemStorage()}
	ctx := context.Background()
	if err := PublishIndex(ctx, store, src, "indexes/v3/emotion.index"); err == nil {
		t.Fatal("expected publish to fail")
	}
	if ok, _ := store.Exists(ctx, "indexes/v3/emotion.index"); ok {
		t.Error("payload left behind after failed publish")
	}
}

func TestDetectStorageType(t *testing.T) {
	tests := map[string]StorageType{
		"https://abc.r2.cloudflarestorage.com": StorageTypeR2,
		"s3.us-east-1.amazonaws.com":           StorageTypeS3,
		"localhost:9000":                       StorageTypeS3Compatible,
	}
	for endpoint, want := range tests {
		if got := detectStorageType(endpoint); got != want {
			t.Errorf("detectStorageType(%q) = %s, want %s", endpoint, got, want)
		}
	}
}
