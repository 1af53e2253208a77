package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/timmy/emosense/internal/logger"
	"github.com/timmy/emosense/internal/repository"
	"github.com/timmy/emosense/internal/source"
	"github.com/timmy/emosense/internal/source/jsonl"
	"github.com/timmy/emosense/internal/vector"
)

// lengthEmbedder derives a 2-d vector from the text length so ordering is predictable.
type lengthEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  string
}

func (e *lengthEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if t == e.fail {
			return nil, fmt.Errorf("upstream rejected %q", t)
		}
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func writeCorpus(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuilder_BuildKeepsSourceOrder(t *testing.T) {
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, fmt.Sprintf(`{"text":"%s","label":"joy"}`, string(rune('a'+i))+fmt.Sprint(i)))
	}
	path := writeCorpus(t, lines...)

	emb := &lengthEmbedder{}
	b := NewBuilder(emb, logger.NewDefault(), &Config{BatchSize: 3, Workers: 2})

	idx, stats, err := b.Build(context.Background(), jsonl.NewAdapter(path))
	if err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 10 || stats.Records != 10 || stats.Dimensions != 2 {
		t.Fatalf("unexpected stats: size=%d %+v", idx.Size(), stats)
	}
	if emb.calls != 4 {
		t.Errorf("expected 4 embedding batches, got %d", emb.calls)
	}
	for i, ex := range idx.Examples() {
		want := string(rune('a'+i)) + fmt.Sprint(i)
		if ex.Text != want {
			t.Errorf("position %d: got %q, want %q", i, ex.Text, want)
		}
	}
}

func TestBuilder_EmptySource(t *testing.T) {
	path := writeCorpus(t, "", "")
	b := NewBuilder(&lengthEmbedder{}, logger.NewDefault(), nil)

	_, _, err := b.Build(context.Background(), jsonl.NewAdapter(path))
	if !errors.Is(err, vector.ErrEmptyCorpus) {
		t.Fatalf("expected ErrEmptyCorpus, got %v", err)
	}
}

func TestBuilder_FormatErrorWritesNothing(t *testing.T) {
	path := writeCorpus(t, `{"text":"fine","label":"joy"}`, `{"text":"no label"}`)
	out := filepath.Join(t.TempDir(), "index.bin")
	b := NewBuilder(&lengthEmbedder{}, logger.NewDefault(), nil)

	_, _, err := b.BuildAndPersist(context.Background(), jsonl.NewAdapter(path), out)
	if !errors.Is(err, source.ErrSourceFormat) {
		t.Fatalf("expected ErrSourceFormat, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Errorf("expected no index file, stat err = %v", statErr)
	}
}

func TestBuilder_EmbeddingFailureWritesNothing(t *testing.T) {
	path := writeCorpus(t, `{"text":"fine","label":"joy"}`, `{"text":"boom","label":"anger"}`)
	out := filepath.Join(t.TempDir(), "index.bin")
	b := NewBuilder(&lengthEmbedder{fail: "boom"}, logger.NewDefault(), &Config{BatchSize: 1})

	if _, _, err := b.BuildAndPersist(context.Background(), jsonl.NewAdapter(path), out); err == nil {
		t.Fatal("expected embedding error")
	}
	if _, statErr := os.Stat(vector.MetaPath(out)); !os.IsNotExist(statErr) {
		t.Errorf("expected no meta file, stat err = %v", statErr)
	}
}

func TestBuilder_BuildAndPersistRoundTrip(t *testing.T) {
	path := writeCorpus(t,
		`{"text":"I'm so thrilled!","label":"joy"}`,
		`{"text":"This is awful","label":"sadness"}`,
	)
	out := filepath.Join(t.TempDir(), "index.bin")
	b := NewBuilder(&lengthEmbedder{}, logger.NewDefault(), nil)

	built, _, err := b.BuildAndPersist(context.Background(), jsonl.NewAdapter(path), out)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := vector.Load(out)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != built.Size() || loaded.Examples()[1].Label != "sadness" {
		t.Errorf("loaded index differs: %+v", loaded.Examples())
	}
}

// memSink is an in-memory collection keyed by position.
type memSink struct {
	ensured bool
	points  map[int]repository.ExamplePoint
	upserts int
}

func newMemSink() *memSink {
	return &memSink{points: map[int]repository.ExamplePoint{}}
}

func (s *memSink) EnsureCollection(context.Context) error {
	s.ensured = true
	return nil
}

func (s *memSink) UpsertExamples(_ context.Context, points []repository.ExamplePoint) error {
	s.upserts += len(points)
	for _, p := range points {
		s.points[p.Position] = p
	}
	return nil
}

func (s *memSink) DeleteFromPosition(_ context.Context, size int) error {
	for pos := range s.points {
		if pos >= size {
			delete(s.points, pos)
		}
	}
	return nil
}

func (s *memSink) Count(context.Context) (uint64, error) {
	return uint64(len(s.points)), nil
}

func buildIndex(t *testing.T, n int) *vector.Index {
	t.Helper()
	examples := make([]vector.Example, n)
	vectors := make([][]float32, n)
	for i := range examples {
		examples[i] = vector.Example{Text: fmt.Sprintf("text %d", i), Label: "joy"}
		vectors[i] = []float32{float32(i + 1), 1}
	}
	idx, err := vector.BuildFromVectors(examples, vectors)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestSyncToQdrant(t *testing.T) {
	idx, err := vector.BuildFromVectors(
		[]vector.Example{{Text: "a", Label: "joy"}, {Text: "b", Label: "fear"}},
		[][]float32{{3, 4}, {0, 2}},
	)
	if err != nil {
		t.Fatal(err)
	}

	sink := newMemSink()
	if err := SyncToQdrant(context.Background(), idx, sink); err != nil {
		t.Fatal(err)
	}
	if !sink.ensured || len(sink.points) != 2 {
		t.Fatalf("unexpected sink state: ensured=%v points=%d", sink.ensured, len(sink.points))
	}
	p := sink.points[0]
	if p.Position != 0 || p.Label != "joy" || p.Vector[0] != 0.6 {
		t.Errorf("unexpected point: %+v", p)
	}
}

func TestSyncToQdrant_SmallerRebuildRemovesStalePoints(t *testing.T) {
	ctx := context.Background()
	sink := newMemSink()

	if err := SyncToQdrant(ctx, buildIndex(t, 5), sink); err != nil {
		t.Fatal(err)
	}
	if err := SyncToQdrant(ctx, buildIndex(t, 3), sink); err != nil {
		t.Fatal(err)
	}

	if len(sink.points) != 3 {
		t.Fatalf("collection holds %d points, want 3", len(sink.points))
	}
	for pos := range sink.points {
		if pos >= 3 {
			t.Errorf("stale point at position %d", pos)
		}
	}
}

type fixedCounter uint64

func (c fixedCounter) Count(context.Context) (uint64, error) { return uint64(c), nil }

func TestVerifyMirror(t *testing.T) {
	ctx := context.Background()
	if err := VerifyMirror(ctx, fixedCounter(3), 3); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := VerifyMirror(ctx, fixedCounter(5), 3); !errors.Is(err, ErrMirrorOutOfSync) {
		t.Errorf("expected ErrMirrorOutOfSync, got %v", err)
	}
}
