package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/timmy/emosense/internal/source"
)

const maxLineBytes = 1 << 20

// rawRecord uses pointers so a missing field can be told apart from an empty one.
type rawRecord struct {
	Text  *string `json:"text"`
	Label *string `json:"label"`
}

// Adapter implements source.Source over a newline-delimited JSON file of
// {"text": ..., "label": ...} records.
type Adapter struct {
	path    string
	records []source.Record
	loaded  bool
}

// NewAdapter creates a new JSONL adapter.
// Parameters:
//   - path: path to the .jsonl file.
//
// Returns:
//   - *Adapter: adapter that reads the file lazily on the first FetchBatch.
func NewAdapter(path string) *Adapter {
	return &Adapter{path: path}
}

// GetSourceID returns the unique identifier for this source.
func (a *Adapter) GetSourceID() string {
	return "jsonl:" + a.path
}

// FetchBatch returns up to limit records starting at the index encoded in cursor.
// The first call reads and validates the whole file.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.Record, string, error) {
	if !a.loaded {
		if err := a.load(ctx); err != nil {
			return nil, "", err
		}
		a.loaded = true
	}

	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil || start < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}
	if start >= len(a.records) {
		return []source.Record{}, "", nil
	}
	if limit <= 0 {
		limit = len(a.records)
	}

	end := start + limit
	if end > len(a.records) {
		end = len(a.records)
	}

	next := ""
	if end < len(a.records) {
		next = strconv.Itoa(end)
	}
	return a.records[start:end], next, nil
}

func (a *Adapter) load(ctx context.Context) error {
	file, err := os.Open(a.path)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer file.Close()

	a.records = []source.Record{}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%1000 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec, err := a.parse(lineNo, line)
		if err != nil {
			return err
		}
		a.records = append(a.records, rec)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading source: %w", err)
	}
	return nil
}

func (a *Adapter) parse(lineNo int, line string) (source.Record, error) {
	var raw rawRecord
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return source.Record{}, &source.FormatError{Source: a.path, Line: lineNo, Reason: "invalid JSON: " + err.Error()}
	}
	if raw.Text == nil || strings.TrimSpace(*raw.Text) == "" {
		return source.Record{}, &source.FormatError{Source: a.path, Line: lineNo, Reason: `missing "text"`}
	}
	if raw.Label == nil || strings.TrimSpace(*raw.Label) == "" {
		return source.Record{}, &source.FormatError{Source: a.path, Line: lineNo, Reason: `missing "label"`}
	}
	return source.Record{Line: lineNo, Text: *raw.Text, Label: *raw.Label}, nil
}
