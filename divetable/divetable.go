// Package divetable provides the static (dive number, height) -> degree of difficulty lookup.
package divetable

import (
	_ "embed"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"sync"

	"github.com/titanous/json5"
)

//go:embed dive_table.json
var embeddedTable []byte

// Entry describes one dive number and its difficulty per board height.
type Entry struct {
	Name string             `json:"name"`
	DD   map[string]float64 `json:"dd"`
}

// Table is read-only after construction and safe for concurrent use.
type Table struct {
	entries map[string]Entry
}

// New wraps entries in a Table. The map is copied.
func New(entries map[string]Entry) *Table {
	copied := make(map[string]Entry, len(entries))
	for number, entry := range entries {
		dd := make(map[string]float64, len(entry.DD))
		for height, value := range entry.DD {
			dd[height] = value
		}
		copied[number] = Entry{Name: entry.Name, DD: dd}
	}
	return &Table{entries: copied}
}

// Load decodes a table from JSON (JSON5 comments are accepted).
func Load(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dive table: %w", err)
	}
	var entries map[string]Entry
	if err := json5.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode dive table: %w", err)
	}
	return &Table{entries: entries}, nil
}

// LoadFile loads a table from path.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dive table: %w", err)
	}
	defer f.Close()
	return Load(f)
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
	defaultErr   error
)

// Default returns the bundled table.
func Default() (*Table, error) {
	defaultOnce.Do(func() {
		var entries map[string]Entry
		if err := json5.Unmarshal(embeddedTable, &entries); err != nil {
			defaultErr = fmt.Errorf("decode embedded dive table: %w", err)
			return
		}
		defaultTable = &Table{entries: entries}
	})
	return defaultTable, defaultErr
}

// DD returns the difficulty for a dive number at a height, and whether it was found.
func (t *Table) DD(number string, height float64) (float64, bool) {
	if t == nil {
		return 0, false
	}
	entry, ok := t.entries[number]
	if !ok {
		return 0, false
	}
	dd, ok := entry.DD[HeightKey(height)]
	return dd, ok
}

// Name returns the display name of a dive number.
func (t *Table) Name(number string) (string, bool) {
	if t == nil {
		return "", false
	}
	entry, ok := t.entries[number]
	return entry.Name, ok
}

// Len returns the number of dive numbers in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// HeightKey canonicalises a height: whole numbers lose their decimal part (3.0 -> "3").
func HeightKey(height float64) string {
	if height == math.Trunc(height) && !math.IsInf(height, 0) {
		return strconv.FormatInt(int64(height), 10)
	}
	return strconv.FormatFloat(height, 'f', -1, 64)
}
